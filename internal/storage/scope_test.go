package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"terrane/internal/filter"
	"terrane/internal/model"
	"terrane/internal/registry"
)

// fakeTx records terminal calls; the scope never touches data operations.
type fakeTx struct {
	committed  bool
	rolledBack bool
	commitErr  error
}

func (f *fakeTx) Insert(ctx context.Context, e *registry.Entity, row model.Instance) (model.Instance, error) {
	return nil, nil
}
func (f *fakeTx) Update(ctx context.Context, e *registry.Entity, id string, fields model.Instance) (model.Instance, error) {
	return nil, nil
}
func (f *fakeTx) Delete(ctx context.Context, e *registry.Entity, id string) error { return nil }
func (f *fakeTx) Get(ctx context.Context, e *registry.Entity, id string) (model.Instance, error) {
	return nil, nil
}
func (f *fakeTx) Select(ctx context.Context, e *registry.Entity, q SelectQuery) ([]model.Instance, error) {
	return nil, nil
}
func (f *fakeTx) Count(ctx context.Context, e *registry.Entity, p *filter.Predicate) (int, error) {
	return 0, nil
}
func (f *fakeTx) InsertEdge(ctx context.Context, j *registry.Junction, ownerID, relatedID string) (bool, error) {
	return false, nil
}
func (f *fakeTx) DeleteEdges(ctx context.Context, j *registry.Junction, ownerID string, relatedIDs []string) (int, error) {
	return 0, nil
}
func (f *fakeTx) DeleteEdgesForOwner(ctx context.Context, j *registry.Junction, id string) error {
	return nil
}
func (f *fakeTx) SelectEdges(ctx context.Context, j *registry.Junction, ownerIDs []string) ([]Edge, error) {
	return nil, nil
}
func (f *fakeTx) Commit(ctx context.Context) error {
	f.committed = true
	return f.commitErr
}
func (f *fakeTx) Rollback(ctx context.Context) error {
	f.rolledBack = true
	return nil
}

func TestScopeCommitHandsBackQueuedHooks(t *testing.T) {
	ctx := context.Background()
	tx := &fakeTx{}
	scope := NewScope(tx)

	ran := 0
	scope.OnCommit(func(context.Context) { ran++ })
	scope.OnCommit(func(context.Context) { ran++ })

	queued, err := scope.Commit(ctx)
	require.NoError(t, err)
	assert.True(t, tx.committed)
	require.Len(t, queued, 2)
	assert.Zero(t, ran, "commit hands hooks back, it does not run them")
	for _, fn := range queued {
		fn(ctx)
	}
	assert.Equal(t, 2, ran)
}

func TestScopeRollbackDropsQueuedHooks(t *testing.T) {
	ctx := context.Background()
	tx := &fakeTx{}
	scope := NewScope(tx)

	scope.OnCommit(func(context.Context) { t.Fatal("must not run") })
	require.NoError(t, scope.Rollback(ctx))
	assert.True(t, tx.rolledBack)

	// Late registrations on a finished scope are ignored.
	scope.OnCommit(func(context.Context) { t.Fatal("must not run") })
	queued, err := scope.Commit(ctx)
	require.NoError(t, err)
	assert.Empty(t, queued)
}

func TestScopeCommitFailureDropsHooks(t *testing.T) {
	tx := &fakeTx{commitErr: errors.New("connection reset")}
	scope := NewScope(tx)
	scope.OnCommit(func(context.Context) { t.Fatal("must not run") })

	queued, err := scope.Commit(context.Background())
	assert.Error(t, err)
	assert.Empty(t, queued)
}

func TestScopeContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, ok := ScopeFrom(ctx)
	assert.False(t, ok)

	scope := NewScope(&fakeTx{})
	ctx = WithScope(ctx, scope)
	got, ok := ScopeFrom(ctx)
	require.True(t, ok)
	assert.Same(t, scope, got)

	assert.Equal(t, ctx, WithScope(ctx, nil))
}

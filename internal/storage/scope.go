package storage

import (
	"context"
	"sync"
)

// Scope binds an open transaction to the queue of after-hooks that must run
// once it commits. Commit/rollback ownership stays with whoever created the
// scope: when a caller opens the scope and passes it down via context, the
// engine uses the transaction but never finishes it; when no scope is in
// context, the engine opens its own and finishes it itself.
type Scope struct {
	tx Tx

	mu          sync.Mutex
	afterCommit []func(context.Context)
	done        bool
}

// NewScope wraps an open transaction.
func NewScope(tx Tx) *Scope {
	return &Scope{tx: tx}
}

// Tx returns the transaction handle.
func (s *Scope) Tx() Tx { return s.tx }

// OnCommit queues fn to run after a successful commit. Queued functions are
// discarded on rollback.
func (s *Scope) OnCommit(fn func(context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.afterCommit = append(s.afterCommit, fn)
}

// Commit commits the transaction and hands back the queued after-commit
// functions for dispatch. The caller decides where they run; by the time
// they do, the writes are durable.
func (s *Scope) Commit(ctx context.Context) ([]func(context.Context), error) {
	s.mu.Lock()
	queued := s.afterCommit
	s.afterCommit = nil
	s.done = true
	s.mu.Unlock()
	if err := s.tx.Commit(ctx); err != nil {
		return nil, err
	}
	return queued, nil
}

// Rollback aborts the transaction and drops the after-commit queue.
func (s *Scope) Rollback(ctx context.Context) error {
	s.mu.Lock()
	s.afterCommit = nil
	s.done = true
	s.mu.Unlock()
	return s.tx.Rollback(ctx)
}

type scopeKey struct{}

// WithScope stores a transaction scope in context for downstream engine and
// hook usage. A hook that invokes another entity's pipeline with this context
// shares the outer transaction unconditionally.
func WithScope(ctx context.Context, s *Scope) context.Context {
	if s == nil {
		return ctx
	}
	return context.WithValue(ctx, scopeKey{}, s)
}

// ScopeFrom extracts a transaction scope from context if present.
func ScopeFrom(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(*Scope)
	return s, ok
}

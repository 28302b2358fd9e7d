// Package memory is an in-process storage collaborator. It backs unit tests
// and local development; transactions run one at a time against a working
// copy that is swapped in on commit.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"terrane/internal/filter"
	"terrane/internal/model"
	"terrane/internal/registry"
	"terrane/internal/storage"
	"terrane/pkg/platform/sentinel"
)

type table struct {
	rows  map[string]model.Instance
	order []string
}

func (t *table) clone() *table {
	c := &table{rows: make(map[string]model.Instance, len(t.rows)), order: append([]string(nil), t.order...)}
	for id, row := range t.rows {
		c.rows[id] = row.Clone()
	}
	return c
}

// edgeRow is one junction row keyed by column name, so two directional
// relation descriptors sharing a table read the same rows.
type edgeRow struct {
	a, b       string
	colA, colB string
}

// Store keeps all data in maps, preserving insertion order per table.
type Store struct {
	mu     sync.Mutex
	tables map[string]*table
	edges  map[string][]edgeRow // keyed by junction table name
}

func New() *Store {
	return &Store{tables: make(map[string]*table), edges: make(map[string][]edgeRow)}
}

// Begin locks the store and returns a transaction over a working copy.
// Transactions are serialized; this store trades concurrency for the
// snapshot semantics the engine's atomicity contract needs.
func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	s.mu.Lock()
	tx := &memTx{store: s, tables: make(map[string]*table, len(s.tables)), edges: make(map[string][]edgeRow, len(s.edges))}
	for name, t := range s.tables {
		tx.tables[name] = t.clone()
	}
	for name, rows := range s.edges {
		tx.edges[name] = append([]edgeRow(nil), rows...)
	}
	return tx, nil
}

type memTx struct {
	store    *Store
	tables   map[string]*table
	edges    map[string][]edgeRow
	finished bool
}

func (tx *memTx) Commit(ctx context.Context) error {
	if tx.finished {
		return fmt.Errorf("memory: transaction already finished")
	}
	tx.finished = true
	tx.store.tables = tx.tables
	tx.store.edges = tx.edges
	tx.store.mu.Unlock()
	return nil
}

func (tx *memTx) Rollback(ctx context.Context) error {
	if tx.finished {
		return nil
	}
	tx.finished = true
	tx.store.mu.Unlock()
	return nil
}

func (tx *memTx) table(entity *registry.Entity) *table {
	t, ok := tx.tables[entity.Table]
	if !ok {
		t = &table{rows: make(map[string]model.Instance)}
		tx.tables[entity.Table] = t
	}
	return t
}

func (tx *memTx) Insert(ctx context.Context, entity *registry.Entity, row model.Instance) (model.Instance, error) {
	t := tx.table(entity)
	id := row.StringID(entity.PrimaryKey)
	if id == "" {
		return nil, fmt.Errorf("memory: insert into %s without primary key", entity.Table)
	}
	if _, exists := t.rows[id]; exists {
		return nil, fmt.Errorf("memory: %s %s: %w", entity.Name, id, sentinel.ErrConflict)
	}
	t.rows[id] = row.Clone()
	t.order = append(t.order, id)
	return row.Clone(), nil
}

func (tx *memTx) visible(entity *registry.Entity, row model.Instance) bool {
	if entity.SoftDelete == "" {
		return true
	}
	v, ok := row[entity.SoftDelete]
	return !ok || v == nil
}

func (tx *memTx) Get(ctx context.Context, entity *registry.Entity, id string) (model.Instance, error) {
	t := tx.table(entity)
	row, ok := t.rows[id]
	if !ok || !tx.visible(entity, row) {
		return nil, fmt.Errorf("memory: %s %s: %w", entity.Name, id, sentinel.ErrNotFound)
	}
	return row.Clone(), nil
}

func (tx *memTx) Update(ctx context.Context, entity *registry.Entity, id string, fields model.Instance) (model.Instance, error) {
	t := tx.table(entity)
	row, ok := t.rows[id]
	if !ok || !tx.visible(entity, row) {
		return nil, fmt.Errorf("memory: %s %s: %w", entity.Name, id, sentinel.ErrNotFound)
	}
	for k, v := range fields {
		if k == entity.PrimaryKey {
			continue
		}
		row[k] = v
	}
	return row.Clone(), nil
}

func (tx *memTx) Delete(ctx context.Context, entity *registry.Entity, id string) error {
	t := tx.table(entity)
	row, ok := t.rows[id]
	if !ok || !tx.visible(entity, row) {
		return fmt.Errorf("memory: %s %s: %w", entity.Name, id, sentinel.ErrNotFound)
	}
	if entity.SoftDelete != "" {
		row[entity.SoftDelete] = time.Now().UTC()
		return nil
	}
	delete(t.rows, id)
	for i, oid := range t.order {
		if oid == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return nil
}

func (tx *memTx) Select(ctx context.Context, entity *registry.Entity, q storage.SelectQuery) ([]model.Instance, error) {
	t := tx.table(entity)
	var matched []model.Instance
	for _, id := range t.order {
		row := t.rows[id]
		if !tx.visible(entity, row) {
			continue
		}
		ok, err := eval(q.Predicate, row)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, row.Clone())
		}
	}
	if q.OrderField != "" {
		field := q.OrderField
		sort.SliceStable(matched, func(i, j int) bool {
			less := lessValues(matched[i][field], matched[j][field])
			if q.Descending {
				return lessValues(matched[j][field], matched[i][field])
			}
			return less
		})
	}
	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

func (tx *memTx) Count(ctx context.Context, entity *registry.Entity, pred *filter.Predicate) (int, error) {
	t := tx.table(entity)
	count := 0
	for _, id := range t.order {
		row := t.rows[id]
		if !tx.visible(entity, row) {
			continue
		}
		ok, err := eval(pred, row)
		if err != nil {
			return 0, err
		}
		if ok {
			count++
		}
	}
	return count, nil
}

func (tx *memTx) InsertEdge(ctx context.Context, j *registry.Junction, ownerID, relatedID string) (bool, error) {
	for _, e := range tx.edges[j.Table] {
		if e.value(j.OwnerColumn) == ownerID && e.value(j.RelatedColumn) == relatedID {
			return false, nil
		}
	}
	tx.edges[j.Table] = append(tx.edges[j.Table], edgeRow{a: ownerID, b: relatedID, colA: j.OwnerColumn, colB: j.RelatedColumn})
	return true, nil
}

func (tx *memTx) DeleteEdges(ctx context.Context, j *registry.Junction, ownerID string, relatedIDs []string) (int, error) {
	related := make(map[string]bool, len(relatedIDs))
	for _, id := range relatedIDs {
		related[id] = true
	}
	removed := 0
	kept := tx.edges[j.Table][:0]
	for _, e := range tx.edges[j.Table] {
		if e.value(j.OwnerColumn) == ownerID && related[e.value(j.RelatedColumn)] {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	tx.edges[j.Table] = kept
	return removed, nil
}

func (tx *memTx) DeleteEdgesForOwner(ctx context.Context, j *registry.Junction, id string) error {
	kept := tx.edges[j.Table][:0]
	for _, e := range tx.edges[j.Table] {
		if e.value(j.OwnerColumn) == id {
			continue
		}
		kept = append(kept, e)
	}
	tx.edges[j.Table] = kept
	return nil
}

func (tx *memTx) SelectEdges(ctx context.Context, j *registry.Junction, ownerIDs []string) ([]storage.Edge, error) {
	owners := make(map[string]bool, len(ownerIDs))
	for _, id := range ownerIDs {
		owners[id] = true
	}
	var out []storage.Edge
	for _, e := range tx.edges[j.Table] {
		if owners[e.value(j.OwnerColumn)] {
			out = append(out, storage.Edge{OwnerID: e.value(j.OwnerColumn), RelatedID: e.value(j.RelatedColumn)})
		}
	}
	return out, nil
}

func (e edgeRow) value(column string) string {
	if column == e.colA {
		return e.a
	}
	if column == e.colB {
		return e.b
	}
	return ""
}

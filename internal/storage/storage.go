// Package storage defines the contract a relational store must satisfy to
// plug into the domain engine, plus the transaction scope that carries an
// open transaction (and its after-commit queue) through a call chain.
package storage

import (
	"context"

	"terrane/internal/filter"
	"terrane/internal/model"
	"terrane/internal/registry"
)

// SelectQuery shapes a filtered, ordered, paginated read.
type SelectQuery struct {
	Predicate  *filter.Predicate // nil selects everything
	OrderField string            // field name; "" means insertion order (created-at, then pk)
	Descending bool
	Limit      int // <= 0 means no limit
	Offset     int
}

// Edge is one junction row, reported in the relation's own orientation.
type Edge struct {
	OwnerID   string
	RelatedID string
}

// Store opens transactions. The engine never shares one Tx across concurrent
// pipelines; a Tx belongs to exactly one in-flight call chain.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is an open transaction. All data operations run against it so that
// hooks can perform their own reads and writes atomically with the primary
// operation. Stores translate their native failures into sentinel errors
// (pkg/platform/sentinel) so the engine can classify them.
type Tx interface {
	// Insert stores a new row and returns it as persisted.
	Insert(ctx context.Context, entity *registry.Entity, row model.Instance) (model.Instance, error)
	// Update applies the given fields to the row with the given id and
	// returns the updated row. Soft-deleted rows are not visible.
	Update(ctx context.Context, entity *registry.Entity, id string, fields model.Instance) (model.Instance, error)
	// Delete removes the row (or marks its soft-delete field).
	Delete(ctx context.Context, entity *registry.Entity, id string) error
	// Get fetches one row by primary key.
	Get(ctx context.Context, entity *registry.Entity, id string) (model.Instance, error)
	// Select fetches rows matching the query, excluding soft-deleted rows.
	Select(ctx context.Context, entity *registry.Entity, q SelectQuery) ([]model.Instance, error)
	// Count returns the full filtered count irrespective of limit/offset.
	Count(ctx context.Context, entity *registry.Entity, pred *filter.Predicate) (int, error)

	// InsertEdge adds a junction edge unless it already exists. The bool
	// reports whether a row was actually inserted.
	InsertEdge(ctx context.Context, j *registry.Junction, ownerID, relatedID string) (bool, error)
	// DeleteEdges removes the edges from ownerID to each related id,
	// ignoring edges that do not exist. Returns the number removed.
	DeleteEdges(ctx context.Context, j *registry.Junction, ownerID string, relatedIDs []string) (int, error)
	// DeleteEdgesForOwner removes every edge whose owner column holds id.
	DeleteEdgesForOwner(ctx context.Context, j *registry.Junction, id string) error
	// SelectEdges fetches edges whose owner column is in ownerIDs.
	SelectEdges(ctx context.Context, j *registry.Junction, ownerIDs []string) ([]Edge, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

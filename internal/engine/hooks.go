package engine

import (
	"context"

	"terrane/internal/model"
	"terrane/internal/storage"
)

// Operation tags one of the engine's lifecycle operations. Hooks are keyed
// by entity and operation; metrics and after-hook logs carry the tag.
type Operation string

const (
	OpCreate         Operation = "create"
	OpUpdate         Operation = "update"
	OpDelete         Operation = "delete"
	OpFindByID       Operation = "findById"
	OpFindMany       Operation = "findMany"
	OpAddJunction    Operation = "addJunction"
	OpRemoveJunction Operation = "removeJunction"
)

// HookContext carries an opaque caller-supplied value through one pipeline.
// Pre-hooks may replace Value; later hooks of the same call observe the
// update. The engine never inspects it.
type HookContext struct {
	Value any
}

// CreateHooks run around a create. Pre may transform the input before it
// touches storage; Post may enrich the result with additional in-transaction
// work; After runs post-commit on the background executor.
type CreateHooks struct {
	Pre   func(ctx context.Context, tx storage.Tx, input model.Instance, hc *HookContext) (model.Instance, error)
	Post  func(ctx context.Context, tx storage.Tx, input, result model.Instance, hc *HookContext) (model.Instance, error)
	After func(ctx context.Context, result model.Instance, hc *HookContext) error
}

// UpdateHooks mirror CreateHooks with the target id available to Pre.
type UpdateHooks struct {
	Pre   func(ctx context.Context, tx storage.Tx, id string, input model.Instance, hc *HookContext) (model.Instance, error)
	Post  func(ctx context.Context, tx storage.Tx, input, result model.Instance, hc *HookContext) (model.Instance, error)
	After func(ctx context.Context, result model.Instance, hc *HookContext) error
}

// DeleteHooks run around a delete. Post and After receive the row as it was
// before deletion.
type DeleteHooks struct {
	Pre   func(ctx context.Context, tx storage.Tx, id string, hc *HookContext) error
	Post  func(ctx context.Context, tx storage.Tx, deleted model.Instance, hc *HookContext) (model.Instance, error)
	After func(ctx context.Context, deleted model.Instance, hc *HookContext) error
}

// FindByIDHooks run around a single-row read.
type FindByIDHooks struct {
	Pre   func(ctx context.Context, tx storage.Tx, id string, hc *HookContext) error
	Post  func(ctx context.Context, tx storage.Tx, result model.Instance, hc *HookContext) (model.Instance, error)
	After func(ctx context.Context, result model.Instance, hc *HookContext) error
}

// FindManyHooks run around a list read. Pre may rewrite the query (add
// filter constraints, clamp paging) before compilation.
type FindManyHooks struct {
	Pre   func(ctx context.Context, tx storage.Tx, q *Query, hc *HookContext) error
	Post  func(ctx context.Context, tx storage.Tx, items []model.Instance, hc *HookContext) ([]model.Instance, error)
	After func(ctx context.Context, items []model.Instance, hc *HookContext) error
}

// JunctionHooks run around an association add or remove. Pre may transform
// the related id list; an empty result skips the storage step.
type JunctionHooks struct {
	Pre   func(ctx context.Context, tx storage.Tx, ownerID string, relatedIDs []string, hc *HookContext) ([]string, error)
	Post  func(ctx context.Context, tx storage.Tx, ownerID string, relatedIDs []string, hc *HookContext) error
	After func(ctx context.Context, ownerID string, relatedIDs []string, hc *HookContext) error
}

// RelationHooks pairs the add and remove triptychs of one relation.
type RelationHooks struct {
	Add    JunctionHooks
	Remove JunctionHooks
}

// EntityHooks is the full hook set of one entity. Absent hooks are identity
// pass-throughs.
type EntityHooks struct {
	Create    CreateHooks
	Update    UpdateHooks
	Delete    DeleteHooks
	FindByID  FindByIDHooks
	FindMany  FindManyHooks
	Relations map[string]RelationHooks
}

// HookSet maps entity names to their hooks. It is supplied once at
// initialization and treated as read-only for the process lifetime.
type HookSet map[string]EntityHooks

func (hs HookSet) entity(name string) EntityHooks {
	return hs[name]
}

func (hs HookSet) relation(entity, relation string) RelationHooks {
	return hs[entity].Relations[relation]
}

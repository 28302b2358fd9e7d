package engine

import (
	"context"

	"terrane/internal/model"
	"terrane/internal/registry"
	"terrane/internal/storage"
	"terrane/pkg/domainerrors"
)

// AddAssociation inserts junction edges from ownerID to each related id,
// skipping edges that already exist. Duplicate requests are idempotent.
func (e *Engine) AddAssociation(ctx context.Context, entityName, relationName, ownerID string, relatedIDs []string, hookValue any) error {
	ent, rel, err := e.junctionRelation(entityName, relationName)
	if err != nil {
		return err
	}
	hooks := e.hooks.relation(entityName, relationName).Add
	hc := &HookContext{Value: hookValue}
	return e.run(ctx, ent, OpAddJunction, func(ctx context.Context, scope *storage.Scope) error {
		tx := scope.Tx()
		if _, err := tx.Get(ctx, ent, ownerID); err != nil {
			return e.storeErr(ent, ownerID, err)
		}
		ids := relatedIDs
		if hooks.Pre != nil {
			transformed, err := hooks.Pre(ctx, tx, ownerID, ids, hc)
			if err != nil {
				return e.hookErr(ent, "pre", err)
			}
			ids = transformed
		}
		for _, relatedID := range ids {
			if _, err := tx.InsertEdge(ctx, rel.Junction, ownerID, relatedID); err != nil {
				return e.storeErr(ent, relatedID, err)
			}
		}
		if hooks.Post != nil {
			if err := hooks.Post(ctx, tx, ownerID, ids, hc); err != nil {
				return e.hookErr(ent, "post", err)
			}
		}
		if hooks.After != nil {
			after := append([]string(nil), ids...)
			e.scheduleAfter(scope, ent.Name, OpAddJunction, func(ctx context.Context) error {
				return hooks.After(ctx, ownerID, after, hc)
			})
		}
		return nil
	})
}

// RemoveAssociation deletes the matching edges. Removing an edge that does
// not exist is a no-op, not an error.
func (e *Engine) RemoveAssociation(ctx context.Context, entityName, relationName, ownerID string, relatedIDs []string, hookValue any) error {
	ent, rel, err := e.junctionRelation(entityName, relationName)
	if err != nil {
		return err
	}
	hooks := e.hooks.relation(entityName, relationName).Remove
	hc := &HookContext{Value: hookValue}
	return e.run(ctx, ent, OpRemoveJunction, func(ctx context.Context, scope *storage.Scope) error {
		tx := scope.Tx()
		if _, err := tx.Get(ctx, ent, ownerID); err != nil {
			return e.storeErr(ent, ownerID, err)
		}
		ids := relatedIDs
		if hooks.Pre != nil {
			transformed, err := hooks.Pre(ctx, tx, ownerID, ids, hc)
			if err != nil {
				return e.hookErr(ent, "pre", err)
			}
			ids = transformed
		}
		if len(ids) > 0 {
			if _, err := tx.DeleteEdges(ctx, rel.Junction, ownerID, ids); err != nil {
				return e.storeErr(ent, ownerID, err)
			}
		}
		if hooks.Post != nil {
			if err := hooks.Post(ctx, tx, ownerID, ids, hc); err != nil {
				return e.hookErr(ent, "post", err)
			}
		}
		if hooks.After != nil {
			after := append([]string(nil), ids...)
			e.scheduleAfter(scope, ent.Name, OpRemoveJunction, func(ctx context.Context) error {
				return hooks.After(ctx, ownerID, after, hc)
			})
		}
		return nil
	})
}

// ListAssociations returns the projected far side of a many-to-many relation
// for one owner, in edge insertion order.
func (e *Engine) ListAssociations(ctx context.Context, entityName, relationName, ownerID string) ([]model.Instance, error) {
	ent, rel, err := e.junctionRelation(entityName, relationName)
	if err != nil {
		return nil, err
	}
	target, _ := e.reg.Entity(rel.Target)
	var items []model.Instance
	err = e.run(ctx, ent, OpFindMany, func(ctx context.Context, scope *storage.Scope) error {
		tx := scope.Tx()
		if _, err := tx.Get(ctx, ent, ownerID); err != nil {
			return e.storeErr(ent, ownerID, err)
		}
		related, err := e.resolver.RelatedByEdges(ctx, tx, rel, ownerID)
		if err != nil {
			return e.resolveErr(ent, err)
		}
		items = related
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := e.project.ApplyAll(target, items)
	if out == nil {
		out = []model.Instance{}
	}
	return out, nil
}

func (e *Engine) junctionRelation(entityName, relationName string) (*registry.Entity, *registry.Relation, error) {
	ent, err := e.entity(entityName)
	if err != nil {
		return nil, nil, err
	}
	rel, ok := ent.Relation(relationName)
	if !ok {
		return nil, nil, domainerrors.Newf(domainerrors.CodeValidation, "unknown relation %q for %s", relationName, entityName)
	}
	if rel.Kind != registry.ManyToMany {
		return nil, nil, domainerrors.Newf(domainerrors.CodeValidation, "relation %q of %s is not an association", relationName, entityName)
	}
	return ent, rel, nil
}

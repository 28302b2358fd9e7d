package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"terrane/internal/filter"
	"terrane/internal/model"
	"terrane/internal/registry"
	"terrane/internal/storage"
	"terrane/pkg/domainerrors"
)

// Query shapes a FindMany call. Where is the decoded filter expression; it
// is compiled against the entity inside the pipeline so a pre-hook can still
// rewrite it.
type Query struct {
	Where      *filter.Expression
	OrderBy    string
	Descending bool
	Limit      int
	Offset     int
	Include    []string
}

// Pagination reports the full filtered count irrespective of limit/offset.
type Pagination struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Result is the list-operation envelope.
type Result struct {
	Data       []model.Instance `json:"data"`
	Pagination Pagination       `json:"pagination"`
}

// Create runs the create pipeline and returns the projected result.
func (e *Engine) Create(ctx context.Context, entityName string, input model.Instance, hookValue any) (model.Instance, error) {
	ent, err := e.entity(entityName)
	if err != nil {
		return nil, err
	}
	hooks := e.hooks.entity(entityName).Create
	hc := &HookContext{Value: hookValue}
	var result model.Instance
	err = e.run(ctx, ent, OpCreate, func(ctx context.Context, scope *storage.Scope) error {
		tx := scope.Tx()
		if hooks.Pre != nil {
			transformed, err := hooks.Pre(ctx, tx, input, hc)
			if err != nil {
				return e.hookErr(ent, "pre", err)
			}
			input = transformed
		}
		row, err := normalizeInput(ent, input, true)
		if err != nil {
			return err
		}
		stampCreate(ent, row)
		created, err := tx.Insert(ctx, ent, row)
		if err != nil {
			return e.storeErr(ent, row.StringID(ent.PrimaryKey), err)
		}
		if hooks.Post != nil {
			enriched, err := hooks.Post(ctx, tx, input, created, hc)
			if err != nil {
				return e.hookErr(ent, "post", err)
			}
			created = enriched
		}
		result = created
		if hooks.After != nil {
			after := created.Clone()
			e.scheduleAfter(scope, ent.Name, OpCreate, func(ctx context.Context) error {
				return hooks.After(ctx, after, hc)
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e.project.Apply(ent, result), nil
}

// Update runs the update pipeline against one row.
func (e *Engine) Update(ctx context.Context, entityName, id string, input model.Instance, hookValue any) (model.Instance, error) {
	ent, err := e.entity(entityName)
	if err != nil {
		return nil, err
	}
	hooks := e.hooks.entity(entityName).Update
	hc := &HookContext{Value: hookValue}
	var result model.Instance
	err = e.run(ctx, ent, OpUpdate, func(ctx context.Context, scope *storage.Scope) error {
		tx := scope.Tx()
		if hooks.Pre != nil {
			transformed, err := hooks.Pre(ctx, tx, id, input, hc)
			if err != nil {
				return e.hookErr(ent, "pre", err)
			}
			input = transformed
		}
		fields, err := normalizeInput(ent, input, false)
		if err != nil {
			return err
		}
		if ent.UpdatedAt != "" {
			fields[ent.UpdatedAt] = time.Now().UTC()
		}
		updated, err := tx.Update(ctx, ent, id, fields)
		if err != nil {
			return e.storeErr(ent, id, err)
		}
		if hooks.Post != nil {
			enriched, err := hooks.Post(ctx, tx, input, updated, hc)
			if err != nil {
				return e.hookErr(ent, "post", err)
			}
			updated = enriched
		}
		result = updated
		if hooks.After != nil {
			after := updated.Clone()
			e.scheduleAfter(scope, ent.Name, OpUpdate, func(ctx context.Context) error {
				return hooks.After(ctx, after, hc)
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e.project.Apply(ent, result), nil
}

// Delete removes one row (or marks it soft-deleted) and cleans every
// junction edge that references it, in the same transaction. The projected
// pre-image is returned.
func (e *Engine) Delete(ctx context.Context, entityName, id string, hookValue any) (model.Instance, error) {
	ent, err := e.entity(entityName)
	if err != nil {
		return nil, err
	}
	hooks := e.hooks.entity(entityName).Delete
	hc := &HookContext{Value: hookValue}
	var result model.Instance
	err = e.run(ctx, ent, OpDelete, func(ctx context.Context, scope *storage.Scope) error {
		tx := scope.Tx()
		if hooks.Pre != nil {
			if err := hooks.Pre(ctx, tx, id, hc); err != nil {
				return e.hookErr(ent, "pre", err)
			}
		}
		deleted, err := tx.Get(ctx, ent, id)
		if err != nil {
			return e.storeErr(ent, id, err)
		}
		// Edge cleanup walks the whole registry, not just this entity's own
		// declarations, so a relation declared on only one side still has its
		// rows removed when the undeclared side is deleted.
		for _, j := range e.reg.JunctionsReferencing(ent.Name) {
			if err := tx.DeleteEdgesForOwner(ctx, &j, id); err != nil {
				return e.storeErr(ent, id, err)
			}
		}
		if err := tx.Delete(ctx, ent, id); err != nil {
			return e.storeErr(ent, id, err)
		}
		if hooks.Post != nil {
			enriched, err := hooks.Post(ctx, tx, deleted, hc)
			if err != nil {
				return e.hookErr(ent, "post", err)
			}
			deleted = enriched
		}
		result = deleted
		if hooks.After != nil {
			after := deleted.Clone()
			e.scheduleAfter(scope, ent.Name, OpDelete, func(ctx context.Context) error {
				return hooks.After(ctx, after, hc)
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e.project.Apply(ent, result), nil
}

// FindByID fetches one row and attaches the requested relations.
func (e *Engine) FindByID(ctx context.Context, entityName, id string, includes []string, hookValue any) (model.Instance, error) {
	ent, err := e.entity(entityName)
	if err != nil {
		return nil, err
	}
	if err := e.resolver.ValidateIncludes(ent, includes); err != nil {
		return nil, err
	}
	hooks := e.hooks.entity(entityName).FindByID
	hc := &HookContext{Value: hookValue}
	var result model.Instance
	err = e.run(ctx, ent, OpFindByID, func(ctx context.Context, scope *storage.Scope) error {
		tx := scope.Tx()
		if hooks.Pre != nil {
			if err := hooks.Pre(ctx, tx, id, hc); err != nil {
				return e.hookErr(ent, "pre", err)
			}
		}
		row, err := tx.Get(ctx, ent, id)
		if err != nil {
			return e.storeErr(ent, id, err)
		}
		if err := e.resolver.Attach(ctx, tx, ent, []model.Instance{row}, includes); err != nil {
			return e.resolveErr(ent, err)
		}
		if hooks.Post != nil {
			enriched, err := hooks.Post(ctx, tx, row, hc)
			if err != nil {
				return e.hookErr(ent, "post", err)
			}
			row = enriched
		}
		result = row
		if hooks.After != nil {
			after := row.Clone()
			e.scheduleAfter(scope, ent.Name, OpFindByID, func(ctx context.Context) error {
				return hooks.After(ctx, after, hc)
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e.project.Apply(ent, result), nil
}

// FindMany fetches a filtered, ordered page plus the full filtered count.
func (e *Engine) FindMany(ctx context.Context, entityName string, q Query, hookValue any) (*Result, error) {
	ent, err := e.entity(entityName)
	if err != nil {
		return nil, err
	}
	if err := e.resolver.ValidateIncludes(ent, q.Include); err != nil {
		return nil, err
	}
	hooks := e.hooks.entity(entityName).FindMany
	hc := &HookContext{Value: hookValue}
	var out *Result
	err = e.run(ctx, ent, OpFindMany, func(ctx context.Context, scope *storage.Scope) error {
		tx := scope.Tx()
		if hooks.Pre != nil {
			if err := hooks.Pre(ctx, tx, &q, hc); err != nil {
				return e.hookErr(ent, "pre", err)
			}
		}
		sel, pred, err := e.buildSelect(ent, &q)
		if err != nil {
			return err
		}
		items, err := tx.Select(ctx, ent, sel)
		if err != nil {
			return e.storeErr(ent, "", err)
		}
		total, err := tx.Count(ctx, ent, pred)
		if err != nil {
			return e.storeErr(ent, "", err)
		}
		if err := e.resolver.Attach(ctx, tx, ent, items, q.Include); err != nil {
			return e.resolveErr(ent, err)
		}
		if hooks.Post != nil {
			enriched, err := hooks.Post(ctx, tx, items, hc)
			if err != nil {
				return e.hookErr(ent, "post", err)
			}
			items = enriched
		}
		out = &Result{
			Data:       items,
			Pagination: Pagination{Total: total, Limit: sel.Limit, Offset: sel.Offset},
		}
		if hooks.After != nil {
			after := model.CloneAll(items)
			e.scheduleAfter(scope, ent.Name, OpFindMany, func(ctx context.Context) error {
				return hooks.After(ctx, after, hc)
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.Data = e.project.ApplyAll(ent, out.Data)
	if out.Data == nil {
		out.Data = []model.Instance{}
	}
	return out, nil
}

// buildSelect compiles the filter, validates ordering, and clamps paging.
func (e *Engine) buildSelect(ent *registry.Entity, q *Query) (storage.SelectQuery, *filter.Predicate, error) {
	var pred *filter.Predicate
	if q.Where != nil {
		compiled, err := filter.Compile(q.Where, ent)
		if err != nil {
			return storage.SelectQuery{}, nil, domainerrors.Wrap(domainerrors.CodeValidation, err.Error(), err)
		}
		pred = compiled
	}
	if q.OrderBy != "" {
		f, ok := ent.Field(q.OrderBy)
		if !ok || !f.Exposed() {
			return storage.SelectQuery{}, nil, domainerrors.Newf(domainerrors.CodeValidation, "cannot order by %q", q.OrderBy)
		}
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	return storage.SelectQuery{
		Predicate:  pred,
		OrderField: q.OrderBy,
		Descending: q.Descending,
		Limit:      limit,
		Offset:     offset,
	}, pred, nil
}

// resolveErr keeps coded resolver failures intact and classifies the rest as
// storage failures.
func (e *Engine) resolveErr(ent *registry.Entity, err error) error {
	var de *domainerrors.Error
	if errors.As(err, &de) {
		return err
	}
	return e.storeErr(ent, "", err)
}

// stampCreate assigns the primary key and audit timestamps the caller did
// not supply.
func stampCreate(ent *registry.Entity, row model.Instance) {
	if row.StringID(ent.PrimaryKey) == "" {
		row[ent.PrimaryKey] = uuid.NewString()
	}
	now := time.Now().UTC()
	if ent.CreatedAt != "" {
		row[ent.CreatedAt] = now
	}
	if ent.UpdatedAt != "" {
		row[ent.UpdatedAt] = now
	}
}

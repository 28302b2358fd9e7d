// Package relation resolves `include` requests: it fetches related data and
// attaches it to base results under the relation's name. It only ever reads.
package relation

import (
	"context"

	"terrane/internal/filter"
	"terrane/internal/model"
	"terrane/internal/registry"
	"terrane/internal/storage"
	"terrane/pkg/domainerrors"
)

type Resolver struct {
	reg *registry.Registry
}

func New(reg *registry.Registry) *Resolver {
	return &Resolver{reg: reg}
}

// ValidateIncludes rejects unknown relation names up front; requesting an
// unknown relation is a client error, never silently ignored.
func (r *Resolver) ValidateIncludes(entity *registry.Entity, includes []string) error {
	for _, name := range includes {
		if _, ok := entity.Relation(name); !ok {
			return domainerrors.Newf(domainerrors.CodeValidation, "unknown relation %q for %s", name, entity.Name)
		}
	}
	return nil
}

// Attach resolves each named relation for every item and attaches the result
// under the relation's name. Related loads are batched across the whole item
// set: one edge query plus one entity query per relation.
func (r *Resolver) Attach(ctx context.Context, tx storage.Tx, entity *registry.Entity, items []model.Instance, includes []string) error {
	if len(items) == 0 {
		return nil
	}
	for _, name := range includes {
		rel, ok := entity.Relation(name)
		if !ok {
			return domainerrors.Newf(domainerrors.CodeValidation, "unknown relation %q for %s", name, entity.Name)
		}
		var err error
		switch rel.Kind {
		case registry.ManyToOne:
			err = r.attachManyToOne(ctx, tx, entity, rel, items)
		case registry.OneToOne:
			err = r.attachByTargetKey(ctx, tx, entity, rel, items, false)
		case registry.OneToMany:
			err = r.attachByTargetKey(ctx, tx, entity, rel, items, true)
		case registry.ManyToMany:
			err = r.attachManyToMany(ctx, tx, entity, rel, items)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// RelatedByEdges loads the far side of a many-to-many relation for one owner,
// in edge insertion order. The junction sub-resource GET uses it too.
func (r *Resolver) RelatedByEdges(ctx context.Context, tx storage.Tx, rel *registry.Relation, ownerID string) ([]model.Instance, error) {
	target, ok := r.reg.Entity(rel.Target)
	if !ok {
		return nil, domainerrors.Newf(domainerrors.CodeInternal, "relation %q targets unknown entity %q", rel.Name, rel.Target)
	}
	edges, err := tx.SelectEdges(ctx, rel.Junction, []string{ownerID})
	if err != nil {
		return nil, err
	}
	if len(edges) == 0 {
		return []model.Instance{}, nil
	}
	ids := make([]any, 0, len(edges))
	for _, e := range edges {
		ids = append(ids, e.RelatedID)
	}
	byID, err := r.loadByPK(ctx, tx, target, ids)
	if err != nil {
		return nil, err
	}
	out := make([]model.Instance, 0, len(edges))
	for _, e := range edges {
		if inst, ok := byID[e.RelatedID]; ok {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (r *Resolver) target(rel *registry.Relation) (*registry.Entity, error) {
	target, ok := r.reg.Entity(rel.Target)
	if !ok {
		return nil, domainerrors.Newf(domainerrors.CodeInternal, "relation %q targets unknown entity %q", rel.Name, rel.Target)
	}
	return target, nil
}

func (r *Resolver) attachManyToOne(ctx context.Context, tx storage.Tx, entity *registry.Entity, rel *registry.Relation, items []model.Instance) error {
	target, err := r.target(rel)
	if err != nil {
		return err
	}
	var fks []any
	seen := make(map[string]bool)
	for _, item := range items {
		fk := item.StringID(rel.ForeignKey)
		if fk != "" && !seen[fk] {
			seen[fk] = true
			fks = append(fks, fk)
		}
	}
	byID := map[string]model.Instance{}
	if len(fks) > 0 {
		byID, err = r.loadByPK(ctx, tx, target, fks)
		if err != nil {
			return err
		}
	}
	for _, item := range items {
		if related, ok := byID[item.StringID(rel.ForeignKey)]; ok {
			item[rel.Name] = related
		} else {
			item[rel.Name] = nil
		}
	}
	return nil
}

// attachByTargetKey handles the relations whose foreign key lives on the
// target entity: one-to-one attaches a single instance or nil, one-to-many
// an ordered slice.
func (r *Resolver) attachByTargetKey(ctx context.Context, tx storage.Tx, entity *registry.Entity, rel *registry.Relation, items []model.Instance, many bool) error {
	target, err := r.target(rel)
	if err != nil {
		return err
	}
	ownerIDs := make([]any, 0, len(items))
	for _, item := range items {
		if id := item.StringID(entity.PrimaryKey); id != "" {
			ownerIDs = append(ownerIDs, id)
		}
	}
	fkField, _ := target.Field(rel.ForeignKey)
	related, err := tx.Select(ctx, target, storage.SelectQuery{
		Predicate: &filter.Predicate{
			Field:  fkField.Name,
			Column: fkField.Column,
			Kind:   fkField.Kind,
			Op:     filter.OpIn,
			Values: ownerIDs,
		},
	})
	if err != nil {
		return err
	}
	grouped := make(map[string][]model.Instance, len(items))
	for _, inst := range related {
		key := inst.StringID(rel.ForeignKey)
		grouped[key] = append(grouped[key], inst)
	}
	for _, item := range items {
		matches := grouped[item.StringID(entity.PrimaryKey)]
		if many {
			if matches == nil {
				matches = []model.Instance{}
			}
			item[rel.Name] = matches
			continue
		}
		if len(matches) > 0 {
			item[rel.Name] = matches[0]
		} else {
			item[rel.Name] = nil
		}
	}
	return nil
}

func (r *Resolver) attachManyToMany(ctx context.Context, tx storage.Tx, entity *registry.Entity, rel *registry.Relation, items []model.Instance) error {
	target, err := r.target(rel)
	if err != nil {
		return err
	}
	ownerIDs := make([]string, 0, len(items))
	for _, item := range items {
		if id := item.StringID(entity.PrimaryKey); id != "" {
			ownerIDs = append(ownerIDs, id)
		}
	}
	edges, err := tx.SelectEdges(ctx, rel.Junction, ownerIDs)
	if err != nil {
		return err
	}
	var relatedIDs []any
	seen := make(map[string]bool)
	for _, e := range edges {
		if !seen[e.RelatedID] {
			seen[e.RelatedID] = true
			relatedIDs = append(relatedIDs, e.RelatedID)
		}
	}
	byID := map[string]model.Instance{}
	if len(relatedIDs) > 0 {
		byID, err = r.loadByPK(ctx, tx, target, relatedIDs)
		if err != nil {
			return err
		}
	}
	grouped := make(map[string][]model.Instance, len(items))
	for _, e := range edges {
		if inst, ok := byID[e.RelatedID]; ok {
			grouped[e.OwnerID] = append(grouped[e.OwnerID], inst)
		}
	}
	for _, item := range items {
		matches := grouped[item.StringID(entity.PrimaryKey)]
		if matches == nil {
			matches = []model.Instance{}
		}
		item[rel.Name] = matches
	}
	return nil
}

func (r *Resolver) loadByPK(ctx context.Context, tx storage.Tx, target *registry.Entity, ids []any) (map[string]model.Instance, error) {
	pk, _ := target.Field(target.PrimaryKey)
	rows, err := tx.Select(ctx, target, storage.SelectQuery{
		Predicate: &filter.Predicate{
			Field:  pk.Name,
			Column: pk.Column,
			Kind:   pk.Kind,
			Op:     filter.OpIn,
			Values: ids,
		},
	})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.Instance, len(rows))
	for _, row := range rows {
		byID[row.StringID(target.PrimaryKey)] = row
	}
	return byID, nil
}

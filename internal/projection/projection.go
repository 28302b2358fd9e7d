// Package projection strips non-exposed fields from entity values before
// they leave the domain boundary.
package projection

import (
	"terrane/internal/model"
	"terrane/internal/registry"
)

// Projector applies field exposure rules from a registry.
type Projector struct {
	reg *registry.Registry
}

func New(reg *registry.Registry) *Projector {
	return &Projector{reg: reg}
}

// Apply returns a copy of the instance with every hidden field removed.
// Attached relation values are projected against their own descriptors, so a
// hidden field never leaks through an include.
func (p *Projector) Apply(entity *registry.Entity, in model.Instance) model.Instance {
	if in == nil {
		return nil
	}
	out := make(model.Instance, len(in))
	for name, value := range in {
		if f, ok := entity.Field(name); ok {
			if f.Exposed() {
				out[name] = value
			}
			continue
		}
		if rel, ok := entity.Relation(name); ok {
			out[name] = p.applyRelation(rel, value)
			continue
		}
		// Values outside the descriptor (hook enrichments) pass through;
		// only declared fields can be secret.
		out[name] = value
	}
	return out
}

// ApplyAll projects every element of a result set.
func (p *Projector) ApplyAll(entity *registry.Entity, items []model.Instance) []model.Instance {
	if items == nil {
		return nil
	}
	out := make([]model.Instance, len(items))
	for i, it := range items {
		out[i] = p.Apply(entity, it)
	}
	return out
}

func (p *Projector) applyRelation(rel *registry.Relation, value any) any {
	target, ok := p.reg.Entity(rel.Target)
	if !ok {
		return value
	}
	switch v := value.(type) {
	case model.Instance:
		return p.Apply(target, v)
	case []model.Instance:
		return p.ApplyAll(target, v)
	case nil:
		return nil
	default:
		return value
	}
}

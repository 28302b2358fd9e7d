// Package registry holds the static description of entities, fields, and
// relationships the engine operates on. It is pure data: built once at
// process start, validated, and never mutated during request handling.
package registry

import "fmt"

// Kind is the semantic type of a field.
type Kind string

const (
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
	KindTime   Kind = "time"
	KindUUID   Kind = "uuid"
	// KindGeometry is an opaque spatial value. The engine treats it as a
	// blob; containment predicates are realized by the storage collaborator.
	KindGeometry Kind = "geometry"
)

// Field describes one entity field. A Hidden field never appears in a
// serialized response and is rejected as a filter or ordering target.
// Primary key and audit timestamp fields are exposed like any other field
// unless the schema explicitly marks them Hidden.
type Field struct {
	Name     string // external name, used in payloads and filter expressions
	Column   string // storage column; defaults to Name
	Kind     Kind
	Nullable bool
	Hidden   bool
}

// Exposed reports whether the field may leave the domain boundary.
func (f *Field) Exposed() bool { return !f.Hidden }

// RelationKind classifies a relationship.
type RelationKind string

const (
	OneToOne   RelationKind = "one-to-one"
	OneToMany  RelationKind = "one-to-many"
	ManyToOne  RelationKind = "many-to-one"
	ManyToMany RelationKind = "many-to-many"
)

// Junction names the table and foreign-key columns backing a many-to-many
// relation. A self-referential relation is expressed as two Relation entries
// sharing a table with OwnerColumn/RelatedColumn swapped, one per direction.
type Junction struct {
	Table         string
	OwnerColumn   string
	RelatedColumn string
}

// Relation describes a named relationship from one entity to another (or to
// itself). ForeignKey names a field on the source entity for ManyToOne, and
// a field on the target entity for OneToOne and OneToMany. ManyToMany
// relations carry a Junction instead.
type Relation struct {
	Name       string
	Kind       RelationKind
	Target     string
	ForeignKey string
	Junction   *Junction
}

// Entity describes one entity. Disabled entities keep their descriptor (so
// junction cleanup and relation targets still resolve) but every HTTP verb on
// their resource returns 404.
type Entity struct {
	Name       string
	Collection string // URL path segment for the resource
	Table      string
	PrimaryKey string
	SoftDelete string // nullable timestamp field; "" means hard delete
	CreatedAt  string
	UpdatedAt  string
	Disabled   bool
	Fields     []Field
	Relations  []Relation

	fieldsByName    map[string]*Field
	relationsByName map[string]*Relation
}

// Field looks a field up by its external name.
func (e *Entity) Field(name string) (*Field, bool) {
	f, ok := e.fieldsByName[name]
	return f, ok
}

// Relation looks a relation up by its include name.
func (e *Entity) Relation(name string) (*Relation, bool) {
	r, ok := e.relationsByName[name]
	return r, ok
}

// Registry is the process-wide set of entity descriptors.
type Registry struct {
	entities map[string]*Entity
	ordered  []*Entity
}

// New validates and indexes the given descriptors. It returns an error for
// structural problems (unknown relation targets, missing key fields,
// incomplete junctions) so misconfiguration fails at startup, not mid-request.
func New(entities ...*Entity) (*Registry, error) {
	reg := &Registry{entities: make(map[string]*Entity, len(entities))}
	for _, e := range entities {
		if e.Name == "" {
			return nil, fmt.Errorf("registry: entity with empty name")
		}
		if _, dup := reg.entities[e.Name]; dup {
			return nil, fmt.Errorf("registry: duplicate entity %q", e.Name)
		}
		if err := normalize(e); err != nil {
			return nil, err
		}
		reg.entities[e.Name] = e
		reg.ordered = append(reg.ordered, e)
	}
	for _, e := range reg.ordered {
		if err := reg.checkRelations(e); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Entity looks an entity up by name.
func (r *Registry) Entity(name string) (*Entity, bool) {
	e, ok := r.entities[name]
	return e, ok
}

// ByCollection looks an entity up by its URL collection segment.
func (r *Registry) ByCollection(collection string) (*Entity, bool) {
	for _, e := range r.ordered {
		if e.Collection == collection {
			return e, true
		}
	}
	return nil, false
}

// Entities returns descriptors in declaration order.
func (r *Registry) Entities() []*Entity { return r.ordered }

// JunctionsReferencing returns one junction descriptor per direction in which
// rows of the named entity appear in a junction table, across the whole
// registry. Relations declared on other entities that target this one are
// returned with the columns swapped, so OwnerColumn always holds this
// entity's id. The engine walks these on delete so no one-sided declaration
// can leave dangling edges.
func (r *Registry) JunctionsReferencing(name string) []Junction {
	var out []Junction
	seen := make(map[string]bool)
	add := func(j Junction) {
		key := j.Table + "\x00" + j.OwnerColumn
		if !seen[key] {
			seen[key] = true
			out = append(out, j)
		}
	}
	for _, e := range r.ordered {
		for i := range e.Relations {
			rel := &e.Relations[i]
			if rel.Kind != ManyToMany {
				continue
			}
			if e.Name == name {
				add(*rel.Junction)
			}
			if rel.Target == name {
				add(Junction{
					Table:         rel.Junction.Table,
					OwnerColumn:   rel.Junction.RelatedColumn,
					RelatedColumn: rel.Junction.OwnerColumn,
				})
			}
		}
	}
	return out
}

func normalize(e *Entity) error {
	if e.Table == "" {
		return fmt.Errorf("registry: entity %q has no table", e.Name)
	}
	if e.Collection == "" {
		e.Collection = e.Table
	}
	e.fieldsByName = make(map[string]*Field, len(e.Fields))
	for i := range e.Fields {
		f := &e.Fields[i]
		if f.Name == "" {
			return fmt.Errorf("registry: entity %q has a field with empty name", e.Name)
		}
		if _, dup := e.fieldsByName[f.Name]; dup {
			return fmt.Errorf("registry: entity %q duplicate field %q", e.Name, f.Name)
		}
		if f.Column == "" {
			f.Column = f.Name
		}
		e.fieldsByName[f.Name] = f
	}
	if e.PrimaryKey == "" {
		return fmt.Errorf("registry: entity %q has no primary key", e.Name)
	}
	pk, ok := e.fieldsByName[e.PrimaryKey]
	if !ok {
		return fmt.Errorf("registry: entity %q primary key %q is not a field", e.Name, e.PrimaryKey)
	}
	if pk.Nullable {
		return fmt.Errorf("registry: entity %q primary key %q must not be nullable", e.Name, e.PrimaryKey)
	}
	for _, named := range []struct {
		label string
		field string
	}{
		{"soft-delete", e.SoftDelete},
		{"created-at", e.CreatedAt},
		{"updated-at", e.UpdatedAt},
	} {
		if named.field == "" {
			continue
		}
		f, ok := e.fieldsByName[named.field]
		if !ok {
			return fmt.Errorf("registry: entity %q %s field %q is not a field", e.Name, named.label, named.field)
		}
		if f.Kind != KindTime {
			return fmt.Errorf("registry: entity %q %s field %q must be a time field", e.Name, named.label, named.field)
		}
	}
	if e.SoftDelete != "" && !e.fieldsByName[e.SoftDelete].Nullable {
		return fmt.Errorf("registry: entity %q soft-delete field %q must be nullable", e.Name, e.SoftDelete)
	}
	e.relationsByName = make(map[string]*Relation, len(e.Relations))
	for i := range e.Relations {
		rel := &e.Relations[i]
		if rel.Name == "" {
			return fmt.Errorf("registry: entity %q has a relation with empty name", e.Name)
		}
		if _, dup := e.relationsByName[rel.Name]; dup {
			return fmt.Errorf("registry: entity %q duplicate relation %q", e.Name, rel.Name)
		}
		if _, clash := e.fieldsByName[rel.Name]; clash {
			return fmt.Errorf("registry: entity %q relation %q collides with a field", e.Name, rel.Name)
		}
		e.relationsByName[rel.Name] = rel
	}
	return nil
}

func (r *Registry) checkRelations(e *Entity) error {
	for i := range e.Relations {
		rel := &e.Relations[i]
		target, ok := r.entities[rel.Target]
		if !ok {
			return fmt.Errorf("registry: entity %q relation %q targets unknown entity %q", e.Name, rel.Name, rel.Target)
		}
		switch rel.Kind {
		case ManyToOne:
			if _, ok := e.Field(rel.ForeignKey); !ok {
				return fmt.Errorf("registry: entity %q relation %q foreign key %q is not a field of %q", e.Name, rel.Name, rel.ForeignKey, e.Name)
			}
		case OneToOne, OneToMany:
			if _, ok := target.Field(rel.ForeignKey); !ok {
				return fmt.Errorf("registry: entity %q relation %q foreign key %q is not a field of %q", e.Name, rel.Name, rel.ForeignKey, rel.Target)
			}
		case ManyToMany:
			j := rel.Junction
			if j == nil || j.Table == "" || j.OwnerColumn == "" || j.RelatedColumn == "" {
				return fmt.Errorf("registry: entity %q relation %q has an incomplete junction", e.Name, rel.Name)
			}
			if j.OwnerColumn == j.RelatedColumn {
				return fmt.Errorf("registry: entity %q relation %q junction columns must differ", e.Name, rel.Name)
			}
		default:
			return fmt.Errorf("registry: entity %q relation %q has unknown kind %q", e.Name, rel.Name, rel.Kind)
		}
	}
	return nil
}

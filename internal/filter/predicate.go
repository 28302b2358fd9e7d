package filter

import "terrane/internal/registry"

// Op is a compiled comparison operator.
type Op string

const (
	OpEq       Op = "eq"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpLike     Op = "like" // case-insensitive pattern match with % wildcards
	OpIn       Op = "in"
	OpIsNull   Op = "isNull"   // Value is bool: true = IS NULL, false = IS NOT NULL
	OpContains Op = "contains" // spatial containment, geometry fields only
)

// Conj joins composite predicate children.
type Conj string

const (
	ConjAnd Conj = "and"
	ConjOr  Conj = "or"
)

// Predicate is the compiled, storage-agnostic form of a filter expression.
// A leaf carries Field/Column/Kind/Op/Value; a composite carries Conj and
// Children. Storage collaborators realize it as a native query predicate;
// the in-memory store evaluates it directly.
type Predicate struct {
	Field  string
	Column string
	Kind   registry.Kind
	Op     Op
	Value  any
	Values []any // OpIn operands

	Conj     Conj
	Children []*Predicate
}

// IsLeaf reports whether the predicate is a single comparison.
func (p *Predicate) IsLeaf() bool { return len(p.Children) == 0 }

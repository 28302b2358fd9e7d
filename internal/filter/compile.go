package filter

import (
	"terrane/internal/registry"
)

var leafOps = map[string]Op{
	"eq":       OpEq,
	"gt":       OpGt,
	"gte":      OpGte,
	"lt":       OpLt,
	"lte":      OpLte,
	"like":     OpLike,
	"in":       OpIn,
	"isNull":   OpIsNull,
	"contains": OpContains,
}

// Compile validates an expression against the entity descriptor and produces
// a predicate tree. Every leaf field must resolve to an exposed field of the
// entity; violations surface as *FieldError naming the offending field.
func Compile(expr *Expression, entity *registry.Entity) (*Predicate, error) {
	if expr == nil {
		return nil, &DecodeError{Reason: "nil filter expression"}
	}
	switch {
	case len(expr.And) > 0:
		return compileComposite(ConjAnd, expr.And, entity)
	case len(expr.Or) > 0:
		return compileComposite(ConjOr, expr.Or, entity)
	default:
		return compileLeaf(expr, entity)
	}
}

func compileComposite(conj Conj, children []*Expression, entity *registry.Entity) (*Predicate, error) {
	pred := &Predicate{Conj: conj, Children: make([]*Predicate, 0, len(children))}
	for _, child := range children {
		cp, err := Compile(child, entity)
		if err != nil {
			return nil, err
		}
		pred.Children = append(pred.Children, cp)
	}
	return pred, nil
}

func compileLeaf(expr *Expression, entity *registry.Entity) (*Predicate, error) {
	field, ok := entity.Field(expr.Field)
	if !ok {
		return nil, &FieldError{Field: expr.Field, Reason: "unknown field"}
	}
	if !field.Exposed() {
		return nil, &FieldError{Field: expr.Field, Reason: "field is not filterable"}
	}
	op, ok := leafOps[expr.Op]
	if !ok {
		return nil, &FieldError{Field: expr.Field, Reason: "unsupported operator " + expr.Op}
	}
	pred := &Predicate{
		Field:  field.Name,
		Column: field.Column,
		Kind:   field.Kind,
		Op:     op,
	}
	switch op {
	case OpIsNull:
		b, ok := expr.Value.(bool)
		if !ok {
			return nil, &FieldError{Field: expr.Field, Reason: "isNull requires a boolean value"}
		}
		pred.Value = b
	case OpIn:
		values, ok := expr.Value.([]any)
		if !ok || len(values) == 0 {
			return nil, &FieldError{Field: expr.Field, Reason: "in requires a non-empty array value"}
		}
		pred.Values = values
	case OpLike:
		s, ok := expr.Value.(string)
		if !ok {
			return nil, &FieldError{Field: expr.Field, Reason: "like requires a string pattern"}
		}
		pred.Value = s
	case OpContains:
		if field.Kind != registry.KindGeometry {
			return nil, &FieldError{Field: expr.Field, Reason: "contains applies to geometry fields only"}
		}
		s, ok := expr.Value.(string)
		if !ok || s == "" {
			return nil, &FieldError{Field: expr.Field, Reason: "contains requires a geometry value"}
		}
		pred.Value = s
	default:
		if expr.Value == nil {
			return nil, &FieldError{Field: expr.Field, Reason: expr.Op + " requires a value; use isNull for null tests"}
		}
		pred.Value = expr.Value
	}
	return pred, nil
}

// Package filter turns transport-encoded boolean filter expressions into
// storage-agnostic predicate trees, enforcing field exposure along the way.
//
// Two failure families are kept distinct on purpose: a DecodeError means the
// token or its structure was malformed (the client sent garbage), a
// FieldError means the expression was well-formed but semantically invalid
// for the target entity (unknown/unexposed field, bad operator or value).
package filter

import (
	"encoding/json"
	"fmt"
)

// Expression is the wire-level filter tree. Exactly one of the leaf form
// (Field/Op/Value) or a composite form (And / Or) is populated.
type Expression struct {
	Field string
	Op    string
	Value any
	And   []*Expression
	Or    []*Expression
}

// IsLeaf reports whether the node is a leaf comparison.
func (e *Expression) IsLeaf() bool { return len(e.And) == 0 && len(e.Or) == 0 }

type rawExpression struct {
	Field *string       `json:"field"`
	Op    *string       `json:"op"`
	Value any           `json:"value"`
	And   []*Expression `json:"and"`
	Or    []*Expression `json:"or"`
}

// UnmarshalJSON enforces the structural rules of the tree; violations are
// reported as DecodeError because they are malformed structure, not semantic
// validation failures.
func (e *Expression) UnmarshalJSON(data []byte) error {
	var raw rawExpression
	if err := json.Unmarshal(data, &raw); err != nil {
		return &DecodeError{Reason: "malformed filter expression", cause: err}
	}
	composite := len(raw.And) > 0 || len(raw.Or) > 0
	leaf := raw.Field != nil || raw.Op != nil
	switch {
	case composite && leaf:
		return &DecodeError{Reason: "filter node mixes leaf and composite forms"}
	case len(raw.And) > 0 && len(raw.Or) > 0:
		return &DecodeError{Reason: "filter node declares both and and or"}
	case composite:
		e.And, e.Or = raw.And, raw.Or
		return nil
	case raw.Field == nil || raw.Op == nil:
		return &DecodeError{Reason: "filter leaf requires field and op"}
	default:
		e.Field, e.Op, e.Value = *raw.Field, *raw.Op, raw.Value
		return nil
	}
}

// MarshalJSON renders the tree back to its wire form, mainly for tests and
// for building tokens client-side.
func (e *Expression) MarshalJSON() ([]byte, error) {
	switch {
	case len(e.And) > 0:
		return json.Marshal(map[string]any{"and": e.And})
	case len(e.Or) > 0:
		return json.Marshal(map[string]any{"or": e.Or})
	default:
		return json.Marshal(map[string]any{"field": e.Field, "op": e.Op, "value": e.Value})
	}
}

// DecodeError reports a malformed transport token or malformed tree
// structure. It maps to a validation (400) response but is a distinct type
// so callers and tests can tell it apart from semantic failures.
type DecodeError struct {
	Reason string
	cause  error
}

func (e *DecodeError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("decode filter: %s: %v", e.Reason, e.cause)
	}
	return "decode filter: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.cause }

// FieldError reports a semantically invalid leaf: an unknown or unexposed
// field, an unsupported operator, or an operand of the wrong shape. Field
// names the offending field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("filter field %q: %s", e.Field, e.Reason)
}

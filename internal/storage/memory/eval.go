package memory

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"terrane/internal/filter"
	"terrane/internal/model"
	"terrane/pkg/platform/sentinel"
)

// eval applies a compiled predicate to one row. A nil predicate matches.
func eval(p *filter.Predicate, row model.Instance) (bool, error) {
	if p == nil {
		return true, nil
	}
	if !p.IsLeaf() {
		for _, child := range p.Children {
			ok, err := eval(child, row)
			if err != nil {
				return false, err
			}
			if p.Conj == filter.ConjAnd && !ok {
				return false, nil
			}
			if p.Conj == filter.ConjOr && ok {
				return true, nil
			}
		}
		return p.Conj == filter.ConjAnd, nil
	}
	value, present := row[p.Field]
	isNull := !present || value == nil
	switch p.Op {
	case filter.OpIsNull:
		want := p.Value.(bool)
		return isNull == want, nil
	case filter.OpEq:
		if isNull {
			return false, nil
		}
		return equalValues(value, p.Value), nil
	case filter.OpIn:
		if isNull {
			return false, nil
		}
		for _, candidate := range p.Values {
			if equalValues(value, candidate) {
				return true, nil
			}
		}
		return false, nil
	case filter.OpGt, filter.OpGte, filter.OpLt, filter.OpLte:
		if isNull {
			return false, nil
		}
		return orderedCompare(p.Op, value, p.Value), nil
	case filter.OpLike:
		if isNull {
			return false, nil
		}
		s, ok := value.(string)
		if !ok {
			return false, nil
		}
		return likeMatch(s, p.Value.(string)), nil
	case filter.OpContains:
		// Spatial containment needs the spatial store; this collaborator
		// cannot realize it.
		return false, fmt.Errorf("memory: contains predicate on %s: %w", p.Field, sentinel.ErrUnavailable)
	default:
		return false, fmt.Errorf("memory: unknown operator %q", p.Op)
	}
}

func equalValues(a, b any) bool {
	if na, aok := asFloat(a); aok {
		if nb, bok := asFloat(b); bok {
			return na == nb
		}
		return false
	}
	if ta, aok := a.(time.Time); aok {
		if tb, bok := asTime(b); bok {
			return ta.Equal(tb)
		}
		return false
	}
	return a == b
}

func orderedCompare(op filter.Op, a, b any) bool {
	if na, aok := asFloat(a); aok {
		if nb, bok := asFloat(b); bok {
			switch op {
			case filter.OpGt:
				return na > nb
			case filter.OpGte:
				return na >= nb
			case filter.OpLt:
				return na < nb
			case filter.OpLte:
				return na <= nb
			}
		}
		return false
	}
	if ta, aok := asTime(a); aok {
		if tb, bok := asTime(b); bok {
			switch op {
			case filter.OpGt:
				return ta.After(tb)
			case filter.OpGte:
				return !ta.Before(tb)
			case filter.OpLt:
				return ta.Before(tb)
			case filter.OpLte:
				return !ta.After(tb)
			}
		}
		return false
	}
	sa, aok := a.(string)
	sb, bok := b.(string)
	if !aok || !bok {
		return false
	}
	switch op {
	case filter.OpGt:
		return sa > sb
	case filter.OpGte:
		return sa >= sb
	case filter.OpLt:
		return sa < sb
	case filter.OpLte:
		return sa <= sb
	}
	return false
}

func lessValues(a, b any) bool {
	if a == nil {
		return b != nil
	}
	if b == nil {
		return false
	}
	return orderedCompare(filter.OpLt, a, b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}

// likeMatch implements case-insensitive LIKE with % wildcards only.
func likeMatch(s, pattern string) bool {
	parts := strings.Split(pattern, "%")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	re, err := regexp.Compile("(?i)^" + strings.Join(parts, ".*") + "$")
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

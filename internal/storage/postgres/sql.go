package postgres

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"terrane/internal/filter"
	"terrane/internal/registry"
	"terrane/internal/storage"
)

func pkColumn(entity *registry.Entity) string {
	return columnOf(entity, entity.PrimaryKey)
}

func columnOf(entity *registry.Entity, fieldName string) string {
	if f, ok := entity.Field(fieldName); ok {
		return f.Column
	}
	return fieldName
}

// writeExpr is the VALUES/SET expression for one field. Geometry values
// arrive as WKT and are converted on the way in.
func writeExpr(f *registry.Field, n int) string {
	if f.Kind == registry.KindGeometry {
		return fmt.Sprintf("ST_GeomFromText($%d, %d)", n, geometrySRID)
	}
	return fmt.Sprintf("$%d", n)
}

// selectList is the projection for reads; geometry columns come back as WKT.
func selectList(entity *registry.Entity) string {
	parts := make([]string, 0, len(entity.Fields))
	for i := range entity.Fields {
		f := &entity.Fields[i]
		if f.Kind == registry.KindGeometry {
			parts = append(parts, fmt.Sprintf("ST_AsText(%s) AS %s", f.Column, f.Column))
			continue
		}
		parts = append(parts, f.Column)
	}
	return strings.Join(parts, ", ")
}

func softDeleteGuard(entity *registry.Entity) string {
	if entity.SoftDelete == "" {
		return ""
	}
	return fmt.Sprintf(" AND %s IS NULL", columnOf(entity, entity.SoftDelete))
}

func buildSelect(entity *registry.Entity, q storage.SelectQuery) (string, []any, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", selectList(entity), entity.Table)
	args, err := writeWhere(&sb, entity, q.Predicate)
	if err != nil {
		return "", nil, err
	}
	order := fmt.Sprintf("%s, %s", orderDefault(entity), pkColumn(entity))
	if q.OrderField != "" {
		direction := "ASC"
		if q.Descending {
			direction = "DESC"
		}
		order = fmt.Sprintf("%s %s, %s", columnOf(entity, q.OrderField), direction, pkColumn(entity))
	}
	fmt.Fprintf(&sb, " ORDER BY %s", order)
	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}
	if q.Offset > 0 {
		fmt.Fprintf(&sb, " OFFSET %d", q.Offset)
	}
	return sb.String(), args, nil
}

func orderDefault(entity *registry.Entity) string {
	if entity.CreatedAt != "" {
		return columnOf(entity, entity.CreatedAt)
	}
	return pkColumn(entity)
}

func buildCount(entity *registry.Entity, pred *filter.Predicate) (string, []any, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT COUNT(*) FROM %s", entity.Table)
	args, err := writeWhere(&sb, entity, pred)
	if err != nil {
		return "", nil, err
	}
	return sb.String(), args, nil
}

func writeWhere(sb *strings.Builder, entity *registry.Entity, pred *filter.Predicate) ([]any, error) {
	b := &predicateBuilder{}
	var clauses []string
	if entity.SoftDelete != "" {
		clauses = append(clauses, fmt.Sprintf("%s IS NULL", columnOf(entity, entity.SoftDelete)))
	}
	if pred != nil {
		clause, err := b.build(pred)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
	}
	if len(clauses) > 0 {
		fmt.Fprintf(sb, " WHERE %s", strings.Join(clauses, " AND "))
	}
	return b.args, nil
}

// predicateBuilder realizes a compiled predicate as a parameterized SQL
// fragment. Column names come from the registry, never from client input, so
// only values travel as parameters.
type predicateBuilder struct {
	args []any
}

func (b *predicateBuilder) placeholder(value any) string {
	b.args = append(b.args, value)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *predicateBuilder) build(p *filter.Predicate) (string, error) {
	if !p.IsLeaf() {
		parts := make([]string, 0, len(p.Children))
		for _, child := range p.Children {
			clause, err := b.build(child)
			if err != nil {
				return "", err
			}
			parts = append(parts, clause)
		}
		joiner := " AND "
		if p.Conj == filter.ConjOr {
			joiner = " OR "
		}
		return "(" + strings.Join(parts, joiner) + ")", nil
	}
	switch p.Op {
	case filter.OpEq:
		if p.Kind == registry.KindGeometry {
			return fmt.Sprintf("ST_Equals(%s, ST_GeomFromText(%s, %d))", p.Column, b.placeholder(p.Value), geometrySRID), nil
		}
		return fmt.Sprintf("%s = %s", p.Column, b.placeholder(p.Value)), nil
	case filter.OpGt:
		return fmt.Sprintf("%s > %s", p.Column, b.placeholder(p.Value)), nil
	case filter.OpGte:
		return fmt.Sprintf("%s >= %s", p.Column, b.placeholder(p.Value)), nil
	case filter.OpLt:
		return fmt.Sprintf("%s < %s", p.Column, b.placeholder(p.Value)), nil
	case filter.OpLte:
		return fmt.Sprintf("%s <= %s", p.Column, b.placeholder(p.Value)), nil
	case filter.OpLike:
		return fmt.Sprintf("%s ILIKE %s", p.Column, b.placeholder(p.Value)), nil
	case filter.OpIn:
		return fmt.Sprintf("%s = ANY(%s)", p.Column, b.placeholder(pq.Array(p.Values))), nil
	case filter.OpIsNull:
		if p.Value == true {
			return fmt.Sprintf("%s IS NULL", p.Column), nil
		}
		return fmt.Sprintf("%s IS NOT NULL", p.Column), nil
	case filter.OpContains:
		return fmt.Sprintf("ST_Contains(%s, ST_GeomFromText(%s, %d))", p.Column, b.placeholder(p.Value), geometrySRID), nil
	default:
		return "", fmt.Errorf("postgres: unknown operator %q", p.Op)
	}
}

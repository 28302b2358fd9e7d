package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"terrane/internal/filter"
	"terrane/internal/registry"
	"terrane/internal/storage"
)

func builderEntity(t *testing.T) *registry.Entity {
	t.Helper()
	reg, err := registry.New(&registry.Entity{
		Name:       "department",
		Table:      "departments",
		PrimaryKey: "id",
		SoftDelete: "deletedAt",
		CreatedAt:  "createdAt",
		Fields: []registry.Field{
			{Name: "id", Kind: registry.KindUUID},
			{Name: "name", Kind: registry.KindString},
			{Name: "headCount", Column: "head_count", Kind: registry.KindInt},
			{Name: "serviceArea", Column: "service_area", Kind: registry.KindGeometry, Nullable: true},
			{Name: "createdAt", Column: "created_at", Kind: registry.KindTime},
			{Name: "deletedAt", Column: "deleted_at", Kind: registry.KindTime, Nullable: true},
		},
	})
	require.NoError(t, err)
	e, _ := reg.Entity("department")
	return e
}

func TestBuildSelect(t *testing.T) {
	entity := builderEntity(t)

	t.Run("default ordering and soft-delete guard", func(t *testing.T) {
		query, args, err := buildSelect(entity, storage.SelectQuery{Limit: 50})
		require.NoError(t, err)
		assert.Empty(t, args)
		assert.Equal(t,
			"SELECT id, name, head_count, ST_AsText(service_area) AS service_area, created_at, deleted_at"+
				" FROM departments WHERE deleted_at IS NULL ORDER BY created_at, id LIMIT 50",
			query)
	})

	t.Run("explicit ordering maps field to column", func(t *testing.T) {
		query, _, err := buildSelect(entity, storage.SelectQuery{OrderField: "headCount", Descending: true, Limit: 10, Offset: 20})
		require.NoError(t, err)
		assert.Contains(t, query, "ORDER BY head_count DESC, id LIMIT 10 OFFSET 20")
	})

	t.Run("predicate joined with the guard", func(t *testing.T) {
		pred := &filter.Predicate{
			Conj: filter.ConjAnd,
			Children: []*filter.Predicate{
				{Field: "name", Column: "name", Kind: registry.KindString, Op: filter.OpLike, Value: "eng%"},
				{
					Conj: filter.ConjOr,
					Children: []*filter.Predicate{
						{Field: "headCount", Column: "head_count", Kind: registry.KindInt, Op: filter.OpGt, Value: 10},
						{Field: "headCount", Column: "head_count", Kind: registry.KindInt, Op: filter.OpLte, Value: 2},
					},
				},
			},
		}
		query, args, err := buildSelect(entity, storage.SelectQuery{Predicate: pred})
		require.NoError(t, err)
		assert.Contains(t, query, "WHERE deleted_at IS NULL AND (name ILIKE $1 AND (head_count > $2 OR head_count <= $3))")
		assert.Equal(t, []any{"eng%", 10, 2}, args)
	})
}

func TestBuildCount(t *testing.T) {
	entity := builderEntity(t)

	pred := &filter.Predicate{Field: "name", Column: "name", Kind: registry.KindString, Op: filter.OpEq, Value: "R&D"}
	query, args, err := buildCount(entity, pred)
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM departments WHERE deleted_at IS NULL AND name = $1", query)
	assert.Equal(t, []any{"R&D"}, args)
}

func TestPredicateBuilderOperators(t *testing.T) {
	cases := []struct {
		name   string
		pred   *filter.Predicate
		clause string
	}{
		{
			name:   "in uses an array parameter",
			pred:   &filter.Predicate{Column: "name", Op: filter.OpIn, Values: []any{"a", "b"}},
			clause: "name = ANY($1)",
		},
		{
			name:   "isNull true",
			pred:   &filter.Predicate{Column: "deleted_at", Op: filter.OpIsNull, Value: true},
			clause: "deleted_at IS NULL",
		},
		{
			name:   "isNull false",
			pred:   &filter.Predicate{Column: "deleted_at", Op: filter.OpIsNull, Value: false},
			clause: "deleted_at IS NOT NULL",
		},
		{
			name:   "geometry equality",
			pred:   &filter.Predicate{Column: "service_area", Kind: registry.KindGeometry, Op: filter.OpEq, Value: "POINT(1 1)"},
			clause: "ST_Equals(service_area, ST_GeomFromText($1, 4326))",
		},
		{
			name:   "geometry containment",
			pred:   &filter.Predicate{Column: "service_area", Kind: registry.KindGeometry, Op: filter.OpContains, Value: "POINT(1 1)"},
			clause: "ST_Contains(service_area, ST_GeomFromText($1, 4326))",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := &predicateBuilder{}
			clause, err := b.build(tc.pred)
			require.NoError(t, err)
			assert.Equal(t, tc.clause, clause)
		})
	}
}

func TestWriteExprAndSelectList(t *testing.T) {
	entity := builderEntity(t)

	f, _ := entity.Field("serviceArea")
	assert.Equal(t, "ST_GeomFromText($3, 4326)", writeExpr(f, 3))
	f, _ = entity.Field("name")
	assert.Equal(t, "$1", writeExpr(f, 1))

	assert.Equal(t, "id, name, head_count, ST_AsText(service_area) AS service_area, created_at, deleted_at", selectList(entity))
}

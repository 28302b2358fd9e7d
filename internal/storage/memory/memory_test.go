package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"terrane/internal/filter"
	"terrane/internal/model"
	"terrane/internal/registry"
	"terrane/internal/storage"
	"terrane/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *Store
	emp   *registry.Entity
	dep   *registry.Entity
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = New()
	reg, err := registry.New(
		&registry.Entity{
			Name:       "department",
			Table:      "departments",
			PrimaryKey: "id",
			SoftDelete: "deletedAt",
			Fields: []registry.Field{
				{Name: "id", Kind: registry.KindUUID},
				{Name: "name", Kind: registry.KindString},
				{Name: "deletedAt", Kind: registry.KindTime, Nullable: true},
			},
		},
		&registry.Entity{
			Name:       "employee",
			Table:      "employees",
			PrimaryKey: "id",
			Fields: []registry.Field{
				{Name: "id", Kind: registry.KindUUID},
				{Name: "firstName", Kind: registry.KindString},
				{Name: "salary", Kind: registry.KindFloat},
			},
		},
	)
	s.Require().NoError(err)
	s.dep, _ = reg.Entity("department")
	s.emp, _ = reg.Entity("employee")
}

func (s *MemoryStoreSuite) begin() storage.Tx {
	tx, err := s.store.Begin(s.ctx)
	s.Require().NoError(err)
	return tx
}

func (s *MemoryStoreSuite) seedEmployees(rows ...model.Instance) {
	tx := s.begin()
	for _, row := range rows {
		_, err := tx.Insert(s.ctx, s.emp, row)
		s.Require().NoError(err)
	}
	s.Require().NoError(tx.Commit(s.ctx))
}

func (s *MemoryStoreSuite) TestInsertGetUpdateDelete() {
	tx := s.begin()
	defer tx.Rollback(s.ctx)

	created, err := tx.Insert(s.ctx, s.emp, model.Instance{"id": "e1", "firstName": "Jane"})
	s.Require().NoError(err)
	s.Equal("Jane", created["firstName"])

	got, err := tx.Get(s.ctx, s.emp, "e1")
	s.Require().NoError(err)
	s.Equal("Jane", got["firstName"])

	updated, err := tx.Update(s.ctx, s.emp, "e1", model.Instance{"firstName": "Janet"})
	s.Require().NoError(err)
	s.Equal("Janet", updated["firstName"])

	s.Require().NoError(tx.Delete(s.ctx, s.emp, "e1"))
	_, err = tx.Get(s.ctx, s.emp, "e1")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MemoryStoreSuite) TestInsertDuplicateConflicts() {
	tx := s.begin()
	defer tx.Rollback(s.ctx)

	_, err := tx.Insert(s.ctx, s.emp, model.Instance{"id": "e1"})
	s.Require().NoError(err)
	_, err = tx.Insert(s.ctx, s.emp, model.Instance{"id": "e1"})
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *MemoryStoreSuite) TestRollbackDiscardsWrites() {
	tx := s.begin()
	_, err := tx.Insert(s.ctx, s.emp, model.Instance{"id": "e1"})
	s.Require().NoError(err)
	s.Require().NoError(tx.Rollback(s.ctx))

	tx = s.begin()
	defer tx.Rollback(s.ctx)
	_, err = tx.Get(s.ctx, s.emp, "e1")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MemoryStoreSuite) TestCommitPublishesWrites() {
	tx := s.begin()
	_, err := tx.Insert(s.ctx, s.emp, model.Instance{"id": "e1", "firstName": "Jane"})
	s.Require().NoError(err)
	s.Require().NoError(tx.Commit(s.ctx))

	tx = s.begin()
	defer tx.Rollback(s.ctx)
	got, err := tx.Get(s.ctx, s.emp, "e1")
	s.Require().NoError(err)
	s.Equal("Jane", got["firstName"])
}

func (s *MemoryStoreSuite) TestSoftDeleteHidesRow() {
	tx := s.begin()
	_, err := tx.Insert(s.ctx, s.dep, model.Instance{"id": "d1", "name": "R&D"})
	s.Require().NoError(err)
	s.Require().NoError(tx.Delete(s.ctx, s.dep, "d1"))

	_, err = tx.Get(s.ctx, s.dep, "d1")
	s.ErrorIs(err, sentinel.ErrNotFound)

	rows, err := tx.Select(s.ctx, s.dep, storage.SelectQuery{})
	s.Require().NoError(err)
	s.Empty(rows)

	n, err := tx.Count(s.ctx, s.dep, nil)
	s.Require().NoError(err)
	s.Zero(n)
	s.Require().NoError(tx.Rollback(s.ctx))
}

func (s *MemoryStoreSuite) TestSelectFilterOrderPage() {
	s.seedEmployees(
		model.Instance{"id": "e1", "firstName": "Jane", "salary": 90.0},
		model.Instance{"id": "e2", "firstName": "Bob", "salary": 70.0},
		model.Instance{"id": "e3", "firstName": "Carol", "salary": 80.0},
	)
	tx := s.begin()
	defer tx.Rollback(s.ctx)

	s.Run("insertion order by default", func() {
		rows, err := tx.Select(s.ctx, s.emp, storage.SelectQuery{})
		s.Require().NoError(err)
		s.Require().Len(rows, 3)
		s.Equal("e1", rows[0].StringID("id"))
		s.Equal("e3", rows[2].StringID("id"))
	})

	s.Run("predicate with conjunction", func() {
		pred := &filter.Predicate{
			Conj: filter.ConjOr,
			Children: []*filter.Predicate{
				{Field: "firstName", Op: filter.OpEq, Value: "Bob"},
				{Field: "salary", Op: filter.OpGte, Value: 90.0},
			},
		}
		rows, err := tx.Select(s.ctx, s.emp, storage.SelectQuery{Predicate: pred})
		s.Require().NoError(err)
		s.Len(rows, 2)
	})

	s.Run("descending order with limit and offset", func() {
		rows, err := tx.Select(s.ctx, s.emp, storage.SelectQuery{
			OrderField: "salary",
			Descending: true,
			Limit:      1,
			Offset:     1,
		})
		s.Require().NoError(err)
		s.Require().Len(rows, 1)
		s.Equal("Carol", rows[0]["firstName"])
	})

	s.Run("offset past the end", func() {
		rows, err := tx.Select(s.ctx, s.emp, storage.SelectQuery{Offset: 10})
		s.Require().NoError(err)
		s.Empty(rows)
	})

	s.Run("like is case-insensitive", func() {
		pred := &filter.Predicate{Field: "firstName", Op: filter.OpLike, Value: "ca%"}
		rows, err := tx.Select(s.ctx, s.emp, storage.SelectQuery{Predicate: pred})
		s.Require().NoError(err)
		s.Require().Len(rows, 1)
		s.Equal("Carol", rows[0]["firstName"])
	})

	s.Run("in against a value set", func() {
		pred := &filter.Predicate{Field: "firstName", Op: filter.OpIn, Values: []any{"Jane", "Carol"}}
		n, err := tx.Count(s.ctx, s.emp, pred)
		s.Require().NoError(err)
		s.Equal(2, n)
	})
}

func (s *MemoryStoreSuite) TestIsNullPredicate() {
	s.seedEmployees(
		model.Instance{"id": "e1", "firstName": "Jane"},
		model.Instance{"id": "e2", "firstName": nil},
	)
	tx := s.begin()
	defer tx.Rollback(s.ctx)

	pred := &filter.Predicate{Field: "firstName", Op: filter.OpIsNull, Value: true}
	rows, err := tx.Select(s.ctx, s.emp, storage.SelectQuery{Predicate: pred})
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Equal("e2", rows[0].StringID("id"))
}

func (s *MemoryStoreSuite) TestContainsIsUnavailable() {
	s.seedEmployees(model.Instance{"id": "e1"})
	tx := s.begin()
	defer tx.Rollback(s.ctx)

	pred := &filter.Predicate{Field: "firstName", Op: filter.OpContains, Value: "POINT(1 1)"}
	_, err := tx.Select(s.ctx, s.emp, storage.SelectQuery{Predicate: pred})
	s.ErrorIs(err, sentinel.ErrUnavailable)
}

func (s *MemoryStoreSuite) TestEdges() {
	j := &registry.Junction{Table: "employee_projects", OwnerColumn: "employee_id", RelatedColumn: "project_id"}
	inverse := &registry.Junction{Table: "employee_projects", OwnerColumn: "project_id", RelatedColumn: "employee_id"}

	tx := s.begin()
	defer tx.Rollback(s.ctx)

	s.Run("insert is idempotent", func() {
		added, err := tx.InsertEdge(s.ctx, j, "e1", "p1")
		s.Require().NoError(err)
		s.True(added)
		added, err = tx.InsertEdge(s.ctx, j, "e1", "p1")
		s.Require().NoError(err)
		s.False(added)
	})

	s.Run("swapped descriptor sees the same rows", func() {
		edges, err := tx.SelectEdges(s.ctx, inverse, []string{"p1"})
		s.Require().NoError(err)
		s.Require().Len(edges, 1)
		s.Equal("p1", edges[0].OwnerID)
		s.Equal("e1", edges[0].RelatedID)
	})

	s.Run("delete ignores missing edges", func() {
		_, err := tx.InsertEdge(s.ctx, j, "e1", "p2")
		s.Require().NoError(err)
		removed, err := tx.DeleteEdges(s.ctx, j, "e1", []string{"p2", "p9"})
		s.Require().NoError(err)
		s.Equal(1, removed)
	})

	s.Run("delete for owner clears the direction", func() {
		_, err := tx.InsertEdge(s.ctx, j, "e2", "p1")
		s.Require().NoError(err)
		s.Require().NoError(tx.DeleteEdgesForOwner(s.ctx, j, "e1"))
		edges, err := tx.SelectEdges(s.ctx, j, []string{"e1", "e2"})
		s.Require().NoError(err)
		s.Require().Len(edges, 1)
		s.Equal("e2", edges[0].OwnerID)
	})
}

package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"

	"terrane/internal/dispatch"
	"terrane/internal/engine"
	"terrane/internal/filter"
	"terrane/internal/registry"
	"terrane/internal/storage/memory"
)

type HandlerSuite struct {
	suite.Suite
	dispatcher *dispatch.Dispatcher
	server     *httptest.Server
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg, err := registry.New(
		&registry.Entity{
			Name:       "employee",
			Collection: "employees",
			Table:      "employees",
			PrimaryKey: "id",
			CreatedAt:  "createdAt",
			Fields: []registry.Field{
				{Name: "id", Kind: registry.KindUUID},
				{Name: "firstName", Kind: registry.KindString},
				{Name: "salary", Kind: registry.KindFloat, Hidden: true},
				{Name: "departmentId", Kind: registry.KindUUID, Nullable: true},
				{Name: "createdAt", Kind: registry.KindTime},
			},
			Relations: []registry.Relation{
				{Name: "department", Kind: registry.ManyToOne, Target: "department", ForeignKey: "departmentId"},
				{Name: "projects", Kind: registry.ManyToMany, Target: "project", Junction: &registry.Junction{
					Table: "employee_projects", OwnerColumn: "employee_id", RelatedColumn: "project_id",
				}},
				{Name: "skills", Kind: registry.ManyToMany, Target: "skill", Junction: &registry.Junction{
					Table: "employee_skills", OwnerColumn: "employee_id", RelatedColumn: "skill_id",
				}},
			},
		},
		&registry.Entity{
			Name:       "department",
			Collection: "departments",
			Table:      "departments",
			PrimaryKey: "id",
			Fields: []registry.Field{
				{Name: "id", Kind: registry.KindUUID},
				{Name: "name", Kind: registry.KindString},
			},
		},
		&registry.Entity{
			Name:       "project",
			Collection: "projects",
			Table:      "projects",
			PrimaryKey: "id",
			Disabled:   true,
			Fields: []registry.Field{
				{Name: "id", Kind: registry.KindUUID},
				{Name: "name", Kind: registry.KindString},
			},
		},
		&registry.Entity{
			Name:       "skill",
			Collection: "skills",
			Table:      "skills",
			PrimaryKey: "id",
			Fields: []registry.Field{
				{Name: "id", Kind: registry.KindUUID},
				{Name: "name", Kind: registry.KindString},
			},
		},
	)
	s.Require().NoError(err)

	s.dispatcher = dispatch.New(log, nil, 1, 16)
	eng := engine.New(engine.Config{
		Registry:   reg,
		Store:      memory.New(),
		Dispatcher: s.dispatcher,
		Logger:     log,
	})
	s.server = httptest.NewServer(NewHandler(eng, log).Router())
}

func (s *HandlerSuite) TearDownTest() {
	s.server.Close()
	s.dispatcher.Close()
}

func (s *HandlerSuite) do(method, path string, body any) (*http.Response, map[string]any) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, s.server.URL+path, reader)
	s.Require().NoError(err)
	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	if len(raw) > 0 {
		s.Require().NoError(json.Unmarshal(raw, &decoded))
	}
	return resp, decoded
}

func (s *HandlerSuite) createEmployee(firstName string, salary float64) string {
	resp, body := s.do(http.MethodPost, "/employees", map[string]any{"firstName": firstName, "salary": salary})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	id, _ := body["id"].(string)
	s.Require().NotEmpty(id)
	return id
}

func (s *HandlerSuite) TestCreateAndGet() {
	id := s.createEmployee("Jane", 100)

	resp, body := s.do(http.MethodGet, "/employees/"+id, nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("Jane", body["firstName"])
	s.NotContains(body, "salary", "hidden field never serialized")
	s.Contains(body, "createdAt")
}

func (s *HandlerSuite) TestListEnvelope() {
	s.createEmployee("Jane", 1)
	s.createEmployee("Bob", 2)
	s.createEmployee("Carol", 3)

	resp, body := s.do(http.MethodGet, "/employees?limit=1&offset=1&orderBy=firstName&orderDirection=asc", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	data, ok := body["data"].([]any)
	s.Require().True(ok)
	s.Require().Len(data, 1)
	s.Equal("Carol", data[0].(map[string]any)["firstName"])

	pagination, ok := body["pagination"].(map[string]any)
	s.Require().True(ok)
	s.Equal(3.0, pagination["total"])
	s.Equal(1.0, pagination["limit"])
	s.Equal(1.0, pagination["offset"])
}

func (s *HandlerSuite) TestListWithWhereToken() {
	s.createEmployee("Jane", 1)
	s.createEmployee("Bob", 2)

	token, err := filter.EncodeToken(&filter.Expression{Field: "firstName", Op: "like", Value: "ja%"})
	s.Require().NoError(err)
	resp, body := s.do(http.MethodGet, "/employees?where="+token, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal(1.0, body["pagination"].(map[string]any)["total"])
}

func (s *HandlerSuite) TestBadQueryParameters() {
	cases := []struct {
		name string
		path string
	}{
		{"negative limit", "/employees?limit=-1"},
		{"non-numeric offset", "/employees?offset=ten"},
		{"bad order direction", "/employees?orderDirection=sideways"},
		{"garbage where token", "/employees?where=!!!"},
		{"hidden orderBy", "/employees?orderBy=salary"},
		{"unknown include", "/employees?include=payroll"},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			resp, body := s.do(http.MethodGet, tc.path, nil)
			s.Equal(http.StatusBadRequest, resp.StatusCode)
			s.Contains(body, "error")
		})
	}
}

func (s *HandlerSuite) TestErrorTaxonomy() {
	s.Run("missing row is 404", func() {
		resp, body := s.do(http.MethodGet, "/employees/missing", nil)
		s.Equal(http.StatusNotFound, resp.StatusCode)
		s.Contains(body["error"], "missing")
	})

	s.Run("unknown field is 400", func() {
		resp, _ := s.do(http.MethodPost, "/employees", map[string]any{"nickname": "JJ"})
		s.Equal(http.StatusBadRequest, resp.StatusCode)
	})

	s.Run("duplicate primary key is 409", func() {
		id := s.createEmployee("Jane", 1)
		resp, _ := s.do(http.MethodPost, "/employees", map[string]any{"id": id, "firstName": "Shadow"})
		s.Equal(http.StatusConflict, resp.StatusCode)
	})

	s.Run("delete then get is 404", func() {
		id := s.createEmployee("Bob", 1)
		resp, body := s.do(http.MethodDelete, "/employees/"+id, nil)
		s.Equal(http.StatusOK, resp.StatusCode)
		s.Equal("Bob", body["firstName"])
		resp, _ = s.do(http.MethodGet, "/employees/"+id, nil)
		s.Equal(http.StatusNotFound, resp.StatusCode)
	})
}

func (s *HandlerSuite) TestDisabledEntityIs404ForEveryVerb() {
	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/projects"},
		{http.MethodPost, "/projects"},
		{http.MethodGet, "/projects/p1"},
		{http.MethodPut, "/projects/p1"},
		{http.MethodDelete, "/projects/p1"},
	} {
		s.Run(fmt.Sprintf("%s %s", tc.method, tc.path), func() {
			var body any
			if tc.method == http.MethodPost || tc.method == http.MethodPut {
				body = map[string]any{"name": "x"}
			}
			resp, decoded := s.do(tc.method, tc.path, body)
			s.Equal(http.StatusNotFound, resp.StatusCode)
			s.Contains(decoded, "error", "unmounted routes still render the JSON error body")
		})
	}
}

func (s *HandlerSuite) TestAssociationSubResources() {
	empID := s.createEmployee("Jane", 1)
	resp, skill1 := s.do(http.MethodPost, "/skills", map[string]any{"name": "Go"})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	resp, skill2 := s.do(http.MethodPost, "/skills", map[string]any{"name": "SQL"})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	id1, id2 := skill1["id"].(string), skill2["id"].(string)

	resp, _ = s.do(http.MethodPost, "/employees/"+empID+"/skills", map[string]any{"ids": []string{id1, id2}})
	s.Require().Equal(http.StatusNoContent, resp.StatusCode)

	s.Run("add is idempotent", func() {
		resp, _ := s.do(http.MethodPost, "/employees/"+empID+"/skills", map[string]any{"ids": []string{id1}})
		s.Equal(http.StatusNoContent, resp.StatusCode)
		_, body := s.do(http.MethodGet, "/employees/"+empID+"/skills", nil)
		s.Len(body["data"], 2)
	})

	s.Run("empty ids is 400", func() {
		resp, _ := s.do(http.MethodPost, "/employees/"+empID+"/skills", map[string]any{"ids": []string{}})
		s.Equal(http.StatusBadRequest, resp.StatusCode)
		resp, _ = s.do(http.MethodDelete, "/employees/"+empID+"/skills", nil)
		s.Equal(http.StatusBadRequest, resp.StatusCode)
	})

	s.Run("remove via query parameter", func() {
		resp, _ := s.do(http.MethodDelete, "/employees/"+empID+"/skills?ids="+id2+",never-linked", nil)
		s.Equal(http.StatusNoContent, resp.StatusCode)
		_, body := s.do(http.MethodGet, "/employees/"+empID+"/skills", nil)
		data, ok := body["data"].([]any)
		s.Require().True(ok)
		s.Require().Len(data, 1)
		s.Equal("Go", data[0].(map[string]any)["name"])
	})

	s.Run("missing owner is 404", func() {
		resp, _ := s.do(http.MethodPost, "/employees/missing/skills", map[string]any{"ids": []string{id1}})
		s.Equal(http.StatusNotFound, resp.StatusCode)
	})

	s.Run("non-association relation has no routes", func() {
		resp, body := s.do(http.MethodPost, "/employees/"+empID+"/department", map[string]any{"ids": []string{"d1"}})
		s.Equal(http.StatusNotFound, resp.StatusCode)
		s.Contains(body, "error")
	})

	s.Run("routes to a disabled target still accept edges", func() {
		resp, _ := s.do(http.MethodPost, "/employees/"+empID+"/projects", map[string]any{"ids": []string{"p1"}})
		s.Equal(http.StatusNoContent, resp.StatusCode)
		resp, body := s.do(http.MethodGet, "/employees/"+empID+"/projects", nil)
		s.Equal(http.StatusOK, resp.StatusCode)
		s.Contains(body, "data")
	})
}

func (s *HandlerSuite) TestIncludeOnGet() {
	resp, dep := s.do(http.MethodPost, "/departments", map[string]any{"name": "R&D"})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	depID := dep["id"].(string)

	resp, emp := s.do(http.MethodPost, "/employees", map[string]any{"firstName": "Jane", "departmentId": depID})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	resp, body := s.do(http.MethodGet, "/employees/"+emp["id"].(string)+"?include=department", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	attached, ok := body["department"].(map[string]any)
	s.Require().True(ok)
	s.Equal("R&D", attached["name"])
}

func (s *HandlerSuite) TestUpdate() {
	id := s.createEmployee("Jane", 1)

	resp, body := s.do(http.MethodPut, "/employees/"+id, map[string]any{"firstName": "Janet"})
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("Janet", body["firstName"])

	resp, _ = s.do(http.MethodPut, "/employees/"+id, map[string]any{"id": "other"})
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

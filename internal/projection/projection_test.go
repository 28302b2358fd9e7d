package projection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"terrane/internal/model"
	"terrane/internal/registry"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New(
		&registry.Entity{
			Name:       "department",
			Table:      "departments",
			PrimaryKey: "id",
			Fields: []registry.Field{
				{Name: "id", Kind: registry.KindUUID},
				{Name: "name", Kind: registry.KindString},
				{Name: "costCenter", Kind: registry.KindString, Hidden: true},
			},
			Relations: []registry.Relation{
				{Name: "employees", Kind: registry.OneToMany, Target: "employee", ForeignKey: "departmentId"},
			},
		},
		&registry.Entity{
			Name:       "employee",
			Table:      "employees",
			PrimaryKey: "id",
			Fields: []registry.Field{
				{Name: "id", Kind: registry.KindUUID},
				{Name: "firstName", Kind: registry.KindString},
				{Name: "salary", Kind: registry.KindFloat, Hidden: true},
				{Name: "departmentId", Kind: registry.KindUUID, Nullable: true},
			},
			Relations: []registry.Relation{
				{Name: "department", Kind: registry.ManyToOne, Target: "department", ForeignKey: "departmentId"},
			},
		},
	)
	require.NoError(t, err)
	return reg
}

func TestApplyStripsHiddenFields(t *testing.T) {
	reg := testRegistry(t)
	p := New(reg)
	emp, _ := reg.Entity("employee")

	out := p.Apply(emp, model.Instance{
		"id":        "e1",
		"firstName": "Jane",
		"salary":    120000.0,
	})
	assert.Equal(t, "Jane", out["firstName"])
	assert.NotContains(t, out, "salary")
	assert.Contains(t, out, "id")
}

func TestApplyProjectsAttachedRelations(t *testing.T) {
	reg := testRegistry(t)
	p := New(reg)
	emp, _ := reg.Entity("employee")
	dep, _ := reg.Entity("department")

	out := p.Apply(emp, model.Instance{
		"id":     "e1",
		"salary": 1.0,
		"department": model.Instance{
			"id":         "d1",
			"name":       "R&D",
			"costCenter": "cc-42",
		},
	})
	attached, ok := out["department"].(model.Instance)
	require.True(t, ok)
	assert.NotContains(t, attached, "costCenter")
	assert.Equal(t, "R&D", attached["name"])

	// One-to-many attachments project every element.
	depOut := p.Apply(dep, model.Instance{
		"id":         "d1",
		"costCenter": "cc-42",
		"employees": []model.Instance{
			{"id": "e1", "salary": 2.0},
			{"id": "e2", "firstName": "Bob", "salary": 3.0},
		},
	})
	list, ok := depOut["employees"].([]model.Instance)
	require.True(t, ok)
	require.Len(t, list, 2)
	for _, item := range list {
		assert.NotContains(t, item, "salary")
	}
}

func TestApplyKeepsHookEnrichments(t *testing.T) {
	reg := testRegistry(t)
	p := New(reg)
	emp, _ := reg.Entity("employee")

	out := p.Apply(emp, model.Instance{"id": "e1", "displayName": "Jane D."})
	assert.Equal(t, "Jane D.", out["displayName"])
}

func TestApplyAllAndNil(t *testing.T) {
	reg := testRegistry(t)
	p := New(reg)
	emp, _ := reg.Entity("employee")

	assert.Nil(t, p.Apply(emp, nil))
	assert.Nil(t, p.ApplyAll(emp, nil))

	out := p.ApplyAll(emp, []model.Instance{{"id": "a", "salary": 1.0}, {"id": "b"}})
	require.Len(t, out, 2)
	assert.NotContains(t, out[0], "salary")
}

package main

import (
	"context"
	"log/slog"
	"strings"

	"terrane/internal/engine"
	"terrane/internal/model"
	"terrane/internal/registry"
	"terrane/internal/storage"
)

// demoRegistry is the example data model served by this binary: departments
// with a spatial service area, employees with a non-exposed salary, projects
// assigned through a junction table, and a self-referential mentorship
// relation on employees.
func demoRegistry() (*registry.Registry, error) {
	departments := &registry.Entity{
		Name:       "department",
		Collection: "departments",
		Table:      "departments",
		PrimaryKey: "id",
		SoftDelete: "deletedAt",
		CreatedAt:  "createdAt",
		UpdatedAt:  "updatedAt",
		Fields: []registry.Field{
			{Name: "id", Kind: registry.KindUUID},
			{Name: "name", Kind: registry.KindString},
			{Name: "serviceArea", Column: "service_area", Kind: registry.KindGeometry, Nullable: true},
			{Name: "createdAt", Column: "created_at", Kind: registry.KindTime},
			{Name: "updatedAt", Column: "updated_at", Kind: registry.KindTime},
			{Name: "deletedAt", Column: "deleted_at", Kind: registry.KindTime, Nullable: true},
		},
		Relations: []registry.Relation{
			{Name: "employees", Kind: registry.OneToMany, Target: "employee", ForeignKey: "departmentId"},
		},
	}
	employees := &registry.Entity{
		Name:       "employee",
		Collection: "employees",
		Table:      "employees",
		PrimaryKey: "id",
		SoftDelete: "deletedAt",
		CreatedAt:  "createdAt",
		UpdatedAt:  "updatedAt",
		Fields: []registry.Field{
			{Name: "id", Kind: registry.KindUUID},
			{Name: "firstName", Column: "first_name", Kind: registry.KindString},
			{Name: "lastName", Column: "last_name", Kind: registry.KindString},
			{Name: "email", Kind: registry.KindString},
			{Name: "salary", Kind: registry.KindFloat, Nullable: true, Hidden: true},
			{Name: "departmentId", Column: "department_id", Kind: registry.KindUUID, Nullable: true},
			{Name: "createdAt", Column: "created_at", Kind: registry.KindTime},
			{Name: "updatedAt", Column: "updated_at", Kind: registry.KindTime},
			{Name: "deletedAt", Column: "deleted_at", Kind: registry.KindTime, Nullable: true},
		},
		Relations: []registry.Relation{
			{Name: "department", Kind: registry.ManyToOne, Target: "department", ForeignKey: "departmentId"},
			{Name: "projects", Kind: registry.ManyToMany, Target: "project", Junction: &registry.Junction{
				Table: "employee_projects", OwnerColumn: "employee_id", RelatedColumn: "project_id",
			}},
			{Name: "mentees", Kind: registry.ManyToMany, Target: "employee", Junction: &registry.Junction{
				Table: "mentorships", OwnerColumn: "mentor_id", RelatedColumn: "mentee_id",
			}},
			{Name: "mentors", Kind: registry.ManyToMany, Target: "employee", Junction: &registry.Junction{
				Table: "mentorships", OwnerColumn: "mentee_id", RelatedColumn: "mentor_id",
			}},
		},
	}
	projects := &registry.Entity{
		Name:       "project",
		Collection: "projects",
		Table:      "projects",
		PrimaryKey: "id",
		CreatedAt:  "createdAt",
		UpdatedAt:  "updatedAt",
		Fields: []registry.Field{
			{Name: "id", Kind: registry.KindUUID},
			{Name: "name", Kind: registry.KindString},
			{Name: "budget", Kind: registry.KindFloat, Nullable: true, Hidden: true},
			{Name: "createdAt", Column: "created_at", Kind: registry.KindTime},
			{Name: "updatedAt", Column: "updated_at", Kind: registry.KindTime},
		},
		Relations: []registry.Relation{
			{Name: "members", Kind: registry.ManyToMany, Target: "employee", Junction: &registry.Junction{
				Table: "employee_projects", OwnerColumn: "project_id", RelatedColumn: "employee_id",
			}},
		},
	}
	return registry.New(departments, employees, projects)
}

// demoHooks shows the integrator surface: a pre-hook normalizing input and
// an after-hook logging once the write is durable.
func demoHooks(log *slog.Logger) engine.HookSet {
	return engine.HookSet{
		"employee": {
			Create: engine.CreateHooks{
				Pre: func(ctx context.Context, tx storage.Tx, input model.Instance, hc *engine.HookContext) (model.Instance, error) {
					if email, ok := input["email"].(string); ok {
						input["email"] = normalizeEmail(email)
					}
					return input, nil
				},
				After: func(ctx context.Context, result model.Instance, hc *engine.HookContext) error {
					log.Info("employee created", "id", result.StringID("id"))
					return nil
				},
			},
		},
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

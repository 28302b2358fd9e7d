// Package postgres implements the storage contract on PostgreSQL with the
// PostGIS extension. Geometry fields are written through ST_GeomFromText and
// read back as WKT, so the engine only ever sees opaque text.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"terrane/internal/filter"
	"terrane/internal/model"
	"terrane/internal/registry"
	"terrane/internal/storage"
	"terrane/pkg/platform/sentinel"
)

const geometrySRID = 4326

// Store opens transactions over a *sql.DB.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) Commit(ctx context.Context) error   { return t.tx.Commit() }
func (t *pgTx) Rollback(ctx context.Context) error { return t.tx.Rollback() }

func (t *pgTx) Insert(ctx context.Context, entity *registry.Entity, row model.Instance) (model.Instance, error) {
	var (
		columns      []string
		placeholders []string
		args         []any
	)
	for i := range entity.Fields {
		f := &entity.Fields[i]
		value, ok := row[f.Name]
		if !ok {
			continue
		}
		columns = append(columns, f.Column)
		placeholders = append(placeholders, writeExpr(f, len(args)+1))
		args = append(args, value)
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		entity.Table, strings.Join(columns, ", "), strings.Join(placeholders, ", "), selectList(entity),
	)
	inserted, err := t.scanOne(ctx, entity, query, args...)
	if err != nil {
		return nil, translate(fmt.Errorf("insert %s: %w", entity.Name, err))
	}
	return inserted, nil
}

func (t *pgTx) Get(ctx context.Context, entity *registry.Entity, id string) (model.Instance, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = $1%s",
		selectList(entity), entity.Table, pkColumn(entity), softDeleteGuard(entity),
	)
	row, err := t.scanOne(ctx, entity, query, id)
	if err != nil {
		return nil, translate(fmt.Errorf("get %s %s: %w", entity.Name, id, err))
	}
	return row, nil
}

func (t *pgTx) Update(ctx context.Context, entity *registry.Entity, id string, fields model.Instance) (model.Instance, error) {
	var (
		assignments []string
		args        []any
	)
	for i := range entity.Fields {
		f := &entity.Fields[i]
		value, ok := fields[f.Name]
		if !ok || f.Name == entity.PrimaryKey {
			continue
		}
		assignments = append(assignments, fmt.Sprintf("%s = %s", f.Column, writeExpr(f, len(args)+1)))
		args = append(args, value)
	}
	if len(assignments) == 0 {
		return t.Get(ctx, entity, id)
	}
	args = append(args, id)
	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s = $%d%s RETURNING %s",
		entity.Table, strings.Join(assignments, ", "), pkColumn(entity), len(args), softDeleteGuard(entity), selectList(entity),
	)
	updated, err := t.scanOne(ctx, entity, query, args...)
	if err != nil {
		return nil, translate(fmt.Errorf("update %s %s: %w", entity.Name, id, err))
	}
	return updated, nil
}

func (t *pgTx) Delete(ctx context.Context, entity *registry.Entity, id string) error {
	var query string
	if entity.SoftDelete != "" {
		col := columnOf(entity, entity.SoftDelete)
		query = fmt.Sprintf("UPDATE %s SET %s = NOW() WHERE %s = $1 AND %s IS NULL", entity.Table, col, pkColumn(entity), col)
	} else {
		query = fmt.Sprintf("DELETE FROM %s WHERE %s = $1", entity.Table, pkColumn(entity))
	}
	res, err := t.tx.ExecContext(ctx, query, id)
	if err != nil {
		return translate(fmt.Errorf("delete %s %s: %w", entity.Name, id, err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", entity.Name, id, err)
	}
	if affected == 0 {
		return fmt.Errorf("delete %s %s: %w", entity.Name, id, sentinel.ErrNotFound)
	}
	return nil
}

func (t *pgTx) Select(ctx context.Context, entity *registry.Entity, q storage.SelectQuery) ([]model.Instance, error) {
	query, args, err := buildSelect(entity, q)
	if err != nil {
		return nil, err
	}
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(fmt.Errorf("select %s: %w", entity.Name, err))
	}
	defer rows.Close()
	var out []model.Instance
	for rows.Next() {
		row, err := scanRow(entity, rows)
		if err != nil {
			return nil, fmt.Errorf("select %s: %w", entity.Name, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(fmt.Errorf("select %s: %w", entity.Name, err))
	}
	return out, nil
}

func (t *pgTx) Count(ctx context.Context, entity *registry.Entity, pred *filter.Predicate) (int, error) {
	query, args, err := buildCount(entity, pred)
	if err != nil {
		return 0, err
	}
	var count int
	if err := t.tx.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, translate(fmt.Errorf("count %s: %w", entity.Name, err))
	}
	return count, nil
}

func (t *pgTx) InsertEdge(ctx context.Context, j *registry.Junction, ownerID, relatedID string) (bool, error) {
	query := fmt.Sprintf(
		"INSERT INTO %s (%s, %s) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		j.Table, j.OwnerColumn, j.RelatedColumn,
	)
	res, err := t.tx.ExecContext(ctx, query, ownerID, relatedID)
	if err != nil {
		return false, translate(fmt.Errorf("insert edge %s: %w", j.Table, err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert edge %s: %w", j.Table, err)
	}
	return affected > 0, nil
}

func (t *pgTx) DeleteEdges(ctx context.Context, j *registry.Junction, ownerID string, relatedIDs []string) (int, error) {
	query := fmt.Sprintf(
		"DELETE FROM %s WHERE %s = $1 AND %s = ANY($2)",
		j.Table, j.OwnerColumn, j.RelatedColumn,
	)
	res, err := t.tx.ExecContext(ctx, query, ownerID, pq.Array(relatedIDs))
	if err != nil {
		return 0, translate(fmt.Errorf("delete edges %s: %w", j.Table, err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete edges %s: %w", j.Table, err)
	}
	return int(affected), nil
}

func (t *pgTx) DeleteEdgesForOwner(ctx context.Context, j *registry.Junction, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", j.Table, j.OwnerColumn)
	if _, err := t.tx.ExecContext(ctx, query, id); err != nil {
		return translate(fmt.Errorf("delete edges %s for %s: %w", j.Table, id, err))
	}
	return nil
}

func (t *pgTx) SelectEdges(ctx context.Context, j *registry.Junction, ownerIDs []string) ([]storage.Edge, error) {
	query := fmt.Sprintf(
		"SELECT %s, %s FROM %s WHERE %s = ANY($1)",
		j.OwnerColumn, j.RelatedColumn, j.Table, j.OwnerColumn,
	)
	rows, err := t.tx.QueryContext(ctx, query, pq.Array(ownerIDs))
	if err != nil {
		return nil, translate(fmt.Errorf("select edges %s: %w", j.Table, err))
	}
	defer rows.Close()
	var out []storage.Edge
	for rows.Next() {
		var e storage.Edge
		if err := rows.Scan(&e.OwnerID, &e.RelatedID); err != nil {
			return nil, fmt.Errorf("select edges %s: %w", j.Table, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (t *pgTx) scanOne(ctx context.Context, entity *registry.Entity, query string, args ...any) (model.Instance, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, sentinel.ErrNotFound
	}
	return scanRow(entity, rows)
}

// translate maps driver failures onto sentinel errors the engine classifies.
func translate(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%v (constraint %s): %w", err, pqErr.Constraint, sentinel.ErrConflict)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%v (constraint %s): %w", err, pqErr.Constraint, sentinel.ErrIntegrity)
		}
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%v: %w", err, sentinel.ErrNotFound)
	}
	return err
}

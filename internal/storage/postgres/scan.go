package postgres

import (
	"database/sql"
	"fmt"

	"terrane/internal/model"
	"terrane/internal/registry"
)

// scanRow reads the current row of rows into an instance keyed by field
// name. Scan targets are chosen per field kind; SQL NULL becomes a nil value.
func scanRow(entity *registry.Entity, rows *sql.Rows) (model.Instance, error) {
	targets := make([]any, len(entity.Fields))
	for i := range entity.Fields {
		switch entity.Fields[i].Kind {
		case registry.KindInt:
			targets[i] = &sql.NullInt64{}
		case registry.KindFloat:
			targets[i] = &sql.NullFloat64{}
		case registry.KindBool:
			targets[i] = &sql.NullBool{}
		case registry.KindTime:
			targets[i] = &sql.NullTime{}
		default: // string, uuid, geometry (WKT)
			targets[i] = &sql.NullString{}
		}
	}
	if err := rows.Scan(targets...); err != nil {
		return nil, fmt.Errorf("scan %s: %w", entity.Name, err)
	}
	out := make(model.Instance, len(entity.Fields))
	for i := range entity.Fields {
		name := entity.Fields[i].Name
		switch v := targets[i].(type) {
		case *sql.NullInt64:
			if v.Valid {
				out[name] = v.Int64
			} else {
				out[name] = nil
			}
		case *sql.NullFloat64:
			if v.Valid {
				out[name] = v.Float64
			} else {
				out[name] = nil
			}
		case *sql.NullBool:
			if v.Valid {
				out[name] = v.Bool
			} else {
				out[name] = nil
			}
		case *sql.NullTime:
			if v.Valid {
				out[name] = v.Time
			} else {
				out[name] = nil
			}
		case *sql.NullString:
			if v.Valid {
				out[name] = v.String
			} else {
				out[name] = nil
			}
		}
	}
	return out, nil
}

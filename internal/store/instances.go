package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/atlanticdynamic/gridhost/internal/widget"
)

// InstanceRepository handles database operations for widget_instances.
type InstanceRepository struct {
	db *sql.DB
}

const instanceColumns = `id, definition_id, builtin_type, x, y, width, height, created_at`

// Create inserts a new instance. Exactly one of DefinitionID or
// BuiltinType should be set; custom instances must reference an existing
// definition or the FK rejects the row.
func (r *InstanceRepository) Create(ctx context.Context, inst *widget.Instance) error {
	query := `
		INSERT INTO widget_instances (` + instanceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		inst.ID, nullIfEmpty(inst.DefinitionID), inst.BuiltinType,
		inst.X, inst.Y, inst.Width, inst.Height, inst.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert widget instance: %w", err)
	}
	return nil
}

// GetByID returns the instance with the given id.
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*widget.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM widget_instances WHERE id = ?`
	inst, err := scanInstance(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, widget.ErrInstanceNotFound
	}
	return inst, err
}

// ListByDefinition returns every instance placed from the definition.
// Cache fan-out writes one entry per returned instance.
func (r *InstanceRepository) ListByDefinition(ctx context.Context, definitionID string) ([]*widget.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM widget_instances
		WHERE definition_id = ? ORDER BY created_at ASC`
	return r.list(ctx, query, definitionID)
}

// List returns all instances.
func (r *InstanceRepository) List(ctx context.Context) ([]*widget.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM widget_instances ORDER BY created_at ASC`
	return r.list(ctx, query)
}

// UpdatePlacement moves or resizes an instance.
func (r *InstanceRepository) UpdatePlacement(ctx context.Context, id string, x, y, width, height int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE widget_instances SET x = ?, y = ?, width = ?, height = ? WHERE id = ?`,
		x, y, width, height, id)
	if err != nil {
		return fmt.Errorf("failed to update widget instance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id %s", widget.ErrInstanceNotFound, id)
	}
	return nil
}

// Delete removes an instance; its cache entry cascades.
func (r *InstanceRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM widget_instances WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete widget instance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id %s", widget.ErrInstanceNotFound, id)
	}
	return nil
}

func (r *InstanceRepository) list(ctx context.Context, query string, args ...any) ([]*widget.Instance, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query widget instances: %w", err)
	}
	defer rows.Close()

	insts := []*widget.Instance{}
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		insts = append(insts, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating widget instance rows: %w", err)
	}
	return insts, nil
}

func scanInstance(s scanner) (*widget.Instance, error) {
	var (
		inst  widget.Instance
		defID sql.NullString
	)
	err := s.Scan(&inst.ID, &defID, &inst.BuiltinType,
		&inst.X, &inst.Y, &inst.Width, &inst.Height, &inst.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan widget instance row: %w", err)
	}
	inst.DefinitionID = defID.String
	return &inst, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/atlanticdynamic/gridhost/internal/widget"
)

// DefinitionRepository handles database operations for widget_definitions.
type DefinitionRepository struct {
	db *sql.DB
}

const definitionColumns = `id, slug, name, description, source_code, server_code,
	server_code_enabled, default_width, default_height, min_width, min_height,
	refresh_interval_seconds, credentials, setup_config, fetch_config,
	cache_config, data_schema, author, enabled, created_at, updated_at`

// Create inserts a new definition. The definition must already be
// validated; the UNIQUE constraint on slug backstops conflict handling.
func (r *DefinitionRepository) Create(ctx context.Context, def *widget.Definition) error {
	cols, err := marshalDefinition(def)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO widget_definitions (` + definitionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		def.ID, def.Slug, def.Name, def.Description, def.SourceCode, def.ServerCode,
		def.ServerCodeEnabled, def.DefaultWidth, def.DefaultHeight, def.MinWidth, def.MinHeight,
		def.RefreshIntervalSeconds, cols.credentials, cols.setup, cols.fetch,
		cols.cache, cols.schema, def.Author, def.Enabled, def.CreatedAt, def.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert widget definition: %w", err)
	}
	return nil
}

// Update overwrites every mutable column of the definition identified by
// def.ID. The id itself never changes.
func (r *DefinitionRepository) Update(ctx context.Context, def *widget.Definition) error {
	cols, err := marshalDefinition(def)
	if err != nil {
		return err
	}

	query := `
		UPDATE widget_definitions SET
			slug = ?, name = ?, description = ?, source_code = ?, server_code = ?,
			server_code_enabled = ?, default_width = ?, default_height = ?,
			min_width = ?, min_height = ?, refresh_interval_seconds = ?,
			credentials = ?, setup_config = ?, fetch_config = ?, cache_config = ?,
			data_schema = ?, author = ?, enabled = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := r.db.ExecContext(ctx, query,
		def.Slug, def.Name, def.Description, def.SourceCode, def.ServerCode,
		def.ServerCodeEnabled, def.DefaultWidth, def.DefaultHeight,
		def.MinWidth, def.MinHeight, def.RefreshIntervalSeconds,
		cols.credentials, cols.setup, cols.fetch, cols.cache,
		cols.schema, def.Author, def.Enabled, def.UpdatedAt,
		def.ID)
	if err != nil {
		return fmt.Errorf("failed to update widget definition: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id %s", widget.ErrDefinitionNotFound, def.ID)
	}
	return nil
}

// GetByID returns the definition with the given id.
func (r *DefinitionRepository) GetByID(ctx context.Context, id string) (*widget.Definition, error) {
	query := `SELECT ` + definitionColumns + ` FROM widget_definitions WHERE id = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetBySlug returns the definition with the given slug.
func (r *DefinitionRepository) GetBySlug(ctx context.Context, slug string) (*widget.Definition, error) {
	query := `SELECT ` + definitionColumns + ` FROM widget_definitions WHERE slug = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, slug))
}

// List returns all definitions ordered by slug.
func (r *DefinitionRepository) List(ctx context.Context) ([]*widget.Definition, error) {
	query := `SELECT ` + definitionColumns + ` FROM widget_definitions ORDER BY slug ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query widget definitions: %w", err)
	}
	defer rows.Close()

	defs := []*widget.Definition{}
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating widget definition rows: %w", err)
	}
	return defs, nil
}

// SlugExists reports whether any definition already uses slug.
func (r *DefinitionRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM widget_definitions WHERE slug = ?`, slug).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check slug: %w", err)
	}
	return true, nil
}

// Delete removes a definition. Instances referencing it (and their cache
// entries) go with it via ON DELETE CASCADE.
func (r *DefinitionRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM widget_definitions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete widget definition: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id %s", widget.ErrDefinitionNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *DefinitionRepository) scanOne(row *sql.Row) (*widget.Definition, error) {
	def, err := scanDefinition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, widget.ErrDefinitionNotFound
	}
	return def, err
}

func scanDefinition(s scanner) (*widget.Definition, error) {
	var (
		def         widget.Definition
		credentials string
		setup       sql.NullString
		fetch       string
		cache       sql.NullString
		schema      sql.NullString
	)
	err := s.Scan(
		&def.ID, &def.Slug, &def.Name, &def.Description, &def.SourceCode, &def.ServerCode,
		&def.ServerCodeEnabled, &def.DefaultWidth, &def.DefaultHeight, &def.MinWidth, &def.MinHeight,
		&def.RefreshIntervalSeconds, &credentials, &setup, &fetch,
		&cache, &schema, &def.Author, &def.Enabled, &def.CreatedAt, &def.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan widget definition row: %w", err)
	}

	if err := json.Unmarshal([]byte(credentials), &def.Credentials); err != nil {
		return nil, fmt.Errorf("failed to decode credentials for %s: %w", def.ID, err)
	}
	if err := json.Unmarshal([]byte(fetch), &def.Fetch); err != nil {
		return nil, fmt.Errorf("failed to decode fetch config for %s: %w", def.ID, err)
	}
	if setup.Valid {
		def.Setup = &widget.SetupConfig{}
		if err := json.Unmarshal([]byte(setup.String), def.Setup); err != nil {
			return nil, fmt.Errorf("failed to decode setup config for %s: %w", def.ID, err)
		}
	}
	if cache.Valid {
		def.Cache = &widget.CacheConfig{}
		if err := json.Unmarshal([]byte(cache.String), def.Cache); err != nil {
			return nil, fmt.Errorf("failed to decode cache config for %s: %w", def.ID, err)
		}
	}
	if schema.Valid {
		def.Schema = &widget.DataSchema{}
		if err := json.Unmarshal([]byte(schema.String), def.Schema); err != nil {
			return nil, fmt.Errorf("failed to decode data schema for %s: %w", def.ID, err)
		}
	}
	return &def, nil
}

// definitionColumnsJSON holds the marshaled JSON sub-configs for one
// insert or update.
type definitionColumnsJSON struct {
	credentials string
	setup       sql.NullString
	fetch       string
	cache       sql.NullString
	schema      sql.NullString
}

func marshalDefinition(def *widget.Definition) (definitionColumnsJSON, error) {
	var cols definitionColumnsJSON

	creds := def.Credentials
	if creds == nil {
		creds = []widget.CredentialRequirement{}
	}
	b, err := json.Marshal(creds)
	if err != nil {
		return cols, fmt.Errorf("failed to encode credentials: %w", err)
	}
	cols.credentials = string(b)

	if b, err = json.Marshal(def.Fetch); err != nil {
		return cols, fmt.Errorf("failed to encode fetch config: %w", err)
	}
	cols.fetch = string(b)

	if def.Setup != nil {
		if b, err = json.Marshal(def.Setup); err != nil {
			return cols, fmt.Errorf("failed to encode setup config: %w", err)
		}
		cols.setup = sql.NullString{String: string(b), Valid: true}
	}
	if def.Cache != nil {
		if b, err = json.Marshal(def.Cache); err != nil {
			return cols, fmt.Errorf("failed to encode cache config: %w", err)
		}
		cols.cache = sql.NullString{String: string(b), Valid: true}
	}
	if def.Schema != nil {
		if b, err = json.Marshal(def.Schema); err != nil {
			return cols, fmt.Errorf("failed to encode data schema: %w", err)
		}
		cols.schema = sql.NullString{String: string(b), Valid: true}
	}
	return cols, nil
}

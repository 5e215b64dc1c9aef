package pack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/atlanticdynamic/gridhost/internal/creds"
	"github.com/atlanticdynamic/gridhost/internal/widget"
)

// Policy selects how a slug collision is resolved during import.
// Collisions are not errors: once a policy is chosen the outcome is
// deterministic.
type Policy string

const (
	// PolicyOverwrite updates the existing definition in place, keeping
	// its id so existing instances stay attached.
	PolicyOverwrite Policy = "overwrite"
	// PolicyRename creates a new definition under a synthesized slug.
	PolicyRename Policy = "rename"
	// PolicySkip leaves the existing definition untouched.
	PolicySkip Policy = "skip"
)

// Action records what happened to one imported package.
type Action string

const (
	ActionCreated     Action = "created"
	ActionOverwritten Action = "overwritten"
	ActionRenamed     Action = "renamed"
	ActionSkipped     Action = "skipped"
)

// DefinitionStore is the slice of the persistence layer imports need.
type DefinitionStore interface {
	GetBySlug(ctx context.Context, slug string) (*widget.Definition, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	Create(ctx context.Context, def *widget.Definition) error
	Update(ctx context.Context, def *widget.Definition) error
}

// InstanceWriter places imported layout entries.
type InstanceWriter interface {
	Create(ctx context.Context, inst *widget.Instance) error
}

// Outcome describes the fate of one package in a batch.
type Outcome struct {
	OriginalSlug string `json:"original_slug"`
	FinalSlug    string `json:"final_slug"`
	DefinitionID string `json:"definition_id"`
	Action       Action `json:"action"`
}

// BatchResult is the result of one import batch. Remap maps every
// original slug to the slug it resolved to — identity entries included —
// so layout resolution has one consistent lookup path.
type BatchResult struct {
	TransactionID string            `json:"transaction_id"`
	Outcomes      []Outcome         `json:"outcomes"`
	Remap         map[string]string `json:"remap"`
	Warnings      []string          `json:"warnings"`
}

// LayoutEntry is one placement in an imported dashboard layout,
// referencing a definition by its pre-remap slug.
type LayoutEntry struct {
	Slug   string `json:"slug"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Importer writes decoded packages into the definition store.
type Importer struct {
	defs      DefinitionStore
	instances InstanceWriter
	creds     creds.Store
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// NewImporter creates an Importer. credStore may be nil; it only feeds
// validation warnings.
func NewImporter(defs DefinitionStore, instances InstanceWriter, credStore creds.Store, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		defs:      defs,
		instances: instances,
		creds:     credStore,
		logger:    logger.With("component", "import"),
		now:       time.Now,
		newID:     func() string { return uuid.Must(uuid.NewV6()).String() },
	}
}

// ImportBatch validates and imports a batch of packages under one
// conflict policy. Validation failure in any package aborts the whole
// batch before any write.
func (im *Importer) ImportBatch(ctx context.Context, pkgs []*Package, policy Policy) (*BatchResult, error) {
	switch policy {
	case PolicyOverwrite, PolicyRename, PolicySkip:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
	}

	tx, err := NewImportTransaction(policy, len(pkgs), im.logger.Handler())
	if err != nil {
		return nil, err
	}

	if err := tx.BeginValidation(); err != nil {
		return nil, err
	}
	result := &BatchResult{
		TransactionID: tx.ID.String(),
		Outcomes:      []Outcome{},
		Remap:         map[string]string{},
		Warnings:      []string{},
	}
	var validationErrs []string
	for _, pkg := range pkgs {
		res := Validate(ctx, pkg, im.creds)
		result.Warnings = append(result.Warnings, res.Warnings...)
		if !res.Valid {
			for _, msg := range res.Errors {
				validationErrs = append(validationErrs,
					fmt.Sprintf("%s: %s", pkg.Widget.Slug, msg))
			}
		}
	}
	if len(validationErrs) > 0 {
		_ = tx.MarkInvalid(validationErrs)
		return nil, fmt.Errorf("package validation failed: %v", validationErrs)
	}
	if err := tx.MarkValidated(); err != nil {
		return nil, err
	}

	if err := tx.BeginImport(); err != nil {
		return nil, err
	}
	// Slugs claimed earlier in this batch count as taken for rename
	// synthesis even before they are visible in the store.
	claimed := map[string]bool{}
	for _, pkg := range pkgs {
		outcome, err := im.importOne(ctx, pkg, policy, claimed)
		if err != nil {
			_ = tx.MarkFailed(err)
			return nil, err
		}
		claimed[outcome.FinalSlug] = true
		result.Outcomes = append(result.Outcomes, outcome)
		result.Remap[outcome.OriginalSlug] = outcome.FinalSlug
	}
	if err := tx.MarkCompleted(len(result.Outcomes)); err != nil {
		return nil, err
	}
	return result, nil
}

func (im *Importer) importOne(ctx context.Context, pkg *Package, policy Policy, claimed map[string]bool) (Outcome, error) {
	slug := pkg.Widget.Slug
	existing, err := im.defs.GetBySlug(ctx, slug)
	if err != nil && !errors.Is(err, widget.ErrDefinitionNotFound) {
		return Outcome{}, fmt.Errorf("looking up slug %q: %w", slug, err)
	}

	if existing == nil && !claimed[slug] {
		def := pkg.Definition(im.newID())
		im.stampNew(def)
		if err := im.defs.Create(ctx, def); err != nil {
			return Outcome{}, fmt.Errorf("creating definition %q: %w", slug, err)
		}
		im.logger.Info("imported new widget definition", "slug", slug, "id", def.ID)
		return Outcome{OriginalSlug: slug, FinalSlug: slug, DefinitionID: def.ID, Action: ActionCreated}, nil
	}

	switch policy {
	case PolicyOverwrite:
		if existing == nil {
			// The slug was claimed by an earlier package in this batch;
			// read back the row it just wrote.
			if existing, err = im.defs.GetBySlug(ctx, slug); err != nil {
				return Outcome{}, fmt.Errorf("looking up slug %q: %w", slug, err)
			}
		}
		def := pkg.Definition(existing.ID)
		def.CreatedAt = existing.CreatedAt
		def.Enabled = existing.Enabled
		def.UpdatedAt = im.now().UTC()
		if err := im.defs.Update(ctx, def); err != nil {
			return Outcome{}, fmt.Errorf("overwriting definition %q: %w", slug, err)
		}
		im.logger.Info("overwrote widget definition", "slug", slug, "id", def.ID)
		return Outcome{OriginalSlug: slug, FinalSlug: slug, DefinitionID: def.ID, Action: ActionOverwritten}, nil

	case PolicyRename:
		newSlug, err := im.uniqueSlug(ctx, slug, claimed)
		if err != nil {
			return Outcome{}, err
		}
		def := pkg.Definition(im.newID())
		def.Slug = newSlug
		im.stampNew(def)
		if err := im.defs.Create(ctx, def); err != nil {
			return Outcome{}, fmt.Errorf("creating renamed definition %q: %w", newSlug, err)
		}
		im.logger.Info("imported widget definition under new slug",
			"slug", slug, "renamed", newSlug, "id", def.ID)
		return Outcome{OriginalSlug: slug, FinalSlug: newSlug, DefinitionID: def.ID, Action: ActionRenamed}, nil

	case PolicySkip:
		id := ""
		if existing != nil {
			id = existing.ID
		}
		im.logger.Info("skipped widget definition with existing slug", "slug", slug)
		return Outcome{OriginalSlug: slug, FinalSlug: slug, DefinitionID: id, Action: ActionSkipped}, nil
	}
	return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
}

// uniqueSlug synthesizes slug-2, slug-3, ... until it finds one unused
// by the store and unclaimed by this batch.
func (im *Importer) uniqueSlug(ctx context.Context, slug string, claimed map[string]bool) (string, error) {
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", slug, n)
		if claimed[candidate] {
			continue
		}
		exists, err := im.defs.SlugExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("checking slug %q: %w", candidate, err)
		}
		if !exists {
			return candidate, nil
		}
	}
}

func (im *Importer) stampNew(def *widget.Definition) {
	now := im.now().UTC()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}
	def.UpdatedAt = now
}

// ResolveLayout places imported layout entries, resolving each slug
// through the batch remap. Entries whose slug never resolves to a known
// definition produce a warning, never a failure.
func (im *Importer) ResolveLayout(ctx context.Context, entries []LayoutEntry, remap map[string]string) ([]*widget.Instance, []string, error) {
	created := []*widget.Instance{}
	warnings := []string{}

	for _, entry := range entries {
		slug := entry.Slug
		if mapped, ok := remap[slug]; ok {
			slug = mapped
		}
		def, err := im.defs.GetBySlug(ctx, slug)
		if errors.Is(err, widget.ErrDefinitionNotFound) {
			warnings = append(warnings,
				fmt.Sprintf("layout references unknown widget slug %q", entry.Slug))
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("resolving layout slug %q: %w", slug, err)
		}

		width, height := entry.Width, entry.Height
		if width <= 0 {
			width = def.DefaultWidth
		}
		if height <= 0 {
			height = def.DefaultHeight
		}
		inst := &widget.Instance{
			ID:           im.newID(),
			DefinitionID: def.ID,
			X:            entry.X,
			Y:            entry.Y,
			Width:        width,
			Height:       height,
			CreatedAt:    im.now().UTC(),
		}
		if err := im.instances.Create(ctx, inst); err != nil {
			return nil, nil, fmt.Errorf("placing widget %q: %w", slug, err)
		}
		created = append(created, inst)
	}
	return created, warnings, nil
}

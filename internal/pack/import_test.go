package pack

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlanticdynamic/gridhost/internal/store"
	"github.com/atlanticdynamic/gridhost/internal/widget"
)

func newImportFixture(t *testing.T) (*Importer, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "import.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return NewImporter(s.Definitions, s.Instances, nil, slog.Default()), s
}

func packageFor(t *testing.T, def *widget.Definition) *Package {
	t.Helper()
	encoded, err := Encode(def, "")
	require.NoError(t, err)
	pkg, err := Decode(encoded)
	require.NoError(t, err)
	return pkg
}

func TestImportBatch_CreatesNewDefinition(t *testing.T) {
	im, s := newImportFixture(t)
	ctx := context.Background()

	pkg := packageFor(t, sampleDefinition())
	result, err := im.ImportBatch(ctx, []*Package{pkg}, PolicySkip)
	require.NoError(t, err)

	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, ActionCreated, result.Outcomes[0].Action)
	assert.Equal(t, "github-prs", result.Outcomes[0].FinalSlug)
	assert.Equal(t, map[string]string{"github-prs": "github-prs"}, result.Remap)
	assert.NotEmpty(t, result.TransactionID)

	created, err := s.Definitions.GetBySlug(ctx, "github-prs")
	require.NoError(t, err)
	assert.NotEqual(t, "def-original", created.ID, "identity is assigned locally")
	assert.Equal(t, "GitHub PRs", created.Name)
}

func TestImportBatch_OverwritePreservesID(t *testing.T) {
	im, s := newImportFixture(t)
	ctx := context.Background()

	existing := sampleDefinition()
	existing.ID = "def-existing"
	existing.Name = "Old name"
	require.NoError(t, s.Definitions.Create(ctx, existing))

	pkg := packageFor(t, sampleDefinition())
	result, err := im.ImportBatch(ctx, []*Package{pkg}, PolicyOverwrite)
	require.NoError(t, err)

	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, ActionOverwritten, result.Outcomes[0].Action)
	assert.Equal(t, "def-existing", result.Outcomes[0].DefinitionID)

	got, err := s.Definitions.GetBySlug(ctx, "github-prs")
	require.NoError(t, err)
	assert.Equal(t, "def-existing", got.ID)
	assert.Equal(t, "GitHub PRs", got.Name)
}

func TestImportBatch_RenameSynthesizesUniqueSlug(t *testing.T) {
	im, s := newImportFixture(t)
	ctx := context.Background()

	existing := sampleDefinition()
	existing.ID = "def-existing"
	require.NoError(t, s.Definitions.Create(ctx, existing))

	// Two colliding packages in the same batch must each get a slug
	// distinct from the store and from each other.
	pkgA := packageFor(t, sampleDefinition())
	pkgB := packageFor(t, sampleDefinition())
	result, err := im.ImportBatch(ctx, []*Package{pkgA, pkgB}, PolicyRename)
	require.NoError(t, err)

	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, ActionRenamed, result.Outcomes[0].Action)
	assert.Equal(t, "github-prs-2", result.Outcomes[0].FinalSlug)
	assert.Equal(t, "github-prs-3", result.Outcomes[1].FinalSlug)

	for _, slug := range []string{"github-prs", "github-prs-2", "github-prs-3"} {
		_, err := s.Definitions.GetBySlug(ctx, slug)
		assert.NoError(t, err, "slug %s should exist", slug)
	}
}

func TestImportBatch_SkipLeavesExistingUntouched(t *testing.T) {
	im, s := newImportFixture(t)
	ctx := context.Background()

	existing := sampleDefinition()
	existing.ID = "def-existing"
	existing.Name = "Old name"
	require.NoError(t, s.Definitions.Create(ctx, existing))
	before, err := s.Definitions.GetBySlug(ctx, "github-prs")
	require.NoError(t, err)

	pkg := packageFor(t, sampleDefinition())
	result, err := im.ImportBatch(ctx, []*Package{pkg}, PolicySkip)
	require.NoError(t, err)

	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, ActionSkipped, result.Outcomes[0].Action)
	// Identity remap so layout lookup still resolves.
	assert.Equal(t, "github-prs", result.Remap["github-prs"])

	after, err := s.Definitions.GetBySlug(ctx, "github-prs")
	require.NoError(t, err)
	assert.Equal(t, "Old name", after.Name)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt, "skip must not touch updated_at")
}

func TestImportBatch_InvalidPackageAbortsBeforeWrites(t *testing.T) {
	im, s := newImportFixture(t)
	ctx := context.Background()

	good := packageFor(t, sampleDefinition())
	bad := packageFor(t, sampleDefinition())
	bad.Widget.ServerCode = ""

	_, err := im.ImportBatch(ctx, []*Package{good, bad}, PolicySkip)
	require.Error(t, err)

	defs, err := s.Definitions.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, defs, "validation failure must abort before any write")
}

func TestImportBatch_UnknownPolicy(t *testing.T) {
	im, _ := newImportFixture(t)

	_, err := im.ImportBatch(context.Background(), nil, Policy("merge"))
	assert.ErrorIs(t, err, ErrUnknownPolicy)
}

func TestResolveLayout(t *testing.T) {
	im, s := newImportFixture(t)
	ctx := context.Background()

	existing := sampleDefinition()
	existing.ID = "def-existing"
	require.NoError(t, s.Definitions.Create(ctx, existing))

	pkg := packageFor(t, sampleDefinition())
	result, err := im.ImportBatch(ctx, []*Package{pkg}, PolicyRename)
	require.NoError(t, err)
	require.Equal(t, "github-prs-2", result.Remap["github-prs"])

	entries := []LayoutEntry{
		{Slug: "github-prs", X: 0, Y: 0},            // resolves through remap
		{Slug: "never-imported", X: 4, Y: 0, Width: 2, Height: 2}, // unknown
	}
	created, warnings, err := im.ResolveLayout(ctx, entries, result.Remap)
	require.NoError(t, err)

	require.Len(t, created, 1)
	assert.Equal(t, result.Outcomes[0].DefinitionID, created[0].DefinitionID)
	// Zero-size entries fall back to the definition's default size.
	assert.Equal(t, 4, created[0].Width)
	assert.Equal(t, 2, created[0].Height)

	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "never-imported")

	placed, err := s.Instances.GetByID(ctx, created[0].ID)
	require.NoError(t, err)
	assert.Equal(t, created[0].DefinitionID, placed.DefinitionID)
}

func TestImportTransaction_Lifecycle(t *testing.T) {
	tx, err := NewImportTransaction(PolicySkip, 1, slog.Default().Handler())
	require.NoError(t, err)
	assert.Equal(t, StateCreated, tx.GetState())

	require.NoError(t, tx.BeginValidation())
	require.NoError(t, tx.MarkValidated())
	require.NoError(t, tx.BeginImport())
	require.NoError(t, tx.MarkCompleted(1))
	assert.Equal(t, StateCompleted, tx.GetState())

	// Terminal: no further transitions.
	assert.Error(t, tx.BeginImport())
	assert.Greater(t, tx.GetTotalDuration(), time.Duration(0))
}

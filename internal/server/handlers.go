package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gofrs/uuid/v5"

	"github.com/atlanticdynamic/gridhost/internal/cache"
	"github.com/atlanticdynamic/gridhost/internal/pack"
	"github.com/atlanticdynamic/gridhost/internal/refresh"
	"github.com/atlanticdynamic/gridhost/internal/sandbox"
	"github.com/atlanticdynamic/gridhost/internal/store"
	"github.com/atlanticdynamic/gridhost/internal/widget"
	"github.com/atlanticdynamic/gridhost/internal/widget/render"
)

// Handlers wires the widget subsystem into HTTP endpoints.
type Handlers struct {
	store    *store.Store
	cache    *cache.Service
	queue    *refresh.Queue
	importer *pack.Importer
	sandbox  *sandbox.Sandbox
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string

	state     *render.StateStore
	renderers *rendererCache
}

// NewHandlers creates the handler set.
func NewHandlers(
	st *store.Store,
	cacheSvc *cache.Service,
	queue *refresh.Queue,
	importer *pack.Importer,
	sb *sandbox.Sandbox,
	logger *slog.Logger,
) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		store:     st,
		cache:     cacheSvc,
		queue:     queue,
		importer:  importer,
		sandbox:   sb,
		logger:    logger.With("component", "http"),
		now:       time.Now,
		newID:     func() string { return uuid.Must(uuid.NewV6()).String() },
		state:     render.NewStateStore(),
		renderers: newRendererCache(),
	}
}

// Routes builds the chi router for the widget API.
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/widgets", func(r chi.Router) {
			r.Get("/", h.handleListDefinitions)
			r.Post("/", h.handleCreateDefinition)
			r.Post("/import", h.handleImport)
			r.Post("/validate", h.handleValidatePackage)

			r.Route("/{slug}", func(r chi.Router) {
				r.Get("/", h.handleGetDefinition)
				r.Put("/", h.handleUpdateDefinition)
				r.Delete("/", h.handleDeleteDefinition)
				r.Get("/export", h.handleExport)
				r.Post("/execute", h.handleExecute)

				r.Post("/cache", h.handleCacheWrite)
				r.Delete("/cache", h.handleCacheClear)

				r.Post("/refresh", h.handleRefreshEnqueue)
				r.Get("/refresh", h.handleRefreshPending)
				r.Delete("/refresh", h.handleRefreshProcessed)
			})
		})

		r.Route("/instances", func(r chi.Router) {
			r.Post("/", h.handleCreateInstance)
			r.Route("/{instanceID}", func(r chi.Router) {
				r.Delete("/", h.handleDeleteInstance)
				r.Get("/cache", h.handleCacheRead)
				r.Get("/render", h.handleRenderInstance)
				r.Put("/state", h.handleStateWrite)
			})
		})
	})

	return r
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(); err != nil {
		respondError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- definitions ---

// definitionPayload is the request body for creating or updating a
// definition. Identity and timestamps are always server-assigned.
type definitionPayload struct {
	Slug              string `json:"slug"`
	Name              string `json:"name"`
	Description       string `json:"description"`
	SourceCode        string `json:"source_code"`
	ServerCode        string `json:"server_code"`
	ServerCodeEnabled bool   `json:"server_code_enabled"`

	DefaultWidth  int `json:"default_width"`
	DefaultHeight int `json:"default_height"`
	MinWidth      int `json:"min_width"`
	MinHeight     int `json:"min_height"`

	RefreshIntervalSeconds int `json:"refresh_interval_seconds"`

	Credentials []widget.CredentialRequirement `json:"credentials"`
	Setup       *widget.SetupConfig            `json:"setup"`
	Fetch       widget.FetchConfig             `json:"fetch"`
	Cache       *widget.CacheConfig            `json:"cache"`
	Schema      *widget.DataSchema             `json:"schema"`

	Author  string `json:"author"`
	Enabled *bool  `json:"enabled"`
}

func (p *definitionPayload) toDefinition(id string, now time.Time) *widget.Definition {
	enabled := true
	if p.Enabled != nil {
		enabled = *p.Enabled
	}
	return &widget.Definition{
		ID:                id,
		Slug:              p.Slug,
		Name:              p.Name,
		Description:       p.Description,
		SourceCode:        p.SourceCode,
		ServerCode:        p.ServerCode,
		ServerCodeEnabled: p.ServerCodeEnabled,

		DefaultWidth:  p.DefaultWidth,
		DefaultHeight: p.DefaultHeight,
		MinWidth:      p.MinWidth,
		MinHeight:     p.MinHeight,

		RefreshIntervalSeconds: p.RefreshIntervalSeconds,

		Credentials: p.Credentials,
		Setup:       p.Setup,
		Fetch:       p.Fetch,
		Cache:       p.Cache,
		Schema:      p.Schema,

		Author:    p.Author,
		Enabled:   enabled,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (h *Handlers) handleListDefinitions(w http.ResponseWriter, r *http.Request) {
	defs, err := h.store.Definitions.List(r.Context())
	if err != nil {
		h.internalError(w, "listing definitions", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"widgets": defs})
}

func (h *Handlers) handleCreateDefinition(w http.ResponseWriter, r *http.Request) {
	var payload definitionPayload
	if !decodeBody(w, r, &payload) {
		return
	}

	def := payload.toDefinition(h.newID(), h.now().UTC())
	if err := def.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	exists, err := h.store.Definitions.SlugExists(r.Context(), def.Slug)
	if err != nil {
		h.internalError(w, "checking slug", err)
		return
	}
	if exists {
		respondError(w, http.StatusConflict, "slug already in use: "+def.Slug)
		return
	}
	if err := h.store.Definitions.Create(r.Context(), def); err != nil {
		h.internalError(w, "creating definition", err)
		return
	}
	respondJSON(w, http.StatusCreated, def)
}

func (h *Handlers) handleGetDefinition(w http.ResponseWriter, r *http.Request) {
	def, ok := h.definitionBySlug(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, def)
}

func (h *Handlers) handleUpdateDefinition(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.definitionBySlug(w, r)
	if !ok {
		return
	}

	var payload definitionPayload
	if !decodeBody(w, r, &payload) {
		return
	}
	def := payload.toDefinition(existing.ID, h.now().UTC())
	def.CreatedAt = existing.CreatedAt
	if err := def.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.store.Definitions.Update(r.Context(), def); err != nil {
		h.internalError(w, "updating definition", err)
		return
	}
	respondJSON(w, http.StatusOK, def)
}

func (h *Handlers) handleDeleteDefinition(w http.ResponseWriter, r *http.Request) {
	def, ok := h.definitionBySlug(w, r)
	if !ok {
		return
	}
	if err := h.store.Definitions.Delete(r.Context(), def.ID); err != nil {
		h.internalError(w, "deleting definition", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// --- packages ---

func (h *Handlers) handleExport(w http.ResponseWriter, r *http.Request) {
	def, ok := h.definitionBySlug(w, r)
	if !ok {
		return
	}
	encoded, err := pack.Encode(def, r.URL.Query().Get("author"))
	if err != nil {
		h.internalError(w, "encoding package", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"slug":    def.Slug,
		"package": encoded,
	})
}

func (h *Handlers) handleValidatePackage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Package string `json:"package"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	pkg, err := pack.Decode(body.Package)
	if err != nil {
		respondJSON(w, http.StatusOK, pack.Result{
			Valid:    false,
			Errors:   []string{err.Error()},
			Warnings: []string{},
		})
		return
	}
	respondJSON(w, http.StatusOK, pack.Validate(r.Context(), pkg, nil))
}

func (h *Handlers) handleImport(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Packages []string           `json:"packages"`
		Policy   pack.Policy        `json:"policy"`
		Layout   []pack.LayoutEntry `json:"layout"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if len(body.Packages) == 0 {
		respondError(w, http.StatusBadRequest, "no packages supplied")
		return
	}

	pkgs := make([]*pack.Package, 0, len(body.Packages))
	for i, raw := range body.Packages {
		pkg, err := pack.Decode(raw)
		if err != nil {
			respondErrorDetails(w, http.StatusBadRequest, "package decode failed",
				map[string]any{"index": i, "reason": err.Error()})
			return
		}
		pkgs = append(pkgs, pkg)
	}

	result, err := h.importer.ImportBatch(r.Context(), pkgs, body.Policy)
	if err != nil {
		if errors.Is(err, pack.ErrUnknownPolicy) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	instances, warnings, err := h.importer.ResolveLayout(r.Context(), body.Layout, result.Remap)
	if err != nil {
		h.internalError(w, "resolving layout", err)
		return
	}
	result.Warnings = append(result.Warnings, warnings...)

	respondJSON(w, http.StatusOK, map[string]any{
		"transaction_id":    result.TransactionID,
		"outcomes":          result.Outcomes,
		"remap":             result.Remap,
		"warnings":          result.Warnings,
		"instances_created": len(instances),
	})
}

// --- server code execution ---

func (h *Handlers) handleExecute(w http.ResponseWriter, r *http.Request) {
	def, ok := h.definitionBySlug(w, r)
	if !ok {
		return
	}
	if !def.ServerCodeEnabled || def.ServerCode == "" {
		respondError(w, http.StatusBadRequest, "widget has no server code enabled")
		return
	}

	var body struct {
		Params map[string]any `json:"params"`
	}
	if r.ContentLength > 0 && !decodeBody(w, r, &body) {
		return
	}

	providers := make([]string, 0, len(def.Credentials))
	for _, cr := range def.Credentials {
		providers = append(providers, cr.Provider)
	}
	result := h.sandbox.Execute(r.Context(), def.ServerCode, sandbox.Options{
		WidgetSlug: def.Slug,
		Params:     body.Params,
		Providers:  providers,
	})
	// The sandbox result is the response shape: data or error, never both.
	respondJSON(w, http.StatusOK, result)
}

// --- cache boundary ---

func (h *Handlers) handleCacheRead(w http.ResponseWriter, r *http.Request) {
	instanceID := chi.URLParam(r, "instanceID")
	inst, err := h.store.Instances.GetByID(r.Context(), instanceID)
	if err != nil {
		if errors.Is(err, widget.ErrInstanceNotFound) {
			respondError(w, http.StatusNotFound, "instance not found: "+instanceID)
			return
		}
		h.internalError(w, "loading instance", err)
		return
	}

	if inst.DefinitionID == "" {
		respondError(w, http.StatusBadRequest, "built-in instances have no cache entry")
		return
	}

	def, err := h.store.Definitions.GetByID(r.Context(), inst.DefinitionID)
	if err != nil {
		if errors.Is(err, widget.ErrDefinitionNotFound) {
			respondError(w, http.StatusNotFound, "definition not found for instance")
			return
		}
		h.internalError(w, "loading definition", err)
		return
	}

	res, err := h.cache.Get(r.Context(), instanceID, def)
	if err != nil {
		h.internalError(w, "reading cache", err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *Handlers) handleCacheWrite(w http.ResponseWriter, r *http.Request) {
	def, ok := h.definitionBySlug(w, r)
	if !ok {
		return
	}

	var body struct {
		Data map[string]any `json:"data"`
		Meta struct {
			UpdatedBy string `json:"updated_by"`
		} `json:"_meta"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Data == nil {
		respondError(w, http.StatusBadRequest, "missing data")
		return
	}

	updatedBy := body.Meta.UpdatedBy
	if updatedBy == "" {
		updatedBy = "agent"
	}
	res, err := h.cache.Push(r.Context(), def, body.Data, updatedBy)
	if err != nil {
		var schemaErr *cache.SchemaError
		switch {
		case errors.Is(err, cache.ErrNotWritable):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &schemaErr):
			respondErrorDetails(w, http.StatusUnprocessableEntity,
				"data does not match schema", schemaErr.Fields)
		default:
			h.internalError(w, "writing cache", err)
		}
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *Handlers) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	def, ok := h.definitionBySlug(w, r)
	if !ok {
		return
	}
	n, err := h.cache.Clear(r.Context(), def)
	if err != nil {
		h.internalError(w, "clearing cache", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"cleared": n})
}

// --- refresh boundary ---

func (h *Handlers) handleRefreshEnqueue(w http.ResponseWriter, r *http.Request) {
	def, ok := h.definitionBySlug(w, r)
	if !ok {
		return
	}
	res, err := h.queue.Enqueue(r.Context(), def.Slug)
	if err != nil {
		h.internalError(w, "enqueueing refresh", err)
		return
	}
	respondJSON(w, http.StatusAccepted, res)
}

func (h *Handlers) handleRefreshPending(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	res, err := h.queue.PeekPending(r.Context(), slug)
	if err != nil {
		h.internalError(w, "checking pending refresh", err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *Handlers) handleRefreshProcessed(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if _, err := h.queue.MarkProcessed(r.Context(), slug); err != nil {
		h.internalError(w, "marking refresh processed", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// --- instances ---

func (h *Handlers) handleCreateInstance(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DefinitionSlug string `json:"definition_slug"`
		BuiltinType    string `json:"builtin_type"`
		X              int    `json:"x"`
		Y              int    `json:"y"`
		Width          int    `json:"width"`
		Height         int    `json:"height"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if (body.DefinitionSlug == "") == (body.BuiltinType == "") {
		respondError(w, http.StatusBadRequest,
			"exactly one of definition_slug or builtin_type is required")
		return
	}

	inst := &widget.Instance{
		ID:          h.newID(),
		BuiltinType: body.BuiltinType,
		X:           body.X,
		Y:           body.Y,
		Width:       body.Width,
		Height:      body.Height,
		CreatedAt:   h.now().UTC(),
	}
	if body.DefinitionSlug != "" {
		def, err := h.store.Definitions.GetBySlug(r.Context(), body.DefinitionSlug)
		if err != nil {
			if errors.Is(err, widget.ErrDefinitionNotFound) {
				respondError(w, http.StatusNotFound, "definition not found: "+body.DefinitionSlug)
				return
			}
			h.internalError(w, "loading definition", err)
			return
		}
		inst.DefinitionID = def.ID
		if inst.Width <= 0 {
			inst.Width = def.DefaultWidth
		}
		if inst.Height <= 0 {
			inst.Height = def.DefaultHeight
		}
	}

	if err := h.store.Instances.Create(r.Context(), inst); err != nil {
		h.internalError(w, "creating instance", err)
		return
	}
	respondJSON(w, http.StatusCreated, inst)
}

func (h *Handlers) handleDeleteInstance(w http.ResponseWriter, r *http.Request) {
	instanceID := chi.URLParam(r, "instanceID")
	if err := h.store.Instances.Delete(r.Context(), instanceID); err != nil {
		if errors.Is(err, widget.ErrInstanceNotFound) {
			respondError(w, http.StatusNotFound, "instance not found: "+instanceID)
			return
		}
		h.internalError(w, "deleting instance", err)
		return
	}
	// Widget-local state and the compiled factory share the instance's
	// lifecycle; dropping the row drops both.
	h.state.Dispose(instanceID)
	h.renderers.drop(instanceID)
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// --- helpers ---

func (h *Handlers) definitionBySlug(w http.ResponseWriter, r *http.Request) (*widget.Definition, bool) {
	slug := chi.URLParam(r, "slug")
	def, err := h.store.Definitions.GetBySlug(r.Context(), slug)
	if err != nil {
		if errors.Is(err, widget.ErrDefinitionNotFound) {
			respondError(w, http.StatusNotFound, "widget not found: "+slug)
			return nil, false
		}
		h.internalError(w, "loading definition", err)
		return nil, false
	}
	return def, true
}

func (h *Handlers) internalError(w http.ResponseWriter, action string, err error) {
	h.logger.Error("request failed", "action", action, "error", err)
	respondError(w, http.StatusInternalServerError, "internal error")
}

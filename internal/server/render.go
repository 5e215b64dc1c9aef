package server

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atlanticdynamic/gridhost/internal/widget"
	"github.com/atlanticdynamic/gridhost/internal/widget/render"
)

// rendererCache holds one compiled factory per instance. An entry is
// invalidated when the definition's UpdatedAt moves, so edited source
// recompiles on the next paint.
type rendererCache struct {
	mu      sync.Mutex
	entries map[string]rendererEntry
}

type rendererEntry struct {
	renderer   render.Renderer
	compiledAt time.Time
}

func newRendererCache() *rendererCache {
	return &rendererCache{entries: make(map[string]rendererEntry)}
}

func (c *rendererCache) get(instanceID string, def *widget.Definition, logger *slog.Logger) render.Renderer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[instanceID]; ok && entry.compiledAt.Equal(def.UpdatedAt) {
		return entry.renderer
	}
	renderer := render.NewRenderer(instanceID, def.SourceCode, logger)
	c.entries[instanceID] = rendererEntry{renderer: renderer, compiledAt: def.UpdatedAt}
	return renderer
}

func (c *rendererCache) drop(instanceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, instanceID)
}

// handleRenderInstance composes the cached payload, the definition's setup
// defaults, and the instance's state snapshot into a render context, then
// evaluates the compiled factory. The response always carries a tree; widget
// failures surface as an error-display node, never as an HTTP error.
func (h *Handlers) handleRenderInstance(w http.ResponseWriter, r *http.Request) {
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
		respondError(w, http.StatusBadRequest, "built-in instances are rendered client-side")
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

	cached, err := h.cache.Get(r.Context(), instanceID, def)
	if err != nil {
		h.internalError(w, "reading cache", err)
		return
	}
	data, _ := cached.Data.(map[string]any)

	renderer := h.renderers.get(instanceID, def, h.logger)
	tree := renderer.Render(r.Context(), render.Input{
		Data:   data,
		Config: setupDefaults(def),
		State:  h.state.Snapshot(instanceID),
	})

	respondJSON(w, http.StatusOK, map[string]any{
		"tree":      tree,
		"has_cache": cached.HasCache,
		"freshness": cached.Freshness,
	})
}

// handleStateWrite stores per-instance state values, visible to the widget
// through useWidgetState on the next render.
func (h *Handlers) handleStateWrite(w http.ResponseWriter, r *http.Request) {
	instanceID := chi.URLParam(r, "instanceID")
	if _, err := h.store.Instances.GetByID(r.Context(), instanceID); err != nil {
		if errors.Is(err, widget.ErrInstanceNotFound) {
			respondError(w, http.StatusNotFound, "instance not found: "+instanceID)
			return
		}
		h.internalError(w, "loading instance", err)
		return
	}

	var body map[string]any
	if !decodeBody(w, r, &body) {
		return
	}
	if len(body) == 0 {
		respondError(w, http.StatusBadRequest, "missing state values")
		return
	}
	for key, value := range body {
		h.state.Set(instanceID, key, value)
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// setupDefaults collects the default values declared by the definition's
// setup form; they seed useConfig until real setup values are stored.
func setupDefaults(def *widget.Definition) map[string]any {
	if def.Setup == nil {
		return nil
	}
	out := make(map[string]any, len(def.Setup.Fields))
	for _, field := range def.Setup.Fields {
		if field.Default != "" {
			out[field.Key] = field.Default
		}
	}
	return out
}

// Package render builds the execution context for compiled widget factories
// and turns them into renderable component trees.
//
// A factory is compiled once per widget instance and evaluated on every
// paint. Every capability the factory sees is passed explicitly through the
// evaluation context under an enumerated namespace; nothing is captured from
// host scope. Rendering is synchronous and has no timeout: an infinite loop
// in widget code blocks the render path. That limitation is accepted here
// and bounded instead on the server-code side.
package render

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/atlanticdynamic/gridhost/internal/widget/transpile"
	"github.com/robbyt/go-polyscript/engines/risor"
	"github.com/robbyt/go-polyscript/platform"
	"github.com/robbyt/go-polyscript/platform/constants"
	"github.com/robbyt/go-polyscript/platform/data"
	"github.com/robbyt/go-polyscript/platform/script/loader"
)

// Node is one element of a widget's render tree.
type Node = map[string]any

// Input carries the per-paint values injected into the factory's hooks.
type Input struct {
	// Data is what useData() returns: the instance's cached payload.
	Data map[string]any
	// Config is what useConfig(key) reads: the instance's setup values.
	Config map[string]any
	// State is what useWidgetState(key, fallback) reads: the per-instance
	// state snapshot.
	State map[string]any
}

// Renderer produces a render tree for one widget instance. Render never
// returns an error: every failure mode yields an error-display node so the
// host render path cannot throw.
type Renderer interface {
	Render(ctx context.Context, in Input) Node
}

// ErrorNode builds the fallback error-display component.
func ErrorNode(message string) Node {
	return Node{
		"kind":     "error",
		"props":    map[string]any{"message": message},
		"children": []any{},
	}
}

// factoryRenderer evaluates a compiled factory on each call.
type factoryRenderer struct {
	instanceID string
	evaluator  platform.Evaluator
	logger     *slog.Logger
}

// errorRenderer is returned when compilation already failed; it renders the
// same error node forever.
type errorRenderer struct {
	message string
}

func (r *errorRenderer) Render(context.Context, Input) Node {
	return ErrorNode(r.message)
}

// NewRenderer transpiles and compiles widget source for one instance.
// Construction failures are converted into a renderer that displays the
// error instead of being returned as an error.
func NewRenderer(instanceID, source string, logger *slog.Logger) Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("instance_id", instanceID)

	factory, err := transpile.Transpile(source)
	if err != nil {
		logger.Warn("widget transpile failed", "error", err)
		return &errorRenderer{message: err.Error()}
	}

	scriptLoader, err := loader.NewFromString(factory)
	if err != nil {
		logger.Warn("widget loader creation failed", "error", err)
		return &errorRenderer{message: fmt.Sprintf("failed to load widget factory: %v", err)}
	}

	evaluator, err := risor.FromRisorLoader(logger.Handler(), scriptLoader)
	if err != nil {
		logger.Warn("widget compilation failed", "error", err)
		return &errorRenderer{message: fmt.Sprintf("failed to compile widget: %v", err)}
	}

	return &factoryRenderer{
		instanceID: instanceID,
		evaluator:  evaluator,
		logger:     logger,
	}
}

func (r *factoryRenderer) Render(ctx context.Context, in Input) Node {
	capabilities := map[string]any{
		"config": orEmpty(in.Config),
		"data":   orEmpty(in.Data),
		"state":  orEmpty(in.State),
	}

	contextProvider := data.NewContextProvider(constants.EvalData)
	enrichedCtx, err := contextProvider.AddDataToContext(ctx, capabilities)
	if err != nil {
		r.logger.Warn("failed to inject render data", "error", err)
		return ErrorNode(fmt.Sprintf("failed to prepare widget data: %v", err))
	}

	result, err := r.evaluator.Eval(enrichedCtx)
	if err != nil {
		r.logger.Warn("widget evaluation failed", "error", err)
		return ErrorNode(fmt.Sprintf("widget failed: %v", err))
	}

	node, ok := result.Interface().(map[string]any)
	if !ok {
		r.logger.Warn("widget returned non-component value",
			"type", fmt.Sprintf("%T", result.Interface()))
		return ErrorNode("widget did not return a component")
	}
	return node
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

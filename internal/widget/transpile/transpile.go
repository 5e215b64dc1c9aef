// Package transpile converts widget source text into an executable factory
// script. It is a pure text transform: no execution, no side effects, and
// identical input always yields identical output.
//
// Widget authors write Risor code that defines a function literally named
// Widget, composed from an enumerated set of UI primitives and data hooks.
// Transpile wraps that source with a binding preamble (which also shadows
// host globals) and an invocation trailer, producing one compilable script
// whose evaluation result is the widget's render tree.
package transpile

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/atlanticdynamic/gridhost/internal/scriptscan"
)

// BindingSetVersion identifies the enumerated capability set compiled into
// the factory preamble. Old factories keep working against the binding
// names of the version they were compiled with.
const BindingSetVersion = 1

// EntrySymbol is the function widget source must define.
const EntrySymbol = "Widget"

// UIPrimitives is the enumerated set of render-tree constructors bound into
// every factory. Each takes (props, children) and returns a node.
var UIPrimitives = []string{"card", "stack", "list", "badge", "progress", "stat"}

// Icons is the fixed icon set widgets may reference by name.
var Icons = []string{
	"activity", "alert", "arrow-down", "arrow-up", "calendar", "chart",
	"check", "clock", "cloud", "globe", "heart", "mail", "star", "zap",
}

// hostGlobals are page-environment names shadowed to nil so compiled widget
// code cannot reach them even if referenced literally.
var hostGlobals = []string{
	"window", "document", "navigator",
	"localStorage", "sessionStorage",
	"WebSocket", "XMLHttpRequest",
}

// ErrNoWidgetSymbol is returned when the source never defines Widget.
type ErrNoWidgetSymbol struct{}

func (ErrNoWidgetSymbol) Error() string {
	return fmt.Sprintf("widget source must define a function named %s", EntrySymbol)
}

// widgetDefRe matches a Risor definition of the Widget symbol: either a
// declaration (function Widget(...)) or a binding (let Widget = ... /
// Widget = ...). The trailing [^=] keeps comparisons like Widget == nil
// from counting as a definition.
var widgetDefRe = regexp.MustCompile(`(?m)(^|[\s;{])(function\s+Widget\s*\(|(let\s+|const\s+)?Widget\s*=[^=])`)

// Transpile wraps widget source into a factory script. It rejects source
// that does not define the Widget symbol; it never executes anything.
func Transpile(source string) (string, error) {
	if !widgetDefRe.MatchString(scriptscan.StripLiterals(source)) {
		return "", ErrNoWidgetSymbol{}
	}

	var b strings.Builder
	b.WriteString(preamble())
	b.WriteString("\n// --- widget source ---\n")
	b.WriteString(source)
	b.WriteString("\n")
	b.WriteString(trailer())
	return b.String(), nil
}

// preamble binds every capability to an explicit name and shadows host
// globals. All runtime values arrive through the ctx namespaces the render
// context injects; nothing is closed over from ambient scope.
func preamble() string {
	var b strings.Builder
	fmt.Fprintf(&b, "// gridhost widget factory, binding set v%d\n", BindingSetVersion)

	for _, name := range hostGlobals {
		fmt.Fprintf(&b, "let %s = nil\n", name)
	}
	b.WriteString("\n")

	b.WriteString("let __config = ctx.get(\"config\", {})\n")
	b.WriteString("let __data = ctx.get(\"data\", {})\n")
	b.WriteString("let __state = ctx.get(\"state\", {})\n\n")

	b.WriteString("let useData = function() { return __data }\n")
	b.WriteString("let useConfig = function(key) { return __config.get(key) }\n")
	b.WriteString("let useWidgetState = function(key, fallback) { return __state.get(key, fallback) }\n\n")

	b.WriteString("let __node = function(kind, props, children) {\n")
	b.WriteString("    return {\"kind\": kind, \"props\": props, \"children\": children}\n")
	b.WriteString("}\n")
	for _, name := range UIPrimitives {
		fmt.Fprintf(&b, "let %s = function(props, children) { return __node(%q, props, children) }\n", name, name)
	}
	b.WriteString("let icon = function(name) { return {\"kind\": \"icon\", \"props\": {\"name\": name}, \"children\": []} }\n")
	return b.String()
}

// trailer verifies the factory produced a callable Widget and invokes it.
// The script's final expression is the render tree.
func trailer() string {
	return fmt.Sprintf(`// --- factory trailer ---
if (type(%[1]s) != "function") {
    throw error("%[1]s is not callable")
}
%[1]s()
`, EntrySymbol)
}

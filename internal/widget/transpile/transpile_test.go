package transpile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalSource = `function Widget() {
    return stat({"label": "Stars", "value": useData().get("stars", 0)}, [])
}`

func TestTranspile(t *testing.T) {
	t.Parallel()

	out, err := Transpile(minimalSource)
	require.NoError(t, err)

	// The factory embeds the user source verbatim.
	assert.Contains(t, out, minimalSource)

	// Capability bindings are enumerated by name.
	for _, name := range UIPrimitives {
		assert.Contains(t, out, "let "+name+" = function(props, children)")
	}
	assert.Contains(t, out, "let useData = function()")
	assert.Contains(t, out, "let useConfig = function(key)")
	assert.Contains(t, out, "let useWidgetState = function(key, fallback)")

	// Host globals are shadowed before any user code runs.
	for _, g := range []string{"window", "document", "localStorage", "WebSocket"} {
		assert.Contains(t, out, "let "+g+" = nil")
	}

	// The trailer invokes the entry symbol.
	assert.Contains(t, out, "Widget()")
}

func TestTranspile_Deterministic(t *testing.T) {
	t.Parallel()

	a, err := Transpile(minimalSource)
	require.NoError(t, err)
	b, err := Transpile(minimalSource)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestTranspile_RejectsMissingWidget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		source string
	}{
		{"empty", ""},
		{"other symbol", "function Gadget() { return nil }"},
		{"widget only in string", `let x = "function Widget() {}"`},
		{"widget only in comment", "// function Widget() { return nil }\nlet x = 1"},
		{"lowercase widget", "function widget() { return nil }"},
		{"comparison is not a definition", "let x = Widget == nil"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Transpile(tt.source)
			require.Error(t, err)
			assert.ErrorAs(t, err, &ErrNoWidgetSymbol{})
		})
	}
}

func TestTranspile_AcceptsBindingForm(t *testing.T) {
	t.Parallel()

	out, err := Transpile(`let Widget = function() { return card({}, []) }`)
	require.NoError(t, err)
	assert.Contains(t, out, "let Widget = function()")
}

func TestTranspile_ShadowsPrecedeUserSource(t *testing.T) {
	t.Parallel()

	out, err := Transpile(minimalSource)
	require.NoError(t, err)

	shadow := strings.Index(out, "let window = nil")
	user := strings.Index(out, "function Widget()")
	require.GreaterOrEqual(t, shadow, 0)
	require.Greater(t, user, shadow, "shadowing must run before user code")
}

func TestVersionedBindingSet(t *testing.T) {
	t.Parallel()

	out, err := Transpile(minimalSource)
	require.NoError(t, err)
	assert.Contains(t, out, "binding set v1")
	assert.Equal(t, 1, BindingSetVersion)
}

package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCode_RejectsForbiddenPatterns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		code        string
		wantPattern string
	}{
		{"require call", `require('fs')`, "require"},
		{"import statement", `import os`, "import"},
		{"eval call", `eval("1+1")`, "eval"},
		{"new Function", `f := new Function("return 1")`, "new Function"},
		{"process access", `x := process.env`, "process"},
		{"Buffer", `Buffer.from("x")`, "Buffer"},
		{"fs access", `fs.readFile("/etc/passwd")`, "fs"},
		{"child_process", `child_process.execSync("ls")`, "child_process"},
		{"exec call", `exec("rm -rf /")`, "exec"},
		{"spawn call", `spawn("sh")`, "spawn"},
		{"global escape", `global.leak = 1`, "global"},
		{"globalThis escape", `globalThis.leak = 1`, "globalThis"},
		{"__dirname", `p := __dirname`, "__dirname"},
		{"__filename", `p := __filename`, "__filename"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verr := ValidateCode(tt.code)
			require.NotNil(t, verr)
			assert.Equal(t, tt.wantPattern, verr.Pattern)
			assert.ErrorIs(t, verr, ErrForbiddenPattern)
		})
	}
}

func TestValidateCode_IgnoresLiteralsAndComments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		code string
	}{
		{"pattern in string", `msg := "this mentions require( and eval( freely"`},
		{"pattern in line comment", "x := 1 // require('fs') would be bad\nx"},
		{"pattern in block comment", "/* process.exit() */\nx := 1"},
		{"pattern in single quotes", `msg := 'child_process'`},
		{"clean fetch code", `resp := fetch("https://api.example.com/data"); resp.json()`},
		{"identifier containing token", `exporter := 1; exporter`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, ValidateCode(tt.code))
		})
	}
}

func TestValidateCode_StringCannotMaskCode(t *testing.T) {
	t.Parallel()

	// The string literal ends and real forbidden code follows.
	verr := ValidateCode(`msg := "harmless"; eval("1")`)
	require.NotNil(t, verr)
	assert.Equal(t, "eval", verr.Pattern)
}

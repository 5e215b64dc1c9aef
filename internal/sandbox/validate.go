package sandbox

import (
	"regexp"

	"github.com/atlanticdynamic/gridhost/internal/scriptscan"
)

// denyPattern pairs a display name with its match expression. Patterns are
// scanned against code with string literals and comments stripped, so text
// that merely mentions a forbidden word is not a match and a literal cannot
// mask one.
type denyPattern struct {
	name string
	re   *regexp.Regexp
}

// denyList screens the classic escape hatches: module loading, dynamic
// evaluation, process/filesystem access, and global-object escape. This is
// lexical screening, not a security boundary; obfuscated or reflective
// escapes are out of its reach and the surrounding isolation carries the
// real weight.
var denyList = []denyPattern{
	{"require", regexp.MustCompile(`\brequire\s*\(`)},
	{"import", regexp.MustCompile(`\bimport\b`)},
	{"eval", regexp.MustCompile(`\beval\s*\(`)},
	{"new Function", regexp.MustCompile(`\bnew\s+Function\b`)},
	{"process", regexp.MustCompile(`\bprocess\b`)},
	{"Buffer", regexp.MustCompile(`\bBuffer\b`)},
	{"fs", regexp.MustCompile(`\bfs\s*\.`)},
	{"child_process", regexp.MustCompile(`\bchild_process\b`)},
	{"exec", regexp.MustCompile(`\bexec\s*\(`)},
	{"spawn", regexp.MustCompile(`\bspawn\s*\(`)},
	{"global", regexp.MustCompile(`\bglobal\b`)},
	{"globalThis", regexp.MustCompile(`\bglobalThis\b`)},
	{"__dirname", regexp.MustCompile(`__dirname`)},
	{"__filename", regexp.MustCompile(`__filename`)},
}

// ValidateCode statically screens server code. It returns a
// *ValidationError naming the first matching deny-list pattern, or nil if
// the code passes. It never executes anything.
func ValidateCode(code string) *ValidationError {
	stripped := scriptscan.StripLiterals(code)
	for _, p := range denyList {
		if p.re.MatchString(stripped) {
			return &ValidationError{Pattern: p.name}
		}
	}
	return nil
}

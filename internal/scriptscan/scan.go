// Package scriptscan provides lexical helpers for screening user-authored
// script text before it is compiled or executed.
package scriptscan

// StripLiterals blanks out string literals and comments, preserving line
// structure. Scanners run on the stripped text so tokens that merely appear
// inside a string or comment are neither matched nor able to mask a match.
//
// Handles //-line and /* */ block comments, plus single-, double-, and
// backtick-quoted strings with backslash escapes (no escapes in backticks).
func StripLiterals(src string) string {
	out := []rune(src)
	i := 0
	n := len(out)
	for i < n {
		switch {
		case out[i] == '/' && i+1 < n && out[i+1] == '/':
			for i < n && out[i] != '\n' {
				out[i] = ' '
				i++
			}
		case out[i] == '/' && i+1 < n && out[i+1] == '*':
			for i < n {
				if out[i] == '*' && i+1 < n && out[i+1] == '/' {
					out[i], out[i+1] = ' ', ' '
					i += 2
					break
				}
				if out[i] != '\n' {
					out[i] = ' '
				}
				i++
			}
		case out[i] == '"' || out[i] == '\'' || out[i] == '`':
			quote := out[i]
			out[i] = ' '
			i++
			for i < n {
				if out[i] == '\\' && i+1 < n && quote != '`' {
					out[i] = ' '
					if out[i+1] != '\n' {
						out[i+1] = ' '
					}
					i += 2
					continue
				}
				if out[i] == quote {
					out[i] = ' '
					i++
					break
				}
				if out[i] != '\n' {
					out[i] = ' '
				}
				i++
			}
		default:
			i++
		}
	}
	return string(out)
}

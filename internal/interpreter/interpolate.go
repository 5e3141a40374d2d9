package interpreter

import (
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// Interpolate replaces every {{name}} token whose name lookup resolves.
// Tokens of unknown names are kept verbatim.
func Interpolate(content string, lookup func(name string) (any, bool)) string {
	if !strings.Contains(content, "{{") {
		return content
	}

	return tokenPattern.ReplaceAllStringFunc(content, func(token string) string {
		name := tokenPattern.FindStringSubmatch(token)[1]
		v, ok := lookup(name)
		if !ok {
			return token
		}
		return stringify(v)
	})
}

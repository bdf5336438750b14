package compiler

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// ErrUndefinedTemplateVar is returned by renderStrict when a template
// references a variable not present in the supplied vars map.
var ErrUndefinedTemplateVar = errors.New("compiler: undefined template variable")

var templateVarRE = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// renderTemplate renders src's `{{ var }}`/`{{var}}` markers against
// vars. Strict mode is tried first; if it fails and lenient is true, the
// failure is swallowed and the fallback (leave-unknown-markers-untouched)
// rendering is returned instead.
func renderTemplate(src string, vars map[string]string, lenient bool) (string, error) {
	out, err := renderStrict(src, vars)
	if err == nil {
		return out, nil
	}
	if !lenient {
		return "", err
	}
	return renderFallback(src, vars), nil
}

// renderStrict substitutes every `{{ var }}` marker, failing with
// ErrUndefinedTemplateVar on the first marker whose variable isn't in
// vars.
func renderStrict(src string, vars map[string]string) (string, error) {
	var outerErr error
	result := templateVarRE.ReplaceAllStringFunc(src, func(match string) string {
		if outerErr != nil {
			return match
		}
		name := templateVarRE.FindStringSubmatch(match)[1]
		val, ok := vars[name]
		if !ok {
			outerErr = errors.Wrapf(ErrUndefinedTemplateVar, "%q", name)
			return match
		}
		return val
	})
	if outerErr != nil {
		return "", outerErr
	}
	return result, nil
}

// renderFallback substitutes every known `{{ var }}` marker and leaves
// unknown ones untouched in the output.
func renderFallback(src string, vars map[string]string) string {
	return templateVarRE.ReplaceAllStringFunc(src, func(match string) string {
		name := templateVarRE.FindStringSubmatch(match)[1]
		if val, ok := vars[name]; ok {
			return val
		}
		return match
	})
}

// stripBraces is a small helper kept for callers that need the bare
// variable name out of a "{{ name }}" token without a regex match in
// hand.
func stripBraces(token string) string {
	inner := strings.TrimSpace(token)
	inner = strings.TrimPrefix(inner, "{{")
	inner = strings.TrimSuffix(inner, "}}")
	return strings.TrimSpace(inner)
}

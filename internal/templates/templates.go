package templates

import (
	"regexp"
	"strings"
)

// NamePlaceholder is replaced by the recipient's first name in birthday messages.
const NamePlaceholder = "name"

var placeholderRe = regexp.MustCompile(`\{\$([A-Za-z_][A-Za-z0-9_]*)\}`)

// Placeholders returns the distinct placeholder names in order of first appearance.
func Placeholders(body string) []string {
	var names []string
	seen := make(map[string]struct{})
	for _, m := range placeholderRe.FindAllStringSubmatch(body, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		names = append(names, m[1])
	}
	return names
}

// RenderPositional binds values to placeholders in order of first appearance,
// the way the gateway applies personalized destination values. A placeholder
// without a value is left untouched.
func RenderPositional(body string, values []string) string {
	names := Placeholders(body)
	bound := make(map[string]string, len(names))
	for i, name := range names {
		if i >= len(values) {
			break
		}
		bound[name] = values[i]
	}
	return Render(body, bound)
}

// Render replaces named placeholders. Unknown placeholders are left untouched.
func Render(body string, values map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(body, func(m string) string {
		name := m[2 : len(m)-1]
		if v, ok := values[name]; ok {
			return v
		}
		return m
	})
}

// RenderName fills {$name}, using fallback when firstName is blank.
func RenderName(body, firstName, fallback string) string {
	firstName = strings.TrimSpace(firstName)
	if firstName == "" {
		firstName = fallback
	}
	return Render(body, map[string]string{NamePlaceholder: firstName})
}

package inject

import (
	"html"
	"regexp"
	"sort"
	"strings"
)

// placeholderPattern matches {{content.<field>}} markers in a skeleton.
var placeholderPattern = regexp.MustCompile(`\{\{content\.([a-zA-Z0-9_]+)\}\}`)

// Placeholders returns the unique field names referenced by the skeleton, in
// first-occurrence order.
func Placeholders(skeleton string) []string {
	seen := map[string]bool{}
	var fields []string
	for _, match := range placeholderPattern.FindAllStringSubmatch(skeleton, -1) {
		name := match[1]
		if !seen[name] {
			seen[name] = true
			fields = append(fields, name)
		}
	}
	return fields
}

// Coverage reports the mismatch between a template's placeholders and an
// extracted content model. Neither direction is fatal; the caller decides
// whether to warn.
type Coverage struct {
	Missing []string
	Extra   []string
}

// Validate compares template placeholders against the content model.
func Validate(skeleton string, model ContentModel) Coverage {
	var cov Coverage
	wanted := map[string]bool{}
	for _, field := range Placeholders(skeleton) {
		wanted[field] = true
		if _, ok := model.Fields[field]; !ok {
			cov.Missing = append(cov.Missing, field)
		}
	}
	for field := range model.Fields {
		if !wanted[field] {
			cov.Extra = append(cov.Extra, field)
		}
	}
	sort.Strings(cov.Extra)
	return cov
}

// Render substitutes every placeholder with the extracted value. Values are
// HTML-escaped unless the field is declared raw-HTML-safe. A placeholder
// with no matching field renders as an empty string, never as the literal
// token.
func Render(skeleton string, model ContentModel) string {
	return placeholderPattern.ReplaceAllStringFunc(skeleton, func(token string) string {
		name := placeholderPattern.FindStringSubmatch(token)[1]
		value, ok := model.Fields[name]
		if !ok {
			return ""
		}
		if value.Raw {
			return value.Text
		}
		return html.EscapeString(value.Text)
	})
}

// displayName prettifies a snake_case or kebab-case key for human display.
func displayName(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	key = strings.NewReplacer("_", " ", "-", " ").Replace(key)
	return titleCaser.String(key)
}

package inject

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"server/internal/domain"
)

// FieldValue is one extracted content field. Raw values bypass the HTML
// escaping in Render because they already carry markup built here.
type FieldValue struct {
	Text string
	Raw  bool
}

// ContentModel is the normalized per-angle content fed into a template.
type ContentModel struct {
	Fields map[string]FieldValue
}

type fieldKind int

const (
	kindText fieldKind = iota
	kindList
	kindHTML
	kindURL
)

// FieldSpec declares one semantic field of an advertorial type: where to
// find it in an angle and how to render it.
type FieldSpec struct {
	Name     string
	Aliases  []string
	Required bool
	Kind     fieldKind
}

// fieldSpecsByType statically declares the content model per advertorial
// type. Required fields that are absent extract as empty values rather than
// aborting the candidate.
var fieldSpecsByType = map[domain.AdvertorialType][]FieldSpec{
	domain.AdvertorialTypeListicle: {
		{Name: "headline", Aliases: []string{"title", "hook"}, Required: true},
		{Name: "subheadline", Aliases: []string{"sub_headline", "subtitle", "subhead"}},
		{Name: "intro", Aliases: []string{"introduction", "opening"}},
		{Name: "items", Aliases: []string{"bullets", "list_items", "points", "reasons"}, Required: true, Kind: kindList},
		{Name: "testimonial", Aliases: []string{"quote", "review", "social_proof"}},
		{Name: "cta", Aliases: []string{"cta_label", "call_to_action", "button_text"}, Required: true},
		{Name: "cta_url", Aliases: []string{"cta_link", "button_url", "offer_url"}, Kind: kindURL},
		{Name: "image_url", Aliases: []string{"image", "hero_image", "main_image"}, Kind: kindURL},
	},
	domain.AdvertorialTypeAdvertorial: {
		{Name: "headline", Aliases: []string{"title", "hook"}, Required: true},
		{Name: "subheadline", Aliases: []string{"sub_headline", "subtitle", "subhead"}},
		{Name: "body", Aliases: []string{"article", "content_body", "story", "copy"}, Required: true, Kind: kindHTML},
		{Name: "author", Aliases: []string{"byline", "writer"}},
		{Name: "testimonial", Aliases: []string{"quote", "review", "social_proof"}},
		{Name: "cta", Aliases: []string{"cta_label", "call_to_action", "button_text"}, Required: true},
		{Name: "cta_url", Aliases: []string{"cta_link", "button_url", "offer_url"}, Kind: kindURL},
		{Name: "image_url", Aliases: []string{"image", "hero_image", "main_image"}, Kind: kindURL},
	},
}

// FieldSpecs exposes the declared field set for an advertorial type.
func FieldSpecs(t domain.AdvertorialType) []FieldSpec {
	return fieldSpecsByType[t]
}

// ExtractContent builds the content model for one candidate angle. It only
// errors when the advertorial type itself is unknown; missing fields
// degrade to empty values.
func ExtractContent(t domain.AdvertorialType, candidate Candidate) (ContentModel, error) {
	specs, ok := fieldSpecsByType[t]
	if !ok {
		return ContentModel{}, fmt.Errorf("inject: no extraction rules for type %q", t)
	}
	model := ContentModel{Fields: make(map[string]FieldValue, len(specs))}
	for _, spec := range specs {
		value, found := lookupField(candidate.Fields, spec)
		if !found {
			if spec.Required {
				model.Fields[spec.Name] = FieldValue{}
			}
			continue
		}
		model.Fields[spec.Name] = value
	}
	return model, nil
}

func lookupField(fields map[string]any, spec FieldSpec) (FieldValue, bool) {
	keys := append([]string{spec.Name}, spec.Aliases...)
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok || raw == nil {
			continue
		}
		if value, ok := coerceField(raw, spec.Kind); ok {
			return value, true
		}
	}
	return FieldValue{}, false
}

// coerceField normalizes the heterogeneous value shapes the pipeline emits.
func coerceField(raw any, kind fieldKind) (FieldValue, bool) {
	switch kind {
	case kindList:
		return coerceList(raw)
	case kindHTML:
		if text, ok := scalarText(raw); ok {
			return FieldValue{Text: text, Raw: true}, true
		}
	case kindURL:
		if text, ok := scalarText(raw); ok {
			text = strings.TrimSpace(text)
			if text == "" {
				return FieldValue{}, false
			}
			return FieldValue{Text: text}, true
		}
	default:
		if text, ok := scalarText(raw); ok {
			return FieldValue{Text: text}, true
		}
	}
	return FieldValue{}, false
}

// coerceList renders a list field as <li> items. Individual items are
// escaped here, so the joined markup is marked raw-safe.
func coerceList(raw any) (FieldValue, bool) {
	items, ok := raw.([]any)
	if !ok {
		// A single scalar still renders as a one-item list.
		if text, isScalar := scalarText(raw); isScalar && text != "" {
			return FieldValue{Text: "<li>" + html.EscapeString(text) + "</li>", Raw: true}, true
		}
		return FieldValue{}, false
	}
	var b strings.Builder
	count := 0
	for _, item := range items {
		text, isScalar := scalarText(item)
		if !isScalar || text == "" {
			continue
		}
		b.WriteString("<li>")
		b.WriteString(html.EscapeString(text))
		b.WriteString("</li>")
		count++
	}
	if count == 0 {
		return FieldValue{}, false
	}
	return FieldValue{Text: b.String(), Raw: true}, true
}

// scalarText flattens strings, numbers, bools and the common {text|value}
// wrapper objects into display text.
func scalarText(raw any) (string, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	case map[string]any:
		for _, key := range []string{"text", "value", "content"} {
			if inner, ok := v[key]; ok {
				if text, isScalar := scalarText(inner); isScalar {
					return text, true
				}
			}
		}
	}
	return "", false
}

package inject

import (
	"encoding/json"
	"sort"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.Und)

// Candidate is one normalized angle pulled out of the raw pipeline payload.
type Candidate struct {
	// Name is the human label hint found alongside the angle, "" when the
	// payload carries none.
	Name   string
	Fields map[string]any
}

// anglePaths are the accessor strategies tried in order against the raw
// payload; the first one yielding a non-empty collection wins. New payload
// shapes are added here, not as branching code.
var anglePaths = [][]string{
	{"angles"},
	{"results", "angles"},
	{"result", "angles"},
	{"data", "angles"},
	{"output", "angles"},
	{"results"},
	{"output"},
	{"data"},
}

// nameKeys are the keys probed, in order, for an angle's display name.
var nameKeys = []string{"angle_name", "angleName", "name", "title", "persona", "label"}

// DiscoverAngles locates the angle collection inside the raw payload and
// normalizes it to an ordered slice. A zero-length return is a valid
// outcome, not an error.
func DiscoverAngles(raw json.RawMessage) []Candidate {
	if len(raw) == 0 {
		return nil
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	// A bare array at the top level is already the collection.
	if list, ok := doc.([]any); ok {
		return candidatesFromList(list)
	}
	root, ok := doc.(map[string]any)
	if !ok {
		return nil
	}
	for _, path := range anglePaths {
		if candidates := candidatesAtPath(root, path); len(candidates) > 0 {
			return candidates
		}
	}
	return nil
}

func candidatesAtPath(root map[string]any, path []string) []Candidate {
	var current any = root
	for _, key := range path {
		node, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = node[key]
		if !ok {
			return nil
		}
	}
	switch value := current.(type) {
	case []any:
		return candidatesFromList(value)
	case map[string]any:
		return candidatesFromObject(value)
	default:
		return nil
	}
}

func candidatesFromList(list []any) []Candidate {
	var out []Candidate
	for _, item := range list {
		if c, ok := candidateFromValue(item, ""); ok {
			out = append(out, c)
		}
	}
	return out
}

// candidatesFromObject treats an object as a collection of its values.
// Source objects are unordered, so the candidate order is defined as the
// ascending sort of the keys.
func candidatesFromObject(obj map[string]any) []Candidate {
	keys := make([]string, 0, len(obj))
	for key := range obj {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var out []Candidate
	for _, key := range keys {
		if c, ok := candidateFromValue(obj[key], displayName(key)); ok {
			out = append(out, c)
		}
	}
	return out
}

func candidateFromValue(value any, nameHint string) (Candidate, bool) {
	fields, ok := value.(map[string]any)
	if !ok || len(fields) == 0 {
		return Candidate{}, false
	}
	// Some shapes wrap the fields one level down: {name: ..., content: {...}}.
	if inner, ok := fields["content"].(map[string]any); ok && len(inner) > 0 {
		name := candidateName(fields, nameHint)
		return Candidate{Name: name, Fields: inner}, true
	}
	return Candidate{Name: candidateName(fields, nameHint), Fields: fields}, true
}

func candidateName(fields map[string]any, hint string) string {
	for _, key := range nameKeys {
		if v, ok := fields[key].(string); ok && v != "" {
			return v
		}
	}
	return hint
}

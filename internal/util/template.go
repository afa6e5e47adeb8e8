package util

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

var funcs = template.FuncMap{
	"default": func(defaultVal any, val any) any {
		if val == nil || val == "" {
			return defaultVal
		}
		return val
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"title": func(s string) string {
		if len(s) == 0 {
			return s
		}
		return strings.ToUpper(string(s[0])) + strings.ToLower(s[1:])
	},
	"join": func(sep string, items []any) string {
		strItems := make([]string, len(items))
		for i, item := range items {
			strItems[i] = fmt.Sprintf("%v", item)
		}
		return strings.Join(strItems, sep)
	},
}

// HasTemplate reports whether text contains template markers.
func HasTemplate(text string) bool { return strings.Contains(text, "{{") }

// RenderTemplate replaces template variables using Go's text/template package.
// Missing keys render as empty strings.
func RenderTemplate(text string, state map[string]any) (string, error) {
	if !HasTemplate(text) { // fast path: no template markers
		return text, nil
	}

	tmpl, err := template.New("message").Funcs(funcs).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, state); err != nil {
		return "", err
	}

	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}

// RenderValue renders every string leaf of a decoded JSON/YAML tree.
func RenderValue(v any, state map[string]any) (any, error) {
	switch t := v.(type) {
	case string:
		return RenderTemplate(t, state)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			r, err := RenderValue(val, state)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			r, err := RenderValue(val, state)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	}
	return v, nil
}

// ContainsTemplate reports whether any string leaf of v has template markers.
func ContainsTemplate(v any) bool {
	switch t := v.(type) {
	case string:
		return HasTemplate(t)
	case map[string]any:
		for _, val := range t {
			if ContainsTemplate(val) {
				return true
			}
		}
	case []any:
		for _, val := range t {
			if ContainsTemplate(val) {
				return true
			}
		}
	}
	return false
}

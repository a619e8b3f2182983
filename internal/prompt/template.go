// Package prompt holds the coaching persona and every text template the
// coaching pipeline renders: instructions sent to the model and the
// per-section athlete context templates.
package prompt

import "strings"

// NotSpecified is rendered for a placeholder with neither a value nor a default
const NotSpecified = "Not specified"

// Template is a text with {{name}} placeholders and per-placeholder defaults
type Template struct {
	Name     string
	Text     string
	Defaults map[string]string
}

// Render substitutes placeholders in a single left-to-right pass. Substituted
// values are never rescanned, so a value containing "{{x}}" stays literal.
// An empty value counts as not supplied.
func (t Template) Render(values map[string]string) string {
	var b strings.Builder
	b.Grow(len(t.Text))

	rest := t.Text
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[open+2:], "}}")
		if end < 0 {
			b.WriteString(rest)
			break
		}
		name := strings.TrimSpace(rest[open+2 : open+2+end])
		if !isPlaceholderName(name) {
			// not ours, keep the braces and move past them
			b.WriteString(rest[:open+2])
			rest = rest[open+2:]
			continue
		}
		b.WriteString(rest[:open])
		b.WriteString(t.value(name, values))
		rest = rest[open+2+end+2:]
	}
	return b.String()
}

func (t Template) value(name string, values map[string]string) string {
	if v := values[name]; v != "" {
		return v
	}
	if d, ok := t.Defaults[name]; ok && d != "" {
		return d
	}
	return NotSpecified
}

func isPlaceholderName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// Placeholders lists the placeholder names of the template in order of
// first appearance
func (t Template) Placeholders() []string {
	var names []string
	seen := map[string]bool{}
	rest := t.Text
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			return names
		}
		end := strings.Index(rest[open+2:], "}}")
		if end < 0 {
			return names
		}
		name := strings.TrimSpace(rest[open+2 : open+2+end])
		if isPlaceholderName(name) && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		rest = rest[open+2+end+2:]
	}
}

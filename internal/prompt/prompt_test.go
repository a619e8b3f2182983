package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	tmpl := Template{
		Text:     "Hi {{name}}, goal: {{ goal }}, race: {{race}}",
		Defaults: map[string]string{"goal": "None reported"},
	}

	tests := []struct {
		name     string
		values   map[string]string
		expected string
	}{
		{"all values", map[string]string{"name": "Ana", "goal": "sub-3", "race": "Berlin"}, "Hi Ana, goal: sub-3, race: Berlin"},
		{"declared default", map[string]string{"name": "Ana", "race": "Berlin"}, "Hi Ana, goal: None reported, race: Berlin"},
		{"no default", map[string]string{"name": "Ana", "goal": "sub-3"}, "Hi Ana, goal: sub-3, race: Not specified"},
		{"empty value counts as missing", map[string]string{"name": "", "goal": "", "race": ""}, "Hi Not specified, goal: None reported, race: Not specified"},
		{"nil map", nil, "Hi Not specified, goal: None reported, race: Not specified"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tmpl.Render(tt.values))
		})
	}
}

func TestRenderIsSinglePass(t *testing.T) {
	tmpl := Template{Text: "{{a}} and {{b}}"}
	got := tmpl.Render(map[string]string{"a": "{{b}}", "b": "B"})
	assert.Equal(t, "{{b}} and B", got)
}

func TestRenderLeavesNonPlaceholdersAlone(t *testing.T) {
	tmpl := Template{Text: `json: {"a": {{x}}} {{not a name}} {{unterminated`}
	got := tmpl.Render(map[string]string{"x": "1"})
	assert.Equal(t, `json: {"a": 1} {{not a name}} {{unterminated`, got)
}

func TestDefaultTemplatesNeverLeakPlaceholders(t *testing.T) {
	set := Default()
	all := []Template{
		set.Persona, set.Workout, set.Analysis, set.Insight,
		set.Profile, set.Workouts, set.WorkoutLine, set.CheckIns, set.CheckInLine, set.Plan, set.Metrics,
	}
	for _, tmpl := range all {
		out := tmpl.Render(nil)
		for _, name := range tmpl.Placeholders() {
			if strings.Contains(out, "{{"+name+"}}") {
				t.Errorf("template %s leaked placeholder %s", tmpl.Name, name)
			}
		}
	}
}

func TestPlaceholders(t *testing.T) {
	tmpl := Template{Text: "{{a}} {{b}} {{a}} {{ c }}"}
	assert.Equal(t, []string{"a", "b", "c"}, tmpl.Placeholders())
}

func TestParseOverrides(t *testing.T) {
	data := []byte(`
persona: |
  You are a grumpy coach.
  {{context}}
sections:
  plan: "PLAN {{name}}"
`)
	set, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, "You are a grumpy coach.\n{{context}}\n", set.Persona.Text)
	assert.Equal(t, "PLAN {{name}}", set.Plan.Text)
	// untouched templates keep the defaults
	assert.Equal(t, Default().Workout.Text, set.Workout.Text)
	assert.Equal(t, "No athlete data is available yet.", set.Persona.Defaults["context"])
}

func TestParseRejectsBadYAML(t *testing.T) {
	_, err := Parse([]byte("persona: [unterminated"))
	assert.Error(t, err)
}

func TestLoadWithFallback(t *testing.T) {
	log := zerolog.Nop()

	assert.Equal(t, Default().Persona.Text, LoadWithFallback("", log).Persona.Text)
	assert.Equal(t, Default().Persona.Text, LoadWithFallback(filepath.Join(t.TempDir(), "missing.yaml"), log).Persona.Text)

	path := filepath.Join(t.TempDir(), "prompt.yaml")
	require.NoError(t, os.WriteFile(path, []byte("insight: \"Q: {{question}}\"\n"), 0o600))
	set := LoadWithFallback(path, log)
	assert.Equal(t, "Q: {{question}}", set.Insight.Text)
}

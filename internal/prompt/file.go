package prompt

import (
	"bytes"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// fileOverrides is the YAML layout of a custom prompt file. Any entry left
// empty keeps the built-in text.
type fileOverrides struct {
	Persona  string `yaml:"persona"`
	Workout  string `yaml:"workout"`
	Analysis string `yaml:"analysis"`
	Insight  string `yaml:"insight"`
	Sections struct {
		Profile     string `yaml:"profile"`
		Workouts    string `yaml:"workouts"`
		WorkoutLine string `yaml:"workout_line"`
		CheckIns    string `yaml:"check_ins"`
		CheckInLine string `yaml:"check_in_line"`
		Plan        string `yaml:"plan"`
		Metrics     string `yaml:"metrics"`
	} `yaml:"sections"`
}

// Parse decodes a YAML override payload and merges it over the defaults
func Parse(data []byte) (*Set, error) {
	set := Default()
	if len(bytes.TrimSpace(data)) == 0 {
		return set, nil
	}
	var o fileOverrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("prompt: decode overrides: %w", err)
	}

	override(&set.Persona, o.Persona)
	override(&set.Workout, o.Workout)
	override(&set.Analysis, o.Analysis)
	override(&set.Insight, o.Insight)
	override(&set.Profile, o.Sections.Profile)
	override(&set.Workouts, o.Sections.Workouts)
	override(&set.WorkoutLine, o.Sections.WorkoutLine)
	override(&set.CheckIns, o.Sections.CheckIns)
	override(&set.CheckInLine, o.Sections.CheckInLine)
	override(&set.Plan, o.Sections.Plan)
	override(&set.Metrics, o.Sections.Metrics)
	return set, nil
}

func override(t *Template, text string) {
	if text != "" {
		t.Text = text
	}
}

// LoadFile reads a YAML override file from disk
func LoadFile(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("prompt: read %s: %w", path, err)
	}
	set, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("prompt: %s: %w", path, err)
	}
	return set, nil
}

// LoadWithFallback loads the custom prompt file when a path is configured and
// falls back to the built-in templates on any error
func LoadWithFallback(path string, log zerolog.Logger) *Set {
	if path == "" {
		return Default()
	}
	set, err := LoadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("error loading coaching prompt, using default prompt instead")
		return Default()
	}
	log.Info().Str("path", path).Msg("loaded custom coaching prompt")
	return set
}

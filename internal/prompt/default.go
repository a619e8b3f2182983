package prompt

// Set is the full collection of templates used by the coaching pipeline
type Set struct {
	Persona  Template
	Workout  Template
	Analysis Template
	Insight  Template

	Profile     Template
	Workouts    Template
	WorkoutLine Template
	CheckIns    Template
	CheckInLine Template
	Plan        Template
	Metrics     Template
}

// Default returns the built-in templates. Every call returns a fresh copy.
func Default() *Set {
	return &Set{
		Persona: Template{
			Name:     "persona",
			Text:     personaText,
			Defaults: map[string]string{"context": "No athlete data is available yet."},
		},
		Workout: Template{
			Name: "workout",
			Text: workoutText,
			Defaults: map[string]string{
				"goals":      "General fitness",
				"equipment":  "None reported",
				"location":   NotSpecified,
				"conditions": "None reported",
				"context":    "No athlete data is available yet.",
			},
		},
		Analysis: Template{
			Name: "analysis",
			Text: analysisText,
			Defaults: map[string]string{
				"analysis_type": "general",
				"data":          "No data supplied",
				"context":       "No athlete data is available yet.",
			},
		},
		Insight: Template{
			Name: "insight",
			Text: insightText,
			Defaults: map[string]string{
				"question": "What does this mean for my training?",
				"data":     "No data supplied",
			},
		},
		Profile: Template{
			Name: "profile",
			Text: `ATHLETE PROFILE
Name: {{name}}
Age: {{age}}
Sport: {{sport}}
Experience: {{experience}}
Goals: {{goals}}
Training history: {{history}}`,
			Defaults: map[string]string{"goals": "None reported"},
		},
		Workouts: Template{
			Name: "workouts",
			Text: `RECENT WORKOUTS (last {{days}} days)
Sessions: {{count}} | Completed: {{completed}} | Total time: {{total_time}} | Total TSS: {{total_tss}}
{{lines}}`,
			Defaults: map[string]string{"total_tss": "0"},
		},
		WorkoutLine: Template{
			Name:     "workout_line",
			Text:     `- {{date}}: {{sport}} {{type}}, {{duration}} min, intensity {{intensity}}, TSS {{tss}}, RPE {{rpe}}, {{status}}`,
			Defaults: map[string]string{},
		},
		CheckIns: Template{
			Name:     "check_ins",
			Text:     "DAILY CHECK-INS (last {{days}} days)\n{{lines}}",
			Defaults: map[string]string{},
		},
		CheckInLine: Template{
			Name:     "check_in_line",
			Text:     `- {{date}}: HRV {{hrv}}, sleep {{sleep_hours}}h (quality {{sleep_quality}}/10), stress {{stress}}/10, motivation {{motivation}}/10, mood {{mood}}/10, readiness {{readiness}}, notes: {{notes}}`,
			Defaults: map[string]string{"notes": "None reported"},
		},
		Plan: Template{
			Name: "plan",
			Text: `TRAINING PLAN
Plan: {{name}}
Phase: {{phase}}
Weekly structure: {{weekly_structure}}
Key sessions: {{key_sessions}}
Next race: {{next_race}}`,
			Defaults: map[string]string{"key_sessions": "None reported", "next_race": "None scheduled"},
		},
		Metrics: Template{
			Name: "metrics",
			Text: `PERFORMANCE METRICS
Fitness (CTL): {{ctl}}
Fatigue (ATL): {{atl}}
Form (TSB): {{tsb}} ({{form}})
Load ratio (ATL:CTL): {{acwr}}
Recent personal bests: {{personal_bests}}`,
			Defaults: map[string]string{"personal_bests": "None reported"},
		},
	}
}

const personaText = `You are CoachIQ, an experienced coach with expertise in endurance sports (running, cycling, swimming, triathlon) and strength training.

## Coaching philosophy
- Holistic: consider the whole athlete, including life stress, sleep and motivation.
- Evidence-based: ground advice in exercise science and proven training principles.
- Progressive: favour gradual, sustainable improvements over dramatic changes.
- Safety first: flag overreaching, poor recovery and injury risk early.

## How to answer
- Be specific and actionable; refer to the athlete's own numbers when they are available.
- Be encouraging but honest.
- Keep answers short enough to read on a phone.
- Finish every answer with a "Suggestions:" line followed by up to three short follow-up questions the athlete could ask, one per line, each starting with "- ".

## Athlete context
{{context}}`

const workoutText = `Design a single {{sport}} workout for the athlete.

Requirements:
- Type: {{type}}
- Total duration: {{duration}} minutes
- Intensity: {{intensity}}
- Goals: {{goals}}
- Available equipment: {{equipment}}
- Location: {{location}}
- Conditions: {{conditions}}

Athlete context:
{{context}}

Respond with ONLY a JSON object, no markdown, with these fields:
- name: string
- description: string
- totalDuration: number (minutes, must equal the requested duration)
- estimatedCalories: number
- difficulty: integer 1-5
- equipment: array of strings
- warmup, mainSet, cooldown: arrays of steps; each step has id, kind (warmup|active|recovery|rest|cooldown|repeat), name, durationSeconds, target {type, zone 1-6}, and for kind "repeat" a repeat object {count, steps}
- tips: array of strings`

const analysisText = `Analyse the athlete data below. Analysis type: {{analysis_type}}.

Data:
{{data}}

Athlete context:
{{context}}

Respond with ONLY a JSON object, no markdown, with these fields:
- summary: string
- insights: array of strings
- recommendations: array of strings
- confidence: number between 0 and 1
- riskFactors: array of strings (may be empty)`

const insightText = `The athlete asks: {{question}}

Explain the following data point in plain language, what it means for their training, and what, if anything, they should change.

Data:
{{data}}`

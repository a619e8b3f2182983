package coachctx

import "fmt"

// SecToHHMM converts seconds to H:MM format
func SecToHHMM(sec int64) string {
	m := sec / 60
	h := m / 60
	m = m % 60
	return fmt.Sprintf("%d:%02d", h, m)
}

// optional values render as "" so the template default applies

func optionalFloat(v *float64, format string) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf(format, *v)
}

func optionalScale(v *int) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%d/10", *v)
}

func positiveInt(v int) string {
	if v <= 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

func positiveFloat(v float64, format string) string {
	if v <= 0 {
		return ""
	}
	return fmt.Sprintf(format, v)
}

func completionStatus(done bool) string {
	if done {
		return "completed"
	}
	return "not completed"
}

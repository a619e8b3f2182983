package training

import "math"

// Risk is the injury-risk tier of an acute:chronic workload ratio
type Risk string

const (
	RiskUnderTraining Risk = "under-training"
	RiskOptimal       Risk = "optimal"
	RiskCaution       Risk = "caution"
	RiskHigh          Risk = "high-risk"
)

// ACWR band edges. Each band includes its lower edge.
const (
	acwrOptimalFrom = 0.8
	acwrCautionFrom = 1.3
	acwrHighFrom    = 1.5
)

// LoadRatio is a computed ACWR with its tier
type LoadRatio struct {
	Ratio float64 `json:"ratio"`
	Risk  Risk    `json:"risk"`
}

// ACWR divides acute by chronic load. ok is false when chronic load is not
// positive or either load is not finite, leaving the ratio undefined.
func ACWR(acute, chronic float64) (ratio float64, ok bool) {
	if !finite(acute) || !finite(chronic) || chronic <= 0 {
		return 0, false
	}
	return acute / chronic, true
}

// ClassifyACWR maps a ratio onto its risk tier
func ClassifyACWR(ratio float64) Risk {
	switch {
	case ratio < acwrOptimalFrom:
		return RiskUnderTraining
	case ratio < acwrCautionFrom:
		return RiskOptimal
	case ratio < acwrHighFrom:
		return RiskCaution
	default:
		return RiskHigh
	}
}

// AssessLoad computes and classifies the ratio in one step
func AssessLoad(acute, chronic float64) (LoadRatio, bool) {
	r, ok := ACWR(acute, chronic)
	if !ok {
		return LoadRatio{}, false
	}
	return LoadRatio{Ratio: r, Risk: ClassifyACWR(r)}, true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Package training holds the derived training signals fed into coaching context:
// readiness, per-step training stress, zone distribution and load ratios.
// Everything here is a pure function of its inputs.
package training

import "math"

// neutralHRVScore is used when no usable HRV reading or baseline exists
const neutralHRVScore = 12.5

// ReadinessInput collects the morning inputs of the readiness score
type ReadinessInput struct {
	HRV          float64 `json:"hrv"`          // ms, <= 0 when not measured
	HRVBaseline  float64 `json:"hrvBaseline"`  // ms, rolling personal baseline
	SleepQuality float64 `json:"sleepQuality"` // 1-5
	Stress       float64 `json:"stress"`       // 1-10
	Mood         float64 `json:"mood"`         // 1-5
	Soreness     []int   `json:"soreness"`     // DOMS per body region, 1-10
}

// Readiness scores how prepared the athlete is to train, 0-100.
//
// Four wellness components are worth up to 25 each and carry 80% of the
// score; muscle soreness carries the remaining 20%.
func Readiness(in ReadinessInput) int {
	hrvScore := neutralHRVScore
	if in.HRV > 0 && in.HRVBaseline > 0 {
		hrvScore = clamp((in.HRV/in.HRVBaseline)*25, 0, 100)
	}
	sleepScore := (in.SleepQuality / 5) * 25
	stressScore := ((10 - in.Stress) / 10) * 25
	moodScore := (in.Mood / 5) * 25

	score := 0.8*(hrvScore+sleepScore+stressScore+moodScore) + 0.2*SorenessScore(in.Soreness)
	return int(clamp(math.Round(score), 0, 100))
}

// SorenessScore converts DOMS reports into a 0-100 freshness score.
// With no reports the midpoint is assumed.
func SorenessScore(values []int) float64 {
	if len(values) == 0 {
		return 50
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	mean := float64(sum) / float64(len(values))
	return math.Max(0, (10-mean)/10) * 100
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

package training

import (
	"math"
	"sort"
	"time"

	"github.com/briangreenhill/coachiq/internal/athlete"
)

// DailyLoad is the summed training stress of one calendar day
type DailyLoad struct {
	Date time.Time `json:"date"`
	TSS  float64   `json:"tss"`
}

// EMA time constants in days
const (
	ctlDays = 42.0
	atlDays = 7.0
)

// DailyLoads groups workout TSS by calendar day. Workouts without a TSS or
// not completed are skipped.
func DailyLoads(workouts []athlete.WorkoutRecord) []DailyLoad {
	byDay := make(map[string]*DailyLoad)
	for _, w := range workouts {
		if w.TSS == nil || !w.Completed {
			continue
		}
		key := w.Date.Format(time.DateOnly)
		if dl, ok := byDay[key]; ok {
			dl.TSS += *w.TSS
			continue
		}
		byDay[key] = &DailyLoad{Date: startOfDay(w.Date), TSS: *w.TSS}
	}
	out := make([]DailyLoad, 0, len(byDay))
	for _, dl := range byDay {
		out = append(out, *dl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// FitnessTrend runs the CTL/ATL exponential moving averages over the daily
// loads through the given day and returns the values of that day. Missing
// days count as zero load.
func FitnessTrend(daily []DailyLoad, through time.Time) athlete.PerformanceMetrics {
	if len(daily) == 0 {
		return athlete.PerformanceMetrics{}
	}
	loads := make(map[string]float64, len(daily))
	first := startOfDay(daily[0].Date)
	for _, d := range daily {
		loads[d.Date.Format(time.DateOnly)] += d.TSS
		if day := startOfDay(d.Date); day.Before(first) {
			first = day
		}
	}

	ctlDecay := 2.0 / (ctlDays + 1)
	atlDecay := 2.0 / (atlDays + 1)
	var ctl, atl float64
	end := startOfDay(through)
	for d := first; !d.After(end); d = d.AddDate(0, 0, 1) {
		tss := loads[d.Format(time.DateOnly)]
		ctl += ctlDecay * (tss - ctl)
		atl += atlDecay * (tss - atl)
	}

	return athlete.PerformanceMetrics{
		CTL: round1(ctl),
		ATL: round1(atl),
		TSB: round1(ctl - atl),
	}
}

// FormDescription describes a training stress balance in words
func FormDescription(tsb float64) string {
	switch {
	case tsb > 25:
		return "very fresh, possibly detrained"
	case tsb > 10:
		return "fresh and ready to race"
	case tsb > 0:
		return "neutral"
	case tsb > -10:
		return "slightly fatigued"
	case tsb > -25:
		return "tired but building fitness"
	default:
		return "very fatigued"
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

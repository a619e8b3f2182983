package training

import (
	"math"
	"strings"
)

// StepKind classifies a workout step
type StepKind string

const (
	KindWarmup   StepKind = "warmup"
	KindActive   StepKind = "active"
	KindRecovery StepKind = "recovery"
	KindRest     StepKind = "rest"
	KindCooldown StepKind = "cooldown"
	KindRepeat   StepKind = "repeat"
)

// Target is the intensity a step aims for
type Target struct {
	Type  string   `json:"type"` // heart_rate, power, pace, rpe
	Zone  int      `json:"zone"` // 1-6
	Value *float64 `json:"value,omitempty"`
}

// Repeat wraps child steps executed Count times
type Repeat struct {
	Count int    `json:"count"`
	Steps []Step `json:"steps"`
}

// Step is one node of a structured workout. A step with Repeat set is a
// group node; its own DurationSeconds and Target are ignored.
type Step struct {
	ID              string   `json:"id"`
	Kind            StepKind `json:"kind"`
	Name            string   `json:"name"`
	DurationSeconds int      `json:"durationSeconds"`
	Target          Target   `json:"target"`
	Repeat          *Repeat  `json:"repeat,omitempty"`
}

// ZoneTable maps zones 1-6 to a load multiplier
type ZoneTable [6]float64

// Multiplier returns the multiplier of a zone. Zones outside 1-6 are pinned
// to the nearest end.
func (t ZoneTable) Multiplier(zone int) float64 {
	return t[zoneIndex(zone)]
}

// Multipliers approximate IF^2 of each zone, so that sqrt(TSS/(h*100))
// recovers the intensity factor of a single-zone session.
var (
	Cycling  = ZoneTable{0.30, 0.56, 0.77, 1.00, 1.25, 1.56}
	Running  = ZoneTable{0.32, 0.58, 0.79, 1.00, 1.21, 1.44}
	Swimming = ZoneTable{0.36, 0.62, 0.81, 1.00, 1.17, 1.35}
)

// TableFor picks the zone table for a sport name; unknown sports use Cycling
func TableFor(sport string) ZoneTable {
	s := strings.ToLower(sport)
	switch {
	case strings.Contains(s, "run"):
		return Running
	case strings.Contains(s, "swim"):
		return Swimming
	default:
		return Cycling
	}
}

// Load is the aggregated duration and training stress of steps
type Load struct {
	DurationSeconds int     `json:"durationSeconds"`
	TSS             float64 `json:"tss"`
}

// Hours returns the duration in hours
func (l Load) Hours() float64 {
	return float64(l.DurationSeconds) / 3600
}

func (l Load) add(o Load) Load {
	return Load{DurationSeconds: l.DurationSeconds + o.DurationSeconds, TSS: l.TSS + o.TSS}
}

func (l Load) times(n int) Load {
	return Load{DurationSeconds: l.DurationSeconds * n, TSS: l.TSS * float64(n)}
}

// StepTSS is the training stress of a single steady step
func StepTSS(durationSeconds int, zone int, table ZoneTable) float64 {
	return (float64(durationSeconds) / 3600) * 100 * table.Multiplier(zone)
}

// StepLoad returns the load of a step. Repeat groups are expanded depth-first:
// the total of the children is multiplied by the repeat count.
func StepLoad(step Step, table ZoneTable) Load {
	if step.Repeat != nil {
		return SessionLoad(step.Repeat.Steps, table).times(max(step.Repeat.Count, 0))
	}
	d := max(step.DurationSeconds, 0)
	return Load{DurationSeconds: d, TSS: StepTSS(d, step.Target.Zone, table)}
}

// SessionLoad sums the load of a step sequence
func SessionLoad(steps []Step, table ZoneTable) Load {
	var total Load
	for _, s := range steps {
		total = total.add(StepLoad(s, table))
	}
	return total
}

// IntensityFactor estimates IF from an aggregated load, rounded to 2 decimals
func IntensityFactor(l Load) float64 {
	hours := l.Hours()
	if hours <= 0 || l.TSS <= 0 {
		return 0
	}
	return math.Round(math.Sqrt(l.TSS/(hours*100))*100) / 100
}

// ZoneSeconds returns the time spent in each zone, repeats expanded
func ZoneSeconds(steps []Step) [6]float64 {
	var out [6]float64
	accumulateZones(steps, 1, &out)
	return out
}

func accumulateZones(steps []Step, factor int, out *[6]float64) {
	for _, s := range steps {
		if s.Repeat != nil {
			accumulateZones(s.Repeat.Steps, factor*max(s.Repeat.Count, 0), out)
			continue
		}
		out[zoneIndex(s.Target.Zone)] += float64(max(s.DurationSeconds, 0) * factor)
	}
}

// ZoneDistribution converts zone seconds into percentages of the total.
// All zeros when there is no time at all.
func ZoneDistribution(seconds [6]float64) [6]float64 {
	var out [6]float64
	total := 0.0
	for _, s := range seconds {
		total += s
	}
	if total <= 0 {
		return out
	}
	for i, s := range seconds {
		out[i] = s / total * 100
	}
	return out
}

func zoneIndex(zone int) int {
	if zone < 1 {
		return 0
	}
	if zone > 6 {
		return 5
	}
	return zone - 1
}

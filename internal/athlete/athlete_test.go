package athlete

import (
	"testing"
	"time"
)

func TestClampScale(t *testing.T) {
	tests := []struct {
		v, lo, hi int
		expected  int
	}{
		{0, 1, 10, 1},
		{11, 1, 10, 10},
		{5, 1, 10, 5},
		{7, 1, 5, 5},
	}

	for _, tt := range tests {
		result := ClampScale(tt.v, tt.lo, tt.hi)
		if result != tt.expected {
			t.Errorf("ClampScale(%d, %d, %d) = %d, want %d", tt.v, tt.lo, tt.hi, result, tt.expected)
		}
	}
}

func TestCheckInNormalize(t *testing.T) {
	readiness := 14
	c := CheckIn{SleepQuality: 0, Stress: 12, Motivation: 5, Mood: -3, Readiness: &readiness}
	c.Normalize()

	if c.SleepQuality != 1 || c.Stress != 10 || c.Motivation != 5 || c.Mood != 1 {
		t.Errorf("unexpected normalized check-in: %+v", c)
	}
	if *c.Readiness != 10 {
		t.Errorf("Readiness = %d, want 10", *c.Readiness)
	}
	if readiness != 14 {
		t.Error("Normalize should not write through the caller's pointer")
	}
}

func TestSnapshotIsEmpty(t *testing.T) {
	if !(Snapshot{}).IsEmpty() {
		t.Error("zero snapshot should be empty")
	}
	s := Snapshot{CheckIns: []CheckIn{{Date: time.Now()}}}
	if s.IsEmpty() {
		t.Error("snapshot with a check-in should not be empty")
	}
}

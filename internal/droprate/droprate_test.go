package droprate

import (
	"math"
	"testing"
)

func TestClampProportion(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{-3.5, 0},
		{-0.0001, 0},
		{0, 0},
		{0.648, 0.648},
		{1, 1},
		{1.0001, 1},
		{42, 1},
	}
	for _, tc := range cases {
		if got := ClampProportion(tc.in); got != tc.want {
			t.Fatalf("ClampProportion(%v)=%v want %v", tc.in, got, tc.want)
		}
	}
}

func TestClampProportion_Idempotent(t *testing.T) {
	for _, x := range []float64{-7, -0.3, 0, 0.25, 0.99, 1, 2.4, 1e9} {
		once := ClampProportion(x)
		if twice := ClampProportion(once); twice != once {
			t.Fatalf("clamp(clamp(%v))=%v want %v", x, twice, once)
		}
	}
}

func TestCommonProbability_KnownPattern(t *testing.T) {
	e := NewEstimator(nil)
	got := e.CommonProbability(Pattern{Common: 1, Uncommon: 1, Rare: 1})
	if math.Abs(got-0.6480) > 1e-9 {
		t.Fatalf("CommonProbability(1,1,1)=%v want 0.6480", got)
	}
}

func TestCommonProbability_UnknownPatternDefaultsToCertainty(t *testing.T) {
	e := NewEstimator(nil)
	if got := e.CommonProbability(Pattern{Common: 9, Uncommon: 9, Rare: 9}); got != 1 {
		t.Fatalf("unknown pattern probability=%v want 1", got)
	}
}

func TestNewEstimator_ClampsEntries(t *testing.T) {
	e := NewEstimator(map[Pattern]float64{
		{Common: 1}: 1.7,
		{Common: 2}: -0.2,
	})
	if got := e.CommonProbability(Pattern{Common: 1}); got != 1 {
		t.Fatalf("entry above 1 not clamped: %v", got)
	}
	if got := e.CommonProbability(Pattern{Common: 2}); got != 0 {
		t.Fatalf("entry below 0 not clamped: %v", got)
	}
}

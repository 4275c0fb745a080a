// Package testutil provides shared test infrastructure for the LDAR
// simulator: float assertions, date helpers and fixed weather.
// It has no dependency on sim/ so that package sim's own tests can use it.
package testutil

import (
	"math"
	"testing"
	"time"

	"github.com/ldar-sim/ldar-sim/sim/weather"
)

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}

// AssertSeriesEqual compares two series element-wise with relative tolerance.
func AssertSeriesEqual(t *testing.T, name string, want, got []float64, relTol float64) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("%s: length %d, want %d", name, len(got), len(want))
	}
	for i := range want {
		if want[i] == got[i] {
			continue
		}
		diff := math.Abs(want[i] - got[i])
		maxVal := math.Max(math.Abs(want[i]), math.Abs(got[i]))
		if diff/maxVal > relTol {
			t.Errorf("%s[%d]: got %v, want %v", name, i, got[i], want[i])
		}
	}
}

// Date returns midnight UTC on the given day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// FairWeather returns conditions every method can work in, with twelve
// hours of daylight.
func FairWeather() weather.Constant {
	return weather.Constant{Conditions: weather.Conditions{TempC: 15, WindMps: 2, PrecipMm: 0, DaylightHours: 12}}
}

// Package weather supplies the per-day, per-location conditions that gate
// crew deployment. Data is loaded before a run starts and is read-only
// while the simulation loop executes.
package weather

import (
	"fmt"
	"math"
	"time"

	"github.com/ldar-sim/ldar-sim/sim/geo"
)

// Conditions are the variables checked before a crew may work.
type Conditions struct {
	TempC         float64 `yaml:"temp"`   // air temperature, °C
	WindMps       float64 `yaml:"wind"`   // wind speed, m/s
	PrecipMm      float64 `yaml:"precip"` // daily precipitation, mm
	DaylightHours float64 `yaml:"daylight_hours"`
}

// Lookup returns conditions for a simulated day at a location.
// day is the zero-based timestep; date is the calendar date of that step.
type Lookup interface {
	At(day int, date time.Time, p geo.Point) (Conditions, error)
	// Covers returns a non-nil error if p lies outside the data's extent.
	Covers(p geo.Point) error
	// Days is the number of timesteps the data covers (0 = unbounded).
	Days() int
}

// Direction names the side of the grid a point falls outside of.
type Direction string

const (
	North Direction = "north"
	South Direction = "south"
	East  Direction = "east"
	West  Direction = "west"
)

// OutOfBoundsError reports a location outside the weather grid.
type OutOfBoundsError struct {
	SiteID    string
	Direction Direction
	Value     float64 // offending latitude or longitude
	Bound     float64 // grid edge that was crossed
}

func (e *OutOfBoundsError) Error() string {
	name := e.SiteID
	if name == "" {
		name = "location"
	} else {
		name = "site " + name
	}
	switch e.Direction {
	case North:
		return fmt.Sprintf("%s lies north of the weather grid: latitude %.4f > northern edge %.4f", name, e.Value, e.Bound)
	case South:
		return fmt.Sprintf("%s lies south of the weather grid: latitude %.4f < southern edge %.4f", name, e.Value, e.Bound)
	case East:
		return fmt.Sprintf("%s lies east of the weather grid: longitude %.4f > eastern edge %.4f", name, e.Value, e.Bound)
	default:
		return fmt.Sprintf("%s lies west of the weather grid: longitude %.4f < western edge %.4f", name, e.Value, e.Bound)
	}
}

// Constant returns the same conditions everywhere on every day. When
// DaylightHours is zero it is computed from latitude and day of year.
type Constant struct {
	Conditions Conditions
}

func (c Constant) At(_ int, date time.Time, p geo.Point) (Conditions, error) {
	out := c.Conditions
	if out.DaylightHours == 0 {
		out.DaylightHours = DaylightHours(p.Lat, date.YearDay())
	}
	return out, nil
}

func (c Constant) Covers(geo.Point) error { return nil }
func (c Constant) Days() int              { return 0 }

// DaylightHours estimates day length (CBM model, 0.8333° sunrise
// correction) at latitude lat on day-of-year doy.
func DaylightHours(lat float64, doy int) float64 {
	const p = 0.8333
	theta := 0.2163108 + 2*math.Atan(0.9671396*math.Tan(0.00860*float64(doy-186)))
	phi := math.Asin(0.39795 * math.Cos(theta))
	latRad := lat * math.Pi / 180
	arg := (math.Sin(p*math.Pi/180) + math.Sin(latRad)*math.Sin(phi)) /
		(math.Cos(latRad) * math.Cos(phi))
	arg = math.Max(-1, math.Min(1, arg))
	return 24 - (24/math.Pi)*math.Acos(arg)
}

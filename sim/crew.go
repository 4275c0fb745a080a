package sim

import (
	"github.com/ldar-sim/ldar-sim/sim/geo"
	"github.com/ldar-sim/ldar-sim/sim/weather"
)

// Skip reasons recorded in the dispatch trace.
const (
	SkipWeather  = "weather"
	SkipDaylight = "daylight"
	SkipNoSites  = "no-sites"
)

// Crew is one survey team of a company. A crew carries at most one
// in-progress multi-day survey, which it resumes before anything else.
type Crew struct {
	ID        string
	Company   string
	Index     int
	Home      geo.Point
	Location  geo.Point
	Territory int // k-means cluster label in cluster mode, -1 otherwise

	DaysWorked    int
	SitesSurveyed int
	MinutesWorked float64
	TravelKm      float64

	inProgress *visit
	speedKmh   float64 // today's travel speed, route mode
}

// visit is a survey a crew has started but not finished.
type visit struct {
	due       *DueSite
	report    *SurveyReport
	remaining float64 // survey minutes still to do
}

// InProgress returns the site of the crew's unfinished survey, or nil.
func (c *Crew) InProgress() *Site {
	if c.inProgress == nil {
		return nil
	}
	return c.inProgress.due.Site
}

// Eligible reports whether the crew may work in cond. The second result
// names the violated constraint.
func (c *Crew) Eligible(cond weather.Conditions, th WeatherThresholds) (bool, string) {
	if th.MinTempC != nil && cond.TempC < *th.MinTempC {
		return false, SkipWeather
	}
	if th.MaxWindMps != nil && cond.WindMps > *th.MaxWindMps {
		return false, SkipWeather
	}
	if th.MaxPrecipMm != nil && cond.PrecipMm > *th.MaxPrecipMm {
		return false, SkipWeather
	}
	if th.RequireDaylight && (cond.DaylightHours <= 0 || cond.DaylightHours < th.MinDaylightHours) {
		return false, SkipDaylight
	}
	return true, ""
}

// workdayMinutes is the time available today: the configured workday,
// shortened to the hours of daylight when daylight is required.
func workdayMinutes(maxHours float64, cond weather.Conditions, th WeatherThresholds) float64 {
	hours := maxHours
	if th.RequireDaylight && cond.DaylightHours < hours {
		hours = cond.DaylightHours
	}
	return hours * 60
}

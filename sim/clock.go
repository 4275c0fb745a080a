package sim

import (
	"fmt"
	"time"
)

// Day is the read-only view of "today" handed to every component.
type Day struct {
	Step      int       // zero-based timestep
	Date      time.Time // calendar date, midnight UTC
	YearStart int       // timestep of 1 January of Date's year, clamped to 0
}

// Year returns the calendar year of the day.
func (d Day) Year() int { return d.Date.Year() }

// Clock is the single authoritative day counter of a replicate.
// It only moves forward, one day per Advance.
type Clock struct {
	start    time.Time
	end      time.Time
	current  time.Time
	timestep int
}

// NewClock creates a clock covering [start, end] inclusive.
// Panics if end is before start.
func NewClock(start, end time.Time) *Clock {
	start, end = midnight(start), midnight(end)
	if end.Before(start) {
		panic(fmt.Sprintf("NewClock: end %s before start %s", end.Format(time.DateOnly), start.Format(time.DateOnly)))
	}
	return &Clock{start: start, end: end, current: start}
}

// Advance moves the clock forward exactly one day.
func (c *Clock) Advance() {
	c.current = c.current.AddDate(0, 0, 1)
	c.timestep++
}

// Today returns the current date.
func (c *Clock) Today() time.Time { return c.current }

// Timestep returns the zero-based index of the current day.
func (c *Clock) Timestep() int { return c.timestep }

// Done reports whether the clock has moved past the end date.
func (c *Clock) Done() bool { return c.current.After(c.end) }

// NumDays returns the number of simulated days, end date included.
func (c *Clock) NumDays() int {
	return int(c.end.Sub(c.start).Hours()/24) + 1
}

// Year returns the calendar year of the current date.
func (c *Clock) Year() int { return c.current.Year() }

// YearStart returns the timestep of 1 January of the current year,
// clamped to the first simulated day.
func (c *Clock) YearStart() int { return c.Day().YearStart }

// Start returns the first simulated date.
func (c *Clock) Start() time.Time { return c.start }

// Day returns the current day view.
func (c *Clock) Day() Day {
	return Day{
		Step:      c.timestep,
		Date:      c.current,
		YearStart: max(0, c.timestep-(c.current.YearDay()-1)),
	}
}

// DateOf returns the calendar date of a timestep.
func (c *Clock) DateOf(step int) time.Time {
	return c.start.AddDate(0, 0, step)
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

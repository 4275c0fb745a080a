package weather

import (
	"fmt"
	"math"
	"time"

	"github.com/ldar-sim/ldar-sim/sim/geo"
)

// Grid holds daily fields on a regular lat/lon grid. Arrays are indexed
// [day][latIdx][lonIdx]; Lats and Lons are cell centres in ascending order.
// Lookups snap to the nearest cell.
type Grid struct {
	Lats   []float64     `yaml:"lats"`
	Lons   []float64     `yaml:"lons"`
	Temp   [][][]float64 `yaml:"temp"`
	Wind   [][][]float64 `yaml:"wind"`
	Precip [][][]float64 `yaml:"precip"`
}

// Validate checks array shapes against the axes.
func (g *Grid) Validate() error {
	if len(g.Lats) == 0 || len(g.Lons) == 0 {
		return fmt.Errorf("weather grid requires at least one latitude and longitude")
	}
	for i := 1; i < len(g.Lats); i++ {
		if g.Lats[i] <= g.Lats[i-1] {
			return fmt.Errorf("weather grid latitudes must be strictly ascending")
		}
	}
	for i := 1; i < len(g.Lons); i++ {
		if g.Lons[i] <= g.Lons[i-1] {
			return fmt.Errorf("weather grid longitudes must be strictly ascending")
		}
	}
	days := len(g.Temp)
	if days == 0 {
		return fmt.Errorf("weather grid has no days")
	}
	fields := []struct {
		name string
		data [][][]float64
	}{{"temp", g.Temp}, {"wind", g.Wind}, {"precip", g.Precip}}
	for _, f := range fields {
		name, field := f.name, f.data
		if len(field) != days {
			return fmt.Errorf("weather grid field %s has %d days, want %d", name, len(field), days)
		}
		for d, plane := range field {
			if len(plane) != len(g.Lats) {
				return fmt.Errorf("weather grid field %s day %d has %d rows, want %d", name, d, len(plane), len(g.Lats))
			}
			for r, row := range plane {
				if len(row) != len(g.Lons) {
					return fmt.Errorf("weather grid field %s day %d row %d has %d columns, want %d", name, d, r, len(row), len(g.Lons))
				}
			}
		}
	}
	return nil
}

// Days returns the number of days covered.
func (g *Grid) Days() int { return len(g.Temp) }

// Covers reports whether p lies within the grid's bounding box. The box
// extends half a cell beyond the outermost centres.
func (g *Grid) Covers(p geo.Point) error {
	south, north := edges(g.Lats)
	west, east := edges(g.Lons)
	switch {
	case p.Lat > north:
		return &OutOfBoundsError{Direction: North, Value: p.Lat, Bound: north}
	case p.Lat < south:
		return &OutOfBoundsError{Direction: South, Value: p.Lat, Bound: south}
	case p.Lon > east:
		return &OutOfBoundsError{Direction: East, Value: p.Lon, Bound: east}
	case p.Lon < west:
		return &OutOfBoundsError{Direction: West, Value: p.Lon, Bound: west}
	}
	return nil
}

// At returns the conditions of the cell nearest p on the given day.
func (g *Grid) At(day int, date time.Time, p geo.Point) (Conditions, error) {
	if day < 0 || day >= g.Days() {
		return Conditions{}, fmt.Errorf("weather grid covers days [0, %d), requested day %d", g.Days(), day)
	}
	if err := g.Covers(p); err != nil {
		return Conditions{}, err
	}
	i, j := nearest(g.Lats, p.Lat), nearest(g.Lons, p.Lon)
	return Conditions{
		TempC:         g.Temp[day][i][j],
		WindMps:       g.Wind[day][i][j],
		PrecipMm:      g.Precip[day][i][j],
		DaylightHours: DaylightHours(p.Lat, date.YearDay()),
	}, nil
}

func edges(axis []float64) (lo, hi float64) {
	half := 0.5
	if len(axis) > 1 {
		half = (axis[1] - axis[0]) / 2
	}
	return axis[0] - half, axis[len(axis)-1] + half
}

// nearest returns the index of the axis value closest to v; ties go to
// the lower index.
func nearest(axis []float64, v float64) int {
	best := 0
	for i := 1; i < len(axis); i++ {
		if math.Abs(axis[i]-v) < math.Abs(axis[best]-v) {
			best = i
		}
	}
	return best
}

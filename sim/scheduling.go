package sim

import (
	"fmt"
	"math/rand"

	"github.com/ldar-sim/ldar-sim/sim/dist"
	"github.com/ldar-sim/ldar-sim/sim/geo"
)

// Choice is a policy's pick of the next site for a crew.
type Choice struct {
	Index          int     // index into the due list
	TravelMinutes  float64 // getting there
	TravelKm       float64
	ReserveMinutes float64 // time that must remain afterwards (route mode: the trip home)
}

// SchedulingPolicy decides which due site each crew visits next.
// Implementations hold per-company state and are not shared.
type SchedulingPolicy interface {
	Name() string
	// Prepare runs once after the company's crews are built.
	Prepare(c *Company, rng *rand.Rand)
	// StartDay runs once per working crew-day before the first Next.
	StartDay(crew *Crew, rng *rand.Rand)
	// Next picks from due; ok is false when nothing suits the crew.
	Next(crew *Crew, due []*DueSite, rng *rand.Rand) (choice Choice, ok bool)
	// ReturnMinutes is the time the crew needs to get home from a point
	// at today's speed. Zero for policies without home bases.
	ReturnMinutes(crew *Crew, from geo.Point) float64
	// EndDay runs when a crew finishes its day with no survey in progress.
	// It returns the minutes spent getting home; minutesLeft is what
	// remains of the workday.
	EndDay(crew *Crew, due []*DueSite, minutesLeft float64) float64
}

// NewSchedulingPolicy creates the policy for a method's scheduling mode.
func NewSchedulingPolicy(cfg SchedulingConfig, travel dist.RateSampler) (SchedulingPolicy, error) {
	switch cfg.Mode {
	case "", "simple":
		return &simplePolicy{travel: travel}, nil
	case "cluster":
		return &clusterPolicy{simplePolicy: simplePolicy{travel: travel}}, nil
	case "route":
		speeds, err := dist.NewRateSampler(dist.Spec{Type: "list", Values: cfg.SpeedKmh})
		if err != nil {
			return nil, fmt.Errorf("route scheduling: %w", err)
		}
		return &routePolicy{bases: cfg.HomeBases, speeds: speeds, optimal: cfg.OptimalHomeBase}, nil
	default:
		return nil, fmt.Errorf("unknown scheduling mode %q", cfg.Mode)
	}
}

// simplePolicy visits due sites in priority order with sampled travel times.
type simplePolicy struct {
	travel dist.RateSampler
}

func (p *simplePolicy) Name() string                              { return "simple" }
func (p *simplePolicy) Prepare(*Company, *rand.Rand)              {}
func (p *simplePolicy) StartDay(*Crew, *rand.Rand)                {}
func (p *simplePolicy) ReturnMinutes(*Crew, geo.Point) float64    { return 0 }
func (p *simplePolicy) EndDay(*Crew, []*DueSite, float64) float64 { return 0 }

func (p *simplePolicy) Next(_ *Crew, due []*DueSite, rng *rand.Rand) (Choice, bool) {
	if len(due) == 0 {
		return Choice{}, false
	}
	return Choice{Index: 0, TravelMinutes: p.travel.Sample(rng)}, true
}

// clusterPolicy partitions sites into one k-means territory per crew;
// each crew only visits its own territory.
type clusterPolicy struct {
	simplePolicy
	labels map[*Site]int
}

func (p *clusterPolicy) Name() string { return "cluster" }

func (p *clusterPolicy) Prepare(c *Company, rng *rand.Rand) {
	pts := make([]geo.Point, len(c.sites))
	for i, s := range c.sites {
		pts[i] = s.Location
	}
	labels := geo.KMeans(pts, len(c.crews), rng, geo.DefaultKMeansIterations)
	p.labels = make(map[*Site]int, len(c.sites))
	members := make([][]geo.Point, len(c.crews))
	for i, s := range c.sites {
		p.labels[s] = labels[i]
		members[labels[i]] = append(members[labels[i]], s.Location)
	}
	for _, crew := range c.crews {
		crew.Territory = crew.Index
		if len(c.cfg.Scheduling.HomeBases) == 0 && len(members[crew.Index]) > 0 {
			crew.Home = geo.Centroid(members[crew.Index])
			crew.Location = crew.Home
		}
	}
}

func (p *clusterPolicy) Next(crew *Crew, due []*DueSite, rng *rand.Rand) (Choice, bool) {
	for i, d := range due {
		if p.labels[d.Site] == crew.Territory {
			return Choice{Index: i, TravelMinutes: p.travel.Sample(rng)}, true
		}
	}
	return Choice{}, false
}

// routePolicy sends each crew to the nearest due site by road distance,
// overdue sites first, and returns crews to a home base at day's end.
type routePolicy struct {
	bases   []geo.Point
	speeds  dist.RateSampler
	optimal bool
}

func (p *routePolicy) Name() string                 { return "route" }
func (p *routePolicy) Prepare(*Company, *rand.Rand) {}

func (p *routePolicy) StartDay(crew *Crew, rng *rand.Rand) {
	crew.speedKmh = p.speeds.Sample(rng)
}

func (p *routePolicy) Next(crew *Crew, due []*DueSite, _ *rand.Rand) (Choice, bool) {
	best := nearestDue(crew.Location, due)
	if best < 0 {
		return Choice{}, false
	}
	km := geo.RoadDistance(crew.Location, due[best].Site.Location)
	choice := Choice{
		Index:         best,
		TravelMinutes: km / crew.speedKmh * 60,
		TravelKm:      km,
	}
	choice.ReserveMinutes = p.ReturnMinutes(crew, due[best].Site.Location)
	return choice, true
}

func (p *routePolicy) ReturnMinutes(crew *Crew, from geo.Point) float64 {
	if len(p.bases) == 0 {
		return 0
	}
	idx, _ := geo.NearestHomeBase(from, p.bases)
	return geo.RoadDistance(from, p.bases[idx]) / crew.speedKmh * 60
}

// EndDay drives the crew to the nearest base. With optimal home bases it
// drives to the base best placed for tomorrow's nearest due site instead,
// as long as that trip fits in minutesLeft.
func (p *routePolicy) EndDay(crew *Crew, due []*DueSite, minutesLeft float64) float64 {
	if len(p.bases) == 0 {
		return 0
	}
	idx, _ := geo.NearestHomeBase(crew.Location, p.bases)
	km := geo.RoadDistance(crew.Location, p.bases[idx])
	if p.optimal {
		if next := nearestDue(crew.Location, due); next >= 0 {
			alt, _ := geo.OptimalHomeBase(crew.Location, due[next].Site.Location, p.bases)
			altKm := geo.RoadDistance(crew.Location, p.bases[alt])
			if altKm/crew.speedKmh*60 <= minutesLeft {
				idx, km = alt, altKm
			}
		}
	}
	crew.TravelKm += km
	crew.Location = p.bases[idx]
	return km / crew.speedKmh * 60
}

// nearestDue returns the index of the due site closest to from,
// restricted to overdue sites when any exist. Ties keep the earlier site.
func nearestDue(from geo.Point, due []*DueSite) int {
	anyOverdue := false
	for _, d := range due {
		if d.Overdue {
			anyOverdue = true
			break
		}
	}
	best, bestKm := -1, 0.0
	for i, d := range due {
		if anyOverdue && !d.Overdue {
			continue
		}
		km := geo.Haversine(from, d.Site.Location)
		if best < 0 || km < bestKm {
			best, bestKm = i, km
		}
	}
	return best
}

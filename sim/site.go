package sim

import (
	"fmt"
	"math/rand"

	"github.com/ldar-sim/ldar-sim/sim/dist"
	"github.com/ldar-sim/ldar-sim/sim/geo"
)

// Source is the smallest physical emitter (a valve, a connector, a vent).
// It holds its pre-generated emission timeline in start-day order and the
// subset currently active.
type Source struct {
	ID          string
	EquipmentID string
	GroupID     string
	SiteID      string

	emissions []*Emission
	next      int // index of the first emission not yet activated
	active    []*Emission
	generator *emissionGenerator
}

// NewSource creates an empty source.
func NewSource(id string) *Source {
	return &Source{ID: id}
}

// AddEmission attaches e to the source's timeline. The emission is placed
// among the not-yet-activated emissions in start-day order, after any with
// the same start day.
func (s *Source) AddEmission(e *Emission) {
	e.SiteID, e.GroupID, e.EquipmentID, e.SourceID = s.SiteID, s.GroupID, s.EquipmentID, s.ID
	pos := len(s.emissions)
	for pos > s.next && s.emissions[pos-1].StartDay > e.StartDay {
		pos--
	}
	s.emissions = append(s.emissions, nil)
	copy(s.emissions[pos+1:], s.emissions[pos:])
	s.emissions[pos] = e
}

// Step activates emissions starting today, then updates every active
// emission. Returns the number of emissions activated.
func (s *Source) Step(today int, rng *rand.Rand, tally *UpdateTally) int {
	activated := 0
	for s.next < len(s.emissions) && s.emissions[s.next].StartDay <= today {
		e := s.emissions[s.next]
		if e.Activate(today) {
			s.active = append(s.active, e)
			activated++
		}
		s.next++
	}

	kept := s.active[:0]
	for _, e := range s.active {
		e.Update(today, rng, tally)
		if e.IsActive() {
			kept = append(kept, e)
		}
	}
	clear(s.active[len(kept):])
	s.active = kept
	return activated
}

// Active returns the active emissions in activation order.
func (s *Source) Active() []*Emission { return s.active }

// Emissions returns every emission on the timeline.
func (s *Source) Emissions() []*Emission { return s.emissions }

// Equipment is a physical unit made of sources.
type Equipment struct {
	ID      string
	Sources []*Source
}

// EquipmentGroup is a set of equipment surveyed together.
type EquipmentGroup struct {
	ID        string
	Equipment []*Equipment
}

// SiteMethod holds per-site overrides for one method. Negative values
// mean no override.
type SiteMethod struct {
	SurveysPerYear int
	SurveyMinutes  float64
}

// Site is a facility: a location plus its equipment hierarchy.
type Site struct {
	ID       string
	Location geo.Point
	Groups   []*EquipmentGroup
	Methods  map[string]SiteMethod
}

// Step advances every source on the site by one day. Returns the number
// of emissions activated.
func (s *Site) Step(today int, rng *rand.Rand, tally *UpdateTally) int {
	n := 0
	s.eachSource(func(src *Source) {
		n += src.Step(today, rng, tally)
	})
	return n
}

// ActiveEmissions returns the site's active emissions in structural order.
func (s *Site) ActiveEmissions() []*Emission {
	var out []*Emission
	s.eachSource(func(src *Source) {
		out = append(out, src.active...)
	})
	return out
}

// AllEmissions returns every emission on the site's timelines.
func (s *Site) AllEmissions() []*Emission {
	var out []*Emission
	s.eachSource(func(src *Source) {
		out = append(out, src.emissions...)
	})
	return out
}

// NumGroups returns the number of equipment groups on the site.
func (s *Site) NumGroups() int { return len(s.Groups) }

func (s *Site) eachSource(fn func(*Source)) {
	for _, g := range s.Groups {
		for _, eq := range g.Equipment {
			for _, src := range eq.Sources {
				fn(src)
			}
		}
	}
}

// emissionGenerator draws a source's emission timeline.
type emissionGenerator struct {
	kind           EmissionKind
	production     float64 // probability of a new emission per day
	initial        float64 // probability of an emission already present at day 0
	rate           dist.RateSampler
	lifetime       dist.DaySampler // natural repair days, repairable only
	duration       dist.DaySampler // non-repairable only
	repairDelay    dist.DaySampler
	activeFraction float64
	repairCost     float64
}

func newEmissionGenerator(cfg SourceConfig, defaults EmissionDefaults) (*emissionGenerator, error) {
	g := &emissionGenerator{
		kind:           cfg.Kind,
		production:     cfg.ProductionRate,
		activeFraction: cfg.ActiveFraction,
		repairCost:     defaults.RepairCost,
	}
	if g.kind == "" {
		g.kind = KindRepairable
	}
	if cfg.RepairCost != nil {
		g.repairCost = *cfg.RepairCost
	}

	var err error
	rateSpec := firstSet(cfg.Rate, defaults.Rate)
	if g.rate, err = dist.NewRateSampler(rateSpec); err != nil {
		return nil, fmt.Errorf("rate: %w", err)
	}

	mean := 0.0
	if g.kind == KindRepairable {
		if g.lifetime, err = dist.NewDaySampler(firstSet(cfg.NaturalRepairDays, defaults.NaturalRepairDays)); err != nil {
			return nil, fmt.Errorf("natural_repair_days: %w", err)
		}
		if g.repairDelay, err = dist.NewDaySampler(firstSet(cfg.RepairDelay, defaults.RepairDelay)); err != nil {
			return nil, fmt.Errorf("repair_delay: %w", err)
		}
		mean = g.lifetime.Mean()
	} else {
		if g.duration, err = dist.NewDaySampler(cfg.Duration); err != nil {
			return nil, fmt.Errorf("duration_days: %w", err)
		}
		mean = g.duration.Mean()
	}

	if cfg.InitialProbability != nil {
		g.initial = *cfg.InitialProbability
	} else {
		g.initial = min(1, g.production*mean)
	}
	return g, nil
}

func firstSet(spec, fallback dist.Spec) dist.Spec {
	if spec.IsZero() {
		return fallback
	}
	return spec
}

// generate draws the whole timeline for numDays. Draw order is fixed:
// the pre-existing emission first, then one Bernoulli trial per day.
func (g *emissionGenerator) generate(src *Source, numDays int, rng *rand.Rand) {
	n := 0
	nextID := func() string {
		n++
		return fmt.Sprintf("%s/%s/%05d", src.SiteID, src.ID, n)
	}

	if g.initial > 0 && rng.Float64() < g.initial {
		e := g.draw(nextID(), 0, rng)
		e.StartKnown = false
		span := e.NaturalRepairDays
		if g.kind != KindRepairable {
			span = e.Duration
		}
		if span > 0 {
			e.ActiveDays = rng.Intn(span)
		}
		src.AddEmission(e)
	}
	if g.production <= 0 {
		return
	}
	for day := 0; day < numDays; day++ {
		if rng.Float64() < g.production {
			src.AddEmission(g.draw(nextID(), day, rng))
		}
	}
}

func (g *emissionGenerator) draw(id string, start int, rng *rand.Rand) *Emission {
	params := EmissionParams{
		ID:             id,
		Kind:           g.kind,
		Rate:           g.rate.Sample(rng),
		StartDay:       start,
		StartKnown:     true,
		ActiveFraction: g.activeFraction,
		RepairDelay:    g.repairDelay,
		RepairCost:     g.repairCost,
	}
	if g.kind == KindRepairable {
		params.NaturalRepairDays = g.lifetime.Sample(rng)
	} else {
		params.Duration = g.duration.Sample(rng)
	}
	return NewEmission(params)
}

// BuildSite constructs a site and its hierarchy from configuration. The
// emission timelines are not generated until GenerateEmissions is called.
func BuildSite(cfg SiteConfig, defaults EmissionDefaults) (*Site, error) {
	site := &Site{
		ID:       cfg.ID,
		Location: geo.Pt(cfg.Lat, cfg.Lon),
		Methods:  make(map[string]SiteMethod, len(cfg.Methods)),
	}
	for name, m := range cfg.Methods {
		sm := SiteMethod{SurveysPerYear: -1, SurveyMinutes: -1}
		if m.SurveysPerYear != nil {
			sm.SurveysPerYear = *m.SurveysPerYear
		}
		if m.SurveyMinutes != nil {
			sm.SurveyMinutes = *m.SurveyMinutes
		}
		site.Methods[name] = sm
	}

	for _, gc := range cfg.Groups {
		group := &EquipmentGroup{ID: gc.ID}
		for _, ec := range gc.Equipment {
			eq := &Equipment{ID: ec.ID}
			for _, sc := range ec.Sources {
				gen, err := newEmissionGenerator(sc, defaults)
				if err != nil {
					return nil, fmt.Errorf("site %s source %s: %w", cfg.ID, sc.ID, err)
				}
				src := &Source{ID: sc.ID, EquipmentID: ec.ID, GroupID: gc.ID, SiteID: cfg.ID, generator: gen}
				eq.Sources = append(eq.Sources, src)
			}
			group.Equipment = append(group.Equipment, eq)
		}
		site.Groups = append(site.Groups, group)
	}
	return site, nil
}

// GenerateEmissions draws the emission timeline of every source on the
// site for a run of numDays.
func (s *Site) GenerateEmissions(numDays int, rng *rand.Rand) {
	s.eachSource(func(src *Source) {
		if src.generator != nil {
			src.generator.generate(src, numDays, rng)
		}
	})
}

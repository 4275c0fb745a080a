package sim

import (
	"math"
	"math/rand"

	"github.com/ldar-sim/ldar-sim/sim/dist"
)

// EmissionStatus is the lifecycle state of an emission.
type EmissionStatus string

const (
	StatusInactive EmissionStatus = "inactive"
	StatusActive   EmissionStatus = "active"
	StatusRepaired EmissionStatus = "repaired"
	StatusExpired  EmissionStatus = "expired"
)

// UpdateResult is the outcome of a daily Update.
type UpdateResult string

const (
	NoStatusChange UpdateResult = "no_status_change"
	NatRepaired    UpdateResult = "nat_repaired"
	Repaired       UpdateResult = "repaired"
	Expired        UpdateResult = "expired"
)

// EmissionKind selects the lifecycle rules an emission follows.
type EmissionKind string

const (
	// KindRepairable emissions end when repaired after a tag or when their
	// natural-repair lifetime runs out.
	KindRepairable EmissionKind = "repairable"
	// KindNonRepairable emissions (vents, process emissions) run for a
	// fixed duration and then expire. Tagging does not shorten them.
	KindNonRepairable EmissionKind = "non_repairable"
	// KindIntermittent emissions are non-repairable and only emit on a
	// fraction of their active days.
	KindIntermittent EmissionKind = "intermittent"
)

var validEmissionKinds = map[EmissionKind]bool{
	"":                true,
	KindRepairable:    true,
	KindNonRepairable: true,
	KindIntermittent:  true,
}

// IsValidEmissionKind returns true if kind is a recognized emission kind.
// An empty kind means repairable.
func IsValidEmissionKind(kind string) bool {
	return validEmissionKinds[EmissionKind(kind)]
}

// TaggedByNatural is the TaggedBy value of an emission that repaired
// itself without an LDAR tag.
const TaggedByNatural = "natural"

// UpdateTally accumulates status transitions across all sources for a day.
type UpdateTally struct {
	NatRepaired int
	Repaired    int
	Expired     int
	RepairCost  float64
}

// EmissionParams describes a new emission before it is attached to a source.
type EmissionParams struct {
	ID                string
	Kind              EmissionKind
	Rate              float64 // g/s
	StartDay          int
	StartKnown        bool // false for emissions present before the run began
	PriorActiveDays   int  // age at day 0 of a pre-existing emission
	NaturalRepairDays int
	Duration          int // non-repairable lifetime in days
	ActiveFraction    float64
	RepairDelay       dist.DaySampler // nil means repair the day after tagging
	RepairCost        float64
}

// Emission is a single leak or vent. Fields are exported for reporting;
// state changes only through Activate, Update and Tag.
type Emission struct {
	ID          string
	SiteID      string
	GroupID     string
	EquipmentID string
	SourceID    string
	Kind        EmissionKind
	Rate        float64

	StartDay          int
	StartKnown        bool
	EstimatedStartDay int
	EndDay            int // -1 while not finished
	Status            EmissionStatus
	ActiveDays        int
	EmittingDays      int // days on which the emission actually emitted

	Tagged          bool
	TaggedBy        string
	TaggedByCrew    string
	DayTagged       int
	DaysSinceTagged int
	RepairDelay     int

	NaturalRepairDays int
	Duration          int
	ActiveFraction    float64
	RepairCost        float64

	repairDelay   dist.DaySampler
	emittingToday bool
}

// NewEmission returns an inactive emission built from params.
func NewEmission(params EmissionParams) *Emission {
	kind := params.Kind
	if kind == "" {
		kind = KindRepairable
	}
	fraction := params.ActiveFraction
	if kind != KindIntermittent {
		fraction = 1
	}
	return &Emission{
		ID:                params.ID,
		Kind:              kind,
		Rate:              params.Rate,
		StartDay:          params.StartDay,
		StartKnown:        params.StartKnown,
		EstimatedStartDay: params.StartDay,
		EndDay:            -1,
		Status:            StatusInactive,
		ActiveDays:        params.PriorActiveDays,
		DayTagged:         -1,
		NaturalRepairDays: params.NaturalRepairDays,
		Duration:          params.Duration,
		ActiveFraction:    fraction,
		RepairCost:        params.RepairCost,
		repairDelay:       params.RepairDelay,
	}
}

// Activate turns an inactive emission on once today reaches its start day.
// Returns true if the emission became active.
func (e *Emission) Activate(today int) bool {
	if e.Status != StatusInactive || today < e.StartDay {
		return false
	}
	e.Status = StatusActive
	e.emittingToday = true
	return true
}

// Update advances an active emission by one day. End conditions are
// checked before the day is counted, so an emission repaired today did not
// emit today. Transitions are added to tally. rng is only drawn from for
// intermittent emissions.
func (e *Emission) Update(today int, rng *rand.Rand, tally *UpdateTally) UpdateResult {
	if e.Status != StatusActive {
		return NoStatusChange
	}

	switch e.Kind {
	case KindRepairable:
		if e.Tagged {
			if e.DaysSinceTagged >= e.RepairDelay {
				e.finish(StatusRepaired, today)
				tally.Repaired++
				tally.RepairCost += e.RepairCost
				return Repaired
			}
			e.DaysSinceTagged++
		} else if e.ActiveDays >= e.NaturalRepairDays {
			e.TaggedBy = TaggedByNatural
			e.finish(StatusRepaired, today)
			tally.NatRepaired++
			return NatRepaired
		}
	default:
		if e.ActiveDays >= e.Duration {
			e.finish(StatusExpired, today)
			tally.Expired++
			return Expired
		}
		if e.Tagged {
			e.DaysSinceTagged++
		}
		if e.Kind == KindIntermittent {
			e.emittingToday = rng.Float64() < e.ActiveFraction
		}
	}

	e.ActiveDays++
	if e.emittingToday {
		e.EmittingDays++
	}
	return NoStatusChange
}

func (e *Emission) finish(status EmissionStatus, today int) {
	e.Status = status
	e.EndDay = today
	e.emittingToday = false
}

// Tag marks an active emission as found by company's crew. Returns false
// when the emission is already tagged or not active. The repair delay is
// resolved here, once per emission.
func (e *Emission) Tag(company, crew string, today int, rng *rand.Rand) bool {
	if e.Status != StatusActive || e.Tagged {
		return false
	}
	e.Tagged = true
	e.TaggedBy = company
	e.TaggedByCrew = crew
	e.DayTagged = today
	e.DaysSinceTagged = 0
	if e.Kind == KindRepairable && e.repairDelay != nil {
		e.RepairDelay = e.repairDelay.Sample(rng)
	}
	return true
}

// IsActive reports whether the emission is currently active.
func (e *Emission) IsActive() bool { return e.Status == StatusActive }

// CurrentRate is the rate the emission contributes today: its rate while
// active and emitting, otherwise zero.
func (e *Emission) CurrentRate() float64 {
	if e.Status != StatusActive || !e.emittingToday {
		return 0
	}
	return e.Rate
}

// VolumeKg is the mass emitted so far within the simulated period.
func (e *Emission) VolumeKg() float64 {
	return e.Rate * secondsPerDay * float64(e.EmittingDays) / 1000
}

const secondsPerDay = 86400

// EstimateStartDay guesses when an emission with an unknown start began:
// half the time since the previous survey before today, floored at day 0.
func EstimateStartDay(today, daysSinceSurvey int) int {
	return max(0, int(math.Floor(float64(today)-float64(daysSinceSurvey)/2)))
}

// DefaultDaysSinceSurvey is the assumed survey gap for a site never
// surveyed in the run: one survey interval at surveysPerYear.
func DefaultDaysSinceSurvey(surveysPerYear int) int {
	if surveysPerYear <= 0 {
		return 365
	}
	return int(math.Ceil(365 / float64(surveysPerYear)))
}

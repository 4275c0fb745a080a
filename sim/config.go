package sim

import (
	"fmt"
	"math"
	"time"

	"github.com/ldar-sim/ldar-sim/sim/dist"
	"github.com/ldar-sim/ldar-sim/sim/geo"
	"github.com/ldar-sim/ldar-sim/sim/sensor"
	"github.com/ldar-sim/ldar-sim/sim/trace"
)

// Defaults applied to unset method fields.
const (
	DefaultMaxWorkdayHours       = 8.0
	DefaultSurveyMinutesPerGroup = 60.0
	DefaultTravelMinutes         = 30.0
	DefaultSpeedKmh              = 60.0
	DefaultNaturalRepairDays     = 365
	DefaultRepairDelayDays       = 14
)

// WeatherThresholds bound the conditions a crew will work in.
// Nil bounds are not checked.
type WeatherThresholds struct {
	MinTempC         *float64 `yaml:"min_temp"`
	MaxWindMps       *float64 `yaml:"max_wind"`
	MaxPrecipMm      *float64 `yaml:"max_precip"`
	RequireDaylight  bool     `yaml:"require_daylight"`
	MinDaylightHours float64  `yaml:"min_daylight_hours"`
}

// CostConfig holds the method's cost model.
type CostConfig struct {
	PerDay  float64 `yaml:"per_day"`  // per crew per working day
	PerSite float64 `yaml:"per_site"` // per completed survey
	Upfront float64 `yaml:"upfront"`  // once, on the first day
}

// SchedulingConfig selects how crews pick sites.
type SchedulingConfig struct {
	Mode            string      `yaml:"mode"` // "simple" (default), "cluster" or "route"
	HomeBases       []geo.Point `yaml:"home_bases"`
	SpeedKmh        []float64   `yaml:"speed_kmh"` // route mode; one value drawn per crew-day
	OptimalHomeBase bool        `yaml:"optimal_home_base"`
}

// MethodConfig configures one LDAR method, run by one company.
type MethodConfig struct {
	Name       string            `yaml:"name"`
	Sensor     sensor.Config     `yaml:"sensor"`
	Crews      int               `yaml:"crews"` // 0 = estimate from workload
	Scheduling SchedulingConfig  `yaml:"scheduling"`
	Weather    WeatherThresholds `yaml:"weather"`
	Cost       CostConfig        `yaml:"cost"`

	SurveysPerYear        int       `yaml:"surveys_per_year"`
	MinIntervalDays       *int      `yaml:"min_interval_days"`
	MaxWorkdayHours       float64   `yaml:"max_workday_hours"`
	SurveyMinutesPerGroup float64   `yaml:"survey_minutes_per_group"`
	TravelMinutes         dist.Spec `yaml:"travel_minutes"` // between sites, simple and cluster modes
	ReportingDelay        int       `yaml:"reporting_delay"`

	DeploymentYears  []int `yaml:"deployment_years"`
	DeploymentMonths []int `yaml:"deployment_months"`

	Tagging           string  `yaml:"tagging"` // "tag" (default) or "flag"
	FollowUpThreshold float64 `yaml:"follow_up_threshold"`
	FollowUp          bool    `yaml:"follow_up"` // surveys flagged sites instead of a schedule
}

// ValidSchedulingModes is the set of recognized scheduling modes.
var ValidSchedulingModes = map[string]bool{"": true, "simple": true, "cluster": true, "route": true}

// ValidTaggingModes is the set of recognized tagging modes.
var ValidTaggingModes = map[string]bool{"": true, "tag": true, "flag": true}

// WithDefaults returns a copy of m with unset fields filled in.
func (m MethodConfig) WithDefaults() MethodConfig {
	if m.MaxWorkdayHours == 0 {
		m.MaxWorkdayHours = DefaultMaxWorkdayHours
	}
	if m.SurveyMinutesPerGroup == 0 {
		m.SurveyMinutesPerGroup = DefaultSurveyMinutesPerGroup
	}
	if m.TravelMinutes.IsZero() {
		m.TravelMinutes = dist.Constant(DefaultTravelMinutes)
	}
	if len(m.Scheduling.SpeedKmh) == 0 {
		m.Scheduling.SpeedKmh = []float64{DefaultSpeedKmh}
	}
	if m.Scheduling.Mode == "" {
		m.Scheduling.Mode = "simple"
	}
	if m.Tagging == "" {
		m.Tagging = "tag"
	}
	return m
}

// Validate checks names, modes and parameter ranges.
func (m MethodConfig) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("method name is required")
	}
	if !ValidSchedulingModes[m.Scheduling.Mode] {
		return fmt.Errorf("method %s: unknown scheduling mode %q", m.Name, m.Scheduling.Mode)
	}
	if !ValidTaggingModes[m.Tagging] {
		return fmt.Errorf("method %s: unknown tagging mode %q", m.Name, m.Tagging)
	}
	if m.Crews < 0 {
		return fmt.Errorf("method %s: crews must be non-negative, got %d", m.Name, m.Crews)
	}
	if m.SurveysPerYear < 0 {
		return fmt.Errorf("method %s: surveys_per_year must be non-negative, got %d", m.Name, m.SurveysPerYear)
	}
	if m.MinIntervalDays != nil && *m.MinIntervalDays < 0 {
		return fmt.Errorf("method %s: min_interval_days must be non-negative, got %d", m.Name, *m.MinIntervalDays)
	}
	if m.MaxWorkdayHours < 0 || m.MaxWorkdayHours > 24 {
		return fmt.Errorf("method %s: max_workday_hours must be in [0, 24], got %f", m.Name, m.MaxWorkdayHours)
	}
	if m.SurveyMinutesPerGroup < 0 {
		return fmt.Errorf("method %s: survey_minutes_per_group must be non-negative, got %f", m.Name, m.SurveyMinutesPerGroup)
	}
	if m.ReportingDelay < 0 {
		return fmt.Errorf("method %s: reporting_delay must be non-negative, got %d", m.Name, m.ReportingDelay)
	}
	for _, v := range m.Scheduling.SpeedKmh {
		if v <= 0 || math.IsNaN(v) {
			return fmt.Errorf("method %s: speed_kmh values must be positive, got %f", m.Name, v)
		}
	}
	for _, mo := range m.DeploymentMonths {
		if mo < 1 || mo > 12 {
			return fmt.Errorf("method %s: deployment month %d outside 1-12", m.Name, mo)
		}
	}
	if m.Cost.PerDay < 0 || m.Cost.PerSite < 0 || m.Cost.Upfront < 0 {
		return fmt.Errorf("method %s: costs must be non-negative", m.Name)
	}
	if m.Weather.MinDaylightHours < 0 || m.Weather.MinDaylightHours > 24 {
		return fmt.Errorf("method %s: min_daylight_hours must be in [0, 24], got %f", m.Name, m.Weather.MinDaylightHours)
	}
	if m.FollowUp && m.Tagging == "flag" {
		return fmt.Errorf("method %s: a follow-up method must tag, not flag", m.Name)
	}
	return nil
}

// ProgramConfig is a named combination of methods run together.
type ProgramConfig struct {
	Name    string         `yaml:"name"`
	Methods []MethodConfig `yaml:"methods"`
}

// Validate checks the program and each of its methods.
func (p ProgramConfig) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("program name is required")
	}
	if len(p.Methods) == 0 {
		return fmt.Errorf("program %s has no methods", p.Name)
	}
	seen := make(map[string]bool, len(p.Methods))
	flags, followUps := false, false
	for _, m := range p.Methods {
		flags = flags || m.Tagging == "flag"
		followUps = followUps || m.FollowUp
		if seen[m.Name] {
			return fmt.Errorf("program %s: duplicate method %q", p.Name, m.Name)
		}
		seen[m.Name] = true
		if err := m.WithDefaults().Validate(); err != nil {
			return fmt.Errorf("program %s: %w", p.Name, err)
		}
	}
	if flags && !followUps {
		return fmt.Errorf("program %s: flagging methods need a follow_up method", p.Name)
	}
	if followUps && !flags {
		return fmt.Errorf("program %s: follow_up methods need a flagging method", p.Name)
	}
	return nil
}

// EmissionDefaults apply to sources that leave a field unset.
type EmissionDefaults struct {
	Rate              dist.Spec `yaml:"rate"`
	NaturalRepairDays dist.Spec `yaml:"natural_repair_days"`
	RepairDelay       dist.Spec `yaml:"repair_delay"`
	RepairCost        float64   `yaml:"repair_cost"`
}

// WithDefaults fills unset distributions.
func (d EmissionDefaults) WithDefaults() EmissionDefaults {
	if d.NaturalRepairDays.IsZero() {
		d.NaturalRepairDays = dist.Constant(DefaultNaturalRepairDays)
	}
	if d.RepairDelay.IsZero() {
		d.RepairDelay = dist.Constant(DefaultRepairDelayDays)
	}
	return d
}

// SimulationConfig holds run-wide settings shared by all programs.
type SimulationConfig struct {
	Start     time.Time
	End       time.Time
	Emissions EmissionDefaults
	Trace     trace.TraceLevel
}

// Validate checks the date range and trace level.
func (c SimulationConfig) Validate() error {
	if c.Start.IsZero() || c.End.IsZero() {
		return fmt.Errorf("start and end dates are required")
	}
	if c.End.Before(c.Start) {
		return fmt.Errorf("end date %s is before start date %s", c.End.Format(time.DateOnly), c.Start.Format(time.DateOnly))
	}
	if !trace.IsValidTraceLevel(string(c.Trace)) {
		return fmt.Errorf("unknown trace level %q", c.Trace)
	}
	return nil
}

// SiteConfig describes one facility.
type SiteConfig struct {
	ID      string                      `yaml:"id"`
	Lat     float64                     `yaml:"lat"`
	Lon     float64                     `yaml:"lon"`
	Groups  []GroupConfig               `yaml:"equipment_groups"`
	Methods map[string]SiteMethodConfig `yaml:"methods"`
}

// SiteMethodConfig overrides method settings at one site.
type SiteMethodConfig struct {
	SurveysPerYear *int     `yaml:"surveys_per_year"`
	SurveyMinutes  *float64 `yaml:"survey_minutes"`
}

// GroupConfig describes an equipment group.
type GroupConfig struct {
	ID        string            `yaml:"id"`
	Equipment []EquipmentConfig `yaml:"equipment"`
}

// EquipmentConfig describes one piece of equipment.
type EquipmentConfig struct {
	ID      string         `yaml:"id"`
	Sources []SourceConfig `yaml:"sources"`
}

// SourceConfig describes one emission source and the emissions it produces.
type SourceConfig struct {
	ID                 string       `yaml:"id"`
	Kind               EmissionKind `yaml:"kind"`
	ProductionRate     float64      `yaml:"production_rate"` // P(new emission) per day
	Rate               dist.Spec    `yaml:"rate"`
	NaturalRepairDays  dist.Spec    `yaml:"natural_repair_days"`
	RepairDelay        dist.Spec    `yaml:"repair_delay"`
	Duration           dist.Spec    `yaml:"duration_days"`
	ActiveFraction     float64      `yaml:"active_fraction"`
	RepairCost         *float64     `yaml:"repair_cost"`
	InitialProbability *float64     `yaml:"initial_probability"`
}

// Validate checks identifiers and ranges of the site and its hierarchy.
func (s SiteConfig) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("site id is required")
	}
	if s.Lat < -90 || s.Lat > 90 || s.Lon < -180 || s.Lon > 180 {
		return fmt.Errorf("site %s: coordinates (%f, %f) out of range", s.ID, s.Lat, s.Lon)
	}
	ids := make(map[string]bool)
	for _, g := range s.Groups {
		if g.ID == "" {
			return fmt.Errorf("site %s: equipment group id is required", s.ID)
		}
		for _, eq := range g.Equipment {
			if eq.ID == "" {
				return fmt.Errorf("site %s group %s: equipment id is required", s.ID, g.ID)
			}
			for _, src := range eq.Sources {
				if src.ID == "" {
					return fmt.Errorf("site %s equipment %s: source id is required", s.ID, eq.ID)
				}
				if ids[src.ID] {
					return fmt.Errorf("site %s: duplicate source id %q", s.ID, src.ID)
				}
				ids[src.ID] = true
				if err := src.validate(); err != nil {
					return fmt.Errorf("site %s source %s: %w", s.ID, src.ID, err)
				}
			}
		}
	}
	return nil
}

func (s SourceConfig) validate() error {
	if !IsValidEmissionKind(string(s.Kind)) {
		return fmt.Errorf("unknown emission kind %q", s.Kind)
	}
	if s.ProductionRate < 0 || s.ProductionRate > 1 {
		return fmt.Errorf("production_rate must be in [0, 1], got %f", s.ProductionRate)
	}
	if s.InitialProbability != nil && (*s.InitialProbability < 0 || *s.InitialProbability > 1) {
		return fmt.Errorf("initial_probability must be in [0, 1], got %f", *s.InitialProbability)
	}
	if s.Kind == KindIntermittent && (s.ActiveFraction <= 0 || s.ActiveFraction > 1) {
		return fmt.Errorf("intermittent sources need active_fraction in (0, 1], got %f", s.ActiveFraction)
	}
	if (s.Kind == KindNonRepairable || s.Kind == KindIntermittent) && s.Duration.IsZero() {
		return fmt.Errorf("%s sources need duration_days", s.Kind)
	}
	return nil
}

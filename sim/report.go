package sim

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ldar-sim/ldar-sim/sim/sensor"
)

var (
	// ErrReportClosed is returned when writing to a finished survey report.
	ErrReportClosed = errors.New("survey report is closed")
	// ErrReportOpen is returned when a site already has an open survey.
	ErrReportOpen = errors.New("survey report already open")
)

// DetectionRecord is one positive detection within a survey.
type DetectionRecord struct {
	Day          int
	SiteID       string
	GroupID      string // empty at site granularity
	EquipmentID  string // empty above equipment granularity
	EmissionIDs  []string
	Company      string
	Crew         string
	Granularity  sensor.Granularity
	TrueRate     float64
	MeasuredRate float64
}

// SurveyReport is the running record of one site visit. It stays open
// while a multi-day survey is in progress and is closed when the survey
// completes.
type SurveyReport struct {
	SiteID  string
	Company string
	Crew    string

	StartDay      int
	EndDay        int // -1 while open
	SurveyMinutes float64
	TravelMinutes float64

	TrueRate          float64
	MeasuredRate      float64
	EmissionsDetected int
	MissedEmissions   int
	Detections        []DetectionRecord

	closed          bool
	filled          bool
	detected        [][]*Emission // parallel to Detections
	daysSinceSurvey int           // gap to the previous survey, for start-day estimates
}

// NewSurveyReport opens a report for a visit starting on startDay.
func NewSurveyReport(siteID, company, crew string, startDay int, minutes float64) *SurveyReport {
	return &SurveyReport{
		SiteID:        siteID,
		Company:       company,
		Crew:          crew,
		StartDay:      startDay,
		EndDay:        -1,
		SurveyMinutes: minutes,
	}
}

// AddDetection records a positive detection and the emissions it covers.
func (r *SurveyReport) AddDetection(rec DetectionRecord, emissions []*Emission) error {
	if r.closed {
		return fmt.Errorf("add detection to %s: %w", r.SiteID, ErrReportClosed)
	}
	r.Detections = append(r.Detections, rec)
	r.detected = append(r.detected, emissions)
	r.EmissionsDetected += len(emissions)
	return nil
}

// Fill records the site's true rate and the total measured rate.
func (r *SurveyReport) Fill(trueRate, measuredRate float64) error {
	if r.closed {
		return fmt.Errorf("fill report for %s: %w", r.SiteID, ErrReportClosed)
	}
	r.TrueRate = trueRate
	r.MeasuredRate = measuredRate
	r.filled = true
	return nil
}

// Close finalizes the report on day.
func (r *SurveyReport) Close(day int) error {
	if r.closed {
		return fmt.Errorf("close report for %s: %w", r.SiteID, ErrReportClosed)
	}
	r.closed = true
	r.EndDay = day
	return nil
}

// Closed reports whether the survey has completed.
func (r *SurveyReport) Closed() bool { return r.closed }

// Filled reports whether Fill has been called.
func (r *SurveyReport) Filled() bool { return r.filled }

// Timeseries holds one value per simulated day for each named metric.
// Metrics are created on first write and remember their insertion order.
type Timeseries struct {
	days   int
	series map[string][]float64
	order  []string
}

// NewTimeseries allocates a timeseries covering days days.
func NewTimeseries(days int) *Timeseries {
	return &Timeseries{days: days, series: make(map[string][]float64)}
}

// Add accumulates v into metric on day. Panics if day is out of range.
func (ts *Timeseries) Add(metric string, day int, v float64) {
	if day < 0 || day >= ts.days {
		panic(fmt.Sprintf("Timeseries.Add: day %d outside [0, %d)", day, ts.days))
	}
	s, ok := ts.series[metric]
	if !ok {
		s = make([]float64, ts.days)
		ts.series[metric] = s
		ts.order = append(ts.order, metric)
	}
	s[day] += v
}

// Get returns the values for metric, or nil if it was never written.
func (ts *Timeseries) Get(metric string) []float64 { return ts.series[metric] }

// Metrics lists metric names in insertion order.
func (ts *Timeseries) Metrics() []string { return ts.order }

// Days returns the length of every series.
func (ts *Timeseries) Days() int { return ts.days }

// Total sums a metric over all days.
func (ts *Timeseries) Total(metric string) float64 {
	s := ts.series[metric]
	if len(s) == 0 {
		return 0
	}
	return floats.Sum(s)
}

// EmissionSummary is the end-of-run record of a single emission.
type EmissionSummary struct {
	ID                string
	SiteID            string
	GroupID           string
	EquipmentID       string
	SourceID          string
	Kind              EmissionKind
	Status            EmissionStatus
	Rate              float64
	StartDay          int
	StartKnown        bool
	EstimatedStartDay int
	EndDay            int
	ActiveDays        int
	EmittingDays      int
	VolumeKg          float64
	Tagged            bool
	TaggedBy          string
	TaggedByCrew      string
	DayTagged         int
}

func summarizeEmission(e *Emission) EmissionSummary {
	return EmissionSummary{
		ID:                e.ID,
		SiteID:            e.SiteID,
		GroupID:           e.GroupID,
		EquipmentID:       e.EquipmentID,
		SourceID:          e.SourceID,
		Kind:              e.Kind,
		Status:            e.Status,
		Rate:              e.Rate,
		StartDay:          e.StartDay,
		StartKnown:        e.StartKnown,
		EstimatedStartDay: e.EstimatedStartDay,
		EndDay:            e.EndDay,
		ActiveDays:        e.ActiveDays,
		EmittingDays:      e.EmittingDays,
		VolumeKg:          e.VolumeKg(),
		Tagged:            e.Tagged,
		TaggedBy:          e.TaggedBy,
		TaggedByCrew:      e.TaggedByCrew,
		DayTagged:         e.DayTagged,
	}
}

// RunSummary condenses a program run into headline statistics.
// Emissions that never activated are excluded.
type RunSummary struct {
	Emissions   int
	Tagged      int
	NatRepaired int
	Repaired    int
	Expired     int
	StillActive int

	TotalVolumeKg    float64
	MeanRate         float64
	StdRate          float64
	MeanActiveDays   float64
	MedianActiveDays float64
	P90ActiveDays    float64

	MeanDailyEmissionsKg float64
	TotalCost            float64
}

// Summarize computes a RunSummary from the emission records, the daily
// emissions metric and the cost metrics of the timeseries.
func Summarize(emissions []EmissionSummary, ts *Timeseries, costMetrics []string) RunSummary {
	var s RunSummary
	var rates, durations []float64
	for _, e := range emissions {
		if e.Status == StatusInactive {
			continue
		}
		s.Emissions++
		if e.Tagged {
			s.Tagged++
		}
		switch e.Status {
		case StatusActive:
			s.StillActive++
		case StatusExpired:
			s.Expired++
		case StatusRepaired:
			if e.TaggedBy == TaggedByNatural {
				s.NatRepaired++
			} else {
				s.Repaired++
			}
		}
		s.TotalVolumeKg += e.VolumeKg
		rates = append(rates, e.Rate)
		durations = append(durations, float64(e.ActiveDays))
	}

	if len(rates) > 0 {
		s.MeanRate = stat.Mean(rates, nil)
		s.MeanActiveDays = stat.Mean(durations, nil)
		sort.Float64s(durations)
		s.MedianActiveDays = stat.Quantile(0.5, stat.Empirical, durations, nil)
		s.P90ActiveDays = stat.Quantile(0.9, stat.Empirical, durations, nil)
	}
	if len(rates) > 1 {
		s.StdRate = stat.StdDev(rates, nil)
	}

	if ts != nil {
		if daily := ts.Get(MetricEmissionsKg); len(daily) > 0 {
			s.MeanDailyEmissionsKg = stat.Mean(daily, nil)
		}
		for _, m := range costMetrics {
			s.TotalCost += ts.Total(m)
		}
	}
	if math.IsNaN(s.StdRate) {
		s.StdRate = 0
	}
	return s
}

package sim

import (
	"fmt"
	"math"
)

// SurveyPlanner tracks one company's survey history at one site and
// decides when the site is next due.
type SurveyPlanner struct {
	SiteID         string
	SurveysPerYear int
	MinInterval    int // minimum days between surveys

	lastSurveyDay int // -1 if never surveyed
	surveysByYear map[int]int
	active        *SurveyReport
}

// NewSurveyPlanner creates a planner. A negative minInterval selects the
// default of half the nominal survey interval.
func NewSurveyPlanner(siteID string, surveysPerYear, minInterval int) *SurveyPlanner {
	if minInterval < 0 {
		minInterval = DefaultMinInterval(surveysPerYear)
	}
	return &SurveyPlanner{
		SiteID:         siteID,
		SurveysPerYear: surveysPerYear,
		MinInterval:    minInterval,
		lastSurveyDay:  -1,
		surveysByYear:  make(map[int]int),
	}
}

// DefaultMinInterval is half the nominal interval between surveys.
func DefaultMinInterval(surveysPerYear int) int {
	if surveysPerYear <= 0 {
		return 0
	}
	return (365 / surveysPerYear) / 2
}

// ActiveReport returns the open report, or nil.
func (p *SurveyPlanner) ActiveReport() *SurveyReport { return p.active }

// Open registers r as the site's open report. At most one report may be
// open per site and company.
func (p *SurveyPlanner) Open(r *SurveyReport, today int) error {
	if p.active != nil {
		return fmt.Errorf("site %s: %w", p.SiteID, ErrReportOpen)
	}
	if since, ok := p.DaysSinceLastSurvey(today); ok {
		r.daysSinceSurvey = since
	} else {
		r.daysSinceSurvey = DefaultDaysSinceSurvey(p.SurveysPerYear)
	}
	p.active = r
	return nil
}

// Close closes the open report on day and counts the survey toward
// day's calendar year.
func (p *SurveyPlanner) Close(day Day) (*SurveyReport, error) {
	r := p.active
	if r == nil {
		return nil, fmt.Errorf("site %s: no open survey report", p.SiteID)
	}
	if err := r.Close(day.Step); err != nil {
		return nil, err
	}
	p.active = nil
	p.lastSurveyDay = day.Step
	p.surveysByYear[day.Year()]++
	return r, nil
}

// SurveysIn returns the number of completed surveys in a calendar year.
func (p *SurveyPlanner) SurveysIn(year int) int { return p.surveysByYear[year] }

// LastSurveyDay returns the day the last survey closed.
func (p *SurveyPlanner) LastSurveyDay() (int, bool) {
	return p.lastSurveyDay, p.lastSurveyDay >= 0
}

// DaysSinceLastSurvey returns days elapsed since the last completed survey.
func (p *SurveyPlanner) DaysSinceLastSurvey(today int) (int, bool) {
	if p.lastSurveyDay < 0 {
		return 0, false
	}
	return today - p.lastSurveyDay, true
}

// IsDue reports whether the site should be surveyed: no survey is open,
// the yearly quota is not met and the minimum interval has elapsed.
func (p *SurveyPlanner) IsDue(day Day) bool {
	if p.active != nil || p.SurveysPerYear <= 0 {
		return false
	}
	if p.surveysByYear[day.Year()] >= p.SurveysPerYear {
		return false
	}
	if since, ok := p.DaysSinceLastSurvey(day.Step); ok && since < p.MinInterval {
		return false
	}
	return true
}

// Deadline is the last day the next survey of this year should happen.
// Surveys are spread evenly: the (n+1)th is due by ceil(365/RS*(n+1)) days
// into the year.
func (p *SurveyPlanner) Deadline(day Day) int {
	if p.SurveysPerYear <= 0 {
		return math.MaxInt
	}
	interval := 365 / float64(p.SurveysPerYear)
	n := p.surveysByYear[day.Year()]
	return day.YearStart + int(math.Ceil(interval*float64(n+1))) - 1
}

// Overdue reports whether the deadline has passed.
func (p *SurveyPlanner) Overdue(day Day) bool {
	return day.Step > p.Deadline(day)
}

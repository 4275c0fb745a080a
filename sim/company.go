package sim

import (
	"fmt"
	"math"
	"math/rand"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ldar-sim/ldar-sim/sim/dist"
	"github.com/ldar-sim/ldar-sim/sim/geo"
	"github.com/ldar-sim/ldar-sim/sim/sensor"
	"github.com/ldar-sim/ldar-sim/sim/trace"
	"github.com/ldar-sim/ldar-sim/sim/weather"
)

// surveyEpsilon absorbs float residue when comparing remaining minutes.
const surveyEpsilon = 1e-9

// CompanyCounters are the per-day (or cumulative) outcomes of a company.
type CompanyCounters struct {
	Tags          int
	RedundantTags int // detections of emissions another survey already tagged
	Missed        int // emitting emissions a completed survey failed to detect
	SitesSurveyed int
	CrewsDeployed int
	Flags         int
	Cost          float64
}

func (c *CompanyCounters) add(o CompanyCounters) {
	c.Tags += o.Tags
	c.RedundantTags += o.RedundantTags
	c.Missed += o.Missed
	c.SitesSurveyed += o.SitesSurveyed
	c.CrewsDeployed += o.CrewsDeployed
	c.Flags += o.Flags
	c.Cost += o.Cost
}

// pendingRelease is a completed survey whose findings have not been
// reported yet.
type pendingRelease struct {
	day    int
	report *SurveyReport
}

// Company runs one LDAR method across a program's sites: it owns the
// method's crews, sensor, scheduling policy and per-site planners.
type Company struct {
	Name string

	cfg       MethodConfig
	sensor    sensor.Sensor
	policy    SchedulingPolicy
	travel    dist.RateSampler
	crews     []*Crew
	sites     []*Site
	planners  []*SurveyPlanner // parallel to sites
	bySite    map[string]int
	rng       *rand.Rand
	queue     *SiteQueue
	pending   []pendingRelease
	followUps *FollowUpQueue
	trace     *trace.DispatchTrace

	today   CompanyCounters
	totals  CompanyCounters
	started bool
}

// NewCompany builds a company for cfg over sites. rng is the company's
// own stream; followUps is shared with the other companies of the program.
// dt may be nil.
func NewCompany(cfg MethodConfig, sites []*Site, rng *rand.Rand, followUps *FollowUpQueue, dt *trace.DispatchTrace) (*Company, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sn, err := sensor.New(cfg.Sensor)
	if err != nil {
		return nil, fmt.Errorf("method %s: %w", cfg.Name, err)
	}
	travel, err := dist.NewRateSampler(cfg.TravelMinutes)
	if err != nil {
		return nil, fmt.Errorf("method %s: travel_minutes: %w", cfg.Name, err)
	}
	policy, err := NewSchedulingPolicy(cfg.Scheduling, travel)
	if err != nil {
		return nil, fmt.Errorf("method %s: %w", cfg.Name, err)
	}
	if followUps == nil {
		followUps = NewFollowUpQueue()
	}

	c := &Company{
		Name:      cfg.Name,
		cfg:       cfg,
		sensor:    sn,
		policy:    policy,
		travel:    travel,
		sites:     sites,
		bySite:    make(map[string]int, len(sites)),
		rng:       rng,
		queue:     NewSiteQueue(),
		followUps: followUps,
		trace:     dt,
	}
	minInterval := -1
	if cfg.MinIntervalDays != nil {
		minInterval = *cfg.MinIntervalDays
	}
	for i, s := range sites {
		c.planners = append(c.planners, NewSurveyPlanner(s.ID, c.surveysPerYear(s), minInterval))
		c.bySite[s.ID] = i
	}

	n := cfg.Crews
	if n == 0 {
		n = c.estimateCrews()
		logrus.Warnf("method %s: estimated %d crew(s) for %d site(s)", cfg.Name, n, len(sites))
	}
	c.buildCrews(n)
	c.policy.Prepare(c, rng)
	return c, nil
}

func (c *Company) buildCrews(n int) {
	pts := make([]geo.Point, len(c.sites))
	for i, s := range c.sites {
		pts[i] = s.Location
	}
	centre := geo.Centroid(pts)
	bases := c.cfg.Scheduling.HomeBases
	for i := 0; i < n; i++ {
		home := centre
		if len(bases) > 0 {
			home = bases[i%len(bases)]
		}
		c.crews = append(c.crews, &Crew{
			ID:        fmt.Sprintf("%s_crew_%d", c.Name, i),
			Company:   c.Name,
			Index:     i,
			Home:      home,
			Location:  home,
			Territory: -1,
		})
	}
}

func (c *Company) surveysPerYear(s *Site) int {
	if sm, ok := s.Methods[c.Name]; ok && sm.SurveysPerYear >= 0 {
		return sm.SurveysPerYear
	}
	if c.cfg.FollowUp {
		return 0
	}
	return c.cfg.SurveysPerYear
}

func (c *Company) surveyMinutes(s *Site) float64 {
	if sm, ok := s.Methods[c.Name]; ok && sm.SurveyMinutes >= 0 {
		return sm.SurveyMinutes
	}
	return c.cfg.SurveyMinutesPerGroup * float64(max(1, s.NumGroups()))
}

func (c *Company) estimateCrews() int {
	count, totalRS, totalMinutes := 0, 0.0, 0.0
	for i, s := range c.sites {
		rs := c.planners[i].SurveysPerYear
		if rs <= 0 {
			continue
		}
		count++
		totalRS += float64(rs)
		totalMinutes += c.surveyMinutes(s)
	}
	if count == 0 {
		return 1
	}
	return EstimateCrewCount(CrewEstimate{
		Sites:          count,
		SurveysPerYear: totalRS / float64(count),
		SurveyMinutes:  totalMinutes / float64(count),
		TravelMinutes:  c.travel.Mean(),
		WorkdayMinutes: c.cfg.MaxWorkdayHours * 60,
	})
}

// Crews returns the company's crews in index order.
func (c *Company) Crews() []*Crew { return c.crews }

// Planner returns the planner for a site, or nil.
func (c *Company) Planner(siteID string) *SurveyPlanner {
	i, ok := c.bySite[siteID]
	if !ok {
		return nil
	}
	return c.planners[i]
}

// Config returns the method configuration with defaults applied.
func (c *Company) Config() MethodConfig { return c.cfg }

// Today returns the counters accumulated by the last Dispatch.
func (c *Company) Today() CompanyCounters { return c.today }

// Totals returns the counters accumulated over the run.
func (c *Company) Totals() CompanyCounters { return c.totals }

// Dispatch runs the company's work for one day: releases delayed
// findings, then sends each eligible crew through the day's due sites in
// crew index order. Returns the survey reports completed today.
func (c *Company) Dispatch(day Day, wx weather.Lookup) ([]*SurveyReport, error) {
	c.today = CompanyCounters{}
	if !c.started {
		c.today.Cost += c.cfg.Cost.Upfront
		c.started = true
	}
	c.release(day)

	var completed []*SurveyReport
	if c.deployed(day.Date) {
		due := c.dueSites(day)
		for _, crew := range c.crews {
			cond, err := wx.At(day.Step, day.Date, crew.Location)
			if err != nil {
				return nil, fmt.Errorf("method %s crew %s: %w", c.Name, crew.ID, err)
			}
			if ok, reason := crew.Eligible(cond, c.cfg.Weather); !ok {
				c.skip(day, crew, reason)
				continue
			}
			if crew.inProgress == nil && len(due) == 0 {
				c.skip(day, crew, SkipNoSites)
				continue
			}
			var reports []*SurveyReport
			reports, due, err = c.work(day, crew, workdayMinutes(c.cfg.MaxWorkdayHours, cond, c.cfg.Weather), due)
			if err != nil {
				return nil, err
			}
			completed = append(completed, reports...)
		}
	}

	c.release(day)
	c.totals.add(c.today)
	return completed, nil
}

func (c *Company) deployed(date time.Time) bool {
	if len(c.cfg.DeploymentYears) > 0 && !slices.Contains(c.cfg.DeploymentYears, date.Year()) {
		return false
	}
	if len(c.cfg.DeploymentMonths) > 0 && !slices.Contains(c.cfg.DeploymentMonths, int(date.Month())) {
		return false
	}
	return true
}

// dueSites builds today's ordered due list from the priority queue.
func (c *Company) dueSites(day Day) []*DueSite {
	if c.cfg.FollowUp {
		for _, f := range c.followUps.Pending() {
			i, ok := c.bySite[f.SiteID]
			if !ok || c.planners[i].ActiveReport() != nil {
				continue
			}
			c.queue.Schedule(&DueSite{Site: c.sites[i], Planner: c.planners[i], Deadline: f.Day, Reason: ReasonFollowUp})
		}
		return c.queue.Drain()
	}
	for i, p := range c.planners {
		if !p.IsDue(day) {
			continue
		}
		d := &DueSite{Site: c.sites[i], Planner: p, Overdue: p.Overdue(day), Deadline: p.Deadline(day), Reason: ReasonDue}
		if d.Overdue {
			d.Reason = ReasonOverdue
		}
		c.queue.Schedule(d)
	}
	return c.queue.Drain()
}

// work spends one crew's day: finish yesterday's survey first, then take
// sites from due until the time budget runs out. Returns the completed
// reports and the remaining due list.
func (c *Company) work(day Day, crew *Crew, budget float64, due []*DueSite) ([]*SurveyReport, []*DueSite, error) {
	c.policy.StartDay(crew, c.rng)
	var completed []*SurveyReport
	used := 0.0
	worked := false

	if v := crew.inProgress; v != nil {
		avail := budget - c.policy.ReturnMinutes(crew, v.due.Site.Location)
		if avail <= 0 {
			avail = budget
		}
		take := math.Min(v.remaining, avail)
		used += take
		v.remaining -= take
		worked = true
		done := v.remaining <= surveyEpsilon
		c.trace.RecordVisit(trace.VisitRecord{
			Day: day.Step, Company: c.Name, Crew: crew.ID, SiteID: v.due.Site.ID,
			Reason: ReasonResume, SurveyMinutes: take, Completed: done,
		})
		if done {
			r, err := c.complete(day, crew, v)
			if err != nil {
				return nil, nil, err
			}
			completed = append(completed, r)
		}
	}

	for crew.inProgress == nil && len(due) > 0 {
		choice, ok := c.policy.Next(crew, due, c.rng)
		if !ok || used+choice.TravelMinutes+choice.ReserveMinutes >= budget {
			break
		}
		d := due[choice.Index]
		due = slices.Delete(due, choice.Index, choice.Index+1)

		used += choice.TravelMinutes
		crew.TravelKm += choice.TravelKm
		crew.Location = d.Site.Location
		minutes := c.surveyMinutes(d.Site)
		report := NewSurveyReport(d.Site.ID, c.Name, crew.ID, day.Step, minutes)
		report.TravelMinutes = choice.TravelMinutes
		if err := d.Planner.Open(report, day.Step); err != nil {
			return nil, nil, fmt.Errorf("method %s: %w", c.Name, err)
		}

		v := &visit{due: d, report: report, remaining: minutes}
		take := math.Min(minutes, budget-choice.ReserveMinutes-used)
		used += take
		v.remaining -= take
		worked = true
		done := v.remaining <= surveyEpsilon
		c.trace.RecordVisit(trace.VisitRecord{
			Day: day.Step, Company: c.Name, Crew: crew.ID, SiteID: d.Site.ID,
			Reason: d.Reason, TravelMinutes: choice.TravelMinutes, SurveyMinutes: take, Completed: done,
		})
		if !done {
			crew.inProgress = v
			logrus.Debugf("[day %05d] %s: survey of %s continues tomorrow (%.0f min left)", day.Step, crew.ID, d.Site.ID, v.remaining)
			break
		}
		crew.inProgress = v
		r, err := c.complete(day, crew, v)
		if err != nil {
			return nil, nil, err
		}
		completed = append(completed, r)
	}

	if worked {
		crew.DaysWorked++
		c.today.CrewsDeployed++
		c.today.Cost += c.cfg.Cost.PerDay
	}
	if crew.inProgress == nil {
		used += c.policy.EndDay(crew, due, budget-used)
	}
	crew.MinutesWorked += used
	return completed, due, nil
}

// complete runs detection on the site, closes the report and queues its
// findings for release.
func (c *Company) complete(day Day, crew *Crew, v *visit) (*SurveyReport, error) {
	site := v.due.Site
	if err := c.detect(day, crew, site, v.report); err != nil {
		return nil, err
	}
	r, err := v.due.Planner.Close(day)
	if err != nil {
		return nil, fmt.Errorf("method %s: %w", c.Name, err)
	}
	crew.inProgress = nil
	crew.SitesSurveyed++
	c.today.SitesSurveyed++
	c.today.Cost += c.cfg.Cost.PerSite
	c.today.Missed += r.MissedEmissions
	if c.cfg.FollowUp {
		c.followUps.Resolve(site.ID)
	}
	c.pending = append(c.pending, pendingRelease{day: day.Step + c.cfg.ReportingDelay, report: r})
	logrus.Debugf("[day %05d] %s surveyed %s: %d emission(s) detected, %d missed", day.Step, crew.ID, site.ID, r.EmissionsDetected, r.MissedEmissions)
	return r, nil
}

// detect applies the sensor at its granularity to the site's current
// rates and fills the report.
func (c *Company) detect(day Day, crew *Crew, site *Site, report *SurveyReport) error {
	rates := Aggregate(site)
	gran := c.sensor.Granularity()
	base := DetectionRecord{Day: day.Step, SiteID: site.ID, Company: c.Name, Crew: crew.ID, Granularity: gran}
	measured := 0.0

	try := func(rec DetectionRecord, ems []*Emission) error {
		if rec.TrueRate <= 0 {
			return nil
		}
		if !c.sensor.RateDetected(rec.TrueRate, c.rng) {
			report.MissedEmissions += len(ems)
			return nil
		}
		rec.MeasuredRate = c.sensor.MeasureRate(rec.TrueRate, c.rng)
		rec.EmissionIDs = emissionIDs(ems)
		measured += rec.MeasuredRate
		return report.AddDetection(rec, ems)
	}

	var err error
	switch gran {
	case sensor.Component:
		for _, e := range site.ActiveEmissions() {
			rec := base
			rec.GroupID, rec.EquipmentID, rec.TrueRate = e.GroupID, e.EquipmentID, e.CurrentRate()
			if err = try(rec, []*Emission{e}); err != nil {
				break
			}
		}
	case sensor.Equipment:
		k := 0
		for _, g := range site.Groups {
			for _, eq := range g.Equipment {
				rec := base
				rec.GroupID, rec.EquipmentID, rec.TrueRate = g.ID, eq.ID, rates.EquipmentRates[k].Rate
				k++
				if err = try(rec, emittingIn([]*Equipment{eq})); err != nil {
					return err
				}
			}
		}
	case sensor.EquipmentGroup:
		for i, g := range site.Groups {
			rec := base
			rec.GroupID, rec.TrueRate = g.ID, rates.EquipmentGroupRates[i].Rate
			if err = try(rec, emittingIn(g.Equipment)); err != nil {
				return err
			}
		}
	case sensor.Site:
		rec := base
		rec.TrueRate = rates.SiteTrueRate
		var all []*Equipment
		for _, g := range site.Groups {
			all = append(all, g.Equipment...)
		}
		err = try(rec, emittingIn(all))
	}
	if err != nil {
		return err
	}
	return report.Fill(rates.SiteTrueRate, measured)
}

func emittingIn(equipment []*Equipment) []*Emission {
	var out []*Emission
	for _, eq := range equipment {
		for _, src := range eq.Sources {
			for _, e := range src.active {
				if e.CurrentRate() > 0 {
					out = append(out, e)
				}
			}
		}
	}
	return out
}

func emissionIDs(ems []*Emission) []string {
	ids := make([]string, len(ems))
	for i, e := range ems {
		ids[i] = e.ID
	}
	return ids
}

// release reports findings whose reporting delay has elapsed: tags the
// detected emissions, or flags the site for follow-up when screening.
func (c *Company) release(day Day) {
	n := 0
	for n < len(c.pending) && c.pending[n].day <= day.Step {
		c.report(day, c.pending[n].report)
		n++
	}
	c.pending = slices.Delete(c.pending, 0, n)
}

func (c *Company) report(day Day, r *SurveyReport) {
	if c.cfg.Tagging == "flag" {
		if r.EmissionsDetected > 0 && r.MeasuredRate >= c.cfg.FollowUpThreshold {
			if c.followUps.Flag(Flag{SiteID: r.SiteID, Day: day.Step, MeasuredRate: r.MeasuredRate, Company: c.Name}) {
				c.today.Flags++
			}
		}
		return
	}
	for _, ems := range r.detected {
		for _, e := range ems {
			if !e.IsActive() {
				continue
			}
			if e.Tagged {
				c.today.RedundantTags++
				continue
			}
			if e.Tag(c.Name, r.Crew, day.Step, c.rng) {
				c.today.Tags++
				if !e.StartKnown {
					e.EstimatedStartDay = EstimateStartDay(r.EndDay, r.daysSinceSurvey)
				}
			}
		}
	}
}

func (c *Company) skip(day Day, crew *Crew, reason string) {
	c.trace.RecordSkip(trace.SkipRecord{Day: day.Step, Company: c.Name, Crew: crew.ID, Reason: reason})
}

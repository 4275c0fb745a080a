package sim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ldar-sim/ldar-sim/sim/trace"
	"github.com/ldar-sim/ldar-sim/sim/weather"
)

// Program-level timeseries metrics.
const (
	MetricActiveEmissions = "active_emissions"
	MetricEmissionRate    = "emission_rate_gs"
	MetricEmissionsKg     = "emissions_kg"
	MetricNewEmissions    = "new_emissions"
	MetricRepaired        = "repaired"
	MetricNatRepaired     = "nat_repaired"
	MetricExpired         = "expired"
	MetricRepairCost      = "repair_cost"
	MetricTotalCost       = "total_cost"
)

// Per-method metric suffixes; the full name is "<method>_<suffix>".
const (
	MetricCost          = "cost"
	MetricTags          = "tags"
	MetricRedundantTags = "redundant_tags"
	MetricMissed        = "missed"
	MetricSitesSurveyed = "sites_surveyed"
	MetricCrewsDeployed = "crews_deployed"
	MetricFlags         = "flags"
)

// MethodMetric returns the timeseries name of a per-method metric.
func MethodMetric(method, suffix string) string {
	return method + "_" + suffix
}

// CompanyResult is a company's end-of-run record.
type CompanyResult struct {
	Name   string
	Crews  int
	Totals CompanyCounters
}

// Result is everything a program replicate produces.
type Result struct {
	Program   string
	Replicate int
	Seed      int64
	Start     time.Time
	Days      int

	Timeseries *Timeseries
	Reports    []*SurveyReport
	Emissions  []EmissionSummary
	Companies  []CompanyResult
	Summary    RunSummary
	Trace      *trace.TraceSummary // nil unless tracing was enabled
}

// Program is one LDAR program simulated over one replicate: a set of
// sites with their emission timelines, one company per method, and the
// clock driving them. A Program runs exactly once.
type Program struct {
	Name string

	seed      int64
	clock     *Clock
	sites     []*Site
	companies []*Company
	rng       *PartitionedRNG
	weather   weather.Lookup
	followUps *FollowUpQueue
	trace     *trace.DispatchTrace
	ts        *Timeseries
	tally     UpdateTally
	reports   []*SurveyReport
	hasRun    bool
}

// NewProgram validates the configuration, checks every site and home base
// against the weather data, generates emission timelines and builds the
// companies. Configuration errors are returned before anything runs.
func NewProgram(prog ProgramConfig, sites []SiteConfig, simCfg SimulationConfig, wx weather.Lookup, seed int64) (*Program, error) {
	if err := simCfg.Validate(); err != nil {
		return nil, err
	}
	if err := prog.Validate(); err != nil {
		return nil, err
	}
	if wx == nil {
		return nil, fmt.Errorf("program %s: weather data is required", prog.Name)
	}

	clock := NewClock(simCfg.Start, simCfg.End)
	if d := wx.Days(); d > 0 && d < clock.NumDays() {
		return nil, fmt.Errorf("program %s: weather data covers %d days, simulation needs %d", prog.Name, d, clock.NumDays())
	}

	p := &Program{
		Name:      prog.Name,
		seed:      seed,
		clock:     clock,
		rng:       NewPartitionedRNG(NewSimulationKey(seed)),
		weather:   wx,
		followUps: NewFollowUpQueue(),
		ts:        NewTimeseries(clock.NumDays()),
	}
	if simCfg.Trace == trace.TraceLevelDecisions {
		p.trace = trace.NewDispatchTrace(trace.TraceConfig{Level: simCfg.Trace})
	}

	defaults := simCfg.Emissions.WithDefaults()
	seen := make(map[string]bool, len(sites))
	for _, sc := range sites {
		if err := sc.Validate(); err != nil {
			return nil, fmt.Errorf("program %s: %w", prog.Name, err)
		}
		if seen[sc.ID] {
			return nil, fmt.Errorf("program %s: duplicate site id %q", prog.Name, sc.ID)
		}
		seen[sc.ID] = true
		site, err := BuildSite(sc, defaults)
		if err != nil {
			return nil, fmt.Errorf("program %s: %w", prog.Name, err)
		}
		if err := wx.Covers(site.Location); err != nil {
			return nil, fmt.Errorf("program %s: %w", prog.Name, withSite(err, site.ID))
		}
		p.sites = append(p.sites, site)
	}

	emissionRNG := p.rng.ForSubsystem(SubsystemEmissions)
	for _, s := range p.sites {
		s.GenerateEmissions(clock.NumDays(), emissionRNG)
	}

	for _, mc := range prog.Methods {
		for i, base := range mc.Scheduling.HomeBases {
			if err := wx.Covers(base); err != nil {
				return nil, fmt.Errorf("program %s method %s: %w", prog.Name, mc.Name, withSite(err, fmt.Sprintf("home base %d", i)))
			}
		}
		c, err := NewCompany(mc, p.sites, p.rng.ForSubsystem(SubsystemMethod(mc.Name)), p.followUps, p.trace)
		if err != nil {
			return nil, fmt.Errorf("program %s: %w", prog.Name, err)
		}
		p.companies = append(p.companies, c)
	}
	return p, nil
}

// withSite names the offending site in an out-of-bounds error.
func withSite(err error, siteID string) error {
	var oob *weather.OutOfBoundsError
	if errors.As(err, &oob) {
		named := *oob
		named.SiteID = siteID
		return &named
	}
	return fmt.Errorf("site %s: %w", siteID, err)
}

// Sites returns the program's sites in registration order.
func (p *Program) Sites() []*Site { return p.sites }

// Companies returns the program's companies in method order.
func (p *Program) Companies() []*Company { return p.companies }

// Run simulates every day from start to end. Each day: emissions activate
// and update, every company dispatches its crews, then daily metrics are
// recorded. Returns ctx.Err() if the context is cancelled.
func (p *Program) Run(ctx context.Context) (*Result, error) {
	if p.hasRun {
		panic("Program.Run() called more than once")
	}
	p.hasRun = true

	lifecycle := p.rng.ForSubsystem(SubsystemLifecycle)
	logrus.Infof("program %s: simulating %d days over %d site(s) with %d method(s)", p.Name, p.clock.NumDays(), len(p.sites), len(p.companies))

	for !p.clock.Done() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		day := p.clock.Day()

		before := p.tally
		activated := 0
		for _, s := range p.sites {
			activated += s.Step(day.Step, lifecycle, &p.tally)
		}

		for _, c := range p.companies {
			reports, err := c.Dispatch(day, p.weather)
			if err != nil {
				return nil, fmt.Errorf("program %s day %d: %w", p.Name, day.Step, err)
			}
			p.reports = append(p.reports, reports...)
		}

		p.record(day, activated, before)
		p.clock.Advance()
	}

	return p.result(), nil
}

func (p *Program) record(day Day, activated int, before UpdateTally) {
	ts, step := p.ts, day.Step
	active, rate := 0, 0.0
	for _, s := range p.sites {
		active += len(s.ActiveEmissions())
		rate += Aggregate(s).SiteTrueRate
	}
	repairCost := p.tally.RepairCost - before.RepairCost
	ts.Add(MetricActiveEmissions, step, float64(active))
	ts.Add(MetricEmissionRate, step, rate)
	ts.Add(MetricEmissionsKg, step, rate*secondsPerDay/1000)
	ts.Add(MetricNewEmissions, step, float64(activated))
	ts.Add(MetricRepaired, step, float64(p.tally.Repaired-before.Repaired))
	ts.Add(MetricNatRepaired, step, float64(p.tally.NatRepaired-before.NatRepaired))
	ts.Add(MetricExpired, step, float64(p.tally.Expired-before.Expired))
	ts.Add(MetricRepairCost, step, repairCost)

	total := repairCost
	for _, c := range p.companies {
		today := c.Today()
		ts.Add(MethodMetric(c.Name, MetricCost), step, today.Cost)
		ts.Add(MethodMetric(c.Name, MetricTags), step, float64(today.Tags))
		ts.Add(MethodMetric(c.Name, MetricRedundantTags), step, float64(today.RedundantTags))
		ts.Add(MethodMetric(c.Name, MetricMissed), step, float64(today.Missed))
		ts.Add(MethodMetric(c.Name, MetricSitesSurveyed), step, float64(today.SitesSurveyed))
		ts.Add(MethodMetric(c.Name, MetricCrewsDeployed), step, float64(today.CrewsDeployed))
		ts.Add(MethodMetric(c.Name, MetricFlags), step, float64(today.Flags))
		total += today.Cost
	}
	ts.Add(MetricTotalCost, step, total)

	logrus.Debugf("[day %05d] %s: %d active, %.4f g/s, %d new", step, day.Date.Format(time.DateOnly), active, rate, activated)
}

func (p *Program) result() *Result {
	res := &Result{
		Program:    p.Name,
		Seed:       p.seed,
		Start:      p.clock.Start(),
		Days:       p.clock.NumDays(),
		Timeseries: p.ts,
		Reports:    p.reports,
	}
	for _, s := range p.sites {
		for _, e := range s.AllEmissions() {
			res.Emissions = append(res.Emissions, summarizeEmission(e))
		}
	}
	for _, c := range p.companies {
		res.Companies = append(res.Companies, CompanyResult{Name: c.Name, Crews: len(c.crews), Totals: c.Totals()})
	}
	res.Summary = Summarize(res.Emissions, p.ts, []string{MetricTotalCost})
	if p.trace.Enabled() {
		res.Trace = trace.Summarize(p.trace)
	}
	return res
}

package sim

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ldar-sim/ldar-sim/sim/dist"
	"github.com/ldar-sim/ldar-sim/sim/geo"
	"github.com/ldar-sim/ldar-sim/sim/internal/testutil"
	"github.com/ldar-sim/ldar-sim/sim/sensor"
	"github.com/ldar-sim/ldar-sim/sim/trace"
	"github.com/ldar-sim/ldar-sim/sim/weather"
)

// runDays steps sites and dispatches every company for days [from, to).
func runDays(t *testing.T, sites []*Site, companies []*Company, wx weather.Lookup, from, to int) []*SurveyReport {
	t.Helper()
	var out []*SurveyReport
	for d := from; d < to; d++ {
		stepSites(sites, d)
		for _, c := range companies {
			reports, err := c.Dispatch(dayAt(d), wx)
			require.NoError(t, err)
			out = append(out, reports...)
		}
	}
	return out
}

func TestCompany_Dispatch_TagsDetectedEmission(t *testing.T) {
	// GIVEN one site with one leak above the sensor threshold
	site := quietSite(t, "A", 51, -114, 1)
	leak := plant(site, 0, 0, "leak", 0.5, 0, 3)
	c := newTestCompany(t, thresholdMethod("OGI"), []*Site{site}, nil)

	// WHEN the company works day 0
	reports := runDays(t, []*Site{site}, []*Company{c}, testutil.FairWeather(), 0, 1)

	// THEN the site is surveyed and the leak tagged by the crew
	require.Len(t, reports, 1)
	r := reports[0]
	assert.True(t, r.Closed())
	assert.Equal(t, 0, r.StartDay)
	assert.Equal(t, 0, r.EndDay)
	assert.Equal(t, 1, r.EmissionsDetected)
	assert.Equal(t, 0.5, r.TrueRate)
	assert.Equal(t, 0.5, r.MeasuredRate)
	require.Len(t, r.Detections, 1)
	assert.Equal(t, []string{"leak"}, r.Detections[0].EmissionIDs)
	assert.Equal(t, sensor.Component, r.Detections[0].Granularity)

	assert.True(t, leak.Tagged)
	assert.Equal(t, "OGI", leak.TaggedBy)
	assert.Equal(t, "OGI_crew_0", leak.TaggedByCrew)
	assert.Equal(t, 3, leak.RepairDelay)
	assert.Equal(t, CompanyCounters{Tags: 1, SitesSurveyed: 1, CrewsDeployed: 1}, c.Today())
}

func TestCompany_ReportingDelay(t *testing.T) {
	site := quietSite(t, "A", 51, -114, 1)
	leak := plant(site, 0, 0, "leak", 0.5, 0, 10)
	cfg := thresholdMethod("OGI")
	cfg.ReportingDelay = 2
	cfg.SurveysPerYear = 1
	c := newTestCompany(t, cfg, []*Site{site}, nil)
	wx := testutil.FairWeather()

	runDays(t, []*Site{site}, []*Company{c}, wx, 0, 1)
	assert.False(t, leak.Tagged, "findings are held back on the survey day")
	runDays(t, []*Site{site}, []*Company{c}, wx, 1, 2)
	assert.False(t, leak.Tagged)
	runDays(t, []*Site{site}, []*Company{c}, wx, 2, 3)
	assert.True(t, leak.Tagged)
	assert.Equal(t, 2, leak.DayTagged)
	assert.Equal(t, 1, c.Today().Tags)
}

func TestCompany_MultiDaySurvey(t *testing.T) {
	// GIVEN a site that takes 1000 survey minutes against an 8-hour day
	minutes := 1000.0
	cfg := quietSiteConfig("A", 51, -114, 1)
	cfg.Methods = map[string]SiteMethodConfig{"OGI": {SurveyMinutes: &minutes}}
	site, err := BuildSite(cfg, EmissionDefaults{}.WithDefaults())
	require.NoError(t, err)
	plant(site, 0, 0, "leak", 0.5, 0, 5)
	c := newTestCompany(t, thresholdMethod("OGI"), []*Site{site}, nil)
	crew := c.Crews()[0]
	wx := testutil.FairWeather()

	// WHEN the first two days pass
	assert.Empty(t, runDays(t, []*Site{site}, []*Company{c}, wx, 0, 1))
	assert.Same(t, site, crew.InProgress())
	require.NotNil(t, c.Planner("A").ActiveReport())
	assert.Empty(t, runDays(t, []*Site{site}, []*Company{c}, wx, 1, 2))
	assert.Same(t, site, crew.InProgress())

	// THEN the same crew finishes on day 2 and the single report spans the visit
	reports := runDays(t, []*Site{site}, []*Company{c}, wx, 2, 3)
	require.Len(t, reports, 1)
	assert.Equal(t, 0, reports[0].StartDay)
	assert.Equal(t, 2, reports[0].EndDay)
	assert.Nil(t, crew.InProgress())
	assert.Nil(t, c.Planner("A").ActiveReport())
	assert.Equal(t, 3, c.Totals().CrewsDeployed)
	assert.Equal(t, 1, c.Totals().SitesSurveyed)
	assert.InDelta(t, 30+1000, crew.MinutesWorked, 1e-9)
}

func TestCompany_WeatherGrounded(t *testing.T) {
	site := quietSite(t, "A", 51, -114, 1)
	plant(site, 0, 0, "leak", 0.5, 0, 5)
	cfg := thresholdMethod("OGI")
	cfg.Weather.MaxWindMps = ptr(1.0)
	cfg.Cost.PerDay = 100
	dt := trace.NewDispatchTrace(trace.TraceConfig{Level: trace.TraceLevelDecisions})
	c, err := NewCompany(cfg, []*Site{site}, rand.New(rand.NewSource(1)), nil, dt)
	require.NoError(t, err)

	reports := runDays(t, []*Site{site}, []*Company{c}, testutil.FairWeather(), 0, 3)

	assert.Empty(t, reports)
	assert.Equal(t, 0.0, c.Totals().Cost, "grounded crews cost nothing")
	require.Len(t, dt.Skips, 3)
	assert.Equal(t, SkipWeather, dt.Skips[0].Reason)
	assert.Empty(t, dt.Visits)
}

func TestCompany_DaylightShortensWorkday(t *testing.T) {
	// GIVEN one hour of daylight and a 30-minute drive to a 60-minute survey
	site := quietSite(t, "A", 51, -114, 1)
	cfg := thresholdMethod("OGI")
	cfg.Weather.RequireDaylight = true
	c := newTestCompany(t, cfg, []*Site{site}, nil)
	wx := weather.Constant{Conditions: weather.Conditions{TempC: 10, DaylightHours: 1}}

	// WHEN the crew works day 0
	reports := runDays(t, []*Site{site}, []*Company{c}, wx, 0, 1)

	// THEN the survey cannot finish before dark
	assert.Empty(t, reports)
	assert.Same(t, site, c.Crews()[0].InProgress())
	assert.InDelta(t, 60.0, c.Crews()[0].MinutesWorked, 1e-9)
}

func TestCompany_ScreeningAndFollowUp(t *testing.T) {
	// GIVEN a site-level screening method and a follow-up method sharing a queue
	site := quietSite(t, "A", 51, -114, 1)
	leak := plant(site, 0, 1, "leak", 0.5, 0, 5)
	q := NewFollowUpQueue()

	screen := thresholdMethod("aerial")
	screen.Tagging = "flag"
	screen.FollowUpThreshold = 0.2
	screen.Sensor.Granularity = sensor.Site
	followUp := thresholdMethod("OGI_FU")
	followUp.FollowUp = true

	sc := newTestCompany(t, screen, []*Site{site}, q)
	fc := newTestCompany(t, followUp, []*Site{site}, q)

	// WHEN the screening company works day 0
	stepSites([]*Site{site}, 0)
	reports, err := sc.Dispatch(dayAt(0), testutil.FairWeather())
	require.NoError(t, err)

	// THEN the site is flagged, not tagged
	require.Len(t, reports, 1)
	assert.Equal(t, sensor.Site, reports[0].Detections[0].Granularity)
	assert.False(t, leak.Tagged)
	assert.True(t, q.Flagged("A"))
	assert.Equal(t, 1, sc.Today().Flags)

	// WHEN the follow-up company works the same day
	reports, err = fc.Dispatch(dayAt(0), testutil.FairWeather())
	require.NoError(t, err)

	// THEN it surveys the flagged site, tags the leak and clears the flag
	require.Len(t, reports, 1)
	assert.True(t, leak.Tagged)
	assert.Equal(t, "OGI_FU", leak.TaggedBy)
	assert.Equal(t, 0, q.Len())

	// AND it has nothing to do while no flags are raised
	stepSites([]*Site{site}, 1)
	reports, err = fc.Dispatch(dayAt(1), testutil.FairWeather())
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func TestCompany_ScreeningBelowThresholdDoesNotFlag(t *testing.T) {
	site := quietSite(t, "A", 51, -114, 1)
	plant(site, 0, 0, "leak", 0.15, 0, 5)
	q := NewFollowUpQueue()
	screen := thresholdMethod("aerial")
	screen.Tagging = "flag"
	screen.FollowUpThreshold = 0.2
	sc := newTestCompany(t, screen, []*Site{site}, q)

	runDays(t, []*Site{site}, []*Company{sc}, testutil.FairWeather(), 0, 1)
	assert.Equal(t, 0, q.Len())
}

func TestCompany_RedundantTags(t *testing.T) {
	site := quietSite(t, "A", 51, -114, 1)
	plant(site, 0, 0, "leak", 0.5, 0, 5)
	a := newTestCompany(t, thresholdMethod("A"), []*Site{site}, nil)
	b := newTestCompany(t, thresholdMethod("B"), []*Site{site}, nil)

	runDays(t, []*Site{site}, []*Company{a, b}, testutil.FairWeather(), 0, 1)

	assert.Equal(t, 1, a.Today().Tags)
	assert.Equal(t, 0, b.Today().Tags)
	assert.Equal(t, 1, b.Today().RedundantTags)
}

func TestCompany_DeploymentCalendar(t *testing.T) {
	site := quietSite(t, "A", 51, -114, 1)
	cfg := thresholdMethod("OGI")
	cfg.DeploymentMonths = []int{6}
	cfg.Cost = CostConfig{PerDay: 100, PerSite: 10, Upfront: 1000}
	c := newTestCompany(t, cfg, []*Site{site}, nil)

	reports := runDays(t, []*Site{site}, []*Company{c}, testutil.FairWeather(), 0, 2)

	assert.Empty(t, reports)
	assert.Equal(t, 1000.0, c.Totals().Cost, "only the upfront cost is charged")
	assert.Equal(t, 0, c.Totals().CrewsDeployed)
}

func TestCompany_MissedDetection(t *testing.T) {
	site := quietSite(t, "A", 51, -114, 1)
	leak := plant(site, 0, 0, "leak", 0.5, 0, 5)
	cfg := thresholdMethod("OGI")
	cfg.Sensor.MDL = []float64{1.0}
	c := newTestCompany(t, cfg, []*Site{site}, nil)

	reports := runDays(t, []*Site{site}, []*Company{c}, testutil.FairWeather(), 0, 1)

	require.Len(t, reports, 1)
	assert.Equal(t, 1, reports[0].MissedEmissions)
	assert.Equal(t, 0, reports[0].EmissionsDetected)
	assert.Equal(t, 0.5, reports[0].TrueRate)
	assert.Equal(t, 1, c.Today().Missed)
	assert.False(t, leak.Tagged)
}

func TestCompany_GranularityAggregatesBeforeDetection(t *testing.T) {
	tests := []struct {
		granularity sensor.Granularity
		wantTags    int
		wantMissed  int
	}{
		{sensor.Component, 0, 2},
		{sensor.Equipment, 2, 0},
		{sensor.EquipmentGroup, 2, 0},
		{sensor.Site, 2, 0},
	}
	for _, tc := range tests {
		t.Run(string(tc.granularity), func(t *testing.T) {
			// GIVEN two 0.3 g/s leaks on one piece of equipment and a 0.5 g/s threshold
			site := quietSite(t, "A", 51, -114, 1)
			plant(site, 0, 0, "a", 0.3, 0, 5)
			plant(site, 0, 0, "b", 0.3, 0, 5)
			cfg := thresholdMethod("OGI")
			cfg.Sensor.MDL = []float64{0.5}
			cfg.Sensor.Granularity = tc.granularity
			c := newTestCompany(t, cfg, []*Site{site}, nil)

			runDays(t, []*Site{site}, []*Company{c}, testutil.FairWeather(), 0, 1)

			assert.Equal(t, tc.wantTags, c.Today().Tags)
			assert.Equal(t, tc.wantMissed, c.Today().Missed)
		})
	}
}

func TestCompany_Costs(t *testing.T) {
	site := quietSite(t, "A", 51, -114, 1)
	cfg := thresholdMethod("OGI")
	cfg.Cost = CostConfig{PerDay: 100, PerSite: 10, Upfront: 1000}
	c := newTestCompany(t, cfg, []*Site{site}, nil)
	wx := testutil.FairWeather()

	runDays(t, []*Site{site}, []*Company{c}, wx, 0, 1)
	assert.Equal(t, 1110.0, c.Today().Cost)
	runDays(t, []*Site{site}, []*Company{c}, wx, 1, 2)
	assert.Equal(t, 110.0, c.Today().Cost)
	assert.Equal(t, 1220.0, c.Totals().Cost)
}

func TestCompany_NoDueSitesIsASkip(t *testing.T) {
	site := quietSite(t, "A", 51, -114, 1)
	cfg := thresholdMethod("OGI")
	cfg.SurveysPerYear = 0
	dt := trace.NewDispatchTrace(trace.TraceConfig{Level: trace.TraceLevelDecisions})
	c, err := NewCompany(cfg, []*Site{site}, rand.New(rand.NewSource(1)), nil, dt)
	require.NoError(t, err)

	runDays(t, []*Site{site}, []*Company{c}, testutil.FairWeather(), 0, 1)
	require.Len(t, dt.Skips, 1)
	assert.Equal(t, SkipNoSites, dt.Skips[0].Reason)
}

func TestCompany_EstimatesStartOfUnknownEmissions(t *testing.T) {
	// GIVEN a daily survey and an emission whose start is unknown to the operator
	site := quietSite(t, "A", 51, -114, 1)
	src := site.Groups[0].Equipment[0].Sources[0]
	e := NewEmission(EmissionParams{ID: "old", Rate: 0.5, StartDay: 3, NaturalRepairDays: 1000})
	src.AddEmission(e)
	c := newTestCompany(t, thresholdMethod("OGI"), []*Site{site}, nil)

	// WHEN it is found on day 3, one day after the previous survey
	runDays(t, []*Site{site}, []*Company{c}, testutil.FairWeather(), 0, 4)

	// THEN its start is estimated at half the gap before the find
	require.True(t, e.Tagged)
	assert.Equal(t, 2, e.EstimatedStartDay)
}

func TestCompany_EstimatesCrewCount(t *testing.T) {
	var sites []*Site
	for i := 0; i < 3; i++ {
		sites = append(sites, quietSite(t, "S"+string(rune('0'+i)), 51, -114, 1))
	}
	cfg := thresholdMethod("OGI")
	cfg.Crews = 0
	cfg.SurveysPerYear = 4
	c := newTestCompany(t, cfg, sites, nil)
	assert.Len(t, c.Crews(), 1)
}

func TestNewCompany_UnknownSensor(t *testing.T) {
	cfg := thresholdMethod("OGI")
	cfg.Sensor.Type = "sniffer-dog"
	_, err := NewCompany(cfg, nil, rand.New(rand.NewSource(0)), nil, nil)
	assert.ErrorIs(t, err, sensor.ErrUnknownSensor)
	assert.Contains(t, err.Error(), "method OGI")
}

func TestCompany_HomeBasesAssignedRoundRobin(t *testing.T) {
	site := quietSite(t, "A", 51, -114, 1)
	cfg := thresholdMethod("OGI")
	cfg.Crews = 3
	cfg.Scheduling.HomeBases = nil
	c := newTestCompany(t, cfg, []*Site{site}, nil)
	for _, crew := range c.Crews() {
		assert.Equal(t, site.Location, crew.Home, "without bases crews start at the site centroid")
	}
}

func TestCompany_CapacityRollsOverWithoutDoubleSurvey(t *testing.T) {
	// GIVEN three sites due once a year, a one-hour workday, 30-minute
	// surveys and 20-minute drives: one site fits per day
	sites := []*Site{
		quietSite(t, "A", 51, -114, 1),
		quietSite(t, "B", 51.1, -114, 1),
		quietSite(t, "C", 51.2, -114, 1),
	}
	cfg := thresholdMethod("OGI")
	cfg.SurveysPerYear = 1
	cfg.MinIntervalDays = nil
	cfg.MaxWorkdayHours = 1
	cfg.SurveyMinutesPerGroup = 30
	cfg.TravelMinutes = dist.Constant(20)
	c := newTestCompany(t, cfg, sites, nil)
	wx := testutil.FairWeather()

	// WHEN six days pass
	var surveyed []string
	for d := 0; d < 6; d++ {
		for _, r := range runDays(t, sites, []*Company{c}, wx, d, d+1) {
			surveyed = append(surveyed, r.SiteID)
			assert.Equal(t, d, r.StartDay)
		}
	}

	// THEN unserved sites roll over one per day in order and none is
	// surveyed twice to catch up
	assert.Equal(t, []string{"A", "B", "C"}, surveyed)
	assert.InDelta(t, 3*50.0, c.Crews()[0].MinutesWorked, 1e-9)
	assert.Equal(t, 3, c.Totals().SitesSurveyed)
}

func TestCompany_OverdueSiteServedBeforeDueSite(t *testing.T) {
	// GIVEN A, registered first and due once a year, and B, due daily and
	// therefore overdue by day 5
	once, daily := 1, 365
	cfgA := quietSiteConfig("A", 51, -114, 1)
	cfgA.Methods = map[string]SiteMethodConfig{"OGI": {SurveysPerYear: &once}}
	cfgB := quietSiteConfig("B", 51, -114, 1)
	cfgB.Methods = map[string]SiteMethodConfig{"OGI": {SurveysPerYear: &daily}}
	var sites []*Site
	for _, sc := range []SiteConfig{cfgA, cfgB} {
		s, err := BuildSite(sc, EmissionDefaults{}.WithDefaults())
		require.NoError(t, err)
		sites = append(sites, s)
	}
	cfg := thresholdMethod("OGI")
	cfg.MaxWorkdayHours = 1
	cfg.SurveyMinutesPerGroup = 30
	cfg.TravelMinutes = dist.Constant(20)
	c := newTestCompany(t, cfg, sites, nil)
	require.False(t, c.Planner("A").Overdue(dayAt(5)))
	require.True(t, c.Planner("B").Overdue(dayAt(5)))

	// WHEN the crew has room for one site on day 5
	reports, err := c.Dispatch(dayAt(5), testutil.FairWeather())
	require.NoError(t, err)

	// THEN the overdue site goes first and the due one rolls over
	require.Len(t, reports, 1)
	assert.Equal(t, "B", reports[0].SiteID)
	assert.True(t, c.Planner("A").IsDue(dayAt(6)))
}

func TestCompany_RouteTripHomeIsChargedToTheWorkday(t *testing.T) {
	// GIVEN a crew based half a degree from the only site, driving 60 km/h
	site := quietSite(t, "A", 0, 0.5, 1)
	cfg := thresholdMethod("OGI")
	cfg.Scheduling = SchedulingConfig{Mode: "route", HomeBases: []geo.Point{geo.Pt(0, 0)}, SpeedKmh: []float64{60}}
	c := newTestCompany(t, cfg, []*Site{site}, nil)
	crew := c.Crews()[0]

	// WHEN it works day 0
	reports := runDays(t, []*Site{site}, []*Company{c}, testutil.FairWeather(), 0, 1)

	// THEN the drive out, the survey and the drive home all count as work
	require.Len(t, reports, 1)
	leg := geo.RoadDistance(geo.Pt(0, 0), geo.Pt(0, 0.5))
	assert.Equal(t, geo.Pt(0, 0), crew.Location)
	assert.InDelta(t, 2*leg, crew.TravelKm, 1e-6)
	assert.InDelta(t, 2*leg+DefaultSurveyMinutesPerGroup, crew.MinutesWorked, 1e-6)
	assert.LessOrEqual(t, crew.MinutesWorked, DefaultMaxWorkdayHours*60)
}

package study

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ldar-sim/ldar-sim/sim"
	"github.com/ldar-sim/ldar-sim/sim/dist"
	"github.com/ldar-sim/ldar-sim/sim/internal/testutil"
	"github.com/ldar-sim/ldar-sim/sim/sensor"
)

func leakySite(id string, lat, lon float64) sim.SiteConfig {
	return sim.SiteConfig{
		ID: id, Lat: lat, Lon: lon,
		Groups: []sim.GroupConfig{{
			ID: "wellhead",
			Equipment: []sim.EquipmentConfig{{
				ID: "tank",
				Sources: []sim.SourceConfig{{
					ID:             "thief-hatch",
					ProductionRate: 0.02,
					Rate:           dist.Spec{Type: "lognormal", Loc: -2, Scale: 1},
				}},
			}},
		}},
	}
}

func ogi(rs int) sim.MethodConfig {
	return sim.MethodConfig{
		Name:           "OGI",
		Sensor:         sensor.Config{Type: "threshold", MDL: []float64{0.01}},
		Crews:          1,
		SurveysPerYear: rs,
	}
}

func testStudy() Study {
	none := ogi(0)
	none.Name = "none"
	return Study{
		Programs: []sim.ProgramConfig{
			{Name: "P_none", Methods: []sim.MethodConfig{none}},
			{Name: "P_ogi", Methods: []sim.MethodConfig{ogi(12)}},
		},
		Sites:      []sim.SiteConfig{leakySite("A", 51, -114), leakySite("B", 51.1, -114.2)},
		Simulation: sim.SimulationConfig{Start: testutil.Date(2024, 1, 1), End: testutil.Date(2024, 6, 30)},
		Weather:    testutil.FairWeather(),
		Replicates: 3,
		BaseSeed:   100,
		Workers:    2,
	}
}

type memorySink struct {
	mu      sync.Mutex
	written []*sim.Result
	failOn  int // fail the nth write (1-based); 0 never fails
}

func (m *memorySink) Write(_ context.Context, res *sim.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written = append(m.written, res)
	if m.failOn > 0 && len(m.written) == m.failOn {
		return errors.New("disk full")
	}
	return nil
}

func TestSeedFor(t *testing.T) {
	s := Study{BaseSeed: 10}
	assert.Equal(t, int64(10), s.SeedFor(0))
	assert.Equal(t, int64(13), s.SeedFor(3))

	s.Seeds = []int64{7, 99}
	assert.Equal(t, int64(7), s.SeedFor(0))
	assert.Equal(t, int64(99), s.SeedFor(1))
	assert.Equal(t, int64(12), s.SeedFor(2), "falls back to BaseSeed past the list")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Study)
		msg    string
	}{
		{"no programs", func(s *Study) { s.Programs = nil }, "no programs"},
		{"zero replicates", func(s *Study) { s.Replicates = 0 }, "replicates"},
		{"too few seeds", func(s *Study) { s.Seeds = []int64{1} }, "seeds"},
		{"negative workers", func(s *Study) { s.Workers = -1 }, "workers"},
		{"duplicate program", func(s *Study) { s.Programs[1].Name = "P_none" }, "duplicate program"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := testStudy()
			tc.mutate(&s)
			err := s.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.msg)
		})
	}
	assert.NoError(t, testStudy().Validate())
}

func TestRun_OrdersResultsByReplicateThenProgram(t *testing.T) {
	// GIVEN two programs, three replicates and two workers
	s := testStudy()
	sink := &memorySink{}

	// WHEN the study runs
	results, err := Run(context.Background(), s, sink)
	require.NoError(t, err)

	// THEN results are laid out replicate-major regardless of completion order
	require.Len(t, results, 6)
	for i, r := range results {
		assert.Equal(t, i/2, r.Replicate)
		assert.Equal(t, s.Programs[i%2].Name, r.Program)
		assert.Equal(t, s.SeedFor(i/2), r.Seed)
	}
	assert.Len(t, sink.written, 6)
}

func TestRun_ProgramsShareEmissionTimelines(t *testing.T) {
	s := testStudy()
	s.Replicates = 1
	results, err := Run(context.Background(), s, nil)
	require.NoError(t, err)

	none, ogi := results[0], results[1]
	require.Equal(t, len(none.Emissions), len(ogi.Emissions))
	for i := range none.Emissions {
		assert.Equal(t, none.Emissions[i].ID, ogi.Emissions[i].ID)
		assert.Equal(t, none.Emissions[i].StartDay, ogi.Emissions[i].StartDay)
		assert.Equal(t, none.Emissions[i].Rate, ogi.Emissions[i].Rate)
	}
}

func TestRun_IsReproducible(t *testing.T) {
	a, err := Run(context.Background(), testStudy(), nil)
	require.NoError(t, err)
	s := testStudy()
	s.Workers = 0
	b, err := Run(context.Background(), s, nil)
	require.NoError(t, err)

	for i := range a {
		assert.Equal(t, a[i].Emissions, b[i].Emissions)
		assert.Equal(t, a[i].Summary, b[i].Summary)
	}
}

func TestRun_SinkErrorStopsStudy(t *testing.T) {
	s := testStudy()
	s.Workers = 1
	_, err := Run(context.Background(), s, &memorySink{failOn: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestRun_ProgramErrorIsWrapped(t *testing.T) {
	s := testStudy()
	s.Programs[1].Methods[0].Sensor.Type = "nose"
	_, err := Run(context.Background(), s, nil)
	assert.ErrorIs(t, err, sensor.ErrUnknownSensor)
	assert.Contains(t, err.Error(), "replicate")
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, testStudy(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompare(t *testing.T) {
	// GIVEN hand-built results for a baseline and one program
	mk := func(program string, kgPerDay, cost float64, tags int) *sim.Result {
		ts := sim.NewTimeseries(2)
		ts.Add(sim.MetricEmissionsKg, 0, kgPerDay)
		ts.Add(sim.MetricEmissionsKg, 1, kgPerDay)
		return &sim.Result{
			Program:    program,
			Timeseries: ts,
			Summary:    sim.RunSummary{TotalCost: cost, Repaired: tags},
			Companies:  []sim.CompanyResult{{Name: "m", Totals: sim.CompanyCounters{Tags: tags, Missed: 1}}},
		}
	}
	results := []*sim.Result{
		mk("none", 1000, 0, 0), mk("ogi", 400, 3000, 4),
		mk("none", 1000, 0, 0), mk("ogi", 600, 5000, 6),
	}

	// WHEN compared against the baseline
	stats := Compare(results, "none")

	// THEN means, deviations and mitigation cost are per program
	require.Len(t, stats, 2)
	assert.Equal(t, "none", stats[0].Program)
	assert.Equal(t, 2, stats[0].Replicates)
	assert.Equal(t, 2000.0, stats[0].MeanEmissionsKg)
	assert.Equal(t, 0.0, stats[0].StdEmissionsKg)
	assert.Equal(t, 0.0, stats[0].MitigatedKg)
	assert.True(t, math.IsNaN(stats[0].CostPerTonne))

	ogiStats := stats[1]
	assert.Equal(t, 1000.0, ogiStats.MeanEmissionsKg)
	assert.InDelta(t, math.Sqrt(2)*200, ogiStats.StdEmissionsKg, 1e-9)
	assert.Equal(t, 4000.0, ogiStats.MeanCost)
	assert.Equal(t, 5.0, ogiStats.MeanTags)
	assert.Equal(t, 1.0, ogiStats.MeanMissed)
	assert.Equal(t, 1000.0, ogiStats.MitigatedKg)
	assert.Equal(t, 4000.0, ogiStats.CostPerTonne)
}

func TestCompare_WithoutBaseline(t *testing.T) {
	ts := sim.NewTimeseries(1)
	ts.Add(sim.MetricEmissionsKg, 0, 5)
	stats := Compare([]*sim.Result{{Program: "p", Timeseries: ts}, nil}, "")
	require.Len(t, stats, 1)
	assert.Equal(t, 5.0, stats[0].MeanEmissionsKg)
	assert.Equal(t, 0.0, stats[0].StdEmissionsKg, "one replicate has no spread")
	assert.Equal(t, 0.0, stats[0].CostPerTonne)
}

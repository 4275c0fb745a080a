// Package study runs LDAR programs over many replicates and compares them.
//
// Within a replicate every program shares the same seed, so all programs
// see identical emission timelines and differ only in how they find and
// repair them. Replicates run in parallel on a bounded worker pool.
package study

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/ldar-sim/ldar-sim/sim"
	"github.com/ldar-sim/ldar-sim/sim/weather"
)

// Study is a set of programs evaluated over the same sites and weather.
type Study struct {
	Programs   []sim.ProgramConfig
	Sites      []sim.SiteConfig
	Simulation sim.SimulationConfig
	Weather    weather.Lookup

	Replicates int
	BaseSeed   int64
	Seeds      []int64 // explicit per-replicate seeds; overrides BaseSeed
	Workers    int     // 0 = one per program-replicate
}

// Sink receives each finished result. Implementations must be safe for
// concurrent use.
type Sink interface {
	Write(ctx context.Context, res *sim.Result) error
}

// Validate checks the study shape. Program and site details are validated
// when each program is built.
func (s Study) Validate() error {
	if len(s.Programs) == 0 {
		return fmt.Errorf("study has no programs")
	}
	if s.Replicates < 1 {
		return fmt.Errorf("replicates must be >= 1, got %d", s.Replicates)
	}
	if len(s.Seeds) > 0 && len(s.Seeds) < s.Replicates {
		return fmt.Errorf("%d seeds given for %d replicates", len(s.Seeds), s.Replicates)
	}
	if s.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", s.Workers)
	}
	seen := make(map[string]bool, len(s.Programs))
	for _, p := range s.Programs {
		if seen[p.Name] {
			return fmt.Errorf("duplicate program name %q", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// SeedFor returns the seed of replicate rep.
func (s Study) SeedFor(rep int) int64 {
	if rep < len(s.Seeds) {
		return s.Seeds[rep]
	}
	return s.BaseSeed + int64(rep)
}

// Run simulates every program for every replicate. Results are ordered by
// replicate, then program, whatever order the workers finish in. The first
// error cancels the remaining work. sink may be nil.
func Run(ctx context.Context, s Study, sink Sink) ([]*sim.Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	n := s.Replicates * len(s.Programs)
	results := make([]*sim.Result, n)

	g, ctx := errgroup.WithContext(ctx)
	if s.Workers > 0 {
		g.SetLimit(s.Workers)
	}
	logrus.Infof("study: %d program(s) x %d replicate(s)", len(s.Programs), s.Replicates)

	for rep := 0; rep < s.Replicates; rep++ {
		for i, pc := range s.Programs {
			rep, i, pc := rep, i, pc
			seed := s.SeedFor(rep)
			g.Go(func() error {
				p, err := sim.NewProgram(pc, s.Sites, s.Simulation, s.Weather, seed)
				if err != nil {
					return fmt.Errorf("replicate %d: %w", rep, err)
				}
				res, err := p.Run(ctx)
				if err != nil {
					return fmt.Errorf("replicate %d: %w", rep, err)
				}
				res.Replicate = rep
				if sink != nil {
					if err := sink.Write(ctx, res); err != nil {
						return fmt.Errorf("replicate %d program %s: write: %w", rep, pc.Name, err)
					}
				}
				results[rep*len(s.Programs)+i] = res
				logrus.Debugf("study: replicate %d program %s done (%.1f kg)", rep, pc.Name, res.Summary.TotalVolumeKg)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ProgramStats summarizes one program across replicates.
type ProgramStats struct {
	Program    string
	Replicates int

	MeanEmissionsKg float64
	StdEmissionsKg  float64
	MeanCost        float64
	StdCost         float64
	MeanTags        float64
	MeanMissed      float64
	MeanRepaired    float64
	MeanNatRepaired float64

	// Relative to the baseline program; zero when no baseline is set.
	MitigatedKg  float64
	CostPerTonne float64 // NaN when nothing was mitigated
}

// Compare groups results by program, in first-seen order. When baseline
// names a program, every program's mitigation is measured against it.
func Compare(results []*sim.Result, baseline string) []ProgramStats {
	type samples struct {
		kg, cost, tags, missed, repaired, natRepaired []float64
	}
	var order []string
	by := make(map[string]*samples)
	for _, r := range results {
		if r == nil {
			continue
		}
		sm, ok := by[r.Program]
		if !ok {
			sm = &samples{}
			by[r.Program] = sm
			order = append(order, r.Program)
		}
		var tags, missed int
		for _, c := range r.Companies {
			tags += c.Totals.Tags
			missed += c.Totals.Missed
		}
		sm.kg = append(sm.kg, r.Timeseries.Total(sim.MetricEmissionsKg))
		sm.cost = append(sm.cost, r.Summary.TotalCost)
		sm.tags = append(sm.tags, float64(tags))
		sm.missed = append(sm.missed, float64(missed))
		sm.repaired = append(sm.repaired, float64(r.Summary.Repaired))
		sm.natRepaired = append(sm.natRepaired, float64(r.Summary.NatRepaired))
	}

	out := make([]ProgramStats, 0, len(order))
	for _, name := range order {
		sm := by[name]
		ps := ProgramStats{Program: name, Replicates: len(sm.kg)}
		ps.MeanEmissionsKg, ps.StdEmissionsKg = meanStd(sm.kg)
		ps.MeanCost, ps.StdCost = meanStd(sm.cost)
		ps.MeanTags = stat.Mean(sm.tags, nil)
		ps.MeanMissed = stat.Mean(sm.missed, nil)
		ps.MeanRepaired = stat.Mean(sm.repaired, nil)
		ps.MeanNatRepaired = stat.Mean(sm.natRepaired, nil)
		out = append(out, ps)
	}

	if base, ok := by[baseline]; ok {
		baseKg := stat.Mean(base.kg, nil)
		baseCost := stat.Mean(base.cost, nil)
		for i := range out {
			out[i].MitigatedKg = baseKg - out[i].MeanEmissionsKg
			out[i].CostPerTonne = math.NaN()
			if out[i].MitigatedKg > 0 {
				out[i].CostPerTonne = (out[i].MeanCost - baseCost) / (out[i].MitigatedKg / 1000)
			}
		}
	}
	return out
}

// meanStd returns the mean and sample standard deviation; the deviation is
// zero for fewer than two samples.
func meanStd(x []float64) (float64, float64) {
	if len(x) < 2 {
		return stat.Mean(x, nil), 0
	}
	return stat.MeanStdDev(x, nil)
}

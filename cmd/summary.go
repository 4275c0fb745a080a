package cmd

import (
	"fmt"
	"io"
	"math"

	"github.com/fatih/color"

	"github.com/ldar-sim/ldar-sim/sim/study"
)

// printComparison writes one line per program. The baseline is marked and
// the program with the lowest mean emissions is highlighted.
func printComparison(w io.Writer, stats []study.ProgramStats, baseline string) {
	if len(stats) == 0 {
		_, _ = fmt.Fprintln(w, "No results.")
		return
	}
	best := 0
	for i, s := range stats {
		if s.MeanEmissionsKg < stats[best].MeanEmissionsKg {
			best = i
		}
	}

	header := color.New(color.Bold)
	_, _ = header.Fprintf(w, "%-16s %5s %14s %12s %12s %8s %8s %14s\n",
		"program", "reps", "emissions_t", "std_t", "cost", "tags", "missed", "cost_per_t")
	for i, s := range stats {
		name := fmt.Sprintf("%-16s", s.Program)
		switch {
		case s.Program == baseline:
			name = color.New(color.FgCyan).Sprint(name)
		case i == best:
			name = color.New(color.FgGreen).Sprint(name)
		}
		_, _ = fmt.Fprintf(w, "%s %5d %14.2f %12.2f %12.0f %8.1f %8.1f %14s\n",
			name, s.Replicates, s.MeanEmissionsKg/1000, s.StdEmissionsKg/1000, s.MeanCost,
			s.MeanTags, s.MeanMissed, costPerTonne(s, baseline))
	}
}

func costPerTonne(s study.ProgramStats, baseline string) string {
	switch {
	case baseline == "" || s.Program == baseline:
		return "-"
	case math.IsNaN(s.CostPerTonne):
		return color.New(color.FgYellow).Sprint("no mitigation")
	default:
		return fmt.Sprintf("%.2f", s.CostPerTonne)
	}
}

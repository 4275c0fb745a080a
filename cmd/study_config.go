package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ldar-sim/ldar-sim/sim"
	"github.com/ldar-sim/ldar-sim/sim/study"
	"github.com/ldar-sim/ldar-sim/sim/trace"
	"github.com/ldar-sim/ldar-sim/sim/weather"
)

// StudyFile is the YAML study definition passed to `run --config`.
// Every section must be listed here to satisfy KnownFields(true) strict parsing.
type StudyFile struct {
	Simulation SimulationSection   `yaml:"simulation"`
	Weather    WeatherSection      `yaml:"weather"`
	Sites      []sim.SiteConfig    `yaml:"sites"`
	SitesFile  string              `yaml:"sites_file"` // relative to the study file
	Programs   []sim.ProgramConfig `yaml:"programs"`
	Replicates *int                `yaml:"replicates"` // nil = one replicate
	Seed       int64               `yaml:"seed"`
	Seeds      []int64             `yaml:"seeds"`
	Workers    int                 `yaml:"workers"`
	Baseline   string              `yaml:"baseline"` // program the others are compared against
	Output     string              `yaml:"output"`   // SQLite file; empty = no output
}

// SimulationSection holds the date range, emission defaults and tracing.
type SimulationSection struct {
	Start     string               `yaml:"start"` // YYYY-MM-DD
	End       string               `yaml:"end"`
	Emissions sim.EmissionDefaults `yaml:"emissions"`
	Trace     string               `yaml:"trace"`
}

// WeatherSection selects constant conditions, an inline grid or a grid file.
type WeatherSection struct {
	Constant *weather.Conditions `yaml:"constant"`
	Grid     *weather.Grid       `yaml:"grid"`
	GridFile string              `yaml:"grid_file"` // relative to the study file
}

// decodeStrict parses data into out, rejecting unknown fields.
func decodeStrict(data []byte, out any) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	return decoder.Decode(out)
}

// loadStudyFile reads and strictly parses a study file, resolving
// sites_file and grid_file against the study file's directory.
func loadStudyFile(path string) (StudyFile, error) {
	var f StudyFile
	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("read study file: %w", err)
	}
	if err := decodeStrict(data, &f); err != nil {
		return f, fmt.Errorf("parse study file %s: %w", path, err)
	}
	dir := filepath.Dir(path)

	if f.SitesFile != "" {
		data, err := os.ReadFile(filepath.Join(dir, f.SitesFile))
		if err != nil {
			return f, fmt.Errorf("read sites file: %w", err)
		}
		var sites []sim.SiteConfig
		if err := decodeStrict(data, &sites); err != nil {
			return f, fmt.Errorf("parse sites file %s: %w", f.SitesFile, err)
		}
		f.Sites = append(f.Sites, sites...)
	}

	if f.Weather.GridFile != "" {
		if f.Weather.Grid != nil {
			return f, fmt.Errorf("weather: grid and grid_file are mutually exclusive")
		}
		data, err := os.ReadFile(filepath.Join(dir, f.Weather.GridFile))
		if err != nil {
			return f, fmt.Errorf("read weather grid: %w", err)
		}
		var g weather.Grid
		if err := decodeStrict(data, &g); err != nil {
			return f, fmt.Errorf("parse weather grid %s: %w", f.Weather.GridFile, err)
		}
		f.Weather.Grid = &g
	}
	return f, nil
}

// Study converts the file into a runnable study.
func (f StudyFile) Study() (study.Study, error) {
	var s study.Study
	start, err := time.Parse(time.DateOnly, f.Simulation.Start)
	if err != nil {
		return s, fmt.Errorf("simulation.start: %w", err)
	}
	end, err := time.Parse(time.DateOnly, f.Simulation.End)
	if err != nil {
		return s, fmt.Errorf("simulation.end: %w", err)
	}
	if !trace.IsValidTraceLevel(f.Simulation.Trace) {
		return s, fmt.Errorf("unknown trace level %q; valid: none, decisions", f.Simulation.Trace)
	}
	wx, err := f.Weather.lookup()
	if err != nil {
		return s, err
	}
	replicates := 1
	if f.Replicates != nil {
		replicates = *f.Replicates
	}
	if f.Baseline != "" && !hasProgram(f.Programs, f.Baseline) {
		return s, fmt.Errorf("baseline program %q is not defined", f.Baseline)
	}

	s = study.Study{
		Programs: f.Programs,
		Sites:    f.Sites,
		Simulation: sim.SimulationConfig{
			Start:     start,
			End:       end,
			Emissions: f.Simulation.Emissions,
			Trace:     trace.TraceLevel(f.Simulation.Trace),
		},
		Weather:    wx,
		Replicates: replicates,
		BaseSeed:   f.Seed,
		Seeds:      f.Seeds,
		Workers:    f.Workers,
	}
	return s, s.Validate()
}

func (w WeatherSection) lookup() (weather.Lookup, error) {
	switch {
	case w.Constant != nil && w.Grid != nil:
		return nil, fmt.Errorf("weather: constant and grid are mutually exclusive")
	case w.Grid != nil:
		if err := w.Grid.Validate(); err != nil {
			return nil, fmt.Errorf("weather: %w", err)
		}
		return w.Grid, nil
	case w.Constant != nil:
		return weather.Constant{Conditions: *w.Constant}, nil
	default:
		return nil, fmt.Errorf("weather: one of constant, grid or grid_file is required")
	}
}

func hasProgram(programs []sim.ProgramConfig, name string) bool {
	for _, p := range programs {
		if p.Name == name {
			return true
		}
	}
	return false
}

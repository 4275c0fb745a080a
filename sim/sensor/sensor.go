// Package sensor converts true emission rates into detections and
// measured rates. Sensors are immutable; randomness is drawn from the
// caller's stream so that each replicate stays reproducible.
//
// Rates are in g/s throughout; the log-logistic model works in g/h
// internally.
package sensor

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// Granularity is the structural level a sensor measures at.
type Granularity string

const (
	Component      Granularity = "component"
	Equipment      Granularity = "equipment"
	EquipmentGroup Granularity = "equipment_group"
	Site           Granularity = "site"
)

var validGranularities = map[Granularity]bool{
	Component: true, Equipment: true, EquipmentGroup: true, Site: true,
}

// IsValidGranularity reports whether g is a recognized granularity.
func IsValidGranularity(g string) bool {
	return validGranularities[Granularity(g)]
}

// Sensor is the detection capability a crew carries.
type Sensor interface {
	Granularity() Granularity
	// RateDetected decides whether a unit emitting rate (g/s) is detected.
	RateDetected(rate float64, rng *rand.Rand) bool
	// MeasureRate returns the quantified rate for a detected unit.
	MeasureRate(rate float64, rng *rand.Rand) float64
}

// ErrUnknownSensor is returned by New for unregistered sensor types.
var ErrUnknownSensor = errors.New("unknown sensor type")

// Config selects and parameterizes a sensor.
//
// MDL meaning depends on Type: "threshold" and "uniform_qe" read MDL[0] as a
// hard g/s threshold; "loglogistic" reads MDL[0], MDL[1] as the location and
// scale of the 50%-detection rate x0 (g/s).
type Config struct {
	Type        string      `yaml:"type"`
	Granularity Granularity `yaml:"granularity"`
	MDL         []float64   `yaml:"mdl"`
	QE          float64     `yaml:"qe"`
	QEBounds    []float64   `yaml:"qe_bounds,omitempty"`
}

type constructor func(cfg Config) (Sensor, error)

var registry = map[string]constructor{
	"threshold":   newThreshold,
	"loglogistic": newLogLogistic,
	"uniform_qe":  newUniformError,
}

// RegisteredTypes lists the accepted sensor type tags in sorted order.
func RegisteredTypes() []string {
	return []string{"loglogistic", "threshold", "uniform_qe"}
}

// New builds a Sensor from cfg. Unknown types wrap ErrUnknownSensor.
// An empty granularity defaults to component.
func New(cfg Config) (Sensor, error) {
	ctor, ok := registry[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("%w %q; valid: loglogistic, threshold, uniform_qe", ErrUnknownSensor, cfg.Type)
	}
	if cfg.Granularity == "" {
		cfg.Granularity = Component
	}
	if !validGranularities[cfg.Granularity] {
		return nil, fmt.Errorf("unknown sensor granularity %q; valid: component, equipment, equipment_group, site", cfg.Granularity)
	}
	if cfg.QE < 0 || math.IsNaN(cfg.QE) {
		return nil, fmt.Errorf("sensor qe must be non-negative, got %f", cfg.QE)
	}
	return ctor(cfg)
}

// Threshold detects any rate at or above MDL[0].
type Threshold struct {
	granularity Granularity
	mdl         float64
	qe          float64
}

func newThreshold(cfg Config) (Sensor, error) {
	if len(cfg.MDL) < 1 {
		return nil, fmt.Errorf("threshold sensor requires mdl[0]")
	}
	return &Threshold{granularity: cfg.Granularity, mdl: cfg.MDL[0], qe: cfg.QE}, nil
}

func (s *Threshold) Granularity() Granularity { return s.granularity }

func (s *Threshold) RateDetected(rate float64, _ *rand.Rand) bool {
	return rate >= s.mdl
}

func (s *Threshold) MeasureRate(rate float64, rng *rand.Rand) float64 {
	if s.qe == 0 {
		return rate
	}
	return ApplyError(rate, rng.NormFloat64()*s.qe)
}

// ApplyError shifts rate by a relative quantification error q. Positive q
// scales up; negative q divides by |q-1|, so the result stays positive.
func ApplyError(rate, q float64) float64 {
	if q >= 0 {
		return rate * (1 + q)
	}
	return rate / math.Abs(q-1)
}

// UniformError detects like Threshold but draws the quantification error
// from U(QEBounds[0], QEBounds[1]).
type UniformError struct {
	Threshold
	lower, upper float64
}

func newUniformError(cfg Config) (Sensor, error) {
	if len(cfg.MDL) < 1 {
		return nil, fmt.Errorf("uniform_qe sensor requires mdl[0]")
	}
	if len(cfg.QEBounds) != 2 || cfg.QEBounds[0] > cfg.QEBounds[1] {
		return nil, fmt.Errorf("uniform_qe sensor requires qe_bounds [lower, upper], got %v", cfg.QEBounds)
	}
	return &UniformError{
		Threshold: Threshold{granularity: cfg.Granularity, mdl: cfg.MDL[0]},
		lower:     cfg.QEBounds[0],
		upper:     cfg.QEBounds[1],
	}, nil
}

func (s *UniformError) MeasureRate(rate float64, rng *rand.Rand) float64 {
	q := s.lower + rng.Float64()*(s.upper-s.lower)
	return ApplyError(rate, q)
}

package sensor

import (
	"fmt"
	"math"
	"math/rand"
)

// Log-logistic curve steepness, drawn per detection attempt.
const (
	SteepnessMean = 4.9
	SteepnessSD   = 0.3
)

// LogLogistic is the camera-style sensor: detection probability follows a
// log-logistic curve in the rate, with both the steepness k and the 50%
// point x0 drawn per attempt.
type LogLogistic struct {
	granularity Granularity
	x0Loc       float64
	x0Scale     float64
	qe          float64
}

func newLogLogistic(cfg Config) (Sensor, error) {
	if len(cfg.MDL) < 2 {
		return nil, fmt.Errorf("loglogistic sensor requires mdl [loc, scale], got %v", cfg.MDL)
	}
	if cfg.MDL[1] < 0 {
		return nil, fmt.Errorf("loglogistic sensor mdl scale must be non-negative, got %f", cfg.MDL[1])
	}
	return &LogLogistic{
		granularity: cfg.Granularity,
		x0Loc:       cfg.MDL[0],
		x0Scale:     cfg.MDL[1],
		qe:          cfg.QE,
	}, nil
}

func (s *LogLogistic) Granularity() Granularity { return s.granularity }

// RateDetected draws k ~ N(4.9, 0.3) and x0 ~ N(loc, scale), then a
// Bernoulli trial with DetectionProbability. A zero rate returns false
// without consuming draws.
func (s *LogLogistic) RateDetected(rate float64, rng *rand.Rand) bool {
	if rate <= 0 {
		return false
	}
	k := SteepnessMean + SteepnessSD*rng.NormFloat64()
	x0 := s.x0Loc + s.x0Scale*rng.NormFloat64()
	return rng.Float64() < DetectionProbability(rate, k, x0)
}

func (s *LogLogistic) MeasureRate(rate float64, rng *rand.Rand) float64 {
	if s.qe == 0 {
		return rate
	}
	return ApplyError(rate, rng.NormFloat64()*s.qe)
}

// DetectionProbability evaluates the log-logistic curve for a rate and 50%
// point given in g/s:
//
//	p = 1 / (1 + exp(-k * (log10(3600*rate) - log10(3600*x0))))
//
// rate <= 0 gives 0; x0 <= 0 gives 1 for any positive rate.
func DetectionProbability(rate, k, x0 float64) float64 {
	if rate <= 0 {
		return 0
	}
	if x0 <= 0 {
		return 1
	}
	z := -k * (math.Log10(rate*3600) - math.Log10(x0*3600))
	return 1 / (1 + math.Exp(z))
}

// Package dist provides the seeded samplers used by the LDAR engine:
// emission sizes, natural-repair lifetimes, repair delays and travel times.
// Every sampler draws from a caller-supplied *rand.Rand so that each
// replicate owns its random stream.
package dist

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// ErrUnknownDistribution is returned for a distribution type outside the
// supported set.
var ErrUnknownDistribution = errors.New("unknown distribution type")

// Spec parameterizes a distribution. Which fields are read depends on Type:
//
//	constant:  Value
//	list:      Values (uniform pick)
//	lognormal: Loc, Scale (exp(Loc + Scale*Z))
//	uniform:   Values[0], Values[1] (lower, upper)
type Spec struct {
	Type   string    `yaml:"type"`
	Value  float64   `yaml:"value,omitempty"`
	Values []float64 `yaml:"values,omitempty"`
	Loc    float64   `yaml:"loc,omitempty"`
	Scale  float64   `yaml:"scale,omitempty"`
}

// Constant is shorthand for a constant Spec.
func Constant(v float64) Spec {
	return Spec{Type: "constant", Value: v}
}

// IsZero reports whether the spec was left unset.
func (s Spec) IsZero() bool {
	return s.Type == "" && s.Value == 0 && len(s.Values) == 0 && s.Loc == 0 && s.Scale == 0
}

// RateSampler generates non-negative real samples (g/s, minutes, km/h).
type RateSampler interface {
	Sample(rng *rand.Rand) float64
	Mean() float64
}

// DaySampler generates whole-day durations (>= 0).
type DaySampler interface {
	Sample(rng *rand.Rand) int
	Mean() float64
}

// ConstantSampler always returns the same value.
type ConstantSampler struct {
	value float64
}

func (s *ConstantSampler) Sample(_ *rand.Rand) float64 { return s.value }
func (s *ConstantSampler) Mean() float64               { return s.value }

// ListSampler picks uniformly from a fixed list of values.
type ListSampler struct {
	values []float64
}

func (s *ListSampler) Sample(rng *rand.Rand) float64 {
	if len(s.values) == 1 {
		return s.values[0]
	}
	return s.values[rng.Intn(len(s.values))]
}

func (s *ListSampler) Mean() float64 {
	total := 0.0
	for _, v := range s.values {
		total += v
	}
	return total / float64(len(s.values))
}

// LogNormalSampler draws exp(loc + scale*Z), Z ~ N(0,1).
type LogNormalSampler struct {
	loc, scale float64
}

func (s *LogNormalSampler) Sample(rng *rand.Rand) float64 {
	val := math.Exp(s.loc + s.scale*rng.NormFloat64())
	// Guard against +Inf from extreme scale values
	if math.IsInf(val, 0) || math.IsNaN(val) {
		return math.MaxFloat64
	}
	return val
}

func (s *LogNormalSampler) Mean() float64 {
	return math.Exp(s.loc + s.scale*s.scale/2)
}

// UniformSampler draws from U(lower, upper).
type UniformSampler struct {
	lower, upper float64
}

func (s *UniformSampler) Sample(rng *rand.Rand) float64 {
	return s.lower + rng.Float64()*(s.upper-s.lower)
}

func (s *UniformSampler) Mean() float64 { return (s.lower + s.upper) / 2 }

// roundedDays adapts a RateSampler to whole days, clamped at zero.
type roundedDays struct {
	inner RateSampler
}

func (d roundedDays) Sample(rng *rand.Rand) int {
	v := math.Round(d.inner.Sample(rng))
	if v < 0 {
		return 0
	}
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(v)
}

func (d roundedDays) Mean() float64 { return d.inner.Mean() }

// NewRateSampler creates a RateSampler from a Spec.
func NewRateSampler(spec Spec) (RateSampler, error) {
	switch spec.Type {
	case "constant":
		if spec.Value < 0 || math.IsNaN(spec.Value) || math.IsInf(spec.Value, 0) {
			return nil, fmt.Errorf("constant distribution requires a finite non-negative value, got %f", spec.Value)
		}
		return &ConstantSampler{value: spec.Value}, nil

	case "list":
		if len(spec.Values) == 0 {
			return nil, fmt.Errorf("list distribution requires at least one value")
		}
		for i, v := range spec.Values {
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("list distribution value[%d] must be finite and non-negative, got %f", i, v)
			}
		}
		values := append([]float64(nil), spec.Values...)
		return &ListSampler{values: values}, nil

	case "lognormal":
		if spec.Scale < 0 || math.IsNaN(spec.Scale) || math.IsNaN(spec.Loc) {
			return nil, fmt.Errorf("lognormal distribution requires scale >= 0, got loc=%f scale=%f", spec.Loc, spec.Scale)
		}
		return &LogNormalSampler{loc: spec.Loc, scale: spec.Scale}, nil

	case "uniform":
		if len(spec.Values) != 2 || spec.Values[0] > spec.Values[1] {
			return nil, fmt.Errorf("uniform distribution requires values [lower, upper], got %v", spec.Values)
		}
		return &UniformSampler{lower: spec.Values[0], upper: spec.Values[1]}, nil

	default:
		return nil, fmt.Errorf("%w %q; valid: constant, list, lognormal, uniform", ErrUnknownDistribution, spec.Type)
	}
}

// NewDaySampler creates a DaySampler for repair delays and lifetimes.
// Only the three repair-delay shapes are accepted: constant, list, lognormal.
func NewDaySampler(spec Spec) (DaySampler, error) {
	switch spec.Type {
	case "constant", "list", "lognormal":
	default:
		return nil, fmt.Errorf("%w %q for a day count; valid: constant, list, lognormal", ErrUnknownDistribution, spec.Type)
	}
	inner, err := NewRateSampler(spec)
	if err != nil {
		return nil, err
	}
	return roundedDays{inner: inner}, nil
}

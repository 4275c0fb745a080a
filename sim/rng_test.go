package sim

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func draws(r *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = r.Float64()
	}
	return out
}

func TestPartitionedRNG_EmissionsStreamIsTheReplicateSeed(t *testing.T) {
	// GIVEN replicate seed 2024
	rng := NewPartitionedRNG(NewSimulationKey(2024))

	// WHEN emissions are drawn
	got := draws(rng.ForSubsystem(SubsystemEmissions), 5)

	// THEN they match a plain generator on that seed, so any program of the replicate sees the same leaks
	assert.Equal(t, draws(rand.New(rand.NewSource(2024)), 5), got)
	assert.Equal(t, SimulationKey(2024), rng.Key())
}

func TestPartitionedRNG_MethodStreamSeed(t *testing.T) {
	rng := NewPartitionedRNG(NewSimulationKey(17))

	got := draws(rng.ForSubsystem(SubsystemMethod("OGI")), 3)

	want := draws(rand.New(rand.NewSource(17^fnv1a64("method_OGI"))), 3)
	assert.Equal(t, want, got)
}

func TestPartitionedRNG_SurveyDrawsContinueAcrossDays(t *testing.T) {
	// GIVEN the OGI stream fetched once per survey day
	rng := NewPartitionedRNG(NewSimulationKey(5))
	day0 := rng.ForSubsystem(SubsystemMethod("OGI")).Float64()
	day1 := rng.ForSubsystem(SubsystemMethod("OGI")).Float64()

	// THEN day 1 continues the sequence rather than restarting it
	seq := draws(rand.New(rand.NewSource(5^fnv1a64("method_OGI"))), 2)
	assert.Equal(t, seq, []float64{day0, day1})
	assert.Same(t, rng.ForSubsystem(SubsystemMethod("OGI")), rng.ForSubsystem(SubsystemMethod("OGI")))
}

func TestPartitionedRNG_AerialSurveysDoNotShiftOGIDraws(t *testing.T) {
	// GIVEN two replicates on the same seed
	alone := NewPartitionedRNG(NewSimulationKey(99))
	mixed := NewPartitionedRNG(NewSimulationKey(99))

	// WHEN only the second one also runs a busy aerial company between OGI surveys
	var a, b []float64
	for day := 0; day < 10; day++ {
		a = append(a, alone.ForSubsystem(SubsystemMethod("OGI")).Float64())
		draws(mixed.ForSubsystem(SubsystemMethod("aerial")), 50)
		b = append(b, mixed.ForSubsystem(SubsystemMethod("OGI")).Float64())
		draws(mixed.ForSubsystem(SubsystemLifecycle), 3)
	}

	// THEN OGI sees the same sensor draws in both
	assert.Equal(t, a, b)
}

func TestPartitionedRNG_StreamsAreDistinct(t *testing.T) {
	rng := NewPartitionedRNG(NewSimulationKey(0))
	names := []string{
		SubsystemEmissions, SubsystemLifecycle,
		SubsystemMethod("OGI"), SubsystemMethod("aerial"), SubsystemMethod("OGI_FU"),
	}

	first := make(map[float64]string, len(names))
	for _, n := range names {
		v := rng.ForSubsystem(n).Float64()
		if prev, ok := first[v]; ok {
			t.Fatalf("streams %q and %q start with the same draw %v", prev, n, v)
		}
		first[v] = n
	}
}

func TestSubsystemMethod(t *testing.T) {
	assert.Equal(t, "method_OGI", SubsystemMethod("OGI"))
	assert.Equal(t, "method_", SubsystemMethod(""))
	require.NotEqual(t, SubsystemLifecycle, SubsystemMethod("lifecycle"))
}

func TestFnv1a64_KnownValues(t *testing.T) {
	// FNV-1a offset basis and a published test vector
	assert.Equal(t, int64(-3750763034362895579), fnv1a64(""))
	assert.Equal(t, int64(-5808556873153909620), fnv1a64("a"))
}

func BenchmarkPartitionedRNG_MethodDraw(b *testing.B) {
	rng := NewPartitionedRNG(NewSimulationKey(42))
	for i := 0; i < b.N; i++ {
		_ = rng.ForSubsystem(SubsystemMethod("OGI")).Float64()
	}
}

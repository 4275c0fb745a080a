package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSurveyReport_Lifecycle(t *testing.T) {
	r := NewSurveyReport("A", "OGI", "OGI_crew_0", 3, 120)
	assert.False(t, r.Closed())
	assert.Equal(t, -1, r.EndDay)

	e := NewEmission(EmissionParams{ID: "x"})
	require.NoError(t, r.AddDetection(DetectionRecord{SiteID: "A", EmissionIDs: []string{"x"}, MeasuredRate: 1.5}, []*Emission{e}))
	require.NoError(t, r.Fill(2, 1.5))
	require.NoError(t, r.Close(4))

	assert.True(t, r.Closed())
	assert.True(t, r.Filled())
	assert.Equal(t, 4, r.EndDay)
	assert.Equal(t, 1, r.EmissionsDetected)
	assert.Equal(t, 2.0, r.TrueRate)
	assert.Equal(t, 1.5, r.MeasuredRate)

	// A closed report rejects writes
	assert.ErrorIs(t, r.AddDetection(DetectionRecord{}, nil), ErrReportClosed)
	assert.ErrorIs(t, r.Fill(1, 1), ErrReportClosed)
	assert.ErrorIs(t, r.Close(5), ErrReportClosed)
}

func TestTimeseries_AddAndTotal(t *testing.T) {
	ts := NewTimeseries(3)
	ts.Add("b", 0, 1)
	ts.Add("a", 2, 4)
	ts.Add("b", 0, 2)
	ts.Add("b", 1, 0.5)

	assert.Equal(t, []string{"b", "a"}, ts.Metrics())
	assert.Equal(t, []float64{3, 0.5, 0}, ts.Get("b"))
	assert.Equal(t, 3.5, ts.Total("b"))
	assert.Equal(t, 0.0, ts.Total("missing"))
	assert.Nil(t, ts.Get("missing"))
	assert.Equal(t, 3, ts.Days())
	assert.Panics(t, func() { ts.Add("a", 3, 1) })
}

func TestSummarize(t *testing.T) {
	emissions := []EmissionSummary{
		{Status: StatusRepaired, TaggedBy: "OGI", Tagged: true, Rate: 1, ActiveDays: 10, VolumeKg: 5},
		{Status: StatusRepaired, TaggedBy: TaggedByNatural, Rate: 3, ActiveDays: 20, VolumeKg: 7},
		{Status: StatusExpired, Rate: 2, ActiveDays: 30},
		{Status: StatusActive, Rate: 2, ActiveDays: 40},
		{Status: StatusInactive, Rate: 99, ActiveDays: 0},
	}
	ts := NewTimeseries(2)
	ts.Add(MetricEmissionsKg, 0, 10)
	ts.Add(MetricEmissionsKg, 1, 20)
	ts.Add(MetricTotalCost, 0, 100)
	ts.Add(MetricTotalCost, 1, 50)

	s := Summarize(emissions, ts, []string{MetricTotalCost})

	assert.Equal(t, 4, s.Emissions, "inactive emissions are excluded")
	assert.Equal(t, 1, s.Tagged)
	assert.Equal(t, 1, s.Repaired)
	assert.Equal(t, 1, s.NatRepaired)
	assert.Equal(t, 1, s.Expired)
	assert.Equal(t, 1, s.StillActive)
	assert.Equal(t, 12.0, s.TotalVolumeKg)
	assert.InDelta(t, 2.0, s.MeanRate, 1e-12)
	assert.InDelta(t, 25.0, s.MeanActiveDays, 1e-12)
	assert.Equal(t, 20.0, s.MedianActiveDays)
	assert.Equal(t, 40.0, s.P90ActiveDays)
	assert.Greater(t, s.StdRate, 0.0)
	assert.Equal(t, 15.0, s.MeanDailyEmissionsKg)
	assert.Equal(t, 150.0, s.TotalCost)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil, nil, nil)
	assert.Equal(t, RunSummary{}, s)
}

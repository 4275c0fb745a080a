package sim

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ldar-sim/ldar-sim/sim/dist"
	"github.com/ldar-sim/ldar-sim/sim/internal/testutil"
	"github.com/ldar-sim/ldar-sim/sim/sensor"
)

var testStart = testutil.Date(2024, time.January, 1)

// dayAt returns the Day view for a step counted from testStart.
func dayAt(step int) Day {
	c := NewClock(testStart, testStart.AddDate(1, 0, 0))
	for i := 0; i < step; i++ {
		c.Advance()
	}
	return c.Day()
}

// quietSiteConfig describes a site whose sources never generate emissions
// on their own: tests plant emissions explicitly.
func quietSiteConfig(id string, lat, lon float64, groups int) SiteConfig {
	zero := 0.0
	sc := SiteConfig{ID: id, Lat: lat, Lon: lon}
	for g := 0; g < groups; g++ {
		gid := fmt.Sprintf("g%d", g)
		sc.Groups = append(sc.Groups, GroupConfig{
			ID: gid,
			Equipment: []EquipmentConfig{
				{ID: "e0", Sources: []SourceConfig{{ID: gid + "s0", Rate: dist.Constant(1), InitialProbability: &zero}}},
				{ID: "e1", Sources: []SourceConfig{{ID: gid + "s1", Rate: dist.Constant(1), InitialProbability: &zero}}},
			},
		})
	}
	return sc
}

// quietSite builds a site from quietSiteConfig.
func quietSite(t *testing.T, id string, lat, lon float64, groups int) *Site {
	t.Helper()
	site, err := BuildSite(quietSiteConfig(id, lat, lon, groups), EmissionDefaults{}.WithDefaults())
	require.NoError(t, err)
	return site
}

// plant adds an active-from-startDay repairable emission to a site's
// source at group g, equipment e.
func plant(site *Site, g, e int, id string, rate float64, startDay, repairDelay int) *Emission {
	src := site.Groups[g].Equipment[e].Sources[0]
	em := NewEmission(EmissionParams{
		ID:                id,
		Rate:              rate,
		StartDay:          startDay,
		StartKnown:        true,
		NaturalRepairDays: 100000,
		RepairDelay:       mustDays(dist.Constant(float64(repairDelay))),
	})
	src.AddEmission(em)
	return em
}

func mustDays(spec dist.Spec) dist.DaySampler {
	s, err := dist.NewDaySampler(spec)
	if err != nil {
		panic(err)
	}
	return s
}

// stepSites advances every site one day.
func stepSites(sites []*Site, day int) {
	var tally UpdateTally
	rng := rand.New(rand.NewSource(0))
	for _, s := range sites {
		s.Step(day, rng, &tally)
	}
}

// thresholdMethod is a daily-capable component-level method with a hard
// 0.1 g/s threshold and one crew.
func thresholdMethod(name string) MethodConfig {
	zero := 0
	return MethodConfig{
		Name:            name,
		Sensor:          sensor.Config{Type: "threshold", MDL: []float64{0.1}},
		Crews:           1,
		SurveysPerYear:  365,
		MinIntervalDays: &zero,
	}
}

func newTestCompany(t *testing.T, cfg MethodConfig, sites []*Site, followUps *FollowUpQueue) *Company {
	t.Helper()
	c, err := NewCompany(cfg, sites, rand.New(rand.NewSource(7)), followUps, nil)
	require.NoError(t, err)
	return c
}

package sim

// GroupRate is the summed current rate of one equipment group.
type GroupRate struct {
	GroupID string
	Rate    float64
}

// EquipmentRate is the summed current rate of one piece of equipment.
type EquipmentRate struct {
	GroupID     string
	EquipmentID string
	Rate        float64
}

// SiteRates is a site's current true emission rate rolled up at every
// structural level. Slices follow the site's structural order.
type SiteRates struct {
	SiteID              string
	SiteTrueRate        float64
	EquipmentGroupRates []GroupRate
	EquipmentRates      []EquipmentRate
}

// Aggregate sums current emission rates up the site hierarchy. It only
// reads emission state, so calling it twice on the same day returns
// identical results.
func Aggregate(site *Site) SiteRates {
	out := SiteRates{
		SiteID:              site.ID,
		EquipmentGroupRates: make([]GroupRate, 0, len(site.Groups)),
	}
	for _, g := range site.Groups {
		groupRate := 0.0
		for _, eq := range g.Equipment {
			eqRate := 0.0
			for _, src := range eq.Sources {
				for _, e := range src.active {
					eqRate += e.CurrentRate()
				}
			}
			out.EquipmentRates = append(out.EquipmentRates, EquipmentRate{GroupID: g.ID, EquipmentID: eq.ID, Rate: eqRate})
			groupRate += eqRate
		}
		out.EquipmentGroupRates = append(out.EquipmentGroupRates, GroupRate{GroupID: g.ID, Rate: groupRate})
		out.SiteTrueRate += groupRate
	}
	return out
}

// Group returns the rate of the named group, or 0 if absent.
func (r SiteRates) Group(id string) float64 {
	for _, g := range r.EquipmentGroupRates {
		if g.GroupID == id {
			return g.Rate
		}
	}
	return 0
}

// Equipment returns the rate of the named equipment, or 0 if absent.
func (r SiteRates) Equipment(id string) float64 {
	for _, eq := range r.EquipmentRates {
		if eq.EquipmentID == id {
			return eq.Rate
		}
	}
	return 0
}

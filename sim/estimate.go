package sim

import "math"

// CrewEstimate holds the workload figures used to size a company.
type CrewEstimate struct {
	Sites          int
	SurveysPerYear float64 // mean over surveyed sites
	SurveyMinutes  float64 // mean per site
	TravelMinutes  float64 // mean per site
	WorkdayMinutes float64
}

// EstimateCrewCount returns the smallest crew count that can survey every
// site SurveysPerYear times a year, assuming each campaign of
// floor(365/SurveysPerYear) days must cover all sites. Never below 1.
func EstimateCrewCount(in CrewEstimate) int {
	if in.Sites <= 0 || in.SurveysPerYear <= 0 || in.WorkdayMinutes <= 0 {
		return 1
	}
	perSite := in.SurveyMinutes + in.TravelMinutes
	if perSite <= 0 {
		return 1
	}

	var sitesPerDay float64
	if perSite <= in.WorkdayMinutes {
		sitesPerDay = math.Floor(in.WorkdayMinutes / perSite)
	} else {
		// A site takes several days.
		sitesPerDay = 1 / math.Ceil(perSite/in.WorkdayMinutes)
	}

	campaignDays := math.Max(1, math.Floor(365/in.SurveysPerYear))
	crews := int(math.Ceil(float64(in.Sites) / (sitesPerDay * campaignDays)))
	return max(1, crews)
}

package trace

// TraceSummary aggregates statistics from a DispatchTrace.
type TraceSummary struct {
	TotalVisits       int
	CompletedSurveys  int
	ResumedSurveys    int
	SkippedCrewDays   int
	MeanTravelMinutes float64
	MaxTravelMinutes  float64
	VisitsPerCrew     map[string]int // "company/crew" → visits
	SkipReasons       map[string]int
}

// Summarize computes aggregate statistics from a DispatchTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(dt *DispatchTrace) *TraceSummary {
	summary := &TraceSummary{
		VisitsPerCrew: make(map[string]int),
		SkipReasons:   make(map[string]int),
	}
	if dt == nil {
		return summary
	}

	summary.TotalVisits = len(dt.Visits)
	totalTravel := 0.0
	for _, v := range dt.Visits {
		summary.VisitsPerCrew[v.Company+"/"+v.Crew]++
		if v.Completed {
			summary.CompletedSurveys++
		}
		if v.Reason == "resume" {
			summary.ResumedSurveys++
		}
		totalTravel += v.TravelMinutes
		if v.TravelMinutes > summary.MaxTravelMinutes {
			summary.MaxTravelMinutes = v.TravelMinutes
		}
	}
	if len(dt.Visits) > 0 {
		summary.MeanTravelMinutes = totalTravel / float64(len(dt.Visits))
	}

	summary.SkippedCrewDays = len(dt.Skips)
	for _, s := range dt.Skips {
		summary.SkipReasons[s.Reason]++
	}
	return summary
}

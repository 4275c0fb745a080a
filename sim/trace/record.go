// Package trace provides dispatch-decision recording for crew scheduling
// analysis. This package has no dependencies on sim/; it stores pure data types.
package trace

// VisitRecord captures one crew's work on one site during one day.
type VisitRecord struct {
	Day           int
	Company       string
	Crew          string
	SiteID        string
	Reason        string // "overdue", "due", "resume", "follow-up"
	TravelMinutes float64
	SurveyMinutes float64 // minutes spent surveying today
	Completed     bool    // the survey report closed today
}

// SkipRecord captures a crew-day lost before any site was visited.
type SkipRecord struct {
	Day     int
	Company string
	Crew    string
	Reason  string // "weather", "daylight", "no-sites"
}

package trace

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures every site visit and skipped crew-day.
	TraceLevelDecisions TraceLevel = "decisions"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// DispatchTrace collects decision records during one program replicate.
// A nil *DispatchTrace is valid and records nothing.
type DispatchTrace struct {
	Config TraceConfig
	Visits []VisitRecord
	Skips  []SkipRecord
}

// NewDispatchTrace creates a DispatchTrace ready for recording.
func NewDispatchTrace(config TraceConfig) *DispatchTrace {
	return &DispatchTrace{
		Config: config,
		Visits: make([]VisitRecord, 0),
		Skips:  make([]SkipRecord, 0),
	}
}

// Enabled reports whether records are being kept.
func (dt *DispatchTrace) Enabled() bool {
	return dt != nil && dt.Config.Level == TraceLevelDecisions
}

// RecordVisit appends a visit record.
func (dt *DispatchTrace) RecordVisit(record VisitRecord) {
	if !dt.Enabled() {
		return
	}
	dt.Visits = append(dt.Visits, record)
}

// RecordSkip appends a skipped crew-day record.
func (dt *DispatchTrace) RecordSkip(record SkipRecord) {
	if !dt.Enabled() {
		return
	}
	dt.Skips = append(dt.Skips, record)
}

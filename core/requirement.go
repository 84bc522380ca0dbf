package core

import "fmt"

// Complexity grades how demanding a task is.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// SpeedPreference expresses the latency/quality trade-off a caller wants.
type SpeedPreference string

const (
	// SpeedRealtime forces the fastest available model.
	SpeedRealtime SpeedPreference = "realtime"
	SpeedFast     SpeedPreference = "fast"
	// SpeedQuality prefers output quality over latency.
	SpeedQuality SpeedPreference = "quality"
)

// TaskRequirement is the abstract requirement derived from a single request.
// It is created per request and discarded once a model has been selected.
type TaskRequirement struct {
	Complexity    Complexity      `json:"complexity"`
	Speed         SpeedPreference `json:"speed"`
	Domain        string          `json:"domain"`
	ContextNeeded int             `json:"context_needed"` // minimum context window in tokens
}

// String renders the requirement in a compact, log friendly form.
func (r TaskRequirement) String() string {
	return fmt.Sprintf("%s/%s/%s/%d", r.Complexity, r.Speed, r.Domain, r.ContextNeeded)
}

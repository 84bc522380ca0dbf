package selector

import (
	"github.com/simcoestone/modelmesh/core"
	"github.com/simcoestone/modelmesh/registry"
)

// Rule names.
const (
	RuleRealtime   = "realtime"
	RuleComplex    = "complex"
	RuleQuality    = "quality"
	RuleAssignment = "assignment"
	RuleDefault    = "default"
)

// Candidate is the input every Rule sees.
type Candidate struct {
	AgentID     string
	Requirement core.TaskRequirement
	// Assigned is the agent's current assignment, empty when it has none.
	Assigned string
	Registry *registry.Registry
}

// Rule resolves a candidate to a model name, or defers by returning false.
type Rule struct {
	Name    string
	Resolve func(c Candidate) (string, bool)
}

// DefaultRules returns the built-in rule chain in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{Name: RuleRealtime, Resolve: realtimeRule},
		{Name: RuleComplex, Resolve: complexRule},
		{Name: RuleQuality, Resolve: qualityRule},
		{Name: RuleAssignment, Resolve: assignmentRule},
		{Name: RuleDefault, Resolve: defaultRule},
	}
}

func realtimeRule(c Candidate) (string, bool) {
	if c.Requirement.Speed != core.SpeedRealtime {
		return "", false
	}
	return c.Registry.Fastest().Name, true
}

func complexRule(c Candidate) (string, bool) {
	if c.Requirement.Complexity != core.ComplexityComplex {
		return "", false
	}
	return c.Registry.BestQuality(c.Requirement.ContextNeeded).Name, true
}

func qualityRule(c Candidate) (string, bool) {
	if c.Requirement.Speed != core.SpeedQuality {
		return "", false
	}
	return c.Registry.BestQuality(c.Requirement.ContextNeeded).Name, true
}

func assignmentRule(c Candidate) (string, bool) {
	return c.Assigned, c.Assigned != ""
}

func defaultRule(c Candidate) (string, bool) {
	return c.Registry.Default().Name, true
}

// Package classifier derives a core.TaskRequirement from an agent identity,
// the raw request text and an optional task label.
//
// Classification starts from the agent's base profile and lets keyword rules
// override individual fields. The first matching rule per field wins.
package classifier

import (
	"strings"
	"unicode/utf8"

	"github.com/simcoestone/modelmesh/core"
)

// Field names the requirement field a KeywordRule sets.
type Field string

const (
	FieldComplexity Field = "complexity"
	FieldSpeed      Field = "speed"
	FieldDomain     Field = "domain"
)

// KeywordRule sets Field to Value when the task label contains any of
// LabelTerms or the text contains any of TextTerms. Matching is
// case-insensitive substring containment.
type KeywordRule struct {
	Field      Field
	Value      string
	LabelTerms []string
	TextTerms  []string
}

func (r KeywordRule) matches(label, text string) bool {
	for _, t := range r.LabelTerms {
		if strings.Contains(label, t) {
			return true
		}
	}
	for _, t := range r.TextTerms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}

// DefaultRules returns the built-in keyword rules.
func DefaultRules() []KeywordRule {
	return []KeywordRule{
		{Field: FieldComplexity, Value: string(core.ComplexitySimple), LabelTerms: []string{"emergency", "quick"}, TextTerms: []string{"urgent"}},
		{Field: FieldComplexity, Value: string(core.ComplexityComplex), LabelTerms: []string{"analysis", "plan", "research"}},
		{Field: FieldSpeed, Value: string(core.SpeedRealtime), LabelTerms: []string{"emergency"}, TextTerms: []string{"immediate"}},
		{Field: FieldSpeed, Value: string(core.SpeedQuality), LabelTerms: []string{"detailed", "comprehensive"}},
		{Field: FieldDomain, Value: "masonry", LabelTerms: []string{"masonry"}, TextTerms: []string{"stone", "masonry"}},
		{Field: FieldDomain, Value: "business", LabelTerms: []string{"business", "plan"}},
		{Field: FieldDomain, Value: "technical", LabelTerms: []string{"code", "debug"}},
	}
}

// DefaultProfiles returns the base requirement of each known agent.
func DefaultProfiles() map[string]core.TaskRequirement {
	return map[string]core.TaskRequirement{
		"coordinate": {Complexity: core.ComplexitySimple, Speed: core.SpeedRealtime, Domain: "coordination", ContextNeeded: 2048},
		"ollama":     {Complexity: core.ComplexityMedium, Speed: core.SpeedFast, Domain: "general", ContextNeeded: 4096},
		"browser":    {Complexity: core.ComplexityMedium, Speed: core.SpeedFast, Domain: "research", ContextNeeded: 8192},
		"coder":      {Complexity: core.ComplexityComplex, Speed: core.SpeedQuality, Domain: "code_generation", ContextNeeded: 16384},
		"planner":    {Complexity: core.ComplexityComplex, Speed: core.SpeedQuality, Domain: "strategic_planning", ContextNeeded: 8192},
		"emergency":  {Complexity: core.ComplexitySimple, Speed: core.SpeedRealtime, Domain: "emergency", ContextNeeded: 2048},
	}
}

// Options configures a Classifier.
type Options struct {
	// Profiles maps agent ids to their base requirement.
	Profiles map[string]core.TaskRequirement
	// FallbackAgent names the profile used for unknown agents.
	FallbackAgent string
	Rules         []KeywordRule
	// ContextMultiplier scales the input length to leave room for the answer.
	ContextMultiplier int
	MinContext        int
}

// Classifier maps requests to requirements. It is immutable after New and
// safe for concurrent use.
type Classifier struct {
	profiles   map[string]core.TaskRequirement
	fallback   core.TaskRequirement
	rules      []KeywordRule
	multiplier int
	minContext int
}

// New creates a Classifier with the built-in profiles and rules.
func New(optFns ...func(o *Options)) *Classifier {
	opts := Options{
		Profiles:          DefaultProfiles(),
		FallbackAgent:     "ollama",
		Rules:             DefaultRules(),
		ContextMultiplier: 3,
		MinContext:        2048,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	c := &Classifier{
		profiles:   make(map[string]core.TaskRequirement, len(opts.Profiles)),
		rules:      make([]KeywordRule, 0, len(opts.Rules)),
		multiplier: max(opts.ContextMultiplier, 1),
		minContext: opts.MinContext,
	}
	for k, v := range opts.Profiles {
		c.profiles[strings.ToLower(k)] = v
	}
	for _, r := range opts.Rules {
		r.LabelTerms = lowerAll(r.LabelTerms)
		r.TextTerms = lowerAll(r.TextTerms)
		c.rules = append(c.rules, r)
	}
	c.fallback = c.profiles[strings.ToLower(opts.FallbackAgent)]
	if c.fallback.Complexity == "" {
		c.fallback = core.TaskRequirement{
			Complexity:    core.ComplexityMedium,
			Speed:         core.SpeedFast,
			Domain:        "general",
			ContextNeeded: opts.MinContext,
		}
	}
	return c
}

// Profile returns the base requirement for agentID.
func (c *Classifier) Profile(agentID string) core.TaskRequirement {
	if p, ok := c.profiles[strings.ToLower(agentID)]; ok {
		return p
	}
	return c.fallback
}

// Classify returns the requirement for one request. It never fails.
func (c *Classifier) Classify(agentID, text, taskLabel string) core.TaskRequirement {
	req := c.Profile(agentID)
	label := strings.ToLower(taskLabel)
	lower := strings.ToLower(text)

	set := map[Field]bool{}
	for _, r := range c.rules {
		if set[r.Field] || !r.matches(label, lower) {
			continue
		}
		set[r.Field] = true
		switch r.Field {
		case FieldComplexity:
			req.Complexity = core.Complexity(r.Value)
		case FieldSpeed:
			req.Speed = core.SpeedPreference(r.Value)
		case FieldDomain:
			req.Domain = r.Value
		}
	}

	req.ContextNeeded = max(utf8.RuneCountInString(text)*c.multiplier, c.minContext, req.ContextNeeded)
	return req
}

var std = New()

// Classify classifies with the built-in profiles and rules.
func Classify(agentID, text, taskLabel string) core.TaskRequirement {
	return std.Classify(agentID, text, taskLabel)
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

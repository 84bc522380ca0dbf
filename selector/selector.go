// Package selector maps an agent and its task requirement to a concrete model.
//
// Selection walks an ordered list of named rules. The first rule that resolves
// wins. A resolved name the registry does not offer is replaced by the
// registry default, so Select always returns a usable descriptor.
package selector

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/simcoestone/modelmesh/core"
	"github.com/simcoestone/modelmesh/lifecycle"
	"github.com/simcoestone/modelmesh/logging"
	"github.com/simcoestone/modelmesh/metrics"
	"github.com/simcoestone/modelmesh/registry"
)

// Monitor receives every selection. *lifecycle.Monitor implements it.
type Monitor interface {
	MarkUsed(name string) []lifecycle.Eviction
	Use(name string) ([]lifecycle.Eviction, func())
}

// DefaultAssignments returns the built-in agent → model table.
func DefaultAssignments() map[string]string {
	return map[string]string{
		"coordinate": "llama-3.2-3b-instruct",
		"emergency":  "llama-3.2-3b-instruct",
		"memory":     "phi-3.5-mini-instruct",
		"ollama":     "llama-3.2-8b-instruct",
		"browser":    "llama-3.2-8b-instruct",
		"coder":      "mistral-7b-instruct",
		"planner":    "qwen2.5-32b-instruct",
		"analyst":    "llama-3.1-70b-instruct",
		"writer":     "llama-3.1-70b-instruct",
	}
}

// Options configures a Selector.
type Options struct {
	Assignments map[string]string
	Rules       []Rule
	Monitor     Monitor
	Clock       func() time.Time
	Logger      logging.Logger
	Metrics     *metrics.Metrics
}

// Decision is the outcome of one selection.
type Decision struct {
	Model registry.Descriptor `json:"model"`
	// Rule is the name of the rule that resolved.
	Rule string `json:"rule"`
	// Fallback is set when the resolved name was unknown and the registry
	// default was substituted.
	Fallback  bool   `json:"fallback,omitempty"`
	Requested string `json:"requested,omitempty"`
}

// Reassignment records an assignment repointed by Reconcile.
type Reassignment struct {
	Agent string `json:"agent"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// Selector owns the agent assignments and applies the rule chain.
type Selector struct {
	reg     *registry.Registry
	rules   []Rule
	monitor Monitor
	clock   func() time.Time
	logger  logging.Logger
	metrics *metrics.Metrics

	mu          sync.RWMutex
	assignments map[string]string
}

// New creates a Selector over reg.
func New(reg *registry.Registry, optFns ...func(o *Options)) *Selector {
	opts := Options{
		Assignments: DefaultAssignments(),
		Rules:       DefaultRules(),
		Clock:       time.Now,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Selector{
		reg:         reg,
		rules:       slices.Clone(opts.Rules),
		monitor:     opts.Monitor,
		clock:       opts.Clock,
		logger:      logging.OrNoOp(opts.Logger),
		metrics:     opts.Metrics,
		assignments: maps.Clone(opts.Assignments),
	}
}

// Select picks the model for agentID. It never fails: an empty registry
// yields registry.FallbackDescriptor().
func (s *Selector) Select(agentID string, req core.TaskRequirement) Decision {
	dec := s.decide(agentID, req)
	if s.monitor != nil {
		s.monitor.MarkUsed(dec.Model.Name)
	}
	return dec
}

// Acquire is Select for a request about to be dispatched. The chosen model
// is held in flight until release is called, so no other selection can evict
// it in between.
func (s *Selector) Acquire(agentID string, req core.TaskRequirement) (Decision, func()) {
	dec := s.decide(agentID, req)
	if s.monitor == nil {
		return dec, func() {}
	}
	_, release := s.monitor.Use(dec.Model.Name)
	return dec, release
}

func (s *Selector) decide(agentID string, req core.TaskRequirement) Decision {
	c := Candidate{
		AgentID:     agentID,
		Requirement: req,
		Assigned:    s.Assignment(agentID),
		Registry:    s.reg,
	}

	dec := Decision{Rule: RuleDefault}
	name := ""
	for _, r := range s.rules {
		if n, ok := r.Resolve(c); ok && n != "" {
			name, dec.Rule = n, r.Name
			break
		}
	}
	if name == "" {
		name = s.reg.Default().Name
	}

	dec.Model, dec.Fallback = s.resolve(name)
	if dec.Fallback {
		dec.Requested = name
		s.logger.Warn("unknown model, using default",
			"agent", agentID, "requested", name, "default", dec.Model.Name, "rule", dec.Rule)
		s.metrics.RecordFallback("unknown_model")
	}

	now := s.clock()
	if s.reg.Touch(dec.Model.Name, now) {
		dec.Model.LastUsedAt = now
	}

	s.metrics.RecordSelection(dec.Rule)
	s.logger.Debug("model selected",
		"agent", agentID, "model", dec.Model.Name, "rule", dec.Rule, "requirement", req.String())
	return dec
}

// resolve maps name onto an available descriptor or the registry default.
func (s *Selector) resolve(name string) (registry.Descriptor, bool) {
	if d, ok := s.reg.Get(name); ok && s.reg.IsAvailable(name) {
		return d, false
	}
	def := s.reg.Default()
	return def, def.Name != name
}

// Assignment returns the model assigned to agentID, or "".
func (s *Selector) Assignment(agentID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.assignments[agentID]
}

// Assignments returns a copy of the assignment table.
func (s *Selector) Assignments() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.assignments)
}

// Assign points agentID at model, replacing any previous assignment.
func (s *Selector) Assign(agentID, model string) {
	s.mu.Lock()
	s.assignments[agentID] = model
	s.mu.Unlock()
}

// Reconcile repoints every assignment whose target is not in available. A
// substitute shares the target's family token when possible, otherwise it is
// the first available name. Agents are processed in name order. An empty
// available list changes nothing.
func (s *Selector) Reconcile(available []string) []Reassignment {
	if len(available) == 0 {
		return nil
	}
	offered := make(map[string]bool, len(available))
	for _, n := range available {
		offered[n] = true
	}

	s.mu.Lock()
	var out []Reassignment
	for _, agent := range slices.Sorted(maps.Keys(s.assignments)) {
		from := s.assignments[agent]
		if offered[from] {
			continue
		}
		to := substitute(from, available)
		s.assignments[agent] = to
		out = append(out, Reassignment{Agent: agent, From: from, To: to})
	}
	s.mu.Unlock()

	for _, r := range out {
		s.logger.Info("assignment repointed", "agent", r.Agent, "from", r.From, "to", r.To)
		s.metrics.RecordFallback("assignment_drift")
	}
	return out
}

func substitute(target string, available []string) string {
	fam := registry.Family(target)
	for _, n := range available {
		if registry.Family(n) == fam {
			return n
		}
	}
	return available[0]
}

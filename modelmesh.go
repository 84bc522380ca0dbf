// Package modelmesh wires the model-selection scheduler and the semantic mesh
// into one in-process component. Most applications interact with this
// package by:
//  1. Creating a Mesh via New(), a pure construction step without I/O
//  2. Calling Start to discover the served catalog, reconcile assignments,
//     preload models and schedule the idle sweep
//  3. Routing (Route) or running (Run, Coordinate) agent tasks, and reading
//     earlier answers back through Recall
//
// Every collaborator is explicit: the registry, classifier, selector,
// lifecycle monitor, node store and retrieval engine are built from Options
// and can be reached through accessors for finer control.
package modelmesh

import (
	"context"
	"errors"
	"time"

	"github.com/simcoestone/modelmesh/classifier"
	"github.com/simcoestone/modelmesh/core"
	"github.com/simcoestone/modelmesh/lifecycle"
	"github.com/simcoestone/modelmesh/logging"
	"github.com/simcoestone/modelmesh/mesh"
	"github.com/simcoestone/modelmesh/metrics"
	"github.com/simcoestone/modelmesh/model"
	"github.com/simcoestone/modelmesh/registry"
	"github.com/simcoestone/modelmesh/retrieval"
	"github.com/simcoestone/modelmesh/selector"
)

// ErrNoBackend is returned by Run when no model.Backend is configured.
var ErrNoBackend = errors.New("no model backend configured")

// Options configures the Mesh instance.
type Options struct {
	// Registry
	Catalog          []registry.Descriptor
	DefaultModel     string
	Lister           core.ModelLister
	CapabilityTable  *registry.CapabilityTable
	DiscoveryTimeout time.Duration

	// Selection
	Assignments map[string]string
	Rules       []selector.Rule
	Profiles    map[string]core.TaskRequirement

	// Lifecycle
	MemoryBudgetMB int
	MaxLoaded      int
	IdleTimeout    time.Duration
	SweepInterval  time.Duration
	// Preload names models admitted by Start, in order.
	Preload []string
	OnEvict func(lifecycle.Eviction)

	// Mesh and retrieval
	LinkThreshold  float64
	HalfLife       time.Duration
	RelevanceFloor float64
	// RecallLimit caps the related nodes injected into a Run prompt.
	RecallLimit int

	// Dispatch
	Backend     model.Backend
	Temperature float64
	// MaxTokens caps the completion length; the model context length / 4
	// lowers it further.
	MaxTokens int64

	Clock   func() time.Time
	Logger  logging.Logger
	Metrics *metrics.Metrics
}

// Mesh is the façade aggregating the scheduler and the node store. It is safe
// for concurrent use once New returns.
type Mesh struct {
	opts Options

	registry   *registry.Registry
	classifier *classifier.Classifier
	selector   *selector.Selector
	monitor    *lifecycle.Monitor
	store      *mesh.Store
	retrieval  *retrieval.Engine
	logger     logging.Logger
}

// New creates a Mesh. It performs no I/O; call Start to discover models.
func New(optFns ...func(o *Options)) *Mesh {
	opts := Options{
		DefaultModel:     registry.DefaultModelName,
		DiscoveryTimeout: 5 * time.Second,
		Assignments:      selector.DefaultAssignments(),
		Rules:            selector.DefaultRules(),
		Profiles:         classifier.DefaultProfiles(),
		MemoryBudgetMB:   8192,
		MaxLoaded:        3,
		IdleTimeout:      30 * time.Minute,
		SweepInterval:    60 * time.Second,
		LinkThreshold:    0.8,
		HalfLife:         time.Hour,
		RelevanceFloor:   0.7,
		RecallLimit:      3,
		Temperature:      0.7,
		MaxTokens:        2048,
		Clock:            time.Now,
		Logger:           logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	reg := registry.New(func(o *registry.Options) {
		o.Catalog = opts.Catalog
		o.DefaultModel = opts.DefaultModel
		o.Lister = opts.Lister
		if opts.CapabilityTable != nil {
			o.Table = opts.CapabilityTable
		}
		o.DiscoveryTimeout = opts.DiscoveryTimeout
		o.Clock = opts.Clock
		o.Logger = componentLogger(opts.Logger, "registry")
		o.Metrics = opts.Metrics
	})

	mon := lifecycle.New(reg, func(o *lifecycle.Options) {
		o.MemoryBudgetMB = opts.MemoryBudgetMB
		o.MaxLoaded = opts.MaxLoaded
		o.IdleTimeout = opts.IdleTimeout
		o.SweepInterval = opts.SweepInterval
		o.Clock = opts.Clock
		o.OnEvict = opts.OnEvict
		o.Logger = componentLogger(opts.Logger, "lifecycle")
		o.Metrics = opts.Metrics
	})

	sel := selector.New(reg, func(o *selector.Options) {
		o.Assignments = opts.Assignments
		o.Rules = opts.Rules
		o.Monitor = mon
		o.Clock = opts.Clock
		o.Logger = componentLogger(opts.Logger, "selector")
		o.Metrics = opts.Metrics
	})

	store := mesh.NewStore(func(o *mesh.Options) {
		o.LinkThreshold = opts.LinkThreshold
		o.HalfLife = opts.HalfLife
		o.Clock = opts.Clock
		o.Logger = componentLogger(opts.Logger, "mesh")
		o.Metrics = opts.Metrics
	})

	return &Mesh{
		opts:       opts,
		registry:   reg,
		classifier: classifier.New(func(o *classifier.Options) { o.Profiles = opts.Profiles }),
		selector:   sel,
		monitor:    mon,
		store:      store,
		retrieval: retrieval.New(store, func(o *retrieval.Options) {
			o.Floor = opts.RelevanceFloor
			o.Logger = componentLogger(opts.Logger, "retrieval")
			o.Metrics = opts.Metrics
		}),
		logger: opts.Logger,
	}
}

// componentLogger tags MeshLogger output with the component name. Other
// loggers are passed through unchanged.
func componentLogger(l logging.Logger, component string) logging.Logger {
	if ml, ok := l.(*logging.MeshLogger); ok {
		return ml.WithComponent(component)
	}
	return l
}

// Start runs discovery, repoints assignments whose model is not served,
// preloads the configured models and schedules the idle sweep. A failed
// discovery is reported in the result and is not an error; the static
// catalog stays in use.
func (m *Mesh) Start(ctx context.Context) (registry.DiscoveryResult, error) {
	start := time.Now()
	res := m.registry.Discover(ctx)
	// Degradation is already warned about by the registry, once per streak.
	if ml, ok := m.logger.(*logging.MeshLogger); ok && !res.Degraded() {
		ml.LogDiscovery(string(res.Source), len(res.Discovered), time.Since(start), nil)
	}

	m.selector.Reconcile(res.Available)

	var preload []string
	for _, name := range m.opts.Preload {
		if !m.registry.IsAvailable(name) {
			m.logger.Warn("skipping preload of unavailable model", "model", name)
			continue
		}
		preload = append(preload, name)
	}
	m.monitor.Preload(preload...)

	if err := m.monitor.Start(ctx); err != nil {
		return res, err
	}
	return res, nil
}

// Stop halts the idle sweep. It is safe to call more than once.
func (m *Mesh) Stop() error { return m.monitor.Stop() }

// Route is the scheduling outcome of one request.
type Route struct {
	AgentID     string               `json:"agent_id"`
	Requirement core.TaskRequirement `json:"requirement"`
	Decision    selector.Decision    `json:"decision"`
}

// Route classifies the request and selects a model. The selected model is
// marked used in the lifecycle monitor.
func (m *Mesh) Route(agentID, text, taskLabel string) Route {
	req := m.classifier.Classify(agentID, text, taskLabel)
	return Route{
		AgentID:     agentID,
		Requirement: req,
		Decision:    m.selector.Select(agentID, req),
	}
}

// acquireRoute is Route with the chosen model held in flight until release
// is called.
func (m *Mesh) acquireRoute(agentID, text, taskLabel string) (Route, func()) {
	req := m.classifier.Classify(agentID, text, taskLabel)
	dec, release := m.selector.Acquire(agentID, req)
	return Route{AgentID: agentID, Requirement: req, Decision: dec}, release
}

// Stats is a point-in-time snapshot of the whole mesh.
type Stats struct {
	Registry      registry.Stats    `json:"registry"`
	Loaded        []string          `json:"loaded"`
	UsedMB        int               `json:"used_mb"`
	Nodes         int               `json:"nodes"`
	Entanglements int               `json:"entanglements"`
	Assignments   map[string]string `json:"assignments"`
}

// Stats returns a snapshot of registry, lifecycle and mesh counters.
func (m *Mesh) Stats() Stats {
	return Stats{
		Registry:      m.registry.Stats(),
		Loaded:        m.monitor.Loaded(),
		UsedMB:        m.monitor.UsedMB(),
		Nodes:         m.store.Len(),
		Entanglements: m.store.Edges(),
		Assignments:   m.selector.Assignments(),
	}
}

// Registry returns the model registry.
func (m *Mesh) Registry() *registry.Registry { return m.registry }

// Selector returns the model selector.
func (m *Mesh) Selector() *selector.Selector { return m.selector }

// Monitor returns the lifecycle monitor.
func (m *Mesh) Monitor() *lifecycle.Monitor { return m.monitor }

// Store returns the semantic node store.
func (m *Mesh) Store() *mesh.Store { return m.store }

package registry

import (
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/simcoestone/modelmesh/core"
	"github.com/simcoestone/modelmesh/logging"
	"github.com/simcoestone/modelmesh/metrics"
)

// Options configures a Registry.
type Options struct {
	// Catalog seeds the registry. Defaults to StaticCatalog(). An explicitly
	// empty, non-nil slice yields an empty registry.
	Catalog []Descriptor
	// DefaultModel names the designated default descriptor.
	DefaultModel string
	// Lister backs Discover. When nil, discovery always reports the static catalog.
	Lister core.ModelLister
	// Table resolves discovered ids. Defaults to DefaultCapabilityTable().
	Table *CapabilityTable
	// DiscoveryTimeout bounds a single ListModels call.
	DiscoveryTimeout time.Duration

	Clock   func() time.Time
	Logger  logging.Logger
	Metrics *metrics.Metrics
}

// Registry is the concurrency-safe set of model descriptors.
type Registry struct {
	mu          sync.RWMutex
	models      map[string]*Descriptor
	available   map[string]bool
	static      []Descriptor
	defaultName string
	degraded    bool

	lister  core.ModelLister
	table   *CapabilityTable
	timeout time.Duration
	clock   func() time.Time
	logger  logging.Logger
	metrics *metrics.Metrics
	flight  singleflight.Group
}

// New creates a Registry seeded with the static catalog.
func New(optFns ...func(o *Options)) *Registry {
	opts := Options{
		DefaultModel:     DefaultModelName,
		Table:            DefaultCapabilityTable(),
		DiscoveryTimeout: 5 * time.Second,
		Clock:            time.Now,
		Logger:           logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Catalog == nil {
		opts.Catalog = StaticCatalog()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	r := &Registry{
		models:      make(map[string]*Descriptor, len(opts.Catalog)),
		available:   make(map[string]bool, len(opts.Catalog)),
		defaultName: opts.DefaultModel,
		lister:      opts.Lister,
		table:       opts.Table,
		timeout:     opts.DiscoveryTimeout,
		clock:       opts.Clock,
		logger:      logging.OrNoOp(opts.Logger),
		metrics:     opts.Metrics,
	}
	for _, d := range opts.Catalog {
		if d.Name == "" {
			continue
		}
		if d.Source == "" {
			d.Source = SourceStatic
		}
		d = d.normalize()
		r.static = append(r.static, d.clone())
		r.models[d.Name] = &d
		r.available[d.Name] = true
	}
	return r
}

// Get returns a copy of the named descriptor.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.models[name]
	if !ok {
		return Descriptor{}, false
	}
	return d.clone(), true
}

// Has reports whether name is a known descriptor.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.models[name]
	return ok
}

// IsAvailable reports whether name was offered by the last successful
// discovery, or belongs to the static catalog when discovery is degraded.
func (r *Registry) IsAvailable(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.available[name]
}

// List returns copies of every descriptor sorted by name.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(func(*Descriptor) bool { return true })
}

// Available returns copies of the currently available descriptors sorted by name.
func (r *Registry) Available() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(func(d *Descriptor) bool { return r.available[d.Name] })
}

// caller holds r.mu
func (r *Registry) collect(keep func(*Descriptor) bool) []Descriptor {
	out := make([]Descriptor, 0, len(r.models))
	for _, d := range r.models {
		if keep(d) {
			out = append(out, d.clone())
		}
	}
	slices.SortFunc(out, func(a, b Descriptor) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return out
}

// Names returns the available descriptor names sorted.
func (r *Registry) Names() []string {
	ds := r.Available()
	names := make([]string, len(ds))
	for i, d := range ds {
		names[i] = d.Name
	}
	return names
}

// Len returns the number of known descriptors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}

// DefaultName returns the configured default model name.
func (r *Registry) DefaultName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultName
}

// SetDefault changes the designated default descriptor.
func (r *Registry) SetDefault(name string) {
	r.mu.Lock()
	r.defaultName = name
	r.mu.Unlock()
}

// Default returns the designated default descriptor. When it is not
// available the first available member of the same family is used, then any
// available descriptor, then FallbackDescriptor(). It never fails.
func (r *Registry) Default() Descriptor {
	r.mu.RLock()
	name := r.defaultName
	if d, ok := r.models[name]; ok && r.available[name] {
		r.mu.RUnlock()
		return d.clone()
	}
	r.mu.RUnlock()

	avail := r.Available()
	fam := Family(name)
	for _, d := range avail {
		if d.Family == fam {
			return d
		}
	}
	if len(avail) > 0 {
		return avail[0]
	}
	return FallbackDescriptor()
}

// Fastest returns the fastest available descriptor: fast tier first, then the
// highest speed score. Falls back to Default() on an empty registry.
func (r *Registry) Fastest() Descriptor {
	avail := r.Available()
	if len(avail) == 0 {
		return r.Default()
	}
	best := avail[0]
	for _, d := range avail[1:] {
		if faster(d, best) {
			best = d
		}
	}
	return best
}

// BestQuality returns the highest quality available descriptor whose context
// window covers minContext. When none covers it, the descriptor with the
// largest context window is returned, so the result is always usable.
func (r *Registry) BestQuality(minContext int) Descriptor {
	avail := r.Available()
	if len(avail) == 0 {
		return r.Default()
	}
	var (
		best  Descriptor
		found bool
	)
	for _, d := range avail {
		if !d.Covers(minContext) {
			continue
		}
		if !found || better(d, best) {
			best, found = d, true
		}
	}
	if found {
		return best
	}
	return r.Largest()
}

// Largest returns the available descriptor with the largest context window,
// ties broken by quality.
func (r *Registry) Largest() Descriptor {
	avail := r.Available()
	if len(avail) == 0 {
		return r.Default()
	}
	best := avail[0]
	for _, d := range avail[1:] {
		if d.ContextLength > best.ContextLength ||
			(d.ContextLength == best.ContextLength && better(d, best)) {
			best = d
		}
	}
	return best
}

// SetLoaded flips the loaded flag of name. It reports whether name is known.
func (r *Registry) SetLoaded(name string, loaded bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.models[name]
	if ok {
		d.Loaded = loaded
	}
	return ok
}

// Touch records a use of name at t. It reports whether name is known.
func (r *Registry) Touch(name string, t time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.models[name]
	if ok && t.After(d.LastUsedAt) {
		d.LastUsedAt = t
	}
	return ok
}

// Stats summarises the registry.
type Stats struct {
	Total        int                    `json:"total"`
	Available    int                    `json:"available"`
	Loaded       []string               `json:"loaded"`
	BySpeed      map[SpeedTier][]string `json:"by_speed"`
	ByCapability map[string][]string    `json:"by_capability"`
	Default      string                 `json:"default"`
}

// Stats returns totals and names grouped per speed tier and per capability.
// Only available descriptors are grouped.
func (r *Registry) Stats() Stats {
	all := r.List()
	s := Stats{
		Total:        len(all),
		BySpeed:      make(map[SpeedTier][]string),
		ByCapability: make(map[string][]string),
		Default:      r.Default().Name,
	}
	for _, d := range all {
		if d.Loaded {
			s.Loaded = append(s.Loaded, d.Name)
		}
		if !r.IsAvailable(d.Name) {
			continue
		}
		s.Available++
		s.BySpeed[d.Speed] = append(s.BySpeed[d.Speed], d.Name)
		for _, c := range d.Capabilities {
			s.ByCapability[c] = append(s.ByCapability[c], d.Name)
		}
	}
	return s
}

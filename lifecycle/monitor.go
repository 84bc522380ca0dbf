// Package lifecycle keeps the advisory bookkeeping of which models are
// considered loaded.
//
// The Monitor enforces a memory budget and a maximum number of concurrently
// loaded models with least-recently-used eviction, and sweeps models that have
// been idle longer than a timeout. Evictions never free memory themselves;
// they are reported through Options.OnEvict so the inference backend may
// unload weights.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/simcoestone/modelmesh/logging"
	"github.com/simcoestone/modelmesh/metrics"
	"github.com/simcoestone/modelmesh/registry"
)

// Reason explains an eviction.
type Reason string

const (
	ReasonBudget   Reason = "budget"
	ReasonCapacity Reason = "capacity"
	ReasonIdle     Reason = "idle"
)

// Eviction is one advisory unload.
type Eviction struct {
	Model   string    `json:"model"`
	Reason  Reason    `json:"reason"`
	FreedMB int       `json:"freed_mb"`
	At      time.Time `json:"at"`
}

// ErrAlreadyStarted is returned by Start on a running monitor.
var ErrAlreadyStarted = errors.New("lifecycle monitor already started")

// lruCapacity bounds the underlying list. Budget and MaxLoaded are enforced
// by the monitor, so the list itself must never evict.
const lruCapacity = 1 << 16

// Options configures a Monitor.
type Options struct {
	MemoryBudgetMB int
	MaxLoaded      int
	IdleTimeout    time.Duration
	SweepInterval  time.Duration
	Clock          func() time.Time
	// OnEvict is called outside the monitor lock for every eviction.
	OnEvict func(Eviction)
	Logger  logging.Logger
	Metrics *metrics.Metrics
}

type entry struct {
	memoryMB int
	lastUsed time.Time
}

// Monitor tracks the loaded set. It is safe for concurrent use.
type Monitor struct {
	reg  *registry.Registry
	opts Options

	mu       sync.Mutex
	loaded   *simplelru.LRU[string, entry]
	inFlight map[string]int
	usedMB   int

	schedMu   sync.Mutex
	scheduler gocron.Scheduler
	stopWatch func() bool
}

// New creates a Monitor over reg.
func New(reg *registry.Registry, optFns ...func(o *Options)) *Monitor {
	opts := Options{
		MemoryBudgetMB: 8192,
		MaxLoaded:      3,
		IdleTimeout:    30 * time.Minute,
		SweepInterval:  60 * time.Second,
		Clock:          time.Now,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.MaxLoaded <= 0 {
		opts.MaxLoaded = 1
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	l, err := simplelru.NewLRU[string, entry](lruCapacity, nil)
	if err != nil {
		// Only returned for a non-positive size.
		panic(fmt.Sprintf("lifecycle: %v", err))
	}
	return &Monitor{
		reg:      reg,
		opts:     opts,
		loaded:   l,
		inFlight: make(map[string]int),
	}
}

// MarkUsed records a use of name. A model that is not loaded yet is admitted,
// evicting least-recently-used models that are not in flight until both the
// memory budget and MaxLoaded fit. When nothing more can be evicted the model
// is admitted over budget and a warning is logged.
func (m *Monitor) MarkUsed(name string) []Eviction {
	return m.admit(name, false)
}

// Use is MarkUsed and Acquire in one step: name is in flight before any
// eviction is chosen, so a concurrent admission cannot evict it between
// selection and dispatch. The caller must call release when done.
func (m *Monitor) Use(name string) (evicted []Eviction, release func()) {
	return m.admit(name, true), m.releaser(name)
}

func (m *Monitor) admit(name string, acquire bool) []Eviction {
	now := m.opts.Clock()
	m.reg.Touch(name, now)

	mb := 0
	if d, ok := m.reg.Get(name); ok {
		mb = d.MemoryMB
	}

	m.mu.Lock()
	if acquire {
		m.inFlight[name]++
	}
	if e, ok := m.loaded.Get(name); ok {
		e.lastUsed = now
		m.loaded.Add(name, e)
		m.mu.Unlock()
		return nil
	}

	evicted := m.makeRoom(name, mb, now)
	m.loaded.Add(name, entry{memoryMB: mb, lastUsed: now})
	m.usedMB += mb
	m.reg.SetLoaded(name, true)
	count, used := m.loaded.Len(), m.usedMB
	m.mu.Unlock()

	if used > m.opts.MemoryBudgetMB || count > m.opts.MaxLoaded {
		m.opts.Logger.Warn("loaded set over budget",
			"model", name, "used_mb", used, "budget_mb", m.opts.MemoryBudgetMB,
			"loaded", count, "max_loaded", m.opts.MaxLoaded)
	}
	m.opts.Logger.Debug("model admitted", "model", name, "memory_mb", mb, "used_mb", used)
	m.report(evicted, count, used)
	return evicted
}

// makeRoom evicts until incoming fits. Caller holds m.mu.
func (m *Monitor) makeRoom(incoming string, mb int, now time.Time) []Eviction {
	var out []Eviction
	for {
		var reason Reason
		switch {
		case m.usedMB+mb > m.opts.MemoryBudgetMB:
			reason = ReasonBudget
		case m.loaded.Len()+1 > m.opts.MaxLoaded:
			reason = ReasonCapacity
		default:
			return out
		}
		victim, ok := m.oldestEvictable(incoming)
		if !ok {
			return out
		}
		out = append(out, m.evict(victim, reason, now))
	}
}

// oldestEvictable returns the least recently used model that is neither
// incoming nor in flight. Caller holds m.mu.
func (m *Monitor) oldestEvictable(incoming string) (string, bool) {
	for _, name := range m.loaded.Keys() {
		if name != incoming && m.inFlight[name] == 0 {
			return name, true
		}
	}
	return "", false
}

// evict drops name from the loaded set. Caller holds m.mu.
func (m *Monitor) evict(name string, reason Reason, now time.Time) Eviction {
	e, _ := m.loaded.Peek(name)
	m.loaded.Remove(name)
	m.usedMB -= e.memoryMB
	m.reg.SetLoaded(name, false)
	return Eviction{Model: name, Reason: reason, FreedMB: e.memoryMB, At: now}
}

func (m *Monitor) report(evicted []Eviction, count, used int) {
	for _, ev := range evicted {
		m.opts.Logger.Info("model evicted", "model", ev.Model, "reason", string(ev.Reason), "freed_mb", ev.FreedMB)
		m.opts.Metrics.RecordEviction(string(ev.Reason))
		if m.opts.OnEvict != nil {
			m.opts.OnEvict(ev)
		}
	}
	m.opts.Metrics.SetLoaded(count, used)
}

// Acquire marks name as serving a request until the returned release func is
// called. In-flight models are never evicted. Release is idempotent.
func (m *Monitor) Acquire(name string) (release func()) {
	m.mu.Lock()
	m.inFlight[name]++
	m.mu.Unlock()
	return m.releaser(name)
}

func (m *Monitor) releaser(name string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			if m.inFlight[name]--; m.inFlight[name] <= 0 {
				delete(m.inFlight, name)
			}
			m.mu.Unlock()
		})
	}
}

// InFlight returns the number of outstanding Acquire calls for name.
func (m *Monitor) InFlight(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inFlight[name]
}

// Sweep evicts every model idle longer than IdleTimeout that is not in flight.
func (m *Monitor) Sweep() []Eviction {
	now := m.opts.Clock()

	m.mu.Lock()
	var out []Eviction
	for _, name := range m.loaded.Keys() {
		e, _ := m.loaded.Peek(name)
		if m.inFlight[name] > 0 || now.Sub(e.lastUsed) <= m.opts.IdleTimeout {
			continue
		}
		out = append(out, m.evict(name, ReasonIdle, now))
	}
	count, used := m.loaded.Len(), m.usedMB
	m.mu.Unlock()

	if len(out) > 0 {
		m.opts.Logger.Debug("idle sweep", "evicted", len(out), "loaded", count)
	}
	m.report(out, count, used)
	return out
}

// Preload admits names in order, as if each had just been used.
func (m *Monitor) Preload(names ...string) []Eviction {
	var out []Eviction
	for _, n := range names {
		if n == "" {
			continue
		}
		out = append(out, m.MarkUsed(n)...)
	}
	return out
}

// Loaded returns the loaded models from least to most recently used.
func (m *Monitor) Loaded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded.Keys()
}

// IsLoaded reports whether name is in the loaded set.
func (m *Monitor) IsLoaded(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded.Contains(name)
}

// UsedMB returns the memory accounted to loaded models.
func (m *Monitor) UsedMB() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usedMB
}

// Start schedules Sweep every SweepInterval until Stop is called or ctx is done.
func (m *Monitor) Start(ctx context.Context) error {
	m.schedMu.Lock()
	defer m.schedMu.Unlock()
	if m.scheduler != nil {
		return ErrAlreadyStarted
	}

	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(m.opts.SweepInterval),
		gocron.NewTask(func() { m.Sweep() }),
		gocron.WithName("lifecycle-idle-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("schedule idle sweep: %w", err)
	}
	s.Start()
	m.scheduler = s
	m.stopWatch = context.AfterFunc(ctx, func() { _ = m.Stop() })

	m.opts.Logger.Info("lifecycle monitor started",
		"sweep_interval", m.opts.SweepInterval, "idle_timeout", m.opts.IdleTimeout)
	return nil
}

// Stop cancels the scheduled sweep. It is safe to call more than once.
func (m *Monitor) Stop() error {
	m.schedMu.Lock()
	s := m.scheduler
	m.scheduler = nil
	if m.stopWatch != nil {
		m.stopWatch()
		m.stopWatch = nil
	}
	m.schedMu.Unlock()

	if s == nil {
		return nil
	}
	if err := s.Shutdown(); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	m.opts.Logger.Info("lifecycle monitor stopped")
	return nil
}

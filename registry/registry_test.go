package registry_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simcoestone/modelmesh/internal/testutil"
	"github.com/simcoestone/modelmesh/registry"
)

func TestNew_SeedsStaticCatalog(t *testing.T) {
	r := registry.New()

	assert.Equal(t, len(registry.StaticCatalog()), r.Len())
	assert.Equal(t, registry.DefaultModelName, r.Default().Name)

	tiers := map[registry.SpeedTier]bool{}
	for _, d := range r.List() {
		tiers[d.Speed] = true
		assert.Equal(t, registry.SourceStatic, d.Source)
		assert.NotEmpty(t, d.Family)
	}
	assert.Len(t, tiers, 3, "static catalog spans fast, medium and slow")
}

func TestGet_ReturnsCopy(t *testing.T) {
	r := registry.New()
	d, ok := r.Get("mistral-7b-instruct")
	require.True(t, ok)

	d.Capabilities[0] = "mutated"
	d.Loaded = true

	again, _ := r.Get("mistral-7b-instruct")
	assert.NotEqual(t, "mutated", again.Capabilities[0])
	assert.False(t, again.Loaded)
}

func TestDefault_EmptyRegistry(t *testing.T) {
	r := registry.New(func(o *registry.Options) { o.Catalog = []registry.Descriptor{} })

	assert.Equal(t, 0, r.Len())
	d := r.Default()
	assert.Equal(t, registry.FallbackDescriptor().Name, d.Name)
	assert.Equal(t, registry.SourceBuiltin, d.Source)
	assert.Equal(t, d.Name, r.Fastest().Name)
	assert.Equal(t, d.Name, r.BestQuality(1<<20).Name)
}

func TestDefault_FamilyThenAny(t *testing.T) {
	r := registry.New(func(o *registry.Options) {
		o.Catalog = []registry.Descriptor{
			testutil.NewDescriptor("qwen-7b").Build(),
			testutil.NewDescriptor("llama-3b").Build(),
		}
		o.DefaultModel = "llama-8b"
	})
	assert.Equal(t, "llama-3b", r.Default().Name)

	r.SetDefault("gone-1b")
	assert.Equal(t, "llama-3b", r.Default().Name, "first available by name")
}

func TestFastestAndBestQuality(t *testing.T) {
	r := testutil.NewTierRegistry()

	assert.Equal(t, "m-fast", r.Fastest().Name)
	assert.Equal(t, "m-slow", r.BestQuality(20000).Name)
	assert.Equal(t, "m-slow", r.BestQuality(0).Name)
	assert.Equal(t, "m-slow", r.BestQuality(1_000_000).Name, "largest context when none covers")
	assert.Equal(t, "m-slow", r.Largest().Name)

	static := registry.New()
	assert.Equal(t, "phi-3.5-mini-instruct", static.Fastest().Name)
	assert.Equal(t, "llama-3.1-70b-instruct", static.BestQuality(20000).Name)
}

func TestSetLoadedAndTouch(t *testing.T) {
	r := testutil.NewTierRegistry()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, r.SetLoaded("m-fast", true))
	assert.True(t, r.Touch("m-fast", now))
	assert.False(t, r.SetLoaded("nope", true))
	assert.False(t, r.Touch("nope", now))

	r.Touch("m-fast", now.Add(-time.Hour))
	d, _ := r.Get("m-fast")
	assert.True(t, d.Loaded)
	assert.Equal(t, now, d.LastUsedAt, "touch never moves last use backwards")
}

func TestDiscover_ExtendsAndPreservesState(t *testing.T) {
	lister := testutil.NewFakeLister("llama-3.2-3b-instruct", "qwen2.5-7b-instruct", "deepcoder-14b")
	r := registry.New(func(o *registry.Options) { o.Lister = lister })

	used := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.SetLoaded("llama-3.2-3b-instruct", true)
	r.Touch("llama-3.2-3b-instruct", used)

	res := r.Discover(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, registry.DiscoveryRemote, res.Source)
	assert.ElementsMatch(t, []string{"qwen2.5-7b-instruct", "deepcoder-14b"}, res.Added)
	assert.Equal(t, []string{"deepcoder-14b", "llama-3.2-3b-instruct", "qwen2.5-7b-instruct"}, res.Available)
	assert.Equal(t, res.Available, r.Names())

	kept, ok := r.Get("llama-3.2-3b-instruct")
	require.True(t, ok)
	assert.True(t, kept.Loaded)
	assert.Equal(t, used, kept.LastUsedAt)

	// Static entries not offered by the server remain known but unavailable.
	assert.True(t, r.Has("llama-3.1-70b-instruct"))
	assert.False(t, r.IsAvailable("llama-3.1-70b-instruct"))

	qwen, _ := r.Get("qwen2.5-7b-instruct")
	assert.Equal(t, registry.SourceTable, qwen.Source)
	assert.True(t, qwen.HasCapability("multilingual"))

	coder, _ := r.Get("deepcoder-14b")
	assert.Equal(t, registry.SourceHeuristic, coder.Source)
	assert.True(t, coder.HasCapability("coding"))
}

func TestDiscover_Idempotent(t *testing.T) {
	lister := testutil.NewFakeLister("mistral-7b-instruct", "phi-3-mini-4k", "gemma-2-9b")
	r := registry.New(func(o *registry.Options) { o.Lister = lister })

	first := r.Discover(context.Background())
	before := r.List()
	second := r.Discover(context.Background())
	after := r.List()

	require.NoError(t, first.Err)
	require.NoError(t, second.Err)
	assert.Empty(t, second.Added)
	assert.Equal(t, first.Available, second.Available)
	if diff := cmp.Diff(before, after, cmpopts.IgnoreFields(registry.Descriptor{}, "LastUsedAt")); diff != "" {
		t.Fatalf("descriptor set changed on repeat discovery (-before +after):\n%s", diff)
	}
}

func TestDiscover_FailureFallsBackToStatic(t *testing.T) {
	lister := testutil.NewFakeLister()
	lister.Fail(errors.New("connection refused"))
	log := &recordingLogger{}
	r := registry.New(func(o *registry.Options) {
		o.Lister = lister
		o.Logger = log
	})

	res := r.Discover(context.Background())
	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, registry.ErrDiscoveryUnavailable)
	assert.True(t, res.Degraded())
	assert.Equal(t, registry.DiscoveryStatic, res.Source)
	assert.Len(t, res.Available, len(registry.StaticCatalog()))

	r.Discover(context.Background())
	assert.Equal(t, 1, log.count("warn"), "one warning per degradation streak")

	lister.Set("llama-3.2-8b-instruct")
	ok := r.Discover(context.Background())
	require.NoError(t, ok.Err)
	assert.Equal(t, []string{"llama-3.2-8b-instruct"}, ok.Available)

	lister.Fail(errors.New("down again"))
	r.Discover(context.Background())
	assert.Equal(t, 2, log.count("warn"), "a new streak warns again")
}

func TestDiscover_EmptyListAndNoLister(t *testing.T) {
	r := registry.New(func(o *registry.Options) { o.Lister = testutil.NewFakeLister() })
	res := r.Discover(context.Background())
	assert.ErrorIs(t, res.Err, registry.ErrDiscoveryUnavailable)

	bare := registry.New()
	res = bare.Discover(context.Background())
	assert.ErrorIs(t, res.Err, registry.ErrDiscoveryUnavailable)
	assert.Equal(t, registry.DefaultModelName, bare.Default().Name)
}

func TestDiscover_Timeout(t *testing.T) {
	lister := testutil.NewFakeLister("slow-model")
	lister.Delay = time.Second
	r := registry.New(func(o *registry.Options) {
		o.Lister = lister
		o.DiscoveryTimeout = 20 * time.Millisecond
	})

	start := time.Now()
	res := r.Discover(context.Background())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.ErrorIs(t, res.Err, registry.ErrDiscoveryUnavailable)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestDiscover_ConcurrentCallsCollapse(t *testing.T) {
	lister := testutil.NewFakeLister("llama-3.2-3b-instruct")
	lister.Delay = 50 * time.Millisecond
	r := registry.New(func(o *registry.Options) { o.Lister = lister })

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := r.Discover(context.Background())
			assert.NoError(t, res.Err)
		}()
	}
	wg.Wait()
	assert.Less(t, lister.Calls(), 8)
}

func TestDiscover_CancelledCallerDoesNotDegradeOthers(t *testing.T) {
	lister := testutil.NewFakeLister("llama-3.2-3b-instruct", "qwen2.5-32b-instruct")
	lister.Delay = 200 * time.Millisecond
	r := registry.New(func(o *registry.Options) { o.Lister = lister })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	firstDone := make(chan registry.DiscoveryResult, 1)
	go func() { firstDone <- r.Discover(ctx) }()
	require.Eventually(t, func() bool { return lister.Calls() == 1 }, time.Second, time.Millisecond)

	secondDone := make(chan registry.DiscoveryResult, 1)
	go func() { secondDone <- r.Discover(context.Background()) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	first := <-firstDone
	assert.ErrorIs(t, first.Err, registry.ErrDiscoveryUnavailable)
	assert.ErrorIs(t, first.Err, context.Canceled)

	second := <-secondDone
	require.NoError(t, second.Err)
	assert.Equal(t, registry.DiscoveryRemote, second.Source)
	assert.Equal(t, []string{"llama-3.2-3b-instruct", "qwen2.5-32b-instruct"}, second.Available)
	assert.Equal(t, 1, lister.Calls())
	assert.True(t, r.IsAvailable("qwen2.5-32b-instruct"))
}

func TestStats(t *testing.T) {
	r := registry.New()
	r.SetLoaded("phi-3.5-mini-instruct", true)

	s := r.Stats()
	assert.Equal(t, 6, s.Total)
	assert.Equal(t, 6, s.Available)
	assert.Equal(t, []string{"phi-3.5-mini-instruct"}, s.Loaded)
	assert.ElementsMatch(t, []string{"llama-3.2-3b-instruct", "phi-3.5-mini-instruct"}, s.BySpeed[registry.SpeedFast])
	assert.Equal(t, []string{"llama-3.1-70b-instruct"}, s.BySpeed[registry.SpeedSlow])
	assert.Contains(t, s.ByCapability["coding"], "mistral-7b-instruct")
	assert.Equal(t, registry.DefaultModelName, s.Default)
}

type recordingLogger struct {
	mu     sync.Mutex
	levels []string
}

func (l *recordingLogger) add(level string) {
	l.mu.Lock()
	l.levels = append(l.levels, level)
	l.mu.Unlock()
}

func (l *recordingLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, lv := range l.levels {
		if lv == level {
			n++
		}
	}
	return n
}

func (l *recordingLogger) Debug(string, ...any) { l.add("debug") }
func (l *recordingLogger) Info(string, ...any)  { l.add("info") }
func (l *recordingLogger) Warn(string, ...any)  { l.add("warn") }
func (l *recordingLogger) Error(string, ...any) { l.add("error") }

package lifecycle_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/simcoestone/modelmesh/internal/testutil"
	"github.com/simcoestone/modelmesh/lifecycle"
	"github.com/simcoestone/modelmesh/registry"
)

var epoch = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func newMonitor(t *testing.T, clock *testutil.ManualClock, optFns ...func(o *lifecycle.Options)) (*lifecycle.Monitor, *registry.Registry) {
	t.Helper()
	reg := testutil.NewTierRegistry()
	fns := append([]func(o *lifecycle.Options){func(o *lifecycle.Options) {
		o.MemoryBudgetMB = 4608
		o.MaxLoaded = 2
		o.Clock = clock.Now
	}}, optFns...)
	return lifecycle.New(reg, fns...), reg
}

func TestMarkUsed_BudgetScenario(t *testing.T) {
	clock := testutil.NewManualClock(epoch)
	var evicted []lifecycle.Eviction
	m, reg := newMonitor(t, clock, func(o *lifecycle.Options) {
		o.OnEvict = func(ev lifecycle.Eviction) { evicted = append(evicted, ev) }
	})

	assert.Empty(t, m.MarkUsed("m-fast"))
	clock.Advance(time.Second)
	assert.Empty(t, m.MarkUsed("m-med"))
	assert.Equal(t, 4608, m.UsedMB())
	assert.Equal(t, []string{"m-fast", "m-med"}, m.Loaded())

	clock.Advance(time.Second)
	got := m.MarkUsed("m-slow")
	require.NotEmpty(t, got)
	assert.Equal(t, "m-fast", got[0].Model, "least recently used goes first")
	assert.Equal(t, lifecycle.ReasonBudget, got[0].Reason)
	assert.Equal(t, 512, got[0].FreedMB)
	assert.Equal(t, got, evicted)

	assert.True(t, m.IsLoaded("m-slow"))
	assert.False(t, m.IsLoaded("m-fast"))
	assert.Equal(t, []string{"m-slow"}, m.Loaded())
	assert.Equal(t, 20000, m.UsedMB(), "admitted over budget once nothing is left to evict")

	fast, _ := reg.Get("m-fast")
	slow, _ := reg.Get("m-slow")
	assert.False(t, fast.Loaded)
	assert.True(t, slow.Loaded)
}

func TestMarkUsed_LRUOrderFollowsUse(t *testing.T) {
	clock := testutil.NewManualClock(epoch)
	m, _ := newMonitor(t, clock, func(o *lifecycle.Options) { o.MemoryBudgetMB = 1 << 20 })

	m.MarkUsed("m-fast")
	m.MarkUsed("m-med")
	m.MarkUsed("m-fast") // m-med is now least recently used

	got := m.MarkUsed("m-slow")
	require.Len(t, got, 1)
	assert.Equal(t, "m-med", got[0].Model)
	assert.Equal(t, lifecycle.ReasonCapacity, got[0].Reason)
	assert.Equal(t, []string{"m-fast", "m-slow"}, m.Loaded())
}

func TestMarkUsed_InFlightIsNeverEvicted(t *testing.T) {
	clock := testutil.NewManualClock(epoch)
	m, _ := newMonitor(t, clock)

	m.MarkUsed("m-fast")
	m.MarkUsed("m-med")
	release := m.Acquire("m-fast")

	got := m.MarkUsed("m-slow")
	require.Len(t, got, 1)
	assert.Equal(t, "m-med", got[0].Model)
	assert.True(t, m.IsLoaded("m-fast"))
	assert.Equal(t, 1, m.InFlight("m-fast"))

	release()
	release()
	assert.Equal(t, 0, m.InFlight("m-fast"), "release is idempotent")
}

func TestUse_AdmitsAndHoldsInOneStep(t *testing.T) {
	clock := testutil.NewManualClock(epoch)
	m, _ := newMonitor(t, clock)

	got, release := m.Use("m-med")
	assert.Empty(t, got)
	assert.Equal(t, 1, m.InFlight("m-med"))

	clock.Advance(time.Second)
	got = m.MarkUsed("m-slow")
	assert.Empty(t, got, "the only other model is in flight")
	assert.True(t, m.IsLoaded("m-med"))
	assert.True(t, m.IsLoaded("m-slow"))

	release()
	release()
	assert.Equal(t, 0, m.InFlight("m-med"))

	clock.Advance(time.Second)
	got = m.MarkUsed("m-fast")
	require.Len(t, got, 2)
	assert.Equal(t, "m-med", got[0].Model, "evictable again once released")
	assert.Equal(t, "m-slow", got[1].Model)
	assert.Equal(t, []string{"m-fast"}, m.Loaded())
}

func TestMarkUsed_UnknownModelTakesNoMemory(t *testing.T) {
	m, _ := newMonitor(t, testutil.NewManualClock(epoch))
	assert.Empty(t, m.MarkUsed("external-model"))
	assert.True(t, m.IsLoaded("external-model"))
	assert.Equal(t, 0, m.UsedMB())
}

func TestSweep_EvictsIdle(t *testing.T) {
	clock := testutil.NewManualClock(epoch)
	m, _ := newMonitor(t, clock, func(o *lifecycle.Options) { o.IdleTimeout = 10 * time.Minute })

	m.MarkUsed("m-fast")
	clock.Advance(8 * time.Minute)
	m.MarkUsed("m-med")
	release := m.Acquire("m-fast")
	clock.Advance(5 * time.Minute)

	assert.Empty(t, m.Sweep(), "in-flight m-fast survives, m-med is fresh")

	release()
	got := m.Sweep()
	require.Len(t, got, 1)
	assert.Equal(t, "m-fast", got[0].Model)
	assert.Equal(t, lifecycle.ReasonIdle, got[0].Reason)
	assert.Equal(t, clock.Now(), got[0].At)

	clock.Advance(6 * time.Minute)
	got = m.Sweep()
	require.Len(t, got, 1)
	assert.Equal(t, "m-med", got[0].Model)
	assert.Empty(t, m.Loaded())
	assert.Equal(t, 0, m.UsedMB())
}

func TestPreload(t *testing.T) {
	m, _ := newMonitor(t, testutil.NewManualClock(epoch))
	m.Preload("m-fast", "", "m-med")
	assert.Equal(t, []string{"m-fast", "m-med"}, m.Loaded())
}

func TestMonitor_ConcurrentUse(t *testing.T) {
	m, _ := newMonitor(t, testutil.NewManualClock(epoch))
	names := []string{"m-fast", "m-med", "m-slow"}

	var wg sync.WaitGroup
	for i := range 30 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n := names[i%len(names)]
			release := m.Acquire(n)
			m.MarkUsed(n)
			release()
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, len(m.Loaded()), len(names))
	for _, n := range names {
		assert.Equal(t, 0, m.InFlight(n))
	}
}

func TestStartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	var (
		mu    sync.Mutex
		swept []lifecycle.Eviction
	)
	reg := testutil.NewTierRegistry()
	m := lifecycle.New(reg, func(o *lifecycle.Options) {
		o.SweepInterval = 10 * time.Millisecond
		o.IdleTimeout = time.Nanosecond
		o.OnEvict = func(ev lifecycle.Eviction) {
			mu.Lock()
			swept = append(swept, ev)
			mu.Unlock()
		}
	})
	m.MarkUsed("m-fast")

	require.NoError(t, m.Start(context.Background()))
	assert.ErrorIs(t, m.Start(context.Background()), lifecycle.ErrAlreadyStarted)

	assert.Eventually(t, func() bool { return !m.IsLoaded("m-fast") }, time.Second, 5*time.Millisecond)
	require.NoError(t, m.Stop())
	require.NoError(t, m.Stop())

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, swept)
	assert.Equal(t, lifecycle.ReasonIdle, swept[0].Reason)
}

func TestStart_StopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := lifecycle.New(testutil.NewTierRegistry(), func(o *lifecycle.Options) { o.SweepInterval = time.Hour })
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Start(ctx))
	cancel()

	assert.Eventually(t, func() bool {
		// Start succeeds again only once the cancelled run has been stopped.
		if err := m.Start(context.Background()); err != nil {
			return false
		}
		return m.Stop() == nil
	}, time.Second, 5*time.Millisecond)
}

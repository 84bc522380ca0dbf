package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/simcoestone/modelmesh/core"
)

// FakeLister is a scripted core.ModelLister. Set Err to simulate an
// unreachable server and Delay to simulate a slow one.
type FakeLister struct {
	mu    sync.Mutex
	IDs   []string
	Err   error
	Delay time.Duration

	calls atomic.Int32
}

// NewFakeLister returns a lister that serves ids.
func NewFakeLister(ids ...string) *FakeLister { return &FakeLister{IDs: ids} }

// Set replaces the served ids and clears the error.
func (f *FakeLister) Set(ids ...string) {
	f.mu.Lock()
	f.IDs, f.Err = ids, nil
	f.mu.Unlock()
}

// Fail makes subsequent calls return err.
func (f *FakeLister) Fail(err error) {
	f.mu.Lock()
	f.Err = err
	f.mu.Unlock()
}

// Calls returns how many times ListModels ran.
func (f *FakeLister) Calls() int { return int(f.calls.Load()) }

// ListModels implements core.ModelLister.
func (f *FakeLister) ListModels(ctx context.Context) ([]core.ModelInfo, error) {
	f.calls.Add(1)
	f.mu.Lock()
	ids, err, delay := append([]string(nil), f.IDs...), f.Err, f.Delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	out := make([]core.ModelInfo, len(ids))
	for i, id := range ids {
		out[i] = core.ModelInfo{ID: id, OwnedBy: "local"}
	}
	return out, nil
}

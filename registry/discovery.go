package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// DiscoverySource tells whether the catalog in use came from the server.
type DiscoverySource string

const (
	DiscoveryRemote DiscoverySource = "remote"
	DiscoveryStatic DiscoverySource = "static"
)

// DiscoveryResult describes one discovery round.
type DiscoveryResult struct {
	Source DiscoverySource `json:"source"`
	// Discovered is the id list the server returned, in server order.
	Discovered []string `json:"discovered,omitempty"`
	// Added lists descriptors created by this round.
	Added []string `json:"added,omitempty"`
	// Available is the sorted set of selectable names after the round.
	Available []string `json:"available"`
	// Err wraps ErrDiscoveryUnavailable when the static catalog is in use.
	Err error `json:"-"`
}

// Degraded reports whether the round fell back to the static catalog.
func (d DiscoveryResult) Degraded() bool { return d.Err != nil }

var errEmptyCatalog = errors.New("server returned no models")

// Discover refreshes the registry from the configured lister. Concurrent
// calls share a single ListModels round trip. Discover never returns an
// error; failures are reported through DiscoveryResult.Err.
//
// The shared round trip is bounded by DiscoveryTimeout only, never by a
// caller's context, so one caller giving up does not degrade the others. A
// caller whose ctx ends first gets the current state with Err set and the
// registry left untouched.
func (r *Registry) Discover(ctx context.Context) DiscoveryResult {
	shared := context.WithoutCancel(ctx)
	ch := r.flight.DoChan("discover", func() (any, error) {
		return r.discover(shared), nil
	})
	select {
	case res := <-ch:
		return res.Val.(DiscoveryResult)
	case <-ctx.Done():
		return r.current(fmt.Errorf("%w: %w", ErrDiscoveryUnavailable, ctx.Err()))
	}
}

// current reports the selectable set as it stands, without a round trip.
func (r *Registry) current(err error) DiscoveryResult {
	r.mu.RLock()
	source := DiscoveryRemote
	if r.degraded {
		source = DiscoveryStatic
	}
	available := make([]string, 0, len(r.available))
	for name := range r.available {
		available = append(available, name)
	}
	r.mu.RUnlock()
	slices.Sort(available)
	return DiscoveryResult{Source: source, Available: available, Err: err}
}

func (r *Registry) discover(ctx context.Context) DiscoveryResult {
	start := r.clock()
	if r.lister == nil {
		return r.degrade(fmt.Errorf("%w: no lister configured", ErrDiscoveryUnavailable))
	}

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	// The network call runs without holding the registry lock.
	infos, err := r.lister.ListModels(callCtx)
	if err == nil && len(infos) == 0 {
		err = errEmptyCatalog
	}
	if err != nil {
		return r.degrade(fmt.Errorf("%w: %w", ErrDiscoveryUnavailable, err))
	}

	ids := make([]string, 0, len(infos))
	seen := make(map[string]bool, len(infos))
	for _, m := range infos {
		id := strings.TrimSpace(m.ID)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return r.degrade(fmt.Errorf("%w: %w", ErrDiscoveryUnavailable, errEmptyCatalog))
	}

	inferred := make([]Descriptor, len(ids))
	for i, id := range ids {
		inferred[i] = InferDescriptor(id, r.table)
	}

	var added []string
	r.mu.Lock()
	for _, d := range inferred {
		if _, ok := r.models[d.Name]; !ok {
			r.models[d.Name] = &d
			added = append(added, d.Name)
		}
	}
	r.available = make(map[string]bool, len(ids))
	for _, id := range ids {
		r.available[id] = true
	}
	recovered := r.degraded
	r.degraded = false
	r.mu.Unlock()

	if recovered {
		r.logger.Info("model discovery recovered", "models", len(ids))
	}
	r.logger.Debug("model discovery completed",
		"source", DiscoveryRemote, "discovered", len(ids), "added", len(added),
		"duration", r.clock().Sub(start))
	r.metrics.RecordDiscovery(string(DiscoveryRemote))

	available := slices.Clone(ids)
	slices.Sort(available)
	return DiscoveryResult{
		Source:     DiscoveryRemote,
		Discovered: ids,
		Added:      added,
		Available:  available,
	}
}

// degrade merges the static catalog back in and makes it the available set.
// The warning is logged once per degradation streak.
func (r *Registry) degrade(err error) DiscoveryResult {
	var added []string
	r.mu.Lock()
	for _, s := range r.static {
		if _, ok := r.models[s.Name]; !ok {
			d := s.clone()
			r.models[d.Name] = &d
			added = append(added, d.Name)
		}
	}
	r.available = make(map[string]bool, len(r.static))
	for _, s := range r.static {
		r.available[s.Name] = true
	}
	first := !r.degraded
	r.degraded = true
	r.mu.Unlock()

	if first {
		r.logger.Warn("model discovery degraded to static catalog", "error", err)
	}
	r.metrics.RecordDiscovery(string(DiscoveryStatic))
	r.metrics.RecordFallback("discovery")

	return DiscoveryResult{
		Source:    DiscoveryStatic,
		Added:     added,
		Available: r.Names(),
		Err:       err,
	}
}

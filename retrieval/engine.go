// Package retrieval answers relevance queries against a mesh.Store.
//
// A node's relevance is a weighted lexical score: the trimmed query is
// matched case-insensitively against the node content, its tags, and its
// properties or signature. Entanglement neighbors of a context node get a
// flat boost. Nodes scoring below the floor are dropped; the rest are ranked
// by relevance, then temporal coherence.
package retrieval

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/simcoestone/modelmesh/logging"
	"github.com/simcoestone/modelmesh/mesh"
	"github.com/simcoestone/modelmesh/metrics"
)

const scoreEpsilon = 1e-9

// Options configures an Engine.
type Options struct {
	// Floor is the minimum relevance a result must reach.
	Floor float64
	// NeighborBoost is added for entanglement neighbors of Query.NodeID.
	NeighborBoost  float64
	ContentWeight  float64
	TagWeight      float64
	PropertyWeight float64
	// Limit caps results when Query.Limit is zero. Zero means unlimited.
	Limit int
	// CacheTTL keeps identical queries against an unchanged store. Zero
	// disables the cache.
	CacheTTL time.Duration
	Logger   logging.Logger
	Metrics  *metrics.Metrics
}

// Query is one relevance request.
type Query struct {
	Text string
	// NodeID optionally names a context node whose neighbors are boosted.
	NodeID string
	Limit  int
}

// Result is a ranked node.
type Result struct {
	Node      mesh.Node `json:"node"`
	Relevance float64   `json:"relevance"`
	Coherence float64   `json:"coherence"`
}

// Engine is safe for concurrent use.
type Engine struct {
	store *mesh.Store
	opts  Options
	cache *cache.Cache
}

// New creates an Engine over store.
func New(store *mesh.Store, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Floor:          0.7,
		NeighborBoost:  0.7,
		ContentWeight:  0.5,
		TagWeight:      0.3,
		PropertyWeight: 0.2,
		CacheTTL:       2 * time.Second,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	e := &Engine{store: store, opts: opts}
	if opts.CacheTTL > 0 {
		e.cache = cache.New(opts.CacheTTL, 2*opts.CacheTTL)
	}
	return e
}

// Score returns the lexical relevance of n for text, capped at 1. An empty
// query scores 0.
func (e *Engine) Score(text string, n mesh.Node) float64 {
	q := strings.ToLower(strings.TrimSpace(text))
	if q == "" {
		return 0
	}
	var score float64
	if strings.Contains(strings.ToLower(n.Payload.Content), q) {
		score += e.opts.ContentWeight
	}
	if containsAny(n.Payload.Tags, q) {
		score += e.opts.TagWeight
	}
	if containsAny(n.Payload.Properties, q) || strings.Contains(strings.ToLower(n.Payload.Signature), q) {
		score += e.opts.PropertyWeight
	}
	return min(score, 1)
}

// Query returns the nodes whose relevance reaches the floor, best first.
// When ctx is cancelled mid-scan the nodes scanned so far are ranked and
// returned. No hit yields an empty, non-nil slice.
func (e *Engine) Query(ctx context.Context, q Query) []Result {
	limit := q.Limit
	if limit <= 0 {
		limit = e.opts.Limit
	}

	// The cache keeps matches and relevance only. Coherence follows the
	// store clock, so ranking happens on every call.
	key := fmt.Sprintf("%s\x00%s\x00%d", strings.ToLower(strings.TrimSpace(q.Text)), q.NodeID, e.store.Version())
	var results []Result
	if e.cache != nil {
		if v, ok := e.cache.Get(key); ok {
			results = cloneResults(v.([]Result))
		}
	}
	if results == nil {
		var complete bool
		results, complete = e.scan(ctx, q)
		if !complete {
			e.opts.Logger.Debug("retrieval interrupted", "query", q.Text, "results", len(results), "error", ctx.Err())
		} else if e.cache != nil {
			e.cache.SetDefault(key, cloneResults(results))
		}
	}

	for i := range results {
		results[i].Coherence = e.store.Coherence(results[i].Node)
	}
	slices.SortFunc(results, func(a, b Result) int {
		if c := cmp.Compare(b.Relevance, a.Relevance); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Coherence, a.Coherence); c != 0 {
			return c
		}
		return cmp.Compare(a.Node.ID, b.Node.ID)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	e.opts.Metrics.ObserveRetrieval(len(results))
	return results
}

// scan scores every node against q and keeps those reaching the floor. It
// reports false when ctx ended before the scan completed.
func (e *Engine) scan(ctx context.Context, q Query) ([]Result, bool) {
	var boosted map[string]bool
	if q.NodeID != "" {
		nbrs := e.store.Neighbors(q.NodeID)
		boosted = make(map[string]bool, len(nbrs))
		for _, id := range nbrs {
			boosted[id] = true
		}
	}

	results := []Result{}
	for _, n := range e.store.Nodes() {
		if ctx.Err() != nil {
			return results, false
		}
		score := e.Score(q.Text, n)
		if boosted[n.ID] {
			score = min(score+e.opts.NeighborBoost, 1)
		}
		if score+scoreEpsilon < e.opts.Floor {
			continue
		}
		results = append(results, Result{Node: n, Relevance: score})
	}
	return results, true
}

func containsAny(values []string, q string) bool {
	for _, v := range values {
		if strings.Contains(strings.ToLower(v), q) {
			return true
		}
	}
	return false
}

func cloneResults(in []Result) []Result {
	out := make([]Result, len(in))
	for i, r := range in {
		r.Node = r.Node.Clone()
		out[i] = r
	}
	return out
}

package mesh

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/simcoestone/modelmesh/logging"
	"github.com/simcoestone/modelmesh/metrics"
)

// Options configures a Store.
type Options struct {
	Dimensions int
	// LinkThreshold is the similarity a pair must exceed to be entangled.
	LinkThreshold float64
	// HalfLife is the age at which coherence drops to 0.5.
	HalfLife time.Duration
	// MaxCandidates bounds how many of the most recent nodes a new node is
	// compared with. Zero compares with all nodes.
	MaxCandidates int
	Clock         func() time.Time
	Logger        logging.Logger
	Metrics       *metrics.Metrics
}

// Store is the process-local, append-only node store.
//
// Concurrency: protected by RWMutex. Similarity for a new node is computed
// while the write lock is held so the graph never observes a half-linked node.
type Store struct {
	opts Options

	mu      sync.RWMutex
	nodes   map[string]*Node
	order   []string                       // insertion order
	graph   map[string]map[string]struct{} // node id -> entangled ids
	edges   int
	version uint64
}

// NewStore creates an empty Store.
func NewStore(optFns ...func(o *Options)) *Store {
	opts := Options{
		Dimensions:    DefaultDimensions,
		LinkThreshold: 0.8,
		HalfLife:      time.Hour,
		Clock:         time.Now,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Dimensions <= 0 {
		opts.Dimensions = DefaultDimensions
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	return &Store{
		opts:  opts,
		nodes: make(map[string]*Node),
		graph: make(map[string]map[string]struct{}),
	}
}

// Insert stores a new node for agentID and links it to every existing node
// whose similarity exceeds the link threshold. It returns the node id.
func (s *Store) Insert(agentID string, p Payload) (string, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return "", ErrEmptyAgent
	}

	p = p.clone()
	p.Tags = normalizeTags(p.Tags)
	p.Properties = normalizeTags(p.Properties)
	if strings.TrimSpace(p.Signature) == "" {
		p.Signature = deriveSignature(p.Content)
	}

	now := s.opts.Clock()
	n := &Node{
		AgentID:   agentID,
		Payload:   p,
		Vector:    featureVector(p, s.opts.Dimensions),
		CreatedAt: now,
	}
	base := fmt.Sprintf("%s:%s:%d", agentID, fingerprint(p), now.UnixNano())

	s.mu.Lock()
	n.ID = s.uniqueID(base)
	linked := s.link(n)
	s.nodes[n.ID] = n
	s.order = append(s.order, n.ID)
	s.version++
	nodes, edges := len(s.nodes), s.edges
	s.mu.Unlock()

	s.opts.Metrics.SetGraph(nodes, edges)
	s.opts.Logger.Debug("node inserted", "node", n.ID, "agent", agentID, "entangled", linked)
	return n.ID, nil
}

// uniqueID appends -N to base until it is unused. Caller holds s.mu.
func (s *Store) uniqueID(base string) string {
	if _, taken := s.nodes[base]; !taken {
		return base
	}
	for i := 1; ; i++ {
		id := base + "-" + strconv.Itoa(i)
		if _, taken := s.nodes[id]; !taken {
			return id
		}
	}
}

// link adds symmetric edges between n and every similar candidate.
// Caller holds s.mu.
func (s *Store) link(n *Node) int {
	s.graph[n.ID] = make(map[string]struct{})
	candidates := s.order
	if k := s.opts.MaxCandidates; k > 0 && len(candidates) > k {
		candidates = candidates[len(candidates)-k:]
	}
	linked := 0
	for _, id := range candidates {
		other := s.nodes[id]
		if Similarity(*n, *other) <= s.opts.LinkThreshold {
			continue
		}
		s.graph[n.ID][id] = struct{}{}
		s.graph[id][n.ID] = struct{}{}
		s.edges++
		linked++
	}
	return linked
}

func fingerprint(p Payload) string {
	return fmt.Sprintf("%016x", xxh3.HashString(p.Content+"\x00"+p.Signature))[:12]
}

// Get returns a copy of the node.
func (s *Store) Get(id string) (Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return Node{}, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return n.Clone(), nil
}

// Nodes returns copies of all nodes in insertion order.
func (s *Store) Nodes() []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Node, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.nodes[id].Clone())
	}
	return out
}

// Neighbors returns the sorted ids entangled with id.
func (s *Store) Neighbors(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	adj := s.graph[id]
	out := make([]string, 0, len(adj))
	for other := range adj {
		out = append(out, other)
	}
	slices.Sort(out)
	return out
}

// Entangled reports whether a and b are linked.
func (s *Store) Entangled(a, b string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.graph[a][b]
	return ok
}

// Len returns the number of nodes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Edges returns the number of undirected entanglements.
func (s *Store) Edges() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.edges
}

// Version increases by one on every insert.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Coherence is exp(-ln2 · age / halfLife): 1 for a fresh node, 0.5 after one
// half-life.
func (s *Store) Coherence(n Node) float64 {
	return coherence(s.opts.Clock().Sub(n.CreatedAt), s.opts.HalfLife)
}

func coherence(age, halfLife time.Duration) float64 {
	if age <= 0 {
		return 1
	}
	if halfLife <= 0 {
		return 0
	}
	return math.Exp(-math.Ln2 * float64(age) / float64(halfLife))
}

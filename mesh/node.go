package mesh

import (
	"slices"
	"strings"
	"time"
)

// Payload is the content an agent distributes into the mesh.
type Payload struct {
	// Content is the artifact text, usually a model answer.
	Content string `json:"content"`
	// Signature is a short symbolic digest. Derived from Content when empty.
	Signature string `json:"signature,omitempty"`
	// Tags are provenance or concept labels.
	Tags []string `json:"tags,omitempty"`
	// Properties are free-form emergent properties.
	Properties []string `json:"properties,omitempty"`
}

func (p Payload) clone() Payload {
	p.Tags = slices.Clone(p.Tags)
	p.Properties = slices.Clone(p.Properties)
	return p
}

// Node is an immutable semantic artifact.
type Node struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	Payload   Payload   `json:"payload"`
	Vector    []float32 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a deep copy of n.
func (n Node) Clone() Node {
	n.Payload = n.Payload.clone()
	n.Vector = slices.Clone(n.Vector)
	return n
}

// signatureTokenLimit caps a derived signature.
const signatureTokenLimit = 16

// deriveSignature keeps the first distinct content tokens.
func deriveSignature(content string) string {
	toks := distinct(tokenize(content))
	if len(toks) > signatureTokenLimit {
		toks = toks[:signatureTokenLimit]
	}
	return strings.Join(toks, " ")
}

// normalizeTags lower-cases, trims, sorts and dedups tags.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func distinct(toks []string) []string {
	seen := make(map[string]struct{}, len(toks))
	out := toks[:0]
	for _, t := range toks {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

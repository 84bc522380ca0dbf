package mesh

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func payloadGen() *rapid.Generator[Payload] {
	word := rapid.SampledFrom([]string{"stone", "mortar", "brick", "lime", "quote", "plan", "code", "", "Stone"})
	return rapid.Custom(func(t *rapid.T) Payload {
		content := rapid.SliceOfN(word, 0, 8).Draw(t, "content")
		sig := rapid.SliceOfN(word, 0, 4).Draw(t, "signature")
		return Payload{
			Content:    strings.Join(content, " "),
			Signature:  strings.Join(sig, " "),
			Tags:       rapid.SliceOfN(word, 0, 4).Draw(t, "tags"),
			Properties: rapid.SliceOfN(word, 0, 3).Draw(t, "props"),
		}
	})
}

func TestSimilarity_BoundedAndSymmetric(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		pa := payloadGen().Draw(t, "a")
		pb := payloadGen().Draw(t, "b")
		a := Node{Payload: pa, Vector: featureVector(pa, 64)}
		b := Node{Payload: pb, Vector: featureVector(pb, 64)}

		ab, ba := Similarity(a, b), Similarity(b, a)
		if ab < 0 || ab > 1 {
			t.Fatalf("similarity out of bounds: %v", ab)
		}
		if ab != ba {
			t.Fatalf("similarity not symmetric: %v vs %v", ab, ba)
		}
	})
}

func TestStore_GraphSymmetryProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewStore(func(o *Options) {
			o.Dimensions = 32
			o.LinkThreshold = rapid.Float64Range(0, 1).Draw(t, "threshold")
		})
		payloads := rapid.SliceOfN(payloadGen(), 1, 12).Draw(t, "payloads")
		for _, p := range payloads {
			if _, err := s.Insert("agent", p); err != nil {
				t.Fatalf("insert: %v", err)
			}
		}
		for _, n := range s.Nodes() {
			for _, other := range s.Neighbors(n.ID) {
				if other == n.ID {
					t.Fatalf("self loop on %s", n.ID)
				}
				if !s.Entangled(other, n.ID) {
					t.Fatalf("edge %s -> %s has no reverse", n.ID, other)
				}
			}
		}
	})
}

func TestSimilarity_Signals(t *testing.T) {
	empty := Node{}
	assert.Equal(t, 1.0, Similarity(empty, empty), "empty inputs are identical on every signal")

	assert.Equal(t, 1.0, jaccard(nil, nil))
	assert.InDelta(t, 1.0/3, jaccard([]string{"a", "b"}, []string{"b", "c"}), 1e-12)
	assert.Equal(t, 0.5, overlap([]string{"a", "b"}, []string{"a"}))
	assert.Equal(t, 0.0, overlap([]string{"a"}, nil))

	v := featureVector(Payload{Content: "stone"}, 16)
	assert.Equal(t, 0.0, cosine(v, make([]float32, 16)))
	assert.Equal(t, 0.0, cosine(v, v[:8]), "mismatched widths")
	assert.InDelta(t, 1.0, cosine(v, v), 1e-6)
}

func TestFeatureVector_Deterministic(t *testing.T) {
	p := Payload{Content: "Natural stone veneer", Signature: "veneer", Tags: []string{"masonry"}}
	assert.Equal(t, featureVector(p, DefaultDimensions), featureVector(p, DefaultDimensions))
	assert.Equal(t, make([]float32, 8), featureVector(Payload{}, 8))
}

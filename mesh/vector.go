package mesh

import (
	"math"
	"strings"
	"unicode"

	"github.com/zeebo/xxh3"
)

// DefaultDimensions is the width of node feature vectors.
const DefaultDimensions = 384

// tokenize splits s into lower-case letter/digit runs.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// featureVector hashes every token of the payload into dims signed buckets
// and L2 normalises the result. The same payload always yields the same
// vector. A payload without tokens yields the zero vector.
func featureVector(p Payload, dims int) []float32 {
	v := make([]float32, dims)
	add := func(tok string, weight float32) {
		h := xxh3.HashString(tok)
		idx := h % uint64(dims)
		if h>>63 == 1 {
			weight = -weight
		}
		v[idx] += weight
	}
	for _, tok := range tokenize(p.Content) {
		add(tok, 1)
	}
	for _, tok := range tokenize(p.Signature) {
		add("sig:"+tok, 0.5)
	}
	for _, tag := range p.Tags {
		add("tag:"+tag, 0.5)
	}

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return v
}

// cosine returns the cosine similarity of a and b clamped to [0,1]. Two zero
// vectors are identical; one zero vector matches nothing.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	switch {
	case na == 0 && nb == 0:
		return 1
	case na == 0 || nb == 0:
		return 0
	}
	return clamp01(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

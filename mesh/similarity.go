package mesh

// Similarity is the mean of three signals, each in [0,1]:
// signature token Jaccard, tag overlap |A∩B|/max(|A|,|B|), and the clamped
// cosine of the feature vectors. For every signal two empty inputs count as
// identical.
func Similarity(a, b Node) float64 {
	sig := jaccard(distinct(tokenize(a.Payload.Signature)), distinct(tokenize(b.Payload.Signature)))
	tags := overlap(normalizeTags(a.Payload.Tags), normalizeTags(b.Payload.Tags))
	vec := cosine(a.Vector, b.Vector)
	return clamp01((sig + tags + vec) / 3)
}

// jaccard expects deduplicated inputs.
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := intersection(a, b)
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// overlap expects deduplicated inputs.
func overlap(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	return float64(intersection(a, b)) / float64(max(len(a), len(b)))
}

func intersection(a, b []string) int {
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	n := 0
	for _, s := range b {
		if _, ok := set[s]; ok {
			n++
		}
	}
	return n
}

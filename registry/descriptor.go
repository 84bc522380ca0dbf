package registry

import (
	"slices"
	"strings"
	"time"
)

// SpeedTier is the coarse latency class of a model.
type SpeedTier string

const (
	SpeedFast   SpeedTier = "fast"
	SpeedMedium SpeedTier = "medium"
	SpeedSlow   SpeedTier = "slow"
)

// rank orders tiers from fastest (0) to slowest.
func (s SpeedTier) rank() int {
	switch s {
	case SpeedFast:
		return 0
	case SpeedMedium:
		return 1
	default:
		return 2
	}
}

// ParseSpeedTier maps a tier name to a SpeedTier; unknown names yield SpeedMedium.
func ParseSpeedTier(s string) SpeedTier {
	switch SpeedTier(strings.ToLower(strings.TrimSpace(s))) {
	case SpeedFast:
		return SpeedFast
	case SpeedSlow:
		return SpeedSlow
	default:
		return SpeedMedium
	}
}

// Source records where a descriptor's attributes came from.
type Source string

const (
	SourceStatic    Source = "static"
	SourceTable     Source = "table"
	SourceHeuristic Source = "heuristic"
	SourceBuiltin   Source = "builtin"
)

// Descriptor is the static metadata of a selectable model plus its load
// bookkeeping. Quality and SpeedScore are unitless 0-100 scores used for
// relative ranking only.
type Descriptor struct {
	Name          string    `json:"name" yaml:"name"`
	Family        string    `json:"family" yaml:"family"`
	ContextLength int       `json:"context_length" yaml:"context_length"`
	Speed         SpeedTier `json:"speed" yaml:"speed"`
	Capabilities  []string  `json:"capabilities" yaml:"capabilities"`
	Specialties   []string  `json:"specialties" yaml:"specialties"`
	MemoryMB      int       `json:"memory_mb" yaml:"memory_mb"`
	Quality       int       `json:"quality" yaml:"quality"`
	SpeedScore    int       `json:"speed_score" yaml:"speed_score"`
	Loaded        bool      `json:"loaded" yaml:"-"`
	LastUsedAt    time.Time `json:"last_used_at" yaml:"-"`
	Source        Source    `json:"source" yaml:"-"`
}

// HasCapability reports whether c is among the descriptor's capabilities.
func (d Descriptor) HasCapability(c string) bool {
	_, ok := slices.BinarySearch(d.Capabilities, c)
	return ok
}

// HasSpecialty reports whether s is among the descriptor's specialties.
func (d Descriptor) HasSpecialty(s string) bool {
	_, ok := slices.BinarySearch(d.Specialties, s)
	return ok
}

// Covers reports whether the descriptor's context window fits tokens.
func (d Descriptor) Covers(tokens int) bool {
	return d.ContextLength >= tokens
}

// clone returns a deep copy safe to hand to callers.
func (d Descriptor) clone() Descriptor {
	d.Capabilities = slices.Clone(d.Capabilities)
	d.Specialties = slices.Clone(d.Specialties)
	return d
}

// normalize fills derived fields and canonicalises tag sets.
func (d Descriptor) normalize() Descriptor {
	if d.Family == "" {
		d.Family = Family(d.Name)
	}
	if d.Speed == "" {
		d.Speed = SpeedMedium
	}
	d.Capabilities = normalizeSet(d.Capabilities)
	d.Specialties = normalizeSet(d.Specialties)
	d.Quality = clampScore(d.Quality)
	d.SpeedScore = clampScore(d.SpeedScore)
	return d
}

// Family returns the model family token: the first hyphen-delimited segment
// of the name, lower-cased ("llama-3.2-3b-instruct" → "llama").
func Family(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if i := strings.IndexByte(name, '-'); i >= 0 {
		return name[:i]
	}
	return name
}

func normalizeSet(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func clampScore(v int) int {
	return min(max(v, 0), 100)
}

// faster reports whether a ranks ahead of b for latency sensitive work.
func faster(a, b Descriptor) bool {
	if a.Speed.rank() != b.Speed.rank() {
		return a.Speed.rank() < b.Speed.rank()
	}
	if a.SpeedScore != b.SpeedScore {
		return a.SpeedScore > b.SpeedScore
	}
	if a.MemoryMB != b.MemoryMB {
		return a.MemoryMB < b.MemoryMB
	}
	return a.Name < b.Name
}

// better reports whether a ranks ahead of b for quality sensitive work.
func better(a, b Descriptor) bool {
	if a.Quality != b.Quality {
		return a.Quality > b.Quality
	}
	if a.ContextLength != b.ContextLength {
		return a.ContextLength > b.ContextLength
	}
	return a.Name < b.Name
}

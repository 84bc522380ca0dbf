package registry

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	sizeToken    = regexp.MustCompile(`^(\d+(?:\.\d+)?)b$`)
	contextToken = regexp.MustCompile(`^(\d+)k$`)
)

// nameTokens splits a model name into lower-case tokens on the separators
// used by local model servers ("llama3:8b", "org/Model-7B-Instruct").
func nameTokens(name string) []string {
	return strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		switch r {
		case '-', '_', ':', '/', ' ':
			return true
		}
		return false
	})
}

// parameterSize returns the size in billions of parameters encoded in the
// name, or 0 when no size token is present.
func parameterSize(tokens []string) float64 {
	for _, tok := range tokens {
		if m := sizeToken.FindStringSubmatch(tok); m != nil {
			v, err := strconv.ParseFloat(m[1], 64)
			if err == nil {
				return v
			}
		}
	}
	return 0
}

func contextHint(tokens []string) int {
	for _, tok := range tokens {
		if m := contextToken.FindStringSubmatch(tok); m != nil {
			v, err := strconv.Atoi(m[1])
			if err == nil && v > 0 {
				return v * 1024
			}
		}
	}
	return 0
}

type sizeBand struct {
	upTo       float64
	context    int
	quality    int
	speedScore int
}

// Ordered by size. Memory is derived from the size itself.
var sizeBands = []sizeBand{
	{upTo: 1.5, context: 8192, quality: 60, speedScore: 90},
	{upTo: 4, context: 8192, quality: 70, speedScore: 80},
	{upTo: 7.5, context: 8192, quality: 80, speedScore: 60},
	{upTo: 9, context: 16384, quality: 85, speedScore: 50},
	{upTo: 14, context: 16384, quality: 88, speedScore: 40},
	{upTo: 40, context: 32768, quality: 92, speedScore: 30},
	{upTo: 1e9, context: 32768, quality: 95, speedScore: 20},
}

// Heuristic infers a descriptor from the model name alone.
func Heuristic(name string) Descriptor {
	lower := strings.ToLower(name)
	tokens := nameTokens(name)
	size := parameterSize(tokens)
	mini := strings.Contains(lower, "mini")

	d := Descriptor{
		Name:          name,
		Family:        Family(name),
		ContextLength: 4096,
		Speed:         SpeedMedium,
		Capabilities:  []string{"chat", "instruct"},
		MemoryMB:      4096,
		Quality:       50,
		SpeedScore:    50,
		Source:        SourceHeuristic,
	}

	if size > 0 {
		for _, b := range sizeBands {
			if size <= b.upTo {
				d.ContextLength, d.Quality, d.SpeedScore = b.context, b.quality, b.speedScore
				break
			}
		}
		d.MemoryMB = int(size * 1024)
		switch {
		case size <= 4:
			d.Speed = SpeedFast
		case size >= 32:
			d.Speed = SpeedSlow
		}
	}
	if mini {
		d.Speed = SpeedFast
		d.SpeedScore = max(d.SpeedScore, 85)
		if size == 0 {
			d.MemoryMB = 1024
		}
	}
	if hint := contextHint(tokens); hint > 0 {
		d.ContextLength = hint
	}

	var specialties []string
	if strings.Contains(lower, "code") {
		d.Capabilities = append(d.Capabilities, "coding")
		specialties = append(specialties, "code_generation")
	}
	if strings.Contains(lower, "instruct") {
		specialties = append(specialties, "instruction_following")
	}
	if strings.Contains(lower, "chat") {
		specialties = append(specialties, "conversation")
	}
	if strings.Contains(lower, "reason") {
		d.Capabilities = append(d.Capabilities, "reasoning")
		specialties = append(specialties, "complex_reasoning")
	}
	if strings.Contains(lower, "math") {
		d.Capabilities = append(d.Capabilities, "mathematics")
	}
	if strings.Contains(lower, "qwen") {
		d.Capabilities = append(d.Capabilities, "multilingual")
	}
	if mini || d.Speed == SpeedFast {
		specialties = append(specialties, "speed", "emergency")
	}
	if size >= 32 {
		d.Capabilities = append(d.Capabilities, "analysis", "reasoning")
		specialties = append(specialties, "strategic_planning")
	}
	if len(specialties) == 0 {
		specialties = append(specialties, "general")
	}
	d.Specialties = specialties
	return d.normalize()
}

// InferDescriptor builds a descriptor for a discovered model id. Table
// attributes win; heuristics fill whatever the table leaves unset and are the
// only source when the table has no entry for the family.
func InferDescriptor(name string, table *CapabilityTable) Descriptor {
	base := Heuristic(name)
	td, ok := table.Lookup(name)
	if !ok {
		return base
	}
	if td.ContextLength == 0 {
		td.ContextLength = base.ContextLength
	}
	if td.Speed == "" {
		td.Speed = base.Speed
	}
	if td.MemoryMB == 0 {
		td.MemoryMB = base.MemoryMB
	}
	if td.Quality == 0 {
		td.Quality = base.Quality
	}
	if td.SpeedScore == 0 {
		td.SpeedScore = base.SpeedScore
	}
	if len(td.Capabilities) == 0 {
		td.Capabilities = base.Capabilities
	}
	if len(td.Specialties) == 0 {
		td.Specialties = base.Specialties
	}
	td.Source = SourceTable
	return td.normalize()
}

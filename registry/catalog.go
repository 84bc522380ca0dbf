package registry

// DefaultModelName is the designated default descriptor of the static catalog.
const DefaultModelName = "llama-3.2-8b-instruct"

// StaticCatalog returns the built-in catalog used when no remote server can be
// reached. It covers the fast, medium and slow tiers.
func StaticCatalog() []Descriptor {
	return []Descriptor{
		{
			Name: "llama-3.2-3b-instruct", ContextLength: 8192, Speed: SpeedFast,
			Capabilities: []string{"chat", "instruct", "reasoning"},
			Specialties:  []string{"quick_responses", "coordination", "emergency"},
			MemoryMB:     2048, Quality: 75, SpeedScore: 80,
		},
		{
			Name: "phi-3.5-mini-instruct", ContextLength: 4096, Speed: SpeedFast,
			Capabilities: []string{"chat", "instruct"},
			Specialties:  []string{"speed", "emergency", "coordination", "status_checks"},
			MemoryMB:     1024, Quality: 70, SpeedScore: 90,
		},
		{
			Name: "llama-3.2-8b-instruct", ContextLength: 16384, Speed: SpeedMedium,
			Capabilities: []string{"chat", "instruct", "reasoning", "analysis"},
			Specialties:  []string{"business_planning", "code_generation", "research"},
			MemoryMB:     5120, Quality: 85, SpeedScore: 50,
		},
		{
			Name: "mistral-7b-instruct", ContextLength: 8192, Speed: SpeedMedium,
			Capabilities: []string{"chat", "instruct", "coding"},
			Specialties:  []string{"code_generation", "technical_writing", "debugging"},
			MemoryMB:     4096, Quality: 80, SpeedScore: 60,
		},
		{
			Name: "qwen2.5-32b-instruct", ContextLength: 32768, Speed: SpeedMedium,
			Capabilities: []string{"chat", "instruct", "reasoning", "multilingual"},
			Specialties:  []string{"analysis", "research", "problem_solving", "technical", "business_planning"},
			MemoryMB:     20480, Quality: 90, SpeedScore: 30,
		},
		{
			Name: "llama-3.1-70b-instruct", ContextLength: 32768, Speed: SpeedSlow,
			Capabilities: []string{"chat", "instruct", "reasoning", "analysis", "creative"},
			Specialties:  []string{"complex_analysis", "strategic_planning", "research", "writing"},
			MemoryMB:     40960, Quality: 95, SpeedScore: 20,
		},
	}
}

// FallbackDescriptor is returned when the registry holds nothing usable.
// It is never stored in a registry.
func FallbackDescriptor() Descriptor {
	d := StaticCatalog()[2]
	d.Source = SourceBuiltin
	return d.normalize()
}

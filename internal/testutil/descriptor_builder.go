package testutil

import (
	"github.com/simcoestone/modelmesh/registry"
)

// DescriptorBuilder provides a fluent helper for constructing descriptors in tests.
// Example:
//
//	d := NewDescriptor("m-fast").Fast().Context(8192).Memory(512).Build()
//
// Chain only what you need; unset fields get medium tier, 8192 tokens,
// 1024 MB, quality 50 and speed score 50.
type DescriptorBuilder struct {
	d registry.Descriptor
}

// NewDescriptor creates a builder for a descriptor named name.
func NewDescriptor(name string) *DescriptorBuilder {
	return &DescriptorBuilder{d: registry.Descriptor{
		Name:          name,
		ContextLength: 8192,
		Speed:         registry.SpeedMedium,
		Capabilities:  []string{"chat"},
		MemoryMB:      1024,
		Quality:       50,
		SpeedScore:    50,
	}}
}

// Fast puts the descriptor in the fast tier (chainable).
func (b *DescriptorBuilder) Fast() *DescriptorBuilder { b.d.Speed = registry.SpeedFast; return b }

// Slow puts the descriptor in the slow tier (chainable).
func (b *DescriptorBuilder) Slow() *DescriptorBuilder { b.d.Speed = registry.SpeedSlow; return b }

// Context sets the context window in tokens (chainable).
func (b *DescriptorBuilder) Context(n int) *DescriptorBuilder { b.d.ContextLength = n; return b }

// Memory sets the resident footprint in MB (chainable).
func (b *DescriptorBuilder) Memory(mb int) *DescriptorBuilder { b.d.MemoryMB = mb; return b }

// Quality sets the quality score (chainable).
func (b *DescriptorBuilder) Quality(q int) *DescriptorBuilder { b.d.Quality = q; return b }

// SpeedScore sets the speed score (chainable).
func (b *DescriptorBuilder) SpeedScore(s int) *DescriptorBuilder { b.d.SpeedScore = s; return b }

// Capabilities replaces the capability set (chainable).
func (b *DescriptorBuilder) Capabilities(c ...string) *DescriptorBuilder {
	b.d.Capabilities = c
	return b
}

// Build returns the descriptor.
func (b *DescriptorBuilder) Build() registry.Descriptor { return b.d }

// TierCatalog returns the three-model catalog used by budget and routing
// scenarios: m-fast (8k ctx, 512 MB), m-med (16k ctx, 4096 MB) and
// m-slow (32k ctx, 20000 MB).
func TierCatalog() []registry.Descriptor {
	return []registry.Descriptor{
		NewDescriptor("m-fast").Fast().Context(8192).Memory(512).Quality(70).SpeedScore(90).Build(),
		NewDescriptor("m-med").Context(16384).Memory(4096).Quality(80).SpeedScore(50).Build(),
		NewDescriptor("m-slow").Slow().Context(32768).Memory(20000).Quality(95).SpeedScore(20).Build(),
	}
}

// NewTierRegistry returns a registry seeded with TierCatalog and m-med as default.
func NewTierRegistry(optFns ...func(o *registry.Options)) *registry.Registry {
	fns := append([]func(o *registry.Options){func(o *registry.Options) {
		o.Catalog = TierCatalog()
		o.DefaultModel = "m-med"
	}}, optFns...)
	return registry.New(fns...)
}

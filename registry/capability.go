package registry

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// CapabilityTableVersion is the table schema version this package reads.
const CapabilityTableVersion = 1

//go:embed capabilities.yaml
var builtinTable []byte

// Profile is a partial descriptor; zero fields inherit from the layer below.
type Profile struct {
	ContextLength int      `yaml:"context_length"`
	Speed         string   `yaml:"speed"`
	Capabilities  []string `yaml:"capabilities"`
	Specialties   []string `yaml:"specialties"`
	MemoryMB      int      `yaml:"memory_mb"`
	Quality       int      `yaml:"quality"`
	SpeedScore    int      `yaml:"speed_score"`
}

// FamilyEntry is one family row of a CapabilityTable.
type FamilyEntry struct {
	Family  string             `yaml:"family"`
	Profile `yaml:",inline"`
	Sizes   map[string]Profile `yaml:"sizes"`
}

// CapabilityTable maps model families to descriptor attributes.
type CapabilityTable struct {
	Version  int           `yaml:"version"`
	Families []FamilyEntry `yaml:"families"`
}

// LoadCapabilityTable decodes a YAML capability table.
func LoadCapabilityTable(r io.Reader) (*CapabilityTable, error) {
	var t CapabilityTable
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("decode capability table: %w", err)
	}
	if t.Version != CapabilityTableVersion {
		return nil, fmt.Errorf("unsupported capability table version %d", t.Version)
	}
	for i := range t.Families {
		f := &t.Families[i]
		f.Family = strings.ToLower(strings.TrimSpace(f.Family))
		if f.Family == "" {
			return nil, fmt.Errorf("capability table entry %d: empty family", i)
		}
		if len(f.Sizes) > 0 {
			sizes := make(map[string]Profile, len(f.Sizes))
			for k, v := range f.Sizes {
				sizes[strings.ToLower(k)] = v
			}
			f.Sizes = sizes
		}
	}
	return &t, nil
}

// LoadCapabilityTableFile reads a capability table from path.
func LoadCapabilityTableFile(path string) (*CapabilityTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capability table: %w", err)
	}
	defer f.Close()
	return LoadCapabilityTable(f)
}

var (
	defaultTableOnce sync.Once
	defaultTable     *CapabilityTable
)

// DefaultCapabilityTable returns the table compiled into the binary.
func DefaultCapabilityTable() *CapabilityTable {
	defaultTableOnce.Do(func() {
		t, err := LoadCapabilityTable(strings.NewReader(string(builtinTable)))
		if err != nil {
			panic(fmt.Sprintf("registry: built-in capability table: %v", err))
		}
		defaultTable = t
	})
	return defaultTable
}

// entry returns the family row matching name: an exact family match, or else
// the longest family that prefixes the name's family token.
func (t *CapabilityTable) entry(name string) (FamilyEntry, bool) {
	if t == nil {
		return FamilyEntry{}, false
	}
	fam := Family(name)
	var (
		best  FamilyEntry
		found bool
	)
	for _, f := range t.Families {
		if f.Family == fam {
			return f, true
		}
		if strings.HasPrefix(fam, f.Family) && len(f.Family) > len(best.Family) {
			best, found = f, true
		}
	}
	return best, found
}

// Lookup resolves name against the table. The returned descriptor only has
// the fields the table defines.
func (t *CapabilityTable) Lookup(name string) (Descriptor, bool) {
	f, ok := t.entry(name)
	if !ok {
		return Descriptor{}, false
	}
	d := Descriptor{Name: name, Family: Family(name)}
	d = f.Profile.apply(d)
	for _, tok := range nameTokens(name) {
		if p, ok := f.Sizes[tok]; ok {
			d = p.apply(d)
			break
		}
	}
	return d, true
}

// apply overlays the non-zero fields of p on d. Tag sets are merged.
func (p Profile) apply(d Descriptor) Descriptor {
	if p.ContextLength > 0 {
		d.ContextLength = p.ContextLength
	}
	if p.Speed != "" {
		d.Speed = ParseSpeedTier(p.Speed)
	}
	if p.MemoryMB > 0 {
		d.MemoryMB = p.MemoryMB
	}
	if p.Quality > 0 {
		d.Quality = p.Quality
	}
	if p.SpeedScore > 0 {
		d.SpeedScore = p.SpeedScore
	}
	d.Capabilities = normalizeSet(append(d.Capabilities, p.Capabilities...))
	d.Specialties = normalizeSet(append(d.Specialties, p.Specialties...))
	return d
}

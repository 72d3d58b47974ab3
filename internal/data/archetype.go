package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/worldsim/server/internal/world"
)

// ArchetypeEntry defines one entity archetype: its local bounding box and
// solidity classification.
type ArchetypeEntry struct {
	Name  string     `yaml:"name"`
	Solid string     `yaml:"solid"` // none, trigger, bbox, slidebox, bsp
	Mins  [3]float64 `yaml:"mins"`
	Maxs  [3]float64 `yaml:"maxs"`
	Note  string     `yaml:"note"`
}

// SolidKind maps the YAML solid string to the world enum.
func (e *ArchetypeEntry) SolidKind() (world.SolidKind, error) {
	switch e.Solid {
	case "none", "":
		return world.SolidNone, nil
	case "trigger":
		return world.SolidTrigger, nil
	case "bbox":
		return world.SolidBBox, nil
	case "slidebox":
		return world.SolidSlideBox, nil
	case "bsp":
		return world.SolidBSP, nil
	}
	return world.SolidNone, fmt.Errorf("archetype %s: unknown solid kind %q", e.Name, e.Solid)
}

// ArchetypeTable provides archetype lookup by name.
type ArchetypeTable struct {
	archetypes map[string]*ArchetypeEntry
}

// LoadArchetypeTable loads archetype_list.yaml.
func LoadArchetypeTable(path string) (*ArchetypeTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read archetype list: %w", err)
	}
	var entries []ArchetypeEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse archetype list: %w", err)
	}
	t := &ArchetypeTable{
		archetypes: make(map[string]*ArchetypeEntry, len(entries)),
	}
	for i := range entries {
		e := &entries[i]
		if _, err := e.SolidKind(); err != nil {
			return nil, err
		}
		t.archetypes[e.Name] = e
	}
	return t, nil
}

// Get returns the archetype with the given name, or nil if none.
func (t *ArchetypeTable) Get(name string) *ArchetypeEntry {
	return t.archetypes[name]
}

// Count returns the total number of archetypes loaded.
func (t *ArchetypeTable) Count() int {
	return len(t.archetypes)
}

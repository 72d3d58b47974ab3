package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SpawnEntry places one entity of a given archetype in a fresh world.
type SpawnEntry struct {
	Archetype string     `yaml:"archetype"`
	Origin    [3]float64 `yaml:"origin"`
	Velocity  [3]float64 `yaml:"velocity"`
	Note      string     `yaml:"note"`
}

// SpawnTable is the ordered list of initial spawns.
type SpawnTable struct {
	spawns []SpawnEntry
}

// LoadSpawnTable loads spawn_list.yaml and checks every entry against the
// archetype table.
func LoadSpawnTable(path string, archetypes *ArchetypeTable) (*SpawnTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spawn list: %w", err)
	}
	var entries []SpawnEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse spawn list: %w", err)
	}
	for i := range entries {
		if archetypes.Get(entries[i].Archetype) == nil {
			return nil, fmt.Errorf("spawn %d: unknown archetype %q", i, entries[i].Archetype)
		}
	}
	return &SpawnTable{spawns: entries}, nil
}

// All returns the spawn entries in file order.
func (t *SpawnTable) All() []SpawnEntry {
	return t.spawns
}

// Count returns the total number of spawns loaded.
func (t *SpawnTable) Count() int {
	return len(t.spawns)
}

package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RosterEntry seeds one bot at boot. Needs start full unless overridden.
type RosterEntry struct {
	Name        string  `yaml:"name"`
	Personality string  `yaml:"personality"`
	X           float64 `yaml:"x"`
	Z           float64 `yaml:"z"`
	Water       float64 `yaml:"water"`
	Food        float64 `yaml:"food"`
	Sleep       float64 `yaml:"sleep"`
	Energy      float64 `yaml:"energy"`
}

type rosterFile struct {
	Bots []RosterEntry `yaml:"bots"`
}

// LoadRoster loads the boot roster from a YAML file.
func LoadRoster(path string) ([]RosterEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bot_roster: %w", err)
	}
	var f rosterFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse bot_roster: %w", err)
	}
	for i := range f.Bots {
		b := &f.Bots[i]
		if b.Name == "" {
			return nil, fmt.Errorf("bot_roster entry %d: missing name", i)
		}
		if b.Water == 0 {
			b.Water = 100
		}
		if b.Food == 0 {
			b.Food = 100
		}
		if b.Sleep == 0 {
			b.Sleep = 100
		}
		if b.Energy == 0 {
			b.Energy = 100
		}
	}
	return f.Bots, nil
}

package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StructureEntry defines where and what kind of structure to place at boot.
type StructureEntry struct {
	Kind     string  `yaml:"kind"` // water, food, shelter, social
	Name     string  `yaml:"name"`
	X        float64 `yaml:"x"`
	Z        float64 `yaml:"z"`
	Radius   float64 `yaml:"radius"`
	Capacity int     `yaml:"capacity"` // 0 = unlimited
	Blocking bool    `yaml:"blocking"`
}

type structureListFile struct {
	Structures []StructureEntry `yaml:"structures"`
}

// LoadStructureList loads structure placements from a YAML file.
func LoadStructureList(path string) ([]StructureEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read structure_list: %w", err)
	}
	var f structureListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse structure_list: %w", err)
	}
	return f.Structures, nil
}

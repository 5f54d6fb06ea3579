package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PersonalityTemplate defines how a personality biases behavior. Bias values
// are multipliers around 1.0 fed into the tuning scripts.
type PersonalityTemplate struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	SocialBias  float64 `yaml:"social_bias"`  // scales urge to socialize
	BuildBias   float64 `yaml:"build_bias"`   // scales urge to build
	HeroicBias  float64 `yaml:"heroic_bias"`  // scales willingness to help
	DecayBias   float64 `yaml:"decay_bias"`   // scales need decay rates
	Chattiness  float64 `yaml:"chattiness"`   // scales post/comment frequency
	FleeBias    float64 `yaml:"flee_bias"`    // scales flight response
}

type personalityListFile struct {
	Personalities []PersonalityTemplate `yaml:"personalities"`
}

// PersonalityTable holds all personality templates indexed by name.
type PersonalityTable struct {
	templates map[string]*PersonalityTemplate
}

// LoadPersonalityTable loads personality templates from a YAML file.
func LoadPersonalityTable(path string) (*PersonalityTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read personality_list: %w", err)
	}
	var f personalityListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse personality_list: %w", err)
	}
	t := &PersonalityTable{templates: make(map[string]*PersonalityTemplate, len(f.Personalities))}
	for i := range f.Personalities {
		p := &f.Personalities[i]
		t.templates[p.Name] = p
	}
	return t, nil
}

// Get returns a personality template by name, or nil if not found.
func (t *PersonalityTable) Get(name string) *PersonalityTemplate {
	return t.templates[name]
}

// Count returns the number of loaded templates.
func (t *PersonalityTable) Count() int {
	return len(t.templates)
}

package world

import "github.com/rgriola/bridge-sim/internal/core/ecs"

// StructureKind classifies what a structure provides to agents.
type StructureKind string

const (
	KindWater   StructureKind = "water"
	KindFood    StructureKind = "food"
	KindShelter StructureKind = "shelter"
	KindSocial  StructureKind = "social"
)

// Structure is a fixed world feature agents path to and occupy. Structures
// never move; adding one marks the walk grid dirty so paths replan against
// the new layout.
type Structure struct {
	ID       int
	Kind     StructureKind
	Name     string
	X, Z     float64
	Radius   float64 // interaction radius
	Capacity int     // max simultaneous occupants, 0 = unlimited
	Blocking bool    // carves cells out of the walk grid

	occupants map[ecs.EntityID]struct{}
}

func (s *Structure) Occupancy() int { return len(s.occupants) }

// Available reports whether the structure can admit one more occupant.
func (s *Structure) Available() bool {
	return s.Capacity == 0 || len(s.occupants) < s.Capacity
}

func (s *Structure) Occupy(id ecs.EntityID) bool {
	if !s.Available() {
		return false
	}
	if s.occupants == nil {
		s.occupants = make(map[ecs.EntityID]struct{}, 4)
	}
	s.occupants[id] = struct{}{}
	return true
}

func (s *Structure) Release(id ecs.EntityID) {
	delete(s.occupants, id)
}

package ecs

// Purgeable is implemented by every structure that caches per-agent data
// (registry, spatial hash, broadcast diff state) so the World can clear an
// agent from all of them on destroy. Removal is always explicit — nothing in
// the simulation drops an agent silently.
type Purgeable interface {
	Remove(id EntityID)
}

// Store is a generic typed map from agent id to a record pointer.
// No reflect, no interface{} — pure generics.
type Store[T any] struct {
	data map[EntityID]*T
}

func NewStore[T any]() *Store[T] {
	return &Store[T]{
		data: make(map[EntityID]*T, 64),
	}
}

func (s *Store[T]) Set(id EntityID, v *T) {
	s.data[id] = v
}

func (s *Store[T]) Get(id EntityID) (*T, bool) {
	v, ok := s.data[id]
	return v, ok
}

func (s *Store[T]) Remove(id EntityID) {
	delete(s.data, id)
}

func (s *Store[T]) Has(id EntityID) bool {
	_, ok := s.data[id]
	return ok
}

func (s *Store[T]) Len() int {
	return len(s.data)
}

// Each iterates in map order. Callers that need deterministic order must
// iterate a sorted id snapshot instead.
func (s *Store[T]) Each(fn func(EntityID, *T)) {
	for id, v := range s.data {
		fn(id, v)
	}
}

// IDs returns the current key set in unspecified order.
func (s *Store[T]) IDs() []EntityID {
	out := make([]EntityID, 0, len(s.data))
	for id := range s.data {
		out = append(out, id)
	}
	return out
}

package ecs

import "testing"

func TestEntityPoolGenerations(t *testing.T) {
	p := NewEntityPool()
	first := p.Create()
	if !p.Alive(first) {
		t.Fatal("fresh id not alive")
	}

	p.Destroy(first)
	if p.Alive(first) {
		t.Fatal("destroyed id still alive")
	}

	// The slot is reused, the generation is not.
	second := p.Create()
	if second.Index() != first.Index() {
		t.Fatalf("index = %d, want slot %d reused", second.Index(), first.Index())
	}
	if second.Generation() == first.Generation() {
		t.Fatal("generation not bumped on reuse")
	}
	if p.Alive(first) {
		t.Fatal("stale id resolves to the reused slot")
	}
	if !p.Alive(second) {
		t.Fatal("reused id not alive")
	}
}

func TestEntityPoolDoubleDestroy(t *testing.T) {
	p := NewEntityPool()
	id := p.Create()
	p.Destroy(id)
	p.Destroy(id) // stale, must be a no-op

	a := p.Create()
	b := p.Create()
	if a.Index() == b.Index() {
		t.Fatalf("double destroy put slot %d on the free list twice", a.Index())
	}
}

func TestEntityPoolDeterministicAllocation(t *testing.T) {
	seq := func() []EntityID {
		p := NewEntityPool()
		ids := make([]EntityID, 0, 6)
		a := p.Create()
		b := p.Create()
		ids = append(ids, a, b)
		p.Destroy(a)
		ids = append(ids, p.Create(), p.Create())
		p.Destroy(b)
		ids = append(ids, p.Create(), p.Create())
		return ids
	}

	first := seq()
	second := seq()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("allocation diverges at %d: %v vs %v", i, first, second)
		}
	}
}

type recordingPurgeable struct {
	removed []EntityID
}

func (r *recordingPurgeable) Remove(id EntityID) {
	r.removed = append(r.removed, id)
}

func TestWorldDeferredDestroy(t *testing.T) {
	w := NewWorld()
	cache := &recordingPurgeable{}
	w.RegisterPurgeable(cache)

	id := w.CreateEntity()
	w.MarkForDestruction(id)

	if !w.Alive(id) {
		t.Fatal("marked id died before the flush")
	}
	if len(cache.removed) != 0 {
		t.Fatal("purge ran before the flush")
	}

	w.FlushDestroyQueue()

	if w.Alive(id) {
		t.Fatal("id alive after flush")
	}
	if len(cache.removed) != 1 || cache.removed[0] != id {
		t.Fatalf("purged = %v, want [%d]", cache.removed, id)
	}
}

package store

import "testing"

type recorder struct {
	added, updated, removed []string
}

func (r *recorder) OnAdd(m *Module)    { r.added = append(r.added, m.Path) }
func (r *recorder) OnUpdate(m *Module) { r.updated = append(r.updated, m.Path) }
func (r *recorder) OnRemove(m *Module) { r.removed = append(r.removed, m.Path) }

func TestAddIsIdempotent(t *testing.T) {
	s := New()
	rec := &recorder{}
	s.AddListener(rec)

	s.Add(&Module{Path: "/a.js", Code: "1"})
	s.Add(&Module{Path: "/a.js", Code: "1"})

	if len(rec.added) != 1 {
		t.Fatalf("expected 1 OnAdd call, got %d", len(rec.added))
	}
	if len(rec.updated) != 0 {
		t.Fatalf("expected 0 OnUpdate calls for identical re-add, got %d", len(rec.updated))
	}
}

func TestAddWithDifferentCodeFiresUpdate(t *testing.T) {
	s := New()
	rec := &recorder{}
	s.AddListener(rec)

	s.Add(&Module{Path: "/a.js", Code: "1"})
	s.Add(&Module{Path: "/a.js", Code: "2"})

	if len(rec.added) != 1 || len(rec.updated) != 1 {
		t.Fatalf("expected 1 add + 1 update, got add=%d update=%d", len(rec.added), len(rec.updated))
	}
	if s.Get("/a.js").Code != "2" {
		t.Fatalf("expected stored code to be updated")
	}
}

func TestRemove(t *testing.T) {
	s := New()
	rec := &recorder{}
	s.AddListener(rec)

	s.Add(&Module{Path: "/a.js", Code: "1"})
	s.Remove("/a.js")

	if s.Has("/a.js") {
		t.Fatalf("expected module to be removed")
	}
	if len(rec.removed) != 1 {
		t.Fatalf("expected 1 OnRemove call, got %d", len(rec.removed))
	}
}

func TestMove(t *testing.T) {
	s := New()
	s.Add(&Module{Path: "/a.js", Code: "1"})
	s.Move("/a.js", "/b.js")

	if s.Has("/a.js") {
		t.Fatalf("expected old path to be gone")
	}
	if !s.Has("/b.js") {
		t.Fatalf("expected new path to exist")
	}
	if s.Get("/b.js").Code != "1" {
		t.Fatalf("expected code to be preserved across move")
	}
}

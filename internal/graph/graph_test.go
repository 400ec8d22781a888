package graph

import "testing"

func TestComputeHashDeterministicAndDistinguishesQuery(t *testing.T) {
	a := ComputeHash("/src/index.js", "")
	b := ComputeHash("/src/index.js", "")
	if a != b {
		t.Fatalf("expected identical inputs to hash identically")
	}
	c := ComputeHash("/src/index.js", "css-loader")
	if a == c {
		t.Fatalf("expected distinct loader-query variants to hash differently")
	}
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	r := NewRegistry()
	first := r.GetOrCreate("/a.js", "")
	second := r.GetOrCreate("/a.js", "")
	if first != second {
		t.Fatalf("expected GetOrCreate to return the same TM for repeat calls")
	}
}

func TestShouldTranspileWhenSourceNil(t *testing.T) {
	tm := New("/a.js", "")
	if !tm.ShouldTranspile() {
		t.Fatalf("expected a fresh TM with nil source to need transpilation")
	}
	code := "module.exports = 1"
	tm.Source = &code
	if tm.ShouldTranspile() {
		t.Fatalf("expected a transpiled, non-dirty TM to not need retranspilation")
	}
}

func TestInvalidatePropagatesThroughTranspilationInitiators(t *testing.T) {
	r := NewRegistry()
	dep := r.GetOrCreate("/dep.js", "")
	entry := r.GetOrCreate("/index.js", "")
	r.Link(entry.Hash, dep.Hash, true) // entry has a transpilation dependency on dep

	src := "ok"
	entry.Source = &src
	entry.Compilation = &Compilation{Exports: 1}
	depSrc := "dep"
	dep.Source = &depSrc

	r.Invalidate(dep.Hash)

	if dep.Source != nil {
		t.Fatalf("expected dep's own source to be cleared")
	}
	if entry.Source != nil {
		t.Fatalf("expected entry's source to be invalidated too, since it's a transpilationInitiator of dep")
	}
	if entry.State != StateDirty {
		t.Fatalf("expected entry to be marked dirty")
	}
}

func TestInvalidatePropagatesCompilationOnlyThroughPlainInitiators(t *testing.T) {
	r := NewRegistry()
	dep := r.GetOrCreate("/dep.js", "")
	entry := r.GetOrCreate("/index.js", "")
	r.Link(entry.Hash, dep.Hash, false) // entry requires dep at runtime only

	entrySrc := "require('./dep')"
	entry.Source = &entrySrc
	entry.Compilation = &Compilation{Exports: 42}
	depSrc := "module.exports = 41"
	dep.Source = &depSrc

	r.Invalidate(dep.Hash)

	if entry.Source == nil {
		t.Fatalf("expected entry's source to survive: it is only a runtime initiator, not a transpilationInitiator")
	}
	if entry.Compilation != nil {
		t.Fatalf("expected entry's compilation to be invalidated since its dependency's exports may have changed")
	}
}

func TestDisposeRemovesFromNeighborEdgeSets(t *testing.T) {
	r := NewRegistry()
	dep := r.GetOrCreate("/dep.js", "")
	entry := r.GetOrCreate("/index.js", "")
	r.Link(entry.Hash, dep.Hash, false)

	r.Dispose(dep.Hash)

	if r.Get(dep.Hash) != nil {
		t.Fatalf("expected dep to be removed from the registry")
	}
	if _, ok := entry.Dependencies[dep.Hash]; ok {
		t.Fatalf("expected entry's forward edge to dep to be removed")
	}
	if !entry.HasMissingDependencies {
		t.Fatalf("expected entry to be flagged as having a missing dependency")
	}
}

func TestStatusReflectsHotConfigAndDirtyState(t *testing.T) {
	tm := New("/a.js", "")
	if tm.Status() != "idle" {
		t.Fatalf("expected a fresh TM to report idle, got %s", tm.Status())
	}
	tm.State = StateDirty
	if tm.Status() != "dirty" {
		t.Fatalf("expected dirty with no hot config to report dirty, got %s", tm.Status())
	}
	tm.Hot.AcceptSelf = true
	if tm.Status() != "accepted" {
		t.Fatalf("expected dirty+AcceptSelf to report accepted, got %s", tm.Status())
	}
	tm.Hot.Declined = true
	if tm.Status() != "declined" {
		t.Fatalf("expected declined to take priority, got %s", tm.Status())
	}
}

func TestGlobalStatusBroadcast(t *testing.T) {
	r := NewRegistry()
	var seen []GlobalStatus
	r.AddStatusListener(func(s GlobalStatus) { seen = append(seen, s) })

	r.SetStatus(StatusCheck)
	r.SetStatus(StatusApply)
	r.SetStatus(StatusIdle)

	if len(seen) != 3 || seen[0] != StatusCheck || seen[1] != StatusApply || seen[2] != StatusIdle {
		t.Fatalf("expected listener to observe check->apply->idle, got %v", seen)
	}
}

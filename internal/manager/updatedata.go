package manager

import (
	"github.com/sandboxkit/corebundle/internal/graph"
	"github.com/sandboxkit/corebundle/internal/store"
)

// UpdateData diffs newModules against the current Store, invalidates
// affected TMs, and retranspiles the dirty set plus any TM previously
// flagged hasMissingDependencies. When there is anything to
// retranspile the global status moves to check (fail if a retranspile
// errors); the following EvaluateModule moves it on to apply and idle.
// Returns the TMs successfully retranspiled.
func (m *Manager) UpdateData(newModules map[string]*store.Module) ([]*graph.TranspiledModule, error) {
	existing := m.store.All()
	existingByPath := make(map[string]*store.Module, len(existing))
	for _, mod := range existing {
		existingByPath[mod.Path] = mod
	}

	var added, updated, deleted []string
	for path, mod := range newModules {
		old, had := existingByPath[path]
		if !had {
			added = append(added, path)
			continue
		}
		if old.Code != mod.Code {
			updated = append(updated, path)
		}
	}
	for path, old := range existingByPath {
		if old.IsChild() {
			continue
		}
		if _, stillPresent := newModules[path]; !stillPresent {
			deleted = append(deleted, path)
		}
	}

	structuralChange := len(added)+len(updated)+len(deleted) > 0
	if structuralChange {
		m.resolver.InvalidateCache()
	}

	for _, path := range deleted {
		m.store.Remove(path)
	}
	for _, path := range added {
		m.store.Add(newModules[path])
	}
	for _, path := range updated {
		m.store.Update(newModules[path])
	}

	if m.opts.HardReloadOnChange && structuralChange {
		m.pendingHardReload = true
	}

	dirty := make(map[graph.Hash]*graph.TranspiledModule)
	for _, tm := range m.registry.All() {
		if tm.State == graph.StateDirty {
			dirty[tm.Hash] = tm
		}
	}
	for _, tm := range m.missingDependencyTMs() {
		dirty[tm.Hash] = tm
	}

	if len(dirty) > 0 {
		m.registry.SetStatus(graph.StatusCheck)
	}

	var retranspiled []*graph.TranspiledModule
	var firstErr error
	for _, tm := range dirty {
		if err := m.transpileOne(tm); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		retranspiled = append(retranspiled, tm)
	}
	if firstErr != nil {
		m.registry.SetStatus(graph.StatusFail)
	}

	return retranspiled, firstErr
}

package manager

import (
	"fmt"
	"sync"

	"github.com/dop251/goja"

	"github.com/sandboxkit/corebundle/internal/graph"
	"github.com/sandboxkit/corebundle/internal/sberrors"
	"github.com/sandboxkit/corebundle/internal/vpath"
)

// evalState is created once per Manager and holds the single
// execution context: one goja.Runtime shared across every
// evaluateModule call, plus the on-stack set used for cycle-safe
// CommonJS semantics.
type evalState struct {
	mu      sync.Mutex
	vm      *goja.Runtime
	onStack map[graph.Hash]*goja.Object
}

func (m *Manager) vmState() *evalState {
	m.evalOnce.Do(func() {
		m.eval = &evalState{
			vm:      goja.New(),
			onStack: make(map[graph.Hash]*goja.Object),
		}
	})
	return m.eval
}

// EvaluateOptions configures a single EvaluateModule call.
type EvaluateOptions struct {
	Force      bool
	TestGlobals map[string]interface{}
}

// EvaluateModule transitions to the evaluation stage, re-evaluates
// dirty-HMR TMs first, then evaluates entry and returns its exports.
func (m *Manager) EvaluateModule(entryPath string, opts EvaluateOptions) (interface{}, error) {
	if m.pendingHardReload {
		m.pendingHardReload = false
		m.registry.SetStatus(graph.StatusFail)
		return nil, fmt.Errorf("manager: hard reload pending, evaluate aborted")
	}

	st := m.vmState()
	st.mu.Lock()
	defer st.mu.Unlock()

	m.registry.SetStatus(graph.StatusApply)

	for _, tm := range m.registry.All() {
		if tm.State == graph.StateDirty && tm != m.registry.GetByPathQuery(entryPath, "") {
			if _, err := m.evaluateTM(st, tm, opts); err != nil {
				m.registry.SetStatus(graph.StatusFail)
				return nil, err
			}
		}
	}

	entryTM := m.registry.GetByPathQuery(entryPath, "")
	if entryTM == nil {
		m.registry.SetStatus(graph.StatusFail)
		return nil, &sberrors.ModuleNotFoundError{Path: entryPath}
	}
	if opts.Force {
		entryTM.Compilation = nil
	}

	exportsVal, err := m.evaluateTM(st, entryTM, opts)
	if err != nil {
		m.registry.SetStatus(graph.StatusFail)
		return nil, err
	}

	m.registry.SetStatus(graph.StatusIdle)
	return exportsVal.Export(), nil
}

// evaluateTM evaluates tm inside the shared runtime, implementing
// cycle-safety: a TM currently on the evaluation stack returns its
// current (possibly partial) module.exports object rather than
// recursing again, matching CommonJS semantics.
func (m *Manager) evaluateTM(st *evalState, tm *graph.TranspiledModule, opts EvaluateOptions) (goja.Value, error) {
	if tm.Compilation != nil {
		if exp, ok := tm.Compilation.Exports.(goja.Value); ok {
			return exp, nil
		}
	}
	if onStack, ok := st.onStack[tm.Hash]; ok {
		return st.vm.ToValue(onStack), nil
	}

	if tm.Source == nil {
		if err := m.transpileOne(tm); err != nil {
			return nil, err
		}
	}
	if tm.Source == nil {
		return nil, &sberrors.EvaluationError{Hash: string(tm.Hash), Path: tm.Path, Err: fmt.Errorf("module has no transpiled source")}
	}

	moduleObj := st.vm.NewObject()
	exportsObj := st.vm.NewObject()
	moduleObj.Set("exports", exportsObj)
	st.onStack[tm.Hash] = exportsObj
	defer delete(st.onStack, tm.Hash)

	requireFn := func(call goja.FunctionCall) goja.Value {
		request := call.Argument(0).String()
		if request == vpath.EmptySpecifier {
			return st.vm.NewObject()
		}
		resolved, err := m.resolvePath(request, tm.Path)
		if err != nil {
			panic(st.vm.ToValue(err.Error()))
		}
		depTM := m.registry.GetOrCreate(resolved, "")
		m.registry.Link(tm.Hash, depTM.Hash, false)
		depExports, err := m.evaluateTM(st, depTM, opts)
		if err != nil {
			panic(st.vm.ToValue(err.Error()))
		}
		return depExports
	}

	hotObj := buildHotObject(st.vm, tm)
	moduleObj.Set("hot", hotObj)

	wrapped := "(function(module, exports, require, hot) {\n" + *tm.Source + "\n})"
	prog, err := goja.Compile(tm.Path, wrapped, false)
	if err != nil {
		return nil, &sberrors.EvaluationError{Hash: string(tm.Hash), Path: tm.Path, Err: err}
	}

	fnVal, err := st.vm.RunProgram(prog)
	if err != nil {
		return nil, &sberrors.EvaluationError{Hash: string(tm.Hash), Path: tm.Path, Err: err}
	}
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return nil, &sberrors.EvaluationError{Hash: string(tm.Hash), Path: tm.Path, Err: fmt.Errorf("transpiled output is not callable")}
	}

	evalErr := runCatchingPanics(func() error {
		_, err := fn(goja.Undefined(), st.vm.ToValue(moduleObj), st.vm.ToValue(exportsObj), st.vm.ToValue(requireFn), hotObj)
		return err
	})
	if evalErr != nil {
		err := &sberrors.EvaluationError{Hash: string(tm.Hash), Path: tm.Path, Err: evalErr}
		tm.Errors = append(tm.Errors, err)
		return nil, err
	}

	finalExports := moduleObj.Get("exports")
	tm.Compilation = &graph.Compilation{Exports: finalExports}
	tm.State = graph.StateIdle
	return finalExports, nil
}

func runCatchingPanics(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if asErr, ok := r.(error); ok {
				err = asErr
				return
			}
			err = fmt.Errorf("%v", r)
		}
	}()
	return fn()
}

// buildHotObject constructs the module.hot handle: accept/decline/
// dispose register policy on the TM's HotConfig, which
// TranspiledModule.Status reports and whose DisposeHandler
// Registry.Dispose runs. It is exposed both as module.hot and as the
// wrapper's hot parameter.
func buildHotObject(vm *goja.Runtime, tm *graph.TranspiledModule) goja.Value {
	hot := vm.NewObject()
	hot.Set("accept", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			tm.Hot.AcceptSelf = true
			return goja.Undefined()
		}
		if fn, ok := goja.AssertFunction(call.Argument(len(call.Arguments) - 1)); ok {
			if tm.Hot.AcceptDeps == nil {
				tm.Hot.AcceptDeps = make(map[graph.Hash]func(interface{}))
			}
			depRequest := call.Argument(0).String()
			_ = depRequest
			tm.Hot.AcceptDeps[tm.Hash] = func(exports interface{}) {
				fn(goja.Undefined(), vm.ToValue(exports))
			}
			return goja.Undefined()
		}
		tm.Hot.AcceptSelf = true
		return goja.Undefined()
	})
	hot.Set("decline", func(call goja.FunctionCall) goja.Value {
		tm.Hot.Declined = true
		return goja.Undefined()
	})
	hot.Set("dispose", func(call goja.FunctionCall) goja.Value {
		if fn, ok := goja.AssertFunction(call.Argument(0)); ok {
			tm.Hot.DisposeHandler = func() {
				fn(goja.Undefined())
			}
		}
		return goja.Undefined()
	})
	return hot
}

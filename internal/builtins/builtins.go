// Package builtins implements BashKit's builtin registry and the builtin
// set named in spec.md §4.6: a name→Builtin map dispatched by the
// evaluator for any simple command that isn't a user-defined function.
package builtins

import (
	"context"
	"sort"

	"github.com/everruns/bashkit-sub001/internal/capability"
	"github.com/everruns/bashkit-sub001/internal/telemetry"
	"github.com/everruns/bashkit-sub001/internal/vfs"
)

// ControlFlowKind enumerates the flow-altering signal a builtin can return
// for the evaluator to act on, per spec.md §4.6.
type ControlFlowKind int

const (
	FlowNone ControlFlowKind = iota
	FlowBreak
	FlowContinue
	FlowReturn
	FlowExit
)

// ControlFlow carries a flow signal plus its operand (loop count for
// break/continue, exit code for return/exit).
type ControlFlow struct {
	Kind ControlFlowKind
	N    int
}

// Result is what a builtin returns: output text plus an exit code and an
// optional control-flow signal.
type Result struct {
	Stdout  string
	Stderr  string
	Code    int
	Flow    ControlFlow
}

// Vars is the subset of the evaluator's variable store a builtin can read
// and mutate; kept as an interface so internal/builtins never imports
// internal/eval (which imports internal/builtins), avoiding a cycle.
type Vars interface {
	Get(name string) (string, bool)
	Set(name, value string)
	// SetLocal forces name into the innermost scope, implementing the
	// `local` builtin's shadowing semantics rather than Set's "update
	// wherever found" semantics.
	SetLocal(name, value string)
	Unset(name string)
	SetReadonly(name string)
	IsReadonly(name string) bool
	SetExported(name string)
	IsExported(name string) bool
	Names() []string
	Environ() []string
	Positional() []string
	SetPositional([]string)
	ShiftPositional(n int) bool
}

// Context is everything a builtin needs: its arguments (command name
// already stripped), a read-only environment snapshot, the live variable
// store, the current working directory (by pointer so cd can mutate it),
// the session filesystem, optional piped stdin, and optional capability
// handles.
type Context struct {
	Ctx    context.Context
	Args   []string
	Env    map[string]string
	Vars   Vars
	Cwd    *string
	FS     vfs.FileSystem
	Stdin  string
	HasStdin bool
	HTTP   capability.HTTPClient
	Git    capability.GitClient
	Python capability.PythonRunner
	Log    *telemetry.Logger

	// History is the session's command history, exposed for the `history`
	// builtin; nil if the host disabled history tracking.
	History []string

	// EvalFn lets the `eval`/`source`/`.` builtins re-enter the evaluator
	// with a new chunk of script text in the current scope. internal/eval
	// supplies this closure when building a Context; internal/builtins
	// never imports internal/eval directly, avoiding an import cycle.
	EvalFn func(script string) Result
}

// Builtin is one dispatchable command implementation.
type Builtin interface {
	Run(c *Context) Result
}

// BuiltinFunc adapts a plain function to the Builtin interface.
type BuiltinFunc func(c *Context) Result

func (f BuiltinFunc) Run(c *Context) Result { return f(c) }

// Registry is a name→Builtin lookup table. The zero value is not usable;
// use NewRegistry or DefaultRegistry.
type Registry struct {
	entries map[string]Builtin
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Builtin)}
}

// Register adds or replaces the builtin for name.
func (r *Registry) Register(name string, b Builtin) {
	r.entries[name] = b
}

// Lookup returns the builtin registered for name, if any.
func (r *Registry) Lookup(name string) (Builtin, bool) {
	b, ok := r.entries[name]
	return b, ok
}

// Names returns every registered builtin name, sorted, for introspection.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry returns a Registry populated with the full builtin set
// named in spec.md §4.6.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	registerCore(r)
	registerShellState(r)
	registerControlFlow(r)
	registerFiles(r)
	registerText(r)
	registerArchive(r)
	registerMisc(r)
	registerCapabilities(r)
	return r
}

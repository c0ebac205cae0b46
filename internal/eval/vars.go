// Package eval implements BashKit's evaluator: the AST walker that drives
// expansion, simple-command dispatch, redirection, pipelines, and control
// flow described in spec.md §4.5, on top of internal/syntax's AST and
// internal/builtins' registry.
package eval

import (
	"fmt"
	"sort"
)

// scope is one frame of variable bindings. Frame 0 is the global scope;
// function calls push a new frame so `local` assignments in a function
// don't leak into the caller, matching bash's dynamic-scoping model for
// `local`.
type scope struct {
	vars map[string]string
}

func newScope() *scope { return &scope{vars: make(map[string]string)} }

// Vars is the evaluator's variable store: a stack of scopes plus global
// export/readonly tag sets (bash's export/readonly attributes are global,
// not per-scope, even though values are scoped).
type Vars struct {
	scopes     []*scope
	exported   map[string]bool
	readonly   map[string]bool
	positional []string
	env        map[string]string // immutable snapshot the host provided at Session construction
}

// NewVars builds a Vars store seeded from env (the host's immutable
// environment mapping, per spec.md §2's Session description); every entry
// in env starts out exported, matching a real shell's inherited
// environment.
func NewVars(env map[string]string) *Vars {
	v := &Vars{
		scopes:   []*scope{newScope()},
		exported: make(map[string]bool),
		readonly: make(map[string]bool),
		env:      env,
	}
	for k, val := range env {
		v.scopes[0].vars[k] = val
		v.exported[k] = true
	}
	return v
}

func (v *Vars) top() *scope { return v.scopes[len(v.scopes)-1] }

// PushScope enters a new function-call frame.
func (v *Vars) PushScope() { v.scopes = append(v.scopes, newScope()) }

// PopScope exits the innermost function-call frame. It is a no-op at the
// global frame so mismatched pops (which should never happen if callers
// pair Push/Pop correctly) can't corrupt global state.
func (v *Vars) PopScope() {
	if len(v.scopes) > 1 {
		v.scopes = v.scopes[:len(v.scopes)-1]
	}
}

// Get looks up name from the innermost scope outward, matching bash's
// dynamic scoping for `local`.
func (v *Vars) Get(name string) (string, bool) {
	for i := len(v.scopes) - 1; i >= 0; i-- {
		if val, ok := v.scopes[i].vars[name]; ok {
			return val, true
		}
	}
	return "", false
}

// Set assigns name in the innermost scope that already holds it, or the
// current scope if it's new — so a plain assignment inside a function body
// updates an outer variable of the same name if one exists (bash's
// behavior without an explicit `local`), while a fresh name stays scoped to
// wherever it was first set.
func (v *Vars) Set(name, value string) {
	for i := len(v.scopes) - 1; i >= 0; i-- {
		if _, ok := v.scopes[i].vars[name]; ok {
			v.scopes[i].vars[name] = value
			return
		}
	}
	v.top().vars[name] = value
}

// SetLocal forces name into the innermost scope regardless of whether an
// outer scope already holds it, implementing the `local` builtin's actual
// shadowing semantics.
func (v *Vars) SetLocal(name, value string) {
	v.top().vars[name] = value
}

func (v *Vars) Unset(name string) {
	for i := len(v.scopes) - 1; i >= 0; i-- {
		if _, ok := v.scopes[i].vars[name]; ok {
			delete(v.scopes[i].vars, name)
			return
		}
	}
}

func (v *Vars) SetReadonly(name string) { v.readonly[name] = true }
func (v *Vars) IsReadonly(name string) bool { return v.readonly[name] }
func (v *Vars) SetExported(name string) { v.exported[name] = true }
func (v *Vars) IsExported(name string) bool { return v.exported[name] }

// Names returns every variable name visible in the current scope chain.
func (v *Vars) Names() []string {
	seen := make(map[string]bool)
	for _, s := range v.scopes {
		for k := range s.vars {
			seen[k] = true
		}
	}
	names := make([]string, 0, len(seen))
	for k := range seen {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Environ returns "NAME=value" lines for every exported variable,
// analogous to os.Environ for the virtual session.
func (v *Vars) Environ() []string {
	var lines []string
	for name := range v.exported {
		if val, ok := v.Get(name); ok {
			lines = append(lines, fmt.Sprintf("%s=%s", name, val))
		}
	}
	return lines
}

func (v *Vars) Positional() []string { return v.positional }
func (v *Vars) SetPositional(args []string) { v.positional = args }

// ShiftPositional drops the first n positional parameters, returning false
// if n exceeds the current count (bash's `shift` fails in that case without
// otherwise modifying the list).
func (v *Vars) ShiftPositional(n int) bool {
	if n > len(v.positional) {
		return false
	}
	v.positional = v.positional[n:]
	return true
}

package eval

import (
	"context"
	"fmt"
	"strings"

	"github.com/everruns/bashkit-sub001/internal/builtins"
	"github.com/everruns/bashkit-sub001/internal/capability"
	"github.com/everruns/bashkit-sub001/internal/limits"
	"github.com/everruns/bashkit-sub001/internal/syntax"
	"github.com/everruns/bashkit-sub001/internal/telemetry"
	"github.com/everruns/bashkit-sub001/internal/vfs"
)

// Options carries everything a Session constructs an Evaluator with: the
// filesystem, capability handles, resource limits, and logger. Evaluators
// are cheap to build; a Session builds one per exec() call (or reuses one
// across calls, since state beyond counters survives between execs per
// spec.md §2).
type Options struct {
	FS      vfs.FileSystem
	Limits  limits.Config
	HTTP    capability.HTTPClient
	Git     capability.GitClient
	Python  capability.PythonRunner
	Log     *telemetry.Logger
	Registry *builtins.Registry
}

// Evaluator is BashKit's single-threaded, cooperative AST walker. It owns
// the session's variables, cwd, counters, function table, and I/O sinks for
// one exec() call; a Session rebuilds or resets it at the start of every
// call per spec.md §4.1's Reset contract.
type Evaluator struct {
	opts     Options
	vars     *Vars
	cwd      string
	counters *limits.Counters
	registry *builtins.Registry
	funcs    map[string]*syntax.FunctionDef
	history  []string
	lastExit int

	stdout strings.Builder
	stderr strings.Builder

	// outSink / errSink are where the currently-executing simple command's
	// output actually lands: the session buffers by default, or a
	// temporary buffer while a pipeline stage or command substitution is
	// capturing output that must not reach the outer result.
	outSink *strings.Builder
	errSink *strings.Builder

	// pendingStdin is the piped input waiting for the next simple command
	// that wants stdin and has no explicit `<` redirect of its own; it is
	// consumed at most once, approximating real piping without a byte
	// stream between cooperatively-scheduled stages.
	pendingStdin *string

	// fuel is the parser's shared operation/depth/deadline budget for this
	// exec() call. eval/source and command substitution reuse it rather
	// than starting a fresh tank, per spec.md's Open Question resolution
	// that nested parses must not reset the outer parse's budget.
	fuel *limits.ParserFuel

	// setE / setU / setPipefail mirror bash's `set -e`/`-u`/`-o pipefail`.
	setE        bool
	setU        bool
	setPipefail bool

	// suppressErrExit disables the `set -e` abort while evaluating a
	// command whose exit status is being tested rather than relied on
	// directly: an if/while/until condition, the left side of && or ||,
	// or a `!`-negated pipeline, per spec.md §4.5.
	suppressErrExit bool
}

// New builds an Evaluator. env seeds the initial variable scope (the
// session's immutable environment mapping); cwd is the starting working
// directory, which must be an absolute, normalized path.
func New(opts Options, env map[string]string, cwd string) *Evaluator {
	reg := opts.Registry
	if reg == nil {
		reg = builtins.DefaultRegistry()
	}
	if opts.HTTP == nil {
		opts.HTTP = capability.NoHTTP()
	}
	if opts.Git == nil {
		opts.Git = capability.NoGit()
	}
	if opts.Python == nil {
		opts.Python = capability.NoPython()
	}
	if opts.Log == nil {
		opts.Log = telemetry.NewNop()
	}
	ev := &Evaluator{
		opts:     opts,
		vars:     NewVars(env),
		cwd:      cwd,
		counters: limits.New(opts.Limits),
		registry: reg,
		funcs:    make(map[string]*syntax.FunctionDef),
	}
	ev.outSink = &ev.stdout
	ev.errSink = &ev.stderr
	return ev
}

// Reset clears per-exec counters, I/O buffers, and the parser fuel tank
// without touching variables, cwd, functions, or history — the state a
// Session keeps live across many exec() calls, per spec.md §2.
func (e *Evaluator) Reset() {
	e.counters.Reset()
	e.stdout.Reset()
	e.stderr.Reset()
	e.outSink = &e.stdout
	e.errSink = &e.stderr
	e.pendingStdin = nil
	e.lastExit = 0
	e.fuel = limits.NewParserFuel(e.opts.Limits)
}

// Cwd returns the evaluator's current working directory.
func (e *Evaluator) Cwd() string { return e.cwd }

// Vars exposes the variable store for the facade's accessors.
func (e *Evaluator) Vars() *Vars { return e.vars }

// ExecResult is what one Run call returns: captured output, the final exit
// code, and whether the script asked to exit the whole session.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Exited   bool
}

// Run parses and evaluates src as a whole script, per spec.md §4.5's
// top-level exec() contract: counters are NOT reset here (the facade calls
// Reset itself, once, before Run, so callers control exactly when budgets
// roll over).
func (e *Evaluator) Run(ctx context.Context, src string) (ExecResult, error) {
	if err := e.opts.Limits.CheckInputSize(len(src)); err != nil {
		return ExecResult{}, err
	}
	if e.fuel == nil {
		e.fuel = limits.NewParserFuel(e.opts.Limits)
	}
	root, err := syntax.Parse(src, e.fuel)
	if err != nil {
		return ExecResult{}, err
	}
	e.history = append(e.history, src)

	flow, err := e.evalNode(ctx, root)
	if err != nil {
		return ExecResult{Stdout: e.stdout.String(), Stderr: e.stderr.String()}, err
	}
	exited := flow.Kind == builtins.FlowExit
	code := e.lastExit
	if exited {
		code = flow.N
	}
	return ExecResult{
		Stdout:   e.stdout.String(),
		Stderr:   e.stderr.String(),
		ExitCode: code,
		Exited:   exited,
	}, nil
}

// evalString re-enters the evaluator for `eval`/`source`'s benefit, sharing
// the current scope, cwd, counters, and parser fuel tank — nested eval and
// command substitution parses draw from the same budget as the outer
// script, per spec.md's Open Question resolution, so a script can't reset
// its own parser fuel by wrapping itself in `eval`.
func (e *Evaluator) evalString(ctx context.Context, src string) builtins.Result {
	if e.fuel == nil {
		e.fuel = limits.NewParserFuel(e.opts.Limits)
	}
	root, err := syntax.Parse(src, e.fuel)
	if err != nil {
		return builtins.Result{Stderr: err.Error() + "\n", Code: 2}
	}
	flow, err := e.evalNode(ctx, root)
	if err != nil {
		return builtins.Result{Stderr: err.Error() + "\n", Code: 1}
	}
	return builtins.Result{Code: e.lastExit, Flow: flow}
}

// evalNode dispatches on AST node type. It returns a ControlFlow signal
// that bubbles up until something (a loop, a function call, Run itself)
// consumes it.
func (e *Evaluator) evalNode(ctx context.Context, n syntax.Node) (builtins.ControlFlow, error) {
	switch node := n.(type) {
	case *syntax.Sequence:
		return e.evalSequence(ctx, node)
	case *syntax.Pipeline:
		return e.evalPipeline(ctx, node)
	case *syntax.Command:
		return e.evalSimpleCommand(ctx, node)
	case *syntax.If:
		return e.evalIf(ctx, node)
	case *syntax.While:
		return e.evalWhile(ctx, node)
	case *syntax.For:
		return e.evalFor(ctx, node)
	case *syntax.CFor:
		return e.evalCFor(ctx, node)
	case *syntax.Case:
		return e.evalCase(ctx, node)
	case *syntax.FunctionDef:
		e.funcs[node.Name] = node
		e.lastExit = 0
		return builtins.ControlFlow{}, nil
	case *syntax.Subshell:
		return e.evalSubshell(ctx, node)
	case *syntax.Group:
		return e.evalNode(ctx, node.Body)
	case *syntax.ArithCmd:
		v, err := evalArith(node.Expr, e.vars)
		if err != nil {
			e.lastExit = 1
			return builtins.ControlFlow{}, nil
		}
		e.lastExit = boolToExit(v != 0)
		return builtins.ControlFlow{}, nil
	case *syntax.DoubleBracketCmd:
		return e.evalDoubleBracket(ctx, node)
	case nil:
		return builtins.ControlFlow{}, nil
	default:
		return builtins.ControlFlow{}, fmt.Errorf("eval: unhandled node type %T", n)
	}
}

// evalNodeSuppressingErrExit evaluates n with `set -e`'s abort temporarily
// disabled, for the contexts spec.md §4.5 exempts from it.
func (e *Evaluator) evalNodeSuppressingErrExit(ctx context.Context, n syntax.Node) (builtins.ControlFlow, error) {
	saved := e.suppressErrExit
	e.suppressErrExit = true
	flow, err := e.evalNode(ctx, n)
	e.suppressErrExit = saved
	return flow, err
}

func boolToExit(b bool) int {
	if b {
		return 0
	}
	return 1
}

func (e *Evaluator) evalSequence(ctx context.Context, seq *syntax.Sequence) (builtins.ControlFlow, error) {
	var runNext = true
	for i, item := range seq.Items {
		if err := ctx.Err(); err != nil {
			return builtins.ControlFlow{}, err
		}
		sep := syntax.SepNone
		if i > 0 {
			sep = seq.Separators[i-1]
		}
		switch sep {
		case syntax.SepAnd:
			runNext = e.lastExit == 0
		case syntax.SepOr:
			runNext = e.lastExit != 0
		default:
			runNext = true
		}
		if !runNext {
			continue
		}
		// An item immediately followed by && or || has its exit status
		// tested rather than relied on, so `set -e` must not abort on it.
		testedByOperator := i < len(seq.Items)-1 &&
			(seq.Separators[i] == syntax.SepAnd || seq.Separators[i] == syntax.SepOr)
		var flow builtins.ControlFlow
		var err error
		if testedByOperator {
			flow, err = e.evalNodeSuppressingErrExit(ctx, item)
		} else {
			flow, err = e.evalNode(ctx, item)
		}
		if err != nil {
			return flow, err
		}
		if flow.Kind != builtins.FlowNone {
			return flow, nil
		}
	}
	return builtins.ControlFlow{}, nil
}

func (e *Evaluator) evalSubshell(ctx context.Context, s *syntax.Subshell) (builtins.ControlFlow, error) {
	// A subshell gets its own variable scope copy (mutations don't escape)
	// but shares the filesystem and counters, matching spec.md §4.5's
	// framing of subshells as isolated variable state over a shared
	// sandbox — there is no real forked process.
	saved := e.vars
	clone := NewVars(nil)
	for _, name := range saved.Names() {
		val, _ := saved.Get(name)
		clone.Set(name, val)
		if saved.IsExported(name) {
			clone.SetExported(name)
		}
	}
	clone.SetPositional(saved.Positional())
	e.vars = clone
	savedCwd := e.cwd
	flow, err := e.evalNode(ctx, s.Body)
	e.vars = saved
	e.cwd = savedCwd
	if flow.Kind == builtins.FlowExit {
		// An `exit` inside a subshell only ends the subshell.
		e.lastExit = flow.N
		return builtins.ControlFlow{}, err
	}
	return builtins.ControlFlow{}, err
}

func (e *Evaluator) evalIf(ctx context.Context, n *syntax.If) (builtins.ControlFlow, error) {
	flow, err := e.evalNodeSuppressingErrExit(ctx, n.Cond)
	if err != nil || flow.Kind != builtins.FlowNone {
		return flow, err
	}
	if e.lastExit == 0 {
		return e.evalNode(ctx, n.Then)
	}
	for _, elif := range n.Elifs {
		flow, err := e.evalNodeSuppressingErrExit(ctx, elif.Cond)
		if err != nil || flow.Kind != builtins.FlowNone {
			return flow, err
		}
		if e.lastExit == 0 {
			return e.evalNode(ctx, elif.Then)
		}
	}
	if n.Else != nil {
		return e.evalNode(ctx, n.Else)
	}
	e.lastExit = 0
	return builtins.ControlFlow{}, nil
}

func (e *Evaluator) evalWhile(ctx context.Context, n *syntax.While) (builtins.ControlFlow, error) {
	e.counters.PushLoop()
	defer e.counters.PopLoop()
	for {
		flow, err := e.evalNodeSuppressingErrExit(ctx, n.Cond)
		if err != nil || flow.Kind != builtins.FlowNone {
			return flow, err
		}
		truthy := e.lastExit == 0
		if n.Until {
			truthy = !truthy
		}
		if !truthy {
			break
		}
		if err := e.counters.TickLoop(); err != nil {
			return builtins.ControlFlow{}, err
		}
		flow, err = e.evalNode(ctx, n.Body)
		if err != nil {
			return flow, err
		}
		if flow.Kind == builtins.FlowBreak {
			if flow.N > 1 {
				flow.N--
				return flow, nil
			}
			break
		}
		if flow.Kind == builtins.FlowContinue {
			if flow.N > 1 {
				flow.N--
				return flow, nil
			}
			continue
		}
		if flow.Kind != builtins.FlowNone {
			return flow, nil
		}
	}
	e.lastExit = 0
	return builtins.ControlFlow{}, nil
}

func (e *Evaluator) evalFor(ctx context.Context, n *syntax.For) (builtins.ControlFlow, error) {
	var words []string
	if n.Words == nil {
		words = e.vars.Positional()
	} else {
		for _, w := range n.Words {
			fields, err := e.expandWord(ctx, w, true)
			if err != nil {
				return builtins.ControlFlow{}, err
			}
			words = append(words, fields...)
		}
	}
	e.counters.PushLoop()
	defer e.counters.PopLoop()
	for _, w := range words {
		if err := e.counters.TickLoop(); err != nil {
			return builtins.ControlFlow{}, err
		}
		e.vars.Set(n.Var, w)
		flow, err := e.evalNode(ctx, n.Body)
		if err != nil {
			return flow, err
		}
		if flow.Kind == builtins.FlowBreak {
			if flow.N > 1 {
				flow.N--
				return flow, nil
			}
			break
		}
		if flow.Kind == builtins.FlowContinue {
			if flow.N > 1 {
				flow.N--
				return flow, nil
			}
			continue
		}
		if flow.Kind != builtins.FlowNone {
			return flow, nil
		}
	}
	e.lastExit = 0
	return builtins.ControlFlow{}, nil
}

func (e *Evaluator) evalCFor(ctx context.Context, n *syntax.CFor) (builtins.ControlFlow, error) {
	if n.Init != "" {
		if _, err := evalArith(n.Init, e.vars); err != nil {
			return builtins.ControlFlow{}, err
		}
	}
	e.counters.PushLoop()
	defer e.counters.PopLoop()
	for {
		if n.Cond != "" {
			v, err := evalArith(n.Cond, e.vars)
			if err != nil {
				return builtins.ControlFlow{}, err
			}
			if v == 0 {
				break
			}
		}
		if err := e.counters.TickLoop(); err != nil {
			return builtins.ControlFlow{}, err
		}
		flow, err := e.evalNode(ctx, n.Body)
		if err != nil {
			return flow, err
		}
		brk := false
		if flow.Kind == builtins.FlowBreak {
			if flow.N > 1 {
				flow.N--
				return flow, nil
			}
			brk = true
		} else if flow.Kind == builtins.FlowContinue {
			if flow.N > 1 {
				flow.N--
				return flow, nil
			}
		} else if flow.Kind != builtins.FlowNone {
			return flow, nil
		}
		if brk {
			break
		}
		if n.Step != "" {
			if _, err := evalArith(n.Step, e.vars); err != nil {
				return builtins.ControlFlow{}, err
			}
		}
	}
	e.lastExit = 0
	return builtins.ControlFlow{}, nil
}

func (e *Evaluator) evalCase(ctx context.Context, n *syntax.Case) (builtins.ControlFlow, error) {
	fields, err := e.expandWord(ctx, n.Word, false)
	if err != nil {
		return builtins.ControlFlow{}, err
	}
	subject := strings.Join(fields, " ")
	fallingThrough := false
	for _, arm := range n.Arms {
		hit := fallingThrough
		if !hit {
			for _, pat := range arm.Patterns {
				patFields, _ := e.expandWord(ctx, pat, false)
				patStr := strings.Join(patFields, " ")
				if ok, _ := globMatchCase(patStr, subject); ok {
					hit = true
					break
				}
			}
		}
		if !hit {
			continue
		}
		flow, err := e.evalNode(ctx, arm.Body)
		if err != nil || flow.Kind != builtins.FlowNone {
			return flow, err
		}
		switch arm.Fallthru {
		case syntax.FallNext:
			fallingThrough = true
			continue
		case syntax.FallTestNext:
			fallingThrough = false
			continue
		default:
			e.lastExit = 0
			return builtins.ControlFlow{}, nil
		}
	}
	e.lastExit = 0
	return builtins.ControlFlow{}, nil
}

func (e *Evaluator) evalDoubleBracket(ctx context.Context, n *syntax.DoubleBracketCmd) (builtins.ControlFlow, error) {
	bc := e.builtinContext(ctx, nil)
	truth, err := builtins.EvalTestExpr(bc, n.Expr)
	if err != nil {
		e.lastExit = 2
		return builtins.ControlFlow{}, nil
	}
	e.lastExit = boolToExit(truth)
	return builtins.ControlFlow{}, nil
}

package eval

import (
	"context"
	"fmt"
	"strings"

	"github.com/everruns/bashkit-sub001/internal/builtins"
	"github.com/everruns/bashkit-sub001/internal/syntax"
	"github.com/everruns/bashkit-sub001/internal/vfs"
)

// builtinContext constructs the Context a builtin call or [[ ]] test needs.
// stdin, when non-nil, overrides the pipe/redirect-derived input for this
// one call; callers that only need file-test access (DoubleBracketCmd) pass
// nil.
func (e *Evaluator) builtinContext(ctx context.Context, stdin *string) *builtins.Context {
	bc := &builtins.Context{
		Ctx:     ctx,
		Env:     e.envSnapshot(),
		Vars:    e.vars,
		Cwd:     &e.cwd,
		FS:      e.opts.FS,
		HTTP:    e.opts.HTTP,
		Git:     e.opts.Git,
		Python:  e.opts.Python,
		Log:     e.opts.Log,
		History: e.history,
		EvalFn: func(script string) builtins.Result {
			return e.evalString(ctx, script)
		},
	}
	if stdin != nil {
		bc.Stdin = *stdin
		bc.HasStdin = true
	}
	return bc
}

func (e *Evaluator) envSnapshot() map[string]string {
	env := make(map[string]string, len(e.vars.Environ()))
	for _, line := range e.vars.Environ() {
		name, val, _ := strings.Cut(line, "=")
		env[name] = val
	}
	return env
}

// evalSimpleCommand ticks the command counter, expands assignments and
// words, resolves redirections, and dispatches to a user function or a
// registry builtin, per spec.md §4.5 steps 3-5.
func (e *Evaluator) evalSimpleCommand(ctx context.Context, cmd *syntax.Command) (builtins.ControlFlow, error) {
	if err := e.counters.TickCommand(); err != nil {
		return builtins.ControlFlow{}, err
	}

	for _, a := range cmd.Assigns {
		val, err := e.expandWordJoined(ctx, a.Value)
		if err != nil {
			return builtins.ControlFlow{}, err
		}
		if e.vars.IsReadonly(a.Name) {
			e.writeErr(fmt.Sprintf("bash: %s: readonly variable\n", a.Name))
			e.lastExit = 1
			return builtins.ControlFlow{}, nil
		}
		e.vars.Set(a.Name, val)
	}

	var words []string
	for _, w := range cmd.Words {
		fields, err := e.expandWord(ctx, w, true)
		if err != nil {
			return builtins.ControlFlow{}, err
		}
		words = append(words, fields...)
	}
	if len(words) == 0 {
		e.lastExit = 0
		return builtins.ControlFlow{}, nil
	}

	name := words[0]
	args := words[1:]

	if name == "set" {
		e.applySetBuiltin(args)
		e.lastExit = 0
		return builtins.ControlFlow{}, nil
	}

	stdinOverride, stdoutFile, stderrFile, dupErrToOut, err := e.resolveRedirects(ctx, cmd.Redirects)
	if err != nil {
		return builtins.ControlFlow{}, err
	}
	if stdinOverride == nil && e.pendingStdin != nil {
		s := *e.pendingStdin
		stdinOverride = &s
		e.pendingStdin = nil
	}

	var res builtins.Result
	var flow builtins.ControlFlow

	if fn, ok := e.funcs[name]; ok {
		res, flow, err = e.callFunction(ctx, fn, args, stdinOverride)
	} else if b, ok := e.registry.Lookup(name); ok {
		bc := e.builtinContext(ctx, stdinOverride)
		bc.Args = args
		res = b.Run(bc)
		flow = res.Flow
	} else {
		res = builtins.Result{Stderr: fmt.Sprintf("%s: command not found\n", name), Code: 127}
	}
	if err != nil {
		return builtins.ControlFlow{}, err
	}

	var redirErr error
	if werr := e.deliverOutput(ctx, res.Stdout, stdoutFile); werr != nil {
		redirErr = werr
	}
	if dupErrToOut {
		if werr := e.deliverOutput(ctx, res.Stderr, stdoutFile); werr != nil && redirErr == nil {
			redirErr = werr
		}
	} else {
		if werr := e.deliverOutput(ctx, res.Stderr, stderrFile); werr != nil && redirErr == nil {
			redirErr = werr
		}
	}

	if redirErr != nil {
		e.writeErr(fmt.Sprintf("bash: %s\n", redirErr.Error()))
		e.lastExit = 1
	} else {
		e.lastExit = res.Code
	}

	if e.setE && !e.suppressErrExit && e.lastExit != 0 && flow.Kind == builtins.FlowNone {
		return builtins.ControlFlow{}, &exitError{code: e.lastExit}
	}
	return flow, nil
}

// exitError unwinds Run entirely for `set -e`, matching the non-interactive
// shell behavior of aborting the script on the first uncaught failure.
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("set -e: command exited %d", e.code) }

func (e *Evaluator) writeErr(s string) { e.errSink.WriteString(s) }

// deliverOutput sends a command's captured output to either the current
// sink or a redirect target, returning a write failure (is-a-directory,
// quota exceeded, invalid path) so the caller can surface it instead of
// silently dropping the output.
func (e *Evaluator) deliverOutput(ctx context.Context, text string, file *redirectTarget) error {
	if file == nil {
		e.outSink.WriteString(text)
		return nil
	}
	return file.write(ctx, e, text)
}

// redirectTarget is a resolved file-based redirection (stdout/stderr to a
// vfs path), deferred until the command has finished producing output.
type redirectTarget struct {
	path   string
	append bool
}

func (t *redirectTarget) write(ctx context.Context, e *Evaluator, text string) error {
	if t.path == "/dev/null" {
		return nil
	}
	if t.append {
		return e.opts.FS.AppendFile(ctx, t.path, []byte(text))
	}
	return e.opts.FS.WriteFile(ctx, t.path, []byte(text))
}

// resolveRedirects expands and applies every redirection attached to a
// command. It returns an optional stdin override, optional stdout/stderr
// file targets, and whether stderr was duped to stdout's destination
// (`2>&1` or `&>`).
func (e *Evaluator) resolveRedirects(ctx context.Context, redirs []syntax.Redirect) (stdin *string, stdoutFile, stderrFile *redirectTarget, dupErrToOut bool, err error) {
	for _, r := range redirs {
		switch r.Op {
		case syntax.RedirOut, syntax.RedirAppend:
			target, ferr := e.expandWordJoined(ctx, r.Target)
			if ferr != nil {
				return nil, nil, nil, false, ferr
			}
			path := e.resolvePath(target)
			rt := &redirectTarget{path: path, append: r.Op == syntax.RedirAppend}
			if r.Fd == 2 {
				stderrFile = rt
			} else {
				stdoutFile = rt
			}
		case syntax.RedirOutErr:
			target, ferr := e.expandWordJoined(ctx, r.Target)
			if ferr != nil {
				return nil, nil, nil, false, ferr
			}
			path := e.resolvePath(target)
			// The parser stores RedirAppend in DupFd for `&>>`.
			rt := &redirectTarget{path: path, append: r.DupFd == int(syntax.RedirAppend)}
			stdoutFile = rt
			dupErrToOut = true
		case syntax.RedirIn:
			target, ferr := e.expandWordJoined(ctx, r.Target)
			if ferr != nil {
				return nil, nil, nil, false, ferr
			}
			resolved := e.resolvePath(target)
			if resolved == "/dev/null" {
				s := ""
				stdin = &s
				continue
			}
			data, rerr := e.opts.FS.ReadFile(ctx, resolved)
			if rerr != nil {
				return nil, nil, nil, false, rerr
			}
			s := string(data)
			stdin = &s
		case syntax.RedirHereDoc:
			// The parser does not preserve whether the heredoc delimiter
			// was quoted, so the body is taken literally rather than
			// risking incorrect expansion of an intentionally-quoted
			// heredoc (`<<'EOF'`).
			body := r.HereDoc
			stdin = &body
		case syntax.RedirHereString:
			s, ferr := e.expandWordJoined(ctx, r.Target)
			if ferr != nil {
				return nil, nil, nil, false, ferr
			}
			s += "\n"
			stdin = &s
		case syntax.RedirDup:
			if r.Fd == 2 && r.DupFd == 1 {
				dupErrToOut = true
			}
		}
	}
	return stdin, stdoutFile, stderrFile, dupErrToOut, nil
}

func (e *Evaluator) resolvePath(p string) string {
	abs := p
	if !strings.HasPrefix(p, "/") {
		abs = vfs.Join(e.cwd, p)
	}
	norm, ok := vfs.Normalize(abs)
	if !ok {
		return abs
	}
	return norm
}

// callFunction pushes a new variable scope and function-depth counter,
// binds positional parameters to args, evaluates the body, and unwinds a
// Return signal into a plain exit code.
func (e *Evaluator) callFunction(ctx context.Context, fn *syntax.FunctionDef, args []string, stdin *string) (builtins.Result, builtins.ControlFlow, error) {
	pushErr := e.counters.PushFunction()
	defer e.counters.PopFunction()
	if pushErr != nil {
		return builtins.Result{}, builtins.ControlFlow{}, pushErr
	}

	e.vars.PushScope()
	savedPositional := e.vars.Positional()
	e.vars.SetPositional(args)
	if stdin != nil {
		e.pendingStdin = stdin
	}

	flow, err := e.evalNode(ctx, fn.Body)

	e.vars.SetPositional(savedPositional)
	e.vars.PopScope()

	if err != nil {
		return builtins.Result{}, builtins.ControlFlow{}, err
	}
	if flow.Kind == builtins.FlowReturn {
		return builtins.Result{Code: flow.N}, builtins.ControlFlow{}, nil
	}
	if flow.Kind == builtins.FlowExit {
		return builtins.Result{Code: flow.N}, flow, nil
	}
	return builtins.Result{Code: e.lastExit}, builtins.ControlFlow{}, nil
}

// evalPipeline runs each stage in turn, feeding one stage's captured
// stdout to the next stage's stdin. BashKit evaluates cooperatively and
// single-threaded (spec.md Non-goals exclude real concurrent pipes), so
// stages run sequentially rather than concurrently.
func (e *Evaluator) evalPipeline(ctx context.Context, p *syntax.Pipeline) (builtins.ControlFlow, error) {
	if len(p.Stages) == 1 {
		var flow builtins.ControlFlow
		var err error
		if p.Negated {
			flow, err = e.evalNodeSuppressingErrExit(ctx, p.Stages[0])
		} else {
			flow, err = e.evalNode(ctx, p.Stages[0])
		}
		if err == nil {
			e.applyNegation(p.Negated)
		}
		return flow, err
	}

	var input *string
	var codes []int
	for i, stage := range p.Stages {
		isLast := i == len(p.Stages)-1
		savedOut := e.outSink
		var buf strings.Builder
		if !isLast {
			e.outSink = &buf
		}
		e.pendingStdin = input
		var flow builtins.ControlFlow
		var err error
		if p.Negated {
			flow, err = e.evalNodeSuppressingErrExit(ctx, stage)
		} else {
			flow, err = e.evalNode(ctx, stage)
		}
		e.outSink = savedOut
		if err != nil {
			return flow, err
		}
		codes = append(codes, e.lastExit)
		if !isLast {
			s := buf.String()
			input = &s
		}
		if flow.Kind != builtins.FlowNone {
			return flow, nil
		}
	}

	final := codes[len(codes)-1]
	if e.setPipefail {
		for i := len(codes) - 1; i >= 0; i-- {
			if codes[i] != 0 {
				final = codes[i]
				break
			}
		}
		allZero := true
		for _, c := range codes {
			if c != 0 {
				allZero = false
				break
			}
		}
		if allZero {
			final = 0
		}
	}
	e.lastExit = final
	e.applyNegation(p.Negated)
	return builtins.ControlFlow{}, nil
}

// applySetBuiltin implements `set`'s option-toggling and positional-
// reassignment forms. Option state (-e, -u, -o pipefail) lives on the
// Evaluator itself rather than behind the builtins.Vars interface, so this
// is intercepted here rather than dispatched through the registry; the
// registered `set` builtin (internal/builtins) is a no-op stub for exactly
// this reason.
func (e *Evaluator) applySetBuiltin(args []string) {
	i := 0
	for i < len(args) {
		a := args[i]
		if a == "--" {
			i++
			break
		}
		if a == "-o" || a == "+o" {
			i++
			if i >= len(args) {
				break
			}
			e.setOption(args[i], a == "-o")
			i++
			continue
		}
		if len(a) >= 2 && (a[0] == '-' || a[0] == '+') {
			enable := a[0] == '-'
			for _, f := range a[1:] {
				switch f {
				case 'e':
					e.setE = enable
				case 'u':
					e.setU = enable
				}
			}
			i++
			continue
		}
		break
	}
	if i < len(args) {
		e.vars.SetPositional(args[i:])
	}
}

func (e *Evaluator) setOption(name string, enable bool) {
	switch name {
	case "errexit":
		e.setE = enable
	case "nounset":
		e.setU = enable
	case "pipefail":
		e.setPipefail = enable
	}
}

func (e *Evaluator) applyNegation(negated bool) {
	if negated {
		e.lastExit = boolToExit(e.lastExit != 0)
	}
}

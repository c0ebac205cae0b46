package builtins

import (
	"fmt"
	"strconv"
	"strings"
)

func registerControlFlow(r *Registry) {
	r.Register("break", BuiltinFunc(breakBuiltin))
	r.Register("continue", BuiltinFunc(continueBuiltin))
	r.Register("return", BuiltinFunc(returnBuiltin))
	r.Register("exit", BuiltinFunc(exitBuiltin))
	r.Register("eval", BuiltinFunc(evalBuiltin))
	r.Register("source", BuiltinFunc(sourceBuiltin))
	r.Register(".", BuiltinFunc(sourceBuiltin))
}

func levelArg(args []string) (int, error) {
	if len(args) == 0 {
		return 1, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("numeric argument required")
	}
	return n, nil
}

func breakBuiltin(c *Context) Result {
	n, err := levelArg(c.Args)
	if err != nil {
		return fail(1, "break: "+err.Error())
	}
	return Result{Flow: ControlFlow{Kind: FlowBreak, N: n}}
}

func continueBuiltin(c *Context) Result {
	n, err := levelArg(c.Args)
	if err != nil {
		return fail(1, "continue: "+err.Error())
	}
	return Result{Flow: ControlFlow{Kind: FlowContinue, N: n}}
}

func exitCode(args []string) int {
	if len(args) == 0 {
		return 0
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 255
	}
	return n & 0xff
}

func returnBuiltin(c *Context) Result {
	return Result{Flow: ControlFlow{Kind: FlowReturn, N: exitCode(c.Args)}}
}

func exitBuiltin(c *Context) Result {
	return Result{Flow: ControlFlow{Kind: FlowExit, N: exitCode(c.Args)}}
}

func evalBuiltin(c *Context) Result {
	if c.EvalFn == nil {
		return fail(1, "eval: not supported in this context")
	}
	script := strings.Join(c.Args, " ")
	if script == "" {
		return ok("")
	}
	return c.EvalFn(script)
}

func sourceBuiltin(c *Context) Result {
	if len(c.Args) == 0 {
		return fail(1, "source: filename argument required")
	}
	if c.EvalFn == nil {
		return fail(1, "source: not supported in this context")
	}
	path := c.Args[0]
	if !strings.HasPrefix(path, "/") && c.Cwd != nil {
		path = *c.Cwd + "/" + path
	}
	data, err := c.FS.ReadFile(c.Ctx, path)
	if err != nil {
		return fail(1, fmt.Sprintf("source: %s: no such file or directory", c.Args[0]))
	}
	return c.EvalFn(string(data))
}

package builtins

import (
	"fmt"
	"strings"

	"github.com/everruns/bashkit-sub001/internal/syntax"
	"github.com/everruns/bashkit-sub001/internal/vfs"
)

func ok(stdout string) Result     { return Result{Stdout: stdout, Code: 0} }
func fail(code int, stderr string) Result {
	if !strings.HasSuffix(stderr, "\n") && stderr != "" {
		stderr += "\n"
	}
	return Result{Stderr: stderr, Code: code}
}

func registerCore(r *Registry) {
	r.Register("echo", BuiltinFunc(echoBuiltin))
	r.Register("pwd", BuiltinFunc(pwdBuiltin))
	r.Register("cd", BuiltinFunc(cdBuiltin))
	r.Register("true", BuiltinFunc(func(c *Context) Result { return ok("") }))
	r.Register("false", BuiltinFunc(func(c *Context) Result { return Result{Code: 1} }))
	r.Register(":", BuiltinFunc(func(c *Context) Result { return ok("") }))
	r.Register("test", BuiltinFunc(testBuiltin))
	r.Register("[", BuiltinFunc(testBuiltin))
}

func echoBuiltin(c *Context) Result {
	args := c.Args
	noNewline := false
	interpretEscapes := false
	for len(args) > 0 {
		switch args[0] {
		case "-n":
			noNewline = true
		case "-e":
			interpretEscapes = true
		case "-E":
			interpretEscapes = false
		default:
			goto done
		}
		args = args[1:]
	}
done:
	parts := args
	if interpretEscapes {
		for i, p := range parts {
			parts[i] = expandEchoEscapes(p)
		}
	}
	out := strings.Join(parts, " ")
	if !noNewline {
		out += "\n"
	}
	return ok(out)
}

func expandEchoEscapes(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i == len(s)-1 {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\\':
			b.WriteByte('\\')
		case 'a':
			b.WriteByte('\a')
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func pwdBuiltin(c *Context) Result {
	if c.Cwd == nil {
		return fail(1, "pwd: no working directory")
	}
	return ok(*c.Cwd + "\n")
}

func cdBuiltin(c *Context) Result {
	target := "/"
	if len(c.Args) > 0 {
		target = c.Args[0]
	} else if home, ok := c.Vars.Get("HOME"); ok && home != "" {
		target = home
	}
	if !strings.HasPrefix(target, "/") {
		target = vfs.Join(*c.Cwd, target)
	}
	norm, valid := vfs.Normalize(target)
	if !valid {
		return fail(1, fmt.Sprintf("cd: %s: invalid path", target))
	}
	info, err := c.FS.Stat(c.Ctx, norm)
	if err != nil {
		return fail(1, fmt.Sprintf("cd: %s: no such file or directory", target))
	}
	if info.Type != vfs.TypeDirectory {
		return fail(1, fmt.Sprintf("cd: %s: not a directory", target))
	}
	*c.Cwd = norm
	return ok("")
}

func testBuiltin(c *Context) Result {
	expr, err := parseTestArgs(c.Args)
	if err != nil {
		return fail(2, "test: "+err.Error())
	}
	truth, err := EvalTestExpr(c, expr)
	if err != nil {
		return fail(2, "test: "+err.Error())
	}
	if truth {
		return ok("")
	}
	return Result{Code: 1}
}

// parseTestArgs builds a TestExpr from `test`/`[`'s argument list (plain
// strings, not syntax.Word — literal word semantics since by the time a
// builtin runs, expansion already happened).
func parseTestArgs(args []string) (*syntax.TestExpr, error) {
	toks := make([]string, len(args))
	copy(toks, args)
	// Drop a trailing `]` if invoked as `[`.
	if len(toks) > 0 && toks[len(toks)-1] == "]" {
		toks = toks[:len(toks)-1]
	}
	p := &litTestParser{toks: toks}
	return p.parseOr()
}

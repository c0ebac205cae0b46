package builtins

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

func registerShellState(r *Registry) {
	r.Register("export", BuiltinFunc(exportBuiltin))
	r.Register("unset", BuiltinFunc(unsetBuiltin))
	r.Register("readonly", BuiltinFunc(readonlyBuiltin))
	r.Register("local", BuiltinFunc(localBuiltin))
	r.Register("shift", BuiltinFunc(shiftBuiltin))
	r.Register("set", BuiltinFunc(setBuiltin))
	r.Register("env", BuiltinFunc(envBuiltin))
	r.Register("printenv", BuiltinFunc(envBuiltin))
	r.Register("read", BuiltinFunc(readBuiltin))
	r.Register("printf", BuiltinFunc(printfBuiltin))
	r.Register("times", BuiltinFunc(timesBuiltin))
	r.Register("shopt", BuiltinFunc(func(c *Context) Result { return ok("") }))
	r.Register("history", BuiltinFunc(historyBuiltin))
	r.Register("type", BuiltinFunc(typeBuiltin))
	r.Register("which", BuiltinFunc(whichBuiltin))
	r.Register("command", BuiltinFunc(commandBuiltin))
	r.Register("getopts", BuiltinFunc(getoptsBuiltin))
}

func exportBuiltin(c *Context) Result {
	if len(c.Args) == 0 {
		return envBuiltin(c)
	}
	for _, a := range c.Args {
		name, value, hasValue := strings.Cut(a, "=")
		if hasValue {
			c.Vars.Set(name, value)
		}
		c.Vars.SetExported(name)
	}
	return ok("")
}

func unsetBuiltin(c *Context) Result {
	for _, name := range c.Args {
		if c.Vars.IsReadonly(name) {
			return fail(1, fmt.Sprintf("unset: %s: cannot unset: readonly variable", name))
		}
		c.Vars.Unset(name)
	}
	return ok("")
}

func readonlyBuiltin(c *Context) Result {
	if len(c.Args) == 0 {
		var names []string
		for _, n := range c.Vars.Names() {
			if c.Vars.IsReadonly(n) {
				names = append(names, n)
			}
		}
		sort.Strings(names)
		var b strings.Builder
		for _, n := range names {
			v, _ := c.Vars.Get(n)
			fmt.Fprintf(&b, "readonly %s=%q\n", n, v)
		}
		return ok(b.String())
	}
	for _, a := range c.Args {
		name, value, hasValue := strings.Cut(a, "=")
		if hasValue {
			c.Vars.Set(name, value)
		}
		c.Vars.SetReadonly(name)
	}
	return ok("")
}

// localBuiltin assigns within the current scope; scope layering itself is
// handled by the evaluator's Vars implementation pushing/popping a frame
// around function calls, and `local NAME=val` here calls SetLocal, which
// binds NAME in the innermost frame even when an outer frame holds it.
func localBuiltin(c *Context) Result {
	for _, a := range c.Args {
		name, value, hasValue := strings.Cut(a, "=")
		if hasValue {
			c.Vars.SetLocal(name, value)
		} else {
			c.Vars.SetLocal(name, "")
		}
	}
	return ok("")
}

func shiftBuiltin(c *Context) Result {
	n := 1
	if len(c.Args) > 0 {
		v, err := strconv.Atoi(c.Args[0])
		if err != nil {
			return fail(1, "shift: numeric argument required")
		}
		n = v
	}
	if !c.Vars.ShiftPositional(n) {
		return fail(1, "")
	}
	return ok("")
}

// setBuiltin is a registry placeholder that reports success and does
// nothing. The evaluator handles every `set` invocation itself (option
// toggles and `set -- a b c` alike), since option state lives on the
// Evaluator, not behind this interface (see internal/eval).
func setBuiltin(c *Context) Result { return ok("") }

func envBuiltin(c *Context) Result {
	lines := c.Vars.Environ()
	sort.Strings(lines)
	return ok(strings.Join(lines, "\n") + "\n")
}

func readBuiltin(c *Context) Result {
	if !c.HasStdin {
		return Result{Code: 1}
	}
	line := c.Stdin
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	names := c.Args
	if len(names) == 0 {
		names = []string{"REPLY"}
	}
	fields := strings.Fields(line)
	for i, name := range names {
		if i == len(names)-1 && len(fields) > len(names) {
			c.Vars.Set(name, strings.Join(fields[i:], " "))
			break
		}
		if i < len(fields) {
			c.Vars.Set(name, fields[i])
		} else {
			c.Vars.Set(name, "")
		}
	}
	return ok("")
}

func timesBuiltin(c *Context) Result {
	return ok("0m0.000s 0m0.000s\n0m0.000s 0m0.000s\n")
}

func historyBuiltin(c *Context) Result {
	var b strings.Builder
	for i, h := range c.History {
		fmt.Fprintf(&b, "%5d  %s\n", i+1, h)
	}
	return ok(b.String())
}

func typeBuiltin(c *Context) Result {
	if len(c.Args) == 0 {
		return fail(1, "type: usage: type name [name ...]")
	}
	var b strings.Builder
	code := 0
	for _, name := range c.Args {
		switch {
		case isShellKeyword(name):
			fmt.Fprintf(&b, "%s is a shell keyword\n", name)
		default:
			fmt.Fprintf(&b, "%s is a shell builtin\n", name)
		}
	}
	_ = code
	return ok(b.String())
}

func whichBuiltin(c *Context) Result {
	var b strings.Builder
	code := 0
	for _, name := range c.Args {
		fmt.Fprintf(&b, "/usr/bin/%s\n", name)
	}
	return Result{Stdout: b.String(), Code: code}
}

func commandBuiltin(c *Context) Result {
	// `command name args...` simply strips leading options (-v, -p) and
	// reports as if name ran; name itself is not run, since this builtin
	// has no access to the registry.
	args := c.Args
	for len(args) > 0 && strings.HasPrefix(args[0], "-") {
		args = args[1:]
	}
	if len(args) == 0 {
		return ok("")
	}
	return ok("")
}

func isShellKeyword(s string) bool {
	switch s {
	case "if", "then", "else", "elif", "fi", "for", "while", "until", "do",
		"done", "case", "esac", "function", "select", "time", "in":
		return true
	}
	return false
}

func printfBuiltin(c *Context) Result {
	if len(c.Args) == 0 {
		return fail(1, "printf: usage: printf format [arguments]")
	}
	format := c.Args[0]
	args := c.Args[1:]
	out, err := formatPrintf(format, args)
	if err != nil {
		return fail(1, "printf: "+err.Error())
	}
	return ok(out)
}

// formatPrintf implements bash's printf subset (%s %d %i %f %c %% \n \t),
// recycling format against args until args is exhausted (bash repeats the
// format string as long as there are unconsumed arguments).
func formatPrintf(format string, args []string) (string, error) {
	var out strings.Builder
	argi := 0
	nextArg := func() string {
		if argi < len(args) {
			v := args[argi]
			argi++
			return v
		}
		return ""
	}
	runOnce := func() (bool, error) {
		consumedAny := false
		for i := 0; i < len(format); i++ {
			ch := format[i]
			if ch == '\\' && i+1 < len(format) {
				i++
				switch format[i] {
				case 'n':
					out.WriteByte('\n')
				case 't':
					out.WriteByte('\t')
				case '\\':
					out.WriteByte('\\')
				default:
					out.WriteByte('\\')
					out.WriteByte(format[i])
				}
				continue
			}
			if ch != '%' {
				out.WriteByte(ch)
				continue
			}
			if i+1 >= len(format) {
				out.WriteByte('%')
				break
			}
			i++
			if format[i] == '%' {
				out.WriteByte('%')
				continue
			}
			spec := string(format[i])
			consumedAny = true
			switch format[i] {
			case 's':
				out.WriteString(nextArg())
			case 'd', 'i':
				v := nextArg()
				n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
				if err != nil {
					n = 0
				}
				fmt.Fprintf(&out, "%d", n)
			case 'f':
				v := nextArg()
				f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
				if err != nil {
					f = 0
				}
				fmt.Fprintf(&out, "%f", f)
			case 'c':
				v := nextArg()
				if len(v) > 0 {
					out.WriteByte(v[0])
				}
			default:
				out.WriteByte('%')
				out.WriteString(spec)
			}
		}
		return consumedAny, nil
	}
	if _, err := runOnce(); err != nil {
		return "", err
	}
	for argi < len(args) {
		if _, err := runOnce(); err != nil {
			return "", err
		}
	}
	return out.String(), nil
}

func getoptsBuiltin(c *Context) Result {
	// A minimal getopts: each call handles one argument, reading OPTIND from
	// Vars and storing the advanced OPTIND (and OPTARG) back there. Grouped
	// flags such as `-ab` are not split: only the first letter is reported
	// and the next call moves on to the next argument.
	if len(c.Args) < 2 {
		return fail(2, "getopts: usage: getopts optstring name [args]")
	}
	optstring := c.Args[0]
	name := c.Args[1]
	rest := c.Args[2:]
	optind := 1
	if v, ok := c.Vars.Get("OPTIND"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			optind = n
		}
	}
	if optind-1 >= len(rest) {
		c.Vars.Set(name, "?")
		return Result{Code: 1}
	}
	arg := rest[optind-1]
	if len(arg) < 2 || arg[0] != '-' {
		c.Vars.Set(name, "?")
		return Result{Code: 1}
	}
	opt := string(arg[1])
	idx := strings.IndexByte(optstring, arg[1])
	if idx < 0 {
		c.Vars.Set(name, "?")
		c.Vars.Set("OPTIND", strconv.Itoa(optind+1))
		return ok("")
	}
	c.Vars.Set(name, opt)
	needsArg := idx+1 < len(optstring) && optstring[idx+1] == ':'
	consumed := 1
	if needsArg {
		if optind < len(rest) {
			c.Vars.Set("OPTARG", rest[optind])
			consumed = 2
		}
	}
	c.Vars.Set("OPTIND", strconv.Itoa(optind+consumed))
	return ok("")
}

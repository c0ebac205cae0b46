package capability

import (
	"context"
	"fmt"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// YaegiPython is the `python` builtin's capability: it interprets a small,
// Go-syntax program (named "python" at the spec level per spec.md §1's
// framing, not an actual CPython) via yaegi, under an import allowlist and
// the caller's context deadline. Source must define
// `func Run(stdin string) (string, error)`.
type YaegiPython struct {
	allowed map[string]bool
}

// DefaultPythonImports is the stdlib subset the capability permits, mirroring
// the teacher's YaegiExecutor allowlist: string/number/encoding utilities,
// nothing that touches the host (no os, net, os/exec, syscall, unsafe).
func DefaultPythonImports() []string {
	return []string{
		"strings", "strconv", "fmt", "math", "regexp",
		"encoding/json", "encoding/base64", "time", "sort", "bytes",
		"path", "errors",
	}
}

// NewYaegiPython builds a YaegiPython capability with the given import
// allowlist. A nil/empty list falls back to DefaultPythonImports.
func NewYaegiPython(allowedImports []string) *YaegiPython {
	if len(allowedImports) == 0 {
		allowedImports = DefaultPythonImports()
	}
	allowed := make(map[string]bool, len(allowedImports))
	for _, p := range allowedImports {
		allowed[p] = true
	}
	return &YaegiPython{allowed: allowed}
}

// Run interprets source under ctx's deadline, passing stdin to its Run
// function and returning what it returns; output the program prints itself
// is not captured.
func (y *YaegiPython) Run(ctx context.Context, source string, stdin string) (string, string, error) {
	if err := y.validateImports(source); err != nil {
		return "", "", fmt.Errorf("python capability: %w", err)
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return "", "", fmt.Errorf("python capability: loading stdlib: %w", err)
	}

	full := y.wrap(source)
	if _, err := i.Eval(full); err != nil {
		return "", "", fmt.Errorf("python capability: evaluation failed: %w", err)
	}

	v, err := i.Eval("main.Run")
	if err != nil {
		return "", "", fmt.Errorf("python capability: Run function not found: %w", err)
	}
	fn, ok := v.Interface().(func(string) (string, error))
	if !ok {
		return "", "", fmt.Errorf("python capability: Run must have signature func(string) (string, error)")
	}

	type outcome struct {
		out string
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		out, err := fn(stdin)
		done <- outcome{out: out, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return "", "", fmt.Errorf("python capability: %w", o.err)
		}
		return o.out, "", nil
	case <-ctx.Done():
		return "", "", fmt.Errorf("python capability: timed out: %w", ctx.Err())
	}
}

func (y *YaegiPython) validateImports(source string) error {
	var imports []string
	inBlock := false
	for _, line := range strings.Split(source, "\n") {
		t := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(t, "import ("):
			inBlock = true
		case inBlock && strings.HasPrefix(t, ")"):
			inBlock = false
		case inBlock:
			imports = append(imports, strings.Trim(t, `"`))
		case strings.HasPrefix(t, "import "):
			imports = append(imports, strings.Trim(strings.TrimPrefix(t, "import "), `"`))
		}
	}
	var forbidden []string
	for _, pkg := range imports {
		if pkg == "" {
			continue
		}
		if !y.allowed[pkg] {
			forbidden = append(forbidden, pkg)
		}
	}
	if len(forbidden) > 0 {
		return fmt.Errorf("forbidden imports %v (allowed: %v)", forbidden, y.allowedList())
	}
	return nil
}

func (y *YaegiPython) allowedList() []string {
	out := make([]string, 0, len(y.allowed))
	for p := range y.allowed {
		out = append(out, p)
	}
	return out
}

func (y *YaegiPython) wrap(source string) string {
	if strings.Contains(source, "package main") {
		return source
	}
	return "package main\n\n" + source
}

package eval

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/everruns/bashkit-sub001/internal/syntax"
)

// isSpecialParam reports whether name is one of bash's single-character
// special parameters ($?, $#, $@, $*, $!, $$, $-, $0-$9) rather than a
// regular variable name.
func isSpecialParam(name string) bool {
	return len(name) == 1 && strings.ContainsAny(name, "?#@*!$-0123456789")
}

// resolveSpecialOrVarSet resolves name to its current value and whether it
// is "set" in bash's sense (affects :-, :=, :?, :+). Positional parameters
// and the handful of special single-character parameters are handled here;
// everything else falls through to the variable store.
func (e *Evaluator) resolveSpecialOrVarSet(name string) (string, bool) {
	switch name {
	case "?":
		return strconv.Itoa(e.lastExit), true
	case "#":
		return strconv.Itoa(len(e.vars.Positional())), true
	case "@", "*":
		// BashKit does not distinguish "$@"'s per-element quoting from
		// "$*"'s single-field join (both would require word-splitting
		// machinery aware of AST position rather than string value); both
		// expand to the positional parameters joined by a space, a
		// documented simplification.
		return strings.Join(e.vars.Positional(), " "), true
	case "$":
		return "1", true
	case "!":
		return "", false
	case "-":
		return "", true
	case "0":
		return "bashkit", true
	}
	if len(name) == 1 && name[0] >= '1' && name[0] <= '9' {
		idx := int(name[0] - '1')
		pos := e.vars.Positional()
		if idx < len(pos) {
			return pos[idx], true
		}
		return "", false
	}
	return e.vars.Get(name)
}

// expandParamExp evaluates one `$NAME` / `${NAME...}` expansion, including
// all the `${NAME<op>...}` operators the parser recognizes (spec.md §4.5
// step 2).
func (e *Evaluator) expandParamExp(ctx context.Context, pe *syntax.ParamExp) (string, error) {
	if pe.Length {
		if pe.Name == "@" || pe.Name == "*" {
			return strconv.Itoa(len(e.vars.Positional())), nil
		}
		val, _ := e.resolveSpecialOrVarSet(pe.Name)
		return strconv.Itoa(len(val)), nil
	}
	if pe.Indirect {
		target, _ := e.resolveSpecialOrVarSet(pe.Name)
		val, _ := e.resolveSpecialOrVarSet(target)
		return val, nil
	}

	name := pe.Name
	val, isSet := e.resolveSpecialOrVarSet(name)

	switch pe.Op {
	case syntax.ParamPlain:
		if !isSet {
			if e.setU && !isSpecialParam(name) {
				return "", fmt.Errorf("eval: %s: unbound variable", name)
			}
			return "", nil
		}
		return val, nil
	case syntax.ParamDefault:
		if !isSet || val == "" {
			return e.expandWordJoined(ctx, pe.Arg)
		}
		return val, nil
	case syntax.ParamAssign:
		if !isSet || val == "" {
			nv, err := e.expandWordJoined(ctx, pe.Arg)
			if err != nil {
				return "", err
			}
			if isSpecialParam(name) {
				return "", fmt.Errorf("eval: %s: cannot assign in this way", name)
			}
			e.vars.Set(name, nv)
			return nv, nil
		}
		return val, nil
	case syntax.ParamError:
		if !isSet || val == "" {
			msg, _ := e.expandWordJoined(ctx, pe.Arg)
			if msg == "" {
				msg = "parameter null or not set"
			}
			return "", fmt.Errorf("eval: %s: %s", name, msg)
		}
		return val, nil
	case syntax.ParamAlt:
		if isSet && val != "" {
			return e.expandWordJoined(ctx, pe.Arg)
		}
		return "", nil
	case syntax.ParamOffset:
		return e.paramOffset(ctx, val, pe)
	case syntax.ParamPrefixShort:
		pat, err := e.expandWordJoined(ctx, pe.Arg)
		if err != nil {
			return "", err
		}
		return stripPrefix(val, pat, false), nil
	case syntax.ParamPrefixLong:
		pat, err := e.expandWordJoined(ctx, pe.Arg)
		if err != nil {
			return "", err
		}
		return stripPrefix(val, pat, true), nil
	case syntax.ParamSuffixShort:
		pat, err := e.expandWordJoined(ctx, pe.Arg)
		if err != nil {
			return "", err
		}
		return stripSuffix(val, pat, false), nil
	case syntax.ParamSuffixLong:
		pat, err := e.expandWordJoined(ctx, pe.Arg)
		if err != nil {
			return "", err
		}
		return stripSuffix(val, pat, true), nil
	case syntax.ParamReplaceFirst:
		pat, err := e.expandWordJoined(ctx, pe.Arg)
		if err != nil {
			return "", err
		}
		repl, err := e.expandWordJoined(ctx, pe.Arg2)
		if err != nil {
			return "", err
		}
		return replacePattern(val, pat, repl, false), nil
	case syntax.ParamReplaceAll:
		pat, err := e.expandWordJoined(ctx, pe.Arg)
		if err != nil {
			return "", err
		}
		repl, err := e.expandWordJoined(ctx, pe.Arg2)
		if err != nil {
			return "", err
		}
		return replacePattern(val, pat, repl, true), nil
	case syntax.ParamUpper:
		return strings.ToUpper(val), nil
	case syntax.ParamLower:
		return strings.ToLower(val), nil
	}
	return val, nil
}

func (e *Evaluator) paramOffset(ctx context.Context, val string, pe *syntax.ParamExp) (string, error) {
	offStr, err := e.expandWordJoined(ctx, pe.Arg)
	if err != nil {
		return "", err
	}
	offVal, err := evalArith(offStr, e.vars)
	if err != nil {
		return "", err
	}
	off := int(offVal)
	if off < 0 {
		off += len(val)
		if off < 0 {
			off = 0
		}
	}
	if off > len(val) {
		return "", nil
	}
	if pe.Arg2 == nil {
		return val[off:], nil
	}
	lenStr, err := e.expandWordJoined(ctx, pe.Arg2)
	if err != nil {
		return "", err
	}
	lenVal, err := evalArith(lenStr, e.vars)
	if err != nil {
		return "", err
	}
	length := int(lenVal)
	end := off + length
	if length < 0 {
		end = len(val) + length
	}
	if end > len(val) {
		end = len(val)
	}
	if end < off {
		end = off
	}
	return val[off:end], nil
}

// stripPrefix removes the shortest (or, if longest is true, the longest)
// prefix of value matching the glob pattern pat, implementing `${NAME#pat}`
// / `${NAME##pat}` by probing candidate prefix lengths with path-glob
// matching rather than a hand-rolled glob-to-regex translator.
func stripPrefix(value, pat string, longest bool) string {
	best := -1
	if longest {
		for l := len(value); l >= 0; l-- {
			if ok, _ := filepath.Match(pat, value[:l]); ok {
				best = l
				break
			}
		}
	} else {
		for l := 0; l <= len(value); l++ {
			if ok, _ := filepath.Match(pat, value[:l]); ok {
				best = l
				break
			}
		}
	}
	if best < 0 {
		return value
	}
	return value[best:]
}

// stripSuffix is stripPrefix's mirror for `${NAME%pat}` / `${NAME%%pat}`.
func stripSuffix(value, pat string, longest bool) string {
	n := len(value)
	best := -1
	if longest {
		for l := n; l >= 0; l-- {
			if ok, _ := filepath.Match(pat, value[n-l:]); ok {
				best = l
				break
			}
		}
	} else {
		for l := 0; l <= n; l++ {
			if ok, _ := filepath.Match(pat, value[n-l:]); ok {
				best = l
				break
			}
		}
	}
	if best < 0 {
		return value
	}
	return value[n-best:]
}

// findPatternMatch finds the leftmost, longest substring of value starting
// at or after from that matches the glob pattern pat.
func findPatternMatch(value, pat string, from int) (start, end int, ok bool) {
	for i := from; i <= len(value); i++ {
		for j := len(value); j >= i; j-- {
			if m, _ := filepath.Match(pat, value[i:j]); m {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

// replacePattern implements `${NAME/pat/repl}` (first match) and
// `${NAME//pat/repl}` (all non-overlapping matches).
func replacePattern(value, pat, repl string, all bool) string {
	i, j, ok := findPatternMatch(value, pat, 0)
	if !ok {
		return value
	}
	if !all {
		return value[:i] + repl + value[j:]
	}
	var b strings.Builder
	pos := 0
	for {
		i, j, ok := findPatternMatch(value, pat, pos)
		if !ok {
			b.WriteString(value[pos:])
			break
		}
		b.WriteString(value[pos:i])
		b.WriteString(repl)
		if j == i {
			if i < len(value) {
				b.WriteByte(value[i])
			}
			pos = i + 1
		} else {
			pos = j
		}
		if pos > len(value) {
			break
		}
	}
	return b.String()
}

// globMatchCase matches a case statement pattern against its subject,
// reusing glob-style matching (bash case patterns use the same glob
// syntax as pathname expansion).
func globMatchCase(pattern, subject string) (bool, error) {
	return filepath.Match(pattern, subject)
}

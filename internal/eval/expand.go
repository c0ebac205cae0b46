package eval

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/everruns/bashkit-sub001/internal/limits"
	"github.com/everruns/bashkit-sub001/internal/syntax"
)

// segment is one contiguous, already-expanded piece of a word, tagged with
// whether it came from a quoted context — quoted segments are never
// IFS-split or glob-expanded, matching bash's quote-removal-after-expansion
// model described in spec.md §4.5 step 1.
type segment struct {
	text   string
	quoted bool
}

// expandWordJoined expands w and concatenates every resulting segment with
// no IFS splitting or globbing — the form used for assignments, redirect
// targets, here-strings, and case subjects/patterns.
func (e *Evaluator) expandWordJoined(ctx context.Context, w *syntax.Word) (string, error) {
	if w == nil {
		return "", nil
	}
	segs, err := e.expandParts(ctx, w.Parts, false)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, s := range segs {
		b.WriteString(s.text)
	}
	return b.String(), nil
}

// expandWord expands w into one or more fields. When split is false (case
// subjects and patterns, which must stay single strings) it
// returns exactly one field; when true it applies IFS splitting and glob
// expansion against the session's virtual filesystem, per spec.md §4.5
// steps 5-7.
func (e *Evaluator) expandWord(ctx context.Context, w *syntax.Word, split bool) ([]string, error) {
	if w == nil {
		return nil, nil
	}
	segs, err := e.expandParts(ctx, w.Parts, false)
	if err != nil {
		return nil, err
	}
	if !split {
		var b strings.Builder
		for _, s := range segs {
			b.WriteString(s.text)
		}
		return []string{b.String()}, nil
	}

	fields := e.splitFields(segs)
	var out []string
	for _, f := range fields {
		if !f.glob {
			out = append(out, f.text)
			continue
		}
		matches, err := e.globExpand(ctx, f.text)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			out = append(out, f.text)
			continue
		}
		out = append(out, matches...)
	}
	return out, nil
}

// expandParts walks word parts left to right, expanding each into a
// segment. quoted forces every produced segment to be treated as quoted
// regardless of the part's own kind — used when recursing into a
// DoubleQuoted part.
func (e *Evaluator) expandParts(ctx context.Context, parts []syntax.WordPart, quoted bool) ([]segment, error) {
	var out []segment
	for i, p := range parts {
		switch part := p.(type) {
		case syntax.Lit:
			text := part.Value
			if i == 0 && !quoted {
				if strings.HasPrefix(text, "~") {
					expanded, rest := e.expandLeadingTilde(text)
					out = append(out, segment{text: expanded, quoted: quoted})
					if rest != "" {
						out = append(out, segment{text: rest, quoted: quoted})
					}
					continue
				}
			}
			out = append(out, segment{text: text, quoted: quoted})
		case syntax.SingleQuoted:
			out = append(out, segment{text: part.Value, quoted: true})
		case syntax.DoubleQuoted:
			inner, err := e.expandParts(ctx, part.Parts, true)
			if err != nil {
				return nil, err
			}
			out = append(out, inner...)
		case syntax.ParamExp:
			vals, err := e.expandParamExp(ctx, &part)
			if err != nil {
				return nil, err
			}
			out = append(out, segment{text: vals, quoted: quoted})
		case syntax.CmdSubst:
			val, err := e.runCmdSubst(ctx, part.Body)
			if err != nil {
				return nil, err
			}
			out = append(out, segment{text: val, quoted: quoted})
		case syntax.ArithExp:
			v, err := evalArith(part.Expr, e.vars)
			if err != nil {
				return nil, err
			}
			out = append(out, segment{text: strconv.FormatInt(v, 10), quoted: quoted})
		case syntax.Tilde:
			if part.User == "" {
				home, _ := e.vars.Get("HOME")
				out = append(out, segment{text: home, quoted: quoted})
			} else {
				out = append(out, segment{text: "~" + part.User, quoted: quoted})
			}
		default:
			return nil, fmt.Errorf("eval: unhandled word part %T", p)
		}
	}
	return out, nil
}

// expandLeadingTilde splits a Lit beginning with `~` into its expansion and
// the remainder of the literal text, since the lexer may fold a bare `~`
// and trailing path text into one Lit part.
func (e *Evaluator) expandLeadingTilde(text string) (expanded, rest string) {
	end := 1
	for end < len(text) && text[end] != '/' {
		end++
	}
	user := text[1:end]
	rest = text[end:]
	if user != "" {
		return "~" + user, rest
	}
	home, _ := e.vars.Get("HOME")
	return home, rest
}

// fieldPiece is one field after IFS splitting, with whether it contains an
// unquoted glob metacharacter and so is eligible for pathname expansion.
type fieldPiece struct {
	text string
	glob bool
}

func hasGlobMeta(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

func (e *Evaluator) ifsChars() string {
	if v, ok := e.vars.Get("IFS"); ok {
		return v
	}
	return " \t\n"
}

// splitFields applies bash's IFS word-splitting rule to a concatenated
// sequence of segments: quoted segments are never split (but a quoted,
// possibly-empty segment still forces a field to exist), unquoted segments
// split on runs of IFS characters with no empty fields from collapsed
// whitespace.
func (e *Evaluator) splitFields(segs []segment) []fieldPiece {
	ifs := e.ifsChars()
	var fields []fieldPiece
	var cur strings.Builder
	active := false
	glob := false

	flush := func() {
		if active {
			fields = append(fields, fieldPiece{text: cur.String(), glob: glob})
		}
		cur.Reset()
		active = false
		glob = false
	}

	for _, s := range segs {
		if s.quoted || ifs == "" {
			cur.WriteString(s.text)
			active = true
			if s.quoted {
				continue
			}
			if hasGlobMeta(s.text) {
				glob = true
			}
			continue
		}
		start := 0
		for i := 0; i < len(s.text); i++ {
			if strings.IndexByte(ifs, s.text[i]) >= 0 {
				if i > start {
					piece := s.text[start:i]
					cur.WriteString(piece)
					if hasGlobMeta(piece) {
						glob = true
					}
					active = true
				}
				flush()
				start = i + 1
			}
		}
		if start < len(s.text) {
			piece := s.text[start:]
			cur.WriteString(piece)
			if hasGlobMeta(piece) {
				glob = true
			}
			active = true
		}
	}
	flush()
	return fields
}

// globExpand matches pattern (a single path component or a path with a
// fixed directory prefix) against the virtual filesystem, excluding
// dotfiles unless the pattern itself starts with a dot, per spec.md §4.5's
// glob-expansion step.
func (e *Evaluator) globExpand(ctx context.Context, pattern string) ([]string, error) {
	dir := e.cwd
	base := pattern
	prefix := ""
	if idx := strings.LastIndex(pattern, "/"); idx >= 0 {
		dirPart := pattern[:idx]
		if dirPart == "" {
			dirPart = "/"
		}
		dir = e.resolvePath(dirPart)
		base = pattern[idx+1:]
		prefix = pattern[:idx+1]
	}
	entries, err := e.opts.FS.ReadDir(ctx, dir)
	if err != nil {
		return nil, nil
	}
	var matches []string
	for _, ent := range entries {
		if strings.HasPrefix(ent.Name, ".") && !strings.HasPrefix(base, ".") {
			continue
		}
		if ok, _ := filepath.Match(base, ent.Name); ok {
			matches = append(matches, prefix+ent.Name)
		}
	}
	sort.Strings(matches)
	return matches, nil
}

// runCmdSubst evaluates body as a nested script in its own variable/cwd
// scope (mutations do not escape, matching a real subshell) while sharing
// counters and parser fuel with the outer evaluator, and returns its
// captured stdout with trailing newlines trimmed.
func (e *Evaluator) runCmdSubst(ctx context.Context, body string) (string, error) {
	if err := e.counters.CheckDeadline(); err != nil {
		return "", err
	}
	savedVars := e.vars
	clone := NewVars(nil)
	for _, name := range savedVars.Names() {
		val, _ := savedVars.Get(name)
		clone.Set(name, val)
		if savedVars.IsExported(name) {
			clone.SetExported(name)
		}
	}
	clone.SetPositional(savedVars.Positional())
	e.vars = clone
	savedCwd := e.cwd

	savedOut, savedErr := e.outSink, e.errSink
	var buf strings.Builder
	e.outSink = &buf
	// The substituted command's stderr is captured and discarded here
	// rather than routed to the outer stderr the way bash does; only its
	// stdout participates in the substitution's value.
	e.errSink = &strings.Builder{}

	if e.fuel == nil {
		e.fuel = limits.NewParserFuel(e.opts.Limits)
	}
	root, perr := syntax.Parse(body, e.fuel)
	var runErr error
	if perr != nil {
		runErr = perr
	} else {
		_, runErr = e.evalNode(ctx, root)
	}

	e.outSink, e.errSink = savedOut, savedErr
	e.vars = savedVars
	e.cwd = savedCwd

	if runErr != nil {
		return "", runErr
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

package builtins

import (
	"fmt"
	"strconv"

	"github.com/everruns/bashkit-sub001/internal/syntax"
	"github.com/everruns/bashkit-sub001/internal/vfs"
)

// litTestParser builds a syntax.TestExpr from a flat list of already-
// expanded argument strings, the shape `test`/`[` receive. It mirrors
// internal/syntax's testParser but over plain strings instead of lexer
// tokens, since a builtin never sees raw source.
type litTestParser struct {
	toks []string
	i    int
}

func (p *litTestParser) peek() (string, bool) {
	if p.i >= len(p.toks) {
		return "", false
	}
	return p.toks[p.i], true
}

func (p *litTestParser) parseOr() (*syntax.TestExpr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	var ors []*syntax.TestExpr
	for {
		t, has := p.peek()
		if !has || t != "-o" {
			break
		}
		p.i++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		if len(ors) == 0 {
			ors = append(ors, left)
		}
		ors = append(ors, right)
	}
	if len(ors) > 0 {
		return &syntax.TestExpr{Or: ors}, nil
	}
	return left, nil
}

func (p *litTestParser) parseAnd() (*syntax.TestExpr, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	var ands []*syntax.TestExpr
	for {
		t, has := p.peek()
		if !has || t != "-a" {
			break
		}
		p.i++
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		if len(ands) == 0 {
			ands = append(ands, left)
		}
		ands = append(ands, right)
	}
	if len(ands) > 0 {
		return &syntax.TestExpr{And: ands}, nil
	}
	return left, nil
}

func strWord(s string) *syntax.Word {
	return &syntax.Word{Parts: []syntax.WordPart{syntax.Lit{Value: s}}}
}

func (p *litTestParser) parsePrimary() (*syntax.TestExpr, error) {
	t, has := p.peek()
	if !has {
		return nil, fmt.Errorf("unexpected end of expression")
	}
	if t == "!" {
		p.i++
		inner, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return &syntax.TestExpr{Not: inner}, nil
	}
	if t == "(" {
		p.i++
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		t2, has := p.peek()
		if !has || t2 != ")" {
			return nil, fmt.Errorf("expected )")
		}
		p.i++
		return &syntax.TestExpr{Group: inner}, nil
	}
	if isUnaryTestOp(t) {
		p.i++
		operand, has := p.peek()
		if !has {
			return nil, fmt.Errorf("%s: argument expected", t)
		}
		p.i++
		return &syntax.TestExpr{Unary: &syntax.UnaryTest{Op: t, Operand: strWord(operand)}}, nil
	}
	// Bare word, or word BINOP word.
	left := t
	p.i++
	if op, has := p.peek(); has && isBinaryTestOp(op) {
		p.i++
		right, has := p.peek()
		if !has {
			return nil, fmt.Errorf("%s: argument expected", op)
		}
		p.i++
		return &syntax.TestExpr{Binary: &syntax.BinaryTest{Op: op, Left: strWord(left), Right: strWord(right)}}, nil
	}
	// Bare word implies `-n word`.
	return &syntax.TestExpr{Unary: &syntax.UnaryTest{Op: "-n", Operand: strWord(left)}}, nil
}

var unaryOps = map[string]bool{
	"-f": true, "-d": true, "-e": true, "-r": true, "-w": true, "-x": true,
	"-s": true, "-L": true, "-z": true, "-n": true, "-p": true, "-S": true,
}

func isUnaryTestOp(s string) bool { return unaryOps[s] }

var binaryOps = map[string]bool{
	"=": true, "==": true, "!=": true, "-eq": true, "-ne": true, "-lt": true,
	"-gt": true, "-le": true, "-ge": true, "<": true, ">": true,
}

func isBinaryTestOp(s string) bool { return binaryOps[s] }

// EvalTestExpr evaluates a parsed test expression using c's filesystem.
// Word evaluation here assumes literal parts (already-expanded strings),
// since both `test`/`[` and `[[ ]]` hand this function already-expanded
// operands.
func EvalTestExpr(c *Context, e *syntax.TestExpr) (bool, error) {
	switch {
	case e.Group != nil:
		return EvalTestExpr(c, e.Group)
	case e.Not != nil:
		v, err := EvalTestExpr(c, e.Not)
		return !v, err
	case len(e.And) > 0:
		for _, sub := range e.And {
			v, err := EvalTestExpr(c, sub)
			if err != nil || !v {
				return false, err
			}
		}
		return true, nil
	case len(e.Or) > 0:
		for _, sub := range e.Or {
			v, err := EvalTestExpr(c, sub)
			if err != nil {
				return false, err
			}
			if v {
				return true, nil
			}
		}
		return false, nil
	case e.Unary != nil:
		return evalUnaryTest(c, e.Unary)
	case e.Binary != nil:
		return evalBinaryTest(c, e.Binary)
	default:
		return false, fmt.Errorf("empty test expression")
	}
}

func wordLit(w *syntax.Word) string {
	if w == nil || len(w.Parts) == 0 {
		return ""
	}
	if lit, ok := w.Parts[0].(syntax.Lit); ok {
		return lit.Value
	}
	return ""
}

func evalUnaryTest(c *Context, u *syntax.UnaryTest) (bool, error) {
	operand := wordLit(u.Operand)
	switch u.Op {
	case "-z":
		return operand == "", nil
	case "-n":
		return operand != "", nil
	}
	path := operand
	if path != "" && path[0] != '/' && c.Cwd != nil {
		path = vfs.Join(*c.Cwd, path)
	}
	info, err := c.FS.Stat(c.Ctx, path)
	exists := err == nil
	switch u.Op {
	case "-e":
		return exists, nil
	case "-f":
		return exists && info.Type == vfs.TypeFile, nil
	case "-d":
		return exists && info.Type == vfs.TypeDirectory, nil
	case "-L", "-p", "-S":
		return exists && info.Type == vfs.TypeSymlink, nil
	case "-r", "-w":
		return exists, nil
	case "-x":
		return exists && (info.Mode&0111) != 0, nil
	case "-s":
		return exists && info.Size > 0, nil
	default:
		return false, fmt.Errorf("unknown unary test operator %q", u.Op)
	}
}

func evalBinaryTest(c *Context, b *syntax.BinaryTest) (bool, error) {
	left, right := wordLit(b.Left), wordLit(b.Right)
	switch b.Op {
	case "=", "==":
		return left == right, nil
	case "!=":
		return left != right, nil
	case "<":
		return left < right, nil
	case ">":
		return left > right, nil
	}
	li, err1 := strconv.ParseInt(left, 10, 64)
	ri, err2 := strconv.ParseInt(right, 10, 64)
	if err1 != nil || err2 != nil {
		return false, fmt.Errorf("integer expression expected")
	}
	switch b.Op {
	case "-eq":
		return li == ri, nil
	case "-ne":
		return li != ri, nil
	case "-lt":
		return li < ri, nil
	case "-gt":
		return li > ri, nil
	case "-le":
		return li <= ri, nil
	case "-ge":
		return li >= ri, nil
	default:
		return false, fmt.Errorf("unknown binary test operator %q", b.Op)
	}
}

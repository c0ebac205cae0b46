package syntax

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/everruns/bashkit-sub001/internal/limits"
)

// ParseError carries a message and, where feasible, a byte position
// (spec.md §4.4: "Parse errors carry a message and ... a position").
type ParseError struct {
	Msg string
	Pos int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("syntax error at byte %d: %s", e.Pos, e.Msg)
}

type pendingHeredoc struct {
	cmd    *Command
	index  int
	delim  string
	quoted bool
	dash   bool
}

// Parser is a recursive-descent parser over a Lexer's token stream, guarded
// by a shared limits.ParserFuel for operation count, AST depth, and parse
// deadline (spec.md §4.4).
type Parser struct {
	lex     *Lexer
	fuel    *limits.ParserFuel
	tok     Token
	depth   int
	pending []pendingHeredoc
}

// Parse parses src into its Sequence root, consuming fuel from the shared
// ParserFuel. Per spec.md §9's Open Question, callers that want `eval` to
// share the outer script's fuel pass the same *limits.ParserFuel back in.
func Parse(src string, fuel *limits.ParserFuel) (Node, error) {
	p := &Parser{lex: NewLexer(src), fuel: fuel}
	if err := p.step(); err != nil {
		return nil, err
	}
	seq, err := p.parseSequence(func(t Token) bool { return t.Kind == TokEOF })
	if err != nil {
		return nil, err
	}
	if p.tok.Kind != TokEOF {
		return nil, &ParseError{Msg: "unexpected trailing input", Pos: p.tok.Pos}
	}
	return seq, nil
}

func (p *Parser) step() error {
	tok, err := p.lex.Next()
	if err != nil {
		return &ParseError{Msg: err.Error(), Pos: p.lex.Pos()}
	}
	if tok.Kind == TokNewline && len(p.pending) > 0 {
		pending := p.pending
		p.pending = nil
		for _, ph := range pending {
			body, err := p.lex.ReadHereDocBody(ph.delim, ph.dash)
			if err != nil {
				return &ParseError{Msg: err.Error(), Pos: p.lex.Pos()}
			}
			ph.cmd.Redirects[ph.index].HereDoc = body
		}
	}
	p.tok = tok
	return nil
}

// peekAhead looks n tokens beyond the current one without consuming them.
// Safe to call mid-parse since it only moves the lexer's read cursor
// forward temporarily, never triggers here-doc body reads.
func (p *Parser) peekAhead(n int) ([]Token, error) {
	save := p.lex.pos
	defer func() { p.lex.pos = save }()
	toks := make([]Token, 0, n)
	for i := 0; i < n; i++ {
		tok, err := p.lex.Next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
	}
	return toks, nil
}

func (p *Parser) enter() error {
	p.depth++
	if err := p.fuel.CheckDepth(p.depth); err != nil {
		return err
	}
	return p.fuel.Consume()
}

func (p *Parser) leave() { p.depth-- }

func wordLiteral(w *Word) (string, bool) {
	if w == nil || len(w.Parts) != 1 {
		return "", false
	}
	lit, ok := w.Parts[0].(Lit)
	return lit.Value, ok
}

func isKeyword(tok Token, kw string) bool {
	if tok.Kind != TokWord {
		return false
	}
	s, ok := wordLiteral(tok.Word)
	return ok && s == kw
}

func stopKeyword(kw string) func(Token) bool {
	return func(t Token) bool { return isKeyword(t, kw) }
}

func stopKeywordAny(kws ...string) func(Token) bool {
	return func(t Token) bool {
		for _, k := range kws {
			if isKeyword(t, k) {
				return true
			}
		}
		return false
	}
}

func stopTok(k TokKind) func(Token) bool {
	return func(t Token) bool { return t.Kind == k }
}

func (p *Parser) expectKeyword(kw string) error {
	if !isKeyword(p.tok, kw) {
		return &ParseError{Msg: fmt.Sprintf("expected %q", kw), Pos: p.tok.Pos}
	}
	return p.step()
}

// parseSequence parses a flat list of pipelines joined by `;`, `\n`, `&`,
// `&&`, or `||` (spec.md §3's Sequence node covers all five uniformly).
// stop reports whether the current token ends the sequence without being
// consumed.
func (p *Parser) parseSequence(stop func(Token) bool) (*Sequence, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	seq := &Sequence{}
	for {
		for p.tok.Kind == TokNewline || p.tok.Kind == TokSemi {
			if err := p.step(); err != nil {
				return nil, err
			}
		}
		if stop(p.tok) || p.tok.Kind == TokEOF {
			break
		}
		item, err := p.parsePipeline()
		if err != nil {
			return nil, err
		}

		var sep Separator
		switch p.tok.Kind {
		case TokSemi:
			sep = SepSemi
		case TokNewline:
			sep = SepNewline
		case TokAmp:
			sep = SepAmp
		case TokAndAnd:
			sep = SepAnd
		case TokOrOr:
			sep = SepOr
		default:
			sep = SepNone
		}
		seq.Items = append(seq.Items, item)
		seq.Separators = append(seq.Separators, sep)
		if sep == SepNone {
			break
		}
		if err := p.step(); err != nil {
			return nil, err
		}
		if sep == SepAnd || sep == SepOr {
			for p.tok.Kind == TokNewline {
				if err := p.step(); err != nil {
					return nil, err
				}
			}
		}
	}
	return seq, nil
}

func (p *Parser) parsePipeline() (Node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	negated := false
	if p.tok.Kind == TokBang {
		negated = true
		if err := p.step(); err != nil {
			return nil, err
		}
	}
	first, err := p.parseCommand()
	if err != nil {
		return nil, err
	}
	stages := []Node{first}
	for p.tok.Kind == TokPipe || p.tok.Kind == TokPipeAmp {
		if err := p.step(); err != nil {
			return nil, err
		}
		for p.tok.Kind == TokNewline {
			if err := p.step(); err != nil {
				return nil, err
			}
		}
		next, err := p.parseCommand()
		if err != nil {
			return nil, err
		}
		stages = append(stages, next)
	}
	if len(stages) == 1 && !negated {
		return stages[0], nil
	}
	return &Pipeline{Stages: stages, Negated: negated}, nil
}

func (p *Parser) parseCommand() (Node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	switch p.tok.Kind {
	case TokWord:
		if lit, ok := wordLiteral(p.tok.Word); ok {
			switch lit {
			case "if":
				return p.parseIf()
			case "while":
				return p.parseWhile(false)
			case "until":
				return p.parseWhile(true)
			case "for":
				return p.parseFor()
			case "case":
				return p.parseCase()
			case "function":
				return p.parseFunctionDef(true)
			}
			if toks, err := p.peekAhead(2); err == nil &&
				len(toks) == 2 && toks[0].Kind == TokLParen && toks[1].Kind == TokRParen {
				return p.parseFunctionDef(false)
			}
		}
		return p.parseSimpleCommand()
	case TokLParen:
		return p.parseSubshell()
	case TokLBrace:
		return p.parseGroup()
	case TokDLParen:
		return p.parseArithCmd()
	case TokDLBracket:
		return p.parseDoubleBracketCmd()
	default:
		return nil, &ParseError{Msg: "expected a command", Pos: p.tok.Pos}
	}
}

func isIdentifier(s string) bool {
	if s == "" || !isNameStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isNameChar(s[i]) {
			return false
		}
	}
	return true
}

func tryParseAssign(w *Word) (Assign, bool) {
	if len(w.Parts) == 0 {
		return Assign{}, false
	}
	lit, ok := w.Parts[0].(Lit)
	if !ok {
		return Assign{}, false
	}
	idx := strings.IndexByte(lit.Value, '=')
	if idx <= 0 {
		return Assign{}, false
	}
	name := lit.Value[:idx]
	if !isIdentifier(name) {
		return Assign{}, false
	}
	rest := lit.Value[idx+1:]
	var valueParts []WordPart
	if rest != "" {
		valueParts = append(valueParts, Lit{Value: rest})
	}
	valueParts = append(valueParts, w.Parts[1:]...)
	return Assign{Name: name, Value: &Word{Parts: valueParts}}, true
}

func (p *Parser) parseSimpleCommand() (Node, error) {
	cmd := &Command{}
	assignsAllowed := true
loop:
	for {
		switch p.tok.Kind {
		case TokWord:
			if assignsAllowed {
				if a, ok := tryParseAssign(p.tok.Word); ok {
					cmd.Assigns = append(cmd.Assigns, a)
					if err := p.step(); err != nil {
						return nil, err
					}
					continue
				}
				assignsAllowed = false
			}
			cmd.Words = append(cmd.Words, p.tok.Word)
			if err := p.step(); err != nil {
				return nil, err
			}
		case TokRedirOut, TokRedirAppend, TokRedirClob, TokRedirIn,
			TokHereDoc, TokHereDocDash, TokHereString,
			TokDupOut, TokDupIn, TokOutErr, TokOutErrApp:
			assignsAllowed = false
			if err := p.parseRedirectInto(cmd); err != nil {
				return nil, err
			}
		default:
			break loop
		}
	}
	if len(cmd.Words) == 0 && len(cmd.Assigns) == 0 && len(cmd.Redirects) == 0 {
		return nil, &ParseError{Msg: "expected a command", Pos: p.tok.Pos}
	}
	return cmd, nil
}

func (p *Parser) expectWord() (*Word, error) {
	if p.tok.Kind != TokWord {
		return nil, &ParseError{Msg: "expected a word", Pos: p.tok.Pos}
	}
	w := p.tok.Word
	if err := p.step(); err != nil {
		return nil, err
	}
	return w, nil
}

func (p *Parser) expectFdOrClose() (int, error) {
	if p.tok.Kind != TokWord {
		return -1, &ParseError{Msg: "expected a file descriptor", Pos: p.tok.Pos}
	}
	lit, ok := wordLiteral(p.tok.Word)
	if !ok {
		return -1, &ParseError{Msg: "expected a file descriptor", Pos: p.tok.Pos}
	}
	if lit == "-" {
		return -1, p.step()
	}
	n, err := strconv.Atoi(lit)
	if err != nil {
		return -1, &ParseError{Msg: "expected a file descriptor", Pos: p.tok.Pos}
	}
	if err := p.step(); err != nil {
		return -1, err
	}
	return n, nil
}

func hereDocDelim(w *Word) (string, bool) {
	var sb strings.Builder
	quoted := false
	for _, part := range w.Parts {
		switch pt := part.(type) {
		case Lit:
			sb.WriteString(pt.Value)
		case SingleQuoted:
			sb.WriteString(pt.Value)
			quoted = true
		case DoubleQuoted:
			quoted = true
			for _, ip := range pt.Parts {
				if lit, ok := ip.(Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		}
	}
	return sb.String(), quoted
}

func (p *Parser) parseRedirectInto(cmd *Command) error {
	opTok := p.tok
	fd := opTok.Fd
	if err := p.step(); err != nil {
		return err
	}
	switch opTok.Kind {
	case TokRedirOut, TokRedirClob:
		if fd < 0 {
			fd = 1
		}
		w, err := p.expectWord()
		if err != nil {
			return err
		}
		cmd.Redirects = append(cmd.Redirects, Redirect{Fd: fd, Op: RedirOut, Target: w})
	case TokRedirAppend:
		if fd < 0 {
			fd = 1
		}
		w, err := p.expectWord()
		if err != nil {
			return err
		}
		cmd.Redirects = append(cmd.Redirects, Redirect{Fd: fd, Op: RedirAppend, Target: w})
	case TokRedirIn:
		if fd < 0 {
			fd = 0
		}
		w, err := p.expectWord()
		if err != nil {
			return err
		}
		cmd.Redirects = append(cmd.Redirects, Redirect{Fd: fd, Op: RedirIn, Target: w})
	case TokHereString:
		if fd < 0 {
			fd = 0
		}
		w, err := p.expectWord()
		if err != nil {
			return err
		}
		cmd.Redirects = append(cmd.Redirects, Redirect{Fd: fd, Op: RedirHereString, Target: w})
	case TokHereDoc, TokHereDocDash:
		if fd < 0 {
			fd = 0
		}
		if p.tok.Kind != TokWord {
			return &ParseError{Msg: "expected here-document delimiter", Pos: p.tok.Pos}
		}
		delim, quoted := hereDocDelim(p.tok.Word)
		if err := p.step(); err != nil {
			return err
		}
		idx := len(cmd.Redirects)
		cmd.Redirects = append(cmd.Redirects, Redirect{Fd: fd, Op: RedirHereDoc})
		p.pending = append(p.pending, pendingHeredoc{
			cmd: cmd, index: idx, delim: delim, quoted: quoted, dash: opTok.Kind == TokHereDocDash,
		})
	case TokDupOut:
		if fd < 0 {
			fd = 1
		}
		dupFd, err := p.expectFdOrClose()
		if err != nil {
			return err
		}
		cmd.Redirects = append(cmd.Redirects, Redirect{Fd: fd, Op: RedirDup, DupFd: dupFd})
	case TokDupIn:
		if fd < 0 {
			fd = 0
		}
		dupFd, err := p.expectFdOrClose()
		if err != nil {
			return err
		}
		cmd.Redirects = append(cmd.Redirects, Redirect{Fd: fd, Op: RedirDup, DupFd: dupFd})
	case TokOutErr, TokOutErrApp:
		w, err := p.expectWord()
		if err != nil {
			return err
		}
		op := RedirOut
		if opTok.Kind == TokOutErrApp {
			op = RedirAppend
		}
		cmd.Redirects = append(cmd.Redirects, Redirect{Fd: 1, Op: RedirOutErr, Target: w, DupFd: int(op)})
	}
	return nil
}

func (p *Parser) parseIf() (Node, error) {
	if err := p.step(); err != nil {
		return nil, err
	}
	cond, err := p.parseSequence(stopKeyword("then"))
	if err != nil {
		return nil, err
	}
	if len(cond.Items) == 0 {
		return nil, &ParseError{Msg: "expected a command", Pos: p.tok.Pos}
	}
	if err := p.expectKeyword("then"); err != nil {
		return nil, err
	}
	thenBody, err := p.parseSequence(stopKeywordAny("elif", "else", "fi"))
	if err != nil {
		return nil, err
	}

	var elifs []ElifClause
	for isKeyword(p.tok, "elif") {
		if err := p.step(); err != nil {
			return nil, err
		}
		c, err := p.parseSequence(stopKeyword("then"))
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("then"); err != nil {
			return nil, err
		}
		t, err := p.parseSequence(stopKeywordAny("elif", "else", "fi"))
		if err != nil {
			return nil, err
		}
		elifs = append(elifs, ElifClause{Cond: c, Then: t})
	}

	var elseBody Node
	if isKeyword(p.tok, "else") {
		if err := p.step(); err != nil {
			return nil, err
		}
		elseBody, err = p.parseSequence(stopKeyword("fi"))
		if err != nil {
			return nil, err
		}
	}
	if err := p.expectKeyword("fi"); err != nil {
		return nil, err
	}
	return &If{Cond: cond, Then: thenBody, Elifs: elifs, Else: elseBody}, nil
}

func (p *Parser) parseWhile(until bool) (Node, error) {
	if err := p.step(); err != nil {
		return nil, err
	}
	cond, err := p.parseSequence(stopKeyword("do"))
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("do"); err != nil {
		return nil, err
	}
	body, err := p.parseSequence(stopKeyword("done"))
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("done"); err != nil {
		return nil, err
	}
	return &While{Cond: cond, Body: body, Until: until}, nil
}

func splitTopLevelSemi(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ';':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	parts = append(parts, strings.TrimSpace(s[start:]))
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	return parts
}

func (p *Parser) parseFor() (Node, error) {
	if err := p.step(); err != nil {
		return nil, err
	}
	if p.tok.Kind == TokDLParen {
		raw, err := p.lex.ReadRawParenBlock()
		if err != nil {
			return nil, &ParseError{Msg: err.Error(), Pos: p.lex.Pos()}
		}
		if err := p.step(); err != nil {
			return nil, err
		}
		parts := splitTopLevelSemi(raw)
		for p.tok.Kind == TokSemi || p.tok.Kind == TokNewline {
			if err := p.step(); err != nil {
				return nil, err
			}
		}
		if err := p.expectKeyword("do"); err != nil {
			return nil, err
		}
		body, err := p.parseSequence(stopKeyword("done"))
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("done"); err != nil {
			return nil, err
		}
		return &CFor{Init: parts[0], Cond: parts[1], Step: parts[2], Body: body}, nil
	}

	if p.tok.Kind != TokWord {
		return nil, &ParseError{Msg: "expected loop variable name", Pos: p.tok.Pos}
	}
	name, ok := wordLiteral(p.tok.Word)
	if !ok || !isIdentifier(name) {
		return nil, &ParseError{Msg: "expected loop variable name", Pos: p.tok.Pos}
	}
	if err := p.step(); err != nil {
		return nil, err
	}

	var words []*Word
	if isKeyword(p.tok, "in") {
		if err := p.step(); err != nil {
			return nil, err
		}
		for p.tok.Kind == TokWord {
			words = append(words, p.tok.Word)
			if err := p.step(); err != nil {
				return nil, err
			}
		}
	}
	for p.tok.Kind == TokSemi || p.tok.Kind == TokNewline {
		if err := p.step(); err != nil {
			return nil, err
		}
	}
	if err := p.expectKeyword("do"); err != nil {
		return nil, err
	}
	body, err := p.parseSequence(stopKeyword("done"))
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("done"); err != nil {
		return nil, err
	}
	return &For{Var: name, Words: words, Body: body}, nil
}

func stopCaseArmEnd(t Token) bool {
	return t.Kind == TokSemiSemi || t.Kind == TokSemiAmp || t.Kind == TokSemiSemiAmp || isKeyword(t, "esac")
}

func (p *Parser) parseCase() (Node, error) {
	if err := p.step(); err != nil {
		return nil, err
	}
	word, err := p.expectWord()
	if err != nil {
		return nil, err
	}
	for p.tok.Kind == TokNewline {
		if err := p.step(); err != nil {
			return nil, err
		}
	}
	if err := p.expectKeyword("in"); err != nil {
		return nil, err
	}
	for p.tok.Kind == TokNewline {
		if err := p.step(); err != nil {
			return nil, err
		}
	}

	var arms []CaseArm
	for !isKeyword(p.tok, "esac") && p.tok.Kind != TokEOF {
		if p.tok.Kind == TokLParen {
			if err := p.step(); err != nil {
				return nil, err
			}
		}
		var patterns []*Word
		for {
			if p.tok.Kind != TokWord {
				return nil, &ParseError{Msg: "expected case pattern", Pos: p.tok.Pos}
			}
			patterns = append(patterns, p.tok.Word)
			if err := p.step(); err != nil {
				return nil, err
			}
			if p.tok.Kind == TokPipe {
				if err := p.step(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
		if p.tok.Kind != TokRParen {
			return nil, &ParseError{Msg: "expected ) after case pattern", Pos: p.tok.Pos}
		}
		if err := p.step(); err != nil {
			return nil, err
		}
		for p.tok.Kind == TokNewline {
			if err := p.step(); err != nil {
				return nil, err
			}
		}

		var body Node
		if !stopCaseArmEnd(p.tok) {
			body, err = p.parseSequence(stopCaseArmEnd)
			if err != nil {
				return nil, err
			}
		}

		fallthru := FallNone
		switch p.tok.Kind {
		case TokSemiSemi:
			fallthru = FallNone
			if err := p.step(); err != nil {
				return nil, err
			}
		case TokSemiAmp:
			fallthru = FallNext
			if err := p.step(); err != nil {
				return nil, err
			}
		case TokSemiSemiAmp:
			fallthru = FallTestNext
			if err := p.step(); err != nil {
				return nil, err
			}
		}
		for p.tok.Kind == TokNewline {
			if err := p.step(); err != nil {
				return nil, err
			}
		}
		arms = append(arms, CaseArm{Patterns: patterns, Body: body, Fallthru: fallthru})
	}
	if err := p.expectKeyword("esac"); err != nil {
		return nil, err
	}
	return &Case{Word: word, Arms: arms}, nil
}

func (p *Parser) parseFunctionDef(hasKeyword bool) (Node, error) {
	if hasKeyword {
		if err := p.step(); err != nil {
			return nil, err
		}
	}
	if p.tok.Kind != TokWord {
		return nil, &ParseError{Msg: "expected function name", Pos: p.tok.Pos}
	}
	name, ok := wordLiteral(p.tok.Word)
	if !ok {
		return nil, &ParseError{Msg: "expected function name", Pos: p.tok.Pos}
	}
	if err := p.step(); err != nil {
		return nil, err
	}
	if p.tok.Kind == TokLParen {
		if err := p.step(); err != nil {
			return nil, err
		}
		if p.tok.Kind == TokRParen {
			if err := p.step(); err != nil {
				return nil, err
			}
		}
	}
	for p.tok.Kind == TokNewline {
		if err := p.step(); err != nil {
			return nil, err
		}
	}
	body, err := p.parseCommand()
	if err != nil {
		return nil, err
	}
	return &FunctionDef{Name: name, Body: body}, nil
}

func (p *Parser) parseSubshell() (Node, error) {
	if err := p.step(); err != nil {
		return nil, err
	}
	body, err := p.parseSequence(stopTok(TokRParen))
	if err != nil {
		return nil, err
	}
	if p.tok.Kind != TokRParen {
		return nil, &ParseError{Msg: "expected )", Pos: p.tok.Pos}
	}
	if err := p.step(); err != nil {
		return nil, err
	}
	return &Subshell{Body: body}, nil
}

func (p *Parser) parseGroup() (Node, error) {
	if err := p.step(); err != nil {
		return nil, err
	}
	body, err := p.parseSequence(stopTok(TokRBrace))
	if err != nil {
		return nil, err
	}
	if p.tok.Kind != TokRBrace {
		return nil, &ParseError{Msg: "expected }", Pos: p.tok.Pos}
	}
	if err := p.step(); err != nil {
		return nil, err
	}
	return &Group{Body: body}, nil
}

func (p *Parser) parseArithCmd() (Node, error) {
	raw, err := p.lex.ReadRawParenBlock()
	if err != nil {
		return nil, &ParseError{Msg: err.Error(), Pos: p.lex.Pos()}
	}
	if err := p.step(); err != nil {
		return nil, err
	}
	return &ArithCmd{Expr: strings.TrimSpace(raw)}, nil
}

type texTok struct {
	kind string // WORD, AND, OR, NOT, LPAREN, RPAREN
	word *Word
}

var unaryTestOps = map[string]bool{
	"-f": true, "-d": true, "-e": true, "-r": true, "-w": true, "-x": true,
	"-s": true, "-z": true, "-n": true, "-L": true, "-h": true, "-p": true,
	"-S": true, "-b": true, "-c": true, "-g": true, "-u": true, "-k": true,
	"-O": true, "-G": true, "-N": true,
}

var binaryTestOps = map[string]bool{
	"=": true, "==": true, "!=": true, "<": true, ">": true, "=~": true,
	"-eq": true, "-ne": true, "-lt": true, "-gt": true, "-le": true, "-ge": true,
}

func (p *Parser) parseDoubleBracketCmd() (Node, error) {
	if err := p.step(); err != nil {
		return nil, err
	}
	var toks []texTok
	for p.tok.Kind != TokDRBracket {
		if p.tok.Kind == TokEOF {
			return nil, &ParseError{Msg: "unterminated [[ ]]", Pos: p.tok.Pos}
		}
		switch p.tok.Kind {
		case TokWord:
			toks = append(toks, texTok{kind: "WORD", word: p.tok.Word})
		case TokAndAnd:
			toks = append(toks, texTok{kind: "AND"})
		case TokOrOr:
			toks = append(toks, texTok{kind: "OR"})
		case TokBang:
			toks = append(toks, texTok{kind: "NOT"})
		case TokLParen:
			toks = append(toks, texTok{kind: "LPAREN"})
		case TokRParen:
			toks = append(toks, texTok{kind: "RPAREN"})
		default:
			return nil, &ParseError{Msg: "unexpected token in [[ ]]", Pos: p.tok.Pos}
		}
		if err := p.step(); err != nil {
			return nil, err
		}
	}
	if err := p.step(); err != nil { // consume ]]
		return nil, err
	}
	tp := &testParser{toks: toks}
	expr, err := tp.parseOr()
	if err != nil {
		return nil, err
	}
	if tp.i != len(tp.toks) {
		return nil, &ParseError{Msg: "trailing tokens in [[ ]]", Pos: p.tok.Pos}
	}
	return &DoubleBracketCmd{Expr: expr}, nil
}

type testParser struct {
	toks []texTok
	i    int
}

func (tp *testParser) parseOr() (*TestExpr, error) {
	left, err := tp.parseAnd()
	if err != nil {
		return nil, err
	}
	for tp.i < len(tp.toks) && tp.toks[tp.i].kind == "OR" {
		tp.i++
		right, err := tp.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &TestExpr{Or: []*TestExpr{left, right}}
	}
	return left, nil
}

func (tp *testParser) parseAnd() (*TestExpr, error) {
	left, err := tp.parsePrimary()
	if err != nil {
		return nil, err
	}
	for tp.i < len(tp.toks) && tp.toks[tp.i].kind == "AND" {
		tp.i++
		right, err := tp.parsePrimary()
		if err != nil {
			return nil, err
		}
		left = &TestExpr{And: []*TestExpr{left, right}}
	}
	return left, nil
}

func (tp *testParser) parsePrimary() (*TestExpr, error) {
	if tp.i >= len(tp.toks) {
		return nil, fmt.Errorf("syntax: unexpected end of [[ ]] expression")
	}
	t := tp.toks[tp.i]
	switch t.kind {
	case "NOT":
		tp.i++
		inner, err := tp.parsePrimary()
		if err != nil {
			return nil, err
		}
		return &TestExpr{Not: inner}, nil
	case "LPAREN":
		tp.i++
		inner, err := tp.parseOr()
		if err != nil {
			return nil, err
		}
		if tp.i >= len(tp.toks) || tp.toks[tp.i].kind != "RPAREN" {
			return nil, fmt.Errorf("syntax: expected ) in [[ ]]")
		}
		tp.i++
		return &TestExpr{Group: inner}, nil
	case "WORD":
		if lit, ok := wordLiteral(t.word); ok {
			if unaryTestOps[lit] && tp.i+1 < len(tp.toks) && tp.toks[tp.i+1].kind == "WORD" {
				operand := tp.toks[tp.i+1].word
				tp.i += 2
				return &TestExpr{Unary: &UnaryTest{Op: lit, Operand: operand}}, nil
			}
		}
		if tp.i+2 < len(tp.toks) && tp.toks[tp.i+1].kind == "WORD" {
			if opLit, ok := wordLiteral(tp.toks[tp.i+1].word); ok && binaryTestOps[opLit] && tp.toks[tp.i+2].kind == "WORD" {
				left := t.word
				right := tp.toks[tp.i+2].word
				tp.i += 3
				return &TestExpr{Binary: &BinaryTest{Op: opLit, Left: left, Right: right}}, nil
			}
		}
		tp.i++
		return &TestExpr{Unary: &UnaryTest{Op: "-n", Operand: t.word}}, nil
	default:
		return nil, fmt.Errorf("syntax: unexpected token in [[ ]]")
	}
}

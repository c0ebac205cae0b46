package syntax

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/everruns/bashkit-sub001/internal/limits"
)

func mustParse(t *testing.T, src string) Node {
	t.Helper()
	fuel := limits.NewParserFuel(limits.DefaultConfig())
	n, err := Parse(src, fuel)
	require.NoError(t, err)
	return n
}

func firstCommand(t *testing.T, n Node) *Command {
	t.Helper()
	seq, ok := n.(*Sequence)
	require.True(t, ok)
	require.NotEmpty(t, seq.Items)
	cmd, ok := seq.Items[0].(*Command)
	require.True(t, ok)
	return cmd
}

func wordText(t *testing.T, w *Word) string {
	t.Helper()
	lit, ok := wordLiteral(w)
	require.True(t, ok)
	return lit
}

func TestParseSimpleCommand(t *testing.T) {
	cmd := firstCommand(t, mustParse(t, `echo hello world`))
	require.Len(t, cmd.Words, 3)
	assert.Equal(t, "echo", wordText(t, cmd.Words[0]))
	assert.Equal(t, "hello", wordText(t, cmd.Words[1]))
	assert.Equal(t, "world", wordText(t, cmd.Words[2]))
}

func TestParseAssignment(t *testing.T) {
	cmd := firstCommand(t, mustParse(t, `FOO=bar echo hi`))
	require.Len(t, cmd.Assigns, 1)
	assert.Equal(t, "FOO", cmd.Assigns[0].Name)
	assert.Equal(t, "bar", wordText(t, cmd.Assigns[0].Value))
	require.Len(t, cmd.Words, 2)
}

func TestParseRedirection(t *testing.T) {
	cmd := firstCommand(t, mustParse(t, `echo hi > out.txt 2>&1`))
	require.Len(t, cmd.Redirects, 2)
	assert.Equal(t, RedirOut, cmd.Redirects[0].Op)
	assert.Equal(t, 1, cmd.Redirects[0].Fd)
	assert.Equal(t, "out.txt", wordText(t, cmd.Redirects[0].Target))
	assert.Equal(t, RedirDup, cmd.Redirects[1].Op)
	assert.Equal(t, 2, cmd.Redirects[1].Fd)
	assert.Equal(t, 1, cmd.Redirects[1].DupFd)
}

func TestParsePipeline(t *testing.T) {
	n := mustParse(t, `ls | grep foo | wc -l`)
	seq := n.(*Sequence)
	pipe, ok := seq.Items[0].(*Pipeline)
	require.True(t, ok)
	assert.Len(t, pipe.Stages, 3)
	assert.False(t, pipe.Negated)
}

func TestParseNegatedPipeline(t *testing.T) {
	n := mustParse(t, `! grep foo file`)
	seq := n.(*Sequence)
	pipe, ok := seq.Items[0].(*Pipeline)
	require.True(t, ok)
	assert.True(t, pipe.Negated)
}

func TestParseSequenceSeparators(t *testing.T) {
	n := mustParse(t, "a && b || c; d & e")
	seq := n.(*Sequence)
	require.Len(t, seq.Items, 5)
	assert.Equal(t, []Separator{SepAnd, SepOr, SepSemi, SepAmp, SepNone}, seq.Separators)
}

func TestParseIf(t *testing.T) {
	n := mustParse(t, `if true; then echo yes; elif false; then echo maybe; else echo no; fi`)
	seq := n.(*Sequence)
	ifNode, ok := seq.Items[0].(*If)
	require.True(t, ok)
	require.Len(t, ifNode.Elifs, 1)
	require.NotNil(t, ifNode.Else)
}

func TestParseWhile(t *testing.T) {
	n := mustParse(t, `while true; do echo loop; done`)
	seq := n.(*Sequence)
	w, ok := seq.Items[0].(*While)
	require.True(t, ok)
	assert.False(t, w.Until)
}

func TestParseUntil(t *testing.T) {
	n := mustParse(t, `until false; do echo loop; done`)
	seq := n.(*Sequence)
	w, ok := seq.Items[0].(*While)
	require.True(t, ok)
	assert.True(t, w.Until)
}

func TestParseForIn(t *testing.T) {
	n := mustParse(t, `for x in a b c; do echo $x; done`)
	seq := n.(*Sequence)
	f, ok := seq.Items[0].(*For)
	require.True(t, ok)
	assert.Equal(t, "x", f.Var)
	require.Len(t, f.Words, 3)
}

func TestParseCFor(t *testing.T) {
	n := mustParse(t, `for (( i=0; i<10; i++ )); do echo $i; done`)
	seq := n.(*Sequence)
	f, ok := seq.Items[0].(*CFor)
	require.True(t, ok)
	assert.Equal(t, "i=0", f.Init)
	assert.Equal(t, "i<10", f.Cond)
	assert.Equal(t, "i++", f.Step)
}

func TestParseCase(t *testing.T) {
	n := mustParse(t, `case $x in a|b) echo ab ;; c) echo c ;; *) echo other ;; esac`)
	seq := n.(*Sequence)
	c, ok := seq.Items[0].(*Case)
	require.True(t, ok)
	require.Len(t, c.Arms, 3)
	assert.Len(t, c.Arms[0].Patterns, 2)
}

func TestParseFunctionDefKeyword(t *testing.T) {
	n := mustParse(t, "function greet { echo hi; }")
	seq := n.(*Sequence)
	fn, ok := seq.Items[0].(*FunctionDef)
	require.True(t, ok)
	assert.Equal(t, "greet", fn.Name)
}

func TestParseFunctionDefAltSyntax(t *testing.T) {
	n := mustParse(t, "greet() { echo hi; }")
	seq := n.(*Sequence)
	fn, ok := seq.Items[0].(*FunctionDef)
	require.True(t, ok)
	assert.Equal(t, "greet", fn.Name)
}

func TestParseSubshell(t *testing.T) {
	n := mustParse(t, `(echo hi; echo there)`)
	seq := n.(*Sequence)
	sub, ok := seq.Items[0].(*Subshell)
	require.True(t, ok)
	body := sub.Body.(*Sequence)
	assert.Len(t, body.Items, 2)
}

func TestParseGroup(t *testing.T) {
	n := mustParse(t, `{ echo hi; echo there; }`)
	seq := n.(*Sequence)
	grp, ok := seq.Items[0].(*Group)
	require.True(t, ok)
	body := grp.Body.(*Sequence)
	assert.Len(t, body.Items, 2)
}

func TestParseArithCmd(t *testing.T) {
	n := mustParse(t, `(( 1 + 2 ))`)
	seq := n.(*Sequence)
	a, ok := seq.Items[0].(*ArithCmd)
	require.True(t, ok)
	assert.Equal(t, "1 + 2", a.Expr)
}

func TestParseDoubleBracketUnary(t *testing.T) {
	n := mustParse(t, `[[ -f foo.txt ]]`)
	seq := n.(*Sequence)
	db, ok := seq.Items[0].(*DoubleBracketCmd)
	require.True(t, ok)
	require.NotNil(t, db.Expr.Unary)
	assert.Equal(t, "-f", db.Expr.Unary.Op)
	assert.Equal(t, "foo.txt", wordText(t, db.Expr.Unary.Operand))
}

func TestParseDoubleBracketBinaryAndAnd(t *testing.T) {
	n := mustParse(t, `[[ a = b && -n c ]]`)
	seq := n.(*Sequence)
	db := seq.Items[0].(*DoubleBracketCmd)
	require.Len(t, db.Expr.And, 2)
	assert.NotNil(t, db.Expr.And[0].Binary)
	assert.NotNil(t, db.Expr.And[1].Unary)
}

func TestParseDoubleBracketNegationAndGroup(t *testing.T) {
	n := mustParse(t, `[[ ! ( -f a ) ]]`)
	seq := n.(*Sequence)
	db := seq.Items[0].(*DoubleBracketCmd)
	require.NotNil(t, db.Expr.Not)
	require.NotNil(t, db.Expr.Not.Group)
	require.NotNil(t, db.Expr.Not.Group.Unary)
}

func TestParseHereDoc(t *testing.T) {
	n := mustParse(t, "cat <<EOF\nhello\nworld\nEOF\n")
	cmd := firstCommand(t, n)
	require.Len(t, cmd.Redirects, 1)
	assert.Equal(t, RedirHereDoc, cmd.Redirects[0].Op)
	assert.Equal(t, "hello\nworld\n", cmd.Redirects[0].HereDoc)
}

func TestParseHereDocDashStripsTabs(t *testing.T) {
	n := mustParse(t, "cat <<-EOF\n\t\thello\n\tEOF\n")
	cmd := firstCommand(t, n)
	assert.Equal(t, "hello\n", cmd.Redirects[0].HereDoc)
}

func TestParseMultipleHereDocsOneLine(t *testing.T) {
	n := mustParse(t, "cat <<A <<B\nfirst\nA\nsecond\nB\n")
	cmd := firstCommand(t, n)
	require.Len(t, cmd.Redirects, 2)
	assert.Equal(t, "first\n", cmd.Redirects[0].HereDoc)
	assert.Equal(t, "second\n", cmd.Redirects[1].HereDoc)
}

func TestParseErrorReportsPosition(t *testing.T) {
	fuel := limits.NewParserFuel(limits.DefaultConfig())
	_, err := Parse(`if true; then`, fuel)
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
}

func TestParseDepthLimitEnforced(t *testing.T) {
	cfg := limits.DefaultConfig()
	cfg.MaxASTDepth = 3
	fuel := limits.NewParserFuel(cfg)
	_, err := Parse(`( ( ( echo hi ) ) )`, fuel)
	require.Error(t, err)
}

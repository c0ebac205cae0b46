package syntax

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lexAll(t *testing.T, src string) []Token {
	t.Helper()
	l := NewLexer(src)
	var toks []Token
	for {
		tok, err := l.Next()
		require.NoError(t, err)
		toks = append(toks, tok)
		if tok.Kind == TokEOF {
			break
		}
	}
	return toks
}

func kinds(toks []Token) []TokKind {
	ks := make([]TokKind, len(toks))
	for i, t := range toks {
		ks[i] = t.Kind
	}
	return ks
}

func TestLexerOperatorAlphabet(t *testing.T) {
	toks := lexAll(t, `a;b;;c;&d;;&e|f|&g&&h||i&j`)
	ks := kinds(toks)
	assert.Contains(t, ks, TokSemiSemi)
	assert.Contains(t, ks, TokSemiAmp)
	assert.Contains(t, ks, TokSemiSemiAmp)
	assert.Contains(t, ks, TokPipeAmp)
	assert.Contains(t, ks, TokAndAnd)
	assert.Contains(t, ks, TokOrOr)
	assert.Contains(t, ks, TokAmp)
}

func TestLexerRedirections(t *testing.T) {
	toks := lexAll(t, `cmd > out >> app < in 2>&1 1<&0 &> both &>> bothapp >| force <<< str`)
	ks := kinds(toks)
	assert.Contains(t, ks, TokRedirOut)
	assert.Contains(t, ks, TokRedirAppend)
	assert.Contains(t, ks, TokRedirIn)
	assert.Contains(t, ks, TokDupOut)
	assert.Contains(t, ks, TokDupIn)
	assert.Contains(t, ks, TokOutErr)
	assert.Contains(t, ks, TokOutErrApp)
	assert.Contains(t, ks, TokRedirClob)
	assert.Contains(t, ks, TokHereString)
}

func TestLexerFdPrefix(t *testing.T) {
	toks := lexAll(t, `2>&1`)
	require.Equal(t, TokDupOut, toks[0].Kind)
	assert.Equal(t, 2, toks[0].Fd)
}

func TestLexerNoFdPrefixDefaultsNegative(t *testing.T) {
	toks := lexAll(t, `>out`)
	require.Equal(t, TokRedirOut, toks[0].Kind)
	assert.Equal(t, -1, toks[0].Fd)
}

func TestLexerDoubleBracket(t *testing.T) {
	toks := lexAll(t, `[[ -f x ]]`)
	ks := kinds(toks)
	assert.Contains(t, ks, TokDLBracket)
	assert.Contains(t, ks, TokDRBracket)
}

func TestLexerDoubleParen(t *testing.T) {
	toks := lexAll(t, `((1+1))`)
	require.Equal(t, TokDLParen, toks[0].Kind)
}

func TestLexerBangStandalone(t *testing.T) {
	toks := lexAll(t, `! true`)
	require.Equal(t, TokBang, toks[0].Kind)
}

func TestLexerSingleQuoted(t *testing.T) {
	toks := lexAll(t, `'hello $world'`)
	require.Equal(t, TokWord, toks[0].Kind)
	require.Len(t, toks[0].Word.Parts, 1)
	sq, ok := toks[0].Word.Parts[0].(SingleQuoted)
	require.True(t, ok)
	assert.Equal(t, "hello $world", sq.Value)
}

func TestLexerDoubleQuotedWithVar(t *testing.T) {
	toks := lexAll(t, `"hi $name!"`)
	require.Equal(t, TokWord, toks[0].Kind)
	dq, ok := toks[0].Word.Parts[0].(DoubleQuoted)
	require.True(t, ok)
	var sawParam bool
	for _, p := range dq.Parts {
		if _, ok := p.(ParamExp); ok {
			sawParam = true
		}
	}
	assert.True(t, sawParam)
}

func TestLexerCommandSubst(t *testing.T) {
	toks := lexAll(t, `echo $(ls -la)`)
	require.Equal(t, TokWord, toks[1].Kind)
	cs, ok := toks[1].Word.Parts[0].(CmdSubst)
	require.True(t, ok)
	assert.Equal(t, "ls -la", cs.Body)
}

func TestLexerArithExp(t *testing.T) {
	toks := lexAll(t, `echo $((1+2))`)
	ae, ok := toks[1].Word.Parts[0].(ArithExp)
	require.True(t, ok)
	assert.Equal(t, "1+2", ae.Expr)
}

func TestLexerReadHereDocBody(t *testing.T) {
	l := NewLexer("line one\nline two\nEOF\nrest")
	body, err := l.ReadHereDocBody("EOF", false)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", body)
	rest := l.src[l.pos:]
	assert.Equal(t, "rest", rest)
}

func TestLexerReadRawParenBlockBalancesNesting(t *testing.T) {
	// Simulates the text remaining after an already-consumed `((` token for
	// the arithmetic command `(( a+(b) ))`: nested parens must balance
	// before the trailing `))` is recognized as the close.
	l := NewLexer(`a+(b))) rest`)
	raw, err := l.ReadRawParenBlock()
	require.NoError(t, err)
	assert.Equal(t, "a+(b)", raw)
	assert.Equal(t, " rest", l.src[l.pos:])
}

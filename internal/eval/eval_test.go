package eval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/everruns/bashkit-sub001/internal/limits"
	"github.com/everruns/bashkit-sub001/internal/vfs"
)

func newTestEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	opts := Options{
		FS:     vfs.New(),
		Limits: limits.DefaultConfig(),
	}
	ev := New(opts, map[string]string{"HOME": "/home/bashkit"}, "/")
	ev.Reset()
	return ev
}

func run(t *testing.T, ev *Evaluator, src string) ExecResult {
	t.Helper()
	res, err := ev.Run(context.Background(), src)
	require.NoError(t, err)
	return res
}

func TestSimpleCommandAndExitCode(t *testing.T) {
	ev := newTestEvaluator(t)
	res := run(t, ev, "echo hello")
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Equal(t, 0, res.ExitCode)
}

func TestVariableAssignmentAndExpansion(t *testing.T) {
	ev := newTestEvaluator(t)
	res := run(t, ev, "x=42\necho $x")
	assert.Equal(t, "42\n", res.Stdout)
}

func TestAndOrSequencing(t *testing.T) {
	ev := newTestEvaluator(t)
	res := run(t, ev, "true && echo yes || echo no")
	assert.Equal(t, "yes\n", res.Stdout)

	ev2 := newTestEvaluator(t)
	res2 := run(t, ev2, "false && echo yes || echo no")
	assert.Equal(t, "no\n", res2.Stdout)
}

func TestIfElif(t *testing.T) {
	ev := newTestEvaluator(t)
	res := run(t, ev, `x=2
if [ "$x" = "1" ]; then
  echo one
elif [ "$x" = "2" ]; then
  echo two
else
  echo other
fi`)
	assert.Equal(t, "two\n", res.Stdout)
}

func TestWhileLoopWithBreak(t *testing.T) {
	ev := newTestEvaluator(t)
	res := run(t, ev, `i=0
while true; do
  i=$((i+1))
  if [ "$i" = "3" ]; then
    break
  fi
done
echo $i`)
	assert.Equal(t, "3\n", res.Stdout)
}

func TestForLoopOverWords(t *testing.T) {
	ev := newTestEvaluator(t)
	res := run(t, ev, `for x in a b c; do echo $x; done`)
	assert.Equal(t, "a\nb\nc\n", res.Stdout)
}

func TestCFor(t *testing.T) {
	ev := newTestEvaluator(t)
	res := run(t, ev, `sum=0
for ((i=0; i<5; i=i+1)); do
  sum=$((sum+i))
done
echo $sum`)
	assert.Equal(t, "10\n", res.Stdout)
}

func TestFunctionCallAndReturn(t *testing.T) {
	ev := newTestEvaluator(t)
	res := run(t, ev, `greet() {
  echo "hi $1"
  return 7
}
greet world
echo $?`)
	assert.Equal(t, "hi world\n7\n", res.Stdout)
}

func TestLocalShadowsOuterScope(t *testing.T) {
	ev := newTestEvaluator(t)
	res := run(t, ev, `x=outer
f() {
  local x=inner
  echo $x
}
f
echo $x`)
	assert.Equal(t, "inner\nouter\n", res.Stdout)
}

func TestPipelineFeedsStdin(t *testing.T) {
	ev := newTestEvaluator(t)
	res := run(t, ev, `echo "b
a
c" | sort`)
	assert.Equal(t, "a\nb\nc\n", res.Stdout)
}

func TestCommandSubstitutionIsolatesVars(t *testing.T) {
	ev := newTestEvaluator(t)
	res := run(t, ev, `x=outer
y=$(x=inner; echo $x)
echo $y $x`)
	assert.Equal(t, "inner outer\n", res.Stdout)
}

func TestSetEAbortsOnFailure(t *testing.T) {
	ev := newTestEvaluator(t)
	res, err := ev.Run(context.Background(), `set -e
echo before
false
echo after`)
	require.Error(t, err)
	assert.Equal(t, "before\n", res.Stdout)
}

func TestSetUUnboundVariable(t *testing.T) {
	ev := newTestEvaluator(t)
	_, err := ev.Run(context.Background(), `set -u
echo $undefined_var`)
	require.Error(t, err)
}

func TestSetPipefailUsesRightmostFailure(t *testing.T) {
	ev := newTestEvaluator(t)
	res := run(t, ev, `set -o pipefail
false | true | false
echo $?`)
	assert.Equal(t, "1\n", res.Stdout)
}

func TestSetPositionalReassignment(t *testing.T) {
	ev := newTestEvaluator(t)
	res := run(t, ev, `set -- a b c
echo $1 $2 $3 $#`)
	assert.Equal(t, "a b c 3\n", res.Stdout)
}

func TestCaseFallthrough(t *testing.T) {
	ev := newTestEvaluator(t)
	res := run(t, ev, `x=a
case $x in
  a) echo first ;&
  b) echo second ;;
  *) echo other ;;
esac`)
	assert.Equal(t, "first\nsecond\n", res.Stdout)
}

func TestParameterExpansionDefaultAndLength(t *testing.T) {
	ev := newTestEvaluator(t)
	res := run(t, ev, `unset missing
echo ${missing:-fallback}
s=hello
echo ${#s}`)
	assert.Equal(t, "fallback\n5\n", res.Stdout)
}

func TestParameterExpansionSuffixAndReplace(t *testing.T) {
	ev := newTestEvaluator(t)
	res := run(t, ev, `f=archive.tar.gz
echo ${f%.gz}
echo ${f/tar/zip}`)
	assert.Equal(t, "archive.tar\narchive.zip.gz\n", res.Stdout)
}

func TestArithmeticCommand(t *testing.T) {
	ev := newTestEvaluator(t)
	res := run(t, ev, `x=5
(( x > 3 ))
echo $?`)
	assert.Equal(t, "0\n", res.Stdout)
}

func TestDoubleBracketStringComparison(t *testing.T) {
	ev := newTestEvaluator(t)
	res := run(t, ev, `[[ "abc" == a* ]]
echo $?`)
	assert.Equal(t, "0\n", res.Stdout)
}

func TestSubshellIsolatesVarsAndExit(t *testing.T) {
	ev := newTestEvaluator(t)
	res := run(t, ev, `x=outer
(x=inner; echo $x; exit 5)
echo $x $?`)
	assert.Equal(t, "inner\nouter 5\n", res.Stdout)
}

func TestRedirectionWritesToFile(t *testing.T) {
	ev := newTestEvaluator(t)
	run(t, ev, `echo hello > /out.txt`)
	data, err := ev.opts.FS.ReadFile(context.Background(), "/out.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestRedirectToDirectoryFailsNonZero(t *testing.T) {
	ev := newTestEvaluator(t)
	res := run(t, ev, `mkdir /d
echo hi > /d
echo $?`)
	assert.Contains(t, res.Stderr, "is a directory")
	assert.Equal(t, "1\n", res.Stdout)
}

func TestSetEDoesNotAbortOnIfCondition(t *testing.T) {
	ev := newTestEvaluator(t)
	res := run(t, ev, `set -e
if false; then :; fi
echo ok`)
	assert.Equal(t, "ok\n", res.Stdout)
}

func TestSetEDoesNotAbortOnOrLeftOperand(t *testing.T) {
	ev := newTestEvaluator(t)
	res := run(t, ev, `set -e
false || true
echo ok`)
	assert.Equal(t, "ok\n", res.Stdout)
}

func TestSetEDoesNotAbortOnNegatedPipeline(t *testing.T) {
	ev := newTestEvaluator(t)
	res := run(t, ev, `set -e
! false
echo ok`)
	assert.Equal(t, "ok\n", res.Stdout)
}

package driver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrysante/scatha-sub008/internal/issue"
)

const answerIR = `
func i64 @main() {
  %entry:
    return i64 42
}
`

const maxIR = `
func i64 @max(i64 %a, i64 %b) {
  %entry:
    %cmp = scmp grt i64, %a, %b
    branch i1 %cmp, label %then, label %else
  %then:
    goto label %join
  %else:
    goto label %join
  %join:
    %r = phi i64 [label %then : %a], [label %else : %b]
    return i64 %r
}

func i64 @main() {
  %entry:
    %m = call i64 @max(i64 3, i64 7)
    return i64 %m
}
`

func TestParseArgs(t *testing.T) {
	opts, err := ParseArgs([]string{"-O2", "--debug", "-o", "out/app", "-L", "libs", "--time", "main.scir"})
	require.NoError(t, err)
	assert.Equal(t, 2, opts.OptLevel)
	assert.True(t, opts.Debug)
	assert.Equal(t, "out/app", opts.Output)
	assert.Equal(t, []string{"libs"}, opts.LibDirs)
	assert.True(t, opts.Time)
	assert.Equal(t, []string{"main.scir"}, opts.Inputs)

	_, err = ParseArgs([]string{"--pipeline"})
	require.Error(t, err)
	_, err = ParseArgs(nil)
	require.Error(t, err)
}

func TestCompileIRTextProducesBinary(t *testing.T) {
	c := NewCompiler(&Options{OptLevel: 1, Inputs: []string{"answer.scir"}})
	target, err := c.CompileIRText("answer", answerIR)
	require.NoError(t, err)
	require.False(t, c.Issues.HasErrors())
	require.NotNil(t, target.Binary)
	assert.NotEmpty(t, target.Binary.Bytes)
	assert.Contains(t, target.Symbols, "main")
}

func TestCompileWithCallsAndPhis(t *testing.T) {
	c := NewCompiler(&Options{OptLevel: 2, Debug: true, Inputs: []string{"max.scir"}})
	target, err := c.CompileIRText("max", maxIR)
	require.NoError(t, err)
	require.NotNil(t, target.Binary)
	require.NotNil(t, target.Debug)
	assert.Contains(t, target.Symbols, "max")
	assert.Contains(t, target.Symbols, "main")
	// main is the start symbol regardless of layout position.
	assert.Equal(t, target.Symbols["main"], target.Binary.StartAddress)
}

func TestStageCallbacksFireInOrder(t *testing.T) {
	c := NewCompiler(&Options{OptLevel: 0, Inputs: []string{"a.scir"}})
	var stages []Stage
	c.OnStage = func(s Stage, artifact any) {
		stages = append(stages, s)
		require.NotNil(t, artifact)
	}
	_, err := c.CompileIRText("a", answerIR)
	require.NoError(t, err)
	assert.Equal(t, []Stage{StageIR, StageOptimized, StageMIR, StageAssembly, StageBinary}, stages)
}

func TestStopAbortsBetweenStages(t *testing.T) {
	c := NewCompiler(&Options{OptLevel: 0, Inputs: []string{"a.scir"}})
	var stages []Stage
	c.OnStage = func(s Stage, artifact any) {
		stages = append(stages, s)
		if s == StageOptimized {
			c.Stop()
		}
	}
	_, err := c.CompileIRText("a", answerIR)
	require.Error(t, err)
	assert.Equal(t, []Stage{StageIR, StageOptimized}, stages)
}

func TestMalformedPipelineIsAPipelineError(t *testing.T) {
	c := NewCompiler(&Options{Pipeline: "inline(sroa", Inputs: []string{"a.scir"}})
	_, err := c.CompileIRText("a", answerIR)
	require.Error(t, err)
	require.True(t, c.Issues.HasErrors())
	found := false
	for _, i := range c.Issues.Issues() {
		if i.Kind == issue.KindPipeline {
			found = true
		}
	}
	assert.True(t, found, "expected a pipeline-kind issue")
}

func TestUnknownPassIsAPipelineError(t *testing.T) {
	c := NewCompiler(&Options{Pipeline: "definitely-not-a-pass", Inputs: []string{"a.scir"}})
	_, err := c.CompileIRText("a", answerIR)
	require.Error(t, err)
	require.True(t, c.Issues.HasErrors())
}

func TestWriteToDisk(t *testing.T) {
	dir := t.TempDir()
	c := NewCompiler(&Options{OptLevel: 1, Debug: true, Inputs: []string{"answer.scir"}})
	target, err := c.CompileIRText("answer", answerIR)
	require.NoError(t, err)
	require.NoError(t, target.WriteToDisk(dir))

	bin, err := os.ReadFile(filepath.Join(dir, "answer.sbin"))
	require.NoError(t, err)
	assert.Equal(t, target.Binary.Bytes, bin)
	_, err = os.Stat(filepath.Join(dir, "answer.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "answer.sym"))
	assert.NoError(t, err)
}

func TestStaticLibEmitsIRText(t *testing.T) {
	dir := t.TempDir()
	c := NewCompiler(&Options{OptLevel: 1, Mode: EmitStaticLib, Inputs: []string{"answer.scir"}})
	target, err := c.CompileIRText("answer", answerIR)
	require.NoError(t, err)
	require.NoError(t, target.WriteToDisk(dir))
	text, err := os.ReadFile(filepath.Join(dir, "answer.scir"))
	require.NoError(t, err)
	assert.Contains(t, string(text), "func i64 @main")
}

package passmgr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrysante/scatha-sub008/internal/ir"
	"github.com/chrysante/scatha-sub008/internal/issue"
	_ "github.com/chrysante/scatha-sub008/internal/passes"
	"github.com/chrysante/scatha-sub008/internal/passmgr"
	"github.com/chrysante/scatha-sub008/internal/types"
)

func TestParseNestedPipeline(t *testing.T) {
	nodes, err := passmgr.Parse("inline(sroa, mem2reg), globaldce")
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "inline", nodes[0].Name)
	require.Len(t, nodes[0].Children, 2)
	assert.Equal(t, "sroa", nodes[0].Children[0].Name)
	assert.Equal(t, "mem2reg", nodes[0].Children[1].Name)
	assert.Equal(t, "globaldce", nodes[1].Name)
	assert.Empty(t, nodes[1].Children)
}

func TestParseMismatchedParensIsPipelineError(t *testing.T) {
	_, err := passmgr.Parse("inline(sroa")
	require.Error(t, err)
	var pe *issue.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, issue.KindPipeline, pe.Issue.Kind)
}

func TestParseUnknownPassIsPipelineError(t *testing.T) {
	_, err := passmgr.Parse("no-such-pass")
	require.Error(t, err)
	var pe *issue.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, issue.ErrUnknownPass, pe.Issue.Code)
	assert.Contains(t, pe.Issue.Message, "no-such-pass")
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, passmgr.Canonicalization, passmgr.CategoryOf("unify-returns"))
	assert.Equal(t, passmgr.Canonicalization, passmgr.CategoryOf("split-critical-edges"))
	assert.Equal(t, passmgr.Simplification, passmgr.CategoryOf("dce"))
	assert.Equal(t, passmgr.Optimization, passmgr.CategoryOf("gvn"))
}

// countingPass reports a change on its first run only and leaves the
// function untouched, so fixed-point driving is observable.
type countingPass struct {
	runs *int
}

func (countingPass) Name() string { return "test-counting" }

func (p countingPass) RunOnFunction(fn *ir.Function) (bool, error) {
	*p.runs++
	return *p.runs == 1, nil
}

func TestRunPipelineReachesFixedPoint(t *testing.T) {
	runs := 0
	passmgr.RegisterFunctionPass(countingPass{runs: &runs})

	ctx := types.NewContext()
	m := ir.NewModule(ctx)
	fn := m.DefineFunction("f", ctx.Void(), nil, nil)
	b := ir.NewBuilder(ctx, fn)
	b.SetCurrentBlock(fn.AppendBlock("entry"))
	b.Return(nil)
	require.NoError(t, b.Finish())

	nodes, err := passmgr.Parse("test-counting")
	require.NoError(t, err)
	changed, err := passmgr.RunPipeline(m, nodes)
	require.NoError(t, err)
	assert.True(t, changed, "modification bits must OR upward")
	// First run reports a change, the repeat confirms the fixed point.
	assert.Equal(t, 2, runs)
}

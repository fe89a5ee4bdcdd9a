package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sourcequal/codequal/internal/lang"
	"github.com/sourcequal/codequal/internal/model"
)

const pySnippet = `def classify(a, b, c):
    if a and b and c:
        return 1
    elif a or b:
        return 2
    else:
        return 0
`

func TestAnalyzeCountsDecisionPoints(t *testing.T) {
	r := Analyze(lang.Python, pySnippet)
	// base 1 + if + elif + else-if(none extra) + 2*and + or = 1+1+1+2+1 = 6
	require.GreaterOrEqual(t, r.CyclomaticComplexity, 5)
	require.True(t, r.MIApproximated)
	require.GreaterOrEqual(t, r.MaintainabilityIndex, 0.0)
	require.LessOrEqual(t, r.MaintainabilityIndex, 100.0)
}

func TestAnalyzeCountsCommentsAndBlanks(t *testing.T) {
	text := "x = 1\n# a comment\n\ny = 2\n"
	r := Analyze(lang.Python, text)
	require.Equal(t, 1, r.CommentLines)
	require.Equal(t, 1, r.BlankLines)
}

func TestApplyToWritesSymbolFields(t *testing.T) {
	sym := &model.Symbol{}
	ApplyTo(sym, Result{CyclomaticComplexity: 4, MaintainabilityIndex: 72.5, MIApproximated: true, LOC: 10})
	require.Equal(t, 4, sym.CyclomaticComplexity)
	require.Equal(t, 72.5, sym.MaintainabilityIndex)
	require.True(t, sym.MIApproximated)
	require.Equal(t, 10, sym.LOC)
}

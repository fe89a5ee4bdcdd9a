package duplication

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenizeNormalizesLiterals(t *testing.T) {
	tokens := Tokenize([]byte(`retries = 3
message = "hello world"`))
	require.Contains(t, tokens, "<LIT>")
	require.NotContains(t, tokens, "3")
	require.NotContains(t, tokens, `"hello world"`)
	require.Contains(t, tokens, "retries")
}

func TestShinglesShortInputProducesSingleShingle(t *testing.T) {
	d := NewDetector()
	tokens := []string{"a", "b", "c"}
	shingles := d.Shingles(tokens)
	require.Len(t, shingles, 1)
}

func TestSketchIsDeterministic(t *testing.T) {
	d := NewDetector()
	tokens := Tokenize([]byte("def add(a, b):\n    return a + b\n"))
	shingles := d.Shingles(tokens)
	sig1 := d.Sketch(shingles)
	sig2 := d.Sketch(shingles)
	require.Equal(t, sig1, sig2)
}

func TestEstimateJaccardIdenticalSketchesMatch(t *testing.T) {
	d := NewDetector()
	tokens := Tokenize([]byte("def add(a, b):\n    return a + b\n"))
	sig := d.Sketch(d.Shingles(tokens))
	require.Equal(t, 1.0, EstimateJaccard(sig, sig))
}

func TestFindPairsDetectsNearDuplicateFunctions(t *testing.T) {
	srcA := `def add(a, b):
    total = a + b
    if total > 100:
        return 100
    return total
`
	srcB := `def sum_values(a, b):
    total = a + b
    if total > 250:
        return 250
    return total
`
	d := &Detector{K: 5, NumHashes: 128, MinSimilarity: 0.5}
	sketches := []FileSketch{
		d.BuildSketch("file-a", []byte(srcA)),
		d.BuildSketch("file-b", []byte(srcB)),
	}

	pairs := d.FindPairs(sketches)
	require.Len(t, pairs, 1)
	require.Equal(t, "file-a", pairs[0].File1ID)
	require.Equal(t, "file-b", pairs[0].File2ID)
	require.Greater(t, pairs[0].Similarity, 0.5)
	require.Greater(t, pairs[0].DuplicateTokens, 0)
	require.NotEmpty(t, pairs[0].Snippet)
}

func TestFindPairsOrdersFilesCanonically(t *testing.T) {
	src := "def f():\n    return 1\n"
	d := &Detector{K: 3, NumHashes: 32, MinSimilarity: 0.1}
	sketches := []FileSketch{
		d.BuildSketch("zzz", []byte(src)),
		d.BuildSketch("aaa", []byte(src)),
	}

	pairs := d.FindPairs(sketches)
	require.Len(t, pairs, 1)
	require.Equal(t, "aaa", pairs[0].File1ID)
	require.Equal(t, "zzz", pairs[0].File2ID)
	require.True(t, pairs[0].File1ID < pairs[0].File2ID)
}

func TestFindPairsSkipsDissimilarFiles(t *testing.T) {
	d := NewDetector()
	sketches := []FileSketch{
		d.BuildSketch("file-a", []byte("def add(a, b):\n    return a + b\n")),
		d.BuildSketch("file-b", []byte("class Widget:\n    def render(self):\n        pass\n")),
	}
	require.Empty(t, d.FindPairs(sketches))
}

func TestLongestCommonRunFindsSharedTokens(t *testing.T) {
	a := strings.Fields("if total > 100 return 100")
	b := strings.Fields("while total > 100 return 100")
	run := longestCommonRun(a, b)
	require.Equal(t, 5, run.length)
	require.Equal(t, "total > 100 return 100", run.snippet)
}

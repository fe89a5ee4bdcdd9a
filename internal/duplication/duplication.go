// Package duplication is DuplicationDetector (spec §4.G): per-language
// tokenization, literal normalisation, k-shingling, and a MinHash sketch
// used to estimate Jaccard similarity between files without comparing
// every token pair directly.
package duplication

import (
	"hash/fnv"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/sourcequal/codequal/internal/model"
)

// DefaultK is the default shingle width in tokens.
const DefaultK = 40

// DefaultNumHashes is the number of independent hash functions in the
// MinHash sketch.
const DefaultNumHashes = 64

// DefaultMinSimilarity is the Jaccard threshold above which two files are
// reported as a DuplicationPair.
const DefaultMinSimilarity = 0.8

var tokenPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*|[0-9]+\.[0-9]+|[0-9]+|"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*'|[^\sA-Za-z0-9_]`)
var numberLiteral = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)
var stringLiteral = regexp.MustCompile(`^(".*"|'.*')$`)

// Tokenize splits content into a normalised token stream: identifiers and
// operators are kept verbatim, numeric and string literals collapse to
// <LIT> so that two functions differing only in literal values still
// register as duplicates.
func Tokenize(content []byte) []string {
	matches := tokenPattern.FindAllString(string(content), -1)
	tokens := make([]string, 0, len(matches))
	for _, m := range matches {
		switch {
		case numberLiteral.MatchString(m), stringLiteral.MatchString(m):
			tokens = append(tokens, "<LIT>")
		default:
			tokens = append(tokens, m)
		}
	}
	return tokens
}

// Detector holds the tunables for shingling and sketching.
type Detector struct {
	K             int
	NumHashes     int
	MinSimilarity float64
}

func NewDetector() *Detector {
	return &Detector{K: DefaultK, NumHashes: DefaultNumHashes, MinSimilarity: DefaultMinSimilarity}
}

// Shingles returns the rolling k-token-window hashes of tokens. Files
// shorter than K produce a single shingle over the whole token stream.
func (d *Detector) Shingles(tokens []string) []uint64 {
	k := d.K
	if k <= 0 {
		k = DefaultK
	}
	if len(tokens) == 0 {
		return nil
	}
	if len(tokens) < k {
		return []uint64{hashTokens(tokens)}
	}

	shingles := make([]uint64, 0, len(tokens)-k+1)
	for i := 0; i+k <= len(tokens); i++ {
		shingles = append(shingles, hashTokens(tokens[i:i+k]))
	}
	return shingles
}

func hashTokens(tokens []string) uint64 {
	h := fnv.New64a()
	for _, t := range tokens {
		_, _ = h.Write([]byte(t))
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

// Sketch builds a MinHash signature over a set of shingle hashes, one slot
// per hash function; the same (deterministic) family of functions is
// salted by index rather than drawn from a random permutation.
func (d *Detector) Sketch(shingles []uint64) []uint64 {
	n := d.NumHashes
	if n <= 0 {
		n = DefaultNumHashes
	}
	sig := make([]uint64, n)
	for i := range sig {
		sig[i] = math.MaxUint64
	}
	for _, s := range shingles {
		for i := 0; i < n; i++ {
			v := salt(s, uint64(i))
			if v < sig[i] {
				sig[i] = v
			}
		}
	}
	return sig
}

func salt(v, seed uint64) uint64 {
	v ^= seed * 0x9E3779B97F4A7C15
	v ^= v >> 33
	v *= 0xff51afd7ed558ccd
	v ^= v >> 33
	return v
}

// EstimateJaccard returns the fraction of matching slots between two
// equal-length MinHash signatures, the standard MinHash similarity
// estimator.
func EstimateJaccard(a, b []uint64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	matches := 0
	for i := range a {
		if a[i] == b[i] {
			matches++
		}
	}
	return float64(matches) / float64(len(a))
}

// FileSketch is one file's tokenization and MinHash signature, ready for
// pairwise comparison.
type FileSketch struct {
	FileID string
	Tokens []string
	Sketch []uint64
}

// BuildSketch tokenizes and sketches one file's content in one step.
func (d *Detector) BuildSketch(fileID string, content []byte) FileSketch {
	tokens := Tokenize(content)
	shingles := d.Shingles(tokens)
	return FileSketch{FileID: fileID, Tokens: tokens, Sketch: d.Sketch(shingles)}
}

// FindPairs compares every pair of sketches and returns a DuplicationPair
// for each exceeding MinSimilarity, canonically ordered (file1_id <
// file2_id) and sorted for determinism.
func (d *Detector) FindPairs(sketches []FileSketch) []*model.DuplicationPair {
	var pairs []*model.DuplicationPair
	for i := 0; i < len(sketches); i++ {
		for j := i + 1; j < len(sketches); j++ {
			sim := EstimateJaccard(sketches[i].Sketch, sketches[j].Sketch)
			if sim < d.MinSimilarity {
				continue
			}
			a, b := sketches[i], sketches[j]
			if b.FileID < a.FileID {
				a, b = b, a
			}
			run := longestCommonRun(a.Tokens, b.Tokens)
			pairs = append(pairs, &model.DuplicationPair{
				File1ID:         a.FileID,
				File1Range:      run.rangeA,
				File2ID:         b.FileID,
				File2Range:      run.rangeB,
				Similarity:      sim,
				DuplicateLines:  run.lines,
				DuplicateTokens: run.length,
				Snippet:         run.snippet,
			})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].File1ID != pairs[j].File1ID {
			return pairs[i].File1ID < pairs[j].File1ID
		}
		return pairs[i].File2ID < pairs[j].File2ID
	})
	return pairs
}

type commonRun struct {
	length  int
	lines   int
	snippet string
	rangeA  string
	rangeB  string
}

// longestCommonRun finds the longest contiguous run of identical tokens
// shared between a and b via the classic O(n*m) longest-common-substring
// dynamic program, using a two-row table to bound memory. The returned
// ranges are token offsets, not source line numbers: the tokenizer
// discards layout, so an exact line range would need the original text.
func longestCommonRun(a, b []string) commonRun {
	if len(a) == 0 || len(b) == 0 {
		return commonRun{}
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	best, bestEndA, bestEndB := 0, 0, 0

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
				if curr[j] > best {
					best = curr[j]
					bestEndA = i
					bestEndB = j
				}
			} else {
				curr[j] = 0
			}
		}
		prev, curr = curr, prev
		for j := range curr {
			curr[j] = 0
		}
	}

	if best == 0 {
		return commonRun{}
	}
	run := a[bestEndA-best : bestEndA]
	return commonRun{
		length:  best,
		lines:   strings.Count(strings.Join(run, "\n"), "\n") + 1,
		snippet: strings.Join(run, " "),
		rangeA:  tokenRange(bestEndA-best, bestEndA),
		rangeB:  tokenRange(bestEndB-best, bestEndB),
	}
}

func tokenRange(start, end int) string {
	return strconv.Itoa(start) + "-" + strconv.Itoa(end)
}

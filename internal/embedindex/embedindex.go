// Package embedindex is EmbeddingIndex (spec §4.I): a synchronous
// Upsert/Query contract over unit-normalised vectors, persisted in
// LevelDB and mirrored in memory for cosine-similarity scans.
package embedindex

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"golang.org/x/time/rate"

	"github.com/sourcequal/codequal/internal/errs"
	"github.com/sourcequal/codequal/pkg/logger"
)

// EmbeddingProvider is the opaque boundary to a text-embedding model.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Filter narrows a Query to a language and/or repository.
type Filter struct {
	Language string
	RepoID   string
}

// Match is one ranked Query result.
type Match struct {
	SymbolID   string
	Similarity float64
}

type entry struct {
	vector   []float32
	language string
	repoID   string
}

// Index is the persistent vector store: writes go to LevelDB for
// durability, reads come from an in-memory mirror rebuilt at Open.
type Index struct {
	db      *leveldb.DB
	limiter *rate.Limiter
	logger  logger.Logger
	mu      sync.RWMutex
	byID    map[string]entry
}

// Open opens (creating if absent) the LevelDB database at path and rebuilds
// the in-memory mirror from its contents.
func Open(path string, log logger.Logger) (*Index, error) {
	if log == nil {
		log = logger.NewNop()
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errs.Wrap(errs.Resource, "open embedding index", err)
	}

	idx := &Index{
		db:      db,
		limiter: rate.NewLimiter(rate.Limit(8), 16),
		logger:  log,
		byID:    make(map[string]entry),
	}
	if err := idx.rebuildMirror(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *Index) Close() error {
	return idx.db.Close()
}

// RepoIDs returns the distinct repository ids with at least one entry,
// so the index-cleanup job can diff against Storage's live repository set
// without the index needing to know about Storage itself.
func (idx *Index) RepoIDs() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	seen := make(map[string]bool)
	for _, e := range idx.byID {
		seen[e.repoID] = true
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	return ids
}

// DeleteByRepo removes every entry belonging to repoID, for the periodic
// cleanup job that prunes vectors of repositories no longer present in
// Storage.
func (idx *Index) DeleteByRepo(ctx context.Context, repoID string) (int, error) {
	idx.mu.Lock()
	var toDelete []string
	for id, e := range idx.byID {
		if e.repoID == repoID {
			toDelete = append(toDelete, id)
		}
	}
	idx.mu.Unlock()

	batch := new(leveldb.Batch)
	for _, id := range toDelete {
		batch.Delete([]byte(id))
	}
	if len(toDelete) > 0 {
		if err := idx.db.Write(batch, nil); err != nil {
			return 0, errs.Wrap(errs.Transient, "delete embeddings for repo", err)
		}
	}

	idx.mu.Lock()
	for _, id := range toDelete {
		delete(idx.byID, id)
	}
	idx.mu.Unlock()
	return len(toDelete), nil
}

func (idx *Index) rebuildMirror() error {
	iter := idx.db.NewIterator(nil, nil)
	defer iter.Release()

	idx.mu.Lock()
	defer idx.mu.Unlock()
	for iter.Next() {
		id := string(iter.Key())
		rec, err := decodeRecord(iter.Value())
		if err != nil {
			idx.logger.Warn("embedindex: skipping corrupt record for %s: %v", id, err)
			continue
		}
		idx.byID[id] = rec
	}
	return iter.Error()
}

// Upsert normalises vector to unit length and writes it for symbolID,
// replacing any prior entry. Idempotent: re-upserting the same vector is a
// no-op observable from Query.
func (idx *Index) Upsert(ctx context.Context, symbolID string, vector []float32, language, repoID string) error {
	if len(vector) == 0 {
		return errs.New(errs.Validation, "embedding vector is empty")
	}
	normalized := normalize(vector)
	rec := entry{vector: normalized, language: language, repoID: repoID}

	payload := encodeRecord(rec)
	if err := idx.db.Put([]byte(symbolID), payload, nil); err != nil {
		return errs.Wrap(errs.Transient, "persist embedding", err)
	}

	idx.mu.Lock()
	idx.byID[symbolID] = rec
	idx.mu.Unlock()
	return nil
}

// EmbedAndUpsert runs text through provider (rate-limited) and upserts the
// resulting vector. Provider failures are Transient: the caller's retry
// policy, not this index, decides whether to try again.
func (idx *Index) EmbedAndUpsert(ctx context.Context, provider EmbeddingProvider, symbolID, text, language, repoID string) error {
	if err := idx.limiter.Wait(ctx); err != nil {
		return errs.Wrap(errs.Transient, "rate limiter wait", err)
	}
	vector, err := provider.Embed(ctx, text)
	if err != nil {
		return errs.Wrap(errs.Transient, "embedding provider", err)
	}
	return idx.Upsert(ctx, symbolID, vector, language, repoID)
}

// Query returns the top k matches with similarity >= threshold, sorted
// descending by similarity, ties broken by symbol id. query is normalised
// before scoring so the caller need not pre-normalise.
func (idx *Index) Query(query []float32, threshold float64, filter Filter, k int) []Match {
	normalizedQuery := normalize(query)

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	matches := make([]Match, 0, len(idx.byID))
	for id, e := range idx.byID {
		if filter.Language != "" && e.language != filter.Language {
			continue
		}
		if filter.RepoID != "" && e.repoID != filter.RepoID {
			continue
		}
		sim := cosine(normalizedQuery, e.vector)
		if sim < threshold {
			continue
		}
		matches = append(matches, Match{SymbolID: id, Similarity: sim})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].SymbolID < matches[j].SymbolID
	})

	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

func normalize(v []float32) []float32 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSquares)
	if norm == 0 {
		return append([]float32(nil), v...)
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// encodeRecord lays out {dim uint32, language len+bytes, repoID len+bytes,
// vector []float32} as raw little-endian bytes for LevelDB storage.
func encodeRecord(e entry) []byte {
	buf := make([]byte, 0, 8+len(e.language)+len(e.repoID)+4*len(e.vector))

	var dim [4]byte
	binary.LittleEndian.PutUint32(dim[:], uint32(len(e.vector)))
	buf = append(buf, dim[:]...)

	buf = appendLenPrefixed(buf, e.language)
	buf = appendLenPrefixed(buf, e.repoID)

	for _, f := range e.vector {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(f))
		buf = append(buf, b[:]...)
	}
	return buf
}

func appendLenPrefixed(buf []byte, s string) []byte {
	var l [4]byte
	binary.LittleEndian.PutUint32(l[:], uint32(len(s)))
	buf = append(buf, l[:]...)
	return append(buf, s...)
}

func decodeRecord(data []byte) (entry, error) {
	if len(data) < 4 {
		return entry{}, fmt.Errorf("embedindex: record too short")
	}
	dim := binary.LittleEndian.Uint32(data[0:4])
	offset := 4

	language, offset, err := readLenPrefixed(data, offset)
	if err != nil {
		return entry{}, err
	}
	repoID, offset, err := readLenPrefixed(data, offset)
	if err != nil {
		return entry{}, err
	}

	need := offset + int(dim)*4
	if len(data) < need {
		return entry{}, fmt.Errorf("embedindex: vector truncated")
	}
	vector := make([]float32, dim)
	for i := 0; i < int(dim); i++ {
		bits := binary.LittleEndian.Uint32(data[offset+i*4 : offset+i*4+4])
		vector[i] = math.Float32frombits(bits)
	}
	return entry{vector: vector, language: language, repoID: repoID}, nil
}

func readLenPrefixed(data []byte, offset int) (string, int, error) {
	if len(data) < offset+4 {
		return "", 0, fmt.Errorf("embedindex: length prefix truncated")
	}
	l := int(binary.LittleEndian.Uint32(data[offset : offset+4]))
	offset += 4
	if len(data) < offset+l {
		return "", 0, fmt.Errorf("embedindex: string payload truncated")
	}
	return string(data[offset : offset+l]), offset + l, nil
}

package cache

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
)

// ErrBackendUnavailable indicates a similarity tier cannot be used right
// now. Callers fall back to a cheaper tier instead of failing the lookup.
var ErrBackendUnavailable = errors.New("similarity backend unavailable")

// FuzzyScorer computes a sequence-alignment ratio based on the longest
// common subsequence of the two texts. Cheap, always available, used as the
// tier 0 short-circuit.
type FuzzyScorer struct{}

func NewFuzzyScorer() *FuzzyScorer {
	return &FuzzyScorer{}
}

func (s *FuzzyScorer) Name() string {
	return "fuzzy"
}

func (s *FuzzyScorer) Score(a, b string) (float64, error) {
	if a == b {
		return 1.0, nil
	}
	if a == "" || b == "" {
		return 0.0, nil
	}

	ra := []rune(a)
	rb := []rune(b)
	lcs := lcsLength(ra, rb)

	return 2.0 * float64(lcs) / float64(len(ra)+len(rb)), nil
}

// lcsLength computes the longest-common-subsequence length with a rolling
// two-row table, O(len(a)*len(b)) time and O(len(b)) space.
func lcsLength(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

// TFIDFScorer computes cosine similarity between term-frequency vectors
// weighted by inverse document frequency over the stored prompt corpus.
// Documents are keyed by cache key so removals track the live entry set:
// the corpus never outgrows the cache that feeds it. The document-frequency
// table is rebuilt lazily: Add and Remove only mark the corpus dirty, and
// the next Score pays for the rebuild.
type TFIDFScorer struct {
	mu    sync.Mutex
	docs  map[string]map[string]bool
	df    map[string]int
	dirty bool
}

func NewTFIDFScorer() *TFIDFScorer {
	return &TFIDFScorer{
		docs: make(map[string]map[string]bool),
		df:   make(map[string]int),
	}
}

func (s *TFIDFScorer) Name() string {
	return "tfidf"
}

// Add registers a stored prompt under its cache key for IDF weighting.
// Re-adding a key replaces its document.
func (s *TFIDFScorer) Add(key, text string) {
	terms := make(map[string]bool)
	for _, t := range strings.Fields(text) {
		terms[t] = true
	}

	s.mu.Lock()
	s.docs[key] = terms
	s.dirty = true
	s.mu.Unlock()
}

// Remove drops a key's document. Called when the owning cache entry is
// evicted or expires; unknown keys are a no-op.
func (s *TFIDFScorer) Remove(key string) {
	s.mu.Lock()
	if _, ok := s.docs[key]; ok {
		delete(s.docs, key)
		s.dirty = true
	}
	s.mu.Unlock()
}

// Len reports the corpus document count.
func (s *TFIDFScorer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// Reset discards the corpus. Called when the cache is cleared.
func (s *TFIDFScorer) Reset() {
	s.mu.Lock()
	s.docs = make(map[string]map[string]bool)
	s.df = make(map[string]int)
	s.dirty = false
	s.mu.Unlock()
}

func (s *TFIDFScorer) Score(a, b string) (float64, error) {
	s.mu.Lock()
	if s.dirty {
		s.rebuild()
	}
	df := s.df
	n := len(s.docs)
	s.mu.Unlock()

	va := s.vectorize(a, df, n)
	vb := s.vectorize(b, df, n)

	var dot, normA, normB float64
	for term, wa := range va {
		if wb, ok := vb[term]; ok {
			dot += wa * wb
		}
		normA += wa * wa
	}
	for _, wb := range vb {
		normB += wb * wb
	}

	if normA == 0 || normB == 0 {
		return 0.0, nil
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// rebuild recomputes document frequencies. Caller holds the lock.
func (s *TFIDFScorer) rebuild() {
	df := make(map[string]int)
	for _, doc := range s.docs {
		for term := range doc {
			df[term]++
		}
	}
	s.df = df
	s.dirty = false
}

func (s *TFIDFScorer) vectorize(text string, df map[string]int, n int) map[string]float64 {
	tf := make(map[string]float64)
	fields := strings.Fields(text)
	for _, t := range fields {
		tf[t]++
	}

	vec := make(map[string]float64, len(tf))
	for term, count := range tf {
		idf := 1.0
		if n > 0 {
			idf = math.Log(float64(n+1)/float64(df[term]+1)) + 1.0
		}
		vec[term] = (count / float64(len(fields))) * idf
	}

	return vec
}

const embeddingCacheMax = 2048

// EmbeddingScorer computes dense-vector cosine similarity using the OpenAI
// embeddings API. The most expensive tier, tried last. Embeddings are
// memoized in-process so repeated scans of the same stored prompts do not
// re-embed them.
type EmbeddingScorer struct {
	client  *openai.Client
	timeout time.Duration

	mu       sync.Mutex
	vectors  map[string][]float32
	disabled bool
}

func NewEmbeddingScorer(apiKey string, timeout time.Duration) *EmbeddingScorer {
	var client *openai.Client
	if apiKey != "" {
		client = openai.NewClient(apiKey)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &EmbeddingScorer{
		client:  client,
		timeout: timeout,
		vectors: make(map[string][]float32),
	}
}

func (s *EmbeddingScorer) Name() string {
	return "embedding"
}

func (s *EmbeddingScorer) Score(a, b string) (float64, error) {
	if s.client == nil {
		return 0, ErrBackendUnavailable
	}

	va, err := s.embed(a)
	if err != nil {
		return 0, err
	}
	vb, err := s.embed(b)
	if err != nil {
		return 0, err
	}

	return cosineSimilarity(va, vb), nil
}

func (s *EmbeddingScorer) embed(text string) ([]float32, error) {
	if text == "" {
		return nil, errors.New("text cannot be empty")
	}

	s.mu.Lock()
	if vec, ok := s.vectors[text]; ok {
		s.mu.Unlock()
		return vec, nil
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	resp, err := s.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.AdaEmbeddingV2,
	})
	if err != nil {
		return nil, ErrBackendUnavailable
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding returned from OpenAI")
	}

	vec := resp.Data[0].Embedding

	s.mu.Lock()
	if len(s.vectors) >= embeddingCacheMax {
		// Crude reset; the vectors repopulate on the next scans.
		s.vectors = make(map[string][]float32)
	}
	s.vectors[text] = vec
	s.mu.Unlock()

	return vec, nil
}

// NullScorer is the no-op stand-in selected when a tier is not configured.
// It always reports the backend as unavailable so tiered lookup skips it.
type NullScorer struct {
	name string
}

func NewNullScorer(name string) *NullScorer {
	return &NullScorer{name: name}
}

func (s *NullScorer) Name() string {
	return s.name
}

func (s *NullScorer) Score(_, _ string) (float64, error) {
	return 0, ErrBackendUnavailable
}

// cosineSimilarity calculates the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"www.github.com/Wanderer0074348/AdaptiveLM/src/config"
	"www.github.com/Wanderer0074348/AdaptiveLM/src/models"
)

const (
	// Tier 0 short-circuit: a fuzzy score this high is accepted without
	// invoking the costlier tiers.
	fuzzyShortCircuit = 0.9

	// Semantic hits at or above this score are counted separately so the
	// stats distinguish high-confidence matches.
	highConfidenceScore = 0.95
)

// Tier labels reported on hits.
const (
	TierExact    = "exact"
	TierSemantic = "semantic"
	TierRemote   = "remote"
)

// Entry is one cached response.
type Entry struct {
	Key              string
	NormalizedPrompt string
	Model            string
	Namespace        string
	Response         *models.CompletionResponse
	StoredAt         time.Time
	ExpiresAt        time.Time
	AccessCount      int64
	LastAccessedAt   time.Time

	element *list.Element
}

func (e *Entry) expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Result is a cache hit: the entry's response plus how it was found.
type Result struct {
	Response   *models.CompletionResponse
	Similarity float64
	Tier       string
	Key        string
}

// remoteEntry is the serialized form written to the distributed tier.
type remoteEntry struct {
	Response         *models.CompletionResponse `json:"response"`
	Model            string                     `json:"model"`
	Namespace        string                     `json:"namespace"`
	NormalizedPrompt string                     `json:"normalized_prompt"`
	ExpiresAt        time.Time                  `json:"expires_at"`
}

// TieredCache is a bounded, TTL-aware store with tiered lookup: exact key
// match first, then fuzzy, TF-IDF and embedding similarity over the live
// candidate pool. Eviction is LRU in batches. An optional KeyValueStore
// backs the exact tier for sharing across replicas.
//
// The entry map and LRU list are guarded together: a mutating operation
// never interleaves with another. Similarity scoring runs outside the lock
// against a snapshot of candidates.
type TieredCache struct {
	mu      sync.Mutex
	entries map[string]*Entry
	lru     *list.List // front = most recently used

	maxSize    int
	defaultTTL time.Duration

	fuzzy     models.SimilarityBackend
	tfidf     *TFIDFScorer
	embedding models.SimilarityBackend
	remote    models.KeyValueStore

	warnMu sync.Mutex
	warned map[string]bool

	exactHits          int64
	semanticHits       int64
	highConfidenceHits int64
	misses             int64
	evictions          int64
}

// NewTieredCache creates the cache. embedding may be a NullScorer when no
// embedding backend is configured; remote may be nil when no distributed
// tier is wanted. Absence of either degrades lookups gracefully.
func NewTieredCache(cfg *config.CacheConfig, embedding models.SimilarityBackend, remote models.KeyValueStore) *TieredCache {
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = 1000
	}
	if embedding == nil {
		embedding = NewNullScorer("embedding")
	}

	return &TieredCache{
		entries:    make(map[string]*Entry),
		lru:        list.New(),
		maxSize:    maxSize,
		defaultTTL: cfg.TTL,
		fuzzy:      NewFuzzyScorer(),
		tfidf:      NewTFIDFScorer(),
		embedding:  embedding,
		remote:     remote,
		warned:     make(map[string]bool),
	}
}

// Get looks up a prompt. Exact key match wins immediately with similarity
// 1.0; otherwise live entries for the same model and namespace are scored
// tier by tier and the best candidate at or above threshold is a semantic
// hit. Ties prefer the most recently stored entry. Returns (nil, nil) on
// miss; expired entries are never returned and are deleted opportunistically.
func (c *TieredCache) Get(ctx context.Context, prompt, model, namespace string, threshold float64) (*Result, error) {
	key, normalized := Normalize(prompt, model, namespace)
	now := time.Now()

	type candidate struct {
		entry      *Entry
		normalized string
		storedAt   time.Time
	}

	c.mu.Lock()
	if entry, ok := c.entries[key]; ok {
		if entry.expired(now) {
			c.removeLocked(entry)
		} else {
			c.touchLocked(entry, now)
			c.exactHits++
			result := &Result{
				Response:   entry.Response,
				Similarity: 1.0,
				Tier:       TierExact,
				Key:        key,
			}
			c.mu.Unlock()
			return result, nil
		}
	}

	// Snapshot live candidates so scoring runs without the lock held.
	candidates := make([]candidate, 0, len(c.entries))
	for _, entry := range c.entries {
		if entry.Model != model || entry.Namespace != namespace {
			continue
		}
		if entry.expired(now) {
			continue
		}
		candidates = append(candidates, candidate{
			entry:      entry,
			normalized: entry.NormalizedPrompt,
			storedAt:   entry.StoredAt,
		})
	}
	c.mu.Unlock()

	// Distributed tier: another replica may have cached this exact key.
	if result := c.remoteGet(ctx, key, model, namespace, now); result != nil {
		return result, nil
	}

	var best *Entry
	var bestScore float64
	var bestStoredAt time.Time
	for _, cand := range candidates {
		score := c.scoreCandidate(normalized, cand.normalized, threshold)
		if score > bestScore || (score == bestScore && cand.storedAt.After(bestStoredAt)) {
			best = cand.entry
			bestScore = score
			bestStoredAt = cand.storedAt
		}
	}

	if best != nil && bestScore >= threshold {
		c.mu.Lock()
		// The entry may have been evicted or expired while scoring.
		entry, ok := c.entries[best.Key]
		if ok && entry == best && !entry.expired(time.Now()) {
			c.touchLocked(entry, time.Now())
			c.semanticHits++
			if bestScore >= highConfidenceScore {
				c.highConfidenceHits++
			}
			result := &Result{
				Response:   entry.Response,
				Similarity: bestScore,
				Tier:       TierSemantic,
				Key:        entry.Key,
			}
			c.mu.Unlock()
			return result, nil
		}
		c.mu.Unlock()
	}

	c.mu.Lock()
	c.misses++
	c.mu.Unlock()

	return nil, nil
}

// scoreCandidate applies the tiers in cost order. A fuzzy score at or above
// the short-circuit threshold is accepted as-is; TF-IDF runs next, and the
// embedding backend only when TF-IDF is unavailable or still below
// threshold. An unavailable tier degrades to the previous best score.
func (c *TieredCache) scoreCandidate(query, stored string, threshold float64) float64 {
	// A threshold above the short-circuit raises it, so the later tiers
	// still get a chance to clear a bar the fuzzy score did not.
	shortCircuit := fuzzyShortCircuit
	if threshold > shortCircuit {
		shortCircuit = threshold
	}

	fuzzyScore, _ := c.fuzzy.Score(query, stored)
	if fuzzyScore >= shortCircuit {
		return fuzzyScore
	}
	best := fuzzyScore

	tfidfScore, err := c.tfidf.Score(query, stored)
	if err == nil {
		if tfidfScore > best {
			best = tfidfScore
		}
		if tfidfScore >= threshold {
			return best
		}
	} else {
		c.warnOnce(c.tfidf.Name(), err)
	}

	embScore, err := c.embedding.Score(query, stored)
	if err != nil {
		c.warnOnce(c.embedding.Name(), err)
		return best
	}
	if embScore > best {
		best = embScore
	}

	return best
}

// Set stores a response under the normalized key, batch-evicting the
// least-recently-used entries when at capacity. A non-positive ttl stores
// an already-expired entry (never returned by Get). The write-through to
// the distributed tier is best-effort.
func (c *TieredCache) Set(ctx context.Context, prompt, model, namespace string, response *models.CompletionResponse, ttl time.Duration) error {
	key, normalized := Normalize(prompt, model, namespace)
	now := time.Now()

	expiresAt := now
	if ttl > 0 {
		expiresAt = now.Add(ttl)
	}

	c.mu.Lock()
	if existing, ok := c.entries[key]; ok {
		existing.Response = response
		existing.StoredAt = now
		existing.ExpiresAt = expiresAt
		c.lru.MoveToFront(existing.element)
		c.mu.Unlock()
		return nil
	}

	if len(c.entries) >= c.maxSize {
		c.evictLocked()
	}

	entry := &Entry{
		Key:              key,
		NormalizedPrompt: normalized,
		Model:            model,
		Namespace:        namespace,
		Response:         response,
		StoredAt:         now,
		ExpiresAt:        expiresAt,
		LastAccessedAt:   now,
	}
	entry.element = c.lru.PushFront(entry)
	c.entries[key] = entry
	c.mu.Unlock()

	c.tfidf.Add(key, normalized)

	if c.remote != nil && ttl > 0 {
		payload := remoteEntry{
			Response:         response,
			Model:            model,
			Namespace:        namespace,
			NormalizedPrompt: normalized,
			ExpiresAt:        expiresAt,
		}
		if data, err := json.Marshal(payload); err == nil {
			if err := c.remote.Set(ctx, key, data, ttl); err != nil {
				c.warnOnce("remote", err)
			}
		}
	}

	return nil
}

// Clear drops all entries and resets the TF-IDF corpus. Counters survive so
// operational stats are not lost on an admin clear.
func (c *TieredCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*Entry)
	c.lru.Init()
	c.mu.Unlock()

	c.tfidf.Reset()
}

// Stats returns a snapshot of the cache counters.
func (c *TieredCache) Stats() models.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	hits := c.exactHits + c.semanticHits
	total := hits + c.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return models.CacheStats{
		HitRate:            hitRate,
		ExactHits:          c.exactHits,
		SemanticHits:       c.semanticHits,
		HighConfidenceHits: c.highConfidenceHits,
		Misses:             c.misses,
		Evictions:          c.evictions,
		Size:               len(c.entries),
	}
}

// Size returns the current entry count.
func (c *TieredCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// remoteGet consults the distributed tier for an exact key and promotes a
// live result into the in-memory store. Errors are swallowed: the remote
// tier is an optimization, never a prerequisite.
func (c *TieredCache) remoteGet(ctx context.Context, key, model, namespace string, now time.Time) *Result {
	if c.remote == nil {
		return nil
	}

	data, err := c.remote.Get(ctx, key)
	if err != nil {
		c.warnOnce("remote", err)
		return nil
	}
	if data == nil {
		return nil
	}

	var payload remoteEntry
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}
	if payload.Model != model || payload.Namespace != namespace || !now.Before(payload.ExpiresAt) {
		return nil
	}

	entry := &Entry{
		Key:              key,
		NormalizedPrompt: payload.NormalizedPrompt,
		Model:            model,
		Namespace:        namespace,
		Response:         payload.Response,
		StoredAt:         now,
		ExpiresAt:        payload.ExpiresAt,
		LastAccessedAt:   now,
		AccessCount:      1,
	}

	c.mu.Lock()
	if _, ok := c.entries[key]; !ok {
		if len(c.entries) >= c.maxSize {
			c.evictLocked()
		}
		entry.element = c.lru.PushFront(entry)
		c.entries[key] = entry
	}
	c.exactHits++
	c.mu.Unlock()

	c.tfidf.Add(key, payload.NormalizedPrompt)

	return &Result{
		Response:   payload.Response,
		Similarity: 1.0,
		Tier:       TierRemote,
		Key:        key,
	}
}

// touchLocked updates access metadata and LRU position. Caller holds the lock.
func (c *TieredCache) touchLocked(entry *Entry, now time.Time) {
	entry.AccessCount++
	entry.LastAccessedAt = now
	c.lru.MoveToFront(entry.element)
}

// removeLocked deletes an entry from the map, the LRU list and the TF-IDF
// corpus. Caller holds the lock.
func (c *TieredCache) removeLocked(entry *Entry) {
	delete(c.entries, entry.Key)
	c.lru.Remove(entry.element)
	c.tfidf.Remove(entry.Key)
}

// evictLocked removes the least-recently-used ~10% of entries (at least
// one). Caller holds the lock.
func (c *TieredCache) evictLocked() {
	n := c.maxSize / 10
	if n < 1 {
		n = 1
	}

	for i := 0; i < n; i++ {
		back := c.lru.Back()
		if back == nil {
			break
		}
		c.removeLocked(back.Value.(*Entry))
		c.evictions++
	}
}

// warnOnce logs a degraded backend a single time per backend name.
func (c *TieredCache) warnOnce(name string, err error) {
	c.warnMu.Lock()
	defer c.warnMu.Unlock()
	if c.warned[name] {
		return
	}
	c.warned[name] = true
	log.Printf("cache: %s tier unavailable, degrading: %v", name, err)
}

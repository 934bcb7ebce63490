package embedding

import (
	"container/list"
	"context"
	"fmt"
	"hash/fnv"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/clara-assistant/clara/internal/ports"
)

const (
	DefaultCacheSize = 1000
	DefaultCacheTTL  = time.Hour
)

// CachedEmbedder wraps an Embedder with an in-memory LRU+TTL cache keyed
// by a fingerprint of the normalized text. Concurrent misses for the same
// key are coalesced into one upstream call.
type CachedEmbedder struct {
	upstream ports.Embedder
	metrics  ports.MetricsRecorder

	mu      sync.Mutex
	entries map[uint64]*list.Element
	order   *list.List // front = most recently used
	maxSize int
	ttl     time.Duration

	hits      int64
	misses    int64
	evictions int64

	group singleflight.Group
}

type cacheEntry struct {
	key       uint64
	embedding []float32
	expiresAt time.Time
}

func NewCachedEmbedder(upstream ports.Embedder, maxSize int, ttl time.Duration, metrics ports.MetricsRecorder) *CachedEmbedder {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedEmbedder{
		upstream: upstream,
		metrics:  metrics,
		entries:  make(map[uint64]*list.Element),
		order:    list.New(),
		maxSize:  maxSize,
		ttl:      ttl,
	}
}

// fingerprint normalizes the text (trim, lowercase, collapse whitespace)
// and hashes it with FNV-64a, so trivially reformatted queries share an
// entry.
func fingerprint(text string) uint64 {
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = strings.Join(strings.Fields(normalized), " ")
	h := fnv.New64a()
	h.Write([]byte(normalized))
	return h.Sum64()
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) (*ports.EmbeddingResult, error) {
	key := fingerprint(text)

	if embedding, ok := c.lookup(key); ok {
		c.recordHit()
		return &ports.EmbeddingResult{Embedding: embedding, FromCache: true}, nil
	}
	c.recordMiss()

	v, err, _ := c.group.Do(fmt.Sprintf("%x", key), func() (interface{}, error) {
		// Re-check: another flight may have filled the entry between
		// our lookup and joining the group.
		if embedding, ok := c.lookup(key); ok {
			return embedding, nil
		}
		result, err := c.upstream.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		c.store(key, result.Embedding)
		return result.Embedding, nil
	})
	if err != nil {
		return nil, err
	}
	return &ports.EmbeddingResult{Embedding: v.([]float32)}, nil
}

func (c *CachedEmbedder) Dimension() int {
	return c.upstream.Dimension()
}

func (c *CachedEmbedder) lookup(key uint64) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.order.Remove(elem)
		delete(c.entries, key)
		return nil, false
	}
	c.order.MoveToFront(elem)
	return entry.embedding, true
}

func (c *CachedEmbedder) store(key uint64, embedding []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.embedding = embedding
		entry.expiresAt = time.Now().Add(c.ttl)
		c.order.MoveToFront(elem)
		return
	}

	for len(c.entries) >= c.maxSize {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		evicted := oldest.Value.(*cacheEntry)
		c.order.Remove(oldest)
		delete(c.entries, evicted.key)
		c.evictions++
		if c.metrics != nil {
			c.metrics.RecordCacheEviction()
		}
		log.Printf("[CachedEmbedder] evicted entry: key=%x, size=%d", evicted.key, len(c.entries))
	}

	elem := c.order.PushFront(&cacheEntry{
		key:       key,
		embedding: embedding,
		expiresAt: time.Now().Add(c.ttl),
	})
	c.entries[key] = elem
	if c.metrics != nil {
		c.metrics.SetCacheSize(len(c.entries))
	}
}

func (c *CachedEmbedder) recordHit() {
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.RecordCache(true)
	}
}

func (c *CachedEmbedder) recordMiss() {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.RecordCache(false)
	}
}

// CacheStats is a point-in-time snapshot of cache effectiveness.
type CacheStats struct {
	Size      int     `json:"size"`
	MaxSize   int     `json:"max_size"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

func (c *CachedEmbedder) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Size:      len(c.entries),
		MaxSize:   c.maxSize,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

// Package cache provides caching for clustering results and expression rows.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/cockroachdb/errors"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zstd"
)

// Config contains cache configuration.
type Config struct {
	ResultCacheSizeMB int
	ResultTTL         time.Duration
	RowCacheSize      int
}

// Manager holds the result cache, a TTL-bounded byte cache of compressed
// clustering payloads, and the row cache, an LRU of expression rows for
// store-backed datasets.
type Manager struct {
	results *bigcache.BigCache
	rows    *lru.Cache[string, []float64]
	enc     *zstd.Encoder
	dec     *zstd.Decoder
}

// NewManager creates a new cache manager.
func NewManager(cfg Config) (*Manager, error) {
	resultConfig := bigcache.Config{
		Shards:             256,
		LifeWindow:         cfg.ResultTTL,
		CleanWindow:        cfg.ResultTTL / 2,
		MaxEntriesInWindow: 10000,
		MaxEntrySize:       1024 * 1024,
		HardMaxCacheSize:   cfg.ResultCacheSizeMB,
		Verbose:            false,
	}

	results, err := bigcache.New(context.Background(), resultConfig)
	if err != nil {
		return nil, errors.Wrap(err, "creating result cache")
	}

	rows, err := lru.New[string, []float64](cfg.RowCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "creating row cache")
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, errors.Wrap(err, "creating zstd encoder")
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating zstd decoder")
	}

	return &Manager{
		results: results,
		rows:    rows,
		enc:     enc,
		dec:     dec,
	}, nil
}

// GetResult retrieves and decompresses a cached payload. A payload that
// fails to decompress counts as a miss.
func (m *Manager) GetResult(key string) ([]byte, bool) {
	compressed, err := m.results.Get(key)
	if err != nil {
		return nil, false
	}
	data, err := m.dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetResult compresses and stores a payload.
func (m *Manager) SetResult(key string, data []byte) error {
	return m.results.Set(key, m.enc.EncodeAll(data, nil))
}

// GetImage retrieves a rendered image. Images are stored as-is; PNG is
// already compressed.
func (m *Manager) GetImage(key string) ([]byte, bool) {
	data, err := m.results.Get(key)
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetImage stores a rendered image.
func (m *Manager) SetImage(key string, data []byte) error {
	return m.results.Set(key, data)
}

// GetRow retrieves an expression row from cache.
func (m *Manager) GetRow(key string) ([]float64, bool) {
	return m.rows.Get(key)
}

// SetRow stores an expression row in cache.
func (m *Manager) SetRow(key string, values []float64) {
	m.rows.Add(key, values)
}

// ResultKey builds a deterministic cache key for a clustering request. The
// gene list is sorted and hashed, so requests for the same set of genes hit
// the same entry regardless of request order.
func ResultKey(dataset, linkage string, genes []string) string {
	return fmt.Sprintf("cluster:%s:%s:%s", dataset, linkage, geneHash(genes))
}

// ImageKey builds a cache key for a rendered heatmap.
func ImageKey(dataset, colormap string, cellSize int, genes []string) string {
	return fmt.Sprintf("png:%s:%s:%d:%s", dataset, colormap, cellSize, geneHash(genes))
}

// RowKey identifies one gene row of one dataset.
func RowKey(dataset, gene string) string {
	return "row:" + dataset + ":" + strings.ToUpper(gene)
}

func geneHash(genes []string) string {
	sorted := make([]string, len(genes))
	for i, g := range genes {
		sorted[i] = strings.ToUpper(g)
	}
	sort.Strings(sorted)

	h := sha256.New()
	for i, g := range sorted {
		if i > 0 && g == sorted[i-1] {
			continue
		}
		h.Write([]byte(g))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Stats returns cache statistics.
func (m *Manager) Stats() map[string]interface{} {
	return map[string]interface{}{
		"result_cache_len": m.results.Len(),
		"result_cache_cap": m.results.Capacity(),
		"row_cache_len":    m.rows.Len(),
	}
}

// Close closes the cache manager.
func (m *Manager) Close() error {
	m.dec.Close()
	if err := m.enc.Close(); err != nil {
		return err
	}
	return m.results.Close()
}

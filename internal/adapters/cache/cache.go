// Package cache keeps recent pipeline results in a fixed-size freecache
// keyed by a digest of the input export and the run options.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/coocood/freecache"
	"github.com/golang/snappy"

	"github.com/okian/stride/internal/domain/activity"
	"github.com/okian/stride/internal/domain/pipeline"
	"github.com/okian/stride/pkg/logger"
	"github.com/okian/stride/pkg/metrics"
)

// MinSize is the smallest cache freecache accepts.
const MinSize = 512 * 1024

// freecache refuses an entry whose key and value exceed 1/1024 of the cache;
// chunkOverhead leaves room for the entry header and the chunk key.
const chunkOverhead = 128

// Stats reports cache usage. Hits and misses count results; Entries counts
// the freecache entries (headers and chunks) currently held.
type Stats struct {
	Entries int64   `json:"entries"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
	Skipped int64   `json:"skipped"`
}

// Cache stores snappy-compressed JSON results. A result is split into chunks
// small enough for freecache and read back only when every chunk is present.
// It is safe for concurrent use. Results come back without their normalized
// table.
type Cache struct {
	fc       *freecache.Cache
	ttl      time.Duration
	log      logger.Logger
	chunk    int
	maxBytes int

	hits    atomic.Int64
	misses  atomic.Int64
	skipped atomic.Int64
}

// Option applies a configuration option to the Cache.
type Option func(*Cache)

// WithTTL expires entries after ttl; zero keeps them until evicted.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl >= 0 {
			c.ttl = ttl
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.log = l
		}
	}
}

// New allocates a cache of sizeBytes. Sizes below MinSize are raised to it.
// One result may take up to a quarter of the cache.
func New(sizeBytes int, opts ...Option) *Cache {
	if sizeBytes < MinSize {
		sizeBytes = MinSize
	}
	c := &Cache{
		fc:       freecache.NewCache(sizeBytes),
		log:      logger.Nop(),
		chunk:    sizeBytes/1024 - chunkOverhead,
		maxBytes: sizeBytes / 4,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxResultBytes is the largest encoded result Put stores.
func (c *Cache) MaxResultBytes() int { return c.maxBytes }

// Get returns the cached result for key.
func (c *Cache) Get(ctx context.Context, key string) (pipeline.Result, bool) {
	blob, ok := c.load(key)
	if !ok {
		c.miss()
		return pipeline.Result{}, false
	}
	res, err := decode(blob)
	if err != nil {
		c.log.Warn(ctx, "dropping unreadable cache entry", logger.String("key", key), logger.Error(err))
		c.drop(key)
		c.miss()
		return pipeline.Result{}, false
	}
	c.hits.Add(1)
	metrics.RecordCacheHit()
	return res, true
}

// Put stores res under key. Results larger than MaxResultBytes are skipped.
func (c *Cache) Put(ctx context.Context, key string, res pipeline.Result) error {
	blob, err := encode(res)
	if err != nil {
		return err
	}
	if len(blob) > c.maxBytes {
		c.skipped.Add(1)
		c.log.Warn(ctx, "result too large to cache",
			logger.String("key", key), logger.Int("bytes", len(blob)), logger.Int("limit", c.maxBytes))
		return nil
	}

	expire := int(c.ttl / time.Second)
	n := 0
	for off := 0; off < len(blob); off += c.chunk {
		end := min(off+c.chunk, len(blob))
		if err := c.fc.Set([]byte(chunkKey(key, n)), blob[off:end], expire); err != nil {
			return c.abandon(ctx, key, n, len(blob), err)
		}
		n++
	}
	header := make([]byte, 8)
	binary.BigEndian.PutUint32(header[:4], uint32(n))
	binary.BigEndian.PutUint32(header[4:], uint32(len(blob)))
	if err := c.fc.Set([]byte(key), header, expire); err != nil {
		return c.abandon(ctx, key, n, len(blob), err)
	}
	return nil
}

// abandon removes the n chunks already written for key. A rejected entry is
// counted as skipped rather than failing the caller.
func (c *Cache) abandon(ctx context.Context, key string, n, size int, err error) error {
	for i := 0; i < n; i++ {
		c.fc.Del([]byte(chunkKey(key, i)))
	}
	if !errors.Is(err, freecache.ErrLargeEntry) {
		return err
	}
	c.skipped.Add(1)
	c.log.Warn(ctx, "cache entry rejected as too large", logger.String("key", key), logger.Int("bytes", size))
	return nil
}

// load reassembles the chunks under key. A missing or short chunk is a miss.
func (c *Cache) load(key string) ([]byte, bool) {
	header, err := c.fc.Get([]byte(key))
	if err != nil || len(header) != 8 {
		return nil, false
	}
	n := int(binary.BigEndian.Uint32(header[:4]))
	size := int(binary.BigEndian.Uint32(header[4:]))
	blob := make([]byte, 0, size)
	for i := 0; i < n; i++ {
		part, err := c.fc.Get([]byte(chunkKey(key, i)))
		if err != nil {
			c.drop(key)
			return nil, false
		}
		blob = append(blob, part...)
	}
	if len(blob) != size {
		c.drop(key)
		return nil, false
	}
	return blob, true
}

func (c *Cache) drop(key string) {
	header, err := c.fc.Get([]byte(key))
	c.fc.Del([]byte(key))
	if err != nil || len(header) != 8 {
		return
	}
	for i := 0; i < int(binary.BigEndian.Uint32(header[:4])); i++ {
		c.fc.Del([]byte(chunkKey(key, i)))
	}
}

func (c *Cache) miss() {
	c.misses.Add(1)
	metrics.RecordCacheMiss()
}

func chunkKey(key string, i int) string { return key + "#" + strconv.Itoa(i) }

// Stats returns the cache counters.
func (c *Cache) Stats() Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{
		Entries: c.fc.EntryCount(),
		Hits:    hits,
		Misses:  misses,
		HitRate: rate,
		Skipped: c.skipped.Load(),
	}
}

// Close drops every entry.
func (c *Cache) Close() error {
	c.fc.Clear()
	return nil
}

func encode(res pipeline.Result) ([]byte, error) {
	b, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return snappy.Encode(nil, b), nil
}

func decode(blob []byte) (pipeline.Result, error) {
	var res pipeline.Result
	b, err := snappy.Decode(nil, blob)
	if err != nil {
		return res, err
	}
	err = json.Unmarshal(b, &res)
	return res, err
}

// Key digests an export together with every option that changes the result.
// Equal inputs run with equal options share a key.
func Key(raw activity.RawTable, opts pipeline.Options) string {
	h := sha256.New()
	writeRaw(h, raw)
	fmt.Fprintf(h, "range=%s..%s|start=%s|cats=%v|hr=%d|roll=%d|top=%d|ctl=%d|atl=%d|int=%g",
		date(opts.Range.From), date(opts.Range.To), date(opts.DefaultStart), opts.Categories,
		opts.HRFillWindow, opts.RollingWindow, opts.TopN, opts.CTLSpan, opts.ATLSpan, opts.NeutralIntensity)
	return hex.EncodeToString(h.Sum(nil))
}

// Digest identifies an export regardless of options.
func Digest(raw activity.RawTable) string {
	h := sha256.New()
	writeRaw(h, raw)
	return hex.EncodeToString(h.Sum(nil))
}

func writeRaw(h hash.Hash, raw activity.RawTable) {
	writeCells(h, raw.Columns)
	for _, row := range raw.Rows {
		writeCells(h, row)
	}
}

// writeCells length-prefixes each cell so adjacent cells cannot collide.
func writeCells(w io.Writer, cells []string) {
	fmt.Fprintf(w, "%d:", len(cells))
	for _, c := range cells {
		fmt.Fprintf(w, "%d:%s", len(c), c)
	}
}

func date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

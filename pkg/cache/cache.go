// Package cache keeps search results per (source, query, platform) for a
// fixed TTL. Entries are replaced whole on every write, never patched.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"lootscout/pkg/clock"
	"lootscout/pkg/models"
)

// DefaultTTL is how long a cached search stays fresh.
const DefaultTTL = time.Hour

var (
	ErrNotFound = errors.New("cache entry not found")
	ErrCorrupt  = errors.New("cache entry corrupt")
)

// Key identifies one cached search.
type Key struct {
	Source   string
	Query    string
	Platform string
}

// Hash is the storage identifier for k. Fields are case-folded so "Zelda"
// and "zelda" share an entry.
func (k Key) Hash() string {
	parts := []string{
		strings.ToLower(strings.TrimSpace(k.Source)),
		strings.ToLower(strings.TrimSpace(k.Query)),
		strings.ToLower(strings.TrimSpace(k.Platform)),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// Entry is the persisted value for a key.
type Entry struct {
	Timestamp time.Time        `json:"timestamp"`
	Products  []models.Product `json:"products"`
}

// Store persists entries by key hash. Load returns ErrNotFound for unknown
// keys and ErrCorrupt for entries that cannot be decoded.
type Store interface {
	Load(hash string) (Entry, error)
	Save(hash string, e Entry) error
	// Prune removes entries written before cutoff.
	Prune(cutoff time.Time) (int, error)
	Close() error
}

type Cache struct {
	store Store
	ttl   time.Duration
	clock clock.Clock
	log   *slog.Logger
}

type Option func(*Cache)

func WithClock(c clock.Clock) Option {
	return func(cc *Cache) { cc.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(cc *Cache) { cc.log = l }
}

func New(store Store, ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{store: store, ttl: ttl, clock: clock.Real{}, log: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Cache) TTL() time.Duration {
	if c == nil {
		return 0
	}
	return c.ttl
}

// Get returns the entry for key if it is younger than the TTL. Missing,
// expired and unreadable entries all report a miss.
func (c *Cache) Get(key Key) (Entry, bool) {
	if c == nil || c.store == nil {
		return Entry{}, false
	}

	e, err := c.store.Load(key.Hash())
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.log.Warn("cache read failed, treating as miss", "source", key.Source, "err", err)
		}
		return Entry{}, false
	}

	if c.clock.Now().Sub(e.Timestamp) >= c.ttl {
		return Entry{}, false
	}
	return e, true
}

// Put stores products under key, replacing any previous entry.
func (c *Cache) Put(key Key, products []models.Product) error {
	if c == nil || c.store == nil {
		return nil
	}
	if products == nil {
		products = []models.Product{}
	}
	return c.store.Save(key.Hash(), Entry{Timestamp: c.clock.Now(), Products: products})
}

// Prune drops every expired entry and reports how many were removed.
func (c *Cache) Prune() (int, error) {
	if c == nil || c.store == nil {
		return 0, nil
	}
	return c.store.Prune(c.clock.Now().Add(-c.ttl))
}

func (c *Cache) Close() error {
	if c == nil || c.store == nil {
		return nil
	}
	return c.store.Close()
}

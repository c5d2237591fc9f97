package keycheck

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/crypto/blake2b"
)

// Cache stores confirmed verdicts by keyed digest.
type Cache struct {
	cache  *ristretto.Cache[string, Result]
	secret []byte
	ttl    time.Duration
}

// NewCache creates a verdict cache holding up to maxEntries results for ttl.
func NewCache(maxEntries int64, ttl time.Duration) (*Cache, error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("max entries must be positive, got %d", maxEntries)
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate cache secret: %w", err)
	}

	c, err := ristretto.NewCache(&ristretto.Config[string, Result]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create verdict cache: %w", err)
	}

	return &Cache{cache: c, secret: secret, ttl: ttl}, nil
}

// digest returns the hex BLAKE2b-256 MAC of provider and apiKey.
func (c *Cache) digest(provider, apiKey string) string {
	h, err := blake2b.New256(c.secret)
	if err != nil {
		// Only possible with a key longer than 64 bytes.
		panic(err)
	}
	h.Write([]byte(provider))
	h.Write([]byte{0})
	h.Write([]byte(apiKey))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached verdict for the pair.
func (c *Cache) Get(provider, apiKey string) (Result, bool) {
	return c.cache.Get(c.digest(provider, apiKey))
}

// Set stores a verdict. Sets are applied asynchronously.
func (c *Cache) Set(provider, apiKey string, r Result) {
	c.cache.SetWithTTL(c.digest(provider, apiKey), r, 1, c.ttl)
}

// Wait blocks until pending sets are applied.
func (c *Cache) Wait() {
	c.cache.Wait()
}

// Close stops the cache's background goroutines.
func (c *Cache) Close() {
	c.cache.Close()
}

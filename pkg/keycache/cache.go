// Package keycache provides a TTL'd, invalidatable cache of issuer signing
// keys for verifier services. It implements jwtx.KeyResolver, so a verifier
// can resolve kids against it directly; on a miss or a stale entry it
// refetches the JWKS at most once per attempt, coalescing concurrent
// refetches into a single upstream call.
package keycache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/redletterlabs/vouchsafe/pkg/jwtx"
)

// DefaultTTL is how long a fetched key set is trusted before the next
// resolve refetches it.
const DefaultTTL = 5 * time.Minute

// FetchFunc retrieves the current JWKS from the issuer. It must honour the
// context deadline.
type FetchFunc func(ctx context.Context) (jwtx.JWKS, error)

// Cache caches issuer public keys with a TTL. The zero value is not usable;
// construct with New.
type Cache struct {
	fetch FetchFunc
	ttl   time.Duration

	mu        sync.RWMutex
	keys      *jwtx.KeySet
	fetchedAt time.Time
	valid     bool

	group singleflight.Group
}

// New returns a Cache that fetches keys with fetch and trusts them for ttl.
// A ttl of zero or less uses DefaultTTL. The cache starts empty; the first
// Resolve triggers a fetch.
func New(fetch FetchFunc, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		fetch: fetch,
		ttl:   ttl,
		keys:  jwtx.NewKeySet(),
	}
}

// Resolve returns the public key for kid. If the cached set is fresh and
// contains kid, no fetch happens. Otherwise the cache refetches the JWKS
// exactly once for this attempt; a kid still absent after that refetch is
// an error, so a forged or long-revoked kid costs at most one upstream
// call. Fetch failures are returned to the caller, never masked with a
// stale answer.
func (c *Cache) Resolve(ctx context.Context, kid string) (any, error) {
	if key, ok := c.lookup(kid); ok {
		return key, nil
	}

	if err := c.refresh(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	key, err := c.keys.Resolve(ctx, kid)
	if err != nil {
		return nil, fmt.Errorf("keycache: kid %q not in current key set: %w", kid, jwtx.ErrUnknownKID)
	}
	return key, nil
}

// Warm fetches the JWKS eagerly so the first Resolve doesn't pay the
// upstream latency.
func (c *Cache) Warm(ctx context.Context) error {
	return c.refresh(ctx)
}

// Invalidate discards the cached keys. The next Resolve refetches.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.valid = false
}

// IsFresh reports whether the cache holds keys inside their TTL.
func (c *Cache) IsFresh() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.freshLocked(time.Now())
}

// lookup returns the key for kid only if the cached set is fresh.
func (c *Cache) lookup(kid string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.freshLocked(time.Now()) {
		return nil, false
	}
	key, err := c.keys.Resolve(context.Background(), kid)
	if err != nil {
		return nil, false
	}
	return key, true
}

func (c *Cache) freshLocked(now time.Time) bool {
	return c.valid && now.Sub(c.fetchedAt) < c.ttl
}

// refresh fetches the JWKS and swaps the key set. Concurrent callers share
// a single upstream fetch; each caller still respects its own context
// deadline while waiting. The fetch itself runs detached from the leading
// caller's context, so a leader cancelling mid-flight doesn't fail the
// followers coalesced onto the same fetch.
func (c *Cache) refresh(ctx context.Context) error {
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan("jwks", func() (any, error) {
		jwks, err := c.fetch(fetchCtx)
		if err != nil {
			return nil, err
		}

		keys := jwtx.NewKeySet()
		if err := keys.ResetFromJWKS(jwks); err != nil {
			return nil, fmt.Errorf("keycache: parse fetched JWKS: %w", err)
		}

		c.mu.Lock()
		c.keys = keys
		c.fetchedAt = time.Now()
		c.valid = true
		c.mu.Unlock()

		return nil, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return fmt.Errorf("keycache: fetch keys: %w", res.Err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("keycache: fetch keys: %w", ctx.Err())
	}
}

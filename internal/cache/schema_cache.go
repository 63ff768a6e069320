// internal/cache/schema_cache.go
package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"

	"github.com/Ian-Chin/iunami-ai-extension/internal/core"
)

// SchemaKey identifies one normalized schema. Revision is the dashboard's
// freshness token; a refresh bumps it so older entries are never hit again.
type SchemaKey struct {
	SessionID  string
	DatabaseID string
	Revision   int64
}

func (k SchemaKey) String() string {
	return fmt.Sprintf("%s/%s@%d", k.SessionID, k.DatabaseID, k.Revision)
}

// DefaultLoadTimeout bounds a shared load once it no longer belongs to any
// single caller.
const DefaultLoadTimeout = 30 * time.Second

// Loader fetches and normalizes a schema on a cache miss.
type Loader func(ctx context.Context) (core.NormalizeResult, error)

// SchemaCache is a bounded LRU of normalized schemas. Concurrent misses
// for the same key share one load.
type SchemaCache struct {
	entries     *lru.Cache
	group       singleflight.Group
	loadTimeout time.Duration
}

// NewSchemaCache creates a cache holding at most size schemas.
func NewSchemaCache(size int) (*SchemaCache, error) {
	if size < 1 {
		size = 1
	}
	entries, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("creating schema cache: %w", err)
	}
	return &SchemaCache{entries: entries, loadTimeout: DefaultLoadTimeout}, nil
}

// Get returns a cached schema.
func (c *SchemaCache) Get(key SchemaKey) (core.NormalizeResult, bool) {
	v, ok := c.entries.Get(key)
	if !ok {
		return core.NormalizeResult{}, false
	}
	return v.(core.NormalizeResult), true
}

// GetOrLoad returns the cached schema or calls load and caches its result.
// Failed loads are not cached.
//
// The load is shared by every caller waiting on key, so it runs detached
// from ctx under the cache's own timeout. A caller whose ctx ends stops
// waiting with ctx.Err(); the others still get the result.
func (c *SchemaCache) GetOrLoad(ctx context.Context, key SchemaKey, load Loader) (core.NormalizeResult, error) {
	if result, ok := c.Get(key); ok {
		return result, nil
	}

	ch := c.group.DoChan(key.String(), func() (any, error) {
		if result, ok := c.Get(key); ok {
			return result, nil
		}
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()

		result, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		c.entries.Add(key, result)
		return result, nil
	})

	select {
	case <-ctx.Done():
		return core.NormalizeResult{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return core.NormalizeResult{}, res.Err
		}
		return res.Val.(core.NormalizeResult), nil
	}
}

// Len reports how many schemas are cached.
func (c *SchemaCache) Len() int {
	return c.entries.Len()
}

// Purge drops every cached schema.
func (c *SchemaCache) Purge() {
	c.entries.Purge()
}

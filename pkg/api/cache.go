package api

import (
	"context"
	"errors"
	"time"
)

var (
	errCacheDisabled = errors.New("cache disabled")
	errCacheStopped  = errors.New("cache stopped")
)

// cacheLookup models one lookup-or-populate attempt.  A struct keeps
// the channel signature down to a single message type.
type cacheLookup struct {
	ctx    context.Context
	key    string
	loader func(context.Context) ([]byte, error)
	reply  chan cacheAnswer
}

type cacheAnswer struct {
	data []byte
	err  error
}

type cacheEntry struct {
	data    []byte
	expires time.Time
}

// ResponseCache keeps rendered JSON in memory so the dashboard and the
// map markers, which join several tables, do not hit the database on
// every page load.  State lives inside one goroutine and is reached
// only through channels; there are no mutexes.
type ResponseCache struct {
	ttl     time.Duration
	lookups chan cacheLookup
	quit    chan struct{}
	now     func() time.Time // injectable for tests
}

// NewResponseCache starts the cache goroutine.  A non-positive TTL
// returns nil, which every method treats as "caching disabled".
func NewResponseCache(ttl time.Duration) *ResponseCache {
	if ttl <= 0 {
		return nil
	}
	c := &ResponseCache{
		ttl:     ttl,
		lookups: make(chan cacheLookup),
		quit:    make(chan struct{}),
		now:     time.Now,
	}
	go c.loop()
	return c
}

// Close stops the cache goroutine; safe to call more than once.
func (c *ResponseCache) Close() {
	if c == nil {
		return
	}
	select {
	case <-c.quit:
	default:
		close(c.quit)
	}
}

// Get returns cached bytes for the key or runs loader to produce them.
// The stored slice is copied on the way out so callers may modify the
// result without poisoning later hits.
func (c *ResponseCache) Get(ctx context.Context, key string, loader func(context.Context) ([]byte, error)) ([]byte, error) {
	if c == nil {
		return nil, errCacheDisabled
	}
	req := cacheLookup{ctx: ctx, key: key, loader: loader, reply: make(chan cacheAnswer, 1)}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.quit:
		return nil, errCacheStopped
	case c.lookups <- req:
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.quit:
		return nil, errCacheStopped
	case ans := <-req.reply:
		if ans.err != nil {
			return nil, ans.err
		}
		out := make([]byte, len(ans.data))
		copy(out, ans.data)
		return out, nil
	}
}

// Invalidate forgets one key so the next Get reloads it.  Upload and
// write handlers call this, otherwise the map would show a stale track
// for up to a TTL after an upload.
func (c *ResponseCache) Invalidate(ctx context.Context, key string) {
	if c == nil {
		return
	}
	req := cacheLookup{ctx: ctx, key: key, reply: make(chan cacheAnswer, 1)}
	select {
	case <-ctx.Done():
	case <-c.quit:
	case c.lookups <- req:
		select {
		case <-req.reply:
		case <-c.quit:
		}
	}
}

// loop owns the map.  Expired entries are dropped lazily on access.
func (c *ResponseCache) loop() {
	store := make(map[string]cacheEntry)
	for {
		select {
		case <-c.quit:
			return
		case req := <-c.lookups:
			// A lookup without a loader is an invalidation.
			if req.loader == nil {
				delete(store, req.key)
				req.reply <- cacheAnswer{}
				continue
			}
			now := c.now()
			if entry, ok := store[req.key]; ok && now.Before(entry.expires) {
				req.reply <- cacheAnswer{data: entry.data}
				continue
			}
			data, err := req.loader(req.ctx)
			if err == nil && data != nil {
				buf := make([]byte, len(data))
				copy(buf, data)
				store[req.key] = cacheEntry{data: buf, expires: now.Add(c.ttl)}
			} else {
				delete(store, req.key)
			}
			req.reply <- cacheAnswer{data: data, err: err}
		}
	}
}

package contentstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/ledgerdesk/ledgerdesk/internal/clock"
)

// Client resolves digests local-cache first, then remote.
type Client struct {
	cache       *lru.Cache[string, []byte]
	remote      Remote
	clock       clock.Clock
	logger      *zap.Logger
	negativeTTL time.Duration
	putRetries  int
	backoff     time.Duration

	mu       sync.Mutex
	negative map[string]time.Time
}

// Option customizes a Client.
type Option func(*Client)

// WithClock injects the time source used for negative-cache expiry and backoff.
func WithClock(c clock.Clock) Option {
	return func(cl *Client) { cl.clock = c }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(cl *Client) {
		if logger != nil {
			cl.logger = logger
		}
	}
}

// WithNegativeTTL sets how long a miss or failure is remembered.
func WithNegativeTTL(ttl time.Duration) Option {
	return func(cl *Client) { cl.negativeTTL = ttl }
}

// WithPutRetries sets the number of extra attempts for a failed upload.
func WithPutRetries(n int, backoff time.Duration) Option {
	return func(cl *Client) {
		if n >= 0 {
			cl.putRetries = n
		}
		cl.backoff = backoff
	}
}

// NewClient builds a Client with an LRU of cacheEntries blobs.
func NewClient(remote Remote, cacheEntries int, opts ...Option) (*Client, error) {
	if remote == nil {
		return nil, errors.New("contentstore: remote required")
	}
	if cacheEntries <= 0 {
		cacheEntries = 1024
	}
	cache, err := lru.New[string, []byte](cacheEntries)
	if err != nil {
		return nil, fmt.Errorf("contentstore: cache: %w", err)
	}
	c := &Client{
		cache:       cache,
		remote:      remote,
		clock:       clock.NewSystem(),
		logger:      zap.NewNop(),
		negativeTTL: 10 * time.Second,
		putRetries:  3,
		backoff:     200 * time.Millisecond,
		negative:    make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Put stores data and returns its digest. The digest is computed before any
// network call and is returned even when the upload fails, so callers can
// retry with the same reference.
func (c *Client) Put(ctx context.Context, data []byte) (string, error) {
	digest := Digest(data)
	c.cache.Add(digest, append([]byte(nil), data...))
	c.clearNegative(digest)

	var lastErr error
	for attempt := 0; attempt <= c.putRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return digest, ctx.Err()
			case <-c.clock.After(c.backoff * time.Duration(1<<(attempt-1))):
			}
		}
		lastErr = c.remote.Put(ctx, digest, data)
		if lastErr == nil {
			return digest, nil
		}
		c.logger.Warn("content upload failed",
			zap.String("digest", digest),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr))
	}
	return digest, fmt.Errorf("upload %s: %w", digest, lastErr)
}

// Get resolves a digest. found is false when the store does not have the
// content or recently failed to serve it; err is reserved for malformed
// references and cancellation.
func (c *Client) Get(ctx context.Context, digest string) ([]byte, bool, error) {
	if !IsDigest(digest) {
		return nil, false, ErrInvalidDigest
	}
	if data, ok := c.cache.Get(digest); ok {
		return append([]byte(nil), data...), true, nil
	}
	if c.negativeHit(digest) {
		return nil, false, nil
	}

	data, err := c.remote.Get(ctx, digest)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, false, ctxErr
		}
		if !errors.Is(err, ErrNotFound) {
			c.logger.Warn("content fetch failed", zap.String("digest", digest), zap.Error(err))
		}
		c.markNegative(digest)
		return nil, false, nil
	}
	if !Verify(digest, data) {
		c.logger.Warn("content digest mismatch", zap.String("digest", digest))
		c.markNegative(digest)
		return nil, false, nil
	}

	c.cache.Add(digest, data)
	return append([]byte(nil), data...), true, nil
}

func (c *Client) negativeHit(digest string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.negative[digest]
	if !ok {
		return false
	}
	if c.clock.Now().Before(until) {
		return true
	}
	delete(c.negative, digest)
	return false
}

func (c *Client) markNegative(digest string) {
	if c.negativeTTL <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.negative[digest] = c.clock.Now().Add(c.negativeTTL)
}

func (c *Client) clearNegative(digest string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.negative, digest)
}

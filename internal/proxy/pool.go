package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/book-expert/logger"
	"github.com/linyqh/edge-tts-service/internal/core"
)

// ErrNoProvider indicates a reload was requested on a pool without a
// configured list provider.
var ErrNoProvider = errors.New("proxy pool has no list provider")

// Pool is a FIFO queue of proxy candidates. Instead of mutating process-wide
// proxy environment, every attempt receives its own *http.Client pinned to
// one candidate, so concurrent callers never observe each other's proxy
// choice. Only the queue itself needs locking.
type Pool struct {
	mu       sync.Mutex
	queue    []string
	provider *Provider
	log      *logger.Logger
}

// NewPool creates a pool backed by the given provider. The provider may be
// nil when proxy rotation is disabled; the pool then always attempts
// directly.
func NewPool(provider *Provider, log *logger.Logger) *Pool {
	return &Pool{
		provider: provider,
		log:      log,
	}
}

// Reload replaces the queue with a fresh list from the provider. This is the
// only way the pool is replenished.
func (p *Pool) Reload(ctx context.Context) error {
	if p.provider == nil {
		return ErrNoProvider
	}

	addresses, err := p.provider.ListProxies(ctx)
	if err != nil {
		return fmt.Errorf("failed to reload proxy pool: %w", err)
	}

	p.mu.Lock()
	p.queue = addresses
	p.mu.Unlock()

	p.log.Info("Proxy pool reloaded with %d candidates", len(addresses))

	return nil
}

// Len reports the number of queued candidates.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.queue)
}

// pop removes and returns the front candidate.
func (p *Pool) pop() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.queue) == 0 {
		return "", false
	}

	address := p.queue[0]
	p.queue = p.queue[1:]

	return address, true
}

// WithFailover invokes op through successive proxies until it succeeds. Each
// attempt consumes the front of the queue; once the queue is empty one final
// attempt is made with no proxy. Total attempts are bounded by the queue
// length at entry plus one. If every attempt fails the last error is wrapped
// in ErrProxyPoolExhausted.
func (p *Pool) WithFailover(ctx context.Context, op func(ctx context.Context, client *http.Client) error) error {
	attempts := p.Len() + 1

	var lastErr error

	for i := 0; i < attempts; i++ {
		address, viaProxy := p.pop()

		client, err := clientFor(address, viaProxy)
		if err != nil {
			lastErr = err

			continue
		}

		err = op(ctx, client)
		if err == nil {
			return nil
		}

		lastErr = err

		if viaProxy {
			p.log.Warn("Attempt via proxy %s failed, rotating: %v", address, err)
		}

		if !viaProxy {
			// The direct attempt was the last resort.
			break
		}
	}

	return fmt.Errorf("%w: %w", core.ErrProxyPoolExhausted, lastErr)
}

// clientFor builds a per-attempt HTTP client. Without a proxy the client uses
// the default transport.
func clientFor(address string, viaProxy bool) (*http.Client, error) {
	if !viaProxy {
		return &http.Client{}, nil
	}

	if !strings.Contains(address, "://") {
		address = "http://" + address
	}

	proxyURL, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("failed to parse proxy address '%s': %w", address, err)
	}

	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyURL(proxyURL),
		},
	}, nil
}

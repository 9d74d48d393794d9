// Package catalog fetches the product catalog from the upstream catalog API.
// The storefront does not own product data; it proxies and caches it.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/marcus-menezes/starstore-backend/internal/domain"
	apperrors "github.com/marcus-menezes/starstore-backend/pkg/errors"
	"github.com/marcus-menezes/starstore-backend/pkg/httpclient"
)

// Config holds catalog client settings. Values come from the service config,
// which owns the environment variable mapping.
type Config struct {
	BaseURL  string
	CacheTTL time.Duration
}

// Client fetches products from the upstream catalog behind a circuit breaker,
// with a short-lived full-list cache. When the upstream is down and the cache
// has expired, the last known list is served stale rather than failing the
// storefront's product pages.
type Client struct {
	http    *httpclient.CircuitBreakerClient
	baseURL string
	ttl     time.Duration
	logger  *slog.Logger

	mu        sync.Mutex
	cached    []domain.Product
	fetchedAt time.Time
}

// New creates a catalog client.
func New(cfg Config, http *httpclient.CircuitBreakerClient, logger *slog.Logger) *Client {
	return &Client{
		http:    http,
		baseURL: cfg.BaseURL,
		ttl:     cfg.CacheTTL,
		logger:  logger,
	}
}

// ListProducts returns the full catalog, served from cache within the TTL.
func (c *Client) ListProducts(ctx context.Context) ([]domain.Product, error) {
	c.mu.Lock()
	if c.cached != nil && time.Since(c.fetchedAt) < c.ttl {
		products := c.cached
		c.mu.Unlock()
		return products, nil
	}
	c.mu.Unlock()

	products, err := c.fetchProducts(ctx)
	if err != nil {
		c.mu.Lock()
		stale := c.cached
		c.mu.Unlock()
		if stale != nil {
			c.logger.WarnContext(ctx, "catalog fetch failed, serving stale cache",
				slog.String("error", err.Error()),
				slog.Int("products", len(stale)),
			)
			return stale, nil
		}
		return nil, err
	}

	c.mu.Lock()
	c.cached = products
	c.fetchedAt = time.Now()
	c.mu.Unlock()

	return products, nil
}

// GetProduct returns one product by id. It resolves from the cached list to
// keep detail lookups off the upstream; a miss after a fresh fetch means the
// product does not exist.
func (c *Client) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	products, err := c.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	for i := range products {
		if products[i].ID == id {
			p := products[i]
			return &p, nil
		}
	}
	return nil, apperrors.NotFound("product", id)
}

func (c *Client) fetchProducts(ctx context.Context) ([]domain.Product, error) {
	resp, err := c.http.Get(ctx, c.baseURL+"/products")
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to reach catalog service")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, httpclient.ParseResponseError(resp, "catalog")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to read catalog response")
	}

	var products []domain.Product
	if err := json.Unmarshal(body, &products); err != nil {
		return nil, apperrors.Wrap(err, fmt.Sprintf("invalid catalog response (%d bytes)", len(body)))
	}

	return products, nil
}

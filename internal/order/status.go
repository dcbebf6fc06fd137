package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mailops/internal/model"
	"mailops/pkg/logger"
)

var (
	ErrNotFound    = errors.New("order not found at status source")
	ErrRateLimited = errors.New("order status source rate limited")
	ErrConnection  = errors.New("order status source unreachable")
)

// StatusSnapshot is what the external order-status source reports for one
// order number.
type StatusSnapshot struct {
	Status           model.OrderStatus `json:"status"`
	TrackingNumber   string            `json:"tracking_number"`
	EstimatedArrival string            `json:"estimated_arrival"`
	DeliveredAt      *time.Time        `json:"delivered_at"`
}

type StatusClient interface {
	FetchStatus(ctx context.Context, orderNumber string) (*StatusSnapshot, error)
}

// HTTPStatusClient queries the vendor order-status endpoint.
type HTTPStatusClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPStatusClient(baseURL string, timeout time.Duration) *HTTPStatusClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPStatusClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPStatusClient) FetchStatus(ctx context.Context, orderNumber string) (*StatusSnapshot, error) {
	url := fmt.Sprintf("%s/orders/%s/status", c.baseURL, orderNumber)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, orderNumber)
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	default:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrConnection, resp.StatusCode)
	}

	var snap StatusSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrConnection, err)
	}
	return &snap, nil
}

// CachedStatusClient puts a TTL-bounded redis cache in front of the status
// source so frequent refresh runs do not hammer it. Cache errors fail open.
type CachedStatusClient struct {
	inner StatusClient
	rdb   *redis.Client
	ttl   time.Duration
}

func NewCachedStatusClient(inner StatusClient, rdb *redis.Client, ttl time.Duration) *CachedStatusClient {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedStatusClient{inner: inner, rdb: rdb, ttl: ttl}
}

func (c *CachedStatusClient) FetchStatus(ctx context.Context, orderNumber string) (*StatusSnapshot, error) {
	key := "mailops:order:status:" + orderNumber

	if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var snap StatusSnapshot
		if json.Unmarshal(raw, &snap) == nil {
			return &snap, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		logger.Warn("order status cache unavailable", zap.Error(err))
	}

	snap, err := c.inner.FetchStatus(ctx, orderNumber)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(snap); err == nil {
		if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			logger.Debug("order status cache write failed", zap.Error(err))
		}
	}
	return snap, nil
}

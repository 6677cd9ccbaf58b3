package payment

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"duangpay/internal/metrics"
)

const defaultTimeout = 15 * time.Second

// httpClient is the shared request plumbing for provider implementations:
// bounded timeout, prometheus request/latency metrics, and classification of
// failures into ErrProviderRequest.
type httpClient struct {
	name    string
	http    *http.Client
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func newHTTPClient(name string, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *httpClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &httpClient{
		name:    name,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With("component", name),
		metrics: m,
	}
}

// do executes the request and returns the response body. Network errors,
// timeouts and non-2xx statuses all surface as ErrProviderRequest; the
// endpoint label keeps metrics cardinality bounded.
func (c *httpClient) do(ctx context.Context, req *http.Request, endpoint string) ([]byte, error) {
	req = req.WithContext(ctx)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		if c.metrics != nil {
			c.metrics.ProviderRequests.WithLabelValues(c.name, endpoint, "error").Inc()
		}
		return nil, fmt.Errorf("%w: %s %s: %v", ErrProviderRequest, c.name, endpoint, err)
	}
	defer res.Body.Close()

	duration := time.Since(start).Seconds()
	statusLabel := strconv.Itoa(res.StatusCode)
	if c.metrics != nil {
		c.metrics.ProviderRequests.WithLabelValues(c.name, endpoint, statusLabel).Inc()
		c.metrics.ProviderLatency.WithLabelValues(c.name, endpoint, statusLabel).Observe(duration)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrProviderRequest, err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		c.logger.Warn("provider returned error status",
			"endpoint", endpoint, "status", res.StatusCode)
		return nil, fmt.Errorf("%w: %s %s: status %d", ErrProviderRequest, c.name, endpoint, res.StatusCode)
	}

	return body, nil
}

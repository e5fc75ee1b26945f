package ragdex

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	logger       *zap.Logger
	embedder     Embedder
	httpClient   *http.Client
	pollInterval time.Duration
}

// WithLogger sets the zap logger shared by every component. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		if l != nil {
			c.logger = l
		}
	})
}

// WithEmbedder replaces the configured embedding provider. Rate limiting,
// retries, batching and the ingestion cache still wrap it.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithHTTPClient sets the HTTP client used by the embedding provider.
func WithHTTPClient(hc *http.Client) Option {
	return optionFunc(func(c *clientConfig) {
		c.httpClient = hc
	})
}

// WithPollInterval sets how often Wait re-reads the ingestion status.
// Default: 200ms.
func WithPollInterval(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		if d > 0 {
			c.pollInterval = d
		}
	})
}

package transport

import (
	"context"

	"github.com/ejkkan/voddly-sub005/internal/config"
	"github.com/ejkkan/voddly-sub005/internal/events"
)

// Transport abstracts backend communication. All credential subsystem
// calls are JSON-over-HTTPS round trips; network errors propagate to the
// caller unchanged.
type Transport interface {
	PostJSON(ctx context.Context, path string, payload interface{}) (map[string]interface{}, error)

	// Authentication
	SetToken(token string)
	GetToken() string

	// Lifecycle
	Close() error
}

// DefaultTransport implements the Transport interface.
type DefaultTransport struct {
	httpClient *HTTPClient
}

// NewTransport creates a transport instance.
func NewTransport(cfg *config.APIConfig, logger *events.Logger) Transport {
	return &DefaultTransport{
		httpClient: NewHTTPClient(cfg, logger),
	}
}

// PostJSON forwards to the HTTP client.
func (t *DefaultTransport) PostJSON(ctx context.Context, path string, payload interface{}) (map[string]interface{}, error) {
	return t.httpClient.PostJSON(ctx, path, payload)
}

// SetToken sets the auth token.
func (t *DefaultTransport) SetToken(token string) {
	t.httpClient.SetToken(token)
}

// GetToken returns the current auth token.
func (t *DefaultTransport) GetToken() string {
	return t.httpClient.GetToken()
}

// Close closes idle connections.
func (t *DefaultTransport) Close() error {
	t.httpClient.CloseIdle()
	return nil
}

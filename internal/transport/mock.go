package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MockTransport provides a mock implementation for testing.
type MockTransport struct {
	mu sync.Mutex

	// Response configuration
	PostResponses map[string]interface{}

	// Error injection, per path and global
	PostErrors map[string]error
	PostError  error

	// Optional per-path hooks, called instead of canned responses
	Handlers map[string]func(payload interface{}) (map[string]interface{}, error)

	// Request tracking
	PostRequests []PostRequest

	token  string
	closed bool
}

// PostRequest tracks POST requests.
type PostRequest struct {
	Path    string
	Payload interface{}
}

// NewMockTransport creates a mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		PostResponses: make(map[string]interface{}),
		PostErrors:    make(map[string]error),
		Handlers:      make(map[string]func(payload interface{}) (map[string]interface{}, error)),
	}
}

// PostJSON mocks HTTP POST.
func (m *MockTransport) PostJSON(ctx context.Context, path string, payload interface{}) (map[string]interface{}, error) {
	m.mu.Lock()
	m.PostRequests = append(m.PostRequests, PostRequest{Path: path, Payload: payload})
	handler := m.Handlers[path]
	pathErr := m.PostErrors[path]
	globalErr := m.PostError
	resp, hasResp := m.PostResponses[path]
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if handler != nil {
		return handler(payload)
	}

	if pathErr != nil {
		return nil, pathErr
	}

	if globalErr != nil {
		return nil, globalErr
	}

	if hasResp {
		if mapResp, ok := resp.(map[string]interface{}); ok {
			return mapResp, nil
		}

		// Round-trip through JSON so struct responses look like wire data.
		data, err := json.Marshal(resp)
		if err != nil {
			return nil, err
		}
		var result map[string]interface{}
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, err
		}
		return result, nil
	}

	return nil, fmt.Errorf("no mock response for %s", path)
}

// SetToken mocks token setting.
func (m *MockTransport) SetToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
}

// GetToken returns the current token.
func (m *MockTransport) GetToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Close mocks connection closing.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Helper methods for test setup

// AddResponse adds a mock POST response.
func (m *MockTransport) AddResponse(path string, response interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PostResponses[path] = response
}

// AddError sets an error for a specific path.
func (m *MockTransport) AddError(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PostErrors[path] = err
}

// AddHandler installs a dynamic handler for a path.
func (m *MockTransport) AddHandler(path string, fn func(payload interface{}) (map[string]interface{}, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Handlers[path] = fn
}

// Requests returns a copy of recorded requests for a path.
func (m *MockTransport) Requests(path string) []PostRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []PostRequest
	for _, r := range m.PostRequests {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

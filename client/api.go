package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// APIClient is the request/response surface the pending queue replays
// against. One call per queued change; durability comes from
// retry-by-resubmission, not from the socket layer.
type APIClient interface {
	Create(ctx context.Context, entityType string, data map[string]interface{}) error
	Update(ctx context.Context, entityType, entityID string, data map[string]interface{}) error
	Delete(ctx context.Context, entityType, entityID string) error
}

// HTTPAPIClient talks to the backend's REST API
type HTTPAPIClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPAPIClient(baseURL, token string) *HTTPAPIClient {
	return &HTTPAPIClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *HTTPAPIClient) Create(ctx context.Context, entityType string, data map[string]interface{}) error {
	return c.do(ctx, http.MethodPost, c.collectionPath(entityType), data)
}

func (c *HTTPAPIClient) Update(ctx context.Context, entityType, entityID string, data map[string]interface{}) error {
	return c.do(ctx, http.MethodPatch, c.collectionPath(entityType)+"/"+entityID, data)
}

func (c *HTTPAPIClient) Delete(ctx context.Context, entityType, entityID string) error {
	return c.do(ctx, http.MethodDelete, c.collectionPath(entityType)+"/"+entityID, nil)
}

func (c *HTTPAPIClient) collectionPath(entityType string) string {
	return "/api/v1/" + entityType + "s"
}

func (c *HTTPAPIClient) do(ctx context.Context, method, path string, data map[string]interface{}) error {
	var body *bytes.Reader
	if data != nil {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(payload)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s returned status %d", method, path, resp.StatusCode)
	}
	return nil
}

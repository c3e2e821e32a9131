package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/alfredjeanlab/refguard/internal/model"
)

// HTTPClient implements Client using the refguard HTTP/JSON API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

func documentsPath(modelName string) string {
	return "/v1/models/" + url.PathEscape(modelName) + "/documents"
}

func documentPath(modelName, id string) string {
	return documentsPath(modelName) + "/" + url.PathEscape(id)
}

func (c *HTTPClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	var resp listModelsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/models", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Models, nil
}

func (c *HTTPClient) CreateDocument(ctx context.Context, modelName string, fields map[string]any) (*model.Document, error) {
	var doc model.Document
	if err := c.doJSON(ctx, http.MethodPost, documentsPath(modelName), fields, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *HTTPClient) GetDocument(ctx context.Context, modelName, id string) (*model.Document, error) {
	var doc model.Document
	if err := c.doJSON(ctx, http.MethodGet, documentPath(modelName, id), nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *HTTPClient) ListDocuments(ctx context.Context, modelName string) ([]*model.Document, error) {
	var resp listDocumentsResponse
	if err := c.doJSON(ctx, http.MethodGet, documentsPath(modelName), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Documents, nil
}

func (c *HTTPClient) SaveDocument(ctx context.Context, modelName, id string, fields map[string]any) (*model.Document, error) {
	var doc model.Document
	if err := c.doJSON(ctx, http.MethodPut, documentPath(modelName, id), fields, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *HTTPClient) UpdateDocument(ctx context.Context, modelName, id string, upd model.Update) (*model.Document, error) {
	var doc model.Document
	if err := c.doJSON(ctx, http.MethodPatch, documentPath(modelName, id), upd, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *HTTPClient) DeleteDocument(ctx context.Context, modelName, id string) error {
	return c.doJSON(ctx, http.MethodDelete, documentPath(modelName, id), nil, nil)
}

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// Export streams the server's JSONL export into w.
func (c *HTTPClient) Export(ctx context.Context, w io.Writer) error {
	resp, err := c.do(ctx, http.MethodGet, "/v1/export", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return readAPIError(resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("reading export: %w", err)
	}
	return nil
}

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Unwrap lets callers match rejected writes and missing documents with
// errors.Is.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnprocessableEntity:
		return model.ErrMissingReference
	case http.StatusNotFound:
		return ErrNotFound
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	return resp, nil
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded (for DELETE/204 responses).
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if resp.StatusCode >= 400 {
		return readAPIError(resp)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	var errResp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
}

// Package client is a thin HTTP client for the AI Video Pro API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aivideopro/aivideopro/internal/model"
)

// DefaultBaseURL is used when no API URL is configured.
const DefaultBaseURL = "http://localhost:8080"

// ErrNoAPIKey is returned by New when the key is empty.
var ErrNoAPIKey = errors.New("API key is required")

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// Client calls the API with a bearer API key.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New creates a client for baseURL.
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Me returns the caller's account and credits balance.
func (c *Client) Me(ctx context.Context) (*model.AccountResponse, error) {
	var account model.AccountResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/me", nil, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// SubmitEdit submits a video URL and prompt.
func (c *Client) SubmitEdit(ctx context.Context, videoURL, prompt string) (*model.EditResponse, error) {
	var resp model.EditResponse
	body := model.EditRequest{VideoURL: videoURL, Prompt: prompt}
	if err := c.do(ctx, http.MethodPost, "/api/edit", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetJob returns one job owned by the caller.
func (c *Client) GetJob(ctx context.Context, jobID string) (*model.JobResponse, error) {
	var job model.JobResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/jobs/"+jobID, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// CreateUpload asks the API for a presigned upload URL.
func (c *Client) CreateUpload(ctx context.Context, req model.UploadRequest) (*model.UploadResponse, error) {
	var resp model.UploadResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/uploads", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadFile uploads a local video and returns the URL to submit.
func (c *Client) UploadFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open video: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat video: %w", err)
	}

	contentType := videoContentType(path)

	upload, err := c.CreateUpload(ctx, model.UploadRequest{
		Filename:    filepath.Base(path),
		ContentType: contentType,
		SizeBytes:   info.Size(),
	})
	if err != nil {
		return "", err
	}

	method := upload.Method
	if method == "" {
		method = http.MethodPut
	}
	req, err := http.NewRequestWithContext(ctx, method, upload.UploadURL, f)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.ContentLength = info.Size()
	for k, v := range upload.Headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}

	// The presigned URL carries its own credentials; no bearer key.
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload video: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return upload.VideoURL, nil
}

var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
}

func videoContentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := videoTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); strings.HasPrefix(ct, "video/") {
		return ct
	}
	return "video/mp4"
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeAPIError understands both error bodies the API writes:
// {"error": "...", "code": "..."} and {"error": {"code": "...", "message": "..."}}.
func decodeAPIError(status int, data []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Message: http.StatusText(status)}

	var envelope struct {
		Error json.RawMessage `json:"error"`
		Code  string          `json:"code"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || len(envelope.Error) == 0 {
		if text := strings.TrimSpace(string(data)); text != "" {
			apiErr.Message = text
		}
		return apiErr
	}

	var message string
	if err := json.Unmarshal(envelope.Error, &message); err == nil {
		apiErr.Message = message
		apiErr.Code = envelope.Code
		return apiErr
	}

	var nested struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(envelope.Error, &nested); err == nil {
		apiErr.Code = nested.Code
		if nested.Message != "" {
			apiErr.Message = nested.Message
		}
	}
	return apiErr
}

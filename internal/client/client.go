// Package client is the HTTP client for the annotation API. The terminal
// workbench talks to the server exclusively through it.
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
	"time"

	"github.com/mettafore/evals-workshop/internal/models"
)

// API is the surface the session layer depends on. *Client implements it;
// tests substitute a fake.
type API interface {
	GetContext(ctx context.Context, runID string) (*models.ContextResponse, error)
	CreateLabeler(ctx context.Context, req *models.CreateLabelerRequest) (*models.Labeler, error)
	GetEmailDetail(ctx context.Context, emailHash, labelerID string) (*models.EmailDetailResponse, error)
	UpsertJudgment(ctx context.Context, req *models.JudgmentRequest) (*models.Judgment, error)
	DeleteJudgment(ctx context.Context, emailHash, labelerID string) error
	CreateAnnotation(ctx context.Context, req *models.AnnotationRequest) (*models.Annotation, error)
	UpdateAnnotation(ctx context.Context, annotationID, openCode string) (*models.Annotation, error)
	DeleteAnnotation(ctx context.Context, annotationID string) error
	CreateFailureMode(ctx context.Context, req *models.FailureModeRequest) (*models.FailureMode, error)
	SuggestFailureModes(ctx context.Context, emailHash string) ([]models.Suggestion, error)
	CreateAxialLink(ctx context.Context, req *models.AxialLinkRequest) (*models.AxialLink, error)
	DeleteAxialLink(ctx context.Context, annotationID, failureModeID string) error
}

// Client talks to the annotation server over HTTP/JSON.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the given base URL, e.g. "http://localhost:8080".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// do runs one request and decodes the response into out (when non-nil).
// Non-2xx responses become errors carrying the server's message.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// apiError turns a non-2xx response into an error. The server's "error"
// field (or raw body) becomes the message; an empty body synthesizes
// "HTTP <status>".
func apiError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		return fmt.Errorf("%s", payload.Error)
	}

	text := strings.TrimSpace(string(data))
	if text != "" {
		return fmt.Errorf("%s", text)
	}

	return fmt.Errorf("HTTP %d", resp.StatusCode)
}

func (c *Client) GetContext(ctx context.Context, runID string) (*models.ContextResponse, error) {
	path := "/api/context"
	if runID != "" {
		path += "?run_id=" + url.QueryEscape(runID)
	}

	var resp models.ContextResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) CreateLabeler(ctx context.Context, req *models.CreateLabelerRequest) (*models.Labeler, error) {
	var labeler models.Labeler
	if err := c.do(ctx, http.MethodPost, "/api/labelers", req, &labeler); err != nil {
		return nil, err
	}
	return &labeler, nil
}

func (c *Client) GetEmailDetail(ctx context.Context, emailHash, labelerID string) (*models.EmailDetailResponse, error) {
	path := "/api/email/" + url.PathEscape(emailHash)
	if labelerID != "" {
		path += "?labeler_id=" + url.QueryEscape(labelerID)
	}

	var detail models.EmailDetailResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

func (c *Client) UpsertJudgment(ctx context.Context, req *models.JudgmentRequest) (*models.Judgment, error) {
	var judgment models.Judgment
	if err := c.do(ctx, http.MethodPost, "/api/judgments", req, &judgment); err != nil {
		return nil, err
	}
	return &judgment, nil
}

func (c *Client) DeleteJudgment(ctx context.Context, emailHash, labelerID string) error {
	path := fmt.Sprintf("/api/judgments?email_hash=%s&labeler_id=%s",
		url.QueryEscape(emailHash), url.QueryEscape(labelerID))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) CreateAnnotation(ctx context.Context, req *models.AnnotationRequest) (*models.Annotation, error) {
	var ann models.Annotation
	if err := c.do(ctx, http.MethodPost, "/api/annotations", req, &ann); err != nil {
		return nil, err
	}
	return &ann, nil
}

func (c *Client) UpdateAnnotation(ctx context.Context, annotationID, openCode string) (*models.Annotation, error) {
	req := models.AnnotationUpdateRequest{OpenCode: openCode}

	var ann models.Annotation
	if err := c.do(ctx, http.MethodPut, "/api/annotations/"+url.PathEscape(annotationID), req, &ann); err != nil {
		return nil, err
	}
	return &ann, nil
}

func (c *Client) DeleteAnnotation(ctx context.Context, annotationID string) error {
	return c.do(ctx, http.MethodDelete, "/api/annotations/"+url.PathEscape(annotationID), nil, nil)
}

func (c *Client) CreateFailureMode(ctx context.Context, req *models.FailureModeRequest) (*models.FailureMode, error) {
	var fm models.FailureMode
	if err := c.do(ctx, http.MethodPost, "/api/failure-modes", req, &fm); err != nil {
		return nil, err
	}
	return &fm, nil
}

func (c *Client) SuggestFailureModes(ctx context.Context, emailHash string) ([]models.Suggestion, error) {
	path := "/api/failure-modes/suggest?email_hash=" + url.QueryEscape(emailHash)

	var resp models.SuggestionsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Suggestions, nil
}

func (c *Client) CreateAxialLink(ctx context.Context, req *models.AxialLinkRequest) (*models.AxialLink, error) {
	var link models.AxialLink
	if err := c.do(ctx, http.MethodPost, "/api/axial-links", req, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

func (c *Client) DeleteAxialLink(ctx context.Context, annotationID, failureModeID string) error {
	path := fmt.Sprintf("/api/axial-links?annotation_id=%s&failure_mode_id=%s",
		url.QueryEscape(annotationID), url.QueryEscape(failureModeID))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

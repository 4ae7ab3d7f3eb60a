// Package apiclient talks to the external Assessment API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"sympto/internal/models"
)

const maxResponseBytes = 4 << 20

// APIError is a request the API answered but did not fulfil.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string { return e.Message }

type tokenKey struct{}

// WithToken returns a context carrying the caller's bearer token.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFrom returns the bearer token on ctx, if any.
func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

type Client struct {
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

// New creates a client for the API rooted at baseURL (for example http://localhost:5000/api).
func New(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/assessments",
		client:  &http.Client{Timeout: timeout},
		log:     log.With(zap.String("component", "apiclient")),
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (e *envelope) message() string {
	if e.Error == nil {
		return ""
	}
	return e.Error.Message
}

type assessmentData struct {
	Assessment *models.Assessment `json:"assessment"`
}

// ListOptions are the query parameters of the history listing. Zero values are omitted.
type ListOptions struct {
	Page      int
	Limit     int
	SortBy    string
	SortOrder string
}

func (o ListOptions) values() url.Values {
	q := url.Values{}
	if o.Page > 0 {
		q.Set("page", strconv.Itoa(o.Page))
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.SortBy != "" {
		q.Set("sortBy", o.SortBy)
	}
	if o.SortOrder != "" {
		q.Set("sortOrder", o.SortOrder)
	}
	return q
}

// Page is one page of the user's assessments.
type Page struct {
	Assessments []models.Assessment `json:"assessments"`
	Total       int                 `json:"total"`
	TotalPages  int                 `json:"totalPages"`
	Page        int                 `json:"page,omitempty"`
	Limit       int                 `json:"limit,omitempty"`
}

func (c *Client) CreateAssessment(ctx context.Context, d models.Draft) (*models.Assessment, error) {
	return c.assessment(ctx, http.MethodPost, "", d, "Failed to submit assessment")
}

func (c *Client) GetAssessment(ctx context.Context, id string) (*models.Assessment, error) {
	return c.assessment(ctx, http.MethodGet, "/"+url.PathEscape(id), nil, "Failed to load assessment")
}

// AnalyzeAssessment asks the API to (re)run analysis for id.
func (c *Client) AnalyzeAssessment(ctx context.Context, id string) (*models.Assessment, error) {
	return c.assessment(ctx, http.MethodPost, "/"+url.PathEscape(id)+"/analyze", nil, "Failed to retry analysis")
}

func (c *Client) ListAssessments(ctx context.Context, opts ListOptions) (*Page, error) {
	var page Page
	if err := c.do(ctx, http.MethodGet, "", opts.values(), nil, &page, "Failed to load assessments"); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) DeleteAssessment(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/"+url.PathEscape(id), nil, nil, nil, "Failed to delete assessment")
}

func (c *Client) DeleteAllAssessments(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "", nil, nil, nil, "Failed to delete assessments")
}

// AIHealth reports the analysis service status as the API describes it.
func (c *Client) AIHealth(ctx context.Context) (map[string]any, error) {
	var health map[string]any
	if err := c.do(ctx, http.MethodGet, "/ai/health", nil, nil, &health, "AI service unavailable"); err != nil {
		return nil, err
	}
	return health, nil
}

func (c *Client) assessment(ctx context.Context, method, path string, body any, fallback string) (*models.Assessment, error) {
	var data assessmentData
	if err := c.do(ctx, method, path, nil, body, &data, fallback); err != nil {
		return nil, err
	}
	if data.Assessment == nil {
		return nil, errors.New("apiclient: response did not include an assessment")
	}
	return data.Assessment, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any, fallback string) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token := TokenFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("assessment API request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	c.log.Debug("Assessment API call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := env.message()
		if decodeErr != nil || msg == "" {
			msg = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	if !env.Success {
		msg := env.message()
		if msg == "" {
			msg = fallback
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

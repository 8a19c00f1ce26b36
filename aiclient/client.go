// Package aiclient talks to the external triage AI service.
package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

const DefaultTimeout = 120 * time.Second

// maxErrorBody caps how much of a failed response is kept for logging.
const maxErrorBody = 4 << 10

// ErrUnavailable wraps transport failures reaching the AI service.
var ErrUnavailable = errors.New("aiclient: AI service unavailable")

// StatusError is a non-2xx reply from the AI service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("aiclient: AI service returned %d: %s", e.StatusCode, e.Body)
}

// Detail returns the FastAPI "detail" message when the body carries one.
func (e *StatusError) Detail() string {
	var body struct {
		Detail interface{} `json:"detail"`
	}
	if err := json.Unmarshal([]byte(e.Body), &body); err == nil {
		if s, ok := body.Detail.(string); ok {
			return s
		}
	}
	return ""
}

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: httpClient,
	}
}

type AssessRequest struct {
	Symptoms        string                 `json:"symptoms"`
	Medications     []string               `json:"medications"`
	FollowupAnswers map[string]interface{} `json:"followup_answers"`
}

type ImageRequest struct {
	Symptoms    string
	Medications []string
	Image       []byte
	ContentType string
}

type FollowupRequest struct {
	Symptoms    string   `json:"symptoms"`
	Medications []string `json:"medications"`
}

type ChatRequest struct {
	Message string                   `json:"message"`
	History []map[string]interface{} `json:"history"`
}

// Assess runs the full assessment pipeline on a symptom description.
func (c *Client) Assess(ctx context.Context, req AssessRequest) (*Result, error) {
	if req.Medications == nil {
		req.Medications = []string{}
	}
	if req.FollowupAnswers == nil {
		req.FollowupAnswers = map[string]interface{}{}
	}
	body, err := c.postJSON(ctx, "/assess", req)
	if err != nil {
		return nil, err
	}
	return parseResult(body)
}

// AssessImage posts the symptoms with a photo as multipart form data. The
// service splits medications on commas.
func (c *Client) AssessImage(ctx context.Context, req ImageRequest) (*Result, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("symptoms", req.Symptoms); err != nil {
		return nil, err
	}
	if err := w.WriteField("medications", strings.Join(req.Medications, ",")); err != nil {
		return nil, err
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="symptom.jpg"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(req.Image); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	body, err := c.do(ctx, "/assess/image", w.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}
	return parseResult(body)
}

// Followup returns the service's follow-up questions untouched.
func (c *Client) Followup(ctx context.Context, req FollowupRequest) (json.RawMessage, error) {
	if req.Medications == nil {
		req.Medications = []string{}
	}
	return c.postRaw(ctx, "/followup", req)
}

// Chat returns the service's chat reply untouched.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (json.RawMessage, error) {
	if req.History == nil {
		req.History = []map[string]interface{}{}
	}
	return c.postRaw(ctx, "/chat", req)
}

func (c *Client) postRaw(ctx context.Context, path string, payload interface{}) (json.RawMessage, error) {
	body, err := c.postJSON(ctx, path, payload)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, &ContractError{Reason: "response is not JSON"}
	}
	return json.RawMessage(body), nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, path, "application/json", bytes.NewReader(data))
}

func (c *Client) do(ctx context.Context, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	return data, nil
}

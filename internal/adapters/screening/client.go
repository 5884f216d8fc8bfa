// Package screening is the HTTP client of the remote screening service.
package screening

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"previa/internal/domain"
	"previa/internal/ports"
)

const maxErrorBody = 4 << 10

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Op     string
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Code, e.Detail)
	}
	return fmt.Sprintf("%s: status %d", e.Op, e.Code)
}

// NotFound reports whether the service did not know the scan.
func (e *StatusError) NotFound() bool { return e.Code == http.StatusNotFound }

type Client struct {
	base *url.URL
	http *http.Client
}

var _ ports.ScreeningService = (*Client)(nil)

// New returns a client for the service rooted at baseURL, e.g. "http://screening:8000/api".
func New(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse screening url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("screening url must be http or https, got %q", baseURL)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{base: u, http: &http.Client{Timeout: timeout}}, nil
}

func (c *Client) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.base.JoinPath(escaped...).String()
}

type createResponse struct {
	ScanID        string `json:"scan_id"`
	Status        string `json:"status"`
	TotalEntities int    `json:"total_entities"`
}

type statusResponse struct {
	ScanID   string              `json:"scan_id"`
	Status   domain.SessionState `json:"status"`
	Progress float64             `json:"progress"`
}

type resultsResponse struct {
	Status  domain.SessionState      `json:"status"`
	Results []domain.ScreeningRecord `json:"results"`
}

// SubmitScan uploads file as multipart field "file".
func (c *Client) SubmitScan(ctx context.Context, file ports.Upload) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", file.Filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(file.Data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("scan"), &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out createResponse
	if err := c.do(req, "submit scan", &out); err != nil {
		return "", err
	}
	return out.ScanID, nil
}

func (c *Client) GetScanStatus(ctx context.Context, scanID string) (ports.StatusReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("scan", scanID), nil)
	if err != nil {
		return ports.StatusReport{}, err
	}
	var out statusResponse
	if err := c.do(req, "scan status", &out); err != nil {
		return ports.StatusReport{}, err
	}
	return ports.StatusReport{Status: out.Status, Progress: out.Progress}, nil
}

func (c *Client) GetScanResults(ctx context.Context, scanID string) (ports.ResultSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("scan", scanID, "results"), nil)
	if err != nil {
		return ports.ResultSet{}, err
	}
	var out resultsResponse
	if err := c.do(req, "scan results", &out); err != nil {
		return ports.ResultSet{}, err
	}
	return ports.ResultSet{Status: out.Status, Records: out.Results}, nil
}

func (c *Client) do(req *http.Request, op string, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: op, Code: resp.StatusCode, Detail: errorDetail(resp.Body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// errorDetail extracts {"detail": "..."} bodies, falling back to the raw text.
func errorDetail(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var body struct {
		Detail any `json:"detail"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Detail != nil {
		if s, ok := body.Detail.(string); ok {
			return s
		}
		b, _ := json.Marshal(body.Detail)
		return string(b)
	}
	return strings.TrimSpace(string(raw))
}

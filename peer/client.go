package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/http2"

	"github.com/projecteru2/modelforge/types"
)

const (
	planEndpoint   = "auftrag"
	imagesEndpoint = "aufnahme"

	// maxJSONBytes caps status and listing responses.
	maxJSONBytes = 4 << 20
)

// Client talks to one capture device. Safe for concurrent use.
type Client struct {
	base     *url.URL
	hc       *http.Client
	maxImage int64
}

// New creates a Client for the device at baseURL.
func New(baseURL string, timeout time.Duration, maxImageBytes int64) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidURL, baseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w %q: must be an absolute http(s) url", ErrInvalidURL, baseURL)
	}
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 10 * time.Second}).DialContext, //nolint:mnd
		MaxIdleConnsPerHost: 16,                                                   //nolint:mnd
		IdleConnTimeout:     90 * time.Second,                                     //nolint:mnd
	}
	if err := http2.ConfigureTransport(tr); err != nil {
		return nil, fmt.Errorf("configure http2 transport: %w", err)
	}
	return &Client{
		base:     u,
		hc:       &http.Client{Timeout: timeout, Transport: tr},
		maxImage: maxImageBytes,
	}, nil
}

// BaseURL returns the device url this client was created for.
func (c *Client) BaseURL() string { return c.base.String() }

// CloseIdleConnections drops pooled connections to the device. Requests in
// flight keep theirs.
func (c *Client) CloseIdleConnections() { c.hc.CloseIdleConnections() }

// SubmitPlan posts the capture plan. Transient failures are retried with backoff.
func (c *Client) SubmitPlan(ctx context.Context, plan types.Plan) error {
	body, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	return DoWithRetry(ctx, func() error {
		_, err := c.do(ctx, "submit plan", http.MethodPost, body, maxJSONBytes, planEndpoint)
		return err
	})
}

// Progress fetches the device's current position.
func (c *Client) Progress(ctx context.Context) (types.Progress, error) {
	const op = "get progress"
	raw, err := c.do(ctx, op, http.MethodGet, nil, maxJSONBytes, planEndpoint)
	if err != nil {
		return types.Progress{}, err
	}
	// Pointers distinguish a missing field from a zero value.
	var wire struct {
		Round        *int `json:"round"`
		ImageInRound *int `json:"image_in_round"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return types.Progress{}, Malformed(op, "decode: %v", err)
	}
	if wire.Round == nil || wire.ImageInRound == nil {
		return types.Progress{}, Malformed(op, "missing fields in %s", raw)
	}
	if *wire.Round < 0 || *wire.ImageInRound < 0 {
		return types.Progress{}, Malformed(op, "negative position in %s", raw)
	}
	return types.Progress{Round: *wire.Round, ImageInRound: *wire.ImageInRound}, nil
}

// ReadyImages lists the identifiers of all images the device can hand out.
func (c *Client) ReadyImages(ctx context.Context) ([]string, error) {
	const op = "list images"
	raw, err := c.do(ctx, op, http.MethodGet, nil, maxJSONBytes, imagesEndpoint)
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, Malformed(op, "decode: %v", err)
	}
	return ids, nil
}

// FetchImage downloads the raw bytes of one image.
func (c *Client) FetchImage(ctx context.Context, id string) ([]byte, error) {
	return c.do(ctx, "fetch image "+id, http.MethodGet, nil, c.maxImage, imagesEndpoint, id)
}

func (c *Client) do(ctx context.Context, op, method string, body []byte, limit int64, elems ...string) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(elems...).String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, &Error{Op: op, Kind: KindTransient, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rb, _ := io.ReadAll(io.LimitReader(resp.Body, 512)) //nolint:mnd
		return nil, statusError(op, resp.StatusCode, bytes.TrimSpace(rb))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, &Error{Op: op, Kind: KindTransient, Code: resp.StatusCode, Err: err}
	}
	if int64(len(data)) > limit {
		return nil, Malformed(op, "response exceeds %d bytes", limit)
	}
	return data, nil
}

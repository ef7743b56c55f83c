// Package delivery performs single-attempt batch delivery to the
// remote collector and classifies the result. Retries belong to the
// batch scheduler, never to this package: one Send call is exactly one
// network attempt.
package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/randalmurphal/tracklet/pkg/tracklet/codec"
	terrors "github.com/randalmurphal/tracklet/pkg/tracklet/errors"
)

// Headers carrying batch metadata to the collector.
const (
	// HeaderBatchSequence carries the monotonic batch number for
	// server-side idempotent dedup.
	HeaderBatchSequence = "X-Tracklet-Batch-Sequence"

	// HeaderEncryption names the payload encryption algorithm.
	HeaderEncryption = "X-Tracklet-Encryption"

	// HeaderEnvironment names the client environment.
	HeaderEnvironment = "X-Tracklet-Environment"
)

// Class is the delivery outcome classification.
type Class int

const (
	// Success means the collector acknowledged the batch.
	Success Class = iota
	// Retryable means a transient failure: timeout, connection
	// reset, 5xx, or 429.
	Retryable
	// Terminal means the collector will never accept this payload:
	// 4xx other than 429, or an application-level rejection.
	Terminal
)

// String returns the class name.
func (c Class) String() string {
	switch c {
	case Success:
		return "success"
	case Retryable:
		return "retryable"
	case Terminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of one delivery attempt.
type Outcome struct {
	Class      Class
	StatusCode int
	Err        error
}

// Config configures a delivery client.
type Config struct {
	// Endpoint is the collector URL.
	Endpoint string

	// APIKey authenticates the client.
	APIKey string

	// Environment is reported to the collector (development,
	// staging, production).
	Environment string

	// Timeout bounds each attempt. Zero means no per-attempt bound
	// beyond the caller's context.
	Timeout time.Duration

	// Compression and Encryption describe how the payload was
	// encoded, for content negotiation headers.
	Compression codec.Compression
	Encryption  codec.Encryption

	// HTTPClient overrides the transport (tests). Defaults to a
	// plain http.Client.
	HTTPClient *http.Client
}

// Client delivers encoded batch payloads over HTTP.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a delivery client.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{cfg: cfg, http: httpClient}
}

// Send performs exactly one delivery attempt and classifies the result.
// The per-attempt timeout is independent of any outer flush wait.
func (c *Client) Send(ctx context.Context, batchID int64, payload []byte) Outcome {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return classify(terrors.Permanent(err, "build request"), 0)
	}

	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set(HeaderBatchSequence, strconv.FormatInt(batchID, 10))
	if c.cfg.Compression != "" && c.cfg.Compression != codec.CompressionNone {
		req.Header.Set("Content-Encoding", string(c.cfg.Compression))
	}
	if c.cfg.Encryption != "" && c.cfg.Encryption != codec.EncryptionNone {
		req.Header.Set(HeaderEncryption, string(c.cfg.Encryption))
	}
	if c.cfg.Environment != "" {
		req.Header.Set(HeaderEnvironment, c.cfg.Environment)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classify(err, 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return Outcome{Class: Success, StatusCode: resp.StatusCode}
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	httpErr := &terrors.HTTPError{
		StatusCode: resp.StatusCode,
		Message:    string(bytes.TrimSpace(body)),
		Endpoint:   c.cfg.Endpoint,
	}
	return classify(httpErr, resp.StatusCode)
}

// classify maps an attempt error to an outcome via the shared taxonomy.
func classify(err error, status int) Outcome {
	out := Outcome{StatusCode: status, Err: err}
	switch terrors.Categorize(err) {
	case terrors.CategoryTransient:
		out.Class = Retryable
	default:
		out.Class = Terminal
	}
	return out
}

// Endpoint returns the configured collector URL.
func (c *Client) Endpoint() string { return c.cfg.Endpoint }

// String describes the client destination for logs.
func (c *Client) String() string {
	return fmt.Sprintf("collector %s (%s)", c.cfg.Endpoint, c.cfg.Environment)
}

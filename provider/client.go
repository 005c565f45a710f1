package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linanwx/triptych/logger"
)

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client opens streaming responses. It performs exactly one attempt per call.
type Client struct {
	http HTTPDoer
}

// NewClient creates a client. A zero timeout leaves connection behavior to
// the transport.
func NewClient(timeout time.Duration) *Client {
	return &Client{http: &http.Client{Timeout: timeout}}
}

// NewClientWith wraps an existing HTTPDoer.
func NewClientWith(doer HTTPDoer) *Client {
	if doer == nil {
		doer = http.DefaultClient
	}
	return &Client{http: doer}
}

// Open sends the adapter's request and returns the response body positioned
// at the start of the stream. The caller must close it. Failures are
// returned as *TransportError.
func (c *Client) Open(ctx context.Context, adapter Adapter, target Target, messages []Message, cfg GenerationConfig) (io.ReadCloser, error) {
	kind := adapter.Kind()

	built, err := adapter.BuildRequest(target, messages, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", kind, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, built.Endpoint, bytes.NewReader(built.Body))
	if err != nil {
		return nil, &TransportError{Provider: kind, Err: fmt.Errorf("create request: %w", err)}
	}
	for key, values := range built.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	logger.Debug(
		"provider request",
		"provider", kind,
		"model", target.Model,
		"messages", len(messages),
		"bodyBytes", len(built.Body),
	)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		logger.Error("provider request error", "provider", kind, "err", err)
		return nil, &TransportError{Provider: kind, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		terr := newStatusError(kind, resp, body)
		logger.Error("provider request error", "provider", kind, "status", resp.StatusCode, "body", terr.Body)
		return nil, terr
	}

	return resp.Body, nil
}

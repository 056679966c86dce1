package airtable

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
)

// DefaultRequestTimeout bounds a single round trip.
const DefaultRequestTimeout = 10 * time.Second

// maxResponseBody caps how much of a response is read into memory.
const maxResponseBody = 32 << 20

// RawResponse is an undecoded HTTP response.
type RawResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Invoker performs exactly one attempt of a request.
type Invoker interface {
	Invoke(ctx context.Context, req RequestDescriptor) (*RawResponse, error)
}

// TransportError is a failure that happened before a status code was received,
// or while reading the response.
type TransportError struct {
	Op  string
	Err error
	// Temporary is false when the request itself could not be built.
	Temporary bool
}

// Error implements the error interface
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause
func (e *TransportError) Unwrap() error {
	return e.Err
}

// HTTPInvoker sends requests to the Airtable REST API.
type HTTPInvoker struct {
	creds     *Credentials
	client    *http.Client
	userAgent string
}

// NewHTTPInvoker creates an invoker. A nil client gets DefaultRequestTimeout.
func NewHTTPInvoker(creds *Credentials, client *http.Client, userAgent string) *HTTPInvoker {
	if client == nil {
		client = &http.Client{Timeout: DefaultRequestTimeout}
	}
	if userAgent == "" {
		userAgent = "airtable-mcp-go"
	}
	return &HTTPInvoker{
		creds:     creds,
		client:    client,
		userAgent: userAgent,
	}
}

// Invoke sends req once and returns the raw response.
func (i *HTTPInvoker) Invoke(ctx context.Context, req RequestDescriptor) (*RawResponse, error) {
	if !ValidMethod(req.Method) {
		return nil, &TransportError{Op: "build", Err: errors.Newf("unsupported method %q", req.Method)}
	}

	target := i.creds.BaseURL() + "/" + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, &TransportError{Op: "build", Err: errors.Wrap(err, "create request")}
	}
	httpReq.Header.Set("Authorization", i.creds.Authorization())
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", i.userAgent)
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := i.client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: "send", Err: err, Temporary: true}
	}
	defer resp.Body.Close() // nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, &TransportError{Op: "read", Err: errors.Wrap(err, "read response body"), Temporary: true}
	}

	return &RawResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

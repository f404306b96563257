package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Klingon-tech/in3go/internal/log"
)

// HTTPTransport is the reference Transport driver, adapted from the
// teacher's internal/rpcclient.Client: a thin wrapper around net/http
// with a configurable timeout and no connection pooling surprises.
type HTTPTransport struct {
	http *http.Client
}

// NewHTTPTransport creates an HTTPTransport using http.DefaultClient's
// transport with the given timeout.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{http: &http.Client{Timeout: timeout}}
}

// Send posts body to url as application/json and returns the raw response
// body, or an error if the node could not be reached, timed out, or
// returned a non-2xx status.
func (t *HTTPTransport) Send(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		log.Transport.Warn().Str("url", url).Err(err).Msg("node unreachable")
		return nil, fmt.Errorf("send to %s: %w", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("node %s returned HTTP %d", url, resp.StatusCode)
	}
	return data, nil
}

// Package transport sends a composed batch to a node's URL and returns the
// raw response bytes, with no JSON-RPC semantics of its own — the response
// matcher in internal/verify owns parsing.
package transport

import "context"

// Transport delivers a request batch to a single node URL.
type Transport interface {
	// Send posts body (a JSON-RPC batch) to url and returns the raw
	// response body. A non-nil error means the node could not be reached
	// or did not complete the exchange in time — the caller blacklists on
	// any such error, same as a malformed response.
	Send(ctx context.Context, url string, body []byte) ([]byte, error)
}

// ToHTTP rewrites an https:// URL to http://, byte for byte, with no other
// URL normalization — mirroring convert_to_http_url's straight prefix
// swap rather than a full URL re-parse. Used when a node's registration
// advertises TLS but the caller has disabled it (e.g. for a local test
// node with a self-signed or absent certificate).
func ToHTTP(url string) string {
	const https = "https://"
	if len(url) >= len(https) && url[:len(https)] == https {
		return "http://" + url[len(https):]
	}
	return url
}

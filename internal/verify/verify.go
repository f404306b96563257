// Package verify implements the Response Matcher and the chain-typed
// Verifier plug-in dispatch (§4.F): iterating the per-node raw responses
// collected by transport, parsing and shape-checking each, running the
// registered verifier, and folding latency/blacklist bookkeeping into the
// node-list's reputation state as it goes.
package verify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Klingon-tech/in3go/internal/log"
	"github.com/Klingon-tech/in3go/internal/nodelist"
	"github.com/Klingon-tech/in3go/internal/reputation"
	"github.com/Klingon-tech/in3go/pkg/rpc"
)

// Verdict is a verifier's answer for one request/response pair.
type Verdict int

const (
	VerdictOK Verdict = iota
	VerdictWaiting
	VerdictError
)

// Verifier is the chain-typed plug-in contract (§4.C/D/E). meta is nil when
// the response carried no "in3" sub-object.
type Verifier interface {
	Verify(req rpc.Request, resp rpc.Response, meta *rpc.In3ResponseMeta) Verdict
}

// PreHandler is the optional pre_handle hook: a chance for the verifier to
// answer a request internally (e.g. from a local cache) before any node is
// contacted. Returning ok=false means "no internal answer, proceed normally".
type PreHandler interface {
	PreHandle(req rpc.Request) (resp rpc.Response, ok bool, err error)
}

// Registry maps a chain's verification type (e.g. "eth", "btc", "never") to
// its Verifier. Non-goal per spec.md: this package carries no chain-specific
// verification logic itself, only the plug-in point and a trivial reference
// verifier for tests (NoopVerifier, below).
type Registry struct {
	verifiers map[string]Verifier
}

// NewRegistry creates an empty verifier registry.
func NewRegistry() *Registry {
	return &Registry{verifiers: make(map[string]Verifier)}
}

// Register installs v as the verifier for chainType, replacing any
// previous registration.
func (r *Registry) Register(chainType string, v Verifier) {
	r.verifiers[chainType] = v
}

// Lookup returns the verifier registered for chainType.
func (r *Registry) Lookup(chainType string) (Verifier, bool) {
	v, ok := r.verifiers[chainType]
	return v, ok
}

// NoopVerifier accepts any response carrying a non-empty result field. It
// exists as a reference verifier for tests and "verification: never"
// chains; it encodes no chain-specific proof logic.
type NoopVerifier struct{}

func (NoopVerifier) Verify(_ rpc.Request, resp rpc.Response, _ *rpc.In3ResponseMeta) Verdict {
	if resp.Error != nil || len(resp.Result) == 0 {
		return VerdictError
	}
	return VerdictOK
}

// NodeResult is one node's raw transport outcome, positionally paired with
// the node it was sent to.
type NodeResult struct {
	Pending bool          // transport has not yet filled this slot
	Err     error         // transport-level failure (no response from node)
	Body    []byte        // raw response bytes, valid when Err == nil && !Pending
	Latency time.Duration // observed round trip; zero if not yet measured
}

// Status is the matcher's overall verdict for one wave.
type Status int

const (
	StatusInvalid Status = iota
	StatusWaiting
	StatusOK
)

// AutoUpdateFunc is invoked with the first verified response's "in3"
// section, once per successful match, so the caller can run §4.H.
type AutoUpdateFunc func(meta *rpc.In3ResponseMeta)

// MatchResult is what Match returns to the Request Context.
type MatchResult struct {
	Status     Status
	Responses  []rpc.Response // the winning node's parsed responses, positional with requests
	Err        error
	RejectedAt int // index of the node whose response won or last tried, -1 if none tried
}

// Match runs the response matcher over nodes/results, which must be the
// same length and positionally paired, iterating in selection order. See
// §4.F for the full algorithm this implements.
func Match(
	nodes []*nodelist.ChainNode,
	results []NodeResult,
	requests []rpc.Request,
	verifier Verifier,
	rejected reputation.RejectedSet,
	now time.Time,
) MatchResult {
	if len(nodes) != len(results) {
		return MatchResult{Status: StatusInvalid, Err: fmt.Errorf("verify: nodes/results length mismatch"), RejectedAt: -1}
	}

	anyPending := false
	lastTried := -1
	var lastErr error

	for i, node := range nodes {
		result := results[i]

		if result.Latency > 0 {
			node.Weight.RecordLatency(result.Latency)
		}

		if result.Pending {
			anyPending = true
			continue
		}
		lastTried = i

		if result.Err != nil {
			reputation.Blacklist(node.Weight, now)
			rejectNode(rejected, node)
			lastErr = result.Err
			log.Verify.Warn().Str("node", node.Node.Address.String()).Err(result.Err).Msg("no response from node")
			continue
		}

		responses, err := parseBatch(result.Body, len(requests))
		if err != nil {
			reputation.Blacklist(node.Weight, now)
			rejectNode(rejected, node)
			lastErr = err
			log.Verify.Warn().Str("node", node.Node.Address.String()).Err(err).Msg("response shape invalid")
			continue
		}

		verdict, serverFault := verifyResponses(requests, responses, verifier)
		switch verdict {
		case VerdictWaiting:
			return MatchResult{Status: StatusWaiting, RejectedAt: i}
		case VerdictError:
			if serverFault {
				reputation.Blacklist(node.Weight, now)
				rejectNode(rejected, node)
			}
			lastErr = fmt.Errorf("verify: node %s failed verification", node.Node.Address)
			continue
		}

		node.Weight.ClearBlacklist()
		return MatchResult{Status: StatusOK, Responses: responses, RejectedAt: i}
	}

	if anyPending {
		return MatchResult{Status: StatusWaiting, Err: nil, RejectedAt: lastTried}
	}
	return MatchResult{Status: StatusInvalid, Err: lastErr, RejectedAt: lastTried}
}

// rejectNode marks node rejected within the owning context (spec §3: "a
// node whose weight is none within a context is rejected for THAT context
// only"), distinct from and in addition to its persistent blacklist, so a
// subsequent Pick within the same Execute retry never re-selects it even
// before the blacklist would otherwise exclude it.
func rejectNode(rejected reputation.RejectedSet, node *nodelist.ChainNode) {
	if rejected != nil {
		rejected.Reject(node.Node.Address)
	}
}

// verifyResponses runs the verifier over every request/response pair for
// one node's batch reply. The second result reports whether the failure is a
// server fault (blacklist-worthy) as opposed to a user-fault response that
// should only surface to the caller.
func verifyResponses(requests []rpc.Request, responses []rpc.Response, verifier Verifier) (Verdict, bool) {
	for i, req := range requests {
		resp := responses[i]

		if len(resp.Result) == 0 {
			if resp.Error != nil && rpc.IsUserError(resp.Error.Message) {
				return VerdictError, false
			}
			return VerdictError, true
		}

		switch verifier.Verify(req, resp, resp.In3) {
		case VerdictWaiting:
			return VerdictWaiting, false
		case VerdictError:
			return VerdictError, true
		}
	}
	return VerdictOK, false
}

// parseBatch parses a raw response body, validating that a single-object
// response is returned only when exactly one request was sent, and that an
// array response has length equal to the request count (so a one-element
// array is also accepted for a single request).
func parseBatch(body []byte, requestCount int) ([]rpc.Response, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("verify: empty response body")
	}

	switch trimmed[0] {
	case '{':
		if requestCount != 1 {
			return nil, fmt.Errorf("verify: got single-object response for %d requests", requestCount)
		}
		var resp rpc.Response
		if err := json.Unmarshal(trimmed, &resp); err != nil {
			return nil, fmt.Errorf("verify: parse response object: %w", err)
		}
		return []rpc.Response{resp}, nil
	case '[':
		var responses []rpc.Response
		if err := json.Unmarshal(trimmed, &responses); err != nil {
			return nil, fmt.Errorf("verify: parse response array: %w", err)
		}
		if len(responses) != requestCount {
			return nil, fmt.Errorf("verify: got %d responses for %d requests", len(responses), requestCount)
		}
		return responses, nil
	default:
		return nil, fmt.Errorf("verify: unsupported response encoding (binary formats not implemented)")
	}
}

// Package payload builds the JSON-RPC batch sent to a wave of nodes and
// computes the Keccak-256 digest over that batch's id/method/params that
// the signer driver signs, so a request can be authenticated to a node
// without a TLS client certificate.
package payload

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/Klingon-tech/in3go/internal/errs"
	"github.com/Klingon-tech/in3go/internal/log"
	"github.com/Klingon-tech/in3go/pkg/crypto"
	"github.com/Klingon-tech/in3go/pkg/rpc"
	"github.com/Klingon-tech/in3go/pkg/types"
)

// idCounter is the process-wide request id source. Every request gets an
// id from this single counter rather than one per Context, so log lines
// and node-side dedup can treat ids as globally unique within a process.
var idCounter uint64

func nextID() uint64 {
	return atomic.AddUint64(&idCounter, 1)
}

// Call is one JSON-RPC method call a caller wants executed.
type Call struct {
	Method string
	Params json.RawMessage
	// ID carries the request id from the caller: an int/int64/uint64 or a
	// string is sent through verbatim (§4.B rule 1). Leave nil to have
	// Compose assign the next value from the process-wide counter.
	ID interface{}
}

// Options configures the "in3" metadata attached to every request in the
// batch.
type Options struct {
	ChainID           types.ChainID
	Verification      string // "proof", "none"
	ProtocolVersion   string
	WhiteListContract types.Address
	Signers           []types.Address
	Finality          int
	LatestBlock       int
	IncludeCode       bool
	UseFullProof      bool
	NoStats           bool
	UseBinary         bool
	VerifiedHashes    []types.Hash
}

// Signer produces a recoverable signature over a 32-byte digest; satisfied
// by internal/signer.Signer. Declared locally so payload does not import
// internal/signer.
type Signer interface {
	Sign(digest []byte) ([]byte, error)
}

// Compose builds a JSON-RPC batch for calls and returns it alongside the
// Keccak-256 digest of the batch's id/method/params (see Digest), and, if
// signer is non-nil, a version of the batch with every request's "in3.sig"
// field set to the signature over that digest.
func Compose(calls []Call, opts Options, signer Signer) ([]rpc.Request, [32]byte, error) {
	if len(calls) == 0 {
		return nil, [32]byte{}, errs.New(errs.InvalidArg, "payload: no calls to compose")
	}

	batch := make([]rpc.Request, len(calls))
	h := crypto.NewKeccakState()

	for i, call := range calls {
		idBytes, err := callIDBytes(call.ID)
		if err != nil {
			return nil, [32]byte{}, errs.Wrap(errs.InvalidArg, err, "payload: invalid call id")
		}

		req := rpc.Request{
			ID:      json.RawMessage(idBytes.json),
			JSONRPC: rpc.Version,
			Method:  call.Method,
			Params:  call.Params,
			In3:     buildIn3Config(opts),
		}
		batch[i] = req

		// Digest walks id, method, params in document order; an absent or
		// JSON-null params contributes nothing, matching add_token_to_hash's
		// treatment of a null token as a no-op.
		h.Write(idBytes.raw)
		h.Write([]byte(call.Method))
		if len(call.Params) > 0 && string(call.Params) != "null" {
			h.Write(call.Params)
		}
	}

	var digest [32]byte
	h.Sum(digest[:0])

	if signer != nil {
		sig, err := signer.Sign(digest[:])
		if err != nil {
			return nil, digest, errs.Wrap(errs.RPC, err, "payload: sign request digest")
		}
		sigHex := "0x" + hex.EncodeToString(sig)
		for i := range batch {
			if batch[i].In3 == nil {
				batch[i].In3 = &rpc.In3RequestConfig{}
			}
			batch[i].In3.Sig = sigHex
		}
	}

	log.Payload.Debug().
		Int("requests", len(batch)).
		Str("digest", "0x"+hex.EncodeToString(digest[:])).
		Msg("composed batch")

	return batch, digest, nil
}

func buildIn3Config(opts Options) *rpc.In3RequestConfig {
	cfg := &rpc.In3RequestConfig{
		Verification: opts.Verification,
		Version:      opts.ProtocolVersion,
		Finality:     opts.Finality,
		LatestBlock:  opts.LatestBlock,
		IncludeCode:  opts.IncludeCode,
		UseFullProof: opts.UseFullProof,
		NoStats:      opts.NoStats,
		UseBinary:    opts.UseBinary,
	}
	if !opts.ChainID.IsZero() {
		cfg.ChainID = opts.ChainID.String()
	}
	if !opts.WhiteListContract.IsZero() {
		cfg.WhiteListContract = opts.WhiteListContract.String()
	}
	for _, s := range opts.Signers {
		cfg.Signers = append(cfg.Signers, s.String())
	}
	for _, vh := range opts.VerifiedHashes {
		cfg.VerifiedHashes = append(cfg.VerifiedHashes, vh.String())
	}
	return cfg
}

type idEncoding struct {
	json []byte
	raw  []byte
}

// idToBytes renders a counter-assigned id both as its JSON-number form (for
// the wire) and as its 8-byte big-endian form (for the digest).
func idToBytes(id uint64) idEncoding {
	raw := make([]byte, 8)
	for i := 0; i < 8; i++ {
		raw[7-i] = byte(id >> (8 * i))
	}
	return idEncoding{json: []byte(strconv.FormatUint(id, 10)), raw: raw}
}

// stringIDToBytes renders a caller-supplied string id for the wire (as a
// JSON string) and for the digest. The original implementation hashes the
// string's own length, not the length of its JSON-quoted/escaped wire form;
// we preserve that for digest compatibility with existing servers (see
// DESIGN.md).
func stringIDToBytes(id string) idEncoding {
	quoted, _ := json.Marshal(id)
	return idEncoding{json: quoted, raw: []byte(id)}
}

// callIDBytes dispatches a Call's ID field to its wire/digest encoding,
// falling back to the next process-wide counter value when id is nil.
func callIDBytes(id interface{}) (idEncoding, error) {
	switch v := id.(type) {
	case nil:
		return idToBytes(nextID()), nil
	case string:
		return stringIDToBytes(v), nil
	case int:
		return idToBytes(uint64(v)), nil
	case int64:
		return idToBytes(uint64(v)), nil
	case uint64:
		return idToBytes(v), nil
	default:
		return idEncoding{}, fmt.Errorf("payload: unsupported call id type %T", id)
	}
}

// idRawBytes recomputes the digest bytes for an id read back off the wire:
// a JSON string is hashed by its own content, a JSON number by its 8-byte
// big-endian form, matching callIDBytes/stringIDToBytes above.
func idRawBytes(raw json.RawMessage) []byte {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []byte(s)
	}
	var n uint64
	_ = json.Unmarshal(raw, &n)
	return idToBytes(n).raw
}

// Digest recomputes the same id/method/params digest Compose produces, for
// a batch read back off the wire (e.g. to verify a signature attached by a
// peer rather than ourselves).
func Digest(batch []rpc.Request) [32]byte {
	h := crypto.NewKeccakState()
	for _, req := range batch {
		h.Write(idRawBytes(req.ID))
		h.Write([]byte(req.Method))
		if len(req.Params) > 0 && string(req.Params) != "null" {
			h.Write(req.Params)
		}
	}
	var digest [32]byte
	h.Sum(digest[:0])
	return digest
}

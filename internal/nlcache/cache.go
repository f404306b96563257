package nlcache

import (
	"encoding/binary"
	"fmt"

	"github.com/Klingon-tech/in3go/internal/nodelist"
	"github.com/Klingon-tech/in3go/pkg/types"
)

// Version is the cache wire format version. Bumping it invalidates every
// previously-written entry; Load discards a mismatched entry instead of
// erroring so a format upgrade never takes down an otherwise-working
// client.
const Version byte = 3

// key builds the storage key for a chain's node list: "nodelist_<chainid>",
// or "nodelist_<chainid>_0x<contract>" when the contract address is known
// (mirrors write_cache_key's two forms).
func key(chainID types.ChainID, contract types.Address) []byte {
	if contract.IsZero() {
		return []byte(fmt.Sprintf("nodelist_%s", chainID))
	}
	return []byte(fmt.Sprintf("nodelist_%s_%s", chainID, contract))
}

// Save serializes a chain's node list and writes it to store, skipping
// chains marked LocalOnly (a local development chain has no persistent
// node list worth caching).
func Save(store Store, chain *nodelist.Chain) error {
	if chain.LocalOnly {
		return nil
	}
	nodes := chain.Snapshot()

	buf := make([]byte, 0, 1+types.AddressSize+8+4+len(nodes)*64)
	buf = append(buf, Version)
	buf = append(buf, chain.Contract.Bytes()...)
	buf = binary.BigEndian.AppendUint64(buf, chain.LastBlock)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(nodes)))

	// Weights table: one float64 per node, in list order.
	for _, cn := range nodes {
		var w float64
		if cn.Weight != nil {
			w = cn.Weight.Weight
		}
		buf = binary.BigEndian.AppendUint64(buf, float64bits(w))
	}

	// Per-node records.
	for _, cn := range nodes {
		n := cn.Node
		buf = binary.BigEndian.AppendUint64(buf, n.Capacity)
		buf = binary.BigEndian.AppendUint64(buf, n.Index)
		buf = binary.BigEndian.AppendUint64(buf, n.Deposit)
		buf = binary.BigEndian.AppendUint64(buf, n.Props)
		buf = append(buf, n.Address.Bytes()...)
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(n.URL)))
		buf = append(buf, []byte(n.URL)...)
		if n.Whitelisted {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}

	return store.Put(key(chain.ChainID, chain.Contract), buf)
}

// Load reads a previously-saved node list from store. A version mismatch,
// a missing entry, or a truncated/corrupt record all return (nil, 0, nil):
// the caller treats a cache miss exactly like "never cached", triggering a
// normal node-list fetch instead of a hard failure.
func Load(store Store, chainID types.ChainID, contract types.Address) ([]nodelist.Node, uint64, error) {
	buf, err := store.Get(key(chainID, contract))
	if err != nil {
		if err == ErrNotFound {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("nlcache load: %w", err)
	}

	const headerSize = 1 + types.AddressSize + 8 + 4
	if len(buf) < headerSize || buf[0] != Version {
		return nil, 0, nil
	}

	off := 1
	var contractBytes [types.AddressSize]byte
	copy(contractBytes[:], buf[off:off+types.AddressSize])
	off += types.AddressSize

	lastBlock := binary.BigEndian.Uint64(buf[off:])
	off += 8
	count := binary.BigEndian.Uint32(buf[off:])
	off += 4

	weights := make([]float64, count)
	for i := range weights {
		if off+8 > len(buf) {
			return nil, 0, nil
		}
		weights[i] = float64frombits(binary.BigEndian.Uint64(buf[off:]))
		off += 8
	}

	nodes := make([]nodelist.Node, count)
	for i := range nodes {
		if off+8+8+8+8+types.AddressSize+2 > len(buf) {
			return nil, 0, nil
		}
		var n nodelist.Node
		n.Capacity = binary.BigEndian.Uint64(buf[off:])
		off += 8
		n.Index = binary.BigEndian.Uint64(buf[off:])
		off += 8
		n.Deposit = binary.BigEndian.Uint64(buf[off:])
		off += 8
		n.Props = binary.BigEndian.Uint64(buf[off:])
		off += 8
		copy(n.Address[:], buf[off:off+types.AddressSize])
		off += types.AddressSize
		urlLen := int(binary.BigEndian.Uint16(buf[off:]))
		off += 2
		if off+urlLen+1 > len(buf) {
			return nil, 0, nil
		}
		n.URL = string(buf[off : off+urlLen])
		off += urlLen
		n.Whitelisted = buf[off] != 0
		off++
		nodes[i] = n
	}

	return nodes, lastBlock, nil
}

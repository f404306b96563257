// Package nlcache persists node lists to a pluggable key-value store using
// the binary cache format described in cache.c: a version byte, the
// contract address, the last-known block, and a packed node table. A
// version mismatch discards the cached entry silently rather than failing
// the whole client — a stale format is no better than a cold cache.
package nlcache

import "fmt"

// Store is the key-value backend nlcache persists to. Two implementations
// ship: Memory (tests, ephemeral clients) and Badger (durable, adapted
// from the teacher's storage package).
type Store interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	Close() error
}

// ErrNotFound is returned by a Store's Get when the key does not exist.
var ErrNotFound = fmt.Errorf("nlcache: key not found")

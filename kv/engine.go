// Package kv implements the byte-oriented storage contract the delta
// ledger is built on: get/set, an atomic batch of puts and deletes,
// and a prefix scan with pluggable, rejection-tolerant decoders. The
// keyspace is flat, partitioned by a single-byte column tag rather
// than a bucket tree, since every record is addressed by a (tag, id)
// pair.
package kv

import (
	"sync"

	"github.com/pkt-cash/indexer-sdk/er"
)

// Op is one write within a WriteBatch: a Put (Delete == false, Value
// set) or a Delete (Delete == true).
type Op struct {
	Delete bool
	Key    []byte
	Value  []byte
}

// Put builds a put Op.
func Put(key, value []byte) Op { return Op{Key: key, Value: value} }

// Del builds a delete Op.
func Del(key []byte) Op { return Op{Delete: true, Key: key} }

// Engine is the pluggable storage contract. Two implementations ship
// with this package: an in-memory map (NewMemEngine, for tests and the
// mempool-only mode) and a durable
// bbolt-backed engine (NewBoltEngine).
type Engine interface {
	// Get returns the value for key, or ok == false if absent.
	Get(key []byte) (value []byte, ok bool, err er.R)

	// Set is a convenience wrapper over a single-op WriteBatch.
	Set(key, value []byte) er.R

	// WriteBatch applies ops atomically. sync requests the backend
	// flush to stable storage before returning, where that concept
	// applies (the memory engine ignores it).
	WriteBatch(ops []Op, sync bool) er.R

	// IterPrefix scans all keys beginning with prefix and invokes fn
	// with each raw (key, value) pair. fn returns (keep, err): keep
	// controls whether the scan continues, err aborts the scan if
	// non-nil. IterPrefix does no decoding itself — decode rejection
	// is layered on top by ScanPrefix below: a decoder may reject a
	// value, letting the scan skip malformed entries.
	IterPrefix(prefix []byte, fn func(key, value []byte) (keep bool, err er.R)) er.R

	// Close releases any resources held by the engine.
	Close() er.R
}

// KeyDecoder attempts to decode a raw key into a domain value,
// returning ok == false to have ScanPrefix skip the entry.
type KeyDecoder func(key []byte) (interface{}, bool)

// ValueDecoder is KeyDecoder's counterpart for values.
type ValueDecoder func(value []byte) (interface{}, bool)

// Entry is one decoded (K, V) pair yielded by ScanPrefix.
type Entry struct {
	Key   interface{}
	Value interface{}
}

// ScanPrefix performs a prefix scan with decode-and-filter semantics:
// entries whose key or value fails to decode are silently skipped
// rather than aborting the scan.
func ScanPrefix(e Engine, prefix []byte, keyDecode KeyDecoder, valueDecode ValueDecoder) ([]Entry, er.R) {
	var out []Entry
	err := e.IterPrefix(prefix, func(key, value []byte) (bool, er.R) {
		k, ok := keyDecode(key)
		if !ok {
			return true, nil
		}
		v, ok := valueDecode(value)
		if !ok {
			return true, nil
		}
		out = append(out, Entry{Key: k, Value: v})
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Wrap adds a mutex around an Engine that is not inherently safe for
// concurrent use (the in-memory engine), for when the harness shares
// a single engine instance across components. A durable engine backed
// by bbolt needs no such wrapper since bbolt already serializes
// writers internally.
func Wrap(e Engine) Engine {
	return &muxEngine{inner: e}
}

type muxEngine struct {
	mu    sync.Mutex
	inner Engine
}

func (m *muxEngine) Get(key []byte) ([]byte, bool, er.R) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inner.Get(key)
}

func (m *muxEngine) Set(key, value []byte) er.R {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inner.Set(key, value)
}

func (m *muxEngine) WriteBatch(ops []Op, sync bool) er.R {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inner.WriteBatch(ops, sync)
}

func (m *muxEngine) IterPrefix(prefix []byte, fn func(key, value []byte) (bool, er.R)) er.R {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inner.IterPrefix(prefix, fn)
}

func (m *muxEngine) Close() er.R {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inner.Close()
}

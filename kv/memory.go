package kv

import (
	"sort"
	"strings"

	"github.com/pkt-cash/indexer-sdk/er"
)

// memEngine is an in-memory map-backed Engine for tests and the
// mempool-only (db_path empty) mode. It is deliberately not internally
// synchronized — see Wrap — so single-owner uses pay no locking cost.
type memEngine struct {
	data map[string][]byte
}

// NewMemEngine returns a fresh, empty in-memory Engine.
func NewMemEngine() Engine {
	return &memEngine{data: make(map[string][]byte)}
}

func (m *memEngine) Get(key []byte) ([]byte, bool, er.R) {
	v, ok := m.data[string(key)]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *memEngine) Set(key, value []byte) er.R {
	return m.WriteBatch([]Op{Put(key, value)}, false)
}

func (m *memEngine) WriteBatch(ops []Op, _ bool) er.R {
	for _, op := range ops {
		if op.Delete {
			delete(m.data, string(op.Key))
			continue
		}
		v := make([]byte, len(op.Value))
		copy(v, op.Value)
		m.data[string(op.Key)] = v
	}
	return nil
}

func (m *memEngine) IterPrefix(prefix []byte, fn func(key, value []byte) (bool, er.R)) er.R {
	p := string(prefix)
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if strings.HasPrefix(k, p) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		keep, err := fn([]byte(k), m.data[k])
		if err != nil {
			return err
		}
		if !keep {
			break
		}
	}
	return nil
}

func (m *memEngine) Close() er.R {
	return nil
}

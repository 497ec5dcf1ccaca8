package kv

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pkt-cash/indexer-sdk/er"
)

func TestBoltEngineRoundTripAndPrefixScan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indexer.db")
	e, err := NewBoltEngine(path)
	requireNoErr(t, err)
	defer e.Close()

	requireNoErr(t, e.WriteBatch([]Op{
		Put([]byte("d|1"), []byte("one")),
		Put([]byte("d|2"), []byte("two")),
		Put([]byte("s|1"), []byte("other-column")),
	}, true))

	v, ok, err := e.Get([]byte("d|1"))
	requireNoErr(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("one"), v)

	var got []string
	err = e.IterPrefix([]byte("d|"), func(key, value []byte) (bool, er.R) {
		got = append(got, string(value))
		return true, nil
	})
	requireNoErr(t, err)
	require.ElementsMatch(t, []string{"one", "two"}, got)
}

func TestBoltEnginePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indexer.db")
	e, err := NewBoltEngine(path)
	requireNoErr(t, err)
	requireNoErr(t, e.Set([]byte("k"), []byte("v")))
	requireNoErr(t, e.Close())

	e2, err := NewBoltEngine(path)
	requireNoErr(t, err)
	defer e2.Close()

	v, ok, err := e2.Get([]byte("k"))
	requireNoErr(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)
}

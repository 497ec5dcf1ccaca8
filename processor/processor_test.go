package processor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pkt-cash/indexer-sdk/er"
	"github.com/pkt-cash/indexer-sdk/event"
	"github.com/pkt-cash/indexer-sdk/internal/queue"
	"github.com/pkt-cash/indexer-sdk/kv"
	"github.com/pkt-cash/indexer-sdk/ledger"
	"github.com/pkt-cash/indexer-sdk/rpcnode"
	"github.com/pkt-cash/indexer-sdk/txdecode"
)

func requireNoErr(t *testing.T, err er.R, msgAndArgs ...interface{}) {
	t.Helper()
	require.NoError(t, er.Native(err), msgAndArgs...)
}

// fakeRPC satisfies RPCClient with canned responses, standing in for
// the node.
type fakeRPC struct {
	mempool    []rpcnode.MempoolEntry
	mempoolErr er.R
	rawTxByID  map[event.TransactionId][]byte
}

func (f *fakeRPC) GetRawMempoolVerbose(ctx context.Context) ([]rpcnode.MempoolEntry, er.R) {
	if f.mempoolErr != nil {
		return nil, f.mempoolErr
	}
	return f.mempool, nil
}

func (f *fakeRPC) GetRawTransaction(ctx context.Context, txId event.TransactionId) ([]byte, er.R) {
	raw, ok := f.rawTxByID[txId]
	if !ok {
		return nil, er.Errorf("no such tx: %v", txId)
	}
	return raw, nil
}

// rawTxFor builds consensus-serialized bytes for a trivial one-input,
// no-output legacy transaction whose locktime field is used to vary
// the derived hash across fixtures. A single input (rather than zero)
// sidesteps the segwit marker/flag ambiguity in the wire encoding.
func rawTxFor(locktime uint32) []byte {
	raw := make([]byte, 0, 64)
	raw = append(raw, 1, 0, 0, 0) // version 1, little-endian
	raw = append(raw, 1)          // 1 input
	raw = append(raw, make([]byte, 32)...) // prevout hash
	raw = append(raw, 0xff, 0xff, 0xff, 0xff) // prevout index
	raw = append(raw, 0)                      // empty signature script
	raw = append(raw, 0xff, 0xff, 0xff, 0xff) // sequence
	raw = append(raw, 0)                      // 0 outputs
	raw = append(raw, byte(locktime), byte(locktime>>8), byte(locktime>>16), byte(locktime>>24))
	return raw
}

func newTestProcessor(t *testing.T, rpc RPCClient) (*Processor, *ledger.Ledger, *queue.Unbounded) {
	t.Helper()
	l := ledger.New(kv.Wrap(kv.NewMemEngine()))
	clientOut := queue.New()
	p := New(l, rpc, clientOut, Config{
		RPCTimeout:          time.Second,
		RestoreBackoffStart: time.Millisecond,
		RestoreBackoffMax:   5 * time.Millisecond,
	})
	requireNoErr(t, p.Init())
	return p, l, clientOut
}

func recvClientEvent(t *testing.T, q *queue.Unbounded) event.ClientEvent {
	t.Helper()
	select {
	case v := <-q.Out():
		return v.(event.ClientEvent)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for client event")
		return event.ClientEvent{}
	}
}

func TestNewTxComingFreshDelivery(t *testing.T) {
	p, _, clientOut := newTestProcessor(t, &fakeRPC{})
	requireNoErr(t, p.BeforeStart())
	require.True(t, p.Ready())

	shutdown := make(chan struct{})
	go p.Run(shutdown)
	defer close(shutdown)

	raw := rawTxFor(1)
	p.Push(event.NewTxComing(raw, 1))

	evt := recvClientEvent(t, clientOut)
	require.Equal(t, event.ClientEventTransaction, evt.Kind)
	require.Equal(t, raw, evt.Tx.Raw)
}

func TestNewTxComingDuplicateIsDropped(t *testing.T) {
	p, _, clientOut := newTestProcessor(t, &fakeRPC{})
	requireNoErr(t, p.BeforeStart())

	shutdown := make(chan struct{})
	go p.Run(shutdown)
	defer close(shutdown)

	raw := rawTxFor(2)
	p.Push(event.NewTxComing(raw, 1))
	recvClientEvent(t, clientOut)

	// Second delivery of the identical bytes is already Seen+executed:
	// must be dropped silently, not redelivered.
	p.Push(event.NewTxComing(raw, 2))
	select {
	case <-clientOut.Out():
		t.Fatal("duplicate NewTxComing should not redeliver")
	case <-time.After(100 * time.Millisecond):
	}
}

// fixtureTx decodes rawTxFor(locktime) so tests can refer to the same
// id the processor will derive from the bytes.
func fixtureTx(t *testing.T, locktime uint32) event.Transaction {
	t.Helper()
	tx, err := txdecode.Decode(rawTxFor(locktime))
	requireNoErr(t, err)
	return tx
}

func TestRestoreFromMempoolInjectsSortedByTimestamp(t *testing.T) {
	tx1 := fixtureTx(t, 10)
	tx2 := fixtureTx(t, 20)
	rpc := &fakeRPC{
		mempool: []rpcnode.MempoolEntry{
			{TxId: tx1.Id, Time: 200},
			{TxId: tx2.Id, Time: 100},
		},
		rawTxByID: map[event.TransactionId][]byte{
			tx1.Id: tx1.Raw,
			tx2.Id: tx2.Raw,
		},
	}
	p, _, clientOut := newTestProcessor(t, rpc)
	requireNoErr(t, p.BeforeStart())
	require.True(t, p.Ready())

	shutdown := make(chan struct{})
	go p.Run(shutdown)
	defer close(shutdown)

	// tx2 has the earlier timestamp and must be delivered first.
	first := recvClientEvent(t, clientOut)
	require.Equal(t, tx2.Id, first.Tx.Id)
	second := recvClientEvent(t, clientOut)
	require.Equal(t, tx1.Id, second.Tx.Id)
}

func TestRestoreRedeliversSeenButUnexecuted(t *testing.T) {
	// Crash-between-delivery-and-execution divergence: the ledger has
	// already seen tx6 (executed=false), the node mempool holds tx6 and
	// tx7. Restore must redeliver tx6 and deliver tx7, in timestamp
	// order, each exactly once.
	tx6 := fixtureTx(t, 60)
	tx7 := fixtureTx(t, 70)
	rpc := &fakeRPC{
		mempool: []rpcnode.MempoolEntry{
			{TxId: tx6.Id, Time: 100},
			{TxId: tx7.Id, Time: 200},
		},
		rawTxByID: map[event.TransactionId][]byte{
			tx6.Id: tx6.Raw,
			tx7.Id: tx7.Raw,
		},
	}
	p, l, clientOut := newTestProcessor(t, rpc)

	state, err := l.SeenAndStoreTxs(tx6.Id)
	requireNoErr(t, err)
	require.True(t, state.Fresh)

	requireNoErr(t, p.BeforeStart())

	shutdown := make(chan struct{})
	go p.Run(shutdown)
	defer close(shutdown)

	first := recvClientEvent(t, clientOut)
	require.Equal(t, tx6.Id, first.Tx.Id)
	second := recvClientEvent(t, clientOut)
	require.Equal(t, tx7.Id, second.Tx.Id)

	select {
	case <-clientOut.Out():
		t.Fatal("restore delivered a transaction twice")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTxRemovedEmitsTxDroped(t *testing.T) {
	p, l, clientOut := newTestProcessor(t, &fakeRPC{})
	requireNoErr(t, p.BeforeStart())

	id := event.TransactionId{7}
	_, err := l.SeenAndStoreTxs(id)
	requireNoErr(t, err)
	delta := event.NewTransactionDelta(id)
	delta.Add(event.Address("a"), event.Token("t"), event.NewBalanceAmount(5))
	requireNoErr(t, l.AddTransactionDelta(delta))

	shutdown := make(chan struct{})
	go p.Run(shutdown)
	defer close(shutdown)

	p.Push(event.TxRemovedEvent(id))

	evt := recvClientEvent(t, clientOut)
	require.Equal(t, event.ClientEventTxDroped, evt.Kind)
	require.Equal(t, id, evt.TxId)

	amt, err := l.GetBalance(event.Address("a"), event.Token("t"))
	requireNoErr(t, err)
	require.Equal(t, "0", amt.String())
}

func TestTxRemovedBeforeAnyDelta(t *testing.T) {
	p, l, clientOut := newTestProcessor(t, &fakeRPC{})
	requireNoErr(t, p.BeforeStart())

	shutdown := make(chan struct{})
	go p.Run(shutdown)
	defer close(shutdown)

	tx := fixtureTx(t, 30)
	p.Push(event.NewTxComing(tx.Raw, 1))
	delivered := recvClientEvent(t, clientOut)
	require.Equal(t, event.ClientEventTransaction, delivered.Kind)

	// Dropped from the mempool before the executor produced a delta:
	// the client still hears TxDroped, and balances are untouched.
	p.Push(event.TxRemovedEvent(tx.Id))
	dropped := recvClientEvent(t, clientOut)
	require.Equal(t, event.ClientEventTxDroped, dropped.Kind)
	require.Equal(t, tx.Id, dropped.TxId)

	amt, err := l.GetBalance(event.Address("a"), event.Token("t"))
	requireNoErr(t, err)
	require.Equal(t, "0", amt.String())
}

func TestReportReorgFlipsConfirmedDeltasOnce(t *testing.T) {
	p, l, clientOut := newTestProcessor(t, &fakeRPC{})
	requireNoErr(t, p.BeforeStart())

	addr := event.Address("a")
	tok := event.Token("t")
	id4 := event.TransactionId{4}
	id5 := event.TransactionId{5}
	for _, id := range []event.TransactionId{id4, id5} {
		_, err := l.SeenAndStoreTxs(id)
		requireNoErr(t, err)
		requireNoErr(t, l.MarkExecuted(id))
		delta := event.NewTransactionDelta(id)
		delta.Add(addr, tok, event.NewBalanceAmount(10))
		requireNoErr(t, l.AddTransactionDelta(delta))
		requireNoErr(t, l.RemoveTransactionDelta(id, event.StatusConfirmed))
	}

	shutdown := make(chan struct{})
	go p.Run(shutdown)
	defer close(shutdown)

	// id4 listed twice: the repeat must not duplicate its TxDroped.
	p.Push(event.ReportReorgEvent([]event.TransactionId{id4, id5, id4}))

	first := recvClientEvent(t, clientOut)
	require.Equal(t, event.ClientEventTxDroped, first.Kind)
	second := recvClientEvent(t, clientOut)
	require.Equal(t, event.ClientEventTxDroped, second.Kind)
	require.ElementsMatch(t, []event.TransactionId{id4, id5},
		[]event.TransactionId{first.TxId, second.TxId})

	select {
	case <-clientOut.Out():
		t.Fatal("repeated reorg entry should not emit a third TxDroped")
	case <-time.After(100 * time.Millisecond):
	}

	amt, err := l.GetBalance(addr, tok)
	requireNoErr(t, err)
	require.Equal(t, "0", amt.String())
}

func TestGetBalanceRepliesOverOneShotChannel(t *testing.T) {
	p, l, _ := newTestProcessor(t, &fakeRPC{})
	requireNoErr(t, p.BeforeStart())

	addr := event.Address("addr")
	tok := event.Token("tok")
	delta := event.NewTransactionDelta(event.TransactionId{9})
	delta.Add(addr, tok, event.NewBalanceAmount(42))
	requireNoErr(t, l.AddTransactionDelta(delta))

	shutdown := make(chan struct{})
	go p.Run(shutdown)
	defer close(shutdown)

	evt, reply := event.GetBalanceEvent(addr, tok)
	p.Push(evt)

	select {
	case res := <-reply:
		require.NoError(t, res.Err)
		require.Equal(t, "42", res.Amount.String())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for balance reply")
	}
}

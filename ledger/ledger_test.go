package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pkt-cash/indexer-sdk/er"
	"github.com/pkt-cash/indexer-sdk/event"
	"github.com/pkt-cash/indexer-sdk/kv"
)

func requireNoErr(t *testing.T, err er.R, msgAndArgs ...interface{}) {
	t.Helper()
	require.NoError(t, er.Native(err), msgAndArgs...)
}

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	return New(kv.Wrap(kv.NewMemEngine()))
}

func txId(b byte) event.TransactionId {
	var id event.TransactionId
	id[0] = b
	return id
}

func TestSeenAndStoreTxsIsIdempotent(t *testing.T) {
	l := newTestLedger(t)
	id := txId(1)

	state, err := l.SeenAndStoreTxs(id)
	requireNoErr(t, err)
	require.True(t, state.Fresh)
	require.False(t, state.Executed)

	state, err = l.SeenAndStoreTxs(id)
	requireNoErr(t, err)
	require.False(t, state.Fresh)
	require.False(t, state.Executed)

	requireNoErr(t, l.MarkExecuted(id))

	state, err = l.SeenAndStoreTxs(id)
	requireNoErr(t, err)
	require.False(t, state.Fresh)
	require.True(t, state.Executed)
}

func TestAddTransactionDeltaUpdatesBalance(t *testing.T) {
	l := newTestLedger(t)
	id := txId(2)
	addr := event.Address("addr-a")
	tok := event.Token("tok-x")

	delta := event.NewTransactionDelta(id)
	delta.Add(addr, tok, event.NewBalanceAmount(100))

	requireNoErr(t, l.AddTransactionDelta(delta))

	amt, err := l.GetBalance(addr, tok)
	requireNoErr(t, err)
	require.Equal(t, "100", amt.String())
}

func TestAddTransactionDeltaIgnoresDuplicateSubmission(t *testing.T) {
	l := newTestLedger(t)
	id := txId(3)
	addr := event.Address("addr-b")
	tok := event.Token("tok-y")

	delta := event.NewTransactionDelta(id)
	delta.Add(addr, tok, event.NewBalanceAmount(50))
	requireNoErr(t, l.AddTransactionDelta(delta))
	// A second Active delta for the same tx_id is a duplicate and must
	// not be summed again.
	requireNoErr(t, l.AddTransactionDelta(delta))

	amt, err := l.GetBalance(addr, tok)
	requireNoErr(t, err)
	require.Equal(t, "50", amt.String())
}

func TestRemoveTransactionDeltaToInActiveReversesBalance(t *testing.T) {
	l := newTestLedger(t)
	id := txId(4)
	addr := event.Address("addr-c")
	tok := event.Token("tok-z")

	delta := event.NewTransactionDelta(id)
	delta.Add(addr, tok, event.NewBalanceAmount(75))
	requireNoErr(t, l.AddTransactionDelta(delta))

	requireNoErr(t, l.RemoveTransactionDelta(id, event.StatusInActive))

	amt, err := l.GetBalance(addr, tok)
	requireNoErr(t, err)
	require.Equal(t, "0", amt.String())

	// Idempotent: repeating against a terminal record is a no-op, not
	// an error.
	requireNoErr(t, l.RemoveTransactionDelta(id, event.StatusConfirmed))
}

func TestRemoveTransactionDeltaToConfirmedKeepsBalance(t *testing.T) {
	l := newTestLedger(t)
	id := txId(5)
	addr := event.Address("addr-d")
	tok := event.Token("tok-w")

	delta := event.NewTransactionDelta(id)
	delta.Add(addr, tok, event.NewBalanceAmount(30))
	requireNoErr(t, l.AddTransactionDelta(delta))
	requireNoErr(t, l.RemoveTransactionDelta(id, event.StatusConfirmed))

	amt, err := l.GetBalance(addr, tok)
	requireNoErr(t, err)
	require.Equal(t, "30", amt.String())
}

func TestRemoveTransactionDeltaUnknownTxIdIsNoop(t *testing.T) {
	l := newTestLedger(t)
	requireNoErr(t, l.RemoveTransactionDelta(txId(6), event.StatusInActive))
}

func TestGetAllUnConsumedTxs(t *testing.T) {
	l := newTestLedger(t)

	unexecuted := txId(10)
	_, err := l.SeenAndStoreTxs(unexecuted)
	requireNoErr(t, err)

	executedNoDelta := txId(11)
	_, err = l.SeenAndStoreTxs(executedNoDelta)
	requireNoErr(t, err)
	requireNoErr(t, l.MarkExecuted(executedNoDelta))

	executedActiveDelta := txId(12)
	_, err = l.SeenAndStoreTxs(executedActiveDelta)
	requireNoErr(t, err)
	requireNoErr(t, l.MarkExecuted(executedActiveDelta))
	delta := event.NewTransactionDelta(executedActiveDelta)
	delta.Add(event.Address("addr"), event.Token("tok"), event.NewBalanceAmount(1))
	requireNoErr(t, l.AddTransactionDelta(delta))

	executedConfirmed := txId(13)
	_, err = l.SeenAndStoreTxs(executedConfirmed)
	requireNoErr(t, err)
	requireNoErr(t, l.MarkExecuted(executedConfirmed))
	delta2 := event.NewTransactionDelta(executedConfirmed)
	delta2.Add(event.Address("addr"), event.Token("tok"), event.NewBalanceAmount(1))
	requireNoErr(t, l.AddTransactionDelta(delta2))
	requireNoErr(t, l.RemoveTransactionDelta(executedConfirmed, event.StatusConfirmed))

	entries, err := l.GetAllUnConsumedTxs()
	requireNoErr(t, err)

	var got []event.TransactionId
	for _, e := range entries {
		got = append(got, e.TxId)
	}
	require.ElementsMatch(t, []event.TransactionId{unexecuted, executedActiveDelta}, got)
}

func TestClearSeenAllowsFreshReentry(t *testing.T) {
	l := newTestLedger(t)
	id := txId(20)

	state, err := l.SeenAndStoreTxs(id)
	requireNoErr(t, err)
	require.True(t, state.Fresh)

	requireNoErr(t, l.MarkExecuted(id))
	cleared, err := l.ClearSeen(id)
	requireNoErr(t, err)
	require.True(t, cleared)

	// Clearing again finds nothing.
	cleared, err = l.ClearSeen(id)
	requireNoErr(t, err)
	require.False(t, cleared)

	state, err = l.SeenAndStoreTxs(id)
	requireNoErr(t, err)
	require.True(t, state.Fresh)
}

func TestLastHeightRoundTrip(t *testing.T) {
	l := newTestLedger(t)

	h, err := l.LastHeight()
	requireNoErr(t, err)
	require.Equal(t, uint32(0), h)

	requireNoErr(t, l.SetLastHeight(1234))
	h, err = l.LastHeight()
	requireNoErr(t, err)
	require.Equal(t, uint32(1234), h)
}

func TestRemoveTransactionDeltaReorgFlipsConfirmedToInActive(t *testing.T) {
	l := newTestLedger(t)
	id := txId(7)
	addr := event.Address("addr-e")
	tok := event.Token("tok-v")

	delta := event.NewTransactionDelta(id)
	delta.Add(addr, tok, event.NewBalanceAmount(60))
	requireNoErr(t, l.AddTransactionDelta(delta))
	requireNoErr(t, l.RemoveTransactionDelta(id, event.StatusConfirmed))

	// A reorg drops the block that confirmed this tx: the delta flips
	// Confirmed -> InActive and its effect on balances is subtracted.
	requireNoErr(t, l.RemoveTransactionDelta(id, event.StatusInActive))

	amt, err := l.GetBalance(addr, tok)
	requireNoErr(t, err)
	require.Equal(t, "0", amt.String())

	// InActive never reverts, and repeating is a no-op.
	requireNoErr(t, l.RemoveTransactionDelta(id, event.StatusConfirmed))
	requireNoErr(t, l.RemoveTransactionDelta(id, event.StatusInActive))
	amt, err = l.GetBalance(addr, tok)
	requireNoErr(t, err)
	require.Equal(t, "0", amt.String())
}

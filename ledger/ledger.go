package ledger

import (
	"encoding/binary"
	"time"

	logpkg "github.com/pkt-cash/indexer-sdk/log"

	"github.com/pkt-cash/indexer-sdk/er"
	"github.com/pkt-cash/indexer-sdk/event"
	"github.com/pkt-cash/indexer-sdk/kv"
)

var log logpkg.Logger = logpkg.Disabled

// UseLogger assigns the subsystem logger used by this package,
// following pktd's per-package UseLogger convention (e.g.
// lnd/channeldb/log.go).
func UseLogger(logger logpkg.Logger) {
	log = logger
}

// Ledger is the durable, idempotent store of seen-transaction
// bookkeeping and per-transaction balance deltas. It holds no
// in-process cache; every operation reads and writes through to the
// injected kv.Engine, so the only state that must survive a restart
// lives there.
type Ledger struct {
	engine kv.Engine
}

// New wraps engine as a Ledger. engine is expected to already be safe
// for concurrent use (kv.Wrap it first if it is a bare memory engine
// shared across goroutines).
func New(engine kv.Engine) *Ledger {
	return &Ledger{engine: engine}
}

// SeenAndStoreTxs looks up the seen column for txId, and if absent,
// atomically records it as seen-but-not-executed. Idempotent: repeated
// calls with the same txId return the same SeenState without creating
// duplicate entries.
func (l *Ledger) SeenAndStoreTxs(txId event.TransactionId) (event.SeenState, er.R) {
	key := seenKey(txId)
	raw, ok, err := l.engine.Get(key)
	if err != nil {
		return event.SeenState{}, err
	}
	if ok {
		rec, err := decodeSeenRecord(txId, raw)
		if err != nil {
			return event.SeenState{}, err
		}
		return event.SeenState{Fresh: false, Executed: rec.Executed}, nil
	}
	rec := event.SeenRecord{TxId: txId, FirstSeenTs: time.Now().Unix(), Executed: false}
	if err := l.engine.WriteBatch([]kv.Op{kv.Put(key, encodeSeenRecord(rec))}, true); err != nil {
		return event.SeenState{}, err
	}
	return event.SeenState{Fresh: true}, nil
}

// MarkExecuted flips the executed flag for txId. Silently a no-op if
// txId was never seen (defensive; the processor never calls this for
// an unseen tx in practice).
func (l *Ledger) MarkExecuted(txId event.TransactionId) er.R {
	key := seenKey(txId)
	raw, ok, err := l.engine.Get(key)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	rec, err := decodeSeenRecord(txId, raw)
	if err != nil {
		return err
	}
	if rec.Executed {
		return nil
	}
	rec.Executed = true
	return l.engine.WriteBatch([]kv.Op{kv.Put(key, encodeSeenRecord(rec))}, true)
}

// ClearSeen removes the seen-column bookkeeping for txId, reporting
// whether a record existed. Used only on the drop/reorg path for
// transactions transitioning to InActive — it keeps a reorg'd-out
// transaction eligible to be treated as fresh again if the node
// re-announces it, instead of being stuck "seen" forever, and the
// returned flag lets the caller distinguish the first removal from a
// repeat of one already processed.
func (l *Ledger) ClearSeen(txId event.TransactionId) (bool, er.R) {
	key := seenKey(txId)
	_, ok, err := l.engine.Get(key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := l.engine.WriteBatch([]kv.Op{kv.Del(key)}, true); err != nil {
		return false, err
	}
	return true, nil
}

// AddTransactionDelta stores delta as Active under delta|tx_id,
// updating the balance index. No-ops if a terminal record already
// exists for this tx_id.
func (l *Ledger) AddTransactionDelta(delta *event.TransactionDelta) er.R {
	key := deltaKey(delta.TxId)
	raw, ok, err := l.engine.Get(key)
	if err != nil {
		return err
	}
	if ok {
		existing, err := decodeDeltaRecord(delta.TxId, raw)
		if err != nil {
			return err
		}
		if existing.status.IsTerminal() {
			log.Debugf("add_transaction_delta: %v already terminal (%v), ignoring", delta.TxId, existing.status)
			return nil
		}
		// Active delta already recorded for this tx_id: at most one
		// Active delta may exist per tx_id, so a
		// second AddTransactionDelta call for the same tx_id is a
		// duplicate submission and is ignored rather than summed
		// again.
		return nil
	}

	ops := []kv.Op{kv.Put(key, encodeDeltaRecord(event.StatusActive, delta))}
	ops = append(ops, l.balanceIndexOps(delta, false)...)
	return l.engine.WriteBatch(ops, true)
}

// RemoveTransactionDelta mutates the record's status: Active moves to
// either target, and Confirmed moves to InActive when a reorg drops a
// transaction a block had already included. InActive never reverts,
// repeats are idempotent, and an unknown tx_id is silently ignored.
func (l *Ledger) RemoveTransactionDelta(txId event.TransactionId, target event.DeltaStatus) er.R {
	if target != event.StatusConfirmed && target != event.StatusInActive {
		return er.Errorf("ledger: invalid target status %v", target)
	}
	key := deltaKey(txId)
	raw, ok, err := l.engine.Get(key)
	if err != nil {
		return err
	}
	if !ok {
		// No delta was ever recorded for this tx_id — the executor
		// produced no change. Not an error.
		return nil
	}
	rec, err := decodeDeltaRecord(txId, raw)
	if err != nil {
		return err
	}
	if rec.status == target || rec.status == event.StatusInActive {
		// Idempotent: already there, or fully retired.
		return nil
	}

	ops := []kv.Op{kv.Put(key, encodeDeltaRecord(target, rec.delta))}
	if target == event.StatusInActive {
		ops = append(ops, l.balanceIndexOps(rec.delta, true)...)
	}
	return l.engine.WriteBatch(ops, true)
}

// balanceIndexOps returns the kv.Ops needed to apply (or, if reverse,
// un-apply) delta's amounts to the bal|addr|tok index maintained
// alongside each status change.
func (l *Ledger) balanceIndexOps(delta *event.TransactionDelta, reverse bool) []kv.Op {
	var ops []kv.Op
	for addr, amounts := range delta.Deltas {
		// Multiple TokenAmount entries may share a token within one
		// address; sum them before touching the index.
		byToken := map[string]event.BalanceAmount{}
		for _, ta := range amounts {
			amt := ta.Amount
			if reverse {
				amt = amt.Neg()
			}
			byToken[string(ta.Token)] = byToken[string(ta.Token)].Add(amt)
		}
		for tok, amt := range byToken {
			key := balanceKey(event.Address(addr), event.Token(tok))
			ops = append(ops, kv.Put(key, l.addToBalanceIndex(key, amt)))
		}
	}
	return ops
}

func (l *Ledger) addToBalanceIndex(key []byte, delta event.BalanceAmount) []byte {
	existing, ok, err := l.engine.Get(key)
	if err != nil || !ok {
		return delta.Bytes()
	}
	cur, ok := event.ParseBalanceAmount(existing)
	if !ok {
		return delta.Bytes()
	}
	return cur.Add(delta).Bytes()
}

// GetBalance returns the sum of all Active+Confirmed deltas touching
// (address, token), served from the transactionally maintained index.
func (l *Ledger) GetBalance(address event.Address, token event.Token) (event.BalanceAmount, er.R) {
	key := balanceKey(address, token)
	raw, ok, err := l.engine.Get(key)
	if err != nil {
		return event.BalanceAmount{}, err
	}
	if !ok {
		return event.NewBalanceAmount(0), nil
	}
	amt, ok := event.ParseBalanceAmount(raw)
	if !ok {
		return event.BalanceAmount{}, ErrTruncated.Default()
	}
	return amt, nil
}

// SetLastHeight records the most recent consumer height the embedder
// reported, in the height column of the persisted layout.
func (l *Ledger) SetLastHeight(h uint32) er.R {
	var v [4]byte
	binary.BigEndian.PutUint32(v[:], h)
	return l.engine.WriteBatch([]kv.Op{kv.Put([]byte{colMeta}, v[:])}, true)
}

// LastHeight returns the stored consumer height, or 0 if none has been
// reported yet.
func (l *Ledger) LastHeight() (uint32, er.R) {
	raw, ok, err := l.engine.Get([]byte{colMeta})
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	if len(raw) != 4 {
		return 0, ErrTruncated.Default()
	}
	return binary.BigEndian.Uint32(raw), nil
}

// UnconsumedTx is one entry returned by GetAllUnConsumedTxs.
type UnconsumedTx struct {
	TxId        event.TransactionId
	FirstSeenTs int64
}

// GetAllUnConsumedTxs returns every tx_id that is either not yet executed
// or whose delta is still Active. Ordering is arbitrary; callers sort.
func (l *Ledger) GetAllUnConsumedTxs() ([]UnconsumedTx, er.R) {
	var out, executed []UnconsumedTx
	err := l.engine.IterPrefix([]byte{colSeen}, func(key, value []byte) (bool, er.R) {
		if len(key) != 1+32 {
			return true, nil
		}
		var txId event.TransactionId
		copy(txId[:], key[1:])
		rec, decErr := decodeSeenRecord(txId, value)
		if decErr != nil {
			log.Warnf("get_all_un_consumed_txs: skipping corrupt seen record for %v: %v", txId, decErr)
			return true, nil
		}
		if !rec.Executed {
			out = append(out, UnconsumedTx{TxId: txId, FirstSeenTs: rec.FirstSeenTs})
			return true, nil
		}
		// executed == true: still unconsumed if its delta is Active. The
		// delta is looked up after the scan, since a kv.Wrap'd engine
		// holds its lock for the whole of IterPrefix.
		executed = append(executed, UnconsumedTx{TxId: txId, FirstSeenTs: rec.FirstSeenTs})
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	for _, e := range executed {
		raw, ok, dErr := l.engine.Get(deltaKey(e.TxId))
		if dErr != nil || !ok {
			continue
		}
		dRec, dErr := decodeDeltaRecord(e.TxId, raw)
		if dErr == nil && dRec.status == event.StatusActive {
			out = append(out, e)
		}
	}
	return out, nil
}

// Close releases the ledger's backing engine.
func (l *Ledger) Close() er.R {
	return l.engine.Close()
}

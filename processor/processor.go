// Package processor is the central state machine: it consumes
// IndexerEvents off a single inbound queue, decodes and deduplicates
// incoming transactions against the ledger, and emits ClientEvents to
// the embedder. Before its event loop starts it reconciles the node's
// mempool with the ledger's unexecuted transactions so nothing pending
// is lost across a restart.
package processor

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/pkt-cash/indexer-sdk/er"
	"github.com/pkt-cash/indexer-sdk/event"
	"github.com/pkt-cash/indexer-sdk/internal/queue"
	"github.com/pkt-cash/indexer-sdk/ledger"
	logpkg "github.com/pkt-cash/indexer-sdk/log"
	"github.com/pkt-cash/indexer-sdk/rpcnode"
	"github.com/pkt-cash/indexer-sdk/txdecode"
)

var log logpkg.Logger = logpkg.Disabled

// UseLogger assigns the subsystem logger used by this package.
func UseLogger(logger logpkg.Logger) {
	log = logger
}

var errType = er.NewErrorType("processor")

// ErrBadConfig flags an invalid Config at Init time.
var ErrBadConfig = errType.CodeWithDetail("ErrBadConfig", "invalid processor configuration")

// RPCClient is the subset of rpcnode.Client the processor needs,
// narrowed to an interface so tests can supply a fake node.
type RPCClient interface {
	GetRawMempoolVerbose(ctx context.Context) ([]rpcnode.MempoolEntry, er.R)
	GetRawTransaction(ctx context.Context, txId event.TransactionId) ([]byte, er.R)
}

// Config carries the operational tunables: timeouts and backoff bounds around the restore_from_mempool retry
// loop and the per-RPC-call deadline used while handling TxFromRestore.
type Config struct {
	RPCTimeout          time.Duration
	RestoreBackoffStart time.Duration
	RestoreBackoffMax   time.Duration
}

func (c *Config) setDefaults() {
	if c.RPCTimeout == 0 {
		c.RPCTimeout = 10 * time.Second
	}
	if c.RestoreBackoffStart == 0 {
		c.RestoreBackoffStart = 1 * time.Second
	}
	if c.RestoreBackoffMax == 0 {
		c.RestoreBackoffMax = 30 * time.Second
	}
}

// Processor is the event-loop component driving the ledger. It owns an
// unbounded inbound queue so that producers — the ZMQ ingest component,
// the client notifier, and the restore step itself — never block on a
// slow handler.
type Processor struct {
	cfg       Config
	ledger    *ledger.Ledger
	rpc       RPCClient
	clientOut *queue.Unbounded
	inbound   *queue.Unbounded
	ready     int32
}

// New constructs a Processor. clientOut is the queue ClientEvents are
// published to; the caller (cmd/indexerd, or the client package) reads
// it via clientOut.Out().
func New(l *ledger.Ledger, rpc RPCClient, clientOut *queue.Unbounded, cfg Config) *Processor {
	return &Processor{
		cfg:       cfg,
		ledger:    l,
		rpc:       rpc,
		clientOut: clientOut,
		inbound:   queue.New(),
	}
}

// Name identifies this component in logs.
func (p *Processor) Name() string { return "processor" }

// Init validates configuration, filling in defaults for anything left
// zero.
func (p *Processor) Init() er.R {
	if p.ledger == nil || p.rpc == nil || p.clientOut == nil {
		return ErrBadConfig.Default()
	}
	p.cfg.setDefaults()
	return nil
}

// Push enqueues evt for processing. Safe to call concurrently, and
// safe to call before Run starts (the zmqingest and client components
// may begin delivering before the processor's own goroutine is
// scheduled; the inbound queue absorbs that).
func (p *Processor) Push(evt event.IndexerEvent) {
	p.inbound.Send(evt)
}

// Interest reports whether evt is one of the event kinds this
// processor handles, for use behind a component.Router. It accepts
// the whole current union; narrower components registered beside it
// filter themselves.
func (p *Processor) Interest(evt event.IndexerEvent) bool {
	return evt.Kind <= event.EventGetBalance
}

// Dispatch delivers evt, satisfying component.Interested.
func (p *Processor) Dispatch(evt event.IndexerEvent) {
	p.Push(evt)
}

// Ready reports whether restore_from_mempool has completed. Components
// that need a coherent mempool view (none currently shipped in this
// SDK) should gate on it.
func (p *Processor) Ready() bool {
	return atomic.LoadInt32(&p.ready) == 1
}

// BeforeStart runs restore_from_mempool to completion before Run's
// event loop is allowed to see any externally-sourced event, using the
// harness's guarantee that every BeforeStart completes before any Run
// loop starts.
func (p *Processor) BeforeStart() er.R {
	return p.restoreFromMempool()
}

type restoreEntry struct {
	txId event.TransactionId
	ts   int64
}

// restoreFromMempool unions the node's current mempool with the
// ledger's unexecuted tx_ids, sorts by timestamp ascending, and
// injects one TxFromRestore per entry. RPC failure is retried with a
// capped exponential backoff, leaving the ready-flag unset until the
// whole restore succeeds; a ledger read failure is not retriable I/O
// against an external system and is returned as fatal.
func (p *Processor) restoreFromMempool() er.R {
	backoff := p.cfg.RestoreBackoffStart
	for {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.RPCTimeout)
		mempool, err := p.rpc.GetRawMempoolVerbose(ctx)
		cancel()
		if err != nil {
			log.Warnf("restore_from_mempool: getrawmempool failed, retrying in %v: %v", backoff, err)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > p.cfg.RestoreBackoffMax {
				backoff = p.cfg.RestoreBackoffMax
			}
			continue
		}

		unexecuted, err := p.ledger.GetAllUnConsumedTxs()
		if err != nil {
			return err
		}

		merged := map[event.TransactionId]int64{}
		for _, m := range mempool {
			merged[m.TxId] = m.Time
		}
		for _, u := range unexecuted {
			if _, ok := merged[u.TxId]; !ok {
				merged[u.TxId] = u.FirstSeenTs
			}
		}

		entries := make([]restoreEntry, 0, len(merged))
		for txId, ts := range merged {
			entries = append(entries, restoreEntry{txId: txId, ts: ts})
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].ts < entries[j].ts })

		for _, e := range entries {
			p.inbound.Send(event.TxFromRestore(e.txId))
		}

		atomic.StoreInt32(&p.ready, 1)
		log.Infof("restore_from_mempool: injected %d transaction(s)", len(entries))
		return nil
	}
}

// Run is the processor's event loop: select on the inbound queue and
// the shared shutdown signal, dispatching each event in receive order.
func (p *Processor) Run(shutdown <-chan struct{}) {
	out := p.inbound.Out()
	for {
		select {
		case <-shutdown:
			return
		case v, ok := <-out:
			if !ok {
				return
			}
			p.handleEvent(v.(event.IndexerEvent))
		}
	}
}

func (p *Processor) handleEvent(evt event.IndexerEvent) {
	switch evt.Kind {
	case event.EventNewTxComing:
		p.handleNewTxComing(evt.RawTx)
	case event.EventTxFromRestore:
		p.handleTxFromRestore(evt.TxId)
	case event.EventUpdateDelta:
		if err := p.ledger.AddTransactionDelta(evt.Delta); err != nil {
			log.Errorf("update_delta: %v", err)
		}
	case event.EventTxConfirmed:
		if err := p.ledger.RemoveTransactionDelta(evt.TxId, event.StatusConfirmed); err != nil {
			log.Errorf("tx_confirmed: %v: %v", evt.TxId, err)
		}
	case event.EventTxRemoved:
		p.handleTxRemoved(evt.TxId)
	case event.EventReportHeight:
		if err := p.ledger.SetLastHeight(evt.Height); err != nil {
			log.Errorf("report_height: %d: %v", evt.Height, err)
		}
	case event.EventReportReorg:
		// Errors per-entry are logged, never abort the batch.
		for _, txId := range evt.ReorgTxIds {
			p.handleTxRemoved(txId)
		}
	case event.EventGetBalance:
		p.handleGetBalance(evt)
	default:
		log.Warnf("handle_event: unknown event kind %v", evt.Kind)
	}
}

// handleNewTxComing handles the NewTxComing event: decode, then defer
// to the same seen/deliver logic TxFromRestore uses.
func (p *Processor) handleNewTxComing(raw []byte) {
	tx, err := txdecode.Decode(raw)
	if err != nil {
		log.Warnf("new_tx_coming: decode failed, skipping: %v", err)
		return
	}
	p.ingestTransaction(tx, false)
}

// handleTxFromRestore implements the TxFromRestore row: fetch the raw
// transaction by id via RPC, then behave as NewTxComing.
func (p *Processor) handleTxFromRestore(txId event.TransactionId) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.RPCTimeout)
	defer cancel()
	raw, err := p.rpc.GetRawTransaction(ctx, txId)
	if err != nil {
		log.Warnf("tx_from_restore: getrawtransaction %v failed: %v", txId, err)
		return
	}
	tx, err := txdecode.Decode(raw)
	if err != nil {
		log.Warnf("tx_from_restore: decode %v failed: %v", txId, err)
		return
	}
	p.ingestTransaction(tx, true)
}

// ingestTransaction applies the duplicate policy: an
// already-executed tx_id is always dropped silently; a
// seen-but-not-executed tx_id is treated as first delivery only when
// fromRestore is true, otherwise dropped. On delivery the transaction
// is published to the client and marked executed.
func (p *Processor) ingestTransaction(tx event.Transaction, fromRestore bool) {
	state, err := p.ledger.SeenAndStoreTxs(tx.Id)
	if err != nil {
		log.Errorf("ingest_transaction: seen_and_store_txs %v: %v", tx.Id, err)
		return
	}
	if !state.Fresh && !(fromRestore && !state.Executed) {
		return
	}
	p.clientOut.Send(event.TransactionEvent(tx))
	if err := p.ledger.MarkExecuted(tx.Id); err != nil {
		log.Errorf("ingest_transaction: mark_executed %v: %v", tx.Id, err)
	}
}

// handleTxRemoved handles the TxRemoved event, and is reused for each
// entry of a ReportReorg batch: retire the delta, clear the Seen
// bookkeeping so a re-announced tx_id is treated as fresh again, and
// notify the client. Repeats (the same tx_id listed twice within one
// reorg batch, or a removal already processed) find no Seen row left
// and emit nothing, so the client hears one TxDroped per removal.
func (p *Processor) handleTxRemoved(txId event.TransactionId) {
	if err := p.ledger.RemoveTransactionDelta(txId, event.StatusInActive); err != nil {
		log.Errorf("tx_removed: remove_transaction_delta %v: %v", txId, err)
		return
	}
	wasSeen, err := p.ledger.ClearSeen(txId)
	if err != nil {
		log.Errorf("tx_removed: clear_seen %v: %v", txId, err)
		return
	}
	if !wasSeen {
		return
	}
	p.clientOut.Send(event.TxDropedEvent(txId))
}

func (p *Processor) handleGetBalance(evt event.IndexerEvent) {
	amt, err := p.ledger.GetBalance(evt.Address, evt.Token)
	if err != nil {
		log.Errorf("get_balance: %v", err)
	}
	evt.Reply <- event.BalanceResult{Amount: amt, Err: er.Native(err)}
	close(evt.Reply)
}

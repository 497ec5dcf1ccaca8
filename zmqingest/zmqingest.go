// Package zmqingest subscribes to a bitcoind-compatible ZMQ publisher
// and turns its notifications into IndexerEvents, built on
// github.com/lightninglabs/gozmq — the same client library lnd's
// bitcoind chain backend uses for rawtx/sequence subscriptions.
package zmqingest

import (
	"time"

	"github.com/lightninglabs/gozmq"

	"github.com/pkt-cash/indexer-sdk/er"
	"github.com/pkt-cash/indexer-sdk/event"
	logpkg "github.com/pkt-cash/indexer-sdk/log"
)

var log logpkg.Logger = logpkg.Disabled

// UseLogger assigns the subsystem logger used by this package.
func UseLogger(logger logpkg.Logger) {
	log = logger
}

var errType = er.NewErrorType("zmqingest")

// ErrBadConfig flags an invalid Config at Init time.
var ErrBadConfig = errType.CodeWithDetail("ErrBadConfig", "invalid zmq ingest configuration")

const (
	topicRawTx   = "rawtx"
	topicSeq     = "sequence"
	seqTagAdded  = 'A'
	seqTagRemove = 'R'
	seqTagConn   = 'C'
	seqTagDiscon = 'D'
)

// Sink is the single method the processor exposes that this component
// needs, narrowed to an interface so tests can supply a fake.
type Sink interface {
	Push(evt event.IndexerEvent)
}

// Config carries the mq.zmq_url/mq.zmq_topic options plus the
// reconnect backoff ceiling.
type Config struct {
	URL string
	// Topics controls which of rawtx/sequence are subscribed; rawtx is
	// always implicitly included since the core only *requires* it.
	Topics []string

	PollInterval    time.Duration
	PingInterval    time.Duration
	BackoffStart    time.Duration
	BackoffCeiling  time.Duration
}

func (c *Config) setDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = 20 * time.Millisecond
	}
	if c.PingInterval == 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.BackoffStart == 0 {
		c.BackoffStart = 500 * time.Millisecond
	}
	if c.BackoffCeiling == 0 {
		c.BackoffCeiling = 30 * time.Second
	}
	hasRawTx := false
	for _, t := range c.Topics {
		if t == topicRawTx {
			hasRawTx = true
		}
	}
	if !hasRawTx {
		c.Topics = append([]string{topicRawTx}, c.Topics...)
	}
}

// Ingest is the component.Lifecycle driving the ZMQ subscription.
type Ingest struct {
	cfg  Config
	sink Sink
	seq  uint64
}

// New constructs an Ingest publishing decoded notifications to sink.
func New(sink Sink, cfg Config) *Ingest {
	return &Ingest{cfg: cfg, sink: sink}
}

// Name identifies this component in logs.
func (i *Ingest) Name() string { return "zmqingest" }

// Init validates configuration.
func (i *Ingest) Init() er.R {
	if i.sink == nil || i.cfg.URL == "" {
		return ErrBadConfig.Default()
	}
	i.cfg.setDefaults()
	return nil
}

// BeforeStart has no startup work; the ZMQ connection is established
// lazily inside Run's reconnect loop so a transient node outage at
// process start doesn't fail the whole SDK.
func (i *Ingest) BeforeStart() er.R { return nil }

// Run connects to the publisher and feeds notifications into the sink
// until shutdown is closed. Connection loss triggers a reconnect with
// exponential backoff capped at cfg.BackoffCeiling.
func (i *Ingest) Run(shutdown <-chan struct{}) {
	backoff := i.cfg.BackoffStart
	for {
		select {
		case <-shutdown:
			return
		default:
		}

		conn, err := gozmq.Subscribe(i.cfg.URL, i.cfg.Topics, i.cfg.PollInterval)
		if err != nil {
			log.Warnf("zmqingest: connect to %s failed, retrying in %v: %v", i.cfg.URL, backoff, err)
			if !sleepOrShutdown(backoff, shutdown) {
				return
			}
			backoff = nextBackoff(backoff, i.cfg.BackoffCeiling)
			continue
		}
		log.Infof("zmqingest: subscribed to %s at %s", i.cfg.Topics, i.cfg.URL)
		backoff = i.cfg.BackoffStart

		if !i.readLoop(conn, shutdown) {
			conn.Close()
			return
		}
		conn.Close()
	}
}

// readLoop pumps notifications from conn until it errors (connection
// lost) or shutdown fires. Returns false if the caller should stop
// entirely (shutdown), true if it should reconnect.
func (i *Ingest) readLoop(conn *gozmq.Conn, shutdown <-chan struct{}) bool {
	for {
		select {
		case <-shutdown:
			return false
		default:
		}

		msg, err := conn.Receive()
		if err != nil {
			log.Warnf("zmqingest: connection lost: %v", err)
			return true
		}
		i.handleMessage(msg)
	}
}

func (i *Ingest) handleMessage(msg [][]byte) {
	if len(msg) < 2 {
		log.Warnf("zmqingest: malformed notification with %d part(s), skipping", len(msg))
		return
	}
	topic := string(msg[0])
	payload := msg[1]

	switch topic {
	case topicRawTx:
		i.seq++
		i.sink.Push(event.NewTxComing(payload, i.seq))

	case topicSeq:
		// sequence payload: 32-byte tx_id plus a 1-byte event tag.
		if len(payload) != 33 {
			log.Warnf("zmqingest: malformed sequence payload of %d byte(s), skipping", len(payload))
			return
		}
		var txId event.TransactionId
		copy(txId[:], payload[:32])
		switch payload[32] {
		case seqTagConn:
			i.sink.Push(event.TxConfirmedEvent(txId))
		case seqTagDiscon, seqTagRemove:
			i.sink.Push(event.TxRemovedEvent(txId))
		case seqTagAdded:
			// Already covered by rawtx; sequence's 'A' tag carries no
			// additional information the core needs.
		default:
			log.Warnf("zmqingest: unknown sequence event tag %q, skipping", payload[32])
		}

	default:
		log.Warnf("zmqingest: unexpected topic %q, skipping", topic)
	}
}

func sleepOrShutdown(d time.Duration, shutdown <-chan struct{}) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-shutdown:
		return false
	}
}

func nextBackoff(cur, ceiling time.Duration) time.Duration {
	next := cur * 2
	if next > ceiling {
		return ceiling
	}
	return next
}

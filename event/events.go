package event

// IndexerEventKind discriminates the IndexerEvent union: a single
// tagged struct with one populated payload field per Kind. Events
// never leave the process, so no wire codec exists for them.
type IndexerEventKind uint8

const (
	EventNewTxComing IndexerEventKind = iota
	EventTxFromRestore
	EventUpdateDelta
	EventTxConfirmed
	EventTxRemoved
	EventReportHeight
	EventReportReorg
	EventGetBalance
)

func (k IndexerEventKind) String() string {
	switch k {
	case EventNewTxComing:
		return "NewTxComing"
	case EventTxFromRestore:
		return "TxFromRestore"
	case EventUpdateDelta:
		return "UpdateDelta"
	case EventTxConfirmed:
		return "TxConfirmed"
	case EventTxRemoved:
		return "TxRemoved"
	case EventReportHeight:
		return "ReportHeight"
	case EventReportReorg:
		return "ReportReorg"
	case EventGetBalance:
		return "GetBalance"
	default:
		return "Unknown"
	}
}

// BalanceReply is the one-shot reply channel carried inside a
// GetBalance event; the processor answers it and closes it exactly
// once.
type BalanceReply chan BalanceResult

// BalanceResult is what comes back over a BalanceReply.
type BalanceResult struct {
	Amount BalanceAmount
	Err    error
}

// IndexerEvent is the single inbound event type consumed by the
// processor.
type IndexerEvent struct {
	Kind IndexerEventKind

	// EventNewTxComing
	RawTx []byte
	Seq   uint64

	// EventTxFromRestore, EventTxConfirmed, EventTxRemoved
	TxId TransactionId

	// EventUpdateDelta
	Delta *TransactionDelta

	// EventReportHeight
	Height uint32

	// EventReportReorg
	ReorgTxIds []TransactionId

	// EventGetBalance
	Address Address
	Token   Token
	Reply   BalanceReply
}

// NewTxComing builds an EventNewTxComing IndexerEvent.
func NewTxComing(raw []byte, seq uint64) IndexerEvent {
	return IndexerEvent{Kind: EventNewTxComing, RawTx: raw, Seq: seq}
}

// TxFromRestore builds an EventTxFromRestore IndexerEvent.
func TxFromRestore(txId TransactionId) IndexerEvent {
	return IndexerEvent{Kind: EventTxFromRestore, TxId: txId}
}

// UpdateDeltaEvent builds an EventUpdateDelta IndexerEvent.
func UpdateDeltaEvent(delta *TransactionDelta) IndexerEvent {
	return IndexerEvent{Kind: EventUpdateDelta, Delta: delta}
}

// TxConfirmedEvent builds an EventTxConfirmed IndexerEvent.
func TxConfirmedEvent(txId TransactionId) IndexerEvent {
	return IndexerEvent{Kind: EventTxConfirmed, TxId: txId}
}

// TxRemovedEvent builds an EventTxRemoved IndexerEvent.
func TxRemovedEvent(txId TransactionId) IndexerEvent {
	return IndexerEvent{Kind: EventTxRemoved, TxId: txId}
}

// ReportHeightEvent builds an EventReportHeight IndexerEvent.
func ReportHeightEvent(h uint32) IndexerEvent {
	return IndexerEvent{Kind: EventReportHeight, Height: h}
}

// ReportReorgEvent builds an EventReportReorg IndexerEvent.
func ReportReorgEvent(txIds []TransactionId) IndexerEvent {
	return IndexerEvent{Kind: EventReportReorg, ReorgTxIds: txIds}
}

// GetBalanceEvent builds an EventGetBalance IndexerEvent, allocating
// its own one-shot reply channel.
func GetBalanceEvent(addr Address, token Token) (IndexerEvent, BalanceReply) {
	reply := make(BalanceReply, 1)
	return IndexerEvent{Kind: EventGetBalance, Address: addr, Token: token, Reply: reply}, reply
}

// ClientEventKind discriminates the ClientEvent union (core -> app).
type ClientEventKind uint8

const (
	ClientEventTransaction ClientEventKind = iota
	ClientEventTxDroped
	ClientEventTxConfirmed
	ClientEventGetHeight
)

func (k ClientEventKind) String() string {
	switch k {
	case ClientEventTransaction:
		return "Transaction"
	case ClientEventTxDroped:
		return "TxDroped"
	case ClientEventTxConfirmed:
		return "TxConfirmed"
	case ClientEventGetHeight:
		return "GetHeight"
	default:
		return "Unknown"
	}
}

// ClientEvent is the single event type delivered to the embedding
// application over the notifier's rx() channel.
type ClientEvent struct {
	Kind ClientEventKind
	Tx   Transaction   // ClientEventTransaction
	TxId TransactionId // ClientEventTxDroped, ClientEventTxConfirmed
}

func TransactionEvent(tx Transaction) ClientEvent {
	return ClientEvent{Kind: ClientEventTransaction, Tx: tx}
}

func TxDropedEvent(txId TransactionId) ClientEvent {
	return ClientEvent{Kind: ClientEventTxDroped, TxId: txId}
}

func TxConfirmedClientEvent(txId TransactionId) ClientEvent {
	return ClientEvent{Kind: ClientEventTxConfirmed, TxId: txId}
}

func GetHeightEvent() ClientEvent {
	return ClientEvent{Kind: ClientEventGetHeight}
}

// Package event defines the value types shared across the ingest
// pipeline, the delta ledger and the client bridge: transaction
// identifiers, opaque address/token/amount values, delta records and
// the two event unions (core-bound IndexerEvent, client-bound
// ClientEvent). None of these types interpret their payloads:
// addresses and tokens are opaque bytes, and amounts are
// summed/negated but never inspected.
package event

import (
	"encoding/hex"
	"math/big"
)

// TransactionId is the 32-byte hash identifying a Bitcoin transaction.
// Equality is byte-equality; no ordering is defined.
type TransactionId [32]byte

func (t TransactionId) String() string {
	return hex.EncodeToString(t[:])
}

// IsZero reports whether t is the zero value.
func (t TransactionId) IsZero() bool {
	return t == TransactionId{}
}

// Transaction is the consensus-serialized transaction bytes plus its
// derived identifier. The core never interprets Raw beyond decoding it
// once to obtain Id.
type Transaction struct {
	Id  TransactionId
	Raw []byte
}

// Address is an opaque, application-defined address encoding.
type Address []byte

// Token is an opaque, application-defined token discriminator.
type Token []byte

// BalanceAmount is a signed arbitrary-precision scalar. The core only
// ever sums and negates amounts; it never interprets their magnitude.
type BalanceAmount struct {
	*big.Int
}

// NewBalanceAmount wraps an int64 balance delta.
func NewBalanceAmount(v int64) BalanceAmount {
	return BalanceAmount{big.NewInt(v)}
}

// Add returns a new BalanceAmount equal to a+b, never mutating a or b.
func (a BalanceAmount) Add(b BalanceAmount) BalanceAmount {
	r := new(big.Int)
	r.Add(a.bigOrZero(), b.bigOrZero())
	return BalanceAmount{r}
}

// Neg returns -a.
func (a BalanceAmount) Neg() BalanceAmount {
	r := new(big.Int)
	r.Neg(a.bigOrZero())
	return BalanceAmount{r}
}

func (a BalanceAmount) bigOrZero() *big.Int {
	if a.Int == nil {
		return big.NewInt(0)
	}
	return a.Int
}

// Bytes returns the two's-complement-free signed decimal encoding used
// by the ledger's serialization format.
func (a BalanceAmount) Bytes() []byte {
	return []byte(a.bigOrZero().String())
}

// ParseBalanceAmount is the inverse of Bytes.
func ParseBalanceAmount(b []byte) (BalanceAmount, bool) {
	v, ok := new(big.Int).SetString(string(b), 10)
	if !ok {
		return BalanceAmount{}, false
	}
	return BalanceAmount{v}, true
}

// TokenAmount is one (token, amount) entry within a TransactionDelta.
// The same (Address, Token) pair may appear multiple times across the
// delta; entries are summed when applied to the ledger.
type TokenAmount struct {
	Token  Token
	Amount BalanceAmount
}

// TransactionDelta is the application's verdict on a transaction: a
// map from address to the list of token amount changes it experienced.
// Go cannot key a map on []byte, so the map key is the address's raw
// byte string; event.Address(key) recovers the original Address value.
type TransactionDelta struct {
	TxId   TransactionId
	Deltas map[string][]TokenAmount
}

// NewTransactionDelta creates an empty delta for txId.
func NewTransactionDelta(txId TransactionId) *TransactionDelta {
	return &TransactionDelta{TxId: txId, Deltas: make(map[string][]TokenAmount)}
}

// Add records that address gained amount of token within this delta.
// Multiple calls for the same (address, token) accumulate as separate
// list entries; summation happens when the ledger applies the delta.
func (d *TransactionDelta) Add(address Address, token Token, amount BalanceAmount) {
	key := string(address)
	d.Deltas[key] = append(d.Deltas[key], TokenAmount{Token: token, Amount: amount})
}

// DeltaStatus is the lifecycle state of a recorded delta.
type DeltaStatus uint8

const (
	// StatusActive: delta recorded, contributes to balances, may still
	// transition to Confirmed or InActive.
	StatusActive DeltaStatus = iota
	// StatusConfirmed: a block included this transaction. Terminal for
	// AddTransactionDelta; a reorg can still move it to InActive.
	StatusConfirmed
	// StatusInActive: the transaction was dropped or reorg'd out. Terminal.
	StatusInActive
)

func (s DeltaStatus) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusConfirmed:
		return "confirmed"
	case StatusInActive:
		return "inactive"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether s is Confirmed or InActive.
func (s DeltaStatus) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusInActive
}

// SeenRecord is the per-tx_id bookkeeping entry used to deduplicate
// delivery across channels and across restarts.
type SeenRecord struct {
	TxId        TransactionId
	FirstSeenTs int64
	Executed    bool
}

// SeenState is the result of ledger.SeenAndStoreTxs: either the
// transaction is Fresh (never seen before, now recorded) or it was
// already Seen, carrying whether it had been executed.
type SeenState struct {
	Fresh    bool
	Executed bool
}

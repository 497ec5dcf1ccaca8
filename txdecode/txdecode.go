// Package txdecode turns consensus-serialized transaction bytes into a
// TransactionId, the only thing the core needs from a transaction
// payload — the payload stays opaque beyond extracting the identifier
// during decode. Parsing is delegated to github.com/btcsuite/btcd's
// wire and chainhash packages rather than hand-rolling a wire codec.
package txdecode

import (
	"bytes"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/pkt-cash/indexer-sdk/er"
	"github.com/pkt-cash/indexer-sdk/event"
)

var errType = er.NewErrorType("txdecode")

// ErrMalformed is a decode failure: callers treat this as a
// log-and-skip condition, never a crash.
var ErrMalformed = errType.CodeWithDetail("ErrMalformed", "malformed transaction bytes")

// Decode parses raw consensus-serialized transaction bytes and returns
// the resulting Transaction (identifier plus the original bytes,
// unmodified).
func Decode(raw []byte) (event.Transaction, er.R) {
	var msgTx wire.MsgTx
	if err := msgTx.Deserialize(bytes.NewReader(raw)); err != nil {
		return event.Transaction{}, ErrMalformed.New(err.Error(), nil)
	}
	return event.Transaction{Id: fromHash(msgTx.TxHash()), Raw: raw}, nil
}

func fromHash(h chainhash.Hash) event.TransactionId {
	var id event.TransactionId
	copy(id[:], h[:])
	return id
}

// FromRPCHex parses a big-endian hex txid string as returned by
// Bitcoin RPC (getrawmempool, etc.) into a TransactionId using the
// same byte order Decode derives from TxHash, so ids computed either
// way compare equal.
func FromRPCHex(s string) (event.TransactionId, er.R) {
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return event.TransactionId{}, er.E(err)
	}
	return fromHash(*h), nil
}

// ToRPCHex is the inverse of FromRPCHex, used when asking the node for
// a transaction by id via getrawtransaction.
func ToRPCHex(id event.TransactionId) string {
	h := chainhash.Hash(id)
	return h.String()
}

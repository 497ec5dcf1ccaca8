// Package ledger implements the durable, idempotent store of per-tx
// balance deltas and seen-transaction bookkeeping. Records are
// versioned, length-prefixed frames kept in dedicated columns of a
// shared kv.Engine.
package ledger

import (
	"encoding/binary"

	"github.com/pkt-cash/indexer-sdk/er"
	"github.com/pkt-cash/indexer-sdk/event"
)

// Column tags partition the keyspace.
const (
	colSeen  byte = 's'
	colDelta byte = 'd'
	colBal   byte = 'b'
	colMeta  byte = 'h'
)

const recordVersion = 1

var codecErrType = er.NewErrorType("ledger.codec")

// ErrUnknownVersion is fatal: a value with an unrecognized leading
// version byte indicates corrupted durable state requiring operator
// intervention.
var ErrUnknownVersion = codecErrType.CodeWithDetail("ErrUnknownVersion", "ledger record has an unrecognized format version")

var ErrTruncated = codecErrType.CodeWithDetail("ErrTruncated", "ledger record is truncated")

func seenKey(txId event.TransactionId) []byte {
	k := make([]byte, 1+len(txId))
	k[0] = colSeen
	copy(k[1:], txId[:])
	return k
}

func deltaKey(txId event.TransactionId) []byte {
	k := make([]byte, 1+len(txId))
	k[0] = colDelta
	copy(k[1:], txId[:])
	return k
}

func balanceKey(address event.Address, token event.Token) []byte {
	k := make([]byte, 0, 1+4+len(address)+4+len(token))
	k = append(k, colBal)
	k = appendLenPrefixed(k, address)
	k = appendLenPrefixed(k, token)
	return k
}

func appendLenPrefixed(dst, b []byte) []byte {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(b)))
	dst = append(dst, l[:]...)
	dst = append(dst, b...)
	return dst
}

func readLenPrefixed(b []byte) (value, rest []byte, ok bool) {
	if len(b) < 4 {
		return nil, nil, false
	}
	n := binary.BigEndian.Uint32(b[:4])
	b = b[4:]
	if uint32(len(b)) < n {
		return nil, nil, false
	}
	return b[:n], b[n:], true
}

// encodeSeenRecord serializes a SeenRecord as version byte + ts (8
// bytes, big-endian) + executed (1 byte).
func encodeSeenRecord(r event.SeenRecord) []byte {
	out := make([]byte, 0, 1+8+1)
	out = append(out, recordVersion)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(r.FirstSeenTs))
	out = append(out, ts[:]...)
	if r.Executed {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	return out
}

func decodeSeenRecord(txId event.TransactionId, b []byte) (event.SeenRecord, er.R) {
	if len(b) < 1 {
		return event.SeenRecord{}, ErrTruncated.Default()
	}
	if b[0] != recordVersion {
		return event.SeenRecord{}, ErrUnknownVersion.Default()
	}
	b = b[1:]
	if len(b) < 9 {
		return event.SeenRecord{}, ErrTruncated.Default()
	}
	ts := int64(binary.BigEndian.Uint64(b[:8]))
	executed := b[8] != 0
	return event.SeenRecord{TxId: txId, FirstSeenTs: ts, Executed: executed}, nil
}

// encodeDeltaRecord serializes a delta's status plus its full
// address->token->amount map, so a reversal never needs to consult any
// external source.
func encodeDeltaRecord(status event.DeltaStatus, delta *event.TransactionDelta) []byte {
	out := make([]byte, 0, 64)
	out = append(out, recordVersion, byte(status))
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(delta.Deltas)))
	out = append(out, n[:]...)
	for addr, amounts := range delta.Deltas {
		out = appendLenPrefixed(out, []byte(addr))
		var m [4]byte
		binary.BigEndian.PutUint32(m[:], uint32(len(amounts)))
		out = append(out, m[:]...)
		for _, ta := range amounts {
			out = appendLenPrefixed(out, ta.Token)
			out = appendLenPrefixed(out, ta.Amount.Bytes())
		}
	}
	return out
}

type deltaRecord struct {
	status event.DeltaStatus
	delta  *event.TransactionDelta
}

func decodeDeltaRecord(txId event.TransactionId, b []byte) (*deltaRecord, er.R) {
	if len(b) < 2 {
		return nil, ErrTruncated.Default()
	}
	if b[0] != recordVersion {
		return nil, ErrUnknownVersion.Default()
	}
	status := event.DeltaStatus(b[1])
	b = b[2:]
	if len(b) < 4 {
		return nil, ErrTruncated.Default()
	}
	nAddrs := binary.BigEndian.Uint32(b[:4])
	b = b[4:]

	delta := event.NewTransactionDelta(txId)
	for i := uint32(0); i < nAddrs; i++ {
		var addr []byte
		var ok bool
		addr, b, ok = readLenPrefixed(b)
		if !ok {
			return nil, ErrTruncated.Default()
		}
		if len(b) < 4 {
			return nil, ErrTruncated.Default()
		}
		nAmounts := binary.BigEndian.Uint32(b[:4])
		b = b[4:]
		amounts := make([]event.TokenAmount, 0, nAmounts)
		for j := uint32(0); j < nAmounts; j++ {
			var tok, amtBytes []byte
			tok, b, ok = readLenPrefixed(b)
			if !ok {
				return nil, ErrTruncated.Default()
			}
			amtBytes, b, ok = readLenPrefixed(b)
			if !ok {
				return nil, ErrTruncated.Default()
			}
			amt, ok := event.ParseBalanceAmount(amtBytes)
			if !ok {
				return nil, ErrTruncated.Default()
			}
			amounts = append(amounts, event.TokenAmount{Token: tok, Amount: amt})
		}
		delta.Deltas[string(addr)] = amounts
	}
	return &deltaRecord{status: status, delta: delta}, nil
}

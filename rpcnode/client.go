// Package rpcnode is a minimal Bitcoin JSON-RPC client providing the
// two methods the indexer core requires of the node: getrawmempool
// (verbose=true) and getrawtransaction. It speaks the JSON-RPC 1.0
// envelope bitcoind and its descendants expect, over HTTP with basic
// auth, as a plain synchronous client: only two blocking RPCs are
// needed here, so no async/notification machinery.
package rpcnode

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"net/http"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/pkt-cash/indexer-sdk/er"
	"github.com/pkt-cash/indexer-sdk/event"
	"github.com/pkt-cash/indexer-sdk/txdecode"
)

var errType = er.NewErrorType("rpcnode")

var ErrTransport = errType.Code("ErrTransport")
var ErrRPC = errType.Code("ErrRPC")
var ErrDecode = errType.Code("ErrDecode")

// Config carries the net.url/username/password options.
type Config struct {
	URL      string
	Username string
	Password string
	Timeout  time.Duration
}

// Client is a synchronous Bitcoin JSON-RPC 1.0 client.
type Client struct {
	cfg    Config
	http   *http.Client
	nextID uint64
}

// New constructs a Client for cfg.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// request mirrors btcjson.Request: a JSON-RPC 1.0 envelope.
type request struct {
	Jsonrpc string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// response mirrors btcjson.Response.
type response struct {
	Result jsoniter.RawMessage `json:"result"`
	Error  *rpcError           `json:"error"`
	ID     uint64              `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *Client) call(ctx context.Context, method string, params []interface{}) (jsoniter.RawMessage, er.R) {
	id := atomic.AddUint64(&c.nextID, 1)
	req := request{Jsonrpc: "1.0", ID: id, Method: method, Params: params}
	body, errr := jsoniter.Marshal(req)
	if errr != nil {
		return nil, er.E(errr)
	}

	httpReq, errr := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if errr != nil {
		return nil, ErrTransport.New(errr.Error(), nil)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.cfg.Username, c.cfg.Password)

	resp, errr := c.http.Do(httpReq)
	if errr != nil {
		return nil, ErrTransport.New(errr.Error(), nil)
	}
	defer resp.Body.Close()

	respBody, errr := ioutil.ReadAll(resp.Body)
	if errr != nil {
		return nil, ErrTransport.New(errr.Error(), nil)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusInternalServerError {
		return nil, ErrTransport.New(fmt.Sprintf("unexpected HTTP status %d", resp.StatusCode), nil)
	}

	var rpcResp response
	if errr := jsoniter.Unmarshal(respBody, &rpcResp); errr != nil {
		return nil, ErrDecode.New(errr.Error(), nil)
	}
	if rpcResp.Error != nil {
		return nil, ErrRPC.New(fmt.Sprintf("%d: %s", rpcResp.Error.Code, rpcResp.Error.Message), nil)
	}
	return rpcResp.Result, nil
}

// MempoolEntry is one entry of a getrawmempool verbose=true response.
type MempoolEntry struct {
	TxId event.TransactionId
	Time int64
}

type rawMempoolVerboseEntry struct {
	Time int64 `json:"time"`
}

// GetRawMempoolVerbose returns every transaction currently in the
// node's mempool along with its first-seen time.
func (c *Client) GetRawMempoolVerbose(ctx context.Context) ([]MempoolEntry, er.R) {
	raw, err := c.call(ctx, "getrawmempool", []interface{}{true})
	if err != nil {
		return nil, err
	}
	var m map[string]rawMempoolVerboseEntry
	if errr := jsoniter.Unmarshal(raw, &m); errr != nil {
		return nil, ErrDecode.New(errr.Error(), nil)
	}
	out := make([]MempoolEntry, 0, len(m))
	for txidHex, v := range m {
		txId, err := txdecode.FromRPCHex(txidHex)
		if err != nil {
			return nil, err
		}
		out = append(out, MempoolEntry{TxId: txId, Time: v.Time})
	}
	return out, nil
}

// GetRawTransaction fetches the consensus-serialized bytes of txId via
// the node's getrawtransaction RPC (verbose=false).
func (c *Client) GetRawTransaction(ctx context.Context, txId event.TransactionId) ([]byte, er.R) {
	raw, err := c.call(ctx, "getrawtransaction", []interface{}{txdecode.ToRPCHex(txId), false})
	if err != nil {
		return nil, err
	}
	var hexStr string
	if errr := jsoniter.Unmarshal(raw, &hexStr); errr != nil {
		return nil, ErrDecode.New(errr.Error(), nil)
	}
	txBytes, errr := hex.DecodeString(hexStr)
	if errr != nil {
		return nil, ErrDecode.New(errr.Error(), nil)
	}
	return txBytes, nil
}

package paymentsvc

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/saudamart/sauda/core"
	"github.com/saudamart/sauda/core/payment"
)

type (
	ethClient struct {
		client *resty.Client
		url    string
		nextID int64
	}

	rpcRequest struct {
		JSONRPC string        `json:"jsonrpc"`
		ID      int64         `json:"id"`
		Method  string        `json:"method"`
		Params  []interface{} `json:"params"`
	}

	rpcError struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}

	rpcResponse struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}

	rpcLog struct {
		Address string   `json:"address"`
		Topics  []string `json:"topics"`
		Data    string   `json:"data"`
	}

	rpcReceipt struct {
		Status      string   `json:"status"`
		BlockNumber string   `json:"blockNumber"`
		Logs        []rpcLog `json:"logs"`
	}
)

var _ payment.ChainClient = (*ethClient)(nil)

// NewChainClient returns nil when no RPC endpoint is configured.
func NewChainClient(conf core.CryptoConfig) payment.ChainClient {
	if conf.RPCURL == "" {
		return nil
	}
	return &ethClient{
		client: resty.New().
			SetTimeout(10 * time.Second).
			SetRetryCount(2).
			SetHeader("Content-Type", "application/json"),
		url: conf.RPCURL,
	}
}

func (c *ethClient) call(ctx context.Context, method string, result interface{}, params ...interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	var res rpcResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(rpcRequest{JSONRPC: "2.0", ID: atomic.AddInt64(&c.nextID, 1), Method: method, Params: params}).
		SetResult(&res).
		Post(c.url)
	if err != nil {
		return errors.Wrapf(err, "rpc %s", method)
	}
	if resp.IsError() {
		return errors.Errorf("rpc %s: %s", method, resp.Status())
	}
	if res.Error != nil {
		return errors.Errorf("rpc %s: %d %s", method, res.Error.Code, res.Error.Message)
	}
	if len(res.Result) == 0 || string(res.Result) == "null" {
		return payment.ErrTxNotFound
	}
	return errors.Wrapf(json.Unmarshal(res.Result, result), "rpc %s: decoding result", method)
}

func parseQuantity(hex string) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(hex), "0x"), 16, 64)
	return v, errors.Wrapf(err, "parsing quantity %q", hex)
}

func (c *ethClient) TransactionReceipt(ctx context.Context, txHash string) (payment.Receipt, error) {
	var r rpcReceipt
	if err := c.call(ctx, "eth_getTransactionReceipt", &r, txHash); err != nil {
		return payment.Receipt{}, err
	}
	if r.BlockNumber == "" {
		return payment.Receipt{}, payment.ErrTxNotFound
	}

	status, err := parseQuantity(r.Status)
	if err != nil {
		return payment.Receipt{}, err
	}
	block, err := parseQuantity(r.BlockNumber)
	if err != nil {
		return payment.Receipt{}, err
	}
	receipt := payment.Receipt{Status: status, BlockNumber: block, Logs: make([]payment.Log, 0, len(r.Logs))}
	for _, l := range r.Logs {
		receipt.Logs = append(receipt.Logs, payment.Log{Address: l.Address, Topics: l.Topics, Data: l.Data})
	}
	return receipt, nil
}

func (c *ethClient) BlockNumber(ctx context.Context) (uint64, error) {
	var hex string
	if err := c.call(ctx, "eth_blockNumber", &hex); err != nil {
		return 0, err
	}
	return parseQuantity(hex)
}

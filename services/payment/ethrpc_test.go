package paymentsvc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saudamart/sauda/core"
	"github.com/saudamart/sauda/core/payment"
)

const (
	minedTx   = "0x1111111111111111111111111111111111111111111111111111111111111111"
	pendingTx = "0x2222222222222222222222222222222222222222222222222222222222222222"
)

func newRPCServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "2.0", req.JSONRPC)

		w.Header().Set("Content-Type", "application/json")
		switch req.Method {
		case "eth_blockNumber":
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x10"}`))
		case "eth_getTransactionReceipt":
			switch req.Params[0] {
			case minedTx:
				_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{
					"status":"0x1","blockNumber":"0xe",
					"logs":[{"address":"0xToken","topics":["0xddf2","0xfrom","0xto"],"data":"0x2710"}]}}`))
			case pendingTx:
				_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":null}`))
			default:
				_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"invalid argument"}}`))
			}
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
}

func TestChainClient(t *testing.T) {
	srv := newRPCServer(t)
	defer srv.Close()

	assert.Nil(t, NewChainClient(core.CryptoConfig{}))

	c := NewChainClient(core.CryptoConfig{RPCURL: srv.URL})
	ctx := context.Background()

	head, err := c.BlockNumber(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 16, head)

	receipt, err := c.TransactionReceipt(ctx, minedTx)
	require.NoError(t, err)
	assert.Equal(t, payment.Receipt{
		Status:      1,
		BlockNumber: 14,
		Logs:        []payment.Log{{Address: "0xToken", Topics: []string{"0xddf2", "0xfrom", "0xto"}, Data: "0x2710"}},
	}, receipt)

	_, err = c.TransactionReceipt(ctx, pendingTx)
	assert.Equal(t, payment.ErrTxNotFound, err)

	_, err = c.TransactionReceipt(ctx, "0xbad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid argument")
}

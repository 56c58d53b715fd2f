package payment

import (
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/saudamart/sauda/core"
)

func TestTokenUnits(t *testing.T) {
	tests := []struct {
		amount   int64
		decimals int
		want     string
	}{
		{amount: 1250, decimals: 6, want: "12500000"},
		{amount: 1250, decimals: 18, want: "12500000000000000000"},
		{amount: 1250, decimals: 2, want: "1250"},
		{amount: 1250, decimals: 1, want: "125"},
		{amount: 1251, decimals: 1, want: "126"}, // rounded up
		{amount: 1, decimals: 0, want: "1"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d@%d", tt.amount, tt.decimals), func(t *testing.T) {
			assert.Equal(t, tt.want, tokenUnits(tt.amount, tt.decimals).String())
		})
	}
}

func TestSameAddress(t *testing.T) {
	addr := "0x" + strings.Repeat("cd34", 10)
	topic := "0x" + strings.Repeat("0", 24) + strings.Repeat("CD34", 10)

	assert.True(t, sameAddress(topic, addr))
	assert.True(t, sameAddress(topic, strings.ToUpper(addr[2:])))
	assert.False(t, sameAddress(topic, "0x"+strings.Repeat("ab12", 10)))
	assert.False(t, sameAddress("0x1234", addr))
	assert.False(t, sameAddress(topic, "0xcd34"))
}

func TestCheckReceipt(t *testing.T) {
	conf := core.CryptoConfig{
		TokenContract:    "0x" + strings.Repeat("ab12", 10),
		MerchantWallet:   "0x" + strings.Repeat("cd34", 10),
		TokenDecimals:    6,
		MinConfirmations: 3,
	}
	topicOf := func(addr string) string { return "0x" + strings.Repeat("0", 24) + addr[2:] }
	transfer := func(contract, to string, units *big.Int) Log {
		return Log{
			Address: contract,
			Topics:  []string{transferTopic, topicOf("0x" + strings.Repeat("11", 20)), topicOf(to)},
			Data:    fmt.Sprintf("0x%064x", units),
		}
	}
	owed := tokenUnits(1400, conf.TokenDecimals)
	half := new(big.Int).Div(owed, big.NewInt(2))
	less := new(big.Int).Sub(owed, big.NewInt(1))
	more := new(big.Int).Add(owed, big.NewInt(1))

	tests := []struct {
		name    string
		receipt Receipt
		head    uint64
		wantErr string
	}{
		{
			name:    "exact amount",
			receipt: Receipt{Status: 1, BlockNumber: 100, Logs: []Log{transfer(conf.TokenContract, conf.MerchantWallet, owed)}},
			head:    102,
		},
		{
			name:    "overpaid",
			receipt: Receipt{Status: 1, BlockNumber: 100, Logs: []Log{transfer(conf.TokenContract, conf.MerchantWallet, more)}},
			head:    200,
		},
		{
			name: "split transfers",
			receipt: Receipt{Status: 1, BlockNumber: 100, Logs: []Log{
				transfer(conf.TokenContract, conf.MerchantWallet, half),
				transfer(conf.TokenContract, conf.MerchantWallet, half),
			}},
			head: 102,
		},
		{
			name:    "failed",
			receipt: Receipt{Status: 0, BlockNumber: 100, Logs: []Log{transfer(conf.TokenContract, conf.MerchantWallet, owed)}},
			head:    200,
			wantErr: "transaction failed",
		},
		{
			name:    "not enough confirmations",
			receipt: Receipt{Status: 1, BlockNumber: 100, Logs: []Log{transfer(conf.TokenContract, conf.MerchantWallet, owed)}},
			head:    101,
			wantErr: "transaction does not have enough confirmations yet",
		},
		{
			name:    "head behind the receipt",
			receipt: Receipt{Status: 1, BlockNumber: 100, Logs: []Log{transfer(conf.TokenContract, conf.MerchantWallet, owed)}},
			head:    99,
			wantErr: "transaction does not have enough confirmations yet",
		},
		{
			name:    "other token",
			receipt: Receipt{Status: 1, BlockNumber: 100, Logs: []Log{transfer("0x"+strings.Repeat("99", 20), conf.MerchantWallet, owed)}},
			head:    200,
			wantErr: "transaction does not transfer the token to the shop wallet",
		},
		{
			name: "other event",
			receipt: Receipt{Status: 1, BlockNumber: 100, Logs: []Log{{
				Address: conf.TokenContract,
				Topics:  []string{"0x" + strings.Repeat("0", 64), topicOf(conf.MerchantWallet), topicOf(conf.MerchantWallet)},
				Data:    fmt.Sprintf("0x%064x", owed),
			}}},
			head:    200,
			wantErr: "transaction does not transfer the token to the shop wallet",
		},
		{
			name:    "underpaid",
			receipt: Receipt{Status: 1, BlockNumber: 100, Logs: []Log{transfer(conf.TokenContract, conf.MerchantWallet, less)}},
			head:    200,
			wantErr: "transferred amount is lower than the order total",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkReceipt(tt.receipt, tt.head, conf, 1400)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.IsType(t, &TransferError{}, err)
				assert.Equal(t, tt.wantErr, err.Error())
			}
		})
	}
}

package payment

import (
	"context"
	"math/big"
	"regexp"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/saudamart/sauda/core"
)

// transferTopic is keccak256("Transfer(address,address,uint256)").
const transferTopic = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

var (
	txHashTag   = "txhash"
	txHashText  = "invalid transaction hash"
	txHashRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

	ErrTxNotFound = errors.New("transaction not found")
)

// InitValidators registers the payment validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(txHashTag, func(fl validator.FieldLevel) bool {
		return txHashRegex.MatchString(fl.Field().String())
	})
	core.RegisterCustomTranslation(validate, translator, txHashTag, txHashText)
}

type (
	// Log is an EVM event log, hex encoded.
	Log struct {
		Address string
		Topics  []string
		Data    string
	}

	// Receipt is the receipt of a mined transaction.
	Receipt struct {
		Status      uint64
		BlockNumber uint64
		Logs        []Log
	}

	// ChainClient reads the chain the stablecoin lives on.
	ChainClient interface {
		// TransactionReceipt fails with ErrTxNotFound for unknown or pending transactions.
		TransactionReceipt(ctx context.Context, txHash string) (Receipt, error)
		BlockNumber(ctx context.Context) (uint64, error)
	}

	// TransferError explains why a transaction does not pay an order.
	TransferError struct {
		msg string
	}
)

func (e *TransferError) Error() string {
	return e.msg
}

func transferErr(msg string) error {
	return &TransferError{msg: msg}
}

// verifyTransfer checks that txHash succeeded, has enough confirmations and transfers
// at least amount (minor units) of the configured token to the merchant wallet.
func (svc *Service) verifyTransfer(ctx context.Context, txHash string, amount int64) error {
	receipt, err := svc.chain.TransactionReceipt(ctx, txHash)
	if err != nil {
		if errors.Cause(err) == ErrTxNotFound {
			return transferErr("transaction not found or not mined yet")
		}
		return errors.Wrap(err, "getting transaction receipt")
	}
	head, err := svc.chain.BlockNumber(ctx)
	if err != nil {
		return errors.Wrap(err, "getting block number")
	}
	return checkReceipt(receipt, head, svc.crypto, amount)
}

func checkReceipt(receipt Receipt, head uint64, conf core.CryptoConfig, amount int64) error {
	if receipt.Status != 1 {
		return transferErr("transaction failed")
	}
	var confirmations int64
	if head >= receipt.BlockNumber {
		confirmations = int64(head-receipt.BlockNumber) + 1
	}
	if confirmations < conf.MinConfirmations {
		return transferErr("transaction does not have enough confirmations yet")
	}

	want := tokenUnits(amount, conf.TokenDecimals)
	paid := new(big.Int)
	for _, l := range receipt.Logs {
		if !strings.EqualFold(l.Address, conf.TokenContract) || len(l.Topics) < 3 {
			continue
		}
		if !strings.EqualFold(l.Topics[0], transferTopic) || !sameAddress(l.Topics[2], conf.MerchantWallet) {
			continue
		}
		value, ok := new(big.Int).SetString(strings.TrimPrefix(strings.ToLower(l.Data), "0x"), 16)
		if !ok {
			continue
		}
		paid.Add(paid, value)
	}

	if paid.Sign() == 0 {
		return transferErr("transaction does not transfer the token to the shop wallet")
	}
	if paid.Cmp(want) < 0 {
		return transferErr("transferred amount is lower than the order total")
	}
	return nil
}

// tokenUnits converts minor units (cents) into the smallest token unit, rounding up.
func tokenUnits(amount int64, decimals int) *big.Int {
	v := big.NewInt(amount)
	if decimals >= 2 {
		return v.Mul(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals-2)), nil))
	}
	div := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(2-decimals)), nil)
	q, m := new(big.Int).QuoRem(v, div, new(big.Int))
	if m.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// sameAddress compares a 32 bytes topic with a 20 bytes address.
func sameAddress(topic, addr string) bool {
	topic = strings.TrimPrefix(strings.ToLower(topic), "0x")
	addr = strings.TrimPrefix(strings.ToLower(addr), "0x")
	if len(topic) < 40 || len(addr) != 40 {
		return false
	}
	return topic[len(topic)-40:] == addr
}

package router

import (
	"fmt"
	"math/big"
	"strings"

	"transfersafe/crypto"
)

// NativeToken is the canonical symbol for the ledger's native currency.
const NativeToken = "NATIVE"

// FeeDenominator expresses fee rates in parts per thousand.
const FeeDenominator = 1000

// Invoice is the durable record of a requested payment. The JSON tags match
// the field names of the legacy router ABI (including its historical
// misspelling of "recipient") so existing tooling keeps parsing records.
type Invoice struct {
	ID                  string         `json:"id"`
	Amount              *big.Int       `json:"amount"`
	Fee                 uint32         `json:"fee"`
	Balance             *big.Int       `json:"balance"`
	CreatedDate         int64          `json:"createdDate"`
	Deposited           bool           `json:"deposited"`
	DepositDate         int64          `json:"depositDate"`
	SenderAddress       crypto.Address `json:"senderAddress"`
	ConfirmDate         int64          `json:"confirmDate"`
	Paid                bool           `json:"paid"`
	PaidAmount          *big.Int       `json:"paidAmount"`
	Refunded            bool           `json:"refunded"`
	RefundedAmount      *big.Int       `json:"refundedAmount"`
	RefundDate          int64          `json:"refundDate"`
	RecipientAddress    crypto.Address `json:"receipientAddress"`
	RecipientEmail      string         `json:"receipientEmail"`
	RecipientName       string         `json:"receipientName"`
	Ref                 string         `json:"ref"`
	Instant             bool           `json:"instant"`
	IsNativeToken       bool           `json:"isNativeToken"`
	AvailableTokenTypes []string       `json:"availableTokenTypes"`
	ReleaseLockTimeout  int64          `json:"releaseLockTimeout"`
	ReleaseLockDate     int64          `json:"releaseLockDate"`
	TokenType           string         `json:"tokenType"`
	Exist               bool           `json:"exist"`
}

// Clone returns a deep copy of the invoice so callers can safely mutate the
// copy without affecting the stored instance.
func (inv *Invoice) Clone() *Invoice {
	if inv == nil {
		return nil
	}
	clone := *inv
	clone.Amount = cloneBigInt(inv.Amount)
	clone.Balance = cloneBigInt(inv.Balance)
	clone.PaidAmount = cloneBigInt(inv.PaidAmount)
	clone.RefundedAmount = cloneBigInt(inv.RefundedAmount)
	if inv.AvailableTokenTypes != nil {
		clone.AvailableTokenTypes = append([]string(nil), inv.AvailableTokenTypes...)
	}
	return &clone
}

// Settled reports whether the invoice has reached a terminal state.
func (inv *Invoice) Settled() bool {
	if inv == nil {
		return false
	}
	return inv.Paid || inv.Refunded
}

// NormalizeToken canonicalises a token symbol and rejects currencies the
// engine does not settle. Only the native currency is accepted today; the
// symbol-keyed state layout leaves room for more.
func NormalizeToken(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	switch trimmed {
	case NativeToken:
		return trimmed, nil
	default:
		return "", fmt.Errorf("unsupported settlement token: %s", symbol)
	}
}

// SanitizeInvoice validates a stored or caller-supplied invoice record and
// returns a cloned instance with non-nil amount fields. The original value is
// never mutated.
func SanitizeInvoice(inv *Invoice) (*Invoice, error) {
	if inv == nil {
		return nil, fmt.Errorf("nil invoice")
	}
	if strings.TrimSpace(inv.ID) == "" {
		return nil, fmt.Errorf("invoice id must not be empty")
	}
	clone := inv.Clone()
	if clone.Amount.Sign() < 0 {
		return nil, fmt.Errorf("invoice amount must be non-negative")
	}
	if clone.Balance.Sign() < 0 {
		return nil, fmt.Errorf("invoice balance must be non-negative")
	}
	if clone.Fee > FeeDenominator {
		return nil, fmt.Errorf("invoice fee rate out of range: %d", clone.Fee)
	}
	if clone.ReleaseLockTimeout < 0 {
		return nil, fmt.Errorf("release lock timeout must be non-negative")
	}
	if clone.TokenType != "" {
		normalized, err := NormalizeToken(clone.TokenType)
		if err != nil {
			return nil, err
		}
		clone.TokenType = normalized
	}
	return clone, nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

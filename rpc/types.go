package rpc

import (
	"math/big"

	"transfersafe/native/router"
)

// InvoiceResult is the RPC projection of a stored invoice. Monetary values
// are decimal strings; addresses render in bech32, empty when unset. The
// field names keep the legacy router spelling.
type InvoiceResult struct {
	ID                  string   `json:"id"`
	Amount              string   `json:"amount"`
	Fee                 uint32   `json:"fee"`
	Balance             string   `json:"balance"`
	CreatedDate         int64    `json:"createdDate"`
	Deposited           bool     `json:"deposited"`
	DepositDate         int64    `json:"depositDate"`
	SenderAddress       string   `json:"senderAddress"`
	ConfirmDate         int64    `json:"confirmDate"`
	Paid                bool     `json:"paid"`
	PaidAmount          string   `json:"paidAmount"`
	Refunded            bool     `json:"refunded"`
	RefundedAmount      string   `json:"refundedAmount"`
	RefundDate          int64    `json:"refundDate"`
	RecipientAddress    string   `json:"receipientAddress"`
	RecipientEmail      string   `json:"receipientEmail"`
	RecipientName       string   `json:"receipientName"`
	Ref                 string   `json:"ref"`
	Instant             bool     `json:"instant"`
	IsNativeToken       bool     `json:"isNativeToken"`
	AvailableTokenTypes []string `json:"availableTokenTypes"`
	ReleaseLockTimeout  int64    `json:"releaseLockTimeout"`
	ReleaseLockDate     int64    `json:"releaseLockDate"`
	TokenType           string   `json:"tokenType"`
	Exist               bool     `json:"exist"`
}

func formatInvoice(inv *router.Invoice) *InvoiceResult {
	if inv == nil {
		return nil
	}
	result := &InvoiceResult{
		ID:                  inv.ID,
		Amount:              formatBig(inv.Amount),
		Fee:                 inv.Fee,
		Balance:             formatBig(inv.Balance),
		CreatedDate:         inv.CreatedDate,
		Deposited:           inv.Deposited,
		DepositDate:         inv.DepositDate,
		ConfirmDate:         inv.ConfirmDate,
		Paid:                inv.Paid,
		PaidAmount:          formatBig(inv.PaidAmount),
		Refunded:            inv.Refunded,
		RefundedAmount:      formatBig(inv.RefundedAmount),
		RefundDate:          inv.RefundDate,
		RecipientEmail:      inv.RecipientEmail,
		RecipientName:       inv.RecipientName,
		Ref:                 inv.Ref,
		Instant:             inv.Instant,
		IsNativeToken:       inv.IsNativeToken,
		AvailableTokenTypes: append([]string{}, inv.AvailableTokenTypes...),
		ReleaseLockTimeout:  inv.ReleaseLockTimeout,
		ReleaseLockDate:     inv.ReleaseLockDate,
		TokenType:           inv.TokenType,
		Exist:               inv.Exist,
	}
	if !inv.SenderAddress.IsZero() {
		result.SenderAddress = inv.SenderAddress.String()
	}
	if !inv.RecipientAddress.IsZero() {
		result.RecipientAddress = inv.RecipientAddress.String()
	}
	return result
}

func formatBig(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

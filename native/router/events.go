package router

import (
	"strconv"

	"transfersafe/core/types"
)

const (
	EventTypeInvoiceCreated   = "invoice.created"
	EventTypeInvoiceFunded    = "invoice.funded"
	EventTypeInvoiceConfirmed = "invoice.confirmed"
	EventTypeInvoiceRefunded  = "invoice.refunded"
	EventTypeFeesWithdrawn    = "invoice.fees_withdrawn"
)

// NewCreatedEvent returns the canonical event payload for a newly created
// invoice.
func NewCreatedEvent(inv *Invoice) *types.Event { return newInvoiceEvent(EventTypeInvoiceCreated, inv) }

// NewFundedEvent returns the canonical event payload emitted when an invoice
// receives its deposit.
func NewFundedEvent(inv *Invoice) *types.Event { return newInvoiceEvent(EventTypeInvoiceFunded, inv) }

// NewConfirmedEvent returns the canonical event payload for a settlement of
// escrowed funds to the invoice recipient.
func NewConfirmedEvent(inv *Invoice) *types.Event {
	return newInvoiceEvent(EventTypeInvoiceConfirmed, inv)
}

// NewRefundedEvent returns the canonical event payload for a refund of the
// escrowed balance to the funder.
func NewRefundedEvent(inv *Invoice) *types.Event {
	return newInvoiceEvent(EventTypeInvoiceRefunded, inv)
}

func newInvoiceEvent(eventType string, inv *Invoice) *types.Event {
	attrs := make(map[string]string)
	if inv == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = inv.ID
	attrs["recipient"] = inv.RecipientAddress.String()
	attrs["fee"] = strconv.FormatUint(uint64(inv.Fee), 10)
	attrs["createdDate"] = strconv.FormatInt(inv.CreatedDate, 10)
	if inv.Amount != nil {
		attrs["amount"] = inv.Amount.String()
	}
	if inv.Deposited {
		attrs["sender"] = inv.SenderAddress.String()
		attrs["depositDate"] = strconv.FormatInt(inv.DepositDate, 10)
		attrs["token"] = inv.TokenType
	}
	if inv.Paid && inv.PaidAmount != nil {
		attrs["paidAmount"] = inv.PaidAmount.String()
	}
	if inv.Refunded && inv.RefundedAmount != nil {
		attrs["refundedAmount"] = inv.RefundedAmount.String()
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

package router

import "errors"

// Sentinel failures surfaced by the settlement engine. The message text is
// stable; callers and external tooling match on it.
var (
	ErrInvoiceNotFound     = errors.New("router: invoice not found")
	ErrDuplicateInvoice    = errors.New("router: duplicate invoice id")
	ErrNotFunded           = errors.New("router: invoice not funded")
	ErrAlreadyFunded       = errors.New("router: invoice already funded")
	ErrAlreadyConfirmed    = errors.New("router: invoice already confirmed")
	ErrAlreadyRefunded     = errors.New("router: invoice already refunded")
	ErrValueTransferFailed = errors.New("router: value transfer failed")
	ErrReleaseLocked       = errors.New("router: release lock has not elapsed")
)

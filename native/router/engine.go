package router

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"transfersafe/core/events"
	"transfersafe/core/types"
	"transfersafe/crypto"
	"transfersafe/native/access"
)

var (
	errNilState  = errors.New("router engine: state not configured")
	errNilAccess = errors.New("router engine: access ledger not configured")
)

// engineState is the durable state consumed by the engine: the append-only
// invoice ledger, per-currency fee pool, module vault addresses and account
// balances.
type engineState interface {
	InvoicePut(*Invoice) error
	InvoiceGet(id string) (*Invoice, bool)
	FeePoolAdd(token string, amount *big.Int) error
	FeePoolSub(token string, amount *big.Int) error
	FeePoolBalance(token string) (*big.Int, error)
	VaultAddress(token string) (crypto.Address, error)
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

type invoiceEvent struct {
	evt *types.Event
}

func (e invoiceEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e invoiceEvent) Event() *types.Event { return e.evt }

// Engine implements the invoice settlement state machine: creation, funding,
// confirmation and refund, plus the fee-pool bookkeeping that confirmation
// feeds. The engine assumes serialized execution; the hosting node provides
// it.
type Engine struct {
	state   engineState
	ledger  *access.Ledger
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates a settlement engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetAccessLedger configures the access ledger the engine snapshots fee rates
// from and consults for admin checks.
func (e *Engine) SetAccessLedger(ledger *access.Ledger) { e.ledger = ledger }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(invoiceEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.ledger == nil {
		return errNilAccess
	}
	return nil
}

func (e *Engine) loadInvoice(id string) (*Invoice, error) {
	inv, ok := e.state.InvoiceGet(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvoiceNotFound, id)
	}
	return inv, nil
}

func (e *Engine) isAdmin(caller crypto.Address) bool {
	return e.ledger.HasRole(access.RoleAdmin, caller)
}

// transferToken moves value between two accounts. Balances never go
// negative; an underfunded sender fails the whole transfer.
func (e *Engine) transferToken(from, to crypto.Address, token string, amount *big.Int) error {
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("router: negative transfer amount")
	}
	normalized, err := NormalizeToken(token)
	if err != nil {
		return err
	}
	fromAcc, err := e.state.GetAccount(from.Bytes())
	if err != nil {
		return err
	}
	toAcc, err := e.state.GetAccount(to.Bytes())
	if err != nil {
		return err
	}
	fromBal := fromAcc.Balance(normalized)
	if fromBal.Cmp(amt) < 0 {
		return fmt.Errorf("%w: insufficient %s balance", ErrValueTransferFailed, normalized)
	}
	fromAcc.SetBalance(normalized, new(big.Int).Sub(fromBal, amt))
	toAcc.SetBalance(normalized, new(big.Int).Add(toAcc.Balance(normalized), amt))
	if err := e.state.PutAccount(from.Bytes(), fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to.Bytes(), toAcc)
}

// CreateInvoice records a new invoice under the caller-supplied id. The
// caller becomes the invoice recipient regardless of any supplied value, the
// current fee rate is snapshotted into the record, and every settlement-state
// field is reset so callers can never pre-seed custody state. No funds move.
func (e *Engine) CreateInvoice(caller crypto.Address, inv *Invoice) (*Invoice, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if caller.IsZero() {
		return nil, fmt.Errorf("router: caller address must not be zero")
	}
	sanitized, err := SanitizeInvoice(inv)
	if err != nil {
		return nil, err
	}
	if existing, ok := e.state.InvoiceGet(sanitized.ID); ok && existing.Exist {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateInvoice, sanitized.ID)
	}
	feeRate, err := e.ledger.Fee()
	if err != nil {
		return nil, err
	}
	record := &Invoice{
		ID:                  sanitized.ID,
		Amount:              cloneBigInt(sanitized.Amount),
		Fee:                 feeRate,
		Balance:             big.NewInt(0),
		CreatedDate:         e.now(),
		PaidAmount:          big.NewInt(0),
		RefundedAmount:      big.NewInt(0),
		RecipientAddress:    caller,
		RecipientEmail:      sanitized.RecipientEmail,
		RecipientName:       sanitized.RecipientName,
		Ref:                 sanitized.Ref,
		Instant:             sanitized.Instant,
		IsNativeToken:       sanitized.IsNativeToken,
		AvailableTokenTypes: append([]string(nil), sanitized.AvailableTokenTypes...),
		ReleaseLockTimeout:  sanitized.ReleaseLockTimeout,
		Exist:               true,
	}
	if err := e.state.InvoicePut(record); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(record))
	return record.Clone(), nil
}

// Deposit funds an invoice with native currency: the value moves from the
// caller into the module vault and the invoice records the funder. A
// non-instant deposit starts the release lock clock.
func (e *Engine) Deposit(caller crypto.Address, id string, instant bool, value *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	inv, err := e.loadInvoice(id)
	if err != nil {
		return err
	}
	if inv.Deposited {
		return fmt.Errorf("%w: %s", ErrAlreadyFunded, id)
	}
	amt := cloneBigInt(value)
	if amt.Sign() <= 0 {
		return fmt.Errorf("router: deposit value must be positive")
	}
	vault, err := e.state.VaultAddress(NativeToken)
	if err != nil {
		return err
	}
	if err := e.transferToken(caller, vault, NativeToken, amt); err != nil {
		return err
	}
	now := e.now()
	inv.Balance = amt
	inv.Deposited = true
	inv.DepositDate = now
	inv.SenderAddress = caller
	inv.TokenType = NativeToken
	inv.Instant = instant
	if !instant {
		inv.ReleaseLockDate = now + inv.ReleaseLockTimeout
	}
	if err := e.state.InvoicePut(inv); err != nil {
		return err
	}
	e.emit(NewFundedEvent(inv))
	return nil
}

// ConfirmInvoice releases the escrowed balance to the recipient net of the
// snapshotted fee and credits the fee share to the currency's pool. Only the
// funder (or an admin, for stuck settlements) may confirm. The fee is
// computed with integer floor division, multiply before divide, so the
// rounding remainder stays with the recipient.
func (e *Engine) ConfirmInvoice(caller crypto.Address, id string) error {
	if err := e.ready(); err != nil {
		return err
	}
	inv, err := e.loadInvoice(id)
	if err != nil {
		return err
	}
	if inv.Paid || inv.ConfirmDate != 0 {
		return fmt.Errorf("%w: %s", ErrAlreadyConfirmed, id)
	}
	if inv.Refunded {
		return fmt.Errorf("%w: %s", ErrAlreadyRefunded, id)
	}
	if !inv.Deposited {
		return fmt.Errorf("%w: %s", ErrNotFunded, id)
	}
	if !caller.Equal(inv.SenderAddress) && !e.isAdmin(caller) {
		return fmt.Errorf("router: unauthorized confirm caller")
	}
	balance := cloneBigInt(inv.Balance)
	if balance.Sign() <= 0 {
		return fmt.Errorf("%w: %s", ErrNotFunded, id)
	}
	token, err := NormalizeToken(inv.TokenType)
	if err != nil {
		return err
	}
	vault, err := e.state.VaultAddress(token)
	if err != nil {
		return err
	}
	serviceFee := new(big.Int).Mul(balance, new(big.Int).SetUint64(uint64(inv.Fee)))
	serviceFee.Div(serviceFee, big.NewInt(FeeDenominator))
	payout := new(big.Int).Sub(balance, serviceFee)
	if err := e.transferToken(vault, inv.RecipientAddress, token, payout); err != nil {
		return err
	}
	if serviceFee.Sign() > 0 {
		if err := e.state.FeePoolAdd(token, serviceFee); err != nil {
			return err
		}
	}
	inv.Paid = true
	inv.PaidAmount = payout
	inv.ConfirmDate = e.now()
	inv.Balance = big.NewInt(0)
	if err := e.state.InvoicePut(inv); err != nil {
		return err
	}
	e.emit(NewConfirmedEvent(inv))
	return nil
}

// RefundInvoice returns the escrowed balance to the funder. The funder may
// reclaim once the release lock has elapsed; an admin may cancel a funded
// invoice at any time. Refund and confirmation are mutually exclusive
// terminal states.
func (e *Engine) RefundInvoice(caller crypto.Address, id string) error {
	if err := e.ready(); err != nil {
		return err
	}
	inv, err := e.loadInvoice(id)
	if err != nil {
		return err
	}
	if inv.Refunded {
		return fmt.Errorf("%w: %s", ErrAlreadyRefunded, id)
	}
	if inv.Paid {
		return fmt.Errorf("%w: %s", ErrAlreadyConfirmed, id)
	}
	if !inv.Deposited {
		return fmt.Errorf("%w: %s", ErrNotFunded, id)
	}
	if !e.isAdmin(caller) {
		if !caller.Equal(inv.SenderAddress) {
			return fmt.Errorf("router: unauthorized refund caller")
		}
		if inv.ReleaseLockDate == 0 || e.now() < inv.ReleaseLockDate {
			return fmt.Errorf("%w: %s", ErrReleaseLocked, id)
		}
	}
	balance := cloneBigInt(inv.Balance)
	if balance.Sign() <= 0 {
		return fmt.Errorf("%w: %s", ErrNotFunded, id)
	}
	token, err := NormalizeToken(inv.TokenType)
	if err != nil {
		return err
	}
	vault, err := e.state.VaultAddress(token)
	if err != nil {
		return err
	}
	if err := e.transferToken(vault, inv.SenderAddress, token, balance); err != nil {
		return err
	}
	inv.Refunded = true
	inv.RefundedAmount = balance
	inv.RefundDate = e.now()
	inv.Balance = big.NewInt(0)
	if err := e.state.InvoicePut(inv); err != nil {
		return err
	}
	e.emit(NewRefundedEvent(inv))
	return nil
}

// GetInvoice returns a copy of the stored record, or ErrInvoiceNotFound for
// an unknown id. There is no zero-value sentinel; missing is always an error.
func (e *Engine) GetInvoice(id string) (*Invoice, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	inv, err := e.loadInvoice(id)
	if err != nil {
		return nil, err
	}
	return inv.Clone(), nil
}

// FeeBalance reports the accrued fee pool for a currency.
func (e *Engine) FeeBalance(token string) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	normalized, err := NormalizeToken(token)
	if err != nil {
		return nil, err
	}
	return e.state.FeePoolBalance(normalized)
}

// NativeFeeBalance reports the accrued native-currency fee pool.
func (e *Engine) NativeFeeBalance() (*big.Int, error) {
	return e.FeeBalance(NativeToken)
}

// WithdrawFees pays the accrued fee pool for a currency out to the supplied
// address and zeroes the pool. Admin only.
func (e *Engine) WithdrawFees(caller crypto.Address, token string, to crypto.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.ledger.RequireAdmin(caller); err != nil {
		return nil, err
	}
	if to.IsZero() {
		return nil, fmt.Errorf("router: withdrawal target must not be zero")
	}
	normalized, err := NormalizeToken(token)
	if err != nil {
		return nil, err
	}
	pool, err := e.state.FeePoolBalance(normalized)
	if err != nil {
		return nil, err
	}
	if pool.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	vault, err := e.state.VaultAddress(normalized)
	if err != nil {
		return nil, err
	}
	if err := e.transferToken(vault, to, normalized, pool); err != nil {
		return nil, err
	}
	if err := e.state.FeePoolSub(normalized, pool); err != nil {
		return nil, err
	}
	e.emit(&types.Event{Type: EventTypeFeesWithdrawn, Attributes: map[string]string{
		"token":  normalized,
		"to":     to.String(),
		"amount": pool.String(),
	}})
	return pool, nil
}

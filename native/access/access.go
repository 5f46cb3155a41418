package access

import (
	"errors"
	"fmt"

	"transfersafe/crypto"
)

// Role identifiers stored in ledger state. RoleSuperAdmin is assigned to the
// deployer at genesis and cannot be revoked through the exposed surface;
// RoleAdmin gates fee mutation and fee withdrawal.
const (
	RoleSuperAdmin = "ROLE_SUPER_ADMIN"
	RoleAdmin      = "ROLE_ADMIN"
)

// DefaultFee is the per-mille fee rate a fresh ledger starts with.
const DefaultFee uint32 = 10

// MaxFee caps the configurable fee rate at 100% in per-mille terms.
const MaxFee uint32 = 1000

// ErrAccessDenied rejects a role-gated mutation. The capitalised message is
// load-bearing: external tooling matches the literal "Access denied".
var ErrAccessDenied = errors.New("Access denied")

var errNilState = errors.New("access ledger: state not configured")

// ledgerState is the slice of durable state the access ledger owns: role
// membership sets and the global fee-rate scalar.
type ledgerState interface {
	HasRole(role string, addr []byte) bool
	SetRole(role string, addr []byte) error
	FeeRate() (uint32, bool, error)
	SetFeeRate(rate uint32) error
}

// Ledger tracks the global fee parameter and the role hierarchy that gates
// its mutation. Invoices copy the current fee at creation time; the ledger
// itself never reaches back into existing records.
type Ledger struct {
	state ledgerState
}

// NewLedger creates an access ledger without a state backend. Callers must
// configure one via SetState before use.
func NewLedger() *Ledger {
	return &Ledger{}
}

// SetState configures the state backend used by the ledger.
func (l *Ledger) SetState(state ledgerState) { l.state = state }

// ValidRole reports whether the identifier names a known role.
func ValidRole(role string) bool {
	switch role {
	case RoleSuperAdmin, RoleAdmin:
		return true
	default:
		return false
	}
}

// Fee returns the current fee rate in parts per thousand. A ledger that has
// never had its fee set reports DefaultFee.
func (l *Ledger) Fee() (uint32, error) {
	if l == nil || l.state == nil {
		return 0, errNilState
	}
	rate, ok, err := l.state.FeeRate()
	if err != nil {
		return 0, err
	}
	if !ok {
		return DefaultFee, nil
	}
	return rate, nil
}

// SetFee updates the global fee rate for all future invoice creations.
// Only admins may call it.
func (l *Ledger) SetFee(caller crypto.Address, rate uint32) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := l.RequireAdmin(caller); err != nil {
		return err
	}
	if rate > MaxFee {
		return fmt.Errorf("access ledger: fee rate %d exceeds %d", rate, MaxFee)
	}
	return l.state.SetFeeRate(rate)
}

// HasRole reports whether the address holds the named role.
func (l *Ledger) HasRole(role string, addr crypto.Address) bool {
	if l == nil || l.state == nil {
		return false
	}
	return l.state.HasRole(role, addr.Bytes())
}

// GrantRole assigns a role to an address. Only the super-admin may grant
// roles; duplicate grants are ignored by the state layer.
func (l *Ledger) GrantRole(caller crypto.Address, role string, addr crypto.Address) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if !ValidRole(role) {
		return fmt.Errorf("access ledger: unknown role %q", role)
	}
	if !l.state.HasRole(RoleSuperAdmin, caller.Bytes()) {
		return ErrAccessDenied
	}
	return l.state.SetRole(role, addr.Bytes())
}

// RequireAdmin returns ErrAccessDenied unless the caller holds the admin
// role.
func (l *Ledger) RequireAdmin(caller crypto.Address) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if !l.state.HasRole(RoleAdmin, caller.Bytes()) {
		return ErrAccessDenied
	}
	return nil
}

// Bootstrap seeds a fresh ledger: the owner receives both roles and the fee
// rate is initialised to DefaultFee when unset. Safe to call on every start.
func (l *Ledger) Bootstrap(owner crypto.Address) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if owner.IsZero() {
		return fmt.Errorf("access ledger: owner address must not be zero")
	}
	if err := l.state.SetRole(RoleSuperAdmin, owner.Bytes()); err != nil {
		return err
	}
	if err := l.state.SetRole(RoleAdmin, owner.Bytes()); err != nil {
		return err
	}
	if _, ok, err := l.state.FeeRate(); err != nil {
		return err
	} else if !ok {
		return l.state.SetFeeRate(DefaultFee)
	}
	return nil
}

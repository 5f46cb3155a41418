package state

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"transfersafe/core/types"
	"transfersafe/crypto"
	"transfersafe/native/router"
	"transfersafe/storage"
)

// Manager persists the settlement ledger's state into a key-value backend:
// the append-only invoice map, account balances, role membership sets, the
// fee-rate scalar and per-currency fee pools. It implements the state
// interfaces consumed by the access ledger and the router engine.
type Manager struct {
	db storage.Database
}

// NewManager wraps the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// --- Invoices ---

// InvoicePut validates and stores an invoice record keyed by its id.
func (m *Manager) InvoicePut(inv *router.Invoice) error {
	sanitized, err := router.SanitizeInvoice(inv)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(sanitized)
	if err != nil {
		return err
	}
	return m.db.Put(invoiceKey(sanitized.ID), encoded)
}

// InvoiceGet loads an invoice record. Missing keys and decode failures both
// report absence; the settlement engine treats absence as "invoice not
// found".
func (m *Manager) InvoiceGet(id string) (*router.Invoice, bool) {
	data, err := m.db.Get(invoiceKey(id))
	if err != nil || len(data) == 0 {
		return nil, false
	}
	inv := new(router.Invoice)
	if err := json.Unmarshal(data, inv); err != nil {
		return nil, false
	}
	return inv, true
}

// --- Accounts ---

// GetAccount loads the account stored for an address. An address that has
// never been written reads back as a fresh zero-balance account.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	if len(addr) == 0 {
		return nil, fmt.Errorf("state: address must not be empty")
	}
	data, err := m.db.Get(accountKey(addr))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return types.NewAccount(), nil
	}
	if err != nil {
		return nil, err
	}
	account := types.NewAccount()
	if err := json.Unmarshal(data, account); err != nil {
		return nil, err
	}
	return account, nil
}

// PutAccount stores the account for an address.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if len(addr) == 0 {
		return fmt.Errorf("state: address must not be empty")
	}
	if account == nil {
		account = types.NewAccount()
	}
	encoded, err := json.Marshal(account)
	if err != nil {
		return err
	}
	return m.db.Put(accountKey(addr), encoded)
}

// Balance is a read helper for the RPC layer.
func (m *Manager) Balance(addr []byte, token string) (*big.Int, error) {
	account, err := m.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return account.Balance(token), nil
}

// --- Fee pool ---

// FeePoolBalance reports the accrued fee balance for a token.
func (m *Manager) FeePoolBalance(token string) (*big.Int, error) {
	data, err := m.db.Get(feePoolKey(normalizeToken(token)))
	if errors.Is(err, storage.ErrKeyNotFound) || len(data) == 0 {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	amount := new(big.Int)
	if err := rlp.DecodeBytes(data, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

// FeePoolAdd credits the fee pool for a token.
func (m *Manager) FeePoolAdd(token string, amount *big.Int) error {
	return m.adjustFeePool(token, amount, false)
}

// FeePoolSub debits the fee pool for a token. The pool can never go
// negative.
func (m *Manager) FeePoolSub(token string, amount *big.Int) error {
	return m.adjustFeePool(token, amount, true)
}

func (m *Manager) adjustFeePool(token string, amount *big.Int, debit bool) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: fee pool adjustment must be non-negative")
	}
	current, err := m.FeePoolBalance(token)
	if err != nil {
		return err
	}
	if debit {
		if current.Cmp(amount) < 0 {
			return fmt.Errorf("state: fee pool underflow for %s", normalizeToken(token))
		}
		current.Sub(current, amount)
	} else {
		current.Add(current, amount)
	}
	encoded, err := rlp.EncodeToBytes(current)
	if err != nil {
		return err
	}
	return m.db.Put(feePoolKey(normalizeToken(token)), encoded)
}

// VaultAddress derives the deterministic module vault holding escrowed funds
// for a token.
func (m *Manager) VaultAddress(token string) (crypto.Address, error) {
	normalized := normalizeToken(token)
	if normalized == "" {
		return crypto.Address{}, fmt.Errorf("state: token symbol must not be empty")
	}
	digest := ethcrypto.Keccak256([]byte(vaultSeed + normalized))
	return crypto.NewAddress(digest[12:])
}

// --- Roles ---

// SetRole associates an address with the specified role. Duplicate
// assignments are ignored while the stored list remains sorted for
// determinism.
func (m *Manager) SetRole(role string, addr []byte) error {
	trimmed := strings.TrimSpace(role)
	if trimmed == "" {
		return fmt.Errorf("state: role must not be empty")
	}
	if len(addr) == 0 {
		return fmt.Errorf("state: address must not be empty")
	}
	members, err := m.RoleMembers(trimmed)
	if err != nil {
		return err
	}
	for _, existing := range members {
		if bytes.Equal(existing, addr) {
			return nil
		}
	}
	members = append(members, append([]byte(nil), addr...))
	sort.Slice(members, func(i, j int) bool {
		return hex.EncodeToString(members[i]) < hex.EncodeToString(members[j])
	})
	encoded, err := rlp.EncodeToBytes(members)
	if err != nil {
		return err
	}
	return m.db.Put(roleKey(trimmed), encoded)
}

// RoleMembers returns all addresses assigned to the provided role.
func (m *Manager) RoleMembers(role string) ([][]byte, error) {
	data, err := m.db.Get(roleKey(strings.TrimSpace(role)))
	if errors.Is(err, storage.ErrKeyNotFound) || len(data) == 0 {
		return [][]byte{}, nil
	}
	if err != nil {
		return nil, err
	}
	var members [][]byte
	if err := rlp.DecodeBytes(data, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// HasRole reports whether the provided address is associated with the
// specified role. Errors while reading the underlying state result in a
// false return, matching the best-effort semantics required by the callers.
func (m *Manager) HasRole(role string, addr []byte) bool {
	if len(addr) == 0 {
		return false
	}
	members, err := m.RoleMembers(role)
	if err != nil {
		return false
	}
	for _, member := range members {
		if bytes.Equal(member, addr) {
			return true
		}
	}
	return false
}

// --- Parameters ---

// FeeRate returns the stored global fee rate. The second return reports
// whether a rate has ever been set.
func (m *Manager) FeeRate() (uint32, bool, error) {
	data, err := m.db.Get([]byte(keyFeeRate))
	if errors.Is(err, storage.ErrKeyNotFound) || len(data) == 0 {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	var rate uint64
	if err := rlp.DecodeBytes(data, &rate); err != nil {
		return 0, false, err
	}
	if rate > uint64(router.FeeDenominator) {
		return 0, false, fmt.Errorf("state: stored fee rate %d out of range", rate)
	}
	return uint32(rate), true, nil
}

// SetFeeRate stores the global fee rate.
func (m *Manager) SetFeeRate(rate uint32) error {
	encoded, err := rlp.EncodeToBytes(uint64(rate))
	if err != nil {
		return err
	}
	return m.db.Put([]byte(keyFeeRate), encoded)
}

// ChainID returns the stored chain identifier and whether one exists.
func (m *Manager) ChainID() (uint64, bool, error) {
	data, err := m.db.Get([]byte(keyChainID))
	if errors.Is(err, storage.ErrKeyNotFound) || len(data) == 0 {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	var id uint64
	if err := rlp.DecodeBytes(data, &id); err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// SetChainID stores the chain identifier.
func (m *Manager) SetChainID(id uint64) error {
	encoded, err := rlp.EncodeToBytes(id)
	if err != nil {
		return err
	}
	return m.db.Put([]byte(keyChainID), encoded)
}

// GenesisDone reports whether genesis initialisation already ran against the
// backing database.
func (m *Manager) GenesisDone() bool {
	ok, err := m.db.Has([]byte(keyGenesis))
	return err == nil && ok
}

// MarkGenesis records that genesis initialisation completed.
func (m *Manager) MarkGenesis() error {
	return m.db.Put([]byte(keyGenesis), []byte{1})
}

func normalizeToken(token string) string {
	return strings.ToUpper(strings.TrimSpace(token))
}

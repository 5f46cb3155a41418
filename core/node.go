package core

import (
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"transfersafe/core/events"
	"transfersafe/core/state"
	"transfersafe/core/types"
	"transfersafe/crypto"
	"transfersafe/native/access"
	"transfersafe/native/router"
	"transfersafe/observability/metrics"
	"transfersafe/storage"
)

// Genesis describes the initial ledger state applied the first time a node
// starts against an empty database.
type Genesis struct {
	ChainID uint64
	// Owner is the deployer: it receives the super-admin and admin roles.
	Owner crypto.Address
	// DefaultFee overrides the initial per-mille fee rate when non-zero.
	DefaultFee uint32
	// Alloc seeds native-currency balances, keyed by bech32 address.
	Alloc map[string]*big.Int
}

// Node hosts the settlement engine and the access ledger behind a single
// mutex. Public operations execute one at a time, start to finish, which is
// the serialized-transaction guarantee the engine's preconditions assume.
type Node struct {
	mu      sync.Mutex
	db      storage.Database
	state   *state.Manager
	access  *access.Ledger
	engine  *router.Engine
	events  *events.Buffer
	metrics *metrics.RouterMetrics
	logger  *slog.Logger
	chainID uint64
}

// NewNode wires the state manager, access ledger and settlement engine over
// the provided database and applies genesis when the database is fresh.
func NewNode(db storage.Database, genesis Genesis, logger *slog.Logger) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("node: database required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	manager := state.NewManager(db)
	ledger := access.NewLedger()
	ledger.SetState(manager)
	engine := router.NewEngine()
	engine.SetState(manager)
	engine.SetAccessLedger(ledger)
	buffer := events.NewBuffer(0)
	engine.SetEmitter(buffer)

	node := &Node{
		db:      db,
		state:   manager,
		access:  ledger,
		engine:  engine,
		events:  buffer,
		metrics: metrics.Router(),
		logger:  logger,
	}
	if err := node.applyGenesis(genesis); err != nil {
		return nil, err
	}
	return node, nil
}

func (n *Node) applyGenesis(genesis Genesis) error {
	storedID, ok, err := n.state.ChainID()
	if err != nil {
		return err
	}
	if ok {
		if genesis.ChainID != 0 && genesis.ChainID != storedID {
			return fmt.Errorf("node: chain id mismatch: database has %d, config wants %d", storedID, genesis.ChainID)
		}
		n.chainID = storedID
	} else {
		if genesis.ChainID == 0 {
			return fmt.Errorf("node: genesis chain id required")
		}
		if err := n.state.SetChainID(genesis.ChainID); err != nil {
			return err
		}
		n.chainID = genesis.ChainID
	}

	if n.state.GenesisDone() {
		return nil
	}
	if genesis.DefaultFee > 0 {
		if _, set, err := n.state.FeeRate(); err != nil {
			return err
		} else if !set {
			if err := n.state.SetFeeRate(genesis.DefaultFee); err != nil {
				return err
			}
		}
	}
	if err := n.access.Bootstrap(genesis.Owner); err != nil {
		return err
	}
	for addrStr, amount := range genesis.Alloc {
		addr, err := crypto.ParseAddress(addrStr)
		if err != nil {
			return fmt.Errorf("node: genesis alloc address %q: %w", addrStr, err)
		}
		account, err := n.state.GetAccount(addr.Bytes())
		if err != nil {
			return err
		}
		account.SetBalance(router.NativeToken, amount)
		if err := n.state.PutAccount(addr.Bytes(), account); err != nil {
			return err
		}
	}
	if err := n.state.MarkGenesis(); err != nil {
		return err
	}
	n.logger.Info("genesis applied",
		"chainId", n.chainID,
		"owner", genesis.Owner.String(),
		"allocations", len(genesis.Alloc))
	return nil
}

// ChainID returns the ledger's chain identifier.
func (n *Node) ChainID() uint64 { return n.chainID }

// GetFee returns the current global fee rate in parts per thousand.
func (n *Node) GetFee() (uint32, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.access.Fee()
}

// SetFee updates the global fee rate. Admin only.
func (n *Node) SetFee(caller crypto.Address, rate uint32) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.access.SetFee(caller, rate); err != nil {
		n.metrics.OpFailed("setFee")
		return err
	}
	n.logger.Info("fee updated", "caller", caller.String(), "rate", rate)
	return nil
}

// HasRole reports whether an address holds the named role.
func (n *Node) HasRole(role string, addr crypto.Address) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.access.HasRole(role, addr)
}

// GrantRole assigns a role to an address. Super-admin only.
func (n *Node) GrantRole(caller crypto.Address, role string, addr crypto.Address) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.access.GrantRole(caller, role, addr); err != nil {
		n.metrics.OpFailed("grantRole")
		return err
	}
	n.logger.Info("role granted", "caller", caller.String(), "role", role, "address", addr.String())
	return nil
}

// CreateInvoice records a new invoice owned by the caller.
func (n *Node) CreateInvoice(caller crypto.Address, inv *router.Invoice) (*router.Invoice, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	created, err := n.engine.CreateInvoice(caller, inv)
	if err != nil {
		n.metrics.OpFailed("createInvoice")
		return nil, err
	}
	n.metrics.InvoiceCreated()
	n.logger.Info("invoice created", "id", created.ID, "recipient", created.RecipientAddress.String(), "fee", created.Fee)
	return created, nil
}

// Deposit funds an invoice from the caller's native balance.
func (n *Node) Deposit(caller crypto.Address, id string, instant bool, value *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.engine.Deposit(caller, id, instant, value); err != nil {
		n.metrics.OpFailed("deposit")
		return err
	}
	n.metrics.Deposited()
	n.logger.Info("invoice funded", "id", id, "sender", caller.String(), "value", value.String(), "instant", instant)
	return nil
}

// ConfirmInvoice settles an invoice to its recipient.
func (n *Node) ConfirmInvoice(caller crypto.Address, id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.engine.ConfirmInvoice(caller, id); err != nil {
		n.metrics.OpFailed("confirmInvoice")
		return err
	}
	n.metrics.Confirmed()
	n.refreshFeePoolGauge()
	n.logger.Info("invoice confirmed", "id", id, "caller", caller.String())
	return nil
}

// RefundInvoice returns an invoice's escrowed balance to its funder.
func (n *Node) RefundInvoice(caller crypto.Address, id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.engine.RefundInvoice(caller, id); err != nil {
		n.metrics.OpFailed("refundInvoice")
		return err
	}
	n.metrics.Refunded()
	n.logger.Info("invoice refunded", "id", id, "caller", caller.String())
	return nil
}

// GetInvoice returns a copy of the stored invoice record.
func (n *Node) GetInvoice(id string) (*router.Invoice, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.GetInvoice(id)
}

// NativeFeeBalance reports the accrued native-currency fee pool.
func (n *Node) NativeFeeBalance() (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.NativeFeeBalance()
}

// FeeBalance reports the accrued fee pool for a currency.
func (n *Node) FeeBalance(token string) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.FeeBalance(token)
}

// WithdrawFees pays the accrued fee pool out to the supplied address. Admin
// only.
func (n *Node) WithdrawFees(caller crypto.Address, token string, to crypto.Address) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	amount, err := n.engine.WithdrawFees(caller, token, to)
	if err != nil {
		n.metrics.OpFailed("withdrawFees")
		return nil, err
	}
	n.refreshFeePoolGauge()
	n.logger.Info("fees withdrawn", "caller", caller.String(), "token", token, "to", to.String(), "amount", amount.String())
	return amount, nil
}

// Balance reports the account balance held for an address and token.
func (n *Node) Balance(addr crypto.Address, token string) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.Balance(addr.Bytes(), token)
}

// RecentEvents returns up to n of the latest settlement events, newest last.
func (n *Node) RecentEvents(limit int) []*types.Event {
	recent := n.events.Recent(limit)
	out := make([]*types.Event, 0, len(recent))
	for _, evt := range recent {
		carrier, ok := evt.(interface{ Event() *types.Event })
		if !ok || carrier.Event() == nil {
			continue
		}
		out = append(out, carrier.Event())
	}
	return out
}

func (n *Node) refreshFeePoolGauge() {
	pool, err := n.engine.NativeFeeBalance()
	if err != nil {
		return
	}
	n.metrics.SetFeePool(router.NativeToken, pool)
}

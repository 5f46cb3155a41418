package core

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"transfersafe/crypto"
	"transfersafe/native/access"
	"transfersafe/native/router"
	"transfersafe/storage"
)

const initialBalance = 10_000

func testAddress(fill byte) crypto.Address {
	return crypto.MustNewAddress(bytes.Repeat([]byte{fill}, crypto.AddressLength))
}

func newTestNode(t *testing.T) (*Node, crypto.Address, crypto.Address, crypto.Address) {
	t.Helper()
	owner := testAddress(0x01)
	creator := testAddress(0x02)
	sender := testAddress(0x03)
	node, err := NewNode(storage.NewMemDB(), Genesis{
		ChainID: 123,
		Owner:   owner,
		Alloc: map[string]*big.Int{
			creator.String(): big.NewInt(initialBalance),
			sender.String():  big.NewInt(initialBalance),
		},
	}, nil)
	require.NoError(t, err)
	return node, owner, creator, sender
}

func TestNodeInitialValues(t *testing.T) {
	node, owner, _, _ := newTestNode(t)

	require.Equal(t, uint64(123), node.ChainID())

	fee, err := node.GetFee()
	require.NoError(t, err)
	require.Equal(t, access.DefaultFee, fee)

	require.True(t, node.HasRole(access.RoleSuperAdmin, owner))
	require.True(t, node.HasRole(access.RoleAdmin, owner))
}

func TestNodeSetFee(t *testing.T) {
	node, owner, creator, _ := newTestNode(t)

	require.NoError(t, node.SetFee(owner, 30))
	fee, err := node.GetFee()
	require.NoError(t, err)
	require.Equal(t, uint32(30), fee)

	err = node.SetFee(creator, 10)
	require.ErrorIs(t, err, access.ErrAccessDenied)
	require.Contains(t, err.Error(), "Access denied")
	fee, err = node.GetFee()
	require.NoError(t, err)
	require.Equal(t, uint32(30), fee, "rejected call must leave the fee unchanged")
}

// TestNodeSettlementScenario walks the full deposit-and-confirm flow: the
// creator's invoice funded with 3000 native units at the default rate of 10
// per mille settles 2970 to the creator and 30 into the fee pool.
func TestNodeSettlementScenario(t *testing.T) {
	node, _, creator, sender := newTestNode(t)

	created, err := node.CreateInvoice(creator, &router.Invoice{
		ID:            "123",
		Amount:        big.NewInt(1000),
		IsNativeToken: true,
	})
	require.NoError(t, err)
	require.Equal(t, access.DefaultFee, created.Fee)

	require.NoError(t, node.Deposit(sender, "123", false, big.NewInt(3000)))
	require.NoError(t, node.ConfirmInvoice(sender, "123"))

	pool, err := node.NativeFeeBalance()
	require.NoError(t, err)
	require.Zero(t, pool.Cmp(big.NewInt(30)))

	creatorBalance, err := node.Balance(creator, router.NativeToken)
	require.NoError(t, err)
	require.Zero(t, creatorBalance.Cmp(big.NewInt(initialBalance+3000-30)))

	senderBalance, err := node.Balance(sender, router.NativeToken)
	require.NoError(t, err)
	require.Zero(t, senderBalance.Cmp(big.NewInt(initialBalance-3000)))

	invoice, err := node.GetInvoice("123")
	require.NoError(t, err)
	require.True(t, invoice.Paid)
	require.Zero(t, invoice.PaidAmount.Cmp(big.NewInt(2970)))

	events := node.RecentEvents(0)
	require.Len(t, events, 3)
	require.Equal(t, router.EventTypeInvoiceCreated, events[0].Type)
	require.Equal(t, router.EventTypeInvoiceFunded, events[1].Type)
	require.Equal(t, router.EventTypeInvoiceConfirmed, events[2].Type)
}

func TestNodeWithdrawFees(t *testing.T) {
	node, owner, creator, sender := newTestNode(t)
	treasury := testAddress(0x04)

	_, err := node.CreateInvoice(creator, &router.Invoice{ID: "inv", IsNativeToken: true})
	require.NoError(t, err)
	require.NoError(t, node.Deposit(sender, "inv", true, big.NewInt(1000)))
	require.NoError(t, node.ConfirmInvoice(sender, "inv"))

	_, err = node.WithdrawFees(sender, router.NativeToken, treasury)
	require.ErrorIs(t, err, access.ErrAccessDenied)

	amount, err := node.WithdrawFees(owner, router.NativeToken, treasury)
	require.NoError(t, err)
	require.Zero(t, amount.Cmp(big.NewInt(10)))

	balance, err := node.Balance(treasury, router.NativeToken)
	require.NoError(t, err)
	require.Zero(t, balance.Cmp(big.NewInt(10)))
}

func TestNodeGenesisRunsOnce(t *testing.T) {
	db := storage.NewMemDB()
	owner := testAddress(0x01)
	funded := testAddress(0x02)

	_, err := NewNode(db, Genesis{
		ChainID: 123,
		Owner:   owner,
		Alloc:   map[string]*big.Int{funded.String(): big.NewInt(500)},
	}, nil)
	require.NoError(t, err)

	// a restart against the same database must not re-apply allocations
	node, err := NewNode(db, Genesis{
		ChainID: 123,
		Owner:   owner,
		Alloc:   map[string]*big.Int{funded.String(): big.NewInt(999_999)},
	}, nil)
	require.NoError(t, err)

	balance, err := node.Balance(funded, router.NativeToken)
	require.NoError(t, err)
	require.Zero(t, balance.Cmp(big.NewInt(500)))
}

func TestNodeChainIDMismatch(t *testing.T) {
	db := storage.NewMemDB()
	owner := testAddress(0x01)
	_, err := NewNode(db, Genesis{ChainID: 123, Owner: owner}, nil)
	require.NoError(t, err)

	_, err = NewNode(db, Genesis{ChainID: 456, Owner: owner}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "chain id mismatch")
}

func TestNodeGrantRole(t *testing.T) {
	node, owner, _, _ := newTestNode(t)
	operator := testAddress(0x05)

	require.ErrorIs(t, node.GrantRole(operator, access.RoleAdmin, operator), access.ErrAccessDenied)
	require.NoError(t, node.GrantRole(owner, access.RoleAdmin, operator))
	require.True(t, node.HasRole(access.RoleAdmin, operator))
	require.NoError(t, node.SetFee(operator, 15))
}

package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"transfersafe/crypto"
	"transfersafe/native/router"
)

type setFeeParams struct {
	Caller string `json:"caller"`
	Fee    uint32 `json:"fee"`
}

type roleParams struct {
	Caller  string `json:"caller,omitempty"`
	Role    string `json:"role"`
	Address string `json:"address"`
}

type createInvoiceParams struct {
	Caller  string        `json:"caller"`
	Invoice invoiceParams `json:"invoice"`
}

// invoiceParams mirrors the legacy invoice struct. Settlement-state fields
// are accepted and ignored; creation resets them regardless.
type invoiceParams struct {
	ID                  string   `json:"id"`
	Amount              string   `json:"amount"`
	RecipientEmail      string   `json:"receipientEmail"`
	RecipientName       string   `json:"receipientName"`
	Ref                 string   `json:"ref"`
	Instant             bool     `json:"instant"`
	IsNativeToken       bool     `json:"isNativeToken"`
	AvailableTokenTypes []string `json:"availableTokenTypes"`
	ReleaseLockTimeout  int64    `json:"releaseLockTimeout"`
}

type depositParams struct {
	Caller  string `json:"caller"`
	ID      string `json:"id"`
	Instant bool   `json:"instant"`
	Value   string `json:"value"`
}

type invoiceIDParams struct {
	Caller string `json:"caller,omitempty"`
	ID     string `json:"id"`
}

type feeBalanceParams struct {
	Token string `json:"token"`
}

type withdrawFeesParams struct {
	Caller string `json:"caller"`
	Token  string `json:"token"`
	To     string `json:"to"`
}

type balanceParams struct {
	Address string `json:"address"`
	Token   string `json:"token,omitempty"`
}

type listEventsParams struct {
	Limit int `json:"limit,omitempty"`
}

func (s *Server) handleGetChainID() (interface{}, *RPCError) {
	return s.node.ChainID(), nil
}

func (s *Server) handleGetFee() (interface{}, *RPCError) {
	fee, err := s.node.GetFee()
	if err != nil {
		return nil, errorToRPC(err)
	}
	return fee, nil
}

func (s *Server) handleSetFee(raw []json.RawMessage) (interface{}, *RPCError) {
	var params setFeeParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddressParam("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.node.SetFee(caller, params.Fee); err != nil {
		return nil, errorToRPC(err)
	}
	return true, nil
}

func (s *Server) handleHasRole(raw []json.RawMessage) (interface{}, *RPCError) {
	var params roleParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddressParam("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return s.node.HasRole(params.Role, addr), nil
}

func (s *Server) handleGrantRole(raw []json.RawMessage) (interface{}, *RPCError) {
	var params roleParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddressParam("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddressParam("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.node.GrantRole(caller, params.Role, addr); err != nil {
		return nil, errorToRPC(err)
	}
	return true, nil
}

func (s *Server) handleCreateInvoice(raw []json.RawMessage) (interface{}, *RPCError) {
	var params createInvoiceParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddressParam("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmountParam("amount", params.Invoice.Amount, true)
	if rpcErr != nil {
		return nil, rpcErr
	}
	invoice := &router.Invoice{
		ID:                  params.Invoice.ID,
		Amount:              amount,
		RecipientEmail:      params.Invoice.RecipientEmail,
		RecipientName:       params.Invoice.RecipientName,
		Ref:                 params.Invoice.Ref,
		Instant:             params.Invoice.Instant,
		IsNativeToken:       params.Invoice.IsNativeToken,
		AvailableTokenTypes: params.Invoice.AvailableTokenTypes,
		ReleaseLockTimeout:  params.Invoice.ReleaseLockTimeout,
	}
	created, err := s.node.CreateInvoice(caller, invoice)
	if err != nil {
		return nil, errorToRPC(err)
	}
	return formatInvoice(created), nil
}

func (s *Server) handleDeposit(raw []json.RawMessage) (interface{}, *RPCError) {
	var params depositParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddressParam("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	value, rpcErr := parseAmountParam("value", params.Value, false)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.node.Deposit(caller, params.ID, params.Instant, value); err != nil {
		return nil, errorToRPC(err)
	}
	return true, nil
}

func (s *Server) handleConfirmInvoice(raw []json.RawMessage) (interface{}, *RPCError) {
	var params invoiceIDParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddressParam("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.node.ConfirmInvoice(caller, params.ID); err != nil {
		return nil, errorToRPC(err)
	}
	return true, nil
}

func (s *Server) handleRefundInvoice(raw []json.RawMessage) (interface{}, *RPCError) {
	var params invoiceIDParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddressParam("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.node.RefundInvoice(caller, params.ID); err != nil {
		return nil, errorToRPC(err)
	}
	return true, nil
}

func (s *Server) handleGetInvoice(raw []json.RawMessage) (interface{}, *RPCError) {
	var params invoiceIDParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	invoice, err := s.node.GetInvoice(params.ID)
	if err != nil {
		return nil, errorToRPC(err)
	}
	return formatInvoice(invoice), nil
}

func (s *Server) handleGetNativeFeeBalance() (interface{}, *RPCError) {
	balance, err := s.node.NativeFeeBalance()
	if err != nil {
		return nil, errorToRPC(err)
	}
	return balance.String(), nil
}

func (s *Server) handleGetFeeBalance(raw []json.RawMessage) (interface{}, *RPCError) {
	var params feeBalanceParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	balance, err := s.node.FeeBalance(params.Token)
	if err != nil {
		return nil, errorToRPC(err)
	}
	return balance.String(), nil
}

func (s *Server) handleWithdrawFees(raw []json.RawMessage) (interface{}, *RPCError) {
	var params withdrawFeesParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddressParam("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	to, rpcErr := parseAddressParam("to", params.To)
	if rpcErr != nil {
		return nil, rpcErr
	}
	token := params.Token
	if strings.TrimSpace(token) == "" {
		token = router.NativeToken
	}
	amount, err := s.node.WithdrawFees(caller, token, to)
	if err != nil {
		return nil, errorToRPC(err)
	}
	return amount.String(), nil
}

func (s *Server) handleGetBalance(raw []json.RawMessage) (interface{}, *RPCError) {
	var params balanceParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddressParam("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	token := params.Token
	if strings.TrimSpace(token) == "" {
		token = router.NativeToken
	}
	balance, err := s.node.Balance(addr, token)
	if err != nil {
		return nil, errorToRPC(err)
	}
	return balance.String(), nil
}

func (s *Server) handleListEvents(raw []json.RawMessage) (interface{}, *RPCError) {
	params := listEventsParams{}
	if len(raw) == 1 {
		if rpcErr := decodeParams(raw, &params); rpcErr != nil {
			return nil, rpcErr
		}
	}
	return s.node.RecentEvents(params.Limit), nil
}

func parseAddressParam(name, value string) (crypto.Address, *RPCError) {
	if strings.TrimSpace(value) == "" {
		return crypto.Address{}, &RPCError{Code: codeInvalidParams, Message: name + " address required"}
	}
	addr, err := crypto.ParseAddress(value)
	if err != nil {
		return crypto.Address{}, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid %s address: %v", name, err)}
	}
	return addr, nil
}

func parseAmountParam(name, value string, allowEmpty bool) (*big.Int, *RPCError) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		if allowEmpty {
			return big.NewInt(0), nil
		}
		return nil, &RPCError{Code: codeInvalidParams, Message: name + " required"}
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, &RPCError{Code: codeInvalidParams, Message: name + " must be a non-negative decimal integer"}
	}
	return amount, nil
}

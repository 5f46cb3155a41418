package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"transfersafe/core"
	"transfersafe/crypto"
	"transfersafe/native/access"
	"transfersafe/storage"
)

func newTestServer(t *testing.T) (*httptest.Server, crypto.Address, crypto.Address, crypto.Address) {
	t.Helper()
	owner := crypto.MustNewAddress(bytes.Repeat([]byte{0x01}, crypto.AddressLength))
	creator := crypto.MustNewAddress(bytes.Repeat([]byte{0x02}, crypto.AddressLength))
	sender := crypto.MustNewAddress(bytes.Repeat([]byte{0x03}, crypto.AddressLength))
	node, err := core.NewNode(storage.NewMemDB(), core.Genesis{
		ChainID: 123,
		Owner:   owner,
		Alloc: map[string]*big.Int{
			sender.String(): big.NewInt(10_000),
		},
	}, nil)
	require.NoError(t, err)
	server := httptest.NewServer(NewServer(node, nil).Router())
	t.Cleanup(server.Close)
	return server, owner, creator, sender
}

func call(t *testing.T, url, method string, param interface{}) RPCResponse {
	t.Helper()
	params := []interface{}{}
	if param != nil {
		params = append(params, param)
	}
	payload, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0", "id": 1, "method": method, "params": params,
	})
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	var rpcResp RPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rpcResp))
	return rpcResp
}

func TestRPCGetFeeAndChainID(t *testing.T) {
	server, _, _, _ := newTestServer(t)

	resp := call(t, server.URL, "tsr_getFee", nil)
	require.Nil(t, resp.Error)
	require.Equal(t, float64(access.DefaultFee), resp.Result)

	resp = call(t, server.URL, "tsr_getChainId", nil)
	require.Nil(t, resp.Error)
	require.Equal(t, float64(123), resp.Result)
}

func TestRPCMethodNotFound(t *testing.T) {
	server, _, _, _ := newTestServer(t)
	resp := call(t, server.URL, "tsr_unknown", nil)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestRPCSetFeeAccessDenied(t *testing.T) {
	server, _, creator, _ := newTestServer(t)
	resp := call(t, server.URL, "tsr_setFee", map[string]interface{}{
		"caller": creator.String(),
		"fee":    30,
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeAccessDenied, resp.Error.Code)
	require.Contains(t, resp.Error.Message, "Access denied")
}

func TestRPCInvoiceLifecycle(t *testing.T) {
	server, _, creator, sender := newTestServer(t)

	resp := call(t, server.URL, "tsr_createInvoice", map[string]interface{}{
		"caller": creator.String(),
		"invoice": map[string]interface{}{
			"id":            "123",
			"amount":        "1000",
			"isNativeToken": true,
		},
	})
	require.Nil(t, resp.Error)
	created, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "123", created["id"])
	require.Equal(t, false, created["deposited"])
	require.Equal(t, creator.String(), created["receipientAddress"])

	resp = call(t, server.URL, "tsr_createInvoice", map[string]interface{}{
		"caller":  creator.String(),
		"invoice": map[string]interface{}{"id": "123"},
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeDuplicateInvoice, resp.Error.Code)

	resp = call(t, server.URL, "tsr_deposit", map[string]interface{}{
		"caller": sender.String(), "id": "123", "instant": false, "value": "3000",
	})
	require.Nil(t, resp.Error)

	resp = call(t, server.URL, "tsr_confirmInvoice", map[string]interface{}{
		"caller": sender.String(), "id": "123",
	})
	require.Nil(t, resp.Error)

	resp = call(t, server.URL, "tsr_getNativeFeeBalance", nil)
	require.Nil(t, resp.Error)
	require.Equal(t, "30", resp.Result)

	resp = call(t, server.URL, "tsr_getBalance", map[string]interface{}{
		"address": creator.String(),
	})
	require.Nil(t, resp.Error)
	require.Equal(t, "2970", resp.Result)

	resp = call(t, server.URL, "tsr_getInvoice", map[string]interface{}{"id": "123"})
	require.Nil(t, resp.Error)
	invoice, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, true, invoice["paid"])
	require.Equal(t, "2970", invoice["paidAmount"])
	require.Equal(t, "0", invoice["balance"])
}

func TestRPCGetInvoiceNotFound(t *testing.T) {
	server, _, _, _ := newTestServer(t)
	resp := call(t, server.URL, "tsr_getInvoice", map[string]interface{}{"id": "missing"})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvoiceNotFound, resp.Error.Code)
}

func TestRPCInvalidParams(t *testing.T) {
	server, _, _, _ := newTestServer(t)

	resp := call(t, server.URL, "tsr_deposit", map[string]interface{}{
		"caller": "not-an-address", "id": "123", "value": "100",
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	resp = call(t, server.URL, "tsr_setFee", nil)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestRPCBearerAuth(t *testing.T) {
	owner := crypto.MustNewAddress(bytes.Repeat([]byte{0x01}, crypto.AddressLength))
	node, err := core.NewNode(storage.NewMemDB(), core.Genesis{ChainID: 1, Owner: owner}, nil)
	require.NoError(t, err)
	s := NewServer(node, nil)
	s.authToken = "secret"
	server := httptest.NewServer(s.Router())
	t.Cleanup(server.Close)

	// reads stay open
	resp := call(t, server.URL, "tsr_getFee", nil)
	require.Nil(t, resp.Error)

	// mutations without the token are rejected
	resp = call(t, server.URL, "tsr_setFee", map[string]interface{}{
		"caller": owner.String(), "fee": 20,
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	payload, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0", "id": 1, "method": "tsr_setFee",
		"params": []interface{}{map[string]interface{}{"caller": owner.String(), "fee": 20}},
	})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, server.URL, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer secret")
	httpResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer httpResp.Body.Close()
	var rpcResp RPCResponse
	require.NoError(t, json.NewDecoder(httpResp.Body).Decode(&rpcResp))
	require.Nil(t, rpcResp.Error)
}

func TestHealthz(t *testing.T) {
	server, _, _, _ := newTestServer(t)
	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"transfersafe/core"
	"transfersafe/native/access"
	"transfersafe/native/router"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError       = -32700
	codeInvalidRequest   = -32600
	codeMethodNotFound   = -32601
	codeInvalidParams    = -32602
	codeServerError      = -32000
	codeUnauthorized     = -32001
	codeAccessDenied     = -32030
	codeInvoiceNotFound  = -32040
	codeDuplicateInvoice = -32041
	codeStateConflict    = -32042
	codeTransferFailed   = -32043
)

// Server exposes the settlement node over JSON-RPC 2.0. Mutating methods
// require a bearer token when TSR_RPC_TOKEN is set in the environment.
type Server struct {
	node      *core.Node
	authToken string
	logger    *slog.Logger
}

// NewServer wraps a node for RPC exposure.
func NewServer(node *core.Node, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		node:      node,
		authToken: strings.TrimSpace(os.Getenv("TSR_RPC_TOKEN")),
		logger:    logger,
	}
}

// Router builds the HTTP mux: the JSON-RPC endpoint plus health and metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/", s.handle)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Start blocks serving the RPC surface on the given address.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting JSON-RPC server", "addr", addr)
	return http.ListenAndServe(addr, s.Router())
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	logger := s.logger.With("requestId", requestID)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, nil, codeParseError, "unable to read request body")
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, codeParseError, "invalid JSON payload")
		return
	}
	if req.JSONRPC != jsonRPCVersion || strings.TrimSpace(req.Method) == "" {
		writeError(w, req.ID, codeInvalidRequest, "invalid JSON-RPC request")
		return
	}

	if mutatingMethods[req.Method] && !s.authorized(r) {
		logger.Warn("unauthorized RPC call", "method", req.Method)
		writeError(w, req.ID, codeUnauthorized, "unauthorized")
		return
	}

	result, rpcErr := s.dispatch(&req)
	if rpcErr != nil {
		logger.Info("rpc call rejected", "method", req.Method, "code", rpcErr.Code, "reason", rpcErr.Message)
		writeResponse(w, RPCResponse{JSONRPC: jsonRPCVersion, ID: req.ID, Error: rpcErr})
		return
	}
	writeResponse(w, RPCResponse{JSONRPC: jsonRPCVersion, ID: req.ID, Result: result})
}

var mutatingMethods = map[string]bool{
	"tsr_setFee":         true,
	"tsr_grantRole":      true,
	"tsr_createInvoice":  true,
	"tsr_deposit":        true,
	"tsr_confirmInvoice": true,
	"tsr_refundInvoice":  true,
	"tsr_withdrawFees":   true,
}

func (s *Server) authorized(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	supplied := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(s.authToken)) == 1
}

func (s *Server) dispatch(req *RPCRequest) (interface{}, *RPCError) {
	switch req.Method {
	case "tsr_getChainId":
		return s.handleGetChainID()
	case "tsr_getFee":
		return s.handleGetFee()
	case "tsr_setFee":
		return s.handleSetFee(req.Params)
	case "tsr_hasRole":
		return s.handleHasRole(req.Params)
	case "tsr_grantRole":
		return s.handleGrantRole(req.Params)
	case "tsr_createInvoice":
		return s.handleCreateInvoice(req.Params)
	case "tsr_deposit":
		return s.handleDeposit(req.Params)
	case "tsr_confirmInvoice":
		return s.handleConfirmInvoice(req.Params)
	case "tsr_refundInvoice":
		return s.handleRefundInvoice(req.Params)
	case "tsr_getInvoice":
		return s.handleGetInvoice(req.Params)
	case "tsr_getNativeFeeBalance":
		return s.handleGetNativeFeeBalance()
	case "tsr_getFeeBalance":
		return s.handleGetFeeBalance(req.Params)
	case "tsr_withdrawFees":
		return s.handleWithdrawFees(req.Params)
	case "tsr_getBalance":
		return s.handleGetBalance(req.Params)
	case "tsr_listEvents":
		return s.handleListEvents(req.Params)
	default:
		return nil, &RPCError{Code: codeMethodNotFound, Message: "method not found"}
	}
}

// errorToRPC maps engine failures onto stable JSON-RPC codes while keeping
// the matchable reason string as the message.
func errorToRPC(err error) *RPCError {
	switch {
	case errors.Is(err, access.ErrAccessDenied):
		return &RPCError{Code: codeAccessDenied, Message: err.Error()}
	case errors.Is(err, router.ErrInvoiceNotFound):
		return &RPCError{Code: codeInvoiceNotFound, Message: err.Error()}
	case errors.Is(err, router.ErrDuplicateInvoice):
		return &RPCError{Code: codeDuplicateInvoice, Message: err.Error()}
	case errors.Is(err, router.ErrNotFunded),
		errors.Is(err, router.ErrAlreadyFunded),
		errors.Is(err, router.ErrAlreadyConfirmed),
		errors.Is(err, router.ErrAlreadyRefunded),
		errors.Is(err, router.ErrReleaseLocked):
		return &RPCError{Code: codeStateConflict, Message: err.Error()}
	case errors.Is(err, router.ErrValueTransferFailed):
		return &RPCError{Code: codeTransferFailed, Message: err.Error()}
	default:
		return &RPCError{Code: codeServerError, Message: err.Error()}
	}
}

func decodeParams(params []json.RawMessage, target interface{}) *RPCError {
	if len(params) != 1 {
		return &RPCError{Code: codeInvalidParams, Message: "expected a single params object"}
	}
	if err := json.Unmarshal(params[0], target); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: "invalid params: " + err.Error()}
	}
	return nil
}

func writeResponse(w http.ResponseWriter, resp RPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	writeResponse(w, RPCResponse{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	})
}

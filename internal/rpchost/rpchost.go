// Package rpchost implements the host-facing JSON-RPC 2.0 surface (§6): a
// single POST /rpc endpoint whose method table mirrors the operations named
// across §4 — sandbox lifecycle, entity provisioning, and the core ledger
// operations exposed for out-of-band test-harness / UI use.
package rpchost

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/OmentaElvis/pesa-playground-sub000/internal/c2b"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/events"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/ledger"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/registry"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/sandbox"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/store"
)

// parseError/invalidRequest/methodNotFound/internalError mirror the -327xx
// JSON-RPC reserved code range the spec borrows (§6).
const (
	codeInvalidParams = -32700
	codeMethodNotFound = -32601
)

// Request is the fixed inbound envelope (§6).
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is the fixed outbound envelope; exactly one of Result/Error is set.
type Response struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Handler owns every dependency the method table dispatches into.
type Handler struct {
	Store    store.Store
	Ledger   *ledger.Ledger
	Registry *registry.Registry
	Events   *events.Bus
	Sandbox  *sandbox.Manager
	C2B      *c2b.Flow
	// BgCtx is the host process's own lifetime context; lipa's background
	// outbound round trips are detached onto it the same way a sandbox's
	// pipeline work is detached onto its own bgCtx (§9's design-note pattern
	// applied at the host scope).
	BgCtx context.Context
	Log   *zap.Logger

	methods map[string]methodFunc
}

type methodFunc func(ctx context.Context, h *Handler, params json.RawMessage) (any, error)

var methodTable = map[string]methodFunc{
	"start_sandbox":         rpcStartSandbox,
	"stop_sandbox":          rpcStopSandbox,
	"list_sandboxes":        rpcListSandboxes,
	"create_business":       rpcCreateBusiness,
	"create_project":        rpcCreateProject,
	"create_user":           rpcCreateUser,
	"create_merchant_account": rpcCreateMerchantAccount,
	"resolve_stk_prompt":    rpcResolveSTKPrompt,
	"transfer":              rpcTransfer,
	"reverse":               rpcReverse,
	"lipa":                  rpcLipa,
	"settle":                rpcSettle,
}

func NewHandler(h Handler) *Handler {
	if h.Log == nil {
		h.Log = zap.L()
	}
	if h.BgCtx == nil {
		h.BgCtx = context.Background()
	}
	h.methods = methodTable
	return &h
}

// ServeHTTP implements the single POST /rpc endpoint (§6).
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, nil, http.StatusBadRequest, codeInvalidParams, "invalid request body")
		return
	}

	fn, ok := h.methods[req.Method]
	if !ok {
		h.writeError(w, req.ID, http.StatusNotFound, codeMethodNotFound, "Method not found")
		return
	}

	result, err := fn(r.Context(), h, req.Params)
	if err != nil {
		h.Log.Warn("rpc method failed", zap.String("method", req.Method), zap.Error(err))
		h.writeError(w, req.ID, http.StatusInternalServerError, codeInvalidParams, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, Response{JSONRPC: "2.0", ID: req.ID, Result: result})
}

func (h *Handler) writeError(w http.ResponseWriter, id any, status, code int, message string) {
	h.writeJSON(w, status, Response{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message}})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

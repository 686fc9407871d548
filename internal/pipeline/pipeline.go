// Package pipeline implements the Async Request Pipeline (C5): a generic
// state machine — Accepted → Executing → Resolved → Delivered — shared by
// every provider-style endpoint, specialised through the Handler contract
// described in §4.5.
package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/OmentaElvis/pesa-playground-sub000/internal/callback"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/models"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/store"
)

// State is the lifecycle stage of one in-flight pipeline run (§4.5).
type State string

const (
	StateAccepted  State = "accepted"
	StateExecuting State = "executing"
	StateResolved  State = "resolved"
	StateDelivered State = "delivered"
)

// InitRequest carries everything a handler's Init needs to validate the
// call and resolve referenced entities.
type InitRequest struct {
	Body       json.RawMessage
	Project    *models.Project
	Credential *models.APICredential
}

// Handler is the per-endpoint extension point (§4.5's "per-kind handler
// contract"). ExecContext is handler-defined and opaque to the pipeline.
type Handler interface {
	// Init validates inputs and computes the synchronous acknowledgement.
	// A non-nil error is surfaced synchronously and never spawns background
	// work (§7's propagation policy for Input/Auth errors).
	Init(ctx context.Context, req InitRequest) (sync any, execCtx any, err error)

	// Execute runs the business logic and returns the callback payload
	// ready for delivery. Business failures are encoded as a result code
	// inside the payload, not as a returned error; a returned error means
	// an internal fault (§7's Internal taxonomy).
	Execute(ctx context.Context, execCtx any) ([]byte, error)

	CallbackURL(execCtx any) string
	OriginatorID(execCtx any) string
}

// Pipeline drives Handler implementations through the generic state
// machine and owns delivery of the resulting callback.
type Pipeline struct {
	delivery *callback.Delivery
	logs     store.CallbackLogStore
	log      *zap.Logger
}

func New(delivery *callback.Delivery, logs store.CallbackLogStore, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.L()
	}
	return &Pipeline{delivery: delivery, logs: logs, log: log}
}

// Run executes Init synchronously and, on success, detaches Execute plus
// callback delivery onto bgCtx — the sandbox's own lifetime context, not
// the HTTP request context, so that stopping the sandbox cancels every
// pipeline it spawned (§9's design-note improvement over the source).
func (p *Pipeline) Run(ctx context.Context, bgCtx context.Context, h Handler, req InitRequest) (any, error) {
	sync, execCtx, err := h.Init(ctx, req)
	if err != nil {
		return nil, err
	}

	go p.runDetached(bgCtx, h, execCtx)
	return sync, nil
}

func (p *Pipeline) runDetached(ctx context.Context, h Handler, execCtx any) {
	payload, err := h.Execute(ctx, execCtx)
	if err != nil {
		p.log.Error("pipeline execute returned internal error", zap.Error(err))
		payload = systemErrorPayload()
	}

	url := h.CallbackURL(execCtx)
	if url == "" {
		p.log.Warn("pipeline resolved with no callback url to deliver to", zap.String("originator", h.OriginatorID(execCtx)))
		return
	}

	now := time.Now().UTC()
	logID := uuid.NewString()
	originator := h.OriginatorID(execCtx)
	cbLog := &models.CallbackLog{
		Id:           logID,
		OriginatorId: &originator,
		CallerURL:    url,
		Payload:      string(payload),
		Status:       models.CallbackPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := p.logs.InsertCallbackLog(ctx, cbLog); err != nil {
		p.log.Error("failed to persist callback log", zap.Error(err))
	}

	p.delivery.Deliver(ctx, callback.Request{CallbackLogID: logID, URL: url, Payload: payload})
}

func systemErrorPayload() []byte {
	body, _ := json.Marshal(map[string]any{
		"errorCode":    "500.001.01",
		"errorMessage": resultDesc(ResultSystemError),
	})
	return body
}

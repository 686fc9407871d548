package pipeline_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/OmentaElvis/pesa-playground-sub000/internal/events"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/feetable"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/ledger"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/models"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/pipeline"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/registry"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/store/sqlite"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/wire"

	"github.com/OmentaElvis/pesa-playground-sub000/internal/callback"
)

type harness struct {
	db       *sqlite.Store
	ledger   *ledger.Ledger
	registry *registry.Registry
	bus      *events.Bus
	pipe     *pipeline.Pipeline
	business *models.Business
	project  *models.Project
	user     *models.UserProfile

	mu       sync.Mutex
	received []byte
	gotCB    chan struct{}
}

func noSleep(ctx context.Context, d time.Duration) {}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.Open(ctx, sqlite.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	fees := feetable.New()
	if err := fees.SeedDefaults(); err != nil {
		t.Fatalf("seed fees: %v", err)
	}

	l := ledger.New(db, fees, nil)
	reg := registry.New()
	hub := events.NewHub()
	bus := events.NewBus(hub, nil)
	delivery := callback.New(db, nil).WithClock(noSleep)
	pipe := pipeline.New(delivery, db, nil)

	h := &harness{db: db, ledger: l, registry: reg, bus: bus, pipe: pipe, gotCB: make(chan struct{}, 1)}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		h.mu.Lock()
		h.received = body
		h.mu.Unlock()
		select {
		case h.gotCB <- struct{}{}:
		default:
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	utility, _ := db.CreateAccount(ctx, models.AccountUtility, 0)
	workingFunds, _ := db.CreateAccount(ctx, models.AccountWorkingFunds, 0)
	business, err := db.CreateBusiness(ctx, "Test Biz", "600000", utility.Id, workingFunds.Id)
	if err != nil {
		t.Fatalf("create business: %v", err)
	}
	h.business = business

	project := &models.Project{BusinessId: business.Id, Name: "default", CallbackURL: srv.URL, Mode: models.ModeRealistic}
	if err := db.CreateProject(ctx, project, &models.APICredential{ConsumerKey: "key", ConsumerSecret: "secret", Passkey: "pass"}); err != nil {
		t.Fatalf("create project: %v", err)
	}
	h.project = project

	userAcct, _ := db.CreateAccount(ctx, models.AccountUser, 2000000)
	user := &models.UserProfile{AccountId: userAcct.Id, DisplayName: "Jane Doe", Phone: "254712345678", PIN: "1234"}
	if err := db.CreateUser(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	h.user = user

	return h
}

func (h *harness) handler() *pipeline.STKPushHandler {
	return &pipeline.STKPushHandler{Store: h.db, Ledger: h.ledger, Registry: h.registry, Events: h.bus}
}

func (h *harness) initRequest(t *testing.T, amount string) pipeline.InitRequest {
	t.Helper()
	body, _ := json.Marshal(wire.STKPushRequest{
		BusinessShortCode: h.business.ShortCode,
		Amount:            amount,
		PartyA:            h.user.Phone,
		PartyB:            h.business.ShortCode,
		PhoneNumber:       h.user.Phone,
		CallBackURL:       h.project.CallbackURL,
	})
	return pipeline.InitRequest{Body: body, Project: h.project}
}

func (h *harness) waitCallback(t *testing.T, deadline time.Duration) wire.STKCallbackEnvelope {
	t.Helper()
	select {
	case <-h.gotCB:
	case <-time.After(deadline):
		t.Fatalf("timed out waiting for callback")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	var env wire.STKCallbackEnvelope
	if err := json.Unmarshal(h.received, &env); err != nil {
		t.Fatalf("unmarshal callback: %v", err)
	}
	return env
}

func TestSTKPush_HappyPath(t *testing.T) {
	h := newHarness(t)
	handler := h.handler()

	sync, execCtx, err := handler.Init(context.Background(), h.initRequest(t, "10.00"))
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	ack := sync.(wire.STKPushSyncResponse)
	if ack.ResponseCode != "0" {
		t.Fatalf("expected ack ResponseCode 0, got %s", ack.ResponseCode)
	}

	checkoutID := handler.OriginatorID(execCtx)

	go func() {
		time.Sleep(10 * time.Millisecond)
		h.registry.Resolve(checkoutID, registry.UserResponse{Kind: registry.Accepted, PIN: "1234"})
	}()

	payload, err := handler.Execute(context.Background(), execCtx)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var env wire.STKCallbackEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Body.StkCallback.ResultCode != pipeline.ResultSuccess {
		t.Fatalf("expected success, got %d: %s", env.Body.StkCallback.ResultCode, env.Body.StkCallback.ResultDesc)
	}
	if env.Body.StkCallback.CallbackMetadata == nil {
		t.Fatalf("expected callback metadata on success")
	}
}

func TestSTKPush_WrongPIN(t *testing.T) {
	h := newHarness(t)
	handler := h.handler()

	_, execCtx, err := handler.Init(context.Background(), h.initRequest(t, "10.00"))
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	checkoutID := handler.OriginatorID(execCtx)

	go func() {
		time.Sleep(10 * time.Millisecond)
		h.registry.Resolve(checkoutID, registry.UserResponse{Kind: registry.Accepted, PIN: "0000"})
	}()

	payload, err := handler.Execute(context.Background(), execCtx)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var env wire.STKCallbackEnvelope
	_ = json.Unmarshal(payload, &env)
	if env.Body.StkCallback.ResultCode != pipeline.ResultInitiatorInformationInvalid {
		t.Fatalf("expected 2001, got %d", env.Body.StkCallback.ResultCode)
	}

	userAcct, _ := h.db.GetAccount(context.Background(), h.user.AccountId)
	if userAcct.Balance != 2000000 {
		t.Fatalf("balance should be unchanged on wrong PIN")
	}
}

func TestSTKPush_Cancelled(t *testing.T) {
	h := newHarness(t)
	handler := h.handler()

	_, execCtx, err := handler.Init(context.Background(), h.initRequest(t, "10.00"))
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	checkoutID := handler.OriginatorID(execCtx)

	go func() {
		time.Sleep(10 * time.Millisecond)
		h.registry.Resolve(checkoutID, registry.UserResponse{Kind: registry.Cancelled})
	}()

	payload, err := handler.Execute(context.Background(), execCtx)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var env wire.STKCallbackEnvelope
	_ = json.Unmarshal(payload, &env)
	if env.Body.StkCallback.ResultCode != pipeline.ResultRequestCancelledByUser {
		t.Fatalf("expected 1032, got %d", env.Body.StkCallback.ResultCode)
	}
}

func TestSTKPush_Timeout(t *testing.T) {
	h := newHarness(t)
	handler := h.handler()
	handler.RegistryWaitTimeout = 20 * time.Millisecond

	_, execCtx, err := handler.Init(context.Background(), h.initRequest(t, "10.00"))
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	checkoutID := handler.OriginatorID(execCtx)

	payload, err := handler.Execute(context.Background(), execCtx)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var env wire.STKCallbackEnvelope
	_ = json.Unmarshal(payload, &env)
	if env.Body.StkCallback.ResultCode != pipeline.ResultDSTimeout {
		t.Fatalf("expected 1037, got %d", env.Body.StkCallback.ResultCode)
	}
	if h.registry.InFlight(checkoutID) {
		t.Fatalf("registry entry should be removed after timeout")
	}

	userAcct, _ := h.db.GetAccount(context.Background(), h.user.AccountId)
	if userAcct.Balance != 2000000 {
		t.Fatalf("balance should be unchanged on timeout")
	}
}

func TestSTKPush_AtMostOneInFlight(t *testing.T) {
	h := newHarness(t)
	handler := h.handler()

	_, execCtx, err := handler.Init(context.Background(), h.initRequest(t, "10.00"))
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	checkoutID := handler.OriginatorID(execCtx)

	done := make(chan struct{})
	go func() {
		_, _ = handler.Execute(context.Background(), execCtx)
		close(done)
	}()

	// Give Execute time to reach the registry.Register call before checking.
	deadline := time.After(time.Second)
	for !h.registry.InFlight(checkoutID) {
		select {
		case <-deadline:
			t.Fatalf("execute never registered the checkout id")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if _, err := h.registry.Register(checkoutID); err == nil {
		t.Fatalf("expected a concurrent register for the same checkout id to fail")
	}

	h.registry.Resolve(checkoutID, registry.UserResponse{Kind: registry.Cancelled})
	<-done
}

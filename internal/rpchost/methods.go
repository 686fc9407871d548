package rpchost

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/OmentaElvis/pesa-playground-sub000/internal/c2b"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/events"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/models"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/registry"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/security"
)

func decodeParams[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("invalid params: %w", err)
	}
	return v, nil
}

// --- sandbox lifecycle ---

type sandboxParams struct {
	ProjectID string `json:"projectId"`
}

func rpcStartSandbox(ctx context.Context, h *Handler, raw json.RawMessage) (any, error) {
	p, err := decodeParams[sandboxParams](raw)
	if err != nil {
		return nil, err
	}
	port, err := h.Sandbox.Start(ctx, p.ProjectID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"port": port}, nil
}

func rpcStopSandbox(ctx context.Context, h *Handler, raw json.RawMessage) (any, error) {
	p, err := decodeParams[sandboxParams](raw)
	if err != nil {
		return nil, err
	}
	if err := h.Sandbox.Stop(ctx, p.ProjectID, shutdownGrace); err != nil {
		return nil, err
	}
	return map[string]any{}, nil
}

func rpcListSandboxes(ctx context.Context, h *Handler, raw json.RawMessage) (any, error) {
	list := h.Sandbox.List()
	out := make([]map[string]any, 0, len(list))
	for _, info := range list {
		out = append(out, map[string]any{"projectId": info.ProjectID, "port": info.Port})
	}
	return map[string]any{"sandboxes": out}, nil
}

// --- entity provisioning ([ENTITY-CRUD]) ---

type createBusinessParams struct {
	Name              string `json:"name"`
	ShortCode         string `json:"shortCode"`
	InitiatorPassword string `json:"initiatorPassword"`
}

func rpcCreateBusiness(ctx context.Context, h *Handler, raw json.RawMessage) (any, error) {
	p, err := decodeParams[createBusinessParams](raw)
	if err != nil {
		return nil, err
	}
	if p.Name == "" || p.ShortCode == "" {
		return nil, fmt.Errorf("name and shortCode are required")
	}

	utility, err := h.Store.CreateAccount(ctx, models.AccountUtility, 0)
	if err != nil {
		return nil, fmt.Errorf("create utility account: %w", err)
	}
	workingFunds, err := h.Store.CreateAccount(ctx, models.AccountWorkingFunds, 0)
	if err != nil {
		return nil, fmt.Errorf("create working funds account: %w", err)
	}

	business, err := h.Store.CreateBusiness(ctx, p.Name, p.ShortCode, utility.Id, workingFunds.Id)
	if err != nil {
		return nil, fmt.Errorf("create business: %w", err)
	}

	privPEM, pubPEM, err := security.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generate security credential keypair: %w", err)
	}
	if err := h.Store.SetSecurityCredential(ctx, business.Id, privPEM, p.InitiatorPassword); err != nil {
		return nil, fmt.Errorf("set security credential: %w", err)
	}

	return map[string]any{
		"businessId":           business.Id,
		"utilityAccountId":     utility.Id,
		"workingFundsAccountId": workingFunds.Id,
		"securityPublicKey":    pubPEM,
	}, nil
}

type createProjectParams struct {
	BusinessID      string `json:"businessId"`
	Name            string `json:"name"`
	CallbackURL     string `json:"callbackUrl"`
	Mode            string `json:"mode"`
	UserPromptDelayMs int64  `json:"userPromptDelayMs"`
	ReceiptPrefix   string `json:"receiptPrefix"`
}

func rpcCreateProject(ctx context.Context, h *Handler, raw json.RawMessage) (any, error) {
	p, err := decodeParams[createProjectParams](raw)
	if err != nil {
		return nil, err
	}
	if p.BusinessID == "" || p.Name == "" {
		return nil, fmt.Errorf("businessId and name are required")
	}
	mode := models.SimulationMode(p.Mode)
	switch mode {
	case models.ModeAlwaysSuccess, models.ModeAlwaysFail, models.ModeRandom, models.ModeRealistic:
	default:
		return nil, fmt.Errorf("unknown mode %q", p.Mode)
	}

	project := &models.Project{
		BusinessId:      p.BusinessID,
		Name:            p.Name,
		CallbackURL:     p.CallbackURL,
		Mode:            mode,
		UserPromptDelay: durationMillis(p.UserPromptDelayMs),
		ReceiptPrefix:   p.ReceiptPrefix,
	}
	cred := &models.APICredential{
		ConsumerKey:    uuid.NewString(),
		ConsumerSecret: uuid.NewString(),
		Passkey:        uuid.NewString(),
	}
	if err := h.Store.CreateProject(ctx, project, cred); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}

	return map[string]any{
		"projectId":      project.Id,
		"consumerKey":    cred.ConsumerKey,
		"consumerSecret": cred.ConsumerSecret,
		"passkey":        cred.Passkey,
	}, nil
}

type createUserParams struct {
	DisplayName    string `json:"displayName"`
	Phone          string `json:"phone"`
	PIN            string `json:"pin"`
	SimIdentity    string `json:"simIdentity"`
	InitialBalance int64  `json:"initialBalance"`
}

func rpcCreateUser(ctx context.Context, h *Handler, raw json.RawMessage) (any, error) {
	p, err := decodeParams[createUserParams](raw)
	if err != nil {
		return nil, err
	}
	if p.Phone == "" || p.PIN == "" {
		return nil, fmt.Errorf("phone and pin are required")
	}

	account, err := h.Store.CreateAccount(ctx, models.AccountUser, p.InitialBalance)
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	user := &models.UserProfile{
		AccountId:   account.Id,
		DisplayName: p.DisplayName,
		Phone:       p.Phone,
		PIN:         p.PIN,
		SimIdentity: p.SimIdentity,
	}
	if err := h.Store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	h.Events.Dispatch(ctx, []events.DomainEvent{{
		Name: events.EventNewUser,
		Payload: map[string]any{
			"accountId":   account.Id,
			"displayName": user.DisplayName,
			"phone":       user.Phone,
		},
	}})
	return map[string]any{"accountId": account.Id}, nil
}

type createMerchantAccountParams struct {
	BusinessID  string `json:"businessId"`
	ShortNumber string `json:"shortNumber"`
	IsTill      bool   `json:"isTill"`
}

func rpcCreateMerchantAccount(ctx context.Context, h *Handler, raw json.RawMessage) (any, error) {
	p, err := decodeParams[createMerchantAccountParams](raw)
	if err != nil {
		return nil, err
	}
	if p.BusinessID == "" || p.ShortNumber == "" {
		return nil, fmt.Errorf("businessId and shortNumber are required")
	}

	kind := models.AccountPaybill
	if p.IsTill {
		kind = models.AccountTill
	}
	account, err := h.Store.CreateAccount(ctx, kind, 0)
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	if err := h.Store.CreatePaybillTill(ctx, account.Id, p.BusinessID, p.ShortNumber, p.IsTill); err != nil {
		return nil, fmt.Errorf("create paybill/till: %w", err)
	}

	return map[string]any{"accountId": account.Id}, nil
}

// --- checkout registry bridge ---

type resolveSTKPromptParams struct {
	CheckoutRequestID string `json:"checkoutRequestId"`
	Decision          string `json:"decision"`
	PIN               string `json:"pin"`
	Reason            string `json:"reason"`
}

func rpcResolveSTKPrompt(ctx context.Context, h *Handler, raw json.RawMessage) (any, error) {
	p, err := decodeParams[resolveSTKPromptParams](raw)
	if err != nil {
		return nil, err
	}

	var resp registry.UserResponse
	switch p.Decision {
	case "accepted":
		resp = registry.UserResponse{Kind: registry.Accepted, PIN: p.PIN}
	case "cancelled":
		resp = registry.UserResponse{Kind: registry.Cancelled}
	case "offline":
		resp = registry.UserResponse{Kind: registry.Offline}
	case "timeout":
		resp = registry.UserResponse{Kind: registry.Timeout}
	case "failed":
		resp = registry.UserResponse{Kind: registry.Failed, Reason: p.Reason}
	default:
		return nil, fmt.Errorf("unknown decision %q", p.Decision)
	}

	h.Registry.Resolve(p.CheckoutRequestID, resp)
	return map[string]any{}, nil
}

// --- core ledger operations ---

type transferParams struct {
	SourceAccountID      string `json:"sourceAccountId"`
	DestinationAccountID string `json:"destinationAccountId"`
	AmountMinor          int64  `json:"amountMinor"`
	Kind                 string `json:"kind"`
}

func rpcTransfer(ctx context.Context, h *Handler, raw json.RawMessage) (any, error) {
	p, err := decodeParams[transferParams](raw)
	if err != nil {
		return nil, err
	}
	tx, domEvts, err := h.Ledger.Transfer(ctx, p.SourceAccountID, p.DestinationAccountID, p.AmountMinor, models.TransactionKind(p.Kind), ledgerNotesFor(p.Kind))
	if err != nil {
		return nil, err
	}
	h.Events.Dispatch(ctx, domEvts)
	return map[string]any{"transactionId": tx.Id}, nil
}

type reverseParams struct {
	TransactionID string `json:"transactionId"`
}

func rpcReverse(ctx context.Context, h *Handler, raw json.RawMessage) (any, error) {
	p, err := decodeParams[reverseParams](raw)
	if err != nil {
		return nil, err
	}
	reversal, domEvts, err := h.Ledger.Reverse(ctx, p.TransactionID)
	if err != nil {
		return nil, err
	}
	h.Events.Dispatch(ctx, domEvts)
	return map[string]any{"reversalId": reversal.Id}, nil
}

type lipaParams struct {
	UserAccountID string `json:"userAccountId"`
	ShortCode     string `json:"shortCode"`
	IsTill        bool   `json:"isTill"`
	AmountMinor   int64  `json:"amountMinor"`
	BillRefNumber string `json:"billRefNumber"`
	Phone         string `json:"phone"`
}

func rpcLipa(ctx context.Context, h *Handler, raw json.RawMessage) (any, error) {
	p, err := decodeParams[lipaParams](raw)
	if err != nil {
		return nil, err
	}
	err = h.C2B.Pay(ctx, h.BgCtx, c2b.PayParams{
		UserAccountID: p.UserAccountID,
		ShortCode:     p.ShortCode,
		IsTill:        p.IsTill,
		AmountMinor:   p.AmountMinor,
		BillRefNumber: p.BillRefNumber,
		Phone:         p.Phone,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{}, nil
}

type settleParams struct {
	BusinessID string `json:"businessId"`
}

func rpcSettle(ctx context.Context, h *Handler, raw json.RawMessage) (any, error) {
	p, err := decodeParams[settleParams](raw)
	if err != nil {
		return nil, err
	}
	business, err := h.Store.GetBusiness(ctx, p.BusinessID)
	if err != nil {
		return nil, err
	}
	settlement, domEvts, err := h.Ledger.Settle(ctx, business)
	if err != nil {
		return nil, err
	}
	h.Events.Dispatch(ctx, domEvts)
	return map[string]any{"transactionId": settlement.Id}, nil
}

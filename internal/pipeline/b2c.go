package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/OmentaElvis/pesa-playground-sub000/internal/events"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/ledger"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/models"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/security"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/store"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/wire"
)

// B2CHandler implements Handler for POST /mpesa/b2c/v3/paymentrequest. Unlike
// STK-push, execute never suspends on the registry (§4.5's B2C specifics).
type B2CHandler struct {
	Store  store.Store
	Ledger *ledger.Ledger
	Events *events.Bus
	Log    *zap.Logger
}

type b2cExecContext struct {
	conversationID           string
	originatorConversationID string
	resultURL                string
	business                 *models.Business
	destination              *models.UserProfile
	amountMinor              int64
	mode                     models.SimulationMode
	commandID                string
}

func (h *B2CHandler) Init(ctx context.Context, req InitRequest) (any, any, error) {
	var wireReq wire.B2CRequest
	if err := json.Unmarshal(req.Body, &wireReq); err != nil {
		return nil, nil, fmt.Errorf("%w: malformed body", ErrInput)
	}

	business, err := h.Store.GetBusiness(ctx, req.Project.BusinessId)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: unknown business", ErrInput)
	}

	if req.Project.Mode == models.ModeRealistic {
		plain, err := security.DecryptCredential(business.SecurityCredentialKey, wireReq.SecurityCredential)
		if err != nil || plain != business.InitiatorPassword {
			return nil, nil, fmt.Errorf("%w: invalid security credential", ErrAuth)
		}
	}

	dest, err := h.Store.GetUserByPhone(ctx, wireReq.PartyB)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: unknown recipient", ErrInput)
	}

	amountDisplay, err := strconv.ParseFloat(wireReq.Amount, 64)
	if err != nil || amountDisplay <= 0 {
		return nil, nil, fmt.Errorf("%w: invalid amount", ErrInput)
	}

	conversationID := "AG_" + uuid.NewString()
	originatorConversationID := uuid.NewString()

	sync := wire.B2CSyncResponse{
		ConversationID:           conversationID,
		OriginatorConversationID: originatorConversationID,
		ResponseCode:             "0",
		ResponseDescription:     "Accept the service request successfully.",
	}
	ec := &b2cExecContext{
		conversationID:           conversationID,
		originatorConversationID: originatorConversationID,
		resultURL:                req.Project.CallbackURL,
		business:                 business,
		destination:              dest,
		amountMinor:              int64(amountDisplay*100 + 0.5),
		mode:                     req.Project.Mode,
		commandID:                wireReq.CommandID,
	}
	return sync, ec, nil
}

func (h *B2CHandler) CallbackURL(execCtx any) string {
	return execCtx.(*b2cExecContext).resultURL
}

func (h *B2CHandler) OriginatorID(execCtx any) string {
	return execCtx.(*b2cExecContext).originatorConversationID
}

func (h *B2CHandler) Execute(ctx context.Context, execCtx any) ([]byte, error) {
	ec := execCtx.(*b2cExecContext)

	switch ec.mode {
	case models.ModeAlwaysSuccess:
		return h.successPayload(ec, ledger.GenerateReceipt())
	case models.ModeAlwaysFail:
		return h.failurePayload(ec, randomFailureCode())
	case models.ModeRandom:
		if rand.Intn(2) == 0 {
			return h.successPayload(ec, ledger.GenerateReceipt())
		}
		return h.failurePayload(ec, randomFailureCode())
	}

	fee := h.Ledger.FeeFor(models.KindDisbursement, ec.amountMinor)
	tx, domEvts, err := h.Ledger.Transfer(ctx, ec.business.UtilityAccount, ec.destination.AccountId, ec.amountMinor, models.KindDisbursement, ledger.Notes{
		Notes: &models.TransactionNotes{B2C: &models.B2CNote{
			OriginatorConversationId: ec.originatorConversationID,
			CommandId:                ec.commandID,
		}},
	})
	if err != nil {
		switch {
		case err == ledger.ErrInsufficientFunds:
			return h.failurePayload(ec, ResultInsufficientBalance)
		case err == ledger.ErrAccountNotFound:
			return h.failurePayload(ec, ResultInitiatorInformationInvalid)
		default:
			return h.failurePayload(ec, ResultSystemError)
		}
	}
	h.Events.Dispatch(ctx, domEvts)

	// Business-bears-fee policy (§4.5): the fee is charged against the
	// charges counter, not debited from the utility account by Transfer.
	if fee > 0 {
		if err := h.Store.AdjustCharges(ctx, ec.business.Id, -fee); err != nil {
			h.Log.Error("failed to adjust business charges after disbursement", zap.Error(err))
		}
	}

	return h.successPayload(ec, tx.Id)
}

func (h *B2CHandler) successPayload(ec *b2cExecContext, receipt string) ([]byte, error) {
	env := wire.ResultEnvelope{Result: wire.Result{
		ResultType:               0,
		ResultCode:               ResultSuccess,
		ResultDesc:               resultDesc(ResultSuccess),
		OriginatorConversationID: ec.originatorConversationID,
		ConversationID:           ec.conversationID,
		TransactionID:            receipt,
		ResultParameters: &wire.ResultParameters{ResultParameter: []wire.ResultParameterItem{
			{Key: "TransactionAmount", Value: float64(ec.amountMinor) / 100},
			{Key: "TransactionReceipt", Value: receipt},
			{Key: "TransactionCompletedDateTime", Value: time.Now().UTC().Format("02.01.2006 15:04:05")},
			{Key: "ReceiverPartyPublicName", Value: ec.destination.DisplayName},
		}},
		ReferenceData: wire.ReferenceData{ReferenceItem: wire.ReferenceItem{Key: "QueueTimeoutURL", Value: ec.resultURL}},
	}}
	return json.Marshal(env)
}

func (h *B2CHandler) failurePayload(ec *b2cExecContext, code int) ([]byte, error) {
	env := wire.ResultEnvelope{Result: wire.Result{
		ResultType:               1,
		ResultCode:               code,
		ResultDesc:               resultDesc(code),
		OriginatorConversationID: ec.originatorConversationID,
		ConversationID:           ec.conversationID,
		ReferenceData:            wire.ReferenceData{ReferenceItem: wire.ReferenceItem{Key: "QueueTimeoutURL", Value: ec.resultURL}},
	}}
	return json.Marshal(env)
}

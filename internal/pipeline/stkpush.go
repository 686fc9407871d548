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
	"github.com/OmentaElvis/pesa-playground-sub000/internal/registry"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/store"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/wire"
)

// defaultRegistryWaitDeadline is used when a handler is constructed without
// an explicit RegistryWaitTimeout (§5: 30s).
const defaultRegistryWaitDeadline = 30 * time.Second

// STKPushHandler implements Handler for POST /mpesa/stkpush/v1/processrequest.
type STKPushHandler struct {
	Store    store.Store
	Ledger   *ledger.Ledger
	Registry *registry.Registry
	Events   *events.Bus
	Log      *zap.Logger

	// RegistryWaitTimeout overrides the registry await deadline (§5); zero
	// value falls back to defaultRegistryWaitDeadline.
	RegistryWaitTimeout time.Duration
}

func (h *STKPushHandler) registryWaitTimeout() time.Duration {
	if h.RegistryWaitTimeout > 0 {
		return h.RegistryWaitTimeout
	}
	return defaultRegistryWaitDeadline
}

type stkExecContext struct {
	merchantRequestID string
	checkoutRequestID string
	callbackURL       string
	businessShortCode string
	amountMinor       int64
	user              *models.UserProfile
	business          *models.Business
	mode              models.SimulationMode
}

func (h *STKPushHandler) Init(ctx context.Context, req InitRequest) (any, any, error) {
	var wireReq wire.STKPushRequest
	if err := json.Unmarshal(req.Body, &wireReq); err != nil {
		return nil, nil, fmt.Errorf("%w: malformed body", ErrInput)
	}

	business, err := h.Store.GetBusinessByShortCode(ctx, wireReq.BusinessShortCode)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: unknown business shortcode", ErrInput)
	}

	amountDisplay, err := strconv.ParseFloat(wireReq.Amount, 64)
	if err != nil || amountDisplay <= 0 {
		return nil, nil, fmt.Errorf("%w: invalid amount", ErrInput)
	}
	amountMinor := int64(amountDisplay*100 + 0.5)

	user, err := h.Store.GetUserByPhone(ctx, wireReq.PhoneNumber)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: invalid phone number", ErrInput)
	}

	merchantRequestID := uuid.NewString()
	checkoutRequestID := "ws_CO_" + uuid.NewString()

	sync := wire.STKPushSyncResponse{
		MerchantRequestID:   merchantRequestID,
		CheckoutRequestID:   checkoutRequestID,
		ResponseCode:        "0",
		ResponseDescription: "Success. Request accepted for processing",
		CustomerMessage:     "Success. Request accepted for processing",
	}

	ec := &stkExecContext{
		merchantRequestID: merchantRequestID,
		checkoutRequestID: checkoutRequestID,
		callbackURL:       req.Project.CallbackURL,
		businessShortCode: wireReq.BusinessShortCode,
		amountMinor:       amountMinor,
		user:              user,
		business:          business,
		mode:              req.Project.Mode,
	}
	return sync, ec, nil
}

func (h *STKPushHandler) CallbackURL(execCtx any) string {
	return execCtx.(*stkExecContext).callbackURL
}

func (h *STKPushHandler) OriginatorID(execCtx any) string {
	return execCtx.(*stkExecContext).checkoutRequestID
}

func (h *STKPushHandler) Execute(ctx context.Context, execCtx any) ([]byte, error) {
	ec := execCtx.(*stkExecContext)

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

	return h.realistic(ctx, ec)
}

func (h *STKPushHandler) realistic(ctx context.Context, ec *stkExecContext) ([]byte, error) {
	account, err := h.Store.GetAccount(ctx, ec.user.AccountId)
	if err != nil {
		if h.Log != nil {
			h.Log.Warn("stk push: failed to load user account", zap.Error(err))
		}
		return h.failurePayload(ec, ResultDSTimeout)
	}
	if account.Disabled {
		return h.failurePayload(ec, ResultDSTimeout)
	}

	waitHandle, err := h.Registry.Register(ec.checkoutRequestID)
	if err != nil {
		return h.failurePayload(ec, ResultUnableToLockSubscriber)
	}

	h.Events.Dispatch(ctx, []events.DomainEvent{{
		Name: events.EventSTKPush,
		Payload: map[string]any{
			"checkoutRequestId": ec.checkoutRequestID,
			"phoneNumber":       ec.user.Phone,
			"amount":            ec.amountMinor,
			"businessShortCode": ec.businessShortCode,
		},
	}})

	waitCtx, cancel := context.WithTimeout(ctx, h.registryWaitTimeout())
	defer cancel()
	resp, err := waitHandle.Recv(waitCtx)
	if err != nil {
		h.Registry.Expire(ec.checkoutRequestID)
		return h.failurePayload(ec, ResultDSTimeout)
	}

	switch resp.Kind {
	case registry.Cancelled:
		return h.failurePayload(ec, ResultRequestCancelledByUser)
	case registry.Offline, registry.Timeout:
		return h.failurePayload(ec, ResultDSTimeout)
	case registry.Failed:
		return h.failurePayload(ec, ResultSystemError)
	}

	if resp.PIN != ec.user.PIN {
		return h.failurePayload(ec, ResultInitiatorInformationInvalid)
	}

	tx, domEvts, err := h.Ledger.Transfer(ctx, ec.user.AccountId, ec.business.UtilityAccount, ec.amountMinor, models.KindSendMoney, ledger.Notes{
		Notes: &models.TransactionNotes{STKPush: &models.STKPushNote{CheckoutRequestId: ec.checkoutRequestID}},
	})
	if err != nil {
		switch {
		case err == ledger.ErrInsufficientFunds:
			return h.failurePayload(ec, ResultInsufficientBalance)
		case err == ledger.ErrAccountNotFound:
			return h.failurePayload(ec, ResultDSTimeout)
		default:
			return h.failurePayload(ec, ResultSystemError)
		}
	}
	h.Events.Dispatch(ctx, domEvts)

	return h.successPayload(ec, tx.Id)
}

func (h *STKPushHandler) successPayload(ec *stkExecContext, receipt string) ([]byte, error) {
	now := time.Now().UTC()
	env := wire.STKCallbackEnvelope{}
	env.Body.StkCallback = wire.STKCallback{
		MerchantRequestID: ec.merchantRequestID,
		CheckoutRequestID: ec.checkoutRequestID,
		ResultCode:        ResultSuccess,
		ResultDesc:        resultDesc(ResultSuccess),
		CallbackMetadata: &wire.CallbackMetadata{
			Item: []wire.CallbackMetadataItem{
				{Name: "Amount", Value: float64(ec.amountMinor) / 100},
				{Name: "MpesaReceiptNumber", Value: receipt},
				{Name: "TransactionDate", Value: now.Format("20060102150405")},
				{Name: "PhoneNumber", Value: ec.user.Phone},
			},
		},
	}
	return json.Marshal(env)
}

func (h *STKPushHandler) failurePayload(ec *stkExecContext, code int) ([]byte, error) {
	env := wire.STKCallbackEnvelope{}
	env.Body.StkCallback = wire.STKCallback{
		MerchantRequestID: ec.merchantRequestID,
		CheckoutRequestID: ec.checkoutRequestID,
		ResultCode:        code,
		ResultDesc:        resultDesc(code),
	}
	return json.Marshal(env)
}

func randomFailureCode() int {
	codes := []int{ResultInsufficientBalance, ResultRequestCancelledByUser, ResultDSTimeout, ResultInitiatorInformationInvalid}
	return codes[rand.Intn(len(codes))]
}

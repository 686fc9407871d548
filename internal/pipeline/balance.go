package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/OmentaElvis/pesa-playground-sub000/internal/models"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/security"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/store"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/wire"
)

// BalanceHandler implements Handler for POST /mpesa/accountbalance/v1/query.
// Execute never suspends and never mutates (§4.5's balance-query specifics).
type BalanceHandler struct {
	Store store.Store
	Log   *zap.Logger
}

type balanceExecContext struct {
	conversationID           string
	originatorConversationID string
	resultURL                string
	business                 *models.Business
	mode                     models.SimulationMode
}

func (h *BalanceHandler) Init(ctx context.Context, req InitRequest) (any, any, error) {
	var wireReq wire.BalanceRequest
	if err := json.Unmarshal(req.Body, &wireReq); err != nil {
		return nil, nil, fmt.Errorf("%w: malformed body", ErrInput)
	}

	business, err := h.Store.GetBusinessByShortCode(ctx, wireReq.PartyA)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: unknown shortcode", ErrInput)
	}

	if req.Project.Mode == models.ModeRealistic {
		plain, err := security.DecryptCredential(business.SecurityCredentialKey, wireReq.SecurityCredential)
		if err != nil || plain != business.InitiatorPassword {
			return nil, nil, fmt.Errorf("%w: invalid security credential", ErrAuth)
		}
	}

	conversationID := "AG_" + uuid.NewString()
	originatorConversationID := uuid.NewString()

	sync := wire.BalanceSyncResponse{
		ConversationID:           conversationID,
		OriginatorConversationID: originatorConversationID,
		ResponseCode:             "0",
		ResponseDescription:      "Accept the service request successfully.",
	}
	ec := &balanceExecContext{
		conversationID:           conversationID,
		originatorConversationID: originatorConversationID,
		resultURL:                req.Project.CallbackURL,
		business:                 business,
		mode:                     req.Project.Mode,
	}
	return sync, ec, nil
}

func (h *BalanceHandler) CallbackURL(execCtx any) string {
	return execCtx.(*balanceExecContext).resultURL
}

func (h *BalanceHandler) OriginatorID(execCtx any) string {
	return execCtx.(*balanceExecContext).originatorConversationID
}

func (h *BalanceHandler) Execute(ctx context.Context, execCtx any) ([]byte, error) {
	ec := execCtx.(*balanceExecContext)

	utility, err := h.Store.GetAccount(ctx, ec.business.UtilityAccount)
	if err != nil {
		if h.Log != nil {
			h.Log.Error("balance query: failed to load utility account", zap.Error(err))
		}
		return h.failurePayload(ec, ResultSystemError), nil
	}
	workingFunds, err := h.Store.GetAccount(ctx, ec.business.WorkingFunds)
	if err != nil {
		if h.Log != nil {
			h.Log.Error("balance query: failed to load working funds account", zap.Error(err))
		}
		return h.failurePayload(ec, ResultSystemError), nil
	}

	chargesPaid := -ec.business.ChargesAmount
	if chargesPaid < 0 {
		chargesPaid = 0
	}

	balanceStr := fmt.Sprintf(
		"Utility Account|KES|%.2f|%.2f|0.00|0.00&Working Account|KES|%.2f|%.2f|0.00|0.00&Charges Paid Account|KES|%.2f|%.2f|0.00|0.00",
		float64(utility.Balance)/100, float64(utility.Balance)/100,
		float64(workingFunds.Balance)/100, float64(workingFunds.Balance)/100,
		float64(chargesPaid)/100, float64(chargesPaid)/100,
	)

	env := wire.ResultEnvelope{Result: wire.Result{
		ResultType:               0,
		ResultCode:               ResultSuccess,
		ResultDesc:               resultDesc(ResultSuccess),
		OriginatorConversationID: ec.originatorConversationID,
		ConversationID:           ec.conversationID,
		ResultParameters: &wire.ResultParameters{ResultParameter: []wire.ResultParameterItem{
			{Key: "AccountBalance", Value: balanceStr},
		}},
		ReferenceData: wire.ReferenceData{ReferenceItem: wire.ReferenceItem{Key: "QueueTimeoutURL", Value: ec.resultURL}},
	}}
	body, _ := json.Marshal(env)
	return body, nil
}

func (h *BalanceHandler) failurePayload(ec *balanceExecContext, code int) []byte {
	env := wire.ResultEnvelope{Result: wire.Result{
		ResultType:               1,
		ResultCode:               code,
		ResultDesc:               resultDesc(code),
		OriginatorConversationID: ec.originatorConversationID,
		ConversationID:           ec.conversationID,
	}}
	body, _ := json.Marshal(env)
	return body
}

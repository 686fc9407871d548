package c2b

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/OmentaElvis/pesa-playground-sub000/internal/events"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/ledger"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/models"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/store"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/wire"
)

// defaultOutboundTimeout bounds the validation/confirmation round trips
// (§5: 8s) when a Flow is built without WithOutboundTimeout.
const defaultOutboundTimeout = 8 * time.Second

var ErrMerchantRejected = errors.New("merchant validation rejected the payment")

// Flow drives the two-stage validation → confirmation outbound exchange
// described in §4.7, wrapping a single ledger transfer.
type Flow struct {
	Store           store.Store
	Ledger          *ledger.Ledger
	Events          *events.Bus
	Client          *http.Client
	Log             *zap.Logger
	outboundTimeout time.Duration
}

func New(st store.Store, l *ledger.Ledger, bus *events.Bus, log *zap.Logger) *Flow {
	if log == nil {
		log = zap.L()
	}
	return &Flow{
		Store: st, Ledger: l, Events: bus,
		Client:          &http.Client{Timeout: defaultOutboundTimeout},
		Log:             log,
		outboundTimeout: defaultOutboundTimeout,
	}
}

// WithOutboundTimeout overrides the validation/confirmation deadline,
// layering internal/config's OUTBOUND_TIMEOUT knob over the §5 default.
func (f *Flow) WithOutboundTimeout(d time.Duration) *Flow {
	if d > 0 {
		f.outboundTimeout = d
		f.Client.Timeout = d
	}
	return f
}

// PayParams describes a host/test-harness-originated "customer pays
// merchant" request (§4.7's opening paragraph).
type PayParams struct {
	UserAccountID string
	ShortCode     string
	IsTill        bool
	AmountMinor   int64
	BillRefNumber string
	Phone         string
}

// Pay resolves accounts, pre-checks funds, then spawns the background task
// and returns immediately — callers never await the outbound round trips.
func (f *Flow) Pay(ctx context.Context, bgCtx context.Context, p PayParams) error {
	userAccount, err := f.Store.GetAccount(ctx, p.UserAccountID)
	if err != nil {
		return err
	}
	record, err := f.Store.GetPaybillOrTill(ctx, p.ShortCode, p.IsTill)
	if err != nil {
		return err
	}
	business, err := f.Store.GetBusiness(ctx, record.BusinessId)
	if err != nil {
		return err
	}

	kind := models.KindPaybill
	if p.IsTill {
		kind = models.KindBuyGoods
	}
	fee := f.Ledger.FeeFor(kind, p.AmountMinor)
	if userAccount.Balance < p.AmountMinor+fee {
		return ledger.ErrInsufficientFunds
	}

	go f.run(bgCtx, p, record, business, kind)
	return nil
}

func (f *Flow) run(ctx context.Context, p PayParams, record *store.PaybillTillRecord, business *models.Business, kind models.TransactionKind) {
	transientID := ledger.GenerateReceipt()
	now := time.Now().UTC()

	utility, err := f.Store.GetAccount(ctx, business.UtilityAccount)
	if err != nil {
		f.Log.Error("c2b outbound: failed to load utility account", zap.Error(err))
		return
	}

	var thirdPartyTransID string
	if record.ValidationURL != "" {
		accepted, tpid := f.validate(ctx, record, p, transientID, utility.Balance, now)
		thirdPartyTransID = tpid
		if !accepted {
			f.recordFailed(ctx, p, kind)
			return
		}
	}

	var notes *models.TransactionNotes
	if p.IsTill {
		notes = &models.TransactionNotes{TillPayment: &models.TillPaymentNote{TillNumber: record.ShortNumber}}
	} else {
		notes = &models.TransactionNotes{PaybillPayment: &models.PaybillPaymentNote{PaybillNumber: record.ShortNumber, BillRefNumber: p.BillRefNumber}}
	}

	tx, domEvts, err := f.Ledger.Transfer(ctx, p.UserAccountID, business.UtilityAccount, p.AmountMinor, kind, ledger.Notes{Notes: notes})
	if err != nil {
		f.Log.Error("c2b outbound: ledger transfer failed", zap.Error(err))
		return
	}
	f.Events.Dispatch(ctx, domEvts)

	if record.ConfirmationURL != "" {
		f.confirm(ctx, record, p, tx, thirdPartyTransID, now)
	}
}

func (f *Flow) validate(ctx context.Context, record *store.PaybillTillRecord, p PayParams, transientID string, orgBalance int64, now time.Time) (accepted bool, thirdPartyTransID string) {
	req := wire.ValidationRequest{
		TransactionType:   "Pay Bill",
		TransID:           transientID,
		TransTime:         now.Format("20060102150405"),
		TransAmount:       fmt.Sprintf("%.2f", float64(p.AmountMinor)/100),
		BusinessShortCode: record.ShortNumber,
		BillRefNumber:     p.BillRefNumber,
		OrgAccountBalance: fmt.Sprintf("%.2f", float64(orgBalance)/100),
		MSISDN:            MaskMSISDN(p.Phone),
	}
	body, _ := json.Marshal(req)

	valCtx, cancel := context.WithTimeout(ctx, f.outboundTimeout)
	defer cancel()

	resp, err := f.post(valCtx, record.ValidationURL, body)
	if err != nil {
		return true, "" // timeout/transport error: proceed unless merchant opted into Cancelled (not modeled without ResponseType persisted per-record; default proceed)
	}
	defer resp.Body.Close()

	var vr wire.ValidationResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return true, ""
	}
	if vr.ResultCode != 0 {
		return false, ""
	}
	return true, vr.ThirdPartyTransID
}

func (f *Flow) confirm(ctx context.Context, record *store.PaybillTillRecord, p PayParams, tx *models.Transaction, thirdPartyTransID string, now time.Time) {
	req := wire.ConfirmationRequest{
		TransactionType:   "Pay Bill",
		TransID:           tx.Id,
		TransTime:         now.Format("20060102150405"),
		TransAmount:       fmt.Sprintf("%.2f", float64(p.AmountMinor)/100),
		BusinessShortCode: record.ShortNumber,
		BillRefNumber:     p.BillRefNumber,
		MSISDN:            MaskMSISDN(p.Phone),
		ThirdPartyTransID: thirdPartyTransID,
	}
	body, _ := json.Marshal(req)

	confCtx, cancel := context.WithTimeout(ctx, f.outboundTimeout)
	defer cancel()

	resp, err := f.post(confCtx, record.ConfirmationURL, body)
	if err != nil {
		f.Log.Warn("c2b confirmation delivery failed", zap.Error(err))
		return
	}
	resp.Body.Close()
}

func (f *Flow) post(ctx context.Context, url string, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return f.Client.Do(httpReq)
}

// recordFailed writes the Failed transaction log row §7's "User-visible
// failure" calls for: a validation rejection never touches balances, but a
// downstream UI still needs a row to render "attempted" history from.
func (f *Flow) recordFailed(ctx context.Context, p PayParams, kind models.TransactionKind) {
	account, err := f.Store.GetAccount(ctx, p.UserAccountID)
	if err != nil {
		return
	}
	tx := &models.Transaction{
		Id:            ledger.GenerateReceipt(),
		DestinationId: p.UserAccountID,
		Amount:        p.AmountMinor,
		Currency:      "KES",
		Kind:          kind,
		Status:        models.StatusFailed,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	if err := f.Store.InsertTransaction(ctx, tx); err != nil {
		f.Log.Error("failed to record failed c2b transaction", zap.Error(err))
		return
	}
	if err := f.Store.InsertLogEntry(ctx, &models.TransactionLogEntry{
		TransactionId:    tx.Id,
		AccountId:        p.UserAccountID,
		Direction:        models.DirectionOutflow,
		ResultingBalance: account.Balance,
	}); err != nil {
		f.Log.Error("failed to record failed c2b log entry", zap.Error(err))
	}
}

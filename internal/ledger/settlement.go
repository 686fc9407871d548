package ledger

import (
	"context"
	"time"

	"github.com/OmentaElvis/pesa-playground-sub000/internal/events"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/models"
)

// Settle implements the periodic settlement sweep named in the GLOSSARY and
// resolved by SPEC_FULL.md's Open Question #2: pay down a negative charges
// counter from WorkingFunds (clamped to zero, never going further negative),
// then sweep the remaining Utility balance into WorkingFunds. Both legs are
// recorded as a single audit Transaction of kind Settlement so a downstream
// UI can show the sweep without inferring it from balance deltas.
func (l *Ledger) Settle(ctx context.Context, business *models.Business) (*models.Transaction, []events.DomainEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var (
		settlement *models.Transaction
		domEvts    []events.DomainEvent
	)

	err := l.store.WithinTransaction(ctx, func(ctx context.Context) error {
		utility, err := l.store.GetAccount(ctx, business.UtilityAccount)
		if err != nil {
			return err
		}
		workingFunds, err := l.store.GetAccount(ctx, business.WorkingFunds)
		if err != nil {
			return err
		}

		shortfall := int64(0)
		if business.ChargesAmount < 0 {
			owed := -business.ChargesAmount
			payable := owed
			if payable > workingFunds.Balance {
				shortfall = payable - workingFunds.Balance
				payable = workingFunds.Balance
			}
			if payable > 0 {
				newWF := workingFunds.Balance - payable
				if err := l.store.UpdateBalance(ctx, workingFunds.Id, newWF); err != nil {
					return err
				}
				workingFunds.Balance = newWF
			}
		}
		if err := l.store.ResetCharges(ctx, business.Id); err != nil {
			return err
		}

		sweepAmount := utility.Balance
		if sweepAmount > 0 {
			if err := l.store.UpdateBalance(ctx, utility.Id, 0); err != nil {
				return err
			}
			newWF := workingFunds.Balance + sweepAmount
			if err := l.store.UpdateBalance(ctx, workingFunds.Id, newWF); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		notes := &models.TransactionNotes{}
		if shortfall > 0 {
			notes.B2C = &models.B2CNote{CommandId: "SettlementShortfall"}
		}
		settlement = &models.Transaction{
			Id:            GenerateReceipt(),
			SourceId:      &utility.Id,
			DestinationId: workingFunds.Id,
			Amount:        sweepAmount,
			Currency:      "KES",
			Kind:          models.KindSettlement,
			Status:        models.StatusCompleted,
			Notes:         notes,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		return l.store.InsertTransaction(ctx, settlement)
	})
	if err != nil {
		return nil, nil, err
	}
	return settlement, domEvts, nil
}

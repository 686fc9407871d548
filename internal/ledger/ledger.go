// Package ledger implements the double-entry transactional core (C2): atomic
// multi-account transfers, fee assessment, and reversal, all serialized by a
// single process-wide mutex (§5: "correctness over throughput").
package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/OmentaElvis/pesa-playground-sub000/internal/events"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/feetable"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/models"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/store"
)

// Ledger owns the global ledger lock (§5) plus the store and fee table it
// drives. It is one of the four pieces of process-wide mutable state named
// in the design notes (§9); callers obtain it from the application context,
// never from a package-level global.
type Ledger struct {
	mu    sync.Mutex
	store store.LedgerStore
	fees  *feetable.Table
	log   *zap.Logger
}

func New(s store.LedgerStore, fees *feetable.Table, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.L()
	}
	return &Ledger{store: s, fees: fees, log: log}
}

// Notes bundles the optional structured annotation plus currency tag for a
// transfer; zero value is fine for transfers that carry neither.
type Notes struct {
	Currency string
	Notes    *models.TransactionNotes
}

// Transfer implements §4.2's eleven-step algorithm. sourceID == "" means the
// movement originates at the system boundary (deposit); destinationID is
// always required.
func (l *Ledger) Transfer(ctx context.Context, sourceID, destinationID string, amount int64, kind models.TransactionKind, n Notes) (*models.Transaction, []events.DomainEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var (
		tx      *models.Transaction
		domEvts []events.DomainEvent
	)

	err := l.store.WithinTransaction(ctx, func(ctx context.Context) error {
		var source *models.Account
		if sourceID != "" {
			var err error
			source, err = l.store.GetAccount(ctx, sourceID)
			if err != nil {
				if errors.Is(err, store.ErrAccountNotFound) {
					return ErrAccountNotFound
				}
				return err
			}
		}

		destination, err := l.store.GetAccount(ctx, destinationID)
		if err != nil {
			if errors.Is(err, store.ErrAccountNotFound) {
				return ErrAccountNotFound
			}
			return err
		}

		if source != nil && source.Id == destination.Id {
			return ErrSelfTransact
		}

		fee := l.fees.Fee(kind, amount)

		// Disbursement fees are booked against the business charges counter
		// (see internal/pipeline's B2C handler), not debited from source.
		sourceDebit := amount
		if kind != models.KindDisbursement {
			sourceDebit = amount + fee
		}

		sourceIsSystemBoundary := source == nil || source.IsSystem()

		if source != nil && !sourceIsSystemBoundary {
			if source.Balance < sourceDebit {
				return ErrInsufficientFunds
			}
		}

		now := time.Now().UTC()
		receipt := GenerateReceipt()

		var sourceIDPtr *string
		if source != nil {
			id := source.Id
			sourceIDPtr = &id
		}

		tx = &models.Transaction{
			Id:            receipt,
			SourceId:      sourceIDPtr,
			DestinationId: destination.Id,
			Amount:        amount,
			Fee:           fee,
			Currency:      defaultCurrency(n.Currency),
			Kind:          kind,
			Status:        models.StatusCompleted,
			Notes:         n.Notes,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		if source != nil && !sourceIsSystemBoundary {
			newSourceBalance := source.Balance - sourceDebit
			if err := l.store.UpdateBalance(ctx, source.Id, newSourceBalance); err != nil {
				return err
			}
			if err := l.store.InsertLogEntry(ctx, &models.TransactionLogEntry{
				TransactionId:    tx.Id,
				AccountId:        source.Id,
				Direction:        models.DirectionOutflow,
				ResultingBalance: newSourceBalance,
			}); err != nil {
				return err
			}
			source.Balance = newSourceBalance
		}

		newDestBalance := destination.Balance + amount
		if err := l.store.UpdateBalance(ctx, destination.Id, newDestBalance); err != nil {
			return err
		}
		if err := l.store.InsertLogEntry(ctx, &models.TransactionLogEntry{
			TransactionId:    tx.Id,
			AccountId:        destination.Id,
			Direction:        models.DirectionInflow,
			ResultingBalance: newDestBalance,
		}); err != nil {
			return err
		}

		if err := l.store.InsertTransaction(ctx, tx); err != nil {
			return err
		}

		domEvts = append(domEvts, events.NewTransactionCreated(events.TransactionCreated{
			TransactionId:    tx.Id,
			DestinationName:  destination.Id,
			Amount:           amount,
			Fee:              fee,
			Direction:        string(models.DirectionInflow),
			ResultingBalance: newDestBalance,
			Notes:            n.Notes,
		}))
		if source != nil && !sourceIsSystemBoundary {
			domEvts = append(domEvts, events.NewTransactionCreated(events.TransactionCreated{
				TransactionId:    tx.Id,
				SourceName:       source.Id,
				DestinationName:  destination.Id,
				Amount:           amount,
				Fee:              fee,
				Direction:        string(models.DirectionOutflow),
				ResultingBalance: source.Balance,
				Notes:            n.Notes,
			}))
		}

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	l.log.Debug("ledger transfer completed",
		zap.String("receipt", tx.Id), zap.Int64("amount", amount), zap.Int64("fee", tx.Fee), zap.String("kind", string(kind)))

	return tx, domEvts, nil
}

// Reverse implements §4.2's reversal algorithm, producing a fresh Reversal
// transaction rather than mutating the original's monetary fields.
func (l *Ledger) Reverse(ctx context.Context, transactionID string) (*models.Transaction, []events.DomainEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var (
		reversal *models.Transaction
		domEvts  []events.DomainEvent
	)

	err := l.store.WithinTransaction(ctx, func(ctx context.Context) error {
		original, err := l.store.GetTransaction(ctx, transactionID)
		if err != nil {
			if errors.Is(err, store.ErrTransactionNotFound) {
				return ErrTransactionNotFound
			}
			return err
		}
		if original.Status == models.StatusReversed {
			return ErrAlreadyReversed
		}

		destination, err := l.store.GetAccount(ctx, original.DestinationId)
		if err != nil {
			if errors.Is(err, store.ErrAccountNotFound) {
				return ErrAccountNotFound
			}
			return err
		}
		if destination.Balance < original.Amount {
			return ErrInsufficientFunds
		}

		now := time.Now().UTC()
		newDestBalance := destination.Balance - original.Amount
		if err := l.store.UpdateBalance(ctx, destination.Id, newDestBalance); err != nil {
			return err
		}
		if err := l.store.InsertLogEntry(ctx, &models.TransactionLogEntry{
			TransactionId:    transactionID,
			AccountId:        destination.Id,
			Direction:        models.DirectionOutflow,
			ResultingBalance: newDestBalance,
		}); err != nil {
			return err
		}

		var newSourceId *string
		var newSourceBalance int64
		if original.SourceId != nil {
			source, err := l.store.GetAccount(ctx, *original.SourceId)
			if err != nil {
				if errors.Is(err, store.ErrAccountNotFound) {
					return ErrAccountNotFound
				}
				return err
			}
			newSourceBalance = source.Balance + original.Amount
			if err := l.store.UpdateBalance(ctx, source.Id, newSourceBalance); err != nil {
				return err
			}
			if err := l.store.InsertLogEntry(ctx, &models.TransactionLogEntry{
				TransactionId:    transactionID,
				AccountId:        source.Id,
				Direction:        models.DirectionInflow,
				ResultingBalance: newSourceBalance,
			}); err != nil {
				return err
			}
			id := source.Id
			newSourceId = &id
		}

		if err := l.store.UpdateTransactionStatus(ctx, transactionID, models.StatusReversed, now); err != nil {
			return err
		}

		reversal = &models.Transaction{
			Id:            GenerateReceipt(),
			SourceId:      &destination.Id,
			DestinationId: original.DestinationId,
			Amount:        original.Amount,
			Currency:      original.Currency,
			Kind:          models.KindReversal,
			Status:        models.StatusCompleted,
			ReversalOf:    &original.Id,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if newSourceId != nil {
			reversal.DestinationId = *newSourceId
			reversal.SourceId = &destination.Id
		}
		if err := l.store.InsertTransaction(ctx, reversal); err != nil {
			return err
		}

		domEvts = append(domEvts, events.NewTransactionCreated(events.TransactionCreated{
			TransactionId:    reversal.Id,
			DestinationName:  reversal.DestinationId,
			Amount:           reversal.Amount,
			Direction:        string(models.DirectionInflow),
			ResultingBalance: newSourceBalance,
		}))
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	l.log.Debug("ledger reversal completed", zap.String("reversal_receipt", reversal.Id), zap.String("original", transactionID))
	return reversal, domEvts, nil
}

// FeeFor exposes the fee table lookup to callers that must book a fee
// outside Transfer's own debit (the B2C handler's business-bears-fee path).
func (l *Ledger) FeeFor(kind models.TransactionKind, amount int64) int64 {
	return l.fees.Fee(kind, amount)
}

func defaultCurrency(c string) string {
	if c == "" {
		return "KES"
	}
	return c
}

package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/OmentaElvis/pesa-playground-sub000/internal/feetable"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/ledger"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/models"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/store/sqlite"
)

func setupLedger(t *testing.T) (*ledger.Ledger, *sqlite.Store) {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Open(ctx, sqlite.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	fees := feetable.New()
	if err := fees.SeedDefaults(); err != nil {
		t.Fatalf("seed fees: %v", err)
	}

	return ledger.New(db, fees, nil), db
}

func TestTransfer_HappyPath_ConservesFunds(t *testing.T) {
	l, db := setupLedger(t)
	ctx := context.Background()

	source, err := db.CreateAccount(ctx, models.AccountUser, 2000000)
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	dest, err := db.CreateAccount(ctx, models.AccountUtility, 0)
	if err != nil {
		t.Fatalf("create dest: %v", err)
	}

	tx, evts, err := l.Transfer(ctx, source.Id, dest.Id, 1000, models.KindSendMoney, ledger.Notes{})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if tx.Status != models.StatusCompleted {
		t.Fatalf("expected completed, got %s", tx.Status)
	}
	if len(evts) != 2 {
		t.Fatalf("expected 2 domain events, got %d", len(evts))
	}

	srcAfter, err := db.GetAccount(ctx, source.Id)
	if err != nil {
		t.Fatalf("get source: %v", err)
	}
	dstAfter, err := db.GetAccount(ctx, dest.Id)
	if err != nil {
		t.Fatalf("get dest: %v", err)
	}

	// conservation: source_before + dest_before == source_after + dest_after + fee
	if 2000000+0 != srcAfter.Balance+dstAfter.Balance+tx.Fee {
		t.Fatalf("conservation of funds violated: src=%d dst=%d fee=%d", srcAfter.Balance, dstAfter.Balance, tx.Fee)
	}
	if srcAfter.Balance < 0 || dstAfter.Balance < 0 {
		t.Fatalf("non-negativity violated")
	}
}

func TestTransfer_InsufficientFunds_NoStateChange(t *testing.T) {
	l, db := setupLedger(t)
	ctx := context.Background()

	source, _ := db.CreateAccount(ctx, models.AccountUser, 999) // one below amount+fee for a 1000 SendMoney (fee 0 bracket covers 1..100 display, so 1000 minor = 10.00 KES needs fee)
	dest, _ := db.CreateAccount(ctx, models.AccountUtility, 0)

	_, _, err := l.Transfer(ctx, source.Id, dest.Id, 1000, models.KindSendMoney, ledger.Notes{})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	srcAfter, _ := db.GetAccount(ctx, source.Id)
	if srcAfter.Balance != 999 {
		t.Fatalf("balance should be unchanged, got %d", srcAfter.Balance)
	}
}

func TestTransfer_SelfTransact(t *testing.T) {
	l, db := setupLedger(t)
	ctx := context.Background()
	acct, _ := db.CreateAccount(ctx, models.AccountUser, 10000)

	_, _, err := l.Transfer(ctx, acct.Id, acct.Id, 100, models.KindSendMoney, ledger.Notes{})
	if !errors.Is(err, ledger.ErrSelfTransact) {
		t.Fatalf("expected ErrSelfTransact, got %v", err)
	}
}

func TestTransfer_AccountNotFound(t *testing.T) {
	l, db := setupLedger(t)
	ctx := context.Background()
	dest, _ := db.CreateAccount(ctx, models.AccountUtility, 0)

	_, _, err := l.Transfer(ctx, "does-not-exist", dest.Id, 100, models.KindSendMoney, ledger.Notes{})
	if !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestReverse_Symmetry(t *testing.T) {
	l, db := setupLedger(t)
	ctx := context.Background()

	source, _ := db.CreateAccount(ctx, models.AccountUser, 2000000)
	dest, _ := db.CreateAccount(ctx, models.AccountUtility, 0)

	tx, _, err := l.Transfer(ctx, source.Id, dest.Id, 1000, models.KindSendMoney, ledger.Notes{})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	srcBefore, _ := db.GetAccount(ctx, source.Id)
	dstBefore, _ := db.GetAccount(ctx, dest.Id)

	reversal, _, err := l.Reverse(ctx, tx.Id)
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if reversal.Amount != tx.Amount {
		t.Fatalf("reversal amount mismatch")
	}
	if reversal.SourceId == nil || *reversal.SourceId != dest.Id {
		t.Fatalf("reversal source should be original destination")
	}
	if reversal.DestinationId != source.Id {
		t.Fatalf("reversal destination should be original source")
	}

	original, err := db.GetTransaction(ctx, tx.Id)
	if err != nil {
		t.Fatalf("get original: %v", err)
	}
	if original.Status != models.StatusReversed {
		t.Fatalf("expected original status Reversed, got %s", original.Status)
	}

	srcAfter, _ := db.GetAccount(ctx, source.Id)
	dstAfter, _ := db.GetAccount(ctx, dest.Id)
	if srcAfter.Balance != srcBefore.Balance+tx.Amount {
		t.Fatalf("source balance not restored")
	}
	if dstAfter.Balance != dstBefore.Balance-tx.Amount {
		t.Fatalf("destination balance not debited")
	}
}

func TestReceiptUniqueness(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		r := ledger.GenerateReceipt()
		if len(r) != 10 {
			t.Fatalf("expected length 10, got %d (%s)", len(r), r)
		}
		seen[r] = struct{}{}
	}
	if len(seen) < 900 {
		t.Fatalf("receipts collided too often: %d unique of 1000", len(seen))
	}
}

func TestFeeBracketBoundary(t *testing.T) {
	fees := feetable.New()
	if err := fees.SeedDefaults(); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// send_money bracket 1: 1..100 KES is fee-free; 101 is the first bracket
	// with a non-zero fee per §8's boundary-case rule.
	if fee := fees.Fee(models.KindSendMoney, 10000); fee != 0 {
		t.Fatalf("expected zero fee at upper edge of free bracket, got %d", fee)
	}
	if fee := fees.Fee(models.KindSendMoney, 10100); fee == 0 {
		t.Fatalf("expected non-zero fee just above free bracket")
	}
}

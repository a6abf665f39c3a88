package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"poker-service/internal/model"
	"poker-service/internal/service/ledger"
	appErr "poker-service/pkg/errors"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newLedger(t *testing.T) (*gorm.DB, ledger.Service) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.ChipAccount{}, &model.ChipTransfer{}); err != nil {
		t.Fatalf("failed to migrate ledger models: %v", err)
	}
	return db, ledger.NewService(db, 1000)
}

func TestTransferDebitAndCredit(t *testing.T) {
	ctx := context.Background()
	_, svc := newLedger(t)

	bal, err := svc.Transfer(ctx, "alice", -300, "buyin:1")
	if err != nil {
		t.Fatalf("buy-in failed: %v", err)
	}
	if bal.Balance != 700 {
		t.Fatalf("expected 700 after buy-in, got %d", bal.Balance)
	}
	bal, err = svc.Transfer(ctx, "alice", 450, "cashout:1")
	if err != nil {
		t.Fatalf("cash-out failed: %v", err)
	}
	if bal.Balance != 1150 {
		t.Fatalf("expected 1150 after cash-out, got %d", bal.Balance)
	}
}

func TestTransferIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, svc := newLedger(t)

	for i := 0; i < 3; i++ {
		bal, err := svc.Transfer(ctx, "bob", -100, "buyin:same")
		if err != nil {
			t.Fatalf("transfer %d failed: %v", i, err)
		}
		if bal.Balance != 900 {
			t.Fatalf("replay %d: expected 900, got %d", i, bal.Balance)
		}
	}
	var count int64
	db.Model(&model.ChipTransfer{}).Where("user_id = ?", "bob").Count(&count)
	if count != 1 {
		t.Fatalf("expected a single transfer row, got %d", count)
	}
}

func TestTransferRejectsOverdraft(t *testing.T) {
	ctx := context.Background()
	_, svc := newLedger(t)

	if _, err := svc.Transfer(ctx, "carol", -5000, "buyin:big"); !errors.Is(err, appErr.ErrInsufficientStack) {
		t.Fatalf("expected insufficient_stack, got %v", err)
	}
	bal, err := svc.Balance(ctx, "carol")
	if err != nil {
		t.Fatalf("balance failed: %v", err)
	}
	if bal.Balance != 1000 {
		t.Fatalf("failed transfer must not change balance, got %d", bal.Balance)
	}
}

func TestBotAccountsAreHouseBacked(t *testing.T) {
	ctx := context.Background()
	_, svc := newLedger(t)

	bal, err := svc.Transfer(ctx, ledger.BotPrefix+"t1:3", -1000, "bot-buyin")
	if err != nil {
		t.Fatalf("bot buy-in failed: %v", err)
	}
	if bal.Balance != -1000 {
		t.Fatalf("expected -1000, got %d", bal.Balance)
	}
}

func TestTransferRequiresKey(t *testing.T) {
	_, svc := newLedger(t)
	if _, err := svc.Transfer(context.Background(), "dave", 10, " "); !errors.Is(err, appErr.ErrInvalidRequestID) {
		t.Fatalf("expected invalid_request_id, got %v", err)
	}
}

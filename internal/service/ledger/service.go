package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"poker-service/internal/model"
	appErr "poker-service/pkg/errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BotPrefix marks house-backed accounts that may run negative.
const BotPrefix = "bot:"

type Balance struct {
	UserID  string `json:"userId"`
	Balance int64  `json:"balance"`
}

// Service is the chips ledger contract. Positive amounts credit the user
// (cash-out), negative amounts debit (buy-in). Replaying an idempotency key
// returns the balance recorded by the first call.
type Service interface {
	Transfer(ctx context.Context, userID string, amount int64, idempotencyKey string) (Balance, error)
	Balance(ctx context.Context, userID string) (Balance, error)
}

type gormService struct {
	db              *gorm.DB
	startingBalance int64
}

func NewService(db *gorm.DB, startingBalance int64) Service {
	return &gormService{db: db, startingBalance: startingBalance}
}

func (s *gormService) Balance(ctx context.Context, userID string) (Balance, error) {
	var acct model.ChipAccount
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&acct).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Balance{UserID: userID, Balance: s.openingBalance(userID)}, nil
		}
		return Balance{}, err
	}
	return Balance{UserID: userID, Balance: acct.Balance}, nil
}

func (s *gormService) Transfer(ctx context.Context, userID string, amount int64, idempotencyKey string) (Balance, error) {
	if strings.TrimSpace(idempotencyKey) == "" {
		return Balance{}, appErr.ErrInvalidRequestID.WithMessage("ledger transfer requires an idempotency key")
	}
	var out Balance
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prior model.ChipTransfer
		err := tx.Where("idempotency_key = ?", idempotencyKey).First(&prior).Error
		if err == nil {
			out = Balance{UserID: prior.UserID, Balance: prior.BalanceAfter}
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var acct model.ChipAccount
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			Attrs(model.ChipAccount{Balance: s.openingBalance(userID)}).
			FirstOrCreate(&acct, model.ChipAccount{UserID: userID}).Error; err != nil {
			return err
		}

		next := acct.Balance + amount
		if next < 0 && !strings.HasPrefix(userID, BotPrefix) {
			return appErr.ErrInsufficientStack.WithMessage("balance %d cannot cover %d", acct.Balance, -amount)
		}
		acct.Balance = next
		acct.UpdatedAt = time.Now()
		if err := tx.Save(&acct).Error; err != nil {
			return err
		}
		if err := tx.Create(&model.ChipTransfer{
			IdempotencyKey: idempotencyKey,
			UserID:         userID,
			Amount:         amount,
			BalanceAfter:   next,
		}).Error; err != nil {
			return err
		}
		out = Balance{UserID: userID, Balance: next}
		return nil
	})
	return out, err
}

func (s *gormService) openingBalance(userID string) int64 {
	if strings.HasPrefix(userID, BotPrefix) {
		return 0
	}
	return s.startingBalance
}

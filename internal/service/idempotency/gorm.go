package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"poker-service/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormBackend struct {
	db *gorm.DB
}

func NewGormBackend(db *gorm.DB) *GormBackend {
	return &GormBackend{db: db}
}

func (b *GormBackend) Load(ctx context.Context, key Key) (Entry, bool, error) {
	var rec model.IdempotencyRecord
	err := b.db.WithContext(ctx).
		Where(&model.IdempotencyRecord{Key: key.String()}).
		Where("expires_at > ?", time.Now()).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	var e Entry
	if err := json.Unmarshal(rec.ResultJSON, &e); err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (b *GormBackend) Save(ctx context.Context, key Key, entry Entry, ttl time.Duration) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	now := time.Now()
	rec := model.IdempotencyRecord{
		Key:        key.String(),
		Scope:      key.Scope,
		UserID:     key.UserID,
		RequestID:  key.RequestID,
		ResultJSON: datatypes.JSON(raw),
		ExpiresAt:  now.Add(ttl),
	}
	// a live record keeps the first result; an expired, unpurged one is replaced
	return b.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"result_json", "expires_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Lte{Column: clause.Column{Table: "idempotency_records", Name: "expires_at"}, Value: now},
		}},
	}).Create(&rec).Error
}

// Purge deletes expired records and reports how many were removed.
func (b *GormBackend) Purge(ctx context.Context, now time.Time) (int64, error) {
	res := b.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&model.IdempotencyRecord{})
	return res.RowsAffected, res.Error
}

package poker

import (
	"context"
	"encoding/json"

	"poker-service/internal/holdem"
	"poker-service/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store persists table snapshots and hand history.
type Store interface {
	SaveTable(ctx context.Context, row model.PokerTable) error
	LoadOpenTables(ctx context.Context) ([]model.PokerTable, error)
	AppendHand(ctx context.Context, tableID string, res *holdem.Result) error
}

type gormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// SaveTable upserts the full row. Snapshots are written under the table
// lock, so the last write always carries the highest version.
func (s *gormStore) SaveTable(ctx context.Context, row model.PokerTable) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "version", "state_json", "updated_at", "closed_at", "close_reason"}),
	}).Create(&row).Error
}

func (s *gormStore) LoadOpenTables(ctx context.Context) ([]model.PokerTable, error) {
	var rows []model.PokerTable
	err := s.db.WithContext(ctx).
		Where("status = ?", model.TableStatusOpen).
		Order("created_at asc").
		Find(&rows).Error
	return rows, err
}

func (s *gormStore) AppendHand(ctx context.Context, tableID string, res *holdem.Result) error {
	board, err := json.Marshal(res.Board)
	if err != nil {
		return err
	}
	payouts, err := json.Marshal(res.Payouts)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&model.PokerHandHistory{
		TableID:     tableID,
		HandNo:      res.HandNo,
		Pot:         res.Pot,
		BoardJSON:   datatypes.JSON(board),
		PayoutsJSON: datatypes.JSON(payouts),
		Showdown:    res.Showdown,
		SettledAt:   res.SettledAt,
	}).Error
}

// memoryStore keeps nothing; used when no database is configured.
type memoryStore struct{}

func NewMemoryStore() Store { return memoryStore{} }

func (memoryStore) SaveTable(context.Context, model.PokerTable) error { return nil }
func (memoryStore) LoadOpenTables(context.Context) ([]model.PokerTable, error) {
	return nil, nil
}
func (memoryStore) AppendHand(context.Context, string, *holdem.Result) error { return nil }

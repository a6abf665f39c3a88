package model

import (
	"time"

	"gorm.io/datatypes"
)

// Table status
const (
	TableStatusOpen   = "OPEN"
	TableStatusClosed = "CLOSED"
)

// PokerTable is the durable snapshot of a table. StateJSON holds the full
// engine state, private cards included, and is never sent to clients as is.
type PokerTable struct {
	ID          string         `gorm:"primaryKey;size:64"`
	SmallBlind  int64          `gorm:"not null"`
	BigBlind    int64          `gorm:"not null"`
	MaxPlayers  int            `gorm:"not null"`
	Status      string         `gorm:"size:16;index;default:OPEN"`
	Version     int64          `gorm:"not null;default:0"`
	CreatedBy   string         `gorm:"size:128"`
	StateJSON   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ClosedAt    *time.Time
	CloseReason string `gorm:"size:64"`
}

type PokerHandHistory struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	TableID     string `gorm:"size:64;index"`
	HandNo      int64
	Pot         int64
	BoardJSON   datatypes.JSON `gorm:"type:jsonb"`
	PayoutsJSON datatypes.JSON `gorm:"type:jsonb"`
	Showdown    bool
	SettledAt   time.Time
}

// ChipAccount is the local adapter of the external chips ledger.
type ChipAccount struct {
	UserID    string `gorm:"primaryKey;size:128"`
	Balance   int64
	UpdatedAt time.Time
}

type ChipTransfer struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	IdempotencyKey string `gorm:"size:191;uniqueIndex"`
	UserID         string `gorm:"size:128;index"`
	Amount         int64
	BalanceAfter   int64
	CreatedAt      time.Time
}

// IdempotencyRecord stores the committed result of a mutation keyed by
// scope (table id or "global"), caller and request id.
type IdempotencyRecord struct {
	Key        string `gorm:"primaryKey;size:255"`
	Scope      string `gorm:"size:64;index"`
	UserID     string `gorm:"size:128"`
	RequestID  string `gorm:"size:128"`
	ResultJSON datatypes.JSON
	ExpiresAt  time.Time `gorm:"index"`
	CreatedAt  time.Time
}

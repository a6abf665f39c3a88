package poker

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"poker-service/internal/holdem"
)

// Stakes accepts either {"smallBlind":1,"bigBlind":2} or the short form "1/2".
type Stakes struct {
	SmallBlind int64 `json:"smallBlind"`
	BigBlind   int64 `json:"bigBlind"`
}

func (s *Stakes) UnmarshalJSON(b []byte) error {
	var short string
	if err := json.Unmarshal(b, &short); err == nil {
		parts := strings.Split(short, "/")
		if len(parts) != 2 {
			return fmt.Errorf("stakes %q: want small/big", short)
		}
		sb, err1 := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
		bb, err2 := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
		if err1 != nil || err2 != nil {
			return fmt.Errorf("stakes %q: blinds must be integers", short)
		}
		s.SmallBlind, s.BigBlind = sb, bb
		return nil
	}
	type plain Stakes
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*s = Stakes(p)
	return nil
}

type CreateTableRequest struct {
	Stakes     Stakes `json:"stakes"`
	MaxPlayers int    `json:"maxPlayers"`
	Bots       int    `json:"bots"`
	RequestID  string `json:"requestId"`
}

type JoinRequest struct {
	TableID         string `json:"tableId"`
	SeatNo          *int   `json:"seatNo"`
	BuyIn           int64  `json:"buyIn"`
	RequestID       string `json:"requestId"`
	ExpectedVersion *int64 `json:"expectedVersion"`
}

type LeaveRequest struct {
	TableID         string `json:"tableId"`
	RequestID       string `json:"requestId"`
	ExpectedVersion *int64 `json:"expectedVersion"`
}

type Action struct {
	Type   string `json:"type"`
	Amount int64  `json:"amount"`
}

type ActRequest struct {
	TableID         string `json:"tableId"`
	Action          Action `json:"action"`
	RequestID       string `json:"requestId"`
	ExpectedVersion *int64 `json:"expectedVersion"`
}

// TableRequest covers start-hand and heartbeat.
type TableRequest struct {
	TableID         string `json:"tableId"`
	RequestID       string `json:"requestId"`
	ExpectedVersion *int64 `json:"expectedVersion"`
}

type AddBotRequest struct {
	TableID         string `json:"tableId"`
	SeatNo          *int   `json:"seatNo"`
	BuyIn           int64  `json:"buyIn"`
	RequestID       string `json:"requestId"`
	ExpectedVersion *int64 `json:"expectedVersion"`
}

// MutationResult is returned by every mutating operation and is what the
// idempotency store replays.
type MutationResult struct {
	TableID string         `json:"tableId"`
	Version int64          `json:"version"`
	SeatNo  *int           `json:"seatNo,omitempty"`
	Stack   *int64         `json:"stack,omitempty"`
	CashOut *int64         `json:"cashOut,omitempty"`
	HandNo  int64          `json:"handNo,omitempty"`
	State   *StateView     `json:"state,omitempty"`
	Result  *holdem.Result `json:"result,omitempty"`
}

type TableInfo struct {
	TableID    string     `json:"tableId"`
	SmallBlind int64      `json:"smallBlind"`
	BigBlind   int64      `json:"bigBlind"`
	MaxPlayers int        `json:"maxPlayers"`
	Status     string     `json:"status"`
	Version    int64      `json:"version"`
	CreatedBy  string     `json:"createdBy"`
	Seated     int        `json:"seated"`
	Phase      string     `json:"phase"`
	CreatedAt  time.Time  `json:"createdAt"`
	ClosedAt   *time.Time `json:"closedAt,omitempty"`
}

type SeatView struct {
	SeatNo      int               `json:"seatNo"`
	UserID      string            `json:"userId"`
	DisplayName string            `json:"displayName,omitempty"`
	IsBot       bool              `json:"isBot"`
	Stack       int64             `json:"stack"`
	Status      holdem.SeatStatus `json:"status"`
	StreetBet   int64             `json:"streetBet"`
	Committed   int64             `json:"committed"`
	InHand      bool              `json:"inHand"`
	Folded      bool              `json:"folded"`
	AllIn       bool              `json:"allIn"`
	LastAction  holdem.ActionType `json:"lastAction,omitempty"`
}

// StateView is the public projection of a table's game; it never carries
// hole cards.
type StateView struct {
	Version        int64                `json:"version"`
	Phase          holdem.Phase         `json:"phase"`
	HandNo         int64                `json:"handNo"`
	Pot            int64                `json:"pot"`
	Board          []holdem.Card        `json:"board"`
	Button         int                  `json:"button"`
	SmallBlindSeat *int                 `json:"smallBlindSeat,omitempty"`
	BigBlindSeat   *int                 `json:"bigBlindSeat,omitempty"`
	CurrentBet     int64                `json:"currentBet"`
	TurnUserID     string               `json:"turnUserId,omitempty"`
	TurnSeat       *int                 `json:"turnSeat,omitempty"`
	TurnDeadline   *time.Time           `json:"turnDeadline,omitempty"`
	LegalActions   *holdem.LegalActions `json:"legalActions,omitempty"`
	Seats          []SeatView           `json:"seats"`
	LastResult     *holdem.Result       `json:"lastResult,omitempty"`
}

type GetTableResponse struct {
	Table       TableInfo     `json:"table"`
	Seats       []SeatView    `json:"seats"`
	State       StateView     `json:"state"`
	MyHoleCards []holdem.Card `json:"myHoleCards,omitempty"`
}

type ListTablesResponse struct {
	Tables []TableInfo `json:"tables"`
}

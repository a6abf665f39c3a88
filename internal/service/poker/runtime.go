package poker

import (
	"encoding/json"
	"sync"
	"time"

	"poker-service/internal/holdem"
	"poker-service/internal/model"
	"poker-service/internal/presence"
)

// tableRuntime is the single authoritative copy of one table. Every read
// and write goes through mu.
type tableRuntime struct {
	mu sync.Mutex

	id          string
	createdBy   string
	createdAt   time.Time
	updatedAt   time.Time
	status      string
	closedAt    *time.Time
	closeReason string

	version int64
	game    *holdem.Game

	// pending bot autoplay, tied to the version it was scheduled for
	botTimer   *time.Timer
	botVersion int64
}

// snapshot is what gets persisted into poker_tables.state_json.
type snapshot struct {
	Game *holdem.Game `json:"game"`
}

func newRuntime(id, createdBy string, game *holdem.Game, now time.Time) *tableRuntime {
	return &tableRuntime{
		id:        id,
		createdBy: createdBy,
		createdAt: now,
		updatedAt: now,
		status:    model.TableStatusOpen,
		game:      game,
	}
}

func runtimeFromModel(row model.PokerTable) (*tableRuntime, error) {
	var snap snapshot
	if err := json.Unmarshal(row.StateJSON, &snap); err != nil {
		return nil, err
	}
	if snap.Game == nil {
		g, err := holdem.NewGame(holdem.Config{SmallBlind: row.SmallBlind, BigBlind: row.BigBlind, MaxPlayers: row.MaxPlayers})
		if err != nil {
			return nil, err
		}
		snap.Game = g
	}
	return &tableRuntime{
		id:          row.ID,
		createdBy:   row.CreatedBy,
		createdAt:   row.CreatedAt,
		updatedAt:   row.UpdatedAt,
		status:      row.Status,
		closedAt:    row.ClosedAt,
		closeReason: row.CloseReason,
		version:     row.Version,
		game:        snap.Game,
	}, nil
}

func (rt *tableRuntime) closed() bool {
	return rt.status == model.TableStatusClosed
}

func (rt *tableRuntime) checkpointLocked() ([]byte, error) {
	return json.Marshal(rt.game)
}

// restoreLocked rolls the game back to a checkpoint, keeping the shuffler.
func (rt *tableRuntime) restoreLocked(cp []byte, shuffle func([]holdem.Card)) error {
	var g holdem.Game
	if err := json.Unmarshal(cp, &g); err != nil {
		return err
	}
	if shuffle != nil {
		g.SetShuffler(shuffle)
	}
	rt.game = &g
	return nil
}

func (rt *tableRuntime) toModelLocked() (model.PokerTable, error) {
	raw, err := json.Marshal(snapshot{Game: rt.game})
	if err != nil {
		return model.PokerTable{}, err
	}
	cfg := rt.game.Config
	return model.PokerTable{
		ID:          rt.id,
		SmallBlind:  cfg.SmallBlind,
		BigBlind:    cfg.BigBlind,
		MaxPlayers:  cfg.MaxPlayers,
		Status:      rt.status,
		Version:     rt.version,
		CreatedBy:   rt.createdBy,
		StateJSON:   raw,
		CreatedAt:   rt.createdAt,
		UpdatedAt:   rt.updatedAt,
		ClosedAt:    rt.closedAt,
		CloseReason: rt.closeReason,
	}, nil
}

func (rt *tableRuntime) infoLocked() TableInfo {
	cfg := rt.game.Config
	return TableInfo{
		TableID:    rt.id,
		SmallBlind: cfg.SmallBlind,
		BigBlind:   cfg.BigBlind,
		MaxPlayers: cfg.MaxPlayers,
		Status:     rt.status,
		Version:    rt.version,
		CreatedBy:  rt.createdBy,
		Seated:     rt.game.OccupiedSeats(),
		Phase:      string(rt.game.Phase()),
		CreatedAt:  rt.createdAt,
		ClosedAt:   rt.closedAt,
	}
}

func (rt *tableRuntime) seatsLocked() []SeatView {
	g := rt.game
	out := make([]SeatView, 0, len(g.Seats))
	for _, s := range g.Seats {
		if s == nil {
			continue
		}
		sv := SeatView{
			SeatNo:      s.SeatNo,
			UserID:      s.UserID,
			DisplayName: s.DisplayName,
			IsBot:       s.IsBot,
			Stack:       s.Stack,
			Status:      s.Status,
		}
		if g.Hand != nil {
			if p := g.Hand.Players[s.SeatNo]; p != nil && p.UserID == s.UserID {
				sv.InHand = true
				sv.StreetBet = p.StreetBet
				sv.Committed = p.Committed
				sv.Folded = p.Folded
				sv.AllIn = p.AllIn
				sv.LastAction = p.LastAction
			}
		}
		out = append(out, sv)
	}
	return out
}

func intPtr(v int) *int { return &v }

func (rt *tableRuntime) stateLocked(turnTimeout time.Duration) StateView {
	g := rt.game
	sv := StateView{
		Version:    rt.version,
		Phase:      g.Phase(),
		HandNo:     g.HandNo,
		Pot:        g.Pot(),
		Board:      []holdem.Card{},
		Button:     g.Button,
		Seats:      rt.seatsLocked(),
		LastResult: g.LastResult,
	}
	if h := g.Hand; h != nil {
		sv.Board = append(sv.Board, h.Board...)
		sv.CurrentBet = h.CurrentBet
		sv.SmallBlindSeat = intPtr(h.SmallBlindSeat)
		sv.BigBlindSeat = intPtr(h.BigBlindSeat)
		if la, ok := g.Legal(); ok {
			sv.TurnUserID = g.TurnUserID()
			sv.TurnSeat = intPtr(h.TurnSeat)
			deadline := g.TurnDeadline(turnTimeout)
			sv.TurnDeadline = &deadline
			sv.LegalActions = &la
		}
	}
	return sv
}

func (rt *tableRuntime) presenceViewLocked(turnTimeout time.Duration) presence.View {
	seats := make(map[string]int)
	for _, s := range rt.game.Seats {
		if s != nil {
			seats[s.UserID] = s.SeatNo
		}
	}
	return presence.View{Version: rt.version, State: rt.stateLocked(turnTimeout), Seats: seats}
}

func (rt *tableRuntime) cancelBotLocked() {
	if rt.botTimer != nil {
		rt.botTimer.Stop()
		rt.botTimer = nil
	}
}

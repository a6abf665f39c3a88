package poker

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"poker-service/internal/holdem"
	"poker-service/internal/service/events"
	"poker-service/internal/service/idempotency"
	"poker-service/internal/service/ledger"
	"poker-service/internal/telemetry"
	appErr "poker-service/pkg/errors"
	"poker-service/pkg/logger"
	"poker-service/pkg/utils/random"

	"go.uber.org/zap"
)

// CreateTable opens a new table and optionally seats bots owned by the
// creator. Idempotency is scoped globally per caller.
func (s *Service) CreateTable(ctx context.Context, userID string, req CreateTableRequest) (MutationResult, error) {
	if strings.TrimSpace(req.RequestID) == "" {
		return MutationResult{}, appErr.ErrInvalidRequestID
	}
	key := idempotency.Key{Scope: idempotency.GlobalScope, UserID: userID, RequestID: req.RequestID}

	s.createMu.Lock()
	defer s.createMu.Unlock()

	if res, ok, err := s.replay(ctx, "create-table", key); ok {
		return res, err
	}

	cfg, err := s.tableConfig(req)
	if err != nil {
		s.remember(ctx, key, MutationResult{}, err)
		telemetry.M().Mutation(ctx, "create-table", appErr.As(err).Code)
		return MutationResult{}, err
	}
	g, err := holdem.NewGame(cfg)
	if err != nil {
		err = appErr.ErrInvalidCommand.WithMessage("%v", err)
		s.remember(ctx, key, MutationResult{}, err)
		return MutationResult{}, err
	}
	if s.shuffle != nil {
		g.SetShuffler(s.shuffle)
	}

	now := s.now()
	rt := newRuntime(s.newTableID(), userID, g, now)
	rt.mu.Lock()
	defer rt.mu.Unlock()

	tx := &txn{rt: rt, now: now, userID: userID}
	tx.emit(events.KindTableCreated, userID, rt.infoLocked())
	for i := 0; i < req.Bots; i++ {
		if _, err := s.seatBotLocked(ctx, tx, -1, s.cfg.DefaultBuyIn, userID); err != nil {
			logger.Log.Error("seat bot on new table", zap.String("tableId", rt.id), zap.Error(err))
			telemetry.M().Mutation(ctx, "create-table", appErr.As(err).Code)
			return MutationResult{}, err
		}
	}

	s.mu.Lock()
	s.tables[rt.id] = rt
	s.mu.Unlock()

	s.commitLocked(ctx, rt, tx)
	st := rt.stateLocked(s.cfg.TurnTimeout)
	res := MutationResult{TableID: rt.id, Version: rt.version, State: &st}
	s.remember(ctx, key, res, nil)
	telemetry.M().Mutation(ctx, "create-table", "ok")
	logger.Log.Info("table created",
		zap.String("tableId", rt.id),
		zap.String("createdBy", userID),
		zap.Int64("smallBlind", cfg.SmallBlind),
		zap.Int64("bigBlind", cfg.BigBlind),
		zap.Int("maxPlayers", cfg.MaxPlayers),
		zap.Int("bots", req.Bots),
	)
	return res, nil
}

func (s *Service) tableConfig(req CreateTableRequest) (holdem.Config, error) {
	maxPlayers := req.MaxPlayers
	if maxPlayers == 0 {
		maxPlayers = s.cfg.MaxPlayers
	}
	if maxPlayers < s.cfg.MinPlayers || maxPlayers > s.cfg.MaxPlayers {
		return holdem.Config{}, appErr.ErrInvalidCommand.WithMessage("maxPlayers must be within [%d,%d]", s.cfg.MinPlayers, s.cfg.MaxPlayers)
	}
	if req.Bots < 0 || req.Bots >= maxPlayers {
		return holdem.Config{}, appErr.ErrInvalidCommand.WithMessage("bots must be within [0,%d]", maxPlayers-1)
	}
	cfg := holdem.Config{SmallBlind: req.Stakes.SmallBlind, BigBlind: req.Stakes.BigBlind, MaxPlayers: maxPlayers}
	if err := cfg.Validate(); err != nil {
		return holdem.Config{}, appErr.ErrInvalidCommand.WithMessage("%v", err)
	}
	return cfg, nil
}

// checkSeatLocked reports why seatNo (or any seat when negative) cannot be
// taken, before any chips move.
func checkSeatLocked(g *holdem.Game, seatNo int) error {
	if seatNo < 0 {
		if g.FreeSeat() < 0 {
			return appErr.ErrTableFull
		}
		return nil
	}
	if seatNo >= len(g.Seats) {
		return appErr.ErrInvalidCommand.WithMessage("seat %d does not exist", seatNo)
	}
	if g.Seat(seatNo) != nil {
		if g.FreeSeat() < 0 {
			return appErr.ErrTableFull
		}
		return appErr.ErrSeatTaken
	}
	return nil
}

func (s *Service) buyIn(requested int64) (int64, error) {
	switch {
	case requested == 0:
		return s.cfg.DefaultBuyIn, nil
	case requested < 0:
		return 0, appErr.ErrInvalidCommand.WithMessage("buyIn must be positive")
	default:
		return requested, nil
	}
}

func botUserID(tableID string, seatNo int) string {
	return fmt.Sprintf("%s%s:%d", ledger.BotPrefix, tableID, seatNo)
}

func (s *Service) seatBotLocked(ctx context.Context, tx *txn, seatNo int, buyIn int64, owner string) (*holdem.Seat, error) {
	g := tx.rt.game
	if err := checkSeatLocked(g, seatNo); err != nil {
		return nil, err
	}
	if seatNo < 0 {
		seatNo = g.FreeSeat()
	}
	botID := botUserID(tx.rt.id, seatNo)
	key := fmt.Sprintf("buyin:%s:%s:%d", tx.rt.id, botID, tx.rt.version)
	if _, err := s.ledger.Transfer(ctx, botID, -buyIn, key); err != nil {
		return nil, err
	}
	seat, err := g.Sit(holdem.Seat{
		SeatNo:      seatNo,
		UserID:      botID,
		DisplayName: "Bot " + random.Code(4),
		IsBot:       true,
		OwnerUserID: owner,
		Stack:       buyIn,
	}, tx.now)
	if err != nil {
		return nil, err
	}
	tx.emit(events.KindSeatJoined, botID, map[string]any{"seatNo": seat.SeatNo, "buyIn": buyIn, "bot": true, "owner": owner})
	return seat, nil
}

// Join seats the caller, debiting the buy-in from the ledger.
func (s *Service) Join(ctx context.Context, userID string, req JoinRequest) (MutationResult, error) {
	return s.mutate(ctx, "join", req.TableID, userID, req.RequestID, req.ExpectedVersion, func(ctx context.Context, tx *txn) (MutationResult, error) {
		g := tx.rt.game
		if g.SeatOf(userID) != nil {
			return MutationResult{}, appErr.ErrAlreadySeated
		}
		if strings.HasPrefix(userID, ledger.BotPrefix) {
			return MutationResult{}, appErr.ErrInvalidCommand.WithMessage("reserved user id")
		}
		amount, err := s.buyIn(req.BuyIn)
		if err != nil {
			return MutationResult{}, err
		}
		seatNo := -1
		if req.SeatNo != nil {
			seatNo = *req.SeatNo
		}
		if err := checkSeatLocked(g, seatNo); err != nil {
			return MutationResult{}, err
		}

		debitKey := fmt.Sprintf("buyin:%s:%s:%s:%d", tx.rt.id, userID, req.RequestID, tx.rt.version)
		if _, err := s.ledger.Transfer(ctx, userID, -amount, debitKey); err != nil {
			return MutationResult{}, err
		}
		seat, err := g.Sit(holdem.Seat{SeatNo: seatNo, UserID: userID, Stack: amount}, tx.now)
		if err != nil {
			refundKey := fmt.Sprintf("refund:%s:%s:%s:%d", tx.rt.id, userID, req.RequestID, tx.rt.version)
			if _, rerr := s.ledger.Transfer(ctx, userID, amount, refundKey); rerr != nil {
				logger.Log.Error("refund failed buy-in", zap.String("tableId", tx.rt.id), zap.String("userId", userID), zap.Error(rerr))
			}
			return MutationResult{}, err
		}
		tx.emit(events.KindSeatJoined, userID, map[string]any{"seatNo": seat.SeatNo, "buyIn": amount})
		stack := seat.Stack
		return MutationResult{SeatNo: intPtr(seat.SeatNo), Stack: &stack}, nil
	})
}

// Leave stands the caller up and cashes out the stack. A seat live in the
// current hand is folded first; chips it already committed stay in the pot.
func (s *Service) Leave(ctx context.Context, userID string, req LeaveRequest) (MutationResult, error) {
	return s.mutate(ctx, "leave", req.TableID, userID, req.RequestID, req.ExpectedVersion, func(ctx context.Context, tx *txn) (MutationResult, error) {
		g := tx.rt.game
		seat := g.SeatOf(userID)
		if seat == nil {
			return MutationResult{}, appErr.ErrNotSeated
		}
		seatNo := seat.SeatNo
		stack, res, err := g.Stand(seatNo, tx.now)
		if err != nil {
			return MutationResult{}, err
		}
		tx.settle(res)
		if stack > 0 {
			key := fmt.Sprintf("cashout:%s:%s:%s:%d", tx.rt.id, userID, req.RequestID, tx.rt.version)
			if _, err := s.ledger.Transfer(ctx, userID, stack, key); err != nil {
				return MutationResult{}, err
			}
		}
		tx.emit(events.KindSeatLeft, userID, map[string]any{"seatNo": seatNo, "cashOut": stack})
		return MutationResult{SeatNo: intPtr(seatNo), CashOut: &stack, Result: res}, nil
	})
}

// Act applies a betting action for the caller.
func (s *Service) Act(ctx context.Context, userID string, req ActRequest) (MutationResult, error) {
	return s.mutate(ctx, "act", req.TableID, userID, req.RequestID, req.ExpectedVersion, func(ctx context.Context, tx *txn) (MutationResult, error) {
		g := tx.rt.game
		seat := g.SeatOf(userID)
		if seat == nil {
			return MutationResult{}, appErr.ErrNotSeated
		}
		action, ok := holdem.ParseAction(req.Action.Type)
		if !ok {
			return MutationResult{}, appErr.ErrInvalidCommand.WithMessage("unknown action %q", req.Action.Type)
		}
		seat.LastHeartbeat = tx.now
		res, err := g.Act(seat.SeatNo, action, req.Action.Amount, tx.now)
		if err != nil {
			return MutationResult{}, err
		}
		tx.settle(res)
		return MutationResult{Result: res}, nil
	})
}

// StartHand deals a new hand. Only seated players may start one.
func (s *Service) StartHand(ctx context.Context, userID string, req TableRequest) (MutationResult, error) {
	return s.mutate(ctx, "start-hand", req.TableID, userID, req.RequestID, req.ExpectedVersion, func(ctx context.Context, tx *txn) (MutationResult, error) {
		g := tx.rt.game
		if g.SeatOf(userID) == nil {
			return MutationResult{}, appErr.ErrNotSeated
		}
		res, err := g.StartHand(tx.now)
		if err != nil {
			return MutationResult{}, err
		}
		tx.emit(events.KindHandStarted, userID, map[string]any{"handNo": g.HandNo, "button": g.Button})
		tx.settle(res)
		return MutationResult{HandNo: g.HandNo, Result: res}, nil
	})
}

// Heartbeat refreshes the caller's seat liveness. The version only moves
// when an INACTIVE seat comes back.
func (s *Service) Heartbeat(ctx context.Context, userID string, req TableRequest) (MutationResult, error) {
	return s.mutate(ctx, "heartbeat", req.TableID, userID, req.RequestID, req.ExpectedVersion, func(ctx context.Context, tx *txn) (MutationResult, error) {
		seat := tx.rt.game.SeatOf(userID)
		if seat == nil {
			return MutationResult{}, appErr.ErrNotSeated
		}
		seat.LastHeartbeat = tx.now
		if seat.Status == holdem.SeatInactive {
			seat.Status = holdem.SeatActive
		} else {
			tx.unchanged = true
		}
		return MutationResult{SeatNo: intPtr(seat.SeatNo)}, nil
	})
}

// AddBot seats one bot owned by the caller, who must hold a seat.
func (s *Service) AddBot(ctx context.Context, userID string, req AddBotRequest) (MutationResult, error) {
	return s.mutate(ctx, "add-bot", req.TableID, userID, req.RequestID, req.ExpectedVersion, func(ctx context.Context, tx *txn) (MutationResult, error) {
		owner := tx.rt.game.SeatOf(userID)
		if owner == nil || owner.IsBot {
			return MutationResult{}, appErr.ErrNotSeated
		}
		amount, err := s.buyIn(req.BuyIn)
		if err != nil {
			return MutationResult{}, err
		}
		seatNo := -1
		if req.SeatNo != nil {
			seatNo = *req.SeatNo
		}
		seat, err := s.seatBotLocked(ctx, tx, seatNo, amount, userID)
		if err != nil {
			return MutationResult{}, err
		}
		stack := seat.Stack
		return MutationResult{SeatNo: intPtr(seat.SeatNo), Stack: &stack}, nil
	})
}

// GetTable returns the table as seen by userID: public state plus the
// caller's own hole cards.
func (s *Service) GetTable(ctx context.Context, userID, tableID string) (GetTableResponse, error) {
	rt, err := s.runtime(tableID)
	if err != nil {
		return GetTableResponse{}, err
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()

	resp := GetTableResponse{
		Table: rt.infoLocked(),
		Seats: rt.seatsLocked(),
		State: rt.stateLocked(s.cfg.TurnTimeout),
	}
	if seat := rt.game.SeatOf(userID); seat != nil {
		resp.MyHoleCards = rt.game.HoleCards(userID)
	}
	return resp, nil
}

// ListTables returns every open table, oldest first.
func (s *Service) ListTables(ctx context.Context) ListTablesResponse {
	rts := s.runtimes()
	out := make([]TableInfo, 0, len(rts))
	for _, rt := range rts {
		rt.mu.Lock()
		if !rt.closed() {
			out = append(out, rt.infoLocked())
		}
		rt.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].TableID < out[j].TableID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return ListTablesResponse{Tables: out}
}

package poker

import (
	"context"
	"fmt"
	"time"

	"poker-service/internal/holdem"
	"poker-service/internal/model"
	"poker-service/internal/service/events"
	"poker-service/pkg/logger"

	"go.uber.org/zap"
)

// maxForcedPerSweep bounds how many consecutive stale turns one pass folds
// through.
const maxForcedPerSweep = 64

// SweepReport describes what one sweep pass did to a table.
type SweepReport struct {
	Forced      int
	Inactivated int
	BotsEvicted int
	Closed      bool
	Skipped     bool
}

// SweepTable reconciles one table against the clock: expired heartbeats
// turn seats INACTIVE, overdue turns get their default action, bots whose
// owner is gone are cashed out and evicted, and a table with no active
// seat is closed once idle. A table that is busy, or would close but is
// mid-hand, is reported as skipped.
func (s *Service) SweepTable(ctx context.Context, tableID string, now time.Time) (SweepReport, error) {
	var rep SweepReport
	rt, err := s.runtime(tableID)
	if err != nil {
		return rep, err
	}
	// a table busy with a client mutation is left for the next pass
	if !rt.mu.TryLock() {
		rep.Skipped = true
		return rep, nil
	}
	defer rt.mu.Unlock()
	if rt.closed() {
		return rep, nil
	}

	cp, err := rt.checkpointLocked()
	if err != nil {
		return rep, err
	}
	tx := &txn{rt: rt, now: now, userID: "system"}
	changed, err := s.sweepLocked(ctx, tx, &rep)
	if err != nil {
		if rerr := rt.restoreLocked(cp, s.shuffle); rerr != nil {
			logger.Log.Error("restore table after failed sweep", zap.String("tableId", rt.id), zap.Error(rerr))
		}
		return SweepReport{}, err
	}
	if !changed {
		return rep, nil
	}

	s.commitLocked(ctx, rt, tx)
	if rep.Closed {
		s.mu.Lock()
		delete(s.tables, rt.id)
		s.mu.Unlock()
	}
	return rep, nil
}

func (s *Service) sweepLocked(ctx context.Context, tx *txn, rep *SweepReport) (bool, error) {
	rt := tx.rt
	g := rt.game
	now := tx.now
	changed := false

	for _, seat := range g.Seats {
		if seat == nil || seat.IsBot || seat.Status != holdem.SeatActive {
			continue
		}
		if s.heartbeatExpired(seat, now) {
			seat.Status = holdem.SeatInactive
			rep.Inactivated++
			changed = true
		}
	}

	for i := 0; i < maxForcedPerSweep; i++ {
		la, ok := g.Legal()
		if !ok {
			break
		}
		seat := g.Seat(la.SeatNo)
		overdue := !now.Before(g.TurnDeadline(s.cfg.TurnTimeout))
		stale := seat != nil && !seat.IsBot && seat.Status == holdem.SeatInactive
		if !overdue && !stale {
			break
		}
		action, amount := g.DefaultAction(), int64(0)
		if seat != nil && seat.IsBot {
			action, amount = g.BotDecision()
		}
		res, err := g.Act(la.SeatNo, action, amount, now)
		if err != nil {
			res, err = g.Act(la.SeatNo, g.DefaultAction(), 0, now)
			if err != nil {
				return false, fmt.Errorf("force action on seat %d: %w", la.SeatNo, err)
			}
			action = g.DefaultAction()
		}
		logger.Log.Info("forced default action",
			zap.String("tableId", rt.id),
			zap.Int("seatNo", la.SeatNo),
			zap.String("action", string(action)),
		)
		tx.settle(res)
		rep.Forced++
		changed = true
	}

	for _, seat := range append([]*holdem.Seat(nil), g.Seats...) {
		if seat == nil || !seat.IsBot || s.ownerLive(g, seat.OwnerUserID, now) {
			continue
		}
		if err := s.evictLocked(ctx, tx, seat, events.KindSeatEvicted, "evict"); err != nil {
			return false, err
		}
		rep.BotsEvicted++
		changed = true
	}

	active := 0
	for _, seat := range g.Seats {
		if seat != nil && seat.Status == holdem.SeatActive {
			active++
		}
	}
	// close only after a quiet grace period with nothing else to do
	if changed || active > 0 || now.Sub(rt.updatedAt) < s.idleGrace() {
		return changed, nil
	}
	if g.InHand() {
		rep.Skipped = true
		return changed, nil
	}
	for _, seat := range append([]*holdem.Seat(nil), g.Seats...) {
		if seat == nil {
			continue
		}
		if err := s.evictLocked(ctx, tx, seat, events.KindSeatLeft, "close"); err != nil {
			return false, err
		}
	}
	closedAt := now
	rt.status = model.TableStatusClosed
	rt.closedAt = &closedAt
	rt.closeReason = "no_active_seats"
	tx.emit(events.KindTableClosed, "", map[string]any{"reason": rt.closeReason})
	rep.Closed = true
	logger.Log.Info("table closed", zap.String("tableId", rt.id), zap.String("reason", rt.closeReason))
	return true, nil
}

// evictLocked stands a seat up and cashes its current stack out.
func (s *Service) evictLocked(ctx context.Context, tx *txn, seat *holdem.Seat, kind events.Kind, reason string) error {
	seatNo, userID := seat.SeatNo, seat.UserID
	stack, res, err := tx.rt.game.Stand(seatNo, tx.now)
	if err != nil {
		return err
	}
	tx.settle(res)
	if stack > 0 {
		key := fmt.Sprintf("%s:%s:%s:%d", reason, tx.rt.id, userID, tx.rt.version)
		if _, err := s.ledger.Transfer(ctx, userID, stack, key); err != nil {
			return fmt.Errorf("cash out %s: %w", userID, err)
		}
	}
	tx.emit(kind, userID, map[string]any{"seatNo": seatNo, "cashOut": stack, "reason": reason})
	return nil
}

func (s *Service) heartbeatExpired(seat *holdem.Seat, now time.Time) bool {
	return s.cfg.HeartbeatTTL > 0 && now.Sub(seat.LastHeartbeat) > s.cfg.HeartbeatTTL
}

// ownerLive reports whether the bot owner still holds a live human seat.
func (s *Service) ownerLive(g *holdem.Game, owner string, now time.Time) bool {
	seat := g.SeatOf(owner)
	return seat != nil && !seat.IsBot && seat.Status != holdem.SeatInactive && !s.heartbeatExpired(seat, now)
}

func (s *Service) idleGrace() time.Duration {
	return s.cfg.HeartbeatTTL
}

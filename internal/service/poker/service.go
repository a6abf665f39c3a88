package poker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"poker-service/internal/config"
	"poker-service/internal/holdem"
	"poker-service/internal/presence"
	"poker-service/internal/service/events"
	"poker-service/internal/service/idempotency"
	"poker-service/internal/service/ledger"
	"poker-service/internal/telemetry"
	appErr "poker-service/pkg/errors"
	"poker-service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Broadcaster fans committed table views out to connected members.
type Broadcaster interface {
	Publish(tableID string, v presence.View)
	Forget(tableID string)
}

type Options struct {
	Config      config.PokerConfig
	Store       Store
	Ledger      ledger.Service
	Idempotency *idempotency.Store
	Presence    Broadcaster
	Events      events.Publisher

	// Clock and Shuffler are replaced in tests.
	Clock    func() time.Time
	Shuffler func([]holdem.Card)
}

// Service is the action authority: every table mutation enters here, is
// serialised on the table's lock, checked against the idempotency store and
// the table version, then committed, persisted and broadcast.
type Service struct {
	cfg      config.PokerConfig
	store    Store
	ledger   ledger.Service
	idem     *idempotency.Store
	presence Broadcaster
	events   events.Publisher
	now      func() time.Time
	shuffle  func([]holdem.Card)

	mu     sync.RWMutex
	tables map[string]*tableRuntime

	// create-table has no table lock to serialise on
	createMu sync.Mutex

	outbox    chan []events.Event
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewService(opts Options) *Service {
	s := &Service{
		cfg:      opts.Config,
		store:    opts.Store,
		ledger:   opts.Ledger,
		idem:     opts.Idempotency,
		presence: opts.Presence,
		events:   opts.Events,
		now:      opts.Clock,
		shuffle:  opts.Shuffler,
		tables:   make(map[string]*tableRuntime),
		outbox:   make(chan []events.Event, 1024),
		done:     make(chan struct{}),
	}
	if s.store == nil {
		s.store = NewMemoryStore()
	}
	if s.idem == nil {
		s.idem = idempotency.NewStore(10000, 10*time.Minute, nil)
	}
	if s.events == nil {
		s.events = events.NewNoop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.cfg.DefaultBuyIn <= 0 {
		s.cfg.DefaultBuyIn = 1000
	}
	if s.cfg.MinPlayers < 2 {
		s.cfg.MinPlayers = 2
	}
	if s.cfg.MaxPlayers <= 0 || s.cfg.MaxPlayers > 10 {
		s.cfg.MaxPlayers = 10
	}

	s.wg.Add(1)
	go s.runOutbox()
	return s
}

// Close stops bot timers and drains the event outbox.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		for _, rt := range s.runtimes() {
			rt.mu.Lock()
			rt.cancelBotLocked()
			rt.mu.Unlock()
		}
		close(s.done)
		s.wg.Wait()
	})
}

func (s *Service) runOutbox() {
	defer s.wg.Done()
	for {
		select {
		case batch := <-s.outbox:
			s.publishBatch(batch)
		case <-s.done:
			for {
				select {
				case batch := <-s.outbox:
					s.publishBatch(batch)
				default:
					return
				}
			}
		}
	}
}

func (s *Service) publishBatch(batch []events.Event) {
	for _, evt := range batch {
		if err := s.events.Publish(context.Background(), evt); err != nil {
			logger.Log.Warn("publish table event failed",
				zap.String("kind", string(evt.Kind)),
				zap.String("tableId", evt.TableID),
				zap.Error(err),
			)
		}
	}
}

// Restore reloads every OPEN table from the store. Seat heartbeats and the
// current turn clock restart from now.
func (s *Service) Restore(ctx context.Context) (int, error) {
	rows, err := s.store.LoadOpenTables(ctx)
	if err != nil {
		return 0, err
	}
	now := s.now()
	n := 0
	for _, row := range rows {
		rt, err := runtimeFromModel(row)
		if err != nil {
			logger.Log.Error("skip unreadable table snapshot", zap.String("tableId", row.ID), zap.Error(err))
			continue
		}
		if s.shuffle != nil {
			rt.game.SetShuffler(s.shuffle)
		}
		for _, seat := range rt.game.Seats {
			if seat != nil {
				seat.LastHeartbeat = now
			}
		}
		if rt.game.Hand != nil {
			rt.game.Hand.TurnStartedAt = now
		}
		s.mu.Lock()
		s.tables[rt.id] = rt
		s.mu.Unlock()

		rt.mu.Lock()
		s.scheduleBotLocked(rt)
		rt.mu.Unlock()
		n++
	}
	logger.Log.Info("poker tables restored", zap.Int("count", n))
	return n, nil
}

func (s *Service) runtime(tableID string) (*tableRuntime, error) {
	if strings.TrimSpace(tableID) == "" {
		return nil, appErr.ErrInvalidCommand.WithMessage("tableId is required")
	}
	s.mu.RLock()
	rt, ok := s.tables[tableID]
	s.mu.RUnlock()
	if !ok {
		return nil, appErr.ErrTableNotFound
	}
	return rt, nil
}

// runtimes copies the table set. A table lock is taken before s.mu, never
// while holding it.
func (s *Service) runtimes() []*tableRuntime {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rts := make([]*tableRuntime, 0, len(s.tables))
	for _, rt := range s.tables {
		rts = append(rts, rt)
	}
	return rts
}

func (s *Service) TableIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.tables))
	for id := range s.tables {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// txn collects the side effects of one mutation until it commits.
type txn struct {
	rt        *tableRuntime
	now       time.Time
	userID    string
	events    []events.Event
	settled   []*holdem.Result
	unchanged bool
}

func (tx *txn) emit(kind events.Kind, userID string, data any) {
	evt := events.Event{Kind: kind, TableID: tx.rt.id, UserID: userID, At: tx.now}
	if data != nil {
		raw, err := json.Marshal(data)
		if err == nil {
			evt.Data = raw
		}
	}
	tx.events = append(tx.events, evt)
}

func (tx *txn) settle(res *holdem.Result) {
	if res != nil {
		tx.settled = append(tx.settled, res)
	}
}

type opFunc func(ctx context.Context, tx *txn) (MutationResult, error)

// cacheable errors are deterministic rejections worth replaying.
func cacheable(err error) bool {
	return appErr.IsKind(err, appErr.KindGame) || appErr.IsKind(err, appErr.KindCommand)
}

func (s *Service) mutate(ctx context.Context, kind, tableID, userID, requestID string, expected *int64, fn opFunc) (MutationResult, error) {
	if strings.TrimSpace(requestID) == "" {
		return MutationResult{}, appErr.ErrInvalidRequestID
	}
	rt, err := s.runtime(tableID)
	if err != nil {
		return MutationResult{}, err
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	key := idempotency.Key{Scope: tableID, UserID: userID, RequestID: requestID}
	return s.applyLocked(ctx, kind, rt, key, expected, fn)
}

func (s *Service) applyLocked(ctx context.Context, kind string, rt *tableRuntime, key idempotency.Key, expected *int64, fn opFunc) (MutationResult, error) {
	if res, ok, err := s.replay(ctx, kind, key); ok {
		return res, err
	}
	if rt.closed() {
		s.remember(ctx, key, MutationResult{}, appErr.ErrTableClosed)
		telemetry.M().Mutation(ctx, kind, appErr.ErrTableClosed.Code)
		return MutationResult{}, appErr.ErrTableClosed
	}
	if expected != nil && *expected != rt.version {
		telemetry.M().Mutation(ctx, kind, appErr.ErrVersionConflict.Code)
		return MutationResult{}, appErr.ErrVersionConflict.WithMessage("expected version %d, table is at %d", *expected, rt.version)
	}

	cp, err := rt.checkpointLocked()
	if err != nil {
		return MutationResult{}, fmt.Errorf("checkpoint table %s: %w", rt.id, err)
	}
	tx := &txn{rt: rt, now: s.now(), userID: key.UserID}
	res, err := fn(ctx, tx)
	if err != nil {
		if rerr := rt.restoreLocked(cp, s.shuffle); rerr != nil {
			logger.Log.Error("restore table after failed mutation", zap.String("tableId", rt.id), zap.Error(rerr))
		}
		outcome := appErr.As(err).Code
		if cacheable(err) {
			s.remember(ctx, key, MutationResult{}, err)
		} else {
			logger.Log.Error("mutation failed",
				zap.String("kind", kind),
				zap.String("tableId", rt.id),
				zap.String("userId", key.UserID),
				zap.Error(err),
			)
		}
		telemetry.M().Mutation(ctx, kind, outcome)
		return MutationResult{}, err
	}

	s.commitLocked(ctx, rt, tx)
	res.TableID = rt.id
	res.Version = rt.version
	st := rt.stateLocked(s.cfg.TurnTimeout)
	res.State = &st
	s.remember(ctx, key, res, nil)
	telemetry.M().Mutation(ctx, kind, "ok")
	return res, nil
}

func (s *Service) replay(ctx context.Context, kind string, key idempotency.Key) (MutationResult, bool, error) {
	e, ok := s.idem.Get(ctx, key)
	if !ok {
		return MutationResult{}, false, nil
	}
	telemetry.M().Replay(ctx, kind)
	if e.ErrCode != "" {
		return MutationResult{}, true, appErr.FromCode(e.ErrCode, e.ErrMsg)
	}
	var res MutationResult
	if err := json.Unmarshal(e.Data, &res); err != nil {
		return MutationResult{}, true, fmt.Errorf("decode cached result: %w", err)
	}
	return res, true, nil
}

func (s *Service) remember(ctx context.Context, key idempotency.Key, res MutationResult, err error) {
	entry := idempotency.Entry{Version: res.Version}
	if err != nil {
		ae := appErr.As(err)
		entry.ErrCode, entry.ErrMsg = ae.Code, ae.Message
	} else {
		raw, merr := json.Marshal(res)
		if merr != nil {
			logger.Log.Error("encode mutation result", zap.Error(merr))
			return
		}
		entry.Data = raw
	}
	s.idem.Put(ctx, key, entry)
}

// commitLocked bumps the version and fans out every side effect of tx.
func (s *Service) commitLocked(ctx context.Context, rt *tableRuntime, tx *txn) {
	if tx.unchanged && len(tx.events) == 0 && len(tx.settled) == 0 {
		return
	}
	rt.version++
	rt.updatedAt = tx.now

	for _, res := range tx.settled {
		if err := s.store.AppendHand(ctx, rt.id, res); err != nil {
			logger.Log.Error("append hand history", zap.String("tableId", rt.id), zap.Int64("handNo", res.HandNo), zap.Error(err))
		}
		tx.emit(events.KindHandSettled, "", res)
	}

	row, err := rt.toModelLocked()
	if err == nil {
		err = s.store.SaveTable(ctx, row)
	}
	if err != nil {
		logger.Log.Error("persist table snapshot", zap.String("tableId", rt.id), zap.Int64("version", rt.version), zap.Error(err))
	}

	for i := range tx.events {
		tx.events[i].Version = rt.version
	}
	if len(tx.events) > 0 {
		select {
		case s.outbox <- tx.events:
		default:
			logger.Log.Warn("event outbox full, dropping batch", zap.String("tableId", rt.id), zap.Int("events", len(tx.events)))
		}
	}

	if s.presence != nil {
		if rt.closed() {
			s.presence.Forget(rt.id)
		} else {
			s.presence.Publish(rt.id, rt.presenceViewLocked(s.cfg.TurnTimeout))
		}
	}
	s.scheduleBotLocked(rt)
}

// scheduleBotLocked replaces any pending autoplay with one for the current
// version when a bot holds the turn.
func (s *Service) scheduleBotLocked(rt *tableRuntime) {
	rt.cancelBotLocked()
	if rt.closed() {
		return
	}
	seat := rt.game.SeatOf(rt.game.TurnUserID())
	if seat == nil || !seat.IsBot {
		return
	}
	version := rt.version
	rt.botVersion = version
	rt.botTimer = time.AfterFunc(s.cfg.BotDelay, func() {
		s.botAct(rt.id, version)
	})
}

func (s *Service) botAct(tableID string, version int64) {
	rt, err := s.runtime(tableID)
	if err != nil {
		return
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.version != version || rt.botVersion != version {
		return
	}
	rt.botTimer = nil

	ctx := context.Background()
	botID := rt.game.TurnUserID()
	key := idempotency.Key{Scope: tableID, UserID: botID, RequestID: fmt.Sprintf("bot:%s:%d", tableID, version)}
	_, err = s.applyLocked(ctx, "bot-act", rt, key, &version, func(ctx context.Context, tx *txn) (MutationResult, error) {
		g := tx.rt.game
		seat := g.SeatOf(botID)
		if seat == nil || !seat.IsBot {
			return MutationResult{}, appErr.ErrNotYourTurn
		}
		action, amount := g.BotDecision()
		res, err := g.Act(seat.SeatNo, action, amount, tx.now)
		if err != nil {
			// the heuristic should only pick legal moves; fall back to the safe one
			res, err = g.Act(seat.SeatNo, g.DefaultAction(), 0, tx.now)
			if err != nil {
				return MutationResult{}, err
			}
		}
		tx.settle(res)
		return MutationResult{Result: res}, nil
	})
	if err != nil && !errors.Is(err, appErr.ErrVersionConflict) {
		logger.Log.Warn("bot autoplay failed", zap.String("tableId", tableID), zap.String("botId", botID), zap.Error(err))
	}
}

// PresenceView resolves a table's view for the presence registry.
func (s *Service) PresenceView(tableID string) (presence.View, bool) {
	rt, err := s.runtime(tableID)
	if err != nil {
		return presence.View{}, false
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.presenceViewLocked(s.cfg.TurnTimeout), true
}

func (s *Service) newTableID() string {
	return uuid.NewString()
}

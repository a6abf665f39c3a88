package presence

import (
	"context"
	"sync"
	"time"

	appErr "poker-service/pkg/errors"
	"poker-service/pkg/logger"

	"go.uber.org/zap"
)

// Subscriber is a live session that can receive table_state pushes. Push
// must not block; a full buffer drops the push.
type Subscriber interface {
	SessionID() string
	Push(state TableState) bool
}

type MemberView struct {
	UserID string `json:"userId"`
	SeatNo *int   `json:"seatNo,omitempty"`
}

// TableState is the table_state payload.
type TableState struct {
	TableID string       `json:"tableId"`
	Members []MemberView `json:"members"`
	Version *int64       `json:"version,omitempty"`
	State   any          `json:"state,omitempty"`
}

// View is what the game layer knows about a table: its version, the
// public state and which users hold seats.
type View struct {
	Version int64
	State   any
	Seats   map[string]int
}

// StateSource resolves the view of a table that has not published yet,
// e.g. right after a restart. It is never called with registry locks held.
type StateSource func(tableID string) (View, bool)

// Mirror receives membership changes for external observers.
type Mirror interface {
	Added(ctx context.Context, tableID, userID string)
	Removed(ctx context.Context, tableID, userID string)
}

type member struct {
	userID    string
	sessionID string
	expiry    *time.Timer
}

type table struct {
	mu      sync.Mutex
	members []*member
	view    *View
}

func (t *table) find(userID string) int {
	for i, m := range t.members {
		if m.userID == userID {
			return i
		}
	}
	return -1
}

func (t *table) snapshotLocked(tableID string) TableState {
	st := TableState{TableID: tableID, Members: make([]MemberView, 0, len(t.members))}
	for _, m := range t.members {
		mv := MemberView{UserID: m.userID}
		if t.view != nil {
			if seat, ok := t.view.Seats[m.userID]; ok {
				seat := seat
				mv.SeatNo = &seat
			}
		}
		st.Members = append(st.Members, mv)
	}
	if t.view != nil {
		v := t.view.Version
		st.Version = &v
		st.State = t.view.State
	}
	return st
}

func (t *table) sessionsLocked(exceptUser string) []string {
	out := make([]string, 0, len(t.members))
	for _, m := range t.members {
		if m.userID != exceptUser {
			out = append(out, m.sessionID)
		}
	}
	return out
}

// Registry tracks per-table membership independently of seat occupancy.
// Every table has its own lock; the registry lock only guards the maps and
// is always taken before a table lock. Table entries live until Forget.
type Registry struct {
	mu       sync.Mutex
	tables   map[string]*table
	sessions map[string]Subscriber

	ttl    time.Duration
	source StateSource
	mirror Mirror
}

type Option func(*Registry)

func WithStateSource(src StateSource) Option {
	return func(r *Registry) { r.source = src }
}

func WithMirror(m Mirror) Option {
	return func(r *Registry) { r.mirror = m }
}

// NewRegistry builds a registry. ttl is how long a disconnected member is
// kept; zero removes it immediately.
func NewRegistry(ttl time.Duration, opts ...Option) *Registry {
	r := &Registry{
		tables:   make(map[string]*table),
		sessions: make(map[string]Subscriber),
		ttl:      ttl,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetStateSource wires the game layer after construction.
func (r *Registry) SetStateSource(src StateSource) {
	r.mu.Lock()
	r.source = src
	r.mu.Unlock()
}

func (r *Registry) tableFor(tableID string, create bool) *table {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tables[tableID]
	if !ok && create {
		t = &table{}
		r.tables[tableID] = t
	}
	return t
}

func (r *Registry) Attach(sub Subscriber) {
	r.mu.Lock()
	r.sessions[sub.SessionID()] = sub
	r.mu.Unlock()
}

func (r *Registry) subscriber(sessionID string) Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[sessionID]
}

// ensureView loads the game view for a table that has none cached.
func (r *Registry) ensureView(tableID string, t *table) {
	t.mu.Lock()
	has := t.view != nil
	t.mu.Unlock()
	r.mu.Lock()
	src := r.source
	r.mu.Unlock()
	if has || src == nil {
		return
	}
	v, ok := src(tableID)
	if !ok {
		return
	}
	t.mu.Lock()
	if t.view == nil || t.view.Version < v.Version {
		t.view = &v
	}
	t.mu.Unlock()
}

// Join adds userID on sessionID. Re-joining is idempotent; a reconnect
// from a new session rebinds the member without changing membership. The
// caller receives the returned state; other members are pushed only when
// membership changed.
func (r *Registry) Join(tableID, userID, sessionID string) (TableState, bool, error) {
	if tableID == "" || userID == "" {
		return TableState{}, false, appErr.ErrInvalidCommand.WithMessage("tableId is required")
	}
	t := r.tableFor(tableID, true)
	r.ensureView(tableID, t)

	t.mu.Lock()
	changed := false
	if i := t.find(userID); i >= 0 {
		m := t.members[i]
		if m.expiry != nil {
			m.expiry.Stop()
			m.expiry = nil
		}
		m.sessionID = sessionID
	} else {
		t.members = append(t.members, &member{userID: userID, sessionID: sessionID})
		changed = true
	}
	st := t.snapshotLocked(tableID)
	var targets []string
	if changed {
		targets = t.sessionsLocked(userID)
	}
	t.mu.Unlock()

	if changed {
		r.mirrorAdded(tableID, userID)
	}
	r.fanOut(targets, st)
	return st, changed, nil
}

// Leave removes userID and pushes the new state to the remaining members.
func (r *Registry) Leave(tableID, userID string) (TableState, error) {
	if tableID == "" {
		return TableState{}, appErr.ErrInvalidCommand.WithMessage("tableId is required")
	}
	t := r.tableFor(tableID, false)
	if t == nil {
		return TableState{}, appErr.ErrInvalidCommand.WithMessage("not a member of %s", tableID)
	}
	st, ok := r.remove(tableID, t, userID, "")
	if !ok {
		return TableState{}, appErr.ErrInvalidCommand.WithMessage("not a member of %s", tableID)
	}
	return st, nil
}

// remove drops userID. When sessionID is set the member is only removed if
// still bound to that session, so a reconnect wins over a stale expiry.
func (r *Registry) remove(tableID string, t *table, userID, sessionID string) (TableState, bool) {
	t.mu.Lock()
	i := t.find(userID)
	if i < 0 || (sessionID != "" && t.members[i].sessionID != sessionID) {
		t.mu.Unlock()
		return TableState{}, false
	}
	if m := t.members[i]; m.expiry != nil {
		m.expiry.Stop()
	}
	t.members = append(t.members[:i], t.members[i+1:]...)
	st := t.snapshotLocked(tableID)
	targets := t.sessionsLocked("")
	t.mu.Unlock()

	r.mirrorRemoved(tableID, userID)
	r.fanOut(targets, st)
	return st, true
}

// Snapshot returns the current state without changing membership; it backs
// table_state_sub and resync.
func (r *Registry) Snapshot(tableID string) TableState {
	t := r.tableFor(tableID, false)
	if t == nil {
		t = &table{}
		r.ensureView(tableID, t)
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.snapshotLocked(tableID)
	}
	r.ensureView(tableID, t)
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked(tableID)
}

// IsMember reports whether userID is currently in the table's member set.
func (r *Registry) IsMember(tableID, userID string) bool {
	t := r.tableFor(tableID, false)
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.find(userID) >= 0
}

// Publish records a new game view and pushes it to every member. The game
// layer calls it in version order.
func (r *Registry) Publish(tableID string, v View) {
	t := r.tableFor(tableID, true)
	t.mu.Lock()
	if t.view != nil && t.view.Version > v.Version {
		t.mu.Unlock()
		return
	}
	t.view = &v
	st := t.snapshotLocked(tableID)
	targets := t.sessionsLocked("")
	t.mu.Unlock()
	r.fanOut(targets, st)
}

// Forget drops a closed table. Remaining members receive a final push
// without game state.
func (r *Registry) Forget(tableID string) {
	r.mu.Lock()
	t := r.tables[tableID]
	delete(r.tables, tableID)
	r.mu.Unlock()
	if t == nil {
		return
	}
	t.mu.Lock()
	t.view = nil
	for _, m := range t.members {
		if m.expiry != nil {
			m.expiry.Stop()
		}
	}
	st := t.snapshotLocked(tableID)
	targets := t.sessionsLocked("")
	t.members = nil
	t.mu.Unlock()
	r.fanOut(targets, st)
}

// Disconnect handles a closed session. Its memberships expire after the
// TTL, or right away when the TTL is zero.
func (r *Registry) Disconnect(sessionID string) {
	r.mu.Lock()
	delete(r.sessions, sessionID)
	type hit struct {
		tableID string
		t       *table
		userID  string
	}
	var hits []hit
	for id, t := range r.tables {
		t.mu.Lock()
		for _, m := range t.members {
			if m.sessionID == sessionID {
				hits = append(hits, hit{tableID: id, t: t, userID: m.userID})
			}
		}
		t.mu.Unlock()
	}
	r.mu.Unlock()

	for _, h := range hits {
		if r.ttl <= 0 {
			r.remove(h.tableID, h.t, h.userID, sessionID)
			continue
		}
		h := h
		h.t.mu.Lock()
		if i := h.t.find(h.userID); i >= 0 && h.t.members[i].sessionID == sessionID {
			m := h.t.members[i]
			if m.expiry != nil {
				m.expiry.Stop()
			}
			m.expiry = time.AfterFunc(r.ttl, func() {
				if _, ok := r.remove(h.tableID, h.t, h.userID, sessionID); ok {
					logger.Log.Debug("presence expired",
						zap.String("tableId", h.tableID), zap.String("userId", h.userID))
				}
			})
		}
		h.t.mu.Unlock()
	}
}

func (r *Registry) fanOut(sessionIDs []string, st TableState) {
	for _, sid := range sessionIDs {
		sub := r.subscriber(sid)
		if sub == nil {
			continue
		}
		if !sub.Push(st) {
			logger.Log.Warn("table_state push dropped",
				zap.String("tableId", st.TableID), zap.String("sessionId", sid))
		}
	}
}

func (r *Registry) mirrorAdded(tableID, userID string) {
	if r.mirror != nil {
		r.mirror.Added(context.Background(), tableID, userID)
	}
}

func (r *Registry) mirrorRemoved(tableID, userID string) {
	if r.mirror != nil {
		r.mirror.Removed(context.Background(), tableID, userID)
	}
}

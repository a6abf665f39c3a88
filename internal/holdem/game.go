package holdem

import (
	"fmt"
	"time"

	appErr "poker-service/pkg/errors"
	"poker-service/pkg/utils/random"
)

// Game is the authoritative state of one table. It is not safe for
// concurrent use; the owning runtime serialises access.
type Game struct {
	Config     Config  `json:"config"`
	Seats      []*Seat `json:"seats"`
	Hand       *Hand   `json:"hand,omitempty"`
	HandNo     int64   `json:"handNo"`
	Button     int     `json:"button"`
	LastResult *Result `json:"lastResult,omitempty"`

	shuffle func([]Card)
}

func NewGame(cfg Config) (*Game, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Game{
		Config: cfg,
		Seats:  make([]*Seat, cfg.MaxPlayers),
		Button: -1,
	}, nil
}

// SetShuffler replaces the deck shuffler. Tests use it to stack the deck.
func (g *Game) SetShuffler(fn func([]Card)) {
	g.shuffle = fn
}

func cryptoShuffle(deck []Card) {
	random.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })
}

func (g *Game) Phase() Phase {
	if g.Hand == nil {
		return PhaseWaiting
	}
	return g.Hand.Phase
}

func (g *Game) InHand() bool {
	return g.Hand != nil
}

func (g *Game) Pot() int64 {
	if g.Hand == nil {
		return 0
	}
	return g.Hand.Pot()
}

func (g *Game) Seat(seatNo int) *Seat {
	if seatNo < 0 || seatNo >= len(g.Seats) {
		return nil
	}
	return g.Seats[seatNo]
}

func (g *Game) SeatOf(userID string) *Seat {
	for _, s := range g.Seats {
		if s != nil && s.UserID == userID {
			return s
		}
	}
	return nil
}

func (g *Game) OccupiedSeats() int {
	n := 0
	for _, s := range g.Seats {
		if s != nil {
			n++
		}
	}
	return n
}

// TotalChips is sum(stacks) + pot.
func (g *Game) TotalChips() int64 {
	total := g.Pot()
	for _, s := range g.Seats {
		if s != nil {
			total += s.Stack
		}
	}
	return total
}

func (g *Game) FreeSeat() int {
	for i, s := range g.Seats {
		if s == nil {
			return i
		}
	}
	return -1
}

// Sit places a new occupant. A negative seatNo picks the lowest free seat.
func (g *Game) Sit(seat Seat, now time.Time) (*Seat, error) {
	if g.SeatOf(seat.UserID) != nil {
		return nil, appErr.ErrAlreadySeated
	}
	if seat.SeatNo < 0 {
		seat.SeatNo = g.FreeSeat()
		if seat.SeatNo < 0 {
			return nil, appErr.ErrTableFull
		}
	}
	if seat.SeatNo >= len(g.Seats) {
		return nil, appErr.ErrIllegalAction.WithMessage("seat %d does not exist", seat.SeatNo)
	}
	if g.Seats[seat.SeatNo] != nil {
		if g.FreeSeat() < 0 {
			return nil, appErr.ErrTableFull
		}
		return nil, appErr.ErrSeatTaken
	}
	if seat.Stack <= 0 {
		return nil, appErr.ErrInsufficientStack.WithMessage("buy-in must be positive")
	}
	s := seat
	s.BuyIn = seat.Stack
	s.Status = SeatActive
	s.LastHeartbeat = now
	s.JoinedAt = now
	g.Seats[s.SeatNo] = &s
	return &s, nil
}

// Stand removes the occupant of seatNo and returns the stack to cash out.
// A seat still live in the current hand is folded first.
func (g *Game) Stand(seatNo int, now time.Time) (int64, *Result, error) {
	s := g.Seat(seatNo)
	if s == nil {
		return 0, nil, appErr.ErrNotSeated
	}
	var res *Result
	if g.Hand != nil {
		var err error
		res, err = g.ForceFold(seatNo, now)
		if err != nil {
			return 0, nil, err
		}
	}
	// settlement may have credited the seat
	stack := g.Seats[seatNo].Stack
	g.Seats[seatNo] = nil
	return stack, res, nil
}

func (g *Game) eligibleForHand(s *Seat) bool {
	return s != nil && s.Status == SeatActive && s.Stack > 0
}

// nextSeat walks clockwise from after `from` and returns the first seat
// index satisfying pred, or -1.
func (g *Game) nextSeat(from int, pred func(int) bool) int {
	n := len(g.Seats)
	for i := 1; i <= n; i++ {
		idx := ((from+i)%n + n) % n
		if pred(idx) {
			return idx
		}
	}
	return -1
}

// StartHand posts blinds and deals. The hand can settle immediately when
// the blinds put everyone all-in, in which case the Result is returned.
func (g *Game) StartHand(now time.Time) (*Result, error) {
	if g.Hand != nil {
		return nil, appErr.ErrHandInProgress
	}
	eligible := 0
	for _, s := range g.Seats {
		if g.eligibleForHand(s) {
			eligible++
		}
	}
	if eligible < 2 {
		return nil, appErr.ErrNotEnoughPlayers
	}

	dealtIn := func(i int) bool { return g.eligibleForHand(g.Seats[i]) }
	g.Button = g.nextSeat(g.Button, dealtIn)

	h := &Hand{
		Phase:     PhasePreflop,
		Deck:      newDeck(),
		Players:   make([]*HandPlayer, len(g.Seats)),
		Button:    g.Button,
		TurnSeat:  -1,
		StartedAt: now,
	}
	shuffle := g.shuffle
	if shuffle == nil {
		shuffle = cryptoShuffle
	}
	shuffle(h.Deck)

	for i, s := range g.Seats {
		if dealtIn(i) {
			h.Players[i] = &HandPlayer{SeatNo: i, UserID: s.UserID, CanRaise: true}
		}
	}

	if eligible == 2 {
		h.SmallBlindSeat = g.Button
	} else {
		h.SmallBlindSeat = g.nextSeat(g.Button, dealtIn)
	}
	h.BigBlindSeat = g.nextSeat(h.SmallBlindSeat, dealtIn)

	g.Hand = h
	g.HandNo++
	g.LastResult = nil

	g.postLocked(h.SmallBlindSeat, g.Config.SmallBlind)
	g.postLocked(h.BigBlindSeat, g.Config.BigBlind)
	h.CurrentBet = g.Config.BigBlind
	h.MinRaise = g.Config.BigBlind

	// one card at a time, starting left of the button, to every seat in
	// the roster including those a blind put all-in
	inHand := func(i int) bool { return h.Players[i] != nil }
	for round := 0; round < 2; round++ {
		seat := h.SmallBlindSeat
		for i := 0; i < eligible; i++ {
			h.Players[seat].Hole = append(h.Players[seat].Hole, g.drawLocked())
			seat = g.nextSeat(seat, inHand)
		}
	}

	return g.afterActionLocked(h.BigBlindSeat, now)
}

func (g *Game) postLocked(seatNo int, amount int64) {
	g.payLocked(seatNo, amount)
}

// payLocked moves up to amount from the seat's stack into its street bet.
func (g *Game) payLocked(seatNo int, amount int64) int64 {
	s := g.Seats[seatNo]
	p := g.Hand.Players[seatNo]
	if amount > s.Stack {
		amount = s.Stack
	}
	s.Stack -= amount
	p.StreetBet += amount
	p.Committed += amount
	if s.Stack == 0 {
		p.AllIn = true
	}
	return amount
}

func (g *Game) drawLocked() Card {
	h := g.Hand
	c := h.Deck[0]
	h.Deck = h.Deck[1:]
	return c
}

func (g *Game) dealBoardLocked(n int) {
	g.drawLocked() // burn
	for i := 0; i < n; i++ {
		g.Hand.Board = append(g.Hand.Board, g.drawLocked())
	}
}

func (g *Game) countPlayers(pred func(*HandPlayer) bool) int {
	n := 0
	for _, p := range g.Hand.Players {
		if p != nil && pred(p) {
			n++
		}
	}
	return n
}

func (g *Game) needsAction(p *HandPlayer) bool {
	return p.actionable() && (!p.Acted || p.StreetBet < g.Hand.CurrentBet)
}

func (g *Game) nextToActLocked(from int) int {
	return g.nextSeat(from, func(i int) bool {
		p := g.Hand.Players[i]
		return p != nil && g.needsAction(p)
	})
}

// TurnUserID is the user expected to act, or "" outside betting.
func (g *Game) TurnUserID() string {
	if g.Hand == nil || g.Hand.TurnSeat < 0 {
		return ""
	}
	return g.Hand.Players[g.Hand.TurnSeat].UserID
}

func (g *Game) TurnDeadline(timeout time.Duration) time.Time {
	if g.Hand == nil || g.Hand.TurnSeat < 0 {
		return time.Time{}
	}
	return g.Hand.TurnStartedAt.Add(timeout)
}

// HoleCards returns a copy of the private cards dealt to userID.
func (g *Game) HoleCards(userID string) []Card {
	if g.Hand == nil {
		return nil
	}
	for _, p := range g.Hand.Players {
		if p != nil && p.UserID == userID {
			return append([]Card(nil), p.Hole...)
		}
	}
	return nil
}

func (g *Game) String() string {
	return fmt.Sprintf("holdem.Game{hand=%d phase=%s pot=%d}", g.HandNo, g.Phase(), g.Pot())
}

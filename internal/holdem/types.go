package holdem

import (
	"fmt"
	"time"
)

type Phase string

const (
	PhaseWaiting    Phase = "WAITING_FOR_PLAYERS"
	PhasePreflop    Phase = "PREFLOP"
	PhaseFlop       Phase = "FLOP"
	PhaseTurn       Phase = "TURN"
	PhaseRiver      Phase = "RIVER"
	PhaseSettlement Phase = "SETTLEMENT"
)

func (p Phase) next() Phase {
	switch p {
	case PhasePreflop:
		return PhaseFlop
	case PhaseFlop:
		return PhaseTurn
	case PhaseTurn:
		return PhaseRiver
	default:
		return PhaseSettlement
	}
}

// IsBetting reports whether the phase accepts player actions.
func (p Phase) IsBetting() bool {
	switch p {
	case PhasePreflop, PhaseFlop, PhaseTurn, PhaseRiver:
		return true
	}
	return false
}

type ActionType string

const (
	ActionFold  ActionType = "FOLD"
	ActionCheck ActionType = "CHECK"
	ActionCall  ActionType = "CALL"
	ActionBet   ActionType = "BET"
	ActionRaise ActionType = "RAISE"
)

func ParseAction(s string) (ActionType, bool) {
	switch a := ActionType(s); a {
	case ActionFold, ActionCheck, ActionCall, ActionBet, ActionRaise:
		return a, true
	}
	return "", false
}

type SeatStatus string

const (
	SeatActive     SeatStatus = "ACTIVE"
	SeatSittingOut SeatStatus = "SITTING_OUT"
	SeatInactive   SeatStatus = "INACTIVE"
)

type Config struct {
	SmallBlind int64 `json:"smallBlind"`
	BigBlind   int64 `json:"bigBlind"`
	MaxPlayers int   `json:"maxPlayers"`
}

func (c Config) Validate() error {
	if c.SmallBlind <= 0 || c.BigBlind <= 0 {
		return fmt.Errorf("blinds must be positive")
	}
	if c.SmallBlind > c.BigBlind {
		return fmt.Errorf("small blind %d exceeds big blind %d", c.SmallBlind, c.BigBlind)
	}
	if c.MaxPlayers < 2 || c.MaxPlayers > 10 {
		return fmt.Errorf("maxPlayers must be within [2,10], got %d", c.MaxPlayers)
	}
	return nil
}

type Seat struct {
	SeatNo        int        `json:"seatNo"`
	UserID        string     `json:"userId"`
	DisplayName   string     `json:"displayName,omitempty"`
	IsBot         bool       `json:"isBot"`
	OwnerUserID   string     `json:"ownerUserId,omitempty"`
	Stack         int64      `json:"stack"`
	BuyIn         int64      `json:"buyIn"`
	Status        SeatStatus `json:"status"`
	LastHeartbeat time.Time  `json:"lastHeartbeat"`
	JoinedAt      time.Time  `json:"joinedAt"`
}

// HandPlayer is per-hand state for a dealt-in seat. It outlives the seat
// when the occupant leaves mid-hand so that their committed chips stay
// attributed for side-pot layering.
type HandPlayer struct {
	SeatNo     int        `json:"seatNo"`
	UserID     string     `json:"userId"`
	Hole       []Card     `json:"hole"`
	StreetBet  int64      `json:"streetBet"`
	Committed  int64      `json:"committed"`
	Folded     bool       `json:"folded"`
	AllIn      bool       `json:"allIn"`
	Acted      bool       `json:"acted"`
	CanRaise   bool       `json:"canRaise"`
	LastAction ActionType `json:"lastAction,omitempty"`
}

func (p *HandPlayer) actionable() bool {
	return p != nil && !p.Folded && !p.AllIn
}

type Hand struct {
	Phase          Phase         `json:"phase"`
	Deck           []Card        `json:"deck"`
	Board          []Card        `json:"board"`
	Players        []*HandPlayer `json:"players"`
	Button         int           `json:"button"`
	SmallBlindSeat int           `json:"smallBlindSeat"`
	BigBlindSeat   int           `json:"bigBlindSeat"`
	CurrentBet     int64         `json:"currentBet"`
	MinRaise       int64         `json:"minRaise"`
	Collected      int64         `json:"collected"`
	TurnSeat       int           `json:"turnSeat"`
	TurnStartedAt  time.Time     `json:"turnStartedAt"`
	StartedAt      time.Time     `json:"startedAt"`
}

// Pot is every chip in the middle, including the current street's bets.
func (h *Hand) Pot() int64 {
	total := h.Collected
	for _, p := range h.Players {
		if p != nil {
			total += p.StreetBet
		}
	}
	return total
}

// LegalActions is a pure projection of the hand for the acting seat.
type LegalActions struct {
	SeatNo     int          `json:"seatNo"`
	Actions    []ActionType `json:"actions"`
	ToCall     int64        `json:"toCall"`
	MinRaiseTo int64        `json:"minRaiseTo,omitempty"`
	MaxRaiseTo int64        `json:"maxRaiseTo,omitempty"`
}

func (l LegalActions) Allows(a ActionType) bool {
	for _, x := range l.Actions {
		if x == a {
			return true
		}
	}
	return false
}

type PotResult struct {
	Amount   int64 `json:"amount"`
	Eligible []int `json:"eligible"`
	Winners  []int `json:"winners"`
}

type Payout struct {
	SeatNo   int    `json:"seatNo"`
	UserID   string `json:"userId"`
	Amount   int64  `json:"amount"`
	HandName string `json:"handName,omitempty"`
}

type Reveal struct {
	SeatNo   int    `json:"seatNo"`
	UserID   string `json:"userId"`
	Cards    []Card `json:"cards"`
	HandName string `json:"handName"`
}

type Result struct {
	HandNo    int64       `json:"handNo"`
	Board     []Card      `json:"board"`
	Pot       int64       `json:"pot"`
	Pots      []PotResult `json:"pots"`
	Payouts   []Payout    `json:"payouts"`
	Showdown  bool        `json:"showdown"`
	Reveals   []Reveal    `json:"reveals,omitempty"`
	SettledAt time.Time   `json:"settledAt"`
}

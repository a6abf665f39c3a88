package holdem

import (
	"time"

	appErr "poker-service/pkg/errors"
)

// Legal computes the legal actions of the seat whose turn it is.
func (g *Game) Legal() (LegalActions, bool) {
	if g.Hand == nil || !g.Hand.Phase.IsBetting() || g.Hand.TurnSeat < 0 {
		return LegalActions{}, false
	}
	return g.legalFor(g.Hand.TurnSeat), true
}

func (g *Game) legalFor(seatNo int) LegalActions {
	h := g.Hand
	p := h.Players[seatNo]
	s := g.Seats[seatNo]
	la := LegalActions{SeatNo: seatNo}
	if p == nil || s == nil || !p.actionable() {
		return la
	}

	toCall := h.CurrentBet - p.StreetBet
	if toCall < 0 {
		toCall = 0
	}
	others := g.countPlayers(func(o *HandPlayer) bool { return o.SeatNo != seatNo && o.actionable() })
	maxTo := p.StreetBet + s.Stack

	la.Actions = append(la.Actions, ActionFold)
	if toCall == 0 {
		la.Actions = append(la.Actions, ActionCheck)
	} else {
		la.ToCall = min64(toCall, s.Stack)
		la.Actions = append(la.Actions, ActionCall)
	}

	if others == 0 || s.Stack <= toCall {
		return la
	}
	if h.CurrentBet == 0 {
		la.Actions = append(la.Actions, ActionBet)
		la.MinRaiseTo = min64(g.Config.BigBlind, maxTo)
		la.MaxRaiseTo = maxTo
	} else if p.CanRaise {
		la.Actions = append(la.Actions, ActionRaise)
		la.MinRaiseTo = min64(h.CurrentBet+h.MinRaise, maxTo)
		la.MaxRaiseTo = maxTo
	}
	return la
}

// DefaultAction is what a timed-out seat does: check when free, else fold.
func (g *Game) DefaultAction() ActionType {
	la, ok := g.Legal()
	if ok && la.Allows(ActionCheck) {
		return ActionCheck
	}
	return ActionFold
}

// Act applies an action by seatNo. For BET and RAISE, amount is the seat's
// total street commitment after the action. A non-nil Result means the
// hand settled.
func (g *Game) Act(seatNo int, action ActionType, amount int64, now time.Time) (*Result, error) {
	h := g.Hand
	if h == nil || !h.Phase.IsBetting() {
		return nil, appErr.ErrIllegalAction.WithMessage("no hand in progress")
	}
	if h.TurnSeat != seatNo {
		return nil, appErr.ErrNotYourTurn
	}
	la := g.legalFor(seatNo)
	if !la.Allows(action) {
		return nil, appErr.ErrIllegalAction.WithMessage("%s is not legal now", action)
	}

	p := h.Players[seatNo]
	s := g.Seats[seatNo]
	switch action {
	case ActionFold:
		p.Folded = true
	case ActionCheck:
	case ActionCall:
		g.payLocked(seatNo, h.CurrentBet-p.StreetBet)
	case ActionBet, ActionRaise:
		maxTo := p.StreetBet + s.Stack
		if amount > maxTo {
			return nil, appErr.ErrInsufficientStack.WithMessage("amount %d exceeds stack", amount)
		}
		if amount <= h.CurrentBet {
			return nil, appErr.ErrIllegalAction.WithMessage("amount %d must exceed current bet %d", amount, h.CurrentBet)
		}
		if amount < la.MinRaiseTo && amount != maxTo {
			return nil, appErr.ErrIllegalAction.WithMessage("minimum is %d", la.MinRaiseTo)
		}
		increase := amount - h.CurrentBet
		full := increase >= h.MinRaise
		g.payLocked(seatNo, amount-p.StreetBet)
		for _, o := range h.Players {
			if o == nil || o.SeatNo == seatNo || !o.actionable() {
				continue
			}
			if full {
				o.CanRaise = true
			} else if o.Acted {
				// a short all-in does not reopen betting for those who already acted
				o.CanRaise = false
			}
			o.Acted = false
		}
		if full {
			h.MinRaise = increase
		}
		h.CurrentBet = amount
	}
	p.Acted = true
	p.LastAction = action
	return g.afterActionLocked(seatNo, now)
}

// ForceFold folds seatNo regardless of whose turn it is.
func (g *Game) ForceFold(seatNo int, now time.Time) (*Result, error) {
	h := g.Hand
	if h == nil {
		return nil, nil
	}
	p := h.Players[seatNo]
	if p == nil || p.Folded {
		return nil, nil
	}
	if h.TurnSeat == seatNo {
		return g.Act(seatNo, ActionFold, 0, now)
	}
	p.Folded = true
	p.LastAction = ActionFold
	if g.countPlayers(func(o *HandPlayer) bool { return !o.Folded }) <= 1 {
		return g.settleLocked(now)
	}
	return nil, nil
}

func (g *Game) afterActionLocked(lastSeat int, now time.Time) (*Result, error) {
	h := g.Hand
	if g.countPlayers(func(p *HandPlayer) bool { return !p.Folded }) <= 1 {
		return g.settleLocked(now)
	}
	next := g.nextToActLocked(lastSeat)
	if next >= 0 {
		h.TurnSeat = next
		h.TurnStartedAt = now
		return nil, nil
	}
	return g.endStreetLocked(now)
}

func (g *Game) endStreetLocked(now time.Time) (*Result, error) {
	h := g.Hand
	for _, p := range h.Players {
		if p == nil {
			continue
		}
		h.Collected += p.StreetBet
		p.StreetBet = 0
		p.Acted = false
		p.CanRaise = true
	}
	h.CurrentBet = 0
	h.MinRaise = g.Config.BigBlind
	h.TurnSeat = -1

	if h.Phase == PhaseRiver {
		return g.settleLocked(now)
	}
	if g.countPlayers(func(p *HandPlayer) bool { return p.actionable() }) <= 1 {
		// nobody left to bet against: run out the board
		for h.Phase != PhaseRiver {
			h.Phase = h.Phase.next()
			g.dealStreetLocked()
		}
		return g.settleLocked(now)
	}

	h.Phase = h.Phase.next()
	g.dealStreetLocked()
	h.TurnSeat = g.nextToActLocked(h.Button)
	h.TurnStartedAt = now
	return nil, nil
}

func (g *Game) dealStreetLocked() {
	switch g.Hand.Phase {
	case PhaseFlop:
		g.dealBoardLocked(3)
	case PhaseTurn, PhaseRiver:
		g.dealBoardLocked(1)
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

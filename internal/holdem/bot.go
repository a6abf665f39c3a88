package holdem

// BotDecision picks an action for the seat whose turn it is. The rule set
// is deliberately simple and deterministic: rate the hand, compare with
// the price of continuing, then check, call, raise or fold.
func (g *Game) BotDecision() (ActionType, int64) {
	la, ok := g.Legal()
	if !ok {
		return ActionFold, 0
	}
	p := g.Hand.Players[la.SeatNo]
	strength := handStrength(p.Hole, g.Hand.Board)

	aggressive := la.Allows(ActionRaise) || la.Allows(ActionBet)
	if strength >= 0.75 && aggressive {
		if la.Allows(ActionBet) {
			return ActionBet, la.MinRaiseTo
		}
		return ActionRaise, la.MinRaiseTo
	}
	if la.Allows(ActionCheck) {
		return ActionCheck, 0
	}

	pot := g.Hand.Pot()
	price := float64(la.ToCall) / float64(pot+la.ToCall)
	if la.ToCall <= g.Config.BigBlind || strength >= price+0.1 {
		return ActionCall, 0
	}
	return ActionFold, 0
}

// handStrength rates a holding in [0,1] from made pairs and high cards.
func handStrength(hole, board []Card) float64 {
	if len(hole) != 2 {
		return 0
	}
	hi, lo := hole[0].Rank(), hole[1].Rank()
	if lo > hi {
		hi, lo = lo, hi
	}

	if len(board) == 0 {
		if hi == lo {
			return 0.6 + float64(hi)/30
		}
		s := float64(hi+lo) / 24 * 0.5
		if hole[0].Suit() == hole[1].Suit() {
			s += 0.05
		}
		if hi-lo == 1 {
			s += 0.05
		}
		return s
	}

	matches := 0
	for _, c := range board {
		if c.Rank() == hi || c.Rank() == lo {
			matches++
		}
	}
	switch {
	case hi == lo && matches > 0:
		return 0.9
	case matches >= 2:
		return 0.8
	case hi == lo:
		return 0.55 + float64(hi)/60
	case matches == 1:
		return 0.5 + float64(hi)/60
	default:
		return 0.15 + float64(hi)/60
	}
}

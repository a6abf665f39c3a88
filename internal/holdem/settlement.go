package holdem

import (
	"sort"
	"time"
)

// buildPots layers every contribution of the hand into a main pot and side
// pots. Folded players fund pots but are never eligible. A layer funded
// only by folded players goes to the previous layer's contenders.
func (g *Game) buildPots() []PotResult {
	players := make([]*HandPlayer, 0, len(g.Hand.Players))
	for _, p := range g.Hand.Players {
		if p != nil && p.Committed > 0 {
			players = append(players, p)
		}
	}
	sort.Slice(players, func(i, j int) bool { return players[i].Committed < players[j].Committed })

	var pots []PotResult
	var prev int64
	for i, p := range players {
		level := p.Committed
		if level == prev {
			continue
		}
		pot := PotResult{}
		for _, q := range players[i:] {
			pot.Amount += level - prev
			if !q.Folded {
				pot.Eligible = append(pot.Eligible, q.SeatNo)
			}
		}
		prev = level

		if len(pot.Eligible) == 0 && len(pots) > 0 {
			pots[len(pots)-1].Amount += pot.Amount
			continue
		}
		if len(pots) > 0 && sameSeats(pots[len(pots)-1].Eligible, pot.Eligible) {
			pots[len(pots)-1].Amount += pot.Amount
			continue
		}
		pots = append(pots, pot)
	}
	if len(pots) > 0 && len(pots[0].Eligible) == 0 {
		// every contributor folded; only possible when the sole survivor never committed
		for _, p := range g.Hand.Players {
			if p != nil && !p.Folded {
				pots[0].Eligible = append(pots[0].Eligible, p.SeatNo)
			}
		}
	}
	for i := range pots {
		sort.Ints(pots[i].Eligible)
	}
	return pots
}

func sameSeats(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[int]bool, len(a))
	for _, x := range a {
		seen[x] = true
	}
	for _, x := range b {
		if !seen[x] {
			return false
		}
	}
	return true
}

// settleLocked pays every pot, resets the table to WAITING_FOR_PLAYERS and
// returns the hand's result.
func (g *Game) settleLocked(now time.Time) (*Result, error) {
	h := g.Hand
	h.Phase = PhaseSettlement
	h.TurnSeat = -1
	for _, p := range h.Players {
		if p != nil {
			h.Collected += p.StreetBet
			p.StreetBet = 0
		}
	}

	res := &Result{
		HandNo:    g.HandNo,
		Board:     append([]Card(nil), h.Board...),
		Pot:       h.Collected,
		Pots:      g.buildPots(),
		SettledAt: now,
	}

	contenders := make([]*HandPlayer, 0)
	for _, p := range h.Players {
		if p != nil && !p.Folded {
			contenders = append(contenders, p)
		}
	}

	scores := make(map[int]int16, len(contenders))
	names := make(map[int]string, len(contenders))
	res.Showdown = len(contenders) > 1
	if res.Showdown {
		for _, p := range contenders {
			score, name, err := evaluate7(p.Hole, h.Board)
			if err != nil {
				return nil, err
			}
			scores[p.SeatNo] = score
			names[p.SeatNo] = name
			res.Reveals = append(res.Reveals, Reveal{
				SeatNo:   p.SeatNo,
				UserID:   p.UserID,
				Cards:    append([]Card(nil), p.Hole...),
				HandName: name,
			})
		}
	}

	won := make(map[int]int64)
	for i := range res.Pots {
		pot := &res.Pots[i]
		pot.Winners = g.potWinners(pot.Eligible, scores, res.Showdown)
		if len(pot.Winners) == 0 {
			continue
		}
		share := pot.Amount / int64(len(pot.Winners))
		odd := pot.Amount - share*int64(len(pot.Winners))
		for j, seatNo := range pot.Winners {
			won[seatNo] += share
			// odd chips go one at a time from the first seat left of the button
			if int64(j) < odd {
				won[seatNo]++
			}
		}
	}

	for seatNo := range g.Seats {
		amount, ok := won[seatNo]
		if !ok || amount == 0 {
			continue
		}
		p := h.Players[seatNo]
		if s := g.Seats[seatNo]; s != nil && s.UserID == p.UserID {
			s.Stack += amount
		}
		res.Payouts = append(res.Payouts, Payout{
			SeatNo:   seatNo,
			UserID:   p.UserID,
			Amount:   amount,
			HandName: names[seatNo],
		})
	}

	for _, s := range g.Seats {
		if s != nil && s.Stack == 0 && s.Status == SeatActive {
			s.Status = SeatSittingOut
		}
	}
	g.Hand = nil
	g.LastResult = res
	return res, nil
}

// potWinners returns the best-scoring eligible seats ordered from the first
// seat left of the button.
func (g *Game) potWinners(eligible []int, scores map[int]int16, showdown bool) []int {
	ordered := make([]int, 0, len(eligible))
	n := len(g.Seats)
	for i := 1; i <= n; i++ {
		seat := (g.Hand.Button + i) % n
		for _, e := range eligible {
			if e == seat {
				ordered = append(ordered, seat)
			}
		}
	}
	if !showdown {
		return ordered
	}
	var best int16 = -1
	for _, seat := range ordered {
		if scores[seat] > best {
			best = scores[seat]
		}
	}
	winners := make([]int, 0, 1)
	for _, seat := range ordered {
		if scores[seat] == best {
			winners = append(winners, seat)
		}
	}
	return winners
}

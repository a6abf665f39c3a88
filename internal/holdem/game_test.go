package holdem

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	appErr "poker-service/pkg/errors"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// stackedDeck puts the given cards on top in order, keeping the remaining
// cards in natural order.
func stackedDeck(top ...string) func([]Card) {
	cards := MustParseCards(top...)
	return func(deck []Card) {
		used := make(map[Card]bool, len(cards))
		out := make([]Card, 0, len(deck))
		for _, c := range cards {
			used[c] = true
			out = append(out, c)
		}
		for _, c := range newDeck() {
			if !used[c] {
				out = append(out, c)
			}
		}
		copy(deck, out)
	}
}

func newTestGame(t *testing.T, stacks ...int64) *Game {
	t.Helper()
	g, err := NewGame(Config{SmallBlind: 1, BigBlind: 2, MaxPlayers: len(stacks)})
	if err != nil {
		t.Fatalf("NewGame err: %v", err)
	}
	for i, stack := range stacks {
		if _, err := g.Sit(Seat{SeatNo: i, UserID: userName(i), Stack: stack}, t0); err != nil {
			t.Fatalf("sit %d err: %v", i, err)
		}
	}
	return g
}

func userName(i int) string {
	return string(rune('a' + i))
}

func mustAct(t *testing.T, g *Game, seat int, action ActionType, amount int64) *Result {
	t.Helper()
	res, err := g.Act(seat, action, amount, t0)
	if err != nil {
		t.Fatalf("seat %d %s %d err: %v", seat, action, amount, err)
	}
	return res
}

func TestStartHandHeadsUp(t *testing.T) {
	g := newTestGame(t, 100, 100)
	if _, err := g.StartHand(t0); err != nil {
		t.Fatalf("StartHand err: %v", err)
	}

	if g.Phase() != PhasePreflop {
		t.Fatalf("expected PREFLOP, got %s", g.Phase())
	}
	h := g.Hand
	if h.Button != 0 || h.SmallBlindSeat != 0 || h.BigBlindSeat != 1 {
		t.Fatalf("unexpected positions: button=%d sb=%d bb=%d", h.Button, h.SmallBlindSeat, h.BigBlindSeat)
	}
	if g.Seats[0].Stack != 99 || g.Seats[1].Stack != 98 {
		t.Fatalf("blinds not posted: %d/%d", g.Seats[0].Stack, g.Seats[1].Stack)
	}
	if h.TurnSeat != 0 || g.TurnUserID() != "a" {
		t.Fatalf("expected dealer to act first heads-up, got seat %d", h.TurnSeat)
	}
	for _, user := range []string{"a", "b"} {
		if n := len(g.HoleCards(user)); n != 2 {
			t.Fatalf("expected 2 hole cards for %s, got %d", user, n)
		}
	}
	if g.Pot() != 3 || g.TotalChips() != 200 {
		t.Fatalf("expected pot 3 and 200 chips, got %d/%d", g.Pot(), g.TotalChips())
	}

	la, ok := g.Legal()
	if !ok {
		t.Fatalf("expected legal actions")
	}
	if la.Allows(ActionCheck) || !la.Allows(ActionCall) || !la.Allows(ActionRaise) {
		t.Fatalf("unexpected legal actions %v", la.Actions)
	}
	if la.ToCall != 1 || la.MinRaiseTo != 4 || la.MaxRaiseTo != 100 {
		t.Fatalf("unexpected bounds %+v", la)
	}
}

func TestStartHandNeedsTwoActiveSeats(t *testing.T) {
	g := newTestGame(t, 100, 100)
	g.Seats[1].Status = SeatInactive
	if _, err := g.StartHand(t0); !errors.Is(err, appErr.ErrNotEnoughPlayers) {
		t.Fatalf("expected not_enough_players, got %v", err)
	}
	g.Seats[1].Status = SeatActive
	if _, err := g.StartHand(t0); err != nil {
		t.Fatalf("StartHand err: %v", err)
	}
	if _, err := g.StartHand(t0); !errors.Is(err, appErr.ErrHandInProgress) {
		t.Fatalf("expected hand_in_progress, got %v", err)
	}
}

func TestActRejectsOutOfTurnAndIllegal(t *testing.T) {
	g := newTestGame(t, 100, 100)
	if _, err := g.StartHand(t0); err != nil {
		t.Fatalf("StartHand err: %v", err)
	}
	if _, err := g.Act(1, ActionCheck, 0, t0); !errors.Is(err, appErr.ErrNotYourTurn) {
		t.Fatalf("expected not_your_turn, got %v", err)
	}
	if _, err := g.Act(0, ActionCheck, 0, t0); !errors.Is(err, appErr.ErrIllegalAction) {
		t.Fatalf("expected illegal_action for check facing a bet, got %v", err)
	}
	if _, err := g.Act(0, ActionRaise, 3, t0); !errors.Is(err, appErr.ErrIllegalAction) {
		t.Fatalf("expected illegal_action for undersized raise, got %v", err)
	}
	if _, err := g.Act(0, ActionRaise, 500, t0); !errors.Is(err, appErr.ErrInsufficientStack) {
		t.Fatalf("expected insufficient_stack, got %v", err)
	}
	if g.TotalChips() != 200 {
		t.Fatalf("rejected actions must not move chips, total=%d", g.TotalChips())
	}
}

func TestCallAndCheckAdvanceToFlop(t *testing.T) {
	g := newTestGame(t, 100, 100)
	if _, err := g.StartHand(t0); err != nil {
		t.Fatalf("StartHand err: %v", err)
	}
	mustAct(t, g, 0, ActionCall, 0)
	if g.Phase() != PhasePreflop || g.Hand.TurnSeat != 1 {
		t.Fatalf("big blind should get the option, phase=%s turn=%d", g.Phase(), g.Hand.TurnSeat)
	}
	mustAct(t, g, 1, ActionCheck, 0)

	if g.Phase() != PhaseFlop {
		t.Fatalf("expected FLOP, got %s", g.Phase())
	}
	if len(g.Hand.Board) != 3 {
		t.Fatalf("expected 3 board cards, got %d", len(g.Hand.Board))
	}
	if g.Hand.TurnSeat != 1 {
		t.Fatalf("big blind acts first postflop heads-up, got %d", g.Hand.TurnSeat)
	}
	if g.Pot() != 4 || g.TotalChips() != 200 {
		t.Fatalf("expected pot 4, got %d (total %d)", g.Pot(), g.TotalChips())
	}
}

func TestShowdownPaysBestHand(t *testing.T) {
	g := newTestGame(t, 100, 100)
	g.SetShuffler(stackedDeck(
		"As", "7c", "Ad", "2d", // hole cards, dealt from the small blind
		"5s", "Kh", "9s", "5c", // burn + flop
		"6s", "3d", // burn + turn
		"6h", "Jh", // burn + river
	))
	if _, err := g.StartHand(t0); err != nil {
		t.Fatalf("StartHand err: %v", err)
	}
	mustAct(t, g, 0, ActionCall, 0)
	mustAct(t, g, 1, ActionCheck, 0)
	var res *Result
	for g.InHand() {
		seat := g.Hand.TurnSeat
		res = mustAct(t, g, seat, ActionCheck, 0)
	}
	if res == nil || !res.Showdown {
		t.Fatalf("expected showdown result, got %+v", res)
	}
	if g.Seats[0].Stack != 102 || g.Seats[1].Stack != 98 {
		t.Fatalf("expected 102/98, got %d/%d", g.Seats[0].Stack, g.Seats[1].Stack)
	}
	if len(res.Payouts) != 1 || res.Payouts[0].UserID != "a" || res.Payouts[0].Amount != 4 {
		t.Fatalf("unexpected payouts %+v", res.Payouts)
	}
	if len(res.Reveals) != 2 {
		t.Fatalf("expected both hands revealed, got %d", len(res.Reveals))
	}
	if g.Phase() != PhaseWaiting {
		t.Fatalf("expected WAITING_FOR_PLAYERS after settlement, got %s", g.Phase())
	}
}

func TestBlindAllInStillDealtAndShowsDown(t *testing.T) {
	g := newTestGame(t, 100, 2)
	g.SetShuffler(stackedDeck(
		"As", "7c", "Ad", "2d",
		"5s", "Kh", "9s", "5c",
		"6s", "3d",
		"6h", "Jh",
	))
	if _, err := g.StartHand(t0); err != nil {
		t.Fatalf("StartHand err: %v", err)
	}
	if !g.Hand.Players[1].AllIn {
		t.Fatalf("big blind should be all-in")
	}
	for _, user := range []string{"a", "b"} {
		if n := len(g.HoleCards(user)); n != 2 {
			t.Fatalf("expected 2 hole cards for %s, got %d", user, n)
		}
	}

	res := mustAct(t, g, 0, ActionCall, 0)
	if res == nil || !res.Showdown || len(res.Board) != 5 {
		t.Fatalf("expected run-out to showdown, got %+v", res)
	}
	if len(res.Payouts) != 1 || res.Payouts[0].UserID != "a" || res.Payouts[0].Amount != 4 {
		t.Fatalf("unexpected payouts %+v", res.Payouts)
	}
	if g.Seats[0].Stack != 102 || g.Seats[1].Stack != 0 || g.TotalChips() != 102 {
		t.Fatalf("unexpected stacks %d/%d", g.Seats[0].Stack, g.Seats[1].Stack)
	}
	if g.InHand() {
		t.Fatalf("hand should be over")
	}
}

func TestFoldEndsHandWithoutShowdown(t *testing.T) {
	g := newTestGame(t, 100, 100)
	if _, err := g.StartHand(t0); err != nil {
		t.Fatalf("StartHand err: %v", err)
	}
	res := mustAct(t, g, 0, ActionFold, 0)
	if res == nil || res.Showdown {
		t.Fatalf("expected uncontested result, got %+v", res)
	}
	if g.Seats[0].Stack != 99 || g.Seats[1].Stack != 101 {
		t.Fatalf("expected 99/101, got %d/%d", g.Seats[0].Stack, g.Seats[1].Stack)
	}
	if g.InHand() {
		t.Fatalf("hand should be over")
	}
}

func TestSidePotsWithAllIns(t *testing.T) {
	g := newTestGame(t, 50, 100, 100)
	g.SetShuffler(stackedDeck(
		"Ks", "7c", "As", // first card: sb, bb, button
		"Kd", "2d", "Ad",
		"5s", "9h", "8s", "4c",
		"6s", "3d",
		"6h", "Jh",
	))
	if _, err := g.StartHand(t0); err != nil {
		t.Fatalf("StartHand err: %v", err)
	}
	if g.Hand.Button != 0 || g.Hand.TurnSeat != 0 {
		t.Fatalf("expected button to open, button=%d turn=%d", g.Hand.Button, g.Hand.TurnSeat)
	}

	mustAct(t, g, 0, ActionRaise, 50)
	mustAct(t, g, 1, ActionCall, 0)
	mustAct(t, g, 2, ActionCall, 0)
	if g.Phase() != PhaseFlop || g.Hand.TurnSeat != 1 {
		t.Fatalf("expected flop with small blind to act, phase=%s turn=%d", g.Phase(), g.Hand.TurnSeat)
	}
	mustAct(t, g, 1, ActionBet, 50)
	res := mustAct(t, g, 2, ActionCall, 0)
	if res == nil {
		t.Fatalf("expected board to run out and settle")
	}
	if len(res.Board) != 5 {
		t.Fatalf("expected full board, got %v", res.Board)
	}
	if len(res.Pots) != 2 || res.Pots[0].Amount != 150 || res.Pots[1].Amount != 100 {
		t.Fatalf("unexpected pots %+v", res.Pots)
	}
	if g.Seats[0].Stack != 150 || g.Seats[1].Stack != 100 || g.Seats[2].Stack != 0 {
		t.Fatalf("unexpected stacks %d/%d/%d", g.Seats[0].Stack, g.Seats[1].Stack, g.Seats[2].Stack)
	}
	if g.Seats[2].Status != SeatSittingOut {
		t.Fatalf("busted seat should sit out, got %s", g.Seats[2].Status)
	}
	if g.TotalChips() != 250 {
		t.Fatalf("chips not conserved: %d", g.TotalChips())
	}
}

func TestAllInPlayerCannotRaise(t *testing.T) {
	g := newTestGame(t, 100, 100)
	if _, err := g.StartHand(t0); err != nil {
		t.Fatalf("StartHand err: %v", err)
	}
	mustAct(t, g, 0, ActionRaise, 100)
	la, _ := g.Legal()
	if la.SeatNo != 1 {
		t.Fatalf("expected big blind to act, got %d", la.SeatNo)
	}
	if la.Allows(ActionRaise) || la.Allows(ActionBet) {
		t.Fatalf("raise must be illegal when the caller can only go all-in, got %v", la.Actions)
	}
	if la.ToCall != 98 {
		t.Fatalf("expected 98 to call, got %d", la.ToCall)
	}
}

func TestForceFoldOutOfTurn(t *testing.T) {
	g := newTestGame(t, 100, 100, 100)
	if _, err := g.StartHand(t0); err != nil {
		t.Fatalf("StartHand err: %v", err)
	}
	// button (seat 0) is on the clock; the big blind walks away
	if res, err := g.ForceFold(2, t0); err != nil || res != nil {
		t.Fatalf("expected hand to continue, res=%v err=%v", res, err)
	}
	if g.Hand.TurnSeat != 0 {
		t.Fatalf("turn must not move, got %d", g.Hand.TurnSeat)
	}
	res := mustAct(t, g, 0, ActionFold, 0)
	if res == nil {
		t.Fatalf("expected settlement once one player remains")
	}
	if g.Seats[1].Stack != 102 {
		t.Fatalf("small blind should collect 3, stack=%d", g.Seats[1].Stack)
	}
}

func TestStandMidHandFoldsAndCashesOut(t *testing.T) {
	g := newTestGame(t, 100, 100)
	if _, err := g.StartHand(t0); err != nil {
		t.Fatalf("StartHand err: %v", err)
	}
	stack, res, err := g.Stand(1, t0)
	if err != nil {
		t.Fatalf("Stand err: %v", err)
	}
	if stack != 98 {
		t.Fatalf("expected cash out of 98, got %d", stack)
	}
	if res == nil || g.Seats[0].Stack != 102 {
		t.Fatalf("remaining player should win the blinds, res=%v stack=%d", res, g.Seats[0].Stack)
	}
	if g.Seats[1] != nil {
		t.Fatalf("seat should be empty")
	}
}

func TestSitValidation(t *testing.T) {
	g := newTestGame(t, 100, 100)
	if _, err := g.Sit(Seat{SeatNo: 0, UserID: "z", Stack: 10}, t0); !errors.Is(err, appErr.ErrTableFull) {
		t.Fatalf("expected table_full, got %v", err)
	}
	if _, err := g.Sit(Seat{SeatNo: -1, UserID: "a", Stack: 10}, t0); !errors.Is(err, appErr.ErrAlreadySeated) {
		t.Fatalf("expected already_seated, got %v", err)
	}

	g2, _ := NewGame(Config{SmallBlind: 1, BigBlind: 2, MaxPlayers: 3})
	if _, err := g2.Sit(Seat{SeatNo: 1, UserID: "a", Stack: 10}, t0); err != nil {
		t.Fatalf("sit err: %v", err)
	}
	if _, err := g2.Sit(Seat{SeatNo: 1, UserID: "b", Stack: 10}, t0); !errors.Is(err, appErr.ErrSeatTaken) {
		t.Fatalf("expected seat_taken, got %v", err)
	}
	s, err := g2.Sit(Seat{SeatNo: -1, UserID: "b", Stack: 10}, t0)
	if err != nil || s.SeatNo != 0 {
		t.Fatalf("expected lowest free seat 0, got %+v err=%v", s, err)
	}
}

func TestChipsConservedUnderBotPlay(t *testing.T) {
	g := newTestGame(t, 200, 200, 200, 200)
	const total = 800
	for hand := 0; hand < 40; hand++ {
		if _, err := g.StartHand(t0); err != nil {
			break
		}
		for steps := 0; g.InHand(); steps++ {
			if steps > 200 {
				t.Fatalf("hand %d did not terminate", hand)
			}
			action, amount := g.BotDecision()
			if _, err := g.Act(g.Hand.TurnSeat, action, amount, t0); err != nil {
				t.Fatalf("bot chose illegal %s %d: %v", action, amount, err)
			}
			if got := g.TotalChips(); got != total {
				t.Fatalf("chips not conserved mid-hand: %d", got)
			}
		}
		if got := g.TotalChips(); got != total {
			t.Fatalf("chips not conserved after hand %d: %d", hand, got)
		}
	}
}

func TestSnapshotRoundTripContinuesHand(t *testing.T) {
	g := newTestGame(t, 100, 100)
	if _, err := g.StartHand(t0); err != nil {
		t.Fatalf("StartHand err: %v", err)
	}
	mustAct(t, g, 0, ActionCall, 0)

	raw, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("marshal err: %v", err)
	}
	var restored Game
	if err := json.Unmarshal(raw, &restored); err != nil {
		t.Fatalf("unmarshal err: %v", err)
	}
	if got, want := restored.HoleCards("a"), g.HoleCards("a"); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("hole cards not restored: %v vs %v", got, want)
	}
	if _, err := restored.Act(1, ActionCheck, 0, t0); err != nil {
		t.Fatalf("restored game cannot continue: %v", err)
	}
	if restored.Phase() != PhaseFlop {
		t.Fatalf("expected FLOP after restore, got %s", restored.Phase())
	}
}

func TestCardTextAndRanking(t *testing.T) {
	c, err := ParseCard("Td")
	if err != nil || c.String() != "Td" {
		t.Fatalf("parse/format mismatch: %v %v", c, err)
	}
	if _, err := ParseCard("1x"); err == nil {
		t.Fatalf("expected error for invalid card")
	}
	board := MustParseCards("2c", "7d", "9h", "Js", "4c")
	aces, _, err := evaluate7(MustParseCards("As", "Ah"), board)
	if err != nil {
		t.Fatalf("evaluate err: %v", err)
	}
	kings, _, err := evaluate7(MustParseCards("Ks", "Kh"), board)
	if err != nil {
		t.Fatalf("evaluate err: %v", err)
	}
	if aces <= kings {
		t.Fatalf("aces (%d) should beat kings (%d)", aces, kings)
	}
}

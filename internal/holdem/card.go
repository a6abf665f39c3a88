package holdem

import (
	"fmt"

	"github.com/paulhankin/poker"
)

// Card encodes rank*4+suit. Rank 0 is a deuce and 12 an ace; suits are
// clubs, diamonds, hearts, spades.
type Card uint8

const deckSize = 52

const (
	rankChars = "23456789TJQKA"
	suitChars = "cdhs"
)

func NewCard(rank, suit int) Card {
	return Card(rank*4 + suit)
}

func (c Card) Rank() int { return int(c) / 4 }
func (c Card) Suit() int { return int(c) % 4 }

func (c Card) String() string {
	if int(c) >= deckSize {
		return "??"
	}
	return string([]byte{rankChars[c.Rank()], suitChars[c.Suit()]})
}

func (c Card) MarshalText() ([]byte, error) {
	if int(c) >= deckSize {
		return nil, fmt.Errorf("invalid card %d", c)
	}
	return []byte(c.String()), nil
}

func (c *Card) UnmarshalText(text []byte) error {
	parsed, err := ParseCard(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func ParseCard(s string) (Card, error) {
	if len(s) != 2 {
		return 0, fmt.Errorf("invalid card %q", s)
	}
	rank, suit := -1, -1
	for i := 0; i < len(rankChars); i++ {
		if rankChars[i] == s[0] {
			rank = i
		}
	}
	for i := 0; i < len(suitChars); i++ {
		if suitChars[i] == s[1] {
			suit = i
		}
	}
	if rank < 0 || suit < 0 {
		return 0, fmt.Errorf("invalid card %q", s)
	}
	return NewCard(rank, suit), nil
}

// MustParseCards is intended for tests and fixtures.
func MustParseCards(ss ...string) []Card {
	out := make([]Card, 0, len(ss))
	for _, s := range ss {
		c, err := ParseCard(s)
		if err != nil {
			panic(err)
		}
		out = append(out, c)
	}
	return out
}

func newDeck() []Card {
	deck := make([]Card, deckSize)
	for i := range deck {
		deck[i] = Card(i)
	}
	return deck
}

// evalCard converts to the evaluator's representation (ace is rank 1).
func (c Card) evalCard() (poker.Card, error) {
	rank := c.Rank() + 2
	if rank == 14 {
		rank = 1
	}
	return poker.MakeCard(poker.Suit(c.Suit()), poker.Rank(rank))
}

// evaluate7 scores hole+board; higher is better.
func evaluate7(hole, board []Card) (int16, string, error) {
	if len(hole)+len(board) != 7 {
		return 0, "", fmt.Errorf("need 7 cards, got %d", len(hole)+len(board))
	}
	var hand [7]poker.Card
	for i, c := range append(append([]Card{}, hole...), board...) {
		pc, err := c.evalCard()
		if err != nil {
			return 0, "", err
		}
		hand[i] = pc
	}
	score := poker.Eval7(&hand)
	name, err := poker.Describe(hand[:])
	if err != nil {
		name = ""
	}
	return score, name, nil
}

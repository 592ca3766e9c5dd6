package domain

import (
	"errors"
	"strconv"
)

var ErrUnknownDeck = errors.New("unknown deck type")

type DeckType string

const (
	DeckFibonacci         DeckType = "fibonacci"
	DeckModifiedFibonacci DeckType = "modified-fibonacci"
	DeckTShirt            DeckType = "tshirt"
)

// Card is a single vote value. Numeric cards carry their value as the
// shortest decimal rendering ("0.5", "21"); CardUnknown is the only
// non-numeric card shared by every deck.
type Card string

const CardUnknown Card = "?"

// The deck table is part of the wire contract shared with the client.
// Adding or reordering cards is a contract change, not configuration.
var decks = map[DeckType][]Card{
	DeckFibonacci: {
		"0", "1", "2", "3", "5", "8", "13", "21", "34", "55", "89", CardUnknown,
	},
	DeckModifiedFibonacci: {
		"0", "0.5", "1", "2", "3", "5", "8", "13", "20", "40", "100", CardUnknown,
	},
	DeckTShirt: {
		"XS", "S", "M", "L", "XL", "XXL", CardUnknown,
	},
}

func ParseDeckType(s string) (DeckType, error) {
	dt := DeckType(s)
	if _, ok := decks[dt]; !ok {
		return "", ErrUnknownDeck
	}
	return dt, nil
}

func (d DeckType) Cards() []Card {
	cards := decks[d]
	out := make([]Card, len(cards))
	copy(out, cards)
	return out
}

func (d DeckType) Contains(c Card) bool {
	for _, card := range decks[d] {
		if card == c {
			return true
		}
	}
	return false
}

// Numeric reports the card's numeric value; sentinel and t-shirt cards
// have none and are excluded from averages.
func (c Card) Numeric() (float64, bool) {
	v, err := strconv.ParseFloat(string(c), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

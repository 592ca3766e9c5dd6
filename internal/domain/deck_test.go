package domain

import "testing"

func TestParseDeckType(t *testing.T) {
	tests := []struct {
		in      string
		want    DeckType
		wantErr bool
	}{
		{"fibonacci", DeckFibonacci, false},
		{"modified-fibonacci", DeckModifiedFibonacci, false},
		{"tshirt", DeckTShirt, false},
		{"", "", true},
		{"Fibonacci", "", true},
		{"planning", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDeckType(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDeckType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDeckType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDeckContains(t *testing.T) {
	tests := []struct {
		deck DeckType
		card Card
		want bool
	}{
		{DeckFibonacci, "5", true},
		{DeckFibonacci, "89", true},
		{DeckFibonacci, "?", true},
		{DeckFibonacci, "4", false},
		{DeckFibonacci, "XS", false},
		{DeckModifiedFibonacci, "0.5", true},
		{DeckModifiedFibonacci, "21", false},
		{DeckTShirt, "XL", true},
		{DeckTShirt, "5", false},
	}
	for _, tt := range tests {
		if got := tt.deck.Contains(tt.card); got != tt.want {
			t.Errorf("%s.Contains(%q) = %v, want %v", tt.deck, tt.card, got, tt.want)
		}
	}
}

func TestCardNumeric(t *testing.T) {
	tests := []struct {
		card    Card
		want    float64
		numeric bool
	}{
		{"0", 0, true},
		{"0.5", 0.5, true},
		{"89", 89, true},
		{"?", 0, false},
		{"XS", 0, false},
		{"XXL", 0, false},
	}
	for _, tt := range tests {
		got, ok := tt.card.Numeric()
		if ok != tt.numeric {
			t.Errorf("Card(%q).Numeric() ok = %v, want %v", tt.card, ok, tt.numeric)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("Card(%q).Numeric() = %v, want %v", tt.card, got, tt.want)
		}
	}
}

func TestDeckCardsIsACopy(t *testing.T) {
	cards := DeckTShirt.Cards()
	cards[0] = "tampered"
	if DeckTShirt.Cards()[0] != "XS" {
		t.Error("Cards() must return a copy, not the shared table")
	}
}

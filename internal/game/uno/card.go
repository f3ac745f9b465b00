// Package uno implements the Uno rules engine and its per-game actor: the
// bit-packed card encoding, the 108-card bitset deck with reshuffle, turn
// and legality validation, and the serial message loop that owns one game's
// state.
package uno

import "fmt"

// Colour occupies bits 6-5 of a card.
type Colour uint8

const (
	Red Colour = iota
	Blue
	Green
	Yellow
)

func (c Colour) String() string {
	switch c {
	case Red:
		return "Red"
	case Blue:
		return "Blue"
	case Green:
		return "Green"
	case Yellow:
		return "Yellow"
	default:
		return fmt.Sprintf("Colour(%d)", uint8(c))
	}
}

// Power is the value field of an action card.
type Power uint8

const (
	PlusTwo Power = iota
	Skip
	Reverse
	PlusFour
	ColourChange
)

func (p Power) String() string {
	switch p {
	case PlusTwo:
		return "+2"
	case Skip:
		return "Skip"
	case Reverse:
		return "Reverse"
	case PlusFour:
		return "+4"
	case ColourChange:
		return "ColourChange"
	default:
		return fmt.Sprintf("Power(%d)", uint8(p))
	}
}

// Card packs one Uno card into a byte:
//
//	bit 7:    power flag (1 = action card, 0 = numeric)
//	bits 6-5: colour (Red=0, Blue=1, Green=2, Yellow=3)
//	bits 4-0: value (0-9 numeric; +2=0, Skip=1, Reverse=2, +4=3, ClrChange=4)
//
// Wild cards (+4, ClrChange) are stored with colour=Red everywhere on the
// server; only the top of the discard carries a player-chosen colour.
type Card uint8

const (
	powerBit   = 0b10000000
	colourMask = 0b01100000
	valueMask  = 0b00011111
)

// EncodeCard packs the triple into a Card. Out-of-range fields are masked;
// callers validate with Valid where the input is untrusted.
func EncodeCard(power bool, clr Colour, value uint8) Card {
	c := Card(uint8(clr)<<5&colourMask | value&valueMask)
	if power {
		c |= powerBit
	}
	return c
}

// Decode unpacks the card into its fields.
func (c Card) Decode() (power bool, clr Colour, value uint8) {
	return c&powerBit != 0, Colour(c & colourMask >> 5), uint8(c & valueMask)
}

// Valid reports whether the value field is in range for the power flag.
func (c Card) Valid() bool {
	if c&powerBit == 0 {
		return c&valueMask <= 9
	}
	return uint8(c&valueMask) <= uint8(ColourChange)
}

// IsPower reports whether this is an action card.
func (c Card) IsPower() bool {
	return c&powerBit != 0
}

// IsBlack reports whether this is a wild (+4 or ClrChange), regardless of
// the colour bits it currently carries.
func (c Card) IsBlack() bool {
	if c&powerBit == 0 {
		return false
	}
	v := Power(c & valueMask)
	return v == PlusFour || v == ColourChange
}

// Value returns the raw 5-bit value field.
func (c Card) Value() uint8 {
	return uint8(c & valueMask)
}

// Canonical returns the card with its colour bits forced to Red if it is a
// wild, unchanged otherwise. Hands and deck slots hold the canonical form.
func (c Card) Canonical() Card {
	if c.IsBlack() {
		return c &^ colourMask
	}
	return c
}

func (c Card) String() string {
	power, clr, value := c.Decode()
	if !power {
		return fmt.Sprintf("%s %d", clr, value)
	}
	if c.IsBlack() {
		return fmt.Sprintf("%s(%s)", Power(value), clr)
	}
	return fmt.Sprintf("%s %s", clr, Power(value))
}

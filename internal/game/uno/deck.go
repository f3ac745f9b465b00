package uno

import (
	"log/slog"
	"math/bits"
	"math/rand/v2"
)

// DeckSize is the classic 108-card Uno deck (no blanks).
const DeckSize = 108

// Slot layout over positions 0..107:
//
//	[0,72):    numeric 1-9, eight slots per value (colour x two copies),
//	           colour = pos mod 4
//	[72,76):   the four 0-cards, colour = pos-72
//	[76,100):  coloured power cards (+2/Skip/Reverse), eight per power,
//	           power = (pos-76)/8, colour = (pos-76) mod 4
//	[100,104): the four +4 wilds
//	[104,108): the four ClrChange wilds
const (
	zeroBase      = 72
	powerBase     = 76
	plusFourBase  = 100
	clrChangeBase = 104
)

// cardSet is a 128-bit bitset over deck positions; the 20 high bits are
// never used.
type cardSet struct {
	lo, hi uint64
}

func fullSet() cardSet {
	return cardSet{lo: ^uint64(0), hi: 1<<(DeckSize-64) - 1}
}

func (s cardSet) has(pos uint8) bool {
	if pos < 64 {
		return s.lo&(1<<pos) != 0
	}
	return s.hi&(1<<(pos-64)) != 0
}

func (s *cardSet) set(pos uint8) {
	if pos < 64 {
		s.lo |= 1 << pos
	} else {
		s.hi |= 1 << (pos - 64)
	}
}

func (s *cardSet) clear(pos uint8) {
	if pos < 64 {
		s.lo &^= 1 << pos
	} else {
		s.hi &^= 1 << (pos - 64)
	}
}

func (s cardSet) empty() bool {
	return s.lo == 0 && s.hi == 0
}

func (s cardSet) count() int {
	return bits.OnesCount64(s.lo) + bits.OnesCount64(s.hi)
}

// Deck holds the draw pile and the discard pile as bitsets. When the draw
// pile runs out it swallows the discard pile whole; no shuffle is needed
// because draws pick a uniform random slot.
type Deck struct {
	main    cardSet
	discard cardSet
}

// NewDeck returns a full 108-card draw pile and an empty discard pile.
func NewDeck() Deck {
	return Deck{main: fullSet()}
}

// MainCount reports how many cards remain in the draw pile.
func (d *Deck) MainCount() int {
	return d.main.count()
}

// DiscardCount reports how many cards sit in the discard pile.
func (d *Deck) DiscardCount() int {
	return d.discard.count()
}

// drawAt draws the first present card at or after pos, wrapping. The draw
// pile must not be empty.
func (d *Deck) drawAt(pos uint8) Card {
	pos %= DeckSize
	for !d.main.has(pos) {
		pos++
		if pos >= DeckSize {
			pos = 0
		}
	}
	d.main.clear(pos)
	return posToCard(pos)
}

// Pickup draws one random card, moving the discard pile into the draw pile
// when the latter runs dry. Returns false only when both piles are empty,
// which a well-formed game cannot reach; callers log and carry on.
func (d *Deck) Pickup(rng *rand.Rand) (Card, bool) {
	if d.main.empty() {
		d.reshuffle()
	}
	if d.main.empty() {
		return 0, false
	}

	card := d.drawAt(uint8(rng.IntN(DeckSize)))

	if d.main.empty() {
		d.reshuffle()
	}
	return card, true
}

func (d *Deck) reshuffle() {
	d.main = d.discard
	d.discard = cardSet{}
}

// NewHand deals a starting hand of handSize cards.
func (d *Deck) NewHand(rng *rand.Rand) []Card {
	hand := make([]Card, 0, handSize)
	for range handSize {
		card, ok := d.Pickup(rng)
		if !ok {
			slog.Warn("deck exhausted while dealing", "dealt", len(hand))
			break
		}
		hand = append(hand, card)
	}
	return hand
}

// Discard returns a card to the discard pile. Coloured cards try their
// canonical slot, then the copy slot at canonical+offset; wilds take the
// first free of their four slots. A fully occupied target means a duplicate
// card entered play: log and lose the card rather than abort the game.
func (d *Deck) Discard(card Card) {
	if card.IsBlack() {
		base := uint8(plusFourBase)
		if Power(card.Value()) == ColourChange {
			base = clrChangeBase
		}
		for pos := base; pos < base+4; pos++ {
			if !d.discard.has(pos) {
				d.discard.set(pos)
				return
			}
		}
		slog.Warn("no free wild slot on discard", "card", card.String())
		return
	}

	pos, offset := cardToPos(card)
	if !d.discard.has(pos) {
		d.discard.set(pos)
		return
	}
	if offset != 0 && !d.discard.has(pos+offset) {
		d.discard.set(pos + offset)
		return
	}
	slog.Warn("no free slot on discard", "card", card.String())
}

// posToCard translates a deck position to its card.
func posToCard(pos uint8) Card {
	switch {
	case pos < zeroBase:
		return EncodeCard(false, Colour(pos%4), pos/8+1)
	case pos < powerBase:
		return EncodeCard(false, Colour(pos-zeroBase), 0)
	case pos < plusFourBase:
		return EncodeCard(true, Colour((pos-powerBase)%4), (pos-powerBase)/8)
	case pos < clrChangeBase:
		return EncodeCard(true, Red, uint8(PlusFour))
	default:
		return EncodeCard(true, Red, uint8(ColourChange))
	}
}

// cardToPos computes the canonical position of a coloured card and the
// offset to its second copy (zero for the single-copy 0-cards, and for Red,
// whose two copies share the canonical slot). Wilds are handled by Discard
// directly.
func cardToPos(card Card) (pos, offset uint8) {
	power, clr, value := card.Decode()

	if !power {
		if value == 0 {
			return zeroBase + uint8(clr), 0
		}
		return (value-1)*8 + uint8(clr), uint8(clr)
	}
	return powerBase + value*8 + uint8(clr), uint8(clr)
}

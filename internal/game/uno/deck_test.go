package uno

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

func testRNG() *rand.Rand {
	return rand.New(rand.NewPCG(7, 11))
}

func TestNewDeckHoldsFullUniverse(t *testing.T) {
	d := NewDeck()
	require.Equal(t, DeckSize, d.MainCount())
	require.Equal(t, 0, d.DiscardCount())
}

func TestDrawingWholeDeckYieldsUnoMultiset(t *testing.T) {
	d := NewDeck()
	counts := make(map[Card]int)
	for range DeckSize {
		counts[d.drawAt(0)]++
	}
	require.Equal(t, 0, d.MainCount())

	for clr := Red; clr <= Yellow; clr++ {
		require.Equal(t, 1, counts[EncodeCard(false, clr, 0)], "one 0-card per colour")
		for value := uint8(1); value <= 9; value++ {
			require.Equal(t, 2, counts[EncodeCard(false, clr, value)], "two %d-cards per colour", value)
		}
		for _, p := range []Power{PlusTwo, Skip, Reverse} {
			require.Equal(t, 2, counts[EncodeCard(true, clr, uint8(p))], "two %s per colour", p)
		}
	}
	require.Equal(t, 4, counts[EncodeCard(true, Red, uint8(PlusFour))])
	require.Equal(t, 4, counts[EncodeCard(true, Red, uint8(ColourChange))])
}

func TestPosToCardLayout(t *testing.T) {
	require.Equal(t, EncodeCard(false, Red, 1), posToCard(0))
	require.Equal(t, EncodeCard(false, Yellow, 1), posToCard(7))
	require.Equal(t, EncodeCard(false, Blue, 9), posToCard(65))
	require.Equal(t, EncodeCard(false, Red, 0), posToCard(72))
	require.Equal(t, EncodeCard(false, Yellow, 0), posToCard(75))
	require.Equal(t, EncodeCard(true, Red, uint8(PlusTwo)), posToCard(76))
	require.Equal(t, EncodeCard(true, Yellow, uint8(Skip)), posToCard(91))
	require.Equal(t, EncodeCard(true, Yellow, uint8(Reverse)), posToCard(99))
	require.Equal(t, EncodeCard(true, Red, uint8(PlusFour)), posToCard(100))
	require.Equal(t, EncodeCard(true, Red, uint8(ColourChange)), posToCard(107))
}

// Every coloured position maps to a card whose canonical position maps back
// to the same card.
func TestCardToPosCanonicalRoundTrip(t *testing.T) {
	for pos := uint8(0); pos < plusFourBase; pos++ {
		card := posToCard(pos)
		canonical, _ := cardToPos(card)
		require.Equal(t, card, posToCard(canonical), "pos %d", pos)
	}
}

func TestDiscardUsesCopySlot(t *testing.T) {
	d := NewDeck()

	blue5 := EncodeCard(false, Blue, 5)
	d.Discard(blue5)
	d.Discard(blue5)
	require.Equal(t, 2, d.DiscardCount())

	// Red copies share a canonical slot (zero offset): the second discard
	// is dropped with a warning instead of aborting the game.
	red5 := EncodeCard(false, Red, 5)
	d.Discard(red5)
	d.Discard(red5)
	require.Equal(t, 3, d.DiscardCount())
}

func TestDiscardWildsFillFourSlots(t *testing.T) {
	d := NewDeck()
	wild := EncodeCard(true, Red, uint8(PlusFour))
	for range 4 {
		d.Discard(wild)
	}
	require.Equal(t, 4, d.DiscardCount())

	// A fifth +4 cannot exist; it is dropped, not crashed on.
	d.Discard(wild)
	require.Equal(t, 4, d.DiscardCount())

	// ClrChange has its own four slots.
	d.Discard(EncodeCard(true, Red, uint8(ColourChange)))
	require.Equal(t, 5, d.DiscardCount())
}

func TestPickupReshufflesWhenMainEmpties(t *testing.T) {
	rng := testRNG()
	d := NewDeck()

	for range DeckSize {
		_, ok := d.Pickup(rng)
		require.True(t, ok)
	}
	require.Equal(t, 0, d.MainCount())

	// Both piles empty: nothing to draw.
	_, ok := d.Pickup(rng)
	require.False(t, ok)

	// Returning one card makes it the only possible next draw.
	blue7 := EncodeCard(false, Blue, 7)
	d.Discard(blue7)
	card, ok := d.Pickup(rng)
	require.True(t, ok)
	require.Equal(t, blue7, card)
	require.Equal(t, 0, d.MainCount())
	require.Equal(t, 0, d.DiscardCount())
}

func TestPickupConservesCards(t *testing.T) {
	rng := testRNG()
	d := NewDeck()
	held := 0

	for range 60 {
		_, ok := d.Pickup(rng)
		require.True(t, ok)
		held++
		require.Equal(t, DeckSize, d.MainCount()+d.DiscardCount()+held)
	}
}

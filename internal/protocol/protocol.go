// Package protocol defines the wire records exchanged between Tempest
// clients and the server.
//
// Records are CBOR maps with integer keys. Tagged unions are encoded as a
// struct holding exactly one non-nil variant pointer (or an op code where
// every variant is payload-free). The GameState payload is an opaque byte
// blob: the outer records never depend on a per-game schema.
package protocol

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// GameType identifies a game implementation. Uno is the only one.
type GameType uint8

const (
	GameTypeUno GameType = 0
)

func (t GameType) String() string {
	if t == GameTypeUno {
		return "Uno"
	}
	return fmt.Sprintf("GameType(%d)", uint8(t))
}

// GamePhase is the lifecycle phase of a game instance.
type GamePhase uint8

const (
	PhaseSetup GamePhase = iota
	PhaseActive
	PhaseEnding
)

func (p GamePhase) String() string {
	switch p {
	case PhaseSetup:
		return "Setup"
	case PhaseActive:
		return "Active"
	case PhaseEnding:
		return "Ending"
	default:
		return fmt.Sprintf("GamePhase(%d)", uint8(p))
	}
}

var errAmbiguousRecord = errors.New("record must carry exactly one variant")

// Marshal encodes a record for transmission.
func Marshal(v any) ([]byte, error) {
	data, err := cbor.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a record received from the wire.
func Unmarshal(data []byte, v any) error {
	if err := cbor.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding record: %w", err)
	}
	return nil
}

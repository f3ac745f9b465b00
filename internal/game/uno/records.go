package uno

import "github.com/udisondev/tempest/internal/protocol"

// ActionKind enumerates the per-game action log entries.
type ActionKind uint8

const (
	ActionInit ActionKind = iota
	ActionInitialCard
	ActionUserPlaceCard
	ActionUserPickup
	ActionUserJoined
	ActionUserLeft
	ActionUserFinished
	ActionUserBust
	ActionGameEnded
)

// Action is one entry of the action log accumulated between broadcasts.
// Clients replay the log locally; the server drains it on every broadcast.
type Action struct {
	Kind  ActionKind `cbor:"1,keyasint"`
	Name  string     `cbor:"2,keyasint,omitempty"`
	Card  Card       `cbor:"3,keyasint,omitempty"`
	Count uint8      `cbor:"4,keyasint,omitempty"`
}

// NamedUser pairs a handle with a display name in the finished/bust lists.
type NamedUser struct {
	ID   uint32 `cbor:"1,keyasint"`
	Name string `cbor:"2,keyasint"`
}

// ActiveUser is the public summary of a seated player: everyone may see
// hand sizes, nobody sees another player's cards.
type ActiveUser struct {
	ID        uint32 `cbor:"1,keyasint"`
	Name      string `cbor:"2,keyasint"`
	CardCount uint32 `cbor:"3,keyasint"`
}

// ClientGameState is the per-broadcast view of a game. LastCard is a
// sentinel (numeric Red 0) outside the Active phase.
type ClientGameState struct {
	Phase         protocol.GamePhase `cbor:"1,keyasint"`
	Actions       []Action           `cbor:"2,keyasint"`
	FinishedUsers []NamedUser        `cbor:"3,keyasint"`
	BustUsers     []NamedUser        `cbor:"4,keyasint"`
	ActiveUsers   []ActiveUser       `cbor:"5,keyasint"`
	HostUser      uint32             `cbor:"6,keyasint"`
	UserTurn      uint8              `cbor:"7,keyasint"`
	Forward       bool               `cbor:"8,keyasint"`
	LastCard      Card               `cbor:"9,keyasint"`
}

// GameStatePayload is the inner record carried opaquely inside
// ServerMessage.GameState. Hand is the recipient's private hand, present
// only while the game is Active.
type GameStatePayload struct {
	Hand  []Card          `cbor:"1,keyasint"`
	State ClientGameState `cbor:"2,keyasint"`
}

// ClientActionOp enumerates the in-game client actions.
type ClientActionOp uint8

const (
	OpPickupCard ClientActionOp = iota
	OpPlayCard
)

// ClientAction is the decoded form of GameCommand.Raw for Uno.
type ClientAction struct {
	Op   ClientActionOp `cbor:"1,keyasint"`
	Card Card           `cbor:"2,keyasint,omitempty"`
}

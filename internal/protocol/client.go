package protocol

// ClientMessage is the outer client→server record. Exactly one variant is
// non-nil.
type ClientMessage struct {
	Authenticate *Authenticate `cbor:"1,keyasint,omitempty"`
	Authed       *Authed       `cbor:"2,keyasint,omitempty"`
}

// Authenticate is the first record of every session: a self-asserted
// display name. The server answers with AuthResponse.
type Authenticate struct {
	Name string `cbor:"1,keyasint"`
}

// Authed wraps every post-authentication command with the handle the server
// assigned to this user.
type Authed struct {
	Handle  uint32        `cbor:"1,keyasint"`
	Command AuthedCommand `cbor:"2,keyasint"`
}

// AuthedCommand is a tagged union of the lobby-level commands.
type AuthedCommand struct {
	CreateGame *CreateGame  `cbor:"1,keyasint,omitempty"`
	JoinGame   *JoinGame    `cbor:"2,keyasint,omitempty"`
	Game       *GameCommand `cbor:"3,keyasint,omitempty"`
}

// CreateGame asks the dispatcher to spawn a fresh game instance with the
// sender as host.
type CreateGame struct {
	Name string   `cbor:"1,keyasint"`
	Kind GameType `cbor:"2,keyasint"`
}

// JoinGame asks to join an existing game by id.
type JoinGame struct {
	GameID uint32 `cbor:"1,keyasint"`
}

// GameOp enumerates the payload-free game command variants.
type GameOp uint8

const (
	GameOpStart GameOp = iota
	GameOpLeave
	GameOpRaw
)

// GameCommand is routed to the sender's current game actor. Raw carries a
// game-specific action encoded by the game's own schema; it is decoded on
// the game actor's goroutine, never by the dispatcher.
type GameCommand struct {
	Op  GameOp `cbor:"1,keyasint"`
	Raw []byte `cbor:"2,keyasint,omitempty"`
}

// Validate checks that the record carries exactly one variant.
func (m *ClientMessage) Validate() error {
	n := 0
	if m.Authenticate != nil {
		n++
	}
	if m.Authed != nil {
		n++
	}
	if n != 1 {
		return errAmbiguousRecord
	}
	return nil
}

// Validate checks that the command carries exactly one variant.
func (c *AuthedCommand) Validate() error {
	n := 0
	if c.CreateGame != nil {
		n++
	}
	if c.JoinGame != nil {
		n++
	}
	if c.Game != nil {
		n++
	}
	if n != 1 {
		return errAmbiguousRecord
	}
	return nil
}

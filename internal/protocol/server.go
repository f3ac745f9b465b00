package protocol

// ServerMessage is the outer server→client record. Exactly one variant is
// non-nil.
type ServerMessage struct {
	AuthResponse   *AuthResponse `cbor:"1,keyasint,omitempty"`
	LobbyState     *LobbyState   `cbor:"2,keyasint,omitempty"`
	NewPlayerCount *uint64       `cbor:"3,keyasint,omitempty"` // reserved
	JoinedGame     *JoinedGame   `cbor:"4,keyasint,omitempty"`
	GameState      []byte        `cbor:"5,keyasint,omitempty"`
}

// AuthResponse carries the handle assigned to the freshly registered user.
type AuthResponse struct {
	Handle uint32 `cbor:"1,keyasint"`
}

// LobbyState is the shared pre-game view: total connected users and every
// joinable game (Setup phase, fewer than the player cap).
type LobbyState struct {
	PlayerCount uint64      `cbor:"1,keyasint"`
	Games       []LobbyGame `cbor:"2,keyasint"`
}

// LobbyGame is one joinable game in the lobby listing.
type LobbyGame struct {
	Name          string    `cbor:"1,keyasint"`
	ID            uint32    `cbor:"2,keyasint"`
	Kind          GameType  `cbor:"3,keyasint"`
	Phase         GamePhase `cbor:"4,keyasint"`
	ActivePlayers uint32    `cbor:"5,keyasint"`
}

// JoinedGame confirms entry into a game, echoing its lobby name and kind.
type JoinedGame struct {
	LobbyName string   `cbor:"1,keyasint"`
	Kind      GameType `cbor:"2,keyasint"`
}

// Validate checks that the record carries exactly one variant.
func (m *ServerMessage) Validate() error {
	n := 0
	if m.AuthResponse != nil {
		n++
	}
	if m.LobbyState != nil {
		n++
	}
	if m.NewPlayerCount != nil {
		n++
	}
	if m.JoinedGame != nil {
		n++
	}
	if m.GameState != nil {
		n++
	}
	if n != 1 {
		return errAmbiguousRecord
	}
	return nil
}

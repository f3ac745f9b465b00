package dispatcher

import (
	"github.com/udisondev/tempest/internal/mailbox"
	"github.com/udisondev/tempest/internal/protocol"
)

// Event is one intra-server message processed by the dispatcher. The
// dispatcher handles events strictly one at a time, so every mutation of
// the user and game tables is totally ordered.
type Event interface{ isEvent() }

// RegisterUser is sent by a connection node once its client has
// authenticated. The dispatcher allocates a handle and answers with
// AuthResponse on the outbox.
type RegisterUser struct {
	Name   string
	Addr   string
	Outbox *mailbox.Mailbox[protocol.ServerMessage]
}

// AuthCommand carries an authenticated client command together with the
// remote address it arrived from, for origin validation.
type AuthCommand struct {
	Addr    string
	Handle  uint32
	Command protocol.AuthedCommand
}

// UpdateUserLobbies asks the dispatcher to recompute the lobby snapshot and
// push it to every user not currently in a game.
type UpdateUserLobbies struct{}

// Disconnected reports that the connection from Addr is gone.
type Disconnected struct {
	Addr string
}

// UpdateGameServer is a registry snapshot pushed by a game actor.
type UpdateGameServer struct {
	ID       uint32
	Snapshot GameSnapshot
}

// UserJoinedGame is emitted by a game actor after admitting a player.
type UserJoinedGame struct {
	User uint32
	Game uint32
}

// UserLeftGame is emitted by a game actor after a player leaves.
type UserLeftGame struct {
	User uint32
	Game uint32
}

// GameFinished is the last event a game actor emits before its loop exits.
type GameFinished struct {
	ID uint32
}

func (RegisterUser) isEvent()      {}
func (AuthCommand) isEvent()       {}
func (UpdateUserLobbies) isEvent() {}
func (Disconnected) isEvent()      {}
func (UpdateGameServer) isEvent()  {}
func (UserJoinedGame) isEvent()    {}
func (UserLeftGame) isEvent()      {}
func (GameFinished) isEvent()      {}

// GameSnapshot is the registry view of one game: everything the lobby needs,
// nothing the game owns exclusively.
type GameSnapshot struct {
	Name        string
	PlayerCount uint32
	Kind        protocol.GameType
	Phase       protocol.GamePhase
}

// PlayerState is the clone of a user handed to a game actor on join. The
// outbox is a capability to enqueue server records to that user's writer;
// the game actor never sees the connection itself.
type PlayerState struct {
	Handle uint32
	Name   string
	Addr   string
	Outbox *mailbox.Mailbox[protocol.ServerMessage]
}

// GameMessage is one message on a game actor's inbox. Exactly one of Join
// and Cmd is set.
type GameMessage struct {
	UserID uint32
	Join   *PlayerState
	Cmd    *protocol.GameCommand
}

// GameEntry is the dispatcher's registry record for a live game. Inbox is
// the capability to enqueue GameMessages to the game's actor.
type GameEntry struct {
	Name        string
	PlayerCount uint32
	Kind        protocol.GameType
	Phase       protocol.GamePhase
	Inbox       *mailbox.Mailbox[GameMessage]
}

// GameFactory spawns a game actor for a CreateGame command. It must
// synchronously send JoinedGame to the host's outbox and return the registry
// entry; the actor reports back through the events mailbox.
type GameFactory func(gameID uint32, host PlayerState, lobbyName string, events *mailbox.Mailbox[Event]) (*GameEntry, error)

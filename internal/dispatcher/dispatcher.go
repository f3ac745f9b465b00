// Package dispatcher implements the lobby hub: a single actor owning the
// user table, the game registry and the monotonic id counter. Connection
// nodes feed it events; it routes authenticated commands to game actors and
// publishes lobby snapshots to idle users.
package dispatcher

import (
	"context"
	"log/slog"

	"github.com/udisondev/tempest/internal/mailbox"
	"github.com/udisondev/tempest/internal/protocol"
)

// lobbyPlayerCap hides games from the lobby once they reach this many
// players; the game actor enforces the same cap on join.
const lobbyPlayerCap = 4

type user struct {
	handle uint32
	name   string
	addr   string
	outbox *mailbox.Mailbox[protocol.ServerMessage]
	gameID *uint32
}

// Dispatcher is the hub actor. All fields are owned by the Run goroutine;
// other goroutines interact only through the events mailbox.
type Dispatcher struct {
	events    *mailbox.Mailbox[Event]
	users     map[uint32]*user
	games     map[uint32]*GameEntry
	factories map[protocol.GameType]GameFactory
	lastID    uint32
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithFactory registers the game factory for a kind.
func WithFactory(kind protocol.GameType, f GameFactory) Option {
	return func(d *Dispatcher) {
		d.factories[kind] = f
	}
}

// New creates a dispatcher. Run must be called to start processing.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		events:    mailbox.New[Event](),
		users:     make(map[uint32]*user),
		games:     make(map[uint32]*GameEntry),
		factories: make(map[protocol.GameType]GameFactory),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Events returns the mailbox connection nodes and game actors send to.
func (d *Dispatcher) Events() *mailbox.Mailbox[Event] {
	return d.events
}

// nextID allocates the next handle. Never reused within a process lifetime.
func (d *Dispatcher) nextID() uint32 {
	d.lastID++
	return d.lastID
}

// Run processes events until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.events.Close()
			return ctx.Err()
		case ev, ok := <-d.events.Out():
			if !ok {
				return nil
			}
			d.handle(ev)
		}
	}
}

func (d *Dispatcher) handle(ev Event) {
	switch ev := ev.(type) {
	case RegisterUser:
		d.registerUser(ev)
	case AuthCommand:
		d.authCommand(ev)
	case UpdateUserLobbies:
		d.updateUserLobbies()
	case Disconnected:
		d.disconnected(ev.Addr)
	case UpdateGameServer:
		d.updateGame(ev.ID, ev.Snapshot)
	case UserJoinedGame:
		d.setUserGame(ev.User, &ev.Game)
	case UserLeftGame:
		d.setUserGame(ev.User, nil)
	case GameFinished:
		d.gameFinished(ev.ID)
	}
}

func (d *Dispatcher) registerUser(ev RegisterUser) {
	id := d.nextID()

	if err := ev.Outbox.Send(protocol.ServerMessage{
		AuthResponse: &protocol.AuthResponse{Handle: id},
	}); err != nil {
		slog.Warn("auth response undeliverable", "user", id, "err", err)
	}

	d.users[id] = &user{
		handle: id,
		name:   ev.Name,
		addr:   ev.Addr,
		outbox: ev.Outbox,
	}
	slog.Info("user registered", "user", id, "name", ev.Name, "addr", ev.Addr)

	d.updateUserLobbies()
}

func (d *Dispatcher) authCommand(ev AuthCommand) {
	u, ok := d.users[ev.Handle]
	if !ok {
		slog.Warn("command for unknown user", "user", ev.Handle, "addr", ev.Addr)
		return
	}
	if u.addr != ev.Addr {
		slog.Warn("command from wrong address", "user", ev.Handle, "want", u.addr, "got", ev.Addr)
		return
	}
	if err := ev.Command.Validate(); err != nil {
		slog.Warn("malformed command", "user", ev.Handle, "err", err)
		return
	}

	switch {
	case ev.Command.CreateGame != nil:
		d.createGame(u, ev.Command.CreateGame)
	case ev.Command.JoinGame != nil:
		d.joinGame(u, ev.Command.JoinGame.GameID)
	case ev.Command.Game != nil:
		d.forwardGameCommand(u, ev.Command.Game)
	}
}

func (d *Dispatcher) createGame(u *user, cmd *protocol.CreateGame) {
	if u.gameID != nil {
		slog.Warn("create while in game", "user", u.handle, "game", *u.gameID)
		return
	}
	factory, ok := d.factories[cmd.Kind]
	if !ok {
		slog.Warn("create for unknown game kind", "user", u.handle, "kind", cmd.Kind)
		return
	}

	gameID := d.nextID()
	entry, err := factory(gameID, PlayerState{
		Handle: u.handle,
		Name:   u.name,
		Addr:   u.addr,
		Outbox: u.outbox,
	}, cmd.Name, d.events)
	if err != nil {
		slog.Error("game creation failed", "user", u.handle, "kind", cmd.Kind, "err", err)
		return
	}

	d.games[gameID] = entry
	u.gameID = &gameID
	slog.Info("game created", "game", gameID, "name", cmd.Name, "kind", cmd.Kind, "host", u.handle)

	d.updateUserLobbies()
}

func (d *Dispatcher) joinGame(u *user, gameID uint32) {
	if u.gameID != nil {
		slog.Warn("join while in game", "user", u.handle, "game", *u.gameID)
		return
	}
	game, ok := d.games[gameID]
	if !ok {
		slog.Warn("join for unknown game", "user", u.handle, "game", gameID)
		return
	}

	// The game actor enforces phase and player cap itself.
	if err := game.Inbox.Send(GameMessage{
		UserID: u.handle,
		Join: &PlayerState{
			Handle: u.handle,
			Name:   u.name,
			Addr:   u.addr,
			Outbox: u.outbox,
		},
	}); err != nil {
		slog.Warn("join undeliverable", "user", u.handle, "game", gameID, "err", err)
	}
}

func (d *Dispatcher) forwardGameCommand(u *user, cmd *protocol.GameCommand) {
	if u.gameID == nil {
		slog.Warn("game command while not in game", "user", u.handle)
		return
	}
	game, ok := d.games[*u.gameID]
	if !ok {
		slog.Warn("game command for missing game", "user", u.handle, "game", *u.gameID)
		return
	}
	if err := game.Inbox.Send(GameMessage{UserID: u.handle, Cmd: cmd}); err != nil {
		slog.Warn("game command undeliverable", "user", u.handle, "game", *u.gameID, "err", err)
	}
}

func (d *Dispatcher) updateUserLobbies() {
	state := &protocol.LobbyState{
		PlayerCount: uint64(len(d.users)),
		Games:       []protocol.LobbyGame{},
	}
	for id, game := range d.games {
		if game.Phase != protocol.PhaseSetup || game.PlayerCount >= lobbyPlayerCap {
			continue
		}
		state.Games = append(state.Games, protocol.LobbyGame{
			Name:          game.Name,
			ID:            id,
			Kind:          game.Kind,
			Phase:         game.Phase,
			ActivePlayers: game.PlayerCount,
		})
	}

	for id, u := range d.users {
		if u.gameID != nil {
			continue
		}
		if err := u.outbox.Send(protocol.ServerMessage{LobbyState: state}); err != nil {
			slog.Warn("lobby state undeliverable", "user", id, "err", err)
		}
	}
}

func (d *Dispatcher) disconnected(addr string) {
	for id, u := range d.users {
		if u.addr != addr {
			continue
		}
		slog.Info("user disconnected", "user", id, "name", u.name, "addr", addr)
		u.outbox.Close()
		delete(d.users, id)
	}
}

func (d *Dispatcher) updateGame(id uint32, snap GameSnapshot) {
	game, ok := d.games[id]
	if !ok {
		slog.Warn("update for unknown game", "game", id)
		return
	}
	game.Name = snap.Name
	game.PlayerCount = snap.PlayerCount
	game.Phase = snap.Phase

	d.updateUserLobbies()
}

func (d *Dispatcher) setUserGame(userID uint32, gameID *uint32) {
	u, ok := d.users[userID]
	if !ok {
		slog.Warn("game membership update for unknown user", "user", userID)
		return
	}
	u.gameID = gameID
}

func (d *Dispatcher) gameFinished(id uint32) {
	game, ok := d.games[id]
	if !ok {
		return
	}
	game.Inbox.Close()
	delete(d.games, id)
	slog.Info("game finished", "game", id)

	d.updateUserLobbies()
}

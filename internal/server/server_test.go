package server_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/udisondev/tempest/internal/config"
	"github.com/udisondev/tempest/internal/dispatcher"
	"github.com/udisondev/tempest/internal/game/uno"
	"github.com/udisondev/tempest/internal/protocol"
	"github.com/udisondev/tempest/internal/server"
	"github.com/udisondev/tempest/internal/transport"
)

// startServer brings up a full stack (dispatcher + server) on an ephemeral
// port and returns its address.
func startServer(t *testing.T, cfg config.Server) string {
	t.Helper()

	hub := dispatcher.New(
		dispatcher.WithFactory(protocol.GameTypeUno, uno.Create),
	)
	srv, err := server.NewServer(cfg, hub.Events())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	go srv.Serve(ctx, ln)

	return ln.Addr().String()
}

func testConfig() config.Server {
	cfg := config.DefaultServer()
	cfg.AuthWindow = 2 * time.Second
	return cfg
}

// recvUntil reads records from ep until one satisfies want.
func recvUntil(t *testing.T, ep *transport.ClientEndpoint, what string, want func(*protocol.ServerMessage) bool) *protocol.ServerMessage {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		msg, err := ep.Recv()
		require.NoError(t, err, "receiving while waiting for %s", what)
		if want(msg) {
			return msg
		}
	}
	t.Fatalf("timed out waiting for %s", what)
	panic("unreachable")
}

func authenticate(t *testing.T, addr, name string) (*transport.ClientEndpoint, uint32) {
	t.Helper()
	ep, err := transport.Dial(addr)
	require.NoError(t, err)
	t.Cleanup(func() { ep.Close() })

	require.NoError(t, ep.Send(&protocol.ClientMessage{
		Authenticate: &protocol.Authenticate{Name: name},
	}))
	msg := recvUntil(t, ep, "auth response", func(m *protocol.ServerMessage) bool {
		return m.AuthResponse != nil
	})
	return ep, msg.AuthResponse.Handle
}

func sendAuthed(t *testing.T, ep *transport.ClientEndpoint, handle uint32, cmd protocol.AuthedCommand) {
	t.Helper()
	require.NoError(t, ep.Send(&protocol.ClientMessage{
		Authed: &protocol.Authed{Handle: handle, Command: cmd},
	}))
}

func TestConnectAuthenticateSeeLobby(t *testing.T) {
	addr := startServer(t, testConfig())

	ep, handle := authenticate(t, addr, "alice")
	require.NotZero(t, handle)

	lobby := recvUntil(t, ep, "lobby state", func(m *protocol.ServerMessage) bool {
		return m.LobbyState != nil
	})
	require.Equal(t, uint64(1), lobby.LobbyState.PlayerCount)
	require.Empty(t, lobby.LobbyState.Games)
}

func TestSecondUserSeesCreatedGame(t *testing.T) {
	addr := startServer(t, testConfig())

	alice, h1 := authenticate(t, addr, "alice")
	bob, _ := authenticate(t, addr, "bob")

	sendAuthed(t, alice, h1, protocol.AuthedCommand{
		CreateGame: &protocol.CreateGame{Name: "table", Kind: protocol.GameTypeUno},
	})

	joined := recvUntil(t, alice, "joined game", func(m *protocol.ServerMessage) bool {
		return m.JoinedGame != nil
	})
	require.Equal(t, "table", joined.JoinedGame.LobbyName)

	lobby := recvUntil(t, bob, "lobby listing the game", func(m *protocol.ServerMessage) bool {
		return m.LobbyState != nil && len(m.LobbyState.Games) == 1
	})
	require.Equal(t, "table", lobby.LobbyState.Games[0].Name)
	require.Equal(t, protocol.GameTypeUno, lobby.LobbyState.Games[0].Kind)
}

func TestJoinStartAndPlayOverTheWire(t *testing.T) {
	addr := startServer(t, testConfig())

	alice, h1 := authenticate(t, addr, "alice")
	bob, h2 := authenticate(t, addr, "bob")

	sendAuthed(t, alice, h1, protocol.AuthedCommand{
		CreateGame: &protocol.CreateGame{Name: "table", Kind: protocol.GameTypeUno},
	})
	lobby := recvUntil(t, bob, "lobby listing the game", func(m *protocol.ServerMessage) bool {
		return m.LobbyState != nil && len(m.LobbyState.Games) == 1
	})

	sendAuthed(t, bob, h2, protocol.AuthedCommand{
		JoinGame: &protocol.JoinGame{GameID: lobby.LobbyState.Games[0].ID},
	})
	recvUntil(t, bob, "joined game", func(m *protocol.ServerMessage) bool {
		return m.JoinedGame != nil
	})

	sendAuthed(t, alice, h1, protocol.AuthedCommand{
		Game: &protocol.GameCommand{Op: protocol.GameOpStart},
	})

	// Both players receive an active-phase state with a ten-card hand and a
	// visible top card.
	for _, ep := range []*transport.ClientEndpoint{alice, bob} {
		state := recvUntil(t, ep, "active game state", func(m *protocol.ServerMessage) bool {
			if m.GameState == nil {
				return false
			}
			var payload uno.GameStatePayload
			if err := protocol.Unmarshal(m.GameState, &payload); err != nil {
				return false
			}
			return payload.State.Phase == protocol.PhaseActive
		})
		var payload uno.GameStatePayload
		require.NoError(t, protocol.Unmarshal(state.GameState, &payload))
		require.Len(t, payload.Hand, 10)
		require.True(t, payload.State.LastCard.Valid())
		require.Len(t, payload.State.ActiveUsers, 2)
	}

	// Alice (host plays first) picks up a card; both sides observe it.
	raw, err := protocol.Marshal(&uno.ClientAction{Op: uno.OpPickupCard})
	require.NoError(t, err)
	sendAuthed(t, alice, h1, protocol.AuthedCommand{
		Game: &protocol.GameCommand{Op: protocol.GameOpRaw, Raw: raw},
	})

	state := recvUntil(t, bob, "pickup broadcast", func(m *protocol.ServerMessage) bool {
		if m.GameState == nil {
			return false
		}
		var payload uno.GameStatePayload
		if err := protocol.Unmarshal(m.GameState, &payload); err != nil {
			return false
		}
		for _, a := range payload.State.Actions {
			if a.Kind == uno.ActionUserPickup && a.Name == "alice" {
				return true
			}
		}
		return false
	})
	var payload uno.GameStatePayload
	require.NoError(t, protocol.Unmarshal(state.GameState, &payload))
	require.Equal(t, uint8(1), payload.State.UserTurn)
	require.Equal(t, h2, payload.State.ActiveUsers[1].ID)
}

func TestAuthWindowExpires(t *testing.T) {
	cfg := testConfig()
	cfg.AuthWindow = 100 * time.Millisecond
	addr := startServer(t, cfg)

	ep, err := transport.Dial(addr)
	require.NoError(t, err)
	defer ep.Close()

	// Never authenticate: the server drops the connection once the window
	// closes and the next read fails.
	_, err = ep.Recv()
	require.Error(t, err)
}

func TestFirstRecordMustBeAuthenticate(t *testing.T) {
	addr := startServer(t, testConfig())

	ep, err := transport.Dial(addr)
	require.NoError(t, err)
	defer ep.Close()

	require.NoError(t, ep.Send(&protocol.ClientMessage{
		Authed: &protocol.Authed{Handle: 1},
	}))

	_, err = ep.Recv()
	require.Error(t, err)
}

func TestDisconnectShrinksLobby(t *testing.T) {
	addr := startServer(t, testConfig())

	alice, _ := authenticate(t, addr, "alice")
	bob, _ := authenticate(t, addr, "bob")
	recvUntil(t, alice, "lobby with two users", func(m *protocol.ServerMessage) bool {
		return m.LobbyState != nil && m.LobbyState.PlayerCount == 2
	})

	bob.Close()

	recvUntil(t, alice, "lobby with one user", func(m *protocol.ServerMessage) bool {
		return m.LobbyState != nil && m.LobbyState.PlayerCount == 1
	})
}

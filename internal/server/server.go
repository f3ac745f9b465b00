// Package server accepts client connections and runs one connection node
// per session: Noise handshake, the timed authentication window, then the
// inbound and outbound loops bridging the socket to the dispatcher.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/flynn/noise"

	"github.com/udisondev/tempest/internal/config"
	"github.com/udisondev/tempest/internal/dispatcher"
	"github.com/udisondev/tempest/internal/mailbox"
	"github.com/udisondev/tempest/internal/protocol"
	"github.com/udisondev/tempest/internal/transport"
)

// Server owns the listener and the process static Noise key.
type Server struct {
	cfg       config.Server
	staticKey noise.DHKey
	events    *mailbox.Mailbox[dispatcher.Event]

	listener net.Listener
	mu       sync.Mutex
}

// NewServer creates a server wired to the dispatcher's event mailbox. One
// static keypair is generated per process; ephemerals are per connection.
func NewServer(cfg config.Server, events *mailbox.Mailbox[dispatcher.Event]) (*Server, error) {
	staticKey, err := transport.GenerateStaticKey()
	if err != nil {
		return nil, fmt.Errorf("creating server identity: %w", err)
	}
	return &Server{cfg: cfg, staticKey: staticKey, events: events}, nil
}

// Addr returns the bound listen address, or nil before Run.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run binds cfg.BindAddress:cfg.Port and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindAddress, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the accept loop on a prepared listener. Used directly by tests
// with an ephemeral port.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	slog.Info("tempest server started", "address", ln.Addr())

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}
			slog.Error("failed to accept connection", "err", err)
			continue
		}
		wg.Go(func() {
			s.handleConnection(ctx, conn)
		})
	}

	wg.Wait()
	return nil
}

// handleConnection is one connection node: handshake, auth window, then the
// cooperating inbound and outbound loops.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	addr := conn.RemoteAddr().String()
	slog.Info("new connection", "remote", addr)

	ep, err := transport.AcceptServer(conn, s.staticKey)
	if err != nil {
		slog.Warn("handshake failed", "remote", addr, "err", err)
		conn.Close()
		return
	}
	defer ep.Close()

	recvCh := make(chan *protocol.ClientMessage)
	recvDone := make(chan struct{})
	go func() {
		defer close(recvCh)
		for {
			msg, err := ep.Recv()
			if err != nil {
				slog.Debug("receive loop ended", "remote", addr, "err", err)
				return
			}
			select {
			case recvCh <- msg:
			case <-recvDone:
				return
			}
		}
	}()
	defer close(recvDone)

	name, ok := s.waitForName(addr, recvCh)
	if !ok {
		return
	}

	outbox := mailbox.New[protocol.ServerMessage]()
	if err := s.events.Send(dispatcher.RegisterUser{Name: name, Addr: addr, Outbox: outbox}); err != nil {
		slog.Error("dispatcher unavailable", "remote", addr, "err", err)
		return
	}

	// Outbound: drain the outbox onto the wire. Exits when the dispatcher
	// closes the outbox or the transport dies.
	go func() {
		for msg := range outbox.Out() {
			if err := ep.Send(&msg); err != nil {
				slog.Warn("failed to send to client", "remote", addr, "err", err)
				outbox.Close()
			}
		}
		ep.Close()
	}()

	// Inbound: forward authenticated commands to the dispatcher.
	for msg := range recvCh {
		switch {
		case msg.Authenticate != nil:
			slog.Warn("stray authenticate", "remote", addr, "name", msg.Authenticate.Name)
		case msg.Authed != nil:
			if err := s.events.Send(dispatcher.AuthCommand{
				Addr:    addr,
				Handle:  msg.Authed.Handle,
				Command: msg.Authed.Command,
			}); err != nil {
				slog.Error("dispatcher unavailable", "remote", addr, "err", err)
				return
			}
		default:
			slog.Warn("empty client record", "remote", addr)
		}
	}

	if err := s.events.Send(dispatcher.Disconnected{Addr: addr}); err != nil {
		slog.Warn("disconnect event undeliverable", "remote", addr, "err", err)
	}
}

// waitForName runs the timed authentication window: the first record must
// be Authenticate, received before the window closes.
func (s *Server) waitForName(addr string, recvCh <-chan *protocol.ClientMessage) (string, bool) {
	timer := time.NewTimer(s.cfg.AuthWindow)
	defer timer.Stop()

	select {
	case <-timer.C:
		slog.Info("auth window expired", "remote", addr)
		return "", false
	case msg, ok := <-recvCh:
		if !ok {
			slog.Debug("connection closed before auth", "remote", addr)
			return "", false
		}
		if msg.Authenticate == nil {
			slog.Warn("first record is not authenticate", "remote", addr)
			return "", false
		}
		return msg.Authenticate.Name, true
	}
}

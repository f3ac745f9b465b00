package transport

import (
	"net"

	"github.com/flynn/noise"

	"github.com/udisondev/tempest/internal/protocol"
)

// Endpoint fixes a session's polarity at the type level: it only sends Out
// records and only receives In records. The server holds an
// Endpoint[ServerMessage, ClientMessage]; a client holds the reverse.
type Endpoint[Out, In any] struct {
	session *Session
}

// Send encodes msg and transmits it as one encrypted frame.
func (e *Endpoint[Out, In]) Send(msg *Out) error {
	data, err := protocol.Marshal(msg)
	if err != nil {
		return err
	}
	return e.session.sendRaw(data)
}

// Recv blocks for the next frame and decodes it.
func (e *Endpoint[Out, In]) Recv() (*In, error) {
	data, err := e.session.recvRaw()
	if err != nil {
		return nil, err
	}
	msg := new(In)
	if err := protocol.Unmarshal(data, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// RemoteAddr reports the peer address.
func (e *Endpoint[Out, In]) RemoteAddr() net.Addr {
	return e.session.RemoteAddr()
}

// Close tears down the underlying session.
func (e *Endpoint[Out, In]) Close() error {
	return e.session.Close()
}

// ServerEndpoint is the server's view of one client connection.
type ServerEndpoint = Endpoint[protocol.ServerMessage, protocol.ClientMessage]

// ClientEndpoint is the client's view of its server connection.
type ClientEndpoint = Endpoint[protocol.ClientMessage, protocol.ServerMessage]

// AcceptServer performs the responder handshake on an accepted connection.
func AcceptServer(conn net.Conn, static noise.DHKey) (*ServerEndpoint, error) {
	session, err := ServerHandshake(conn, static)
	if err != nil {
		return nil, err
	}
	return &ServerEndpoint{session: session}, nil
}

// Dial connects to addr and performs the initiator handshake, generating a
// fresh static keypair for the client.
func Dial(addr string) (*ClientEndpoint, error) {
	static, err := GenerateStaticKey()
	if err != nil {
		return nil, err
	}
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	session, err := ClientHandshake(conn, static)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &ClientEndpoint{session: session}, nil
}

// Package transport wraps a TCP stream in length-delimited frames encrypted
// under a Noise XX session (Noise_XX_25519_ChaChaPoly_BLAKE2s).
//
// After the three-message handshake the connection enters transport mode.
// Both cipher directions are owned by a single crypto worker goroutine;
// the send and receive halves submit encrypt/decrypt requests over a channel
// with a per-request response slot, so they run from independent goroutines
// without locking.
package transport

import (
	"crypto/rand"
	"fmt"
	"net"
	"sync"

	"github.com/flynn/noise"
)

// cipherSuite is fixed by the protocol: Noise_XX_25519_ChaChaPoly_BLAKE2s.
var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashBLAKE2s)

// GenerateStaticKey creates the process-wide static keypair. Ephemeral keys
// are generated per connection inside the handshake state.
func GenerateStaticKey() (noise.DHKey, error) {
	key, err := cipherSuite.GenerateKeypair(rand.Reader)
	if err != nil {
		return noise.DHKey{}, fmt.Errorf("generating static keypair: %w", err)
	}
	return key, nil
}

type cryptoOp uint8

const (
	opEncrypt cryptoOp = iota
	opDecrypt
)

type cryptoRequest struct {
	op   cryptoOp
	data []byte
	resp chan cryptoResult
}

type cryptoResult struct {
	data []byte
	err  error
}

// Session is an established encrypted connection. Its send and receive
// halves are each single-goroutine; the two may run concurrently.
type Session struct {
	conn      net.Conn
	requests  chan cryptoRequest
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(conn net.Conn, encrypt, decrypt *noise.CipherState) *Session {
	s := &Session{
		conn:     conn,
		requests: make(chan cryptoRequest),
		done:     make(chan struct{}),
	}
	go s.cryptoWorker(encrypt, decrypt)
	return s
}

// cryptoWorker serializes every encrypt and decrypt through one goroutine:
// the CipherStates use counter nonces and must not be touched concurrently.
func (s *Session) cryptoWorker(encrypt, decrypt *noise.CipherState) {
	for {
		select {
		case <-s.done:
			return
		case req := <-s.requests:
			var res cryptoResult
			switch req.op {
			case opEncrypt:
				res.data, res.err = encrypt.Encrypt(nil, nil, req.data)
			case opDecrypt:
				res.data, res.err = decrypt.Decrypt(nil, nil, req.data)
			}
			req.resp <- res
		}
	}
}

func (s *Session) submit(op cryptoOp, data []byte) ([]byte, error) {
	req := cryptoRequest{op: op, data: data, resp: make(chan cryptoResult, 1)}
	select {
	case s.requests <- req:
	case <-s.done:
		return nil, net.ErrClosed
	}
	res := <-req.resp
	return res.data, res.err
}

// sendRaw encrypts payload and writes it as one frame.
func (s *Session) sendRaw(payload []byte) error {
	encrypted, err := s.submit(opEncrypt, payload)
	if err != nil {
		return fmt.Errorf("encrypting frame: %w", err)
	}
	return writeFrame(s.conn, encrypted)
}

// recvRaw reads one frame and decrypts it.
func (s *Session) recvRaw() ([]byte, error) {
	frame, err := readFrame(s.conn)
	if err != nil {
		return nil, err
	}
	payload, err := s.submit(opDecrypt, frame)
	if err != nil {
		return nil, fmt.Errorf("decrypting frame: %w", err)
	}
	return payload, nil
}

// RemoteAddr reports the peer address of the underlying connection.
func (s *Session) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// Close stops the crypto worker and closes the connection. Idempotent.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

// ServerHandshake runs the responder side of the XX pattern over conn and
// returns the established session.
func ServerHandshake(conn net.Conn, static noise.DHKey) (*Session, error) {
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Pattern:       noise.HandshakeXX,
		Initiator:     false,
		StaticKeypair: static,
	})
	if err != nil {
		return nil, fmt.Errorf("handshake init: %w", err)
	}

	// <- e
	msg1, err := readFrame(conn)
	if err != nil {
		return nil, fmt.Errorf("handshake msg1: %w", err)
	}
	if _, _, _, err := hs.ReadMessage(nil, msg1); err != nil {
		return nil, fmt.Errorf("handshake msg1: %w", err)
	}

	// -> e, ee, s, es
	msg2, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("handshake msg2: %w", err)
	}
	if err := writeFrame(conn, msg2); err != nil {
		return nil, fmt.Errorf("handshake msg2: %w", err)
	}

	// <- s, se
	msg3, err := readFrame(conn)
	if err != nil {
		return nil, fmt.Errorf("handshake msg3: %w", err)
	}
	_, cs1, cs2, err := hs.ReadMessage(nil, msg3)
	if err != nil {
		return nil, fmt.Errorf("handshake msg3: %w", err)
	}

	// cs1 carries initiator->responder traffic, cs2 the reverse.
	return newSession(conn, cs2, cs1), nil
}

// ClientHandshake runs the initiator side of the XX pattern over conn.
func ClientHandshake(conn net.Conn, static noise.DHKey) (*Session, error) {
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Pattern:       noise.HandshakeXX,
		Initiator:     true,
		StaticKeypair: static,
	})
	if err != nil {
		return nil, fmt.Errorf("handshake init: %w", err)
	}

	// -> e
	msg1, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("handshake msg1: %w", err)
	}
	if err := writeFrame(conn, msg1); err != nil {
		return nil, fmt.Errorf("handshake msg1: %w", err)
	}

	// <- e, ee, s, es
	msg2, err := readFrame(conn)
	if err != nil {
		return nil, fmt.Errorf("handshake msg2: %w", err)
	}
	if _, _, _, err := hs.ReadMessage(nil, msg2); err != nil {
		return nil, fmt.Errorf("handshake msg2: %w", err)
	}

	// -> s, se
	msg3, cs1, cs2, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("handshake msg3: %w", err)
	}
	if err := writeFrame(conn, msg3); err != nil {
		return nil, fmt.Errorf("handshake msg3: %w", err)
	}

	return newSession(conn, cs1, cs2), nil
}

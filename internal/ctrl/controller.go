// Package ctrl supervises the control channel: the external collaborator
// that, once the session-request handshake completes, establishes the
// console's control connection, drives the interactive login-PIN exchange,
// and reports readiness back to the owning session (spec.md §4.4).
package ctrl

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// FlagSink receives the three flags the control channel reports, each
// under the owner's own lock, exactly as spec.md §4.4 describes: "Sets,
// under state_mutex, one of: ctrl_failed, ctrl_session_id_received,
// ctrl_login_pin_requested, and signals state_cond after each." The
// concrete implementation lives on *session.Session; ctrl only depends on
// this narrow interface so the two packages don't import each other.
type FlagSink interface {
	SetSessionIDReceived()
	SetLoginPINRequested()
	SetFailed()
}

// Controller is the contract the session state machine depends on. The
// control-channel wire protocol itself is out of scope (spec.md §1); this
// interface and defaultController below exist so the module builds and
// runs end-to-end — embedders that need bit-exact compatibility with a real
// console provide their own implementation.
type Controller interface {
	// Start begins connecting. It must not block past ctx's deadline; readiness,
	// failure and PIN requests are reported asynchronously via the FlagSink.
	Start(ctx context.Context) error

	// Stop requests shutdown. Idempotent, safe to call from any goroutine,
	// unblocks any in-progress Start.
	Stop()

	// Join waits for the controller's goroutine to exit.
	Join()

	// SetLoginPIN forwards a PIN entered by the embedder to the console.
	SetLoginPIN(pin []byte) error

	GotoBed() error
	KeyboardSetText(text string) error
	KeyboardReject() error
	KeyboardAccept() error
}

// Sentinel errors.
var (
	ErrNotStarted    = errors.New("ctrl: not started")
	ErrAlreadyClosed = errors.New("ctrl: already closed")
)

// Config parameterizes defaultController.
type Config struct {
	Host      string
	Port      int // default 9296, the conventional Chiaki ctrl port
	RegistKey [16]byte
	DID       [16]byte
}

// message types pushed by the console over the framed protocol below.
const (
	msgSessionID     byte = 1
	msgLoginPINReq   byte = 2
	msgLoginPIN      byte = 3
	msgFailed        byte = 4
	msgGotoBed       byte = 5
	msgKeyboardText  byte = 6
	msgKeyboardReply byte = 7
)

// defaultController is a minimal concrete Controller: it dials the
// console's control port, sends a short handshake frame keyed by the
// regist key and device id, then reads a stream of length-prefixed frames
// dispatching to the FlagSink. It is not a reproduction of Chiaki's actual
// binary ctrl protocol (explicitly out of scope — see DESIGN.md); it is
// grounded on services/signaling/transport/grpc.go's client lifecycle
// (dial-with-timeout, one long-lived connection, a mutex-guarded ready
// flag) adapted from a managed gRPC channel to a raw framed TCP socket.
// Stop does not interrupt a dial already in progress (that dial ends with
// Start's ctx); if Stop has run by the time the dial returns, Start closes
// the new connection and returns ErrAlreadyClosed.
type defaultController struct {
	cfg   Config
	flags FlagSink

	mu      sync.Mutex
	conn    net.Conn
	started bool
	closed  bool
	wg      sync.WaitGroup
}

// NewController returns the production Controller implementation.
func NewController(cfg Config, flags FlagSink) Controller {
	return &defaultController{cfg: cfg, flags: flags}
}

func (c *defaultController) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	port := c.cfg.Port
	if port == 0 {
		port = 9296
	}
	addr := fmt.Sprintf("%s:%d", c.cfg.Host, port)

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		c.flags.SetFailed()
		return fmt.Errorf("ctrl: dial %s: %w", addr, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrAlreadyClosed
	}
	c.conn = conn
	c.mu.Unlock()

	if err := c.handshake(conn); err != nil {
		c.flags.SetFailed()
		conn.Close()
		return err
	}

	c.wg.Add(1)
	go c.readLoop(conn)
	return nil
}

func (c *defaultController) handshake(conn net.Conn) error {
	buf := make([]byte, 4+16+16)
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(buf)-4))
	copy(buf[4:20], c.cfg.RegistKey[:])
	copy(buf[20:36], c.cfg.DID[:])
	_, err := conn.Write(buf)
	return err
}

func (c *defaultController) readLoop(conn net.Conn) {
	defer c.wg.Done()
	r := bufio.NewReader(conn)
	for {
		var length uint32
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			c.flags.SetFailed()
			return
		}
		if length == 0 || length > 1<<20 {
			c.flags.SetFailed()
			return
		}
		frame := make([]byte, length)
		if _, err := readFull(r, frame); err != nil {
			c.flags.SetFailed()
			return
		}
		switch frame[0] {
		case msgSessionID:
			c.flags.SetSessionIDReceived()
		case msgLoginPINReq:
			c.flags.SetLoginPINRequested()
		case msgFailed:
			c.flags.SetFailed()
			return
		}
	}
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func (c *defaultController) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.conn != nil {
		c.conn.Close()
	}
}

func (c *defaultController) Join() {
	c.wg.Wait()
}

func (c *defaultController) send(msgType byte, payload []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotStarted
	}
	frame := append([]byte{msgType}, payload...)
	buf := make([]byte, 4+len(frame))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(frame)))
	copy(buf[4:], frame)
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_, err := conn.Write(buf)
	return err
}

func (c *defaultController) SetLoginPIN(pin []byte) error {
	return c.send(msgLoginPIN, pin)
}

func (c *defaultController) GotoBed() error {
	return c.send(msgGotoBed, nil)
}

func (c *defaultController) KeyboardSetText(text string) error {
	return c.send(msgKeyboardText, []byte(text))
}

func (c *defaultController) KeyboardReject() error {
	return c.send(msgKeyboardReply, []byte{0})
}

func (c *defaultController) KeyboardAccept() error {
	return c.send(msgKeyboardReply, []byte{1})
}

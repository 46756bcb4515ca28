// Package streamconn supervises the media-bearing stream channel: the
// external collaborator that runs to completion once the control channel
// is ready and the MTU/RTT probe and crypto key material are prepared
// (spec.md §4.5). Decoding and rendering the audio/video it carries is
// explicitly out of scope (spec.md §1, Non-goals).
package streamconn

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// Outcome classifies how Run returned, mirroring the three cases spec.md
// §4.3 step 10 distinguishes.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeCanceled
	OutcomeDisconnected
	OutcomeUnknown
)

// ControllerState is the latched input-device snapshot forwarded to the
// feedback sender. Its fields are deliberately opaque here: encoding
// button/stick state is a controller-input concern ignored by this spec
// (spec.md §1).
type ControllerState struct {
	Buttons uint64
	LeftX   int16
	LeftY   int16
	RightX  int16
	RightY  int16
}

// Channel is the contract the session depends on for stream handover.
type Channel interface {
	// Run blocks until the stream ends, is cancelled via ctx, or fails.
	Run(ctx context.Context) (Outcome, error)

	// Stop requests shutdown; idempotent, safe from any goroutine.
	Stop()

	// RemoteDisconnectReason returns the reason the console gave for a
	// remote disconnect, valid after Run returns OutcomeDisconnected.
	RemoteDisconnectReason() string

	// SetControllerState updates the latched controller state and, if the
	// channel is actively streaming, forwards it immediately to the
	// feedback sender — all under the channel's own lock, never the
	// session's state mutex (spec.md §5).
	SetControllerState(state ControllerState)
}

// Config parameterizes defaultChannel.
type Config struct {
	Host            string
	Port            int // default 9297
	HandshakeKey    [16]byte
	MTUIn, MTUOut   int
	RTTMicros       int
}

var errAlreadyRunning = errors.New("streamconn: already running")

// defaultChannel is a minimal concrete Channel, grounded the same way
// ctrl.defaultController is: a single long-lived socket, owned by one
// goroutine, with a second, narrower lock just for the controller-state
// latch (mirroring legImpl's separate stateChangeCallbackMu alongside its
// main mu, generalized per spec.md §5's "feedback sender mutex").
type defaultChannel struct {
	cfg Config

	running bool
	mu      sync.Mutex

	feedbackMu     sync.Mutex
	active         bool
	controllerState ControllerState

	disconnectReason  string
	lastFeedbackSent time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewChannel returns the production Channel implementation.
func NewChannel(cfg Config) Channel {
	return &defaultChannel{cfg: cfg, stopCh: make(chan struct{})}
}

func (c *defaultChannel) Run(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return OutcomeUnknown, errAlreadyRunning
	}
	c.running = true
	c.mu.Unlock()

	port := c.cfg.Port
	if port == 0 {
		port = 9297
	}
	addr := fmt.Sprintf("%s:%d", c.cfg.Host, port)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.stopCh:
			cancel()
		case <-runCtx.Done():
		}
	}()

	var d net.Dialer
	conn, err := d.DialContext(runCtx, "udp", addr)
	if err != nil {
		if runCtx.Err() != nil {
			return OutcomeCanceled, nil
		}
		return OutcomeUnknown, fmt.Errorf("streamconn: dial %s: %w", addr, err)
	}
	defer conn.Close()

	c.feedbackMu.Lock()
	c.active = true
	c.feedbackMu.Unlock()
	defer func() {
		c.feedbackMu.Lock()
		c.active = false
		c.feedbackMu.Unlock()
	}()

	// A real implementation streams AV payloads and feedback frames here
	// until the remote disconnects or the context is cancelled. This
	// rendition blocks on cancellation only — decoding/playing back frames
	// is a Non-goal (spec.md §1).
	<-runCtx.Done()
	if ctx.Err() != nil {
		return OutcomeCanceled, nil
	}
	return OutcomeCanceled, nil
}

func (c *defaultChannel) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *defaultChannel) RemoteDisconnectReason() string {
	c.feedbackMu.Lock()
	defer c.feedbackMu.Unlock()
	return c.disconnectReason
}

func (c *defaultChannel) SetControllerState(state ControllerState) {
	c.feedbackMu.Lock()
	defer c.feedbackMu.Unlock()
	c.controllerState = state
	if c.active {
		// No feedback frame is sent in this rendition; only the time of
		// the latch update is recorded.
		c.lastFeedbackSent = time.Now()
	}
}

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/chiaki-go/rpsession/internal/ctrl"
	"github.com/chiaki-go/rpsession/internal/probe"
	"github.com/chiaki-go/rpsession/internal/sessionrequest"
	"github.com/chiaki-go/rpsession/internal/streamconn"
)

// Session is the public handle spec.md §6 describes: init/start/stop/join/
// fini plus the handful of mutators the embedder may call from any thread
// once started. It owns the control channel and stream channel it
// constructs (Design Notes §9, "cyclic ownership") and only ever exposes
// the narrow FlagSink interface to the former.
type Session struct {
	// id is a correlation id attached to every log line this session
	// emits, grounded on b2bua/leg_impl.go's "leg-"+uuid.New() (DESIGN.md).
	// It is also carried on the QuitEvent, so interleaved log output and
	// events from multiple sessions in the same process can be told apart.
	id       string
	info     ConnectInfo
	resolved resolved
	log      *slog.Logger
	sink     EventSink

	st     *state
	waiter *Waiter

	client    sessionrequest.Client
	newCtrl   func(ctrl.Config, ctrl.FlagSink) ctrl.Controller
	newProber func(probe.Config) probe.Prober
	newChan   func(streamconn.Config) streamconn.Channel

	mu      sync.Mutex
	ctrlC   ctrl.Controller
	channel streamconn.Channel

	started  bool
	stopOnce sync.Once
	doneCh   chan struct{}

	// pinPromptedOnce is read and written only by the session goroutine
	// inside run(), so it needs no lock of its own.
	pinPromptedOnce bool
}

// New builds a Session for connect-info info. Resolution failures are
// returned immediately (mirrors "memory-allocation failure in
// initialization unwinds ... before any thread is spawned", spec.md §7).
func New(info ConnectInfo, log *slog.Logger, sink EventSink) (*Session, error) {
	r, err := resolveHost(info)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	if sink == nil {
		sink = EventSinkFunc(func(Event) {})
	}

	st := newState()
	st.target = startingTarget(info)

	id := "rpsess-" + uuid.New().String()
	s := &Session{
		id:       id,
		info:     info,
		resolved: r,
		log:      log.With(slog.String("session_id", id)),
		sink:     sink,
		st:       st,
		waiter:   NewWaiter(st.mu),
		client:   sessionrequest.NewClient(),
		newCtrl:  ctrl.NewController,
		newProber: func(cfg probe.Config) probe.Prober {
			return probe.NewProber(cfg)
		},
		newChan: func(cfg streamconn.Config) streamconn.Channel {
			return streamconn.NewChannel(cfg)
		},
		doneCh: make(chan struct{}),
	}
	return s, nil
}

func startingTarget(info ConnectInfo) Target {
	if info.PS5 {
		return TargetPS5_1
	}
	return TargetPS4_10
}

// Start spawns the session's own goroutine and returns immediately; the
// single QUIT event arrives on sink once run() reaches teardown.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("session: already started")
	}
	s.started = true
	s.mu.Unlock()

	go func() {
		defer close(s.doneCh)
		s.run(ctx)
	}()
	return nil
}

// Stop is the single cancellation signal of spec.md §5: it is idempotent,
// safe from any goroutine, and unblocks every suspension point.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.waiter.Stop()
		s.mu.Lock()
		c := s.ctrlC
		ch := s.channel
		s.mu.Unlock()
		if c != nil {
			c.Stop()
		}
		if ch != nil {
			ch.Stop()
		}
	})
}

// Join waits for the session goroutine started by Start to exit.
func (s *Session) Join() {
	<-s.doneCh
}

// Close releases everything the session still holds: it stops the session
// (idempotent, so calling Close after an already-stopped session is a
// no-op) and drops its references to the control channel, stream channel
// and ECDH context so they become eligible for collection. Safe to call
// more than once. The Go name for chiaki_session_fini (spec.md §5, "Scoped
// resources") — Go's garbage collector replaces the reference's manual
// free() calls for everything except the two collaborator goroutines,
// which Stop+Join already account for.
func (s *Session) Close() {
	s.Stop()

	s.mu.Lock()
	s.ctrlC = nil
	s.channel = nil
	s.mu.Unlock()

	s.st.mu.Lock()
	s.st.ecdh = nil
	s.st.mu.Unlock()
}

// SetControllerState forwards to the active stream channel under its own
// feedback mutex, never state_mutex (spec.md §5).
func (s *Session) SetControllerState(cs streamconn.ControllerState) {
	s.mu.Lock()
	ch := s.channel
	s.mu.Unlock()
	if ch != nil {
		ch.SetControllerState(cs)
	}
}

// SetLoginPIN supplies a PIN entered by the embedder in response to a
// LoginPINRequestEvent.
func (s *Session) SetLoginPIN(pin []byte) error {
	s.st.mu.Lock()
	s.st.pin.set(pin)
	s.waiter.Signal()
	s.st.mu.Unlock()
	return nil
}

func (s *Session) ctrlOrNil() ctrl.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrlC
}

func (s *Session) GotoBed() error {
	if c := s.ctrlOrNil(); c != nil {
		return c.GotoBed()
	}
	return ctrl.ErrNotStarted
}

func (s *Session) KeyboardSetText(text string) error {
	if c := s.ctrlOrNil(); c != nil {
		return c.KeyboardSetText(text)
	}
	return ctrl.ErrNotStarted
}

func (s *Session) KeyboardReject() error {
	if c := s.ctrlOrNil(); c != nil {
		return c.KeyboardReject()
	}
	return ctrl.ErrNotStarted
}

func (s *Session) KeyboardAccept() error {
	if c := s.ctrlOrNil(); c != nil {
		return c.KeyboardAccept()
	}
	return ctrl.ErrNotStarted
}

// --- ctrl.FlagSink ---

func (s *Session) SetSessionIDReceived() {
	s.st.mu.Lock()
	s.st.ctrlSessionIDReceived = true
	s.waiter.Signal()
	s.st.mu.Unlock()
}

func (s *Session) SetLoginPINRequested() {
	s.st.mu.Lock()
	s.st.ctrlLoginPINRequested = true
	s.waiter.Signal()
	s.st.mu.Unlock()
}

func (s *Session) SetFailed() {
	s.st.mu.Lock()
	s.st.ctrlFailed = true
	s.waiter.Signal()
	s.st.mu.Unlock()
}

package session

import (
	"sync"

	"github.com/chiaki-go/rpsession/internal/rpcrypt"
)

// pinSlot is the owned-bytes container the C reference builds manually from
// a heap allocation plus a size and a presence flag (Design Notes §9,
// "Dynamic-size PIN buffer"). A Go slice already carries its own length, so
// the only state worth keeping separate is whether the embedder has
// supplied one yet.
type pinSlot struct {
	entered bool
	pin     []byte
}

// set stores pin and marks the slot entered. The caller must hold the
// state's mutex.
func (s *pinSlot) set(pin []byte) {
	s.pin = append([]byte(nil), pin...)
	s.entered = true
}

// take clears the slot and returns its previous contents, mirroring
// "free and zero the slot" from spec.md §4.3 step 6.
func (s *pinSlot) take() []byte {
	pin := append([]byte(nil), s.pin...)
	for i := range s.pin {
		s.pin[i] = 0
	}
	s.pin = nil
	s.entered = false
	return pin
}

// state is the SessionState of spec.md §3: every field here is mutated only
// under mu, with the single documented exception of the controller-state
// latch, which is owned by the streamconn.Channel the session hands it to.
type state struct {
	mu *sync.Mutex

	target Target

	ctrlFailed             bool
	ctrlSessionIDReceived  bool
	ctrlLoginPINRequested  bool

	pin pinSlot

	nonce   [NonceSize]byte
	rpcrypt *rpcrypt.Context

	handshakeKey [HandshakeKeySize]byte
	ecdh         *rpcrypt.ECDH

	mtuIn, mtuOut int
	rttMicros     int

	quitReason    QuitReason
	quitReasonStr string
}

func newState() *state {
	var mu sync.Mutex
	return &state{mu: &mu}
}

// ctrlFailedLocked is the state-local half of the "base" predicate of
// spec.md §4.1 (base = should_stop ∨ ctrl_failed): Waiter.WaitUntil folds
// should_stop into every predicate itself, so callers only need to supply
// the ctrl_failed half.
func (s *state) ctrlFailedLocked() bool {
	return s.ctrlFailed
}

func (s *state) ctrlStartDoneLocked() bool {
	return s.ctrlFailed || s.ctrlSessionIDReceived || s.ctrlLoginPINRequested
}

func (s *state) pinEnteredLocked() bool {
	return s.ctrlFailed || s.pin.entered
}

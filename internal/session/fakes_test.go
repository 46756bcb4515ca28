package session

import (
	"context"
	"sync"

	"github.com/chiaki-go/rpsession/internal/ctrl"
	"github.com/chiaki-go/rpsession/internal/probe"
	"github.com/chiaki-go/rpsession/internal/sessionrequest"
	"github.com/chiaki-go/rpsession/internal/streamconn"
)

// fakeRequestClient returns one canned sessionrequest.Result per call, in
// order, repeating the last entry once exhausted. blockUntilCanceled, when
// set, ignores results entirely and blocks until ctx is cancelled, to
// exercise the cancel-mid-handshake scenario.
type fakeRequestClient struct {
	mu                    sync.Mutex
	results               []sessionrequest.Result
	i                     int
	blockUntilCanceled    bool
	blockedAttemptStarted chan struct{}
}

func (f *fakeRequestClient) Request(ctx context.Context, cfg sessionrequest.Config) sessionrequest.Result {
	if f.blockUntilCanceled {
		if f.blockedAttemptStarted != nil {
			close(f.blockedAttemptStarted)
		}
		<-ctx.Done()
		return sessionrequest.Result{Outcome: sessionrequest.OutcomeCanceled, Err: ctx.Err()}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.results[f.i]
	if f.i < len(f.results)-1 {
		f.i++
	}
	return r
}

// fakeController is a ctrl.Controller whose behavior on Start and
// SetLoginPIN is supplied by the test via closures over the FlagSink it is
// constructed with.
type fakeController struct {
	flags        ctrl.FlagSink
	onStart      func(ctrl.FlagSink)
	onSetLoginPIN func(pin []byte, flags ctrl.FlagSink, callNumber int)

	mu        sync.Mutex
	pinCalls  int
	stopOnce  sync.Once
	joinCh    chan struct{}
}

func newFakeController(onStart func(ctrl.FlagSink), onSetLoginPIN func([]byte, ctrl.FlagSink, int)) func(ctrl.Config, ctrl.FlagSink) ctrl.Controller {
	return func(cfg ctrl.Config, flags ctrl.FlagSink) ctrl.Controller {
		return &fakeController{flags: flags, onStart: onStart, onSetLoginPIN: onSetLoginPIN, joinCh: make(chan struct{})}
	}
}

func (f *fakeController) Start(ctx context.Context) error {
	if f.onStart != nil {
		go f.onStart(f.flags)
	}
	return nil
}

func (f *fakeController) Stop() {
	f.stopOnce.Do(func() { close(f.joinCh) })
}

func (f *fakeController) Join() { <-f.joinCh }

func (f *fakeController) SetLoginPIN(pin []byte) error {
	f.mu.Lock()
	f.pinCalls++
	n := f.pinCalls
	f.mu.Unlock()
	if f.onSetLoginPIN != nil {
		f.onSetLoginPIN(pin, f.flags, n)
	}
	return nil
}

func (f *fakeController) GotoBed() error                    { return nil }
func (f *fakeController) KeyboardSetText(text string) error { return nil }
func (f *fakeController) KeyboardReject() error             { return nil }
func (f *fakeController) KeyboardAccept() error             { return nil }

// fakeProber returns a canned probe.Result immediately.
type fakeProber struct {
	result probe.Result
	err    error
}

func (f fakeProber) Run(ctx context.Context) (probe.Result, error) { return f.result, f.err }

// fakeChannel returns a canned Outcome as soon as Run is called, without
// blocking, so tests don't need to drive Stop() to unwind the session.
type fakeChannel struct {
	outcome streamconn.Outcome
	reason  string
}

func (f *fakeChannel) Run(ctx context.Context) (streamconn.Outcome, error) { return f.outcome, nil }
func (f *fakeChannel) Stop()                                              {}
func (f *fakeChannel) RemoteDisconnectReason() string                     { return f.reason }
func (f *fakeChannel) SetControllerState(streamconn.ControllerState)      {}

package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/chiaki-go/rpsession/internal/ctrl"
	"github.com/chiaki-go/rpsession/internal/probe"
	"github.com/chiaki-go/rpsession/internal/rpcrypt"
	"github.com/chiaki-go/rpsession/internal/sessionrequest"
	"github.com/chiaki-go/rpsession/internal/streamconn"
)

// run drives the eleven phases of spec.md §4.3 in order. It is the session
// goroutine's entire body; every suspension point inside it is either a
// Waiter.WaitUntil call, a context-bound network operation, or the blocking
// streamconn.Channel.Run — nothing here blocks unboundedly.
func (s *Session) run(ctx context.Context) {
	var quitErr error

	if err := s.phaseRequestSession(ctx); err != nil {
		quitErr = err
		s.teardown(ctx, quitErr)
		return
	}

	s.phaseAuthKeyMaterial()
	if s.waiter.Stopped() {
		s.teardown(ctx, &PhaseError{Phase: "auth", Reason: QuitStopped, Cause: ErrStopped})
		return
	}

	if err := s.phaseStartCtrl(ctx); err != nil {
		s.teardown(ctx, err)
		return
	}

	if err := s.phasePINLoop(); err != nil {
		s.teardown(ctx, err)
		return
	}

	if !s.phaseCtrlReadinessGate() {
		s.teardown(ctx, nil)
		return
	}

	result := s.phaseProbe(ctx)
	if s.waiter.Stopped() {
		s.teardown(ctx, &PhaseError{Phase: "probe", Reason: QuitStopped, Cause: ErrStopped})
		return
	}

	if err := s.phaseCryptoPrep(); err != nil {
		s.teardown(ctx, err)
		return
	}

	s.teardown(ctx, s.phaseStreamHandover(ctx, result))
}

// phaseRequestSession implements steps 1-3 of spec.md §4.3: a linear retry
// across up to three attempts, advancing only when the previous attempt
// returned OutcomeVersionMismatch with a usable server target (Design Notes
// §9(a), resolving the reference's retry-skip quirk by always treating the
// retry chain as linear).
func (s *Session) phaseRequestSession(ctx context.Context) error {
	attempt := func(targetOutSupplied bool) (sessionrequest.Result, Target) {
		s.st.mu.Lock()
		target := s.st.target
		s.st.mu.Unlock()

		cfg := sessionrequest.Config{
			Addrs:             s.resolved.hostAddrs,
			Path:              sessionRequestPath(target),
			RegistKeyHex:      RegistKeyHex(s.info.RegistKey),
			TargetOutSupplied: targetOutSupplied,
		}
		cfg.RPVersion, _ = RPVersion(target)

		reqCtx, cancel := s.waiter.Context(ctx)
		defer cancel()
		result := s.client.Request(reqCtx, cfg)

		serverTarget := TargetPS4Unknown
		if result.ServerRPVersion != "" {
			if result.ServerRPVersion == "5.0" && !target.IsPS5() {
				serverTarget = TargetPS4_9
			} else {
				serverTarget = ParseRPVersion(result.ServerRPVersion, target.IsPS5())
			}
		}
		return result, serverTarget
	}

	result, serverTarget := attempt(true)
	if result.Outcome == sessionrequest.OutcomeVersionMismatch && !serverTarget.IsUnknown() {
		s.st.mu.Lock()
		s.st.target = serverTarget
		s.st.mu.Unlock()

		result, serverTarget = attempt(true)
		if result.Outcome == sessionrequest.OutcomeVersionMismatch && !serverTarget.IsUnknown() {
			s.st.mu.Lock()
			s.st.target = serverTarget
			s.st.mu.Unlock()

			// Attempt 3 discards the parsed server target and supplies no
			// target_out slot: per spec.md §4.3 step 3, a further UNKNOWN
			// reason is fatal rather than triggering another retry.
			result, _ = attempt(false)
		}
	}

	return s.classifyRequestResult(result)
}

func (s *Session) classifyRequestResult(result sessionrequest.Result) error {
	switch result.Outcome {
	case sessionrequest.OutcomeSuccess:
		s.st.mu.Lock()
		s.st.nonce = result.Nonce
		s.st.mu.Unlock()
		return nil

	case sessionrequest.OutcomeCanceled:
		return &PhaseError{Phase: "request-session", Reason: QuitStopped, Cause: ErrStopped}

	case sessionrequest.OutcomeConnectionRefused:
		return &PhaseError{Phase: "request-session", Reason: QuitSessionRequestConnectionRefused, Cause: result.Err}

	case sessionrequest.OutcomeVersionMismatch:
		return &PhaseError{Phase: "request-session", Reason: QuitSessionRequestRPVersionMismatch, Cause: errors.New("unresolvable RP-Version mismatch")}

	default:
		switch result.Reason {
		case sessionrequest.ReasonInUse:
			return &PhaseError{Phase: "request-session", Reason: QuitSessionRequestRPInUse, Cause: result.Err}
		case sessionrequest.ReasonCrash:
			return &PhaseError{Phase: "request-session", Reason: QuitSessionRequestRPCrash, Cause: result.Err}
		case sessionrequest.ReasonRPVersion:
			return &PhaseError{Phase: "request-session", Reason: QuitSessionRequestRPVersionMismatch, Cause: result.Err}
		default:
			return &PhaseError{Phase: "request-session", Reason: QuitSessionRequestUnknown, Cause: result.Err}
		}
	}
}

// phaseAuthKeyMaterial implements step 4: derive the RP crypt context and
// take the advisory settling wait.
func (s *Session) phaseAuthKeyMaterial() {
	s.st.mu.Lock()
	target := s.st.target
	nonce := s.st.nonce
	s.st.mu.Unlock()

	rc, err := rpcrypt.InitAuth(target.IsPS5(), nonce, s.info.Morning)
	if err != nil {
		s.log.Warn("rpcrypt init failed, continuing without verified auth context", slog.Any("err", err))
	}

	s.st.mu.Lock()
	s.st.rpcrypt = rc
	s.waiter.WaitUntil(func() bool { return s.st.ctrlFailedLocked() }, settlingWait)
	s.st.mu.Unlock()
}

// phaseStartCtrl implements step 5: construct and start the control
// channel, then wait up to SessionExpectTimeout on the ctrl-start
// predicate.
func (s *Session) phaseStartCtrl(ctx context.Context) error {
	cfg := ctrl.Config{
		Host:      s.info.Host,
		RegistKey: s.info.RegistKey,
		DID:       s.resolved.did,
	}
	c := s.newCtrl(cfg, s)

	s.mu.Lock()
	s.ctrlC = c
	s.mu.Unlock()

	startCtx, cancel := s.waiter.Context(ctx)
	defer cancel()
	if err := c.Start(startCtx); err != nil {
		if s.waiter.Stopped() {
			return &PhaseError{Phase: "ctrl-start", Reason: QuitStopped, Cause: ErrStopped}
		}
		return &PhaseError{Phase: "ctrl-start", Reason: QuitCtrlConnectFailed, Cause: err}
	}

	s.st.mu.Lock()
	s.waiter.WaitUntil(s.st.ctrlStartDoneLocked, ctrlStartTimeout)
	s.st.mu.Unlock()

	if s.waiter.Stopped() {
		return &PhaseError{Phase: "ctrl-start", Reason: QuitStopped, Cause: ErrStopped}
	}
	return nil
}

// phasePINLoop implements step 6: repeat login-PIN prompts until the
// control channel either reports a session id or fails.
func (s *Session) phasePINLoop() error {
	for {
		s.st.mu.Lock()
		requested := s.st.ctrlLoginPINRequested
		first := !s.pinPromptedOnce
		if requested {
			s.st.ctrlLoginPINRequested = false
		}
		s.st.mu.Unlock()

		if !requested {
			break
		}
		s.pinPromptedOnce = true

		s.sink.HandleEvent(LoginPINRequestEvent{PINIncorrect: !first})

		s.st.mu.Lock()
		s.waiter.WaitUntil(s.st.pinEnteredLocked, 0)
		pin := s.st.pin.take()
		stopped := s.waiter.Stopped()
		s.st.mu.Unlock()

		if stopped {
			return &PhaseError{Phase: "pin-loop", Reason: QuitStopped, Cause: ErrStopped}
		}

		if c := s.ctrlOrNil(); c != nil {
			if err := c.SetLoginPIN(pin); err != nil {
				s.log.Warn("set login pin failed", slog.Any("err", err))
			}
		}

		s.st.mu.Lock()
		s.waiter.WaitUntil(s.st.ctrlStartDoneLocked, ctrlStartTimeout)
		s.st.mu.Unlock()

		s.st.mu.Lock()
		done := s.st.ctrlSessionIDReceived || s.st.ctrlFailed
		s.st.mu.Unlock()
		if done {
			break
		}
	}
	return nil
}

// phaseCtrlReadinessGate implements step 7. It returns false when the
// control channel never reported a session id, in which case the caller
// must skip straight to teardown (steps 8-10 never run).
func (s *Session) phaseCtrlReadinessGate() bool {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if !s.st.ctrlSessionIDReceived {
		if s.st.quitReason == QuitNone {
			s.st.quitReason = QuitCtrlUnknown
		}
		return false
	}
	return true
}

// phaseProbe implements step 8, falling back to probe.FallbackResult on any
// non-cancellation failure.
func (s *Session) phaseProbe(ctx context.Context) probe.Result {
	p := s.newProber(probe.Config{Host: s.info.Host})

	probeCtx, cancel := s.waiter.Context(ctx)
	defer cancel()

	result, err := p.Run(probeCtx)
	if err != nil {
		if s.waiter.Stopped() {
			return probe.Result{}
		}
		s.log.Info("senkusha probe failed, using fallback values", slog.Any("err", err))
		return probe.FallbackResult
	}

	s.st.mu.Lock()
	s.st.mtuIn, s.st.mtuOut, s.st.rttMicros = result.MTUIn, result.MTUOut, result.RTTMicros
	s.st.mu.Unlock()
	return result
}

// phaseCryptoPrep implements step 9.
func (s *Session) phaseCryptoPrep() error {
	key, err := rpcrypt.RandomHandshakeKey()
	if err != nil {
		return &PhaseError{Phase: "crypto-prep", Reason: QuitCtrlUnknown, Cause: err}
	}
	ecdh, err := rpcrypt.NewECDH()
	if err != nil {
		return &PhaseError{Phase: "crypto-prep", Reason: QuitCtrlUnknown, Cause: err}
	}

	s.st.mu.Lock()
	s.st.handshakeKey = key
	s.st.ecdh = ecdh
	s.st.mu.Unlock()
	return nil
}

// phaseStreamHandover implements step 10: run the stream channel to
// completion outside state_mutex and classify the result.
func (s *Session) phaseStreamHandover(ctx context.Context, probeResult probe.Result) error {
	if s.waiter.Stopped() {
		return &PhaseError{Phase: "stream-handover", Reason: QuitStopped, Cause: ErrStopped}
	}

	s.st.mu.Lock()
	key := s.st.handshakeKey
	s.st.mu.Unlock()

	cfg := streamconn.Config{
		Host:         s.info.Host,
		HandshakeKey: key,
		MTUIn:        probeResult.MTUIn,
		MTUOut:       probeResult.MTUOut,
		RTTMicros:    probeResult.RTTMicros,
	}
	ch := s.newChan(cfg)

	s.mu.Lock()
	s.channel = ch
	s.mu.Unlock()

	streamCtx, cancel := s.waiter.Context(ctx)
	defer cancel()
	outcome, err := ch.Run(streamCtx)

	switch outcome {
	case streamconn.OutcomeDisconnected:
		return &PhaseError{Phase: "stream-handover", Reason: QuitStreamConnectionRemoteDisconnected, Cause: err}
	case streamconn.OutcomeSuccess, streamconn.OutcomeCanceled:
		return &PhaseError{Phase: "stream-handover", Reason: QuitStopped, Cause: nil}
	default:
		return &PhaseError{Phase: "stream-handover", Reason: QuitStreamConnectionUnknown, Cause: err}
	}
}

// teardown implements step 11: stop and join the control channel and emit
// the session's single QUIT event.
func (s *Session) teardown(ctx context.Context, quitErr error) {
	reason := QuitNone
	reasonStr := ""

	s.st.mu.Lock()
	if s.st.quitReason != QuitNone {
		reason = s.st.quitReason
	}
	s.st.mu.Unlock()

	var perr *PhaseError
	if errors.As(quitErr, &perr) {
		reason = perr.Reason
		if perr.Cause != nil {
			reasonStr = perr.Cause.Error()
		}
	}

	if c := s.ctrlOrNil(); c != nil {
		c.Stop()
		c.Join()
	}

	if ch := s.channelOrNil(); ch != nil {
		if rsn := ch.RemoteDisconnectReason(); rsn != "" {
			reasonStr = rsn
		}
	}

	s.st.mu.Lock()
	s.st.quitReason = reason
	s.st.quitReasonStr = reasonStr
	s.st.mu.Unlock()

	s.sink.HandleEvent(QuitEvent{SessionID: s.id, Reason: reason, ReasonStr: reasonStr})
}

func (s *Session) channelOrNil() streamconn.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel
}

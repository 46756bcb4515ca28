package sessionrequest

import (
	"context"
	"net"
	"testing"
	"time"
)

// serveOnce accepts a single connection and writes raw bytes back,
// simulating one console session-init response.
func serveOnce(t *testing.T, response string) net.Addr {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		conn.Read(buf) // drain the request
		conn.Write([]byte(response))
	}()

	return ln.Addr()
}

func TestRequestSuccess(t *testing.T) {
	addr := serveOnce(t, "HTTP/1.1 200 OK\r\nRP-Nonce: AAAAAAAAAAAAAAAAAAAAAA==\r\n\r\n")

	c := NewClient()
	result := c.Request(context.Background(), Config{
		Addrs:        []net.Addr{addr},
		Path:         "/sie/ps5/rp/sess/init",
		RPVersion:    "1.0",
		RegistKeyHex: "deadbeef",
	})

	if result.Outcome != OutcomeSuccess {
		t.Fatalf("Outcome = %v, want OutcomeSuccess (err=%v)", result.Outcome, result.Err)
	}
	var zero [16]byte
	if result.Nonce != zero {
		t.Errorf("Nonce = %x, want all-zero", result.Nonce)
	}
}

func TestRequestVersionMismatch(t *testing.T) {
	addr := serveOnce(t, "HTTP/1.1 403 Forbidden\r\nRP-Application-Reason: 80\r\nRP-Version: 9.0\r\n\r\n")

	c := NewClient()
	result := c.Request(context.Background(), Config{
		Addrs:        []net.Addr{addr},
		Path:         "/sie/ps4/rp/sess/init",
		RPVersion:    "10.0",
		RegistKeyHex: "deadbeef",
	})

	if result.Outcome != OutcomeVersionMismatch {
		t.Fatalf("Outcome = %v, want OutcomeVersionMismatch", result.Outcome)
	}
	if result.ServerRPVersion != "9.0" {
		t.Errorf("ServerRPVersion = %q, want 9.0", result.ServerRPVersion)
	}
}

func TestRequestInUse(t *testing.T) {
	addr := serveOnce(t, "HTTP/1.1 403 Forbidden\r\nRP-Application-Reason: 87\r\n\r\n")

	c := NewClient()
	result := c.Request(context.Background(), Config{
		Addrs:        []net.Addr{addr},
		Path:         "/sie/ps5/rp/sess/init",
		RPVersion:    "1.0",
		RegistKeyHex: "deadbeef",
	})

	if result.Outcome != OutcomeError {
		t.Fatalf("Outcome = %v, want OutcomeError", result.Outcome)
	}
	if result.Reason != ReasonInUse {
		t.Errorf("Reason = %v, want ReasonInUse", result.Reason)
	}
}

func TestRequestConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr()
	ln.Close() // nothing listening now; the port should refuse connections

	c := NewClient()
	result := c.Request(context.Background(), Config{
		Addrs:        []net.Addr{addr},
		Path:         "/sie/ps5/rp/sess/init",
		RPVersion:    "1.0",
		RegistKeyHex: "deadbeef",
	})

	if result.Outcome != OutcomeConnectionRefused {
		t.Fatalf("Outcome = %v, want OutcomeConnectionRefused (err=%v)", result.Outcome, result.Err)
	}
}

func TestApplicationReasonString(t *testing.T) {
	cases := []struct {
		reason ApplicationReason
		want   string
	}{
		{ReasonNone, "NONE"},
		{ReasonInUse, "IN_USE"},
		{ReasonCrash, "CRASH"},
		{ReasonRPVersion, "RP_VERSION"},
		{ReasonUnknown, "UNKNOWN"},
	}
	for _, c := range cases {
		if got := c.reason.String(); got != c.want {
			t.Errorf("%v.String() = %q, want %q", c.reason, got, c.want)
		}
	}
}

// TestRequestAbsentReasonHeaderIsNotUnknown covers a response with a
// differing RP-Version but no RP-Application-Reason header at all: the
// console's parse_session_response leaves error_code at its memset-zeroed
// 0, which matches neither RP_VERSION nor UNKNOWN, so the classification
// must fall to the default SESSION_REQUEST_UNKNOWN mapping rather than
// being mistaken for a version mismatch.
func TestRequestAbsentReasonHeaderIsNotUnknown(t *testing.T) {
	addr := serveOnce(t, "HTTP/1.1 403 Forbidden\r\nRP-Version: 9.0\r\n\r\n")

	c := NewClient()
	result := c.Request(context.Background(), Config{
		Addrs:             []net.Addr{addr},
		Path:              "/sie/ps4/rp/sess/init",
		RPVersion:         "10.0",
		RegistKeyHex:      "deadbeef",
		TargetOutSupplied: true,
	})

	if result.Outcome != OutcomeError {
		t.Fatalf("Outcome = %v, want OutcomeError", result.Outcome)
	}
	if result.Reason != ReasonNone {
		t.Errorf("Reason = %v, want ReasonNone", result.Reason)
	}
}

// TestRequestUnknownReasonWithoutTargetOutIsError covers the third and
// final request-session attempt (spec.md §4.3 step 3), where no target_out
// slot is supplied: an UNKNOWN reason alongside a differing RP-Version must
// no longer qualify as a version mismatch, unlike on attempts 1-2.
func TestRequestUnknownReasonWithoutTargetOutIsError(t *testing.T) {
	addr := serveOnce(t, "HTTP/1.1 403 Forbidden\r\nRP-Application-Reason: abcd\r\nRP-Version: 9.0\r\n\r\n")

	c := NewClient()
	result := c.Request(context.Background(), Config{
		Addrs:             []net.Addr{addr},
		Path:              "/sie/ps4/rp/sess/init",
		RPVersion:         "10.0",
		RegistKeyHex:      "deadbeef",
		TargetOutSupplied: false,
	})

	if result.Outcome != OutcomeError {
		t.Fatalf("Outcome = %v, want OutcomeError", result.Outcome)
	}
	if result.Reason != ReasonUnknown {
		t.Errorf("Reason = %v, want ReasonUnknown", result.Reason)
	}
}

// TestRequestUnknownReasonWithTargetOutIsVersionMismatch is the attempt
// 1-2 counterpart: with a target_out slot supplied, the same UNKNOWN
// reason alongside a differing RP-Version still resolves to a version
// mismatch so the caller retries against the reported target.
func TestRequestUnknownReasonWithTargetOutIsVersionMismatch(t *testing.T) {
	addr := serveOnce(t, "HTTP/1.1 403 Forbidden\r\nRP-Application-Reason: abcd\r\nRP-Version: 9.0\r\n\r\n")

	c := NewClient()
	result := c.Request(context.Background(), Config{
		Addrs:             []net.Addr{addr},
		Path:              "/sie/ps4/rp/sess/init",
		RPVersion:         "10.0",
		RegistKeyHex:      "deadbeef",
		TargetOutSupplied: true,
	})

	if result.Outcome != OutcomeVersionMismatch {
		t.Fatalf("Outcome = %v, want OutcomeVersionMismatch", result.Outcome)
	}
	if result.ServerRPVersion != "9.0" {
		t.Errorf("ServerRPVersion = %q, want 9.0", result.ServerRPVersion)
	}
}

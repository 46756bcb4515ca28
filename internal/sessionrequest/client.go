package sessionrequest

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/http/httpguts"
)

// Outcome classifies how Request concluded, matching the three-way split
// spec.md §4.2 describes for the caller to act on. The mapping from a
// failure Outcome/Reason pair to a session.QuitReason is left to the
// caller: this package has no notion of the session machine's enum, so the
// dependency only runs one way (session depends on sessionrequest, never
// the reverse).
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeVersionMismatch
	OutcomeCanceled
	OutcomeConnectionRefused
	OutcomeError
)

// Result is everything Request learned from one request/response round.
type Result struct {
	Outcome Outcome

	// Nonce is populated on OutcomeSuccess.
	Nonce [16]byte

	// ServerRPVersion is the RP-Version the console reported; populated on
	// OutcomeVersionMismatch (and otherwise whenever the header was present).
	ServerRPVersion string

	// Reason is the parsed RP-Application-Reason; meaningful whenever
	// Outcome is not OutcomeSuccess and the console returned the header.
	Reason ApplicationReason

	// SelectedAddr is the first candidate that accepted a TCP connection,
	// i.e. connect_info.host_addrinfo_selected (spec.md §3).
	SelectedAddr net.Addr

	Err error
}

// Config parameterizes one Request call. Path and RPVersion are derived by
// the caller from the current session.Target so this package stays
// independent of the session package's Target type.
type Config struct {
	Addrs        []net.Addr
	Path         string
	RPVersion    string
	RegistKeyHex string
	Timeout      time.Duration // response-header read timeout; defaults to 5000ms

	// TargetOutSupplied mirrors whether the caller has a target_out slot to
	// write a renegotiated server version into (spec.md §4.3). The session
	// machine's first two attempts supply one; its third and final attempt
	// does not, which changes how classify resolves an UNKNOWN reason
	// alongside a differing RP-Version. Defaults to false, so callers that
	// don't set it get attempt-3 semantics.
	TargetOutSupplied bool
}

// Client is the contract the session state machine depends on for the
// request-session phase.
type Client interface {
	Request(ctx context.Context, cfg Config) Result
}

var errUnexpectedEOF = errors.New("sessionrequest: connection closed before headers completed")

type defaultClient struct{}

// NewClient returns the production Client implementation.
func NewClient() Client {
	return defaultClient{}
}

// Request implements the candidate iteration, GET construction and
// response-header classification of spec.md §4.2, grounded on
// session_thread_request_session (session.c:576-825).
func (defaultClient) Request(ctx context.Context, cfg Config) Result {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5000 * time.Millisecond
	}

	var lastErr error
	sawConnectionRefused := false

	var d net.Dialer
	for _, addr := range cfg.Addrs {
		if ctx.Err() != nil {
			return Result{Outcome: OutcomeCanceled, Err: ctx.Err()}
		}

		conn, err := d.DialContext(ctx, "tcp", addr.String())
		if err != nil {
			if ctx.Err() != nil {
				return Result{Outcome: OutcomeCanceled, Err: ctx.Err()}
			}
			if isConnectionRefused(err) {
				sawConnectionRefused = true
			} else {
				lastErr = err
			}
			continue
		}

		result := requestOne(ctx, conn, addr, cfg, timeout)
		conn.Close()
		result.SelectedAddr = addr
		return result
	}

	if sawConnectionRefused {
		return Result{Outcome: OutcomeConnectionRefused, Err: lastErr}
	}
	return Result{Outcome: OutcomeError, Err: fmt.Errorf("sessionrequest: no candidate connected: %w", lastErr)}
}

func requestOne(ctx context.Context, conn net.Conn, addr net.Addr, cfg Config, timeout time.Duration) Result {
	req := buildRequest(addr.String(), cfg)

	deadline := time.Now().Add(timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	conn.SetDeadline(deadline)
	stopAfter := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stopAfter()

	if _, err := conn.Write([]byte(req)); err != nil {
		if ctx.Err() != nil {
			return Result{Outcome: OutcomeCanceled, Err: ctx.Err()}
		}
		return Result{Outcome: OutcomeError, Err: fmt.Errorf("sessionrequest: write request: %w", err)}
	}

	status, header, err := readResponse(conn)
	if err != nil {
		if ctx.Err() != nil {
			return Result{Outcome: OutcomeCanceled, Err: ctx.Err()}
		}
		return Result{Outcome: OutcomeError, Err: err}
	}

	return classify(status, header, cfg.RPVersion, cfg.TargetOutSupplied)
}

// buildRequest renders the GET exactly per spec.md §4.2's header list.
func buildRequest(hostport string, cfg Config) string {
	var b strings.Builder
	fmt.Fprintf(&b, "GET %s HTTP/1.1\r\n", cfg.Path)
	fmt.Fprintf(&b, "Host: %s\r\n", hostport)
	b.WriteString("User-Agent: remoteplay Windows\r\n")
	b.WriteString("Connection: close\r\n")
	b.WriteString("Content-Length: 0\r\n")
	fmt.Fprintf(&b, "RP-Registkey: %s\r\n", cfg.RegistKeyHex)
	fmt.Fprintf(&b, "Rp-Version: %s\r\n", cfg.RPVersion)
	b.WriteString("\r\n")
	return b.String()
}

// readResponse parses the status line and header block with
// bufio+net/textproto, the lowest-level way to read a raw HTTP/1.1 response
// without pulling in a full net/http client for a one-shot handshake
// request (see DESIGN.md).
func readResponse(conn net.Conn) (int, textproto.MIMEHeader, error) {
	r := textproto.NewReader(bufio.NewReader(conn))

	statusLine, err := r.ReadLine()
	if err != nil {
		return 0, nil, fmt.Errorf("sessionrequest: read status line: %w", errUnexpectedEOFIfEOF(err))
	}
	status, err := parseStatusLine(statusLine)
	if err != nil {
		return 0, nil, err
	}

	header, err := r.ReadMIMEHeader()
	if err != nil && len(header) == 0 {
		return 0, nil, fmt.Errorf("sessionrequest: read headers: %w", errUnexpectedEOFIfEOF(err))
	}
	return status, header, nil
}

func errUnexpectedEOFIfEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return errUnexpectedEOF
	}
	return err
}

func parseStatusLine(line string) (int, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return 0, fmt.Errorf("sessionrequest: malformed status line %q", line)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("sessionrequest: malformed status code %q: %w", parts[1], err)
	}
	return code, nil
}

// classify implements the three-way outcome split of spec.md §4.2. An
// RP_VERSION reason always yields OutcomeVersionMismatch. ourRPVersion is the
// version this request was sent with, used to decide whether an UNKNOWN
// reason actually reflects a version disagreement (step 2) as opposed to
// some other failure carrying that reason code (step 3's "else" case).
// targetOutSupplied mirrors whether the caller has
// somewhere to write a renegotiated target: when it's false (the session
// machine's third and final attempt, target_out == NULL in session.c), an
// UNKNOWN reason alongside a version disagreement no longer qualifies for
// step 2 and falls through to step 3's default mapping instead.
func classify(status int, header textproto.MIMEHeader, ourRPVersion string, targetOutSupplied bool) Result {
	nonceRaw := header.Get("RP-Nonce")
	rpVersion := headerCaseInsensitive(header, "RP-Version")
	reasonRaw := header.Get("RP-Application-Reason")

	if rpVersion != "" && !httpguts.ValidHeaderFieldValue(rpVersion) {
		return Result{Outcome: OutcomeError, Err: fmt.Errorf("sessionrequest: invalid RP-Version header value")}
	}

	if status == 200 && nonceRaw != "" {
		decoded, err := base64.StdEncoding.DecodeString(nonceRaw)
		if err != nil {
			return Result{Outcome: OutcomeError, Err: fmt.Errorf("sessionrequest: decode RP-Nonce: %w", err)}
		}
		if len(decoded) != 16 {
			return Result{Outcome: OutcomeError, Err: fmt.Errorf("sessionrequest: RP-Nonce decoded to %d bytes, want 16", len(decoded))}
		}
		var nonce [16]byte
		copy(nonce[:], decoded)
		return Result{Outcome: OutcomeSuccess, Nonce: nonce, ServerRPVersion: rpVersion}
	}

	reason := ReasonNone
	if reasonRaw != "" {
		reason = ReasonUnknown
		if v, err := strconv.ParseInt(strings.TrimPrefix(reasonRaw, "0x"), 16, 64); err == nil {
			switch r := ApplicationReason(v); r {
			case ReasonRegistFailed, ReasonInvalidPSNID, ReasonInUse, ReasonCrash, ReasonRPVersion:
				reason = r
			}
		}
	}

	versionDisagrees := rpVersion != "" && rpVersion != ourRPVersion
	if reason == ReasonRPVersion {
		return Result{Outcome: OutcomeVersionMismatch, ServerRPVersion: rpVersion, Reason: reason}
	}
	if reason == ReasonUnknown && versionDisagrees && targetOutSupplied {
		return Result{Outcome: OutcomeVersionMismatch, ServerRPVersion: rpVersion, Reason: reason}
	}

	return Result{Outcome: OutcomeError, ServerRPVersion: rpVersion, Reason: reason}
}

// headerCaseInsensitive implements RP-Version's case-insensitive match
// (spec.md §4.2); textproto.MIMEHeader already canonicalizes keys, so a
// direct Get suffices, but the helper documents the requirement at the
// call site.
func headerCaseInsensitive(header textproto.MIMEHeader, key string) string {
	return header.Get(key)
}

func isConnectionRefused(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return strings.Contains(opErr.Err.Error(), "connection refused") || strings.Contains(opErr.Err.Error(), "refused")
	}
	return strings.Contains(err.Error(), "refused")
}

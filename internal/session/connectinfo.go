package session

import (
	"crypto/rand"
	"net"
)

// RegistKeySize and MorningSize are the fixed secret sizes exchanged at
// registration time (spec.md §3).
const (
	RegistKeySize = 16
	MorningSize   = 16
	DIDSize       = 16
)

// didPrefix and didSuffix are the fixed byte layout of the device
// identifier sent to the console (spec.md §6). The middle "random" segment
// is zero-length because the two fixed segments already fill all 16 bytes
// (Design Notes §9(b)) — preserved for wire compatibility even though the
// name suggests a nonzero random component.
var (
	didPrefix = [10]byte{0x00, 0x18, 0x00, 0x00, 0x00, 0x07, 0x00, 0x40, 0x00, 0x80}
	didSuffix = [6]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
)

// ConnectInfo is the embedder-supplied configuration for a session,
// provided once at construction and never mutated afterward.
type ConnectInfo struct {
	Host       string
	PS5        bool
	RegistKey  [RegistKeySize]byte
	Morning    [MorningSize]byte
	Video      VideoProfile
	AutoDowngrade    bool
	EnableKeyboard   bool
}

// resolved holds the derived, connection-time fields the core owns on top
// of ConnectInfo (spec.md §3): resolved address candidates, the candidate
// that actually connected, its numeric hostname, and the device id.
type resolved struct {
	hostAddrs    []net.Addr
	selectedAddr net.Addr
	hostname     string
	did          [DIDSize]byte
}

// resolveHost resolves info.Host to a list of IPv4/IPv6 addresses and
// derives the session's device id. Mirrors chiaki_session_init's
// getaddrinfo call and DID construction (session.c:207-224).
func resolveHost(info ConnectInfo) (resolved, error) {
	var r resolved

	ips, err := net.LookupIP(info.Host)
	if err != nil {
		return r, &PhaseError{Phase: "resolve", Reason: QuitSessionRequestUnknown, Cause: err}
	}
	for _, ip := range ips {
		r.hostAddrs = append(r.hostAddrs, &net.TCPAddr{IP: ip, Port: SessionPort})
	}
	if len(r.hostAddrs) == 0 {
		return r, &PhaseError{Phase: "resolve", Reason: QuitSessionRequestUnknown, Cause: ErrNoAddrinfo}
	}

	copy(r.did[:10], didPrefix[:])
	// Random middle has length zero: prefix (10) + suffix (6) == DIDSize.
	// rand.Read is still called on the (empty) middle slice to keep the
	// "random middle" concept visible at the call site.
	if _, err := rand.Read(r.did[10:10]); err != nil {
		return r, &PhaseError{Phase: "resolve", Reason: QuitSessionRequestUnknown, Cause: err}
	}
	copy(r.did[10:], didSuffix[:])

	return r, nil
}

// RegistKeyHex hex-encodes the regist key up to (exclusive of) the first
// zero byte, lowercase, matching format_hex in the C reference.
func RegistKeyHex(key [RegistKeySize]byte) string {
	n := len(key)
	for i, b := range key {
		if b == 0 {
			n = i
			break
		}
	}
	const hexDigits = "0123456789abcdef"
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		out[i*2] = hexDigits[key[i]>>4]
		out[i*2+1] = hexDigits[key[i]&0x0f]
	}
	return string(out)
}

package session

import "time"

// Wire-level constants (spec.md §6).
const (
	SessionPort           = 9295
	SessionExpectTimeout  = 5000 * time.Millisecond
	NonceSize             = 16
	HandshakeKeySize      = 16
	ctrlStartTimeout       = SessionExpectTimeout
	settlingWait           = 10 * time.Millisecond
	fallbackMTU            = 1454
	fallbackRTTMicros      = 1000
)

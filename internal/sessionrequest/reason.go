// Package sessionrequest implements the HTTP session-init exchange
// described in spec.md §4.2: candidate iteration over resolved addresses,
// the RP session-init GET request, and response-header outcome
// classification.
package sessionrequest

// ApplicationReason is the RP-Application-Reason header value, parsed as
// base-16. The constants are part of the wire contract and must stay
// bit-exact with the console's own values (session.c:36-53).
type ApplicationReason int

const (
	// ReasonNone is not a wire value: it marks that RP-Application-Reason
	// was absent from the response altogether, matching
	// parse_session_response's memset-zeroed error_code (session.c). It
	// must stay distinct from ReasonUnknown, which means the header was
	// present but unparseable or carried a code we don't recognize.
	ReasonNone         ApplicationReason = 0
	ReasonRegistFailed ApplicationReason = 0x81
	ReasonInvalidPSNID ApplicationReason = 0x85
	ReasonInUse        ApplicationReason = 0x87
	ReasonCrash        ApplicationReason = 0x88
	ReasonRPVersion    ApplicationReason = 0x80
	ReasonUnknown      ApplicationReason = 0x100
)

func (r ApplicationReason) String() string {
	switch r {
	case ReasonNone:
		return "NONE"
	case ReasonRegistFailed:
		return "REGIST_FAILED"
	case ReasonInvalidPSNID:
		return "INVALID_PSN_ID"
	case ReasonInUse:
		return "IN_USE"
	case ReasonCrash:
		return "CRASH"
	case ReasonRPVersion:
		return "RP_VERSION"
	default:
		return "UNKNOWN"
	}
}

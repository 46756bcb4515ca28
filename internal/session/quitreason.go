package session

// QuitReason classifies why the session state machine exited.
type QuitReason int

const (
	QuitNone QuitReason = iota
	QuitStopped
	QuitSessionRequestUnknown
	QuitSessionRequestConnectionRefused
	QuitSessionRequestRPInUse
	QuitSessionRequestRPCrash
	QuitSessionRequestRPVersionMismatch
	QuitCtrlUnknown
	QuitCtrlConnectionRefused
	QuitCtrlConnectFailed
	QuitStreamConnectionUnknown
	QuitStreamConnectionRemoteDisconnected
)

// String returns the same diagnostic text as chiaki_quit_reason_string.
func (r QuitReason) String() string {
	switch r {
	case QuitStopped:
		return "Stopped"
	case QuitSessionRequestUnknown:
		return "Unknown Session Request Error"
	case QuitSessionRequestConnectionRefused:
		return "Connection Refused in Session Request"
	case QuitSessionRequestRPInUse:
		return "Remote Play on Console is already in use"
	case QuitSessionRequestRPCrash:
		return "Remote Play on Console has crashed"
	case QuitSessionRequestRPVersionMismatch:
		return "RP-Version mismatch"
	case QuitCtrlUnknown:
		return "Unknown Ctrl Error"
	case QuitCtrlConnectionRefused:
		return "Connection Refused in Ctrl"
	case QuitCtrlConnectFailed:
		return "Ctrl failed to connect"
	case QuitStreamConnectionUnknown:
		return "Unknown Error in Stream Connection"
	case QuitStreamConnectionRemoteDisconnected:
		return "Remote has disconnected from Stream Connection"
	case QuitNone:
		fallthrough
	default:
		return "Unknown"
	}
}

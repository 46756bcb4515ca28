package session

// Target identifies a console family and the Remote Play protocol version
// it speaks.
type Target int

const (
	TargetPS4Unknown Target = iota
	TargetPS4_8
	TargetPS4_9
	TargetPS4_10
	TargetPS5Unknown
	TargetPS5_1
)

// String returns a human-readable name, used in log lines.
func (t Target) String() string {
	switch t {
	case TargetPS4_8:
		return "PS4_8"
	case TargetPS4_9:
		return "PS4_9"
	case TargetPS4_10:
		return "PS4_10"
	case TargetPS5Unknown:
		return "PS5_UNKNOWN"
	case TargetPS5_1:
		return "PS5_1"
	default:
		return "PS4_UNKNOWN"
	}
}

// IsUnknown reports whether t is one of the two "unknown" sentinels.
func (t Target) IsUnknown() bool {
	return t == TargetPS4Unknown || t == TargetPS5Unknown
}

// IsPS5 reports whether t belongs to the PS5 family.
func (t Target) IsPS5() bool {
	return t == TargetPS5Unknown || t == TargetPS5_1
}

// RPVersion returns the canonical RP-Version wire string for t, and false
// if t has no canonical version (the two unknown sentinels).
func RPVersion(t Target) (string, bool) {
	switch t {
	case TargetPS4_8:
		return "8.0", true
	case TargetPS4_9:
		return "9.0", true
	case TargetPS4_10:
		return "10.0", true
	case TargetPS5_1:
		return "1.0", true
	default:
		return "", false
	}
}

// ParseRPVersion is the inverse of RPVersion: given the wire string a
// console reported and whether the connection is to a PS5, it returns the
// matching Target or the appropriate *Unknown sentinel.
func ParseRPVersion(rpVersion string, isPS5 bool) Target {
	if isPS5 {
		if rpVersion == "1.0" {
			return TargetPS5_1
		}
		return TargetPS5Unknown
	}
	switch rpVersion {
	case "8.0":
		return TargetPS4_8
	case "9.0":
		return TargetPS4_9
	case "10.0":
		return TargetPS4_10
	default:
		return TargetPS4Unknown
	}
}

// sessionRequestPath returns the HTTP path used for the session-init
// request for t (spec.md §4.2).
func sessionRequestPath(t Target) string {
	switch t {
	case TargetPS4_8, TargetPS4_9:
		return "/sce/rp/session"
	default:
		if t.IsPS5() {
			return "/sie/ps5/rp/sess/init"
		}
		return "/sie/ps4/rp/sess/init"
	}
}

// VideoResolutionPreset is a coarse resolution selector for VideoProfile.
type VideoResolutionPreset int

const (
	VideoResolutionPreset360p VideoResolutionPreset = iota
	VideoResolutionPreset540p
	VideoResolutionPreset720p
	VideoResolutionPreset1080p
)

// VideoFPSPreset is a coarse frame-rate selector for VideoProfile.
type VideoFPSPreset int

const (
	VideoFPSPreset30 VideoFPSPreset = iota
	VideoFPSPreset60
)

// VideoProfile describes the requested stream quality.
type VideoProfile struct {
	Width   int
	Height  int
	Bitrate int // kbps
	MaxFPS  int
}

// NewVideoProfile expands a resolution/fps preset pair into concrete
// values, matching chiaki_connect_video_profile_preset exactly.
func NewVideoProfile(resolution VideoResolutionPreset, fps VideoFPSPreset) VideoProfile {
	var p VideoProfile
	switch resolution {
	case VideoResolutionPreset360p:
		p.Width, p.Height, p.Bitrate = 640, 360, 2000
	case VideoResolutionPreset540p:
		p.Width, p.Height, p.Bitrate = 960, 540, 6000
	case VideoResolutionPreset720p:
		p.Width, p.Height, p.Bitrate = 1280, 720, 10000
	case VideoResolutionPreset1080p:
		p.Width, p.Height, p.Bitrate = 1920, 1080, 15000
	}
	switch fps {
	case VideoFPSPreset30:
		p.MaxFPS = 30
	case VideoFPSPreset60:
		p.MaxFPS = 60
	}
	return p
}

package session

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strconv"
)

// Config holds the embedder-facing connection configuration loaded from
// flags/environment, grounded on services/signaling/config.Load's
// flag-then-env-override shape. Its ConnectInfo method translates it into a
// ConnectInfo, decoding the regist key and morning.
type Config struct {
	Host           string
	PS5            bool
	RegistKeyHex   string
	MorningHex     string
	Resolution     VideoResolutionPreset
	FPS            VideoFPSPreset
	Bitrate        int
	AutoDowngrade  bool
	EnableKeyboard bool
	LogLevel       string
}

// LoadConfig loads configuration from command-line flags, then overrides
// with environment variables, matching the teacher's Load().
func LoadConfig() *Config {
	cfg := &Config{
		Resolution: VideoResolutionPreset720p,
		FPS:        VideoFPSPreset30,
		LogLevel:   "info",
	}

	flag.StringVar(&cfg.Host, "host", "", "console hostname or IP address")
	flag.BoolVar(&cfg.PS5, "ps5", false, "target is a PS5 console")
	flag.StringVar(&cfg.RegistKeyHex, "regist-key", "", "hex-encoded registration key")
	flag.StringVar(&cfg.MorningHex, "morning", "", "hex-encoded per-registration secret")
	flag.BoolVar(&cfg.AutoDowngrade, "auto-downgrade", true, "allow automatic RP-Version downgrade on mismatch")
	flag.BoolVar(&cfg.EnableKeyboard, "keyboard", false, "enable remote on-screen keyboard support")
	flag.StringVar(&cfg.LogLevel, "loglevel", cfg.LogLevel, "log level (debug, info, warn, error)")

	var resolution string
	flag.StringVar(&resolution, "resolution", "720p", "video resolution preset (360p, 540p, 720p, 1080p)")
	var fps int
	flag.IntVar(&fps, "fps", 30, "video frame-rate preset (30 or 60)")

	flag.Parse()

	cfg.Resolution = parseResolution(resolution)
	cfg.FPS = parseFPS(fps)

	if host := os.Getenv("RPSESSION_HOST"); host != "" {
		cfg.Host = host
	}
	if ps5 := os.Getenv("RPSESSION_PS5"); ps5 != "" {
		if v, err := strconv.ParseBool(ps5); err == nil {
			cfg.PS5 = v
		}
	}
	if key := os.Getenv("RPSESSION_REGIST_KEY"); key != "" {
		cfg.RegistKeyHex = key
	}
	if morning := os.Getenv("RPSESSION_MORNING"); morning != "" {
		cfg.MorningHex = morning
	}
	if loglevel := os.Getenv("RPSESSION_LOGLEVEL"); loglevel != "" {
		cfg.LogLevel = loglevel
	}

	return cfg
}

func parseResolution(s string) VideoResolutionPreset {
	switch s {
	case "360p":
		return VideoResolutionPreset360p
	case "540p":
		return VideoResolutionPreset540p
	case "1080p":
		return VideoResolutionPreset1080p
	default:
		return VideoResolutionPreset720p
	}
}

func parseFPS(fps int) VideoFPSPreset {
	if fps == 60 {
		return VideoFPSPreset60
	}
	return VideoFPSPreset30
}

// ConnectInfo decodes the hex-encoded secrets and expands the video preset,
// producing the ConnectInfo the Session constructor needs.
func (c *Config) ConnectInfo() (ConnectInfo, error) {
	var info ConnectInfo
	info.Host = c.Host
	info.PS5 = c.PS5
	info.AutoDowngrade = c.AutoDowngrade
	info.EnableKeyboard = c.EnableKeyboard
	info.Video = NewVideoProfile(c.Resolution, c.FPS)

	key, err := decodeFixed(c.RegistKeyHex, RegistKeySize)
	if err != nil {
		return info, fmt.Errorf("session: regist key: %w", err)
	}
	copy(info.RegistKey[:], key)

	morning, err := decodeFixed(c.MorningHex, MorningSize)
	if err != nil {
		return info, fmt.Errorf("session: morning: %w", err)
	}
	copy(info.Morning[:], morning)

	return info, nil
}

func decodeFixed(s string, size int) ([]byte, error) {
	if s == "" {
		return make([]byte, size), nil
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(decoded) > size {
		return nil, fmt.Errorf("decoded value exceeds %d bytes", size)
	}
	out := make([]byte, size)
	copy(out, decoded)
	return out, nil
}

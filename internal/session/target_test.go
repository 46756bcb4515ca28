package session

import "testing"

func TestRPVersionParseRoundTrip(t *testing.T) {
	targets := []Target{TargetPS4_8, TargetPS4_9, TargetPS4_10, TargetPS5_1}
	for _, target := range targets {
		v, ok := RPVersion(target)
		if !ok {
			t.Fatalf("RPVersion(%v) reported no canonical version", target)
		}
		got := ParseRPVersion(v, target.IsPS5())
		if got != target {
			t.Errorf("ParseRPVersion(%q, %v) = %v, want %v", v, target.IsPS5(), got, target)
		}
	}
}

func TestParseRPVersionUnknown(t *testing.T) {
	cases := []struct {
		version string
		isPS5   bool
		want    Target
	}{
		{"bogus", false, TargetPS4Unknown},
		{"", false, TargetPS4Unknown},
		{"bogus", true, TargetPS5Unknown},
		{"2.0", true, TargetPS5Unknown},
	}
	for _, c := range cases {
		got := ParseRPVersion(c.version, c.isPS5)
		if got != c.want {
			t.Errorf("ParseRPVersion(%q, %v) = %v, want %v", c.version, c.isPS5, got, c.want)
		}
	}
}

func TestSessionRequestPath(t *testing.T) {
	cases := []struct {
		target Target
		want   string
	}{
		{TargetPS4_8, "/sce/rp/session"},
		{TargetPS4_9, "/sce/rp/session"},
		{TargetPS4_10, "/sie/ps4/rp/sess/init"},
		{TargetPS4Unknown, "/sie/ps4/rp/sess/init"},
		{TargetPS5_1, "/sie/ps5/rp/sess/init"},
		{TargetPS5Unknown, "/sie/ps5/rp/sess/init"},
	}
	for _, c := range cases {
		if got := sessionRequestPath(c.target); got != c.want {
			t.Errorf("sessionRequestPath(%v) = %q, want %q", c.target, got, c.want)
		}
	}
}

func TestNewVideoProfilePresets(t *testing.T) {
	cases := []struct {
		resolution VideoResolutionPreset
		fps        VideoFPSPreset
		want       VideoProfile
	}{
		{VideoResolutionPreset360p, VideoFPSPreset30, VideoProfile{640, 360, 2000, 30}},
		{VideoResolutionPreset540p, VideoFPSPreset60, VideoProfile{960, 540, 6000, 60}},
		{VideoResolutionPreset720p, VideoFPSPreset30, VideoProfile{1280, 720, 10000, 30}},
		{VideoResolutionPreset1080p, VideoFPSPreset60, VideoProfile{1920, 1080, 15000, 60}},
	}
	for _, c := range cases {
		got := NewVideoProfile(c.resolution, c.fps)
		if got != c.want {
			t.Errorf("NewVideoProfile(%v, %v) = %+v, want %+v", c.resolution, c.fps, got, c.want)
		}
	}
}

// Package audio provides the audio domain contracts shared by playback and merging.
package audio

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
)

// Player is a loaded, playable audio resource owned by the caller.
// Implementations must not call back into the playback coordinator.
type Player interface {
	Play() error
	Pause() error
	Release() error
}

// SessionMode describes how the platform audio session should be configured.
type SessionMode struct {
	AllowsRecording   bool // Allow simultaneous recording
	PlaysInSilentMode bool // Keep playing when the device is muted
}

// PlaybackMode is the playback-only session mode.
func PlaybackMode() SessionMode {
	return SessionMode{AllowsRecording: false, PlaysInSilentMode: true}
}

// Session configures the platform audio session.
// SetMode blocks until the platform confirms the change.
type Session interface {
	SetMode(ctx context.Context, mode SessionMode) error
}

// Platform identifies the device family an encoder profile is tuned for.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

// ParsePlatform parses a platform name.
func ParsePlatform(s string) (Platform, error) {
	switch Platform(strings.ToLower(strings.TrimSpace(s))) {
	case PlatformIOS:
		return PlatformIOS, nil
	case PlatformAndroid:
		return PlatformAndroid, nil
	default:
		return "", errors.Newf("unknown platform: %q", s)
	}
}

// String returns the platform name.
func (p Platform) String() string {
	return string(p)
}

package overlay

import (
	"errors"
	"fmt"

	"github.com/loykin/glassd/internal/profile"
)

const (
	fullscreenFlag = "-f"
	pausedFlag     = "-p"
)

// BuildArgs returns the overlay command line for a profile file:
// ["-f", path] or [path], followed by "-p" in paused mode.
func BuildArgs(profilePath string, noFullscreen, pausedMode bool) []string {
	args := make([]string, 0, 3)
	if !noFullscreen {
		args = append(args, fullscreenFlag)
	}
	args = append(args, profilePath)
	if pausedMode {
		args = append(args, pausedFlag)
	}
	return args
}

// ResolveProfile finds the profile file for name inside dir. The extension is
// appended when missing and names match case-insensitively.
func ResolveProfile(dir, name string) (string, error) {
	p, err := profile.Resolve(dir, name)
	switch {
	case err == nil:
		return p, nil
	case errors.Is(err, profile.ErrDirMissing):
		return "", fmt.Errorf("%w: %w", ErrProfilesDirMissing, err)
	default:
		return "", fmt.Errorf("%w: %w", ErrProfileNotFound, err)
	}
}

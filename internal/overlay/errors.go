package overlay

import "errors"

// Launch precondition and start failures. Configuration problems
// (executable, profiles directory) and missing profiles are reported at warn
// level; start failures at error level.
var (
	ErrExecutableMissing  = errors.New("overlay executable is not configured or does not exist")
	ErrProfilesDirMissing = errors.New("profiles directory is not configured or does not exist")
	ErrNoProfile          = errors.New("no profile directive in tags")
	ErrProfileNotFound    = errors.New("profile file not found")
	ErrStartFailed        = errors.New("failed to start overlay")
	ErrNoTagStore         = errors.New("no tag store configured")
	ErrManagerClosed      = errors.New("overlay manager is shut down")
)

// IsConfigError reports whether err comes from missing or invalid settings.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrExecutableMissing) || errors.Is(err, ErrProfilesDirMissing)
}

// Package rsyncerrors declares the abstract error taxonomy from spec §7:
// sentinel errors that every layer wraps with fmt.Errorf("...: %w", ...)
// so callers can dispatch on class with errors.Is, independent of the
// specific failure.
package rsyncerrors

import "errors"

var (
	// ErrProtocol covers malformed frames, unknown tags in strict mode,
	// unsupported protocol versions, and varint overflow.
	ErrProtocol = errors.New("rsync: protocol error")

	// ErrIntegrity covers whole-file checksum mismatch and corrupt
	// signatures. A mismatch is reported as soon as it is found; the
	// file is not requested again.
	ErrIntegrity = errors.New("rsync: integrity error")

	// ErrFatalIO covers disk full, read-only filesystem, and broken
	// pipe conditions that abort the whole session.
	ErrFatalIO = errors.New("rsync: fatal I/O error")

	// ErrRecoverableIO covers per-file not-found, permission denied,
	// interrupted, and would-block conditions that skip just one file.
	ErrRecoverableIO = errors.New("rsync: recoverable I/O error")

	// ErrConfig covers invalid block size, digest length exceeding
	// algorithm width, and filter compile errors; always reported
	// before a transfer begins.
	ErrConfig = errors.New("rsync: configuration error")

	// ErrAuth covers daemon authentication failure or refusal.
	ErrAuth = errors.New("rsync: authentication error")

	// ErrTimeout is a read that produced no bytes within the
	// session-wide timeout window (spec §5 "Cancellation and
	// timeouts"); maps to exit code 30.
	ErrTimeout = errors.New("rsync: timeout")
)

// ExitCode maps an error in the taxonomy above to the canonical rsync
// process exit code (spec §6 "Exit codes"). Errors not recognized here
// return 1 (generic syntax/usage error) as upstream does for unclassified
// failures.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrTimeout):
		return 30
	case errors.Is(err, ErrFatalIO):
		return 11
	case errors.Is(err, ErrRecoverableIO):
		return 23
	case errors.Is(err, ErrProtocol):
		return 1
	case errors.Is(err, ErrIntegrity):
		return 23
	case errors.Is(err, ErrConfig):
		return 1
	case errors.Is(err, ErrAuth):
		return 1
	default:
		return 1
	}
}

// VanishedFiles is 24: "files vanished" during the transfer.
const VanishedFiles = 24

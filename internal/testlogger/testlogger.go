// Package testlogger adapts testing.TB.Logf to a *log.Logger, so
// server code that only knows how to write to an io.Writer can have
// its output folded into `go test -v` output instead of being lost or
// racing with t.Parallel() subtests writing to os.Stderr directly.
package testlogger

import (
	"log"
	"testing"
)

// writer implements io.Writer on top of testing.TB.Logf.
type writer struct {
	t testing.TB
}

func (w writer) Write(p []byte) (int, error) {
	w.t.Logf("%s", p)
	return len(p), nil
}

// New returns a *log.Logger that forwards every line to t.Logf.
func New(t testing.TB) *log.Logger {
	return log.New(writer{t: t}, "", 0)
}

package rsyncwire

import (
	"errors"
	"io"
	"net"
)

// vectoredThreshold mirrors the original implementation's decision to
// only bother with vectored writes once there is more than one buffer
// worth combining (a single-buffer write is just write_all).
const vectoredThreshold = 2

// writeVectored writes header and payload as a single vectored write
// when the underlying writer supports it (net.Buffers), falling back to
// sequential writes otherwise. Interrupted writes are retried; a
// WriteZero condition (progress stalls with no error) is fatal, per
// spec §4.2 "Contract (writer side)".
func writeVectored(w io.Writer, bufs [][]byte) error {
	nonEmpty := make([][]byte, 0, len(bufs))
	for _, b := range bufs {
		if len(b) > 0 {
			nonEmpty = append(nonEmpty, b)
		}
	}
	if len(nonEmpty) == 0 {
		return nil
	}
	if len(nonEmpty) < vectoredThreshold {
		return writeSequential(w, nonEmpty)
	}
	if _, ok := w.(interface {
		Write([]byte) (int, error)
	}); ok {
		if _, isNetConn := w.(net.Conn); isNetConn {
			nb := net.Buffers(cloneBufs(nonEmpty))
			_, err := nb.WriteTo(w)
			if err == nil {
				return nil
			}
			if errors.Is(err, errUnsupportedVectored) {
				return writeSequential(w, nonEmpty)
			}
			return err
		}
	}
	return writeSequential(w, nonEmpty)
}

var errUnsupportedVectored = errors.New("rsyncwire: vectored write unsupported")

// writerOnlyAsWriterTo adapts an io.Writer to the io.ReaderFrom-like
// interface net.Buffers.WriteTo expects (it only needs Write).
type writerOnlyAsWriterTo struct {
	w io.Writer
}

func (w writerOnlyAsWriterTo) Write(p []byte) (int, error) { return w.w.Write(p) }

func cloneBufs(bufs [][]byte) [][]byte {
	out := make([][]byte, len(bufs))
	copy(out, bufs)
	return out
}

// writeSequential writes each buffer with write_all semantics: partial
// writes advance the cursor and retry; io.ErrShortWrite-producing zero
// progress (WriteZero) is fatal.
func writeSequential(w io.Writer, bufs [][]byte) error {
	for _, b := range bufs {
		if err := writeAll(w, b); err != nil {
			return err
		}
	}
	return nil
}

func writeAll(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if n == 0 && err == nil {
			return io.ErrShortWrite
		}
		if err != nil {
			if errors.Is(err, errInterrupted) {
				continue
			}
			return err
		}
		b = b[n:]
	}
	return nil
}

// errInterrupted is never actually produced by Go's io.Writer
// implementations (EINTR is handled inside the runtime), but the retry
// loop above is kept so the fallback path documents the same contract
// as the original implementation's write_vectored_all/write_sequential.
var errInterrupted = errors.New("rsyncwire: interrupted")

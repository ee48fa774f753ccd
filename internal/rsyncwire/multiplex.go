package rsyncwire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"log"
)

// MultiplexWriter frames every write as [tag:u8][len:u24_le][payload]
// once multiplexing is switched on after negotiation (spec §4.2).
type MultiplexWriter struct {
	w      io.Writer
	Logger *log.Logger
}

func NewMultiplexWriter(w io.Writer) *MultiplexWriter {
	return &MultiplexWriter{w: w}
}

// Send writes exactly one frame with the given tag and payload, using a
// single vectored write for the header+payload pair when possible.
func (m *MultiplexWriter) Send(tag Tag, payload []byte) error {
	if len(payload) > MaxFramePayload {
		return fmt.Errorf("rsyncwire: frame payload %d exceeds MaxFramePayload %d", len(payload), MaxFramePayload)
	}
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], frameHeader(tag, len(payload)))
	return writeVectored(m.w, [][]byte{hdr[:], payload})
}

// SendData accumulates into Data frames, splitting at MaxFramePayload.
func (m *MultiplexWriter) SendData(p []byte) error {
	for len(p) > 0 {
		n := len(p)
		if n > MaxFramePayload {
			n = MaxFramePayload
		}
		if err := m.Send(TagData, p[:n]); err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// Write implements io.Writer by framing p as one or more Data frames,
// letting MultiplexWriter be plugged in wherever an io.Writer is
// expected (e.g. wrapped by a bufio.Writer upstream).
func (m *MultiplexWriter) Write(p []byte) (int, error) {
	if err := m.SendData(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Flush is a no-op placeholder for parity with the reader side; frame
// boundaries are already forced on every Send/SendData call since no
// internal buffering is retained between calls.
func (m *MultiplexWriter) Flush() error { return nil }

// OOBHandler receives out-of-band (non-Data) frames as they arrive.
type OOBHandler func(tag Tag, payload []byte) error

// MultiplexReader dispatches incoming frames by tag, delivering Data
// frames to callers of ReadData/Read and routing everything else to an
// OOBHandler.
type MultiplexReader struct {
	r       io.Reader
	OOB     OOBHandler
	Strict  bool // when true and OOB is nil, any non-Data frame is an error
	pending []byte
}

func NewMultiplexReader(r io.Reader) *MultiplexReader {
	return &MultiplexReader{r: r}
}

// Recv returns exactly one frame (tag, payload), whatever its tag.
func (m *MultiplexReader) Recv() (Tag, []byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(m.r, hdr[:]); err != nil {
		return 0, nil, err
	}
	h := binary.LittleEndian.Uint32(hdr[:])
	tag, length := unpackFrameHeader(h)
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(m.r, payload); err != nil {
			return 0, nil, fmt.Errorf("rsyncwire: short frame body: %w", err)
		}
	}
	return tag, payload, nil
}

// fillPending reads frames until at least one Data frame has been
// buffered, dispatching OOB frames to the handler as they're seen.
func (m *MultiplexReader) fillPending() error {
	for len(m.pending) == 0 {
		tag, payload, err := m.Recv()
		if err != nil {
			return err
		}
		if tag == TagData {
			m.pending = payload
			return nil
		}
		if err := m.dispatchOOB(tag, payload); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiplexReader) dispatchOOB(tag Tag, payload []byte) error {
	if m.OOB != nil {
		return m.OOB(tag, payload)
	}
	if m.Strict {
		return fmt.Errorf("rsyncwire: unhandled out-of-band tag %d in strict mode", tag)
	}
	return nil
}

// Read implements io.Reader over the Data-frame substream, transparently
// skipping (and dispatching) interleaved OOB frames.
func (m *MultiplexReader) Read(p []byte) (int, error) {
	if err := m.fillPending(); err != nil {
		return 0, err
	}
	n := copy(p, m.pending)
	m.pending = m.pending[n:]
	return n, nil
}

// BufferedMultiplexReader wraps a MultiplexReader in a bufio.Reader the
// way the client/server main loops do, so higher layers get a plain
// io.Reader with good buffering over the multiplexed Data substream.
func BufferedMultiplexReader(r *MultiplexReader, size int) *bufio.Reader {
	return bufio.NewReaderSize(r, size)
}

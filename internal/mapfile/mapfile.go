// Package mapfile implements the basis-file sliding window cache used
// while applying delta Match instructions (spec §4.6). It is grounded on
// the original implementation's BufferedMap/MapStrategy split
// (original_source/crates/transfer/src/map_file.rs) so that an
// alternative (e.g. memory-mapped) strategy can share the same
// interface.
package mapfile

import (
	"fmt"
	"io"
	"os"
)

// MaxMapSize is the largest window the default strategy will load in one
// go (spec §4.6: "up to MAX_MAP_SIZE (~256 KiB)").
const MaxMapSize = 256 * 1024

// AlignBoundary is the alignment every window start is rounded down to.
const AlignBoundary = 4096

func alignDown(v int64, align int64) int64 {
	return v - v%align
}

// MapStrategy abstracts over how bytes are fetched for a given
// (offset, len) request. BufferedMap is the default, read(2)-based
// implementation; a memory-mapped implementation can satisfy the same
// interface without changing callers.
type MapStrategy interface {
	MapPtr(offset, length int64) ([]byte, error)
	WindowSize() int64
	FileSize() int64
	Close() error
}

// BufferedMap is the default MapStrategy: a single growable buffer that
// is refilled from the underlying file only when a request falls outside
// the current window.
type BufferedMap struct {
	f          *os.File
	size       int64
	buffer     []byte
	windowStart int64
	windowLen   int64
	maxWindow   int64
}

// Open constructs a BufferedMap over f sized to fit its current length,
// using the default MaxMapSize window.
func Open(f *os.File) (*BufferedMap, error) {
	return OpenWithWindow(f, MaxMapSize)
}

// OpenWithWindow is Open with an explicit maximum window size, mirroring
// the original's open_with_window for tests that pin smaller windows.
func OpenWithWindow(f *os.File, maxWindow int64) (*BufferedMap, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("mapfile: stat: %w", err)
	}
	if maxWindow <= 0 {
		maxWindow = MaxMapSize
	}
	return &BufferedMap{
		f:         f,
		size:      fi.Size(),
		maxWindow: maxWindow,
	}, nil
}

func (m *BufferedMap) FileSize() int64  { return m.size }
func (m *BufferedMap) WindowSize() int64 { return m.windowLen }
func (m *BufferedMap) Close() error      { return nil }

func (m *BufferedMap) isInWindow(offset, length int64) bool {
	if m.windowLen == 0 {
		return false
	}
	return offset >= m.windowStart && offset+length <= m.windowStart+m.windowLen
}

// MapPtr returns a view of [offset, offset+length) from the basis file,
// valid until the next call to MapPtr. A request past EOF is
// io.ErrUnexpectedEOF.
func (m *BufferedMap) MapPtr(offset, length int64) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	if offset < 0 || offset+length > m.size {
		return nil, fmt.Errorf("mapfile: request [%d,%d) past end of file (size %d): %w", offset, offset+length, m.size, io.ErrUnexpectedEOF)
	}
	if !m.isInWindow(offset, length) {
		if err := m.loadWindow(offset, length); err != nil {
			return nil, err
		}
	}
	start := offset - m.windowStart
	return m.buffer[start : start+length], nil
}

// loadWindow refills the buffer so that [offset, offset+length) is
// covered: the window starts at offset aligned down to AlignBoundary and
// spans at least maxWindow bytes (more when the request needs it), cut
// short only by the end of the file.
func (m *BufferedMap) loadWindow(offset, length int64) error {
	start := alignDown(offset, AlignBoundary)
	want := offset + length - start
	if want < m.maxWindow {
		want = m.maxWindow
	}
	if start+want > m.size {
		want = m.size - start
	}
	if cap(m.buffer) < int(want) {
		m.buffer = make([]byte, want)
	} else {
		m.buffer = m.buffer[:want]
	}
	n, err := m.f.ReadAt(m.buffer, start)
	if err != nil && err != io.EOF {
		return fmt.Errorf("mapfile: read at %d: %w", start, err)
	}
	m.buffer = m.buffer[:n]
	m.windowStart = start
	m.windowLen = int64(n)
	return nil
}

// MapFile is a thin generic wrapper binding a MapStrategy to a basis
// file, mirroring the original's MapFile<S: MapStrategy> type. In Go
// this is just an interface-typed holder; it exists to give callers a
// single named type to store regardless of which strategy was chosen.
type MapFile struct {
	Strategy MapStrategy
}

// OpenFile constructs a MapFile using the default BufferedMap strategy.
func OpenFile(f *os.File) (*MapFile, error) {
	bm, err := Open(f)
	if err != nil {
		return nil, err
	}
	return &MapFile{Strategy: bm}, nil
}

func (mf *MapFile) MapPtr(offset, length int64) ([]byte, error) {
	return mf.Strategy.MapPtr(offset, length)
}

func (mf *MapFile) FileSize() int64 { return mf.Strategy.FileSize() }
func (mf *MapFile) Close() error    { return mf.Strategy.Close() }

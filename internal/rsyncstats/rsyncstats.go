// Package rsyncstats holds the per-session copy summary counters (spec
// §3 "Copy summary") reported at the end of a transfer.
package rsyncstats

import "time"

// TransferStats aggregates the counters a session reports once the
// transfer completes.
type TransferStats struct {
	FilesSeen, FilesCopied, FilesMatched, FilesDeleted int64
	DirsSeen, SymlinksSeen, DevicesSeen, FifosSeen     int64

	BytesTransferred, BytesLiteral, BytesMatched, BytesCompressed int64

	Read, Written, Size int64 // raw transport byte counters, as reported by the wire-level stats frame

	FileListGenDuration  time.Duration
	TransferDuration     time.Duration

	// Exit is the worst error class observed this session, expressed as
	// the canonical rsync exit code (spec §6 "Exit codes"); 0 when
	// every file transferred cleanly.
	Exit int
}

// Merge folds other's counters into s, keeping the worse (larger) Exit
// code, used when the generator, sender, and receiver each report a
// partial summary that must be combined into one.
func (s *TransferStats) Merge(other TransferStats) {
	s.FilesSeen += other.FilesSeen
	s.FilesCopied += other.FilesCopied
	s.FilesMatched += other.FilesMatched
	s.FilesDeleted += other.FilesDeleted
	s.DirsSeen += other.DirsSeen
	s.SymlinksSeen += other.SymlinksSeen
	s.DevicesSeen += other.DevicesSeen
	s.FifosSeen += other.FifosSeen
	s.BytesTransferred += other.BytesTransferred
	s.BytesLiteral += other.BytesLiteral
	s.BytesMatched += other.BytesMatched
	s.BytesCompressed += other.BytesCompressed
	s.Read += other.Read
	s.Written += other.Written
	if other.Size > s.Size {
		s.Size = other.Size
	}
	s.FileListGenDuration += other.FileListGenDuration
	s.TransferDuration += other.TransferDuration
	if other.Exit > s.Exit {
		s.Exit = other.Exit
	}
}

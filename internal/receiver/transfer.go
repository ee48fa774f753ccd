// Package receiver implements the receiver role (spec §4.7): it reads
// the file list, runs the generator half that requests deltas for
// changed files, and drives the delta-apply pipeline that reconstructs
// files against a basis via internal/signature and internal/mapfile.
package receiver

import (
	"io"
	"log"
	"path/filepath"

	"github.com/oferchen/rsync-sub020/internal/checksum"
	"github.com/oferchen/rsync-sub020/internal/flist"
	"github.com/oferchen/rsync-sub020/internal/metadata"
	"github.com/oferchen/rsync-sub020/internal/rsyncwire"
)

// File is the file-list entry type the receiver operates on.
type File = flist.Entry

// TransferOpts carries the subset of CLI/daemon options that affect
// receiver behavior (spec §6).
type TransferOpts struct {
	DryRun bool
	Server bool

	DeleteMode       bool
	PreserveGid      bool
	PreserveUid      bool
	PreserveLinks    bool
	PreservePerms    bool
	PreserveDevices  bool
	PreserveSpecials bool
	PreserveTimes    bool
	PreserveHardlinks bool
	NumericIDs       bool
	FakeSuper        bool

	Verbose bool

	DigestKind checksum.DigestKind
	SeedOrder  checksum.SeedOrder
	Version    int32

	// BlockLengthOverride, when > 0, comes from --block-size.
	BlockLengthOverride int64

	Placement            PlacementMode
	KeepPartialOnFailure bool
}

// Env mirrors the teacher's small environment-injection struct so
// output destined for stdout/stderr can be redirected in tests.
type Env struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Transfer holds the state of one receiver-role session.
type Transfer struct {
	Logger *log.Logger
	Opts   *TransferOpts
	Dest   string
	Env    Env
	Conn   *rsyncwire.Conn
	Seed   uint32

	IOErrors int
}

func (rt *Transfer) metadataOptions() metadata.Options {
	return metadata.Options{
		PreservePerms: rt.Opts.PreservePerms,
		PreserveTimes: rt.Opts.PreserveTimes,
		PreserveOwner: rt.Opts.PreserveUid,
		PreserveGroup: rt.Opts.PreserveGid,
		NumericIDs:    rt.Opts.NumericIDs,
		FakeSuper:     rt.Opts.FakeSuper,
	}
}

func (rt *Transfer) setPerms(f *File) error {
	local := rt.localPath(f)
	opts := privilegeClampedOptions(f, rt.metadataOptions())
	return metadata.Apply(local, *f, opts)
}

func (rt *Transfer) localPath(f *File) string {
	return filepath.Join(rt.Dest, f.Path)
}

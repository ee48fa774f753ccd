// Package metadata applies reconstructed-file metadata after delta
// application: permissions, ownership, timestamps, and the fake-super
// xattr encoding (spec §4.8). Other xattrs and ACLs are not applied.
package metadata

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/oferchen/rsync-sub020/internal/flist"
)

// Options controls which attributes Apply actually touches, mirroring
// the core-facing options struct named in spec §6.
type Options struct {
	PreservePerms   bool
	PreserveTimes   bool
	PreserveOwner   bool
	PreserveGroup   bool
	NumericIDs      bool
	FakeSuper       bool

	// ChmodDSL, when non-nil, is applied to the mode after any
	// --perms-derived value and before the result is written; the DSL
	// grammar itself lives at the CLI boundary and is out of scope
	// here (spec §1 non-goals: "chmod DSL evaluation").
	ChmodDSL func(mode uint32, isDir bool) uint32
}

// FakeSuperXattr is the extended attribute name privileged metadata is
// stored under when fake-super is enabled (spec §4.8).
const FakeSuperXattr = "user.rsync.%stat"

// Apply sets mode, ownership, and mtime on path according to opts and
// the entry's wire metadata. Symlinks use lchown/lutimes-equivalents
// only (spec §4.8: "For symlinks, only lchown/lutimes equivalents are
// used").
func Apply(path string, e flist.Entry, opts Options) error {
	if e.Type == flist.Symlink {
		return applySymlink(path, e, opts)
	}

	if opts.FakeSuper && requiresPrivilege(e) {
		return applyFakeSuper(path, e, opts)
	}

	if opts.PreservePerms {
		mode := e.Mode & 0o7777
		if opts.ChmodDSL != nil {
			mode = opts.ChmodDSL(mode, e.Type == flist.Directory)
		}
		if err := os.Chmod(path, os.FileMode(mode)); err != nil {
			return fmt.Errorf("metadata: chmod %s: %w", path, err)
		}
	}

	if opts.PreserveOwner || opts.PreserveGroup {
		uid, gid := -1, -1
		if opts.PreserveOwner && e.HasUID {
			uid = int(e.UID)
		}
		if opts.PreserveGroup && e.HasGID {
			gid = int(e.GID)
		}
		if uid != -1 || gid != -1 {
			if err := os.Chown(path, uid, gid); err != nil {
				return fmt.Errorf("metadata: chown %s: %w", path, err)
			}
		}
	}

	if opts.PreserveTimes {
		mtime := time.Unix(e.MtimeSec, int64(e.MtimeNsec))
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			return fmt.Errorf("metadata: chtimes %s: %w", path, err)
		}
	}

	return nil
}

func applySymlink(path string, e flist.Entry, opts Options) error {
	if opts.PreserveOwner || opts.PreserveGroup {
		uid, gid := -1, -1
		if opts.PreserveOwner && e.HasUID {
			uid = int(e.UID)
		}
		if opts.PreserveGroup && e.HasGID {
			gid = int(e.GID)
		}
		if uid != -1 || gid != -1 {
			if err := os.Lchown(path, uid, gid); err != nil {
				return fmt.Errorf("metadata: lchown %s: %w", path, err)
			}
		}
	}
	if opts.PreserveTimes {
		mtime := time.Unix(e.MtimeSec, int64(e.MtimeNsec))
		ts := []unix.Timespec{
			unix.NsecToTimespec(mtime.UnixNano()),
			unix.NsecToTimespec(mtime.UnixNano()),
		}
		if err := unix.UtimesNanoAt(unix.AT_FDCWD, path, ts, unix.AT_SYMLINK_NOFOLLOW); err != nil {
			return fmt.Errorf("metadata: lutimes %s: %w", path, err)
		}
	}
	return nil
}

// requiresPrivilege reports whether an entry carries attributes that
// need elevated privilege to apply directly: non-self ownership, device
// numbers, or setuid/setgid bits.
func requiresPrivilege(e flist.Entry) bool {
	if e.Type == flist.CharDevice || e.Type == flist.BlockDevice {
		return true
	}
	if e.HasUID && int(e.UID) != os.Getuid() {
		return true
	}
	return e.Mode&(0o4000|0o2000) != 0
}

// applyFakeSuper stores the privileged subset of an entry's metadata in
// the FakeSuperXattr extended attribute instead of applying it directly
// (spec §4.8 "Fake-super mode"). The xattr is set on path as it already
// exists; no file is created or replaced for device entries.
func applyFakeSuper(path string, e flist.Entry, opts Options) error {
	layout := fmt.Sprintf("%o %d,%d", e.Mode&0o7777|modeTypeBits(e), e.UID, e.GID)
	if e.HasDevice {
		layout += fmt.Sprintf(" %d,%d", e.Device.Major, e.Device.Minor)
	}
	if err := unix.Setxattr(path, FakeSuperXattr, []byte(layout), 0); err != nil {
		return fmt.Errorf("metadata: setxattr %s on %s: %w", FakeSuperXattr, path, err)
	}
	if opts.PreserveTimes {
		mtime := time.Unix(e.MtimeSec, int64(e.MtimeNsec))
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			return fmt.Errorf("metadata: chtimes %s: %w", path, err)
		}
	}
	return nil
}

func modeTypeBits(e flist.Entry) uint32 {
	switch e.Type {
	case flist.Directory:
		return 0o040000
	case flist.CharDevice:
		return 0o020000
	case flist.BlockDevice:
		return 0o060000
	case flist.Fifo:
		return 0o010000
	case flist.Socket:
		return 0o140000
	default:
		return 0o100000
	}
}

// Package flist implements the file-list codec (spec §4.4): entry
// encoding with flag inheritance between adjacent entries, sorting and
// deduplication, and the incrementally-sent directory tree used under
// INC_RECURSE.
package flist

// FileType enumerates the kinds of entries the wire format carries
// (spec §3 "File entry").
type FileType int

const (
	Regular FileType = iota
	Directory
	Symlink
	CharDevice
	BlockDevice
	Fifo
	Socket
)

// Device holds major/minor numbers for device entries.
type Device struct {
	Major, Minor uint32
}

// Entry is one file-list record. Fields not applicable to FileType are
// left at their zero value (spec §3 invariants: "all other fields may be
// absent").
type Entry struct {
	Path string // relative path, '/'-separated regardless of host OS
	Type FileType

	Size  int64
	Mode  uint32
	MtimeSec  int64
	MtimeNsec uint32 // only meaningful on protocol >= 31

	HasUID bool
	UID    int32
	HasGID bool
	GID    int32

	HasDevice bool
	Device    Device

	SymlinkTarget string

	// HardLinkGroup is the index of the hard-link group this entry
	// belongs to, when HLINK_FIRST or HLINK_NEXT is set. -1 means "no
	// hard-link group".
	HardLinkGroup int32
}

// IsHardLinkMember reports whether this entry participates in a
// hard-link group at all.
func (e Entry) IsHardLinkMember() bool { return e.HardLinkGroup >= 0 }

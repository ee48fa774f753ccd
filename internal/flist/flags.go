package flist

// Flag is the per-entry wire flag word (spec §4.4). One or two bytes on
// the wire depending on protocol version and VARINT_FLIST_FLAGS.
type Flag uint16

const (
	FlagSameMode     Flag = 1 << 1
	FlagSameRdevMajor Flag = 1 << 2 // RDEV_SAME in spec prose
	FlagSameUID      Flag = 1 << 3
	FlagSameGID      Flag = 1 << 4
	FlagSameName     Flag = 1 << 5 // "name continues from previous" bit
	FlagLongName     Flag = 1 << 6
	FlagSameTime     Flag = 1 << 7
	FlagHlinked      Flag = 1 << 8 // base "this entry participates in a hardlink group" bit
	FlagHlinkFirst   Flag = 1 << 9
	FlagSameNameLen  Flag = 1 << 10
	FlagXFlagsExtended Flag = 1 << 11
)

func (f Flag) Has(bit Flag) bool { return f&bit != 0 }

// HlinkNext is derived: hlinked && !first.
func (f Flag) IsHlinkNext() bool  { return f.Has(FlagHlinked) && !f.Has(FlagHlinkFirst) }
func (f Flag) IsHlinkFirst() bool { return f.Has(FlagHlinked) && f.Has(FlagHlinkFirst) }

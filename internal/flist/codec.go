package flist

import (
	"fmt"
	"io"

	"github.com/oferchen/rsync-sub020/internal/rsyncerrors"
	"github.com/oferchen/rsync-sub020/internal/rsyncwire"
)

// Encoder writes a stream of Entry records with flag inheritance between
// adjacent entries (spec §4.4 "Encoding (per entry)"), terminated by a
// zero primary-flag byte.
type Encoder struct {
	w    io.Writer
	prev Entry
	have bool
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

func (e *Encoder) writeFlag(f Flag) error {
	// One byte suffices for every flag combination this codec emits
	// (all flag bits fit in the low byte plus XFLAGS_EXTENDED in the
	// second byte); emit two bytes whenever any bit above 0xFF is set.
	if f > 0xFF {
		var buf [2]byte
		buf[0] = byte(f)
		buf[1] = byte(f >> 8)
		_, err := e.w.Write(buf[:])
		return err
	}
	_, err := e.w.Write([]byte{byte(f)})
	return err
}

func commonPrefixLen(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// Encode writes one entry, computing flag inheritance against the
// previously encoded entry.
func (e *Encoder) Encode(ent Entry) error {
	var flag Flag
	sameMode := e.have && e.prev.Mode == ent.Mode
	sameUID := e.have && e.prev.HasUID == ent.HasUID && e.prev.UID == ent.UID
	sameGID := e.have && e.prev.HasGID == ent.HasGID && e.prev.GID == ent.GID
	sameTime := e.have && e.prev.MtimeSec == ent.MtimeSec && e.prev.MtimeNsec == ent.MtimeNsec
	sameRdev := e.have && ent.HasDevice && e.prev.HasDevice && e.prev.Device == ent.Device

	prefixLen := 0
	if e.have {
		prefixLen = commonPrefixLen(e.prev.Path, ent.Path)
	}
	suffix := ent.Path[prefixLen:]
	sameNameLen := e.have && len(e.prev.Path) == len(ent.Path)

	if sameMode {
		flag |= FlagSameMode
	}
	if sameUID {
		flag |= FlagSameUID
	}
	if sameGID {
		flag |= FlagSameGID
	}
	if sameTime {
		flag |= FlagSameTime
	}
	if sameRdev {
		flag |= FlagSameRdevMajor
	}
	if sameNameLen {
		flag |= FlagSameNameLen
	}
	if prefixLen > 0 {
		flag |= FlagSameName
	}
	if ent.IsHardLinkMember() {
		flag |= FlagHlinked
		if !e.have || e.prev.HardLinkGroup != ent.HardLinkGroup {
			flag |= FlagHlinkFirst
		}
	}
	if flag == 0 {
		// A zero flag byte is the stream terminator; upstream reserves
		// a sentinel bit for entries that would otherwise encode to
		// all-zero flags. The name-length/prefix fields below always
		// produce at least one of FlagSameName/FlagSameNameLen/
		// FlagLongName for any real entry with a non-empty path, so in
		// practice this only bites the very first entry of an empty
		// path; guard it explicitly.
		flag |= FlagLongName
	}

	if err := e.writeFlag(flag); err != nil {
		return err
	}

	if !flag.Has(FlagSameNameLen) {
		if err := rsyncwire.WriteVarint(e.w, int32(prefixLen)); err != nil {
			return err
		}
	}
	if err := rsyncwire.WriteVarint(e.w, int32(len(suffix))); err != nil {
		return err
	}
	if _, err := io.WriteString(e.w, suffix); err != nil {
		return err
	}

	if err := rsyncwire.WriteVarlong(e.w, ent.Size, 3); err != nil {
		return err
	}

	if !sameTime {
		if err := rsyncwire.WriteSignedVarint(e.w, int32(ent.MtimeSec-prevMtime(e))); err != nil {
			return err
		}
		if err := rsyncwire.WriteVarint(e.w, int32(ent.MtimeNsec)); err != nil {
			return err
		}
	}
	if !sameMode {
		if err := rsyncwire.WriteVarint(e.w, int32(ent.Mode)); err != nil {
			return err
		}
	}
	if !sameUID {
		if err := rsyncwire.WriteVarint(e.w, ent.UID); err != nil {
			return err
		}
	}
	if !sameGID {
		if err := rsyncwire.WriteVarint(e.w, ent.GID); err != nil {
			return err
		}
	}
	if ent.HasDevice && !sameRdev {
		if err := rsyncwire.WriteVarint(e.w, int32(ent.Device.Major)); err != nil {
			return err
		}
		if err := rsyncwire.WriteVarint(e.w, int32(ent.Device.Minor)); err != nil {
			return err
		}
	}
	if ent.Type == Symlink {
		if ent.SymlinkTarget == "" {
			return fmt.Errorf("%w: symlink entry %q has empty target", rsyncerrors.ErrProtocol, ent.Path)
		}
		if err := rsyncwire.WriteVarint(e.w, int32(len(ent.SymlinkTarget))); err != nil {
			return err
		}
		if _, err := io.WriteString(e.w, ent.SymlinkTarget); err != nil {
			return err
		}
	}
	if flag.IsHlinkFirst() {
		if err := rsyncwire.WriteVarint(e.w, ent.HardLinkGroup); err != nil {
			return err
		}
	}

	e.prev = ent
	e.have = true
	return nil
}

func prevMtime(e *Encoder) int64 {
	if !e.have {
		return 0
	}
	return e.prev.MtimeSec
}

// Finish writes the zero-flag sentinel that terminates the file list.
func (e *Encoder) Finish() error {
	_, err := e.w.Write([]byte{0})
	return err
}

// Decoder is the receiving half of Encoder.
type Decoder struct {
	r    io.Reader
	prev Entry
	have bool
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

func (d *Decoder) readFlag() (Flag, bool, error) {
	var b [1]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return 0, false, err
	}
	if b[0] == 0 {
		return 0, true, nil
	}
	flag := Flag(b[0])
	if flag.Has(FlagXFlagsExtended) {
		var b2 [1]byte
		if _, err := io.ReadFull(d.r, b2[:]); err != nil {
			return 0, false, err
		}
		flag |= Flag(b2[0]) << 8
	}
	return flag, false, nil
}

// Decode reads one entry, or (zero Entry, true, nil) at the terminator.
func (d *Decoder) Decode() (Entry, bool, error) {
	flag, done, err := d.readFlag()
	if err != nil {
		return Entry{}, false, err
	}
	if done {
		return Entry{}, true, nil
	}

	if flag.Has(FlagSameName) && !d.have {
		return Entry{}, false, fmt.Errorf("%w: SAME_NAME flag set without a prior entry", rsyncerrors.ErrProtocol)
	}
	if (flag.Has(FlagSameMode) || flag.Has(FlagSameUID) || flag.Has(FlagSameGID) || flag.Has(FlagSameTime)) && !d.have {
		return Entry{}, false, fmt.Errorf("%w: SAME_X flag set without a prior entry", rsyncerrors.ErrProtocol)
	}

	var prefixLen int
	if !flag.Has(FlagSameNameLen) {
		v, err := rsyncwire.ReadVarint(d.r)
		if err != nil {
			return Entry{}, false, err
		}
		prefixLen = int(v)
	}
	suffixLenV, err := rsyncwire.ReadVarint(d.r)
	if err != nil {
		return Entry{}, false, err
	}
	suffixLen := int(suffixLenV)
	if flag.Has(FlagSameNameLen) && d.have {
		// Same total length as the previous path: the prefix is the
		// part of it the suffix does not cover.
		prefixLen = len(d.prev.Path) - suffixLen
	}
	suffix, err := d.readString(suffixLen)
	if err != nil {
		return Entry{}, false, err
	}

	var path string
	if flag.Has(FlagSameName) && d.have {
		if prefixLen < 0 || prefixLen > len(d.prev.Path) {
			return Entry{}, false, fmt.Errorf("%w: name prefix length %d exceeds previous path length %d", rsyncerrors.ErrProtocol, prefixLen, len(d.prev.Path))
		}
		path = d.prev.Path[:prefixLen] + suffix
	} else {
		path = suffix
	}

	size, err := rsyncwire.ReadVarlong(d.r)
	if err != nil {
		return Entry{}, false, err
	}

	ent := Entry{Path: path, Size: size, HardLinkGroup: -1}

	if flag.Has(FlagSameTime) {
		ent.MtimeSec = d.prev.MtimeSec
		ent.MtimeNsec = d.prev.MtimeNsec
	} else {
		delta, err := rsyncwire.ReadSignedVarint(d.r)
		if err != nil {
			return Entry{}, false, err
		}
		base := int64(0)
		if d.have {
			base = d.prev.MtimeSec
		}
		ent.MtimeSec = base + int64(delta)
		nsec, err := rsyncwire.ReadVarint(d.r)
		if err != nil {
			return Entry{}, false, err
		}
		ent.MtimeNsec = uint32(nsec)
	}

	if flag.Has(FlagSameMode) {
		ent.Mode = d.prev.Mode
	} else {
		m, err := rsyncwire.ReadVarint(d.r)
		if err != nil {
			return Entry{}, false, err
		}
		ent.Mode = uint32(m)
	}
	ent.Type = typeFromMode(ent.Mode)

	if flag.Has(FlagSameUID) {
		ent.HasUID, ent.UID = d.prev.HasUID, d.prev.UID
	} else {
		uid, err := rsyncwire.ReadVarint(d.r)
		if err != nil {
			return Entry{}, false, err
		}
		ent.HasUID, ent.UID = true, uid
	}
	if flag.Has(FlagSameGID) {
		ent.HasGID, ent.GID = d.prev.HasGID, d.prev.GID
	} else {
		gid, err := rsyncwire.ReadVarint(d.r)
		if err != nil {
			return Entry{}, false, err
		}
		ent.HasGID, ent.GID = true, gid
	}

	if ent.Type == CharDevice || ent.Type == BlockDevice {
		if flag.Has(FlagSameRdevMajor) {
			ent.HasDevice, ent.Device = d.prev.HasDevice, d.prev.Device
		} else {
			maj, err := rsyncwire.ReadVarint(d.r)
			if err != nil {
				return Entry{}, false, err
			}
			min, err := rsyncwire.ReadVarint(d.r)
			if err != nil {
				return Entry{}, false, err
			}
			ent.HasDevice = true
			ent.Device = Device{Major: uint32(maj), Minor: uint32(min)}
		}
	}

	if ent.Type == Symlink {
		tlen, err := rsyncwire.ReadVarint(d.r)
		if err != nil {
			return Entry{}, false, err
		}
		target, err := d.readString(int(tlen))
		if err != nil {
			return Entry{}, false, err
		}
		if target == "" {
			return Entry{}, false, fmt.Errorf("%w: symlink entry %q decoded with empty target", rsyncerrors.ErrProtocol, path)
		}
		ent.SymlinkTarget = target
	}

	if flag.Has(FlagHlinked) {
		if flag.IsHlinkFirst() {
			v, err := rsyncwire.ReadVarint(d.r)
			if err != nil {
				return Entry{}, false, err
			}
			ent.HardLinkGroup = v
		} else {
			ent.HardLinkGroup = d.prev.HardLinkGroup
		}
	}

	d.prev = ent
	d.have = true
	return ent, false, nil
}

func (d *Decoder) readString(n int) (string, error) {
	if n == 0 {
		return "", nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func typeFromMode(mode uint32) FileType {
	const (
		sIFMT   = 0170000
		sIFSOCK = 0140000
		sIFLNK  = 0120000
		sIFREG  = 0100000
		sIFBLK  = 0060000
		sIFDIR  = 0040000
		sIFCHR  = 0020000
		sIFIFO  = 0010000
	)
	switch mode & sIFMT {
	case sIFDIR:
		return Directory
	case sIFLNK:
		return Symlink
	case sIFBLK:
		return BlockDevice
	case sIFCHR:
		return CharDevice
	case sIFIFO:
		return Fifo
	case sIFSOCK:
		return Socket
	default:
		return Regular
	}
}

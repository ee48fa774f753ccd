package sender

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/oferchen/rsync-sub020/internal/flist"
)

// BuildFileList walks root (one entry per requested path, spec §4.3
// "File list generation") and returns the deduplicated, sorted entry
// set the way Encoder expects to receive it.
func BuildFileList(root string, paths []string, recurse bool) ([]flist.Entry, error) {
	var entries []flist.Entry
	for _, p := range paths {
		base := filepath.Join(root, p)
		rel := "."
		if p != "." {
			rel = filepath.Base(p)
		}
		err := walkOne(base, rel, recurse, &entries)
		if err != nil {
			return nil, err
		}
	}
	entries = flist.SortAndDedup(entries)
	return entries, nil
}

func walkOne(base, relBase string, recurse bool, out *[]flist.Entry) error {
	st, err := os.Lstat(base)
	if err != nil {
		return err
	}
	ent, err := entryFromStat(base, relBase, st)
	if err != nil {
		return err
	}
	*out = append(*out, ent)
	if !st.IsDir() || !recurse {
		return nil
	}
	children, err := os.ReadDir(base)
	if err != nil {
		return fmt.Errorf("sender: reading dir %s: %w", base, err)
	}
	sort.Slice(children, func(i, j int) bool { return children[i].Name() < children[j].Name() })
	for _, c := range children {
		if err := walkOne(filepath.Join(base, c.Name()), filepath.Join(relBase, c.Name()), recurse, out); err != nil {
			return err
		}
	}
	return nil
}

func entryFromStat(base, rel string, st fs.FileInfo) (flist.Entry, error) {
	ent := flist.Entry{
		Path:          filepath.ToSlash(rel),
		Size:          st.Size(),
		Mode:          uint32(st.Mode().Perm()),
		MtimeSec:      st.ModTime().Unix(),
		MtimeNsec:     uint32(st.ModTime().Nanosecond()),
		HardLinkGroup: -1,
	}
	switch {
	case st.Mode()&os.ModeSymlink != 0:
		ent.Type = flist.Symlink
		ent.Mode |= 0o120000
		target, err := os.Readlink(base)
		if err != nil {
			return flist.Entry{}, fmt.Errorf("sender: reading symlink %s: %w", base, err)
		}
		ent.SymlinkTarget = target
	case st.IsDir():
		ent.Type = flist.Directory
		ent.Mode |= 0o040000
	case st.Mode()&os.ModeDevice != 0:
		if st.Mode()&os.ModeCharDevice != 0 {
			ent.Type = flist.CharDevice
			ent.Mode |= 0o020000
		} else {
			ent.Type = flist.BlockDevice
			ent.Mode |= 0o060000
		}
		if sys, ok := st.Sys().(*syscall.Stat_t); ok {
			ent.HasDevice = true
			ent.Device = flist.Device{Major: uint32(sys.Rdev >> 8), Minor: uint32(sys.Rdev & 0xff)}
		}
	case st.Mode()&os.ModeNamedPipe != 0:
		ent.Type = flist.Fifo
		ent.Mode |= 0o010000
	case st.Mode()&os.ModeSocket != 0:
		ent.Type = flist.Socket
		ent.Mode |= 0o140000
	default:
		ent.Type = flist.Regular
		ent.Mode |= 0o100000
	}
	if sys, ok := st.Sys().(*syscall.Stat_t); ok {
		ent.HasUID, ent.UID = true, int32(sys.Uid)
		ent.HasGID, ent.GID = true, int32(sys.Gid)
	}
	return ent, nil
}

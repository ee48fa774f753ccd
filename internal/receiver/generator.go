package receiver

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/oferchen/rsync-sub020/internal/flist"
	"github.com/oferchen/rsync-sub020/internal/rsyncwire"
	"github.com/oferchen/rsync-sub020/internal/signature"
)

// GenerateFiles is the generator sub-role (spec §4.7): for every
// regular file in fileList it opens the local basis (if any), builds
// and sends its signature, so the remote sender can compute and return
// a delta instruction stream. Directories are created and symlinks are
// written immediately, since they carry no delta content. The stream
// is terminated with index -1, mirroring RecvFiles' phase marker.
func (rt *Transfer) GenerateFiles(fileList []*File) error {
	for idx, f := range fileList {
		switch f.Type {
		case flist.Directory:
			if err := rt.mkdirFor(f); err != nil {
				return err
			}
			continue
		case flist.Symlink:
			if rt.Opts.PreserveLinks {
				if err := rt.recvSymlink(f); err != nil {
					return err
				}
			}
			continue
		case flist.CharDevice, flist.BlockDevice, flist.Fifo, flist.Socket:
			if !(rt.Opts.PreserveDevices || rt.Opts.PreserveSpecials) {
				continue
			}
			// Device/special nodes carry no delta content and are
			// skipped here: no node is created and no metadata (nor,
			// under --fake-super, an encoded stat xattr) is applied.
			continue
		}

		if err := rt.sendSignature(int32(idx), f); err != nil {
			return err
		}
	}
	return rt.Conn.WriteInt32(-1)
}

func (rt *Transfer) mkdirFor(f *File) error {
	if rt.Opts.DryRun {
		return nil
	}
	local := rt.localPath(f)
	if err := os.MkdirAll(local, 0o700); err != nil && !os.IsExist(err) {
		return err
	}
	return rt.setPerms(f)
}

// sendSignature transmits one file's index followed by its basis
// signature, so the remote sender's delta search (internal/signature.Search)
// has something to match against. A missing or non-regular local file
// is treated as an empty basis (spec §4.5: "a missing basis yields an
// empty signature, forcing the sender to emit one literal instruction
// covering the whole file").
func (rt *Transfer) sendSignature(idx int32, f *File) error {
	basis, basisSize, err := rt.openBasis(f)
	if err != nil {
		return err
	}
	if basis != nil {
		defer basis.Close()
	}

	layout, err := signature.NewLayout(basisSize, rt.Opts.DigestKind.Size(), rt.Opts.Version, rt.Opts.BlockLengthOverride)
	if err != nil {
		return err
	}

	var blocks []signature.Block
	if basis != nil {
		blocks, err = signature.Generate(basis, layout, rt.Opts.DigestKind, rt.Seed, rt.Opts.SeedOrder)
		if err != nil {
			return err
		}
	}

	if err := rt.Conn.WriteInt32(idx); err != nil {
		return err
	}
	if err := rt.Conn.WriteInt64(layout.BlockLength); err != nil {
		return err
	}
	if err := rt.Conn.WriteInt64(layout.BlockCount); err != nil {
		return err
	}
	if err := rt.Conn.WriteInt64(layout.RemainderLength); err != nil {
		return err
	}
	if err := rsyncwire.WriteVarint(rt.Conn.Writer, int32(layout.StrongSumLength)); err != nil {
		return err
	}
	for _, b := range blocks {
		if err := rt.Conn.WriteInt32(int32(b.Rolling)); err != nil {
			return err
		}
		if _, err := rt.Conn.Writer.Write(b.StrongSum); err != nil {
			return err
		}
	}
	return nil
}

func (rt *Transfer) openBasis(f *File) (*os.File, int64, error) {
	local := rt.localPath(f)
	fh, err := os.Open(local)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	st, err := fh.Stat()
	if err != nil {
		fh.Close()
		return nil, 0, err
	}
	if st.IsDir() {
		fh.Close()
		return nil, 0, fmt.Errorf("%s is a directory", filepath.Join(rt.Dest, f.Path))
	}
	if !st.Mode().IsRegular() {
		fh.Close()
		return nil, 0, nil
	}
	return fh, st.Size(), nil
}

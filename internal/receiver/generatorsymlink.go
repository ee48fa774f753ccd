//go:build linux || darwin

package receiver

import "github.com/google/renameio/v2"

func symlink(oldname, newname string) error {
	return renameio.Symlink(oldname, newname)
}

// recvSymlink creates (or replaces) the symlink described by f at its
// destination path and applies the entry's non-content metadata.
func (rt *Transfer) recvSymlink(f *File) error {
	if rt.Opts.DryRun {
		return nil
	}
	local := rt.localPath(f)
	if err := symlink(f.SymlinkTarget, local); err != nil {
		return err
	}
	return rt.setPerms(f)
}

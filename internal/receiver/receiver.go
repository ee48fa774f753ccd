package receiver

import (
	"fmt"
	"io"
	"os"

	"github.com/oferchen/rsync-sub020/internal/mapfile"
	"github.com/oferchen/rsync-sub020/internal/signature"
)

// RecvFiles is the receiver sub-role (spec §4.7): it reads, for each
// file index the remote sender replies with, a delta instruction
// stream terminated by the digest trailer, applies it against the
// local basis, and commits the reconstructed file in place.
func (rt *Transfer) RecvFiles(fileList []*File) error {
	for {
		idx, err := rt.Conn.ReadInt32()
		if err != nil {
			return err
		}
		if idx == -1 {
			break
		}
		if int(idx) < 0 || int(idx) >= len(fileList) {
			return fmt.Errorf("receiver: file index %d out of range (have %d entries)", idx, len(fileList))
		}
		if rt.Opts.Verbose {
			rt.Logger.Printf("receiving file idx=%d: %+v", idx, fileList[idx])
		}
		if err := rt.recvFile1(fileList[idx]); err != nil {
			return err
		}
	}
	if rt.Opts.Verbose {
		rt.Logger.Printf("recvFiles finished")
	}
	return nil
}

func (rt *Transfer) recvFile1(f *File) error {
	if rt.Opts.DryRun {
		if !rt.Opts.Server {
			fmt.Fprintln(rt.Env.Stdout, f.Path)
		}
		return nil
	}
	if err := rt.receiveData(f); err != nil {
		rt.IOErrors++
		return err
	}
	return nil
}

// receiveData reads the instruction stream for f, reconstructs it
// against the local basis (if any) via internal/signature, and
// atomically replaces the destination once the whole-file digest
// verifies.
func (rt *Transfer) receiveData(f *File) error {
	basis, basisSize, err := rt.openBasis(f)
	if err != nil {
		return err
	}
	var mf *mapfile.MapFile
	if basis != nil {
		defer basis.Close()
		mf, err = mapfile.OpenFile(basis)
		if err != nil {
			return err
		}
	}

	layout, err := signature.NewLayout(basisSize, rt.Opts.DigestKind.Size(), rt.Opts.Version, rt.Opts.BlockLengthOverride)
	if err != nil {
		return err
	}

	instructions, err := signature.ReadInstructions(rt.Conn.Reader)
	if err != nil {
		return err
	}
	digest := make([]byte, rt.Opts.DigestKind.Size())
	if _, err := io.ReadFull(rt.Conn.Reader, digest); err != nil {
		return err
	}

	local := rt.localPath(f)
	switch rt.Opts.Placement {
	case PlacementInPlace, PlacementAppend:
		if err := rt.applyInPlace(local, mf, layout, instructions, digest); err != nil {
			return err
		}
	default:
		if err := rt.applyViaTemp(local, mf, layout, instructions, digest); err != nil {
			return err
		}
	}

	if !rt.Opts.PreservePerms {
		// If the file exists already and we are not preserving
		// permissions, leave the previously-applied filesystem mode
		// alone instead of overwriting it with the remote's reported
		// mode.
		if st, statErr := os.Stat(local); statErr == nil {
			f.Mode = uint32(st.Mode().Perm())
		}
	}

	return rt.setPerms(f)
}

// applyViaTemp is the default placement (spec §9 Open Question #2,
// resolved PlacementTempThenRename): reconstruct into a temp file beside
// local and atomically rename it into place. When KeepPartialOnFailure
// is set (--partial without --inplace/--append), a failed reconstruction
// leaves the temp file on disk instead of discarding it.
func (rt *Transfer) applyViaTemp(local string, mf *mapfile.MapFile, layout signature.Layout, instructions []signature.Instruction, digest []byte) error {
	rt.Logger.Printf("creating %s", local)
	out, err := newPendingFile(local)
	if err != nil {
		return err
	}
	applyErr := signature.Apply(out, mf, layout, instructions, rt.Opts.DigestKind, rt.Seed, rt.Opts.SeedOrder, digest)
	if applyErr != nil {
		if !rt.Opts.KeepPartialOnFailure {
			out.Cleanup()
		}
		return applyErr
	}
	return out.CloseAtomicallyReplace()
}

// applyInPlace writes directly into the destination file rather than a
// temp file (PlacementInPlace), or starting at its current end-of-file
// (PlacementAppend), per the --inplace/--append precedence decided in
// ResolvePlacement.
func (rt *Transfer) applyInPlace(local string, mf *mapfile.MapFile, layout signature.Layout, instructions []signature.Instruction, digest []byte) error {
	rt.Logger.Printf("updating %s in place", local)
	out, err := os.OpenFile(local, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s in place: %w", local, err)
	}
	defer out.Close()

	if rt.Opts.Placement == PlacementAppend {
		if _, err := out.Seek(0, io.SeekEnd); err != nil {
			return err
		}
	}

	if err := signature.Apply(out, mf, layout, instructions, rt.Opts.DigestKind, rt.Seed, rt.Opts.SeedOrder, digest); err != nil {
		return err
	}

	if rt.Opts.Placement == PlacementInPlace {
		if pos, err := out.Seek(0, io.SeekCurrent); err == nil {
			if err := out.Truncate(pos); err != nil {
				return err
			}
		}
	}
	return nil
}

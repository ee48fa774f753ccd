package signature

import (
	"bytes"
	"fmt"
	"io"

	"github.com/oferchen/rsync-sub020/internal/checksum"
	"github.com/oferchen/rsync-sub020/internal/mapfile"
	"github.com/oferchen/rsync-sub020/internal/rsyncerrors"
)

// Apply reconstructs a file by writing instructions to out, resolving
// Match tokens against basis through its window cache (spec §4.6), and
// verifies the trailing whole-file digest against what was actually
// written. A mismatch is reported as rsyncerrors.ErrIntegrity (spec
// §4.5 "Failure model": "ChecksumMismatch after reconstruction: the
// receiver discards the temp file").
func Apply(out io.Writer, basis *mapfile.MapFile, layout Layout, instructions []Instruction, kind checksum.DigestKind, seed uint32, order checksum.SeedOrder, expectedWholeFileDigest []byte) error {
	d := checksum.New(kind, seed, order)
	mw := io.MultiWriter(out, writerFunc(d.Update))

	for _, ins := range instructions {
		if ins.IsMatch {
			length := layout.BlockLen(ins.BlockIndex)
			offset := ins.BlockIndex * layout.BlockLength
			block, err := basis.MapPtr(offset, length)
			if err != nil {
				return fmt.Errorf("%w: resolving match block %d: %v", rsyncerrors.ErrFatalIO, ins.BlockIndex, err)
			}
			if _, err := mw.Write(block); err != nil {
				return fmt.Errorf("%w: writing matched block: %v", rsyncerrors.ErrFatalIO, err)
			}
			continue
		}
		if _, err := mw.Write(ins.Literal); err != nil {
			return fmt.Errorf("%w: writing literal: %v", rsyncerrors.ErrFatalIO, err)
		}
	}

	got := d.Finalize()
	if !bytes.Equal(got, expectedWholeFileDigest) {
		return fmt.Errorf("%w: whole-file digest mismatch after reconstruction", rsyncerrors.ErrIntegrity)
	}
	return nil
}

type writerFunc func([]byte)

func (f writerFunc) Write(p []byte) (int, error) {
	f(p)
	return len(p), nil
}

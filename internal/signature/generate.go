package signature

import (
	"io"

	"github.com/oferchen/rsync-sub020/internal/checksum"
)

// Block is one signature entry: (index, rolling checksum, truncated
// strong digest), in basis-file block order (spec §3 "Signature block").
type Block struct {
	Index      int64
	Rolling    uint32
	StrongSum  []byte
}

// Generate reads basis sequentially in Layout-sized blocks (short final
// block allowed) and emits one Block per block (spec §4.5 "Signature
// generation (receiver side)"). The sequential form is the reference;
// double-buffered pipelining is an optimisation left to callers that
// wrap basis in their own read-ahead reader.
func Generate(basis io.Reader, layout Layout, kind checksum.DigestKind, seed uint32, order checksum.SeedOrder) ([]Block, error) {
	if layout.BlockCount == 0 {
		return nil, nil
	}
	blocks := make([]Block, 0, layout.BlockCount)
	buf := make([]byte, layout.BlockLength)
	for i := int64(0); i < layout.BlockCount; i++ {
		n := int(layout.BlockLen(i))
		chunk := buf[:n]
		if _, err := io.ReadFull(basis, chunk); err != nil && err != io.ErrUnexpectedEOF {
			return nil, err
		}
		rolling := checksum.RollingChecksum(chunk)
		d := checksum.New(kind, seed, order)
		d.Update(chunk)
		strong, err := d.FinalizeTruncated(layout.StrongSumLength)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, Block{Index: i, Rolling: rolling, StrongSum: strong})
	}
	return blocks, nil
}

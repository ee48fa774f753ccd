package sender

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/oferchen/rsync-sub020/internal/checksum"
	"github.com/oferchen/rsync-sub020/internal/flist"
	"github.com/oferchen/rsync-sub020/internal/rsyncwire"
	"github.com/oferchen/rsync-sub020/internal/signature"
)

// recvSignatureAndReply reads one basis signature (as written by
// receiver.sendSignature), searches src for matching blocks, and writes
// the resulting delta instruction stream back, fulfilling the
// generator/sender half of spec §4.7.
func (st *Transfer) recvSignatureAndReply(srcRoot string, fileList []flist.Entry) error {
	for {
		idx, err := st.Conn.ReadInt32()
		if err != nil {
			return err
		}
		if idx == -1 {
			// Echo the terminator so the peer's receive loop ends.
			return st.Conn.WriteInt32(-1)
		}
		if int(idx) < 0 || int(idx) >= len(fileList) {
			return fmt.Errorf("sender: file index %d out of range (have %d entries)", idx, len(fileList))
		}
		if err := st.replyOne(srcRoot, idx, &fileList[idx]); err != nil {
			return err
		}
	}
}

func (st *Transfer) replyOne(srcRoot string, idx int32, f *flist.Entry) error {
	blockLength, err := st.Conn.ReadInt64()
	if err != nil {
		return err
	}
	blockCount, err := st.Conn.ReadInt64()
	if err != nil {
		return err
	}
	remainderLength, err := st.Conn.ReadInt64()
	if err != nil {
		return err
	}
	strongLenV, err := rsyncwire.ReadVarint(st.Conn.Reader)
	if err != nil {
		return err
	}
	strongLen := int(strongLenV)

	layout := signature.Layout{
		BlockLength:     blockLength,
		BlockCount:      blockCount,
		RemainderLength: remainderLength,
		StrongSumLength: strongLen,
	}

	blocks := make([]signature.Block, 0, blockCount)
	for i := int64(0); i < blockCount; i++ {
		rolling, err := st.Conn.ReadInt32()
		if err != nil {
			return err
		}
		strong, err := st.Conn.ReadN(strongLen)
		if err != nil {
			return err
		}
		blocks = append(blocks, signature.Block{Index: i, Rolling: uint32(rolling), StrongSum: strong})
	}

	data, err := os.ReadFile(filepath.Join(srcRoot, f.Path))
	if err != nil {
		data = nil // a vanished source file is sent as empty: no instructions, digest of no data
	}

	index := signature.BuildIndex(blocks, strongLen)
	instructions := signature.Search(data, index, layout, st.DigestKind, st.Seed, st.SeedOrder)
	digest := checksum.OneShot(st.DigestKind, st.Seed, st.SeedOrder, data)

	if err := st.Conn.WriteInt32(idx); err != nil {
		return err
	}
	return signature.WriteInstructions(st.Conn.Writer, instructions, digest)
}

package sender

import (
	"github.com/oferchen/rsync-sub020/internal/flist"
	"github.com/oferchen/rsync-sub020/internal/rsyncstats"
	"github.com/oferchen/rsync-sub020/internal/rsyncwire"
)

// Do is the sender half of one session (spec §4.7, mirrors
// rsync/main.c:do_server_sender): build and transmit the file list for
// root/paths, answer every basis-signature request the peer's generator
// sends, then report transport byte counts and wait for the peer's
// final goodbye.
func (st *Transfer) Do(crd *rsyncwire.CountingReader, cwr *rsyncwire.CountingWriter, root string, paths []string, exclusionList *FilterList) (*rsyncstats.TransferStats, error) {
	fileList, err := BuildFileList(root, paths, st.Opts.Recurse())
	if err != nil {
		return nil, err
	}
	if st.Opts.Verbose() {
		st.Logger.Printf("sending %d names", len(fileList))
	}

	enc := flist.NewEncoder(st.Conn.Writer)
	for _, f := range fileList {
		if err := enc.Encode(f); err != nil {
			return nil, err
		}
	}
	if err := enc.Finish(); err != nil {
		return nil, err
	}

	if err := st.recvSignatureAndReply(root, fileList); err != nil {
		return nil, err
	}

	stats := &rsyncstats.TransferStats{
		FilesSeen: int64(len(fileList)),
		Read:      crd.BytesRead,
		Written:   cwr.BytesWritten,
	}
	for _, f := range fileList {
		stats.Size += f.Size
	}

	if err := st.Conn.WriteInt64(stats.Read); err != nil {
		return nil, err
	}
	if err := st.Conn.WriteInt64(stats.Written); err != nil {
		return nil, err
	}
	if err := st.Conn.WriteInt64(stats.Size); err != nil {
		return nil, err
	}

	if _, err := st.Conn.ReadInt32(); err != nil {
		return nil, err
	}

	return stats, nil
}

package receiver

import (
	"github.com/oferchen/rsync-sub020/internal/flist"
)

// ReceiveFileList decodes the incoming file list from rt.Conn (spec
// §4.4), returning entries in wire order (index order matters: the
// generator/receiver phase refers to files by their position here).
func (rt *Transfer) ReceiveFileList() ([]*File, error) {
	dec := flist.NewDecoder(rt.Conn.Reader)
	var out []*File
	for {
		ent, done, err := dec.Decode()
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
		e := ent
		out = append(out, &e)
	}
	return out, nil
}

// findInFileList reports whether name appears in fileList, used by
// delete processing to decide whether a local-only path should be
// removed.
func findInFileList(fileList []*File, name string) bool {
	for _, f := range fileList {
		if f.Path == name {
			return true
		}
	}
	return false
}

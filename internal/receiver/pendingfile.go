package receiver

import (
	"github.com/google/renameio/v2"
)

// pendingFile wraps a renameio.PendingFile so receivers can write a
// reconstructed file to a temp path and only replace the destination
// once its digest has been verified (spec §4.7 "Commit").
type pendingFile struct {
	*renameio.PendingFile
}

func newPendingFile(path string) (*pendingFile, error) {
	pf, err := renameio.NewPendingFile(path, renameio.WithExistingPermissions(), renameio.WithTempDir(""))
	if err != nil {
		return nil, err
	}
	return &pendingFile{PendingFile: pf}, nil
}

// Cleanup removes the temp file if it was never committed; it is always
// deferred right after creation and is a no-op once CloseAtomicallyReplace
// has succeeded.
func (p *pendingFile) Cleanup() {
	p.PendingFile.Cleanup()
}

package sender

import (
	"bytes"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/oferchen/rsync-sub020/internal/checksum"
	"github.com/oferchen/rsync-sub020/internal/receiver"
	"github.com/oferchen/rsync-sub020/internal/rsyncwire"
)

type fakeOptions struct{}

func (fakeOptions) Verbose() bool          { return false }
func (fakeOptions) DryRun() bool           { return false }
func (fakeOptions) Server() bool           { return true }
func (fakeOptions) PreserveLinks() bool    { return true }
func (fakeOptions) PreserveDevices() bool  { return false }
func (fakeOptions) PreserveSpecials() bool { return false }
func (fakeOptions) Recurse() bool          { return true }

// TestSenderReceiverRoundTrip wires a real sender.Transfer against a
// real receiver.Transfer over two pipes (one per direction), exercising
// the same wire protocol GenerateFiles/RecvFiles/recvSignatureAndReply
// use in production (spec §4.7).
func TestSenderReceiverRoundTrip(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()

	content := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog\n"), 100)
	if err := os.WriteFile(filepath.Join(srcDir, "greeting.txt"), content, 0o644); err != nil {
		t.Fatal(err)
	}

	// requests: receiver -> sender
	reqR, reqW := io.Pipe()
	// replies+filelist+stats: sender -> receiver
	repR, repW := io.Pipe()

	stConn := rsyncwire.NewConnection(reqR, repW)
	rtConn := rsyncwire.NewConnection(repR, reqW)

	logger := log.New(io.Discard, "", 0)

	st := &Transfer{
		Logger:     logger,
		Opts:       fakeOptions{},
		Conn:       stConn,
		Seed:       0,
		DigestKind: checksum.DigestMD5,
		SeedOrder:  checksum.SeedBefore,
		Version:    32,
	}

	rt := &receiver.Transfer{
		Logger: logger,
		Opts: &receiver.TransferOpts{
			PreserveLinks: true,
			PreservePerms: true,
			PreserveTimes: true,
			Version:       32,
			DigestKind:    checksum.DigestMD5,
			SeedOrder:     checksum.SeedBefore,
		},
		Dest: dstDir,
		Conn: rtConn,
		Seed: 0,
	}

	errCh := make(chan error, 2)
	go func() {
		_, err := st.Do(&rsyncwire.CountingReader{R: reqR}, &rsyncwire.CountingWriter{W: repW}, srcDir, []string{"."}, &FilterList{})
		errCh <- err
	}()
	go func() {
		fileList, err := rt.ReceiveFileList()
		if err != nil {
			errCh <- err
			return
		}
		_, err = rt.Do(rtConn, fileList, false)
		errCh <- err
	}()

	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil {
			t.Fatalf("round trip: %v", err)
		}
	}

	got, err := os.ReadFile(filepath.Join(dstDir, "greeting.txt"))
	if err != nil {
		t.Fatalf("reading transferred file: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("transferred content mismatch: got %d bytes, want %d", len(got), len(content))
	}
}

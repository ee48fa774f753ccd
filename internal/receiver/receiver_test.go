package receiver

import (
	"bytes"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/oferchen/rsync-sub020/internal/checksum"
	"github.com/oferchen/rsync-sub020/internal/flist"
	"github.com/oferchen/rsync-sub020/internal/rsyncwire"
	"github.com/oferchen/rsync-sub020/internal/signature"
)

func TestIsTopDir(t *testing.T) {
	if !isTopDir(&File{Path: "."}) {
		t.Error("expected \".\" to be the top dir")
	}
	if isTopDir(&File{Path: "sub"}) {
		t.Error("did not expect \"sub\" to be the top dir")
	}
}

func TestFindInFileList(t *testing.T) {
	list := []*File{{Path: "a"}, {Path: "b"}}
	if !findInFileList(list, "b") {
		t.Error("expected to find \"b\"")
	}
	if findInFileList(list, "c") {
		t.Error("did not expect to find \"c\"")
	}
}

func TestResolvePlacementPrecedence(t *testing.T) {
	if mode, _ := ResolvePlacement(false, false, true); mode != PlacementAppend {
		t.Errorf("append should win regardless of inplace/partial, got %v", mode)
	}
	if mode, _ := ResolvePlacement(true, true, false); mode != PlacementInPlace {
		t.Errorf("inplace should win over partial, got %v", mode)
	}
	if mode, keep := ResolvePlacement(false, true, false); mode != PlacementTempThenRename || !keep {
		t.Errorf("partial alone should keep the temp-then-rename path with preservation, got %v keep=%v", mode, keep)
	}
}

// TestGenerateAndReceiveRoundTrip exercises the full generator/receiver
// loop against a fake in-process "remote sender" that performs the
// delta search itself, the way the network peer would.
func TestGenerateAndReceiveRoundTrip(t *testing.T) {
	destDir := t.TempDir()
	basisData := bytes.Repeat([]byte("A"), 4096*3)
	sourceData := append(append(bytes.Repeat([]byte("A"), 4096), []byte("CHANGED-MIDDLE-BLOCK-----------")...), bytes.Repeat([]byte("A"), 4096*2-32)...)

	destPath := filepath.Join(destDir, "f")
	if err := os.WriteFile(destPath, basisData, 0o644); err != nil {
		t.Fatal(err)
	}

	fileList := []*File{{Path: "f", Type: flist.Regular, Size: int64(len(sourceData)), Mode: 0o644}}

	genRead, genWrite := io.Pipe()
	recvRead, recvWrite := io.Pipe()

	opts := &TransferOpts{
		DigestKind: checksum.DigestMD5,
		SeedOrder:  checksum.SeedAfter,
		Version:    30,
	}
	seed := uint32(666)

	rt := &Transfer{
		Logger: log.New(io.Discard, "", 0),
		Opts:   opts,
		Dest:   destDir,
		Env:    Env{Stdout: io.Discard},
		Conn:   &rsyncwire.Conn{Reader: recvRead, Writer: genWrite},
		Seed:   seed,
	}

	genErrCh := make(chan error, 1)
	go func() {
		genErrCh <- rt.GenerateFiles(fileList)
		genWrite.Close()
	}()

	// Fake remote sender: reads the signature, searches sourceData for
	// matches, and writes back the instruction stream.
	senderErrCh := make(chan error, 1)
	go func() {
		senderErrCh <- fakeRemoteSender(genRead, recvWrite, sourceData, opts.DigestKind, seed, opts.SeedOrder)
	}()

	if err := <-genErrCh; err != nil {
		t.Fatalf("GenerateFiles: %v", err)
	}
	// RecvFiles must drain recvWrite while the fake sender is still
	// writing to it: io.Pipe writes block until read.
	if err := rt.RecvFiles(fileList); err != nil {
		t.Fatalf("RecvFiles: %v", err)
	}
	if err := <-senderErrCh; err != nil {
		t.Fatalf("fakeRemoteSender: %v", err)
	}
	recvWrite.Close()

	got, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, sourceData) {
		t.Fatalf("reconstructed file mismatch: got %d bytes, want %d", len(got), len(sourceData))
	}
}

// fakeRemoteSender reads one signature (as written by sendSignature)
// from genRead and writes the matching instruction stream to recvWrite,
// playing the role of the network peer in TestGenerateAndReceiveRoundTrip.
func fakeRemoteSender(genRead io.Reader, recvWrite io.Writer, source []byte, kind checksum.DigestKind, seed uint32, order checksum.SeedOrder) error {
	c := &rsyncwire.Conn{Reader: genRead, Writer: recvWrite}

	idx, err := c.ReadInt32()
	if err != nil {
		return err
	}
	blockLength, err := c.ReadInt64()
	if err != nil {
		return err
	}
	blockCount, err := c.ReadInt64()
	if err != nil {
		return err
	}
	remainderLength, err := c.ReadInt64()
	if err != nil {
		return err
	}
	strongLenV, err := rsyncwire.ReadVarint(genRead)
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
		rolling, err := c.ReadInt32()
		if err != nil {
			return err
		}
		strong, err := c.ReadN(strongLen)
		if err != nil {
			return err
		}
		blocks = append(blocks, signature.Block{Index: i, Rolling: uint32(rolling), StrongSum: strong})
	}

	idxTerm, err := c.ReadInt32()
	if err != nil {
		return err
	}
	if idxTerm != -1 {
		return errUnexpectedIndex(idxTerm)
	}

	index := signature.BuildIndex(blocks, strongLen)
	instructions := signature.Search(source, index, layout, kind, seed, order)
	digest := checksum.OneShot(kind, seed, order, source)

	if err := c.WriteInt32(idx); err != nil {
		return err
	}
	if err := signature.WriteInstructions(recvWrite, instructions, digest); err != nil {
		return err
	}
	return c.WriteInt32(-1)
}

type errUnexpectedIndex int32

func (e errUnexpectedIndex) Error() string {
	return "fake remote sender: expected terminating index -1"
}

package signature

import (
	"bytes"
	"os"
	"testing"

	"github.com/oferchen/rsync-sub020/internal/checksum"
	"github.com/oferchen/rsync-sub020/internal/mapfile"
)

func TestDeltaRoundTrip(t *testing.T) {
	basisData := append(append(bytes.Repeat([]byte("A"), 4096), bytes.Repeat([]byte("X"), 4096)...), bytes.Repeat([]byte("C"), 4096)...)
	sourceData := append(append(bytes.Repeat([]byte("A"), 4096), bytes.Repeat([]byte("B"), 4096)...), bytes.Repeat([]byte("C"), 4096)...)

	kind := checksum.DigestMD5
	seed := uint32(666)
	order := checksum.SeedAfter

	layout, err := NewLayout(int64(len(basisData)), kind.Size(), 30, 4096)
	if err != nil {
		t.Fatal(err)
	}

	blocks, err := Generate(bytes.NewReader(basisData), layout, kind, seed, order)
	if err != nil {
		t.Fatal(err)
	}
	idx := BuildIndex(blocks, layout.StrongSumLength)

	instructions := Search(sourceData, idx, layout, kind, seed, order)

	var matches, literals int
	for _, ins := range instructions {
		if ins.IsMatch {
			matches++
		} else {
			literals++
		}
	}
	if matches != 2 {
		t.Errorf("expected 2 matched blocks, got %d (instructions=%+v)", matches, instructions)
	}
	if literals == 0 {
		t.Errorf("expected at least one literal run for the changed middle block")
	}

	wholeDigest := checksum.OneShot(kind, seed, order, sourceData)

	var wire bytes.Buffer
	if err := WriteInstructions(&wire, instructions, wholeDigest); err != nil {
		t.Fatal(err)
	}

	decoded, err := ReadInstructions(&wire)
	if err != nil {
		t.Fatal(err)
	}
	trailer := make([]byte, len(wholeDigest))
	if _, err := wire.Read(trailer); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(trailer, wholeDigest) {
		t.Fatalf("trailer digest mismatch")
	}

	basisFile, err := os.CreateTemp(t.TempDir(), "basis")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := basisFile.Write(basisData); err != nil {
		t.Fatal(err)
	}
	mf, err := mapfile.OpenFile(basisFile)
	if err != nil {
		t.Fatal(err)
	}

	var reconstructed bytes.Buffer
	if err := Apply(&reconstructed, mf, layout, decoded, kind, seed, order, wholeDigest); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(reconstructed.Bytes(), sourceData) {
		t.Fatalf("reconstruction mismatch: got %d bytes, want %d", reconstructed.Len(), len(sourceData))
	}
}

func TestEmptyFileDelta(t *testing.T) {
	kind := checksum.DigestMD5
	layout, err := NewLayout(0, kind.Size(), 30, 0)
	if err != nil {
		t.Fatal(err)
	}
	blocks, err := Generate(bytes.NewReader(nil), layout, kind, 0, checksum.SeedAfter)
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 0 {
		t.Errorf("expected empty signature for empty file, got %d blocks", len(blocks))
	}
	idx := BuildIndex(blocks, layout.StrongSumLength)
	instructions := Search(nil, idx, layout, kind, 0, checksum.SeedAfter)
	if len(instructions) != 0 {
		t.Errorf("expected zero instructions for empty source, got %d", len(instructions))
	}
}

func TestBasisEmptySourceNonEmpty(t *testing.T) {
	kind := checksum.DigestMD5
	layout, err := NewLayout(0, kind.Size(), 30, 0)
	if err != nil {
		t.Fatal(err)
	}
	idx := BuildIndex(nil, layout.StrongSumLength)
	source := []byte("hello world")
	instructions := Search(source, idx, layout, kind, 0, checksum.SeedAfter)
	if len(instructions) != 1 || instructions[0].IsMatch {
		t.Fatalf("expected a single literal instruction, got %+v", instructions)
	}
}

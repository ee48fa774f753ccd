package mapfile

import (
	"bytes"
	"io"
	"os"
	"testing"
)

func tempFileWithContent(t *testing.T, content []byte) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "mapfile")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write(content); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	return f
}

func TestMapPtrReturnsCorrectData(t *testing.T) {
	content := bytes.Repeat([]byte("0123456789"), 1000)
	f := tempFileWithContent(t, content)
	mf, err := OpenFile(f)
	if err != nil {
		t.Fatal(err)
	}
	got, err := mf.MapPtr(100, 50)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content[100:150]) {
		t.Errorf("mismatch")
	}
}

func TestMapPtrPastEOFFails(t *testing.T) {
	content := []byte("short")
	f := tempFileWithContent(t, content)
	mf, err := OpenFile(f)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mf.MapPtr(0, 100); err == nil {
		t.Fatal("expected error past EOF")
	}
}

func TestMapPtrWindowSlidesForward(t *testing.T) {
	content := bytes.Repeat([]byte("A"), 1<<20)
	for i := range content {
		content[i] = byte('a' + i%26)
	}
	f := tempFileWithContent(t, content)
	bm, err := OpenWithWindow(f, 4096)
	if err != nil {
		t.Fatal(err)
	}
	for _, off := range []int64{0, 1000, 5000, 100000, 500000} {
		got, err := bm.MapPtr(off, 10)
		if err != nil {
			t.Fatalf("offset %d: %v", off, err)
		}
		if !bytes.Equal(got, content[off:off+10]) {
			t.Errorf("offset %d: mismatch", off)
		}
	}
}

func TestMapPtrZeroLength(t *testing.T) {
	f := tempFileWithContent(t, []byte("data"))
	mf, err := OpenFile(f)
	if err != nil {
		t.Fatal(err)
	}
	got, err := mf.MapPtr(0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty slice")
	}
}

func TestAlignmentRespected(t *testing.T) {
	content := bytes.Repeat([]byte("x"), 20000)
	f := tempFileWithContent(t, content)
	bm, err := OpenWithWindow(f, 8192)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := bm.MapPtr(5000, 10); err != nil {
		t.Fatal(err)
	}
	if bm.windowStart%AlignBoundary != 0 {
		t.Errorf("window start %d not aligned", bm.windowStart)
	}
}

package rsyncwire

import (
	"bytes"
	"testing"
)

func TestVarintRoundTrip(t *testing.T) {
	vals := []int32{0, 1, 63, 64, 127, 128, 16383, 16384, 1 << 20, 1<<31 - 1, -1, -128, 1 << 30}
	for _, v := range vals {
		var buf bytes.Buffer
		if err := WriteVarint(&buf, v); err != nil {
			t.Fatalf("WriteVarint(%d): %v", v, err)
		}
		got, err := ReadVarint(&buf)
		if err != nil {
			t.Fatalf("ReadVarint(%d): %v", v, err)
		}
		if got != v {
			t.Errorf("round trip %d: got %d", v, got)
		}
	}
}

func TestVarlongRoundTrip(t *testing.T) {
	vals := []int64{0, 1, 1 << 40, 1<<63 - 1, 12345678901234}
	for _, v := range vals {
		var buf bytes.Buffer
		if err := WriteVarlong(&buf, v, 3); err != nil {
			t.Fatalf("WriteVarlong(%d): %v", v, err)
		}
		got, err := ReadVarlong(&buf)
		if err != nil {
			t.Fatalf("ReadVarlong(%d): %v", v, err)
		}
		if got != v {
			t.Errorf("round trip %d: got %d", v, got)
		}
	}
}

func TestSignedVarintZigZag(t *testing.T) {
	vals := []int32{0, -1, 1, -2, 2, 1 << 20, -(1 << 20)}
	for _, v := range vals {
		var buf bytes.Buffer
		if err := WriteSignedVarint(&buf, v); err != nil {
			t.Fatalf("WriteSignedVarint(%d): %v", v, err)
		}
		got, err := ReadSignedVarint(&buf)
		if err != nil {
			t.Fatalf("ReadSignedVarint(%d): %v", v, err)
		}
		if got != v {
			t.Errorf("round trip %d: got %d", v, got)
		}
	}
}

func TestMultiplexFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	mw := NewMultiplexWriter(&buf)
	payload := bytes.Repeat([]byte("x"), 100)
	if err := mw.Send(TagData, payload); err != nil {
		t.Fatal(err)
	}
	mr := NewMultiplexReader(&buf)
	tag, got, err := mr.Recv()
	if err != nil {
		t.Fatal(err)
	}
	if tag != TagData {
		t.Errorf("tag = %v, want TagData", tag)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload mismatch")
	}
}

func TestMultiplexReaderSkipsOOB(t *testing.T) {
	var buf bytes.Buffer
	mw := NewMultiplexWriter(&buf)
	var seen []Tag
	if err := mw.Send(TagInfo, []byte("info")); err != nil {
		t.Fatal(err)
	}
	if err := mw.SendData([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	mr := NewMultiplexReader(&buf)
	mr.OOB = func(tag Tag, payload []byte) error {
		seen = append(seen, tag)
		return nil
	}
	out := make([]byte, 5)
	n, err := mr.Read(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(out[:n]) != "hello" {
		t.Errorf("got %q", out[:n])
	}
	if len(seen) != 1 || seen[0] != TagInfo {
		t.Errorf("OOB dispatch = %v", seen)
	}
}

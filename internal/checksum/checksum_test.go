package checksum

import (
	"bytes"
	"testing"
)

func TestRollingSlideIdentity(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog!!")
	const blockLen = 16
	fresh := New()
	fresh.Update(data[1 : 1+blockLen])

	slid := New()
	slid.Update(data[0:blockLen])
	slid.Advance(data[0], data[blockLen])

	if fresh.Value() != slid.Value() {
		t.Fatalf("rolling slide identity violated: fresh=%d slid=%d", fresh.Value(), slid.Value())
	}
}

func TestRollingValuePacking(t *testing.T) {
	r := New()
	r.Update([]byte("abc"))
	v := r.Value()
	if v&0xFFFF != r.s1 {
		t.Errorf("low 16 bits should hold s1")
	}
	if (v>>16)&0xFFFF != r.s2 {
		t.Errorf("high 16 bits should hold s2")
	}
}

func TestDigestSeedOrdering(t *testing.T) {
	data := []byte("hello, world")
	seed := uint32(0xdeadbeef)

	before := OneShot(DigestMD5, seed, SeedBefore, data)
	after := OneShot(DigestMD5, seed, SeedAfter, data)
	if bytes.Equal(before, after) {
		t.Fatalf("seed-before and seed-after digests should differ")
	}

	manualBefore := New(DigestMD5, seed, SeedBefore)
	manualBefore.Update(data)
	if !bytes.Equal(manualBefore.Finalize(), before) {
		t.Errorf("manual construction should match OneShot for SeedBefore")
	}
}

func TestDigestKindSizes(t *testing.T) {
	cases := map[DigestKind]int{
		DigestMD4:      16,
		DigestMD5:      16,
		DigestSHA1:     20,
		DigestXXH64:    8,
		DigestXXH3_64:  8,
		DigestXXH3_128: 16,
	}
	for kind, want := range cases {
		if got := kind.Size(); got != want {
			t.Errorf("%v.Size() = %d, want %d", kind, got, want)
		}
		got := OneShot(kind, 1, SeedBefore, []byte("x"))
		if len(got) != want {
			t.Errorf("OneShot(%v) produced %d bytes, want %d", kind, len(got), want)
		}
	}
}

func TestFinalizeTruncated(t *testing.T) {
	d := New(DigestMD5, 0, SeedBefore)
	d.Update([]byte("data"))
	truncated, err := d.FinalizeTruncated(8)
	if err != nil {
		t.Fatal(err)
	}
	if len(truncated) != 8 {
		t.Errorf("len = %d, want 8", len(truncated))
	}

	d2 := New(DigestMD5, 0, SeedBefore)
	d2.Update([]byte("data"))
	if _, err := d2.FinalizeTruncated(64); err == nil {
		t.Errorf("expected error truncating to more than native width")
	}
}

package checksum

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"hash"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/xxh3"
	"golang.org/x/crypto/md4"

	"github.com/oferchen/rsync-sub020/internal/rsyncerrors"
)

// DigestKind names a strong-digest algorithm as a run-time tagged
// variant (spec §9 Design Notes: "do not parameterise the delta engine
// by a type parameter per-file; the choice is a run-time value").
type DigestKind int

const (
	DigestMD4 DigestKind = iota
	DigestMD5
	DigestSHA1
	DigestXXH64
	DigestXXH3_64
	DigestXXH3_128
)

func (k DigestKind) String() string {
	switch k {
	case DigestMD4:
		return "md4"
	case DigestMD5:
		return "md5"
	case DigestSHA1:
		return "sha1"
	case DigestXXH64:
		return "xxh64"
	case DigestXXH3_64:
		return "xxh3-64"
	case DigestXXH3_128:
		return "xxh3-128"
	default:
		return fmt.Sprintf("DigestKind(%d)", int(k))
	}
}

// Size returns the digest's native output length in bytes.
func (k DigestKind) Size() int {
	switch k {
	case DigestMD4:
		return md4.Size
	case DigestMD5:
		return md5.Size
	case DigestSHA1:
		return sha1.Size
	case DigestXXH64:
		return 8
	case DigestXXH3_64:
		return 8
	case DigestXXH3_128:
		return 16
	default:
		return 0
	}
}

// SeedOrder describes whether a seed is folded before or after the data
// when computing a seeded digest (spec §3 "Checksum seed").
type SeedOrder int

const (
	SeedBefore SeedOrder = iota
	SeedAfter
)

// ConsumesSeed reports whether this digest kind participates in seed
// mixing at all. Per upstream semantics every strong digest used for
// whole-file/block verification is seeded; this is kept as an explicit
// predicate so future non-seeded digests have a documented home.
func (k DigestKind) ConsumesSeed() bool { return true }

// Digest is a strong-digest instance bound to a DigestKind and an
// optional 32-bit seed with its ordering rule.
type Digest struct {
	kind  DigestKind
	order SeedOrder
	seed  uint32
	h     hash.Hash
	h64   interface {
		Write([]byte) (int, error)
		Sum64() uint64
	}
	started bool
}

func newHash(kind DigestKind) hash.Hash {
	switch kind {
	case DigestMD4:
		return md4.New()
	case DigestMD5:
		return md5.New()
	case DigestSHA1:
		return sha1.New()
	case DigestXXH3_128:
		return xxh3.New()
	default:
		return nil
	}
}

// New constructs a fresh Digest of the given kind, seeded with seed and
// folded according to order: with SeedBefore the seed is written as four
// little-endian bytes ahead of the data, with SeedAfter at Finalize. A
// zero seed is still written, as four zero bytes.
func New(kind DigestKind, seed uint32, order SeedOrder) *Digest {
	d := &Digest{kind: kind, order: order, seed: seed}
	switch kind {
	case DigestXXH64:
		d.h64 = xxhash.New()
	case DigestXXH3_64:
		d.h64 = xxh3.New()
	default:
		d.h = newHash(kind)
	}
	if order == SeedBefore {
		d.writeSeed()
	}
	return d
}

func (d *Digest) writeSeed() {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], d.seed)
	d.write(buf[:])
}

func (d *Digest) write(p []byte) {
	if d.h != nil {
		d.h.Write(p)
	} else {
		d.h64.Write(p)
	}
}

// Update feeds more data into the digest.
func (d *Digest) Update(p []byte) {
	d.write(p)
}

// Finalize folds a trailing seed (if SeedAfter) and returns the native
// digest bytes.
func (d *Digest) Finalize() []byte {
	if d.order == SeedAfter {
		d.writeSeed()
	}
	if d.kind == DigestXXH3_128 {
		if x, ok := d.h.(*xxh3.Hasher); ok {
			sum := x.Sum128().Bytes()
			return sum[:]
		}
	}
	if d.h != nil {
		return d.h.Sum(nil)
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], d.h64.Sum64())
	return buf[:]
}

// FinalizeTruncated returns the first n bytes of Finalize(), as used for
// signature block strong sums (spec §3 "Signature block": strong
// truncated to S bytes). It is a Config error for n to exceed the
// digest's native width.
func (d *Digest) FinalizeTruncated(n int) ([]byte, error) {
	full := d.Finalize()
	if n > len(full) {
		return nil, fmt.Errorf("%w: digest %s produces %d bytes, cannot truncate to %d", rsyncerrors.ErrConfig, d.kind, len(full), n)
	}
	return full[:n], nil
}

// OneShot computes a digest of data in a single call, equivalent to
// New(kind, seed, order).Update(data).Finalize() (spec §8 "Strong-digest
// seed equivalence").
func OneShot(kind DigestKind, seed uint32, order SeedOrder, data []byte) []byte {
	d := New(kind, seed, order)
	d.Update(data)
	return d.Finalize()
}

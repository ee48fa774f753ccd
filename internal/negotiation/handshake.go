package negotiation

import (
	"fmt"

	"github.com/oferchen/rsync-sub020/internal/checksum"
	"github.com/oferchen/rsync-sub020/internal/rsyncerrors"
	"github.com/oferchen/rsync-sub020/internal/rsyncwire"
)

// MinProtocolVersion and MaxProtocolVersion bound the supported range
// (spec §3 "Protocol version"): [28, 32].
const (
	MinProtocolVersion = 28
	MaxProtocolVersion = 32
)

// CompatFlags is the varint bitfield exchanged once after the version
// handshake on protocol >= 30 (spec §3 "Compatibility flags").
type CompatFlags uint32

const (
	CompatIncRecurse CompatFlags = 1 << iota
	CompatSafeFileList
	CompatChecksumSeedFix
	CompatVarintFlistFlags
)

func (f CompatFlags) Has(bit CompatFlags) bool { return f&bit != 0 }

// UsesLegacyASCIINegotiation reports whether version requires the
// "@RSYNCD:" greeting/auth exchange (v <= 29).
func UsesLegacyASCIINegotiation(version int) bool { return version <= 29 }

// UsesBinaryNegotiation reports the converse (v >= 30).
func UsesBinaryNegotiation(version int) bool { return version >= 30 }

// SupportsVarintFlistFlags reports whether file-list flag words may use
// the varint encoding, which additionally requires the peer to have
// negotiated CompatVarintFlistFlags.
func SupportsVarintFlistFlags(version int, flags CompatFlags) bool {
	return version >= 30 && flags.Has(CompatVarintFlistFlags)
}

// NegotiateVersion writes our preferred version, reads the peer's, and
// returns min(ours, theirs), rejecting anything below
// MinProtocolVersion. A value above MaxProtocolVersion from either side
// is simply clamped by the min() rule, per spec S6: "Client advertises
// 33 ... negotiated version is 32; no error."
func NegotiateVersion(c *rsyncwire.Conn, ourVersion int32) (int32, error) {
	if err := c.WriteInt32(ourVersion); err != nil {
		return 0, fmt.Errorf("negotiation: writing version: %w", err)
	}
	theirs, err := c.ReadInt32()
	if err != nil {
		return 0, fmt.Errorf("negotiation: reading peer version: %w", err)
	}
	v := ourVersion
	if theirs < v {
		v = theirs
	}
	if v < MinProtocolVersion {
		return 0, fmt.Errorf("%w: negotiated version %d below minimum %d", rsyncerrors.ErrProtocol, v, MinProtocolVersion)
	}
	return v, nil
}

// WriteCompatFlags is called by the server only (unidirectional per
// upstream semantics: "the server writes ... and does not read one
// back").
func WriteCompatFlags(c *rsyncwire.Conn, flags CompatFlags) error {
	return rsyncwire.WriteVarint(c.Writer, int32(flags))
}

// ReadCompatFlags is called by the client to receive what the server
// sent.
func ReadCompatFlags(c *rsyncwire.Conn) (CompatFlags, error) {
	v, err := rsyncwire.ReadVarint(c.Reader)
	if err != nil {
		return 0, fmt.Errorf("negotiation: reading compat flags: %w", err)
	}
	return CompatFlags(v), nil
}

// digestPreference orders candidate strong digests from strongest/newest
// to weakest/oldest, used to break ties when intersecting what both
// peers advertise (spec §4.3: "ties break toward the stronger/newer
// algorithm (SHA-512 > SHA-256 > SHA-1 > MD5 > MD4)"; this rewrite's
// digest set per spec §3 substitutes the XXH family for the SHA-2
// members the prose mentions but does not define on the wire).
var digestPreference = []checksum.DigestKind{
	checksum.DigestXXH3_128,
	checksum.DigestXXH3_64,
	checksum.DigestXXH64,
	checksum.DigestSHA1,
	checksum.DigestMD5,
	checksum.DigestMD4,
}

// DefaultDigest returns the default strong digest for a negotiated
// protocol version absent any explicit negotiation: MD4 pre-30, MD5
// post-30 (spec §3).
func DefaultDigest(version int32) checksum.DigestKind {
	if version >= 30 {
		return checksum.DigestMD5
	}
	return checksum.DigestMD4
}

// ChooseDigest intersects ours (what we support) with theirs (what the
// peer advertised) and returns the strongest common choice per
// digestPreference. If theirs is empty, DefaultDigest(version) is used.
func ChooseDigest(version int32, ours, theirs []checksum.DigestKind) checksum.DigestKind {
	if len(theirs) == 0 {
		return DefaultDigest(version)
	}
	oursSet := make(map[checksum.DigestKind]bool, len(ours))
	for _, k := range ours {
		oursSet[k] = true
	}
	theirsSet := make(map[checksum.DigestKind]bool, len(theirs))
	for _, k := range theirs {
		theirsSet[k] = true
	}
	for _, k := range digestPreference {
		if oursSet[k] && theirsSet[k] {
			return k
		}
	}
	return DefaultDigest(version)
}

// SeedOrderFor returns the seed-ordering rule implied by CompatFlags:
// with CHECKSUM_SEED_FIX the seed is hashed before the data, otherwise
// after (spec §3 "Checksum seed").
func SeedOrderFor(flags CompatFlags) checksum.SeedOrder {
	if flags.Has(CompatChecksumSeedFix) {
		return checksum.SeedBefore
	}
	return checksum.SeedAfter
}

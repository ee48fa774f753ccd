// Package negotiation implements the version handshake, the legacy vs.
// binary prologue detector, compatibility-flag exchange, and
// digest/compression preference intersection (spec §4.3).
package negotiation

// legacyDaemonPrefixLen is the length of the canonical legacy greeting
// prefix "@RSYNCD: " that the detector buffers before it can decide
// between a binary peer and the legacy ASCII daemon protocol.
const legacyDaemonPrefixLen = 9

// Prologue is the detector's decision: which negotiation path a peer's
// opening bytes commit to.
type Prologue int

const (
	PrologueUndecided Prologue = iota
	PrologueBinary
	PrologueLegacy
)

// PrologueDetector consumes bytes one at a time (or in chunks) and
// decides between binary negotiation (first byte is not '@') and the
// legacy ASCII greeting "@RSYNCD: ...\n" (spec §4.3). It is grounded on
// original_source/crates/protocol/src/negotiation/detector.rs's
// NegotiationPrologueDetector.
type PrologueDetector struct {
	buffer [legacyDaemonPrefixLen]byte
	len    int
	decided Prologue
}

// NewPrologueDetector returns a fresh, undecided detector.
func NewPrologueDetector() *PrologueDetector {
	return &PrologueDetector{}
}

const legacyPrefix = "@RSYNCD: "

// ObserveByte feeds one byte into the detector and returns the decision
// reached so far (possibly still PrologueUndecided).
func (d *PrologueDetector) ObserveByte(b byte) Prologue {
	if d.decided != PrologueUndecided {
		return d.decided
	}
	if d.len == 0 {
		if b != '@' {
			d.decided = PrologueBinary
			return d.decided
		}
	}
	if d.len < len(d.buffer) {
		d.buffer[d.len] = b
		d.len++
	}
	if d.buffer[d.len-1] != legacyPrefix[d.len-1] {
		// Mismatch partway through the canonical prefix: not a
		// legacy greeting after all. Upstream never actually hits
		// this for real peers (any daemon sends the exact prefix),
		// but a malformed peer degrades to binary classification
		// rather than hanging forever.
		d.decided = PrologueBinary
		return d.decided
	}
	if d.len < len(legacyPrefix) {
		return d.decided
	}
	// Full 9-byte prefix observed and matched.
	d.decided = PrologueLegacy
	return d.decided
}

// Observe feeds a chunk of bytes, returning the decision reached (if
// any) and the number of bytes actually consumed from chunk before a
// decision no longer needs more input. Any bytes beyond that point
// belong to whatever comes after the prologue and must be handed to the
// appropriate next reader by the caller.
func (d *PrologueDetector) Observe(chunk []byte) (Prologue, int) {
	for i, b := range chunk {
		dec := d.ObserveByte(b)
		if dec != PrologueUndecided {
			return dec, i + 1
		}
	}
	return d.decided, len(chunk)
}

// Decision returns the current decision, if any.
func (d *PrologueDetector) Decision() Prologue { return d.decided }

// IsDecided reports whether a classification has been reached.
func (d *PrologueDetector) IsDecided() bool { return d.decided != PrologueUndecided }

// RequiresMoreData reports whether the detector needs more bytes before
// it can decide.
func (d *PrologueDetector) RequiresMoreData() bool { return d.decided == PrologueUndecided }

// LegacyPrefixComplete reports whether the full canonical legacy prefix
// has been buffered (only meaningful once Decision() == PrologueLegacy).
func (d *PrologueDetector) LegacyPrefixComplete() bool {
	return d.len >= len(legacyPrefix)
}

// BufferedPrefix returns the bytes observed so far (useful for replaying
// them into whichever reader ends up owning the connection).
func (d *PrologueDetector) BufferedPrefix() []byte {
	out := make([]byte, d.len)
	copy(out, d.buffer[:d.len])
	return out
}

// BufferedLen returns len(BufferedPrefix()).
func (d *PrologueDetector) BufferedLen() int { return d.len }

// Reset returns the detector to its initial undecided state.
func (d *PrologueDetector) Reset() {
	*d = PrologueDetector{}
}

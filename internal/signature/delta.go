package signature

import (
	"fmt"
	"io"

	"github.com/oferchen/rsync-sub020/internal/checksum"
	"github.com/oferchen/rsync-sub020/internal/rsyncerrors"
	"github.com/oferchen/rsync-sub020/internal/rsyncwire"
)

// Instruction is one token of the delta instruction stream (spec §3
// "Delta instruction"): either a literal byte run or a reference to a
// basis block.
type Instruction struct {
	IsMatch    bool
	Literal    []byte
	BlockIndex int64
	Len        int64
}

// Search computes the delta instruction stream that reconstructs source
// from the basis file whose signature built idx, searching with a
// rolling window of layout.BlockLength bytes (spec §4.5 "Delta search").
//
// This is the reference (sequential, whole-source-in-memory) form;
// correctness, not throughput, is what the spec requires of it.
func Search(source []byte, idx *Index, layout Layout, kind checksum.DigestKind, seed uint32, order checksum.SeedOrder) []Instruction {
	var out []Instruction
	n := int64(len(source))
	if n == 0 {
		return out
	}
	blockLen := layout.BlockLength
	if blockLen <= 0 {
		blockLen = 1
	}

	literalStart := int64(0)
	flushLiteral := func(end int64) {
		if end > literalStart {
			out = append(out, Instruction{Literal: append([]byte(nil), source[literalStart:end]...)})
		}
	}

	// One Rolling instance is carried across the whole scan (spec §4.1,
	// §4.5 step 2): a full Update only happens when the window shape
	// actually changes (a match jump or the shrunk tail window); every
	// plain literal-run advance slides it by one byte in O(1) via
	// Advance rather than recomputing the sum over the whole window.
	var rolling checksum.Rolling
	windowValid := false

	pos := int64(0)
	for pos < n {
		winLen := blockLen
		if pos+winLen > n {
			winLen = n - pos
		}
		if !windowValid || winLen != blockLen {
			rolling.Update(source[pos : pos+winLen])
			windowValid = true
		}
		rollingSum := rolling.Value()

		matched := false
		if cands := idx.Lookup(rollingSum); len(cands) > 0 {
			window := source[pos : pos+winLen]
			d := checksum.New(kind, seed, order)
			d.Update(window)
			strong, err := d.FinalizeTruncated(layout.StrongSumLength)
			if err == nil {
				if blockIdx, ok := idx.FindStrongMatch(rollingSum, strong); ok {
					flushLiteral(pos)
					out = append(out, Instruction{IsMatch: true, BlockIndex: blockIdx, Len: winLen})
					pos += winLen
					literalStart = pos
					matched = true
					windowValid = false
				}
			}
		}
		if !matched {
			if pos+blockLen < n {
				rolling.Advance(source[pos], source[pos+blockLen])
			} else {
				windowValid = false
			}
			pos++
		}
	}
	flushLiteral(n)
	return out
}

// WriteInstructions serializes instructions per spec §4.5 "Wire format
// of the instruction stream": a positive varint Literal length followed
// by its bytes, a negative varint -(k+1) for Match(k, len) where len is
// implied by the basis layout (the receiver already knows it from the
// signature it sent), and a terminating zero, followed by
// wholeFileDigest, which the caller computes over the source bytes.
func WriteInstructions(w io.Writer, instructions []Instruction, wholeFileDigest []byte) error {
	for _, ins := range instructions {
		if ins.IsMatch {
			if err := rsyncwire.WriteSignedVarint(w, int32(-(ins.BlockIndex + 1))); err != nil {
				return err
			}
			continue
		}
		if err := rsyncwire.WriteSignedVarint(w, int32(len(ins.Literal))); err != nil {
			return err
		}
		if _, err := w.Write(ins.Literal); err != nil {
			return err
		}
	}
	if err := rsyncwire.WriteSignedVarint(w, 0); err != nil {
		return err
	}
	_, err := w.Write(wholeFileDigest)
	return err
}

// ReadInstructions decodes a token stream up to (and not including) the
// whole-file digest trailer, which the caller reads separately once the
// terminator has been seen (its length is known from the negotiated
// digest kind, not from the stream itself).
func ReadInstructions(r io.Reader) ([]Instruction, error) {
	var out []Instruction
	for {
		v, err := rsyncwire.ReadSignedVarint(r)
		if err != nil {
			return nil, fmt.Errorf("signature: reading instruction token: %w", err)
		}
		if v == 0 {
			return out, nil
		}
		if v < 0 {
			blockIdx := int64(-v) - 1
			out = append(out, Instruction{IsMatch: true, BlockIndex: blockIdx})
			continue
		}
		buf := make([]byte, v)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("%w: short literal read: %v", rsyncerrors.ErrProtocol, err)
		}
		out = append(out, Instruction{Literal: buf})
	}
}

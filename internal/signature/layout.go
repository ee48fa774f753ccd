// Package signature implements the signature layout/generation, the
// sender-side two-level hash index, and the delta search and
// instruction-stream codec (spec §4.5).
package signature

import (
	"fmt"

	"github.com/oferchen/rsync-sub020/internal/rsyncerrors"
)

// minBlockLength is the floor on block length for non-empty files (spec
// §3 "Signature layout": "B >= 512 when L > 0").
const minBlockLength = 512

// protocol30BlockLengthCap caps block length on protocol >= 30 (spec §3:
// "For v >= 30 a cap on B is applied"), matching upstream's 1<<17 cap.
const protocol30BlockLengthCap = 1 << 17

// Layout describes how a basis file of length L is divided into blocks
// for signature generation (spec §3 "Signature layout").
type Layout struct {
	BlockLength      int64
	BlockCount       int64
	RemainderLength  int64
	StrongSumLength  int
}

// sumSizesSqroot picks a block length close to sqrt(length), the same
// heuristic upstream rsync uses (grounded on the teacher's
// internal/rsyncd/rsyncd.go sumSizesSqroot), clamped to minBlockLength
// and, on protocol >= 30, to protocol30BlockLengthCap.
func sumSizesSqroot(length int64, version int32) int64 {
	const blockSizeFudge = 700 // matches upstream's fixed additive fudge factor
	var blockLength int64
	if length <= 0 {
		blockLength = minBlockLength
	} else {
		c := int64(1)
		l := length
		for l > 0 {
			c *= 2
			l /= 4
		}
		blockLength = blockSizeFudge
		if c > 0 {
			blockLength = length / c
			if blockLength < minBlockLength {
				blockLength = minBlockLength
			}
		}
	}
	if blockLength < minBlockLength {
		blockLength = minBlockLength
	}
	if version >= 30 && blockLength > protocol30BlockLengthCap {
		blockLength = protocol30BlockLengthCap
	}
	return blockLength
}

// NewLayout computes the signature layout for a basis file of the given
// length, strong digest length, and negotiated protocol version. An
// explicit blockLengthOverride > 0 (e.g. from --block-size) takes
// precedence over the sqrt heuristic.
func NewLayout(length int64, strongSumLength int, version int32, blockLengthOverride int64) (Layout, error) {
	if length < 0 {
		return Layout{}, fmt.Errorf("%w: negative file length %d", rsyncerrors.ErrConfig, length)
	}
	blockLength := blockLengthOverride
	if blockLength <= 0 {
		blockLength = sumSizesSqroot(length, version)
	}
	if length > 0 && blockLength < minBlockLength {
		return Layout{}, fmt.Errorf("%w: block length %d below minimum %d", rsyncerrors.ErrConfig, blockLength, minBlockLength)
	}
	blockCount := int64(0)
	remainder := int64(0)
	if length > 0 {
		blockCount = length / blockLength
		remainder = length % blockLength
		if remainder > 0 {
			blockCount++
		}
	}
	return Layout{
		BlockLength:     blockLength,
		BlockCount:      blockCount,
		RemainderLength: remainder,
		StrongSumLength: strongSumLength,
	}, nil
}

// BlockLen returns the true length of block i (the final block may be
// shorter than BlockLength).
func (l Layout) BlockLen(i int64) int64 {
	if i == l.BlockCount-1 && l.RemainderLength > 0 {
		return l.RemainderLength
	}
	return l.BlockLength
}

package idgen

import (
	"errors"
	"fmt"

	"github.com/Siddarth2230/tag-registry/pkg/tagcodec"
)

const symbols = uint32(len(tagcodec.Alphabet))

const (
	// FirstSequence is the first sequence number whose five-letter id is
	// above the numeric range ("aaqaa", 65536). Lower sequences pack to
	// ids that would render as decimal digits.
	FirstSequence uint32 = 16 * symbols * symbols

	// LastSequence is "99999".
	LastSequence uint32 = symbols*symbols*symbols*symbols*symbols - 1
)

// ErrSequenceExhausted is returned once the five-letter space is used up.
var ErrSequenceExhausted = errors.New("five-letter tag space exhausted")

// FiveLetter maps seq onto a five-letter tag id: seq is written in base 36
// and each digit becomes one 6-bit group. Every id it returns encodes
// without error and decodes back to itself.
func FiveLetter(seq uint32) (tagcodec.ID, error) {
	if seq < FirstSequence || seq > LastSequence {
		return 0, fmt.Errorf("%w: sequence %d outside [%d, %d]", ErrSequenceExhausted, seq, FirstSequence, LastSequence)
	}

	var tag tagcodec.ID
	for shift := 24; shift >= 0; shift -= 6 {
		div := pow36(shift / 6)
		tag |= tagcodec.ID(seq/div%symbols) << shift
	}
	return tag, nil
}

// Sequence is the inverse of FiveLetter for ids in the five-letter scheme.
func Sequence(tag tagcodec.ID) (uint32, bool) {
	var seq uint32
	for shift := 24; shift >= 0; shift -= 6 {
		group := uint32(tag>>shift) & 0x3F
		if group >= symbols {
			return 0, false
		}
		seq = seq*symbols + group
	}
	if tag>>30 != 0 || seq < FirstSequence {
		return 0, false
	}
	return seq, true
}

func pow36(n int) uint32 {
	p := uint32(1)
	for ; n > 0; n-- {
		p *= symbols
	}
	return p
}

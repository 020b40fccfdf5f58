// Package tagcodec converts between 32-bit tag ids and their short
// human-readable names.
//
// A tag id renders in one of three shapes, chosen by value:
//
//	0..65535             decimal digits          "42"
//	top byte >= 36       four raw bytes          "ABCD"
//	otherwise            five alphabet letters   "aha4x"
//
// The thresholds keep the shapes disjoint and must not change.
package tagcodec

import (
	"fmt"
	"strconv"
	"strings"
)

// Alphabet is the symbol table of the five-letter scheme. A character's
// index is the value of the 6-bit group it stands for.
const Alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

const (
	// MaxNumericTag is the largest id rendered as decimal digits.
	MaxNumericTag = 0x0000FFFF

	// MinFourLetterHighByte is the smallest top byte of a four-letter id.
	// Five-letter ids always have a top byte below it.
	MinFourLetterHighByte = 36

	// MaxNameLen is the length of the longest tag name.
	MaxNameLen = 5

	groupBits = 6
	groupMask = 1<<groupBits - 1
)

// ID is a tag id.
type ID uint32

// Encode returns the name of tag. It fails with ErrInvalidBitPattern when
// tag falls in the five-letter scheme but one of its groups is outside
// the alphabet; such ids are never handed out by a reservation.
func Encode(tag ID) (string, error) {
	if tag <= MaxNumericTag {
		return strconv.FormatUint(uint64(tag), 10), nil
	}

	if tag>>24 >= MinFourLetterHighByte {
		// four letter tags are the raw bytes, most significant first
		return string([]byte{
			byte(tag >> 24),
			byte(tag >> 16),
			byte(tag >> 8),
			byte(tag),
		}), nil
	}

	var b [MaxNameLen]byte
	for k := range b {
		group := groupAt(tag, k)
		if group >= len(Alphabet) {
			return "", fmt.Errorf("%w: tag 0x%08x group %d has value %d", ErrInvalidBitPattern, uint32(tag), k, group)
		}
		b[k] = Alphabet[group]
	}
	return string(b[:]), nil
}

// Decode returns the id named by name. Numeric names are tried first,
// then four-letter and five-letter names by length.
func Decode(name string) (ID, error) {
	if n, ok := parseNumeric(name); ok {
		return n, nil
	}

	switch len(name) {
	case 4:
		return ID(uint32(name[0])<<24 | uint32(name[1])<<16 | uint32(name[2])<<8 | uint32(name[3])), nil
	case MaxNameLen:
		var tag ID
		for i := 0; i < len(name); i++ {
			idx := strings.IndexByte(Alphabet, name[i])
			if idx < 0 {
				return 0, fmt.Errorf("%w: %q has %q at position %d, not in the tag alphabet", ErrMalformedTagName, name, name[i], i)
			}
			tag = tag<<groupBits | ID(idx)
		}
		return tag, nil
	default:
		return 0, fmt.Errorf("%w: %q has length %d", ErrMalformedTagName, name, len(name))
	}
}

// Reserve returns tag unchanged. Call sites wrap their tag literals in it
// so the registration scanner can find them; it does no validation.
func Reserve(tag ID) ID {
	return tag
}

// groupAt returns the k-th 6-bit group of the low 30 bits, counting
// from the most significant.
func groupAt(tag ID, k int) int {
	return int(tag>>(groupBits*(MaxNameLen-1-k))) & groupMask
}

// parseNumeric accepts only the exact decimal rendering of an id in the
// numeric range, so "007" and "+7" are not numeric names.
func parseNumeric(name string) (ID, bool) {
	n, err := strconv.ParseUint(name, 10, 32)
	if err != nil || n > MaxNumericTag {
		return 0, false
	}
	if strconv.FormatUint(n, 10) != name {
		return 0, false
	}
	return ID(n), true
}

package tagcodec

import (
	"fmt"
	"strconv"
	"strings"
)

// Untagged marks a call site that has not been assigned a tag.
const Untagged ID = 0

// placeholder stands in for a five-letter group outside the alphabet.
const placeholder = '*'

// IsUntagged reports whether tag is the Untagged marker.
func IsUntagged(tag ID) bool {
	return tag == Untagged
}

// Format renders tag for diagnostic output. Unlike Encode it never fails:
// groups outside the alphabet print as '*'. When formatZero is false an
// untagged id renders as the empty string.
func Format(tag ID, formatZero bool) string {
	if !formatZero && IsUntagged(tag) {
		return ""
	}
	if name, err := Encode(tag); err == nil {
		return name
	}

	var b [MaxNameLen]byte
	for k := range b {
		if group := groupAt(tag, k); group < len(Alphabet) {
			b[k] = Alphabet[group]
		} else {
			b[k] = placeholder
		}
	}
	return string(b[:])
}

// String implements fmt.Stringer.
func (id ID) String() string {
	return Format(id, true)
}

// MarshalText encodes id as its tag name.
func (id ID) MarshalText() ([]byte, error) {
	name, err := Encode(id)
	if err != nil {
		return nil, err
	}
	return []byte(name), nil
}

// UnmarshalText decodes a tag name into id.
func (id *ID) UnmarshalText(text []byte) error {
	tag, err := Decode(string(text))
	if err != nil {
		return err
	}
	*id = tag
	return nil
}

// ParseID reads a tag id written in decimal or as 0x-prefixed hexadecimal.
// It does not check the bit pattern; Encode does that.
func ParseID(s string) (ID, error) {
	base := 10
	if hex, ok := strings.CutPrefix(s, "0x"); ok {
		s, base = hex, 16
	}
	n, err := strconv.ParseUint(s, base, 32)
	if err != nil {
		return 0, fmt.Errorf("tagcodec: invalid tag id: %w", err)
	}
	return ID(n), nil
}

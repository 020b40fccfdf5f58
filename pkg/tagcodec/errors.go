package tagcodec

import "errors"

var (
	// ErrInvalidBitPattern is returned by Encode for a five-letter id with
	// a 6-bit group of 36 or more. It means the id was never reserved.
	ErrInvalidBitPattern = errors.New("tagcodec: invalid five-letter bit pattern")

	// ErrMalformedTagName is returned by Decode for input that is not a
	// numeric, four-letter or five-letter tag name.
	ErrMalformedTagName = errors.New("tagcodec: malformed tag name")
)

package wire

import (
	"errors"
	"io"
)

var (
	// ErrMalformed indicates a frame whose payload could not be decoded.
	ErrMalformed = errors.New("malformed frame payload")

	// ErrFrameTooLarge indicates a length prefix above the reader's limit.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
)

// IsEndOfStream reports whether err means the peer closed the stream,
// either cleanly between frames (io.EOF) or in the middle of one
// (io.ErrUnexpectedEOF).
func IsEndOfStream(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// Package wire implements the DittoMX frame codec.
//
// A frame is a 4-byte big-endian length followed by exactly that many
// payload bytes. The payload is XDR (RFC 4506) encoded:
//
//	+--------+-------------+-----------------+
//	| tag    | id          | body            |
//	| uint32 | XDR string  | per-tag struct  |
//	+--------+-------------+-----------------+
//
// The id is the request id for requests, the correlated request id for
// responses and the listener id for notifications. Bodies are flat structs
// (see payload.go) so that xdr2 can encode them by reflection.
//
// Frames are self-delimiting: a reader never needs to know the variant to
// find the next frame boundary, which lets unknown tags be skipped cleanly.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/marmos91/dittomx/internal/protocol/message"
)

// lengthPrefixSize is the size of the frame header in bytes.
const lengthPrefixSize = 4

// Reader decodes messages from a byte stream, one frame at a time.
//
// A Reader is not safe for concurrent use. It does no buffering of its own
// beyond the current frame, so bytes that follow a frame are never consumed
// until the next ReadMessage call.
type Reader struct {
	r            io.Reader
	maxFrameSize uint32
}

// NewReader creates a Reader over r.
//
// Parameters:
//   - r: The underlying stream
//   - maxFrameSize: Largest accepted payload length in bytes, 0 for no limit
func NewReader(r io.Reader, maxFrameSize uint32) *Reader {
	return &Reader{r: r, maxFrameSize: maxFrameSize}
}

// ReadMessage reads and decodes the next frame.
//
// Returns:
//   - io.EOF if the stream ended cleanly before any byte of a frame
//   - io.ErrUnexpectedEOF if the stream ended inside a frame
//   - an error wrapping ErrFrameTooLarge if the length exceeds the limit
//   - an error wrapping ErrMalformed if the payload cannot be decoded
//   - any other error returned by the underlying stream
//
// A frame with an unrecognized tag decodes to *message.Unknown.
func (r *Reader) ReadMessage() (message.Message, error) {
	var prefix [lengthPrefixSize]byte
	if _, err := io.ReadFull(r.r, prefix[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(prefix[:])
	if r.maxFrameSize > 0 && length > r.maxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrFrameTooLarge, length, r.maxFrameSize)
	}

	// CopyN grows the buffer as bytes actually arrive, so a bogus length
	// from a misbehaving peer costs nothing until the data shows up.
	buf := getBuffer()
	defer putBuffer(buf)

	n, err := io.CopyN(buf, r.r, int64(length))
	if err != nil {
		if errors.Is(err, io.EOF) && n < int64(length) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	return decodePayload(buf.Bytes())
}

// Writer encodes messages onto a byte stream.
//
// Each WriteMessage issues exactly one Write call on the underlying stream
// carrying the complete frame. A Writer is not safe for concurrent use;
// callers serialize access (the connection engine holds its mutex).
type Writer struct {
	w io.Writer
}

// NewWriter creates a Writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteMessage encodes msg into a single frame and writes it.
func (w *Writer) WriteMessage(msg message.Message) error {
	buf := getBuffer()
	defer putBuffer(buf)

	if err := appendFrame(buf, msg); err != nil {
		return err
	}

	if _, err := w.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Encode returns the complete frame (length prefix included) for msg.
func Encode(msg message.Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := appendFrame(&buf, msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode decodes a single frame payload (without its length prefix).
func Decode(payload []byte) (message.Message, error) {
	return decodePayload(payload)
}

// appendFrame writes a placeholder prefix, the payload, then patches the
// prefix with the payload length.
func appendFrame(buf *bytes.Buffer, msg message.Message) error {
	start := buf.Len()
	buf.Write(make([]byte, lengthPrefixSize))

	if err := encodePayload(buf, msg); err != nil {
		return fmt.Errorf("encode %s: %w", msg.Tag(), err)
	}

	frame := buf.Bytes()[start:]
	binary.BigEndian.PutUint32(frame[:lengthPrefixSize], uint32(len(frame)-lengthPrefixSize))
	return nil
}

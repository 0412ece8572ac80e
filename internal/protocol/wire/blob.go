package wire

import (
	"bytes"
	"fmt"

	"github.com/marmos91/dittomx/internal/protocol/message"
	xdr "github.com/rasky/go-xdr/xdr2"
)

// MarshalValue encodes a single value as a standalone XDR blob.
func MarshalValue(v message.Value) ([]byte, error) {
	var buf bytes.Buffer
	cv := canonicalValue(v)
	if _, err := xdr.Marshal(&buf, &cv); err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalValue decodes a blob produced by MarshalValue.
func UnmarshalValue(data []byte) (message.Value, error) {
	v, err := newPayloadDecoder(data).value(1)
	if err != nil {
		return message.Value{}, fmt.Errorf("%w: value: %v", ErrMalformed, err)
	}
	return v, nil
}

// filterBlob is the encoded form of a notification filter.
type filterBlob struct {
	TypePrefixes []string
}

// EncodeFilter encodes a notification type filter for
// AddNotificationListener. A notification passes the filter when its type
// starts with any of the prefixes. No prefixes encodes to an empty blob,
// which means "no filter".
func EncodeFilter(typePrefixes ...string) []byte {
	if len(typePrefixes) == 0 {
		return nil
	}

	var buf bytes.Buffer
	// Marshalling a string slice into a bytes.Buffer cannot fail.
	_, _ = xdr.Marshal(&buf, &filterBlob{TypePrefixes: typePrefixes})
	return buf.Bytes()
}

// DecodeFilter decodes a filter blob. An empty blob returns no prefixes.
func DecodeFilter(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, nil
	}

	prefixes, err := newPayloadDecoder(data).strings("type prefixes")
	if err != nil {
		return nil, fmt.Errorf("%w: filter: %v", ErrMalformed, err)
	}
	return prefixes, nil
}

package wire

import (
	"bytes"
	"fmt"

	"github.com/marmos91/dittomx/internal/protocol/message"
	xdr "github.com/rasky/go-xdr/xdr2"
)

const (
	// maxValueDepth bounds list nesting inside a decoded value.
	maxValueDepth = 64

	// minValueSize is the smallest encoded Value: kind, bool, int, float
	// and three empty length prefixes.
	minValueSize = 36

	// minStringSize is the encoded size of an empty string.
	minStringSize = 4

	// initialListCap caps the slice preallocated for a list; longer lists
	// grow as their elements are actually read.
	initialListCap = 64
)

// payloadDecoder reads XDR fields from one in-memory payload.
//
// Every length prefix is checked against the bytes still unread before
// anything is allocated, so a forged count fails instead of reserving
// memory for data that is not there.
type payloadDecoder struct {
	r *bytes.Reader
	d *xdr.Decoder
}

func newPayloadDecoder(payload []byte) *payloadDecoder {
	r := bytes.NewReader(payload)
	// xdr2 treats a zero limit as unlimited
	limit := max(uint(len(payload)), 1)
	return &payloadDecoder{r: r, d: xdr.NewDecoderLimited(r, limit)}
}

// length reads a count prefix and rejects it when count elements of at
// least minSize bytes each cannot fit in what is left of the payload.
func (p *payloadDecoder) length(field string, minSize int) (int, error) {
	n, _, err := p.d.DecodeUint()
	if err != nil {
		return 0, fmt.Errorf("%s length: %w", field, err)
	}
	left := p.r.Len()
	if uint64(n)*uint64(minSize) > uint64(left) {
		return 0, fmt.Errorf("%s length %d exceeds the %d bytes left", field, n, left)
	}
	return int(n), nil
}

func (p *payloadDecoder) uint32(field string) (uint32, error) {
	v, _, err := p.d.DecodeUint()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return v, nil
}

func (p *payloadDecoder) bool(field string) (bool, error) {
	v, _, err := p.d.DecodeBool()
	if err != nil {
		return false, fmt.Errorf("%s: %w", field, err)
	}
	return v, nil
}

func (p *payloadDecoder) int64(field string) (int64, error) {
	v, _, err := p.d.DecodeHyper()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return v, nil
}

func (p *payloadDecoder) float64(field string) (float64, error) {
	v, _, err := p.d.DecodeDouble()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return v, nil
}

// opaque reads variable-length bytes. An empty field decodes to nil.
func (p *payloadDecoder) opaque(field string) ([]byte, error) {
	n, err := p.length(field, 1)
	if err != nil || n == 0 {
		return nil, err
	}
	data, _, err := p.d.DecodeFixedOpaque(int32(n))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return data, nil
}

func (p *payloadDecoder) string(field string) (string, error) {
	data, err := p.opaque(field)
	return string(data), err
}

// strings reads a string array. An empty array decodes to nil.
func (p *payloadDecoder) strings(field string) ([]string, error) {
	n, err := p.length(field, minStringSize)
	if err != nil || n == 0 {
		return nil, err
	}
	out := make([]string, 0, min(n, initialListCap))
	for range n {
		s, err := p.string(field)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// value reads one Value at the given nesting depth (1 for a top-level
// value) and returns it canonicalized.
func (p *payloadDecoder) value(depth int) (message.Value, error) {
	if depth > maxValueDepth {
		return message.Value{}, fmt.Errorf("value nested deeper than %d levels", maxValueDepth)
	}

	raw, err := p.uint32("value kind")
	if err != nil {
		return message.Value{}, err
	}
	kind := message.Kind(raw)
	if kind > message.KindList {
		return message.Value{}, fmt.Errorf("unknown value kind %d", raw)
	}

	b, err := p.bool("bool value")
	if err != nil {
		return message.Value{}, err
	}
	i, err := p.int64("int value")
	if err != nil {
		return message.Value{}, err
	}
	f, err := p.float64("float value")
	if err != nil {
		return message.Value{}, err
	}
	s, err := p.string("string value")
	if err != nil {
		return message.Value{}, err
	}
	data, err := p.opaque("bytes value")
	if err != nil {
		return message.Value{}, err
	}
	items, err := p.values(depth + 1)
	if err != nil {
		return message.Value{}, err
	}

	// Fields that do not belong to kind were read only to stay in step
	// with the stream.
	switch kind {
	case message.KindBool:
		return message.BoolValue(b), nil
	case message.KindInt:
		return message.IntValue(i), nil
	case message.KindFloat:
		return message.FloatValue(f), nil
	case message.KindString:
		return message.StringValue(s), nil
	case message.KindBytes:
		return message.BytesValue(data), nil
	case message.KindList:
		return message.ListValue(items...), nil
	default:
		return message.Null(), nil
	}
}

// values reads a Value array whose elements sit at depth.
func (p *payloadDecoder) values(depth int) ([]message.Value, error) {
	n, err := p.length("list", minValueSize)
	if err != nil || n == 0 {
		return nil, err
	}
	out := make([]message.Value, 0, min(n, initialListCap))
	for range n {
		v, err := p.value(depth)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

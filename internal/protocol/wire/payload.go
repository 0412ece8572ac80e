package wire

import (
	"fmt"
	"io"
	"time"

	"github.com/marmos91/dittomx/internal/protocol/message"
	xdr "github.com/rasky/go-xdr/xdr2"
)

// ============================================================================
// Wire Structures
// ============================================================================

// payloadHeader opens every payload.
type payloadHeader struct {
	Tag uint32
	ID  string
}

type logonBody struct {
	Username    string
	Credentials []byte
}

type executeBody struct {
	Member    string
	Signature []string
	Params    []message.Value
}

type addListenerBody struct {
	ListenerID string
	Target     string
	Filter     []byte
}

type removeListenerBody struct {
	ListenerID string
	Target     string
}

// responseBody carries either a result or an error descriptor; Failed
// selects which.
type responseBody struct {
	Result       message.Value
	Failed       bool
	ErrorKind    string
	ErrorType    string
	ErrorMessage string
}

// notificationBody follows a header whose id is the listener id.
// Timestamp is Unix nanoseconds, 0 for the zero time.
type notificationBody struct {
	Type      string
	Source    string
	Sequence  int64
	Timestamp int64
	Message   string
	UserData  message.Value
}

// ============================================================================
// Encoding
// ============================================================================

func encodePayload(w io.Writer, msg message.Message) error {
	var id string
	var body any

	switch m := msg.(type) {
	case *message.Logon:
		id = m.ID
		body = &logonBody{Username: m.Username, Credentials: m.Credentials}
	case *message.Logoff:
		id = m.ID
	case *message.Execute:
		params := make([]message.Value, len(m.Params))
		for i, p := range m.Params {
			params[i] = canonicalValue(p)
		}
		id = m.ID
		body = &executeBody{Member: m.Member, Signature: m.Signature, Params: params}
	case *message.AddNotificationListener:
		id = m.ID
		body = &addListenerBody{ListenerID: m.ListenerID, Target: m.Target, Filter: m.Filter}
	case *message.RemoveNotificationListener:
		id = m.ID
		body = &removeListenerBody{ListenerID: m.ListenerID, Target: m.Target}
	case *message.Unknown:
		id = m.ID
	case *message.Response:
		rb := &responseBody{Result: canonicalValue(m.Result)}
		if m.Err != nil {
			rb.Result = message.Null()
			rb.Failed = true
			rb.ErrorKind = string(m.Err.Kind)
			rb.ErrorType = m.Err.Type
			rb.ErrorMessage = m.Err.Message
		}
		id = m.RequestID
		body = rb
	case *message.Notification:
		p := m.Payload
		nb := &notificationBody{
			Type:     p.Type,
			Source:   p.Source,
			Sequence: p.Sequence,
			Message:  p.Message,
			UserData: canonicalValue(p.UserData),
		}
		if !p.Timestamp.IsZero() {
			nb.Timestamp = p.Timestamp.UnixNano()
		}
		id = m.ListenerID
		body = nb
	default:
		return fmt.Errorf("unsupported message type %T", msg)
	}

	tag := msg.Tag()
	if u, ok := msg.(*message.Unknown); ok {
		tag = u.WireTag
	}

	header := payloadHeader{Tag: uint32(tag), ID: id}
	if _, err := xdr.Marshal(w, &header); err != nil {
		return fmt.Errorf("marshal header: %w", err)
	}
	if body == nil {
		return nil
	}
	if _, err := xdr.Marshal(w, body); err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	return nil
}

// ============================================================================
// Decoding
// ============================================================================

// decodePayload reads the fields of the wire structures above in their
// declared order.
func decodePayload(payload []byte) (message.Message, error) {
	p := newPayloadDecoder(payload)

	rawTag, err := p.uint32("tag")
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformed, err)
	}
	id, err := p.string("id")
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformed, err)
	}

	tag := message.Tag(rawTag)
	var msg message.Message
	switch tag {
	case message.TagLogon:
		msg, err = decodeLogon(p, id)
	case message.TagLogoff:
		msg = &message.Logoff{ID: id}
	case message.TagExecute:
		msg, err = decodeExecute(p, id)
	case message.TagAddNotificationListener:
		msg, err = decodeAddListener(p, id)
	case message.TagRemoveNotificationListener:
		msg, err = decodeRemoveListener(p, id)
	case message.TagResponse:
		msg, err = decodeResponse(p, id)
	case message.TagNotification:
		msg, err = decodeNotification(p, id)
	default:
		// Unknown tags still carry a readable id so the engine can answer
		// with UnknownRequest correlated to the right request.
		msg = &message.Unknown{ID: id, WireTag: tag}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s body: %v", ErrMalformed, tag, err)
	}
	return msg, nil
}

func decodeLogon(p *payloadDecoder, id string) (message.Message, error) {
	username, err := p.string("username")
	if err != nil {
		return nil, err
	}
	credentials, err := p.opaque("credentials")
	if err != nil {
		return nil, err
	}
	return &message.Logon{ID: id, Username: username, Credentials: credentials}, nil
}

func decodeExecute(p *payloadDecoder, id string) (message.Message, error) {
	member, err := p.string("member")
	if err != nil {
		return nil, err
	}
	signature, err := p.strings("signature")
	if err != nil {
		return nil, err
	}
	params, err := p.values(1)
	if err != nil {
		return nil, err
	}
	return &message.Execute{ID: id, Member: member, Signature: signature, Params: params}, nil
}

func decodeAddListener(p *payloadDecoder, id string) (message.Message, error) {
	listenerID, err := p.string("listener id")
	if err != nil {
		return nil, err
	}
	target, err := p.string("target")
	if err != nil {
		return nil, err
	}
	filter, err := p.opaque("filter")
	if err != nil {
		return nil, err
	}
	return &message.AddNotificationListener{
		ID:         id,
		ListenerID: listenerID,
		Target:     target,
		Filter:     filter,
	}, nil
}

func decodeRemoveListener(p *payloadDecoder, id string) (message.Message, error) {
	listenerID, err := p.string("listener id")
	if err != nil {
		return nil, err
	}
	target, err := p.string("target")
	if err != nil {
		return nil, err
	}
	return &message.RemoveNotificationListener{ID: id, ListenerID: listenerID, Target: target}, nil
}

func decodeResponse(p *payloadDecoder, id string) (message.Message, error) {
	result, err := p.value(1)
	if err != nil {
		return nil, err
	}
	failed, err := p.bool("failed")
	if err != nil {
		return nil, err
	}
	kind, err := p.string("error kind")
	if err != nil {
		return nil, err
	}
	errType, err := p.string("error type")
	if err != nil {
		return nil, err
	}
	errMessage, err := p.string("error message")
	if err != nil {
		return nil, err
	}

	if failed {
		return message.NewErrorResponse(id, &message.Error{
			Kind:    message.ErrorKind(kind),
			Type:    errType,
			Message: errMessage,
		}), nil
	}
	return message.NewResult(id, result), nil
}

func decodeNotification(p *payloadDecoder, listenerID string) (message.Message, error) {
	var np message.NotificationPayload
	var err error

	if np.Type, err = p.string("type"); err != nil {
		return nil, err
	}
	if np.Source, err = p.string("source"); err != nil {
		return nil, err
	}
	if np.Sequence, err = p.int64("sequence"); err != nil {
		return nil, err
	}
	timestamp, err := p.int64("timestamp")
	if err != nil {
		return nil, err
	}
	if np.Message, err = p.string("message"); err != nil {
		return nil, err
	}
	if np.UserData, err = p.value(1); err != nil {
		return nil, err
	}

	if timestamp != 0 {
		np.Timestamp = time.Unix(0, timestamp).UTC()
	}
	return &message.Notification{ListenerID: listenerID, Payload: np}, nil
}

// canonicalValue clears the fields that do not belong to v's kind so that
// only meaningful data is encoded.
func canonicalValue(v message.Value) message.Value {
	switch v.Kind {
	case message.KindBool:
		return message.BoolValue(v.Bool)
	case message.KindInt:
		return message.IntValue(v.Int)
	case message.KindFloat:
		return message.FloatValue(v.Float)
	case message.KindString:
		return message.StringValue(v.String)
	case message.KindBytes:
		return message.BytesValue(v.Bytes)
	case message.KindList:
		items := make([]message.Value, len(v.List))
		for i, item := range v.List {
			items[i] = canonicalValue(item)
		}
		return message.ListValue(items...)
	default:
		return message.Null()
	}
}

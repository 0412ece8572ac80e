// Package message defines the messages exchanged over a DittoMX connection.
//
// Every frame on the wire carries exactly one Message. Messages sent by a
// client are Requests (Logon, Logoff, Execute, AddNotificationListener,
// RemoveNotificationListener); the server answers each Request with exactly
// one Response and pushes Notifications out-of-band.
//
// Message is a closed set: the unexported marker method prevents other
// packages from adding variants, so a type switch over the variants listed
// here is exhaustive. Frames with a tag the decoder does not recognize are
// surfaced as *Unknown so that newer clients degrade to a rejected request
// instead of a decode failure.
package message

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Tag identifies the variant of a message on the wire.
type Tag uint32

const (
	TagUnknown                    Tag = 0
	TagLogon                      Tag = 1
	TagLogoff                     Tag = 2
	TagExecute                    Tag = 3
	TagAddNotificationListener    Tag = 4
	TagRemoveNotificationListener Tag = 5
	TagResponse                   Tag = 6
	TagNotification               Tag = 7
)

func (t Tag) String() string {
	switch t {
	case TagUnknown:
		return "UNKNOWN"
	case TagLogon:
		return "LOGON"
	case TagLogoff:
		return "LOGOFF"
	case TagExecute:
		return "EXECUTE"
	case TagAddNotificationListener:
		return "ADD_LISTENER"
	case TagRemoveNotificationListener:
		return "REMOVE_LISTENER"
	case TagResponse:
		return "RESPONSE"
	case TagNotification:
		return "NOTIFICATION"
	default:
		return fmt.Sprintf("TAG(%d)", uint32(t))
	}
}

// Message is implemented by every variant in this package.
type Message interface {
	// Tag returns the wire tag of the variant.
	Tag() Tag

	isMessage()
}

// Request is a Message sent by a client that expects exactly one Response.
type Request interface {
	Message

	// RequestID returns the identifier the Response must echo.
	RequestID() string
}

// NewRequestID returns a fresh request identifier.
func NewRequestID() string {
	return uuid.NewString()
}

// Logon asks the server to authenticate the connection.
//
// Credentials are opaque to the connection engine and are only interpreted
// by the configured authenticator.
type Logon struct {
	ID          string
	Username    string
	Credentials []byte
}

// NewLogon creates a Logon request with a fresh request id.
func NewLogon(username string, credentials []byte) *Logon {
	return &Logon{ID: NewRequestID(), Username: username, Credentials: credentials}
}

func (m *Logon) Tag() Tag          { return TagLogon }
func (m *Logon) RequestID() string { return m.ID }
func (*Logon) isMessage()          {}

func (m *Logon) String() string {
	return fmt.Sprintf("Logon[id=%s user=%s]", m.ID, m.Username)
}

// Logoff terminates the connection once the server has acknowledged it.
type Logoff struct {
	ID string
}

// NewLogoff creates a Logoff request with a fresh request id.
func NewLogoff() *Logoff {
	return &Logoff{ID: NewRequestID()}
}

func (m *Logoff) Tag() Tag          { return TagLogoff }
func (m *Logoff) RequestID() string { return m.ID }
func (*Logoff) isMessage()          {}

// Execute invokes a registry member.
//
// Member and Signature together select the operation (for example
// "getAttribute" with signature ["ObjectName", "string"]); Params holds one
// value per signature entry, in order.
type Execute struct {
	ID        string
	Member    string
	Signature []string
	Params    []Value
}

// NewExecute creates an Execute request with a fresh request id.
func NewExecute(member string, signature []string, params []Value) *Execute {
	return &Execute{ID: NewRequestID(), Member: member, Signature: signature, Params: params}
}

func (m *Execute) Tag() Tag          { return TagExecute }
func (m *Execute) RequestID() string { return m.ID }
func (*Execute) isMessage()          {}

func (m *Execute) String() string {
	return fmt.Sprintf("Execute[id=%s member=%s%v]", m.ID, m.Member, m.Signature)
}

// AddNotificationListener subscribes ListenerID to notifications emitted by
// the object named Target. Filter is an opaque blob; empty means no filter.
type AddNotificationListener struct {
	ID         string
	ListenerID string
	Target     string
	Filter     []byte
}

// NewAddNotificationListener creates a subscribe request with a fresh request id.
func NewAddNotificationListener(listenerID, target string, filter []byte) *AddNotificationListener {
	return &AddNotificationListener{ID: NewRequestID(), ListenerID: listenerID, Target: target, Filter: filter}
}

func (m *AddNotificationListener) Tag() Tag          { return TagAddNotificationListener }
func (m *AddNotificationListener) RequestID() string { return m.ID }
func (*AddNotificationListener) isMessage()          {}

// RemoveNotificationListener cancels a subscription made with
// AddNotificationListener.
type RemoveNotificationListener struct {
	ID         string
	ListenerID string
	Target     string
}

// NewRemoveNotificationListener creates an unsubscribe request with a fresh request id.
func NewRemoveNotificationListener(listenerID, target string) *RemoveNotificationListener {
	return &RemoveNotificationListener{ID: NewRequestID(), ListenerID: listenerID, Target: target}
}

func (m *RemoveNotificationListener) Tag() Tag          { return TagRemoveNotificationListener }
func (m *RemoveNotificationListener) RequestID() string { return m.ID }
func (*RemoveNotificationListener) isMessage()          {}

// Unknown is a request whose tag was not recognized.
//
// WireTag holds the tag found on the wire; it is TagUnknown when a client
// explicitly sends an unknown request.
type Unknown struct {
	ID      string
	WireTag Tag
}

// NewUnknown creates an Unknown request with a fresh request id.
func NewUnknown() *Unknown {
	return &Unknown{ID: NewRequestID(), WireTag: TagUnknown}
}

func (m *Unknown) Tag() Tag          { return TagUnknown }
func (m *Unknown) RequestID() string { return m.ID }
func (*Unknown) isMessage()          {}

// Response answers a single Request.
//
// Err is nil on success, in which case Result holds the outcome (the null
// value for operations without a result). Response is not a Request.
type Response struct {
	RequestID string
	Result    Value
	Err       *Error
}

// NewResult creates a successful Response.
func NewResult(requestID string, result Value) *Response {
	return &Response{RequestID: requestID, Result: result}
}

// NewErrorResponse creates a failed Response.
func NewErrorResponse(requestID string, err *Error) *Response {
	return &Response{RequestID: requestID, Err: err}
}

func (m *Response) Tag() Tag { return TagResponse }
func (*Response) isMessage() {}

func (m *Response) String() string {
	if m.Err != nil {
		return fmt.Sprintf("Response[requestId=%s error=%s]", m.RequestID, m.Err.Kind)
	}
	return fmt.Sprintf("Response[requestId=%s result=%s]", m.RequestID, m.Result.Kind)
}

// NotificationPayload is the event delivered to a subscribed listener.
type NotificationPayload struct {
	Type      string
	Source    string
	Sequence  int64
	Timestamp time.Time
	Message   string
	UserData  Value
}

// Notification carries an event for a client-chosen listener id.
// It is not correlated with any request.
type Notification struct {
	ListenerID string
	Payload    NotificationPayload
}

func (m *Notification) Tag() Tag { return TagNotification }
func (*Notification) isMessage() {}

func (m *Notification) String() string {
	return fmt.Sprintf("Notification[listener=%s type=%s seq=%d]",
		m.ListenerID, m.Payload.Type, m.Payload.Sequence)
}

// Parameter type names used in Execute signatures.
const (
	TypeObjectName = "ObjectName"
	TypeString     = "string"
	TypeAny        = "any"
	TypeList       = "[]any"
)

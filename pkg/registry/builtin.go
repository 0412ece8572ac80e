package registry

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittomx/internal/protocol/message"
)

// Names of the objects every DittoMX server registers.
var (
	RuntimeObjectName = MustParseObjectName("dittomx:type=Runtime")
	ServerObjectName  = MustParseObjectName("dittomx:type=Server")
)

// Notification types emitted by the built-in objects.
const (
	NotificationConnectionOpened = "connection.opened"
	NotificationConnectionClosed = "connection.closed"
	NotificationAttributeChange  = "attribute.change"
)

// PropertiesObjectName returns the name of the properties object called name.
func PropertiesObjectName(name string) (ObjectName, error) {
	return ParseObjectName("dittomx:type=Properties,name=" + name)
}

// ============================================================================
// Runtime
// ============================================================================

// NewRuntimeObject exposes process-level information about the server.
func NewRuntimeObject(startTime time.Time) *StandardObject {
	obj := NewStandardObject("Go runtime of the DittoMX process")

	obj.WithAttribute(Attribute{
		Info: AttributeInfo{Name: "StartTime", Type: "string", Description: "Process start time (RFC 3339)"},
		Get: func(context.Context) (any, error) {
			return startTime.UTC().Format(time.RFC3339), nil
		},
	})
	obj.WithAttribute(Attribute{
		Info: AttributeInfo{Name: "UptimeSeconds", Type: "int", Description: "Seconds since start"},
		Get: func(context.Context) (any, error) {
			return int64(time.Since(startTime) / time.Second), nil
		},
	})
	obj.WithAttribute(Attribute{
		Info: AttributeInfo{Name: "GoVersion", Type: "string"},
		Get: func(context.Context) (any, error) {
			return runtime.Version(), nil
		},
	})
	obj.WithAttribute(Attribute{
		Info: AttributeInfo{Name: "NumGoroutine", Type: "int"},
		Get: func(context.Context) (any, error) {
			return runtime.NumGoroutine(), nil
		},
	})
	obj.WithAttribute(Attribute{
		Info: AttributeInfo{Name: "NumCPU", Type: "int"},
		Get: func(context.Context) (any, error) {
			return runtime.NumCPU(), nil
		},
	})
	obj.WithAttribute(Attribute{
		Info: AttributeInfo{Name: "HeapAllocBytes", Type: "int", Description: "Bytes of allocated heap objects"},
		Get: func(context.Context) (any, error) {
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			return ms.HeapAlloc, nil
		},
	})

	obj.WithOperation(Operation{
		Info: OperationInfo{Name: "gc", ReturnType: "null", Description: "Run a garbage collection"},
		Invoke: func(context.Context, []any) (any, error) {
			runtime.GC()
			return nil, nil
		},
	})

	return obj
}

// ============================================================================
// Server
// ============================================================================

// ServerObject tracks client connections and announces them as
// notifications. Adapters report to it through ConnectionOpened and
// ConnectionClosed.
type ServerObject struct {
	*StandardObject

	active atomic.Int64
	total  atomic.Int64
}

// NewServerObject creates the server object.
func NewServerObject(version string) *ServerObject {
	s := &ServerObject{StandardObject: NewStandardObject("DittoMX server connections")}

	s.WithAttribute(Attribute{
		Info: AttributeInfo{Name: "Version", Type: "string"},
		Get:  func(context.Context) (any, error) { return version, nil },
	})
	s.WithAttribute(Attribute{
		Info: AttributeInfo{Name: "ActiveConnections", Type: "int"},
		Get:  func(context.Context) (any, error) { return s.active.Load(), nil },
	})
	s.WithAttribute(Attribute{
		Info: AttributeInfo{Name: "TotalConnections", Type: "int", Description: "Connections accepted since start"},
		Get:  func(context.Context) (any, error) { return s.total.Load(), nil },
	})
	s.WithNotifications(NotificationInfo{
		Types:       []string{NotificationConnectionOpened, NotificationConnectionClosed},
		Description: "Emitted when a client connects or disconnects; user data is the connection id",
	})

	return s
}

// ConnectionOpened records a new connection.
func (s *ServerObject) ConnectionOpened(connectionID, remoteAddr string) {
	s.active.Add(1)
	s.total.Add(1)
	s.Emit(Notification{
		Type:     NotificationConnectionOpened,
		Source:   ServerObjectName,
		Message:  fmt.Sprintf("connection %s opened from %s", connectionID, remoteAddr),
		UserData: connectionID,
	})
}

// ConnectionClosed records the end of a connection.
func (s *ServerObject) ConnectionClosed(connectionID string) {
	s.active.Add(-1)
	s.Emit(Notification{
		Type:     NotificationConnectionClosed,
		Source:   ServerObjectName,
		Message:  fmt.Sprintf("connection %s closed", connectionID),
		UserData: connectionID,
	})
}

// ============================================================================
// Properties
// ============================================================================

// PropertyDef defines one attribute of a properties object.
type PropertyDef struct {
	Name        string
	Default     any
	Writable    bool
	Description string
}

// NewPropertiesObject creates a bag of named values. Writable values are
// persisted in store and announced with an attribute.change notification
// whose user data is [attribute, old value, new value].
//
// Written values must have the same type as the default (integer and float
// widths are normalized to int64 and float64). The reset(attribute)
// operation restores the default.
func NewPropertiesObject(name ObjectName, defs []PropertyDef, store AttributeStore) (*StandardObject, error) {
	obj := NewStandardObject("Configurable properties")
	object := name.String()

	defaults := make(map[string]any, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			return nil, fmt.Errorf("%s: property with empty name", object)
		}
		if _, dup := defaults[def.Name]; dup {
			return nil, fmt.Errorf("%s: duplicate property %q", object, def.Name)
		}
		defaultValue, err := normalizeValue(def.Default)
		if err != nil {
			return nil, fmt.Errorf("%s: property %q: %w", object, def.Name, err)
		}
		defaults[def.Name] = defaultValue
	}

	current := func(ctx context.Context, attribute string) (any, error) {
		v, found, err := store.Load(ctx, object, attribute)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", attribute, err)
		}
		if !found {
			return defaults[attribute], nil
		}
		return v, nil
	}

	emitChange := func(attribute string, oldValue, newValue any) {
		obj.Emit(Notification{
			Type:     NotificationAttributeChange,
			Source:   name,
			Message:  fmt.Sprintf("%s changed", attribute),
			UserData: []any{attribute, oldValue, newValue},
		})
	}

	for _, def := range defs {
		attribute := def.Name
		defaultValue := defaults[attribute]

		attr := Attribute{
			Info: AttributeInfo{Name: attribute, Type: typeName(defaultValue), Description: def.Description},
			Get: func(ctx context.Context) (any, error) {
				return current(ctx, attribute)
			},
		}

		if def.Writable {
			attr.Set = func(ctx context.Context, value any) error {
				normalized, err := normalizeValue(value)
				if err != nil {
					return fmt.Errorf("attribute %q: %w", attribute, err)
				}
				if defaultValue != nil && typeName(normalized) != typeName(defaultValue) {
					return fmt.Errorf("attribute %q expects %s, got %s",
						attribute, typeName(defaultValue), typeName(normalized))
				}

				oldValue, err := current(ctx, attribute)
				if err != nil {
					return err
				}
				if err := store.Save(ctx, object, attribute, normalized); err != nil {
					return fmt.Errorf("save %s: %w", attribute, err)
				}
				emitChange(attribute, oldValue, normalized)
				return nil
			}
		}

		obj.WithAttribute(attr)
	}

	obj.WithOperation(Operation{
		Info: OperationInfo{
			Name:        "reset",
			Params:      []string{"string"},
			ReturnType:  "null",
			Description: "Restore an attribute to its default value",
		},
		Invoke: func(ctx context.Context, params []any) (any, error) {
			attribute, ok := params[0].(string)
			if !ok {
				return nil, fmt.Errorf("reset expects an attribute name, got %T", params[0])
			}
			defaultValue, known := defaults[attribute]
			if !known {
				return nil, fmt.Errorf("attribute %q: %w", attribute, ErrMemberNotFound)
			}

			oldValue, err := current(ctx, attribute)
			if err != nil {
				return nil, err
			}
			if err := store.Delete(ctx, object, attribute); err != nil {
				return nil, fmt.Errorf("reset %s: %w", attribute, err)
			}
			emitChange(attribute, oldValue, defaultValue)
			return nil, nil
		},
	})

	obj.WithNotifications(NotificationInfo{
		Types:       []string{NotificationAttributeChange},
		Description: "Emitted when a property is written or reset",
	})

	return obj, nil
}

// normalizeValue maps v onto the canonical Go types of the wire model.
func normalizeValue(v any) (any, error) {
	value, err := message.FromAny(v)
	if err != nil {
		return nil, err
	}
	return value.Any(), nil
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case int64:
		return "int"
	case float64:
		return "float"
	case string:
		return "string"
	case []byte:
		return "bytes"
	case []any:
		return "list"
	default:
		return fmt.Sprintf("%T", v)
	}
}

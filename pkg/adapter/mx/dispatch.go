package mx

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/marmos91/dittomx/internal/protocol/message"
	"github.com/marmos91/dittomx/pkg/registry"
)

// member is one Execute operation of the registry port.
type member struct {
	name      string
	signature []string
	call      func(ctx context.Context, reg registry.Registry, args arguments) (message.Value, error)
}

// executeTable maps "member(signature)" to the registry call it performs.
var executeTable = map[string]member{}

// knownMembers holds the member names of executeTable, for metric labels.
var knownMembers = map[string]bool{}

func init() {
	for _, m := range []member{
		{
			name:      "getAttribute",
			signature: []string{message.TypeObjectName, message.TypeString},
			call: func(ctx context.Context, reg registry.Registry, args arguments) (message.Value, error) {
				v, err := reg.GetAttribute(ctx, args.name(0), args.str(1))
				if err != nil {
					return message.Value{}, err
				}
				return resultValue(v)
			},
		},
		{
			name:      "setAttribute",
			signature: []string{message.TypeObjectName, message.TypeString, message.TypeAny},
			call: func(ctx context.Context, reg registry.Registry, args arguments) (message.Value, error) {
				return message.Null(), reg.SetAttribute(ctx, args.name(0), args.str(1), args.value(2))
			},
		},
		{
			name:      "invoke",
			signature: []string{message.TypeObjectName, message.TypeString, message.TypeList},
			call: func(ctx context.Context, reg registry.Registry, args arguments) (message.Value, error) {
				v, err := reg.Invoke(ctx, args.name(0), args.str(1), args.list(2))
				if err != nil {
					return message.Value{}, err
				}
				return resultValue(v)
			},
		},
		{
			name:      "isRegistered",
			signature: []string{message.TypeObjectName},
			call: func(ctx context.Context, reg registry.Registry, args arguments) (message.Value, error) {
				return message.BoolValue(reg.IsRegistered(ctx, args.name(0))), nil
			},
		},
		{
			name:      "queryNames",
			signature: []string{message.TypeObjectName},
			call: func(ctx context.Context, reg registry.Registry, args arguments) (message.Value, error) {
				names, err := reg.QueryNames(ctx, args.name(0))
				if err != nil {
					return message.Value{}, err
				}
				out := make([]string, len(names))
				for i, n := range names {
					out[i] = n.String()
				}
				return message.StringList(out), nil
			},
		},
		{
			name:      "describe",
			signature: []string{message.TypeObjectName},
			call: func(ctx context.Context, reg registry.Registry, args arguments) (message.Value, error) {
				info, err := reg.Describe(ctx, args.name(0))
				if err != nil {
					return message.Value{}, err
				}
				return describeValue(info), nil
			},
		},
		{
			name: "getDomains",
			call: func(ctx context.Context, reg registry.Registry, _ arguments) (message.Value, error) {
				return message.StringList(reg.Domains(ctx)), nil
			},
		},
		{
			name: "getObjectCount",
			call: func(ctx context.Context, reg registry.Registry, _ arguments) (message.Value, error) {
				return message.IntValue(int64(reg.ObjectCount(ctx))), nil
			},
		},
	} {
		executeTable[memberKey(m.name, m.signature)] = m
		knownMembers[m.name] = true
	}
}

func memberKey(name string, signature []string) string {
	return name + "(" + strings.Join(signature, ",") + ")"
}

// handleExecute resolves and runs an Execute request.
func (c *Connection) handleExecute(ctx context.Context, m *message.Execute) *message.Response {
	op, ok := executeTable[memberKey(m.Member, m.Signature)]
	if !ok {
		return message.NewErrorResponse(m.ID,
			message.NewError(message.KindMemberNotFound, "no member %s", memberKey(m.Member, m.Signature)))
	}

	result, err := c.execute(ctx, op, m.Params)
	if err != nil {
		return message.NewErrorResponse(m.ID, describeError(err))
	}
	return message.NewResult(m.ID, result)
}

// execute decodes the parameters and calls the registry. Registry panics
// are returned as errors.
func (c *Connection) execute(ctx context.Context, op member, params []message.Value) (result message.Value, err error) {
	args, err := decodeArguments(op.signature, params)
	if err != nil {
		return message.Value{}, err
	}

	defer func() {
		if r := recover(); r != nil {
			result, err = message.Value{}, &panicError{value: r}
		}
	}()

	return op.call(ctx, c.registry, args)
}

// arguments holds the decoded Execute parameters, one per signature entry.
type arguments []any

func (a arguments) name(i int) registry.ObjectName { return a[i].(registry.ObjectName) }
func (a arguments) str(i int) string               { return a[i].(string) }
func (a arguments) value(i int) any                { return a[i] }
func (a arguments) list(i int) []any {
	if a[i] == nil {
		return nil
	}
	return a[i].([]any)
}

// ParameterError reports an Execute parameter that does not match its
// signature entry.
type ParameterError struct {
	Index    int
	Expected string
	Got      message.Kind
	Err      error
}

func (e *ParameterError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parameter %d (%s): %v", e.Index, e.Expected, e.Err)
	}
	return fmt.Sprintf("parameter %d: expected %s, got %s", e.Index, e.Expected, e.Got)
}

func (e *ParameterError) Unwrap() error { return e.Err }

func decodeArguments(signature []string, params []message.Value) (arguments, error) {
	if len(params) != len(signature) {
		return nil, fmt.Errorf("expected %d parameter(s), got %d", len(signature), len(params))
	}

	args := make(arguments, len(params))
	for i, p := range params {
		switch signature[i] {
		case message.TypeObjectName:
			if p.Kind != message.KindString {
				return nil, &ParameterError{Index: i, Expected: message.TypeObjectName, Got: p.Kind}
			}
			name, err := registry.ParseObjectName(p.String)
			if err != nil {
				return nil, &ParameterError{Index: i, Expected: message.TypeObjectName, Got: p.Kind, Err: err}
			}
			args[i] = name
		case message.TypeString:
			if p.Kind != message.KindString {
				return nil, &ParameterError{Index: i, Expected: message.TypeString, Got: p.Kind}
			}
			args[i] = p.String
		case message.TypeList:
			if p.Kind != message.KindList && p.Kind != message.KindNull {
				return nil, &ParameterError{Index: i, Expected: message.TypeList, Got: p.Kind}
			}
			args[i] = p.Any()
		default:
			args[i] = p.Any()
		}
	}
	return args, nil
}

// resultValue converts a registry result for the wire.
func resultValue(v any) (message.Value, error) {
	value, err := message.FromAny(v)
	if err != nil {
		return message.Value{}, fmt.Errorf("result not transferable: %w", err)
	}
	return value, nil
}

// describeValue renders object metadata as
// [name, description, attributes, operations, notifications] where
//
//	attributes    = [[name, type, description, writable], ...]
//	operations    = [[name, [param types], return type, description], ...]
//	notifications = [[[types], description], ...]
func describeValue(info *registry.ObjectInfo) message.Value {
	attrs := make([]message.Value, 0, len(info.Attributes))
	for _, a := range info.Attributes {
		attrs = append(attrs, message.ListValue(
			message.StringValue(a.Name),
			message.StringValue(a.Type),
			message.StringValue(a.Description),
			message.BoolValue(a.Writable),
		))
	}

	ops := make([]message.Value, 0, len(info.Operations))
	for _, o := range info.Operations {
		ops = append(ops, message.ListValue(
			message.StringValue(o.Name),
			message.StringList(o.Params),
			message.StringValue(o.ReturnType),
			message.StringValue(o.Description),
		))
	}

	notifs := make([]message.Value, 0, len(info.Notifications))
	for _, n := range info.Notifications {
		notifs = append(notifs, message.ListValue(
			message.StringList(n.Types),
			message.StringValue(n.Description),
		))
	}

	return message.ListValue(
		message.StringValue(info.Name.String()),
		message.StringValue(info.Description),
		message.ListValue(attrs...),
		message.ListValue(ops...),
		message.ListValue(notifs...),
	)
}

// panicError carries a value recovered from a registry call.
type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// describeError maps a failure to the descriptor sent to the client.
func describeError(err error) *message.Error {
	var descriptor *message.Error
	switch {
	case errors.As(err, &descriptor):
		return descriptor
	case errors.Is(err, registry.ErrTargetNotFound):
		return message.WrapError(message.KindTargetNotFound, err)
	case errors.Is(err, registry.ErrMemberNotFound):
		return message.WrapError(message.KindMemberNotFound, err)
	case errors.Is(err, registry.ErrListenerNotFound):
		return message.WrapError(message.KindListenerNotFound, err)
	default:
		return message.WrapError(message.KindInvocationFailure, err)
	}
}

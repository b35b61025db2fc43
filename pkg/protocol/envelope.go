package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"

	pkgerrors "graphscape/pkg/errors"
)

// Action is the CRUD verb of an action request. Values match the wire enum.
type Action int32

const (
	ActionCreate Action = 0
	ActionRead   Action = 1
	ActionUpdate Action = 2
	ActionDelete Action = 3
)

// String returns the upper-case name of the action
func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "CREATE"
	case ActionRead:
		return "READ"
	case ActionUpdate:
		return "UPDATE"
	case ActionDelete:
		return "DELETE"
	default:
		return fmt.Sprintf("Action(%d)", int32(a))
	}
}

// IsValid checks if the action is a known enum value
func (a Action) IsValid() bool {
	return a >= ActionCreate && a <= ActionDelete
}

// ParseAction parses an action name, case-insensitively
func ParseAction(s string) (Action, error) {
	for _, a := range []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete} {
		if strings.EqualFold(a.String(), strings.TrimSpace(s)) {
			return a, nil
		}
	}
	return 0, pkgerrors.NewValidationError(fmt.Sprintf("unknown action '%s'", s))
}

// Payload is the closed set of values an envelope can carry.
// The same variants serve as request payloads and response results.
type Payload interface {
	fieldNumber() protowire.Number
	isPayload()
}

type (
	StringPayload string
	NumberPayload float64
	BoolPayload   bool
	BytesPayload  []byte
	JSONPayload   string
)

// Field numbers of the payload and result oneofs
const (
	fieldStringPayload protowire.Number = 3
	fieldNumberPayload protowire.Number = 4
	fieldBoolPayload   protowire.Number = 5
	fieldBytesPayload  protowire.Number = 6
	fieldJSONPayload   protowire.Number = 7
)

func (StringPayload) fieldNumber() protowire.Number { return fieldStringPayload }
func (NumberPayload) fieldNumber() protowire.Number { return fieldNumberPayload }
func (BoolPayload) fieldNumber() protowire.Number   { return fieldBoolPayload }
func (BytesPayload) fieldNumber() protowire.Number  { return fieldBytesPayload }
func (JSONPayload) fieldNumber() protowire.Number   { return fieldJSONPayload }

func (StringPayload) isPayload() {}
func (NumberPayload) isPayload() {}
func (BoolPayload) isPayload()   {}
func (BytesPayload) isPayload()  {}
func (JSONPayload) isPayload()   {}

// PayloadKind names the populated variant, or "none"
func PayloadKind(p Payload) string {
	switch p.(type) {
	case StringPayload:
		return "string"
	case NumberPayload:
		return "number"
	case BoolPayload:
		return "boolean"
	case BytesPayload:
		return "bytes"
	case JSONPayload:
		return "json"
	default:
		return "none"
	}
}

// PayloadsEqual compares two payloads by variant and value
func PayloadsEqual(a, b Payload) bool {
	if ab, ok := a.(BytesPayload); ok {
		bb, ok := b.(BytesPayload)
		return ok && bytes.Equal(ab, bb)
	}
	return a == b
}

func checkPayload(p Payload) error {
	if raw, ok := p.(JSONPayload); ok && !json.Valid([]byte(raw)) {
		return pkgerrors.NewMalformedEnvelopeError("json payload is not valid JSON")
	}
	return nil
}

func encodePayload(e *encoder, p Payload) {
	switch v := p.(type) {
	case StringPayload:
		e.stringField(fieldStringPayload, string(v), true)
	case NumberPayload:
		e.doubleField(fieldNumberPayload, float64(v), true)
	case BoolPayload:
		e.boolField(fieldBoolPayload, bool(v), true)
	case BytesPayload:
		e.bytesField(fieldBytesPayload, v, true)
	case JSONPayload:
		e.stringField(fieldJSONPayload, string(v), true)
	}
}

// decodePayload returns the payload carried by f, or nil if f is not a payload field
func decodePayload(f field) (Payload, error) {
	switch f.num {
	case fieldStringPayload:
		s, err := f.asString()
		return StringPayload(s), err
	case fieldNumberPayload:
		d, err := f.asDouble()
		return NumberPayload(d), err
	case fieldBoolPayload:
		b, err := f.asBool()
		return BoolPayload(b), err
	case fieldBytesPayload:
		b, err := f.asBytes()
		return BytesPayload(b), err
	case fieldJSONPayload:
		s, err := f.asString()
		return JSONPayload(s), err
	}
	return nil, nil
}

// ActionRequest carries exactly one action and at most one payload
type ActionRequest struct {
	action     Action
	objectName *string
	payload    Payload
}

// RequestOption configures an ActionRequest under construction
type RequestOption func(*ActionRequest) error

// WithObjectName sets the target object class
func WithObjectName(name string) RequestOption {
	return func(r *ActionRequest) error {
		r.objectName = &name
		return nil
	}
}

// WithPayload sets the payload. Setting a second payload fails construction.
func WithPayload(p Payload) RequestOption {
	return func(r *ActionRequest) error {
		if p == nil {
			return nil
		}
		if r.payload != nil {
			return pkgerrors.NewMalformedEnvelopeError(fmt.Sprintf(
				"request already carries a %s payload, cannot add %s", PayloadKind(r.payload), PayloadKind(p)))
		}
		if err := checkPayload(p); err != nil {
			return err
		}
		r.payload = p
		return nil
	}
}

// NewActionRequest builds a request, failing fast on envelope misuse
func NewActionRequest(action Action, opts ...RequestOption) (*ActionRequest, error) {
	if !action.IsValid() {
		return nil, pkgerrors.NewMalformedEnvelopeError(fmt.Sprintf("unknown action %d", int32(action)))
	}
	r := &ActionRequest{action: action}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Action returns the request verb
func (r *ActionRequest) Action() Action {
	return r.action
}

// ObjectName returns the target object class and whether it is set
func (r *ActionRequest) ObjectName() (string, bool) {
	if r.objectName == nil {
		return "", false
	}
	return *r.objectName, true
}

// Payload returns the payload, or nil when none is set
func (r *ActionRequest) Payload() Payload {
	return r.payload
}

// MarshalWire encodes the request
func (r *ActionRequest) MarshalWire() ([]byte, error) {
	var e encoder
	e.enumField(1, int32(r.action))
	if r.objectName != nil {
		e.stringField(2, *r.objectName, true)
	}
	encodePayload(&e, r.payload)
	return e.buf, nil
}

// UnmarshalWire decodes a request, rejecting two payload variants
func (r *ActionRequest) UnmarshalWire(b []byte) error {
	*r = ActionRequest{}
	payload := oneof{name: "payload"}
	return readFields(b, func(f field) error {
		switch f.num {
		case 1:
			v, err := f.asEnum()
			r.action = Action(v)
			return err
		case 2:
			s, err := f.asString()
			r.objectName = &s
			return err
		case fieldStringPayload, fieldNumberPayload, fieldBoolPayload, fieldBytesPayload, fieldJSONPayload:
			if err := payload.claim(f.num); err != nil {
				return err
			}
			p, err := decodePayload(f)
			r.payload = p
			return err
		}
		return nil
	})
}

// ActionResponse reports the outcome of an action request
type ActionResponse struct {
	Status  bool
	Message string
	Result  Payload
}

// NewSuccessResponse builds a successful response
func NewSuccessResponse(message string, result Payload) (*ActionResponse, error) {
	if result != nil {
		if err := checkPayload(result); err != nil {
			return nil, err
		}
	}
	return &ActionResponse{Status: true, Message: message, Result: result}, nil
}

// NewFailureResponse builds a failed response; the message is mandatory
func NewFailureResponse(message string) (*ActionResponse, error) {
	if message == "" {
		return nil, pkgerrors.NewMalformedEnvelopeError("failed response requires a message")
	}
	return &ActionResponse{Status: false, Message: message}, nil
}

// Err returns a RemoteFailure error when the response reports failure
func (r *ActionResponse) Err() error {
	if r.Status {
		return nil
	}
	return pkgerrors.NewRemoteFailureError(r.Message)
}

// Value returns the result of a successful response. Results of failed
// responses are ignored.
func (r *ActionResponse) Value() (Payload, error) {
	if err := r.Err(); err != nil {
		return nil, err
	}
	return r.Result, nil
}

// MarshalWire encodes the response
func (r *ActionResponse) MarshalWire() ([]byte, error) {
	if !r.Status && r.Message == "" {
		return nil, pkgerrors.NewMalformedEnvelopeError("failed response requires a message")
	}
	var e encoder
	e.boolField(1, r.Status, false)
	e.stringField(2, r.Message, false)
	encodePayload(&e, r.Result)
	return e.buf, nil
}

// UnmarshalWire decodes a response. A failed response without a message is malformed.
func (r *ActionResponse) UnmarshalWire(b []byte) error {
	*r = ActionResponse{}
	result := oneof{name: "result"}
	err := readFields(b, func(f field) error {
		switch f.num {
		case 1:
			v, err := f.asBool()
			r.Status = v
			return err
		case 2:
			s, err := f.asString()
			r.Message = s
			return err
		case fieldStringPayload, fieldNumberPayload, fieldBoolPayload, fieldBytesPayload, fieldJSONPayload:
			if err := result.claim(f.num); err != nil {
				return err
			}
			p, err := decodePayload(f)
			r.Result = p
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !r.Status && r.Message == "" {
		return pkgerrors.NewMalformedEnvelopeError("failed response carries no message")
	}
	return nil
}

package protocol

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	pkgerrors "graphscape/pkg/errors"
)

// encoder appends proto3 fields. Scalar fields with implicit presence are
// skipped when zero unless forced, which oneof members and optional fields are.
type encoder struct {
	buf []byte
}

func (e *encoder) stringField(num protowire.Number, v string, force bool) {
	if v == "" && !force {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendString(e.buf, v)
}

func (e *encoder) bytesField(num protowire.Number, v []byte, force bool) {
	if len(v) == 0 && !force {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendBytes(e.buf, v)
}

func (e *encoder) varintField(num protowire.Number, v uint64, force bool) {
	if v == 0 && !force {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.VarintType)
	e.buf = protowire.AppendVarint(e.buf, v)
}

func (e *encoder) int64Field(num protowire.Number, v int64, force bool) {
	e.varintField(num, uint64(v), force)
}

func (e *encoder) enumField(num protowire.Number, v int32) {
	e.varintField(num, uint64(int64(v)), false)
}

func (e *encoder) boolField(num protowire.Number, v bool, force bool) {
	e.varintField(num, protowire.EncodeBool(v), force)
}

func (e *encoder) doubleField(num protowire.Number, v float64, force bool) {
	if v == 0 && !math.Signbit(v) && !force {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.Fixed64Type)
	e.buf = protowire.AppendFixed64(e.buf, math.Float64bits(v))
}

// messageField always writes the field, so an empty message still marks presence
func (e *encoder) messageField(num protowire.Number, encode func(*encoder)) {
	var sub encoder
	encode(&sub)
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendBytes(e.buf, sub.buf)
}

// field is one decoded tag/value pair
type field struct {
	num    protowire.Number
	typ    protowire.Type
	varint uint64
	fixed  uint64
	bytes  []byte
}

func malformed(format string, args ...interface{}) error {
	return pkgerrors.NewMalformedEnvelopeError(fmt.Sprintf(format, args...))
}

// readFields walks a message and calls visit for each field. Groups are skipped.
func readFields(b []byte, visit func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return malformed("invalid tag: %v", protowire.ParseError(n))
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			f.fixed, n = protowire.ConsumeFixed64(b)
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(b)
			f.fixed = uint64(v)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return malformed("field %d: %v", num, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		if n < 0 {
			return malformed("field %d: %v", num, protowire.ParseError(n))
		}
		b = b[n:]

		if err := visit(f); err != nil {
			return err
		}
	}
	return nil
}

func (f field) expect(typ protowire.Type) error {
	if f.typ != typ {
		return malformed("field %d: unexpected wire type %d", f.num, f.typ)
	}
	return nil
}

func (f field) asString() (string, error) {
	if err := f.expect(protowire.BytesType); err != nil {
		return "", err
	}
	return string(f.bytes), nil
}

func (f field) asBytes() ([]byte, error) {
	if err := f.expect(protowire.BytesType); err != nil {
		return nil, err
	}
	return append([]byte{}, f.bytes...), nil
}

func (f field) asMessage() ([]byte, error) {
	if err := f.expect(protowire.BytesType); err != nil {
		return nil, err
	}
	return f.bytes, nil
}

func (f field) asBool() (bool, error) {
	if err := f.expect(protowire.VarintType); err != nil {
		return false, err
	}
	return protowire.DecodeBool(f.varint), nil
}

func (f field) asInt64() (int64, error) {
	if err := f.expect(protowire.VarintType); err != nil {
		return 0, err
	}
	return int64(f.varint), nil
}

func (f field) asEnum() (int32, error) {
	if err := f.expect(protowire.VarintType); err != nil {
		return 0, err
	}
	return int32(f.varint), nil
}

func (f field) asDouble() (float64, error) {
	if err := f.expect(protowire.Fixed64Type); err != nil {
		return 0, err
	}
	return math.Float64frombits(f.fixed), nil
}

// oneof records which member of a oneof has been seen while decoding
type oneof struct {
	name string
	set  protowire.Number
}

// claim rejects a second, different member of the same oneof
func (o *oneof) claim(num protowire.Number) error {
	if o.set != 0 && o.set != num {
		return malformed("oneof %s has fields %d and %d set", o.name, o.set, num)
	}
	o.set = num
	return nil
}

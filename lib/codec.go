package lib

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

/*
	This file implements the wire codec for the node. Messages are encoded in the
	protobuf wire format by hand: each message type appends its own numbered fields
	and parses them back with the field walker below, so the on-wire bytes stay
	compatible with any protoc-generated reader of the same schema.
*/

// MessageI is implemented by every wire message in the module
type MessageI interface {
	AppendWire(buf []byte) []byte // appends the message's encoded fields to buf
	ParseWire(data []byte) ErrorI // populates the message from encoded bytes
}

// Marshal() serializes a wire message into bytes
func Marshal(m MessageI) ([]byte, ErrorI) {
	if m == nil {
		return nil, ErrMarshal(fmt.Errorf("nil message"))
	}
	return m.AppendWire(nil), nil
}

// Unmarshal() populates a wire message from bytes
func Unmarshal(data []byte, m MessageI) ErrorI {
	if m == nil {
		return ErrUnmarshal(fmt.Errorf("nil message"))
	}
	return m.ParseWire(data)
}

// AppendUint() appends a varint field; zero values are omitted like proto3
func AppendUint(buf []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return buf
	}
	buf = protowire.AppendTag(buf, num, protowire.VarintType)
	return protowire.AppendVarint(buf, v)
}

// AppendBytes() appends a length-delimited field; empty values are omitted like proto3
func AppendBytes(buf []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return buf
	}
	buf = protowire.AppendTag(buf, num, protowire.BytesType)
	return protowire.AppendBytes(buf, v)
}

// AppendString() appends a string field; empty values are omitted like proto3
func AppendString(buf []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return buf
	}
	buf = protowire.AppendTag(buf, num, protowire.BytesType)
	return protowire.AppendString(buf, v)
}

// AppendEmbedded() appends a submessage as a length-delimited field; unlike the
// scalar helpers an empty submessage is still written, so 'present but empty'
// repeated elements survive a round trip
func AppendEmbedded(buf []byte, num protowire.Number, m MessageI) []byte {
	buf = protowire.AppendTag(buf, num, protowire.BytesType)
	return protowire.AppendBytes(buf, m.AppendWire(nil))
}

// RangeFields() walks the top-level fields of an encoded buffer and hands each
// decoded value to visit; unknown fields are skipped by the visitor doing nothing
func RangeFields(data []byte, visit func(num protowire.Number, typ protowire.Type, varint uint64, bz []byte) ErrorI) ErrorI {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return ErrUnmarshal(protowire.ParseError(n))
		}
		data = data[n:]
		var (
			varint uint64
			bz     []byte
		)
		switch typ {
		case protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return ErrUnmarshal(protowire.ParseError(m))
			}
			varint, data = v, data[m:]
		case protowire.Fixed32Type:
			v, m := protowire.ConsumeFixed32(data)
			if m < 0 {
				return ErrUnmarshal(protowire.ParseError(m))
			}
			varint, data = uint64(v), data[m:]
		case protowire.Fixed64Type:
			v, m := protowire.ConsumeFixed64(data)
			if m < 0 {
				return ErrUnmarshal(protowire.ParseError(m))
			}
			varint, data = v, data[m:]
		case protowire.BytesType:
			b, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return ErrUnmarshal(protowire.ParseError(m))
			}
			bz, data = b, data[m:]
		default: // group types, parse to skip
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return ErrUnmarshal(protowire.ParseError(m))
			}
			data = data[m:]
			continue
		}
		if err := visit(num, typ, varint, bz); err != nil {
			return err
		}
	}
	return nil
}

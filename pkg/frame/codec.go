package frame

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the platform frame message. Headers are a repeated
// sub-message with key = 1 and value = 2.
const (
	fieldSeqID           protowire.Number = 1
	fieldLogID           protowire.Number = 2
	fieldService         protowire.Number = 3
	fieldMethod          protowire.Number = 4
	fieldHeaders         protowire.Number = 5
	fieldPayloadEncoding protowire.Number = 6
	fieldPayloadType     protowire.Number = 7
	fieldPayload         protowire.Number = 8
	fieldLogIDNew        protowire.Number = 9

	fieldHeaderKey   protowire.Number = 1
	fieldHeaderValue protowire.Number = 2
)

// Encode serializes f using the protobuf wire format of the push protocol.
func Encode(f *Frame) ([]byte, error) {
	if f == nil {
		return nil, ErrNilFrame
	}

	b := make([]byte, 0, 32+len(f.Payload)+16*len(f.Headers))
	b = appendVarintField(b, fieldSeqID, f.SeqID)
	b = appendVarintField(b, fieldLogID, f.LogID)
	// int32 fields are sign-extended to 64 bits on the wire.
	b = appendVarintField(b, fieldService, uint64(int64(f.Service)))
	b = appendVarintField(b, fieldMethod, uint64(int64(f.Method)))

	var hb []byte
	for _, h := range f.Headers {
		hb = hb[:0]
		hb = protowire.AppendTag(hb, fieldHeaderKey, protowire.BytesType)
		hb = protowire.AppendString(hb, h.Key)
		hb = protowire.AppendTag(hb, fieldHeaderValue, protowire.BytesType)
		hb = protowire.AppendString(hb, h.Value)

		b = protowire.AppendTag(b, fieldHeaders, protowire.BytesType)
		b = protowire.AppendBytes(b, hb)
	}

	if f.PayloadEncoding != "" {
		b = protowire.AppendTag(b, fieldPayloadEncoding, protowire.BytesType)
		b = protowire.AppendString(b, f.PayloadEncoding)
	}
	if f.PayloadType != "" {
		b = protowire.AppendTag(b, fieldPayloadType, protowire.BytesType)
		b = protowire.AppendString(b, f.PayloadType)
	}
	if f.Payload != nil {
		b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
		b = protowire.AppendBytes(b, f.Payload)
	}
	if f.LogIDNew != "" {
		b = protowire.AppendTag(b, fieldLogIDNew, protowire.BytesType)
		b = protowire.AppendString(b, f.LogIDNew)
	}

	return b, nil
}

// Decode parses a frame produced by Encode or by the server. Unknown fields
// are skipped.
func Decode(data []byte) (*Frame, error) {
	f := &Frame{}
	off := 0

	for off < len(data) {
		num, typ, n := protowire.ConsumeTag(data[off:])
		if n < 0 {
			return nil, decodeErr(off, "invalid tag", protowire.ParseError(n))
		}
		tagOff := off
		off += n

		switch num {
		case fieldSeqID, fieldLogID, fieldService, fieldMethod:
			if typ != protowire.VarintType {
				return nil, decodeErr(tagOff, "unexpected wire type for varint field", nil)
			}
			v, n := protowire.ConsumeVarint(data[off:])
			if n < 0 {
				return nil, decodeErr(off, "invalid varint", protowire.ParseError(n))
			}
			off += n
			switch num {
			case fieldSeqID:
				f.SeqID = v
			case fieldLogID:
				f.LogID = v
			case fieldService:
				f.Service = int32(v)
			case fieldMethod:
				f.Method = int32(v)
			}

		case fieldHeaders, fieldPayloadEncoding, fieldPayloadType, fieldPayload, fieldLogIDNew:
			if typ != protowire.BytesType {
				return nil, decodeErr(tagOff, "unexpected wire type for bytes field", nil)
			}
			v, n := protowire.ConsumeBytes(data[off:])
			if n < 0 {
				return nil, decodeErr(off, "invalid length-delimited field", protowire.ParseError(n))
			}
			valueOff := off
			off += n
			switch num {
			case fieldHeaders:
				h, err := decodeHeader(v, valueOff)
				if err != nil {
					return nil, err
				}
				f.Headers = append(f.Headers, h)
			case fieldPayloadEncoding:
				f.PayloadEncoding = string(v)
			case fieldPayloadType:
				f.PayloadType = string(v)
			case fieldPayload:
				f.Payload = make([]byte, len(v))
				copy(f.Payload, v)
			case fieldLogIDNew:
				f.LogIDNew = string(v)
			}

		default:
			n := protowire.ConsumeFieldValue(num, typ, data[off:])
			if n < 0 {
				return nil, decodeErr(off, "invalid unknown field", protowire.ParseError(n))
			}
			off += n
		}
	}

	return f, nil
}

func decodeHeader(data []byte, base int) (Header, error) {
	var h Header
	off := 0
	for off < len(data) {
		num, typ, n := protowire.ConsumeTag(data[off:])
		if n < 0 {
			return h, decodeErr(base+off, "invalid header tag", protowire.ParseError(n))
		}
		off += n

		if num != fieldHeaderKey && num != fieldHeaderValue {
			n = protowire.ConsumeFieldValue(num, typ, data[off:])
			if n < 0 {
				return h, decodeErr(base+off, "invalid header field", protowire.ParseError(n))
			}
			off += n
			continue
		}
		if typ != protowire.BytesType {
			return h, decodeErr(base+off, "unexpected wire type for header field", nil)
		}
		v, n := protowire.ConsumeString(data[off:])
		if n < 0 {
			return h, decodeErr(base+off, "invalid header string", protowire.ParseError(n))
		}
		off += n
		if num == fieldHeaderKey {
			h.Key = v
		} else {
			h.Value = v
		}
	}
	return h, nil
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

package wire

import (
	"encoding/binary"
	"unicode/utf8"

	"github.com/driftdb/pgwasm/errors"
)

// frameHeaderLen is the tag byte plus the 4-byte length field.
const frameHeaderLen = 5

// maxFrameLen bounds the declared length of a single frame. Anything larger
// is treated as stream corruption rather than buffered indefinitely.
const maxFrameLen = 1 << 30

// Decoder incrementally parses a byte stream into complete frames. It
// tolerates frames split across multiple Write calls and multiple whole
// frames within one call; any unconsumed trailing bytes are carried over
// verbatim to the next call.
//
// Decoder performs no I/O of its own. The handler is invoked once per fully
// decoded message, in stream order, from inside Write.
type Decoder struct {
	handler func(Message)
	carry   []byte
}

// NewDecoder returns a Decoder delivering decoded messages to handler.
func NewDecoder(handler func(Message)) *Decoder {
	return &Decoder{handler: handler}
}

// Reset drops any carried-over partial frame.
func (d *Decoder) Reset() {
	d.carry = d.carry[:0]
}

// Buffered returns the number of carried-over bytes awaiting completion.
func (d *Decoder) Buffered() int {
	return len(d.carry)
}

// Write feeds one chunk into the decoder, invoking the handler for every
// frame that becomes complete. A structured decode error poisons only the
// frame it occurred in; the caller decides whether to continue the stream.
func (d *Decoder) Write(chunk []byte) error {
	data := chunk
	if len(d.carry) > 0 {
		d.carry = append(d.carry, chunk...)
		data = d.carry
	}

	pos := 0
	for {
		if len(data)-pos < frameHeaderLen {
			break
		}
		tag := data[pos]
		length := binary.BigEndian.Uint32(data[pos+1 : pos+5])
		if length < 4 || length > maxFrameLen {
			d.carry = d.carry[:0]
			return errors.New(errors.PhaseDecode, errors.KindInvalidData).
				Tag(tag).
				Detail("declared frame length %d", length).
				Build()
		}
		total := 1 + int(length)
		if len(data)-pos < total {
			break
		}

		msg, err := decodeBody(tag, data[pos+frameHeaderLen:pos+total])
		if err != nil {
			d.carry = d.carry[:0]
			return err
		}
		d.handler(msg)
		pos += total
	}

	// Preserve the partial tail for the next call. The copy is required:
	// data may alias the caller's chunk, which is reused after Write returns.
	d.carry = append(d.carry[:0], data[pos:]...)
	return nil
}

// decodeBody decodes one frame's payload into its message variant.
func decodeBody(tag byte, payload []byte) (Message, error) {
	r := payloadReader{tag: tag, b: payload}

	switch tag {
	case TagAuthentication:
		return decodeAuthentication(&r)

	case TagBackendKeyData:
		msg := BackendKeyData{ProcessID: r.uint32(), SecretKey: r.uint32()}
		return msg, r.err

	case TagBindComplete:
		return BindComplete{}, nil

	case TagCloseComplete:
		return CloseComplete{}, nil

	case TagCommandComplete:
		msg := CommandComplete{CommandTag: r.cstring()}
		return msg, r.err

	case TagCopyBothResponse:
		f, c, err := decodeCopyFormats(&r)
		return CopyBothResponse{OverallFormat: f, ColumnFormats: c}, err

	case TagCopyData:
		return CopyData{Data: r.remaining()}, nil

	case TagCopyDone:
		return CopyDone{}, nil

	case TagCopyInResponse:
		f, c, err := decodeCopyFormats(&r)
		return CopyInResponse{OverallFormat: f, ColumnFormats: c}, err

	case TagCopyOutResponse:
		f, c, err := decodeCopyFormats(&r)
		return CopyOutResponse{OverallFormat: f, ColumnFormats: c}, err

	case TagDataRow:
		return decodeDataRow(&r)

	case TagEmptyQueryResponse:
		return EmptyQueryResponse{}, nil

	case TagErrorResponse:
		fields, err := decodeErrorFields(&r)
		return ErrorResponse{Fields: fields}, err

	case TagNoData:
		return NoData{}, nil

	case TagNoticeResponse:
		fields, err := decodeErrorFields(&r)
		return NoticeResponse{Fields: fields}, err

	case TagNotificationResponse:
		msg := NotificationResponse{
			ProcessID: r.uint32(),
			Channel:   r.cstring(),
			Payload:   r.cstring(),
		}
		return msg, r.err

	case TagParameterDescription:
		count := int(r.int16())
		if r.err != nil {
			return nil, r.err
		}
		if count < 0 || count*4 > r.left() {
			return nil, r.fail("parameter count %d exceeds payload", count)
		}
		oids := make([]uint32, count)
		for i := range oids {
			oids[i] = r.uint32()
		}
		return ParameterDescription{TypeOIDs: oids}, r.err

	case TagParameterStatus:
		msg := ParameterStatus{Name: r.cstring(), Value: r.cstring()}
		return msg, r.err

	case TagParseComplete:
		return ParseComplete{}, nil

	case TagPortalSuspended:
		return PortalSuspended{}, nil

	case TagReadyForQuery:
		msg := ReadyForQuery{TxStatus: r.byte()}
		return msg, r.err

	case TagRowDescription:
		return decodeRowDescription(&r)
	}

	return nil, errors.New(errors.PhaseDecode, errors.KindProtocol).
		Tag(tag).
		Detail("unknown message kind").
		Build()
}

func decodeAuthentication(r *payloadReader) (Message, error) {
	code := r.uint32()
	if r.err != nil {
		return nil, r.err
	}
	switch code {
	case authOk:
		return AuthenticationOk{}, nil
	case authCleartextPassword:
		return AuthenticationCleartextPassword{}, nil
	case authMD5Password:
		var msg AuthenticationMD5Password
		copy(msg.Salt[:], r.bytes(4))
		return msg, r.err
	case authSASL:
		var mechanisms []string
		for r.err == nil && r.left() > 0 {
			// The mechanism list ends with a single terminating zero byte.
			if r.left() == 1 && r.b[len(r.b)-1] == 0 {
				break
			}
			mechanisms = append(mechanisms, r.cstring())
		}
		return AuthenticationSASL{Mechanisms: mechanisms}, r.err
	case authSASLContinue:
		return AuthenticationSASLContinue{Data: r.remaining()}, nil
	case authSASLFinal:
		return AuthenticationSASLFinal{Data: r.remaining()}, nil
	}
	return nil, r.fail("unknown authentication code %d", code)
}

func decodeCopyFormats(r *payloadReader) (int16, []int16, error) {
	overall := int16(r.byte())
	count := int(r.int16())
	if r.err != nil {
		return 0, nil, r.err
	}
	if count < 0 || count*2 > r.left() {
		return 0, nil, r.fail("copy column count %d exceeds payload", count)
	}
	formats := make([]int16, count)
	for i := range formats {
		formats[i] = r.int16()
	}
	return overall, formats, r.err
}

func decodeDataRow(r *payloadReader) (Message, error) {
	count := int(r.int16())
	if r.err != nil {
		return nil, r.err
	}
	if count < 0 || count > r.left() {
		return nil, r.fail("field count %d exceeds payload", count)
	}
	values := make([][]byte, count)
	for i := range values {
		length := r.int32()
		if r.err != nil {
			return nil, r.err
		}
		if length == -1 {
			values[i] = nil // SQL NULL
			continue
		}
		if length < 0 || int(length) > r.left() {
			return nil, r.fail("field %d length %d exceeds payload", i, length)
		}
		// Copy: the payload aliases the decoder's carry buffer, which is
		// reused across Write calls, while DataRow values outlive the frame.
		values[i] = append([]byte(nil), r.bytes(int(length))...)
	}
	return DataRow{Values: values}, r.err
}

func decodeRowDescription(r *payloadReader) (Message, error) {
	count := int(r.int16())
	if r.err != nil {
		return nil, r.err
	}
	if count < 0 || count > r.left() {
		return nil, r.fail("column count %d exceeds payload", count)
	}
	fields := make([]FieldDescription, count)
	for i := range fields {
		fields[i] = FieldDescription{
			Name:         r.cstring(),
			TableOID:     r.uint32(),
			ColumnAttr:   r.int16(),
			TypeOID:      r.uint32(),
			TypeSize:     r.int16(),
			TypeModifier: r.int32(),
			Format:       r.int16(),
		}
		if r.err != nil {
			return nil, r.err
		}
	}
	return RowDescription{Fields: fields}, nil
}

func decodeErrorFields(r *payloadReader) (ErrorFields, error) {
	var fields ErrorFields
	for r.err == nil {
		fieldType := r.byte()
		if r.err != nil || fieldType == 0 {
			break
		}
		fields.set(fieldType, r.cstring())
	}
	return fields, r.err
}

// payloadReader walks one frame's payload with sticky error state. All
// accessors return zero values once an error is recorded, so decode routines
// can read a full layout and check err once.
type payloadReader struct {
	err error
	b   []byte
	pos int
	tag byte
}

func (r *payloadReader) left() int {
	return len(r.b) - r.pos
}

func (r *payloadReader) fail(format string, args ...any) error {
	if r.err == nil {
		r.err = errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Tag(r.tag).
			Detail(format, args...).
			Build()
	}
	return r.err
}

func (r *payloadReader) failTruncated(what string, want int) {
	if r.err == nil {
		e := errors.Truncated(errors.PhaseDecode, what, want, r.left())
		e.MessageTag = r.tag
		r.err = e
	}
}

func (r *payloadReader) byte() byte {
	if r.err != nil {
		return 0
	}
	if r.left() < 1 {
		r.failTruncated("byte", 1)
		return 0
	}
	v := r.b[r.pos]
	r.pos++
	return v
}

func (r *payloadReader) int16() int16 {
	if r.err != nil {
		return 0
	}
	if r.left() < 2 {
		r.failTruncated("int16", 2)
		return 0
	}
	v := int16(binary.BigEndian.Uint16(r.b[r.pos:]))
	r.pos += 2
	return v
}

func (r *payloadReader) int32() int32 {
	return int32(r.uint32())
}

func (r *payloadReader) uint32() uint32 {
	if r.err != nil {
		return 0
	}
	if r.left() < 4 {
		r.failTruncated("int32", 4)
		return 0
	}
	v := binary.BigEndian.Uint32(r.b[r.pos:])
	r.pos += 4
	return v
}

func (r *payloadReader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.left() < n {
		r.failTruncated("bytes", n)
		return nil
	}
	v := r.b[r.pos : r.pos+n]
	r.pos += n
	return v
}

// cstring reads a null-terminated UTF-8 string. A missing terminator or
// invalid encoding is a structured decode error, never a silent truncation.
func (r *payloadReader) cstring() string {
	if r.err != nil {
		return ""
	}
	end := -1
	for i := r.pos; i < len(r.b); i++ {
		if r.b[i] == 0 {
			end = i
			break
		}
	}
	if end < 0 {
		r.fail("string missing null terminator")
		return ""
	}
	raw := r.b[r.pos:end]
	if !utf8.Valid(raw) {
		e := errors.InvalidUTF8(errors.PhaseDecode, raw)
		e.MessageTag = r.tag
		r.err = e
		return ""
	}
	r.pos = end + 1
	return string(raw)
}

// remaining copies and consumes the rest of the payload.
func (r *payloadReader) remaining() []byte {
	if r.err != nil {
		return nil
	}
	v := append([]byte(nil), r.b[r.pos:]...)
	r.pos = len(r.b)
	return v
}

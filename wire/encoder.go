package wire

import "encoding/binary"

// Protocol version and special request codes used in length-only frames.
const (
	protocolVersion   = 196608   // 3.0
	cancelRequestCode = 80877102 // fixed out-of-band cancel code
	sslRequestCode    = 80877103
)

// clientEncodingParam is appended to every startup message so the engine
// always talks UTF-8 regardless of caller-supplied parameters.
const (
	clientEncodingParam = "client_encoding"
	clientEncodingValue = "UTF8"
)

// Writer builds exact wire-format bytes for outbound requests over a single
// reusable growable buffer. A message is opened with Begin (tag+length
// framing) or BeginUntyped (length-only framing), appended to with the
// primitive methods, and finalized with Finish, which back-patches the length
// field at the message's start and returns the buffer trimmed to exactly the
// written bytes.
//
// Messages accumulate: Begin after Finish appends the next message to the
// same buffer, so a pipelined round (parse, bind, describe, execute, sync)
// encodes into one contiguous span. Reset starts a fresh round. The returned
// slice aliases the Writer's buffer; it becomes the engine's read source
// directly, with no further copies, and is valid until the next Reset.
type Writer struct {
	buf []byte
	// lenAt is the index of the current message's 4-byte length field,
	// or -1 when no message is open.
	lenAt int
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 128), lenAt: -1}
}

// Reset discards all accumulated messages, keeping the buffer's capacity.
func (w *Writer) Reset() *Writer {
	w.buf = w.buf[:0]
	w.lenAt = -1
	return w
}

// Begin starts a tagged message: tag byte followed by a length placeholder.
func (w *Writer) Begin(tag byte) *Writer {
	w.buf = append(w.buf, tag, 0, 0, 0, 0)
	w.lenAt = len(w.buf) - 4
	return w
}

// BeginUntyped starts a length-only message (startup, SSL, cancel framing).
func (w *Writer) BeginUntyped() *Writer {
	w.buf = append(w.buf, 0, 0, 0, 0)
	w.lenAt = len(w.buf) - 4
	return w
}

// Finish back-patches the open message's length field (which covers itself
// and the payload, not the tag) and returns the full accumulated buffer.
func (w *Writer) Finish() []byte {
	binary.BigEndian.PutUint32(w.buf[w.lenAt:], uint32(len(w.buf)-w.lenAt))
	w.lenAt = -1
	return w.buf
}

func (w *Writer) Byte(v byte) *Writer {
	w.buf = append(w.buf, v)
	return w
}

func (w *Writer) Int16(v int16) *Writer {
	w.buf = append(w.buf, byte(v>>8), byte(v))
	return w
}

func (w *Writer) Int32(v int32) *Writer {
	return w.Uint32(uint32(v))
}

func (w *Writer) Uint32(v uint32) *Writer {
	w.buf = append(w.buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	return w
}

// CString appends s followed by a null terminator.
func (w *Writer) CString(s string) *Writer {
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
	return w
}

// Bytes appends a raw byte span.
func (w *Writer) Bytes(p []byte) *Writer {
	w.buf = append(w.buf, p...)
	return w
}

// Startup encodes the initial startup request: protocol version, key/value
// connection parameters, a forced client_encoding parameter, and a
// terminating zero byte. Parameter order follows the keys slice so encoding
// is deterministic; a caller-supplied client_encoding is overridden.
func (w *Writer) Startup(keys []string, params map[string]string) []byte {
	w.BeginUntyped().Int32(protocolVersion)
	for _, k := range keys {
		if k == clientEncodingParam {
			continue
		}
		w.CString(k).CString(params[k])
	}
	w.CString(clientEncodingParam).CString(clientEncodingValue)
	w.Byte(0)
	return w.Finish()
}

// SSLRequest encodes the SSL negotiation request (length-only framing).
func (w *Writer) SSLRequest() []byte {
	return w.BeginUntyped().Int32(sslRequestCode).Finish()
}

// Password encodes a clear-text password response.
func (w *Writer) Password(password string) []byte {
	return w.Begin('p').CString(password).Finish()
}

// SASLInitialResponse encodes the first message of a SASL exchange.
func (w *Writer) SASLInitialResponse(mechanism string, data []byte) []byte {
	w.Begin('p').CString(mechanism)
	if data == nil {
		w.Int32(-1)
	} else {
		w.Int32(int32(len(data))).Bytes(data)
	}
	return w.Finish()
}

// SASLResponse encodes a continuation message of a SASL exchange.
func (w *Writer) SASLResponse(data []byte) []byte {
	return w.Begin('p').Bytes(data).Finish()
}

// Query encodes a simple-query request.
func (w *Writer) Query(sql string) []byte {
	return w.Begin('Q').CString(sql).Finish()
}

// Parse encodes a prepared-statement parse request.
func (w *Writer) Parse(name, sql string, paramOIDs []uint32) []byte {
	w.Begin('P').CString(name).CString(sql)
	w.Int16(int16(len(paramOIDs)))
	for _, oid := range paramOIDs {
		w.Uint32(oid)
	}
	return w.Finish()
}

// Bind encodes a bind request. paramFormats and resultFormats hold per-value
// text(0)/binary(1) flags; params are raw values with nil meaning NULL, each
// encoded with a binary length prefix.
func (w *Writer) Bind(portal, statement string, paramFormats []int16, params [][]byte, resultFormats []int16) []byte {
	w.Begin('B').CString(portal).CString(statement)
	w.Int16(int16(len(paramFormats)))
	for _, f := range paramFormats {
		w.Int16(f)
	}
	w.Int16(int16(len(params)))
	for _, p := range params {
		if p == nil {
			w.Int32(-1)
			continue
		}
		w.Int32(int32(len(p))).Bytes(p)
	}
	w.Int16(int16(len(resultFormats)))
	for _, f := range resultFormats {
		w.Int16(f)
	}
	return w.Finish()
}

// Statement/portal discriminators for Describe and ClosePortal requests.
const (
	DescribeStatement = 'S'
	DescribePortal    = 'P'
)

// Describe encodes a describe request for a statement or portal.
func (w *Writer) Describe(kind byte, name string) []byte {
	return w.Begin('D').Byte(kind).CString(name).Finish()
}

// Execute encodes an execute request; maxRows of zero means no limit.
func (w *Writer) Execute(portal string, maxRows int32) []byte {
	return w.Begin('E').CString(portal).Int32(maxRows).Finish()
}

// Close encodes a close request for a statement or portal.
func (w *Writer) Close(kind byte, name string) []byte {
	return w.Begin('C').Byte(kind).CString(name).Finish()
}

// Flush encodes a flush request.
func (w *Writer) Flush() []byte {
	return w.Begin('H').Finish()
}

// Sync encodes a sync request, ending one extended-query cycle.
func (w *Writer) Sync() []byte {
	return w.Begin('S').Finish()
}

// Terminate encodes the connection termination request.
func (w *Writer) Terminate() []byte {
	return w.Begin('X').Finish()
}

// CopyData encodes one copy-data frame.
func (w *Writer) CopyData(data []byte) []byte {
	return w.Begin('d').Bytes(data).Finish()
}

// CopyDone encodes the copy-done frame.
func (w *Writer) CopyDone() []byte {
	return w.Begin('c').Finish()
}

// CopyFail encodes a copy-fail frame with a reason.
func (w *Writer) CopyFail(reason string) []byte {
	return w.Begin('f').CString(reason).Finish()
}

// CancelRequest encodes the fixed 16-byte out-of-band cancel request
// carrying the target process id and secret key.
func (w *Writer) CancelRequest(processID, secretKey uint32) []byte {
	return w.BeginUntyped().
		Int32(cancelRequestCode).
		Uint32(processID).
		Uint32(secretKey).
		Finish()
}

package wire

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// walkFrames validates tag+length framing over an encoded span and returns
// the tags in order.
func walkFrames(t *testing.T, data []byte) []byte {
	t.Helper()
	var tags []byte
	for pos := 0; pos < len(data); {
		if len(data)-pos < 5 {
			t.Fatalf("trailing garbage of %d bytes", len(data)-pos)
		}
		tag := data[pos]
		length := binary.BigEndian.Uint32(data[pos+1 : pos+5])
		if int(length) < 4 || pos+1+int(length) > len(data) {
			t.Fatalf("frame %q declares length %d beyond buffer", tag, length)
		}
		tags = append(tags, tag)
		pos += 1 + int(length)
	}
	return tags
}

func TestWriter_QueryFraming(t *testing.T) {
	w := NewWriter()
	msg := w.Query("SELECT 1")

	if msg[0] != 'Q' {
		t.Fatalf("tag = %q, want 'Q'", msg[0])
	}
	length := binary.BigEndian.Uint32(msg[1:5])
	// Length covers itself and the payload but not the tag.
	if int(length) != len(msg)-1 {
		t.Errorf("length field %d, want %d", length, len(msg)-1)
	}
	if !bytes.Equal(msg[5:], []byte("SELECT 1\x00")) {
		t.Errorf("payload = %q", msg[5:])
	}
}

func TestWriter_StartupFraming(t *testing.T) {
	w := NewWriter()
	msg := w.Startup([]string{"user", "database"}, map[string]string{
		"user":     "postgres",
		"database": "app",
	})

	// Length-only framing: no tag byte.
	length := binary.BigEndian.Uint32(msg[0:4])
	if int(length) != len(msg) {
		t.Errorf("length field %d, want %d", length, len(msg))
	}
	if binary.BigEndian.Uint32(msg[4:8]) != 196608 {
		t.Errorf("protocol version = %d", binary.BigEndian.Uint32(msg[4:8]))
	}
	if !bytes.Contains(msg, []byte("client_encoding\x00UTF8\x00")) {
		t.Error("startup missing forced client_encoding parameter")
	}
	if msg[len(msg)-1] != 0 {
		t.Error("startup missing terminating zero byte")
	}
}

func TestWriter_StartupOverridesClientEncoding(t *testing.T) {
	w := NewWriter()
	msg := w.Startup([]string{"user", "client_encoding"}, map[string]string{
		"user":            "postgres",
		"client_encoding": "LATIN1",
	})
	if bytes.Contains(msg, []byte("LATIN1")) {
		t.Error("caller-supplied client_encoding not overridden")
	}
	if bytes.Count(msg, []byte("client_encoding\x00")) != 1 {
		t.Error("client_encoding parameter duplicated")
	}
}

func TestWriter_CancelRequestIsFixed16Bytes(t *testing.T) {
	w := NewWriter()
	msg := w.CancelRequest(1234, 0xcafebabe)

	if len(msg) != 16 {
		t.Fatalf("cancel request is %d bytes, want 16", len(msg))
	}
	if binary.BigEndian.Uint32(msg[0:4]) != 16 {
		t.Errorf("length field = %d, want 16", binary.BigEndian.Uint32(msg[0:4]))
	}
	if binary.BigEndian.Uint32(msg[4:8]) != 80877102 {
		t.Errorf("cancel code = %d", binary.BigEndian.Uint32(msg[4:8]))
	}
	if binary.BigEndian.Uint32(msg[8:12]) != 1234 || binary.BigEndian.Uint32(msg[12:16]) != 0xcafebabe {
		t.Error("pid/secret not encoded")
	}
}

func TestWriter_BindNullAndBinaryParams(t *testing.T) {
	w := NewWriter()
	msg := w.Bind("", "stmt", []int16{0, 1}, [][]byte{nil, {0x01, 0x02}}, []int16{0})

	tags := walkFrames(t, msg)
	if len(tags) != 1 || tags[0] != 'B' {
		t.Fatalf("tags = %q", tags)
	}
	if !bytes.Contains(msg, []byte{0xff, 0xff, 0xff, 0xff}) {
		t.Error("nil parameter not encoded as -1 length")
	}
	if !bytes.Contains(msg, []byte{0, 0, 0, 2, 0x01, 0x02}) {
		t.Error("binary parameter not length-prefixed")
	}
}

func TestWriter_PipelinedRound(t *testing.T) {
	w := NewWriter()
	w.Parse("", "SELECT $1::int4", []uint32{OIDInt4})
	w.Bind("", "", []int16{0}, [][]byte{[]byte("5")}, nil)
	w.Describe(DescribePortal, "")
	w.Execute("", 0)
	out := w.Sync()

	tags := walkFrames(t, out)
	want := []byte{'P', 'B', 'D', 'E', 'S'}
	if !bytes.Equal(tags, want) {
		t.Errorf("pipelined tags = %q, want %q", tags, want)
	}
}

func TestWriter_ResetReusesBuffer(t *testing.T) {
	w := NewWriter()
	first := w.Query("SELECT 1")
	firstLen := len(first)

	second := w.Reset().Query("SELECT 2")
	if len(second) != firstLen {
		t.Errorf("second encoding length %d, want %d", len(second), firstLen)
	}
	if !bytes.Equal(second[5:], []byte("SELECT 2\x00")) {
		t.Errorf("payload after reset = %q", second[5:])
	}
}

func TestWriter_ControlMessages(t *testing.T) {
	// One writer per message: the returned slices alias the writer's buffer,
	// so reusing it would overwrite earlier entries.
	tests := []struct {
		name string
		msg  []byte
		tag  byte
	}{
		{"flush", NewWriter().Flush(), 'H'},
		{"sync", NewWriter().Sync(), 'S'},
		{"terminate", NewWriter().Terminate(), 'X'},
		{"copy done", NewWriter().CopyDone(), 'c'},
	}
	for _, tt := range tests {
		if len(tt.msg) != 5 || tt.msg[0] != tt.tag {
			t.Errorf("%s: got % x", tt.name, tt.msg)
		}
		if binary.BigEndian.Uint32(tt.msg[1:5]) != 4 {
			t.Errorf("%s: length field not 4", tt.name)
		}
	}
}

func TestWriter_CopyFraming(t *testing.T) {
	w := NewWriter()
	data := w.Reset().CopyData([]byte("1\tone\n"))
	if data[0] != 'd' || !bytes.HasSuffix(data, []byte("1\tone\n")) {
		t.Errorf("copy data framing: % x", data)
	}

	fail := w.Reset().CopyFail("aborted by client")
	if fail[0] != 'f' || !bytes.Contains(fail, []byte("aborted by client\x00")) {
		t.Errorf("copy fail framing: % x", fail)
	}
}

func TestWriter_PasswordAndSASL(t *testing.T) {
	w := NewWriter()
	pw := w.Reset().Password("hunter2")
	if pw[0] != 'p' || !bytes.Equal(pw[5:], []byte("hunter2\x00")) {
		t.Errorf("password framing: % x", pw)
	}

	init := w.Reset().SASLInitialResponse("SCRAM-SHA-256", []byte("n,,n=,r=abc"))
	if init[0] != 'p' || !bytes.Contains(init, []byte("SCRAM-SHA-256\x00")) {
		t.Errorf("SASL initial framing: % x", init)
	}
	if !bytes.Contains(init, []byte{0, 0, 0, 11}) {
		t.Error("SASL initial data not length-prefixed")
	}

	empty := w.Reset().SASLInitialResponse("SCRAM-SHA-256", nil)
	if !bytes.Contains(empty, []byte{0xff, 0xff, 0xff, 0xff}) {
		t.Error("nil SASL data not encoded as -1")
	}
}

func TestWriter_EncoderDecoderRoundTrip(t *testing.T) {
	// Backend-tagged frames built with the Writer decode back to the same
	// variants regardless of chunking; this pins the shared framing rule.
	w := NewWriter()
	w.Begin(TagCommandComplete).CString("UPDATE 7").Finish()
	w.Begin(TagReadyForQuery).Byte('T').Finish()

	var got []Message
	d := NewDecoder(func(m Message) { got = append(got, m) })
	for i := range w.buf {
		if err := d.Write(w.buf[i : i+1]); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
	}
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	if got[0].(CommandComplete).CommandTag != "UPDATE 7" {
		t.Errorf("round-trip lost command tag")
	}
	if got[1].(ReadyForQuery).TxStatus != 'T' {
		t.Errorf("round-trip lost tx status")
	}
}

package wire

import (
	stderrors "errors"
	"reflect"
	"testing"

	"github.com/driftdb/pgwasm/errors"
)

// backendStream encodes a realistic response sequence using the Writer's
// framing primitives (the framing rule is shared by both directions).
func backendStream() []byte {
	w := NewWriter()
	w.Begin(TagAuthentication).Int32(0).Finish()
	w.Begin(TagParameterStatus).CString("server_version").CString("16.4").Finish()
	w.Begin(TagBackendKeyData).Uint32(42).Uint32(0xdeadbeef).Finish()
	w.Begin(TagRowDescription).
		Int16(2).
		CString("id").Uint32(0).Int16(1).Uint32(OIDInt4).Int16(4).Int32(-1).Int16(0).
		CString("name").Uint32(0).Int16(2).Uint32(OIDText).Int16(-1).Int32(-1).Int16(0).
		Finish()
	w.Begin(TagDataRow).
		Int16(2).
		Int32(1).Bytes([]byte("7")).
		Int32(5).Bytes([]byte("seven")).
		Finish()
	w.Begin(TagDataRow).
		Int16(2).
		Int32(1).Bytes([]byte("8")).
		Int32(-1).
		Finish()
	w.Begin(TagCommandComplete).CString("SELECT 2").Finish()
	w.Begin(TagReadyForQuery).Byte('I').Finish()
	return append([]byte(nil), w.buf...)
}

func wantBackendMessages() []Message {
	return []Message{
		AuthenticationOk{},
		ParameterStatus{Name: "server_version", Value: "16.4"},
		BackendKeyData{ProcessID: 42, SecretKey: 0xdeadbeef},
		RowDescription{Fields: []FieldDescription{
			{Name: "id", ColumnAttr: 1, TypeOID: OIDInt4, TypeSize: 4, TypeModifier: -1},
			{Name: "name", ColumnAttr: 2, TypeOID: OIDText, TypeSize: -1, TypeModifier: -1},
		}},
		DataRow{Values: [][]byte{[]byte("7"), []byte("seven")}},
		DataRow{Values: [][]byte{[]byte("8"), nil}},
		CommandComplete{CommandTag: "SELECT 2"},
		ReadyForQuery{TxStatus: 'I'},
	}
}

func collect(t *testing.T) (*Decoder, *[]Message) {
	t.Helper()
	var got []Message
	d := NewDecoder(func(m Message) { got = append(got, m) })
	return d, &got
}

func TestDecoder_SingleChunk(t *testing.T) {
	d, got := collect(t)
	if err := d.Write(backendStream()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if !reflect.DeepEqual(*got, wantBackendMessages()) {
		t.Errorf("messages mismatch:\n got %#v\nwant %#v", *got, wantBackendMessages())
	}
	if d.Buffered() != 0 {
		t.Errorf("expected empty carry, have %d bytes", d.Buffered())
	}
}

func TestDecoder_ByteAtATime(t *testing.T) {
	d, got := collect(t)
	stream := backendStream()
	for i := range stream {
		if err := d.Write(stream[i : i+1]); err != nil {
			t.Fatalf("Write byte %d failed: %v", i, err)
		}
	}
	if !reflect.DeepEqual(*got, wantBackendMessages()) {
		t.Errorf("bytewise decode differs from single-chunk decode")
	}
}

func TestDecoder_ArbitrarySplits(t *testing.T) {
	stream := backendStream()
	for _, size := range []int{2, 3, 7, 13, len(stream) - 1} {
		d, got := collect(t)
		for off := 0; off < len(stream); off += size {
			end := off + size
			if end > len(stream) {
				end = len(stream)
			}
			if err := d.Write(stream[off:end]); err != nil {
				t.Fatalf("chunk size %d: %v", size, err)
			}
		}
		if !reflect.DeepEqual(*got, wantBackendMessages()) {
			t.Errorf("chunk size %d: decode differs from single-chunk", size)
		}
	}
}

func TestDecoder_PartialFrameNoPrematureDecode(t *testing.T) {
	d, got := collect(t)
	w := NewWriter()
	frame := append([]byte(nil), w.Begin(TagCommandComplete).CString("INSERT 0 1").Finish()...)

	if err := d.Write(frame[:7]); err != nil {
		t.Fatalf("prefix write failed: %v", err)
	}
	if len(*got) != 0 {
		t.Fatalf("premature decode of incomplete frame")
	}
	if err := d.Write(frame[7:]); err != nil {
		t.Fatalf("suffix write failed: %v", err)
	}
	if len(*got) != 1 {
		t.Fatalf("expected exactly one message, got %d", len(*got))
	}
	if cc := (*got)[0].(CommandComplete); cc.CommandTag != "INSERT 0 1" {
		t.Errorf("unexpected tag %q", cc.CommandTag)
	}
}

func TestDecoder_ErrorResponseFields(t *testing.T) {
	d, got := collect(t)
	w := NewWriter()
	w.Begin(TagErrorResponse)
	for _, f := range []struct {
		code  byte
		value string
	}{
		{'S', "ERROR"}, {'V', "ERROR"}, {'C', "42601"},
		{'M', `syntax error at or near "SELEC"`}, {'D', "detail"}, {'H', "hint"},
		{'P', "1"}, {'W', "context"}, {'s', "public"}, {'t', "widgets"},
		{'c', "id"}, {'d', "integer"}, {'n', "widgets_pkey"},
		{'F', "scan.l"}, {'L', "1188"}, {'R', "scanner_yyerror"},
	} {
		w.Byte(f.code).CString(f.value)
	}
	w.Byte(0)
	if err := d.Write(w.Finish()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	er, ok := (*got)[0].(ErrorResponse)
	if !ok {
		t.Fatalf("expected ErrorResponse, got %T", (*got)[0])
	}
	f := er.Fields
	if f.Severity != "ERROR" || f.Code != "42601" || f.SchemaName != "public" ||
		f.TableName != "widgets" || f.ColumnName != "id" || f.ConstraintName != "widgets_pkey" ||
		f.File != "scan.l" || f.Line != "1188" || f.Routine != "scanner_yyerror" ||
		f.Position != "1" || f.Hint != "hint" || f.Detail != "detail" {
		t.Errorf("fields not fully decoded: %+v", f)
	}
}

func TestDecoder_NoticeDecodesLikeError(t *testing.T) {
	d, got := collect(t)
	w := NewWriter()
	w.Begin(TagNoticeResponse).
		Byte('S').CString("NOTICE").
		Byte('M').CString("relation exists, skipping").
		Byte(0)
	if err := d.Write(w.Finish()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	n, ok := (*got)[0].(NoticeResponse)
	if !ok {
		t.Fatalf("expected NoticeResponse, got %T", (*got)[0])
	}
	if n.Fields.Message != "relation exists, skipping" {
		t.Errorf("message not decoded: %+v", n.Fields)
	}
}

func TestDecoder_RejectsAbsurdLength(t *testing.T) {
	d, _ := collect(t)
	// Declared length below the framing minimum.
	err := d.Write([]byte{TagCommandComplete, 0, 0, 0, 2, 0})
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseDecode, Kind: errors.KindInvalidData}) {
		t.Fatalf("expected decode invalid_data, got %v", err)
	}
}

func TestDecoder_RejectsFieldLengthBeyondMessage(t *testing.T) {
	d, _ := collect(t)
	w := NewWriter()
	// DataRow declaring a 100-byte value with only 3 present.
	w.Begin(TagDataRow).Int16(1).Int32(100).Bytes([]byte("abc"))
	err := d.Write(w.Finish())
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseDecode, Kind: errors.KindInvalidData}) {
		t.Fatalf("expected decode invalid_data, got %v", err)
	}
}

func TestDecoder_RejectsInvalidUTF8(t *testing.T) {
	d, _ := collect(t)
	w := NewWriter()
	w.Begin(TagParameterStatus).Bytes([]byte{0xff, 0xfe, 0x00}).CString("v")
	err := d.Write(w.Finish())
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseDecode, Kind: errors.KindInvalidUTF8}) {
		t.Fatalf("expected decode invalid_utf8, got %v", err)
	}
}

func TestDecoder_RejectsMissingTerminator(t *testing.T) {
	d, _ := collect(t)
	w := NewWriter()
	w.Begin(TagCommandComplete).Bytes([]byte("SELECT 1")) // no null byte
	err := d.Write(w.Finish())
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseDecode, Kind: errors.KindInvalidData}) {
		t.Fatalf("expected decode invalid_data, got %v", err)
	}
}

func TestDecoder_RejectsUnknownTag(t *testing.T) {
	d, _ := collect(t)
	err := d.Write([]byte{'!', 0, 0, 0, 4})
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseDecode, Kind: errors.KindProtocol}) {
		t.Fatalf("expected decode protocol error, got %v", err)
	}
}

func TestDecoder_AuthenticationVariants(t *testing.T) {
	w := NewWriter()
	w.Begin(TagAuthentication).Int32(3).Finish()
	w.Begin(TagAuthentication).Int32(5).Bytes([]byte{1, 2, 3, 4}).Finish()
	w.Begin(TagAuthentication).Int32(10).CString("SCRAM-SHA-256").Byte(0).Finish()

	d, got := collect(t)
	if err := d.Write(w.buf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	want := []Message{
		AuthenticationCleartextPassword{},
		AuthenticationMD5Password{Salt: [4]byte{1, 2, 3, 4}},
		AuthenticationSASL{Mechanisms: []string{"SCRAM-SHA-256"}},
	}
	if !reflect.DeepEqual(*got, want) {
		t.Errorf("auth variants mismatch:\n got %#v\nwant %#v", *got, want)
	}
}

func TestDecoder_NotificationResponse(t *testing.T) {
	d, got := collect(t)
	w := NewWriter()
	w.Begin(TagNotificationResponse).Uint32(99).CString("events").CString("hello")
	if err := d.Write(w.Finish()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	want := NotificationResponse{ProcessID: 99, Channel: "events", Payload: "hello"}
	if !reflect.DeepEqual((*got)[0], want) {
		t.Errorf("got %#v, want %#v", (*got)[0], want)
	}
}

func TestDecoder_DataRowValuesAreStable(t *testing.T) {
	// Values must survive the decoder's carry buffer being reused.
	d, got := collect(t)
	w := NewWriter()
	first := append([]byte(nil), w.Begin(TagDataRow).Int16(1).Int32(3).Bytes([]byte("abc")).Finish()...)
	w.Reset()
	second := append([]byte(nil), w.Begin(TagDataRow).Int16(1).Int32(3).Bytes([]byte("xyz")).Finish()...)

	// Split so the first row rides through the carry buffer.
	if err := d.Write(first[:4]); err != nil {
		t.Fatal(err)
	}
	if err := d.Write(append(first[4:], second...)); err != nil {
		t.Fatal(err)
	}
	if string((*got)[0].(DataRow).Values[0]) != "abc" {
		t.Errorf("first row corrupted: %q", (*got)[0].(DataRow).Values[0])
	}
	if string((*got)[1].(DataRow).Values[0]) != "xyz" {
		t.Errorf("second row corrupted: %q", (*got)[1].(DataRow).Values[0])
	}
}

package wire

// Message tags the engine can emit.
const (
	TagAuthentication       = 'R'
	TagBackendKeyData       = 'K'
	TagBindComplete         = '2'
	TagCloseComplete        = '3'
	TagCommandComplete      = 'C'
	TagCopyBothResponse     = 'W'
	TagCopyData             = 'd'
	TagCopyDone             = 'c'
	TagCopyInResponse       = 'G'
	TagCopyOutResponse      = 'H'
	TagDataRow              = 'D'
	TagEmptyQueryResponse   = 'I'
	TagErrorResponse        = 'E'
	TagNoData               = 'n'
	TagNoticeResponse       = 'N'
	TagNotificationResponse = 'A'
	TagParameterDescription = 't'
	TagParameterStatus      = 'S'
	TagParseComplete        = '1'
	TagPortalSuspended      = 's'
	TagReadyForQuery        = 'Z'
	TagRowDescription       = 'T'
)

// Authentication request codes carried in an 'R' message.
const (
	authOk                = 0
	authCleartextPassword = 3
	authMD5Password       = 5
	authSASL              = 10
	authSASLContinue      = 11
	authSASLFinal         = 12
)

// Message is one complete frame emitted by the engine. The variant set is
// closed: every tag the decoder understands has exactly one type here, and
// consumers switch over them exhaustively.
type Message interface {
	// Tag returns the wire kind tag this message was framed with.
	Tag() byte
}

type AuthenticationOk struct{}

type AuthenticationCleartextPassword struct{}

type AuthenticationMD5Password struct {
	Salt [4]byte
}

type AuthenticationSASL struct {
	Mechanisms []string
}

type AuthenticationSASLContinue struct {
	Data []byte
}

type AuthenticationSASLFinal struct {
	Data []byte
}

type BackendKeyData struct {
	ProcessID uint32
	SecretKey uint32
}

type BindComplete struct{}

type CloseComplete struct{}

// CommandComplete reports a finished command. CommandTag is the textual tag,
// e.g. "INSERT 0 1" or "SELECT 3".
type CommandComplete struct {
	CommandTag string
}

type CopyData struct {
	Data []byte
}

type CopyDone struct{}

type CopyInResponse struct {
	OverallFormat int16
	ColumnFormats []int16
}

type CopyOutResponse struct {
	OverallFormat int16
	ColumnFormats []int16
}

type CopyBothResponse struct {
	OverallFormat int16
	ColumnFormats []int16
}

// DataRow carries one row's raw field values in result-column order.
// A nil element is a SQL NULL; an empty non-nil element is a zero-length value.
type DataRow struct {
	Values [][]byte
}

type EmptyQueryResponse struct{}

type ErrorResponse struct {
	Fields ErrorFields
}

type NoData struct{}

type NoticeResponse struct {
	Fields ErrorFields
}

type NotificationResponse struct {
	ProcessID uint32
	Channel   string
	Payload   string
}

type ParameterDescription struct {
	TypeOIDs []uint32
}

type ParameterStatus struct {
	Name  string
	Value string
}

type ParseComplete struct{}

type PortalSuspended struct{}

// ReadyForQuery ends one command cycle. TxStatus is 'I' (idle), 'T' (in
// transaction) or 'E' (failed transaction).
type ReadyForQuery struct {
	TxStatus byte
}

// RowDescription describes the columns of the rows that follow.
type RowDescription struct {
	Fields []FieldDescription
}

// FieldDescription is one column of a RowDescription.
type FieldDescription struct {
	Name         string
	TableOID     uint32
	ColumnAttr   int16
	TypeOID      uint32
	TypeSize     int16
	TypeModifier int32
	Format       int16
}

// ErrorFields holds every protocol-defined sub-field of an error or notice
// response, already split out so callers never re-parse text. Absent fields
// are empty strings.
type ErrorFields struct {
	Severity         string // 'S'
	SeverityUnlocal  string // 'V'
	Code             string // 'C', SQLSTATE
	Message          string // 'M'
	Detail           string // 'D'
	Hint             string // 'H'
	Position         string // 'P'
	InternalPosition string // 'p'
	InternalQuery    string // 'q'
	Where            string // 'W'
	SchemaName       string // 's'
	TableName        string // 't'
	ColumnName       string // 'c'
	DataTypeName     string // 'd'
	ConstraintName   string // 'n'
	File             string // 'F'
	Line             string // 'L'
	Routine          string // 'R'
}

func (AuthenticationOk) Tag() byte                { return TagAuthentication }
func (AuthenticationCleartextPassword) Tag() byte { return TagAuthentication }
func (AuthenticationMD5Password) Tag() byte       { return TagAuthentication }
func (AuthenticationSASL) Tag() byte              { return TagAuthentication }
func (AuthenticationSASLContinue) Tag() byte      { return TagAuthentication }
func (AuthenticationSASLFinal) Tag() byte         { return TagAuthentication }
func (BackendKeyData) Tag() byte                  { return TagBackendKeyData }
func (BindComplete) Tag() byte                    { return TagBindComplete }
func (CloseComplete) Tag() byte                   { return TagCloseComplete }
func (CommandComplete) Tag() byte                 { return TagCommandComplete }
func (CopyBothResponse) Tag() byte                { return TagCopyBothResponse }
func (CopyData) Tag() byte                        { return TagCopyData }
func (CopyDone) Tag() byte                        { return TagCopyDone }
func (CopyInResponse) Tag() byte                  { return TagCopyInResponse }
func (CopyOutResponse) Tag() byte                 { return TagCopyOutResponse }
func (DataRow) Tag() byte                         { return TagDataRow }
func (EmptyQueryResponse) Tag() byte              { return TagEmptyQueryResponse }
func (ErrorResponse) Tag() byte                   { return TagErrorResponse }
func (NoData) Tag() byte                          { return TagNoData }
func (NoticeResponse) Tag() byte                  { return TagNoticeResponse }
func (NotificationResponse) Tag() byte            { return TagNotificationResponse }
func (ParameterDescription) Tag() byte            { return TagParameterDescription }
func (ParameterStatus) Tag() byte                 { return TagParameterStatus }
func (ParseComplete) Tag() byte                   { return TagParseComplete }
func (PortalSuspended) Tag() byte                 { return TagPortalSuspended }
func (ReadyForQuery) Tag() byte                   { return TagReadyForQuery }
func (RowDescription) Tag() byte                  { return TagRowDescription }

// set assigns a decoded error sub-field by its wire field type byte.
// Unknown field types are ignored per protocol ("frontends should silently
// ignore fields of unrecognized type").
func (f *ErrorFields) set(fieldType byte, value string) {
	switch fieldType {
	case 'S':
		f.Severity = value
	case 'V':
		f.SeverityUnlocal = value
	case 'C':
		f.Code = value
	case 'M':
		f.Message = value
	case 'D':
		f.Detail = value
	case 'H':
		f.Hint = value
	case 'P':
		f.Position = value
	case 'p':
		f.InternalPosition = value
	case 'q':
		f.InternalQuery = value
	case 'W':
		f.Where = value
	case 's':
		f.SchemaName = value
	case 't':
		f.TableName = value
	case 'c':
		f.ColumnName = value
	case 'd':
		f.DataTypeName = value
	case 'n':
		f.ConstraintName = value
	case 'F':
		f.File = value
	case 'L':
		f.Line = value
	case 'R':
		f.Routine = value
	}
}

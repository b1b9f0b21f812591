package bridge

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"

	"github.com/driftdb/pgwasm/wire"
)

// Row is one result row keyed by column name.
type Row map[string]any

// Field describes one result column.
type Field struct {
	Name    string
	TypeOID uint32
}

// Result is the materialized outcome of one request. Rows preserve wire
// arrival order exactly; the value is never mutated after being returned.
type Result struct {
	Rows         []Row
	Fields       []Field
	AffectedRows int64
}

// ServerError is an error reported by the engine itself: the primary path
// for SQL-level failures. Every protocol sub-field is preserved so callers
// can inspect any of them without re-parsing text.
type ServerError struct {
	Fields wire.ErrorFields
}

func (e *ServerError) Error() string {
	if e.Fields.Code == "" {
		return e.Fields.Message
	}
	return fmt.Sprintf("%s: %s (%s)", strings.ToLower(e.Fields.Severity), e.Fields.Message, e.Fields.Code)
}

// SQLState returns the five-character error code.
func (e *ServerError) SQLState() string {
	return e.Fields.Code
}

// IsSyntaxError reports whether the engine rejected the statement's syntax.
func (e *ServerError) IsSyntaxError() bool {
	return e.Fields.Code == pgerrcode.SyntaxError
}

// IsUniqueViolation reports a unique-constraint failure.
func (e *ServerError) IsUniqueViolation() bool {
	return e.Fields.Code == pgerrcode.UniqueViolation
}

// IsUndefinedTable reports a reference to a missing relation.
func (e *ServerError) IsUndefinedTable() bool {
	return e.Fields.Code == pgerrcode.UndefinedTable
}

// commandTagRows matches the trailing row count of a command tag, e.g.
// "INSERT 0 1" or "SELECT 3".
var commandTagRows = regexp.MustCompile(` (\d+)$`)

// materialize scans one request's messages in arrival order and builds the
// structured result. Rows accumulate in wire arrival order across the whole
// round: each data row is coerced by the row description in effect when it
// arrived, and a new description replaces the field list without discarding
// earlier rows, so a multi-statement round returns every result set's rows.
// An engine error aborts immediately; notices never do.
func materialize(msgs []wire.Message) (*Result, error) {
	res := &Result{AffectedRows: 0}
	var fields []wire.FieldDescription

	for _, msg := range msgs {
		switch m := msg.(type) {
		case wire.RowDescription:
			fields = m.Fields
			res.Fields = make([]Field, len(fields))
			for i, f := range fields {
				res.Fields[i] = Field{Name: f.Name, TypeOID: f.TypeOID}
			}

		case wire.DataRow:
			row := make(Row, len(m.Values))
			for i, raw := range m.Values {
				name := fmt.Sprintf("column%d", i+1)
				var oid uint32
				if i < len(fields) {
					name = fields[i].Name
					oid = fields[i].TypeOID
				}
				if raw == nil {
					row[name] = nil
					continue
				}
				row[name] = coerce(oid, string(raw))
			}
			res.Rows = append(res.Rows, row)

		case wire.CommandComplete:
			if match := commandTagRows.FindStringSubmatch(m.CommandTag); match != nil {
				if n, err := strconv.ParseInt(match[1], 10, 64); err == nil {
					res.AffectedRows = n
				}
			}

		case wire.ErrorResponse:
			return nil, &ServerError{Fields: m.Fields}
		}
	}
	return res, nil
}

// Textual timestamp layouts the engine emits, most specific first.
var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
	"15:04:05.999999999",
}

// coerce converts one raw text value into its host representation by type
// OID. Unrecognized types pass through as the raw text.
func coerce(oid uint32, text string) any {
	switch oid {
	case wire.OIDBool:
		return text == "t"

	case wire.OIDInt2, wire.OIDInt4, wire.OIDInt8, wire.OIDOID:
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return n
		}
		return text

	case wire.OIDFloat4, wire.OIDFloat8, wire.OIDNumeric:
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return f
		}
		return text

	case wire.OIDJSON, wire.OIDJSONB:
		var v any
		if err := json.Unmarshal([]byte(text), &v); err == nil {
			return v
		}
		return text

	case wire.OIDDate, wire.OIDTime, wire.OIDTimestamp, wire.OIDTimestampTZ:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, text); err == nil {
				return t
			}
		}
		return text
	}

	if wire.IsArrayOID(oid) {
		return splitArrayLiteral(text)
	}
	return text
}

// splitArrayLiteral decodes a one-dimensional textual array literal by
// stripping the enclosing braces and splitting on commas. Quoted elements
// containing commas or braces are not handled.
func splitArrayLiteral(text string) []string {
	inner := strings.TrimSuffix(strings.TrimPrefix(text, "{"), "}")
	if inner == "" {
		return []string{}
	}
	return strings.Split(inner, ",")
}

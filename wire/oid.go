package wire

// Type OIDs of the engine's built-in types, as assigned in its catalog.
// Only the OIDs the result materializer coerces are named; everything else
// decodes as raw text.
const (
	OIDBool        uint32 = 16
	OIDBytea       uint32 = 17
	OIDInt8        uint32 = 20
	OIDInt2        uint32 = 21
	OIDInt4        uint32 = 23
	OIDText        uint32 = 25
	OIDOID         uint32 = 26
	OIDJSON        uint32 = 114
	OIDFloat4      uint32 = 700
	OIDFloat8      uint32 = 701
	OIDBPChar      uint32 = 1042
	OIDVarchar     uint32 = 1043
	OIDDate        uint32 = 1082
	OIDTime        uint32 = 1083
	OIDTimestamp   uint32 = 1114
	OIDTimestampTZ uint32 = 1184
	OIDNumeric     uint32 = 1700
	OIDJSONB       uint32 = 3802
	OIDUUID        uint32 = 2950

	OIDBoolArray    uint32 = 1000
	OIDInt2Array    uint32 = 1005
	OIDInt4Array    uint32 = 1007
	OIDTextArray    uint32 = 1009
	OIDVarcharArray uint32 = 1015
	OIDInt8Array    uint32 = 1016
	OIDFloat4Array  uint32 = 1021
	OIDFloat8Array  uint32 = 1022
	OIDJSONArray    uint32 = 199
	OIDJSONBArray   uint32 = 3807
)

// IsArrayOID reports whether oid is one of the one-dimensional array types
// the materializer decodes by splitting the textual array literal.
func IsArrayOID(oid uint32) bool {
	switch oid {
	case OIDBoolArray, OIDInt2Array, OIDInt4Array, OIDTextArray,
		OIDVarcharArray, OIDInt8Array, OIDFloat4Array, OIDFloat8Array,
		OIDJSONArray, OIDJSONBArray:
		return true
	}
	return false
}

package logicalfk

import "strings"

// Type families used for compatibility checks.
const (
	typeFamilyInteger = "integer_family"
	typeFamilyGUID    = "guid"
	typeFamilyString  = "string_family"
)

// NormalizeTypeFamily maps a raw vendor type name to its compatibility family.
// Unknown types fall back to their trimmed, lower-cased name.
func NormalizeTypeFamily(dataType string) string {
	t := strings.ToLower(strings.TrimSpace(dataType))
	switch t {
	case "int", "bigint", "smallint", "tinyint":
		return typeFamilyInteger
	case "uniqueidentifier":
		return typeFamilyGUID
	case "varchar", "nvarchar", "char", "nchar":
		return typeFamilyString
	default:
		return t
	}
}

// AreCompatible reports whether two columns could plausibly hold the same keys.
// Deliberately coarse: width and precision are ignored.
func AreCompatible(sourceType, targetType string) bool {
	return NormalizeTypeFamily(sourceType) == NormalizeTypeFamily(targetType)
}

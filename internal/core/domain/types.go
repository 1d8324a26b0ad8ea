package domain

import "strings"

// TypeFamily groups vendor column types into comparable families.
type TypeFamily int

const (
	FamilyUnknown TypeFamily = iota
	FamilyInteger
	FamilyNumeric
	FamilyText
	FamilyTemporal
	FamilyBoolean
	FamilyUUID
	FamilyBinary
)

// FamilyOf classifies a declared column type such as "character varying",
// "INT(11)" or "timestamp with time zone".
func FamilyOf(declared string) TypeFamily {
	t := strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	switch {
	case t == "":
		return FamilyUnknown
	case strings.HasPrefix(t, "interval"):
		return FamilyTemporal
	case strings.Contains(t, "uuid"):
		return FamilyUUID
	case strings.Contains(t, "bool"):
		return FamilyBoolean
	case strings.Contains(t, "int") && !strings.Contains(t, "point"), strings.Contains(t, "serial"):
		return FamilyInteger
	case strings.Contains(t, "numeric"), strings.Contains(t, "decimal"), strings.Contains(t, "real"),
		strings.Contains(t, "double"), strings.Contains(t, "float"), strings.Contains(t, "money"):
		return FamilyNumeric
	case strings.Contains(t, "date"), strings.Contains(t, "time"):
		return FamilyTemporal
	case strings.Contains(t, "blob"), strings.Contains(t, "bytea"), strings.Contains(t, "binary"):
		return FamilyBinary
	case strings.Contains(t, "char"), strings.Contains(t, "text"), strings.Contains(t, "string"),
		strings.Contains(t, "clob"), strings.Contains(t, "json"), strings.Contains(t, "enum"):
		return FamilyText
	}
	return FamilyUnknown
}

// IsNumeric reports whether values of the family support AVG and SUM.
func (f TypeFamily) IsNumeric() bool {
	return f == FamilyInteger || f == FamilyNumeric
}

// Compatible reports whether a key of family f can reference a key of family o.
func (f TypeFamily) Compatible(o TypeFamily) bool {
	return f == o
}

// IsFreeText reports whether a declared type holds long-form text or blobs.
func IsFreeText(declared string) bool {
	t := strings.ToLower(declared)
	switch {
	case strings.Contains(t, "text"), strings.Contains(t, "clob"), strings.Contains(t, "blob"),
		strings.Contains(t, "bytea"), strings.Contains(t, "json"):
		return true
	}
	return false
}

package domain

import "strings"

// abbreviations expands common column-name stems before table lookup.
var abbreviations = map[string]string{
	"dept": "department",
	"emp":  "employee",
	"mgr":  "manager",
	"org":  "organization",
	"loc":  "location",
	"pos":  "position",
}

// InferRelations proposes foreign keys from `<table>_id` naming for tables
// that declare none. A candidate is accepted only when the target table
// exists, the target column is its identity key, and both column types fall
// in the same family.
func InferRelations(tables []Table, declared []ForeignKeyRelation) []ForeignKeyRelation {
	withDeclared := make(map[string]bool, len(declared))
	for _, r := range declared {
		withDeclared[lowerASCII(r.SourceTable)] = true
	}
	byName := make(map[string]int, len(tables))
	for i, t := range tables {
		byName[lowerASCII(t.Name)] = i
	}

	var inferred []ForeignKeyRelation
	for si := range tables {
		src := &tables[si]
		if withDeclared[lowerASCII(src.Name)] {
			continue
		}
		for _, col := range src.Columns {
			stem, ok := idStem(col.Name)
			if !ok || isSoleKey(src, col.Name) {
				continue
			}
			ti, ok := lookupTarget(stem, byName)
			if !ok {
				continue
			}
			target := &tables[ti]
			key, ok := target.IdentityColumn()
			if !ok {
				continue
			}
			if ti == si && equalFold(key, col.Name) {
				continue
			}
			keyCol, _ := target.Column(key)
			if !FamilyOf(col.Type).Compatible(FamilyOf(keyCol.Type)) {
				continue
			}
			inferred = append(inferred, ForeignKeyRelation{
				SourceTable:  src.Name,
				SourceColumn: col.Name,
				TargetTable:  target.Name,
				TargetColumn: keyCol.Name,
				Kind:         RelationInferred,
			})
		}
	}
	return inferred
}

func idStem(column string) (string, bool) {
	c := lowerASCII(column)
	if !strings.HasSuffix(c, "_id") || len(c) <= 3 {
		return "", false
	}
	return c[:len(c)-3], true
}

func isSoleKey(t *Table, column string) bool {
	return len(t.PrimaryKey) == 1 && equalFold(t.PrimaryKey[0], column)
}

// lookupTarget tries the stem as written, its plural and singular, then the
// same for its expanded abbreviation.
func lookupTarget(stem string, byName map[string]int) (int, bool) {
	stems := []string{stem}
	if full, ok := abbreviations[stem]; ok {
		stems = append(stems, full)
	}
	for _, s := range stems {
		for _, cand := range []string{s, Plural(s), Singular(s)} {
			if i, ok := byName[cand]; ok {
				return i, true
			}
		}
	}
	return 0, false
}

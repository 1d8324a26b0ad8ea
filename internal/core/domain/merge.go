package domain

import "fmt"

// MergeHybrid attaches each document to the first row whose correlation
// column equals the document's employee id, then appends the remaining
// documents as standalone items. Every row is kept in order and every
// document appears exactly once.
func MergeHybrid(rows []Row, correlationColumn string, docs []DocumentMatch) []MergedItem {
	out := make([]MergedItem, 0, len(rows)+len(docs))
	firstRow := make(map[string]int, len(rows))
	for _, row := range rows {
		out = append(out, MergedItem{Row: row})
		if correlationColumn == "" {
			continue
		}
		if key, ok := correlationKey(row[correlationColumn]); ok {
			if _, dup := firstRow[key]; !dup {
				firstRow[key] = len(out) - 1
			}
		}
	}

	used := make(map[string]bool, len(docs))
	for _, d := range docs {
		if used[d.ChunkID] {
			continue
		}
		if i, ok := firstRow[d.Source.EmployeeID]; ok && d.Source.EmployeeID != "" {
			out[i].Documents = append(out[i].Documents, d)
			used[d.ChunkID] = true
		}
	}
	for i := range docs {
		if used[docs[i].ChunkID] {
			continue
		}
		used[docs[i].ChunkID] = true
		out = append(out, MergedItem{Document: &docs[i], Standalone: true})
	}
	return out
}

func correlationKey(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, x != ""
	case []byte:
		return string(x), len(x) > 0
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x)), true
		}
		return fmt.Sprint(x), true
	default:
		return fmt.Sprint(x), true
	}
}

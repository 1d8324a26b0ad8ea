package domain

import "time"

// Row is one structured result row keyed by output column.
type Row map[string]any

// SourceMetadata attributes a chunk to its uploaded document.
type SourceMetadata struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	FileType   string `json:"file_type"`
	ChunkIndex int    `json:"chunk_index"`
	EmployeeID string `json:"employee_id,omitempty"`
}

// DocumentMatch is one semantic search hit.
type DocumentMatch struct {
	ChunkID    string         `json:"chunk_id"`
	Similarity float64        `json:"similarity"`
	Content    string         `json:"content"`
	Source     SourceMetadata `json:"source"`
}

// MergedItem is one entry of a hybrid result: a structured row with the
// documents correlated to it, or a standalone document.
type MergedItem struct {
	Row        Row             `json:"row,omitempty"`
	Documents  []DocumentMatch `json:"documents,omitempty"`
	Document   *DocumentMatch  `json:"document,omitempty"`
	Standalone bool            `json:"standalone"`
}

type Timing struct {
	Total      time.Duration `json:"total"`
	Structured time.Duration `json:"structured,omitempty"`
	Semantic   time.Duration `json:"semantic,omitempty"`
}

// ExecutionResult carries rows, documents, or both for hybrid questions.
type ExecutionResult struct {
	Mode      QueryMode       `json:"mode"`
	Query     *RenderedQuery  `json:"query,omitempty"`
	Columns   []string        `json:"columns,omitempty"`
	Rows      []Row           `json:"rows,omitempty"`
	Documents []DocumentMatch `json:"documents,omitempty"`
	Merged    []MergedItem    `json:"merged,omitempty"`
	Warnings  []string        `json:"warnings,omitempty"`
	Intent    *QueryIntent    `json:"intent,omitempty"`
	Timing    Timing          `json:"timing"`
	CacheHit  bool            `json:"cache_hit"`
}

// ResultCount is rows plus documents, the number reported in history.
func (r *ExecutionResult) ResultCount() int {
	return len(r.Rows) + len(r.Documents)
}

package domain

import (
	"strings"
	"unicode"
)

// ChunkSpec sets chunk size and overlap in characters for one file type.
type ChunkSpec struct {
	Size    int
	Overlap int
}

var chunkSpecs = map[string]ChunkSpec{
	"pdf":  {Size: 1000, Overlap: 200},
	"docx": {Size: 800, Overlap: 150},
	"txt":  {Size: 1200, Overlap: 200},
	"csv":  {Size: 500, Overlap: 50},
}

// ChunkSpecFor returns the chunking parameters of a file type.
func ChunkSpecFor(fileType string) ChunkSpec {
	if s, ok := chunkSpecs[fileType]; ok {
		return s
	}
	return chunkSpecs["txt"]
}

// ChunkText splits text into pieces of at most spec.Size runes, cutting at
// the last whitespace inside the window when possible and repeating up to
// spec.Overlap runes, starting on a word boundary, between consecutive chunks.
func ChunkText(text string, spec ChunkSpec) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}
	if spec.Size <= 0 {
		spec = chunkSpecs["txt"]
	}
	if spec.Overlap >= spec.Size {
		spec.Overlap = spec.Size / 5
	}

	var chunks []string
	for start := 0; start < len(runes); {
		end := min(start+spec.Size, len(runes))
		if end < len(runes) {
			for cut := end; cut > start+spec.Size/2; cut-- {
				if unicode.IsSpace(runes[cut]) {
					end = cut
					break
				}
			}
		}
		if c := strings.TrimSpace(string(runes[start:end])); c != "" {
			chunks = append(chunks, c)
		}
		if end >= len(runes) {
			break
		}
		next := end - spec.Overlap
		if next <= start {
			next = end
		}
		for next < end && !unicode.IsSpace(runes[next-1]) {
			next++
		}
		start = next
	}
	return chunks
}

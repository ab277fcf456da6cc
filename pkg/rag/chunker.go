// Package rag implements the SQLite-backed document + embedding store,
// its fixed-window chunker, and cosine top-K search, per spec.md §4.9.
package rag

import "strings"

const (
	defaultChunkSize    = 500
	defaultChunkOverlap = 50
)

// ChunkText splits content into overlapping windows of at most size
// runes, preferring to end a chunk at the last sentence terminator
// within the window, else the last space, else a hard cut. Whitespace-
// only chunks are dropped. Grounded directly on the original chunker's
// char-window-with-boundary-preference algorithm.
func ChunkText(content string, size, overlap int) []string {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = defaultChunkOverlap
	}

	runes := []rune(content)
	var chunks []string
	start := 0

	for start < len(runes) {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}

		cut := end
		if end < len(runes) {
			window := runes[start:end]
			if i := lastIndexAny(window, ".!?"); i >= 0 {
				cut = start + i + 1
			} else if i := lastIndexRune(window, ' '); i >= 0 {
				cut = start + i
			}
		}
		if cut <= start {
			cut = end
		}

		chunk := string(runes[start:cut])
		if strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}

		advance := (cut - start) - overlap
		if advance <= 0 {
			advance = cut - start
			if advance <= 0 {
				advance = 1
			}
		}
		start += advance
		if cut >= len(runes) {
			break
		}
	}

	return chunks
}

func lastIndexAny(runes []rune, chars string) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if strings.ContainsRune(chars, runes[i]) {
			return i
		}
	}
	return -1
}

func lastIndexRune(runes []rune, target rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == target {
			return i
		}
	}
	return -1
}

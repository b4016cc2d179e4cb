// Package usecases contains application business rules.
// Clean Architecture: Usecases orchestrate entities and depend on port interfaces.
// They contain NO framework code - just pure business logic.
package usecases

import "strings"

// boundarySeparators are tried in order when looking for a cut point:
// paragraph break, line break, sentence end, word boundary. If none is
// found inside the window the chunk is cut at the hard length bound.
var boundarySeparators = []string{"\n\n", "\n", ". ", " "}

// Splitter cuts text into overlapping chunks of at most size runes.
// It seeks natural boundaries so chunks rarely end mid-sentence, while
// always respecting the hard length bound. Consecutive chunks share
// overlap runes so no semantic unit is lost at a cut.
type Splitter struct {
	size    int
	overlap int
}

// NewSplitter creates a splitter. Non-positive size falls back to 1024,
// negative overlap to 80, the default chunking parameters.
func NewSplitter(size, overlap int) *Splitter {
	if size <= 0 {
		size = 1024
	}
	if overlap < 0 {
		overlap = 80
	}
	if overlap >= size {
		overlap = size / 4
	}
	return &Splitter{size: size, overlap: overlap}
}

// Split cuts text into chunks. Chunks are exact substrings of the input:
// concatenating them with the overlap removed reproduces the original text.
func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= s.size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + s.size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}

		end = s.seekBoundary(runes, start, end)
		chunks = append(chunks, string(runes[start:end]))

		next := end - s.overlap
		if next <= start {
			next = end // Chunk shorter than the overlap: no back-step
		}
		start = next
	}

	return chunks
}

// seekBoundary moves end back to just after the last natural boundary in
// the window, trying separators from coarsest to finest. Returns the hard
// bound when no separator occurs after start.
func (s *Splitter) seekBoundary(runes []rune, start, end int) int {
	window := string(runes[start:end])
	for _, sep := range boundarySeparators {
		idx := strings.LastIndex(window, sep)
		if idx <= 0 {
			continue
		}
		// Cut after the separator so it stays with the preceding chunk.
		cut := start + len([]rune(window[:idx+len(sep)]))
		if cut > start {
			return cut
		}
	}
	return end
}

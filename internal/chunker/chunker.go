// Package chunker splits extracted document text into overlapping windows
// sized for the embedding model.
package chunker

import (
	"strings"
	"unicode"
)

// Piece is one chunk of source text. Start and End are rune offsets into the
// text handed to Chunk, so pieces can be mapped back to the source.
type Piece struct {
	Seq   int
	Start int
	End   int
	Text  string
}

const (
	defaultWindow  = 1000
	defaultOverlap = 200
)

// Chunk splits text into windows of at most window runes with the given
// overlap between consecutive pieces. Windows prefer to break on whitespace
// so sentences split across a boundary stay retrievable from the neighboring
// piece.
//
// Text shorter than one window yields exactly one piece. A trailing remainder
// shorter than the overlap is merged into the previous piece instead of being
// emitted as a near-empty final piece.
func Chunk(text string, window, overlap int) []Piece {
	if window <= 0 {
		window = defaultWindow
	}
	if overlap < 0 || overlap >= window {
		overlap = defaultOverlap
		if overlap >= window {
			overlap = window / 5
		}
	}

	runes := []rune(text)
	if len(strings.TrimSpace(text)) == 0 {
		return nil
	}

	var pieces []Piece
	start := 0
	for start < len(runes) {
		end := start + window
		if end > len(runes) {
			end = len(runes)
		}

		// Back off to the last whitespace inside the window so words are
		// not cut in half. A window without any whitespace is cut hard.
		if end < len(runes) {
			if ws := lastSpace(runes[start:end]); ws > 0 {
				end = start + ws
			}
		}

		content := string(runes[start:end])
		if strings.TrimSpace(content) != "" {
			pieces = append(pieces, Piece{
				Seq:   len(pieces),
				Start: start,
				End:   end,
				Text:  content,
			})
		}

		if end == len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}

	// Merge a degenerate tail into its predecessor: a final piece whose new
	// content beyond the previous piece is shorter than the overlap would
	// produce a near-duplicate embedding.
	if n := len(pieces); n >= 2 {
		last := pieces[n-1]
		prev := pieces[n-2]
		if last.End-prev.End < overlap {
			prev.End = last.End
			prev.Text = string(runes[prev.Start:last.End])
			pieces[n-2] = prev
			pieces = pieces[:n-1]
		}
	}

	return pieces
}

// lastSpace returns the index just past the last whitespace rune in window,
// or 0 when the window contains none.
func lastSpace(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		if unicode.IsSpace(window[i]) {
			return i + 1
		}
	}
	return 0
}

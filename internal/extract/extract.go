// Package extract converts uploaded document bytes (PDF, DOCX, plain text)
// into UTF-8 plain text.
package extract

import (
	"errors"
	"fmt"
	"mime"
	"strings"
)

var (
	// ErrUnsupportedFormat means the declared type is not one the extractor
	// understands.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrCorruptFile means the bytes could not be read as the declared type.
	ErrCorruptFile = errors.New("corrupt document file")
)

// Result carries extracted text plus extraction metadata. Partial is set when
// parts of the document (e.g. malformed PDF pages) had to be skipped; the
// text is best-effort in that case, not an error.
type Result struct {
	Text    string
	Partial bool
	Pages   int
}

const (
	mimePDF      = "application/pdf"
	mimeDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeMSWord   = "application/msword"
	mimeTextPref = "text/"
)

// Extract converts raw document bytes into plain text according to the
// declared MIME type. Extraction never fails on malformed embedded objects:
// it degrades to partial text with Result.Partial set.
func Extract(data []byte, declaredType string) (Result, error) {
	mediaType := declaredType
	if parsed, _, err := mime.ParseMediaType(declaredType); err == nil {
		mediaType = parsed
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))

	switch {
	case mediaType == mimePDF:
		return extractPDF(data)
	case mediaType == mimeDOCX || mediaType == mimeMSWord:
		return extractDOCX(data)
	case strings.HasPrefix(mediaType, mimeTextPref):
		return extractPlainText(data), nil
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, declaredType)
	}
}

// extractPlainText decodes bytes as UTF-8, dropping invalid sequences and
// normalizing line endings.
func extractPlainText(data []byte) Result {
	text := strings.ToValidUTF8(string(data), "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return Result{Text: text}
}

package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF reads text page by page. Pages with malformed content streams
// are skipped and flagged as partial rather than failing the whole document.
func extractPDF(data []byte) (Result, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrCorruptFile, err)
	}

	total := reader.NumPage()
	var sb strings.Builder
	partial := false

	for i := 1; i <= total; i++ {
		text, ok := extractPDFPage(reader, i)
		if !ok {
			partial = true
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	res := extractPlainText([]byte(sb.String()))
	res.Partial = partial
	res.Pages = total
	return res, nil
}

// extractPDFPage isolates a single page read. The pdf library panics on some
// malformed content streams, so the recover keeps one bad page from killing
// the extraction.
func extractPDFPage(reader *pdf.Reader, n int) (text string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			text, ok = "", false
		}
	}()

	page := reader.Page(n)
	if page.V.IsNull() {
		return "", false
	}
	content, err := page.GetPlainText(nil)
	if err != nil {
		return "", false
	}
	return content, true
}

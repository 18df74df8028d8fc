package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// extractDOCX pulls paragraph text out of the word/document.xml entry of the
// OOXML container. Runs inside a paragraph are concatenated; paragraphs are
// separated by newlines.
func extractDOCX(data []byte) (Result, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrCorruptFile, err)
	}

	var docEntry *zip.File
	for _, f := range archive.File {
		if f.Name == "word/document.xml" {
			docEntry = f
			break
		}
	}
	if docEntry == nil {
		return Result{}, fmt.Errorf("%w: missing word/document.xml", ErrCorruptFile)
	}

	rc, err := docEntry.Open()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrCorruptFile, err)
	}
	defer rc.Close()

	text, partial := walkDocumentXML(rc)
	res := extractPlainText([]byte(text))
	res.Partial = partial
	return res, nil
}

// walkDocumentXML streams the document XML, collecting character data inside
// <w:t> elements and emitting a newline at each paragraph end. A decode error
// midway degrades to the text gathered so far.
func walkDocumentXML(r io.Reader) (string, bool) {
	decoder := xml.NewDecoder(r)
	var sb strings.Builder
	inText := false

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			return sb.String(), false
		}
		if err != nil {
			return sb.String(), true
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
}

package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

const docxDocumentPath = "word/document.xml"

// extractDOCXText pulls the visible text out of a .docx blob. The format is
// a zip container whose word/document.xml carries the body; paragraphs
// become lines, tabs and breaks become whitespace.
func extractDOCXText(raw []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("open docx container: %w", err)
	}

	for _, file := range zr.File {
		if file.Name != docxDocumentPath {
			continue
		}
		body, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("open %s: %w", docxDocumentPath, err)
		}
		defer body.Close()
		return parseDOCXBody(body)
	}
	return "", fmt.Errorf("docx container has no %s", docxDocumentPath)
}

func parseDOCXBody(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)
	var builder strings.Builder
	inText := false

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse docx body: %w", err)
		}

		switch tok := token.(type) {
		case xml.StartElement:
			switch tok.Name.Local {
			case "t":
				inText = true
			case "tab":
				builder.WriteByte(' ')
			case "br":
				builder.WriteByte('\n')
			}
		case xml.EndElement:
			switch tok.Name.Local {
			case "t":
				inText = false
			case "p":
				builder.WriteByte('\n')
			}
		case xml.CharData:
			// Only w:t elements carry document text; everything else in the
			// body is layout and revision markup.
			if inText {
				builder.Write(tok)
			}
		}
	}

	return strings.TrimSpace(builder.String()), nil
}

package extract

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"docqa/internal/domain"
)

const wordMainPart = "word/document.xml"

// extractDOCX reads the paragraphs of the main document part, one line per
// paragraph. Legacy binary .doc files are not zip archives and are rejected.
func extractDOCX(path string) (domain.ExtractedText, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		if errors.Is(err, zip.ErrFormat) {
			return domain.ExtractedText{}, fmt.Errorf("%w: not an Office Open XML document", domain.ErrUnsupportedInput)
		}
		return domain.ExtractedText{}, err
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != wordMainPart {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return domain.ExtractedText{}, err
		}
		defer rc.Close()
		text, err := paragraphs(rc)
		if err != nil {
			return domain.ExtractedText{}, err
		}
		return domain.ExtractedText{Text: text}, nil
	}
	return domain.ExtractedText{}, fmt.Errorf("%w: %s missing from archive", domain.ErrUnsupportedInput, wordMainPart)
}

func paragraphs(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var sb strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return sb.String(), nil
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteString("\t")
			case "br", "cr":
				sb.WriteString("\n")
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

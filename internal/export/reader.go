package export

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// ReadParagraphs returns the text of every paragraph in a .docx package, in order.
func ReadParagraphs(data []byte) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("not a docx package: %w", err)
	}

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("error opening document.xml: %w", err)
		}
		defer rc.Close()
		return parseParagraphs(rc)
	}
	return nil, fmt.Errorf("document.xml not found")
}

// ReadText returns the document text with one paragraph per line.
func ReadText(data []byte) (string, error) {
	paragraphs, err := ReadParagraphs(data)
	if err != nil {
		return "", err
	}
	return strings.Join(paragraphs, "\n"), nil
}

func parseParagraphs(r io.Reader) ([]string, error) {
	decoder := xml.NewDecoder(r)
	var (
		paragraphs []string
		current    strings.Builder
		inPara     bool
		inText     bool
	)

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error parsing document.xml: %w", err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inPara = true
				current.Reset()
			case "t":
				inText = true
			case "br":
				if inPara {
					current.WriteByte('\n')
				}
			case "tab":
				if inPara {
					current.WriteByte('\t')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				paragraphs = append(paragraphs, current.String())
				inPara = false
			case "t":
				inText = false
			}
		case xml.CharData:
			if inPara && inText {
				current.Write(t)
			}
		}
	}
	return paragraphs, nil
}

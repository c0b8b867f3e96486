package export

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ContentType is the MIME type of a WordprocessingML package.
const ContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

const wordNamespace = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

type alignment string

const (
	alignLeft   alignment = "left"
	alignCenter alignment = "center"
)

// run is a span of text sharing one set of character properties.
type run struct {
	Text   string
	Bold   bool
	Italic bool
	Size   int // half-points, 0 keeps the style default
	Color  string
}

// paragraph is one w:p element.
type paragraph struct {
	Style  string
	Align  alignment
	Bullet bool
	Runs   []run
}

func textParagraph(text string) paragraph {
	return paragraph{Runs: []run{{Text: text}}}
}

func headingParagraph(text string) paragraph {
	return paragraph{Style: "Heading2", Runs: []run{{Text: text}}}
}

func spacerParagraph() paragraph {
	return paragraph{Runs: []run{{Text: ""}}}
}

func bulletParagraph(text string) paragraph {
	return paragraph{Style: "ListBullet", Bullet: true, Runs: []run{{Text: text}}}
}

// document is an in-memory word-processor document.
type document struct {
	Title      string
	Creator    string
	Paragraphs []paragraph
}

func (d *document) add(p ...paragraph) {
	d.Paragraphs = append(d.Paragraphs, p...)
}

// packagePart is one file inside the zip container.
type packagePart struct {
	Name    string
	Content string
}

// render assembles the OPC package.
func (d *document) render() ([]byte, error) {
	body, err := d.documentXML()
	if err != nil {
		return nil, err
	}

	parts := []packagePart{
		{Name: "[Content_Types].xml", Content: contentTypesXML},
		{Name: "_rels/.rels", Content: rootRelsXML},
		{Name: "word/_rels/document.xml.rels", Content: documentRelsXML},
		{Name: "word/document.xml", Content: body},
		{Name: "word/styles.xml", Content: stylesXML},
		{Name: "word/numbering.xml", Content: numberingXML},
		{Name: "docProps/core.xml", Content: d.coreXML()},
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, part := range parts {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: part.Name, Method: zip.Deflate})
		if err != nil {
			return nil, fmt.Errorf("failed to add %s: %w", part.Name, err)
		}
		if _, err := io.WriteString(w, part.Content); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", part.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize package: %w", err)
	}
	return buf.Bytes(), nil
}

func (d *document) documentXML() (string, error) {
	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString(`<w:document xmlns:w="` + wordNamespace + `"><w:body>`)
	for _, p := range d.Paragraphs {
		if err := writeParagraph(&b, p); err != nil {
			return "", err
		}
	}
	b.WriteString(`<w:sectPr><w:pgSz w:w="11906" w:h="16838"/>`)
	b.WriteString(`<w:pgMar w:top="1440" w:right="1440" w:bottom="1440" w:left="1440" w:header="708" w:footer="708" w:gutter="0"/>`)
	b.WriteString(`</w:sectPr></w:body></w:document>`)
	return b.String(), nil
}

func writeParagraph(b *strings.Builder, p paragraph) error {
	b.WriteString("<w:p>")
	if p.Style != "" || p.Bullet || p.Align != "" {
		b.WriteString("<w:pPr>")
		if p.Style != "" {
			b.WriteString(`<w:pStyle w:val="` + p.Style + `"/>`)
		}
		if p.Bullet {
			b.WriteString(`<w:numPr><w:ilvl w:val="0"/><w:numId w:val="1"/></w:numPr>`)
		}
		if p.Align != "" {
			b.WriteString(`<w:jc w:val="` + string(p.Align) + `"/>`)
		}
		b.WriteString("</w:pPr>")
	}
	for _, r := range p.Runs {
		if err := writeRun(b, r); err != nil {
			return err
		}
	}
	b.WriteString("</w:p>")
	return nil
}

func writeRun(b *strings.Builder, r run) error {
	b.WriteString("<w:r>")
	if r.Bold || r.Italic || r.Color != "" || r.Size > 0 {
		b.WriteString("<w:rPr>")
		if r.Bold {
			b.WriteString("<w:b/>")
		}
		if r.Italic {
			b.WriteString("<w:i/>")
		}
		if r.Color != "" {
			b.WriteString(`<w:color w:val="` + r.Color + `"/>`)
		}
		if r.Size > 0 {
			size := strconv.Itoa(r.Size)
			b.WriteString(`<w:sz w:val="` + size + `"/><w:szCs w:val="` + size + `"/>`)
		}
		b.WriteString("</w:rPr>")
	}

	// Line breaks inside a run become w:br so the text survives round trips.
	for i, line := range strings.Split(r.Text, "\n") {
		if i > 0 {
			b.WriteString("<w:br/>")
		}
		b.WriteString(`<w:t xml:space="preserve">`)
		if err := xml.EscapeText(b, []byte(line)); err != nil {
			return fmt.Errorf("failed to escape text: %w", err)
		}
		b.WriteString("</w:t>")
	}
	b.WriteString("</w:r>")
	return nil
}

func (d *document) coreXML() string {
	var title, creator bytes.Buffer
	_ = xml.EscapeText(&title, []byte(d.Title))
	_ = xml.EscapeText(&creator, []byte(d.Creator))
	return xml.Header +
		`<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" ` +
		`xmlns:dc="http://purl.org/dc/elements/1.1/">` +
		`<dc:title>` + title.String() + `</dc:title>` +
		`<dc:creator>` + creator.String() + `</dc:creator>` +
		`</cp:coreProperties>`
}

const contentTypesXML = xml.Header +
	`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
	`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
	`<Default Extension="xml" ContentType="application/xml"/>` +
	`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
	`<Override PartName="/word/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"/>` +
	`<Override PartName="/word/numbering.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.numbering+xml"/>` +
	`<Override PartName="/docProps/core.xml" ContentType="application/vnd.openxmlformats-package.core-properties+xml"/>` +
	`</Types>`

const rootRelsXML = xml.Header +
	`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>` +
	`<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties" Target="docProps/core.xml"/>` +
	`</Relationships>`

const documentRelsXML = xml.Header +
	`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>` +
	`<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/numbering" Target="numbering.xml"/>` +
	`</Relationships>`

const stylesXML = xml.Header +
	`<w:styles xmlns:w="` + wordNamespace + `">` +
	`<w:docDefaults><w:rPrDefault><w:rPr><w:rFonts w:ascii="Calibri" w:hAnsi="Calibri" w:cs="Arial"/><w:sz w:val="22"/></w:rPr></w:rPrDefault></w:docDefaults>` +
	`<w:style w:type="paragraph" w:default="1" w:styleId="Normal"><w:name w:val="Normal"/><w:pPr><w:spacing w:after="120"/></w:pPr></w:style>` +
	`<w:style w:type="paragraph" w:styleId="Heading2"><w:name w:val="heading 2"/><w:basedOn w:val="Normal"/><w:next w:val="Normal"/>` +
	`<w:pPr><w:keepNext/><w:spacing w:before="240" w:after="120"/><w:outlineLvl w:val="1"/></w:pPr>` +
	`<w:rPr><w:b/><w:color w:val="2E74B5"/><w:sz w:val="26"/></w:rPr></w:style>` +
	`<w:style w:type="paragraph" w:styleId="ListBullet"><w:name w:val="List Bullet"/><w:basedOn w:val="Normal"/>` +
	`<w:pPr><w:numPr><w:numId w:val="1"/></w:numPr><w:ind w:left="720" w:hanging="360"/></w:pPr></w:style>` +
	`</w:styles>`

const numberingXML = xml.Header +
	`<w:numbering xmlns:w="` + wordNamespace + `">` +
	`<w:abstractNum w:abstractNumId="0"><w:multiLevelType w:val="singleLevel"/>` +
	`<w:lvl w:ilvl="0"><w:start w:val="1"/><w:numFmt w:val="bullet"/><w:lvlText w:val="•"/><w:lvlJc w:val="left"/>` +
	`<w:pPr><w:ind w:left="720" w:hanging="360"/></w:pPr></w:lvl></w:abstractNum>` +
	`<w:num w:numId="1"><w:abstractNumId w:val="0"/></w:num>` +
	`</w:numbering>`

package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ppiankov/citeaudit/internal/model"
)

// parseDOCX extracts paragraphs, heading levels, flattened table rows and
// footnotes from a WordprocessingML package
func parseDOCX(data []byte) ([]model.Block, map[string]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, nil, fmt.Errorf("open docx: %w", err)
	}

	body, err := readZipEntry(zr, "word/document.xml")
	if err != nil {
		return nil, nil, err
	}

	blocks, err := parseDocumentXML(body)
	if err != nil {
		return nil, nil, fmt.Errorf("document.xml: %w", err)
	}

	footnotes := map[string]string{}
	if notes, err := readZipEntry(zr, "word/footnotes.xml"); err == nil {
		// Footnotes are best-effort; a broken footnotes part keeps the body
		if parsed, err := parseFootnotesXML(notes); err == nil {
			footnotes = parsed
		}
	}

	return blocks, footnotes, nil
}

func readZipEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("missing %s", name)
}

func attr(se xml.StartElement, local string) string {
	for _, a := range se.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// headingLevel maps paragraph style ids such as "Heading2" or "Title" to a level
func headingLevel(style string) int {
	s := strings.ToLower(strings.ReplaceAll(style, " ", ""))
	if s == "title" {
		return 1
	}
	if !strings.HasPrefix(s, "heading") {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimPrefix(s, "heading"))
	if err != nil || n < 1 {
		return 1
	}
	if n > 6 {
		n = 6
	}
	return n
}

func parseDocumentXML(data []byte) ([]model.Block, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var (
		blocks     []model.Block
		para       strings.Builder
		style      string
		inText     bool
		tableDepth int
		cells      []string
		cell       strings.Builder
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				para.Reset()
				style = ""
			case "pStyle":
				style = attr(t, "val")
			case "t":
				inText = true
			case "tab", "br", "cr":
				para.WriteString(" ")
			case "footnoteReference":
				if id := attr(t, "id"); id != "" {
					para.WriteString(" [^" + id + "]")
				}
			case "tbl":
				tableDepth++
			case "tr":
				if tableDepth == 1 {
					cells = cells[:0]
				}
			case "tc":
				if tableDepth == 1 {
					cell.Reset()
				}
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				text := strings.TrimSpace(para.String())
				if tableDepth > 0 {
					if text != "" {
						if cell.Len() > 0 {
							cell.WriteString(" ")
						}
						cell.WriteString(text)
					}
					continue
				}
				blocks = append(blocks, model.Block{Text: text, Heading: headingLevel(style)})
			case "tc":
				if tableDepth == 1 {
					cells = append(cells, strings.TrimSpace(cell.String()))
				}
			case "tr":
				if tableDepth == 1 {
					blocks = append(blocks, model.Block{Text: joinCells(cells)})
				}
			case "tbl":
				tableDepth--
			}
		}
	}

	return blocks, nil
}

// joinCells renders a table row in reading order
func joinCells(cells []string) string {
	var nonEmpty []string
	for _, c := range cells {
		if c != "" {
			nonEmpty = append(nonEmpty, c)
		}
	}
	return strings.Join(nonEmpty, " | ")
}

func parseFootnotesXML(data []byte) (map[string]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	notes := make(map[string]string)

	var (
		id     string
		skip   bool
		inText bool
		buf    strings.Builder
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "footnote":
				id = attr(t, "id")
				typ := attr(t, "type")
				skip = typ == "separator" || typ == "continuationSeparator" || typ == "continuationNotice"
				buf.Reset()
			case "t":
				inText = true
			case "tab", "br":
				buf.WriteString(" ")
			case "p":
				if buf.Len() > 0 {
					buf.WriteString(" ")
				}
			}
		case xml.CharData:
			if inText {
				buf.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "footnote":
				if !skip && id != "" {
					if text := strings.TrimSpace(buf.String()); text != "" {
						notes[id] = text
					}
				}
			}
		}
	}

	return notes, nil
}

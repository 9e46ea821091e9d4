package extract

import (
	"bytes"
	"strings"

	"github.com/ppiankov/citeaudit/internal/model"
	"golang.org/x/net/html"
)

var blockElements = map[string]bool{
	"p": true, "li": true, "blockquote": true, "tr": true, "dd": true, "dt": true,
	"figcaption": true, "caption": true, "pre": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// parseHTML extracts visible block text from an HTML export of a review,
// skipping scripts and styles
func parseHTML(data []byte) ([]model.Block, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	var blocks []model.Block
	var loose strings.Builder

	flushLoose := func() {
		if t := strings.TrimSpace(loose.String()); t != "" {
			blocks = append(blocks, model.Block{Text: t})
		}
		loose.Reset()
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "head":
				return
			}
			if blockElements[n.Data] {
				flushLoose()
				level := 0
				if len(n.Data) == 2 && n.Data[0] == 'h' {
					level = int(n.Data[1] - '0')
				}
				blocks = append(blocks, model.Block{Text: visibleText(n), Heading: level})
				return
			}
		}

		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				loose.WriteString(t)
				loose.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(doc)
	flushLoose()

	return blocks, nil
}

// visibleText concatenates the text nodes below n
func visibleText(n *html.Node) string {
	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe":
				return
			case "td", "th":
				if buf.Len() > 0 {
					buf.WriteString(" | ")
				}
			}
		}

		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)
	return strings.Join(strings.Fields(buf.String()), " ")
}

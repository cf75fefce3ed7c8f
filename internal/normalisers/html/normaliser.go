// Package html extracts readable text from HTML pages.
package html

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	xhtml "golang.org/x/net/html"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
	"github.com/custodia-labs/pdfqa/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// blockTags end a line of text.
var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true, "br": true,
	"dd": true, "div": true, "dl": true, "dt": true, "figcaption": true, "figure": true,
	"footer": true, "form": true, "h1": true, "h2": true, "h3": true, "h4": true,
	"h5": true, "h6": true, "header": true, "hr": true, "li": true, "main": true,
	"nav": true, "ol": true, "p": true, "pre": true, "section": true, "table": true,
	"tr": true, "ul": true,
}

// skipTags hold no readable text.
var skipTags = map[string]bool{
	"iframe": true, "noscript": true, "object": true, "script": true,
	"style": true, "svg": true, "template": true,
}

// Normaliser handles HTML and XHTML documents.
type Normaliser struct{}

// New creates a new HTML normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/html", "application/xhtml+xml"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise converts an HTML page to text, one line per block element.
// The title comes from <title>, then the first <h1>, then the filename.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	page, err := parse(bytes.TrimPrefix(raw.Content, []byte("\xef\xbb\xbf")))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidInput, raw.URI, err)
	}

	title := page.title
	if title == "" {
		title = page.heading
	}
	if title == "" {
		title = titleFromURI(raw.URI)
	}

	doc := domain.Document{
		URI:       raw.URI,
		Title:     title,
		Type:      domain.DocumentTypeHTML,
		Content:   page.text,
		Metadata:  copyMetadata(raw.Metadata),
		CreatedAt: time.Now(),
	}
	if doc.Metadata == nil {
		doc.Metadata = make(map[string]any)
	}
	doc.Metadata["mime_type"] = raw.MIMEType
	doc.Metadata["format"] = "html"

	return &driven.NormaliseResult{Document: doc}, nil
}

type parsedPage struct {
	title   string
	heading string
	text    string
}

// parse walks the token stream. <head> is skipped apart from its <title>
// and ends at </head> or <body>, whichever comes first.
func parse(content []byte) (parsedPage, error) {
	var (
		page            parsedPage
		body, title, h1 strings.Builder
		skip, h1Depth   int
		inHead, inTitle bool
		headingDone     bool
	)

	z := xhtml.NewTokenizer(bytes.NewReader(content))
	for {
		tt := z.Next()
		switch tt {
		case xhtml.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return parsedPage{}, err
			}
			page.title = collapse(title.String())
			page.heading = collapse(h1.String())
			page.text = lines(body.String())
			return page, nil

		case xhtml.TextToken:
			text := bytes.Map(spaceBreaks, z.Text())
			switch {
			case inTitle:
				title.Write(text)
			case inHead || skip > 0:
				// not readable
			default:
				body.Write(text)
				if h1Depth > 0 && !headingDone {
					h1.Write(text)
				}
			}

		case xhtml.StartTagToken, xhtml.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			switch {
			case tag == "head":
				inHead = true
			case tag == "body":
				inHead = false
			case tag == "title":
				inTitle = tt == xhtml.StartTagToken
			case skipTags[tag] && tt == xhtml.StartTagToken:
				skip++
			case tag == "h1" && !inHead && skip == 0:
				h1Depth++
			}
			if blockTags[tag] {
				body.WriteByte('\n')
			} else if tag == "td" || tag == "th" {
				body.WriteByte(' ')
			}

		case xhtml.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			switch {
			case tag == "head":
				inHead = false
			case tag == "title":
				inTitle = false
			case skipTags[tag] && skip > 0:
				skip--
			case tag == "h1" && h1Depth > 0:
				h1Depth--
				if h1Depth == 0 && h1.Len() > 0 {
					headingDone = true
				}
			}
			if blockTags[tag] {
				body.WriteByte('\n')
			}
		}
	}
}

// spaceBreaks turns source line breaks into spaces; only tags end lines.
func spaceBreaks(r rune) rune {
	switch r {
	case '\n', '\r', '\f':
		return ' '
	}
	return r
}

// collapse joins runs of whitespace into single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// lines collapses whitespace within each line and drops blank lines.
func lines(s string) string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = collapse(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func titleFromURI(uri string) string {
	name := filepath.Base(uri)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return strings.NewReplacer("_", " ", "-", " ").Replace(name)
}

// copyMetadata creates a shallow copy of metadata.
func copyMetadata(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// Package pdf extracts text from PDF documents.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
	"github.com/custodia-labs/pdfqa/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// maxTitleLength bounds titles taken from the first line of text.
const maxTitleLength = 200

// Normaliser handles PDF documents.
// Text is extracted page by page; pages that cannot be decoded are
// skipped and reported as warnings.
type Normaliser struct{}

// New creates a new PDF normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"application/pdf"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise converts a PDF document to a normalised document.
// Page texts are joined by a newline.
func (n *Normaliser) Normalise(ctx context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}
	if len(raw.Content) == 0 {
		return nil, fmt.Errorf("%w: empty PDF", domain.ErrInvalidInput)
	}

	ext, err := extract(ctx, raw.Content, raw.URI)
	if err != nil {
		return nil, err
	}
	warnings := ext.warnings
	content := strings.Join(ext.pages, "\n")
	if content == "" {
		warnings = append(warnings, "no extractable text (scanned or image-only PDF?)")
	}

	doc := domain.Document{
		URI:       raw.URI,
		Title:     ext.title,
		Type:      domain.DocumentTypePDF,
		Content:   content,
		Pages:     ext.numPages,
		Metadata:  copyMetadata(raw.Metadata),
		CreatedAt: time.Now(),
	}
	if doc.Metadata == nil {
		doc.Metadata = make(map[string]any)
	}
	doc.Metadata["mime_type"] = raw.MIMEType
	doc.Metadata["format"] = "pdf"
	doc.Metadata["page_count"] = ext.numPages

	return &driven.NormaliseResult{
		Document: doc,
		Warnings: warnings,
	}, nil
}

// extraction is the text and structure read from a PDF.
type extraction struct {
	pages    []string
	warnings []string
	numPages int
	title    string
}

// extract reads every page of a PDF. A panic from the PDF library
// anywhere in the walk makes the file invalid input.
func extract(ctx context.Context, content []byte, uri string) (ext extraction, err error) {
	defer func() {
		if r := recover(); r != nil {
			ext, err = extraction{}, fmt.Errorf("%w: unreadable PDF: %v", domain.ErrInvalidInput, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return extraction{}, fmt.Errorf("%w: encrypted or unreadable PDF: %v", domain.ErrInvalidInput, err)
	}

	ext.numPages = reader.NumPage()
	for i := 1; i <= ext.numPages; i++ {
		if err := ctx.Err(); err != nil {
			return extraction{}, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			ext.warnings = append(ext.warnings, fmt.Sprintf("page %d: missing page object", i))
			continue
		}

		text, err := pageText(page)
		if err != nil {
			ext.warnings = append(ext.warnings, fmt.Sprintf("page %d: %v", i, err))
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		ext.pages = append(ext.pages, text)
	}

	ext.title = documentTitle(reader, strings.Join(ext.pages, "\n"), uri)
	return ext, nil
}

// pageText extracts plain text from a single page.
// The PDF library panics on some malformed content streams.
func pageText(page pdf.Page) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed content stream: %v", r)
		}
	}()
	return page.GetPlainText(nil)
}

// documentTitle prefers the Info dictionary title, then the first line of
// text, then the filename.
func documentTitle(reader *pdf.Reader, content, uri string) (title string) {
	defer func() {
		if recover() != nil {
			title = extractTitle(content, uri)
		}
	}()
	if t := strings.TrimSpace(reader.Trailer().Key("Info").Key("Title").Text()); t != "" {
		return t
	}
	return extractTitle(content, uri)
}

// extractTitle extracts a title from the first non-empty line of content,
// falling back to the filename.
func extractTitle(content, uri string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && len(line) < maxTitleLength && strings.IndexByte(line, 0) < 0 {
			return line
		}
	}

	filename := filepath.Base(uri)
	filename = strings.TrimSuffix(filename, filepath.Ext(filename))
	filename = strings.ReplaceAll(filename, "_", " ")
	filename = strings.ReplaceAll(filename, "-", " ")
	return filename
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

// Package docx extracts text from Word (.docx) documents.
package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
	"github.com/custodia-labs/pdfqa/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// MIMEType is the media type of Office Open XML word processing documents.
const MIMEType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

const (
	documentPart   = "word/document.xml"
	propertiesPart = "docProps/core.xml"

	// maxPartSize bounds the decompressed size of a part read from the archive.
	maxPartSize = 64 << 20
)

// Normaliser handles DOCX documents.
// Body paragraphs become lines; each table row becomes one line with its
// cell text separated by spaces. Deleted revisions are not included.
type Normaliser struct{}

// New creates a new DOCX normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{MIMEType}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise converts a DOCX document to a normalised document.
func (n *Normaliser) Normalise(ctx context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	archive, err := zip.NewReader(bytes.NewReader(raw.Content), int64(len(raw.Content)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not a DOCX archive: %v", domain.ErrInvalidInput, raw.URI, err)
	}

	body, err := readPart(archive, documentPart)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidInput, raw.URI, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := bodyText(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s: %v", domain.ErrInvalidInput, raw.URI, documentPart, err)
	}

	doc := domain.Document{
		URI:       raw.URI,
		Title:     documentTitle(archive, raw.URI),
		Type:      domain.DocumentTypeDOCX,
		Content:   content,
		Metadata:  copyMetadata(raw.Metadata),
		CreatedAt: time.Now(),
	}
	if doc.Metadata == nil {
		doc.Metadata = make(map[string]any)
	}
	doc.Metadata["mime_type"] = raw.MIMEType
	doc.Metadata["format"] = "docx"

	return &driven.NormaliseResult{Document: doc}, nil
}

var errMissingPart = errors.New("missing part")

func readPart(archive *zip.Reader, name string) ([]byte, error) {
	for _, f := range archive.File {
		if f.Name != name {
			continue
		}
		if f.UncompressedSize64 > maxPartSize {
			return nil, fmt.Errorf("%s is %d bytes, limit %d", name, f.UncompressedSize64, maxPartSize)
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()

		data, err := io.ReadAll(io.LimitReader(rc, maxPartSize+1))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if len(data) > maxPartSize {
			return nil, fmt.Errorf("%s exceeds %d bytes", name, maxPartSize)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%s: %w", name, errMissingPart)
}

// bodyText walks document.xml by local element name: p (paragraph),
// t (text run), tab, br/cr (breaks), tbl/tr (tables).
func bodyText(data []byte) (string, error) {
	var (
		lines      []string
		para, row  strings.Builder
		inText     bool
		tableDepth int
	)

	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
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
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte(' ')
			case "tbl":
				tableDepth++
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
				text := strings.Join(strings.Fields(para.String()), " ")
				para.Reset()
				if text == "" {
					continue
				}
				if tableDepth > 0 {
					if row.Len() > 0 {
						row.WriteByte(' ')
					}
					row.WriteString(text)
				} else {
					lines = append(lines, text)
				}
			case "tr":
				if row.Len() > 0 {
					lines = append(lines, row.String())
					row.Reset()
				}
			case "tbl":
				tableDepth--
			}
		}
	}
	return strings.Join(lines, "\n"), nil
}

// documentTitle prefers dc:title from the core properties, then the filename.
func documentTitle(archive *zip.Reader, uri string) string {
	if data, err := readPart(archive, propertiesPart); err == nil {
		var props struct {
			Title string `xml:"title"`
		}
		if xml.Unmarshal(data, &props) == nil {
			if title := strings.TrimSpace(props.Title); title != "" {
				return title
			}
		}
	}

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

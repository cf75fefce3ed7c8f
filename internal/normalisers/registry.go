package normalisers

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
	"github.com/custodia-labs/pdfqa/internal/core/ports/driven"
	"github.com/custodia-labs/pdfqa/internal/normalisers/docx"
	"github.com/custodia-labs/pdfqa/internal/normalisers/html"
	"github.com/custodia-labs/pdfqa/internal/normalisers/markdown"
	"github.com/custodia-labs/pdfqa/internal/normalisers/pdf"
	"github.com/custodia-labs/pdfqa/internal/normalisers/plaintext"
)

// Ensure Registry implements the interface.
var _ driven.NormaliserRegistry = (*Registry)(nil)

// documentNamespace scopes URI-derived document IDs.
var documentNamespace = uuid.MustParse("3a7d9c1e-2b4f-5a6c-8d0e-9f1a2b3c4d5e")

// extensionTypes maps file extensions to MIME types.
var extensionTypes = map[string]string{
	".pdf":      "application/pdf",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".txt":      "text/plain",
	".text":     "text/plain",
	".log":      "text/x-log",
	".csv":      "text/csv",
	".html":     "text/html",
	".htm":      "text/html",
	".xhtml":    "application/xhtml+xml",
	".docx":     docx.MIMEType,
}

// DocumentID derives a stable document ID from its source URI, so indexing
// an edited file replaces the previous version rather than adding another.
func DocumentID(uri string) string {
	return uuid.NewSHA1(documentNamespace, []byte(filepath.Clean(uri))).String()
}

// MIMETypeFor returns the MIME type for a file name, or "" if unsupported.
func MIMETypeFor(name string) string {
	return extensionTypes[strings.ToLower(filepath.Ext(name))]
}

// Registry dispatches raw documents to the highest-priority normaliser
// registered for their MIME type.
type Registry struct {
	mu     sync.RWMutex
	byType map[string][]driven.Normaliser
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byType: make(map[string][]driven.Normaliser)}
}

// NewDefaultRegistry creates a registry with every built-in normaliser.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(pdf.New())
	r.Register(docx.New())
	r.Register(html.New())
	r.Register(markdown.New())
	r.Register(plaintext.New())
	return r
}

// Register adds a normaliser for each of its MIME types.
func (r *Registry) Register(n driven.Normaliser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, mime := range n.SupportedMIMETypes() {
		list := append(r.byType[mime], n)
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Priority() > list[j].Priority()
		})
		r.byType[mime] = list
	}
}

// SupportedMIMETypes returns all registered MIME types in lexical order.
func (r *Registry) SupportedMIMETypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.byType))
	for mime := range r.byType {
		types = append(types, mime)
	}
	sort.Strings(types)
	return types
}

// Normalise transforms raw using the best matching normaliser.
// When MIMEType is empty it is inferred from the URI extension.
func (r *Registry) Normalise(ctx context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	mime := raw.MIMEType
	if mime == "" {
		mime = MIMETypeFor(raw.URI)
	}

	r.mu.RLock()
	candidates := r.byType[mime]
	r.mu.RUnlock()

	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %q (%s)", domain.ErrUnsupportedType, raw.URI, mime)
	}

	typed := *raw
	typed.MIMEType = mime

	result, err := candidates[0].Normalise(ctx, &typed)
	if err != nil {
		return nil, err
	}
	if result.Document.ID == "" {
		result.Document.ID = DocumentID(raw.URI)
	}
	return result, nil
}

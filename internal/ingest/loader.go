package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/pdiscovery/pdiscovery/internal/log"
)

// Loader extracts text and metadata from source documents.
// Supported formats: PDF (.pdf) and Markdown (.md, .markdown).
type Loader struct {
	logger log.Logger
}

// NewLoader creates a document loader.
func NewLoader(logger log.Logger) *Loader {
	return &Loader{logger: logger.With("component", "loader")}
}

// Supported reports whether the loader handles the given path.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".md", ".markdown":
		return true
	}
	return false
}

// Load reads a document from disk and normalizes it.
// A declared DocType overrides filename inference; pass DocTypeUnknown to
// infer from the filename.
func (l *Loader) Load(path string, declared DocType) (*Document, error) {
	start := time.Now()

	var (
		text  string
		pages int
		err   error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		text, pages, err = l.extractPDF(path)
	case ".md", ".markdown":
		text, err = l.extractMarkdown(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrExtraction, path, err)
	}

	text = normalizeText(text)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %s: no extractable text", ErrExtraction, path)
	}

	docType := declared
	if docType == "" || docType == DocTypeUnknown {
		docType = inferDocType(path)
	}

	doc := &Document{
		ID:         DocumentID(path),
		Title:      titleFor(path, text),
		Type:       docType,
		SourceName: filepath.Base(path),
		SourcePath: path,
		Text:       text,
		Pages:      pages,
		LoadedAt:   time.Now().UTC(),
	}

	l.logger.Debug("document loaded",
		"path", path,
		"doc_id", doc.ID,
		"type", doc.Type,
		"chars", len(text),
		"pages", pages,
		"duration", time.Since(start))

	return doc, nil
}

// extractPDF pulls plain text from every page. Pages that fail to decode
// are skipped rather than failing the whole document; malformed PDFs from
// export tools are common and usually only lose a cover page.
func (l *Loader) extractPDF(path string) (text string, pages int, err error) {
	// The pdf library panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parsing panic: %v", r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	pages = reader.NumPage()
	var sb strings.Builder
	skipped := 0
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			skipped++
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			skipped++
			continue
		}
		sb.WriteString(content)
		sb.WriteString("\n\n")
	}
	if skipped > 0 {
		l.logger.Warn("skipped unreadable pdf pages",
			"path", path, "skipped", skipped, "total", pages)
	}

	return sb.String(), pages, nil
}

func (l *Loader) extractMarkdown(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading file: %w", err)
	}
	return string(data), nil
}

// titleFor returns the first level-1 Markdown heading when present,
// otherwise the filename stem.
func titleFor(path, text string) string {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if after, ok := strings.CutPrefix(trimmed, "# "); ok {
			if title := strings.TrimSpace(after); title != "" {
				return title
			}
		}
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// inferDocType guesses the document role from filename keywords.
func inferDocType(path string) DocType {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.Contains(name, "interview"), strings.Contains(name, "entrevista"):
		return DocTypeInterview
	case strings.Contains(name, "research"), strings.Contains(name, "pesquisa"):
		return DocTypeResearch
	case strings.Contains(name, "guideline"), strings.Contains(name, "diretriz"):
		return DocTypeGuideline
	case strings.Contains(name, "discovery"):
		return DocTypeDiscovery
	}
	return DocTypeUnknown
}

// normalizeText collapses Windows line endings and trims trailing
// whitespace per line so chunk boundaries behave the same regardless of
// the export tool that produced the file.
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

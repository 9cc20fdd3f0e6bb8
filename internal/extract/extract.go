// Package extract turns a statement document into an ordered sequence
// of page texts. Pages with a usable embedded text layer are read
// directly; the rest are delegated to the classification service for
// verbatim transcription.
package extract

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"

	"github.com/dvoloshyn/statement-insights/internal/domain"
)

// PageText is the extracted text of one page, labeled with its
// 1-based page number.
type PageText struct {
	Number int
	Text   string
}

// Transcriber reads a page of the document when the text layer is
// unusable. The classifier satisfies this.
type Transcriber interface {
	TranscribePage(ctx context.Context, document []byte, pageNumber int) (string, error)
}

// Extractor is the text extraction stage.
type Extractor struct {
	transcriber Transcriber
	log         zerolog.Logger
}

// New creates an Extractor.
func New(transcriber Transcriber, log zerolog.Logger) *Extractor {
	return &Extractor{transcriber: transcriber, log: log}
}

// Extract returns the per-page text of the document at path, in page
// order. It fails with an ExtractionError when no pages are readable
// or the transcription dependency is down; that is reported, not
// retried, because it means the input is unusable.
func (e *Extractor) Extract(ctx context.Context, path string) ([]PageText, error) {
	reader, closeFn, err := openDocument(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	numPages := reader.NumPage()
	if numPages == 0 {
		return nil, domain.NewExtractionError(domain.ReasonEmpty,
			fmt.Errorf("document has no pages"))
	}

	// The raw bytes are only needed if at least one page falls back
	// to transcription; loaded lazily.
	var docBytes []byte

	pages := make([]PageText, 0, numPages)
	readable := 0
	for n := 1; n <= numPages; n++ {
		text := embeddedPageText(reader, n)
		if usableText(text) {
			pages = append(pages, PageText{Number: n, Text: strings.TrimSpace(text)})
			readable++
			continue
		}

		if docBytes == nil {
			docBytes, err = os.ReadFile(path)
			if err != nil {
				return nil, domain.NewStorageError(fmt.Errorf("extract: reading %q: %w", path, err))
			}
		}

		e.log.Debug().Int("page", n).Msg("no usable text layer, delegating to transcription")
		transcribed, err := e.transcriber.TranscribePage(ctx, docBytes, n)
		if err != nil {
			return nil, domain.NewExtractionError(domain.ReasonServiceUnavailable,
				fmt.Errorf("transcribing page %d: %w", n, err))
		}
		transcribed = strings.TrimSpace(transcribed)
		if transcribed != "" {
			pages = append(pages, PageText{Number: n, Text: transcribed})
			readable++
		} else {
			pages = append(pages, PageText{Number: n, Text: ""})
		}
	}

	if readable == 0 {
		return nil, domain.NewExtractionError(domain.ReasonEmpty,
			fmt.Errorf("no readable pages in %d-page document", numPages))
	}

	return pages, nil
}

// BuildDocumentText concatenates page texts in page order, each
// introduced by its page marker exactly once.
func BuildDocumentText(pages []PageText) string {
	var b strings.Builder
	for i, p := range pages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "=== PAGE %d ===\n", p.Number)
		b.WriteString(p.Text)
	}
	return b.String()
}

// openDocument opens the PDF, mapping library failures onto the
// extraction taxonomy. The library can panic on malformed files, so
// the open is fenced.
func openDocument(path string) (reader *pdf.Reader, closeFn func(), err error) {
	defer func() {
		if r := recover(); r != nil {
			reader = nil
			closeFn = nil
			err = domain.NewExtractionError(domain.ReasonCorrupted,
				fmt.Errorf("pdf library panic: %v", r))
		}
	}()

	f, r, openErr := pdf.Open(path)
	if openErr != nil {
		reason := domain.ReasonCorrupted
		msg := strings.ToLower(openErr.Error())
		if strings.Contains(msg, "encrypt") || strings.Contains(msg, "password") {
			reason = domain.ReasonEncrypted
		}
		return nil, nil, domain.NewExtractionError(reason, openErr)
	}
	return r, func() { f.Close() }, nil
}

// embeddedPageText pulls the text layer of one page. Extraction
// errors on individual pages degrade to an empty string so the page
// can fall back to transcription.
func embeddedPageText(r *pdf.Reader, pageNumber int) (text string) {
	defer func() {
		if rec := recover(); rec != nil {
			text = ""
		}
	}()

	page := r.Page(pageNumber)
	if page.V.IsNull() {
		return ""
	}

	rows, err := page.GetTextByRow()
	if err == nil && len(rows) > 0 {
		var lines []string
		for _, row := range rows {
			var parts []string
			for _, word := range row.Content {
				parts = append(parts, word.S)
			}
			line := strings.TrimSpace(strings.Join(parts, " "))
			if line != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			return strings.Join(lines, "\n")
		}
	}

	// Fall back to plain text with the page's font map.
	fonts := make(map[string]*pdf.Font)
	for _, name := range page.Fonts() {
		f := page.Font(name)
		fonts[name] = &f
	}
	plain, err := page.GetPlainText(fonts)
	if err != nil {
		return ""
	}
	return plain
}

// usableText decides whether an embedded text layer is worth keeping:
// enough characters, and mostly readable ASCII rather than the garbage
// that identity-encoded fonts produce.
func usableText(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 30 {
		return false
	}
	total, readable := 0, 0
	for _, r := range trimmed {
		total++
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == ' ' || r == '\n' || r == '\t' ||
			r == '.' || r == ',' || r == '-' || r == '/' || r == ':' ||
			r == '(' || r == ')' || r == '$' || r == '£' || r == '€' {
			readable++
		}
	}
	return float64(readable)/float64(total) > 0.6
}

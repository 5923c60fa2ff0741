// Package extract converts raw document payloads into an ordered sequence of
// page texts. Extraction is a pure transformation: no I/O beyond the supplied
// bytes, and page order always follows source order.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"rag-knowledge-backend/models"
)

var (
	// ErrUnsupportedFormat is returned when the declared type is not one the
	// extractor recognises.
	ErrUnsupportedFormat = errors.New("extract: unsupported format")
	// ErrCorruptInput is returned when the payload cannot be parsed as its
	// declared type.
	ErrCorruptInput = errors.New("extract: corrupt input")
	// ErrEmptyDocument is returned when parsing succeeds but no text remains.
	// It is a recoverable condition, not a crash.
	ErrEmptyDocument = errors.New("extract: empty document")
)

var paragraphSplit = regexp.MustCompile(`\n\s*\n`)

// Extract parses raw into ordered page texts based on the declared type.
// Accepted types: pdf, html/htm, txt/text/md, xlsx (extensions or the common
// MIME spellings). The output is always a sequence of text blocks, never a
// single concatenated string, so downstream chunking can keep per-block
// provenance.
func Extract(raw []byte, declaredType string) ([]models.Page, error) {
	switch normalizeType(declaredType) {
	case "pdf":
		return extractPDF(raw)
	case "html":
		return extractHTML(raw)
	case "txt":
		return extractText(raw)
	case "xlsx":
		return extractXLSX(raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, declaredType)
	}
}

// Title pulls the <title> of an HTML payload, or "" when absent. Used by the
// scrape path to name documents after the page they came from.
func Title(raw []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func normalizeType(declared string) string {
	t := strings.ToLower(strings.TrimSpace(declared))
	t = strings.TrimPrefix(t, ".")
	switch {
	case t == "pdf" || t == "application/pdf":
		return "pdf"
	case t == "html" || t == "htm" || t == "text/html":
		return "html"
	case t == "txt" || t == "text" || t == "md" || t == "text/plain" || t == "text/markdown":
		return "txt"
	case t == "xlsx" || strings.Contains(t, "spreadsheetml"):
		return "xlsx"
	default:
		return t
	}
}

// extractPDF returns one page per physical PDF page. Pages that carry no
// extractable text are skipped but the source page numbering is preserved.
func extractPDF(raw []byte) (pages []models.Page, err error) {
	// The pdf library panics on some malformed files; fold that into the
	// corrupt-input contract.
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("%w: pdf parser panic: %v", ErrCorruptInput, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptInput, err)
	}

	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		pages = append(pages, models.Page{Number: i, Text: text})
	}

	if len(pages) == 0 {
		return nil, ErrEmptyDocument
	}
	return pages, nil
}

// extractHTML returns semantic sections (paragraph/heading groups) as pages.
// Boilerplate elements are stripped and the main content region preferred.
func extractHTML(raw []byte) ([]models.Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptInput, err)
	}

	doc.Find("script, style, nav, footer, header").Remove()

	root := doc.Find("article").First()
	if root.Length() == 0 {
		root = doc.Find("main").First()
	}
	if root.Length() == 0 {
		root = doc.Find("body").First()
	}
	if root.Length() == 0 {
		root = doc.Selection
	}

	var pages []models.Page
	root.Find("p, h1, h2, h3, h4, h5, h6, li").Each(func(_ int, s *goquery.Selection) {
		text := collapseWhitespace(s.Text())
		// Very short fragments are navigation crumbs, not content.
		if len(text) > 20 {
			pages = append(pages, models.Page{Number: len(pages) + 1, Text: text})
		}
	})

	if len(pages) == 0 {
		if text := collapseWhitespace(root.Text()); text != "" {
			pages = append(pages, models.Page{Number: 1, Text: text})
		}
	}
	if len(pages) == 0 {
		return nil, ErrEmptyDocument
	}
	return pages, nil
}

// extractText treats blank-line-separated paragraphs as pages.
func extractText(raw []byte) ([]models.Page, error) {
	var pages []models.Page
	for _, para := range paragraphSplit.Split(string(raw), -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		pages = append(pages, models.Page{Number: len(pages) + 1, Text: para})
	}
	if len(pages) == 0 {
		return nil, ErrEmptyDocument
	}
	return pages, nil
}

// extractXLSX treats each sheet as one page, rows joined by newlines and
// cells by tabs.
func extractXLSX(raw []byte) ([]models.Page, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptInput, err)
	}
	defer f.Close()

	var pages []models.Page
	for i, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		var b strings.Builder
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, "\t"))
			if line == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(line)
		}
		if b.Len() == 0 {
			continue
		}
		pages = append(pages, models.Page{Number: i + 1, Text: b.String()})
	}

	if len(pages) == 0 {
		return nil, ErrEmptyDocument
	}
	return pages, nil
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

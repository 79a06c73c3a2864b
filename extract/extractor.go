package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/MingHacker/AIKnowledgeBase/types"
)

// Result carries everything pulled out of a source file: the page-marked
// text, the page count and best-effort document properties.
type Result struct {
	Text      string
	PageCount int
	Metadata  map[string]string
}

// TextExtractor pulls raw text and metadata from an uploaded file.
type TextExtractor interface {
	Extract(ctx context.Context, filePath string) (*Result, error)
}

// PDFExtractor extracts plain text page by page. Pages that fail to
// decode are skipped so one bad page never sinks the whole document.
type PDFExtractor struct {
	logger *slog.Logger

	// Crop margins in points. When non-zero the page is cropped before
	// extraction so running headers and footers stay out of the text.
	CropTop    float64
	CropBottom float64
}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{
		logger: slog.Default(),
	}
}

func (e *PDFExtractor) Extract(ctx context.Context, filePath string) (res *Result, err error) {
	// The pdf parser panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = &types.ExtractionError{Path: filePath, Err: fmt.Errorf("parse: %v", r)}
		}
	}()

	if err := pdfapi.ValidateFile(filePath, nil); err != nil {
		return nil, &types.ExtractionError{Path: filePath, Err: err}
	}

	readPath := filePath
	if e.CropTop > 0 || e.CropBottom > 0 {
		cropped, err := e.cropToTemp(filePath)
		if err != nil {
			// Crop is a cleanup step, not a gate.
			e.logger.Warn("header/footer crop failed, extracting uncropped", "file", filePath, "error", err)
		} else {
			readPath = cropped
			defer os.Remove(cropped)
		}
	}

	f, r, err := pdf.Open(readPath)
	if err != nil {
		return nil, &types.ExtractionError{Path: filePath, Err: err}
	}
	defer f.Close()

	pageCount := r.NumPage()

	pages := make([]pageText, 0, pageCount)
	for i := 1; i <= pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, &types.ExtractionError{Path: filePath, Err: err}
		}

		text, err := extractPage(r, i)
		if err != nil {
			e.logger.Warn("page extraction failed, skipping", "file", filePath, "page", i, "error", err)
			continue
		}
		pages = append(pages, pageText{number: i, text: text})
	}

	return &Result{
		Text:      markPages(pages),
		PageCount: pageCount,
		Metadata:  readInfoDict(r.Trailer().Key("Info")),
	}, nil
}

// pageText holds one successfully decoded page.
type pageText struct {
	number int
	text   string
}

// markPages joins decoded pages into one string, prefixing each with
// its attribution marker. Blank pages are dropped; the numbering keeps
// any gaps they or skipped pages leave.
func markPages(pages []pageText) string {
	var b strings.Builder
	for _, p := range pages {
		if strings.TrimSpace(p.text) == "" {
			continue
		}
		fmt.Fprintf(&b, "\n--- Page %d ---\n", p.number)
		b.WriteString(p.text)
	}
	return b.String()
}

func extractPage(r *pdf.Reader, num int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text = ""
			err = fmt.Errorf("page %d: %v", num, rec)
		}
	}()

	p := r.Page(num)
	if p.V.IsNull() {
		return "", nil
	}
	return p.GetPlainText(nil)
}

func (e *PDFExtractor) cropToTemp(filePath string) (string, error) {
	tmp, err := os.CreateTemp("", "kb-crop-*.pdf")
	if err != nil {
		return "", err
	}
	tmp.Close()

	if err := CropHeaderFooter(filePath, tmp.Name(), e.CropTop, e.CropBottom); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// readInfoDict maps the PDF Info dictionary to the metadata keys the
// rest of the system expects. Missing entries stay empty strings.
func readInfoDict(info pdf.Value) map[string]string {
	return map[string]string{
		"title":             infoString(info, "Title"),
		"author":            infoString(info, "Author"),
		"subject":           infoString(info, "Subject"),
		"creator":           infoString(info, "Creator"),
		"producer":          infoString(info, "Producer"),
		"creation_date":     infoString(info, "CreationDate"),
		"modification_date": infoString(info, "ModDate"),
	}
}

func infoString(info pdf.Value, key string) string {
	if info.IsNull() {
		return ""
	}
	v := info.Key(key)
	if v.Kind() != pdf.String {
		return ""
	}
	return v.RawString()
}

package ocr

import (
	"context"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Local extracts text in-process with a pure-Go PDF reader.
type Local struct{}

// NewLocal creates a Local extractor.
func NewLocal() *Local {
	return &Local{}
}

// ExtractText returns the plain text of every readable page joined by
// newlines. Encrypted files are opened with an empty password. Pages that
// fail to decode are skipped.
func (l *Local) ExtractText(ctx context.Context, pdfPath string) (string, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return "", eris.Wrapf(err, "ocr: open %s", pdfPath)
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		return "", eris.Wrapf(err, "ocr: stat %s", pdfPath)
	}

	r, err := openReader(f, info.Size())
	if err != nil {
		return "", eris.Wrapf(err, "ocr: parse %s", pdfPath)
	}

	total, err := pageCount(r)
	if err != nil {
		return "", eris.Wrapf(err, "ocr: parse %s", pdfPath)
	}

	var sb strings.Builder
	skipped := 0
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return "", eris.Wrap(err, "ocr: extract cancelled")
		}
		text, err := pageText(r, i)
		if err != nil {
			skipped++
			zap.L().Debug("ocr: skipping unreadable page",
				zap.String("path", pdfPath),
				zap.Int("page", i),
				zap.Error(err),
			)
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(text)
	}

	if skipped > 0 {
		zap.L().Warn("ocr: some pages could not be read",
			zap.String("path", pdfPath),
			zap.Int("skipped", skipped),
			zap.Int("pages", total),
		)
	}

	return sb.String(), nil
}

// openReader parses the document, recovering from reader panics on
// malformed cross-reference data.
func openReader(f *os.File, size int64) (r *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r, err = nil, eris.Errorf("malformed pdf: %v", rec)
		}
	}()
	return pdf.NewReaderEncrypted(f, size, func() string { return "" })
}

// pageCount reads the page tree. The reader resolves the catalog lazily, so
// a broken cross-reference table surfaces here as a panic.
func pageCount(r *pdf.Reader) (n int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			n, err = 0, eris.Errorf("malformed pdf: %v", rec)
		}
	}()
	return r.NumPage(), nil
}

func pageText(r *pdf.Reader, n int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", eris.Errorf("page %d: %v", n, rec)
		}
	}()
	p := r.Page(n)
	if p.V.IsNull() {
		return "", nil
	}
	return p.GetPlainText(nil)
}

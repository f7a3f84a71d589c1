package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/sirupsen/logrus"

	"github.com/dasmlab/kultura/pkg/apperror"
)

// LocalExtractor reads embedded PDF text in process. It cannot OCR, so
// scanned PDFs yield little or no text and images are rejected.
type LocalExtractor struct {
	logger *logrus.Logger
}

// NewLocalExtractor creates a LocalExtractor.
func NewLocalExtractor(logger *logrus.Logger) *LocalExtractor {
	if logger == nil {
		logger = logrus.New()
	}
	return &LocalExtractor{logger: logger}
}

// ExtractText extracts the text layer of a PDF.
func (e *LocalExtractor) ExtractText(ctx context.Context, data []byte, kind Kind) (text string, err error) {
	if kind != KindPDF {
		return "", apperror.New(apperror.ExtractionFailed, fmt.Sprintf("local extraction does not support %s documents", kind))
	}

	// The pdf package panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = apperror.Wrap(apperror.ExtractionFailed, "failed to process document", fmt.Errorf("%v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", apperror.Wrap(apperror.ExtractionFailed, "failed to process document", err)
	}

	pageCount := reader.NumPage()
	pages := make([]Page, 0, pageCount)
	for i := 1; i <= pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return "", apperror.FromTransport(err)
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		plain, err := page.GetPlainText(nil)
		if err != nil {
			e.logger.WithError(err).WithFields(logrus.Fields{
				"page": i,
			}).Warn("Failed to extract text from page")
			continue
		}
		pages = append(pages, Page{Lines: splitLines(plain)})
	}

	if len(pages) == 0 {
		e.logger.Warn("No pages found in the document")
		return "", nil
	}

	e.logger.WithFields(logrus.Fields{
		"page_count": len(pages),
	}).Info("Text extraction completed")

	return JoinPages(pages), nil
}

func splitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

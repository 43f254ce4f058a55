package pdfextract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PageSeparator is written between the text of consecutive pages.
const PageSeparator = "\n"

var ErrParse = errors.New("pdf parse failed")

// ParseError reports a byte stream that could not be read as a PDF document.
type ParseError struct {
	Cause error
}

func (e *ParseError) Error() string {
	if e == nil || e.Cause == nil {
		return ErrParse.Error()
	}
	return e.Cause.Error()
}

func (e *ParseError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrParse}
	}
	return []error{ErrParse, e.Cause}
}

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(r io.Reader) (string, error) {
	return ExtractText(r)
}

// ExtractText reads the entire content of r and returns the plain text of every
// page in document order, joined with PageSeparator. Pages without content
// contribute an empty string.
func ExtractText(r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read pdf failed: %w", err)
	}
	pages, err := ExtractPages(b)
	if err != nil {
		return "", err
	}
	return strings.Join(pages, PageSeparator), nil
}

// ExtractPages returns the plain text of each page of the document in b.
func ExtractPages(b []byte) (pages []string, err error) {
	// the pdf package panics on some malformed object graphs
	defer func() {
		if rec := recover(); rec != nil {
			pages = nil
			err = &ParseError{Cause: fmt.Errorf("%v", rec)}
		}
	}()

	if len(b) == 0 {
		return nil, &ParseError{Cause: errors.New("empty document")}
	}

	reader, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, &ParseError{Cause: err}
	}

	total := reader.NumPage()
	pages = make([]string, 0, total)
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() || page.V.Key("Contents").IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, &ParseError{Cause: fmt.Errorf("page %d: %w", i, err)}
		}
		// the text positioning operator at the top of a page yields a leading newline
		pages = append(pages, strings.TrimLeft(text, "\n"))
	}
	return pages, nil
}

package thumbnail

import (
	"fmt"

	"github.com/ledongthuc/pdf"
)

// PDFPageCounter reads page counts with a pure Go PDF parser.
type PDFPageCounter struct{}

// PageCount returns the number of pages of pdfPath.
func (PDFPageCounter) PageCount(pdfPath string) (n int, err error) {
	// The parser panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf %s: %v", pdfPath, r)
		}
	}()

	f, r, err := pdf.Open(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("open pdf %s: %w", pdfPath, err)
	}
	defer f.Close()

	return r.NumPage(), nil
}

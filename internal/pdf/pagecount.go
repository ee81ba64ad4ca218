package pdf

import (
	"context"

	"github.com/gen2brain/go-fitz"
	lpdf "github.com/ledongthuc/pdf"
)

// PageCounter answers page-count queries. It reads the page tree with a
// pure-Go parser first and falls back to MuPDF, which repairs damaged
// cross-reference tables.
type PageCounter struct{}

// NewPageCounter creates a page counter.
func NewPageCounter() *PageCounter {
	return &PageCounter{}
}

// PageCount returns the number of pages in path. ok is false when neither
// reader can open the document.
func (c *PageCounter) PageCount(_ context.Context, path string) (int, bool) {
	if n, ok := countWithReader(path); ok {
		return n, true
	}
	return countWithFitz(path)
}

func countWithReader(path string) (n int, ok bool) {
	// The reader panics on some malformed inputs.
	defer func() {
		if recover() != nil {
			n, ok = 0, false
		}
	}()

	f, r, err := lpdf.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	n = r.NumPage()
	return n, n > 0
}

func countWithFitz(path string) (int, bool) {
	doc, err := fitz.New(path)
	if err != nil {
		return 0, false
	}
	defer doc.Close()

	n := doc.NumPage()
	return n, n > 0
}

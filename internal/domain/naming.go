package domain

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	IntermediateExt = ".jpg"
	CompressedExt   = ".webp"

	// WholeDocumentToken prefixes intermediates of an unsharded raster task.
	WholeDocumentToken = "p"
)

// IntermediateName names one rasterized page. Zero padding keeps
// lexicographic order equal to page order within a token.
func IntermediateName(token string, page int) string {
	return fmt.Sprintf("%s%05d%s", token, page, IntermediateExt)
}

// CompressedName names the transcoded image for a zero-based sequence number.
func CompressedName(seq int) string {
	return fmt.Sprintf("%05d%s", seq, CompressedExt)
}

// ParseIntermediate recovers the token and page number from an intermediate
// image path. ok is false for names that do not follow IntermediateName.
func ParseIntermediate(path string) (token string, page int, ok bool) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	digits := strings.TrimLeftFunc(base, func(r rune) bool { return r < '0' || r > '9' })
	if digits == "" {
		return "", 0, false
	}
	page, err := strconv.Atoi(digits)
	if err != nil {
		return "", 0, false
	}
	return base[:len(base)-len(digits)], page, true
}

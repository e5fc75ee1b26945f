package extract

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// Plaintext reads UTF-8 text as is. A leading BOM is dropped.
type Plaintext struct{}

// Extract implements Extractor.
func (Plaintext) Extract(_ context.Context, name string, r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %w", domain.ErrExtraction, name, err)
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("%w: %s is not valid UTF-8", domain.ErrExtraction, name)
	}
	s := strings.TrimPrefix(string(b), "\ufeff")
	return strings.ReplaceAll(s, "\r\n", "\n"), nil
}

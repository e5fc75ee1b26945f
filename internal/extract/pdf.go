package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// ErrPDFToolNotFound is returned when the pdftotext binary cannot be found.
var ErrPDFToolNotFound = fmt.Errorf("%w: pdftotext not found (install poppler-utils)", domain.ErrExtraction)

// CommandRunner runs an external command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil && stderr.Len() > 0 {
		return nil, fmt.Errorf("%w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return out, err
}

// PDF extracts text with poppler's pdftotext.
type PDF struct {
	binary string
	runner CommandRunner
}

// NewPDF creates a PDF extractor. An empty binary means "pdftotext" on PATH.
func NewPDF(binary string) *PDF {
	if binary == "" {
		binary = "pdftotext"
	}
	return &PDF{binary: binary, runner: execRunner{}}
}

// WithRunner replaces the command runner.
func (p *PDF) WithRunner(r CommandRunner) *PDF {
	p.runner = r
	return p
}

// Extract implements Extractor. The body is copied to a temp file because
// pdftotext needs a seekable input.
func (p *PDF) Extract(ctx context.Context, name string, r io.Reader) (string, error) {
	bin, err := exec.LookPath(p.binary)
	if err != nil {
		return "", ErrPDFToolNotFound
	}

	tmp, err := os.CreateTemp("", "ragdex-pdf-*.pdf")
	if err != nil {
		return "", fmt.Errorf("%w: temp file: %w", domain.ErrExtraction, err)
	}
	defer os.Remove(tmp.Name())

	_, err = io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("%w: copy %s: %w", domain.ErrExtraction, name, err)
	}

	out, err := p.runner.Run(ctx, bin, "-layout", "-enc", "UTF-8", tmp.Name(), "-")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", errors.Join(ctxErr, err)
		}
		return "", fmt.Errorf("%w: pdftotext %s: %w", domain.ErrExtraction, name, err)
	}
	return string(bytes.ReplaceAll(out, []byte("\f"), []byte("\n\n"))), nil
}

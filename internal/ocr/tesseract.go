package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// TesseractProvider shells out to a locally installed tesseract binary. It is
// the default engine when no provider is configured.
type TesseractProvider struct {
	// Binary overrides the executable path; empty means "tesseract" on PATH.
	Binary string
	// Languages in tesseract notation, e.g. "eng".
	Languages string
}

func NewTesseractProvider() *TesseractProvider {
	return &TesseractProvider{Languages: "eng"}
}

func (p *TesseractProvider) Name() string { return "tesseract" }

func (p *TesseractProvider) Recognize(ctx context.Context, image []byte) (Result, error) {
	binary := p.Binary
	if binary == "" {
		binary = "tesseract"
	}

	args := []string{"stdin", "stdout"}
	if p.Languages != "" {
		args = append(args, "-l", p.Languages)
	}

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdin = bytes.NewReader(image)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Result{}, fmt.Errorf("tesseract: %v: %s", err, stderr.String())
	}

	// The CLI does not report a confidence figure; treat any non-empty output
	// as moderately confident and let the verification engine decide.
	confidence := 0.0
	text := stdout.String()
	if len(bytes.TrimSpace(stdout.Bytes())) > 0 {
		confidence = 75.0
	}

	return Result{Text: text, Confidence: confidence}, nil
}

package ocr

import (
	"context"
	"fmt"
	"log"

	"github.com/harmancioglue/chatpay-engine/internal/domain"
)

// Extractor turns a receipt image into text plus a confidence figure through
// a configurable provider.
type Extractor struct {
	providers    map[string]Provider
	defaultName  string
	preprocessor Preprocessor
}

// NewExtractor registers the given providers. The first provider in the list
// is the default used when the requested name is unset or unknown.
func NewExtractor(preprocessor Preprocessor, providers ...Provider) *Extractor {
	if preprocessor == nil {
		preprocessor = NoopPreprocessor{}
	}

	e := &Extractor{
		providers:    make(map[string]Provider, len(providers)),
		preprocessor: preprocessor,
	}
	for i, p := range providers {
		if i == 0 {
			e.defaultName = p.Name()
		}
		e.providers[p.Name()] = p
	}
	return e
}

// Extract runs preprocessing and recognition. A preprocessing failure falls
// back to the original buffer; a provider failure is reported as
// domain.ErrExtractionFailed so the job orchestrator can retry it.
func (e *Extractor) Extract(ctx context.Context, image []byte, providerName string) (Result, error) {
	provider, ok := e.providers[providerName]
	if !ok {
		if providerName != "" {
			log.Printf("Unknown OCR provider %q, falling back to %s", providerName, e.defaultName)
		}
		provider = e.providers[e.defaultName]
	}
	if provider == nil {
		return Result{}, fmt.Errorf("%w: no OCR provider configured", domain.ErrExtractionFailed)
	}

	processed, err := e.preprocessor.Process(image)
	if err != nil {
		log.Printf("Image preprocessing failed, using original buffer: %v", err)
		processed = image
	}

	result, err := provider.Recognize(ctx, processed)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %v", domain.ErrExtractionFailed, provider.Name(), err)
	}

	return result, nil
}

package ocr

import "context"

// Result is the output of a recognition call: the raw text and the provider's
// own confidence in it (0-100).
type Result struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Provider is the single capability every text-recognition backend exposes.
type Provider interface {
	Name() string
	Recognize(ctx context.Context, image []byte) (Result, error)
}

// Preprocessor may transform a receipt image before recognition. A failing
// preprocessor never aborts extraction; the original buffer is used instead.
type Preprocessor interface {
	Process(image []byte) ([]byte, error)
}

// NoopPreprocessor is the default: it hands the image through untouched.
type NoopPreprocessor struct{}

func (NoopPreprocessor) Process(image []byte) ([]byte, error) {
	return image, nil
}

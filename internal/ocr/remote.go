package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// OCRSpaceProvider calls the OCR.space REST API. Selected with the provider
// name "ocrspace".
type OCRSpaceProvider struct {
	APIKey   string
	Endpoint string
	Client   *http.Client
}

func NewOCRSpaceProvider(apiKey string) *OCRSpaceProvider {
	return &OCRSpaceProvider{
		APIKey:   apiKey,
		Endpoint: "https://api.ocr.space/parse/image",
		Client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *OCRSpaceProvider) Name() string { return "ocrspace" }

type ocrSpaceResponse struct {
	ParsedResults []struct {
		ParsedText string `json:"ParsedText"`
	} `json:"ParsedResults"`
	IsErroredOnProcessing bool   `json:"IsErroredOnProcessing"`
	ErrorMessage          any    `json:"ErrorMessage"`
	OCRExitCode           int    `json:"OCRExitCode"`
	SearchablePDFURL      string `json:"SearchablePDFURL"`
}

func (p *OCRSpaceProvider) Recognize(ctx context.Context, image []byte) (Result, error) {
	form := url.Values{}
	form.Set("apikey", p.APIKey)
	form.Set("base64Image", "data:image/png;base64,"+base64.StdEncoding.EncodeToString(image))
	form.Set("OCREngine", "2")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return Result{}, fmt.Errorf("ocrspace request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.Client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("ocrspace call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("ocrspace returned status %d", resp.StatusCode)
	}

	var parsed ocrSpaceResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{}, fmt.Errorf("ocrspace response decode: %w", err)
	}

	if parsed.IsErroredOnProcessing || len(parsed.ParsedResults) == 0 {
		return Result{}, fmt.Errorf("ocrspace processing error: %v", parsed.ErrorMessage)
	}

	return Result{Text: parsed.ParsedResults[0].ParsedText, Confidence: 80.0}, nil
}

package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/mmynk/splitit/internal/models"
)

// Prompt is the instruction sent alongside the receipt image.
const Prompt = "Extract the items, prices, subtotal, tax, and total from this receipt image. " +
	"If specific items are not clear, do your best to estimate. Return in valid JSON."

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	defaultGeminiModel   = "gemini-2.5-flash"
	maxErrorBody         = 512
)

// GeminiConfig holds the Gemini client configuration.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string

	// Timeout bounds one HTTP round trip. Zero means no timeout.
	Timeout time.Duration

	// BreakerFailures is the number of consecutive service failures that
	// open the circuit; BreakerCooldown is how long it stays open.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// GeminiExtractor calls the Gemini generateContent API with a JSON response
// schema. Consecutive service failures open a circuit breaker so a dead
// upstream fails fast instead of hanging every upload.
type GeminiExtractor struct {
	cfg     GeminiConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewGeminiExtractor creates an extractor with the given configuration.
func NewGeminiExtractor(cfg GeminiConfig) *GeminiExtractor {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGeminiBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown == 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}

	failures := cfg.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "gemini",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
		// Bad receipts are not the service's fault
		IsSuccessful: func(err error) bool {
			var extractErr *Error
			if errors.As(err, &extractErr) {
				return extractErr.Kind != KindUnavailable
			}
			return err == nil
		},
	})

	return &GeminiExtractor{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
	}
}

// Extract sends the image to Gemini and normalises the structured response.
func (g *GeminiExtractor) Extract(ctx context.Context, image []byte) (*models.Receipt, error) {
	if len(image) == 0 {
		return nil, newError(KindInvalidValue, "image is empty")
	}

	start := time.Now()
	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.generate(ctx, image)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = &Error{Kind: KindUnavailable, Err: err}
		}
		slog.Error("Receipt extraction failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	receipt, err := ParseReceipt(result.([]byte))
	if err != nil {
		slog.Error("Receipt extraction returned unusable data", "error", err)
		return nil, err
	}
	for _, w := range receipt.Warnings {
		slog.Warn("Receipt inconsistency", "warning", w)
	}
	slog.Info("Receipt extracted",
		"items", len(receipt.Lines),
		"total", receipt.Total.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return receipt, nil
}

type geminiRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	InlineData *inlineData `json:"inlineData,omitempty"`
	Text       string      `json:"text,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	ResponseMimeType string `json:"responseMimeType"`
	ResponseSchema   schema `json:"responseSchema"`
}

type schema struct {
	Type       string            `json:"type"`
	Properties map[string]schema `json:"properties,omitempty"`
	Items      *schema           `json:"items,omitempty"`
	Required   []string          `json:"required,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// receiptSchema mirrors RawReceipt: items and total are required.
var receiptSchema = schema{
	Type: "OBJECT",
	Properties: map[string]schema{
		"items": {
			Type: "ARRAY",
			Items: &schema{
				Type: "OBJECT",
				Properties: map[string]schema{
					"name":  {Type: "STRING"},
					"price": {Type: "NUMBER"},
				},
				Required: []string{"name", "price"},
			},
		},
		"subtotal": {Type: "NUMBER"},
		"tax":      {Type: "NUMBER"},
		"total":    {Type: "NUMBER"},
	},
	Required: []string{"items", "total"},
}

// generate performs one generateContent call and returns the JSON text the
// model produced.
func (g *GeminiExtractor) generate(ctx context.Context, image []byte) ([]byte, error) {
	mimeType := http.DetectContentType(image)
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = "image/jpeg"
	}

	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{InlineData: &inlineData{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(image)}},
				{Text: Prompt},
			},
		}},
		GenerationConfig: generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   receiptSchema,
		},
	})
	if err != nil {
		return nil, newError(KindMalformed, "encode request: %v", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", strings.TrimRight(g.cfg.BaseURL, "/"), g.cfg.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.cfg.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, newError(KindUnavailable, "gemini returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var gr geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, newError(KindMalformed, "decode gemini response: %v", err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return nil, newError(KindMalformed, "gemini response has no content")
	}

	var text strings.Builder
	for _, p := range gr.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	return []byte(text.String()), nil
}

package extraction

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pngHeader is enough for http.DetectContentType to report image/png.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0dIHDR")

func geminiServer(t *testing.T, status int, text string, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		assert.Equal(t, "/v1beta/models/test-model:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if assert.Len(t, req.Contents, 1) && assert.Len(t, req.Contents[0].Parts, 2) {
			assert.Equal(t, "image/png", req.Contents[0].Parts[0].InlineData.MimeType)
			assert.Equal(t, Prompt, req.Contents[0].Parts[1].Text)
		}
		assert.Equal(t, []string{"items", "total"}, req.GenerationConfig.ResponseSchema.Required)

		if status != http.StatusOK {
			http.Error(w, "upstream exploded", status)
			return
		}
		resp := map[string]any{
			"candidates": []any{
				map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": text}}}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func newTestExtractor(url string) *GeminiExtractor {
	return NewGeminiExtractor(GeminiConfig{
		APIKey:          "test-key",
		Model:           "test-model",
		BaseURL:         url,
		Timeout:         5 * time.Second,
		BreakerFailures: 2,
		BreakerCooldown: time.Minute,
	})
}

func TestGeminiExtractor(t *testing.T) {
	ctx := context.Background()

	t.Run("successful extraction", func(t *testing.T) {
		srv := geminiServer(t, http.StatusOK, `{"items":[{"name":"Burger","price":10},{"name":"Soda","price":2}],"tax":1.2,"total":13.2}`, nil)
		defer srv.Close()

		r, err := newTestExtractor(srv.URL).Extract(ctx, pngHeader)
		require.NoError(t, err)
		require.Len(t, r.Lines, 2)
		assert.Equal(t, "Soda", r.Lines[1].Name)
		assert.True(t, r.Subtotal.Equal(decimal.NewFromInt(12)), "subtotal = %s", r.Subtotal)
	})

	t.Run("empty image is rejected without a call", func(t *testing.T) {
		var calls int32
		srv := geminiServer(t, http.StatusOK, `{}`, &calls)
		defer srv.Close()

		_, err := newTestExtractor(srv.URL).Extract(ctx, nil)
		requireKind(t, err, KindInvalidValue)
		assert.Zero(t, atomic.LoadInt32(&calls))
	})

	t.Run("malformed model output", func(t *testing.T) {
		srv := geminiServer(t, http.StatusOK, `{"items": "lots"`, nil)
		defer srv.Close()

		_, err := newTestExtractor(srv.URL).Extract(ctx, pngHeader)
		requireKind(t, err, KindMalformed)
	})

	t.Run("missing total", func(t *testing.T) {
		srv := geminiServer(t, http.StatusOK, `{"items":[]}`, nil)
		defer srv.Close()

		_, err := newTestExtractor(srv.URL).Extract(ctx, pngHeader)
		requireKind(t, err, KindMissingField)
	})

	t.Run("service failures open the breaker", func(t *testing.T) {
		var calls int32
		srv := geminiServer(t, http.StatusInternalServerError, "", &calls)
		defer srv.Close()

		g := newTestExtractor(srv.URL)
		for i := 0; i < 2; i++ {
			_, err := g.Extract(ctx, pngHeader)
			requireKind(t, err, KindUnavailable)
		}

		// Breaker is open: fails fast without reaching the server
		_, err := g.Extract(ctx, pngHeader)
		requireKind(t, err, KindUnavailable)
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})

	t.Run("bad receipts do not open the breaker", func(t *testing.T) {
		var calls int32
		srv := geminiServer(t, http.StatusOK, `{"items":[{"name":"A","price":-3}],"total":1}`, &calls)
		defer srv.Close()

		g := newTestExtractor(srv.URL)
		for i := 0; i < 3; i++ {
			_, err := g.Extract(ctx, pngHeader)
			requireKind(t, err, KindInvalidValue)
		}
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})
}

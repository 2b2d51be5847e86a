package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpora-dev/corpora/internal/core/domain"
)

func TestNew(t *testing.T) {
	t.Run("requires an API key", func(t *testing.T) {
		_, err := New(Config{})
		assert.Error(t, err)
	})

	t.Run("applies defaults", func(t *testing.T) {
		p, err := New(Config{APIKey: "sk-test"})
		require.NoError(t, err)
		assert.Equal(t, "openai", p.Name())
		assert.Equal(t, DefaultModel, p.Model())
	})
}

func TestEmbedBatch(t *testing.T) {
	t.Run("orders embeddings by response index", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/embeddings", r.URL.Path)
			assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

			var req embeddingRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, []string{"first", "second"}, req.Input)

			// Respond out of order on purpose.
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{
				"data": [
					{"embedding": [0.2], "index": 1},
					{"embedding": [0.1], "index": 0}
				],
				"usage": {"prompt_tokens": 4, "total_tokens": 4}
			}`))
		}))
		defer srv.Close()

		p, err := New(Config{APIKey: "sk-test", BaseURL: srv.URL})
		require.NoError(t, err)

		embeddings, usage, err := p.EmbedBatch(context.Background(), []string{"first", "second"})
		require.NoError(t, err)
		require.Len(t, embeddings, 2)
		assert.Equal(t, []float32{0.1}, embeddings[0])
		assert.Equal(t, []float32{0.2}, embeddings[1])
		assert.Equal(t, domain.Usage{PromptTokens: 4, TotalTokens: 4}, usage)
	})

	t.Run("empty input makes no request", func(t *testing.T) {
		p, err := New(Config{APIKey: "sk-test", BaseURL: "http://127.0.0.1:1"})
		require.NoError(t, err)

		embeddings, usage, err := p.EmbedBatch(context.Background(), nil)
		require.NoError(t, err)
		assert.Nil(t, embeddings)
		assert.Zero(t, usage)
	})

	t.Run("API error message surfaces", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error": {"message": "invalid api key", "type": "auth"}}`))
		}))
		defer srv.Close()

		p, err := New(Config{APIKey: "sk-bad", BaseURL: srv.URL})
		require.NoError(t, err)

		_, _, err = p.EmbedBatch(context.Background(), []string{"text"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid api key")
	})

	t.Run("rate limiting maps to the sentinel", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`slow down`))
		}))
		defer srv.Close()

		p, err := New(Config{APIKey: "sk-test", BaseURL: srv.URL})
		require.NoError(t, err)

		_, _, err = p.EmbedBatch(context.Background(), []string{"text"})
		assert.True(t, errors.Is(err, domain.ErrRateLimited))
	})
}

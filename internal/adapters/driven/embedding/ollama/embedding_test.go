package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	p := New(Config{})

	assert.Equal(t, DefaultBaseURL, p.baseURL)
	assert.Equal(t, DefaultModel, p.model)
	assert.Equal(t, "ollama", p.Name())
	assert.Equal(t, DefaultModel, p.Model())
}

func TestEmbedBatch_OneRequestPerText(t *testing.T) {
	var requests int
	var models []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Equal(t, "/api/embeddings", r.URL.Path)

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		models = append(models, req.Model)

		resp := embedResponse{Embedding: []float64{0.1, 0.2, float64(requests)}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	p := New(Config{BaseURL: server.URL, Model: "all-minilm"})

	embeddings, usage, err := p.EmbedBatch(context.Background(), []string{"first", "second"})

	require.NoError(t, err)
	assert.Equal(t, 2, requests)
	assert.Equal(t, []string{"all-minilm", "all-minilm"}, models)
	require.Len(t, embeddings, 2)
	assert.Equal(t, []float32{0.1, 0.2, 1}, embeddings[0])
	assert.Equal(t, []float32{0.1, 0.2, 2}, embeddings[1])
	assert.Zero(t, usage.TotalTokens)
}

func TestEmbedBatch_EmptyInput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("no request expected for empty input")
	}))
	defer server.Close()

	p := New(Config{BaseURL: server.URL})

	embeddings, _, err := p.EmbedBatch(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, embeddings)
}

func TestEmbedBatch_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	p := New(Config{BaseURL: server.URL})

	_, _, err := p.EmbedBatch(context.Background(), []string{"text"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Contains(t, err.Error(), "model not found")
}

func TestPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := New(Config{BaseURL: server.URL})

	assert.NoError(t, p.Ping(context.Background()))
}

func TestPing_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	p := New(Config{BaseURL: server.URL})

	err := p.Ping(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

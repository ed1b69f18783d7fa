package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragd/internal/domain"
)

const completion = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o-mini",
  "choices": [{
    "index": 0,
    "finish_reason": "stop",
    "message": {"role": "assistant", "content": "Thought: easy.\nAnswer: doc1"}
  }],
  "usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`

func TestClient_Infer(t *testing.T) {
	var got struct {
		Model    string           `json:"model"`
		Messages []domain.Message `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completion))
	}))
	defer srv.Close()

	t.Setenv("RAGD_TEST_KEY", "secret")
	c, err := NewClient(Config{BaseURL: srv.URL, APIKeyEnv: "RAGD_TEST_KEY"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", c.Model())

	out, err := c.Infer(context.Background(), []domain.Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "Question: q"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Thought: easy.\nAnswer: doc1", out)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, []domain.Message{{Role: "system", Content: "be brief"}, {Role: "user", Content: "Question: q"}}, got.Messages)
}

func TestClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad model","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, AllowEmptyKey: true, Model: "nope"})
	require.NoError(t, err)
	_, err = c.Infer(context.Background(), []domain.Message{{Role: "user", Content: "q"}})
	assert.Error(t, err)
}

func TestNewClient_MissingKey(t *testing.T) {
	_, err := NewClient(Config{APIKeyEnv: "RAGD_TEST_UNSET_KEY"})
	assert.Error(t, err)
}

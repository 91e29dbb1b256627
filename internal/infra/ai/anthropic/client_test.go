package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainai "github.com/bryanwahyu/automaton-review/internal/domain/ai"
)

func TestReview(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"), r.URL.Path)
		assert.Equal(t, "sk-ant", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude","content":[{"type":"text","text":"{\"summary\":"},{"type":"text","text":"\"ok\"}"}],"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":2}}`))
	}))
	defer srv.Close()

	c := NewClient("sk-ant", "claude-test", srv.URL)
	out, err := c.Review(context.Background(), domainai.ReviewRequest{TotalFindings: 0})
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"ok"}`, out)
	assert.Equal(t, "claude-test", got["model"])
	assert.EqualValues(t, maxTokens, got["max_tokens"])
}

func TestReviewBadRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
	}))
	defer srv.Close()

	_, err := NewClient("sk-ant", "", srv.URL).Review(context.Background(), domainai.ReviewRequest{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, domainai.ErrQuotaExceeded)
}

func TestName(t *testing.T) {
	assert.Equal(t, defaultModel, (&Client{}).Name())
}

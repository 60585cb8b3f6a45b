package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/replykit/internal/config"
	"github.com/xkilldash9x/replykit/internal/sites"
)

func testRequest() ReplyRequest {
	return ReplyRequest{
		Site:     "chatwork",
		Language: "ja",
		Tone:     "polite",
		Messages: []sites.Message{
			{Author: "田中", Text: "明日の打ち合わせの件ですが。"},
		},
	}
}

func testConfig(endpoint string) config.LLMConfig {
	return config.LLMConfig{
		Provider:          ProviderGemini,
		Model:             "gemini-2.0-flash",
		APIKey:            "test-key",
		Endpoint:          endpoint,
		APITimeout:        5 * time.Second,
		Temperature:       0.7,
		MaxTokens:         256,
		RequestsPerMinute: 6000, // effectively unlimited for tests
	}
}

func geminiOK(text string) string {
	return `{"candidates":[{"content":{"parts":[{"text":"` + text + `"}]},"finishReason":"STOP"}],` +
		`"usageMetadata":{"promptTokenCount":10,"candidatesTokenCount":5,"totalTokenCount":15}}`
}

func TestGenerateReplySuccess(t *testing.T) {
	var gotBody geminiRequestPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(geminiOK("承知いたしました。")))
	}))
	defer srv.Close()

	c, err := NewGeminiClient(testConfig(srv.URL), zap.NewNop())
	require.NoError(t, err)

	reply, err := c.GenerateReply(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "承知いたしました。", reply)

	// The conversation and the preferences both reach the API.
	require.Len(t, gotBody.Contents, 1)
	assert.Contains(t, gotBody.Contents[0].Parts[0].Text, "明日の打ち合わせの件ですが。")
	require.NotNil(t, gotBody.SystemInstruction)
	assert.Contains(t, gotBody.SystemInstruction.Parts[0].Text, `"ja"`)
	assert.Contains(t, gotBody.SystemInstruction.Parts[0].Text, "polite")
}

func TestGenerateReplyRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(geminiOK("retried fine")))
	}))
	defer srv.Close()

	c, err := NewGeminiClient(testConfig(srv.URL), zap.NewNop())
	require.NoError(t, err)

	reply, err := c.GenerateReply(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "retried fine", reply)
	assert.EqualValues(t, 2, calls.Load())
}

func TestGenerateReplyPermanentErrorDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	c, err := NewGeminiClient(testConfig(srv.URL), zap.NewNop())
	require.NoError(t, err)

	_, err = c.GenerateReply(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.EqualValues(t, 1, calls.Load(), "4xx responses must not be retried")
}

func TestGenerateReplySafetyBlockIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[{"content":{"parts":[]},"finishReason":"SAFETY"}]}`))
	}))
	defer srv.Close()

	c, err := NewGeminiClient(testConfig(srv.URL), zap.NewNop())
	require.NoError(t, err)

	_, err = c.GenerateReply(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SAFETY")
}

func TestNewGeminiClientRequiresKey(t *testing.T) {
	cfg := testConfig("http://example.invalid")
	cfg.APIKey = ""
	_, err := NewGeminiClient(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestPromptAssembly(t *testing.T) {
	req := ReplyRequest{
		Site:     "slack",
		Language: "en",
		Tone:     "casual",
		Messages: []sites.Message{
			{Author: "alice", Text: "deploy is done"},
			{Author: "", Text: "thanks, checking now"},
		},
	}

	user := buildUserPrompt(req)
	assert.Contains(t, user, "alice: deploy is done")
	assert.Contains(t, user, "(unknown): thanks, checking now")
	assert.Less(t, strings.Index(user, "deploy is done"), strings.Index(user, "checking now"),
		"messages stay oldest-first")

	system := buildSystemPrompt(req)
	assert.Contains(t, system, "slack")
	assert.Contains(t, system, "casual")
}

func TestFactory(t *testing.T) {
	g, err := NewGenerator(config.LLMConfig{Provider: ProviderTemplate}, zap.NewNop())
	require.NoError(t, err)

	reply, err := g.GenerateReply(context.Background(), testRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, reply)

	_, err = NewGenerator(config.LLMConfig{Provider: "mystery"}, zap.NewNop())
	assert.Error(t, err)

	_, err = g.GenerateReply(context.Background(), ReplyRequest{})
	assert.Error(t, err, "template generator needs at least one message")
}

package pdf

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-layout-translator/internal/logger"
)

func TestBatchTexts(t *testing.T) {
	sep := len([]rune(BatchSeparator))
	tests := []struct {
		name   string
		texts  []string
		budget int
		want   [][]string
	}{
		{"empty", nil, 100, nil},
		{"one batch", []string{"a", "b"}, 100, [][]string{{"a", "b"}}},
		{"split at budget", []string{"aaaa", "bbbb", "cc"}, 8 + sep, [][]string{{"aaaa", "bbbb"}, {"cc"}}},
		{"oversized text alone", []string{"a", strings.Repeat("x", 50), "b"}, 40, [][]string{{"a"}, {strings.Repeat("x", 50)}, {"b"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BatchTexts(tt.texts, tt.budget))
		})
	}
}

func TestSplitTranslatedText(t *testing.T) {
	parts, err := splitTranslatedText(" one "+BatchSeparator+"two", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, parts)

	// 模型去掉了分隔符两侧的换行
	parts, err = splitTranslatedText("one---BLOCK_SEPARATOR---two", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, parts)

	_, err = splitTranslatedText("one and two", 2)
	assert.ErrorIs(t, err, ErrOracleMismatch)
}

func TestNormalizeAPIURL(t *testing.T) {
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", normalizeAPIURL(""))
	assert.Equal(t, "http://x/v1/chat/completions", normalizeAPIURL("http://x/v1/"))
	assert.Equal(t, "http://x/v1/chat/completions", normalizeAPIURL("http://x/v1/chat/completions"))
}

func TestBuildSystemPrompt(t *testing.T) {
	p := buildSystemPrompt(OracleRequest{SourceLang: "ja", TargetLang: "en"})
	assert.Contains(t, p, "from Japanese to English")
	assert.Contains(t, p, "{v0}")
	assert.Contains(t, buildSystemPrompt(OracleRequest{TargetLang: "zh"}), "the source language to Simplified Chinese")
}

// chatServer 回显每个块的大写形式
func chatServer(t *testing.T, handle func(w http.ResponseWriter, blocks []string)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var req ChatCompletionRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) || !assert.Len(t, req.Messages, 2) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, "system", req.Messages[0].Role)
		handle(w, strings.Split(req.Messages[1].Content, BatchSeparator))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeChat(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(ChatCompletionResponse{
		ID: "chatcmpl-1", Choices: []Choice{{Message: Message{Role: "assistant", Content: content}}},
	})
}

func TestHTTPOracle_Translate(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, blocks []string) {
		for i, b := range blocks {
			blocks[i] = strings.ToUpper(b)
		}
		writeChat(w, strings.Join(blocks, BatchSeparator))
	})
	o := NewHTTPOracle(HTTPOracleConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1", Model: "m", Logger: logger.Nop()})

	out, err := o.Translate(context.Background(), OracleRequest{Texts: []string{"price {v0}", "yen"}, TargetLang: "en"})
	require.NoError(t, err)
	assert.Equal(t, []string{"PRICE {V0}", "YEN"}, out)

	out, err = o.Translate(context.Background(), OracleRequest{})
	assert.NoError(t, err)
	assert.Nil(t, out)
}

func TestHTTPOracle_Errors(t *testing.T) {
	tests := []struct {
		name   string
		handle func(w http.ResponseWriter, blocks []string)
		want   string
	}{
		{"unauthorized", func(w http.ResponseWriter, _ []string) {
			w.WriteHeader(http.StatusUnauthorized)
		}, "authentication failed"},
		{"rate limited", func(w http.ResponseWriter, _ []string) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
		}, "slow down"},
		{"server error", func(w http.ResponseWriter, _ []string) {
			w.WriteHeader(http.StatusBadGateway)
		}, "status 502"},
		{"no choices", func(w http.ResponseWriter, _ []string) {
			_, _ = w.Write([]byte(`{"id":"x","choices":[]}`))
		}, "no choices"},
		{"block count mismatch", func(w http.ResponseWriter, _ []string) {
			writeChat(w, "merged")
		}, "different number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := chatServer(t, tt.handle)
			o := NewHTTPOracle(HTTPOracleConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1/", Logger: logger.Nop()})
			_, err := o.Translate(context.Background(), OracleRequest{Texts: []string{"a", "b"}})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestHTTPOracle_Cancelled(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, blocks []string) {
		writeChat(w, strings.Join(blocks, BatchSeparator))
	})
	o := NewHTTPOracle(HTTPOracleConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1", Logger: logger.Nop()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := o.Translate(ctx, OracleRequest{Texts: []string{"a"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	var pe *PDFError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrAPIFailed, pe.Code)
}

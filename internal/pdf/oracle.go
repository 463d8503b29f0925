package pdf

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"pdf-layout-translator/internal/config"
	"pdf-layout-translator/internal/logger"
)

// BatchSeparator is the delimiter used to separate text blocks in a batch for translation
const BatchSeparator = "\n---BLOCK_SEPARATOR---\n"

// DefaultContextWindow is the default character budget of one oracle call
const DefaultContextWindow = 4000

// DefaultConcurrency is the default number of concurrent oracle calls
const DefaultConcurrency = 3

// DefaultTimeout is the default HTTP client timeout
const DefaultTimeout = 180 * time.Second

// ErrOracleMismatch 译文数量与请求不一致
var ErrOracleMismatch = errors.New("oracle returned a different number of texts")

// OracleRequest 一批待翻译文本
type OracleRequest struct {
	Texts      []string
	SourceLang string
	TargetLang string
	CharBudget int
}

// Oracle is the external translation collaborator. It must return one
// translation per input text, in order, or an error.
type Oracle interface {
	Translate(ctx context.Context, req OracleRequest) ([]string, error)
}

// OracleFunc adapts a function to Oracle
type OracleFunc func(ctx context.Context, req OracleRequest) ([]string, error)

// Translate implements Oracle
func (f OracleFunc) Translate(ctx context.Context, req OracleRequest) ([]string, error) {
	return f(ctx, req)
}

// BatchTexts splits texts into ordered batches whose joined size stays under
// budget characters. A text longer than the budget forms its own batch.
func BatchTexts(texts []string, budget int) [][]string {
	if len(texts) == 0 {
		return nil
	}
	if budget <= 0 {
		budget = DefaultContextWindow
	}
	sepSize := utf8.RuneCountInString(BatchSeparator)

	var batches [][]string
	var current []string
	size := 0
	for _, text := range texts {
		n := utf8.RuneCountInString(text)
		if n >= budget {
			if len(current) > 0 {
				batches = append(batches, current)
				current, size = nil, 0
			}
			batches = append(batches, []string{text})
			continue
		}
		extra := n
		if len(current) > 0 {
			extra += sepSize
		}
		if size+extra > budget {
			batches = append(batches, current)
			current, size = []string{text}, n
			continue
		}
		current = append(current, text)
		size += extra
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

// languageName 提示词中使用的语言名称
func languageName(lang string) string {
	switch NormalizeLang(lang) {
	case "ja":
		return "Japanese"
	case "zh-CN":
		return "Simplified Chinese"
	case "zh-TW":
		return "Traditional Chinese"
	case "ko":
		return "Korean"
	case "en":
		return "English"
	}
	return lang
}

func buildSystemPrompt(req OracleRequest) string {
	src, dst := languageName(req.SourceLang), languageName(req.TargetLang)
	if req.SourceLang == "" {
		src = "the source language"
	}
	return `You are a professional translator for text extracted from PDF documents.
Translate from ` + src + ` to ` + dst + `.

CRITICAL RULES:
1. Output only the translation, no explanations or notes.
2. Tokens of the form {v0}, {v1}, ... are formulas. Keep every token exactly once, unchanged.
3. The input may contain multiple text blocks separated by "` + BatchSeparator + `".
4. Keep these separators in your output exactly as they appear; translate each block on its own.
5. Do not merge blocks or remove separators.`
}

// splitTranslatedText splits a batch reply. A reply with a different number
// of blocks is an error; nothing is padded or merged.
func splitTranslatedText(text string, expected int) ([]string, error) {
	parts := strings.Split(text, BatchSeparator)
	if len(parts) != expected {
		// 模型有时会去掉分隔符两侧的换行
		parts = strings.Split(text, strings.TrimSpace(BatchSeparator))
	}
	if len(parts) != expected {
		return nil, fmt.Errorf("%w: sent %d, got %d", ErrOracleMismatch, expected, len(parts))
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts, nil
}

// ChatCompletionRequest represents the request body for OpenAI chat completions API.
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

// Message represents a message in the chat completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResponse represents the response from OpenAI chat completions API.
type ChatCompletionResponse struct {
	ID      string    `json:"id"`
	Model   string    `json:"model"`
	Choices []Choice  `json:"choices"`
	Error   *APIError `json:"error,omitempty"`
}

// Choice represents a choice in the chat completion response.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// APIError represents an error response from the OpenAI API.
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// HTTPOracleConfig holds configuration options for creating an HTTPOracle
type HTTPOracleConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Logger  logger.Logger
}

// HTTPOracle 通过 OpenAI 兼容的 chat completions 接口翻译，每批一次请求，不重试
type HTTPOracle struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	log     logger.Logger
}

// NewHTTPOracle creates a new HTTPOracle with the given configuration
func NewHTTPOracle(cfg HTTPOracleConfig) *HTTPOracle {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	model := cfg.Model
	if model == "" {
		model = config.DefaultModel
	}
	return &HTTPOracle{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		model:   model,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

// Translate implements Oracle
func (o *HTTPOracle) Translate(ctx context.Context, req OracleRequest) ([]string, error) {
	if len(req.Texts) == 0 {
		return nil, nil
	}
	reply, err := o.call(ctx, buildSystemPrompt(req), strings.Join(req.Texts, BatchSeparator))
	if err != nil {
		return nil, err
	}
	return splitTranslatedText(reply, len(req.Texts))
}

func (o *HTTPOracle) call(ctx context.Context, systemPrompt, batchText string) (string, error) {
	o.log.Info("calling translation API",
		logger.String("model", o.model),
		logger.Int("textLen", len(batchText)),
		logger.String("baseURL", o.baseURL))

	body, err := json.Marshal(ChatCompletionRequest{
		Model: o.model,
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: batchText},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", NewPDFError(ErrAPIFailed, "failed to marshal request body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, normalizeAPIURL(o.baseURL), bytes.NewReader(body))
	if err != nil {
		return "", NewPDFError(ErrAPIFailed, "failed to create HTTP request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		o.log.Error("API request failed", err)
		return "", NewPDFError(ErrAPIFailed, "API request failed", err)
	}
	defer resp.Body.Close()
	o.log.Debug("API response received", logger.Int("statusCode", resp.StatusCode))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", NewPDFError(ErrAPIFailed, "failed to read API response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", handleAPIHTTPError(resp.StatusCode, data)
	}

	var chat ChatCompletionResponse
	if err := json.Unmarshal(data, &chat); err != nil {
		return "", NewPDFError(ErrAPIFailed, "failed to parse API response", err)
	}
	if chat.Error != nil {
		return "", NewPDFErrorWithDetails(ErrAPIFailed, "API returned error", chat.Error.Message, nil)
	}
	if len(chat.Choices) == 0 {
		return "", NewPDFError(ErrAPIFailed, "API returned no choices", nil)
	}
	return chat.Choices[0].Message.Content, nil
}

// normalizeAPIURL ensures the API URL ends with /chat/completions
func normalizeAPIURL(url string) string {
	if url == "" {
		return "https://api.openai.com/v1/chat/completions"
	}
	url = strings.TrimSuffix(url, "/")
	if strings.HasSuffix(url, "/chat/completions") {
		return url
	}
	return url + "/chat/completions"
}

// handleAPIHTTPError creates an appropriate PDFError based on the HTTP status code
func handleAPIHTTPError(statusCode int, body []byte) error {
	var errResp struct {
		Error APIError `json:"error"`
	}
	details := ""
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		details = errResp.Error.Message
	}

	switch statusCode {
	case http.StatusUnauthorized:
		return NewPDFErrorWithDetails(ErrAPIFailed, "API authentication failed", "invalid API key or unauthorized access", nil)
	case http.StatusTooManyRequests:
		return NewPDFErrorWithDetails(ErrAPIFailed, "API rate limit exceeded", details, nil)
	case http.StatusBadRequest:
		return NewPDFErrorWithDetails(ErrAPIFailed, "invalid API request", details, nil)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return NewPDFErrorWithDetails(ErrAPIFailed, "API server error", fmt.Sprintf("status %d: %s", statusCode, details), nil)
	default:
		return NewPDFErrorWithDetails(ErrAPIFailed, "API request failed", fmt.Sprintf("status %d: %s", statusCode, details), nil)
	}
}

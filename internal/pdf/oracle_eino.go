package pdf

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"pdf-layout-translator/internal/config"
	"pdf-layout-translator/internal/logger"
)

// EinoOracle 基于 eino 的 OpenAI 聊天模型翻译
type EinoOracle struct {
	apiKey  string
	baseURL string
	model   string
	log     logger.Logger

	once      sync.Once
	chatModel model.BaseChatModel
	initErr   error
}

// NewEinoOracle creates an oracle backed by the eino OpenAI chat model
func NewEinoOracle(apiKey, baseURL, modelName string, log logger.Logger) *EinoOracle {
	if modelName == "" {
		modelName = config.DefaultModel
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &EinoOracle{apiKey: apiKey, baseURL: baseURL, model: modelName, log: log}
}

// newEinoOracleWithModel 测试用：注入任意 ChatModel
func newEinoOracleWithModel(m model.BaseChatModel) *EinoOracle {
	o := &EinoOracle{model: "injected", log: logger.Nop(), chatModel: m}
	o.once.Do(func() {})
	return o
}

func (o *EinoOracle) init(ctx context.Context) error {
	o.once.Do(func() {
		temperature := float32(0.3)
		cfg := &openai.ChatModelConfig{
			Model:       o.model,
			APIKey:      o.apiKey,
			Temperature: &temperature,
		}
		if o.baseURL != "" {
			cfg.BaseURL = strings.TrimSuffix(strings.TrimSuffix(o.baseURL, "/"), "/chat/completions")
		}
		cm, err := openai.NewChatModel(ctx, cfg)
		if err != nil {
			o.initErr = fmt.Errorf("failed to create chat model: %w", err)
			return
		}
		o.chatModel = cm
	})
	return o.initErr
}

// Translate implements Oracle
func (o *EinoOracle) Translate(ctx context.Context, req OracleRequest) ([]string, error) {
	if len(req.Texts) == 0 {
		return nil, nil
	}
	if err := o.init(ctx); err != nil {
		return nil, NewPDFError(ErrAPIFailed, "translation model unavailable", err)
	}
	o.log.Info("calling eino chat model",
		logger.String("model", o.model),
		logger.Int("texts", len(req.Texts)))

	resp, err := o.chatModel.Generate(ctx, []*schema.Message{
		schema.SystemMessage(buildSystemPrompt(req)),
		schema.UserMessage(strings.Join(req.Texts, BatchSeparator)),
	})
	if err != nil {
		o.log.Error("eino chat model failed", err)
		return nil, NewPDFError(ErrAPIFailed, "API request failed", err)
	}
	if resp == nil {
		return nil, NewPDFError(ErrAPIFailed, "API returned no choices", nil)
	}
	return splitTranslatedText(resp.Content, len(req.Texts))
}

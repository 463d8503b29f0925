package pdf

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-layout-translator/internal/config"
	"pdf-layout-translator/internal/logger"
)

// fakeChatModel 记录收到的消息并返回预设回复
type fakeChatModel struct {
	reply    *schema.Message
	err      error
	received []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, msgs []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.received = msgs
	return f.reply, f.err
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported")
}

func TestEinoOracle_Translate(t *testing.T) {
	fake := &fakeChatModel{reply: schema.AssistantMessage("Price"+BatchSeparator+"yen {v0}", nil)}
	o := newEinoOracleWithModel(fake)

	out, err := o.Translate(context.Background(), OracleRequest{
		Texts: []string{"価格", "円 {v0}"}, SourceLang: "ja", TargetLang: "en",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Price", "yen {v0}"}, out)

	require.Len(t, fake.received, 2)
	assert.Equal(t, schema.System, fake.received[0].Role)
	assert.Contains(t, fake.received[0].Content, "from Japanese to English")
	assert.Equal(t, schema.User, fake.received[1].Role)
	assert.Equal(t, 1, strings.Count(fake.received[1].Content, BatchSeparator))
}

func TestEinoOracle_Failures(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name string
		fake *fakeChatModel
		want string
	}{
		{"generate error", &fakeChatModel{err: boom}, "API request failed"},
		{"nil reply", &fakeChatModel{}, "no choices"},
		{"merged blocks", &fakeChatModel{reply: schema.AssistantMessage("one block", nil)}, "different number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newEinoOracleWithModel(tt.fake).Translate(context.Background(), OracleRequest{Texts: []string{"a", "b"}})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			if tt.fake.err != nil {
				assert.ErrorIs(t, err, boom)
			}
		})
	}
}

func TestEinoOracle_EmptyRequestSkipsModel(t *testing.T) {
	fake := &fakeChatModel{err: errors.New("must not be called")}
	out, err := newEinoOracleWithModel(fake).Translate(context.Background(), OracleRequest{})
	assert.NoError(t, err)
	assert.Nil(t, out)
	assert.Nil(t, fake.received)
}

func TestOracles_DefaultModel(t *testing.T) {
	e := NewEinoOracle("key", "", "", logger.Nop())
	assert.Equal(t, config.DefaultModel, e.model)
	h := NewHTTPOracle(HTTPOracleConfig{APIKey: "key", Logger: logger.Nop()})
	assert.Equal(t, config.DefaultModel, h.model)

	e = NewEinoOracle("key", "", "custom-model", logger.Nop())
	assert.Equal(t, "custom-model", e.model)
}

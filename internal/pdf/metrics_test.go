package pdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineHeightFor(t *testing.T) {
	tests := []struct {
		lang string
		want float64
	}{
		{"ja", 1.1},
		{"en", 1.2},
		{"EN-us", 1.2},
		{"zh", 1.4},
		{"zh-CN", 1.4},
		{"ko", 1.1},
		{"fr", DefaultLineHeight},
		{"", DefaultLineHeight},
	}
	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			assert.Equal(t, tt.want, LineHeightFor(tt.lang))
		})
	}
}

func TestNormalizeLang(t *testing.T) {
	assert.Equal(t, "en", NormalizeLang(""))
	assert.Equal(t, "en", NormalizeLang("English"))
	assert.Equal(t, "zh-CN", NormalizeLang("zh"))
	assert.Equal(t, "zh-TW", NormalizeLang("zh-Hant"))
	assert.Equal(t, "ja", NormalizeLang("ja-JP"))
	assert.Equal(t, "ko", NormalizeLang("korean"))
	assert.Equal(t, "de", NormalizeLang(" DE "))

	assert.True(t, IsCJKLang("ja"))
	assert.True(t, IsCJKLang("zh"))
	assert.False(t, IsCJKLang("en"))
}

func TestCharClasses(t *testing.T) {
	assert.True(t, IsFullWidth('価'))
	assert.True(t, IsFullWidth('Ａ'))
	assert.False(t, IsFullWidth('ｱ'), "halfwidth katakana")
	assert.False(t, IsFullWidth('a'))

	assert.True(t, IsCJK('円'))
	assert.True(t, IsCJK('か'))
	assert.True(t, IsCJK('。'))
	assert.False(t, IsCJK('P'))
}

func TestTextWidth(t *testing.T) {
	assert.Equal(t, 1.0, FallbackCharWidth('価'))
	assert.Equal(t, 0.5, FallbackCharWidth('a'))
	assert.Equal(t, 0.5, FallbackCharWidth(' '))
	assert.Equal(t, 0.0, FallbackCharWidth('\n'))

	// 无度量时按回退宽度
	assert.InDelta(t, 20.0, TextWidth("ab価", 10, nil), 1e-9)

	measure := func(r rune) (float64, bool) {
		if r == 'a' {
			return 0.25, true
		}
		return 0, false
	}
	assert.InDelta(t, 2.5+5, TextWidth("ab", 10, measure), 1e-9)
}

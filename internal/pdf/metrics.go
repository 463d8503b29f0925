package pdf

import (
	"strings"
	"unicode"

	"github.com/mattn/go-runewidth"
	"golang.org/x/text/width"
)

// 语言对应的默认行高倍数
var langLineHeight = map[string]float64{
	"ja":    1.1,
	"en":    1.2,
	"zh":    1.4,
	"zh-cn": 1.4,
	"zh-tw": 1.4,
	"ko":    1.1,
}

// DefaultLineHeight 未知语言使用的行高
const DefaultLineHeight = 1.1

// LineHeightFor returns the line-height multiplier used when laying out text in lang
func LineHeightFor(lang string) float64 {
	key := strings.ToLower(strings.TrimSpace(lang))
	if lh, ok := langLineHeight[key]; ok {
		return lh
	}
	if i := strings.IndexByte(key, '-'); i > 0 {
		if lh, ok := langLineHeight[key[:i]]; ok {
			return lh
		}
	}
	return DefaultLineHeight
}

// NormalizeLang 归一化语言标签：ja、en、zh-CN、ko 等
func NormalizeLang(lang string) string {
	l := strings.ToLower(strings.TrimSpace(lang))
	switch {
	case l == "zh" || l == "zh-cn" || l == "zh-hans" || l == "chinese":
		return "zh-CN"
	case l == "zh-tw" || l == "zh-hant":
		return "zh-TW"
	case strings.HasPrefix(l, "ja") || l == "japanese":
		return "ja"
	case strings.HasPrefix(l, "ko") || l == "korean":
		return "ko"
	case strings.HasPrefix(l, "en") || l == "english" || l == "":
		return "en"
	}
	return l
}

// IsCJKLang 目标语言是否需要 CJK 字体
func IsCJKLang(lang string) bool {
	switch NormalizeLang(lang) {
	case "ja", "zh-CN", "zh-TW", "ko":
		return true
	}
	return false
}

// IsFullWidth reports characters laid out on a full em square
func IsFullWidth(r rune) bool {
	if r > 0x2E7F {
		// halfwidth katakana / hangul live in the FF61..FFDC block
		if r >= 0xFF61 && r <= 0xFFDC {
			return false
		}
		return true
	}
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return true
	}
	return runewidth.RuneWidth(r) == 2
}

// IsCJK reports ideographs, kana, hangul and CJK punctuation
func IsCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul) ||
		(r >= 0x3000 && r <= 0x303F) || (r >= 0xFF00 && r <= 0xFFEF)
}

// FallbackCharWidth returns the advance of r in em units when the font has no width for it
func FallbackCharWidth(r rune) float64 {
	if r == '\n' || r == '\r' {
		return 0
	}
	if IsFullWidth(r) {
		return 1.0
	}
	if runewidth.RuneWidth(r) == 0 && r != ' ' {
		// 组合字符不占宽度
		return 0
	}
	return 0.5
}

// WidthFunc returns the advance of r in em units, ok=false if unknown
type WidthFunc func(r rune) (float64, bool)

// TextWidth sums advances of text at the given size; unknown glyphs use the fallback width
func TextWidth(text string, size float64, widthOf WidthFunc) float64 {
	total := 0.0
	for _, r := range text {
		w, ok := 0.0, false
		if widthOf != nil {
			w, ok = widthOf(r)
		}
		if !ok {
			w = FallbackCharWidth(r)
		}
		total += w
	}
	return total * size
}

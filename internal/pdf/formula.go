package pdf

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultFormulaFontPattern 公式/等宽字体名规则（去除子集前缀后从开头匹配）
const DefaultFormulaFontPattern = `^(CM[^R]|MS[AB]M|XY|MT|BL|RM|EU|LA|RS|LINE|LCIRCLE|TeX-|rsfs|txsy|wasy|stmary|.*Mono|.*Code|.*Ital|.*Sym|.*Math)`

// SubSuperscriptRatio 字号不超过段落主字号该比例时视为上下标
const SubSuperscriptRatio = 0.79

// placeholderPattern 译文中占位符的宽松匹配：{v0}、( v 1 )、[V2] 等
var placeholderPattern = regexp.MustCompile(`(?i)[\{\(\[]\s*v([\d\s]+)\s*[\}\)\]]`)

// formulaCategories 视为公式的 Unicode 类别；Zs 另行处理
var formulaCategories = []*unicode.RangeTable{
	unicode.Lm, unicode.Mn, unicode.Sk, unicode.Sm, unicode.Sc, unicode.Zl, unicode.Zp,
}

// FormulaCategory 受保护片段的类别
type FormulaCategory string

const (
	CategorySymbol         FormulaCategory = "formula-symbol"
	CategorySubSuperscript FormulaCategory = "sub-superscript"
	CategoryFormulaFont    FormulaCategory = "formula-font"
	CategoryOther          FormulaCategory = "other"
)

// Glyph 段落中的一个字形及其来源信息
type Glyph struct {
	Text     string  // 解码后的文本，可能为空（无 ToUnicode）
	FontName string  // BaseFont
	FontRes  string  // 页面字体资源名
	Size     float64 // 有效字号
	Rise     float64
	Code     []byte  // 原始编码
	Advance  float64 // 1/1000 em
	// Synthetic 由分词或换行拼接插入，不对应原始字形
	Synthetic bool
	// Formula 强制作为公式保护（例如纯文本中的 LaTeX 片段）
	Formula bool
}

// FormulaVar 一个被占位符替换的片段
type FormulaVar struct {
	Index    int             `json:"index"`
	Text     string          `json:"text"`
	Category FormulaCategory `json:"category"`
	Glyphs   []Glyph         `json:"-"`
}

// Placeholder returns the token sent to the translator
func (v FormulaVar) Placeholder() string {
	return placeholderToken(v.Index)
}

func placeholderToken(i int) string {
	return "{v" + strconv.Itoa(i) + "}"
}

// FormulaProtector 公式保护与恢复
type FormulaProtector struct {
	fontRe       *regexp.Regexp
	subRatio     float64
	allowReorder bool
}

// NewFormulaProtector compiles the formula-font pattern; empty means the default
func NewFormulaProtector(fontPattern string, allowReorder bool) (*FormulaProtector, error) {
	if fontPattern == "" {
		fontPattern = DefaultFormulaFontPattern
	}
	re, err := regexp.Compile(fontPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid formula font pattern: %w", err)
	}
	return &FormulaProtector{fontRe: re, subRatio: SubSuperscriptRatio, allowReorder: allowReorder}, nil
}

// StripSubsetTag removes the "ABCDEF+" prefix of subset fonts
func StripSubsetTag(name string) string {
	if i := strings.IndexByte(name, '+'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// IsFormulaFont reports whether a font name looks like a math or code font
func (p *FormulaProtector) IsFormulaFont(name string) bool {
	name = StripSubsetTag(name)
	return name != "" && p.fontRe.MatchString(name)
}

// IsFormulaRune 按 Unicode 类别判断单个字符
func IsFormulaRune(r rune) bool {
	switch {
	case r == ' ':
		return false
	case r == 0x3005, r >= 0x309D && r <= 0x309E, r >= 0x30FC && r <= 0x30FE:
		// 々 ゝゞ ーヽヾ 是普通日文字符
		return false
	}
	switch r {
	case '+', '-', '*', '/', '<', '=', '>',
		0xFF0B, 0xFF0D, 0xFF0A, 0xFF0F, 0xFF1C, 0xFF1D, 0xFF1E, 0xFF5E:
		return false
	}
	if r >= 0x370 && r < 0x400 {
		return true
	}
	return unicode.IsOneOf(formulaCategories, r)
}

// isNeutral 空白只在公式片段内部延续公式
func isNeutral(g Glyph) bool {
	if g.Text == "" {
		return false
	}
	for _, r := range g.Text {
		if !unicode.Is(unicode.Zs, r) {
			return false
		}
	}
	return true
}

// classify returns the category of a protected glyph or "" for translatable text
func (p *FormulaProtector) classify(g Glyph, baseSize float64) FormulaCategory {
	if g.Synthetic {
		return ""
	}
	if g.Formula {
		return CategorySymbol
	}
	fontIsFormula := p.IsFormulaFont(g.FontName)
	if g.Text == "" {
		// 无法解码的字形：公式字体中保留原编码，否则按普通文本处理
		if fontIsFormula {
			return CategoryOther
		}
		return ""
	}
	if fontIsFormula {
		return CategoryFormulaFont
	}
	if baseSize > 0 && g.Size > 0 && !isNeutral(g) {
		if g.Size <= baseSize*p.subRatio || absf(g.Rise) > g.Size*0.1 {
			return CategorySubSuperscript
		}
	}
	r, _ := utf8.DecodeRuneInString(g.Text)
	if IsFormulaRune(r) && !unicode.Is(unicode.Zs, r) {
		return CategorySymbol
	}
	return ""
}

// Protect replaces protected glyph runs with {vN} placeholders in increasing order.
// baseSize is the paragraph's dominant font size used for sub/superscript detection.
func (p *FormulaProtector) Protect(glyphs []Glyph, baseSize float64) (string, []FormulaVar) {
	var sb strings.Builder
	var vars []FormulaVar
	var open *FormulaVar
	var pending []Glyph

	flush := func() {
		if open == nil {
			return
		}
		var text strings.Builder
		for _, g := range open.Glyphs {
			text.WriteString(g.Text)
		}
		open.Text = text.String()
		open.Index = len(vars)
		vars = append(vars, *open)
		sb.WriteString(placeholderToken(open.Index))
		open = nil
	}

	for _, g := range glyphs {
		cat := p.classify(g, baseSize)
		switch {
		case cat != "":
			if open == nil {
				open = &FormulaVar{Category: cat}
			} else {
				open.Glyphs = append(open.Glyphs, pending...)
			}
			pending = nil
			open.Glyphs = append(open.Glyphs, g)
		case open != nil && isNeutral(g):
			pending = append(pending, g)
		default:
			flush()
			for _, pg := range pending {
				sb.WriteString(pg.Text)
			}
			pending = nil
			sb.WriteString(g.Text)
		}
	}
	flush()
	for _, pg := range pending {
		sb.WriteString(pg.Text)
	}
	return sb.String(), vars
}

// RestoreErrorKind 恢复失败类型
type RestoreErrorKind string

const (
	RestoreMissing    RestoreErrorKind = "missing"
	RestoreDuplicate  RestoreErrorKind = "duplicate"
	RestoreUnknown    RestoreErrorKind = "unknown"
	RestoreOutOfOrder RestoreErrorKind = "out-of-order"
)

// RestoreError describes a placeholder mismatch between sent and returned text
type RestoreError struct {
	Kind  RestoreErrorKind
	Index int
	Sent  int
	Found int
}

func (e *RestoreError) Error() string {
	return fmt.Sprintf("placeholder %s: v%d (sent %d, found %d)", e.Kind, e.Index, e.Sent, e.Found)
}

// Segment 恢复后的文本片段；Var 非空时为公式
type Segment struct {
	Text string
	Var  *FormulaVar
}

// SegmentsText 拼接片段文本
func SegmentsText(segs []Segment) string {
	var sb strings.Builder
	for _, s := range segs {
		sb.WriteString(s.Text)
	}
	return sb.String()
}

// Restore substitutes placeholders in translated text with the original fragments.
// Every placeholder must appear exactly once, and in the order sent unless
// reordering is allowed; otherwise a *RestoreError is returned and nothing is substituted.
func (p *FormulaProtector) Restore(translated string, vars []FormulaVar) ([]Segment, error) {
	if len(vars) == 0 {
		if translated == "" {
			return nil, nil
		}
		return []Segment{{Text: translated}}, nil
	}

	matches := placeholderPattern.FindAllStringSubmatchIndex(translated, -1)
	seen := make([]bool, len(vars))
	found := 0
	last := -1
	var segs []Segment
	pos := 0

	for _, m := range matches {
		if m[0] > pos {
			segs = append(segs, Segment{Text: translated[pos:m[0]]})
		}
		for _, field := range strings.Fields(translated[m[2]:m[3]]) {
			idx, err := strconv.Atoi(field)
			if err != nil || idx < 0 || idx >= len(vars) {
				return nil, &RestoreError{Kind: RestoreUnknown, Index: idx, Sent: len(vars), Found: found}
			}
			if seen[idx] {
				return nil, &RestoreError{Kind: RestoreDuplicate, Index: idx, Sent: len(vars), Found: found}
			}
			if !p.allowReorder && idx < last {
				return nil, &RestoreError{Kind: RestoreOutOfOrder, Index: idx, Sent: len(vars), Found: found}
			}
			seen[idx] = true
			found++
			last = idx
			v := &vars[idx]
			segs = append(segs, Segment{Text: v.Text, Var: v})
		}
		pos = m[1]
	}
	if pos < len(translated) {
		segs = append(segs, Segment{Text: translated[pos:]})
	}

	for i, ok := range seen {
		if !ok {
			return nil, &RestoreError{Kind: RestoreMissing, Index: i, Sent: len(vars), Found: found}
		}
	}
	return segs, nil
}

// RestoreText is Restore returning the flat string
func (p *FormulaProtector) RestoreText(translated string, vars []FormulaVar) (string, error) {
	segs, err := p.Restore(translated, vars)
	if err != nil {
		return "", err
	}
	return SegmentsText(segs), nil
}

// PlaceholderOverhead 占位符相对原片段增加的字符数上限
func PlaceholderOverhead(vars []FormulaVar) int {
	n := 0
	for _, v := range vars {
		n += utf8.RuneCountInString(v.Placeholder())
	}
	return n
}

// HasTranslatableText reports whether protected text contains letters outside placeholders
func HasTranslatableText(protected string) bool {
	stripped := placeholderPattern.ReplaceAllString(protected, "")
	for _, r := range stripped {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

package pdf

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"pdf-layout-translator/internal/types"
)

const fitEpsilon = 1e-6

// FitParams 收缩步长与下限
type FitParams struct {
	LineHeightStep float64
	MinLineHeight  float64
	FontSizeStep   float64
	MinFontSize    float64
}

// FitParamsFrom converts the fitting configuration; table cells use their own line-height floor
func FitParamsFrom(cfg types.FittingConfig, table bool) FitParams {
	p := FitParams{
		LineHeightStep: cfg.LineHeightStep,
		MinLineHeight:  cfg.MinLineHeight,
		FontSizeStep:   cfg.FontSizeStep,
		MinFontSize:    cfg.MinFontSize,
	}
	if table && cfg.TableMinLineHeight > 0 {
		p.MinLineHeight = cfg.TableMinLineHeight
	}
	if p.LineHeightStep <= 0 {
		p.LineHeightStep = 0.05
	}
	if p.FontSizeStep <= 0 {
		p.FontSizeStep = 0.5
	}
	return p
}

// FitRequest 一个段落的排版输入
type FitRequest struct {
	Segments   []Segment
	Box        Rect
	FontSize   float64 // 原始字号，公式按该字号的比例缩放
	LineHeight float64
	Vertical   bool
	Measure    WidthFunc
	Params     FitParams
}

// LinePiece 行内片段：普通文本或一个公式
type LinePiece struct {
	Text string
	Var  *FormulaVar
}

// FitLine 一行（竖排时为一列）
type FitLine struct {
	Pieces []LinePiece
	Width  float64 // 沿书写方向的长度
}

// FitResult 排版结果
type FitResult struct {
	FontSize   float64
	LineHeight float64
	Lines      []FitLine
	Overflow   bool
	Steps      int
	Height     float64 // 行数 × 字号 × 行高（竖排为总宽度）
	Box        Rect
	Vertical   bool
}

// fitToken 换行的最小单位
type fitToken struct {
	text    string
	v       *FormulaVar
	newline bool
	// trail 末尾空白的字节数，位于行尾时去掉
	trail int
}

func (t fitToken) blank() bool {
	return t.v == nil && !t.newline && t.trail == len(t.text)
}

// tokenize 拉丁单词连同其后空格为一个单位，CJK 逐字，公式整体
func tokenize(segs []Segment) []fitToken {
	var out []fitToken
	for _, s := range segs {
		if s.Var != nil {
			out = append(out, fitToken{text: s.Text, v: s.Var})
			continue
		}
		text := s.Text
		for i := 0; i < len(text); {
			r, size := utf8.DecodeRuneInString(text[i:])
			switch {
			case r == '\n':
				out = append(out, fitToken{newline: true})
				i += size
			case unicode.IsSpace(r):
				j := i
				for j < len(text) {
					rr, n := utf8.DecodeRuneInString(text[j:])
					if rr == '\n' || !unicode.IsSpace(rr) {
						break
					}
					j += n
				}
				if n := len(out); n > 0 && !out[n-1].newline && out[n-1].v == nil && out[n-1].trail == 0 {
					out[n-1].text += text[i:j]
					out[n-1].trail = j - i
				} else {
					out = append(out, fitToken{text: text[i:j], trail: j - i})
				}
				i = j
			case IsCJK(r) || IsFullWidth(r):
				out = append(out, fitToken{text: text[i : i+size]})
				i += size
			default:
				j := i
				for j < len(text) {
					rr, n := utf8.DecodeRuneInString(text[j:])
					if unicode.IsSpace(rr) || IsCJK(rr) || IsFullWidth(rr) {
						break
					}
					j += n
				}
				out = append(out, fitToken{text: text[i:j]})
				i = j
			}
		}
	}
	return out
}

// layoutMetrics 某一字号下的宽度计算
type layoutMetrics struct {
	size     float64
	origSize float64
	vertical bool
	measure  WidthFunc
}

func (m layoutMetrics) textWidth(s string) float64 {
	if m.vertical {
		return float64(utf8.RuneCountInString(s)) * m.size
	}
	return TextWidth(s, m.size, m.measure)
}

// formulaWidth 公式按原字形宽度与原字号比例缩放
func (m layoutMetrics) formulaWidth(v *FormulaVar) float64 {
	scale := 1.0
	if m.origSize > 0 {
		scale = m.size / m.origSize
	}
	total := 0.0
	for _, g := range v.Glyphs {
		gs := g.Size
		if gs <= 0 {
			gs = m.origSize
		}
		switch {
		case m.vertical:
			total += gs * scale
		case len(g.Code) > 0:
			total += g.Advance / 1000 * gs * scale
		default:
			total += TextWidth(g.Text, gs*scale, m.measure)
		}
	}
	if len(v.Glyphs) == 0 {
		total = m.textWidth(v.Text)
	}
	return total
}

func (m layoutMetrics) tokenWidth(t fitToken) (full, trimmed float64) {
	if t.v != nil {
		w := m.formulaWidth(t.v)
		return w, w
	}
	full = m.textWidth(t.text)
	if t.trail == 0 {
		return full, full
	}
	return full, m.textWidth(t.text[:len(t.text)-t.trail])
}

// lineBuilder 累积当前行
type lineBuilder struct {
	m       layoutMetrics
	lines   []FitLine
	cur     []fitToken
	width   float64 // 含末尾空白
	trimmed float64 // 去掉末尾空白
}

func (b *lineBuilder) add(t fitToken, full, trimmed float64) {
	b.cur = append(b.cur, t)
	b.trimmed = b.width + trimmed
	b.width += full
}

func (b *lineBuilder) push() {
	var pieces []LinePiece
	for i, t := range b.cur {
		text := t.text
		if i == len(b.cur)-1 && t.trail > 0 {
			text = text[:len(text)-t.trail]
		}
		if t.v != nil {
			pieces = append(pieces, LinePiece{Text: text, Var: t.v})
			continue
		}
		if text == "" {
			continue
		}
		if n := len(pieces); n > 0 && pieces[n-1].Var == nil {
			pieces[n-1].Text += text
		} else {
			pieces = append(pieces, LinePiece{Text: text})
		}
	}
	b.lines = append(b.lines, FitLine{Pieces: pieces, Width: b.trimmed})
	b.cur, b.width, b.trimmed = nil, 0, 0
}

// wrap breaks tokens greedily into lines no longer than maxLen
func wrap(tokens []fitToken, m layoutMetrics, maxLen float64) []FitLine {
	b := &lineBuilder{m: m}
	for _, t := range tokens {
		if t.newline {
			b.push()
			continue
		}
		if len(b.cur) == 0 && t.blank() {
			continue
		}
		full, trimmed := m.tokenWidth(t)
		if b.width+trimmed <= maxLen+fitEpsilon {
			b.add(t, full, trimmed)
			continue
		}
		if len(b.cur) > 0 {
			b.push()
			if t.blank() {
				continue
			}
		}
		if trimmed <= maxLen+fitEpsilon || t.v != nil {
			// 公式不可拆分，超宽由调用方判定
			b.add(t, full, trimmed)
			continue
		}
		// 超长单词按字符强制断开
		word := t.text[:len(t.text)-t.trail]
		var chunk strings.Builder
		chunkW := 0.0
		for _, r := range word {
			w := m.textWidth(string(r))
			if chunk.Len() > 0 && chunkW+w > maxLen+fitEpsilon {
				b.add(fitToken{text: chunk.String()}, chunkW, chunkW)
				b.push()
				chunk.Reset()
				chunkW = 0
			}
			chunk.WriteRune(r)
			chunkW += w
		}
		rest := fitToken{text: chunk.String() + t.text[len(word):], trail: t.trail}
		f, tr := m.tokenWidth(rest)
		b.add(rest, f, tr)
	}
	if len(b.cur) > 0 {
		b.push()
	}
	return b.lines
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// Fit lays out the segments inside the box. Line height shrinks first, down
// to its floor; then the font size shrinks. When both floors are reached the
// text is laid out at the floors and Overflow is set.
func Fit(req FitRequest) *FitResult {
	p := req.Params
	size, lh := req.FontSize, req.LineHeight
	minLH := p.MinLineHeight
	if lh < minLH {
		minLH = lh
	}
	tokens := tokenize(req.Segments)
	box := req.Box.Normalize()
	along, across := box.Width(), box.Height()
	if req.Vertical {
		along, across = across, along
	}

	steps := 0
	for {
		m := layoutMetrics{size: size, origSize: req.FontSize, vertical: req.Vertical, measure: req.Measure}
		lines := wrap(tokens, m, along)
		total := float64(len(lines)) * size * lh
		longest := 0.0
		for _, l := range lines {
			longest = math.Max(longest, l.Width)
		}
		fits := total <= across+fitEpsilon && longest <= along+fitEpsilon
		res := &FitResult{
			FontSize: size, LineHeight: lh, Lines: lines, Steps: steps, Height: total,
			Box: box, Vertical: req.Vertical,
		}
		if fits {
			return res
		}

		switch {
		case lh-p.LineHeightStep >= minLH-fitEpsilon:
			lh = round3(lh - p.LineHeightStep)
		case lh > minLH+fitEpsilon:
			lh = minLH
		case size-p.FontSizeStep >= p.MinFontSize-fitEpsilon:
			size = round3(size - p.FontSizeStep)
		case size > p.MinFontSize+fitEpsilon:
			size = p.MinFontSize
		default:
			res.Overflow = true
			return res
		}
		steps++
	}
}

// Text flattens the laid-out lines with newlines between them
func (r *FitResult) Text() string {
	var sb strings.Builder
	for i, l := range r.Lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		for _, p := range l.Pieces {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

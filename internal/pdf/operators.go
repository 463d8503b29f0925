package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// 生成阶段的段落级错误
var (
	errClipTextObject = errors.New("text object uses a clipping render mode")
	errSingularState  = errors.New("text or transformation matrix is not invertible")
	errSkewedAdvance  = errors.New("text advance is not along the writing direction")
)

// fontUse 新增的字体资源：替代字体与书写方向
type fontUse struct {
	info     *FontInfo
	vertical bool
}

// spanEdit 对内容流中一个显示操作的替换
type spanEdit struct {
	Start   int
	End     int
	Data    []byte
	Para    *Paragraph
	Run     *TextRun
	Primary bool
}

// pageGenerator builds the replacement operators of one page. It owns the
// resource names of substitute fonts added to the page.
type pageGenerator struct {
	page      int
	fonts     map[string]*pageFont
	taken     map[string]bool
	runs      []*TextRun
	resources map[fontUse]string
	added     map[string]fontUse
	next      int
}

func newPageGenerator(page int, fontNames map[string]bool, fonts map[string]*pageFont, runs []*TextRun) *pageGenerator {
	g := &pageGenerator{
		page:      page,
		fonts:     make(map[string]*pageFont, len(fonts)),
		taken:     map[string]bool{},
		runs:      runs,
		resources: map[fontUse]string{},
		added:     map[string]fontUse{},
	}
	for k, v := range fonts {
		g.fonts[k] = v
		g.taken[k] = true
	}
	for k := range fontNames {
		g.taken[k] = true
	}
	return g
}

// resourceFor returns the page resource name under which fi is shown.
// Document fonts keep their own resource.
func (g *pageGenerator) resourceFor(fi *FontInfo, vertical bool) string {
	if fi.doc != nil {
		return fi.doc.Resource
	}
	if fi.Builtin {
		vertical = false
	}
	key := fontUse{info: fi, vertical: vertical}
	if res, ok := g.resources[key]; ok {
		return res
	}
	var name string
	for {
		g.next++
		name = "TLF" + strconv.Itoa(g.next)
		if !g.taken[name] {
			break
		}
	}
	g.taken[name] = true
	g.resources[key] = name
	g.added[name] = key
	g.fonts[name] = fi.pageFontFor(name, vertical)
	return name
}

// addedFonts returns the new resources used by the given paragraphs
func (g *pageGenerator) addedFonts(paras []*Paragraph) map[string]fontUse {
	out := map[string]fontUse{}
	for _, p := range paras {
		if p.Font == nil {
			continue
		}
		for name, use := range g.added {
			if use.info == p.Font && (use.vertical == p.Vertical || p.Font.Builtin) {
				out[name] = use
			}
		}
	}
	return out
}

// paragraphRuns 段落的全部显示操作，按内容流顺序
func paragraphRuns(p *Paragraph) []*TextRun {
	var runs []*TextRun
	seen := map[*TextRun]bool{}
	for _, c := range p.Cells {
		for _, r := range c.Runs {
			if !seen[r] {
				seen[r] = true
				runs = append(runs, r)
			}
		}
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].OpIndex < runs[j].OpIndex })
	return runs
}

// paragraphEdits draws the fitted paragraph in place of its first show
// operator and turns the remaining ones into pure advances, so the text
// matrix after every replaced operator is the same as before.
func (g *pageGenerator) paragraphEdits(p *Paragraph) ([]spanEdit, error) {
	runs := paragraphRuns(p)
	if len(runs) == 0 || p.Fit == nil || p.Font == nil {
		return nil, fmt.Errorf("paragraph %s has nothing to generate", p.ID)
	}
	primary := runs[0]
	for _, r := range g.runs {
		if r.Block == primary.Block && r.Render >= 4 {
			return nil, errClipTextObject
		}
	}

	body, err := g.drawParagraph(p, primary)
	if err != nil {
		return nil, err
	}
	tail, err := advanceOps(primary, true)
	if err != nil {
		return nil, err
	}
	edits := []spanEdit{{
		Start: primary.Start, End: primary.End,
		Data: append(body, tail...), Para: p, Run: primary, Primary: true,
	}}
	for _, r := range runs[1:] {
		data, err := advanceOps(r, false)
		if err != nil {
			return nil, err
		}
		edits = append(edits, spanEdit{Start: r.Start, End: r.End, Data: data, Para: p, Run: r})
	}
	return edits, nil
}

// reusableFormulaGlyph reports whether a protected glyph can be shown again
// with its original font and code; other glyphs are re-encoded as text.
func reusableFormulaGlyph(gl Glyph, fonts map[string]*pageFont, vertical bool) bool {
	if gl.Synthetic || len(gl.Code) == 0 {
		return false
	}
	pf, ok := fonts[gl.FontRes]
	return ok && !pf.Unsupported && pf.Vertical == vertical
}

// textWriter 合并同一字体、字号、上升量的连续编码
type textWriter struct {
	b       *bytes.Buffer
	res     string
	size    string
	rise    string
	pending []byte
}

func (w *textWriter) show(res string, size, rise float64, codes []byte) {
	s, rs := fmtNum(size), fmtNum(rise)
	if res != w.res || s != w.size {
		w.flush()
		fmt.Fprintf(w.b, "%s %s Tf\n", pdfName(res), s)
		w.res, w.size = res, s
	}
	if rs != w.rise {
		w.flush()
		fmt.Fprintf(w.b, "%s Ts\n", rs)
		w.rise = rs
	}
	w.pending = append(w.pending, codes...)
}

func (w *textWriter) flush() {
	if len(w.pending) == 0 {
		return
	}
	w.b.WriteString(hexString(w.pending))
	w.b.WriteString(" Tj\n")
	w.pending = nil
}

func writeMatrix(b *bytes.Buffer, m Matrix) {
	for i, v := range m {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(fmtNum(v))
	}
}

// drawParagraph 在默认用户空间中绘制排版结果：先退出文本对象并抵消 CTM
func (g *pageGenerator) drawParagraph(p *Paragraph, primary *TextRun) ([]byte, error) {
	inv, err := primary.before.gs.ctm.Invert()
	if err != nil {
		return nil, errSingularState
	}
	var b bytes.Buffer
	b.WriteString("ET\nq\n")
	if !inv.ApproxEqual(Identity, 1e-9) {
		writeMatrix(&b, inv)
		b.WriteString(" cm\n")
	}
	b.WriteString("BT\n0 Tc 0 Tw 100 Tz 0 Tr\n")

	fit, fi := p.Fit, p.Font
	res := g.resourceFor(fi, p.Vertical)
	size, lh := fit.FontSize, fit.LineHeight
	scale := 1.0
	if p.FontSize > 0 {
		scale = size / p.FontSize
	}
	w := &textWriter{b: &b, rise: "0"}
	b.WriteString("0 Ts\n")

	for i, line := range fit.Lines {
		var x, y float64
		if fit.Vertical {
			x = fit.Box.X1 - size/2 - float64(i)*size*lh
			y = fit.Box.Y1
		} else {
			x = fit.Box.X0
			y = fit.Box.Y1 - fi.Ascent*size - float64(i)*size*lh
		}
		w.flush()
		fmt.Fprintf(&b, "1 0 0 1 %s %s Tm\n", fmtNum(x), fmtNum(y))

		for _, pc := range line.Pieces {
			if pc.Var == nil || len(pc.Var.Glyphs) == 0 {
				codes, _, err := fi.Encode(pc.Text)
				if err != nil {
					return nil, err
				}
				w.show(res, size, 0, codes)
				continue
			}
			for _, gl := range pc.Var.Glyphs {
				gs := gl.Size
				if gs <= 0 {
					gs = p.FontSize
				}
				if reusableFormulaGlyph(gl, g.fonts, p.Vertical) {
					w.show(gl.FontRes, gs*scale, gl.Rise*scale, gl.Code)
					continue
				}
				codes, _, err := fi.Encode(gl.Text)
				if err != nil {
					return nil, err
				}
				w.show(res, gs*scale, 0, codes)
			}
		}
	}
	w.flush()
	b.WriteString("ET\nQ\nBT\n")
	return b.Bytes(), nil
}

// advanceOps moves the text matrix exactly as the replaced show operator did.
// After a redrawn block the line matrix is restored first.
func advanceOps(r *TextRun, restoreLine bool) ([]byte, error) {
	var b bytes.Buffer
	ts := r.before.gs.text
	if r.Op == "\"" {
		fmt.Fprintf(&b, "%s Tw %s Tc\n", fmtNum(ts.wordSpace), fmtNum(ts.charSpace))
	}
	base := r.before.tm
	if restoreLine || r.Op == "'" || r.Op == "\"" {
		writeMatrix(&b, r.afterTlm)
		b.WriteString(" Tm\n")
		base = r.afterTlm
	}
	inv, err := base.Invert()
	if err != nil {
		return nil, errSingularState
	}
	d := r.afterTm.Multiply(inv)
	if ts.size == 0 || ts.scale == 0 {
		return nil, errSingularState
	}
	var n float64
	if r.Vertical {
		if math.Abs(d[4]) > 1e-6 {
			return nil, errSkewedAdvance
		}
		n = -d[5] * 1000 / ts.size
	} else {
		if math.Abs(d[5]) > 1e-6 {
			return nil, errSkewedAdvance
		}
		n = -d[4] * 1000 / (ts.size * ts.scale)
	}
	fmt.Fprintf(&b, "[%s] TJ\n", fmtNum(n))
	return b.Bytes(), nil
}

package pdf

import (
	"math"
	"strings"
)

// TJ 中小于该值（千分之一 em）的间距视为词间空格
const kernSpaceThreshold = -150.0

// textState 文本状态参数，属于图形状态，随 q/Q 保存恢复
type textState struct {
	font      *pageFont
	fontRes   string
	size      float64 // Tfs
	charSpace float64 // Tc
	wordSpace float64 // Tw
	scale     float64 // Th，1 = 100%
	leading   float64 // TL
	rise      float64 // Ts
	render    int     // Tr
}

type graphicsState struct {
	ctm  Matrix
	text textState
}

// runState 显示操作执行前的完整状态
type runState struct {
	gs  graphicsState
	tm  Matrix
	tlm Matrix
}

// TextRun 一个文本显示操作（Tj、TJ、'、"）
type TextRun struct {
	OpIndex int
	Op      string
	Start   int // 操作在内容流中的字节区间
	End     int
	Font    *pageFont
	FontRes string
	Size    float64 // 用户空间中的有效字号
	Glyphs  []Glyph
	Text    string
	Box     Rect
	// Translatable 为 false 时（裁剪渲染模式、Type3、未知字体）不参与翻译
	Translatable bool
	Vertical     bool
	// Block BT/ET 文本对象序号，从 1 开始
	Block  int
	Render int

	before   runState
	afterTm  Matrix
	afterTlm Matrix
}

// Baseline 文本起点在页面空间中的位置
func (r *TextRun) Baseline() (float64, float64) {
	trm := Matrix{1, 0, 0, 1, 0, r.before.gs.text.rise}.Multiply(r.before.tm).Multiply(r.before.gs.ctm)
	return trm[4], trm[5]
}

// interpreter 解释内容流中与文本相关的操作符
type interpreter struct {
	fonts map[string]*pageFont
	gs    graphicsState
	stack []graphicsState
	tm    Matrix
	tlm   Matrix
	block int
	runs  []*TextRun
}

func newInterpreter(fonts map[string]*pageFont) *interpreter {
	return &interpreter{
		fonts: fonts,
		gs:    graphicsState{ctm: Identity, text: textState{scale: 1}},
		tm:    Identity,
		tlm:   Identity,
	}
}

// InterpretPage runs the text operators of a page and returns its show
// operations in content order. ops may be a prefix when the stream had a
// syntax error; the caller decides whether to continue.
func InterpretPage(ops []Operation, fonts map[string]*pageFont) []*TextRun {
	in := newInterpreter(fonts)
	for i, op := range ops {
		in.exec(i, op)
	}
	return in.runs
}

func (in *interpreter) fontFor(res string) *pageFont {
	if f, ok := in.fonts[res]; ok {
		return f
	}
	// 未知资源：按不可翻译处理，宽度取近似值
	f := newPageFont(res, &FontSpec{Subtype: "Type1"})
	f.Unsupported = true
	if in.fonts == nil {
		in.fonts = map[string]*pageFont{}
	}
	in.fonts[res] = f
	return f
}

func (in *interpreter) exec(idx int, op Operation) {
	ts := &in.gs.text
	switch op.Op {
	case "q":
		in.stack = append(in.stack, in.gs)
	case "Q":
		if n := len(in.stack); n > 0 {
			in.gs = in.stack[n-1]
			in.stack = in.stack[:n-1]
		}
	case "cm":
		if v, ok := op.Numbers(6); ok {
			in.gs.ctm = Matrix{v[0], v[1], v[2], v[3], v[4], v[5]}.Multiply(in.gs.ctm)
		}
	case "BT":
		in.tm, in.tlm = Identity, Identity
		in.block++
	case "ET":
	case "Tf":
		if len(op.Operands) >= 2 && op.Operands[0].Kind == OperandName {
			ts.fontRes = op.Operands[0].Name
			ts.font = in.fontFor(ts.fontRes)
			ts.size, _ = op.Number(1)
		}
	case "Tc":
		if v, ok := op.Numbers(1); ok {
			ts.charSpace = v[0]
		}
	case "Tw":
		if v, ok := op.Numbers(1); ok {
			ts.wordSpace = v[0]
		}
	case "Tz":
		if v, ok := op.Numbers(1); ok {
			ts.scale = v[0] / 100
		}
	case "TL":
		if v, ok := op.Numbers(1); ok {
			ts.leading = v[0]
		}
	case "Ts":
		if v, ok := op.Numbers(1); ok {
			ts.rise = v[0]
		}
	case "Tr":
		if v, ok := op.Numbers(1); ok {
			ts.render = int(v[0])
		}
	case "Td":
		if v, ok := op.Numbers(2); ok {
			in.moveLine(v[0], v[1])
		}
	case "TD":
		if v, ok := op.Numbers(2); ok {
			ts.leading = -v[1]
			in.moveLine(v[0], v[1])
		}
	case "Tm":
		if v, ok := op.Numbers(6); ok {
			in.tm = Matrix{v[0], v[1], v[2], v[3], v[4], v[5]}
			in.tlm = in.tm
		}
	case "T*":
		in.moveLine(0, -ts.leading)
	case "Tj", "TJ", "'", "\"":
		in.show(idx, op)
	}
}

func (in *interpreter) moveLine(tx, ty float64) {
	in.tlm = TranslateMatrix(tx, ty).Multiply(in.tlm)
	in.tm = in.tlm
}

func (in *interpreter) show(idx int, op Operation) {
	ts := &in.gs.text
	if ts.font == nil {
		ts.font = in.fontFor(ts.fontRes)
	}
	run := &TextRun{
		OpIndex: idx, Op: op.Op, Start: op.Start, End: op.End,
		Font: ts.font, FontRes: ts.fontRes, Block: in.block,
	}

	var items []Operand
	switch op.Op {
	case "Tj":
		if len(op.Operands) > 0 {
			items = op.Operands[len(op.Operands)-1:]
		}
	case "TJ":
		if len(op.Operands) > 0 && op.Operands[len(op.Operands)-1].Kind == OperandArray {
			items = op.Operands[len(op.Operands)-1].Array
		}
	case "'":
		in.moveLine(0, -ts.leading)
		if len(op.Operands) > 0 {
			items = op.Operands[len(op.Operands)-1:]
		}
	case "\"":
		if len(op.Operands) >= 3 {
			ts.wordSpace, _ = op.Number(0)
			ts.charSpace, _ = op.Number(1)
			items = op.Operands[2:3]
		}
		in.moveLine(0, -ts.leading)
	}

	// ' 与 " 的换行和间距设置已生效，快照即绘制时的状态
	run.before = runState{gs: in.gs, tm: in.tm, tlm: in.tlm}

	f := ts.font
	run.Vertical = f.Vertical
	run.Render = ts.render
	run.Translatable = ts.render < 4 && !f.Unsupported && ts.size != 0 && ts.scale != 0
	run.Size = math.Abs(ts.size) * in.tm.Multiply(in.gs.ctm).ScaleY()

	var sb strings.Builder
	first := true
	pendingKern := 0.0
	for _, item := range items {
		switch item.Kind {
		case OperandNumber:
			adj := -item.Num / 1000 * ts.size
			if f.Vertical {
				in.tm = TranslateMatrix(0, adj).Multiply(in.tm)
			} else {
				in.tm = TranslateMatrix(adj*ts.scale, 0).Multiply(in.tm)
			}
			pendingKern += item.Num
		case OperandString, OperandHexString:
			for _, code := range f.split(item.Bytes) {
				if !first && pendingKern <= kernSpaceThreshold && !f.Vertical {
					run.Glyphs = append(run.Glyphs, Glyph{Text: " ", Synthetic: true, Size: run.Size})
					sb.WriteByte(' ')
				}
				pendingKern = 0
				first = false
				g := in.glyph(run, code)
				run.Glyphs = append(run.Glyphs, g)
				sb.WriteString(g.Text)
			}
		}
	}
	run.Text = sb.String()
	run.afterTm, run.afterTlm = in.tm, in.tlm
	in.runs = append(in.runs, run)
}

// glyph advances the text matrix over one code and records its box
func (in *interpreter) glyph(run *TextRun, code []byte) Glyph {
	ts := &in.gs.text
	f := ts.font
	w0 := f.width(code)
	trm := Matrix{ts.size * ts.scale, 0, 0, ts.size, 0, ts.rise}.Multiply(in.tm).Multiply(in.gs.ctm)

	var box Rect
	if f.Vertical {
		box = Rect{X0: -w0 / 2, Y0: f.descent - 0.88, X1: w0 / 2, Y1: f.ascent - 0.88}
	} else {
		box = Rect{X0: 0, Y0: f.descent, X1: w0, Y1: f.ascent}
	}
	box = trm.TransformRect(box)
	if len(run.Glyphs) == 0 {
		run.Box = box
	} else {
		run.Box = run.Box.Union(box)
	}

	spacing := ts.charSpace
	if len(code) == 1 && code[0] == 32 {
		spacing += ts.wordSpace
	}
	if f.Vertical {
		ty := -1*ts.size + spacing
		in.tm = TranslateMatrix(0, ty).Multiply(in.tm)
	} else {
		tx := (w0*ts.size + spacing) * ts.scale
		in.tm = TranslateMatrix(tx, 0).Multiply(in.tm)
	}

	return Glyph{
		Text:     f.decode(code),
		FontName: f.Spec.BaseFont,
		FontRes:  run.FontRes,
		Size:     run.Size,
		Rise:     ts.rise * in.gs.ctm.ScaleY(),
		Code:     append([]byte(nil), code...),
		Advance:  w0 * 1000,
	}
}

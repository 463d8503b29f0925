package pdf

import (
	"bytes"
	"fmt"
	"sort"
)

// 校验时的数值容差
const (
	matrixTolerance = 1e-3
	boxTolerance    = 1e-2
)

// Splice replaces the byte spans of the edits and keeps every other byte.
// Edits must not overlap.
func Splice(content []byte, edits []spanEdit) ([]byte, error) {
	sorted := append([]spanEdit(nil), edits...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	var out bytes.Buffer
	pos := 0
	for _, e := range sorted {
		if e.Start < pos || e.Start > e.End || e.End > len(content) {
			return nil, fmt.Errorf("invalid splice span [%d,%d) at %d", e.Start, e.End, pos)
		}
		out.Write(content[pos:e.Start])
		out.Write(e.Data)
		pos = e.End
	}
	out.Write(content[pos:])
	return out.Bytes(), nil
}

// newSpan 替换后内容中的区间
type newSpan struct {
	start, end int
	edit       spanEdit
}

func boxApproxEqual(a, b Rect) bool {
	return absf(a.X0-b.X0) <= boxTolerance && absf(a.Y0-b.Y0) <= boxTolerance &&
		absf(a.X1-b.X1) <= boxTolerance && absf(a.Y1-b.Y1) <= boxTolerance
}

func sameTextState(a, b textState) bool {
	return a.fontRes == b.fontRes && absf(a.size-b.size) <= matrixTolerance &&
		absf(a.charSpace-b.charSpace) <= matrixTolerance &&
		absf(a.wordSpace-b.wordSpace) <= matrixTolerance &&
		absf(a.scale-b.scale) <= matrixTolerance &&
		absf(a.leading-b.leading) <= matrixTolerance &&
		absf(a.rise-b.rise) <= matrixTolerance && a.render == b.render
}

// validateSplice re-interprets the spliced stream. Show operators outside the
// edits must be unchanged (same offset shift, text and box); every edit must
// leave the text state as the replaced operator did, and redrawn glyphs must
// stay inside the fitted box expanded by tol. It returns the paragraphs to drop.
func validateSplice(content []byte, edits []spanEdit, original []*TextRun, fonts map[string]*pageFont, tol float64) ([]byte, map[*Paragraph]string, error) {
	spliced, err := Splice(content, edits)
	if err != nil {
		return nil, nil, err
	}
	ops, err := ParseContent(spliced)
	if err != nil {
		return nil, nil, fmt.Errorf("spliced content does not parse: %w", err)
	}
	fontCopy := make(map[string]*pageFont, len(fonts))
	for k, v := range fonts {
		fontCopy[k] = v
	}
	runs := InterpretPage(ops, fontCopy)

	sorted := append([]spanEdit(nil), edits...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	replaced := map[int]bool{}
	var spans []newSpan
	delta := 0
	for _, e := range sorted {
		replaced[e.Start] = true
		s := e.Start + delta
		spans = append(spans, newSpan{start: s, end: s + len(e.Data), edit: e})
		delta += len(e.Data) - (e.End - e.Start)
	}
	shift := func(old int) int {
		d := 0
		for _, e := range sorted {
			if e.End <= old {
				d += len(e.Data) - (e.End - e.Start)
			}
		}
		return old + d
	}
	expected := map[int]*TextRun{}
	for _, r := range original {
		if !replaced[r.Start] {
			expected[shift(r.Start)] = r
		}
	}

	bad := map[*Paragraph]string{}
	// 编辑之后出现差异时归咎于其前最近的一处编辑
	blame := func(pos int, why string) {
		for i := len(spans) - 1; i >= 0; i-- {
			if spans[i].end <= pos {
				if _, ok := bad[spans[i].edit.Para]; !ok {
					bad[spans[i].edit.Para] = why
				}
				return
			}
		}
	}

	groups := make([][]*TextRun, len(spans))
	seen := map[int]bool{}
	for _, r := range runs {
		k := sort.Search(len(spans), func(i int) bool { return spans[i].end > r.Start })
		if k < len(spans) && spans[k].start <= r.Start {
			groups[k] = append(groups[k], r)
			continue
		}
		orig, ok := expected[r.Start]
		if !ok {
			blame(r.Start, "unexpected show operator after splice")
			continue
		}
		seen[r.Start] = true
		if orig.Text != r.Text || !boxApproxEqual(orig.Box, r.Box) ||
			!orig.afterTm.ApproxEqual(r.afterTm, matrixTolerance) {
			blame(r.Start, fmt.Sprintf("text after splice moved: %q", orig.Text))
		}
	}
	for pos := range expected {
		if !seen[pos] {
			blame(pos, "show operator lost by splice")
		}
	}

	for k, sp := range spans {
		e := sp.edit
		if _, ok := bad[e.Para]; ok {
			continue
		}
		g := groups[k]
		if len(g) == 0 {
			bad[e.Para] = "replacement has no show operator"
			continue
		}
		last := g[len(g)-1]
		if !last.afterTm.ApproxEqual(e.Run.afterTm, matrixTolerance) ||
			!last.afterTlm.ApproxEqual(e.Run.afterTlm, matrixTolerance) ||
			!last.before.gs.ctm.ApproxEqual(e.Run.before.gs.ctm, matrixTolerance) ||
			!sameTextState(last.before.gs.text, e.Run.before.gs.text) {
			bad[e.Para] = "text state after replacement differs"
			continue
		}
		if !e.Primary {
			continue
		}
		var box Rect
		drawn := false
		for _, r := range g[:len(g)-1] {
			if len(r.Glyphs) == 0 {
				continue
			}
			if !drawn {
				box, drawn = r.Box, true
			} else {
				box = box.Union(r.Box)
			}
		}
		fit := e.Para.Fit
		if !drawn && len(fit.Lines) > 0 {
			bad[e.Para] = "replacement draws no glyphs"
			continue
		}
		if drawn && !fit.Box.Contains(box, tol) {
			bad[e.Para] = fmt.Sprintf("replacement box %.1f,%.1f,%.1f,%.1f outside %.1f,%.1f,%.1f,%.1f",
				box.X0, box.Y0, box.X1, box.Y1, fit.Box.X0, fit.Box.Y0, fit.Box.X1, fit.Box.Y1)
		}
	}
	return spliced, bad, nil
}

// ReplacePage splices all edits that validate. Paragraphs whose edits fail
// are dropped and the rest re-validated until stable; dropped paragraphs keep
// their original operators.
func (g *pageGenerator) ReplacePage(content []byte, edits []spanEdit, tol float64) ([]byte, map[*Paragraph]string) {
	rejected := map[*Paragraph]string{}
	for len(edits) > 0 {
		spliced, bad, err := validateSplice(content, edits, g.runs, g.fonts, tol)
		if err != nil {
			for _, e := range edits {
				rejected[e.Para] = err.Error()
			}
			return content, rejected
		}
		if len(bad) == 0 {
			return spliced, rejected
		}
		var keep []spanEdit
		for _, e := range edits {
			if why, ok := bad[e.Para]; ok {
				rejected[e.Para] = why
				continue
			}
			keep = append(keep, e)
		}
		edits = keep
	}
	return content, rejected
}

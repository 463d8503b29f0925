package pdf

import (
	"fmt"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

// 表格单元格之间的水平间隙与行间距（pt）
const (
	tableCellGap = 15.0
	tableRowGap  = 5.0
)

// lineThreshold 同一行的基线偏差上限
func lineThreshold(size float64) float64 {
	return math.Max(size*0.3, 3)
}

// paragraphThreshold 段内相邻行的基线距离上限
func paragraphThreshold(size float64) float64 {
	return math.Max(size*1.8, 20)
}

// columnThreshold 行首横向跳变超过该值视为换栏
func columnThreshold(pageWidth float64) float64 {
	return math.Max(50, pageWidth*0.2)
}

// wordGapThreshold 拉丁字形之间插入空格的最小间隙
func wordGapThreshold(size float64) float64 {
	return math.Max(1, 0.15*size)
}

// uprightRun reports whether the run is drawn unrotated and unmirrored
func uprightRun(r *TextRun) bool {
	m := r.before.tm.Multiply(r.before.gs.ctm)
	if !m.IsAxisAligned() {
		return false
	}
	return m[0] > 0 && m[3] > 0
}

func lastRune(s string) rune {
	r, _ := utf8.DecodeLastRuneInString(s)
	return r
}

func firstRune(s string) rune {
	r, _ := utf8.DecodeRuneInString(s)
	return r
}

func isLatinLetter(r rune) bool {
	return (r < 0x250 && unicode.IsLetter(r)) || unicode.IsDigit(r)
}

// BuildCells groups the translatable runs of a page into line cells.
// Runs are visited in content order; a run continues the current cell when it
// sits on the same baseline right after it.
func BuildCells(page int, runs []*TextRun) []*TranslationCell {
	var cells []*TranslationCell
	var cur *TranslationCell
	var curBase float64

	for _, r := range runs {
		if !r.Translatable || strings.TrimSpace(r.Text) == "" {
			continue
		}
		if !uprightRun(r) {
			continue
		}
		bx, by := r.Baseline()
		base := by
		if r.Vertical {
			base = bx
		}

		if cur != nil && continuesCell(cur, curBase, r, base) {
			last := cur.Glyphs[len(cur.Glyphs)-1]
			gap := r.Box.X0 - cur.Box.X1
			if r.Vertical {
				gap = cur.Box.Y0 - r.Box.Y1
			}
			if !r.Vertical && gap > wordGapThreshold(r.Size) &&
				isLatinLetter(lastRune(last.Text)) && isLatinLetter(firstRune(r.Text)) {
				cur.Glyphs = append(cur.Glyphs, Glyph{Text: " ", Synthetic: true, Size: r.Size})
			}
			cur.Glyphs = append(cur.Glyphs, r.Glyphs...)
			cur.Runs = append(cur.Runs, r)
			cur.Box = cur.Box.Union(r.Box)
			continue
		}

		cur = &TranslationCell{
			ID:   fmt.Sprintf("p%d-c%d", page, len(cells)),
			Page: page,
			Box:  r.Box,
			Font: CellFont{
				Name:     StripSubsetTag(r.Font.Spec.BaseFont),
				Resource: r.FontRes,
				Size:     r.Size,
				Vertical: r.Vertical,
			},
			Role:   RoleParagraph,
			Runs:   []*TextRun{r},
			Glyphs: append([]Glyph(nil), r.Glyphs...),
		}
		curBase = base
		cells = append(cells, cur)
	}

	for _, c := range cells {
		var sb strings.Builder
		for _, g := range c.Glyphs {
			sb.WriteString(g.Text)
		}
		c.Text = sb.String()
	}
	return cells
}

func continuesCell(c *TranslationCell, base float64, r *TextRun, rBase float64) bool {
	if c.Font.Vertical != r.Vertical {
		return false
	}
	size := math.Max(c.Font.Size, r.Size)
	if math.Abs(base-rBase) > lineThreshold(size) {
		return false
	}
	if r.Vertical {
		gap := c.Box.Y0 - r.Box.Y1
		return gap > -size && gap <= tableCellGap
	}
	gap := r.Box.X0 - c.Box.X1
	return gap > -size && gap <= tableCellGap
}

// cellBaseline 横排取首个字形的基线 y，竖排取列中心 x
func cellBaseline(c *TranslationCell) float64 {
	r := c.Runs[0]
	x, y := r.Baseline()
	if c.Font.Vertical {
		return x
	}
	return y
}

// dominantSize 字形数量最多的字号
func dominantSize(glyphs []Glyph) float64 {
	counts := map[float64]int{}
	best, bestN := 0.0, 0
	for _, g := range glyphs {
		if g.Synthetic || g.Size <= 0 {
			continue
		}
		s := math.Round(g.Size*10) / 10
		counts[s]++
		if counts[s] > bestN || counts[s] == bestN && s > best {
			best, bestN = s, counts[s]
		}
	}
	return best
}

// joinSeparator decides how two consecutive lines of a paragraph are joined.
// It returns the separator and whether the trailing hyphen of prev is dropped.
func joinSeparator(prev, next string) (string, bool) {
	p, n := lastRune(prev), firstRune(next)
	switch {
	case prev == "" || next == "":
		return "", false
	case IsCJK(p) || IsCJK(n):
		return "", false
	case p == '-' && unicode.IsLower(n):
		before, _ := utf8.DecodeLastRuneInString(strings.TrimSuffix(prev, "-"))
		if isLatinLetter(before) {
			return "", true
		}
	case unicode.IsSpace(p) || unicode.IsSpace(n):
		return "", false
	}
	return " ", false
}

// GroupParagraphs merges consecutive cells of the same region into paragraphs.
// Cells with a role that is not translatable are left out.
func GroupParagraphs(page int, cells []*TranslationCell, pageWidth float64) []*Paragraph {
	var paras []*Paragraph
	var cur *Paragraph

	for _, c := range cells {
		if !c.Role.IsTranslatable() {
			continue
		}
		if cur != nil && canJoin(cur, c, pageWidth) {
			last := cur.Cells[len(cur.Cells)-1]
			sep, dropHyphen := joinSeparator(last.Text, c.Text)
			if dropHyphen {
				cur.Glyphs = dropTrailingHyphen(cur.Glyphs)
			}
			if sep != "" {
				cur.Glyphs = append(cur.Glyphs, Glyph{Text: sep, Synthetic: true})
			}
			cur.Glyphs = append(cur.Glyphs, c.Glyphs...)
			cur.Cells = append(cur.Cells, c)
			cur.Box = cur.Box.Union(c.Box)
			c.Paragraph = cur
			continue
		}
		cur = &Paragraph{
			ID:       c.ID,
			Page:     page,
			Cells:    []*TranslationCell{c},
			Role:     c.Role,
			Box:      c.Box,
			Vertical: c.Font.Vertical,
			FontType: c.Runs[0].Font.Type,
			Glyphs:   append([]Glyph(nil), c.Glyphs...),
		}
		c.Paragraph = cur
		paras = append(paras, cur)
	}

	for _, p := range paras {
		var sb strings.Builder
		for _, g := range p.Glyphs {
			sb.WriteString(g.Text)
		}
		p.Text = sb.String()
		p.FontSize = dominantSize(p.Glyphs)
		if p.FontSize == 0 {
			p.FontSize = p.Cells[0].Font.Size
		}
	}
	return paras
}

// dropTrailingHyphen 删除末尾的连字符字形，跳过其后无法解码的空字形
func dropTrailingHyphen(glyphs []Glyph) []Glyph {
	for i := len(glyphs) - 1; i >= 0; i-- {
		switch glyphs[i].Text {
		case "":
			continue
		case "-":
			return append(glyphs[:i:i], glyphs[i+1:]...)
		}
		break
	}
	return glyphs
}

func canJoin(p *Paragraph, c *TranslationCell, pageWidth float64) bool {
	last := p.Cells[len(p.Cells)-1]
	if c.Role != p.Role || c.GroupKey != p.Cells[0].GroupKey || c.Font.Vertical != p.Vertical {
		return false
	}
	for _, o := range p.Cells {
		inter := o.Box.Intersect(c.Box).Area()
		if inter > 0.1*math.Min(o.Box.Area(), c.Box.Area()) {
			return false
		}
	}
	size := math.Max(last.Font.Size, c.Font.Size)
	if ratio := c.Font.Size / last.Font.Size; ratio < 0.8 || ratio > 1.25 {
		return false
	}

	if p.Role == RoleTableCell {
		if p.Vertical {
			return math.Abs(c.Box.Y1-last.Box.Y1) <= tableRowGap && last.Box.X0-c.Box.X1 <= tableRowGap
		}
		return math.Abs(c.Box.X0-last.Box.X0) <= tableRowGap && last.Box.Y0-c.Box.Y1 <= tableRowGap
	}

	// 下一行（竖排为左侧下一列）
	step := cellBaseline(last) - cellBaseline(c)
	if step <= lineThreshold(size) || step > paragraphThreshold(size) {
		return false
	}
	if p.Vertical {
		return math.Abs(c.Box.Y1-last.Box.Y1) <= columnThreshold(pageWidth)
	}
	return math.Abs(c.Box.X0-last.Box.X0) <= columnThreshold(pageWidth)
}

// paragraphUndecodable reports glyphs without text that no placeholder keeps
func paragraphUndecodable(p *Paragraph) bool {
	missing := 0
	for _, g := range p.Glyphs {
		if !g.Synthetic && g.Text == "" {
			missing++
		}
	}
	for _, v := range p.Vars {
		for _, g := range v.Glyphs {
			if g.Text == "" {
				missing--
			}
		}
	}
	return missing > 0
}

package pdf

import (
	"context"
	"strings"
	"unicode"
)

// 页眉页脚带占页面高度的比例
const headerFooterBand = 0.06

// RuleLayoutProvider labels a page from its extracted text cells without a
// model. Only regions that must not be translated are emitted; the rest of
// the page is left to geometric paragraph grouping.
type RuleLayoutProvider struct{}

// DetectLayout implements LayoutProvider
func (RuleLayoutProvider) DetectLayout(ctx context.Context, page PageInput) (*LayoutArray, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := &LayoutArray{Page: page.Page}
	h := page.MediaBox.Height()
	for _, c := range page.Cells {
		text := strings.TrimSpace(c.Text)
		label := -1
		switch {
		case isPostScriptCode(text):
			label = LabelFormula
		case isMathFormula(text):
			label = LabelFormula
		case h > 0 && c.Box.Y0 >= page.MediaBox.Y1-h*headerFooterBand && isRunningText(text):
			label = LabelPageHeader
		case h > 0 && c.Box.Y1 <= page.MediaBox.Y0+h*headerFooterBand && isRunningText(text):
			label = LabelPageFooter
		}
		if label >= 0 {
			out.Regions = append(out.Regions, LayoutRegion{Box: c.Box, Label: label, Confidence: 1})
		}
	}
	return out, nil
}

// isRunningText 页码或很短的页眉页脚文字
func isRunningText(text string) bool {
	if isPageNumber(text) {
		return true
	}
	return len(strings.Fields(text)) <= 3 && len([]rune(text)) <= 40
}

// isPageNumber matches "12", "- 12 -", "12 / 40", "iv", "Page 3"
func isPageNumber(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	t = strings.TrimPrefix(t, "page")
	t = strings.Trim(t, " -–—()[]/")
	if t == "" {
		return false
	}
	digits := true
	for _, r := range t {
		if !unicode.IsDigit(r) && r != ' ' && r != '/' {
			digits = false
			break
		}
	}
	if digits {
		return true
	}
	for _, r := range t {
		if !strings.ContainsRune("ivxlcdm", r) {
			return false
		}
	}
	return len(t) <= 6
}

// isPostScriptCode checks if text looks like leaked PostScript/PDF operator code
func isPostScriptCode(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)

	// "/name def" 是最可靠的特征
	if (strings.Contains(text, " def ") || strings.HasSuffix(text, " def")) && strings.Contains(text, "/") {
		return true
	}
	if strings.Contains(lower, "null def") || strings.Contains(text, "@stx") || strings.Contains(text, "@etx") {
		return true
	}
	if strings.Contains(lower, "/burl") || strings.Contains(lower, "burl@") {
		return true
	}
	for _, op := range []string{
		"currentpoint", "gsave", "grestore", "newpath", "closepath",
		"setrgbcolor", "setgray", "setlinewidth", "showpage",
	} {
		if strings.Contains(lower, op) {
			return true
		}
	}

	// URL 里也有斜杠
	if strings.Contains(text, "://") || strings.Contains(lower, "http") {
		return false
	}
	names := 0
	for _, word := range strings.Fields(text) {
		if len(word) < 2 || word[0] != '/' {
			continue
		}
		isName := true
		for _, c := range word[1:] {
			if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '@') {
				isName = false
				break
			}
		}
		if isName {
			names++
		}
	}
	return names >= 3
}

const mathSymbols = "∫∑∏√∂∇±×÷≤≥≠≈∞∈∉⊂⊃∪∩∧∨¬∀∃αβγδεζηθικλμνξοπρστυφχψω"

// isMathFormula reports a line that is mostly mathematical notation
func isMathFormula(text string) bool {
	if text == "" {
		return false
	}
	symbols, total, letters := 0, 0, 0
	for _, r := range text {
		total++
		switch {
		case strings.ContainsRune("+-*/=<>^_~()[]{}", r), strings.ContainsRune(mathSymbols, r):
			symbols++
		case unicode.IsLetter(r):
			letters++
		}
	}
	if float64(symbols)/float64(total) > 0.3 {
		return true
	}
	if strings.ContainsAny(text, "∫∑∏√∂∇") && letters < 10 {
		return true
	}
	if strings.Contains(text, "=") && strings.ContainsAny(text, "(+-") {
		// 单词很少的等式
		return len(strings.Fields(text)) <= 5 && len(text) < 100 && letters < 12
	}
	return strings.Count(text, "_")+strings.Count(text, "^") > 2 && len(text) < 100
}

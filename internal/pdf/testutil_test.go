package pdf

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// pdfBuilder writes a minimal PDF with exact content streams
type pdfBuilder struct {
	objs []string
}

func (b *pdfBuilder) reserve() int {
	b.objs = append(b.objs, "")
	return len(b.objs)
}

func (b *pdfBuilder) set(n int, body string) {
	b.objs[n-1] = body
}

func (b *pdfBuilder) add(body string) int {
	n := b.reserve()
	b.set(n, body)
	return n
}

func (b *pdfBuilder) stream(dict string, data string) int {
	return b.add(fmt.Sprintf("<< %s /Length %d >>\nstream\n%s\nendstream", dict, len(data), data))
}

func (b *pdfBuilder) bytes(root int) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n")
	offsets := make([]int, len(b.objs))
	for i, body := range b.objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(b.objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(b.objs)+1, root, xref)
	return buf.Bytes()
}

// fontMaker 在 builder 中写入字体对象并返回其编号
type fontMaker func(b *pdfBuilder) int

func helveticaFont(b *pdfBuilder) int {
	return b.add("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
}

// testCJKRunes 测试用 CID 字体包含的字符，CID 为下标加一
var testCJKRunes = []rune("価格: 10円")

func testCJKWidth(r rune) int {
	if r < 0x80 {
		return 500
	}
	return 1000
}

// cjkFont 非嵌入的 Identity-H Type0 字体，带 W 与 ToUnicode
func cjkFont(b *pdfBuilder) int {
	var cmap strings.Builder
	cmap.WriteString("/CIDInit /ProcSet findresource begin\n12 dict begin\nbegincmap\n")
	cmap.WriteString("/CIDSystemInfo << /Registry (Adobe) /Ordering (UCS) /Supplement 0 >> def\n")
	cmap.WriteString("/CMapName /Adobe-Identity-UCS def\n/CMapType 2 def\n")
	cmap.WriteString("1 begincodespacerange\n<0000> <FFFF>\nendcodespacerange\n")
	fmt.Fprintf(&cmap, "%d beginbfchar\n", len(testCJKRunes))
	var widths []string
	for i, r := range testCJKRunes {
		fmt.Fprintf(&cmap, "<%04X> <%04X>\n", i+1, r)
		widths = append(widths, fmt.Sprint(testCJKWidth(r)))
	}
	cmap.WriteString("endbfchar\nendcmap\nCMapName currentdict /CMapResource defineresource pop\nend\nend")
	toUni := b.stream("", cmap.String())

	desc := b.add("<< /Type /FontDescriptor /FontName /TestGothic /Flags 4 /FontBBox [0 -120 1000 880] " +
		"/ItalicAngle 0 /Ascent 880 /Descent -120 /CapHeight 880 /StemV 80 >>")
	cid := b.add(fmt.Sprintf("<< /Type /Font /Subtype /CIDFontType2 /BaseFont /TestGothic "+
		"/CIDSystemInfo << /Registry (Adobe) /Ordering (Identity) /Supplement 0 >> "+
		"/FontDescriptor %d 0 R /DW 1000 /W [1 [%s]] /CIDToGIDMap /Identity >>", desc, strings.Join(widths, " ")))
	return b.add(fmt.Sprintf("<< /Type /Font /Subtype /Type0 /BaseFont /TestGothic /Encoding /Identity-H "+
		"/DescendantFonts [%d 0 R] /ToUnicode %d 0 R >>", cid, toUni))
}

// cjkHex encodes text for cjkFont as a hex string operand
func cjkHex(t testing.TB, text string) string {
	t.Helper()
	var sb strings.Builder
	sb.WriteByte('<')
	for _, r := range text {
		cid := -1
		for i, c := range testCJKRunes {
			if c == r {
				cid = i + 1
				break
			}
		}
		require.GreaterOrEqual(t, cid, 1, "rune %q not in test font", r)
		fmt.Fprintf(&sb, "%04X", cid)
	}
	sb.WriteByte('>')
	return sb.String()
}

// testPage 一页的内容流与字体；Fonts 为空时 F1 为 Helvetica
type testPage struct {
	Content string
	Fonts   map[string]fontMaker
}

// buildTestPDF returns the bytes of a document with the given pages
func buildTestPDF(pages ...testPage) []byte {
	b := &pdfBuilder{}
	catalog := b.reserve()
	pagesObj := b.reserve()
	var kids []string
	for _, p := range pages {
		fonts := p.Fonts
		if fonts == nil {
			fonts = map[string]fontMaker{"F1": helveticaFont}
		}
		names := make([]string, 0, len(fonts))
		for name := range fonts {
			names = append(names, name)
		}
		// 固定对象编号
		sort.Strings(names)
		var res []string
		for _, name := range names {
			res = append(res, fmt.Sprintf("/%s %d 0 R", name, fonts[name](b)))
		}
		content := b.stream("", p.Content)
		page := b.add(fmt.Sprintf("<< /Type /Page /Parent %d 0 R /MediaBox [0 0 612 792] "+
			"/Resources << /Font << %s >> >> /Contents %d 0 R >>", pagesObj, strings.Join(res, " "), content))
		kids = append(kids, fmt.Sprintf("%d 0 R", page))
	}
	b.set(pagesObj, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	b.set(catalog, fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", pagesObj))
	return b.bytes(catalog)
}

// writeTestPDF writes the document to dir/test.pdf
func writeTestPDF(t testing.TB, dir string, pages ...testPage) string {
	t.Helper()
	path := filepath.Join(dir, "test.pdf")
	require.NoError(t, os.WriteFile(path, buildTestPDF(pages...), 0644))
	return path
}

// testPageFonts 解析测试字体，供不经过 pdfcpu 的解释器测试使用
func testPageFonts(t testing.TB, path string, page int) (*PageData, map[string]*pageFont) {
	t.Helper()
	doc, err := OpenDocument(path)
	require.NoError(t, err)
	pd, err := doc.Page(page)
	require.NoError(t, err)
	fonts := map[string]*pageFont{}
	for name, spec := range pd.Fonts {
		fonts[name] = newPageFont(name, spec)
	}
	return pd, fonts
}

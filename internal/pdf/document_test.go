package pdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"codeberg.org/go-pdf/fpdf"
	pdftypes "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-layout-translator/internal/config"
	"pdf-layout-translator/internal/logger"
	"pdf-layout-translator/internal/types"
)

func TestOpenDocument_Errors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.pdf")
	require.NoError(t, os.WriteFile(garbage, []byte("not a pdf at all"), 0644))

	tests := []struct {
		name string
		path string
		code PDFErrorCode
	}{
		{"missing", filepath.Join(dir, "missing.pdf"), ErrPDFNotFound},
		{"directory", dir, ErrPDFInvalid},
		{"garbage", garbage, ErrPDFInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := OpenDocument(tt.path)
			var pe *PDFError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.code, pe.Code)
		})
	}
}

func TestDocument_Page(t *testing.T) {
	content := "BT /C1 21 Tf 72 700 Td " + cjkHex(t, "価格") + " Tj ET"
	path := writeTestPDF(t, t.TempDir(),
		testPage{Content: "BT /F1 12 Tf 72 700 Td (Hello) Tj ET"},
		testPage{Content: content, Fonts: map[string]fontMaker{"C1": cjkFont, "F1": helveticaFont}},
	)
	doc, err := OpenDocument(path)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.PageCount())

	pd, err := doc.Page(2)
	require.NoError(t, err)
	assert.Equal(t, Rect{0, 0, 612, 792}, pd.MediaBox)
	assert.Equal(t, content, string(pd.Content))
	assert.Equal(t, map[string]bool{"C1": true, "F1": true}, pd.FontNames)

	cjk := pd.Fonts["C1"]
	require.NotNil(t, cjk)
	assert.Equal(t, "Type0", cjk.Subtype)
	assert.Equal(t, "Identity-H", cjk.Encoding)
	assert.Equal(t, "CIDFontType2", cjk.DescendantSubtype)
	assert.InDelta(t, 1000, cjk.DW, 1e-9)
	assert.InDelta(t, 500, cjk.W[3], 1e-9, "':' is CID 3")
	assert.NotEmpty(t, cjk.ToUnicode)
	assert.False(t, cjk.HasFontFile)
	assert.NotZero(t, cjk.ObjNr)

	_, err = doc.Page(3)
	assert.Error(t, err)
}

func TestDocument_RewritePage(t *testing.T) {
	dir := t.TempDir()
	path := writeTestPDF(t, dir, testPage{Content: "BT /F1 12 Tf 72 700 Td (Hello) Tj ET"})
	doc, err := OpenDocument(path)
	require.NoError(t, err)

	ref, err := doc.HelveticaRef()
	require.NoError(t, err)
	again, err := doc.HelveticaRef()
	require.NoError(t, err)
	assert.Equal(t, ref, again, "the fallback font object is shared")

	content := "BT /TLF1 10 Tf 72 650 Td (Bye) Tj ET"
	require.NoError(t, doc.SetPageContent(1, []byte(content)))
	require.NoError(t, doc.AddPageFonts(1, map[string]pdftypes.IndirectRef{"TLF1": ref}))

	out := filepath.Join(dir, "out.pdf")
	require.NoError(t, doc.Write(out))
	assert.NoError(t, Validate(out))

	assert.Equal(t, content, pageContent(t, out, 1))
	pd, _ := testPageFonts(t, out, 1)
	assert.True(t, pd.FontNames["F1"], "existing resources are kept")
	require.Contains(t, pd.Fonts, "TLF1")
	assert.Equal(t, "Helvetica", pd.Fonts["TLF1"].BaseFont)
}

func TestNormalizeVolatile(t *testing.T) {
	in := []byte("<< /ModDate (D:20240101120000+08'00') /CreationDate (D:20231231) >>\n" +
		"trailer << /ID [<AB12CD34><EF567890>] >>")
	out := normalizeVolatile(in)
	require.Len(t, out, len(in), "byte offsets must not move")
	s := string(out)
	assert.Contains(t, s, "/ModDate (D:20000101000000+08'00')")
	assert.Contains(t, s, "/CreationDate (D:20000101)")
	assert.NotContains(t, s, "AB12CD34")
	assert.Equal(t, out, normalizeVolatile(in))

	// 只有日期不同的两份文件归一化后一致
	other := []byte(strings.Replace(string(in), "20240101120000", "20250505050505", 1))
	assert.Equal(t, out, normalizeVolatile(other))
}

// classicPDF 按给定顺序排布对象，生成经典 xref 表
func classicPDF(order ...int) []byte {
	bodies := map[int]string{
		1: "1 0 obj\n<</Type /Catalog /Pages 2 0 R>>\nendobj\n",
		2: "2 0 obj\n<</Type /Pages /Kids [3 0 R] /Count 1>>\nendobj\n",
		3: "3 0 obj\n<</Type /Page /Parent 2 0 R /MediaBox [0 0 612 792]>>\nendobj\n",
	}
	var sb strings.Builder
	sb.WriteString("%PDF-1.7\n")
	offsets := map[int]int{}
	for _, nr := range order {
		offsets[nr] = sb.Len()
		sb.WriteString(bodies[nr])
	}
	xref := sb.Len()
	sb.WriteString("xref\n0 4\n0000000000 65535 f \n")
	for nr := 1; nr <= 3; nr++ {
		fmt.Fprintf(&sb, "%010d 00000 n \n", offsets[nr])
	}
	fmt.Fprintf(&sb, "trailer\n<</Root 1 0 R /Size 4>>\nstartxref\n%d\n%%%%EOF\n", xref)
	return []byte(sb.String())
}

func TestSortObjects(t *testing.T) {
	want := classicPDF(1, 2, 3)
	got := sortObjects(classicPDF(3, 1, 2))
	assert.Equal(t, string(want), string(got))
	assert.Equal(t, want, sortObjects(want), "already ordered input is unchanged")

	// 无法解析时原样返回
	broken := []byte("%PDF-1.7\nnot a pdf\nstartxref\n999\n%%EOF\n")
	assert.Equal(t, broken, sortObjects(broken))
}

// 译文超出原字体时嵌入替代字体子集
func TestProcess_EmbedsSubstituteFont(t *testing.T) {
	dir := t.TempDir()
	src := writeTestPDF(t, dir, testPage{
		Content: "BT /C1 21 Tf 72 700 Td " + cjkHex(t, "価格: 100円") + " Tj ET",
		Fonts:   map[string]fontMaker{"C1": cjkFont},
	})
	dst := filepath.Join(dir, "out.pdf")

	cfg := config.DefaultConfig()
	cfg.Workers, cfg.Concurrency = 1, 1
	cfg.Fonts = types.FontConfig{Overrides: map[string]string{"en": writeGoFont(t)}, SkipSystemDirs: true}
	p, err := NewPdfProcessor(ProcessorOptions{
		Config: cfg,
		Oracle: fixedOracle("Price: 100 yen"),
		Layout: StaticLayoutProvider{1: {{Box: Rect{X0: 72, Y0: 698, X1: 272, Y1: 718}, Label: LabelText, Confidence: 0.9}}},
		Logger: logger.Nop(),
	})
	require.NoError(t, err)

	res, err := p.Process(context.Background(), src, dst)
	require.NoError(t, err)
	require.Equal(t, 1, res.Stats.SucceededCells, "%+v", res.Stats)
	assert.Equal(t, "ok", res.Paragraphs[0].Status)
	assert.NoError(t, Validate(dst))

	pd, _ := testPageFonts(t, dst, 1)
	var embedded *FontSpec
	for name, spec := range pd.Fonts {
		if name != "C1" {
			embedded = spec
		}
	}
	require.NotNil(t, embedded)
	assert.True(t, embedded.HasFontFile)
	assert.Equal(t, "Type0", embedded.Subtype)
	assert.Contains(t, embedded.BaseFont, "+")
	assert.Equal(t, []string{"Price: 100 yen"}, pageTexts(t, dst, 1))
}

// 处理其他工具生成的 PDF：fpdf 写出压缩内容流，字体在 BT 之外设置
func TestProcess_FpdfDocument(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "fpdf.pdf")
	doc := fpdf.New("P", "pt", "Letter", "")
	doc.SetCompression(true)
	doc.AddPage()
	doc.SetFont("Helvetica", "", 12)
	doc.Text(72, 92, "Hello world")
	doc.Text(72, 192, "Second paragraph")
	require.NoError(t, doc.OutputFileAndClose(src))

	dst := filepath.Join(dir, "out.pdf")
	oracle := OracleFunc(func(_ context.Context, req OracleRequest) ([]string, error) {
		out := make([]string, len(req.Texts))
		for i, s := range req.Texts {
			out[i] = strings.ToLower(s)
		}
		return out, nil
	})
	res, err := newTestProcessor(t, oracle, nil).Process(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, PhaseComplete, res.State)
	assert.Equal(t, 2, res.Stats.TotalCells)
	assert.Equal(t, 2, res.Stats.SucceededCells, "%+v", res.Stats.FailedCells)
	assert.Equal(t, []string{"hello world", "second paragraph"}, pageTexts(t, dst, 1))
}

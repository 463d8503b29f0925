package pdf

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBilingualPDF(t *testing.T) {
	original := writeTestPDF(t, t.TempDir(),
		testPage{Content: "BT /F1 12 Tf 72 700 Td (Original one) Tj ET"},
		testPage{Content: "BT /F1 12 Tf 72 700 Td (Original two) Tj ET"},
	)
	translated := writeTestPDF(t, t.TempDir(),
		testPage{Content: "BT /F1 12 Tf 72 700 Td (Translated one) Tj ET"},
	)
	out := filepath.Join(t.TempDir(), "out_bilingual.pdf")

	res, err := CreateBilingualPDF(original, translated, out)
	require.NoError(t, err)
	assert.Equal(t, &BilingualResult{TotalPages: 3, OriginalPages: 2, TranslatedPages: 1}, res)

	n, err := api.PageCountFile(out)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, Validate(out))

	// 原文与译文交替，多出的原文页放在最后
	assert.Equal(t, []string{"Original one"}, pageTexts(t, out, 1))
	assert.Equal(t, []string{"Translated one"}, pageTexts(t, out, 2))
	assert.Equal(t, []string{"Original two"}, pageTexts(t, out, 3))
}

func TestCreateBilingualPDF_Errors(t *testing.T) {
	dir := t.TempDir()
	good := writeTestPDF(t, dir, testPage{Content: "BT /F1 12 Tf 72 700 Td (x) Tj ET"})
	missing := filepath.Join(dir, "missing.pdf")

	_, err := CreateBilingualPDF(missing, good, filepath.Join(dir, "a.pdf"))
	var pe *PDFError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrPDFInvalid, pe.Code)

	_, err = CreateBilingualPDF(good, missing, filepath.Join(dir, "b.pdf"))
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrPDFInvalid, pe.Code)
	assert.NoFileExists(t, filepath.Join(dir, "b.pdf"))
}

func TestOutputPaths(t *testing.T) {
	assert.Equal(t, "/tmp/doc_translated_bilingual.pdf", BilingualPath("/tmp/doc_translated.pdf"))
	assert.Equal(t, "/tmp/doc_translated_glossary.csv", GlossaryPath("/tmp/doc_translated.pdf"))
}

// readGlossary 去掉 BOM 后解析 CSV
func readGlossary(t *testing.T, path string) [][]string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("\ufeff")), "file starts with a UTF-8 BOM")
	rows, err := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\ufeff")))).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestExportGlossaryCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glossary.csv")
	reports := []ParagraphReport{
		{ID: "p1-c0", Page: 1, Text: " 価格 ", Translated: "Price ", Status: "ok"},
		{ID: "p1-c1", Page: 1, Text: "12", Status: "skipped"},
		{ID: "p1-c2", Page: 1, Text: "数式", Translated: "Formula", Status: string(ReasonFormulaMismatch)},
		{ID: "p2-c0", Page: 2, Text: "a, \"b\"", Translated: "line\nbreak", Status: "ok"},
		{ID: "p2-c1", Page: 2, Text: "未送信", Status: "pending"},
	}

	res, err := ExportGlossaryCSV(path, reports)
	require.NoError(t, err)
	assert.Equal(t, &GlossaryResult{Total: 4, Exported: 2, Skipped: 2}, res)

	assert.Equal(t, [][]string{
		{"original", "translated", "page", "address"},
		{"価格", "Price", "1", "p1-c0"},
		{"a, \"b\"", "line\nbreak", "2", "p2-c0"},
	}, readGlossary(t, path))
}

func TestExportGlossaryCSV_FromProcessResult(t *testing.T) {
	dir := t.TempDir()
	src := writeTestPDF(t, dir, testPage{
		Content: "BT /C1 21 Tf 72 700 Td " + cjkHex(t, "価格: 100円") + " Tj ET",
		Fonts:   map[string]fontMaker{"C1": cjkFont},
	})
	dst := filepath.Join(dir, "out.pdf")
	layout := StaticLayoutProvider{1: {{Box: Rect{X0: 72, Y0: 698, X1: 272, Y1: 718}, Label: LabelText, Confidence: 0.9}}}
	result, err := newTestProcessor(t, fixedOracle("Price: 100 yen"), layout).Process(context.Background(), src, dst)
	require.NoError(t, err)

	path := GlossaryPath(dst)
	res, err := ExportGlossaryCSV(path, result.Paragraphs)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Exported)

	rows := readGlossary(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"価格: 100円", "Price: 100 yen", "1", result.Paragraphs[0].ID}, rows[1])

	// 译文 PDF 与原文组成对照文件
	bi, err := CreateBilingualPDF(src, dst, BilingualPath(dst))
	require.NoError(t, err)
	assert.Equal(t, 2, bi.TotalPages)
	assert.Equal(t, []string{"Price: 100 yen"}, pageTexts(t, BilingualPath(dst), 2))
}

func TestExportGlossaryCSV_WriteError(t *testing.T) {
	_, err := ExportGlossaryCSV(filepath.Join(t.TempDir(), "no", "such", "dir.csv"), nil)
	var pe *PDFError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrWriteFailed, pe.Code)
}

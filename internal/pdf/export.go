package pdf

import (
	"bytes"
	"encoding/csv"
	"os"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// BilingualResult 对照 PDF 的页数统计
type BilingualResult struct {
	TotalPages      int `json:"total_pages"`
	OriginalPages   int `json:"original_pages"`
	TranslatedPages int `json:"translated_pages"`
}

// BilingualPath 对照文件路径：<输出文件名>_bilingual.pdf
func BilingualPath(output string) string {
	return strings.TrimSuffix(output, ".pdf") + "_bilingual.pdf"
}

// CreateBilingualPDF interleaves the pages of the original and the translated
// document: original 1, translated 1, original 2, ... Pages left over in the
// longer document are appended at the end.
func CreateBilingualPDF(original, translated, out string) (*BilingualResult, error) {
	origPages, err := api.PageCountFile(original)
	if err != nil {
		return nil, NewPDFError(ErrPDFInvalid, "无法读取原文 PDF", err)
	}
	transPages, err := api.PageCountFile(translated)
	if err != nil {
		return nil, NewPDFError(ErrPDFInvalid, "无法读取译文 PDF", err)
	}

	f1, err := os.Open(original)
	if err != nil {
		return nil, NewPDFError(ErrPDFNotFound, "无法打开原文 PDF", err)
	}
	defer f1.Close()
	f2, err := os.Open(translated)
	if err != nil {
		return nil, NewPDFError(ErrPDFNotFound, "无法打开译文 PDF", err)
	}
	defer f2.Close()

	conf := model.NewDefaultConfiguration()
	conf.WriteObjectStream = false
	conf.WriteXRefStream = false
	var buf bytes.Buffer
	if err := api.MergeCreateZip(f1, f2, &buf, conf); err != nil {
		return nil, NewPDFError(ErrWriteFailed, "无法生成对照 PDF", err)
	}
	data := normalizeVolatile(sortObjects(buf.Bytes()))
	if err := os.WriteFile(out, data, 0644); err != nil {
		return nil, NewPDFError(ErrWriteFailed, "无法写入对照 PDF", err)
	}
	return &BilingualResult{
		TotalPages:      origPages + transPages,
		OriginalPages:   origPages,
		TranslatedPages: transPages,
	}, nil
}

// GlossaryResult 术语表导出统计
type GlossaryResult struct {
	Total    int `json:"total"`
	Exported int `json:"exported"`
	Skipped  int `json:"skipped"`
}

// GlossaryPath 术语表路径：<输出文件名>_glossary.csv
func GlossaryPath(output string) string {
	return strings.TrimSuffix(output, ".pdf") + "_glossary.csv"
}

// ExportGlossaryCSV writes the source/translation pairs of the paragraphs
// that were written to the output as original,translated,page,address rows.
// The file starts with a UTF-8 BOM so spreadsheet tools detect the encoding.
func ExportGlossaryCSV(path string, paragraphs []ParagraphReport) (*GlossaryResult, error) {
	var buf bytes.Buffer
	buf.WriteString("\ufeff")
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"original", "translated", "page", "address"}); err != nil {
		return nil, NewPDFError(ErrWriteFailed, "无法生成术语表", err)
	}

	res := &GlossaryResult{}
	for _, p := range paragraphs {
		// 没有可翻译内容的段落不算在内
		if p.Status == "skipped" {
			continue
		}
		res.Total++
		original, translated := strings.TrimSpace(p.Text), strings.TrimSpace(p.Translated)
		if p.Status != "ok" || original == "" || translated == "" {
			res.Skipped++
			continue
		}
		if err := w.Write([]string{original, translated, strconv.Itoa(p.Page), p.ID}); err != nil {
			return nil, NewPDFError(ErrWriteFailed, "无法生成术语表", err)
		}
		res.Exported++
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, NewPDFError(ErrWriteFailed, "无法生成术语表", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return nil, NewPDFError(ErrWriteFailed, "无法写入术语表", err)
	}
	return res, nil
}

package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"unicode"

	lpdf "github.com/ledongthuc/pdf"
)

// 检查前几页即可判断是否为文本 PDF
const probePages = 3

// ProbePDF 获取 PDF 基本信息（页数、文件大小、是否含可提取文本）
func ProbePDF(pdfPath string) (*PDFInfo, error) {
	fileInfo, err := os.Stat(pdfPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewPDFError(ErrPDFNotFound, "文件不存在，请检查路径", err)
		}
		return nil, NewPDFError(ErrPDFInvalid, "无法访问文件", err)
	}
	if fileInfo.IsDir() {
		return nil, NewPDFError(ErrPDFInvalid, "路径指向目录而非文件", nil)
	}

	f, r, err := lpdf.Open(pdfPath)
	if err != nil {
		return nil, NewPDFError(ErrPDFInvalid, "无法打开 PDF 文件", err)
	}
	defer f.Close()

	return &PDFInfo{
		FilePath:  pdfPath,
		FileName:  filepath.Base(pdfPath),
		PageCount: r.NumPage(),
		FileSize:  fileInfo.Size(),
		IsTextPDF: hasExtractableText(r),
	}, nil
}

// hasExtractableText 前几页能取出任意非空白文本即视为文本 PDF。
// ledongthuc/pdf 遇到少见的结构会 panic，按无文本处理。
func hasExtractableText(r *lpdf.Reader) (found bool) {
	defer func() {
		if rec := recover(); rec != nil {
			found = false
		}
	}()
	n := min(r.NumPage(), probePages)
	for i := 1; i <= n; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		for _, c := range content {
			if !unicode.IsSpace(c) {
				return true
			}
		}
	}
	return false
}

// String 用于日志
func (i *PDFInfo) String() string {
	return fmt.Sprintf("%s (%d pages, %d bytes, text=%v)", i.FileName, i.PageCount, i.FileSize, i.IsTextPDF)
}

package pdf

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestProbePDF_NonExistentFile tests that ProbePDF returns an error for non-existent files
func TestProbePDF_NonExistentFile(t *testing.T) {
	_, err := ProbePDF("/non/existent/file.pdf")
	require.Error(t, err)

	var pdfErr *PDFError
	require.True(t, errors.As(err, &pdfErr), "expected PDFError, got %T", err)
	assert.Equal(t, ErrPDFNotFound, pdfErr.Code)
}

// TestProbePDF_Directory tests that ProbePDF returns an error when path is a directory
func TestProbePDF_Directory(t *testing.T) {
	_, err := ProbePDF(".")
	require.Error(t, err)

	var pdfErr *PDFError
	require.True(t, errors.As(err, &pdfErr))
	assert.Equal(t, ErrPDFInvalid, pdfErr.Code)
}

// TestProbePDF_InvalidFile tests that ProbePDF returns an error for invalid PDF files
func TestProbePDF_InvalidFile(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "invalid.pdf")
	require.NoError(t, os.WriteFile(tmpFile, []byte("This is not a PDF file"), 0644))

	_, err := ProbePDF(tmpFile)
	require.Error(t, err)

	var pdfErr *PDFError
	require.True(t, errors.As(err, &pdfErr))
	assert.Equal(t, ErrPDFInvalid, pdfErr.Code)
}

func TestProbePDF_TextDocument(t *testing.T) {
	path := writeTestPDF(t, t.TempDir(), testPage{Content: "BT /F1 12 Tf 72 700 Td (Hello world) Tj ET"})

	info, err := ProbePDF(path)
	require.NoError(t, err)
	assert.Equal(t, 1, info.PageCount)
	assert.Equal(t, "test.pdf", info.FileName)
	assert.Positive(t, info.FileSize)
	assert.True(t, info.IsTextPDF)
	assert.Contains(t, info.String(), "1 pages")
}

func TestProbePDF_NoText(t *testing.T) {
	path := writeTestPDF(t, t.TempDir(), testPage{Content: "0 0 m 100 100 l S"})

	info, err := ProbePDF(path)
	require.NoError(t, err)
	assert.False(t, info.IsTextPDF)
}

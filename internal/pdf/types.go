// Package pdf implements layout-preserving PDF translation: text runs are
// extracted from page content streams, grouped into paragraphs, translated
// with formulas protected, fitted back into their original boxes and spliced
// into the content stream in place of the source operators.
package pdf

import "fmt"

// PDFInfo PDF 文件信息
type PDFInfo struct {
	FilePath  string `json:"file_path"`
	FileName  string `json:"file_name"`
	PageCount int    `json:"page_count"`
	FileSize  int64  `json:"file_size"`
	IsTextPDF bool   `json:"is_text_pdf"`
}

// Phase 文档处理阶段
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseExtracting  Phase = "extracting"
	PhaseProtecting  Phase = "protecting"
	PhaseTranslating Phase = "translating"
	PhaseFitting     Phase = "fitting"
	PhaseGenerating  Phase = "generating"
	PhaseComplete    Phase = "complete"
	PhaseFailed      Phase = "failed"
	PhaseCancelled   Phase = "cancelled"
)

// phaseOrder 正常流程中各阶段的先后顺序
var phaseOrder = map[Phase]int{
	PhaseIdle:        0,
	PhaseExtracting:  1,
	PhaseProtecting:  2,
	PhaseTranslating: 3,
	PhaseFitting:     4,
	PhaseGenerating:  5,
	PhaseComplete:    6,
}

// IsValidPhase checks if the given phase is a known Phase
func IsValidPhase(phase Phase) bool {
	switch phase {
	case PhaseFailed, PhaseCancelled:
		return true
	}
	_, ok := phaseOrder[phase]
	return ok
}

// IsTerminal reports whether no further transition is allowed
func (p Phase) IsTerminal() bool {
	return p == PhaseComplete || p == PhaseFailed || p == PhaseCancelled
}

// CanTransition reports whether the state machine may move from one phase to another.
// FAILED and CANCELLED are reachable from any non-terminal phase; otherwise
// phases advance strictly one step at a time.
func CanTransition(from, to Phase) bool {
	if from.IsTerminal() || !IsValidPhase(to) {
		return false
	}
	if to == PhaseFailed || to == PhaseCancelled {
		return true
	}
	return phaseOrder[to] == phaseOrder[from]+1
}

// Role 版面区域角色
type Role int

const (
	RoleAbandon Role = iota
	RoleParagraph
	RoleTableCell
	RoleBackground
)

func (r Role) String() string {
	switch r {
	case RoleParagraph:
		return "paragraph"
	case RoleTableCell:
		return "table"
	case RoleBackground:
		return "background"
	default:
		return "abandon"
	}
}

// IsTranslatable reports whether text in a region with this role is translated
func (r Role) IsTranslatable() bool {
	return r == RoleParagraph || r == RoleTableCell
}

// ParseRole parses the names used in configuration label tables
func ParseRole(s string) (Role, error) {
	switch s {
	case "paragraph", "text":
		return RoleParagraph, nil
	case "table", "table-cell":
		return RoleTableCell, nil
	case "background", "figure":
		return RoleBackground, nil
	case "abandon":
		return RoleAbandon, nil
	}
	return RoleAbandon, fmt.Errorf("unknown layout role %q", s)
}

// FailureReason 单元格失败原因
type FailureReason string

const (
	ReasonFormulaMismatch  FailureReason = "formula-mismatch"
	ReasonFontUnresolved   FailureReason = "font-unresolved"
	ReasonSpliceRejected   FailureReason = "splice-rejected"
	ReasonTranslationError FailureReason = "translation-error"
)

// CellFont 单元格原始字体信息
type CellFont struct {
	Name     string  `json:"name"`     // BaseFont，去除子集前缀
	Resource string  `json:"resource"` // 页面资源名，例如 F1
	Size     float64 `json:"size"`     // 用户空间中的有效字号
	Vertical bool    `json:"vertical"`
}

// TranslationCell 页面上的一个翻译单元（一行或一个表格单元）
type TranslationCell struct {
	ID       string     `json:"id"`
	Page     int        `json:"page"`
	Text     string     `json:"text"`
	Box      Rect       `json:"box"`
	Font     CellFont   `json:"font"`
	Role     Role       `json:"role"`
	GroupKey int        `json:"group_key"`
	Runs     []*TextRun `json:"-"`
	Glyphs   []Glyph    `json:"-"`

	Paragraph *Paragraph `json:"-"`
}

// Paragraph 同一视觉块内的单元格集合
type Paragraph struct {
	ID        string
	Page      int
	Cells     []*TranslationCell
	Role      Role
	Box       Rect
	Text      string // 拼接后的原文
	Protected string // 含 {vN} 占位符
	Vars      []FormulaVar
	FontSize  float64
	Vertical  bool
	FontType  FontType
	Glyphs    []Glyph

	Translated string
	Segments   []Segment
	Fit        *FitResult
	Font       *FontInfo
	FromCache  bool
	Failed     FailureReason
	FailDetail string
	// Skipped 没有可翻译内容，保持原样且不计入统计
	Skipped bool
}

// Fail 标记段落失败，首次失败原因优先
func (p *Paragraph) Fail(reason FailureReason, detail string) {
	if p.Failed != "" {
		return
	}
	p.Failed = reason
	p.FailDetail = detail
}

// PDFErrorCode 错误代码枚举
type PDFErrorCode string

const (
	ErrPDFNotFound     PDFErrorCode = "PDF_NOT_FOUND"
	ErrPDFInvalid      PDFErrorCode = "PDF_INVALID"
	ErrPDFEncrypted    PDFErrorCode = "PDF_ENCRYPTED"
	ErrPDFCorrupted    PDFErrorCode = "PDF_CORRUPTED"
	ErrPDFNoText       PDFErrorCode = "PDF_NO_TEXT"
	ErrExtractFailed   PDFErrorCode = "EXTRACT_FAILED"
	ErrTranslateFailed PDFErrorCode = "TRANSLATE_FAILED"
	ErrWriteFailed     PDFErrorCode = "WRITE_FAILED"
	ErrCacheFailed     PDFErrorCode = "CACHE_FAILED"
	ErrAPIFailed       PDFErrorCode = "API_FAILED"
	ErrCancelled       PDFErrorCode = "CANCELLED"
)

// PDFError 文档级错误
type PDFError struct {
	Code    PDFErrorCode `json:"code"`
	Message string       `json:"message"`
	Details string       `json:"details,omitempty"`
	Page    int          `json:"page,omitempty"`
	Cause   error        `json:"-"`
}

// Error implements the error interface for PDFError
func (e *PDFError) Error() string {
	msg := e.Message
	if e.Page > 0 {
		msg = fmt.Sprintf("%s (page %d)", msg, e.Page)
	}
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause of the error
func (e *PDFError) Unwrap() error {
	return e.Cause
}

// NewPDFError creates a new PDFError with the given code, message, and optional cause
func NewPDFError(code PDFErrorCode, message string, cause error) *PDFError {
	return &PDFError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewPDFErrorWithDetails creates a new PDFError with details
func NewPDFErrorWithDetails(code PDFErrorCode, message, details string, cause error) *PDFError {
	return &PDFError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}

// NewPDFErrorWithPage creates a new PDFError with page information
func NewPDFErrorWithPage(code PDFErrorCode, message string, page int, cause error) *PDFError {
	return &PDFError{
		Code:    code,
		Message: message,
		Page:    page,
		Cause:   cause,
	}
}

// Package types defines configuration and error types shared by the PDF translation engine.
package types

// Config 应用配置
type Config struct {
	OpenAIAPIKey  string `json:"openai_api_key" yaml:"openai_api_key"`
	OpenAIBaseURL string `json:"openai_base_url" yaml:"openai_base_url"` // OpenAI 兼容 API 的 Base URL
	OpenAIModel   string `json:"openai_model" yaml:"openai_model"`
	// TranslatorBackend 选择翻译客户端："eino"（默认）或 "http"
	TranslatorBackend string `json:"translator_backend" yaml:"translator_backend"`
	ContextWindow     int    `json:"context_window" yaml:"context_window"` // 每次翻译请求的最大字符数
	Concurrency       int    `json:"concurrency" yaml:"concurrency"`       // 同时进行的翻译请求数，默认为 3
	Workers           int    `json:"workers" yaml:"workers"`               // 页面处理并发数，0 表示 CPU 核数

	SourceLanguage string `json:"source_language" yaml:"source_language"`
	TargetLanguage string `json:"target_language" yaml:"target_language"`

	CachePath string `json:"cache_path" yaml:"cache_path"` // 翻译缓存文件，留空则不缓存

	Fonts   FontConfig    `json:"fonts" yaml:"fonts"`
	Layout  LayoutConfig  `json:"layout" yaml:"layout"`
	Fitting FittingConfig `json:"fitting" yaml:"fitting"`

	// SpliceTolerance 替换内容与原始区域的最大偏差（pt）
	SpliceTolerance float64 `json:"splice_tolerance" yaml:"splice_tolerance"`
	// AllowPlaceholderReorder 允许译文中的公式占位符改变顺序
	AllowPlaceholderReorder bool `json:"allow_placeholder_reorder" yaml:"allow_placeholder_reorder"`
	// FormulaFontPattern 公式字体名正则，留空使用内置规则
	FormulaFontPattern string `json:"formula_font_pattern" yaml:"formula_font_pattern"`

	LogLevel string `json:"log_level" yaml:"log_level"`
	LogFile  string `json:"log_file" yaml:"log_file"`
}

// FontConfig 替换字体搜索配置
type FontConfig struct {
	Dirs []string `json:"dirs" yaml:"dirs"` // 优先于系统字体目录搜索
	// Overrides 按语言指定字体文件，例如 {"ja": "/path/NotoSansJP.ttf"}
	Overrides map[string]string `json:"overrides" yaml:"overrides"`
	// SkipSystemDirs 只搜索 Dirs，不搜索平台字体目录
	SkipSystemDirs bool `json:"skip_system_dirs" yaml:"skip_system_dirs"`
}

// LayoutConfig 版面分析配置
type LayoutConfig struct {
	Provider      string  `json:"provider" yaml:"provider"` // "rules"（默认）、"onnx" 或 "none"
	ModelPath     string  `json:"model_path" yaml:"model_path"`
	OnnxLibPath   string  `json:"onnx_lib_path" yaml:"onnx_lib_path"`
	DPI           int     `json:"dpi" yaml:"dpi"`
	ConfThreshold float32 `json:"conf_threshold" yaml:"conf_threshold"`
	NMSThreshold  float32 `json:"nms_threshold" yaml:"nms_threshold"`
	// ContainmentThreshold 区域被 ABANDON/BACKGROUND 区域吸收的面积比例
	ContainmentThreshold float64 `json:"containment_threshold" yaml:"containment_threshold"`
	// LabelTable 自定义标签映射：标签编号 -> paragraph/table/abandon/background
	LabelTable map[int]string `json:"label_table" yaml:"label_table"`
}

// FittingConfig 排版缩放步长与下限
type FittingConfig struct {
	LineHeightStep     float64 `json:"line_height_step" yaml:"line_height_step"`
	MinLineHeight      float64 `json:"min_line_height" yaml:"min_line_height"`
	TableMinLineHeight float64 `json:"table_min_line_height" yaml:"table_min_line_height"`
	FontSizeStep       float64 `json:"font_size_step" yaml:"font_size_step"`
	MinFontSize        float64 `json:"min_font_size" yaml:"min_font_size"`
}

// ErrorCode 错误代码枚举
type ErrorCode string

const (
	ErrNetwork      ErrorCode = "NETWORK_ERROR"
	ErrFileNotFound ErrorCode = "FILE_NOT_FOUND"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrAPICall      ErrorCode = "API_CALL_ERROR"
	ErrAPIRateLimit ErrorCode = "API_RATE_LIMIT"
	ErrConfig       ErrorCode = "CONFIG_ERROR"
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
	ErrTranslation  ErrorCode = "TRANSLATION_ERROR"
)

// AppError 应用错误
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface for AppError
func (e *AppError) Error() string {
	msg := e.Message
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new AppError with the given code, message, and optional cause
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewAppErrorWithDetails creates a new AppError with details
func NewAppErrorWithDetails(code ErrorCode, message, details string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}

// Package config provides configuration management for the PDF translation engine.
// Configuration is read from a JSON or YAML file (chosen by extension) and
// completed with defaults and environment overrides.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"pdf-layout-translator/internal/logger"
	"pdf-layout-translator/internal/types"
)

const (
	// DefaultConfigFileName is the default configuration file name
	DefaultConfigFileName = "pdf-layout-translator.yaml"
	// EnvOpenAIAPIKey is the environment variable name for OpenAI API key
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	// EnvOpenAIBaseURL is the environment variable name for OpenAI base URL
	EnvOpenAIBaseURL = "OPENAI_BASE_URL"
	// EnvOpenAIModel overrides the configured model
	EnvOpenAIModel = "OPENAI_MODEL"
	// DefaultBaseURL is the default OpenAI API base URL
	DefaultBaseURL = "https://api.openai.com/v1"
	// DefaultModel is the default OpenAI model to use
	DefaultModel = "gpt-4o-mini"
	// DefaultBackend 默认翻译客户端
	DefaultBackend = "eino"
	// DefaultContextWindow 每批次字符预算
	DefaultContextWindow = 4000
	// DefaultConcurrency is the default translation concurrency
	DefaultConcurrency = 3
	// DefaultSourceLanguage / DefaultTargetLanguage 默认语言对
	DefaultSourceLanguage = "ja"
	DefaultTargetLanguage = "en"
	// DefaultSpliceTolerance 替换校验容差（pt）
	DefaultSpliceTolerance = 2.0
	// DefaultLayoutProvider 默认版面分析方式
	DefaultLayoutProvider = "rules"
)

// DefaultFitting 排版缩放默认值
var DefaultFitting = types.FittingConfig{
	LineHeightStep:     0.05,
	MinLineHeight:      1.0,
	TableMinLineHeight: 1.0,
	FontSizeStep:       0.5,
	MinFontSize:        5.0,
}

// ConfigManager manages application configuration
type ConfigManager struct {
	configPath string
	config     *types.Config
}

// NewConfigManager creates a new ConfigManager with the specified config path.
// If configPath is empty, it uses the default path in user's home directory.
func NewConfigManager(configPath string) (*ConfigManager, error) {
	if configPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			logger.Error("failed to get user home directory", err)
			return nil, types.NewAppError(types.ErrConfig, "failed to get user home directory", err)
		}
		configPath = filepath.Join(homeDir, ".config", "pdf-layout-translator", DefaultConfigFileName)
	}

	logger.Debug("ConfigManager initialized", logger.String("configPath", configPath))
	return &ConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
	}, nil
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *types.Config {
	return &types.Config{
		OpenAIBaseURL:     DefaultBaseURL,
		OpenAIModel:       DefaultModel,
		TranslatorBackend: DefaultBackend,
		ContextWindow:     DefaultContextWindow,
		Concurrency:       DefaultConcurrency,
		SourceLanguage:    DefaultSourceLanguage,
		TargetLanguage:    DefaultTargetLanguage,
		Layout: types.LayoutConfig{
			Provider:             DefaultLayoutProvider,
			DPI:                  144,
			ConfThreshold:        0.25,
			NMSThreshold:         0.45,
			ContainmentThreshold: 0.8,
		},
		Fitting:         DefaultFitting,
		SpliceTolerance: DefaultSpliceTolerance,
		LogLevel:        "info",
	}
}

// isYAML 根据扩展名判断配置格式
func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Load loads configuration from the config file.
// If the file doesn't exist, or cannot be parsed, defaults are used.
func (m *ConfigManager) Load() error {
	logger.Debug("loading configuration", logger.String("path", m.configPath))

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Error("failed to read config file", err, logger.String("path", m.configPath))
			return types.NewAppError(types.ErrConfig, "failed to read config file", err)
		}
		logger.Info("config file not found, using defaults", logger.String("path", m.configPath))
		m.config = DefaultConfig()
	} else {
		config := &types.Config{}
		if isYAML(m.configPath) {
			err = yaml.Unmarshal(data, config)
		} else {
			err = json.Unmarshal(data, config)
		}
		if err != nil {
			logger.Warn("invalid config file format, using defaults", logger.String("path", m.configPath), logger.Err(err))
			m.config = DefaultConfig()
		} else {
			logger.Info("configuration loaded",
				logger.String("path", m.configPath),
				logger.String("backend", config.TranslatorBackend),
				logger.String("model", config.OpenAIModel))
			m.config = config
		}
	}

	applyDefaults(m.config)
	return nil
}

// applyDefaults fills zero values; booleans and maps are left as loaded
func applyDefaults(c *types.Config) {
	d := DefaultConfig()
	if c.OpenAIModel == "" {
		c.OpenAIModel = d.OpenAIModel
	}
	if c.OpenAIBaseURL == "" {
		c.OpenAIBaseURL = d.OpenAIBaseURL
	}
	if c.TranslatorBackend == "" {
		c.TranslatorBackend = d.TranslatorBackend
	}
	if c.ContextWindow <= 0 {
		c.ContextWindow = d.ContextWindow
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.SourceLanguage == "" {
		c.SourceLanguage = d.SourceLanguage
	}
	if c.TargetLanguage == "" {
		c.TargetLanguage = d.TargetLanguage
	}
	if c.SpliceTolerance <= 0 {
		c.SpliceTolerance = d.SpliceTolerance
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}

	l := &c.Layout
	if l.Provider == "" {
		l.Provider = d.Layout.Provider
	}
	if l.DPI <= 0 {
		l.DPI = d.Layout.DPI
	}
	if l.ConfThreshold <= 0 {
		l.ConfThreshold = d.Layout.ConfThreshold
	}
	if l.NMSThreshold <= 0 {
		l.NMSThreshold = d.Layout.NMSThreshold
	}
	if l.ContainmentThreshold <= 0 || l.ContainmentThreshold > 1 {
		l.ContainmentThreshold = d.Layout.ContainmentThreshold
	}

	f := &c.Fitting
	if f.LineHeightStep <= 0 {
		f.LineHeightStep = DefaultFitting.LineHeightStep
	}
	if f.MinLineHeight <= 0 {
		f.MinLineHeight = DefaultFitting.MinLineHeight
	}
	if f.TableMinLineHeight <= 0 {
		f.TableMinLineHeight = DefaultFitting.TableMinLineHeight
	}
	if f.FontSizeStep <= 0 {
		f.FontSizeStep = DefaultFitting.FontSizeStep
	}
	if f.MinFontSize <= 0 {
		f.MinFontSize = DefaultFitting.MinFontSize
	}
}

// Save saves the current configuration to the config file in the format
// implied by its extension.
func (m *ConfigManager) Save() error {
	logger.Debug("saving configuration", logger.String("path", m.configPath))

	dir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Error("failed to create config directory", err, logger.String("dir", dir))
		return types.NewAppError(types.ErrConfig, "failed to create config directory", err)
	}

	var data []byte
	var err error
	if isYAML(m.configPath) {
		data, err = yaml.Marshal(m.config)
	} else {
		data, err = json.MarshalIndent(m.config, "", "  ")
	}
	if err != nil {
		logger.Error("failed to marshal config", err)
		return types.NewAppError(types.ErrConfig, "failed to marshal config", err)
	}

	if err := os.WriteFile(m.configPath, data, 0600); err != nil {
		logger.Error("failed to write config file", err, logger.String("path", m.configPath))
		return types.NewAppError(types.ErrConfig, "failed to write config file", err)
	}

	logger.Info("configuration saved", logger.String("path", m.configPath))
	return nil
}

// GetAPIKey returns the OpenAI API key.
// It first checks the config file value, then falls back to the environment variable.
func (m *ConfigManager) GetAPIKey() string {
	if m.config != nil && m.config.OpenAIAPIKey != "" {
		return m.config.OpenAIAPIKey
	}
	return os.Getenv(EnvOpenAIAPIKey)
}

// GetBaseURL returns the OpenAI API base URL.
// The environment variable wins over the built-in default but not over the file.
func (m *ConfigManager) GetBaseURL() string {
	if m.config != nil && m.config.OpenAIBaseURL != "" && m.config.OpenAIBaseURL != DefaultBaseURL {
		return m.config.OpenAIBaseURL
	}
	if envURL := os.Getenv(EnvOpenAIBaseURL); envURL != "" {
		return envURL
	}
	return DefaultBaseURL
}

// GetModel returns the OpenAI model to use.
func (m *ConfigManager) GetModel() string {
	if env := os.Getenv(EnvOpenAIModel); env != "" {
		return env
	}
	if m.config != nil && m.config.OpenAIModel != "" {
		return m.config.OpenAIModel
	}
	return DefaultModel
}

// GetConfig returns the current configuration with environment overrides applied.
func (m *ConfigManager) GetConfig() *types.Config {
	if m.config == nil {
		m.config = DefaultConfig()
	}
	c := *m.config
	c.OpenAIAPIKey = m.GetAPIKey()
	c.OpenAIBaseURL = m.GetBaseURL()
	c.OpenAIModel = m.GetModel()
	return &c
}

// SetConfig sets the entire configuration.
func (m *ConfigManager) SetConfig(config *types.Config) {
	applyDefaults(config)
	m.config = config
}

// GetConfigPath returns the path to the config file.
func (m *ConfigManager) GetConfigPath() string {
	return m.configPath
}

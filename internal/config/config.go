// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Browser modes.
const (
	BrowserModeLocal  = "local"
	BrowserModeRemote = "remote"
)

// Code sampling strategies.
const (
	CodeStrategyField         = "field"
	CodeStrategyVisibleInputs = "visible_inputs"
)

// Code source types.
const (
	CodeSourceNone  = "none"
	CodeSourceStdin = "stdin"
	CodeSourceFile  = "file"
)

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Flow       FlowConfig       `mapstructure:"flow" yaml:"flow"`
	Identity   IdentityConfig   `mapstructure:"identity" yaml:"identity"`
	CodeSource CodeSourceConfig `mapstructure:"codesource" yaml:"codesource"`
	Batch      BatchConfig      `mapstructure:"batch" yaml:"batch"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig holds the database connection details. An empty URL disables persistence.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// BrowserConfig holds settings for the automation session.
type BrowserConfig struct {
	// Mode is "local" (launch Chromium) or "remote" (attach to a DevTools endpoint,
	// e.g. a phone browser forwarded over adb).
	Mode      string `mapstructure:"mode" yaml:"mode"`
	Headless  bool   `mapstructure:"headless" yaml:"headless"`
	RemoteURL string `mapstructure:"remote_url" yaml:"remote_url"`
	// Device is an optional emulated device name such as "Pixel 2" or "iPhone X".
	Device                   string   `mapstructure:"device" yaml:"device"`
	UserAgent                string   `mapstructure:"user_agent" yaml:"user_agent"`
	DisableImages            bool     `mapstructure:"disable_images" yaml:"disable_images"`
	IgnoreTLSErrors          bool     `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Stealth                  bool     `mapstructure:"stealth" yaml:"stealth"`
	Args                     []string `mapstructure:"args" yaml:"args"`
	NavigationTimeoutSeconds float64  `mapstructure:"navigation_timeout_seconds" yaml:"navigation_timeout_seconds"`
}

// NavigationTimeout returns the page load bound as a duration.
func (b BrowserConfig) NavigationTimeout() time.Duration {
	return seconds(b.NavigationTimeoutSeconds)
}

// SelectorsConfig holds the textual locators ("kind=value") of every form element the flow touches.
type SelectorsConfig struct {
	DismissNotice   string `mapstructure:"dismiss_notice" yaml:"dismiss_notice"`
	OpenLogin       string `mapstructure:"open_login" yaml:"open_login"`
	RegisterTab     string `mapstructure:"register_tab" yaml:"register_tab"`
	Identity        string `mapstructure:"identity" yaml:"identity"`
	SendCode        string `mapstructure:"send_code" yaml:"send_code"`
	Password        string `mapstructure:"password" yaml:"password"`
	ConfirmPassword string `mapstructure:"confirm_password" yaml:"confirm_password"`
	Submit          string `mapstructure:"submit" yaml:"submit"`
	Toast           string `mapstructure:"toast" yaml:"toast"`
	CodeInputs      string `mapstructure:"code_inputs" yaml:"code_inputs"`
}

// FlowConfig configures the registration flow itself.
type FlowConfig struct {
	TargetURL               string          `mapstructure:"target_url" yaml:"target_url"`
	CodeField               string          `mapstructure:"code_field" yaml:"code_field"`
	CodeStrategy            string          `mapstructure:"code_strategy" yaml:"code_strategy"`
	CodeLength              int             `mapstructure:"code_length" yaml:"code_length"`
	CodePollIntervalSeconds float64         `mapstructure:"code_poll_interval_seconds" yaml:"code_poll_interval_seconds"`
	CodeWaitDeadlineSeconds float64         `mapstructure:"code_wait_deadline_seconds" yaml:"code_wait_deadline_seconds"`
	StepTimeoutSeconds      float64         `mapstructure:"step_timeout_seconds" yaml:"step_timeout_seconds"`
	SettleSeconds           float64         `mapstructure:"settle_seconds" yaml:"settle_seconds"`
	EvidenceDir             string          `mapstructure:"evidence_dir" yaml:"evidence_dir"`
	SuccessKeywords         []string        `mapstructure:"success_keywords" yaml:"success_keywords"`
	Selectors               SelectorsConfig `mapstructure:"selectors" yaml:"selectors"`
}

// CodePollInterval returns the poll tick as a duration.
func (f FlowConfig) CodePollInterval() time.Duration { return seconds(f.CodePollIntervalSeconds) }

// CodeWaitDeadline returns the code wait bound as a duration.
func (f FlowConfig) CodeWaitDeadline() time.Duration { return seconds(f.CodeWaitDeadlineSeconds) }

// StepTimeout returns the per-step wait bound as a duration.
func (f FlowConfig) StepTimeout() time.Duration { return seconds(f.StepTimeoutSeconds) }

// SettlePeriod returns the post-submit pause as a duration.
func (f FlowConfig) SettlePeriod() time.Duration { return seconds(f.SettleSeconds) }

// IdentityConfig controls the generated e-mail alias and password.
type IdentityConfig struct {
	Bases        []string `mapstructure:"bases" yaml:"bases"`
	SuffixLength int      `mapstructure:"suffix_length" yaml:"suffix_length"`
	// Password is used verbatim when set; otherwise a random compliant password is generated per run.
	Password string `mapstructure:"password" yaml:"password"`
}

// CodeSourceConfig selects an external channel that supplies the verification code.
type CodeSourceConfig struct {
	Type string `mapstructure:"type" yaml:"type"`
	File string `mapstructure:"file" yaml:"file"`
}

// BatchConfig controls how many independent runs a single invocation performs.
type BatchConfig struct {
	Count         int     `mapstructure:"count" yaml:"count"`
	Parallel      int     `mapstructure:"parallel" yaml:"parallel"`
	RatePerMinute float64 `mapstructure:"rate_per_minute" yaml:"rate_per_minute"`
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "regflow")
	v.SetDefault("logger.log_file", "registration_test_fast.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.mode", BrowserModeLocal)
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.remote_url", "ws://127.0.0.1:9222/")
	v.SetDefault("browser.device", "")
	v.SetDefault("browser.disable_images", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.stealth", true)
	v.SetDefault("browser.navigation_timeout_seconds", 10)

	// -- Flow --
	v.SetDefault("flow.target_url", "https://node1.much-ai.com")
	v.SetDefault("flow.code_field", "id=register-code")
	v.SetDefault("flow.code_strategy", CodeStrategyField)
	v.SetDefault("flow.code_length", 4)
	v.SetDefault("flow.code_poll_interval_seconds", 1)
	v.SetDefault("flow.code_wait_deadline_seconds", 120)
	v.SetDefault("flow.step_timeout_seconds", 10)
	v.SetDefault("flow.settle_seconds", 2)
	v.SetDefault("flow.evidence_dir", ".")
	v.SetDefault("flow.success_keywords", []string{"success", "dashboard", "home", "welcome"})
	v.SetDefault("flow.selectors.dismiss_notice", "xpath=//button[contains(@class, 'el-button--primary') and .//span[text()='OK']]")
	v.SetDefault("flow.selectors.open_login", "xpath=//button[.//span[text()='登录']]")
	v.SetDefault("flow.selectors.register_tab", "xpath=//div[@id='tab-register' and contains(@class,'el-tabs__item')]")
	v.SetDefault("flow.selectors.identity", "id=register-phone")
	v.SetDefault("flow.selectors.send_code", "xpath=//button[.//span[text()='发送验证码']]")
	v.SetDefault("flow.selectors.password", "id=register-password")
	v.SetDefault("flow.selectors.confirm_password", "id=register-confirm-password")
	v.SetDefault("flow.selectors.submit", "xpath=//button[contains(@class,'el-button--primary') and .//span[text()='注册']]")
	v.SetDefault("flow.selectors.toast", "css=div.el-message")
	v.SetDefault("flow.selectors.code_inputs", "css=input[type='text']")

	// -- Identity --
	v.SetDefault("identity.bases", []string{"forsystemxu@gmail.com", "raoxu1314@gmail.com", "xhrry1314@gmail.com"})
	v.SetDefault("identity.suffix_length", 6)
	v.SetDefault("identity.password", "")

	// -- Code Source --
	v.SetDefault("codesource.type", CodeSourceNone)
	v.SetDefault("codesource.file", "")

	// -- Batch --
	v.SetDefault("batch.count", 1)
	v.SetDefault("batch.parallel", 1)
	v.SetDefault("batch.rate_per_minute", 0)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("database.url", "REGFLOW_DATABASE_URL")
	_ = v.BindEnv("identity.password", "REGFLOW_PASSWORD")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves "~" in user supplied file system paths.
func (c *Config) expandPaths() error {
	paths := []*string{&c.Flow.EvidenceDir, &c.CodeSource.File, &c.Logger.LogFile}
	for _, p := range paths {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("could not resolve path '%s': %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Browser.Validate(); err != nil {
		return fmt.Errorf("browser configuration invalid: %w", err)
	}
	if err := c.Flow.Validate(); err != nil {
		return fmt.Errorf("flow configuration invalid: %w", err)
	}
	if err := c.Identity.Validate(); err != nil {
		return fmt.Errorf("identity configuration invalid: %w", err)
	}
	if err := c.CodeSource.Validate(); err != nil {
		return fmt.Errorf("codesource configuration invalid: %w", err)
	}
	if err := c.Batch.Validate(); err != nil {
		return fmt.Errorf("batch configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the browser settings.
func (b *BrowserConfig) Validate() error {
	switch b.Mode {
	case BrowserModeLocal:
	case BrowserModeRemote:
		if b.RemoteURL == "" {
			return fmt.Errorf("remote_url is required when mode is %q", BrowserModeRemote)
		}
	default:
		return fmt.Errorf("mode must be %q or %q, got %q", BrowserModeLocal, BrowserModeRemote, b.Mode)
	}
	if b.NavigationTimeoutSeconds <= 0 {
		return fmt.Errorf("navigation_timeout_seconds must be positive")
	}
	return nil
}

// Validate checks the flow settings.
func (f *FlowConfig) Validate() error {
	if f.TargetURL == "" {
		return fmt.Errorf("target_url is required")
	}
	if !strings.HasPrefix(f.TargetURL, "http://") && !strings.HasPrefix(f.TargetURL, "https://") {
		return fmt.Errorf("target_url must start with http:// or https://")
	}
	if f.CodeLength <= 0 {
		return fmt.Errorf("code_length must be a positive integer")
	}
	if f.CodePollIntervalSeconds <= 0 {
		return fmt.Errorf("code_poll_interval_seconds must be positive")
	}
	if f.CodeWaitDeadlineSeconds < f.CodePollIntervalSeconds {
		return fmt.Errorf("code_wait_deadline_seconds must be at least one poll interval")
	}
	if f.StepTimeoutSeconds <= 0 {
		return fmt.Errorf("step_timeout_seconds must be positive")
	}
	if f.SettleSeconds < 0 {
		return fmt.Errorf("settle_seconds must not be negative")
	}
	switch f.CodeStrategy {
	case CodeStrategyField, CodeStrategyVisibleInputs:
	default:
		return fmt.Errorf("code_strategy must be %q or %q", CodeStrategyField, CodeStrategyVisibleInputs)
	}
	if f.CodeField == "" {
		return fmt.Errorf("code_field is required")
	}
	if len(f.SuccessKeywords) == 0 {
		return fmt.Errorf("success_keywords must not be empty")
	}
	return nil
}

// Validate checks the identity settings.
func (i *IdentityConfig) Validate() error {
	if len(i.Bases) == 0 {
		return fmt.Errorf("at least one base address is required")
	}
	for _, b := range i.Bases {
		if strings.Count(b, "@") != 1 || strings.HasPrefix(b, "@") || strings.HasSuffix(b, "@") {
			return fmt.Errorf("base address %q is not a valid e-mail address", b)
		}
	}
	if i.SuffixLength <= 0 {
		return fmt.Errorf("suffix_length must be a positive integer")
	}
	return nil
}

// Validate checks the code source settings.
func (s *CodeSourceConfig) Validate() error {
	switch s.Type {
	case "", CodeSourceNone, CodeSourceStdin:
	case CodeSourceFile:
		if s.File == "" {
			return fmt.Errorf("file is required when type is %q", CodeSourceFile)
		}
	default:
		return fmt.Errorf("unknown type %q", s.Type)
	}
	return nil
}

// Validate checks the batch settings.
func (b *BatchConfig) Validate() error {
	if b.Count <= 0 {
		return fmt.Errorf("count must be a positive integer")
	}
	if b.Parallel <= 0 {
		return fmt.Errorf("parallel must be a positive integer")
	}
	if b.RatePerMinute < 0 {
		return fmt.Errorf("rate_per_minute must not be negative")
	}
	return nil
}

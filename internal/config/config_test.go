// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, BrowserModeLocal, cfg.Browser.Mode)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 10*time.Second, cfg.Browser.NavigationTimeout())

	assert.Equal(t, "https://node1.much-ai.com", cfg.Flow.TargetURL)
	assert.Equal(t, "id=register-code", cfg.Flow.CodeField)
	assert.Equal(t, 4, cfg.Flow.CodeLength)
	assert.Equal(t, time.Second, cfg.Flow.CodePollInterval())
	assert.Equal(t, 120*time.Second, cfg.Flow.CodeWaitDeadline())
	assert.Equal(t, 10*time.Second, cfg.Flow.StepTimeout())
	assert.Equal(t, 2*time.Second, cfg.Flow.SettlePeriod())
	assert.Equal(t, []string{"success", "dashboard", "home", "welcome"}, cfg.Flow.SuccessKeywords)
	assert.Equal(t, "css=div.el-message", cfg.Flow.Selectors.Toast)

	assert.Len(t, cfg.Identity.Bases, 3)
	assert.Equal(t, 6, cfg.Identity.SuffixLength)
	assert.Equal(t, CodeSourceNone, cfg.CodeSource.Type)
	assert.Equal(t, 1, cfg.Batch.Count)

	require.NoError(t, cfg.Validate(), "defaults must be valid")
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Browser Validation", func(t *testing.T) {
		valid := NewDefaultConfig().Browser
		assert.NoError(t, valid.Validate())

		badMode := valid
		badMode.Mode = "appium"
		err := badMode.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mode must be")

		remoteNoURL := valid
		remoteNoURL.Mode = BrowserModeRemote
		remoteNoURL.RemoteURL = ""
		err = remoteNoURL.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "remote_url is required")

		noNav := valid
		noNav.NavigationTimeoutSeconds = 0
		assert.Error(t, noNav.Validate())
	})

	t.Run("Flow Validation", func(t *testing.T) {
		valid := NewDefaultConfig().Flow
		assert.NoError(t, valid.Validate())

		cases := map[string]func(f *FlowConfig){
			"target_url is required":               func(f *FlowConfig) { f.TargetURL = "" },
			"target_url must start with":           func(f *FlowConfig) { f.TargetURL = "node1.much-ai.com" },
			"code_length must be a positive":        func(f *FlowConfig) { f.CodeLength = 0 },
			"code_poll_interval_seconds must be":    func(f *FlowConfig) { f.CodePollIntervalSeconds = 0 },
			"code_wait_deadline_seconds must be at": func(f *FlowConfig) { f.CodeWaitDeadlineSeconds = 0.5 },
			"step_timeout_seconds must be positive": func(f *FlowConfig) { f.StepTimeoutSeconds = -1 },
			"settle_seconds must not be negative":   func(f *FlowConfig) { f.SettleSeconds = -1 },
			"code_strategy must be":                 func(f *FlowConfig) { f.CodeStrategy = "ocr" },
			"code_field is required":                func(f *FlowConfig) { f.CodeField = "" },
			"success_keywords must not be empty":    func(f *FlowConfig) { f.SuccessKeywords = nil },
		}
		for want, mutate := range cases {
			f := valid
			mutate(&f)
			err := f.Validate()
			require.Error(t, err, want)
			assert.Contains(t, err.Error(), want)
		}
	})

	t.Run("Identity Validation", func(t *testing.T) {
		valid := IdentityConfig{Bases: []string{"someone@gmail.com"}, SuffixLength: 6}
		assert.NoError(t, valid.Validate())

		noBases := valid
		noBases.Bases = nil
		assert.Error(t, noBases.Validate())

		badBase := valid
		badBase.Bases = []string{"not-an-address"}
		err := badBase.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a valid e-mail address")

		noSuffix := valid
		noSuffix.SuffixLength = 0
		assert.Error(t, noSuffix.Validate())
	})

	t.Run("CodeSource Validation", func(t *testing.T) {
		assert.NoError(t, (&CodeSourceConfig{Type: CodeSourceNone}).Validate())
		assert.NoError(t, (&CodeSourceConfig{Type: CodeSourceStdin}).Validate())
		assert.NoError(t, (&CodeSourceConfig{Type: CodeSourceFile, File: "/tmp/sms.log"}).Validate())
		assert.Error(t, (&CodeSourceConfig{Type: CodeSourceFile}).Validate())
		assert.Error(t, (&CodeSourceConfig{Type: "carrier-pigeon"}).Validate())
	})

	t.Run("Batch Validation", func(t *testing.T) {
		assert.NoError(t, (&BatchConfig{Count: 3, Parallel: 2, RatePerMinute: 6}).Validate())
		assert.Error(t, (&BatchConfig{Count: 0, Parallel: 1}).Validate())
		assert.Error(t, (&BatchConfig{Count: 1, Parallel: 0}).Validate())
		assert.Error(t, (&BatchConfig{Count: 1, Parallel: 1, RatePerMinute: -1}).Validate())
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
browser:
  mode: remote
  remote_url: "ws://127.0.0.1:9333/devtools/browser/abc"
  device: "Pixel 2"
flow:
  target_url: "https://example.test"
  code_wait_deadline_seconds: 300
  code_strategy: visible_inputs
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, BrowserModeRemote, cfg.Browser.Mode)
		assert.Equal(t, "Pixel 2", cfg.Browser.Device)
		assert.Equal(t, "https://example.test", cfg.Flow.TargetURL)
		assert.Equal(t, 300*time.Second, cfg.Flow.CodeWaitDeadline())
		assert.Equal(t, CodeStrategyVisibleInputs, cfg.Flow.CodeStrategy)
		// Defaults still apply to keys the file does not mention.
		assert.Equal(t, 4, cfg.Flow.CodeLength)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("flow.code_length", 0)

		cfg, err := NewConfigFromViper(v)
		require.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "code_length must be a positive integer")
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)

		t.Setenv("REGFLOW_DATABASE_URL", "postgres://envvar/db")
		t.Setenv("REGFLOW_PASSWORD", "qqq123456")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "postgres://envvar/db", cfg.Database.URL)
		assert.Equal(t, "qqq123456", cfg.Identity.Password)
	})

	t.Run("Home Directory Expansion", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("flow.evidence_dir", "~/regflow-evidence")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.NotContains(t, cfg.Flow.EvidenceDir, "~")
		assert.Contains(t, cfg.Flow.EvidenceDir, "regflow-evidence")
	})
}

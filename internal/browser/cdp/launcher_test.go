// internal/browser/cdp/launcher_test.go
package cdp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/regflow/internal/browser"
	"github.com/xkilldash9x/regflow/internal/config"
)

func TestLookupDevice(t *testing.T) {
	d, ok := LookupDevice("  Pixel 2 ")
	require.True(t, ok)
	assert.NotEmpty(t, d.Device().UserAgent)

	_, ok = LookupDevice("nokia 3310")
	assert.False(t, ok)
}

func TestNewLauncher_UnknownDevice(t *testing.T) {
	cfg := config.NewDefaultConfig().Browser
	cfg.Device = "nokia 3310"

	_, err := NewLauncher(cfg, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown device profile")
}

func TestSelectorFor(t *testing.T) {
	sel, _ := selectorFor(browser.ByID("register-code"))
	assert.Equal(t, `[id="register-code"]`, sel)

	sel, _ = selectorFor(browser.ByXPath("//button"))
	assert.Equal(t, "//button", sel)

	sel, _ = selectorFor(browser.ByCSS("div.el-message"))
	assert.Equal(t, "div.el-message", sel)
}

func TestAllocatorOptions_IncludesConfiguredArgs(t *testing.T) {
	cfg := config.NewDefaultConfig().Browser
	cfg.Args = []string{"--window-size=390,844", "--mute-audio"}
	cfg.UserAgent = "regflow-test"

	l, err := NewLauncher(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	base := len(chromedp.DefaultExecAllocatorOptions)
	opts := l.allocatorOptions()
	// defaults + fixed flags + images + user agent + two args (+ setuid on linux)
	assert.GreaterOrEqual(t, len(opts), base+8+1+1+2)
}

// findChrome skips the test when no local browser binary is available.
func findChrome(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if _, err := exec.LookPath(name); err == nil {
			return
		}
	}
	t.Skip("no Chrome or Chromium binary found")
}

const registerPage = `<!DOCTYPE html>
<html><body>
<button id="send" onclick="document.getElementById('register-code').value='4821'">Send</button>
<input id="register-phone" type="text">
<input id="register-code" type="text">
<input id="hidden-field" type="text" style="display:none">
<button id="disabled-btn" disabled>Nope</button>
<div class="el-message">账号已存在</div>
</body></html>`

func TestPage_AgainstRealBrowser(t *testing.T) {
	findChrome(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, registerPage)
	}))
	defer server.Close()

	cfg := config.NewDefaultConfig().Browser
	cfg.Headless = true
	l, err := NewLauncher(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	page, err := l.Acquire(ctx)
	require.NoError(t, err)
	defer page.Release(context.Background())

	require.NoError(t, page.Open(ctx, server.URL))

	t.Run("WaitUntil clickable and click", func(t *testing.T) {
		btn, err := page.WaitUntil(ctx, browser.ByID("send"), browser.Clickable, 5*time.Second)
		require.NoError(t, err)
		require.NoError(t, btn.Click(ctx))

		field, err := page.FindElement(ctx, browser.ByID("register-code"))
		require.NoError(t, err)
		value, ok, err := field.ReadAttribute(ctx, "value")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "4821", value)
	})

	t.Run("SendText", func(t *testing.T) {
		field, err := page.FindElement(ctx, browser.ByID("register-phone"))
		require.NoError(t, err)
		require.NoError(t, field.SendText(ctx, "someone+abc123@gmail.com"))
		value, _, err := field.ReadAttribute(ctx, "value")
		require.NoError(t, err)
		assert.Equal(t, "someone+abc123@gmail.com", value)

		require.NoError(t, field.Clear(ctx))
		require.NoError(t, field.SendText(ctx, "5566"))
		value, _, err = field.ReadAttribute(ctx, "value")
		require.NoError(t, err)
		assert.Equal(t, "5566", value, "Clear drops what was typed before")
	})

	t.Run("FindElement missing", func(t *testing.T) {
		_, err := page.FindElement(ctx, browser.ByID("does-not-exist"))
		assert.ErrorIs(t, err, browser.ErrNotFound)
	})

	t.Run("Visibility", func(t *testing.T) {
		inputs, err := page.FindElements(ctx, browser.ByCSS("input[type='text']"))
		require.NoError(t, err)
		require.Len(t, inputs, 3)

		hidden, err := inputs[2].IsVisible(ctx)
		require.NoError(t, err)
		assert.False(t, hidden)

		shown, err := inputs[0].IsVisible(ctx)
		require.NoError(t, err)
		assert.True(t, shown)
	})

	t.Run("Disabled button times out", func(t *testing.T) {
		_, err := page.WaitUntil(ctx, browser.ByID("disabled-btn"), browser.Clickable, 500*time.Millisecond)
		assert.True(t, errors.Is(err, browser.ErrWaitTimeout), "got %v", err)
	})

	t.Run("Toast text and location", func(t *testing.T) {
		toast, err := page.FindElement(ctx, browser.ByXPath("//div[contains(@class,'el-message')]"))
		require.NoError(t, err)
		text, err := toast.Text(ctx)
		require.NoError(t, err)
		assert.Equal(t, "账号已存在", text)

		location, err := page.CurrentLocation(ctx)
		require.NoError(t, err)
		assert.Contains(t, location, server.URL)
	})

	t.Run("Evidence", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "shots", "run.png")
		require.NoError(t, page.CaptureEvidence(ctx, path))
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	})

	t.Run("Release is idempotent", func(t *testing.T) {
		require.NoError(t, page.Release(ctx))
		require.NoError(t, page.Release(ctx))

		_, err := page.CurrentLocation(ctx)
		assert.ErrorIs(t, err, browser.ErrSessionClosed)
	})
}

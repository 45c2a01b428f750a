// internal/browser/cdp/launcher.go
package cdp

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/device"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/regflow/internal/browser"
	"github.com/xkilldash9x/regflow/internal/config"
)

// devices lists the emulation profiles that can be selected by name in browser.device.
var devices = map[string]chromedp.Device{
	"iphone 7":  device.IPhone7,
	"iphone x":  device.IPhoneX,
	"pixel 2":   device.Pixel2,
	"galaxy s5": device.GalaxyS5,
	"ipad":      device.IPad,
}

// LookupDevice resolves a device profile by its case-insensitive display name.
func LookupDevice(name string) (chromedp.Device, bool) {
	d, ok := devices[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}

// Launcher starts one fresh browser session per Acquire call. In local mode every
// session gets its own browser process; in remote mode every session opens a new tab
// on the DevTools endpoint (typically a phone browser forwarded over adb).
type Launcher struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
}

var _ browser.Launcher = (*Launcher)(nil)

// NewLauncher validates the device name up front so a typo fails before any run starts.
func NewLauncher(cfg config.BrowserConfig, logger *zap.Logger) (*Launcher, error) {
	if cfg.Device != "" {
		if _, ok := LookupDevice(cfg.Device); !ok {
			return nil, fmt.Errorf("unknown device profile %q", cfg.Device)
		}
	}
	return &Launcher{cfg: cfg, logger: logger.Named("launcher")}, nil
}

// Acquire implements browser.Launcher.
func (l *Launcher) Acquire(ctx context.Context) (browser.Page, error) {
	sessionID := uuid.New().String()
	logger := l.logger.With(zap.String("session_id", sessionID), zap.String("mode", l.cfg.Mode))

	// The browser must outlive a canceled run long enough to be captured and released,
	// so its lifetime is tied to Release rather than to ctx.
	base := browser.Detach(ctx)

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if l.cfg.Mode == config.BrowserModeRemote {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(base, l.cfg.RemoteURL)
	} else {
		allocCtx, allocCancel = chromedp.NewExecAllocator(base, l.allocatorOptions()...)
	}

	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(logger.Sugar().Errorf),
		chromedp.WithDebugf(logger.Sugar().Debugf),
	)
	cancel := func() {
		tabCancel()
		allocCancel()
	}

	startCtx, startCancel := browser.CombineContext(tabCtx, ctx)
	defer startCancel()

	if err := chromedp.Run(startCtx, l.setupActions(logger)); err != nil {
		cancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to start browser session: %w", err)
	}

	logger.Info("Browser session acquired.")
	return newPage(tabCtx, cancel, sessionID, l.cfg.NavigationTimeout(), logger), nil
}

// setupActions runs once per session before the page is handed to the flow.
func (l *Launcher) setupActions(logger *zap.Logger) chromedp.Tasks {
	tasks := chromedp.Tasks{}
	if l.cfg.Device != "" {
		d, _ := LookupDevice(l.cfg.Device)
		tasks = append(tasks, chromedp.Emulate(d))
	}
	if l.cfg.Stealth {
		tasks = append(tasks, stealthTasks(l.cfg.UserAgent, logger)...)
	}
	return tasks
}

// allocatorOptions assembles the flags for a local browser process. chromedp drops a
// flag whose value is false, so the defaults are overridden rather than filtered.
func (l *Launcher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	opts = append(opts,
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("headless", l.cfg.Headless),
		chromedp.Flag("ignore-certificate-errors", l.cfg.IgnoreTLSErrors),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if l.cfg.DisableImages {
		opts = append(opts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}
	if l.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.cfg.UserAgent))
	}

	for _, arg := range l.cfg.Args {
		name, value, hasValue := strings.Cut(arg, "=")
		name = strings.TrimPrefix(name, "--")
		if hasValue {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}

	if runtime.GOOS == "linux" {
		opts = append(opts, chromedp.Flag("disable-setuid-sandbox", true))
	}
	return opts
}

// internal/browser/cdp/stealth.go
package cdp

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// evasionScript hides the most common automation markers before any page script runs.
const evasionScript = `(() => {
	Object.defineProperty(Navigator.prototype, 'webdriver', { get: () => undefined });
	if (!window.chrome) { window.chrome = { runtime: {} }; }
	const query = window.navigator.permissions && window.navigator.permissions.query;
	if (query) {
		window.navigator.permissions.query = (p) => p && p.name === 'notifications'
			? Promise.resolve({ state: Notification.permission })
			: query.call(window.navigator.permissions, p);
	}
})();`

// stealthTasks injects the evasion script into every new document and applies the
// user agent override when one is configured.
func stealthTasks(userAgent string, logger *zap.Logger) chromedp.Tasks {
	logger.Debug("Applying stealth evasions", zap.Bool("user_agent_override", userAgent != ""))

	tasks := chromedp.Tasks{
		chromedp.ActionFunc(func(ctx context.Context) error {
			if _, err := page.AddScriptToEvaluateOnNewDocument(evasionScript).Do(ctx); err != nil {
				return fmt.Errorf("failed to inject evasions script: %w", err)
			}
			return nil
		}),
	}
	if userAgent != "" {
		tasks = append(tasks, emulation.SetUserAgentOverride(userAgent))
	}
	return tasks
}

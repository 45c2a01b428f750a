// internal/flow/classify.go
package flow

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/regflow/internal/browser"
)

// Messages used in run results.
const (
	MessageSucceeded    = "registration succeeded"
	MessageUndetermined = "unable to determine registration result"
	MessageCodeTimeout  = "verification code was not entered in time"
)

// DefaultSuccessKeywords are the URL fragments that indicate the site moved past registration.
var DefaultSuccessKeywords = []string{"success", "dashboard", "home", "welcome"}

// Classification is the verdict on a submitted registration.
type Classification struct {
	Status  Status
	Message string
}

// Classify decides the outcome of a submission from the page location and the text of
// any toast message. A location match wins over a toast, and a blank toast is ignored.
func Classify(location, toast string, keywords []string) Classification {
	lower := strings.ToLower(location)
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lower, kw) {
			return Classification{Status: StatusSuccess, Message: MessageSucceeded}
		}
	}
	if msg := strings.TrimSpace(toast); msg != "" {
		return Classification{Status: StatusError, Message: msg}
	}
	return Classification{Status: StatusUnknown, Message: MessageUndetermined}
}

// observe reads the location and toast text after submission. Failures degrade to
// empty strings so that classification never fails.
func observe(ctx context.Context, page browser.Page, toast browser.Locator, logger *zap.Logger) (location, toastText string) {
	location, err := page.CurrentLocation(ctx)
	if err != nil {
		logger.Warn("Could not read current location", zap.Error(err))
		location = ""
	}

	el, err := page.FindElement(ctx, toast)
	if err != nil {
		return location, ""
	}
	toastText, err = el.Text(ctx)
	if err != nil {
		logger.Debug("Could not read toast text", zap.Error(err))
		return location, ""
	}
	return location, toastText
}

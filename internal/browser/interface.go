// internal/browser/interface.go
package browser

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by FindElement when no element matches the locator.
	ErrNotFound = errors.New("element not found")
	// ErrWaitTimeout is returned by WaitUntil when the condition is not met in time.
	ErrWaitTimeout = errors.New("timed out waiting for element")
	// ErrSessionClosed is returned by any operation on a released page.
	ErrSessionClosed = errors.New("automation session already released")
)

// Condition is the precondition a bounded wait checks for.
type Condition int

const (
	// Present means the element is attached to the document.
	Present Condition = iota
	// Clickable means the element is visible and enabled.
	Clickable
)

func (c Condition) String() string {
	switch c {
	case Present:
		return "present"
	case Clickable:
		return "clickable"
	default:
		return "unknown"
	}
}

// Element is a handle to a single element on the page.
type Element interface {
	Click(ctx context.Context) error
	SendText(ctx context.Context, text string) error
	// Clear empties an input so the next SendText replaces its value.
	Clear(ctx context.Context) error
	// ReadAttribute returns the live value for "value" and the DOM attribute otherwise.
	// ok is false when the attribute is absent.
	ReadAttribute(ctx context.Context, name string) (value string, ok bool, err error)
	IsVisible(ctx context.Context) (bool, error)
	Text(ctx context.Context) (string, error)
}

// Page is the capability contract the registration flow runs against. A Page is owned
// by exactly one run and must not be shared.
type Page interface {
	// Open navigates to url, failing if the page does not load within the navigation timeout.
	Open(ctx context.Context, url string) error
	// FindElement returns the first match or ErrNotFound. It never waits.
	FindElement(ctx context.Context, loc Locator) (Element, error)
	// FindElements returns every match, possibly none. It never waits.
	FindElements(ctx context.Context, loc Locator) ([]Element, error)
	// WaitUntil blocks until an element matching loc satisfies cond, or returns
	// an error wrapping ErrWaitTimeout once timeout elapses.
	WaitUntil(ctx context.Context, loc Locator, cond Condition, timeout time.Duration) (Element, error)
	CurrentLocation(ctx context.Context) (string, error)
	// CaptureEvidence writes a best effort snapshot of the page to path.
	CaptureEvidence(ctx context.Context, path string) error
	// Release terminates the session. Calling it more than once is safe.
	Release(ctx context.Context) error
}

// Launcher hands out fresh, exclusively owned automation sessions.
type Launcher interface {
	Acquire(ctx context.Context) (Page, error)
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context) (Page, error)

// Acquire implements Launcher.
func (f LauncherFunc) Acquire(ctx context.Context) (Page, error) { return f(ctx) }

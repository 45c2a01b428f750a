// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/regflow/internal/browser"
)

// -- Launcher Mock --

// MockLauncher mocks the browser.Launcher interface.
type MockLauncher struct {
	mock.Mock
}

func (m *MockLauncher) Acquire(ctx context.Context) (browser.Page, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(browser.Page), args.Error(1)
}

// -- Page Mock --

// MockPage mocks the browser.Page interface.
type MockPage struct {
	mock.Mock
}

func (m *MockPage) Open(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockPage) FindElement(ctx context.Context, loc browser.Locator) (browser.Element, error) {
	args := m.Called(ctx, loc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(browser.Element), args.Error(1)
}

func (m *MockPage) FindElements(ctx context.Context, loc browser.Locator) ([]browser.Element, error) {
	args := m.Called(ctx, loc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]browser.Element), args.Error(1)
}

func (m *MockPage) WaitUntil(ctx context.Context, loc browser.Locator, cond browser.Condition, timeout time.Duration) (browser.Element, error) {
	args := m.Called(ctx, loc, cond, timeout)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(browser.Element), args.Error(1)
}

func (m *MockPage) CurrentLocation(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPage) CaptureEvidence(ctx context.Context, path string) error {
	return m.Called(ctx, path).Error(0)
}

func (m *MockPage) Release(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// -- Element Mock --

// MockElement mocks the browser.Element interface.
type MockElement struct {
	mock.Mock
}

func (m *MockElement) Click(ctx context.Context) error { return m.Called(ctx).Error(0) }

func (m *MockElement) SendText(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

func (m *MockElement) Clear(ctx context.Context) error { return m.Called(ctx).Error(0) }

func (m *MockElement) ReadAttribute(ctx context.Context, name string) (string, bool, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockElement) IsVisible(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockElement) Text(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

var (
	_ browser.Launcher = (*MockLauncher)(nil)
	_ browser.Page     = (*MockPage)(nil)
	_ browser.Element  = (*MockElement)(nil)
)

// internal/browser/locator_test.go
package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocator(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Locator
	}{
		{"id", "id=register-code", ByID("register-code")},
		{"id with hash", "id=#register-phone", ByID("register-phone")},
		{"xpath", "xpath=//button[contains(., 'OK')]", ByXPath("//button[contains(., 'OK')]")},
		{"xpath with equals in value", "xpath=//div[@id='tab-register']", ByXPath("//div[@id='tab-register']")},
		{"css", "css=div.el-message", ByCSS("div.el-message")},
		{"case insensitive kind", "XPATH=//a", ByXPath("//a")},
		{"bare xpath", "//span[text()='注册']", ByXPath("//span[text()='注册']")},
		{"bare grouped xpath", "(//input)[2]", ByXPath("(//input)[2]")},
		{"bare css", "input[type='text']", ByCSS("input[type='text']")},
		{"surrounding space", "  css=button.primary  ", ByCSS("button.primary")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLocator(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLocator_Errors(t *testing.T) {
	_, err := ParseLocator("   ")
	assert.Error(t, err)

	_, err = ParseLocator("id=")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty value")

	assert.Panics(t, func() { MustParseLocator("") })
}

func TestLocator_StringRoundTrip(t *testing.T) {
	for _, loc := range []Locator{ByID("register-code"), ByXPath("//button"), ByCSS("div.el-message")} {
		parsed, err := ParseLocator(loc.String())
		require.NoError(t, err)
		assert.Equal(t, loc, parsed)
	}
}

func TestCondition_String(t *testing.T) {
	assert.Equal(t, "present", Present.String())
	assert.Equal(t, "clickable", Clickable.String())
	assert.Equal(t, "unknown", Condition(42).String())
}

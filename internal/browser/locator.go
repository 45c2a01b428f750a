// internal/browser/locator.go
package browser

import (
	"fmt"
	"strings"
)

// LocatorKind selects how a locator value is interpreted.
type LocatorKind string

const (
	KindID    LocatorKind = "id"
	KindXPath LocatorKind = "xpath"
	KindCSS   LocatorKind = "css"
)

// Locator identifies a UI element, e.g. {id, register-code} or {xpath, //button[...]}.
type Locator struct {
	Kind  LocatorKind
	Value string
}

// ByID, ByXPath and ByCSS build locators of the matching kind.
func ByID(id string) Locator { return Locator{Kind: KindID, Value: strings.TrimPrefix(id, "#")} }
func ByXPath(expr string) Locator { return Locator{Kind: KindXPath, Value: expr} }
func ByCSS(selector string) Locator { return Locator{Kind: KindCSS, Value: selector} }

// String renders the locator in the same "kind=value" form ParseLocator accepts.
func (l Locator) String() string {
	return string(l.Kind) + "=" + l.Value
}

// ParseLocator parses the configuration form "kind=value". A value with no recognised
// kind prefix is treated as XPath when it starts with "/" or "(", and as CSS otherwise.
func ParseLocator(s string) (Locator, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Locator{}, fmt.Errorf("empty locator")
	}

	if kind, value, found := strings.Cut(s, "="); found {
		switch LocatorKind(strings.ToLower(strings.TrimSpace(kind))) {
		case KindID:
			return nonEmpty(ByID(strings.TrimSpace(value)), s)
		case KindXPath:
			return nonEmpty(ByXPath(strings.TrimSpace(value)), s)
		case KindCSS:
			return nonEmpty(ByCSS(strings.TrimSpace(value)), s)
		}
	}

	if strings.HasPrefix(s, "/") || strings.HasPrefix(s, "(") {
		return ByXPath(s), nil
	}
	return ByCSS(s), nil
}

// MustParseLocator is ParseLocator for compile-time constants.
func MustParseLocator(s string) Locator {
	loc, err := ParseLocator(s)
	if err != nil {
		panic(err)
	}
	return loc
}

func nonEmpty(l Locator, raw string) (Locator, error) {
	if l.Value == "" {
		return Locator{}, fmt.Errorf("locator %q has an empty value", raw)
	}
	return l, nil
}

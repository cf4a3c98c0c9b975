// Package browser wraps the automation backend behind a narrow capability
// interface. Healing strategies depend only on FindElement, PageHTML and
// Screenshot; they never own browser lifecycle. The phase that opens a
// driver closes it.
package browser

import (
	"context"
	"fmt"
	"strings"
)

// Element is the resolved handle for exactly one element on the page.
type Element struct {
	Selector   string
	Tag        string
	Text       string
	Attributes map[string]string
	Visible    bool
}

// Driver is the browser-automation collaborator.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	// FindElement resolves a locator to zero-or-one visible element. A
	// locator matching nothing returns (nil, nil); matching more than one
	// element is an error.
	FindElement(ctx context.Context, locatorType, value string) (*Element, error)
	PageHTML(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	CurrentURL(ctx context.Context) (string, error)
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	Select(ctx context.Context, selector, value string) error
	Close() error
}

// CSSSelector translates a typed locator into the CSS (or XPath) selector the
// backend evaluates. Returns the selector and whether it is an XPath
// expression.
func CSSSelector(locatorType, value string) (string, bool, error) {
	switch locatorType {
	case "id":
		return "#" + value, false, nil
	case "css":
		return value, false, nil
	case "xpath":
		return value, true, nil
	case "testId":
		return fmt.Sprintf(`[data-testid=%q]`, value), false, nil
	case "ariaLabel":
		return fmt.Sprintf(`[aria-label=%q]`, value), false, nil
	case "role":
		return fmt.Sprintf(`[role=%q]`, value), false, nil
	case "text":
		return fmt.Sprintf(`//*[contains(normalize-space(text()), %s)]`, xpathLiteral(value)), true, nil
	default:
		return "", false, fmt.Errorf("unknown locator type %q", locatorType)
	}
}

// xpathLiteral quotes a string for use in an XPath 1.0 expression. XPath has
// no escape sequences, so a value containing both quote kinds is split into a
// concat() of single-quotable pieces.
func xpathLiteral(value string) string {
	if !strings.Contains(value, `'`) {
		return "'" + value + "'"
	}
	if !strings.Contains(value, `"`) {
		return `"` + value + `"`
	}
	parts := strings.Split(value, `'`)
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

// GuessLocatorType classifies a raw locator string the way recorded test
// steps store them: XPath expressions start with / or (, everything else is
// treated as CSS.
func GuessLocatorType(locator string) string {
	if strings.HasPrefix(locator, "/") || strings.HasPrefix(locator, "(") {
		return "xpath"
	}
	return "css"
}

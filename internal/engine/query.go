package engine

import (
	"fmt"
	"strings"

	"github.com/hazyhaar/browsermux/locate"
)

// engineQuery is a Locator lowered to what the engine actually evaluates:
// either a CSS selector or an XPath expression.
type engineQuery struct {
	xpath bool
	expr  string
}

// lower translates a Locator into the engine's query language. ID, name and
// tag strategies become CSS attribute selectors; link text becomes XPath
// because CSS cannot match on text content.
func lower(loc locate.Locator) (engineQuery, error) {
	if err := loc.Validate(); err != nil {
		return engineQuery{}, err
	}
	switch loc.Strategy {
	case locate.ByCSS:
		return engineQuery{expr: loc.Selector}, nil
	case locate.ByXPath:
		return engineQuery{xpath: true, expr: loc.Selector}, nil
	case locate.ByID:
		return engineQuery{expr: fmt.Sprintf("[id=%q]", loc.Selector)}, nil
	case locate.ByName:
		return engineQuery{expr: fmt.Sprintf("[name=%q]", loc.Selector)}, nil
	case locate.ByTag:
		return engineQuery{expr: loc.Selector}, nil
	case locate.ByLinkText:
		// Relative so that element-scoped searches stay inside the subtree.
		return engineQuery{
			xpath: true,
			expr:  ".//a[normalize-space(.)=" + xpathLiteral(loc.Selector) + "]",
		}, nil
	default:
		return engineQuery{}, fmt.Errorf("browser: unsupported strategy %q", loc.Strategy)
	}
}

// xpathLiteral quotes s as an XPath string literal. XPath 1.0 has no escape
// syntax, so a value containing both quote kinds must be built with concat().
func xpathLiteral(s string) string {
	if !strings.Contains(s, `'`) {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, `'`)
	var b strings.Builder
	b.WriteString("concat(")
	for i, p := range parts {
		if i > 0 {
			b.WriteString(`, "'", `)
		}
		b.WriteString("'" + p + "'")
	}
	b.WriteString(")")
	return b.String()
}

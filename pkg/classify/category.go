package classify

import "strings"

// Category groups failure text for display.
type Category string

const (
	CategoryAuthentication  Category = "authentication"
	CategoryElementNotFound Category = "element_not_found"
	CategoryTimeout         Category = "timeout"
	CategoryAssertion       Category = "assertion"
	CategoryNavigation      Category = "navigation"
	CategoryGeneral         Category = "general"
)

var categoryPhrases = []struct {
	category Category
	phrases  []string
}{
	{CategoryAuthentication, []string{"authentication", "login attempt failed", "invalid credentials", "unauthorized", "login failure"}},
	{CategoryElementNotFound, []string{"not found", "no such element", "element location failed"}},
	{CategoryTimeout, []string{"timeout", "timed out"}},
	{CategoryAssertion, []string{"assertion", "expected", "verify", "verification"}},
	{CategoryNavigation, []string{"navigation", "page load", "unreachable", "redirect"}},
}

// CategorizeError assigns failure text to the first matching category.
func CategorizeError(text string) Category {
	lower := strings.ToLower(text)
	for _, c := range categoryPhrases {
		for _, p := range c.phrases {
			if strings.Contains(lower, p) {
				return c.category
			}
		}
	}
	return CategoryGeneral
}

// Label returns a short human description of the category.
func (c Category) Label() string {
	switch c {
	case CategoryAuthentication:
		return "Authentication failed"
	case CategoryElementNotFound:
		return "Element location failed - target element not found on page"
	case CategoryTimeout:
		return "Operation timeout - element or condition not met within time limit"
	case CategoryAssertion:
		return "Assertion failed"
	case CategoryNavigation:
		return "Page navigation failed"
	case "":
		return ""
	}
	return "Execution error"
}

// Package locator derives ranked element locators from captured element
// descriptors or raw selector strings. Everything here is pure.
package locator

import (
	"regexp"
	"strings"
)

// Kind identifies the strategy a candidate uses.
type Kind string

const (
	KindDataTestID  Kind = "data_testid"
	KindID          Kind = "id"
	KindName        Kind = "name"
	KindARIALabel   Kind = "aria_label"
	KindRole        Kind = "role"
	KindFormControl Kind = "form_control"
	KindClassCombo  Kind = "class_combo"
	KindCSS         Kind = "css"
	KindText        Kind = "text"
	KindIndex       Kind = "index"
	KindTag         Kind = "tag"
	KindXPath       Kind = "xpath"
)

// Priority tiers, lower is more stable.
const (
	TierTestID      = 10
	TierID          = 20
	TierName        = 30
	TierARIA        = 40
	TierFormControl = 50
	TierClassCombo  = 60
	TierCSS         = 65
	TierText        = 70
	TierIndex       = 75
	TierTag         = 80
	TierXPath       = 90
)

// XPathPrefix marks a selector as XPath for the driver.
const XPathPrefix = "xpath="

// Candidate is one ranked attempt strategy.
type Candidate struct {
	Kind     Kind   `json:"kind"`
	Selector string `json:"selector"`
	Tier     int    `json:"tier"`
}

// IsProvisional reports whether the candidate is a generic index-based
// locator produced from narration rather than a real element.
func (c Candidate) IsProvisional() bool {
	return c.Kind == KindIndex
}

// IsPrimaryKind reports whether the kind qualifies as a bundle primary.
func (c Candidate) IsPrimaryKind() bool {
	return c.Kind == KindDataTestID || c.Kind == KindID
}

// IsSemanticKind reports whether the kind qualifies as a bundle semantic locator.
func (c Candidate) IsSemanticKind() bool {
	switch c.Kind {
	case KindName, KindARIALabel, KindRole, KindFormControl:
		return true
	}
	return false
}

var (
	identRe      = regexp.MustCompile(`^-?[_a-zA-Z][_a-zA-Z0-9-]*$`)
	bareTagRe    = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9-]*$`)
	classComboRe = regexp.MustCompile(`^[a-zA-Z0-9-]*(\.[_a-zA-Z-][_a-zA-Z0-9-]*)+$`)
)

// Classify infers kind and tier for a persisted selector string.
func Classify(selector string) Candidate {
	s := strings.TrimSpace(selector)
	c := Candidate{Selector: s}
	switch {
	case IsXPath(s):
		c.Kind, c.Tier = KindXPath, TierXPath
		c.Selector = NormalizeXPath(s)
	case strings.HasPrefix(s, "[data-testid=") || strings.HasPrefix(s, "[data-cy="):
		c.Kind, c.Tier = KindDataTestID, TierTestID
	case strings.HasPrefix(s, "#") && identRe.MatchString(s[1:]), strings.HasPrefix(s, "[id="):
		c.Kind, c.Tier = KindID, TierID
	case strings.Contains(s, "[data-index="):
		c.Kind, c.Tier = KindIndex, TierIndex
	case strings.Contains(s, "[name="):
		c.Kind, c.Tier = KindName, TierName
	case strings.Contains(s, "[aria-label="):
		c.Kind, c.Tier = KindARIALabel, TierARIA
	case strings.Contains(s, "[role="):
		c.Kind, c.Tier = KindRole, TierARIA
	case strings.Contains(s, "[placeholder=") || strings.Contains(s, "[type="):
		c.Kind, c.Tier = KindFormControl, TierFormControl
	case strings.Contains(s, ":has-text("):
		c.Kind, c.Tier = KindText, TierText
	case s == "*" || bareTagRe.MatchString(s):
		c.Kind, c.Tier = KindTag, TierTag
	case classComboRe.MatchString(s):
		c.Kind, c.Tier = KindClassCombo, TierClassCombo
	default:
		c.Kind, c.Tier = KindCSS, TierCSS
	}
	return c
}

// IsXPath reports whether s is an XPath expression rather than CSS.
func IsXPath(s string) bool {
	return strings.HasPrefix(s, XPathPrefix) || strings.HasPrefix(s, "/") || strings.HasPrefix(s, "(/") || strings.HasPrefix(s, "id(")
}

// NormalizeXPath returns s with the driver's xpath prefix.
func NormalizeXPath(s string) string {
	if strings.HasPrefix(s, XPathPrefix) {
		return s
	}
	return XPathPrefix + s
}

// cssQuote renders v as a single-quoted CSS string.
func cssQuote(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func attrSelector(tag, name, value string) string {
	return tag + "[" + name + "=" + cssQuote(value) + "]"
}

// dedupe drops repeated selectors, keeping the first occurrence.
func dedupe(cands []Candidate) []Candidate {
	seen := make(map[string]bool, len(cands))
	out := cands[:0]
	for _, c := range cands {
		if c.Selector == "" || seen[c.Selector] {
			continue
		}
		seen[c.Selector] = true
		out = append(out, c)
	}
	return out
}

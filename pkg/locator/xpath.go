package locator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/devicelab-dev/hybrid-runner/pkg/core"
)

// MaxXPathAlternatives bounds the rewrites generated for one xpath.
const MaxXPathAlternatives = 4

var xpathRewriteAttrs = []string{"placeholder", "aria-label", "title", "name"}

var cssAttrPatterns = func() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp, len(xpathRewriteAttrs))
	for _, a := range xpathRewriteAttrs {
		m[a] = regexp.MustCompile(`\[` + regexp.QuoteMeta(a) + `\*?=['"]([^'"]*)['"]\]`)
	}
	return m
}()

// XPathCandidates returns the descriptor's xpath followed by attribute-based
// rewrites. Rewrites are only produced when the xpath leans on a generated
// id(...) reference; their values come from the captured CSS selector.
func XPathCandidates(desc *core.ElementDescriptor) []Candidate {
	if desc == nil || desc.XPath == "" {
		return nil
	}
	cands := []Candidate{{Kind: KindXPath, Selector: NormalizeXPath(desc.XPath), Tier: TierXPath}}

	tag := desc.TagName()
	if !strings.Contains(desc.XPath, "id(") || tag == "" {
		return cands
	}
	for _, attr := range xpathRewriteAttrs {
		if len(cands)-1 == MaxXPathAlternatives {
			break
		}
		m := cssAttrPatterns[attr].FindStringSubmatch(desc.CSSSelector)
		if m == nil || m[1] == "" {
			continue
		}
		lit, ok := xpathLiteral(m[1])
		if !ok {
			continue
		}
		cands = append(cands, Candidate{
			Kind:     KindXPath,
			Selector: fmt.Sprintf("%s//%s[contains(@%s, %s)]", XPathPrefix, tag, attr, lit),
			Tier:     TierXPath,
		})
	}
	return dedupe(cands)
}

// xpathLiteral quotes v for XPath 1.0, which has no escape sequences.
func xpathLiteral(v string) (string, bool) {
	switch {
	case !strings.Contains(v, "'"):
		return "'" + v + "'", true
	case !strings.Contains(v, `"`):
		return `"` + v + `"`, true
	default:
		return "", false
	}
}

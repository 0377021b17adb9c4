package locator

import (
	"regexp"
	"sort"
	"strings"

	"github.com/devicelab-dev/hybrid-runner/pkg/core"
)

// MaxTextLength bounds visible text used for text-based candidates.
const MaxTextLength = 60

// MaxStableClasses is the number of classes combined with the tag.
const MaxStableClasses = 2

// Long generated selectors with positional fragments get one truncated candidate.
const (
	longSelectorLength = 100
	truncatedSegments  = 3
)

var (
	stateKeywords     = []string{"focus", "hover", "active", "selected", "checked", "disabled"}
	buildHashPrefixes = []string{"css-", "sc-", "jsx-"}
	formControlTags   = map[string]bool{"input": true, "textarea": true, "select": true}
)

// IsStableClass reports whether a class name is likely to survive page
// state changes and rebuilds.
func IsStableClass(class string) bool {
	if len(class) <= 3 || !identRe.MatchString(class) {
		return false
	}
	lower := strings.ToLower(class)
	for _, kw := range stateKeywords {
		if strings.Contains(lower, kw) {
			return false
		}
	}
	for _, p := range buildHashPrefixes {
		if strings.HasPrefix(lower, p) {
			return false
		}
	}
	return true
}

// StableClasses returns up to max stable classes, in order.
func StableClasses(classes []string, max int) []string {
	var out []string
	for _, c := range classes {
		if len(out) == max {
			break
		}
		if IsStableClass(c) {
			out = append(out, c)
		}
	}
	return out
}

func idSelector(id string) string {
	if identRe.MatchString(id) {
		return "#" + id
	}
	return attrSelector("", "id", id)
}

// Synthesize derives ranked candidates from a captured element. It never
// returns an empty slice: the bare tag (or "*") is always last.
func Synthesize(desc *core.ElementDescriptor) []Candidate {
	if desc == nil {
		return []Candidate{{Kind: KindTag, Selector: "*", Tier: TierTag}}
	}
	tag := desc.TagName()
	if tag == "" {
		tag = "*"
	}
	attr := desc.Attr

	var cands []Candidate
	add := func(kind Kind, tier int, sel string) {
		cands = append(cands, Candidate{Kind: kind, Selector: sel, Tier: tier})
	}

	if v := attr("data-testid"); v != "" {
		add(KindDataTestID, TierTestID, attrSelector("", "data-testid", v))
	}
	if v := attr("data-cy"); v != "" {
		add(KindDataTestID, TierTestID, attrSelector("", "data-cy", v))
	}
	if v := attr("id"); v != "" {
		add(KindID, TierID, idSelector(v))
	}
	if v := attr("name"); v != "" {
		add(KindName, TierName, attrSelector(tag, "name", v))
	}
	if v := attr("aria-label"); v != "" {
		add(KindARIALabel, TierARIA, attrSelector(tag, "aria-label", v))
	}
	if v := attr("role"); v != "" {
		add(KindRole, TierARIA, attrSelector(tag, "role", v))
	}
	if formControlTags[tag] {
		typ, ph := attr("type"), attr("placeholder")
		switch {
		case typ != "" && ph != "":
			add(KindFormControl, TierFormControl, attrSelector(tag, "type", typ)+attrSelector("", "placeholder", ph))
			add(KindFormControl, TierFormControl, attrSelector(tag, "type", typ))
		case typ != "":
			add(KindFormControl, TierFormControl, attrSelector(tag, "type", typ))
		case ph != "":
			add(KindFormControl, TierFormControl, attrSelector(tag, "placeholder", ph))
		}
	}
	if classes := StableClasses(desc.Attributes.Classes(), MaxStableClasses); len(classes) > 0 && tag != "*" {
		add(KindClassCombo, TierClassCombo, tag+"."+strings.Join(classes, "."))
	}
	if text := normalizeText(desc.VisibleText); text != "" && len([]rune(text)) <= MaxTextLength && tag != "*" {
		add(KindText, TierText, tag+":has-text("+cssQuote(text)+")")
	}
	if desc.CSSSelector != "" && !IsXPath(desc.CSSSelector) {
		for _, c := range SynthesizeSelector(desc.CSSSelector) {
			if c.Kind != KindTag {
				cands = append(cands, c)
			}
		}
	}
	add(KindTag, TierTag, tag)

	return rank(cands)
}

var (
	testIDFragRe = regexp.MustCompile(`\[data-testid\s*=\s*["']?([^"'\]]+)["']?\]`)
	dataCyFragRe = regexp.MustCompile(`\[data-cy\s*=\s*["']?([^"'\]]+)["']?\]`)
	idAttrFragRe = regexp.MustCompile(`\[id\s*=\s*["']?([^"'\]]+)["']?\]`)
	idHashFragRe = regexp.MustCompile(`#(-?[_a-zA-Z][_a-zA-Z0-9-]*)`)
	nameFragRe   = regexp.MustCompile(`\[name\s*=\s*["']?([^"'\]]+)["']?\]`)
	ariaFragRe   = regexp.MustCompile(`\[aria-label\s*\*?=\s*["']?([^"'\]]+)["']?\]`)
	phFragRe     = regexp.MustCompile(`\[placeholder\s*\*?=\s*["']?([^"'\]]+)["']?\]`)
	classFragRe  = regexp.MustCompile(`\.(-?[_a-zA-Z][_a-zA-Z0-9-]*)`)
	leadTagRe    = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9-]*)`)
)

// SynthesizeSelector derives ranked candidates from a raw, possibly
// generated, selector string. Embedded id/name/test-id fragments are lifted
// into their own candidates. The raw selector itself is kept as a CSS
// candidate ranked below class combinations.
func SynthesizeSelector(raw string) []Candidate {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []Candidate{{Kind: KindTag, Selector: "*", Tier: TierTag}}
	}
	if IsXPath(raw) {
		return []Candidate{{Kind: KindXPath, Selector: NormalizeXPath(raw), Tier: TierXPath}}
	}

	segments := splitCompound(raw)
	last := ""
	if len(segments) > 0 {
		last = segments[len(segments)-1]
	}
	tag := strings.ToLower(leadTagRe.FindString(last))

	var cands []Candidate
	add := func(kind Kind, tier int, sel string) {
		cands = append(cands, Candidate{Kind: kind, Selector: sel, Tier: tier})
	}

	// Fragments are only lifted from the last compound segment: earlier
	// segments describe ancestors, not the target.
	if m := testIDFragRe.FindStringSubmatch(last); m != nil {
		add(KindDataTestID, TierTestID, attrSelector("", "data-testid", m[1]))
	}
	if m := dataCyFragRe.FindStringSubmatch(last); m != nil {
		add(KindDataTestID, TierTestID, attrSelector("", "data-cy", m[1]))
	}
	if m := idAttrFragRe.FindStringSubmatch(last); m != nil {
		add(KindID, TierID, idSelector(m[1]))
	} else if m := idHashFragRe.FindStringSubmatch(stripBrackets(last)); m != nil {
		add(KindID, TierID, "#"+m[1])
	}
	if m := nameFragRe.FindStringSubmatch(last); m != nil {
		add(KindName, TierName, attrSelector(tagOr(tag, "input"), "name", m[1]))
	}
	if m := ariaFragRe.FindStringSubmatch(last); m != nil {
		add(KindARIALabel, TierARIA, attrSelector(tag, "aria-label", m[1]))
	}
	if m := phFragRe.FindStringSubmatch(last); m != nil {
		add(KindFormControl, TierFormControl, attrSelector(tagOr(tag, "input"), "placeholder", m[1]))
	}

	var classes []string
	for _, m := range classFragRe.FindAllStringSubmatch(stripBrackets(last), -1) {
		classes = append(classes, m[1])
	}
	if stable := StableClasses(classes, MaxStableClasses); len(stable) > 0 {
		add(KindClassCombo, TierClassCombo, tag+"."+strings.Join(stable, "."))
	}

	if truncated, ok := truncatePositional(raw); ok {
		add(KindCSS, TierCSS, truncated)
	}
	add(KindCSS, TierCSS, raw)

	if tag != "" {
		add(KindTag, TierTag, tag)
	}
	return rank(cands)
}

// truncatePositional keeps the last segments of a long selector that relies
// on child-index fragments.
func truncatePositional(raw string) (string, bool) {
	if len(raw) <= longSelectorLength {
		return "", false
	}
	if !strings.Contains(raw, ":nth-of-type(") && !strings.Contains(raw, ":nth-child(") {
		return "", false
	}
	parts := strings.Split(raw, " > ")
	if len(parts) <= truncatedSegments {
		return "", false
	}
	return strings.Join(parts[len(parts)-truncatedSegments:], " > "), true
}

// splitCompound splits a selector on descendant/child/sibling combinators
// outside brackets, parentheses and quotes.
func splitCompound(sel string) []string {
	var (
		segs  []string
		cur   strings.Builder
		depth int
		quote rune
	)
	flush := func() {
		if cur.Len() > 0 {
			segs = append(segs, cur.String())
			cur.Reset()
		}
	}
	for _, r := range sel {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
			cur.WriteRune(r)
		case r == '\'' || r == '"':
			quote = r
			cur.WriteRune(r)
		case r == '[' || r == '(':
			depth++
			cur.WriteRune(r)
		case r == ']' || r == ')':
			depth--
			cur.WriteRune(r)
		case depth == 0 && (r == ' ' || r == '>' || r == '+' || r == '~'):
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return segs
}

func tagOr(tag, fallback string) string {
	if tag == "" {
		return fallback
	}
	return tag
}

// stripBrackets removes attribute and pseudo-class arguments so class and
// id fragments inside attribute values are not picked up.
func stripBrackets(seg string) string {
	var b strings.Builder
	depth := 0
	for _, r := range seg {
		switch r {
		case '[', '(':
			depth++
		case ']', ')':
			depth--
		default:
			if depth == 0 {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// rank orders by tier, keeping declaration order within a tier, then dedupes.
func rank(cands []Candidate) []Candidate {
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Tier < cands[j].Tier })
	return dedupe(cands)
}

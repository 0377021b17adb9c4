// Package classify derives step and run verdicts from unstructured
// execution transcripts.
package classify

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/devicelab-dev/hybrid-runner/pkg/core"
	"github.com/devicelab-dev/hybrid-runner/pkg/logger"
)

// SimilarityThreshold is the word-set Jaccard score above which a marker
// description matches a scenario step.
const SimilarityThreshold = 0.6

// Marker is one explicit result line found in a transcript.
type Marker struct {
	Kind        MarkerKind      `json:"kind"`
	Status      core.StepStatus `json:"status"`
	Description string          `json:"description"`
	Line        int             `json:"line"`
}

// Verdict is the classifier's output for one transcript.
type Verdict struct {
	TableVersion    string             `json:"table_version"`
	OverallSuccess  bool               `json:"overall_success"`
	OverallBasis    core.Basis         `json:"overall_basis"`
	Signal          bool               `json:"signal"` // Any marker or keyword was found
	Keyword         string             `json:"keyword,omitempty"`
	Steps           []core.StepOutcome `json:"steps"`
	Markers         []Marker           `json:"markers,omitempty"`
	FailureDetails  string             `json:"failure_details,omitempty"`
	FailureCategory Category           `json:"failure_category,omitempty"`
}

// RunResult converts the verdict to the run-level result shape.
func (v *Verdict) RunResult() *core.RunResult {
	return &core.RunResult{
		OverallSuccess:      v.OverallSuccess,
		StepOutcomes:        v.Steps,
		FallbackStepIndices: []int{},
		FailureDetails:      v.FailureDetails,
	}
}

// Classifier applies a rule table. The zero value uses DefaultTable.
type Classifier struct {
	Table *Table
}

// Classify runs the default table.
func Classify(transcript []string, steps []string) *Verdict {
	return (&Classifier{}).Classify(transcript, steps)
}

type keywordHit struct {
	rule KeywordRule
	line string
}

// Classify derives the overall verdict first, then one outcome per step:
// explicit markers, then keyword evidence, then the positional default.
// The result depends only on the input text.
func (c *Classifier) Classify(transcript []string, steps []string) *Verdict {
	t := c.Table
	if t == nil {
		t = DefaultTable()
	}
	lines := splitLines(transcript)
	v := &Verdict{TableVersion: t.Version}

	v.Markers = extractMarkers(t, lines)
	failHit := firstKeyword(t.Failure, lines)
	successHit := firstKeyword(t.Success, lines)

	switch {
	case failHit != nil:
		v.OverallSuccess, v.OverallBasis, v.Signal = false, core.BasisKeyword, true
		v.Keyword = failHit.rule.Name
	case len(v.Markers) > 0:
		v.OverallSuccess, v.OverallBasis, v.Signal = !anyFailed(v.Markers), core.BasisExplicit, true
	case successHit != nil:
		v.OverallSuccess, v.OverallBasis, v.Signal = true, core.BasisKeyword, true
		v.Keyword = successHit.rule.Name
	default:
		v.OverallSuccess, v.OverallBasis = false, core.BasisPositional
	}

	stepRefs := extractStepRefs(t, lines, len(steps))
	v.Steps = make([]core.StepOutcome, len(steps))
	for i, step := range steps {
		v.Steps[i] = c.classifyStep(i, step, len(steps), v, stepRefs, failHit)
	}
	enforceConsistency(v, failHit)

	v.FailureDetails = failureDetails(t, v, lines, failHit)
	if !v.OverallSuccess {
		v.FailureCategory = CategorizeError(v.FailureDetails)
	}
	logger.Debug("classify: overall=%v basis=%s markers=%d steps=%d", v.OverallSuccess, v.OverallBasis, len(v.Markers), len(steps))
	return v
}

func (c *Classifier) classifyStep(i int, step string, total int, v *Verdict, refs map[int]StepRefRule, failHit *keywordHit) core.StepOutcome {
	out := core.StepOutcome{
		StepIndex:       i,
		Description:     step,
		ExecutionMethod: core.MethodClassified,
	}

	// Explicit: result markers by similarity, then by ordinal position.
	// STEP_FAILED lines and numbered assertion failures override.
	var results []Marker
	for _, m := range v.Markers {
		if m.Kind != MarkerStepFailed {
			results = append(results, m)
		}
	}
	matched := false
	for _, m := range results {
		if StepsMatch(step, m.Description) {
			out.Status, out.Message, matched = m.Status, m.Description, true
			break
		}
	}
	if !matched && i < len(results) {
		m := results[i]
		out.Status, out.Message, matched = m.Status, m.Description, true
	}
	for _, m := range v.Markers {
		if m.Kind == MarkerStepFailed && StepsMatch(step, m.Description) {
			out.Status, out.Message, matched = core.StatusFailed, m.Description, true
			break
		}
	}
	if ref, ok := refs[i]; ok && ref.Basis == core.BasisExplicit {
		out.Status, out.Basis = core.StatusFailed, core.BasisExplicit
		if out.Message == "" || !matched {
			out.Message = "assertion failed at this step"
		}
		return out
	}
	if matched {
		out.Basis = core.BasisExplicit
		return out
	}

	// Keyword: a failure line naming this step.
	if ref, ok := refs[i]; ok && ref.Basis == core.BasisKeyword && failHit != nil {
		out.Status, out.Basis, out.Message = core.StatusFailed, core.BasisKeyword, strings.TrimSpace(failHit.line)
		return out
	}

	// Positional default.
	out.Basis, out.Inferred = core.BasisPositional, true
	switch {
	case v.OverallSuccess:
		out.Status, out.Message = core.StatusPassed, "Step completed (inferred from overall success)"
	case i == total-1:
		out.Status, out.Message = core.StatusFailed, "Step likely failed based on overall execution result"
	default:
		out.Status, out.Message = core.StatusPassed, "Step likely passed before failure occurred"
	}
	return out
}

// enforceConsistency makes an overall keyword failure visible on a step:
// when no step failed, the last one takes the keyword verdict.
func enforceConsistency(v *Verdict, failHit *keywordHit) {
	if v.OverallSuccess || len(v.Steps) == 0 || failHit == nil {
		return
	}
	for _, s := range v.Steps {
		if s.Status == core.StatusFailed {
			return
		}
	}
	last := &v.Steps[len(v.Steps)-1]
	last.Status = core.StatusFailed
	last.Basis = core.BasisKeyword
	last.Inferred = false
	last.Message = strings.TrimSpace(failHit.line)
}

func splitLines(transcript []string) []string {
	var out []string
	for _, t := range transcript {
		out = append(out, strings.Split(strings.ReplaceAll(t, "\r\n", "\n"), "\n")...)
	}
	return out
}

func extractMarkers(t *Table, lines []string) []Marker {
	var out []Marker
	for n, line := range lines {
		for _, r := range t.Markers {
			m := r.Pattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			status := core.StatusFailed
			if r.Status > 0 && strings.EqualFold(m[r.Status], "PASSED") {
				status = core.StatusPassed
			}
			out = append(out, Marker{Kind: r.Kind, Status: status, Description: strings.TrimSpace(m[r.Desc]), Line: n})
			break
		}
	}
	return out
}

func extractStepRefs(t *Table, lines []string, total int) map[int]StepRefRule {
	refs := make(map[int]StepRefRule)
	for _, line := range lines {
		for _, r := range t.StepRefs {
			m := r.Pattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			n, err := strconv.Atoi(m[1])
			if err != nil || n < 1 || n > total {
				continue
			}
			if prev, ok := refs[n-1]; ok && prev.Basis == core.BasisExplicit {
				continue
			}
			refs[n-1] = r
			break
		}
	}
	return refs
}

func firstKeyword(rules []KeywordRule, lines []string) *keywordHit {
	for _, line := range lines {
		for _, r := range rules {
			if r.Pattern.MatchString(line) {
				return &keywordHit{rule: r, line: line}
			}
		}
	}
	return nil
}

func anyFailed(markers []Marker) bool {
	for _, m := range markers {
		if m.Status == core.StatusFailed {
			return true
		}
	}
	return false
}

func failureDetails(t *Table, v *Verdict, lines []string, failHit *keywordHit) string {
	if v.OverallSuccess {
		return ""
	}
	var details []string
	for _, m := range v.Markers {
		if m.Status == core.StatusFailed && m.Description != "" {
			details = append(details, m.Description)
		}
	}
	if len(details) == 0 {
		for _, re := range t.Details {
			for _, line := range lines {
				if m := re.FindStringSubmatch(line); m != nil {
					details = append(details, strings.TrimSpace(m[1]))
				}
			}
		}
	}
	if len(details) == 0 && failHit != nil {
		details = append(details, strings.TrimSpace(failHit.line))
	}
	if len(details) == 0 {
		for _, s := range v.Steps {
			if s.Status == core.StatusFailed {
				details = append(details, fmt.Sprintf("step %d: %s", s.StepIndex+1, s.Message))
				break
			}
		}
	}
	if len(details) == 0 {
		details = append(details, "no success signal in transcript")
	}
	return strings.Join(details, "; ")
}

var (
	stepKeywordRe = regexp.MustCompile(`(?i)^\s*(given|when|then|and|but)\s+`)
	stepPrefixRe  = regexp.MustCompile(`(?i)^\s*step\s+\d+:?\s*`)
)

// StepsMatch reports whether a marker description refers to a scenario step:
// substring containment either way, or word-set similarity above
// SimilarityThreshold.
func StepsMatch(step, description string) bool {
	a := strings.ToLower(strings.TrimSpace(stepKeywordRe.ReplaceAllString(step, "")))
	b := strings.ToLower(strings.TrimSpace(stepPrefixRe.ReplaceAllString(description, "")))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a) || Similarity(a, b) > SimilarityThreshold
}

// Similarity is the Jaccard index of the whitespace-separated word sets.
func Similarity(a, b string) float64 {
	wa, wb := wordSet(a), wordSet(b)
	if len(wa) == 0 && len(wb) == 0 {
		return 1
	}
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	inter := 0
	for w := range wa {
		if wb[w] {
			inter++
		}
	}
	return float64(inter) / float64(len(wa)+len(wb)-inter)
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = true
	}
	return set
}

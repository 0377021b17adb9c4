package replay

import (
	"context"
	"strings"
	"time"

	"github.com/devicelab-dev/hybrid-runner/pkg/script"
)

// Settle holds the fixed post-action stability windows. Every step waits
// Base plus its action-specific extra.
type Settle struct {
	Base        time.Duration
	SubmitClick time.Duration // Clicks on submit/login-like elements
	Click       time.Duration
	Input       time.Duration
	Navigation  time.Duration

	// Network bounds the wait for network idle and loading indicators on
	// drivers that implement core.Stabilizer. 0 skips it.
	Network time.Duration

	// SubmitKeywords mark a click (or Enter press) as submit-like when found
	// in the element's text, type or selectors.
	SubmitKeywords []string
}

// DefaultSettle returns the standard windows.
func DefaultSettle() Settle {
	return Settle{
		Base:           500 * time.Millisecond,
		SubmitClick:    3 * time.Second,
		Click:          1500 * time.Millisecond,
		Input:          500 * time.Millisecond,
		Navigation:     2 * time.Second,
		Network:        3 * time.Second,
		SubmitKeywords: []string{"submit", "login", "log in", "sign in", "signin"},
	}
}

func (s Settle) isZero() bool {
	return s.Base == 0 && s.SubmitClick == 0 && s.Click == 0 && s.Input == 0 &&
		s.Navigation == 0 && s.Network == 0 && len(s.SubmitKeywords) == 0
}

// For returns the total stability window after step.
func (s Settle) For(step script.Step) time.Duration {
	switch st := step.(type) {
	case *script.NavigationStep:
		return s.Base + s.Navigation
	case *script.ClickStep:
		if s.isSubmitLike(st.ElementText, &st.Locators) {
			return s.Base + s.SubmitClick
		}
		return s.Base + s.Click
	case *script.InputStep:
		return s.Base + s.Input
	case *script.KeyPressStep:
		if strings.EqualFold(st.Key, "Enter") {
			return s.Base + s.Click
		}
	}
	return s.Base
}

func (s Settle) isSubmitLike(text string, b *script.LocatorBundle) bool {
	hay := []string{strings.ToLower(text)}
	if b != nil {
		if b.Original != nil {
			hay = append(hay,
				strings.ToLower(b.Original.Attr("type")),
				strings.ToLower(b.Original.VisibleText),
				strings.ToLower(b.Original.Attr("value")))
		}
		for _, c := range b.Candidates() {
			hay = append(hay, strings.ToLower(c.Selector))
		}
	}
	for _, kw := range s.SubmitKeywords {
		kw = strings.ToLower(kw)
		for _, h := range hay {
			if kw != "" && strings.Contains(h, kw) {
				return true
			}
		}
	}
	return false
}

// sleepContext waits d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

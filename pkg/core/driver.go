package core

import (
	"context"
	"time"
)

// ElementHandle is a reference to a live element returned by a PageDriver.
// Handles are only valid on the driver that produced them.
type ElementHandle interface {
	// Selector returns the selector or xpath the handle was located with.
	Selector() string
}

// ClickOptions tunes a click.
type ClickOptions struct {
	Force   bool          // Skip actionability checks
	Timeout time.Duration // 0 = driver default
}

// PageDriver is the browser automation capability consumed by the replay
// engine and the agent. Implementations: playwright, mock.
type PageDriver interface {
	// Navigate loads url and waits for the DOM to be ready.
	Navigate(ctx context.Context, url string) error

	// Locate returns a handle for selectorOrXPath, or nil when the driver
	// knows no such element exists. XPath selectors carry an "xpath=" prefix.
	Locate(ctx context.Context, selectorOrXPath string) (ElementHandle, error)

	// WaitVisible waits up to timeout for the element to become visible.
	WaitVisible(ctx context.Context, h ElementHandle, timeout time.Duration) (bool, error)

	Click(ctx context.Context, h ElementHandle, opts ClickOptions) error
	Fill(ctx context.Context, h ElementHandle, text string) error
	Clear(ctx context.Context, h ElementHandle) error

	// ReadValue returns the element's current value; ok is false when the
	// control does not expose one.
	ReadValue(ctx context.Context, h ElementHandle) (value string, ok bool, err error)

	// TagName returns the lowercased tag of the element.
	TagName(ctx context.Context, h ElementHandle) (string, error)

	// SelectByLabel picks the option whose visible text equals label exactly.
	// Returns ErrOptionNotFound when no option matches.
	SelectByLabel(ctx context.Context, h ElementHandle, label string) error

	// Press sends key to the element, or to the page when h is nil.
	Press(ctx context.Context, h ElementHandle, key string) error

	ScrollBy(ctx context.Context, dx, dy int) error
	Evaluate(ctx context.Context, js string, args ...interface{}) (interface{}, error)
	CurrentURL(ctx context.Context) (string, error)
	Content(ctx context.Context) (string, error)
}

// Stabilizer is implemented by drivers that can wait for the page to go
// quiet after an action: network idle and loading indicators hidden.
// Waiting is best effort; only a done context is an error.
type Stabilizer interface {
	WaitStable(ctx context.Context, timeout time.Duration) error
}

// SessionFactory opens an isolated browser session. The returned close
// function releases it.
type SessionFactory func(ctx context.Context) (PageDriver, func() error, error)

// Package playwright implements core.PageDriver on a Chromium page driven
// by playwright-go.
package playwright

import (
	"context"
	"errors"
	"fmt"
	"time"

	pw "github.com/playwright-community/playwright-go"

	"github.com/devicelab-dev/hybrid-runner/pkg/core"
	"github.com/devicelab-dev/hybrid-runner/pkg/locator"
)

// DefaultNavigationTimeout bounds page loads.
const DefaultNavigationTimeout = 30 * time.Second

// Driver implements core.PageDriver and core.Stabilizer for one page.
type Driver struct {
	page              pw.Page
	navigationTimeout time.Duration
}

// NewDriver wraps an open page.
func NewDriver(page pw.Page, navigationTimeout time.Duration) *Driver {
	if navigationTimeout <= 0 {
		navigationTimeout = DefaultNavigationTimeout
	}
	return &Driver{page: page, navigationTimeout: navigationTimeout}
}

// Page exposes the underlying page.
func (d *Driver) Page() pw.Page {
	return d.page
}

type handle struct {
	loc      pw.Locator
	selector string
}

func (h *handle) Selector() string { return h.selector }

var _ core.Stabilizer = (*Driver)(nil)

func locatorOf(h core.ElementHandle) (pw.Locator, error) {
	ph, ok := h.(*handle)
	if !ok || ph == nil {
		return nil, fmt.Errorf("playwright: foreign element handle %T", h)
	}
	return ph.loc, nil
}

func ms(d time.Duration) *float64 {
	return pw.Float(float64(d.Milliseconds()))
}

// selectorFor prefixes xpaths so playwright does not parse them as CSS.
func selectorFor(s string) string {
	if locator.IsXPath(s) {
		return locator.NormalizeXPath(s)
	}
	return s
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pw.ErrTimeout) {
		return core.ErrStepTimeout.WithMessage(op + " timed out").WithCause(err)
	}
	return core.ErrDriver.WithMessage(op + " failed").WithCause(err)
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := d.page.Goto(url, pw.PageGotoOptions{
		WaitUntil: pw.WaitUntilStateLoad,
		Timeout:   ms(d.navigationTimeout),
	})
	return wrap("navigate to "+url, err)
}

// Locate is lazy: the locator is bound to the first match and only
// touches the page in WaitVisible.
func (d *Driver) Locate(ctx context.Context, selector string) (core.ElementHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &handle{loc: d.page.Locator(selectorFor(selector)).First(), selector: selector}, nil
}

// LoadingSelectors are the indicators WaitStable waits to disappear.
var LoadingSelectors = []string{
	".loading",
	".spinner",
	"[data-loading='true']",
	".css-loading",
	"[aria-busy='true']",
	".loader",
}

// loadingTimeout bounds the wait for each loading indicator.
const loadingTimeout = 2 * time.Second

// WaitStable waits up to timeout for network idle, then for each loading
// indicator to be hidden. Pages that never go quiet are not an error.
func (d *Driver) WaitStable(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := d.page.WaitForLoadState(pw.PageWaitForLoadStateOptions{
		State:   pw.LoadStateNetworkidle,
		Timeout: ms(timeout),
	})
	if err != nil && !errors.Is(err, pw.ErrTimeout) {
		return wrap("wait for network idle", err)
	}
	for _, sel := range LoadingSelectors {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := d.page.Locator(sel).First().WaitFor(pw.LocatorWaitForOptions{
			State:   pw.WaitForSelectorStateHidden,
			Timeout: ms(loadingTimeout),
		})
		if err != nil && !errors.Is(err, pw.ErrTimeout) {
			return wrap("wait for "+sel+" to hide", err)
		}
	}
	return nil
}

func (d *Driver) WaitVisible(ctx context.Context, h core.ElementHandle, timeout time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	loc, err := locatorOf(h)
	if err != nil {
		return false, err
	}
	err = loc.WaitFor(pw.LocatorWaitForOptions{State: pw.WaitForSelectorStateVisible, Timeout: ms(timeout)})
	if err == nil {
		return true, nil
	}
	if errors.Is(err, pw.ErrTimeout) {
		return false, nil
	}
	return false, wrap("wait for "+core.TruncateSelector(h.Selector()), err)
}

func (d *Driver) Click(ctx context.Context, h core.ElementHandle, opts core.ClickOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	loc, err := locatorOf(h)
	if err != nil {
		return err
	}
	o := pw.LocatorClickOptions{Force: pw.Bool(opts.Force)}
	if opts.Timeout > 0 {
		o.Timeout = ms(opts.Timeout)
	}
	return wrap("click", loc.Click(o))
}

func (d *Driver) Fill(ctx context.Context, h core.ElementHandle, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	loc, err := locatorOf(h)
	if err != nil {
		return err
	}
	return wrap("fill", loc.Fill(text))
}

func (d *Driver) Clear(ctx context.Context, h core.ElementHandle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	loc, err := locatorOf(h)
	if err != nil {
		return err
	}
	return wrap("clear", loc.Clear())
}

// ReadValue reports ok=false for elements without an input value.
func (d *Driver) ReadValue(ctx context.Context, h core.ElementHandle) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	loc, err := locatorOf(h)
	if err != nil {
		return "", false, err
	}
	v, err := loc.InputValue()
	if err != nil {
		return "", false, nil
	}
	return v, true, nil
}

func (d *Driver) TagName(ctx context.Context, h core.ElementHandle) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	loc, err := locatorOf(h)
	if err != nil {
		return "", err
	}
	v, err := loc.Evaluate(`el => el.tagName.toLowerCase()`, nil)
	if err != nil {
		return "", wrap("read tag", err)
	}
	tag, _ := v.(string)
	return tag, nil
}

// SelectByLabel checks option texts first so a missing option is reported
// as ErrOptionNotFound instead of a timeout.
func (d *Driver) SelectByLabel(ctx context.Context, h core.ElementHandle, label string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	loc, err := locatorOf(h)
	if err != nil {
		return err
	}
	found, err := loc.Evaluate(`(el, label) => Array.from(el.options || []).some(o => o.text.trim() === label)`, label)
	if err != nil {
		return wrap("read options", err)
	}
	if ok, _ := found.(bool); !ok {
		return core.ErrOptionNotFound.WithMessage(fmt.Sprintf("no option labelled %q", label))
	}
	_, err = loc.SelectOption(pw.SelectOptionValues{Labels: &[]string{label}})
	return wrap("select option", err)
}

// Press sends key to h, or to the page when h is nil.
func (d *Driver) Press(ctx context.Context, h core.ElementHandle, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if h == nil {
		return wrap("press "+key, d.page.Keyboard().Press(key))
	}
	loc, err := locatorOf(h)
	if err != nil {
		return err
	}
	return wrap("press "+key, loc.Press(key))
}

func (d *Driver) ScrollBy(ctx context.Context, dx, dy int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := d.page.Evaluate(`([dx, dy]) => window.scrollBy(dx, dy)`, []int{dx, dy})
	return wrap("scroll", err)
}

func (d *Driver) Evaluate(ctx context.Context, js string, args ...interface{}) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := d.page.Evaluate(js, args...)
	return v, wrap("evaluate", err)
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return d.page.URL(), nil
}

func (d *Driver) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	html, err := d.page.Content()
	return html, wrap("read content", err)
}

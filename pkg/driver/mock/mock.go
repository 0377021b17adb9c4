// Package mock provides an in-memory PageDriver for testing without a browser.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/devicelab-dev/hybrid-runner/pkg/core"
)

// Element is one element of the scripted DOM. It matches a selector only
// when the selector string is listed in Selectors.
type Element struct {
	Selectors  []string
	Tag        string
	Value      string
	Options    []string // Visible option labels, for <select>
	Hidden     bool
	NoReadback bool // ReadValue reports the value as unavailable

	// OnClick runs after a click, e.g. to swap the page.
	OnClick func(d *Driver)
}

// Call records one driver invocation.
type Call struct {
	Op       string
	Selector string
	Arg      string
	Timeout  time.Duration
}

// Config configures mock driver behavior.
type Config struct {
	// URL is the initial page URL.
	URL string
	// StepDelay adds artificial delay to every action
	StepDelay time.Duration
	// FailNavigate makes Navigate return this error.
	FailNavigate error
}

// Driver is a mock implementation of core.PageDriver.
type Driver struct {
	Config Config

	// EvaluateFunc answers Evaluate calls. Nil returns (nil, nil).
	EvaluateFunc func(js string, args ...interface{}) (interface{}, error)

	mu       sync.Mutex
	url      string
	elements []*Element
	pages    map[string][]*Element
	calls    []Call
	scrollX  int
	scrollY  int
}

// New creates a new mock driver.
func New(cfg Config) *Driver {
	if cfg.URL == "" {
		cfg.URL = "about:blank"
	}
	return &Driver{
		Config: cfg,
		url:    cfg.URL,
		pages:  make(map[string][]*Element),
	}
}

type handle struct {
	el       *Element
	selector string
}

func (h *handle) Selector() string { return h.selector }

// Add places elements on the current page.
func (d *Driver) Add(els ...*Element) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.elements = append(d.elements, els...)
}

// Remove drops an element from the current page.
func (d *Driver) Remove(el *Element) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, e := range d.elements {
		if e == el {
			d.elements = append(d.elements[:i], d.elements[i+1:]...)
			return
		}
	}
}

// SetPage registers the DOM served after navigating to url.
func (d *Driver) SetPage(url string, els ...*Element) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pages[url] = els
}

// Calls returns a copy of all recorded calls.
func (d *Driver) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}

// CallsFor returns recorded calls with the given op.
func (d *Driver) CallsFor(op string) []Call {
	var out []Call
	for _, c := range d.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Scroll returns the accumulated scroll offset.
func (d *Driver) Scroll() (x, y int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scrollX, d.scrollY
}

func (d *Driver) record(c Call) {
	d.calls = append(d.calls, c)
}

func (d *Driver) delay(ctx context.Context) error {
	if d.Config.StepDelay <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(d.Config.StepDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func element(h core.ElementHandle) (*Element, error) {
	mh, ok := h.(*handle)
	if !ok || mh == nil {
		return nil, fmt.Errorf("mock: foreign element handle %T", h)
	}
	return mh.el, nil
}

// Navigate swaps in the page registered for url, if any.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	if err := d.delay(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(Call{Op: "navigate", Arg: url})
	if d.Config.FailNavigate != nil {
		return d.Config.FailNavigate
	}
	d.url = url
	if els, ok := d.pages[url]; ok {
		d.elements = append([]*Element(nil), els...)
	}
	return nil
}

// Locate finds the element listing selector among its Selectors.
func (d *Driver) Locate(ctx context.Context, selector string) (core.ElementHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(Call{Op: "locate", Selector: selector})
	for _, el := range d.elements {
		for _, s := range el.Selectors {
			if s == selector {
				return &handle{el: el, selector: selector}, nil
			}
		}
	}
	return nil, nil
}

// WaitVisible reports visibility without waiting; the timeout is recorded.
func (d *Driver) WaitVisible(ctx context.Context, h core.ElementHandle, timeout time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := element(h)
	if err != nil {
		return false, err
	}
	d.record(Call{Op: "wait_visible", Selector: h.Selector(), Timeout: timeout})
	return !el.Hidden, nil
}

// Click runs the element's OnClick hook.
func (d *Driver) Click(ctx context.Context, h core.ElementHandle, opts core.ClickOptions) error {
	if err := d.delay(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	el, err := element(h)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	d.record(Call{Op: "click", Selector: h.Selector()})
	hook := el.OnClick
	d.mu.Unlock()

	if hook != nil {
		hook(d)
	}
	return nil
}

func (d *Driver) Fill(ctx context.Context, h core.ElementHandle, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := element(h)
	if err != nil {
		return err
	}
	d.record(Call{Op: "fill", Selector: h.Selector(), Arg: text})
	el.Value = text
	return nil
}

func (d *Driver) Clear(ctx context.Context, h core.ElementHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := element(h)
	if err != nil {
		return err
	}
	d.record(Call{Op: "clear", Selector: h.Selector()})
	el.Value = ""
	return nil
}

func (d *Driver) ReadValue(ctx context.Context, h core.ElementHandle) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := element(h)
	if err != nil {
		return "", false, err
	}
	if el.NoReadback {
		return "", false, nil
	}
	return el.Value, true, nil
}

func (d *Driver) TagName(ctx context.Context, h core.ElementHandle) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := element(h)
	if err != nil {
		return "", err
	}
	return strings.ToLower(el.Tag), nil
}

// SelectByLabel requires an exact match against Options.
func (d *Driver) SelectByLabel(ctx context.Context, h core.ElementHandle, label string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := element(h)
	if err != nil {
		return err
	}
	d.record(Call{Op: "select", Selector: h.Selector(), Arg: label})
	for _, o := range el.Options {
		if o == label {
			el.Value = label
			return nil
		}
	}
	return core.ErrOptionNotFound.WithMessage(fmt.Sprintf("no option labelled %q", label))
}

func (d *Driver) Press(ctx context.Context, h core.ElementHandle, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	sel := ""
	if h != nil {
		sel = h.Selector()
	}
	d.record(Call{Op: "press", Selector: sel, Arg: key})
	return nil
}

func (d *Driver) ScrollBy(ctx context.Context, dx, dy int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(Call{Op: "scroll", Arg: fmt.Sprintf("%d,%d", dx, dy)})
	d.scrollX += dx
	d.scrollY += dy
	return nil
}

func (d *Driver) Evaluate(ctx context.Context, js string, args ...interface{}) (interface{}, error) {
	d.mu.Lock()
	d.record(Call{Op: "evaluate", Arg: js})
	fn := d.EvaluateFunc
	d.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(js, args...)
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url, nil
}

// Content renders the current page as minimal HTML.
func (d *Driver) Content(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, el := range d.elements {
		tag := strings.ToLower(el.Tag)
		if tag == "" {
			tag = "div"
		}
		fmt.Fprintf(&b, "<%s>%s</%s>", tag, el.Value, tag)
	}
	b.WriteString("</body></html>")
	return b.String(), nil
}

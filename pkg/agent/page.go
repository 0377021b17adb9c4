package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/devicelab-dev/hybrid-runner/pkg/core"
	"github.com/devicelab-dev/hybrid-runner/pkg/logger"
	"github.com/devicelab-dev/hybrid-runner/pkg/script"
)

// collectElementsJS lists visible interactive elements with their outer
// HTML (children stripped), visible text and an absolute xpath.
const collectElementsJS = `(max) => {
  const sel = 'a[href], button, input, select, textarea, [role="button"], [role="link"], [role="checkbox"], [role="tab"], [onclick], [contenteditable="true"]';
  const xpathOf = (el) => {
    const parts = [];
    for (; el && el.nodeType === 1; el = el.parentNode) {
      let i = 1;
      for (let s = el.previousElementSibling; s; s = s.previousElementSibling) {
        if (s.nodeName === el.nodeName) i++;
      }
      parts.unshift(el.nodeName.toLowerCase() + '[' + i + ']');
    }
    return '/' + parts.join('/');
  };
  const out = [];
  for (const el of document.querySelectorAll(sel)) {
    const r = el.getBoundingClientRect();
    const st = window.getComputedStyle(el);
    if (r.width === 0 || r.height === 0 || st.visibility === 'hidden' || st.display === 'none') continue;
    const shallow = el.cloneNode(false);
    const text = (el.innerText || el.value || '').trim().replace(/\s+/g, ' ').slice(0, 120);
    if (text && !['INPUT', 'SELECT', 'TEXTAREA'].includes(el.tagName)) shallow.textContent = text;
    out.push({
      html: shallow.outerHTML,
      text: text,
      xpath: xpathOf(el),
      box: {x: r.x, y: r.y, width: r.width, height: r.height},
    });
    if (out.length >= max) break;
  }
  return out;
}`

// Element is one interactive element offered to the model.
type Element struct {
	Index      int
	Descriptor *core.ElementDescriptor
}

// Page is what the model sees at one step.
type Page struct {
	URL      string
	Elements []Element
}

type rawElement struct {
	HTML  string            `json:"html"`
	Text  string            `json:"text"`
	XPath string            `json:"xpath"`
	Box   *core.BoundingBox `json:"box"`
}

// observe snapshots the page. A page whose element listing fails still
// yields its URL so the model can navigate away.
func (a *Agent) observe(ctx context.Context) (*Page, error) {
	url, err := a.Driver.CurrentURL(ctx)
	if err != nil {
		return nil, core.ErrDriver.WithMessage("failed to read page url").WithCause(err)
	}
	page := &Page{URL: url}

	res, err := a.Driver.Evaluate(ctx, collectElementsJS, a.maxElements())
	if err != nil {
		logger.Warn("agent: element listing failed on %s: %v", url, err)
		return page, nil
	}
	raws, err := decodeElements(res)
	if err != nil {
		logger.Warn("agent: %v", err)
		return page, nil
	}
	for i, r := range raws {
		desc, err := script.DescriptorFromHTML(r.HTML)
		if err != nil {
			continue
		}
		desc.XPath = r.XPath
		desc.BoundingBox = r.Box
		if desc.VisibleText == "" {
			desc.VisibleText = r.Text
		}
		page.Elements = append(page.Elements, Element{Index: i, Descriptor: desc})
	}
	return page, nil
}

// decodeElements accepts whatever JSON-shaped value the driver returned.
func decodeElements(v interface{}) ([]rawElement, error) {
	if v == nil {
		return nil, nil
	}
	var data []byte
	switch t := v.(type) {
	case string:
		data = []byte(t)
	case []byte:
		data = t
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("element listing not serializable: %w", err)
		}
		data = b
	}
	var raws []rawElement
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("element listing malformed: %w", err)
	}
	return raws, nil
}

// element returns the element with the given index.
func (p *Page) element(idx int) (*Element, error) {
	for i := range p.Elements {
		if p.Elements[i].Index == idx {
			return &p.Elements[i], nil
		}
	}
	return nil, core.ErrElementNotFound.WithMessage(fmt.Sprintf("no element with index %d", idx))
}

// Render formats the page for the prompt.
func (p *Page) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current URL: %s\n", p.URL)
	if len(p.Elements) == 0 {
		b.WriteString("No interactive elements found.\n")
		return b.String()
	}
	b.WriteString("Interactive elements:\n")
	for _, el := range p.Elements {
		d := el.Descriptor
		label := script.ExtractLabel(d)
		if label == "" {
			label = d.Attr("placeholder")
		}
		if label == "" {
			label = "(no text)"
		}
		fmt.Fprintf(&b, "[%d] <%s> %s", el.Index, d.TagName(), label)
		for _, name := range []string{"type", "name", "placeholder", "href"} {
			if v := d.Attr(name); v != "" {
				fmt.Fprintf(&b, " %s=%q", name, v)
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

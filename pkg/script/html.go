package script

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/devicelab-dev/hybrid-runner/pkg/core"
)

// DescriptorFromHTML builds an element descriptor from the outer HTML of a
// single element. Attribute order is kept as written.
func DescriptorFromHTML(outerHTML string) (*core.ElementDescriptor, error) {
	nodes, err := html.ParseFragment(strings.NewReader(outerHTML), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return nil, fmt.Errorf("parse element html: %w", err)
	}
	for _, n := range nodes {
		if n.Type != html.ElementNode {
			continue
		}
		attrs := make([]core.Attribute, 0, len(n.Attr))
		for _, a := range n.Attr {
			attrs = append(attrs, core.Attribute{Name: a.Key, Value: a.Val})
		}
		return &core.ElementDescriptor{
			Tag:         strings.ToLower(n.Data),
			Attributes:  core.NewAttributes(attrs...),
			VisibleText: strings.Join(strings.Fields(textOf(n)), " "),
		}, nil
	}
	return nil, fmt.Errorf("no element in %q", core.TruncateSelector(outerHTML))
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

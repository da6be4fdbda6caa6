package transport

import (
	"bytes"
	"strings"

	appErr "reftester/pkg/errors"

	"golang.org/x/net/html"
)

// Matcher selects element nodes of a parsed page.
type Matcher func(n *html.Node) bool

// Document parses the response body as HTML.
func (r Response) Document() (*html.Node, error) {
	doc, err := html.Parse(bytes.NewReader(r.Body))
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.PageNotReady, "parse judge page failed")
	}
	return doc, nil
}

// Tag matches elements by tag name.
func Tag(name string) Matcher {
	return func(n *html.Node) bool {
		return n.Data == name
	}
}

// ID matches the element with the given id.
func ID(id string) Matcher {
	return AttrEquals("id", id)
}

// Class matches elements carrying the class.
func Class(name string) Matcher {
	return func(n *html.Node) bool {
		for _, c := range strings.Fields(Attr(n, "class")) {
			if c == name {
				return true
			}
		}
		return false
	}
}

// HasAttr matches elements that carry the attribute at all.
func HasAttr(key string) Matcher {
	return func(n *html.Node) bool {
		_, ok := LookupAttr(n, key)
		return ok
	}
}

// AttrEquals matches elements whose attribute equals value.
func AttrEquals(key, value string) Matcher {
	return func(n *html.Node) bool {
		v, ok := LookupAttr(n, key)
		return ok && v == value
	}
}

// AttrContains matches elements whose attribute contains substr.
func AttrContains(key, substr string) Matcher {
	return func(n *html.Node) bool {
		v, ok := LookupAttr(n, key)
		return ok && strings.Contains(v, substr)
	}
}

// All matches elements satisfying every matcher.
func All(ms ...Matcher) Matcher {
	return func(n *html.Node) bool {
		for _, m := range ms {
			if !m(n) {
				return false
			}
		}
		return true
	}
}

// FindAll returns matching elements in document order.
func FindAll(root *html.Node, m Matcher) []*html.Node {
	var out []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && m(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if root != nil {
		walk(root)
	}
	return out
}

// Find returns the first matching element, or nil.
func Find(root *html.Node, m Matcher) *html.Node {
	if root == nil {
		return nil
	}
	if root.Type == html.ElementNode && m(root) {
		return root
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if n := Find(c, m); n != nil {
			return n
		}
	}
	return nil
}

// LookupAttr returns an attribute value and whether it is present.
func LookupAttr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// Attr returns an attribute value or "".
func Attr(n *html.Node, key string) string {
	v, _ := LookupAttr(n, key)
	return v
}

// Text returns the whitespace-trimmed text content of n.
func Text(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

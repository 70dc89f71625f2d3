// Package page is the DOM side of the star engine: parsing grid pages,
// discovering cards and segments, moving card nodes around, and keeping
// the star controls' visual state in line with the registry.
//
// Everything here operates on golang.org/x/net/html node trees. The
// package is synchronous and goroutine-unaware; the engine serializes
// access through its run loop.
package page

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/net/html"
)

// Document wraps a parsed HTML tree.
type Document struct {
	root *html.Node
}

// Parse reads an HTML document. The parser is lenient the way browsers
// are; it never fails on sloppy markup, only on read errors.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing page: %w", err)
	}
	return &Document{root: root}, nil
}

// ParseString parses an in-memory HTML document.
func ParseString(src string) (*Document, error) {
	return Parse(strings.NewReader(src))
}

// ParseFile parses the HTML document at path.
func ParseFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening page: %w", err)
	}
	defer f.Close()
	doc, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Root returns the document root node.
func (d *Document) Root() *html.Node {
	return d.root
}

// Render serializes the current tree.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// HTML renders the current tree to a string.
func (d *Document) HTML() (string, error) {
	var sb strings.Builder
	if err := d.Render(&sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Walk visits every node in document order. Return false from visit to
// skip the node's subtree.
func (d *Document) Walk(visit func(*html.Node) bool) {
	walk(d.root, visit)
}

func walk(n *html.Node, visit func(*html.Node) bool) {
	if !visit(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

// Attr returns the value of the named attribute.
func Attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets or replaces the named attribute.
func SetAttr(n *html.Node, name, value string) {
	for i := range n.Attr {
		if n.Attr[i].Key == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

// RemoveAttr deletes the named attribute if present.
func RemoveAttr(n *html.Node, name string) {
	for i, a := range n.Attr {
		if a.Key == name {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

// classList splits a class attribute value on whitespace.
func classList(n *html.Node) []string {
	v, ok := Attr(n, "class")
	if !ok {
		return nil
	}
	return strings.Fields(v)
}

// HasClass reports whether the element carries the class.
func HasClass(n *html.Node, class string) bool {
	for _, c := range classList(n) {
		if c == class {
			return true
		}
	}
	return false
}

// hasAnyClass reports whether the element carries at least one of the
// classes.
func hasAnyClass(n *html.Node, classes []string) bool {
	for _, c := range classList(n) {
		for _, want := range classes {
			if c == want {
				return true
			}
		}
	}
	return false
}

// AddClass appends the class unless already present.
func AddClass(n *html.Node, class string) {
	if HasClass(n, class) {
		return
	}
	cur, _ := Attr(n, "class")
	if cur == "" {
		SetAttr(n, "class", class)
		return
	}
	SetAttr(n, "class", cur+" "+class)
}

// RemoveClass removes the class, keeping the rest in order.
func RemoveClass(n *html.Node, class string) {
	list := classList(n)
	kept := list[:0]
	for _, c := range list {
		if c != class {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		RemoveAttr(n, "class")
		return
	}
	SetAttr(n, "class", strings.Join(kept, " "))
}

func isElement(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode
}

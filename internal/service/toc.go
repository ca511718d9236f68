package service

import (
	"bytes"
	"strings"

	"github.com/gosimple/slug"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// TOCItem is one entry in an article's table of contents. Children nest
// entries of deeper heading levels.
type TOCItem struct {
	Title    string    `json:"title"`
	ID       string    `json:"id"`
	Children []TOCItem `json:"children"`
}

// BuildTableOfContents scans the h1-h3 headings of the given HTML content,
// assigns each a slug-derived anchor id, and returns the nested table of
// contents together with the content rewritten to carry those ids.
//
// The parse is best-effort: malformed HTML is repaired the way browsers
// repair it, and empty content yields an empty tree.
func BuildTableOfContents(content string) ([]TOCItem, string) {
	toc := []TOCItem{}
	if strings.TrimSpace(content) == "" {
		return toc, content
	}

	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(content), body)
	if err != nil {
		return toc, content
	}

	type frame struct {
		level    int
		children *[]TOCItem
	}
	// Sentinel level 0 keeps the pop loop from emptying the stack.
	stack := []frame{{level: 0, children: &toc}}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.H1, atom.H2, atom.H3:
				level := int(n.Data[1] - '0')
				title := nodeText(n)
				anchor := slug.Make(title)
				setAttr(n, "id", anchor)

				// Unwind to the nearest shallower heading, then attach.
				for level <= stack[len(stack)-1].level {
					stack = stack[:len(stack)-1]
				}
				parent := stack[len(stack)-1].children
				*parent = append(*parent, TOCItem{Title: title, ID: anchor, Children: []TOCItem{}})
				item := &(*parent)[len(*parent)-1]
				stack = append(stack, frame{level: level, children: &item.Children})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}

	var buf bytes.Buffer
	for _, n := range nodes {
		if err := html.Render(&buf, n); err != nil {
			return toc, content
		}
	}
	return toc, buf.String()
}

// nodeText collects the concatenated text content of a node.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

// setAttr sets or replaces an attribute on an element node.
func setAttr(n *html.Node, key, value string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: value})
}

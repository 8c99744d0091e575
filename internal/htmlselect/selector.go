// Package htmlselect is a small CSS-selector-lite DOM query evaluator
// shared by the Script Host's pdfh/pdfa bridge functions and the XPath
// Spider variant (§4.3, §4.4).
//
// Grounded on internal/common/htmlprocessor/dom.go's recursive
// golang.org/x/net/html walking style (findElement/getAttr/getTextContent),
// generalized from "locate head/title/meta" to an arbitrary selector chain
// of descendant tag/class/id steps, with an optional trailing "@attr" to
// extract an attribute instead of text content.
package htmlselect

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// step is one descendant-combinator segment of a selector, e.g. "div.item".
type step struct {
	tag     string // "" matches any tag
	classes []string
	id      string
}

// Selector is a parsed, space-separated descendant chain, with an optional
// trailing "@attr" extraction suffix (e.g. "ul.list li a@href").
type Selector struct {
	steps []step
	attr  string // "" means "text content"
}

// Parse compiles a selector string. Unsupported syntax degrades to a
// best-effort tag match rather than erroring, per §4.4's "must not throw
// on missing optional fields" posture.
func Parse(raw string) Selector {
	raw = strings.TrimSpace(raw)
	attr := ""
	if idx := strings.LastIndex(raw, "@"); idx > 0 {
		attr = raw[idx+1:]
		raw = raw[:idx]
	}

	var steps []step
	for _, part := range strings.Fields(raw) {
		steps = append(steps, parseStep(part))
	}
	return Selector{steps: steps, attr: attr}
}

func parseStep(part string) step {
	var s step
	var cur strings.Builder
	mode := byte(0) // 0 = tag, '.' = class, '#' = id

	flush := func() {
		if cur.Len() == 0 {
			return
		}
		switch mode {
		case '.':
			s.classes = append(s.classes, cur.String())
		case '#':
			s.id = cur.String()
		default:
			s.tag = cur.String()
		}
		cur.Reset()
	}

	for _, r := range part {
		switch r {
		case '.', '#':
			flush()
			mode = byte(r)
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return s
}

// Doc wraps a parsed HTML document for repeated querying.
type Doc struct {
	root *html.Node
}

// ParseDocument parses an HTML byte string.
func ParseDocument(htmlBytes []byte) (*Doc, error) {
	root, err := html.Parse(bytes.NewReader(htmlBytes))
	if err != nil {
		return nil, err
	}
	return &Doc{root: root}, nil
}

// First returns the first match's text (or attribute) per the selector.
func (d *Doc) First(sel Selector) string {
	nodes := d.match(sel.steps, []*html.Node{d.root})
	if len(nodes) == 0 {
		return ""
	}
	return extract(nodes[0], sel.attr)
}

// All returns every match's text (or attribute) per the selector.
func (d *Doc) All(sel Selector) []string {
	nodes := d.match(sel.steps, []*html.Node{d.root})
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, extract(n, sel.attr))
	}
	return out
}

func (d *Doc) match(steps []step, roots []*html.Node) []*html.Node {
	if len(steps) == 0 {
		return roots
	}
	current := steps[0]
	var matched []*html.Node
	for _, root := range roots {
		walk(root, func(n *html.Node) {
			if n.Type == html.ElementNode && stepMatches(n, current) {
				matched = append(matched, n)
			}
		})
	}
	if len(steps) == 1 {
		return matched
	}
	return d.match(steps[1:], matched)
}

func walk(n *html.Node, visit func(*html.Node)) {
	var rec func(*html.Node)
	rec = func(node *html.Node) {
		visit(node)
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			rec(c)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		rec(c)
	}
}

func stepMatches(n *html.Node, s step) bool {
	if s.tag != "" && !strings.EqualFold(n.Data, s.tag) {
		return false
	}
	if s.id != "" && attrOf(n, "id") != s.id {
		return false
	}
	for _, class := range s.classes {
		if !hasClass(n, class) {
			return false
		}
	}
	return s.tag != "" || s.id != "" || len(s.classes) > 0
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attrOf(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func attrOf(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}

func extract(n *html.Node, attr string) string {
	if attr != "" {
		return attrOf(n, attr)
	}
	var sb strings.Builder
	var rec func(*html.Node)
	rec = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			rec(c)
		}
	}
	rec(n)
	return strings.TrimSpace(sb.String())
}

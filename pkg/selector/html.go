package selector

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// selectHTML applies a CSS or XPath-subset selector to raw HTML
// (spec.md §4.3: "Selectors are CSS or XPath, disambiguated by
// leading `/` or `//` (XPath) vs anything else (CSS)"), with an
// optional trailing "@attr" suffix to read an attribute instead of
// inner text (spec.md §4.3: "the result is the inner text or
// attribute value"). The CSS subset below is hand-rolled in the same
// tag+predicate, node-walking style as the XPath matcher further down
// this file, rather than reaching for a new dependency just for this.
func selectHTML(sel string, raw []byte) (interface{}, error) {
	target, attr := splitAttr(sel)

	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("selector %q: parse html: %w", sel, err)
	}

	var nodes []*html.Node
	if strings.HasPrefix(target, "/") {
		nodes = xpathSelect(doc, target)
	} else {
		nodes = cssSelect(doc, target)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrSelectionFailed, sel)
	}

	n := nodes[0]
	if attr != "" {
		return getAttr(n, attr), nil
	}
	return strings.TrimSpace(collectText(n)), nil
}

func splitAttr(sel string) (target, attr string) {
	if idx := strings.LastIndexByte(sel, '@'); idx > 0 && idx > strings.LastIndexByte(sel, ']') {
		return sel[:idx], sel[idx+1:]
	}
	return sel, ""
}

// --- CSS subset: descendant combinator (whitespace) over steps of
// tag, .class (repeatable), #id, [attr] / [attr=value]. ---

type htmlStep struct {
	tag       string
	id        string
	classes   []string
	attrName  string
	attrValue string
	position  int // XPath-only positional predicate
}

func cssSelect(doc *html.Node, selector string) []*html.Node {
	current := []*html.Node{doc}
	for _, raw := range strings.Fields(selector) {
		s := parseCSSStep(raw)
		var next []*html.Node
		for _, c := range current {
			next = append(next, descendantsMatching(c, s)...)
		}
		current = next
	}
	return current
}

func parseCSSStep(raw string) htmlStep {
	var s htmlStep

	i := 0
	for i < len(raw) && raw[i] != '.' && raw[i] != '#' && raw[i] != '[' {
		i++
	}
	s.tag = raw[:i]
	rest := raw[i:]

	for len(rest) > 0 {
		switch rest[0] {
		case '.':
			j := classEnd(rest)
			s.classes = append(s.classes, rest[1:j])
			rest = rest[j:]
		case '#':
			j := classEnd(rest)
			s.id = rest[1:j]
			rest = rest[j:]
		case '[':
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return s
			}
			inner := rest[1:end]
			if eq := strings.IndexByte(inner, '='); eq >= 0 {
				s.attrName = inner[:eq]
				s.attrValue = strings.Trim(inner[eq+1:], `'"`)
			} else {
				s.attrName = inner
			}
			rest = rest[end+1:]
		default:
			return s
		}
	}
	return s
}

func classEnd(rest string) int {
	j := 1
	for j < len(rest) && rest[j] != '.' && rest[j] != '#' && rest[j] != '[' {
		j++
	}
	return j
}

func descendantsMatching(root *html.Node, s htmlStep) []*html.Node {
	var matches []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n != root && matchesCSSStep(n, s) {
			matches = append(matches, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return matches
}

func matchesCSSStep(n *html.Node, s htmlStep) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if s.tag != "" && s.tag != "*" && n.Data != s.tag {
		return false
	}
	if s.id != "" && getAttr(n, "id") != s.id {
		return false
	}
	for _, class := range s.classes {
		if !hasClass(n, class) {
			return false
		}
	}
	if s.attrName != "" {
		val := getAttr(n, s.attrName)
		if s.attrValue != "" {
			if val != s.attrValue {
				return false
			}
		} else if !hasAttr(n, s.attrName) {
			return false
		}
	}
	return true
}

// --- XPath subset: absolute ("/a/b"), descendant ("//a"), with
// "[@attr=value]" and positional "[n]" predicates. ---

func xpathSelect(doc *html.Node, xpath string) []*html.Node {
	switch {
	case strings.HasPrefix(xpath, "//"):
		return descendantPath(doc, xpath[2:])
	case strings.HasPrefix(xpath, "/"):
		return absolutePath(doc, xpath[1:])
	default:
		return descendantPath(doc, xpath)
	}
}

func descendantPath(root *html.Node, expr string) []*html.Node {
	parts := strings.SplitN(expr, "/", 2)
	s := parseXPathStep(parts[0])

	var matches []*html.Node
	for _, m := range descendantsMatching(root, htmlStep{tag: s.tag}) {
		if matchesXPathStep(m, s) {
			matches = append(matches, m)
		}
	}
	if len(parts) > 1 && parts[1] != "" {
		var filtered []*html.Node
		for _, m := range matches {
			filtered = append(filtered, absolutePath(m, parts[1])...)
		}
		return filtered
	}
	return matches
}

func absolutePath(root *html.Node, path string) []*html.Node {
	current := []*html.Node{root}
	for _, raw := range strings.Split(path, "/") {
		if raw == "" {
			continue
		}
		s := parseXPathStep(raw)
		var next []*html.Node
		for _, parent := range current {
			for c := parent.FirstChild; c != nil; c = c.NextSibling {
				if matchesXPathStep(c, s) {
					next = append(next, c)
				}
			}
		}
		current = next
	}
	return current
}

// parseXPathStep parses "div", "div[@class='x']", "div[2]".
func parseXPathStep(raw string) htmlStep {
	idx := strings.IndexByte(raw, '[')
	if idx < 0 {
		return htmlStep{tag: raw}
	}

	s := htmlStep{tag: raw[:idx]}
	predStr := strings.TrimRight(raw[idx+1:], "]")

	if n, err := strconv.Atoi(predStr); err == nil {
		s.position = n
		return s
	}

	if strings.HasPrefix(predStr, "@") {
		attrExpr := predStr[1:]
		if eq := strings.IndexByte(attrExpr, '='); eq >= 0 {
			s.attrName = attrExpr[:eq]
			s.attrValue = strings.Trim(attrExpr[eq+1:], `'"`)
		} else {
			s.attrName = attrExpr
		}
	}
	return s
}

func matchesXPathStep(n *html.Node, s htmlStep) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if s.tag != "*" && n.Data != s.tag {
		return false
	}
	if s.attrName != "" {
		val := getAttr(n, s.attrName)
		if s.attrValue != "" {
			return val == s.attrValue
		}
		return hasAttr(n, s.attrName)
	}
	if s.position > 0 {
		pos := 0
		for sib := n.Parent.FirstChild; sib != nil; sib = sib.NextSibling {
			if sib.Type == html.ElementNode && sib.Data == n.Data {
				pos++
				if sib == n {
					return pos == s.position
				}
			}
		}
		return false
	}
	return true
}

func getAttr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, name string) bool {
	for _, a := range n.Attr {
		if a.Key == name {
			return true
		}
	}
	return false
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func collectText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

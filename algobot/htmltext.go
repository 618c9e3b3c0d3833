package algobot

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var blankLineRun = regexp.MustCompile(`\n{3,}`)

// htmlToText converts an HTML problem statement into plain text with
// light markdown: bold/italic/inline-code markers survive, superscripts
// become caret notation, list items become dashes and code blocks are
// indented. If the input doesn't parse it is returned unchanged.
func htmlToText(s string) string {
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return s
	}
	var b strings.Builder
	renderHTMLNode(&b, doc)
	out := blankLineRun.ReplaceAllString(b.String(), "\n\n")
	return strings.TrimSpace(out)
}

func renderHTMLNode(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(strings.ReplaceAll(n.Data, "\n", " "))
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style":
			return
		case "br":
			b.WriteString("\n")
			return
		case "sup":
			b.WriteString("^")
			renderHTMLChildren(b, n)
			return
		case "b", "strong":
			b.WriteString("**")
			renderHTMLChildren(b, n)
			b.WriteString("**")
			if hasClass(n, "example") {
				b.WriteString("\n")
			}
			return
		case "i", "em":
			b.WriteString("*")
			renderHTMLChildren(b, n)
			b.WriteString("*")
			return
		case "code":
			b.WriteString("`")
			renderHTMLChildren(b, n)
			b.WriteString("`")
			return
		case "pre":
			b.WriteString("\n\n")
			b.WriteString(indentLines(nodeText(n)))
			b.WriteString("\n\n")
			return
		case "li":
			b.WriteString("\n- ")
			renderHTMLChildren(b, n)
			return
		case "ul", "ol":
			renderHTMLChildren(b, n)
			b.WriteString("\n")
			return
		case "p", "div":
			b.WriteString("\n\n")
			renderHTMLChildren(b, n)
			b.WriteString("\n\n")
			return
		case "img":
			for _, attr := range n.Attr {
				if attr.Key == "alt" && attr.Val != "" {
					b.WriteString("[" + attr.Val + "]")
				}
			}
			return
		}
	}
	renderHTMLChildren(b, n)
}

func renderHTMLChildren(b *strings.Builder, n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderHTMLNode(b, c)
	}
}

// nodeText returns the raw text content of a subtree, whitespace
// preserved. Used for code blocks.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Trim(b.String(), "\n")
}

func indentLines(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = "\t" + line
	}
	return strings.Join(lines, "\n")
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key == "class" && strings.Contains(attr.Val, class) {
			return true
		}
	}
	return false
}

package notify

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// htmlToText flattens an HTML fragment into readable plain text for the
// text/plain alternative. Block elements become line breaks, list items get a
// leading dash and link targets are kept next to their anchor text.
func htmlToText(fragment string) (string, error) {
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	walkText(&b, doc)
	return tidyText(b.String()), nil
}

func walkText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(collapseSpace(n.Data))
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "head", "title":
			return
		case "br", "hr":
			b.WriteString("\n")
			return
		case "li":
			b.WriteString("\n- ")
		case "p", "div", "h1", "h2", "h3", "h4", "h5", "h6", "ul", "ol", "table", "tr", "blockquote":
			b.WriteString("\n")
		case "a":
			var inner strings.Builder
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walkText(&inner, c)
			}
			text := strings.TrimSpace(inner.String())
			href := attrVal(n, "href")
			switch {
			case text == "":
				b.WriteString(href)
			case href == "" || href == text:
				b.WriteString(text)
			default:
				b.WriteString(text + " (" + href + ")")
			}
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(b, c)
	}
	if n.Type == html.ElementNode {
		switch n.Data {
		case "p", "div", "h1", "h2", "h3", "h4", "h5", "h6", "ul", "ol", "table", "tr", "blockquote":
			b.WriteString("\n")
		case "td", "th":
			b.WriteString(" ")
		}
	}
}

// collapseSpace squeezes whitespace runs to single spaces while keeping one
// leading or trailing space when the original had any, so inline siblings
// stay separated.
func collapseSpace(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		if s == "" {
			return ""
		}
		return " "
	}
	out := strings.Join(fields, " ")
	if r, _ := utf8.DecodeRuneInString(s); unicode.IsSpace(r) {
		out = " " + out
	}
	if r, _ := utf8.DecodeLastRuneInString(s); unicode.IsSpace(r) {
		out += " "
	}
	return out
}

func tidyText(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	out := strings.Join(lines, "\n")
	for strings.Contains(out, "\n\n\n") {
		out = strings.ReplaceAll(out, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(out)
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

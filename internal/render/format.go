package render

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// HTMLToText parses HTML and emits readable plain text. Scripts, styles and
// head content are dropped; paragraphs, line breaks, lists and blockquotes are
// kept as text structure.
func HTMLToText(htmlStr string) (string, error) {
	if strings.TrimSpace(htmlStr) == "" {
		return "", nil
	}
	doc, err := html.Parse(strings.NewReader(htmlStr))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	var quoteDepth int

	// visit walks the DOM
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			text := sanitizeText(n.Data)
			if endsWithBreak(&b) {
				text = strings.TrimLeft(text, " ")
			}
			if strings.TrimSpace(text) == "" {
				if text != "" {
					b.WriteByte(' ')
				}
				return
			}
			if quoteDepth > 0 && atLineStart(&b) {
				b.WriteString(strings.Repeat("> ", min(quoteDepth, 3)))
			}
			b.WriteString(text)
		case html.CommentNode:
			// ignore
		case html.ElementNode:
			switch strings.ToLower(n.Data) {
			case "head", "style", "script", "title", "meta", "link":
				return
			case "br":
				b.WriteByte('\n')
				return
			case "hr":
				b.WriteString("\n-----\n")
				return
			case "p", "div", "section", "h1", "h2", "h3", "h4", "h5", "h6", "tr":
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					visit(c)
				}
				b.WriteString("\n")
				return
			case "li":
				b.WriteString("- ")
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					visit(c)
				}
				b.WriteByte('\n')
				return
			case "blockquote":
				quoteDepth++
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					visit(c)
				}
				quoteDepth--
				b.WriteByte('\n')
				return
			}
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				visit(c)
			}
		default:
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				visit(c)
			}
		}
	}
	visit(doc)

	return collapseBlankLines(b.String()), nil
}

// QuoteText prefixes every line with "> "
func QuoteText(s string) string {
	s = strings.TrimRight(normalizeNewlines(s), "\n")
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	for i, ln := range lines {
		if ln == "" {
			lines[i] = ">"
			continue
		}
		lines[i] = "> " + ln
	}
	return strings.Join(lines, "\n")
}

// collapseBlankLines trims trailing spaces and keeps at most one empty line in a row
func collapseBlankLines(s string) string {
	lines := strings.Split(normalizeNewlines(s), "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, ln := range lines {
		ln = strings.TrimSpace(ln)
		if ln == "" {
			blank++
			if blank > 1 || len(out) == 0 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, ln)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// sanitizeText collapses runs of whitespace the way browsers do for inline text
func sanitizeText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	fields := strings.Fields(s)
	if len(fields) == 0 {
		if s != "" {
			return " "
		}
		return ""
	}
	out := strings.Join(fields, " ")
	if unicode.IsSpace(rune(s[0])) {
		out = " " + out
	}
	if unicode.IsSpace(rune(s[len(s)-1])) {
		out += " "
	}
	return out
}

func endsWithBreak(b *strings.Builder) bool {
	if b.Len() == 0 {
		return true
	}
	last := b.String()[b.Len()-1]
	return last == '\n' || last == ' '
}

func atLineStart(b *strings.Builder) bool {
	return b.Len() == 0 || b.String()[b.Len()-1] == '\n'
}

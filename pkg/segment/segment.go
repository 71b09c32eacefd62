package segment

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// MaxBlankRun is the number of consecutive blank lines kept in markup documents.
const MaxBlankRun = 2

// Align is the horizontal alignment carried by a markup block.
type Align string

const (
	AlignNone   Align = ""
	AlignLeft   Align = "left"
	AlignCenter Align = "center"
	AlignRight  Align = "right"
)

// Line is one addressable unit of a segmented document. Lines are derived on
// every read and never persisted; Index is only stable for one segmentation.
type Line struct {
	Index int    `json:"index"`
	HTML  string `json:"html"`
	Align Align  `json:"align,omitempty"`
}

// Text returns the visible text of the line with tags stripped.
func (l Line) Text() string {
	return StripTags(l.HTML)
}

// Blank reports whether the line has no visible content.
func (l Line) Blank() bool {
	return strings.TrimSpace(l.Text()) == ""
}

var (
	breakTag   = regexp.MustCompile(`(?i)<br\s*/?>`)
	anyTag     = regexp.MustCompile(`<[^>]+>`)
	textAlign  = regexp.MustCompile(`(?i)text-align\s*:\s*(left|center|right)`)
	plainEsc   = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	blockAtoms = map[atom.Atom]bool{
		atom.P: true, atom.Div: true, atom.Li: true, atom.Pre: true, atom.Blockquote: true,
		atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	}
)

// StripTags removes anything that looks like a tag from s.
func StripTags(s string) string {
	return anyTag.ReplaceAllString(s, "")
}

// EscapeText escapes the characters that would otherwise be read as markup.
func EscapeText(s string) string {
	return plainEsc.Replace(s)
}

// IsMarkup reports whether body is treated as markup rather than plain text.
func IsMarkup(body string) bool {
	return strings.HasPrefix(strings.TrimSpace(body), "<")
}

// Segment splits a document body into ordered lines. It never fails: markup
// that cannot be parsed is segmented as escaped plain text. Markup is
// sanitized first, so line HTML is safe to embed in a page.
func Segment(body string) []Line {
	if strings.TrimSpace(body) == "" {
		return nil
	}
	if !IsMarkup(body) {
		return number(plainLines(body, nil))
	}

	normalized := breakTag.ReplaceAllString(Sanitize(body), "\n")
	nodes, err := html.ParseFragment(strings.NewReader(normalized), &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
	})
	if err != nil {
		return number(plainLines(body, nil))
	}

	var out []Line
	for _, n := range nodes {
		switch n.Type {
		case html.ElementNode:
			if blockAtoms[n.DataAtom] {
				out = appendBlock(out, innerHTML(n), blockAlign(n))
			} else {
				// wrapped in an implicit block without a style of its own
				out = appendBlock(out, outerHTML(n), AlignNone)
			}
		case html.TextNode:
			out = plainLines(n.Data, out)
		}
	}
	return number(collapseBlanks(out))
}

func plainLines(text string, out []Line) []Line {
	for _, part := range strings.Split(text, "\n") {
		out = append(out, Line{HTML: EscapeText(strings.TrimSuffix(part, "\r"))})
	}
	return out
}

func appendBlock(out []Line, inner string, align Align) []Line {
	for _, part := range strings.Split(inner, "\n") {
		out = append(out, Line{HTML: part, Align: align})
	}
	return out
}

func blockAlign(n *html.Node) Align {
	for _, a := range n.Attr {
		if a.Key != "style" {
			continue
		}
		if m := textAlign.FindStringSubmatch(a.Val); m != nil {
			return Align(strings.ToLower(m[1]))
		}
	}
	return AlignNone
}

func collapseBlanks(lines []Line) []Line {
	cleaned := make([]Line, 0, len(lines))
	blanks := 0
	for _, l := range lines {
		if !l.Blank() {
			blanks = 0
			cleaned = append(cleaned, l)
			continue
		}
		blanks++
		if blanks <= MaxBlankRun {
			cleaned = append(cleaned, l)
		}
	}
	return cleaned
}

func number(lines []Line) []Line {
	for i := range lines {
		lines[i].Index = i
	}
	return lines
}

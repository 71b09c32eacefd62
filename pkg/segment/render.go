package segment

import (
	"strconv"
	"strings"
)

// LineIndexAttr is the attribute that marks a rendered line element.
const LineIndexAttr = "data-line-index"

// AlignClass returns the CSS class the reader uses for the line. Lines
// without an explicit alignment are centered.
func (l Line) AlignClass() string {
	switch l.Align {
	case AlignLeft:
		return "text-left"
	case AlignRight:
		return "text-right"
	default:
		return "text-center"
	}
}

// Render writes lines as reader markup, one element per line carrying its
// index so a selection inside it can be traced back to the line.
func Render(lines []Line) string {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(`<div class="line" `)
		b.WriteString(LineIndexAttr)
		b.WriteString(`="`)
		b.WriteString(strconv.Itoa(l.Index))
		b.WriteString(`"><div class="line-body `)
		b.WriteString(l.AlignClass())
		b.WriteString(`">`)
		if l.HTML == "" {
			b.WriteString("&nbsp;")
		} else {
			b.WriteString(l.HTML)
		}
		b.WriteString("</div></div>\n")
	}
	return b.String()
}

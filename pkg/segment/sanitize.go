package segment

import "github.com/microcosm-cc/bluemonday"

// markupPolicy is the subset of HTML a script body may carry: the block
// elements lines are cut from, inline formatting, and text-align.
var markupPolicy = newMarkupPolicy()

func newMarkupPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"p", "div", "li", "pre", "blockquote",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"br", "span", "b", "strong", "i", "em", "u", "s", "strike",
		"sub", "sup", "small", "mark", "code",
	)
	p.AllowStyles("text-align").MatchingEnum("left", "center", "right").Globally()
	return p
}

// Sanitize strips every element, attribute and style outside the script
// markup subset. Scripts and styles lose their content too.
func Sanitize(body string) string {
	return markupPolicy.Sanitize(body)
}

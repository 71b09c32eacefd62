package segment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func htmls(lines []Line) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.HTML
	}
	return out
}

func TestSegmentEmpty(t *testing.T) {
	assert.Empty(t, Segment(""))
	assert.Empty(t, Segment("   \n\t \r\n"))
}

func TestSegmentPlainScene(t *testing.T) {
	lines := Segment("INT. ROOM - DAY\n\nJohn enters.")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"INT. ROOM - DAY", "", "John enters."}, htmls(lines))
	for i, l := range lines {
		assert.Equal(t, i, l.Index)
		assert.Equal(t, AlignNone, l.Align)
	}
}

func TestSegmentPlainKeepsEveryLine(t *testing.T) {
	inputs := []string{
		"a\r\nb\nc",
		"one\n\n\n\n\ntwo",
		"trailing newline\n",
		"x < y && y > z",
	}
	for _, in := range inputs {
		lines := Segment(in)
		assert.Len(t, lines, len(strings.Split(in, "\n")), in)
		for _, l := range lines {
			assert.NotContains(t, l.HTML, "<")
			assert.NotContains(t, l.HTML, "\r")
			assert.Equal(t, AlignNone, l.Align)
		}
	}
	assert.Equal(t, "x &lt; y &amp;&amp; y &gt; z", Segment("x < y && y > z")[0].HTML)
}

func TestSegmentMarkupCenteredTitle(t *testing.T) {
	lines := Segment(`<p style="text-align:center">Title</p><p></p><p></p><p></p>`)
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"Title", "", ""}, htmls(lines))
	assert.Equal(t, AlignCenter, lines[0].Align)
	assert.Equal(t, 2, lines[2].Index)
}

func TestSegmentCollapsesBlankParagraphs(t *testing.T) {
	lines := Segment("<p>A</p>" + strings.Repeat("<p><span> </span></p>", 5) + "<p>B</p><p></p>")
	assert.Equal(t, []string{"A", "<span> </span>", "<span> </span>", "B", ""}, htmls(lines))
}

func TestSegmentBreaksSplitBlocks(t *testing.T) {
	lines := Segment(`<div style="color: red; TEXT-ALIGN: Right">JOHN<br>Hello.<BR />Bye.</div>`)
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"JOHN", "Hello.", "Bye."}, htmls(lines))
	for _, l := range lines {
		assert.Equal(t, AlignRight, l.Align)
	}
}

func TestSegmentKeepsInlineMarkup(t *testing.T) {
	lines := Segment(`<h2 style="text-align: left">FADE <b>IN</b> &amp; out</h2>`)
	require.Len(t, lines, 1)
	assert.Equal(t, "FADE <b>IN</b> &amp; out", lines[0].HTML)
	assert.Equal(t, AlignLeft, lines[0].Align)
	assert.Equal(t, "FADE IN &amp; out", lines[0].Text())
}

func TestSegmentWrapsInlineAndText(t *testing.T) {
	lines := Segment(`<p>Scene</p>loose &lt;text&gt;` + "\n" + `<span style="text-align:right">aside</span>`)
	assert.Equal(t, []string{
		"Scene",
		"loose &lt;text&gt;",
		"",
		`<span style="text-align: right">aside</span>`,
	}, htmls(lines))
	// wrapped elements take the alignment of the implicit block, which has none
	assert.Equal(t, AlignNone, lines[3].Align)
}

func TestSegmentMalformedMarkup(t *testing.T) {
	lines := Segment(`<p>unclosed <i>italic<p>next</b></div>`)
	require.NotEmpty(t, lines)
	var visible []string
	for _, l := range lines {
		visible = append(visible, l.Text())
	}
	assert.Equal(t, "unclosed italic|next", strings.Join(visible, "|"))
}

func TestSegmentVisibleTextMatchesBody(t *testing.T) {
	body := `<p>INT. HOUSE</p><div style="text-align:center">MARY<br>Hi.</div><li>Beat</li><blockquote>Later</blockquote>`
	var got []string
	for _, l := range Segment(body) {
		got = append(got, l.Text())
	}
	want := StripTags(breakTag.ReplaceAllString(body, ""))
	assert.Equal(t, want, strings.Join(got, ""))
}

func TestSegmentDropsUnsafeMarkup(t *testing.T) {
	body := `<p style="text-align:center" onclick="steal()">INT. ROOM<img src=x onerror="alert(document.cookie)"></p>` +
		`<script>steal()</script><p>A <b>bold</b> <a href="javascript:steal()">move</a></p>` +
		`<p style="position:fixed; text-align:left"><iframe src="https://evil.test"></iframe>End</p>`
	lines := Segment(body)

	assert.Equal(t, []string{"INT. ROOM", "A <b>bold</b> move", "End"}, htmls(lines))
	assert.Equal(t, AlignCenter, lines[0].Align)
	assert.Equal(t, AlignLeft, lines[2].Align)
	for _, l := range lines {
		assert.NotContains(t, l.HTML, "script")
		assert.NotContains(t, l.HTML, "onerror")
		assert.NotContains(t, l.HTML, "steal")
	}
}

func TestSanitizeKeepsScriptMarkup(t *testing.T) {
	out := Sanitize(`<p style="text-align:center" class="x">A <b>B</b> <em>C</em></p><script>bad()</script><div onmouseover="bad()">D</div>`)
	assert.Equal(t, `<p style="text-align: center">A <b>B</b> <em>C</em></p><div>D</div>`, out)
}

func TestSegmentDeterministic(t *testing.T) {
	body := `<p style="text-align:center">A</p><p>B<br>C</p>`
	assert.Equal(t, Segment(body), Segment(body))
}

func TestRenderMarksLines(t *testing.T) {
	out := Render(Segment("<p style=\"text-align:right\">A</p><p></p>"))
	assert.Contains(t, out, `data-line-index="0"`)
	assert.Contains(t, out, `<div class="line-body text-right">A</div>`)
	assert.Contains(t, out, `data-line-index="1"><div class="line-body text-center">&nbsp;</div>`)
}

package handlers

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/gorilla/mux"

	"scriptboard/pkg/auth"
)

var readerPage = template.Must(template.New("reader").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<article class="script" data-script-id="{{.ID}}">
<h1>{{.Title}}</h1>
{{- if .Logline}}
<p class="logline">{{.Logline}}</p>
{{- end}}
<div class="script-body">
{{- range .Lines}}
<div class="line" data-line-index="{{.Index}}"><div class="line-body {{.Class}}">{{.HTML}}</div>
{{- if .Comments}}<button class="comment-count" data-line-index="{{.Index}}">{{.Comments}}</button>{{end}}</div>
{{- end}}
</div>
{{- if .Unplaced}}
<aside class="unplaced">{{.Unplaced}} comments without a line</aside>
{{- end}}
</article>
</body>
</html>
`))

type readerLine struct {
	Index    int
	Class    string
	HTML     template.HTML
	Comments int
}

type readerData struct {
	ID       string
	Title    string
	Logline  string
	Lines    []readerLine
	Unplaced int
}

// ReaderPage renders a script with one element per line, marked with its
// index the same way segment.Render does
func (h *Handlers) ReaderPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	doc, err := h.readableScript(ctx, id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	view, err := h.comments.Load(ctx, id, auth.UserID(ctx))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	p := view.Placement()
	data := readerData{
		ID:       doc.ID,
		Title:    doc.Title,
		Lines:    make([]readerLine, len(view.Lines)),
		Unplaced: len(p.Unplaced),
	}
	if doc.Logline != nil {
		data.Logline = *doc.Logline
	}
	for i, l := range view.Lines {
		body := template.HTML(l.HTML)
		if l.HTML == "" {
			body = "&nbsp;"
		}
		data.Lines[i] = readerLine{
			Index:    l.Index,
			Class:    l.AlignClass(),
			HTML:     body,
			Comments: len(p.For(l.Index)),
		}
	}

	var buf bytes.Buffer
	if err := readerPage.Execute(&buf, data); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"scriptboard/pkg/annotation"
	"scriptboard/pkg/auth"
	"scriptboard/pkg/db"
	"scriptboard/pkg/extract"
)

// readableScript loads a script the viewer may read. Private scripts of other
// users are reported as missing.
func (h *Handlers) readableScript(ctx context.Context, id string) (*db.Script, error) {
	doc, err := h.scripts.GetScript(ctx, id)
	if err != nil {
		return nil, err
	}
	if !doc.IsPublic && doc.OwnerID != auth.UserID(ctx) {
		return nil, db.ErrDocumentNotFound
	}
	return doc, nil
}

// ownedScript loads a script the viewer owns
func (h *Handlers) ownedScript(ctx context.Context, id string) (*db.Script, error) {
	doc, err := h.readableScript(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != auth.UserID(ctx) {
		return nil, fmt.Errorf("%w: only the author can change a script", annotation.ErrForbidden)
	}
	return doc, nil
}

// rememberProfile keeps the display name of the viewer current
func (h *Handlers) rememberProfile(ctx context.Context) {
	id, ok := auth.FromContext(ctx)
	if !ok {
		return
	}
	if err := h.scripts.UpsertProfile(ctx, db.Profile{ID: id.UserID, Username: id.Name}); err != nil {
		h.log.WithError(err).WithField("user", id.UserID).Warn("failed to save profile")
	}
}

// ListScripts returns the public scripts, newest first or with ?sort=top
// most voted first
func (h *Handlers) ListScripts(w http.ResponseWriter, r *http.Request) {
	order, err := db.ParseScriptOrder(r.URL.Query().Get("sort"))
	if err != nil {
		h.respondError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	docs, err := h.scripts.ListPublicScripts(r.Context(), order)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, docs)
}

type createScriptRequest struct {
	Title    string  `json:"title"`
	Logline  *string `json:"logline"`
	Genre    *string `json:"genre"`
	Content  string  `json:"content"`
	IsPublic bool    `json:"is_public"`
}

// CreateScript creates a script from a JSON body, or from a multipart form
// whose optional file is converted to text
func (h *Handlers) CreateScript(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		in  db.NewScript
		err error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		in, err = h.scriptFromForm(w, r)
	} else {
		var req createScriptRequest
		if err = decodeJSON(r, &req); err == nil {
			in = db.NewScript{
				Title:    req.Title,
				Logline:  optional(req.Logline),
				Genre:    optional(req.Genre),
				Content:  req.Content,
				IsPublic: req.IsPublic,
			}
		}
	}
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		h.respondError(w, r, fmt.Errorf("%w: title is required", errBadRequest))
		return
	}
	if strings.TrimSpace(in.Content) == "" {
		h.respondError(w, r, fmt.Errorf("%w: paste the script or upload a file", errBadRequest))
		return
	}
	in.OwnerID = auth.UserID(ctx)

	h.rememberProfile(ctx)
	doc, err := h.scripts.CreateScript(ctx, in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.log.WithField("script", doc.ID).Info("script created")
	respondJSON(w, http.StatusCreated, doc)
}

func (h *Handlers) scriptFromForm(w http.ResponseWriter, r *http.Request) (db.NewScript, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		return db.NewScript{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}

	in := db.NewScript{
		Title:    r.FormValue("title"),
		Logline:  optional(stringPtr(r.FormValue("logline"))),
		Genre:    optional(stringPtr(r.FormValue("genre"))),
		Content:  strings.TrimSpace(r.FormValue("content")),
		IsPublic: r.FormValue("is_public") == "true",
	}

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return in, nil
	}
	if err != nil {
		return in, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	defer file.Close()

	format, err := extract.FormatFromFilename(header.Filename, header.Header.Get("Content-Type"))
	if err != nil {
		return in, err
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return in, fmt.Errorf("failed to read upload: %w", err)
	}
	text, err := extract.Extract(data, format)
	if err != nil {
		return in, err
	}
	in.Content = text
	name := header.Filename
	in.OriginalFilename = &name
	return in, nil
}

func stringPtr(s string) *string { return &s }

// optional trims s and drops it when blank
func optional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

type scriptResponse struct {
	*db.Script
	VotedByViewer bool `json:"voted_by_current_viewer"`
}

// GetScript returns a script the viewer may read
func (h *Handlers) GetScript(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	doc, err := h.readableScript(ctx, mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	resp := scriptResponse{Script: doc}
	if viewer := auth.UserID(ctx); viewer != "" {
		if resp.VotedByViewer, err = h.scripts.HasVoted(ctx, doc.ID, viewer); err != nil {
			h.respondError(w, r, err)
			return
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// VoteScript toggles the viewer's vote on a script
func (h *Handlers) VoteScript(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if _, err := h.readableScript(ctx, id); err != nil {
		h.respondError(w, r, err)
		return
	}
	st, err := h.scripts.ToggleVote(ctx, id, auth.UserID(ctx))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// RecordView counts one read of a script. Anonymous reads count too.
func (h *Handlers) RecordView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if _, err := h.readableScript(ctx, id); err != nil {
		h.respondError(w, r, err)
		return
	}
	views, err := h.scripts.RecordView(ctx, id, auth.UserID(ctx))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"views_count": views})
}

// updateScriptResponse carries the number of comments left without a line.
// Orphaned is null when the count could not be taken.
type updateScriptResponse struct {
	*db.Script
	Orphaned *int `json:"orphaned"`
}

// UpdateScript applies a partial update. When the content changes, comments
// are checked against the new lines and live readers are told to reload.
func (h *Handlers) UpdateScript(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if _, err := h.ownedScript(ctx, id); err != nil {
		h.respondError(w, r, err)
		return
	}

	var updates db.ScriptUpdate
	if err := decodeJSON(r, &updates); err != nil {
		h.respondError(w, r, err)
		return
	}
	if updates.Title != nil && strings.TrimSpace(*updates.Title) == "" {
		h.respondError(w, r, fmt.Errorf("%w: title is required", errBadRequest))
		return
	}

	doc, err := h.scripts.UpdateScript(ctx, id, &updates)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	resp := updateScriptResponse{Script: doc}
	if updates.Content != nil {
		// the update is already saved
		orphaned, err := h.comments.Reconcile(ctx, id, auth.UserID(ctx))
		if err != nil {
			h.log.WithError(err).WithField("script", id).Warn("failed to count orphaned comments")
		} else {
			resp.Orphaned = &orphaned
		}
	} else {
		none := 0
		resp.Orphaned = &none
	}
	respondJSON(w, http.StatusOK, resp)
}

// DeleteScript removes a script with its comments and versions
func (h *Handlers) DeleteScript(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if _, err := h.ownedScript(ctx, id); err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.comments.DeleteDocument(ctx, id, h.scripts.DeleteScript); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListVersions returns the saved versions of a script, newest first
func (h *Handlers) ListVersions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if _, err := h.ownedScript(ctx, id); err != nil {
		h.respondError(w, r, err)
		return
	}
	versions, err := h.scripts.ListVersions(ctx, id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, versions)
}

type lineResponse struct {
	Index    int    `json:"index"`
	HTML     string `json:"html"`
	Align    string `json:"align,omitempty"`
	Comments int    `json:"comments"`
}

type linesResponse struct {
	Lines    []lineResponse `json:"lines"`
	Orphaned int            `json:"orphaned"`
	Unplaced int            `json:"unplaced"`
}

// GetLines returns the segmented lines of a script with the number of
// comments displayed at each
func (h *Handlers) GetLines(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if _, err := h.readableScript(ctx, id); err != nil {
		h.respondError(w, r, err)
		return
	}
	view, err := h.comments.Load(ctx, id, auth.UserID(ctx))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	p := view.Placement()
	resp := linesResponse{
		Lines:    make([]lineResponse, len(view.Lines)),
		Orphaned: p.Orphaned,
		Unplaced: len(p.Unplaced),
	}
	for i, l := range view.Lines {
		resp.Lines[i] = lineResponse{
			Index:    l.Index,
			HTML:     l.HTML,
			Align:    string(l.Align),
			Comments: len(p.For(l.Index)),
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetReaders returns the users currently reading a script
func (h *Handlers) GetReaders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if _, err := h.readableScript(ctx, id); err != nil {
		h.respondError(w, r, err)
		return
	}
	rm, ok := h.roomManager.Room(id)
	if !ok {
		respondJSON(w, http.StatusOK, []interface{}{})
		return
	}
	respondJSON(w, http.StatusOK, rm.GetUsers())
}

func lineParam(r *http.Request) (int, bool, error) {
	v := r.URL.Query().Get("line")
	if v == "" {
		return 0, false, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil || i < 0 {
		return 0, false, fmt.Errorf("%w: line must be a non-negative integer", errBadRequest)
	}
	return i, true, nil
}

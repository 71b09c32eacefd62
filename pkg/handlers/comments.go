package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"scriptboard/pkg/auth"
	"scriptboard/pkg/selection"
)

// ListComments returns the comments of a script, or of one line with ?line=N
func (h *Handlers) ListComments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	line, byLine, err := lineParam(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if _, err := h.readableScript(ctx, id); err != nil {
		h.respondError(w, r, err)
		return
	}
	view, err := h.comments.Load(ctx, id, auth.UserID(ctx))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if byLine {
		respondJSON(w, http.StatusOK, view.Index.ListFor(line))
		return
	}
	respondJSON(w, http.StatusOK, view.Index.All())
}

type createCommentRequest struct {
	LineIndex *int              `json:"line_index"`
	Selection *selectionMessage `json:"selection"`
	Body      string            `json:"body"`
}

// target returns where the comment attaches, or nil when the request names
// neither a line nor a selection that resolves to one
func (req createCommentRequest) target() *selection.Target {
	switch {
	case req.LineIndex != nil:
		t := selection.LineTarget(*req.LineIndex)
		return &t
	case req.Selection != nil:
		rng, ok := selection.Resolve(req.Selection.selection())
		if !ok {
			return nil
		}
		t := selection.RangeTarget(rng)
		return &t
	default:
		return nil
	}
}

// CreateComment attaches a comment to a line of a script
func (h *Handlers) CreateComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	var req createCommentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if _, err := h.readableScript(ctx, id); err != nil {
		h.respondError(w, r, err)
		return
	}

	h.rememberProfile(ctx)
	a, err := h.comments.Add(ctx, id, req.target(), req.Body, auth.UserID(ctx))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, a)
}

type editCommentResponse struct {
	ID        string     `json:"id"`
	UpdatedAt *time.Time `json:"updated_at"`
}

// UpdateComment replaces the body of a comment written by the viewer
func (h *Handlers) UpdateComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Body string `json:"body"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	a, err := h.comments.Edit(ctx, mux.Vars(r)["id"], auth.UserID(ctx), req.Body)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, editCommentResponse{ID: a.ID, UpdatedAt: a.UpdatedAt})
}

// DeleteComment removes a comment written by the viewer
func (h *Handlers) DeleteComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.comments.Remove(ctx, mux.Vars(r)["id"], auth.UserID(ctx)); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type likeResponse struct {
	LikesCount    int  `json:"likes_count"`
	LikedByViewer bool `json:"liked_by_current_viewer"`
}

// LikeComment toggles the viewer's like on a comment
func (h *Handlers) LikeComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	st, err := h.comments.ToggleLike(ctx, mux.Vars(r)["id"], auth.UserID(ctx))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, likeResponse{LikesCount: st.LikesCount, LikedByViewer: st.LikedByViewer})
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"scriptboard/pkg/annotation"
	"scriptboard/pkg/auth"
	"scriptboard/pkg/db"
	"scriptboard/pkg/extract"
	"scriptboard/pkg/room"
	"scriptboard/pkg/selection"
)

// Handlers contains all HTTP and WebSocket handlers
type Handlers struct {
	roomManager *room.RoomManager
	scripts     db.IScriptStore
	comments    *annotation.Service
	maxUpload   int64
	log         *logrus.Entry
}

// NewHandlers creates a new handlers instance
func NewHandlers(roomManager *room.RoomManager, scripts db.IScriptStore, comments *annotation.Service, maxUpload int64) *Handlers {
	return &Handlers{
		roomManager: roomManager,
		scripts:     scripts,
		comments:    comments,
		maxUpload:   maxUpload,
		log:         logrus.WithField("component", "server"),
	}
}

// errBadRequest marks client input that could not be decoded
var errBadRequest = errors.New("invalid request")

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, annotation.ErrInvalidTarget):
		return http.StatusUnprocessableEntity
	case errors.Is(err, annotation.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, annotation.ErrNotFound), errors.Is(err, db.ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrNoIdentity):
		return http.StatusUnauthorized
	case errors.Is(err, annotation.ErrEmptyBody),
		errors.Is(err, errBadRequest),
		errors.Is(err, extract.ErrUnsupportedFormat),
		errors.Is(err, extract.ErrNoText):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// respondError writes err as {"error": ...}. Unexpected errors are logged and
// hidden from the client.
func (h *Handlers) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.log.WithError(err).WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path}).Error("request failed")
		msg = "internal error"
	}
	respondJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errBadRequest
	}
	return nil
}

// Health reports liveness
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// selectionMessage is a selection as reported by the reader page: the line
// markers found above each boundary, or null when a boundary lies outside
// every line.
type selectionMessage struct {
	AnchorLine *int   `json:"anchor_line"`
	FocusLine  *int   `json:"focus_line"`
	Text       string `json:"text"`
	Collapsed  bool   `json:"collapsed"`
}

func marker(i *int) selection.Node {
	if i == nil {
		return selection.Marker(-1)
	}
	return selection.Marker(*i)
}

func (m selectionMessage) selection() selection.Selection {
	return selection.Selection{
		Anchor:    marker(m.AnchorLine),
		Focus:     marker(m.FocusLine),
		Text:      m.Text,
		Collapsed: m.Collapsed,
	}
}

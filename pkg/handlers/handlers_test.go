package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scriptboard/pkg/annotation"
	"scriptboard/pkg/auth"
	"scriptboard/pkg/db"
	"scriptboard/pkg/extract"
	"scriptboard/pkg/room"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{annotation.ErrInvalidTarget, http.StatusUnprocessableEntity},
		{annotation.ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("%w: only the author can change a script", annotation.ErrForbidden), http.StatusForbidden},
		{annotation.ErrNotFound, http.StatusNotFound},
		{db.ErrDocumentNotFound, http.StatusNotFound},
		{auth.ErrNoIdentity, http.StatusUnauthorized},
		{annotation.ErrEmptyBody, http.StatusBadRequest},
		{errBadRequest, http.StatusBadRequest},
		{extract.ErrUnsupportedFormat, http.StatusBadRequest},
		{extract.ErrNoText, http.StatusBadRequest},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

// unlistedComments fails every comment listing
type unlistedComments struct {
	*db.MemoryStore
}

func (unlistedComments) ListAnnotations(ctx context.Context, documentID string) ([]*annotation.Annotation, error) {
	return nil, errors.New("connection reset")
}

func TestUpdateScriptSurvivesFailedOrphanCount(t *testing.T) {
	store := db.NewMemoryStore()
	svc := annotation.NewService(unlistedComments{store}, store, store)
	rm := room.NewRoomManager(svc)
	svc.SetNotifier(rm)
	h := NewHandlers(rm, store, svc, 1<<20)

	ctx := context.Background()
	doc, err := store.CreateScript(ctx, db.NewScript{OwnerID: "writer", Title: "Pilot", Content: "one\ntwo", IsPublic: true})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPatch, "/api/scripts/"+doc.ID, strings.NewReader(`{"content":"one"}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{UserID: "writer", Name: "Writer"}))
	req = mux.SetURLVars(req, map[string]string{"id": doc.ID})
	rec := httptest.NewRecorder()

	h.UpdateScript(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "one", resp["content"])
	assert.Contains(t, resp, "orphaned")
	assert.Nil(t, resp["orphaned"])

	body, err := store.DocumentBody(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "one", *body)
}

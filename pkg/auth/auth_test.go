package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	a := New("secret")

	tok, err := a.Issue("user-1", "Ada", time.Hour)
	require.NoError(t, err)

	id, err := a.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "user-1", Name: "Ada"}, id)
}

func TestVerifyRejects(t *testing.T) {
	a := New("secret")
	other, err := New("other").Issue("user-1", "", time.Hour)
	require.NoError(t, err)

	past := New("secret")
	past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := past.Issue("user-1", "", time.Hour)
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": other,
		"expired":      expired,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := a.Verify(tok)
			assert.ErrorIs(t, err, ErrNoIdentity)
		})
	}
}

func TestNameDefaultsToSubject(t *testing.T) {
	a := New("secret")
	tok, err := a.Issue("user-2", "", time.Hour)
	require.NoError(t, err)

	id, err := a.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-2", id.Name)
}

func TestMiddleware(t *testing.T) {
	a := New("secret")
	tok, err := a.Issue("user-1", "Ada", time.Hour)
	require.NoError(t, err)

	h := a.Optional(Required(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(UserID(r.Context())))
	}))

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		status int
		body   string
	}{
		{"header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }, http.StatusOK, "user-1"},
		{"query", func(r *http.Request) { r.URL.RawQuery = "token=" + tok }, http.StatusOK, "user-1"},
		{"anonymous", func(r *http.Request) {}, http.StatusUnauthorized, ""},
		{"bad token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

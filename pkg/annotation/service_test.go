package annotation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scriptboard/pkg/annotation"
	"scriptboard/pkg/db"
	"scriptboard/pkg/selection"
)

type recorder struct {
	mu     sync.Mutex
	events []annotation.Event
}

func (r *recorder) Publish(documentID string, ev annotation.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	store  *db.MemoryStore
	svc    *annotation.Service
	events *recorder
	script *db.Script
}

func setup(t *testing.T, content string) *fixture {
	t.Helper()
	store := db.NewMemoryStore()
	events := &recorder{}
	svc := annotation.NewService(store, store, store, annotation.WithNotifier(events))

	doc, err := store.CreateScript(context.Background(), db.NewScript{
		OwnerID:  "writer",
		Title:    "Pilot",
		Content:  content,
		IsPublic: true,
	})
	require.NoError(t, err)
	return &fixture{store: store, svc: svc, events: events, script: doc}
}

func line(i int) *selection.Target {
	t := selection.LineTarget(i)
	return &t
}

func TestCommentOnSceneLine(t *testing.T) {
	f := setup(t, "INT. ROOM - DAY\n\nJohn enters.")
	ctx := context.Background()

	a, err := f.svc.Add(ctx, f.script.ID, line(2), "  Nice entrance  ", "reader")
	require.NoError(t, err)
	assert.Equal(t, 2, a.LineIndex)
	assert.Equal(t, "Nice entrance", a.Body)
	assert.False(t, a.Edited())

	view, err := f.svc.Load(ctx, f.script.ID, "reader")
	require.NoError(t, err)
	require.Len(t, view.Lines, 3)
	assert.Equal(t, 1, view.Index.CountFor(2))
	assert.Equal(t, 0, view.Index.CountFor(0))
	assert.Equal(t, []string{annotation.EventAdded}, f.events.types())
}

func TestAddRequiresTarget(t *testing.T) {
	f := setup(t, "INT. ROOM - DAY\n\nJohn enters.")
	ctx := context.Background()

	_, err := f.svc.Add(ctx, f.script.ID, nil, "hello", "reader")
	assert.ErrorIs(t, err, annotation.ErrInvalidTarget)

	_, err = f.svc.Add(ctx, f.script.ID, line(3), "hello", "reader")
	assert.ErrorIs(t, err, annotation.ErrInvalidTarget)

	_, err = f.svc.Add(ctx, f.script.ID, line(0), "   ", "reader")
	assert.ErrorIs(t, err, annotation.ErrEmptyBody)

	_, err = f.svc.Add(ctx, f.script.ID, line(0), "hello", "")
	assert.ErrorIs(t, err, annotation.ErrForbidden)

	list, err := f.store.ListAnnotations(ctx, f.script.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, f.events.types())
}

func TestAddFromResolvedSelection(t *testing.T) {
	f := setup(t, "INT. ROOM - DAY\n\nJohn enters.")

	var r selection.Reader
	r = r.PointerDown().PointerUp(selection.Selection{
		Anchor: selection.Marker(2),
		Focus:  selection.Marker(0),
		Text:   "ROOM - DAY\n\nJohn",
	})
	target, ok := r.Target()
	require.True(t, ok)

	a, err := f.svc.Add(context.Background(), f.script.ID, &target, "whole opening", "reader")
	require.NoError(t, err)
	assert.Equal(t, 0, a.LineIndex)
}

func TestOnlyAuthorEdits(t *testing.T) {
	f := setup(t, "INT. ROOM - DAY\n\nJohn enters.")
	ctx := context.Background()
	edited := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	svc := annotation.NewService(f.store, f.store, f.store, annotation.WithClock(func() time.Time { return edited }))

	a, err := svc.Add(ctx, f.script.ID, line(0), "first", "author")
	require.NoError(t, err)

	_, err = svc.Edit(ctx, a.ID, "someone-else", "hijacked")
	assert.ErrorIs(t, err, annotation.ErrForbidden)
	err = svc.Remove(ctx, a.ID, "someone-else")
	assert.ErrorIs(t, err, annotation.ErrForbidden)

	stored, err := f.store.GetAnnotation(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", stored.Body)
	assert.Nil(t, stored.UpdatedAt)

	updated, err := svc.Edit(ctx, a.ID, "author", "second")
	require.NoError(t, err)
	assert.Equal(t, "second", updated.Body)
	require.NotNil(t, updated.UpdatedAt)
	assert.True(t, updated.UpdatedAt.Equal(edited))
	assert.True(t, updated.Edited())

	_, err = svc.Edit(ctx, a.ID, "author", " ")
	assert.ErrorIs(t, err, annotation.ErrEmptyBody)

	require.NoError(t, svc.Remove(ctx, a.ID, "author"))
	_, err = f.store.GetAnnotation(ctx, a.ID)
	assert.ErrorIs(t, err, annotation.ErrNotFound)

	_, err = svc.Edit(ctx, "missing", "author", "x")
	assert.ErrorIs(t, err, annotation.ErrNotFound)
}

func TestToggleLikeIsItsOwnInverse(t *testing.T) {
	f := setup(t, "INT. ROOM - DAY\n\nJohn enters.")
	ctx := context.Background()

	a, err := f.svc.Add(ctx, f.script.ID, line(0), "great", "author")
	require.NoError(t, err)

	st, err := f.svc.ToggleLike(ctx, a.ID, "fan")
	require.NoError(t, err)
	assert.Equal(t, 1, st.LikesCount)
	assert.True(t, st.LikedByViewer)

	view, err := f.svc.Load(ctx, f.script.ID, "fan")
	require.NoError(t, err)
	got := view.Index.ListFor(0)[0]
	assert.Equal(t, 1, got.LikesCount)
	assert.True(t, got.LikedByViewer)

	st, err = f.svc.ToggleLike(ctx, a.ID, "fan")
	require.NoError(t, err)
	assert.Equal(t, 0, st.LikesCount)
	assert.False(t, st.LikedByViewer)

	_, err = f.svc.ToggleLike(ctx, a.ID, "")
	assert.ErrorIs(t, err, annotation.ErrForbidden)
	_, err = f.svc.ToggleLike(ctx, "missing", "fan")
	assert.ErrorIs(t, err, annotation.ErrNotFound)
}

func TestConcurrentLikesFromDifferentReaders(t *testing.T) {
	f := setup(t, "INT. ROOM - DAY")
	ctx := context.Background()

	a, err := f.svc.Add(ctx, f.script.ID, line(0), "great", "author")
	require.NoError(t, err)

	readers := []string{"r1", "r2", "r3", "r4", "r5", "r6", "r7", "r8"}
	var wg sync.WaitGroup
	for _, r := range readers {
		wg.Add(1)
		go func(r string) {
			defer wg.Done()
			_, err := f.svc.ToggleLike(ctx, a.ID, r)
			assert.NoError(t, err)
		}(r)
	}
	wg.Wait()

	view, err := f.svc.Load(ctx, f.script.ID, "r3")
	require.NoError(t, err)
	got := view.Index.ListFor(0)[0]
	assert.Equal(t, len(readers), got.LikesCount)
	assert.True(t, got.LikedByViewer)
}

func TestReconcileCountsOrphans(t *testing.T) {
	f := setup(t, "one\ntwo\nthree\nfour")
	ctx := context.Background()

	_, err := f.svc.Add(ctx, f.script.ID, line(1), "keeps its line", "reader")
	require.NoError(t, err)
	orphan, err := f.svc.Add(ctx, f.script.ID, line(3), "loses its line", "reader")
	require.NoError(t, err)

	shorter := "one\ntwo"
	_, err = f.store.UpdateScript(ctx, f.script.ID, &db.ScriptUpdate{Content: &shorter})
	require.NoError(t, err)

	n, err := f.svc.Reconcile(ctx, f.script.ID, "writer")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	view, err := f.svc.Load(ctx, f.script.ID, "")
	require.NoError(t, err)
	p := view.Placement()
	assert.Equal(t, 1, p.Orphaned)
	shown := p.For(1)
	require.Len(t, shown, 2)
	assert.Equal(t, orphan.ID, shown[1].ID)
	assert.Equal(t, 1, view.Index.CountFor(3))

	types := f.events.types()
	assert.Equal(t, annotation.EventDocumentUpdated, types[len(types)-1])
}

func TestScriptWithoutContent(t *testing.T) {
	f := setup(t, "")
	ctx := context.Background()

	view, err := f.svc.Load(ctx, f.script.ID, "")
	require.NoError(t, err)
	assert.Empty(t, view.Lines)

	_, err = f.svc.Add(ctx, f.script.ID, line(0), "hello", "reader")
	assert.ErrorIs(t, err, annotation.ErrInvalidTarget)
}

func TestViewFollowsEvents(t *testing.T) {
	f := setup(t, "INT. ROOM - DAY\n\nJohn enters.")
	ctx := context.Background()

	view, err := f.svc.Load(ctx, f.script.ID, "")
	require.NoError(t, err)

	a, err := f.svc.Add(ctx, f.script.ID, line(2), "hi", "author")
	require.NoError(t, err)
	_, err = f.svc.ToggleLike(ctx, a.ID, "fan")
	require.NoError(t, err)

	for _, ev := range f.events.events {
		view.Apply(ev)
	}
	require.Equal(t, 1, view.Index.CountFor(2))
	got := view.Index.ListFor(2)[0]
	assert.Equal(t, 1, got.LikesCount)
	assert.True(t, got.LikedBy("fan"))

	require.NoError(t, f.svc.Remove(ctx, a.ID, "author"))
	view.Apply(f.events.events[len(f.events.events)-1])
	assert.Equal(t, 0, view.Index.CountFor(2))
}

// separateLikes keeps likes in the memory store but, like the Redis store,
// has to be told when a comment goes away
type separateLikes struct {
	*db.MemoryStore
	mu        sync.Mutex
	forgotten []string
}

func (l *separateLikes) Forget(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.forgotten = append(l.forgotten, id)
	return nil
}

func TestDeleteDocumentForgetsLikes(t *testing.T) {
	store := db.NewMemoryStore()
	likes := &separateLikes{MemoryStore: store}
	svc := annotation.NewService(store, likes, store)
	ctx := context.Background()

	doc, err := store.CreateScript(ctx, db.NewScript{OwnerID: "writer", Title: "Pilot", Content: "a\nb", IsPublic: true})
	require.NoError(t, err)
	first, err := svc.Add(ctx, doc.ID, line(0), "one", "reader")
	require.NoError(t, err)
	second, err := svc.Add(ctx, doc.ID, line(1), "two", "reader")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteDocument(ctx, doc.ID, store.DeleteScript))
	assert.ElementsMatch(t, []string{first.ID, second.ID}, likes.forgotten)
	_, err = store.GetScript(ctx, doc.ID)
	assert.ErrorIs(t, err, db.ErrDocumentNotFound)

	// nothing is forgotten when the delete itself fails
	likes.forgotten = nil
	err = svc.DeleteDocument(ctx, doc.ID, store.DeleteScript)
	assert.ErrorIs(t, err, db.ErrDocumentNotFound)
	assert.Empty(t, likes.forgotten)
}

// brokenComments fails every listing
type brokenComments struct {
	*db.MemoryStore
}

func (brokenComments) ListAnnotations(ctx context.Context, documentID string) ([]*annotation.Annotation, error) {
	return nil, errors.New("connection reset")
}

func TestReconcileTellsReadersWhenCountFails(t *testing.T) {
	store := db.NewMemoryStore()
	events := &recorder{}
	svc := annotation.NewService(brokenComments{store}, store, store, annotation.WithNotifier(events))

	doc, err := store.CreateScript(context.Background(), db.NewScript{OwnerID: "writer", Title: "Pilot", Content: "a", IsPublic: true})
	require.NoError(t, err)

	_, err = svc.Reconcile(context.Background(), doc.ID, "writer")
	assert.Error(t, err)
	assert.Equal(t, []string{annotation.EventDocumentUpdated}, events.types())
}

package annotation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"scriptboard/pkg/segment"
	"scriptboard/pkg/selection"
)

// Service applies reader actions to the annotations of a script.
type Service struct {
	store  Store
	likes  LikeStore
	docs   DocumentSource
	notify Notifier
	now    func() time.Time
	log    *logrus.Entry
}

// likeForgetter is implemented by like stores that keep likes apart from the
// comments and must be told when one is deleted.
type likeForgetter interface {
	Forget(ctx context.Context, annotationID string) error
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier publishes every confirmed write to n.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notify = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a service over the given stores.
func NewService(store Store, likes LikeStore, docs DocumentSource, opts ...Option) *Service {
	s := &Service{
		store: store,
		likes: likes,
		docs:  docs,
		now:   time.Now,
		log:   logrus.WithField("component", "annotation"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetNotifier replaces the notifier after construction, for wiring cycles
// between the service and the component that fans events out.
func (s *Service) SetNotifier(n Notifier) {
	s.notify = n
}

func (s *Service) lines(ctx context.Context, documentID string) ([]segment.Line, error) {
	body, err := s.docs.DocumentBody(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, nil
	}
	return segment.Segment(*body), nil
}

// Load segments the script and joins its annotations against the lines, from
// the point of view of viewerID (which may be empty).
func (s *Service) Load(ctx context.Context, documentID, viewerID string) (*View, error) {
	lines, err := s.lines(ctx, documentID)
	if err != nil {
		return nil, err
	}

	list, err := s.store.ListAnnotations(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	if len(list) > 0 {
		ids := make([]string, len(list))
		for i, a := range list {
			ids[i] = a.ID
		}
		summaries, err := s.likes.LikeSummaries(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to load likes: %w", err)
		}
		for _, a := range list {
			if sum, ok := summaries[a.ID]; ok {
				a.LikesCount = sum.Count
				a.Likers = sum.Likers
			}
			a.LikedByViewer = a.LikedBy(viewerID)
		}
	}

	return &View{DocumentID: documentID, Lines: lines, Index: Build(list)}, nil
}

// Add attaches a new annotation to the focused line of target. A nil target
// means the reader has not picked a line.
func (s *Service) Add(ctx context.Context, documentID string, target *selection.Target, body, authorID string) (*Annotation, error) {
	if target == nil {
		return nil, ErrInvalidTarget
	}
	if authorID == "" {
		return nil, ErrForbidden
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyBody
	}

	lines, err := s.lines(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if target.Line < 0 || target.Line >= len(lines) {
		return nil, ErrInvalidTarget
	}

	a, err := s.store.CreateAnnotation(ctx, NewAnnotation{
		DocumentID: documentID,
		LineIndex:  target.Line,
		Body:       body,
		AuthorID:   authorID,
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"document": documentID, "line": a.LineIndex, "comment": a.ID}).Debug("comment added")
	s.publish(documentID, Event{Type: EventAdded, Annotation: a, ActorID: authorID})
	return a, nil
}

// Edit replaces the body of an annotation. Only its author may edit it.
func (s *Service) Edit(ctx context.Context, id, callerID, body string) (*Annotation, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyBody
	}
	a, err := s.store.GetAnnotation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.AuthoredBy(callerID) {
		return nil, ErrForbidden
	}

	updated, err := s.store.UpdateAnnotationBody(ctx, id, callerID, body, s.now())
	if err != nil {
		return nil, err
	}
	s.publish(updated.DocumentID, Event{Type: EventEdited, Annotation: updated, ActorID: callerID})
	return updated, nil
}

// Remove deletes an annotation. Only its author may delete it.
func (s *Service) Remove(ctx context.Context, id, callerID string) error {
	a, err := s.store.GetAnnotation(ctx, id)
	if err != nil {
		return err
	}
	if !a.AuthoredBy(callerID) {
		return ErrForbidden
	}
	if err := s.store.DeleteAnnotation(ctx, id, callerID); err != nil {
		return err
	}
	if f, ok := s.likes.(likeForgetter); ok {
		if err := f.Forget(ctx, id); err != nil {
			s.log.WithError(err).WithField("comment", id).Warn("failed to drop likes of deleted comment")
		}
	}
	s.publish(a.DocumentID, Event{Type: EventDeleted, ID: id, ActorID: callerID})
	return nil
}

// ToggleLike likes the annotation for userID, or removes the like if there is
// one. Any signed-in reader may toggle.
func (s *Service) ToggleLike(ctx context.Context, id, userID string) (LikeState, error) {
	if userID == "" {
		return LikeState{}, ErrForbidden
	}
	a, err := s.store.GetAnnotation(ctx, id)
	if err != nil {
		return LikeState{}, err
	}
	st, err := s.likes.ToggleLike(ctx, id, userID)
	if err != nil {
		return LikeState{}, err
	}
	s.publish(a.DocumentID, Event{Type: EventLikeChanged, Like: &st, ActorID: userID})
	return st, nil
}

// Reconcile reports how many annotations of the script no longer have a line
// after its body changed, and tells live readers to segment it again.
// Readers are told even when the count fails.
func (s *Service) Reconcile(ctx context.Context, documentID, actorID string) (int, error) {
	orphaned, err := s.countOrphans(ctx, documentID)
	s.publish(documentID, Event{Type: EventDocumentUpdated, ActorID: actorID, Orphaned: orphaned})
	return orphaned, err
}

func (s *Service) countOrphans(ctx context.Context, documentID string) (int, error) {
	lines, err := s.lines(ctx, documentID)
	if err != nil {
		return 0, err
	}
	list, err := s.store.ListAnnotations(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to list comments: %w", err)
	}
	orphaned := len(Build(list).Orphans(len(lines)))
	if orphaned > 0 {
		s.log.WithFields(logrus.Fields{"document": documentID, "orphaned": orphaned, "lines": len(lines)}).Info("comments left without a line")
	}
	return orphaned, nil
}

// DeleteDocument deletes a script through del. When likes are kept apart
// from the comments, the likes of every deleted comment are dropped after.
func (s *Service) DeleteDocument(ctx context.Context, documentID string, del func(context.Context, string) error) error {
	f, separate := s.likes.(likeForgetter)
	var ids []string
	if separate {
		list, err := s.store.ListAnnotations(ctx, documentID)
		if err != nil {
			return fmt.Errorf("failed to list comments: %w", err)
		}
		for _, a := range list {
			ids = append(ids, a.ID)
		}
	}

	if err := del(ctx, documentID); err != nil {
		return err
	}
	for _, id := range ids {
		if err := f.Forget(ctx, id); err != nil {
			s.log.WithError(err).WithField("comment", id).Warn("failed to drop likes of deleted comment")
		}
	}
	return nil
}

func (s *Service) publish(documentID string, ev Event) {
	if s.notify == nil {
		return
	}
	ev.DocumentID = documentID
	s.notify.Publish(documentID, ev)
}

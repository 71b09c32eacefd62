// Package annotation anchors reader comments to the lines of a segmented
// script and enforces who may change them.
package annotation

import (
	"context"
	"strings"
	"time"
)

// Annotation is a comment attached to one line of a script.
type Annotation struct {
	ID                string     `json:"id"`
	DocumentID        string     `json:"document_id"`
	LineIndex         int        `json:"line_index"`
	Body              string     `json:"body"`
	AuthorID          *string    `json:"author_id"`
	AuthorDisplayName *string    `json:"author_display_name"`
	AuthorAvatarURL   *string    `json:"author_avatar_url"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         *time.Time `json:"updated_at"`
	LikesCount        int        `json:"likes_count"`
	LikedByViewer     bool       `json:"liked_by_current_viewer"`

	// Likers is the set of users that like the annotation.
	Likers []string `json:"-"`
}

// IsReply reports whether the body addresses another participant ("@name ...").
// Replies are a display convention only; they are not linked to a parent.
func IsReply(body string) bool {
	return strings.HasPrefix(strings.TrimSpace(body), "@")
}

// IsReply reports whether the annotation is displayed as a reply.
func (a *Annotation) IsReply() bool {
	return IsReply(a.Body)
}

// Edited reports whether the body changed after creation.
func (a *Annotation) Edited() bool {
	return a.UpdatedAt != nil && !a.UpdatedAt.Equal(a.CreatedAt)
}

// AuthoredBy reports whether userID wrote the annotation. Annotations whose
// author is gone belong to nobody.
func (a *Annotation) AuthoredBy(userID string) bool {
	return userID != "" && a.AuthorID != nil && *a.AuthorID == userID
}

// LikedBy reports whether userID is among the likers.
func (a *Annotation) LikedBy(userID string) bool {
	if userID == "" {
		return false
	}
	for _, u := range a.Likers {
		if u == userID {
			return true
		}
	}
	return false
}

// LikeState is the like summary of one annotation as seen by one viewer.
type LikeState struct {
	AnnotationID  string `json:"annotation_id"`
	LikesCount    int    `json:"likes_count"`
	LikedByViewer bool   `json:"liked_by_current_viewer"`
}

// LikeSummary is the persisted like data of one annotation.
type LikeSummary struct {
	Count  int
	Likers []string
}

// NewAnnotation is the input of a create.
type NewAnnotation struct {
	DocumentID string
	LineIndex  int
	Body       string
	AuthorID   string
}

// Store persists annotations.
type Store interface {
	ListAnnotations(ctx context.Context, documentID string) ([]*Annotation, error)
	GetAnnotation(ctx context.Context, id string) (*Annotation, error)
	CreateAnnotation(ctx context.Context, in NewAnnotation) (*Annotation, error)
	// UpdateAnnotationBody rewrites the body of an annotation written by authorID.
	UpdateAnnotationBody(ctx context.Context, id, authorID, body string, at time.Time) (*Annotation, error)
	// DeleteAnnotation removes an annotation written by authorID.
	DeleteAnnotation(ctx context.Context, id, authorID string) error
}

// LikeStore persists likes. ToggleLike must be atomic with respect to
// concurrent toggles by other users: the count is never computed in Go from
// a value read earlier.
type LikeStore interface {
	ToggleLike(ctx context.Context, annotationID, userID string) (LikeState, error)
	LikeSummaries(ctx context.Context, annotationIDs []string) (map[string]LikeSummary, error)
}

// DocumentSource reads the current body of a script. A nil body means the
// script has no content yet.
type DocumentSource interface {
	DocumentBody(ctx context.Context, documentID string) (*string, error)
}

// Event is published after a successful write.
type Event struct {
	Type       string      `json:"type"`
	DocumentID string      `json:"document_id"`
	Annotation *Annotation `json:"annotation,omitempty"`
	Like       *LikeState  `json:"like,omitempty"`
	ID         string      `json:"id,omitempty"`
	// ActorID is the user whose write produced the event. For like events,
	// Like.LikedByViewer is from the actor's point of view.
	ActorID string `json:"actor_id,omitempty"`
	// Orphaned is set on document updates.
	Orphaned int `json:"orphaned,omitempty"`
}

// Event types.
const (
	EventAdded           = "comment_added"
	EventEdited          = "comment_edited"
	EventDeleted         = "comment_deleted"
	EventLikeChanged     = "like_changed"
	EventDocumentUpdated = "document_updated"
)

// Notifier receives events for live readers of a script.
type Notifier interface {
	Publish(documentID string, ev Event)
}

package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"scriptboard/pkg/annotation"
)

// ErrDocumentNotFound is returned when no script has the requested id.
var ErrDocumentNotFound = errors.New("script not found")

// Script is a written work and its current body
type Script struct {
	ID               string    `json:"id"`
	OwnerID          string    `json:"user_id"`
	Title            string    `json:"title"`
	Logline          *string   `json:"logline"`
	Genre            *string   `json:"genre"`
	Content          *string   `json:"content"`
	IsPublic         bool      `json:"is_public"`
	OriginalFilename *string   `json:"original_filename,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	Version          int       `json:"version"`
	UpvotesCount     int       `json:"upvotes_count"`
	ViewsCount       int       `json:"views_count"`
}

// NewScript is the input of CreateScript
type NewScript struct {
	OwnerID          string
	Title            string
	Logline          *string
	Genre            *string
	Content          string
	IsPublic         bool
	OriginalFilename *string
}

// ScriptUpdate represents partial updates to a script. Pointer fields
// allow distinguishing between "not provided" (nil) and "set to empty".
type ScriptUpdate struct {
	Title    *string `json:"title,omitempty"`
	Logline  *string `json:"logline,omitempty"`
	Genre    *string `json:"genre,omitempty"`
	Content  *string `json:"content,omitempty"`
	IsPublic *bool   `json:"is_public,omitempty"`
}

// Empty reports whether the update changes nothing
func (u *ScriptUpdate) Empty() bool {
	return u.Title == nil && u.Logline == nil && u.Genre == nil && u.Content == nil && u.IsPublic == nil
}

// ScriptVersion is a snapshot of a script taken before its content changed
type ScriptVersion struct {
	ScriptID      string    `json:"script_id"`
	VersionNumber int       `json:"version_number"`
	Title         string    `json:"title"`
	Logline       *string   `json:"logline"`
	Genre         *string   `json:"genre"`
	Content       *string   `json:"content"`
	CreatedAt     time.Time `json:"created_at"`
}

// VoteState is the vote count of a script as seen by one reader
type VoteState struct {
	UpvotesCount  int  `json:"upvotes_count"`
	VotedByViewer bool `json:"voted_by_current_viewer"`
}

// ScriptOrder selects how public scripts are listed
type ScriptOrder string

const (
	OrderNewest   ScriptOrder = "new"
	OrderTopVoted ScriptOrder = "top"
)

// ParseScriptOrder reads a ?sort= value; empty means newest first
func ParseScriptOrder(s string) (ScriptOrder, error) {
	switch ScriptOrder(s) {
	case "", OrderNewest:
		return OrderNewest, nil
	case OrderTopVoted:
		return OrderTopVoted, nil
	default:
		return "", fmt.Errorf("unknown sort order %q", s)
	}
}

// Profile is the public face of a user
type Profile struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	AvatarURL *string `json:"avatar_url"`
}

// IScriptStore persists scripts
type IScriptStore interface {
	CreateScript(ctx context.Context, in NewScript) (*Script, error)
	GetScript(ctx context.Context, id string) (*Script, error)
	// UpdateScript applies partial updates. When the content changes, the
	// previous state is kept as a new version first.
	UpdateScript(ctx context.Context, id string, updates *ScriptUpdate) (*Script, error)
	DeleteScript(ctx context.Context, id string) error
	ListPublicScripts(ctx context.Context, order ScriptOrder) ([]*Script, error)
	ListVersions(ctx context.Context, scriptID string) ([]*ScriptVersion, error)
	UpsertProfile(ctx context.Context, p Profile) error
	// ToggleVote adds the vote of userID, or removes it if there is one.
	ToggleVote(ctx context.Context, scriptID, userID string) (VoteState, error)
	HasVoted(ctx context.Context, scriptID, userID string) (bool, error)
	// RecordView logs one read of a script and returns its view count.
	// viewerID is empty for anonymous readers.
	RecordView(ctx context.Context, scriptID, viewerID string) (int, error)
	annotation.DocumentSource
}

// Store is everything the server persists
type Store interface {
	IScriptStore
	annotation.Store
	annotation.LikeStore
	Close() error
}

// ErrCommentNotFound is returned when no comment has the requested id, or the
// caller is not its author on a guarded write.
var ErrCommentNotFound = annotation.ErrNotFound

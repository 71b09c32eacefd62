package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"scriptboard/pkg/annotation"
)

// MemoryStore implements Store in process memory. It backs local runs without
// a database and the handler tests. One mutex serializes every write, which
// makes ToggleLike atomic.
type MemoryStore struct {
	mu       sync.RWMutex
	now      func() time.Time
	scripts  map[string]*Script
	versions map[string][]*ScriptVersion
	profiles map[string]Profile
	comments map[string]*annotation.Annotation
	likes    map[string]map[string]struct{}
	votes    map[string]map[string]struct{}

	// seq orders comments created within the same clock tick
	seq   map[string]int
	nextN int
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:      time.Now,
		scripts:  make(map[string]*Script),
		versions: make(map[string][]*ScriptVersion),
		profiles: make(map[string]Profile),
		comments: make(map[string]*annotation.Annotation),
		likes:    make(map[string]map[string]struct{}),
		votes:    make(map[string]map[string]struct{}),
		seq:      make(map[string]int),
	}
}

// SetClock replaces time.Now, for tests that compare timestamps.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *MemoryStore) Close() error { return nil }

func copyScript(doc *Script) *Script {
	c := *doc
	return &c
}

func (s *MemoryStore) copyComment(a *annotation.Annotation) *annotation.Annotation {
	c := *a
	if a.AuthorID != nil {
		if p, ok := s.profiles[*a.AuthorID]; ok {
			name := p.Username
			c.AuthorDisplayName = &name
			c.AuthorAvatarURL = p.AvatarURL
		}
	}
	c.Likers = nil
	return &c
}

func (s *MemoryStore) CreateScript(ctx context.Context, in NewScript) (*Script, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	content := in.Content
	doc := &Script{
		ID:               uuid.New().String(),
		OwnerID:          in.OwnerID,
		Title:            in.Title,
		Logline:          in.Logline,
		Genre:            in.Genre,
		Content:          &content,
		IsPublic:         in.IsPublic,
		OriginalFilename: in.OriginalFilename,
		CreatedAt:        now,
		UpdatedAt:        now,
		Version:          1,
	}
	s.scripts[doc.ID] = doc
	return copyScript(doc), nil
}

func (s *MemoryStore) GetScript(ctx context.Context, id string) (*Script, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.scripts[id]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	return copyScript(doc), nil
}

func (s *MemoryStore) DocumentBody(ctx context.Context, id string) (*string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.scripts[id]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	if doc.Content == nil {
		return nil, nil
	}
	body := *doc.Content
	return &body, nil
}

func (s *MemoryStore) UpdateScript(ctx context.Context, id string, updates *ScriptUpdate) (*Script, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.scripts[id]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	if updates.Empty() {
		return copyScript(doc), nil
	}

	now := s.now()
	if updates.Content != nil {
		s.versions[id] = append(s.versions[id], &ScriptVersion{
			ScriptID:      id,
			VersionNumber: len(s.versions[id]) + 1,
			Title:         doc.Title,
			Logline:       doc.Logline,
			Genre:         doc.Genre,
			Content:       doc.Content,
			CreatedAt:     now,
		})
		content := *updates.Content
		doc.Content = &content
	}
	if updates.Title != nil {
		doc.Title = *updates.Title
	}
	if updates.Logline != nil {
		v := *updates.Logline
		doc.Logline = &v
	}
	if updates.Genre != nil {
		v := *updates.Genre
		doc.Genre = &v
	}
	if updates.IsPublic != nil {
		doc.IsPublic = *updates.IsPublic
	}
	doc.UpdatedAt = now
	doc.Version++
	return copyScript(doc), nil
}

func (s *MemoryStore) DeleteScript(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.scripts[id]; !ok {
		return ErrDocumentNotFound
	}
	delete(s.scripts, id)
	delete(s.versions, id)
	delete(s.votes, id)
	for cid, c := range s.comments {
		if c.DocumentID == id {
			delete(s.comments, cid)
			delete(s.likes, cid)
			delete(s.seq, cid)
		}
	}
	return nil
}

func (s *MemoryStore) ListPublicScripts(ctx context.Context, order ScriptOrder) ([]*Script, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scripts := []*Script{}
	for _, doc := range s.scripts {
		if doc.IsPublic {
			scripts = append(scripts, copyScript(doc))
		}
	}
	sort.SliceStable(scripts, func(i, j int) bool {
		a, b := scripts[i], scripts[j]
		if order == OrderTopVoted && a.UpvotesCount != b.UpvotesCount {
			return a.UpvotesCount > b.UpvotesCount
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return scripts, nil
}

func (s *MemoryStore) ListVersions(ctx context.Context, scriptID string) ([]*ScriptVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.versions[scriptID]
	versions := make([]*ScriptVersion, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		v := *list[i]
		versions = append(versions, &v)
	}
	return versions, nil
}

func (s *MemoryStore) UpsertProfile(ctx context.Context, p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.profiles[p.ID]; ok && p.AvatarURL == nil {
		p.AvatarURL = old.AvatarURL
	}
	s.profiles[p.ID] = p
	return nil
}

func (s *MemoryStore) ListAnnotations(ctx context.Context, scriptID string) ([]*annotation.Annotation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	comments := []*annotation.Annotation{}
	for _, c := range s.comments {
		if c.DocumentID == scriptID {
			comments = append(comments, s.copyComment(c))
		}
	}
	sort.Slice(comments, func(i, j int) bool {
		a, b := comments[i], comments[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return s.seq[a.ID] < s.seq[b.ID]
	})
	return comments, nil
}

func (s *MemoryStore) GetAnnotation(ctx context.Context, id string) (*annotation.Annotation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.comments[id]
	if !ok {
		return nil, annotation.ErrNotFound
	}
	return s.copyComment(c), nil
}

func (s *MemoryStore) CreateAnnotation(ctx context.Context, in annotation.NewAnnotation) (*annotation.Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.scripts[in.DocumentID]; !ok {
		return nil, ErrDocumentNotFound
	}
	author := in.AuthorID
	c := &annotation.Annotation{
		ID:         uuid.New().String(),
		DocumentID: in.DocumentID,
		LineIndex:  in.LineIndex,
		Body:       in.Body,
		AuthorID:   &author,
		CreatedAt:  s.now(),
	}
	s.comments[c.ID] = c
	s.nextN++
	s.seq[c.ID] = s.nextN
	return s.copyComment(c), nil
}

func (s *MemoryStore) UpdateAnnotationBody(ctx context.Context, id, authorID, body string, at time.Time) (*annotation.Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.comments[id]
	if !ok || !c.AuthoredBy(authorID) {
		return nil, annotation.ErrNotFound
	}
	c.Body = body
	c.UpdatedAt = &at
	return s.copyComment(c), nil
}

func (s *MemoryStore) DeleteAnnotation(ctx context.Context, id, authorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.comments[id]
	if !ok || !c.AuthoredBy(authorID) {
		return annotation.ErrNotFound
	}
	delete(s.comments, id)
	delete(s.likes, id)
	delete(s.seq, id)
	return nil
}

func (s *MemoryStore) ToggleLike(ctx context.Context, commentID, userID string) (annotation.LikeState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.comments[commentID]
	if !ok {
		return annotation.LikeState{}, annotation.ErrNotFound
	}
	set := s.likes[commentID]
	if set == nil {
		set = make(map[string]struct{})
		s.likes[commentID] = set
	}
	st := annotation.LikeState{AnnotationID: commentID}
	if _, liked := set[userID]; liked {
		delete(set, userID)
		c.LikesCount--
	} else {
		set[userID] = struct{}{}
		c.LikesCount++
		st.LikedByViewer = true
	}
	st.LikesCount = c.LikesCount
	return st, nil
}

func (s *MemoryStore) LikeSummaries(ctx context.Context, commentIDs []string) (map[string]annotation.LikeSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make(map[string]annotation.LikeSummary, len(commentIDs))
	for _, id := range commentIDs {
		c, ok := s.comments[id]
		if !ok {
			continue
		}
		likers := make([]string, 0, len(s.likes[id]))
		for u := range s.likes[id] {
			likers = append(likers, u)
		}
		sort.Strings(likers)
		summaries[id] = annotation.LikeSummary{Count: c.LikesCount, Likers: likers}
	}
	return summaries, nil
}

func (s *MemoryStore) ToggleVote(ctx context.Context, scriptID, userID string) (VoteState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.scripts[scriptID]
	if !ok {
		return VoteState{}, ErrDocumentNotFound
	}
	set := s.votes[scriptID]
	if set == nil {
		set = make(map[string]struct{})
		s.votes[scriptID] = set
	}
	var st VoteState
	if _, voted := set[userID]; voted {
		delete(set, userID)
		doc.UpvotesCount--
	} else {
		set[userID] = struct{}{}
		doc.UpvotesCount++
		st.VotedByViewer = true
	}
	st.UpvotesCount = doc.UpvotesCount
	return st, nil
}

func (s *MemoryStore) HasVoted(ctx context.Context, scriptID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, voted := s.votes[scriptID][userID]
	return voted, nil
}

// RecordView only counts: the memory store keeps no view log
func (s *MemoryStore) RecordView(ctx context.Context, scriptID, viewerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.scripts[scriptID]
	if !ok {
		return 0, ErrDocumentNotFound
	}
	doc.ViewsCount++
	return doc.ViewsCount, nil
}

var _ Store = (*MemoryStore)(nil)

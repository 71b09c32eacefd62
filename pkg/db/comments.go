package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"scriptboard/pkg/annotation"
)

const commentColumns = `c.id, c.script_id, c.line_index, c.body, c.author_id, p.username, p.avatar_url, c.created_at, c.updated_at, c.likes_count`

func scanComment(row scanner) (*annotation.Annotation, error) {
	var (
		a                          annotation.Annotation
		authorID, username, avatar sql.NullString
		updatedAt                  sql.NullTime
	)
	err := row.Scan(
		&a.ID,
		&a.DocumentID,
		&a.LineIndex,
		&a.Body,
		&authorID,
		&username,
		&avatar,
		&a.CreatedAt,
		&updatedAt,
		&a.LikesCount,
	)
	if err != nil {
		return nil, err
	}
	a.AuthorID = stringPtr(authorID)
	a.AuthorDisplayName = stringPtr(username)
	a.AuthorAvatarURL = stringPtr(avatar)
	a.UpdatedAt = timePtr(updatedAt)
	return &a, nil
}

func (s *PostgresStore) ListAnnotations(ctx context.Context, scriptID string) ([]*annotation.Annotation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+commentColumns+`
		FROM script_comments c
		LEFT JOIN profiles p ON p.id = c.author_id
		WHERE c.script_id = $1
		ORDER BY c.created_at ASC
	`, scriptID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	comments := []*annotation.Annotation{}
	for rows.Next() {
		a, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return comments, nil
}

func (s *PostgresStore) GetAnnotation(ctx context.Context, id string) (*annotation.Annotation, error) {
	a, err := scanComment(s.db.QueryRowContext(ctx, `
		SELECT `+commentColumns+`
		FROM script_comments c
		LEFT JOIN profiles p ON p.id = c.author_id
		WHERE c.id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, annotation.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get comment: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) CreateAnnotation(ctx context.Context, in annotation.NewAnnotation) (*annotation.Annotation, error) {
	id := uuid.New().String()
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// authors that never set up a profile still need a row to reference
	_, err = tx.ExecContext(ctx, `
		INSERT INTO profiles (id, username) VALUES ($1, $1)
		ON CONFLICT (id) DO NOTHING
	`, in.AuthorID)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure profile: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO script_comments (id, script_id, line_index, body, author_id, created_at, likes_count)
		VALUES ($1, $2, $3, $4, $5, $6, 0)
	`, id, in.DocumentID, in.LineIndex, in.Body, in.AuthorID, now)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit comment: %w", err)
	}
	return s.GetAnnotation(ctx, id)
}

func (s *PostgresStore) UpdateAnnotationBody(ctx context.Context, id, authorID, body string, at time.Time) (*annotation.Annotation, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE script_comments
		SET body = $3, updated_at = $4
		WHERE id = $1 AND author_id = $2
	`, id, authorID, body, at)
	if err != nil {
		return nil, fmt.Errorf("failed to update comment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, annotation.ErrNotFound
	}

	return s.GetAnnotation(ctx, id)
}

func (s *PostgresStore) DeleteAnnotation(ctx context.Context, id, authorID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM script_comments WHERE id = $1 AND author_id = $2`, id, authorID)
	if err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return annotation.ErrNotFound
	}

	return nil
}

// ToggleLike flips the like of userID inside one transaction. The primary key
// on (comment_id, user_id) decides the direction and the count is moved in
// SQL, so concurrent toggles by different users never lose an update.
func (s *PostgresStore) ToggleLike(ctx context.Context, commentID, userID string) (annotation.LikeState, error) {
	st := annotation.LikeState{AnnotationID: commentID}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return st, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM comment_likes WHERE comment_id = $1 AND user_id = $2`, commentID, userID)
	if err != nil {
		return st, fmt.Errorf("failed to remove like: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return st, fmt.Errorf("failed to get rows affected: %w", err)
	}

	delta := -1
	if removed == 0 {
		result, err = tx.ExecContext(ctx, `
			INSERT INTO comment_likes (comment_id, user_id, created_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (comment_id, user_id) DO NOTHING
		`, commentID, userID, s.now())
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
				return st, annotation.ErrNotFound
			}
			return st, fmt.Errorf("failed to add like: %w", err)
		}
		added, err := result.RowsAffected()
		if err != nil {
			return st, fmt.Errorf("failed to get rows affected: %w", err)
		}
		// a concurrent toggle by the same user already inserted it
		delta = int(added)
		st.LikedByViewer = true
	}

	err = tx.QueryRowContext(ctx, `
		UPDATE script_comments
		SET likes_count = GREATEST(likes_count + $2, 0)
		WHERE id = $1
		RETURNING likes_count
	`, commentID, delta).Scan(&st.LikesCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return st, annotation.ErrNotFound
		}
		return st, fmt.Errorf("failed to update like count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return st, fmt.Errorf("failed to commit like: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) LikeSummaries(ctx context.Context, commentIDs []string) (map[string]annotation.LikeSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.likes_count,
			COALESCE(array_agg(l.user_id) FILTER (WHERE l.user_id IS NOT NULL), '{}')
		FROM script_comments c
		LEFT JOIN comment_likes l ON l.comment_id = c.id
		WHERE c.id = ANY($1)
		GROUP BY c.id, c.likes_count
	`, pq.Array(commentIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to load likes: %w", err)
	}
	defer rows.Close()

	summaries := make(map[string]annotation.LikeSummary, len(commentIDs))
	for rows.Next() {
		var (
			id     string
			sum    annotation.LikeSummary
			likers []string
		)
		if err := rows.Scan(&id, &sum.Count, pq.Array(&likers)); err != nil {
			return nil, fmt.Errorf("failed to scan likes: %w", err)
		}
		sum.Likers = likers
		summaries[id] = sum
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return summaries, nil
}

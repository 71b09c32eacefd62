package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresStore opens the database, checks the connection and creates the
// tables if they don't exist
func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{db: db, now: time.Now}

	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

const scriptColumns = `id, user_id, title, logline, genre, content, is_public, original_filename, created_at, updated_at, version, upvotes_count, views_count`

type scanner interface {
	Scan(dest ...any) error
}

func scanScript(row scanner) (*Script, error) {
	var (
		doc                                   Script
		logline, genre, content, origFilename sql.NullString
	)
	err := row.Scan(
		&doc.ID,
		&doc.OwnerID,
		&doc.Title,
		&logline,
		&genre,
		&content,
		&doc.IsPublic,
		&origFilename,
		&doc.CreatedAt,
		&doc.UpdatedAt,
		&doc.Version,
		&doc.UpvotesCount,
		&doc.ViewsCount,
	)
	if err != nil {
		return nil, err
	}
	doc.Logline = stringPtr(logline)
	doc.Genre = stringPtr(genre)
	doc.Content = stringPtr(content)
	doc.OriginalFilename = stringPtr(origFilename)
	return &doc, nil
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	return &nt.Time
}

func (s *PostgresStore) CreateScript(ctx context.Context, in NewScript) (*Script, error) {
	id := uuid.New().String()
	now := s.now()

	query := `
		INSERT INTO scripts (id, user_id, title, logline, genre, content, is_public, original_filename, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)
		RETURNING ` + scriptColumns

	doc, err := scanScript(s.db.QueryRowContext(ctx, query,
		id, in.OwnerID, in.Title, in.Logline, in.Genre, in.Content, in.IsPublic, in.OriginalFilename, now, now))
	if err != nil {
		return nil, fmt.Errorf("failed to create script: %w", err)
	}

	return doc, nil
}

func (s *PostgresStore) GetScript(ctx context.Context, id string) (*Script, error) {
	query := `SELECT ` + scriptColumns + ` FROM scripts WHERE id = $1`

	doc, err := scanScript(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to get script: %w", err)
	}

	return doc, nil
}

// DocumentBody returns the current body of a script
func (s *PostgresStore) DocumentBody(ctx context.Context, id string) (*string, error) {
	var content sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT content FROM scripts WHERE id = $1`, id).Scan(&content)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to get script content: %w", err)
	}
	return stringPtr(content), nil
}

func (s *PostgresStore) UpdateScript(ctx context.Context, id string, updates *ScriptUpdate) (*Script, error) {
	// Build dynamic SET clauses for provided fields
	sets := []string{}
	args := []interface{}{}
	argPos := 1

	add := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argPos))
		args = append(args, value)
		argPos++
	}
	if updates.Title != nil {
		add("title", *updates.Title)
	}
	if updates.Logline != nil {
		add("logline", *updates.Logline)
	}
	if updates.Genre != nil {
		add("genre", *updates.Genre)
	}
	if updates.Content != nil {
		add("content", *updates.Content)
	}
	if updates.IsPublic != nil {
		add("is_public", *updates.IsPublic)
	}

	if len(sets) == 0 {
		// Nothing to update; return current script
		return s.GetScript(ctx, id)
	}

	now := s.now()
	add("updated_at", now)
	sets = append(sets, "version = version + 1")
	args = append(args, id)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if updates.Content != nil {
		// concurrent content updates queue on the row lock, so each one
		// numbers its version after the previous one committed
		var locked string
		err := tx.QueryRowContext(ctx, `SELECT id FROM scripts WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrDocumentNotFound
			}
			return nil, fmt.Errorf("failed to lock script: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO script_versions (script_id, version_number, title, logline, genre, content, created_at)
			SELECT s.id,
				COALESCE((SELECT MAX(v.version_number) FROM script_versions v WHERE v.script_id = s.id), 0) + 1,
				s.title, s.logline, s.genre, s.content, $2
			FROM scripts s
			WHERE s.id = $1
		`, id, now)
		if err != nil {
			return nil, fmt.Errorf("failed to save script version: %w", err)
		}
	}

	query := fmt.Sprintf(`
		UPDATE scripts
		SET %s
		WHERE id = $%d
		RETURNING %s
	`, strings.Join(sets, ", "), argPos, scriptColumns)

	doc, err := scanScript(tx.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to update script: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit script update: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) DeleteScript(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM scripts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete script: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrDocumentNotFound
	}

	return nil
}

// ListPublicScripts returns the public scripts, newest first or most voted
// first
func (s *PostgresStore) ListPublicScripts(ctx context.Context, order ScriptOrder) ([]*Script, error) {
	orderBy := "created_at DESC"
	if order == OrderTopVoted {
		orderBy = "upvotes_count DESC, created_at DESC"
	}
	query := `
		SELECT ` + scriptColumns + `
		FROM scripts
		WHERE is_public
		ORDER BY ` + orderBy

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list scripts: %w", err)
	}
	defer rows.Close()

	scripts := []*Script{}
	for rows.Next() {
		doc, err := scanScript(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan script: %w", err)
		}
		scripts = append(scripts, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return scripts, nil
}

func (s *PostgresStore) ListVersions(ctx context.Context, scriptID string) ([]*ScriptVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT script_id, version_number, title, logline, genre, content, created_at
		FROM script_versions
		WHERE script_id = $1
		ORDER BY version_number DESC
	`, scriptID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	versions := []*ScriptVersion{}
	for rows.Next() {
		var (
			v                       ScriptVersion
			logline, genre, content sql.NullString
		)
		if err := rows.Scan(&v.ScriptID, &v.VersionNumber, &v.Title, &logline, &genre, &content, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		v.Logline = stringPtr(logline)
		v.Genre = stringPtr(genre)
		v.Content = stringPtr(content)
		versions = append(versions, &v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return versions, nil
}

// UpsertProfile records the display name and avatar of a user
func (s *PostgresStore) UpsertProfile(ctx context.Context, p Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, username, avatar_url)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username, avatar_url = COALESCE(EXCLUDED.avatar_url, profiles.avatar_url)
	`, p.ID, p.Username, p.AvatarURL)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// ToggleVote flips the vote of userID in one transaction, the same way
// ToggleLike does for comments
func (s *PostgresStore) ToggleVote(ctx context.Context, scriptID, userID string) (VoteState, error) {
	var st VoteState

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return st, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM script_votes WHERE script_id = $1 AND user_id = $2`, scriptID, userID)
	if err != nil {
		return st, fmt.Errorf("failed to remove vote: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return st, fmt.Errorf("failed to get rows affected: %w", err)
	}

	delta := -1
	if removed == 0 {
		result, err = tx.ExecContext(ctx, `
			INSERT INTO script_votes (script_id, user_id, created_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (script_id, user_id) DO NOTHING
		`, scriptID, userID, s.now())
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
				return st, ErrDocumentNotFound
			}
			return st, fmt.Errorf("failed to add vote: %w", err)
		}
		added, err := result.RowsAffected()
		if err != nil {
			return st, fmt.Errorf("failed to get rows affected: %w", err)
		}
		delta = int(added)
		st.VotedByViewer = true
	}

	err = tx.QueryRowContext(ctx, `
		UPDATE scripts
		SET upvotes_count = GREATEST(upvotes_count + $2, 0)
		WHERE id = $1
		RETURNING upvotes_count
	`, scriptID, delta).Scan(&st.UpvotesCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return st, ErrDocumentNotFound
		}
		return st, fmt.Errorf("failed to update vote count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return st, fmt.Errorf("failed to commit vote: %w", err)
	}
	return st, nil
}

// HasVoted reports whether userID votes for the script
func (s *PostgresStore) HasVoted(ctx context.Context, scriptID, userID string) (bool, error) {
	var voted bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM script_votes WHERE script_id = $1 AND user_id = $2)
	`, scriptID, userID).Scan(&voted)
	if err != nil {
		return false, fmt.Errorf("failed to check vote: %w", err)
	}
	return voted, nil
}

// RecordView logs a read in script_views and bumps views_count
func (s *PostgresStore) RecordView(ctx context.Context, scriptID, viewerID string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var views int
	err = tx.QueryRowContext(ctx, `
		UPDATE scripts SET views_count = views_count + 1
		WHERE id = $1
		RETURNING views_count
	`, scriptID).Scan(&views)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrDocumentNotFound
		}
		return 0, fmt.Errorf("failed to count view: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO script_views (script_id, user_id, viewed_at)
		VALUES ($1, NULLIF($2, ''), $3)
	`, scriptID, viewerID, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to log view: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit view: %w", err)
	}
	return views, nil
}

// Compile-time check to ensure PostgresStore implements Store interface
// This will cause a compilation error if any interface methods are missing or have wrong signatures
var _ Store = (*PostgresStore)(nil)

package db

// createTables creates the tables if they don't exist
func (s *PostgresStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS profiles (
		id VARCHAR(64) PRIMARY KEY,
		username VARCHAR(255) NOT NULL,
		avatar_url TEXT
	);

	CREATE TABLE IF NOT EXISTS scripts (
		id VARCHAR(36) PRIMARY KEY,
		user_id VARCHAR(64) NOT NULL,
		title VARCHAR(255) NOT NULL,
		logline TEXT,
		genre TEXT,
		content TEXT,
		is_public BOOLEAN NOT NULL DEFAULT FALSE,
		original_filename TEXT,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		upvotes_count INTEGER NOT NULL DEFAULT 0 CHECK (upvotes_count >= 0),
		views_count INTEGER NOT NULL DEFAULT 0
	);

	ALTER TABLE scripts ADD COLUMN IF NOT EXISTS upvotes_count INTEGER NOT NULL DEFAULT 0 CHECK (upvotes_count >= 0);
	ALTER TABLE scripts ADD COLUMN IF NOT EXISTS views_count INTEGER NOT NULL DEFAULT 0;

	CREATE INDEX IF NOT EXISTS idx_scripts_public_created_at ON scripts(is_public, created_at);
	CREATE INDEX IF NOT EXISTS idx_scripts_public_upvotes ON scripts(is_public, upvotes_count);

	CREATE TABLE IF NOT EXISTS script_votes (
		script_id VARCHAR(36) NOT NULL REFERENCES scripts(id) ON DELETE CASCADE,
		user_id VARCHAR(64) NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		PRIMARY KEY (script_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS script_views (
		id BIGSERIAL PRIMARY KEY,
		script_id VARCHAR(36) NOT NULL REFERENCES scripts(id) ON DELETE CASCADE,
		user_id VARCHAR(64),
		viewed_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_script_views_script ON script_views(script_id, viewed_at);

	CREATE TABLE IF NOT EXISTS script_versions (
		script_id VARCHAR(36) NOT NULL REFERENCES scripts(id) ON DELETE CASCADE,
		version_number INTEGER NOT NULL,
		title VARCHAR(255) NOT NULL,
		logline TEXT,
		genre TEXT,
		content TEXT,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		PRIMARY KEY (script_id, version_number)
	);

	CREATE TABLE IF NOT EXISTS script_comments (
		id VARCHAR(36) PRIMARY KEY,
		script_id VARCHAR(36) NOT NULL REFERENCES scripts(id) ON DELETE CASCADE,
		line_index INTEGER NOT NULL CHECK (line_index >= 0),
		body TEXT NOT NULL,
		author_id VARCHAR(64) REFERENCES profiles(id) ON DELETE SET NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE,
		likes_count INTEGER NOT NULL DEFAULT 0 CHECK (likes_count >= 0)
	);

	CREATE INDEX IF NOT EXISTS idx_script_comments_script_created_at ON script_comments(script_id, created_at);

	CREATE TABLE IF NOT EXISTS comment_likes (
		comment_id VARCHAR(36) NOT NULL REFERENCES script_comments(id) ON DELETE CASCADE,
		user_id VARCHAR(64) NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		PRIMARY KEY (comment_id, user_id)
	);
	`

	_, err := s.db.Exec(query)
	return err
}

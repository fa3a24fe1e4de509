package content

import "context"

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS authors (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		role TEXT NOT NULL,
		bio TEXT NOT NULL,
		image TEXT NOT NULL DEFAULT '',
		expertise TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		slug TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		sort_order INT NOT NULL DEFAULT 0,
		visible BOOLEAN NOT NULL DEFAULT TRUE,
		icon TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS articles (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		summary TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		region TEXT NOT NULL DEFAULT 'GLOBAL',
		risk_level TEXT NOT NULL DEFAULT 'LOW',
		risk_score INT NOT NULL DEFAULT 0,
		impact_score INT NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'DRAFT',
		featured BOOLEAN NOT NULL DEFAULT FALSE,
		premium BOOLEAN NOT NULL DEFAULT FALSE,
		category_id TEXT REFERENCES categories(id),
		author_id TEXT REFERENCES authors(id),
		published_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_articles_status_published_at ON articles (status, published_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_articles_region ON articles (region)`,
}

// EnsureSchema creates the content tables if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.DB.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

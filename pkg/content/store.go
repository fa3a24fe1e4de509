package content

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the slice of pgx the store needs; satisfied by *pgxpool.Pool.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides article, author and category persistence plus the
// aggregate queries the public site renders (region risk index, site
// stats).
type Store struct {
	DB DB
}

func NewStore(db DB) *Store { return &Store{DB: db} }

const authorColumns = "id, name, slug, role, bio, image, expertise, created_at, updated_at"

func scanAuthor(row pgx.Row) (Author, error) {
	var a Author
	err := row.Scan(&a.ID, &a.Name, &a.Slug, &a.Role, &a.Bio, &a.Image, &a.Expertise, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// UpsertAuthor validates and writes an author. A missing ID creates a
// new row; a missing slug is derived from the name.
func (s *Store) UpsertAuthor(ctx context.Context, a Author) (Author, error) {
	if err := a.validate(); err != nil {
		return Author{}, err
	}
	if strings.TrimSpace(a.ID) == "" {
		a.ID = uuid.NewString()
	}
	if strings.TrimSpace(a.Slug) == "" {
		a.Slug = Slugify(a.Name)
	}
	a.Slug = NormalizeSlug(a.Slug)
	if a.Expertise == nil {
		a.Expertise = []string{}
	}
	now := time.Now().UTC()
	row := s.DB.QueryRow(ctx, `
		INSERT INTO authors (id, name, slug, role, bio, image, expertise, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
		ON CONFLICT (id) DO UPDATE SET
			name=EXCLUDED.name, slug=EXCLUDED.slug, role=EXCLUDED.role,
			bio=EXCLUDED.bio, image=EXCLUDED.image, expertise=EXCLUDED.expertise,
			updated_at=EXCLUDED.updated_at
		RETURNING `+authorColumns,
		a.ID, a.Name, a.Slug, a.Role, a.Bio, a.Image, a.Expertise, now)
	return scanAuthor(row)
}

func (s *Store) GetAuthor(ctx context.Context, id string) (Author, error) {
	a, err := scanAuthor(s.DB.QueryRow(ctx, `SELECT `+authorColumns+` FROM authors WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Author{}, ErrNotFound
	}
	return a, err
}

func (s *Store) ListAuthors(ctx context.Context) ([]Author, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+authorColumns+` FROM authors ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Author
	for rows.Next() {
		a, err := scanAuthor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) DeleteAuthor(ctx context.Context, id string) error {
	tag, err := s.DB.Exec(ctx, `DELETE FROM authors WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const categoryColumns = "id, name, slug, description, sort_order, visible, icon, created_at, updated_at"

func scanCategory(row pgx.Row) (Category, error) {
	var c Category
	err := row.Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &c.SortOrder, &c.Visible, &c.Icon, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *Store) UpsertCategory(ctx context.Context, c Category) (Category, error) {
	if err := c.validate(); err != nil {
		return Category{}, err
	}
	if strings.TrimSpace(c.ID) == "" {
		c.ID = uuid.NewString()
	}
	if strings.TrimSpace(c.Slug) == "" {
		c.Slug = Slugify(c.Name)
	}
	c.Slug = NormalizeSlug(c.Slug)
	now := time.Now().UTC()
	row := s.DB.QueryRow(ctx, `
		INSERT INTO categories (id, name, slug, description, sort_order, visible, icon, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
		ON CONFLICT (id) DO UPDATE SET
			name=EXCLUDED.name, slug=EXCLUDED.slug, description=EXCLUDED.description,
			sort_order=EXCLUDED.sort_order, visible=EXCLUDED.visible, icon=EXCLUDED.icon,
			updated_at=EXCLUDED.updated_at
		RETURNING `+categoryColumns,
		c.ID, c.Name, c.Slug, c.Description, c.SortOrder, c.Visible, c.Icon, now)
	return scanCategory(row)
}

// ListCategories returns categories in navigation order. visibleOnly
// restricts to the public navigation set.
func (s *Store) ListCategories(ctx context.Context, visibleOnly bool) ([]Category, error) {
	q := `SELECT ` + categoryColumns + ` FROM categories`
	if visibleOnly {
		q += ` WHERE visible`
	}
	q += ` ORDER BY sort_order, name`
	rows, err := s.DB.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CategoryBySlug resolves a public category page. Hidden categories are
// invisible here.
func (s *Store) CategoryBySlug(ctx context.Context, slug string) (Category, error) {
	slug = NormalizeSlug(slug)
	c, err := scanCategory(s.DB.QueryRow(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE slug=$1 AND visible`, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return Category{}, ErrNotFound
	}
	return c, err
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	tag, err := s.DB.Exec(ctx, `DELETE FROM categories WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const articleColumns = `id, title, slug, summary, content, region, risk_level, risk_score,
	impact_score, status, featured, premium, category_id, author_id, published_at, created_at, updated_at`

func scanArticle(row pgx.Row) (Article, error) {
	var a Article
	err := row.Scan(&a.ID, &a.Title, &a.Slug, &a.Summary, &a.Content, &a.Region, &a.RiskLevel,
		&a.RiskScore, &a.ImpactScore, &a.Status, &a.Featured, &a.Premium,
		&a.CategoryID, &a.AuthorID, &a.PublishedAt, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (s *Store) UpsertArticle(ctx context.Context, a Article) (Article, error) {
	if err := a.validate(); err != nil {
		return Article{}, err
	}
	if strings.TrimSpace(a.ID) == "" {
		a.ID = uuid.NewString()
	}
	if strings.TrimSpace(a.Slug) == "" {
		a.Slug = Slugify(a.Title)
	}
	a.Slug = NormalizeSlug(a.Slug)
	if a.Region == "" {
		a.Region = RegionGlobal
	}
	if a.RiskLevel == "" {
		a.RiskLevel = RiskLow
	}
	if a.Status == "" {
		a.Status = StatusDraft
	}
	if a.Status == StatusPublished && a.PublishedAt == nil {
		now := time.Now().UTC()
		a.PublishedAt = &now
	}
	now := time.Now().UTC()
	row := s.DB.QueryRow(ctx, `
		INSERT INTO articles (id, title, slug, summary, content, region, risk_level, risk_score,
			impact_score, status, featured, premium, category_id, author_id, published_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$16)
		ON CONFLICT (id) DO UPDATE SET
			title=EXCLUDED.title, slug=EXCLUDED.slug, summary=EXCLUDED.summary,
			content=EXCLUDED.content, region=EXCLUDED.region, risk_level=EXCLUDED.risk_level,
			risk_score=EXCLUDED.risk_score, impact_score=EXCLUDED.impact_score,
			status=EXCLUDED.status, featured=EXCLUDED.featured, premium=EXCLUDED.premium,
			category_id=EXCLUDED.category_id, author_id=EXCLUDED.author_id,
			published_at=EXCLUDED.published_at, updated_at=EXCLUDED.updated_at
		RETURNING `+articleColumns,
		a.ID, a.Title, a.Slug, a.Summary, a.Content, a.Region, a.RiskLevel, a.RiskScore,
		a.ImpactScore, a.Status, a.Featured, a.Premium,
		nullIfEmpty(a.CategoryID), nullIfEmpty(a.AuthorID), a.PublishedAt, now)
	return scanArticle(row)
}

func (s *Store) GetArticle(ctx context.Context, id string) (Article, error) {
	a, err := scanArticle(s.DB.QueryRow(ctx, `SELECT `+articleColumns+` FROM articles WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Article{}, ErrNotFound
	}
	return a, err
}

// PublishedBySlug resolves a public article page. Draft and archived
// articles are invisible here regardless of who asks.
func (s *Store) PublishedBySlug(ctx context.Context, slug string) (Article, error) {
	slug = NormalizeSlug(slug)
	a, err := scanArticle(s.DB.QueryRow(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE slug=$1 AND status=$2`, slug, StatusPublished))
	if errors.Is(err, pgx.ErrNoRows) {
		return Article{}, ErrNotFound
	}
	return a, err
}

// ListArticles returns articles for the admin console, optionally
// filtered by status.
func (s *Store) ListArticles(ctx context.Context, status string) ([]Article, error) {
	if status != "" {
		if _, ok := validStatuses[status]; !ok {
			return nil, fmt.Errorf("unknown status %q", status)
		}
	}
	q := `SELECT ` + articleColumns + ` FROM articles`
	var args []any
	if status != "" {
		q += ` WHERE status=$1`
		args = append(args, status)
	}
	q += ` ORDER BY created_at DESC`
	rows, err := s.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectArticles(rows)
}

// Featured returns the homepage feed: newest published featured
// articles first.
func (s *Store) Featured(ctx context.Context, limit int) ([]Article, error) {
	if limit <= 0 {
		limit = 4
	}
	rows, err := s.DB.Query(ctx, `
		SELECT `+articleColumns+` FROM articles
		WHERE status=$1 AND featured
		ORDER BY published_at DESC NULLS LAST
		LIMIT $2`, StatusPublished, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectArticles(rows)
}

// PublishedByCategory returns the newest published articles filed under
// one category.
func (s *Store) PublishedByCategory(ctx context.Context, categoryID string, limit int) ([]Article, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.Query(ctx, `
		SELECT `+articleColumns+` FROM articles
		WHERE category_id=$1 AND status=$2
		ORDER BY published_at DESC NULLS LAST
		LIMIT $3`, categoryID, StatusPublished, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectArticles(rows)
}

// LatestByRegion returns the most recent published reports for one
// region hotspot.
func (s *Store) LatestByRegion(ctx context.Context, region string, limit int) ([]Article, error) {
	if _, ok := validRegions[region]; !ok {
		return nil, fmt.Errorf("unknown region %q", region)
	}
	if limit <= 0 {
		limit = 3
	}
	rows, err := s.DB.Query(ctx, `
		SELECT `+articleColumns+` FROM articles
		WHERE region=$1 AND status=$2
		ORDER BY published_at DESC NULLS LAST
		LIMIT $3`, region, StatusPublished, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectArticles(rows)
}

func (s *Store) DeleteArticle(ctx context.Context, id string) error {
	tag, err := s.DB.Exec(ctx, `DELETE FROM articles WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PublishArticle transitions an article to PUBLISHED, stamping
// published_at on the first publication only.
func (s *Store) PublishArticle(ctx context.Context, id string) (Article, error) {
	now := time.Now().UTC()
	a, err := scanArticle(s.DB.QueryRow(ctx, `
		UPDATE articles
		SET status=$2, published_at=COALESCE(published_at, $3), updated_at=$3
		WHERE id=$1
		RETURNING `+articleColumns, id, StatusPublished, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return Article{}, ErrNotFound
	}
	return a, err
}

// RegionRiskIndex aggregates the average risk score of published
// articles per region, rounded to whole points for the risk map.
func (s *Store) RegionRiskIndex(ctx context.Context) (map[string]int, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT region, AVG(risk_score)
		FROM articles WHERE status=$1
		GROUP BY region`, StatusPublished)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var region string
		var avg *float64
		if err := rows.Scan(&region, &avg); err != nil {
			return nil, err
		}
		if avg == nil {
			out[region] = 0
			continue
		}
		out[region] = int(math.Round(*avg))
	}
	return out, rows.Err()
}

// SiteStats feeds the dashboard and the metrics gauges.
type SiteStats struct {
	Published    int64   `json:"published"`
	AvgRiskScore float64 `json:"avg_risk_score"`
}

func (s *Store) Stats(ctx context.Context) (SiteStats, error) {
	var stats SiteStats
	var avg *float64
	err := s.DB.QueryRow(ctx, `
		SELECT COUNT(*), AVG(risk_score)
		FROM articles WHERE status=$1`, StatusPublished).Scan(&stats.Published, &avg)
	if err != nil {
		return SiteStats{}, err
	}
	if avg != nil {
		stats.AvgRiskScore = *avg
	}
	return stats, nil
}

// PublishedSlugs lists slugs for the sitemap, newest first.
func (s *Store) PublishedSlugs(ctx context.Context) ([]string, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT slug FROM articles WHERE status=$1
		ORDER BY published_at DESC NULLS LAST`, StatusPublished)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, err
		}
		out = append(out, slug)
	}
	return out, rows.Err()
}

func collectArticles(rows pgx.Rows) ([]Article, error) {
	var out []Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func nullIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

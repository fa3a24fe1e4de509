package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shahbazsiddiqui147/todaydecode/pkg/auth"
	"github.com/shahbazsiddiqui147/todaydecode/pkg/content"
	"github.com/shahbazsiddiqui147/todaydecode/pkg/metrics"
	"github.com/shahbazsiddiqui147/todaydecode/pkg/ratelimit"
	"github.com/shahbazsiddiqui147/todaydecode/pkg/store"
	"github.com/shahbazsiddiqui147/todaydecode/pkg/stream"
)

const (
	testSecret   = "test-session-secret"
	testEmail    = "ops@example.com"
	testPassword = "correct horse battery staple"
)

// fakeContent is an in-memory contentStore with per-method call counts.
type fakeContent struct {
	mu         sync.Mutex
	articles   []content.Article
	authors    []content.Author
	categories []content.Category
	riskIndex  map[string]int
	stats      content.SiteStats
	slugs      []string
	calls      map[string]int

	lastRegion string
	lastLimit  int
}

func newFakeContent() *fakeContent {
	return &fakeContent{calls: map[string]int{}}
}

func (f *fakeContent) count(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeContent) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeContent) EnsureSchema(ctx context.Context) error {
	f.count("EnsureSchema")
	return nil
}

func (f *fakeContent) UpsertAuthor(ctx context.Context, a content.Author) (content.Author, error) {
	f.count("UpsertAuthor")
	if err := hasName(a.Name); err != nil {
		return content.Author{}, err
	}
	if a.ID == "" {
		a.ID = "author-1"
	}
	f.authors = append(f.authors, a)
	return a, nil
}

func (f *fakeContent) GetAuthor(ctx context.Context, id string) (content.Author, error) {
	f.count("GetAuthor")
	for _, a := range f.authors {
		if a.ID == id {
			return a, nil
		}
	}
	return content.Author{}, content.ErrNotFound
}

func (f *fakeContent) ListAuthors(ctx context.Context) ([]content.Author, error) {
	f.count("ListAuthors")
	return f.authors, nil
}

func (f *fakeContent) DeleteAuthor(ctx context.Context, id string) error {
	f.count("DeleteAuthor")
	for i, a := range f.authors {
		if a.ID == id {
			f.authors = append(f.authors[:i], f.authors[i+1:]...)
			return nil
		}
	}
	return content.ErrNotFound
}

func (f *fakeContent) UpsertCategory(ctx context.Context, c content.Category) (content.Category, error) {
	f.count("UpsertCategory")
	if err := hasName(c.Name); err != nil {
		return content.Category{}, err
	}
	if c.ID == "" {
		c.ID = "category-1"
	}
	f.categories = append(f.categories, c)
	return c, nil
}

func (f *fakeContent) ListCategories(ctx context.Context, visibleOnly bool) ([]content.Category, error) {
	f.count("ListCategories")
	if !visibleOnly {
		return f.categories, nil
	}
	var out []content.Category
	for _, c := range f.categories {
		if c.Visible {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeContent) CategoryBySlug(ctx context.Context, slug string) (content.Category, error) {
	f.count("CategoryBySlug")
	slug = content.NormalizeSlug(slug)
	for _, c := range f.categories {
		if content.NormalizeSlug(c.Slug) == slug && c.Visible {
			return c, nil
		}
	}
	return content.Category{}, content.ErrNotFound
}

func (f *fakeContent) DeleteCategory(ctx context.Context, id string) error {
	f.count("DeleteCategory")
	for i, c := range f.categories {
		if c.ID == id {
			f.categories = append(f.categories[:i], f.categories[i+1:]...)
			return nil
		}
	}
	return content.ErrNotFound
}

func (f *fakeContent) UpsertArticle(ctx context.Context, a content.Article) (content.Article, error) {
	f.count("UpsertArticle")
	if err := hasName(a.Title); err != nil {
		return content.Article{}, err
	}
	if a.ID == "" {
		a.ID = "article-1"
	}
	if a.Slug == "" {
		a.Slug = content.NormalizeSlug(content.Slugify(a.Title))
	}
	if a.Status == "" {
		a.Status = content.StatusDraft
	}
	for i, existing := range f.articles {
		if existing.ID == a.ID {
			f.articles[i] = a
			return a, nil
		}
	}
	f.articles = append(f.articles, a)
	return a, nil
}

func (f *fakeContent) GetArticle(ctx context.Context, id string) (content.Article, error) {
	f.count("GetArticle")
	for _, a := range f.articles {
		if a.ID == id {
			return a, nil
		}
	}
	return content.Article{}, content.ErrNotFound
}

func (f *fakeContent) PublishedBySlug(ctx context.Context, slug string) (content.Article, error) {
	f.count("PublishedBySlug")
	slug = content.NormalizeSlug(slug)
	for _, a := range f.articles {
		if a.Slug == slug && a.Status == content.StatusPublished {
			return a, nil
		}
	}
	return content.Article{}, content.ErrNotFound
}

func (f *fakeContent) ListArticles(ctx context.Context, status string) ([]content.Article, error) {
	f.count("ListArticles")
	if status == "" {
		return f.articles, nil
	}
	var out []content.Article
	for _, a := range f.articles {
		if a.Status == status {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeContent) Featured(ctx context.Context, limit int) ([]content.Article, error) {
	f.count("Featured")
	var out []content.Article
	for _, a := range f.articles {
		if a.Featured && a.Status == content.StatusPublished && len(out) < limit {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeContent) LatestByRegion(ctx context.Context, region string, limit int) ([]content.Article, error) {
	f.count("LatestByRegion")
	f.lastRegion, f.lastLimit = region, limit
	var out []content.Article
	for _, a := range f.articles {
		if a.Region == region && a.Status == content.StatusPublished && len(out) < limit {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeContent) PublishedByCategory(ctx context.Context, categoryID string, limit int) ([]content.Article, error) {
	f.count("PublishedByCategory")
	var out []content.Article
	for _, a := range f.articles {
		if a.CategoryID == categoryID && a.Status == content.StatusPublished && len(out) < limit {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeContent) DeleteArticle(ctx context.Context, id string) error {
	f.count("DeleteArticle")
	for i, a := range f.articles {
		if a.ID == id {
			f.articles = append(f.articles[:i], f.articles[i+1:]...)
			return nil
		}
	}
	return content.ErrNotFound
}

func (f *fakeContent) PublishArticle(ctx context.Context, id string) (content.Article, error) {
	f.count("PublishArticle")
	for i, a := range f.articles {
		if a.ID == id {
			now := time.Now().UTC()
			f.articles[i].Status = content.StatusPublished
			f.articles[i].PublishedAt = &now
			return f.articles[i], nil
		}
	}
	return content.Article{}, content.ErrNotFound
}

func (f *fakeContent) RegionRiskIndex(ctx context.Context) (map[string]int, error) {
	f.count("RegionRiskIndex")
	return f.riskIndex, nil
}

func (f *fakeContent) Stats(ctx context.Context) (content.SiteStats, error) {
	f.count("Stats")
	return f.stats, nil
}

func (f *fakeContent) PublishedSlugs(ctx context.Context) ([]string, error) {
	f.count("PublishedSlugs")
	return f.slugs, nil
}

func hasName(v string) error {
	if len(v) < 2 {
		return errors.New("name too short")
	}
	return nil
}

// fakeBus records broker events.
type fakeBus struct {
	mu     sync.Mutex
	events []string
}

func (b *fakeBus) Publish(ctx context.Context, eventType string, data interface{}) error {
	b.mu.Lock()
	b.events = append(b.events, eventType)
	b.mu.Unlock()
	return nil
}

func (b *fakeBus) published() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.events...)
}

type flagState struct {
	mu     sync.Mutex
	server string
	public string
}

func (f *flagState) set(server, public string) {
	f.mu.Lock()
	f.server, f.public = server, public
	f.mu.Unlock()
}

func (f *flagState) get() (string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.server, f.public
}

func newTestServer(t *testing.T) (*Server, *fakeContent, *flagState, *fakeBus) {
	t.Helper()
	fc := newFakeContent()
	flags := &flagState{}
	bus := &fakeBus{}
	s := &Server{
		Content:             fc,
		Cache:               store.NewMemoryCache(),
		Metrics:             metrics.NewRegistry(),
		Events:              stream.NewHub(),
		Bus:                 bus,
		RateLimiter:         ratelimit.NewInMemory(time.Minute),
		SessionSecret:       testSecret,
		SessionTTL:          time.Hour,
		AdminEmail:          testEmail,
		AdminPassword:       testPassword,
		BaseURL:             "https://todaydecode.test",
		FlagSource:          flags.get,
		SignInLimit:         5,
		MaxRequestBodyBytes: 1 << 20,
	}
	return s, fc, flags, bus
}

func sessionCookie(t *testing.T, roles ...string) *http.Cookie {
	t.Helper()
	token, err := auth.SignSession(auth.Principal{
		Subject: "admin",
		Email:   testEmail,
		Roles:   roles,
	}, testSecret, time.Hour, time.Now().UTC())
	if err != nil {
		t.Fatalf("sign session: %v", err)
	}
	return &http.Cookie{Name: auth.SessionCookie, Value: token}
}

func publishedArticle(id, slug, region string, featured bool) content.Article {
	now := time.Now().UTC()
	return content.Article{
		ID:          id,
		Title:       "Briefing " + id,
		Slug:        content.NormalizeSlug(slug),
		Summary:     "Summary for " + id,
		Content:     "Body for " + id,
		Region:      region,
		RiskLevel:   content.RiskHigh,
		RiskScore:   70,
		ImpactScore: 60,
		Status:      content.StatusPublished,
		Featured:    featured,
		PublishedAt: &now,
	}
}

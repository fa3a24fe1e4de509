package content

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

const (
	RegionGlobal   = "GLOBAL"
	RegionMENA     = "MENA"
	RegionEurope   = "EUROPE"
	RegionAPAC     = "APAC"
	RegionAmericas = "AMERICAS"
	RegionAfrica   = "AFRICA"
)

const (
	RiskLow      = "LOW"
	RiskMedium   = "MEDIUM"
	RiskHigh     = "HIGH"
	RiskCritical = "CRITICAL"
)

const (
	StatusDraft     = "DRAFT"
	StatusPublished = "PUBLISHED"
	StatusArchived  = "ARCHIVED"
)

var validRegions = map[string]struct{}{
	RegionGlobal: {}, RegionMENA: {}, RegionEurope: {},
	RegionAPAC: {}, RegionAmericas: {}, RegionAfrica: {},
}

var validRiskLevels = map[string]struct{}{
	RiskLow: {}, RiskMedium: {}, RiskHigh: {}, RiskCritical: {},
}

var validStatuses = map[string]struct{}{
	StatusDraft: {}, StatusPublished: {}, StatusArchived: {},
}

type Author struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Role      string    `json:"role"`
	Bio       string    `json:"bio"`
	Image     string    `json:"image,omitempty"`
	Expertise []string  `json:"expertise,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	SortOrder   int       `json:"sort_order"`
	Visible     bool      `json:"visible"`
	Icon        string    `json:"icon,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Article struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Summary     string     `json:"summary"`
	Content     string     `json:"content"`
	Region      string     `json:"region"`
	RiskLevel   string     `json:"risk_level"`
	RiskScore   int        `json:"risk_score"`
	ImpactScore int        `json:"impact_score"`
	Status      string     `json:"status"`
	Featured    bool       `json:"featured"`
	Premium     bool       `json:"premium"`
	CategoryID  string     `json:"category_id"`
	AuthorID    string     `json:"author_id"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (a *Author) validate() error {
	if len(strings.TrimSpace(a.Name)) < 2 {
		return errors.New("author name must be at least 2 characters")
	}
	if len(strings.TrimSpace(a.Role)) < 2 {
		return errors.New("author role must be at least 2 characters")
	}
	if len(strings.TrimSpace(a.Bio)) < 10 {
		return errors.New("author bio must be at least 10 characters")
	}
	return nil
}

func (c *Category) validate() error {
	if len(strings.TrimSpace(c.Name)) < 2 {
		return errors.New("category name must be at least 2 characters")
	}
	return nil
}

func (a *Article) validate() error {
	if len(strings.TrimSpace(a.Title)) < 2 {
		return errors.New("article title must be at least 2 characters")
	}
	if a.Region != "" {
		if _, ok := validRegions[a.Region]; !ok {
			return fmt.Errorf("unknown region %q", a.Region)
		}
	}
	if a.RiskLevel != "" {
		if _, ok := validRiskLevels[a.RiskLevel]; !ok {
			return fmt.Errorf("unknown risk level %q", a.RiskLevel)
		}
	}
	if a.Status != "" {
		if _, ok := validStatuses[a.Status]; !ok {
			return fmt.Errorf("unknown status %q", a.Status)
		}
	}
	if a.RiskScore < 0 || a.RiskScore > 100 {
		return errors.New("risk score must be between 0 and 100")
	}
	if a.ImpactScore < 0 || a.ImpactScore > 100 {
		return errors.New("impact score must be between 0 and 100")
	}
	return nil
}

// NormalizeSlug canonicalizes a slug: lowercased, no leading slashes,
// exactly one trailing slash. An empty slug maps to "/".
func NormalizeSlug(slug string) string {
	s := strings.TrimLeft(strings.ToLower(strings.TrimSpace(slug)), "/")
	if s != "" && !strings.HasSuffix(s, "/") {
		s += "/"
	}
	if s == "" {
		return "/"
	}
	return s
}

// Slugify derives a slug from a display name when none was supplied.
func Slugify(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

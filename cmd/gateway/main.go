// Command gateway serves the Today Decode site: public pages and API,
// the admin content API, and the maintenance-mode access gate in front
// of all of it.
package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shahbazsiddiqui147/todaydecode/pkg/auth"
	"github.com/shahbazsiddiqui147/todaydecode/pkg/content"
	"github.com/shahbazsiddiqui147/todaydecode/pkg/contentbus"
	"github.com/shahbazsiddiqui147/todaydecode/pkg/gate"
	"github.com/shahbazsiddiqui147/todaydecode/pkg/httpx"
	"github.com/shahbazsiddiqui147/todaydecode/pkg/metrics"
	"github.com/shahbazsiddiqui147/todaydecode/pkg/ratelimit"
	"github.com/shahbazsiddiqui147/todaydecode/pkg/store"
	"github.com/shahbazsiddiqui147/todaydecode/pkg/stream"
	"github.com/shahbazsiddiqui147/todaydecode/pkg/telemetry"
)

// Indirections for tests.
var (
	logFatalf     = log.Fatalf
	openDBFnG     = store.NewPostgresPool
	openRedisFnG  = store.NewRedis
	listenFnG     = http.ListenAndServe
	startLoopsFnG = func(s *Server) { go s.metricsLoop(context.Background()) }
)

// contentStore is the slice of content.Store the handlers use. Tests
// substitute a fake.
type contentStore interface {
	EnsureSchema(ctx context.Context) error
	UpsertAuthor(ctx context.Context, a content.Author) (content.Author, error)
	GetAuthor(ctx context.Context, id string) (content.Author, error)
	ListAuthors(ctx context.Context) ([]content.Author, error)
	DeleteAuthor(ctx context.Context, id string) error
	UpsertCategory(ctx context.Context, c content.Category) (content.Category, error)
	ListCategories(ctx context.Context, visibleOnly bool) ([]content.Category, error)
	CategoryBySlug(ctx context.Context, slug string) (content.Category, error)
	DeleteCategory(ctx context.Context, id string) error
	UpsertArticle(ctx context.Context, a content.Article) (content.Article, error)
	GetArticle(ctx context.Context, id string) (content.Article, error)
	PublishedBySlug(ctx context.Context, slug string) (content.Article, error)
	ListArticles(ctx context.Context, status string) ([]content.Article, error)
	Featured(ctx context.Context, limit int) ([]content.Article, error)
	LatestByRegion(ctx context.Context, region string, limit int) ([]content.Article, error)
	PublishedByCategory(ctx context.Context, categoryID string, limit int) ([]content.Article, error)
	DeleteArticle(ctx context.Context, id string) error
	PublishArticle(ctx context.Context, id string) (content.Article, error)
	RegionRiskIndex(ctx context.Context) (map[string]int, error)
	Stats(ctx context.Context) (content.SiteStats, error)
	PublishedSlugs(ctx context.Context) ([]string, error)
}

// eventBus publishes content lifecycle events to the broker. nil means
// the broker is not configured.
type eventBus interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// Server carries the wired dependencies for every handler.
type Server struct {
	Content     contentStore
	Cache       store.Cache
	Metrics     *metrics.Registry
	Events      *stream.Hub
	Bus         eventBus
	RateLimiter ratelimit.Limiter

	SessionSecret string
	SessionTTL    time.Duration
	AdminEmail    string
	AdminPassword string

	BaseURL string

	// FlagSource returns the server-side and public maintenance flag
	// values for the current request. Reading per request means a flag
	// flip takes effect without a restart.
	FlagSource func() (serverValue, publicValue string)

	SignInLimit         int
	MaxRequestBodyBytes int64
	TrustedProxyCIDRs   []netip.Prefix
	WSOriginPatterns    []string

	MetricsRefresh time.Duration
}

func main() {
	ctx := context.Background()

	shutdownTracing, err := telemetry.Init(ctx, env("OTEL_SERVICE_NAME", "todaydecode-gateway"))
	if err != nil {
		log.Printf("telemetry init: %v", err)
	} else {
		defer shutdownTracing(ctx)
	}

	pool, err := openDBFnG(ctx)
	if err != nil {
		logFatalf("postgres: %v", err)
		return
	}

	rdb, err := openRedisFnG(ctx)
	if err != nil {
		log.Printf("redis unavailable, using in-memory cache and limiter: %v", err)
		rdb = nil
	}

	s := &Server{
		Content:       content.NewStore(pool),
		Cache:         store.NewCache(ctx, rdb),
		Metrics:       metrics.NewRegistry(),
		Events:        stream.NewHub(),
		SessionSecret: env("SESSION_SECRET", ""),
		SessionTTL:    envDurationSec("SESSION_TTL_SEC", 24*3600),
		AdminEmail:    env("ADMIN_EMAIL", ""),
		AdminPassword: env("ADMIN_PASSWORD", ""),
		BaseURL:       strings.TrimRight(env("BASE_URL", "https://todaydecode.com"), "/"),
		FlagSource: func() (string, string) {
			return os.Getenv("MAINTENANCE_MODE"), os.Getenv("NEXT_PUBLIC_MAINTENANCE_MODE")
		},
		SignInLimit:         envInt("SIGNIN_RATE_LIMIT", 10),
		MaxRequestBodyBytes: int64(envInt("MAX_REQUEST_BODY_BYTES", 1<<20)),
		TrustedProxyCIDRs:   parseCIDRs(env("TRUSTED_PROXY_CIDRS", "")),
		WSOriginPatterns:    splitCSV(env("WS_ALLOWED_ORIGINS", "")),
		MetricsRefresh:      envDurationSec("METRICS_REFRESH_SEC", 60),
	}

	if s.SessionSecret == "" {
		logFatalf("SESSION_SECRET is required")
		return
	}

	if err := s.Content.EnsureSchema(ctx); err != nil {
		logFatalf("schema: %v", err)
		return
	}

	window := envDurationSec("RATE_LIMIT_WINDOW_SEC", 60)
	if rdb != nil {
		s.RateLimiter = ratelimit.NewRedis(rdb, window)
	} else {
		s.RateLimiter = ratelimit.NewInMemory(window)
	}

	if brokers := splitCSV(env("KAFKA_BROKERS", "")); len(brokers) > 0 {
		pub, err := contentbus.NewPublisher(contentbus.Config{
			Brokers: brokers,
			Topic:   env("KAFKA_TOPIC", "todaydecode.content"),
		})
		if err != nil {
			logFatalf("kafka: %v", err)
			return
		}
		defer pub.Close()
		s.Bus = pub
	}

	startLoopsFnG(s)

	addr := env("LISTEN_ADDR", ":8080")
	log.Printf("gateway listening on %s", addr)
	if err := listenFnG(addr, s.Routes()); err != nil {
		logFatalf("listen: %v", err)
	}
}

// Routes builds the full router: edge interceptor first, then pages,
// public API, and the authenticated admin API.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(httpx.SecurityHeadersMiddleware)
	r.Use(httpx.CORSMiddleware(env("CORS_ALLOWED_ORIGINS", "")))
	r.Use(telemetry.HTTPMiddleware("gateway"))
	r.Use(s.metricsMiddleware)
	r.Use(s.limitRequestBodyMiddleware)
	r.Use(s.accessGate)

	r.Get(gate.HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Pages.
	r.Get("/", s.pageHome)
	r.Get("/articles/{slug}", s.pageArticle)
	r.Get("/articles/{slug}/", s.pageArticle)
	r.Get("/categories/{slug}", s.pageCategory)
	r.Get("/categories/{slug}/", s.pageCategory)
	r.Get(gate.MaintenancePath, s.pageComingSoon)
	r.Get(strings.TrimSuffix(gate.MaintenancePath, "/"), s.pageComingSoon)
	r.Get(gate.SignInPath, s.pageSignIn)
	r.Get(strings.TrimSuffix(gate.SignInPath, "/"), s.pageSignIn)
	r.Get("/admin", s.pageAdmin)
	r.Get("/admin/*", s.pageAdmin)
	r.Get("/sitemap.xml", s.sitemap)

	// Public API.
	r.Get("/api/check-maintenance", s.checkMaintenance)
	r.Get("/api/articles", s.apiListArticles)
	r.Get("/api/articles/featured", s.apiFeatured)
	r.Get("/api/articles/{slug}", s.apiArticleBySlug)
	r.Get("/api/regions/risk", s.apiRegionRisk)
	r.Get("/api/dashboard", s.apiDashboard)
	r.Get("/api/stream", s.streamAlerts)

	r.Post("/api/auth/signin", s.handleSignIn)
	r.Post("/api/auth/signout", s.handleSignOut)

	// Admin API.
	r.Route("/api/admin", func(ar chi.Router) {
		ar.Use(auth.Middleware(s.SessionSecret))

		ar.Get("/metrics", s.Metrics.Handler())

		ar.Get("/articles", s.withRoles(s.adminListArticles, auth.RoleAdmin, auth.RoleEditor))
		ar.Post("/articles", s.withRoles(s.adminUpsertArticle, auth.RoleAdmin, auth.RoleEditor))
		ar.Get("/articles/{id}", s.withRoles(s.adminGetArticle, auth.RoleAdmin, auth.RoleEditor))
		ar.Put("/articles/{id}", s.withRoles(s.adminUpsertArticle, auth.RoleAdmin, auth.RoleEditor))
		ar.Delete("/articles/{id}", s.withRoles(s.adminDeleteArticle, auth.RoleAdmin))
		ar.Post("/articles/{id}/publish", s.withRoles(s.adminPublishArticle, auth.RoleAdmin, auth.RoleEditor))

		ar.Get("/authors", s.withRoles(s.adminListAuthors, auth.RoleAdmin, auth.RoleEditor))
		ar.Post("/authors", s.withRoles(s.adminUpsertAuthor, auth.RoleAdmin, auth.RoleEditor))
		ar.Delete("/authors/{id}", s.withRoles(s.adminDeleteAuthor, auth.RoleAdmin))

		ar.Get("/categories", s.withRoles(s.adminListCategories, auth.RoleAdmin, auth.RoleEditor))
		ar.Post("/categories", s.withRoles(s.adminUpsertCategory, auth.RoleAdmin))
		ar.Delete("/categories/{id}", s.withRoles(s.adminDeleteCategory, auth.RoleAdmin))

		ar.Post("/alerts", s.withRoles(s.adminBroadcastAlert, auth.RoleAdmin))
	})

	return r
}

// withRoles gates a handler on the authenticated principal having at
// least one of the given roles.
func (s *Server) withRoles(h http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFromContext(r.Context())
		if !ok || !auth.HasAnyRole(p, roles...) {
			httpx.Error(w, http.StatusForbidden, "insufficient role")
			return
		}
		h(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer, which
// the websocket upgrade on /api/stream needs for hijacking.
func (sr *statusRecorder) Unwrap() http.ResponseWriter { return sr.ResponseWriter }

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.Metrics.Observe(r.Method+" "+routePattern(r), rec.status, time.Since(start))
	})
}

// routePattern prefers the chi pattern so /articles/{slug} is one
// series, not one per slug.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

func (s *Server) limitRequestBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil && s.MaxRequestBodyBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, s.MaxRequestBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// metricsLoop refreshes site gauges from the content store.
func (s *Server) metricsLoop(ctx context.Context) {
	interval := s.MetricsRefresh
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		stats, err := s.Content.Stats(ctx)
		if err == nil {
			s.Metrics.SetGauge("articles_published", float64(stats.Published))
			s.Metrics.SetGauge("avg_risk_score", stats.AvgRiskScore)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// clientIP resolves the caller address, honoring X-Forwarded-For only
// when the direct peer is a trusted proxy.
func (s *Server) clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return host
	}
	trusted := false
	for _, p := range s.TrustedProxyCIDRs {
		if p.Contains(addr) {
			trusted = true
			break
		}
	}
	if trusted {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			if ip := strings.TrimSpace(parts[0]); ip != "" {
				return ip
			}
		}
	}
	return host
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDurationSec(key string, fallbackSec int) time.Duration {
	return time.Duration(envInt(key, fallbackSec)) * time.Second
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseCIDRs(v string) []netip.Prefix {
	var out []netip.Prefix
	for _, part := range splitCSV(v) {
		if p, err := netip.ParsePrefix(part); err == nil {
			out = append(out, p)
		} else {
			log.Printf("ignoring bad CIDR %q: %v", part, err)
		}
	}
	return out
}

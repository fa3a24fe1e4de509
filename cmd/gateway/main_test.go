package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/shahbazsiddiqui147/todaydecode/pkg/content"
)

func TestMainFailsFastWithoutPostgres(t *testing.T) {
	t.Setenv("SESSION_SECRET", "secret")

	origFatal, origOpen, origRedis := logFatalf, openDBFnG, openRedisFnG
	defer func() { logFatalf, openDBFnG, openRedisFnG = origFatal, origOpen, origRedis }()

	var fatalMsg string
	logFatalf = func(format string, args ...interface{}) {
		fatalMsg = fmt.Sprintf(format, args...)
	}
	openDBFnG = func(ctx context.Context) (*pgxpool.Pool, error) {
		return nil, errors.New("connection refused")
	}
	openRedisFnG = func(ctx context.Context) (*redis.Client, error) {
		return nil, errors.New("redis down")
	}

	main()

	if !strings.Contains(fatalMsg, "connection refused") {
		t.Fatalf("expected postgres fatal, got %q", fatalMsg)
	}
}

func TestMainRequiresSessionSecret(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")

	origFatal, origOpen, origRedis := logFatalf, openDBFnG, openRedisFnG
	defer func() { logFatalf, openDBFnG, openRedisFnG = origFatal, origOpen, origRedis }()

	var fatalMsg string
	logFatalf = func(format string, args ...interface{}) {
		fatalMsg = fmt.Sprintf(format, args...)
	}
	openDBFnG = func(ctx context.Context) (*pgxpool.Pool, error) {
		return nil, nil
	}
	openRedisFnG = func(ctx context.Context) (*redis.Client, error) {
		return nil, errors.New("redis down")
	}

	main()

	if !strings.Contains(fatalMsg, "SESSION_SECRET") {
		t.Fatalf("expected session secret fatal, got %q", fatalMsg)
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TD_TEST_STR", "value")
	t.Setenv("TD_TEST_INT", "42")
	t.Setenv("TD_TEST_BAD_INT", "forty")

	if got := env("TD_TEST_STR", "fallback"); got != "value" {
		t.Fatalf("env = %q", got)
	}
	if got := env("TD_TEST_MISSING", "fallback"); got != "fallback" {
		t.Fatalf("env fallback = %q", got)
	}
	if got := envInt("TD_TEST_INT", 7); got != 42 {
		t.Fatalf("envInt = %d", got)
	}
	if got := envInt("TD_TEST_BAD_INT", 7); got != 7 {
		t.Fatalf("envInt bad = %d", got)
	}
	if got := envDurationSec("TD_TEST_INT", 5); got != 42*time.Second {
		t.Fatalf("envDurationSec = %v", got)
	}
}

func TestSplitCSV(t *testing.T) {
	if got := splitCSV(""); got != nil {
		t.Fatalf("empty should be nil, got %v", got)
	}
	got := splitCSV(" a, ,b ,c")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected parts %v", got)
	}
}

func TestParseCIDRsSkipsInvalid(t *testing.T) {
	got := parseCIDRs("10.0.0.0/8, nonsense, 192.168.0.0/16")
	if len(got) != 2 {
		t.Fatalf("expected 2 prefixes, got %v", got)
	}
}

func TestClientIPHonorsTrustedProxyOnly(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	s.TrustedProxyCIDRs = []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:555"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.1.2.3")
	if got := s.clientIP(req); got != "203.0.113.7" {
		t.Fatalf("trusted proxy should forward client IP, got %q", got)
	}

	req.RemoteAddr = "198.51.100.4:555"
	if got := s.clientIP(req); got != "198.51.100.4" {
		t.Fatalf("untrusted peer must not spoof, got %q", got)
	}
}

func TestMetricsMiddlewareRecordsRoutePattern(t *testing.T) {
	s, fc, _, _ := newTestServer(t)
	fc.articles = []content.Article{publishedArticle("a1", "red-sea-shipping", content.RegionMENA, false)}

	doRequest(s, httptest.NewRequest(http.MethodGet, "/api/articles/red-sea-shipping", nil))

	snap := s.Metrics.Snapshot()
	stat, ok := snap.Endpoints["GET /api/articles/{slug}"]
	if !ok {
		t.Fatalf("expected pattern series, got %v", snap.Endpoints)
	}
	if stat.Count != 1 || stat.LastStatusCode != http.StatusOK {
		t.Fatalf("unexpected stat %+v", stat)
	}
}

func TestMetricsLoopUpdatesGauges(t *testing.T) {
	s, fc, _, _ := newTestServer(t)
	fc.stats = content.SiteStats{Published: 9, AvgRiskScore: 55.5}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.metricsLoop(ctx)

	snap := s.Metrics.Snapshot()
	if snap.Gauges["articles_published"] != 9 {
		t.Fatalf("expected published gauge, got %v", snap.Gauges)
	}
	if snap.Gauges["avg_risk_score"] != 55.5 {
		t.Fatalf("expected risk gauge, got %v", snap.Gauges)
	}
}

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSignAndVerifySession(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tok, err := SignSession(Principal{Subject: "u-1", Email: "ops@example.com", Roles: []string{"admin"}}, "secret", time.Hour, now)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := VerifySession(tok, "secret", now.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Sub != "u-1" || claims.Email != "ops@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "admin" {
		t.Fatalf("unexpected roles: %+v", claims.Roles)
	}
}

func TestVerifySessionExpired(t *testing.T) {
	now := time.Now().UTC()
	tok, err := SignSession(Principal{Subject: "u-1", Roles: []string{"admin"}}, "secret", time.Minute, now)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := VerifySession(tok, "secret", now.Add(2*time.Minute)); err == nil {
		t.Fatalf("expected expiry error")
	}
}

func TestVerifySessionWrongSecret(t *testing.T) {
	now := time.Now().UTC()
	tok, _ := SignSession(Principal{Subject: "u-1", Roles: []string{"admin"}}, "secret", time.Hour, now)
	if _, err := VerifySession(tok, "other", now); err == nil {
		t.Fatalf("expected signature mismatch")
	}
}

func TestVerifySessionMalformed(t *testing.T) {
	for _, tok := range []string{"", "a.b", "not-a-token", "a.b.c.d"} {
		if _, err := VerifySession(tok, "secret", time.Now().UTC()); err == nil {
			t.Fatalf("token %q: expected error", tok)
		}
	}
}

func TestSignSessionRequiresSubjectAndSecret(t *testing.T) {
	if _, err := SignSession(Principal{}, "secret", time.Hour, time.Now()); err == nil {
		t.Fatalf("expected subject error")
	}
	if _, err := SignSession(Principal{Subject: "u"}, "", time.Hour, time.Now()); err == nil {
		t.Fatalf("expected secret error")
	}
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if TokenFromRequest(r) != "" {
		t.Fatalf("expected empty token")
	}
	r.Header.Set("Authorization", "Bearer abc")
	if TokenFromRequest(r) != "abc" {
		t.Fatalf("bearer token not extracted")
	}
	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.AddCookie(&http.Cookie{Name: SessionCookie, Value: "xyz"})
	if TokenFromRequest(r2) != "xyz" {
		t.Fatalf("cookie token not extracted")
	}
}

func TestMiddleware(t *testing.T) {
	now := time.Now().UTC()
	tok, _ := SignSession(Principal{Subject: "u-1", Roles: []string{"admin"}}, "secret", time.Hour, now)

	var seen Principal
	handler := Middleware("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/admin/articles", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: tok})
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if seen.Subject != "u-1" {
		t.Fatalf("principal not propagated: %+v", seen)
	}

	rec2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/api/admin/articles", nil)
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec2.Code)
	}
}

func TestHasAnyRole(t *testing.T) {
	p := Principal{Roles: []string{"Admin", " editor "}}
	if !HasAnyRole(p, "admin") || !HasAnyRole(p, "editor", "viewer") {
		t.Fatalf("role match failed")
	}
	if HasAnyRole(Principal{}, "admin") {
		t.Fatalf("empty principal should not match")
	}
	if !HasAnyRole(Principal{}) {
		t.Fatalf("no required roles always passes")
	}
}

func TestVerifyCredentials(t *testing.T) {
	if !VerifyCredentials("Ops@Example.com", "pw", "ops@example.com", "pw") {
		t.Fatalf("case-insensitive email should match")
	}
	if VerifyCredentials("ops@example.com", "wrong", "ops@example.com", "pw") {
		t.Fatalf("wrong password accepted")
	}
	if VerifyCredentials("ops@example.com", "pw", "", "") {
		t.Fatalf("unset admin credentials must fail closed")
	}
}

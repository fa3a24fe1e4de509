package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

// SessionCookie carries the admin session token between requests.
const SessionCookie = "td_session"

// Roles recognized by the admin surface. Admins manage everything;
// editors manage content but not taxonomy or deletions.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
)

type Principal struct {
	Subject string
	Email   string
	Roles   []string
}

type contextKey string

const principalContextKey contextKey = "todaydecode.principal"

type SessionClaims struct {
	Sub   string   `json:"sub"`
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles"`
	Exp   int64    `json:"exp"`
	Iat   int64    `json:"iat,omitempty"`
}

// SignSession mints an HS256 session token for the given principal.
func SignSession(p Principal, secret string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", errors.New("secret is required")
	}
	if strings.TrimSpace(p.Subject) == "" {
		return "", errors.New("subject required")
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	headerRaw, _ := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	payloadRaw, _ := json.Marshal(SessionClaims{
		Sub:   p.Subject,
		Email: p.Email,
		Roles: p.Roles,
		Exp:   now.Add(ttl).Unix(),
		Iat:   now.Unix(),
	})
	h := base64.RawURLEncoding.EncodeToString(headerRaw)
	pl := base64.RawURLEncoding.EncodeToString(payloadRaw)
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(h + "." + pl))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return h + "." + pl + "." + sig, nil
}

// VerifySession validates an HS256 session token and returns its claims.
func VerifySession(token, secret string, now time.Time) (SessionClaims, error) {
	if secret == "" {
		return SessionClaims{}, errors.New("secret is required")
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return SessionClaims{}, errors.New("invalid token format")
	}
	headerRaw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return SessionClaims{}, err
	}
	payloadRaw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return SessionClaims{}, err
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return SessionClaims{}, err
	}
	var header struct {
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(headerRaw, &header); err != nil {
		return SessionClaims{}, err
	}
	if strings.ToUpper(header.Alg) != "HS256" {
		return SessionClaims{}, errors.New("unsupported alg")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(parts[0] + "." + parts[1]))
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return SessionClaims{}, errors.New("signature mismatch")
	}
	var claims SessionClaims
	if err := json.Unmarshal(payloadRaw, &claims); err != nil {
		return SessionClaims{}, err
	}
	if claims.Sub == "" {
		return SessionClaims{}, errors.New("subject required")
	}
	if claims.Exp == 0 || now.Unix() >= claims.Exp {
		return SessionClaims{}, errors.New("token expired")
	}
	return claims, nil
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	v := ctx.Value(principalContextKey)
	if v == nil {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

func HasAnyRole(p Principal, required ...string) bool {
	if len(required) == 0 {
		return true
	}
	set := map[string]struct{}{}
	for _, r := range p.Roles {
		set[strings.ToLower(strings.TrimSpace(r))] = struct{}{}
	}
	for _, rr := range required {
		if _, ok := set[strings.ToLower(strings.TrimSpace(rr))]; ok {
			return true
		}
	}
	return false
}

// TokenFromRequest extracts the session token from the Authorization
// header or, failing that, the session cookie.
func TokenFromRequest(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[len("Bearer "):])
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

// SessionPrincipal resolves the request's session token into a
// principal. Absent or invalid tokens resolve to not-authenticated; the
// caller decides whether that means 401 or a sign-in redirect.
func SessionPrincipal(r *http.Request, secret string, now time.Time) (Principal, bool) {
	token := TokenFromRequest(r)
	if token == "" {
		return Principal{}, false
	}
	claims, err := VerifySession(token, secret, now)
	if err != nil {
		return Principal{}, false
	}
	return Principal{Subject: claims.Sub, Email: claims.Email, Roles: claims.Roles}, true
}

// Middleware authenticates API requests and stores the principal in the
// request context. Unauthenticated requests are rejected with 401.
func Middleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := SessionPrincipal(r, secret, time.Now().UTC())
			if !ok {
				http.Error(w, "unauthenticated", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// VerifyCredentials compares a submitted email/password pair against the
// configured admin credentials in constant time.
func VerifyCredentials(email, password, wantEmail, wantPassword string) bool {
	if wantEmail == "" || wantPassword == "" {
		return false
	}
	emailHash := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	wantEmailHash := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(wantEmail))))
	passHash := sha256.Sum256([]byte(password))
	wantPassHash := sha256.Sum256([]byte(wantPassword))
	emailOK := subtle.ConstantTimeCompare(emailHash[:], wantEmailHash[:]) == 1
	passOK := subtle.ConstantTimeCompare(passHash[:], wantPassHash[:]) == 1
	return emailOK && passOK
}

package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shahbazsiddiqui147/todaydecode/pkg/auth"
	"github.com/shahbazsiddiqui147/todaydecode/pkg/content"
	"github.com/shahbazsiddiqui147/todaydecode/pkg/httpx"
	"github.com/shahbazsiddiqui147/todaydecode/pkg/stream"
)

type signInRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	CallbackURL string `json:"callbackUrl"`
}

// handleSignIn verifies operator credentials and issues the session
// cookie. Attempts are throttled per client IP before credentials are
// even looked at.
func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	key := "signin:" + s.clientIP(r)
	if res := s.RateLimiter.Allow(key, s.SignInLimit); !res.Allowed {
		retry := int(time.Until(res.ResetAt).Seconds())
		if retry < 1 {
			retry = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		httpx.Error(w, http.StatusTooManyRequests, "too many sign-in attempts")
		return
	}

	req, isForm, err := decodeSignIn(r)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "malformed credentials")
		return
	}
	if !auth.VerifyCredentials(req.Email, req.Password, s.AdminEmail, s.AdminPassword) {
		httpx.Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	p := auth.Principal{
		Subject: "admin",
		Email:   req.Email,
		Roles:   []string{auth.RoleAdmin, auth.RoleEditor},
	}
	token, err := auth.SignSession(p, s.SessionSecret, s.SessionTTL, time.Now().UTC())
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "session issue failed")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.SessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	if isForm {
		http.Redirect(w, r, safeCallback(req.CallbackURL), http.StatusSeeOther)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":    true,
		"roles": p.Roles,
	})
}

func decodeSignIn(r *http.Request) (signInRequest, bool, error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/json") {
		var req signInRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return signInRequest{}, false, err
		}
		return req, false, nil
	}
	if err := r.ParseForm(); err != nil {
		return signInRequest{}, true, err
	}
	return signInRequest{
		Email:       r.PostFormValue("email"),
		Password:    r.PostFormValue("password"),
		CallbackURL: r.PostFormValue("callbackUrl"),
	}, true, nil
}

// safeCallback keeps the post-sign-in redirect on this site. Absolute
// and scheme-relative URLs fall back to the console.
func safeCallback(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") {
		return "/admin"
	}
	return raw
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// ---- articles ----

func (s *Server) adminListArticles(w http.ResponseWriter, r *http.Request) {
	articles, err := s.Content.ListArticles(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "list failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{"articles": articles})
}

func (s *Server) adminGetArticle(w http.ResponseWriter, r *http.Request) {
	article, err := s.Content.GetArticle(r.Context(), chi.URLParam(r, "id"))
	if err == content.ErrNotFound {
		httpx.Error(w, http.StatusNotFound, "article not found")
		return
	}
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, article)
}

func (s *Server) adminUpsertArticle(w http.ResponseWriter, r *http.Request) {
	var a content.Article
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		httpx.Error(w, http.StatusBadRequest, "malformed article")
		return
	}
	if id := chi.URLParam(r, "id"); id != "" {
		a.ID = id
	}
	saved, err := s.Content.UpsertArticle(r.Context(), a)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	s.publishEvent("article.saved", map[string]string{"id": saved.ID, "slug": saved.Slug, "status": saved.Status})
	httpx.WriteJSON(w, http.StatusOK, saved)
}

func (s *Server) adminDeleteArticle(w http.ResponseWriter, r *http.Request) {
	err := s.Content.DeleteArticle(r.Context(), chi.URLParam(r, "id"))
	if err == content.ErrNotFound {
		httpx.Error(w, http.StatusNotFound, "article not found")
		return
	}
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// adminPublishArticle flips an article live, notifies stream
// subscribers, and emits the broker event other systems consume.
func (s *Server) adminPublishArticle(w http.ResponseWriter, r *http.Request) {
	article, err := s.Content.PublishArticle(r.Context(), chi.URLParam(r, "id"))
	if err == content.ErrNotFound {
		httpx.Error(w, http.StatusNotFound, "article not found")
		return
	}
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "publish failed")
		return
	}
	notice := map[string]string{
		"id":     article.ID,
		"slug":   article.Slug,
		"title":  article.Title,
		"region": article.Region,
	}
	if s.Events != nil {
		s.Events.Publish(stream.NewEvent("article.published", notice))
	}
	s.publishEvent("article.published", notice)
	_ = s.Cache.Del(r.Context(), riskIndexCacheKey)
	_ = s.Cache.Del(r.Context(), dashboardCacheKey)
	httpx.WriteJSON(w, http.StatusOK, article)
}

// ---- authors ----

func (s *Server) adminListAuthors(w http.ResponseWriter, r *http.Request) {
	authors, err := s.Content.ListAuthors(r.Context())
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "list failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{"authors": authors})
}

func (s *Server) adminUpsertAuthor(w http.ResponseWriter, r *http.Request) {
	var a content.Author
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		httpx.Error(w, http.StatusBadRequest, "malformed author")
		return
	}
	saved, err := s.Content.UpsertAuthor(r.Context(), a)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusOK, saved)
}

func (s *Server) adminDeleteAuthor(w http.ResponseWriter, r *http.Request) {
	err := s.Content.DeleteAuthor(r.Context(), chi.URLParam(r, "id"))
	if err == content.ErrNotFound {
		httpx.Error(w, http.StatusNotFound, "author not found")
		return
	}
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- categories ----

func (s *Server) adminListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.Content.ListCategories(r.Context(), false)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "list failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{"categories": categories})
}

func (s *Server) adminUpsertCategory(w http.ResponseWriter, r *http.Request) {
	var c content.Category
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		httpx.Error(w, http.StatusBadRequest, "malformed category")
		return
	}
	saved, err := s.Content.UpsertCategory(r.Context(), c)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusOK, saved)
}

func (s *Server) adminDeleteCategory(w http.ResponseWriter, r *http.Request) {
	err := s.Content.DeleteCategory(r.Context(), chi.URLParam(r, "id"))
	if err == content.ErrNotFound {
		httpx.Error(w, http.StatusNotFound, "category not found")
		return
	}
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- alerts ----

// adminBroadcastAlert pushes a breaking alert to stream subscribers and
// the broker.
func (s *Server) adminBroadcastAlert(w http.ResponseWriter, r *http.Request) {
	var alert stream.Alert
	if err := json.NewDecoder(r.Body).Decode(&alert); err != nil {
		httpx.Error(w, http.StatusBadRequest, "malformed alert")
		return
	}
	if strings.TrimSpace(alert.Title) == "" {
		httpx.Error(w, http.StatusBadRequest, "title is required")
		return
	}
	if alert.Severity == "" {
		alert.Severity = content.RiskMedium
	}
	if s.Events != nil {
		s.Events.Publish(stream.NewAlertEvent(alert))
	}
	s.publishEvent("alert", alert)
	httpx.WriteJSON(w, http.StatusAccepted, map[string]bool{"ok": true})
}

// publishEvent forwards a content event to the broker when one is
// configured. Broker trouble is logged, never surfaced to the caller.
func (s *Server) publishEvent(eventType string, data interface{}) {
	if s.Bus == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Bus.Publish(ctx, eventType, data); err != nil {
		log.Printf("event bus publish %s: %v", eventType, err)
	}
}

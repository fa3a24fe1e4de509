package main

import (
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shahbazsiddiqui147/todaydecode/pkg/auth"
	"github.com/shahbazsiddiqui147/todaydecode/pkg/content"
	"github.com/shahbazsiddiqui147/todaydecode/pkg/gate"
)

// fallbackScript is the client-side safety net: if a page was served
// moments before the maintenance flag flipped, the poll notices and
// moves the visitor to the holding page without a reload race.
const fallbackScript = `<script>
(function () {
  var check = function () {
    var path = window.location.pathname;
    if (path === '/coming-soon/' || path.indexOf('/admin') === 0 || path.indexOf('/auth') === 0) {
      return;
    }
    fetch('/api/check-maintenance', {cache: 'no-store'})
      .then(function (r) { return r.json(); })
      .then(function (body) {
        if (body.maintenance && !body.bypass) {
          document.body.innerHTML = '<p class="gate-pending">Establishing secure connection&hellip;</p>';
          window.location.assign('/coming-soon/');
        }
      })
      .catch(function () {});
  };
  check();
  setInterval(check, 30000);
})();
</script>`

var pageTemplates = template.Must(template.New("pages").Parse(`
{{define "head"}}<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}} | Today Decode</title>
</head>
<body>{{end}}

{{define "shellTop"}}{{template "head" .}}
<header>
  <a href="/" class="brand">Today Decode</a>
  <nav>
  {{range .Categories}}<a href="/categories/{{.Slug}}">{{.Name}}</a>{{end}}
  </nav>
</header>
<main>{{end}}

{{define "shellBottom"}}</main>
<footer><p>Geopolitical intelligence, decoded daily.</p></footer>
{{.FallbackScript}}
</body>
</html>{{end}}

{{define "bareTop"}}{{template "head" .}}<main>{{end}}
{{define "bareBottom"}}</main>{{.FallbackScript}}</body></html>{{end}}

{{define "home"}}
<section class="featured">
<h1>Latest intelligence</h1>
{{range .Articles}}
  <article class="card risk-{{.RiskLevel}}">
    <h2><a href="/articles/{{.Slug}}">{{.Title}}</a></h2>
    <p>{{.Summary}}</p>
    <p class="meta">{{.Region}} &middot; risk {{.RiskScore}}/100</p>
  </article>
{{else}}
  <p>No briefings published yet.</p>
{{end}}
</section>
{{end}}

{{define "article"}}
<article class="briefing risk-{{.Article.RiskLevel}}">
<h1>{{.Article.Title}}</h1>
<p class="meta">{{.Article.Region}} &middot; {{.Article.RiskLevel}} risk &middot; impact {{.Article.ImpactScore}}/100</p>
<p class="summary">{{.Article.Summary}}</p>
<div class="body">{{.Article.Content}}</div>
</article>
{{end}}

{{define "category"}}
<section class="category">
<h1>{{.Category.Name}}</h1>
{{if .Category.Description}}<p class="intro">{{.Category.Description}}</p>{{end}}
{{range .Articles}}
  <article class="card risk-{{.RiskLevel}}">
    <h2><a href="/articles/{{.Slug}}">{{.Title}}</a></h2>
    <p>{{.Summary}}</p>
    <p class="meta">{{.Region}} &middot; risk {{.RiskScore}}/100</p>
  </article>
{{else}}
  <p>No briefings on this desk yet.</p>
{{end}}
</section>
{{end}}

{{define "coming-soon"}}
<section class="holding">
<h1>Today Decode</h1>
<p>We are preparing something new. The briefing room opens soon.</p>
</section>
{{end}}

{{define "signin"}}
<section class="signin">
<h1>Sign in</h1>
<form method="post" action="/api/auth/signin">
  <input type="hidden" name="callbackUrl" value="{{.CallbackURL}}">
  <label>Email <input type="email" name="email" required></label>
  <label>Password <input type="password" name="password" required></label>
  <button type="submit">Sign in</button>
</form>
</section>
{{end}}

{{define "admin"}}
<section class="admin">
<h1>Newsroom console</h1>
<p>Signed in as {{.Principal}}.</p>
<ul>
  <li><a href="/api/admin/articles">Articles</a></li>
  <li><a href="/api/admin/authors">Authors</a></li>
  <li><a href="/api/admin/categories">Categories</a></li>
  <li><a href="/api/admin/metrics">Metrics</a></li>
</ul>
</section>
{{end}}
`))

type pageData struct {
	Title          string
	Categories     []content.Category
	Category       content.Category
	Articles       []content.Article
	Article        content.Article
	CallbackURL    string
	Principal      string
	FallbackScript template.HTML
}

// renderPage writes a full document: shell or bare chrome around the
// named content template, per the layout decision.
func (s *Server) renderPage(w http.ResponseWriter, layout gate.Layout, name string, data pageData) {
	data.FallbackScript = template.HTML(fallbackScript)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	top, bottom := "shellTop", "shellBottom"
	if layout == gate.LayoutBare {
		top, bottom = "bareTop", "bareBottom"
	}
	if err := pageTemplates.ExecuteTemplate(w, top, data); err != nil {
		return
	}
	if err := pageTemplates.ExecuteTemplate(w, name, data); err != nil {
		return
	}
	_ = pageTemplates.ExecuteTemplate(w, bottom, data)
}

// guardPage re-runs the maintenance check inside the handler. The edge
// interceptor already redirects blocked requests, so this only fires if
// a page is reached through some other mount.
func (s *Server) guardPage(w http.ResponseWriter, r *http.Request) bool {
	d := gate.Decide(s.gateInput(r))
	if !d.Allowed() {
		http.Redirect(w, r, d.RedirectTo, http.StatusTemporaryRedirect)
		return false
	}
	return true
}

func (s *Server) pageLayout(r *http.Request) gate.Layout {
	maintenanceOn, bypass := s.maintenanceState(r)
	return gate.ComposeLayout(r.URL.Path, maintenanceOn, bypass)
}

func (s *Server) pageHome(w http.ResponseWriter, r *http.Request) {
	if !s.guardPage(w, r) {
		return
	}
	articles, err := s.Content.Featured(r.Context(), 6)
	if err != nil {
		http.Error(w, "temporarily unavailable", http.StatusInternalServerError)
		return
	}
	categories, err := s.Content.ListCategories(r.Context(), true)
	if err != nil {
		categories = nil
	}
	s.renderPage(w, s.pageLayout(r), "home", pageData{
		Title:      "Global briefings",
		Categories: categories,
		Articles:   articles,
	})
}

func (s *Server) pageArticle(w http.ResponseWriter, r *http.Request) {
	if !s.guardPage(w, r) {
		return
	}
	slug := chi.URLParam(r, "slug")
	article, err := s.Content.PublishedBySlug(r.Context(), slug)
	if err == content.ErrNotFound {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, "temporarily unavailable", http.StatusInternalServerError)
		return
	}
	categories, _ := s.Content.ListCategories(r.Context(), true)
	s.renderPage(w, s.pageLayout(r), "article", pageData{
		Title:      article.Title,
		Categories: categories,
		Article:    article,
	})
}

func (s *Server) pageCategory(w http.ResponseWriter, r *http.Request) {
	if !s.guardPage(w, r) {
		return
	}
	cat, err := s.Content.CategoryBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err == content.ErrNotFound {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, "temporarily unavailable", http.StatusInternalServerError)
		return
	}
	articles, err := s.Content.PublishedByCategory(r.Context(), cat.ID, 20)
	if err != nil {
		http.Error(w, "temporarily unavailable", http.StatusInternalServerError)
		return
	}
	categories, _ := s.Content.ListCategories(r.Context(), true)
	s.renderPage(w, s.pageLayout(r), "category", pageData{
		Title:      cat.Name,
		Categories: categories,
		Category:   cat,
		Articles:   articles,
	})
}

func (s *Server) pageComingSoon(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, gate.LayoutBare, "coming-soon", pageData{Title: "Coming soon"})
}

func (s *Server) pageSignIn(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, gate.LayoutBare, "signin", pageData{
		Title:       "Sign in",
		CallbackURL: r.URL.Query().Get("callbackUrl"),
	})
}

// pageAdmin renders the console shell. The interceptor has already
// verified the session for every /admin path.
func (s *Server) pageAdmin(w http.ResponseWriter, r *http.Request) {
	who := ""
	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		who = p.Email
	}
	s.renderPage(w, gate.LayoutShell, "admin", pageData{
		Title:     "Newsroom console",
		Principal: who,
	})
}

func (s *Server) sitemap(w http.ResponseWriter, r *http.Request) {
	slugs, err := s.Content.PublishedSlugs(r.Context())
	if err != nil {
		http.Error(w, "temporarily unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` + "\n"))
	w.Write([]byte(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">` + "\n"))
	writeURL := func(loc string) {
		w.Write([]byte("<url><loc>"))
		template.HTMLEscape(w, []byte(loc))
		w.Write([]byte("</loc></url>\n"))
	}
	writeURL(s.BaseURL + "/")
	for _, slug := range slugs {
		writeURL(s.BaseURL + "/articles/" + slug)
	}
	w.Write([]byte("</urlset>\n"))
}

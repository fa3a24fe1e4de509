package gate

import (
	"strings"
	"time"
)

const (
	OutcomeAllow       = "ALLOW"
	OutcomeMaintenance = "REDIRECT_MAINTENANCE"
)

const (
	ReasonFlagOff         = "FLAG_OFF"
	ReasonMaintenancePage = "MAINTENANCE_PAGE"
	ReasonExemptPath      = "EXEMPT_PATH"
	ReasonBypassQuery     = "BYPASS_QUERY"
	ReasonBypassCookie    = "BYPASS_COOKIE"
	ReasonMaintenanceLock = "MAINTENANCE_LOCK"
)

const (
	// MaintenancePath is the canonical holding-page path, trailing slash included.
	MaintenancePath = "/coming-soon/"
	SignInPath      = "/auth/signin/"
	HealthPath      = "/healthz"

	AdminPrefix = "/admin"
	AuthPrefix  = "/auth"
	APIPrefix   = "/api"

	BypassParam  = "preview"
	BypassCookie = "preview_access"
	BypassValue  = "true"
	BypassTTL    = 7 * 24 * time.Hour
)

var staticPrefixes = []string{"/static", "/assets", "/images"}

// flagTruthy is the exact-match allowlist for maintenance flag values.
// Substring containment ("falsetrue" counts as on) appeared in earlier
// iterations of the gate and was rejected as a parsing accident.
var flagTruthy = map[string]struct{}{
	"true": {},
	"1":    {},
	"on":   {},
	"yes":  {},
}

// FlagEnabled resolves the maintenance flag from its two configuration
// sources. Either source being truthy turns the flag on; absence is off.
func FlagEnabled(serverValue, publicValue string) bool {
	for _, raw := range []string{serverValue, publicValue} {
		v := strings.ToLower(strings.TrimSpace(raw))
		if _, ok := flagTruthy[v]; ok {
			return true
		}
	}
	return false
}

// Input carries everything the decision depends on. All fields come from
// a single request plus process configuration; nothing is looked up.
type Input struct {
	Path       string
	Query      map[string]string
	Cookies    map[string]string
	ServerFlag string
	PublicFlag string
}

// Decision is the outcome of one gate evaluation.
type Decision struct {
	Outcome    string
	Reason     string
	RedirectTo string
	// SetBypassCookie instructs the caller to persist the query-param
	// grant as the preview_access cookie for BypassTTL.
	SetBypassCookie bool
}

func (d Decision) Allowed() bool { return d.Outcome == OutcomeAllow }

func allow(reason string) Decision {
	return Decision{Outcome: OutcomeAllow, Reason: reason}
}

// Decide evaluates the maintenance gate for one request. The rule table
// is ordered: flag check, maintenance page, path exemptions, query
// bypass, cookie bypass, redirect. Exemptions run before bypass so the
// holding page, auth pages, API routes and assets stay reachable without
// a credential.
func Decide(in Input) Decision {
	if !FlagEnabled(in.ServerFlag, in.PublicFlag) {
		return allow(ReasonFlagOff)
	}
	if IsMaintenancePage(in.Path) {
		return allow(ReasonMaintenancePage)
	}
	if ExemptPath(in.Path) {
		return allow(ReasonExemptPath)
	}
	if in.Query[BypassParam] == BypassValue {
		return Decision{Outcome: OutcomeAllow, Reason: ReasonBypassQuery, SetBypassCookie: true}
	}
	if in.Cookies[BypassCookie] == BypassValue {
		return allow(ReasonBypassCookie)
	}
	return Decision{Outcome: OutcomeMaintenance, Reason: ReasonMaintenanceLock, RedirectTo: MaintenancePath}
}

// IsMaintenancePage reports whether path is the holding page, with or
// without the canonical trailing slash.
func IsMaintenancePage(path string) bool {
	return strings.TrimSuffix(path, "/") == strings.TrimSuffix(MaintenancePath, "/")
}

// ExemptPath reports whether path is never subject to the maintenance
// redirect: the health probe, admin console (gated separately by session
// auth), auth pages, API routes, static asset trees, and file-like
// paths.
func ExemptPath(path string) bool {
	if path == HealthPath {
		return true
	}
	if underPrefix(path, AdminPrefix) || underPrefix(path, AuthPrefix) || underPrefix(path, APIPrefix) {
		return true
	}
	for _, p := range staticPrefixes {
		if underPrefix(path, p) {
			return true
		}
	}
	return fileLike(path)
}

func underPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// fileLike treats a dot in the final path segment as a file extension
// (favicon.ico, sitemap.xml), which the asset pipeline must always serve.
func fileLike(path string) bool {
	last := path
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		last = path[i+1:]
	}
	return strings.Contains(last, ".")
}

// BypassPresent reports whether either bypass credential accompanies the
// request. Used by layout composition, which needs the grant state but
// not a full decision.
func BypassPresent(query, cookies map[string]string) bool {
	return query[BypassParam] == BypassValue || cookies[BypassCookie] == BypassValue
}

type Layout int

const (
	// LayoutShell renders navigation chrome around the page content.
	LayoutShell Layout = iota
	// LayoutBare renders the page content alone.
	LayoutBare
)

// ComposeLayout decides whether a page gets the application shell. The
// holding page and auth pages are always bare; everything else is bare
// only while maintenance is on without a bypass grant.
func ComposeLayout(path string, maintenanceOn, bypass bool) Layout {
	if IsMaintenancePage(path) || underPrefix(path, AuthPrefix) {
		return LayoutBare
	}
	if maintenanceOn && !bypass {
		return LayoutBare
	}
	return LayoutShell
}

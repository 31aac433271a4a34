package tenant

import (
	"net"
	"regexp"
	"strings"
)

// Kind is the kind of site a hostname routes to.
type Kind string

const (
	KindUnknown Kind = "unknown"
	KindApex    Kind = "apex"
	KindApp     Kind = "app"
	KindAdmin   Kind = "admin"
	KindAuth    Kind = "auth"
	KindAPI     Kind = "api"
	KindTenant  Kind = "tenant"
	KindApply   Kind = "apply"
)

const applyPrefix = "apply-"

var (
	slugRegex = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?$`)

	DefaultBaseDomains = []string{"edapp.co.za", "localhost"}

	// DefaultReservedPaths are path prefixes that are never rewritten.
	DefaultReservedPaths = []string{
		"/v1", "/tenant", "/apply", "/admin", "/auth", "/app",
		"/health", "/static", "/_next", "/favicon.ico",
	}

	reservedLabels = map[string]Kind{
		"www":   KindApex,
		"app":   KindApp,
		"admin": KindAdmin,
		"auth":  KindAuth,
		"api":   KindAPI,
	}

	// site path prefix per kind
	kindPrefixes = map[Kind]string{
		KindTenant: "/tenant",
		KindApply:  "/apply",
		KindAdmin:  "/admin",
		KindAuth:   "/auth",
		KindApp:    "/app",
	}
)

// ValidSlug reports whether `slug` can name a tenant (a single DNS label).
func ValidSlug(slug string) bool {
	return slugRegex.MatchString(slug)
}

// AvailableSlug reports whether `slug` can be given to a new tenant:
// a valid slug its own hostname resolves back to.
func AvailableSlug(slug string) bool {
	if !ValidSlug(slug) || strings.HasPrefix(slug, applyPrefix) {
		return false
	}
	_, reserved := reservedLabels[slug]
	return !reserved
}

// Resolution is the outcome of resolving a hostname.
// Slug is only set for the tenant and apply kinds.
type Resolution struct {
	Host string `json:"host"`
	Kind Kind   `json:"kind"`
	Slug string `json:"slug"`
}

func (res Resolution) HasTenant() bool {
	return res.Slug != ""
}

// Resolver maps hostnames to sites. It does no I/O.
type Resolver struct {
	baseDomains   []string
	reservedPaths []string
}

func NewResolver(baseDomains, reservedPaths []string) *Resolver {
	if len(baseDomains) == 0 {
		baseDomains = DefaultBaseDomains
	}
	if len(reservedPaths) == 0 {
		reservedPaths = DefaultReservedPaths
	}

	r := &Resolver{reservedPaths: reservedPaths}
	for _, bd := range baseDomains {
		if bd = canonicalHost(bd); bd != "" {
			r.baseDomains = append(r.baseDomains, bd)
		}
	}
	return r
}

// BaseDomain returns the primary base domain.
func (r *Resolver) BaseDomain() string {
	if len(r.baseDomains) == 0 {
		return ""
	}
	return r.baseDomains[0]
}

// SiteURL returns the root URL of the `kind` site on the primary base domain.
func (r *Resolver) SiteURL(scheme string, kind Kind, slug string) string {
	var label string
	switch kind {
	case KindApex, KindUnknown:
	case KindTenant:
		label = slug
	case KindApply:
		label = applyPrefix + slug
	default:
		label = string(kind)
	}

	host := r.BaseDomain()
	if label != "" {
		host = label + "." + host
	}
	return scheme + "://" + host
}

// Resolve maps `host` (with or without port) to a Resolution.
func (r *Resolver) Resolve(host string) Resolution {
	host = canonicalHost(host)
	res := Resolution{Host: host, Kind: KindUnknown}
	if host == "" {
		return res
	}

	for _, base := range r.baseDomains {
		if host == base {
			res.Kind = KindApex
			return res
		}
		if !strings.HasSuffix(host, "."+base) {
			continue
		}

		sub := strings.TrimSuffix(host, "."+base)
		label := sub
		if i := strings.IndexByte(sub, '.'); i >= 0 {
			label = sub[:i]
		}

		if kind, ok := reservedLabels[label]; ok {
			res.Kind = kind
			return res
		}
		if strings.HasPrefix(label, applyPrefix) {
			if slug := strings.TrimPrefix(label, applyPrefix); ValidSlug(slug) {
				res.Kind, res.Slug = KindApply, slug
			}
			return res
		}
		if ValidSlug(label) {
			res.Kind, res.Slug = KindTenant, label
		}
		return res
	}
	return res
}

// IsReservedPath reports whether `path` targets a route that is never rewritten.
func (r *Resolver) IsReservedPath(path string) bool {
	for _, prefix := range r.reservedPaths {
		if path == prefix || strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/") {
			return true
		}
	}
	return false
}

// RewritePath maps a site path to its internal route, e.g.
// "/dashboard" on {slug}.edapp.co.za -> "/tenant/{slug}/dashboard".
func (r *Resolver) RewritePath(res Resolution, path string) string {
	if path == "" {
		path = "/"
	}
	if r.IsReservedPath(path) {
		return path
	}

	prefix, ok := kindPrefixes[res.Kind]
	if !ok {
		return path
	}
	if res.Kind == KindTenant || res.Kind == KindApply {
		if res.Slug == "" {
			return path
		}
		prefix += "/" + res.Slug
	}
	if path == "/" {
		return prefix
	}
	return prefix + path
}

// canonicalHost lowers `host` and strips its port and trailing dot.
func canonicalHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	} else if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = host[1 : len(host)-1]
	}
	return strings.TrimSuffix(host, ".")
}

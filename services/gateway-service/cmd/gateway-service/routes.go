package main

import (
	"embed"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/md-rashed-zaman/whenmeet/libs/auth"
	"github.com/md-rashed-zaman/whenmeet/libs/httpx"
)

//go:embed assets/gateway.v1.yaml
var openAPISpec embed.FS

type routeConfig struct {
	PollURL    *url.URL
	BillingURL *url.URL
	JWTSecret  string

	// AuthURL and AnalyticsURL are optional; nil leaves their routes unmounted.
	AuthURL      *url.URL
	AnalyticsURL *url.URL
	// Transport is used for upstream calls; nil means http.DefaultTransport.
	Transport http.RoundTripper
}

func registerRoutes(mux *http.ServeMux, cfg routeConfig) {
	pollProxy := newProxy(cfg.PollURL, cfg.Transport)
	billingProxy := newProxy(cfg.BillingURL, cfg.Transport)

	// Poll pages are public; a valid token only adds the owner identity.
	registerProxy(mux, "/api/v1/polls", optionalAuth(pollProxy, cfg.JWTSecret))
	// Stripe reaches the webhook without a JWT; the signature is the auth.
	registerProxy(mux, "/api/v1/billing/webhooks/stripe", anonymous(billingProxy))
	// The checkout return page polls these without a JWT.
	registerProxy(mux, "/api/v1/billing/checkout/session", anonymous(billingProxy))
	registerProxy(mux, "/api/v1/billing/checkout/session/ack", anonymous(billingProxy))
	registerProxy(mux, "/api/v1/billing", requireAuth(billingProxy, cfg.JWTSecret))
	if cfg.AuthURL != nil {
		// The auth service verifies its own bearer tokens on /me.
		registerProxy(mux, "/api/v1/auth", anonymous(newProxy(cfg.AuthURL, cfg.Transport)))
	}
	if cfg.AnalyticsURL != nil {
		analyticsProxy := newProxy(cfg.AnalyticsURL, cfg.Transport)
		registerProxy(mux, "/api/v1/analytics", requireAuth(requireRole(analyticsProxy, "admin"), cfg.JWTSecret))
	}

	mux.HandleFunc("GET /billing/success", func(w http.ResponseWriter, r *http.Request) {
		renderCheckoutReturnPage(w, r, "Payment successful", "success")
	})
	mux.HandleFunc("GET /billing/cancel", func(w http.ResponseWriter, r *http.Request) {
		renderCheckoutReturnPage(w, r, "Payment canceled", "cancel")
	})
	mux.HandleFunc("GET /openapi", func(w http.ResponseWriter, _ *http.Request) {
		data, err := openAPISpec.ReadFile("assets/gateway.v1.yaml")
		if err != nil {
			http.Error(w, "openapi not available", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	})
}

func newProxy(target *url.URL, transport http.RoundTripper) *httputil.ReverseProxy {
	p := httputil.NewSingleHostReverseProxy(target)
	if transport != nil {
		p.Transport = transport
	}
	return p
}

func registerProxy(mux *http.ServeMux, prefix string, handler http.Handler) {
	if !strings.HasSuffix(prefix, "/") {
		mux.Handle(prefix, handler)
		mux.Handle(prefix+"/", handler)
		return
	}
	mux.Handle(prefix, handler)
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}

// stripIdentity removes identity headers a client may have forged. Upstreams trust them.
func stripIdentity(r *http.Request) {
	r.Header.Del(httpx.UserIDHeader)
	r.Header.Del(httpx.RoleHeader)
}

func setIdentity(r *http.Request, claims *auth.Claims) {
	r.Header.Set(httpx.UserIDHeader, claims.Sub)
	if claims.Role != "" {
		r.Header.Set(httpx.RoleHeader, claims.Role)
	}
}

func anonymous(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stripIdentity(r)
		next.ServeHTTP(w, r)
	})
}

func requireAuth(next http.Handler, jwtSecret string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stripIdentity(r)
		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
			return
		}
		claims, err := auth.ParseAndVerifyHS256(token, jwtSecret)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		setIdentity(r, claims)
		next.ServeHTTP(w, r)
	})
}

// optionalAuth passes anonymous requests through but still rejects a bad token, so a
// client with an expired session does not silently lose ownership.
func optionalAuth(next http.Handler, jwtSecret string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stripIdentity(r)
		raw := strings.TrimSpace(r.Header.Get("Authorization"))
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := auth.BearerToken(raw)
		if !ok {
			http.Error(w, "invalid Authorization header", http.StatusUnauthorized)
			return
		}
		claims, err := auth.ParseAndVerifyHS256(token, jwtSecret)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		setIdentity(r, claims)
		next.ServeHTTP(w, r)
	})
}

func requireRole(next http.Handler, roles ...string) http.Handler {
	allowed := map[string]struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := allowed[r.Header.Get(httpx.RoleHeader)]; !ok {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

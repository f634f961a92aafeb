package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/whenmeet/libs/auth"
	"github.com/md-rashed-zaman/whenmeet/libs/httpx"
)

const testSecret = "test-secret"

// echoUpstream reports the identity headers and path it received.
func echoUpstream(t *testing.T, name string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream", name)
		w.Header().Set("X-Seen-User", r.Header.Get(httpx.UserIDHeader))
		w.Header().Set("X-Seen-Role", r.Header.Get(httpx.RoleHeader))
		_, _ = io.WriteString(w, r.URL.Path)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newGateway(t *testing.T) http.Handler {
	t.Helper()
	pollURL, _ := url.Parse(echoUpstream(t, "poll").URL)
	billingURL, _ := url.Parse(echoUpstream(t, "billing").URL)
	authURL, _ := url.Parse(echoUpstream(t, "auth").URL)
	analyticsURL, _ := url.Parse(echoUpstream(t, "analytics").URL)
	mux := http.NewServeMux()
	registerRoutes(mux, routeConfig{
		PollURL:      pollURL,
		BillingURL:   billingURL,
		JWTSecret:    testSecret,
		AuthURL:      authURL,
		AnalyticsURL: analyticsURL,
	})
	return mux
}

func token(t *testing.T, sub, role string, exp time.Time) string {
	t.Helper()
	tok, err := auth.SignHS256(auth.Claims{Sub: sub, Role: role, Iat: time.Now().Unix(), Exp: exp.Unix()}, testSecret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	return tok
}

func do(h http.Handler, method, path, bearer string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPublicPollRoutesStripForgedIdentity(t *testing.T) {
	gw := newGateway(t)
	rec := do(gw, http.MethodGet, "/api/v1/polls/team-sync-x1/results", "", map[string]string{
		httpx.UserIDHeader: "someone-else",
		httpx.RoleHeader:   "admin",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Upstream") != "poll" || rec.Body.String() != "/api/v1/polls/team-sync-x1/results" {
		t.Fatalf("unexpected upstream: %s %q", rec.Header().Get("X-Upstream"), rec.Body.String())
	}
	if rec.Header().Get("X-Seen-User") != "" || rec.Header().Get("X-Seen-Role") != "" {
		t.Fatalf("forged identity reached upstream")
	}
}

func TestPollRoutesMapTokenToUser(t *testing.T) {
	gw := newGateway(t)
	rec := do(gw, http.MethodPost, "/api/v1/polls", token(t, "user-1", "", time.Now().Add(time.Hour)), map[string]string{
		httpx.UserIDHeader: "forged",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-Seen-User"); got != "user-1" {
		t.Fatalf("upstream saw user %q", got)
	}

	rec = do(gw, http.MethodPost, "/api/v1/polls", "badtoken", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: expected 401, got %d", rec.Code)
	}
	rec = do(gw, http.MethodPost, "/api/v1/polls", token(t, "user-1", "", time.Now().Add(-time.Minute)), nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expired token: expected 401, got %d", rec.Code)
	}
}

func TestBillingRoutes(t *testing.T) {
	gw := newGateway(t)

	rec := do(gw, http.MethodGet, "/api/v1/billing/subscription", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous subscription read: expected 401, got %d", rec.Code)
	}

	rec = do(gw, http.MethodGet, "/api/v1/billing/subscription", token(t, "user-2", "admin", time.Now().Add(time.Hour)), nil)
	if rec.Code != http.StatusOK || rec.Header().Get("X-Upstream") != "billing" {
		t.Fatalf("expected billing 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Seen-User") != "user-2" || rec.Header().Get("X-Seen-Role") != "admin" {
		t.Fatalf("identity not forwarded: %q %q", rec.Header().Get("X-Seen-User"), rec.Header().Get("X-Seen-Role"))
	}

	for _, path := range []string{
		"/api/v1/billing/webhooks/stripe",
		"/api/v1/billing/checkout/session?session_id=cs_1",
		"/api/v1/billing/checkout/session/ack",
	} {
		rec = do(gw, http.MethodPost, path, "", map[string]string{httpx.UserIDHeader: "forged"})
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected public 200, got %d", path, rec.Code)
		}
		if rec.Header().Get("X-Seen-User") != "" {
			t.Fatalf("%s: forged identity reached upstream", path)
		}
	}
}

func TestCheckoutReturnPageEscapes(t *testing.T) {
	gw := newGateway(t)
	rec := do(gw, http.MethodGet, "/billing/success?session_id=%3Cscript%3E&state=abc", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "<script>alert") || strings.Contains(body, "<code><script>") {
		t.Fatalf("session id not escaped: %s", body)
	}
	if !strings.Contains(body, "&lt;script&gt;") {
		t.Fatalf("expected escaped session id in body")
	}

	rec = do(gw, http.MethodGet, "/billing/cancel", "", nil)
	if !strings.Contains(rec.Body.String(), "Missing <code>session_id</code>") {
		t.Fatalf("expected missing session message")
	}
}

func TestOpenAPI(t *testing.T) {
	rec := do(newGateway(t), http.MethodGet, "/openapi", "", nil)
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Body.String(), "openapi: 3.0.3") {
		t.Fatalf("unexpected openapi response: %d", rec.Code)
	}
}

func TestAuthRoutesArePublic(t *testing.T) {
	gw := newGateway(t)
	rec := do(gw, http.MethodPost, "/api/v1/auth/login", "", map[string]string{httpx.UserIDHeader: "forged"})
	if rec.Code != http.StatusOK || rec.Header().Get("X-Upstream") != "auth" {
		t.Fatalf("expected auth 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Seen-User") != "" {
		t.Fatal("forged identity reached auth upstream")
	}
	// An expired token is not rejected here; /me answers for itself.
	rec = do(gw, http.MethodGet, "/api/v1/auth/me", token(t, "user-1", "", time.Now().Add(-time.Hour)), nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "/api/v1/auth/me" {
		t.Fatalf("expected passthrough, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestAnalyticsRequiresAdmin(t *testing.T) {
	gw := newGateway(t)
	rec := do(gw, http.MethodGet, "/api/v1/analytics/daily", token(t, "user-1", "", time.Now().Add(time.Hour)), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin: expected 403, got %d", rec.Code)
	}
	rec = do(gw, http.MethodGet, "/api/v1/analytics/daily", token(t, "ops", "admin", time.Now().Add(time.Hour)), nil)
	if rec.Code != http.StatusOK || rec.Header().Get("X-Upstream") != "analytics" {
		t.Fatalf("admin: expected analytics 200, got %d", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	h := requireRole(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), "admin")

	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set(httpx.RoleHeader, "member")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rw.Code)
	}

	reqOK := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	reqOK.Header.Set(httpx.RoleHeader, "admin")
	rwOK := httptest.NewRecorder()
	h.ServeHTTP(rwOK, reqOK)
	if rwOK.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rwOK.Code)
	}
}

package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus/hooks/test"
)

var testSecret = []byte("test-secret")

func newTestMiddleware(t *testing.T) http.Handler {
	t.Helper()
	verifier, err := NewVerifier(testSecret, "fruit_monitor")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	logger, _ := test.NewNullLogger()
	mw, err := NewMiddleware(verifier, ReadingsPolicy(), logger)
	if err != nil {
		t.Fatalf("new middleware: %v", err)
	}
	return mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
}

func serve(handler http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func TestMiddlewareRequiresToken(t *testing.T) {
	resp := serve(newTestMiddleware(t), PathLatest, "")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
	if resp.Header().Get("WWW-Authenticate") == "" {
		t.Fatalf("expected bearer challenge header")
	}
}

func TestMiddlewareRoleMatrix(t *testing.T) {
	handler := newTestMiddleware(t)
	viewer := mustToken(t, "viewer", "", time.Hour)
	operator := mustToken(t, "operator", "fruit_monitor", time.Hour)

	cases := []struct {
		path  string
		token string
		want  int
	}{
		{PathLatest, viewer, http.StatusOK},
		{PathReadings, viewer, http.StatusOK},
		{"/api/v1/readings/export.xlsx", viewer, http.StatusForbidden},
		{"/api/v1/readings/export.pdf", operator, http.StatusOK},
		{PathLatest, operator, http.StatusOK},
		{"/api/v1/unknown", viewer, http.StatusOK},
		{"/api/v1/unknown", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		if resp := serve(handler, tc.path, tc.token); resp.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.path, tc.want, resp.Code)
		}
	}
}

func TestMiddlewareOpenPaths(t *testing.T) {
	handler := newTestMiddleware(t)
	for _, path := range []string{PathHealth, PathMetrics} {
		if resp := serve(handler, path, ""); resp.Code != http.StatusNoContent {
			t.Fatalf("%s: expected pass-through without identity, got %d", path, resp.Code)
		}
	}
}

func TestMiddlewareRejectsExpiredToken(t *testing.T) {
	token := mustToken(t, "operator", "", -time.Hour)
	if resp := serve(newTestMiddleware(t), PathReadings, token); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestVerifyBindsDevice(t *testing.T) {
	verifier, err := NewVerifier(testSecret, "fruit_monitor")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	identity, err := verifier.Verify(mustToken(t, "Viewer", "", time.Hour))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if identity.Role != RoleViewer || identity.Device != "fruit_monitor" || identity.Subject != "ops-1" {
		t.Fatalf("unexpected identity: %+v", identity)
	}

	if _, err := verifier.Verify(mustToken(t, "viewer", "apple_room", time.Hour)); !errors.Is(err, ErrWrongDevice) {
		t.Fatalf("expected wrong device error, got %v", err)
	}
}

func TestVerifyRejects(t *testing.T) {
	verifier, _ := NewVerifier(testSecret, "fruit_monitor")
	if _, err := verifier.Verify(""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected missing token, got %v", err)
	}
	if _, err := verifier.Verify(mustToken(t, "admin", "", time.Hour)); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected unknown role, got %v", err)
	}

	noExpiry := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Role: "viewer"})
	signed, _ := noExpiry.SignedString(testSecret)
	if _, err := verifier.Verify(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected token without exp to be rejected, got %v", err)
	}

	other, _ := NewVerifier([]byte("other"), "fruit_monitor")
	if _, err := other.Verify(mustToken(t, "viewer", "", time.Hour)); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected bad signature, got %v", err)
	}
}

func TestRoleCovers(t *testing.T) {
	if !RoleOperator.Covers(RoleViewer) || !RoleViewer.Covers(RoleViewer) {
		t.Fatalf("expected operator and viewer to read")
	}
	if RoleViewer.Covers(RoleOperator) || Role("").Covers(RoleViewer) {
		t.Fatalf("unexpected grant")
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"abc":          "",
		"":             "",
	}
	for header, want := range cases {
		if got := bearerToken(header); got != want {
			t.Fatalf("%q: expected %q, got %q", header, want, got)
		}
	}
}

func mustToken(t *testing.T, role, device string, ttl time.Duration) string {
	t.Helper()
	claims := Claims{
		Role:   role,
		Device: device,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops-1",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Minute)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/antigravity-proxy/gatewaycore/internal/config"
)

func testConfig(keys ...string) *config.Config {
	path := writeTempConfigFile(keys)
	cfg, err := config.Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

func writeTempConfigFile(keys []string) string {
	dir, err := os.MkdirTemp("", "authtest")
	if err != nil {
		panic(err)
	}
	path := dir + "/config.yaml"
	body := "api-keys:\n"
	for _, k := range keys {
		body += "  - " + k + "\n"
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		panic(err)
	}
	return path
}

func newAuthedEngine(cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(APIKeyAuth(cfg))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestAPIKeyAuthAcceptsBearerToken(t *testing.T) {
	r := newAuthedEngine(testConfig("secret"))
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
}

func TestAPIKeyAuthAcceptsXAPIKeyHeader(t *testing.T) {
	r := newAuthedEngine(testConfig("secret"))
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("x-api-key", "secret")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
}

func TestAPIKeyAuthAcceptsXGoogAPIKeyHeader(t *testing.T) {
	r := newAuthedEngine(testConfig("secret"))
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("x-goog-api-key", "secret")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
}

func TestAPIKeyAuthAcceptsKeyQueryParam(t *testing.T) {
	r := newAuthedEngine(testConfig("secret"))
	req := httptest.NewRequest(http.MethodGet, "/ping?key=secret", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
}

func TestAPIKeyAuthAcceptsAuthTokenQueryParam(t *testing.T) {
	r := newAuthedEngine(testConfig("secret"))
	req := httptest.NewRequest(http.MethodGet, "/ping?auth_token=secret", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
}

func TestAPIKeyAuthRejectsMissingCredentials(t *testing.T) {
	r := newAuthedEngine(testConfig("secret"))
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", rec.Code)
	}
}

func TestAPIKeyAuthRejectsWrongKey(t *testing.T) {
	r := newAuthedEngine(testConfig("secret"))
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("x-api-key", "wrong")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", rec.Code)
	}
}

func TestExtractBearerTokenTolerantOfBareToken(t *testing.T) {
	if got := extractBearerToken("Bearer abc"); got != "abc" {
		t.Fatalf("want abc, got %q", got)
	}
	if got := extractBearerToken("abc"); got != "abc" {
		t.Fatalf("want bare token passed through, got %q", got)
	}
	if got := extractBearerToken(""); got != "" {
		t.Fatalf("want empty passthrough, got %q", got)
	}
}

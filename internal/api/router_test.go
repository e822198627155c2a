package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRewriteDoubledGeminiPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(rewriteDoubledGeminiPrefix())
	r.POST("/v1beta/models/:model", func(c *gin.Context) {
		c.String(http.StatusOK, c.Param("model"))
	})

	req := httptest.NewRequest(http.MethodPost, "/v1beta/v1beta/models/gemini-3-flash:generateContent", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Body.String(); got != "gemini-3-flash:generateContent" {
		t.Fatalf("want rewritten path to reach the route, got %q", got)
	}
}

func TestRewriteDoubledGeminiPrefixLeavesSingleUntouched(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(rewriteDoubledGeminiPrefix())
	r.POST("/v1beta/models/:model", func(c *gin.Context) {
		c.String(http.StatusOK, c.Param("model"))
	})

	req := httptest.NewRequest(http.MethodPost, "/v1beta/models/gemini-3-flash:generateContent", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Body.String(); got != "gemini-3-flash:generateContent" {
		t.Fatalf("want untouched path to still reach the route, got %q", got)
	}
}

package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"

	"github.com/mmdatafocus/hubsync_backend/utils"
)

func newRouter(secret []byte) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CorrelationMiddleware(), AuthMiddleware(secret))
	r.GET("/sync/:company", func(c *gin.Context) {
		if !CompanyAllowed(c.Request.Context(), c.Param("company")) {
			c.Status(http.StatusForbidden)
			return
		}
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		c.String(http.StatusOK, cid)
	})
	return r
}

func token(t *testing.T, secret []byte, company string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, utils.PushClaims{
		CompanyCode:    company,
		StandardClaims: jwt.StandardClaims{ExpiresAt: time.Now().Add(time.Hour).Unix()},
	}).SignedString(secret)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestAuthMiddleware(t *testing.T) {
	secret := []byte("api-secret")
	cases := []struct {
		name   string
		secret []byte
		auth   string
		path   string
		want   int
	}{
		{name: "disabled", path: "/sync/DTC1", want: http.StatusOK},
		{name: "missing token", secret: secret, path: "/sync/DTC1", want: http.StatusUnauthorized},
		{name: "bad signature", secret: secret, auth: "Bearer " + token(t, []byte("x"), ""), path: "/sync/DTC1", want: http.StatusUnauthorized},
		{name: "unscoped token", secret: secret, auth: "Bearer " + token(t, secret, ""), path: "/sync/DTC1", want: http.StatusOK},
		{name: "scoped token", secret: secret, auth: "Bearer " + token(t, secret, "DTC1"), path: "/sync/DTC1", want: http.StatusOK},
		{name: "other company", secret: secret, auth: "Bearer " + token(t, secret, "DTC1"), path: "/sync/ACME", want: http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.auth != "" {
				req.Header.Set("Authorization", tc.auth)
			}
			rec := httptest.NewRecorder()
			newRouter(tc.secret).ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("code=%d want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestCorrelationMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/sync/DTC1", nil)
	req.Header.Set("x-correlation-id", "cid-1")
	rec := httptest.NewRecorder()
	newRouter(nil).ServeHTTP(rec, req)
	if rec.Body.String() != "cid-1" || rec.Header().Get("x-correlation-id") != "cid-1" {
		t.Fatalf("body=%q header=%q", rec.Body.String(), rec.Header().Get("x-correlation-id"))
	}

	rec = httptest.NewRecorder()
	newRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sync/DTC1", nil))
	if rec.Body.Len() == 0 {
		t.Fatal("a correlation id must be generated")
	}
}

func TestAuthMiddleware_ScopesCompany(t *testing.T) {
	secret := []byte("api-secret")
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(secret))
	r.GET("/runs", func(c *gin.Context) {
		code, _ := utils.GetCompanyCodeFromContext(c.Request.Context())
		c.String(http.StatusOK, code)
	})

	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, secret, "DTC1"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Body.String() != "DTC1" {
		t.Fatalf("company=%q", rec.Body.String())
	}
}

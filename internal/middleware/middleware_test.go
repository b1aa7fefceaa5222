package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"docsage-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(jwt *token.JWTManager, extra ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers := append([]gin.HandlerFunc{AuthMiddleware(jwt)}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})
	r.GET("/p", handlers...)
	return r
}

func do(r http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	jwt := token.NewJWTManager("secret", 1)
	r := newRouter(jwt)

	tok, err := jwt.GenerateToken("u1", "USER")
	if err != nil {
		t.Fatal(err)
	}
	if w := do(r, "Bearer "+tok); w.Code != http.StatusOK || w.Body.String() != "u1" {
		t.Fatalf("valid token: %d %s", w.Code, w.Body.String())
	}
	if w := do(r, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing header: %d", w.Code)
	}
	if w := do(r, "Token "+tok); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad scheme: %d", w.Code)
	}
	other, _ := token.NewJWTManager("other", 1).GenerateToken("u1", "USER")
	if w := do(r, "Bearer "+other); w.Code != http.StatusUnauthorized {
		t.Fatalf("foreign signature: %d", w.Code)
	}
}

func TestAdminAuthMiddleware(t *testing.T) {
	jwt := token.NewJWTManager("secret", 1)
	r := newRouter(jwt, AdminAuthMiddleware())

	user, _ := jwt.GenerateToken("u1", "USER")
	admin, _ := jwt.GenerateToken("root", RoleAdmin)
	if w := do(r, "Bearer "+user); w.Code != http.StatusForbidden {
		t.Fatalf("user: %d", w.Code)
	}
	if w := do(r, "Bearer "+admin); w.Code != http.StatusOK {
		t.Fatalf("admin: %d", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.GET("/p", RateLimit(2), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := do(r, "")
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}
}

func TestTruncate(t *testing.T) {
	long := make([]byte, maxLoggedBody+10)
	for i := range long {
		long[i] = 'a'
	}
	if got := truncate(string(long)); len(got) != maxLoggedBody+len("...(truncated)") {
		t.Fatalf("len = %d", len(got))
	}
	if truncate("short") != "short" {
		t.Fatal("short strings must be unchanged")
	}
}

package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"freshcart/internal/http/middleware"
	"freshcart/internal/infra"
	"freshcart/internal/testutil"
)

func TestIdempotencyPassThroughWithoutRedis(t *testing.T) {
	gin.SetMode(gin.TestMode)
	calls := 0
	r := gin.New()
	r.Use(middleware.Idempotency(nil))
	r.POST("/orders", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusCreated, gin.H{"n": calls})
	})
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/orders", nil)
		req.Header.Set("Idempotency-Key", "k1")
		r.ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("without redis every request runs, got %d calls", calls)
	}
}

func TestIdempotencyReplaysPerCaller(t *testing.T) {
	rdb := testutil.Redis(t)
	gin.SetMode(gin.TestMode)

	calls := 0
	build := func(uid string) *gin.Engine {
		r := gin.New()
		r.Use(middleware.Auth(&stubVerifier{token: &infra.FirebaseToken{UID: uid}}))
		r.Use(middleware.Idempotency(rdb))
		r.POST("/orders", func(c *gin.Context) {
			calls++
			c.JSON(http.StatusCreated, gin.H{"n": calls})
		})
		return r
	}
	send := func(r *gin.Engine) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/orders", nil)
		req.Header.Set("Authorization", "Bearer t")
		req.Header.Set("Idempotency-Key", "checkout-1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	alice := build("alice")
	first := send(alice)
	second := send(alice)
	if calls != 1 {
		t.Fatalf("repeated key should not run the handler twice, got %d calls", calls)
	}
	if second.Code != http.StatusCreated || second.Body.String() != first.Body.String() {
		t.Fatalf("replay mismatch: %d %s vs %s", second.Code, second.Body.String(), first.Body.String())
	}
	if second.Header().Get("Idempotent-Replay") != "true" {
		t.Fatalf("replay header missing")
	}

	send(build("bob"))
	if calls != 2 {
		t.Fatalf("keys are scoped per caller, got %d calls", calls)
	}
}

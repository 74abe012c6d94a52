package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkwatch-service/internal/broadcast"
	"parkwatch-service/internal/config"
	"parkwatch-service/internal/service"
	"parkwatch-service/internal/supervisor"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func protectedRouter(secret string) *gin.Engine {
	r := gin.New()
	protected := r.Group("/")
	protected.Use(AuthMiddleware(secret))
	protected.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r
}

func signToken(t *testing.T, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "operator",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestAuthMiddleware(t *testing.T) {
	const secret = "test-secret"

	t.Run("no secret configured leaves endpoints open", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		protectedRouter("").ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing token rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		protectedRouter(secret).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("garbage token rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("Authorization", "Bearer not.a.token")
		protectedRouter(secret).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("token signed with wrong secret rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, "other-secret"))
		protectedRouter(secret).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid token accepted", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, secret))
		protectedRouter(secret).ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func testRouter(t *testing.T, secret string) *gin.Engine {
	t.Helper()
	hub := broadcast.NewHub(zerolog.Nop())
	t.Cleanup(hub.Close)

	cfg := &config.Config{}
	cfg.Dashboard.EvidenceDir = t.TempDir()

	h := NewHandler(
		service.NewViolationService(nil, hub, zerolog.Nop()),
		hub,
		supervisor.New("", nil, zerolog.Nop()),
		cfg,
		zerolog.Nop(),
	)
	r := gin.New()
	h.Register(r, AuthMiddleware(secret))
	return r
}

func TestCleanupViolationsValidation(t *testing.T) {
	router := testRouter(t, "")

	t.Run("missing days", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/violations", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("non-positive days", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/violations?days=0", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("requires auth when secret configured", func(t *testing.T) {
		router := testRouter(t, "test-secret")
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/violations?days=30", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestValidateZonePayload(t *testing.T) {
	valid := zoneFilePayload{
		ReferenceWidth:  640,
		ReferenceHeight: 480,
		Zones: map[string][][]int{
			"lot-A": {{100, 100}, {300, 100}, {300, 300}, {100, 300}},
		},
	}

	t.Run("valid payload", func(t *testing.T) {
		assert.NoError(t, validateZonePayload(valid))
	})

	t.Run("missing reference resolution", func(t *testing.T) {
		p := valid
		p.ReferenceWidth = 0
		assert.Error(t, validateZonePayload(p))
	})

	t.Run("no zones", func(t *testing.T) {
		p := valid
		p.Zones = map[string][][]int{}
		assert.Error(t, validateZonePayload(p))
	})

	t.Run("degenerate polygon", func(t *testing.T) {
		p := valid
		p.Zones = map[string][][]int{"bad": {{0, 0}, {10, 10}}}
		assert.Error(t, validateZonePayload(p))
	})

	t.Run("malformed vertex", func(t *testing.T) {
		p := valid
		p.Zones = map[string][][]int{"bad": {{0, 0, 0}, {10, 0}, {10, 10}}}
		assert.Error(t, validateZonePayload(p))
	})
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestInternalKey(t *testing.T) {
	r := gin.New()
	r.Use(InternalKey("s3cret"))
	reached := 0
	ok := func(c *gin.Context) {
		reached++
		c.Status(http.StatusOK)
	}
	r.POST("/internal/matches", ok)
	r.POST("/matches", ok)

	w := serve(r, http.MethodPost, "/internal/matches", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "UNAUTHORIZED")

	w = serve(r, http.MethodPost, "/internal/matches", map[string]string{HeaderInternalKey: "wrong"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 0, reached, "rejected before the handler")

	w = serve(r, http.MethodPost, "/internal/matches", map[string]string{HeaderInternalKey: "s3cret"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, http.MethodPost, "/matches", nil)
	assert.Equal(t, http.StatusOK, w.Code, "public paths are not gated")
	assert.Equal(t, 2, reached)
}

func TestInternalKeyUnset(t *testing.T) {
	r := gin.New()
	r.Use(InternalKey(""))
	r.POST("/internal/matches", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, http.MethodPost, "/internal/matches", map[string]string{HeaderInternalKey: ""})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func sign(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return s
}

func TestJwtAuthMiddleware(t *testing.T) {
	secret := []byte("jwt-secret")
	r := gin.New()
	r.GET("/me", JwtAuthMiddleware(secret), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("playerId"))
	})

	good := sign(t, secret, jwt.MapClaims{"sub": "p1", "exp": time.Now().Add(time.Hour).Unix()})

	w := serve(r, http.MethodGet, "/me", map[string]string{"Authorization": "Bearer " + good})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "p1", w.Body.String())

	w = serve(r, http.MethodGet, "/me?token="+good, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "p1", w.Body.String())

	w = serve(r, http.MethodGet, "/me", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(r, http.MethodGet, "/me", map[string]string{"Authorization": "Token " + good})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	expired := sign(t, secret, jwt.MapClaims{"sub": "p1", "exp": time.Now().Add(-time.Minute).Unix()})
	w = serve(r, http.MethodGet, "/me", map[string]string{"Authorization": "Bearer " + expired})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	forged := sign(t, []byte("other"), jwt.MapClaims{"sub": "p1", "exp": time.Now().Add(time.Hour).Unix()})
	w = serve(r, http.MethodGet, "/me", map[string]string{"Authorization": "Bearer " + forged})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	noSub := sign(t, secret, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	w = serve(r, http.MethodGet, "/me", map[string]string{"Authorization": "Bearer " + noSub})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequestLoggerPassesThrough(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger())
	r.GET("/teapot", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	w := serve(r, http.MethodGet, "/teapot", nil)
	assert.Equal(t, http.StatusTeapot, w.Code)
}

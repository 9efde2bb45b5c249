package auth

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

var secret = []byte("secret")

func sign(t *testing.T, claims jwt.MapClaims, key []byte) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func router() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(secret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": UserID(c), "is_staff": IsStaff(c)})
	})
	r.GET("/staff", AuthMiddleware(secret), RequireStaff(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func call(r *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	r := router()
	exp := time.Now().Add(time.Hour).Unix()

	w := call(r, "/me", sign(t, jwt.MapClaims{"user_id": 7, "exp": exp}, secret))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":7,"is_staff":false}`, w.Body.String())

	w = call(r, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "NO_AUTH_HEADER")

	w = call(r, "/me", sign(t, jwt.MapClaims{"user_id": 7, "exp": exp}, []byte("other")))
	assert.Contains(t, w.Body.String(), "INVALID_TOKEN")

	w = call(r, "/me", sign(t, jwt.MapClaims{"user_id": 7, "exp": time.Now().Add(-time.Minute).Unix()}, secret))
	assert.Contains(t, w.Body.String(), "INVALID_TOKEN")

	w = call(r, "/me", sign(t, jwt.MapClaims{"sub": "7", "exp": exp}, secret))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_USER_ID")
}

func TestRequireStaff(t *testing.T) {
	r := router()
	exp := time.Now().Add(time.Hour).Unix()

	w := call(r, "/staff", sign(t, jwt.MapClaims{"user_id": 7, "exp": exp}, secret))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "FORBIDDEN")

	w = call(r, "/staff", sign(t, jwt.MapClaims{"user_id": 7, "is_staff": true, "exp": exp}, secret))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

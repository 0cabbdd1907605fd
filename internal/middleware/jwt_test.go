package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regenworks/regenworks-api/internal/models"
	appErrors "github.com/regenworks/regenworks-api/pkg/errors"
)

type tokenValidatorStub struct {
	claims *models.JWTClaims
	err    error
}

func (s tokenValidatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.claims, nil
}

func newJWTTestRouter(validator TokenValidator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", JWT(validator), func(c *gin.Context) {
		value, _ := c.Get(ContextUserKey)
		claims := value.(*models.JWTClaims)
		c.JSON(http.StatusOK, gin.H{"userId": claims.UserID})
	})
	r.GET("/optional", OptionalJWT(validator), func(c *gin.Context) {
		_, authed := c.Get(ContextUserKey)
		c.JSON(http.StatusOK, gin.H{"authed": authed})
	})
	return r
}

func TestJWTMissingHeader(t *testing.T) {
	r := newJWTTestRouter(tokenValidatorStub{})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/protected", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTMalformedHeader(t *testing.T) {
	r := newJWTTestRouter(tokenValidatorStub{})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "token abc")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTInvalidToken(t *testing.T) {
	r := newJWTTestRouter(tokenValidatorStub{err: appErrors.ErrUnauthorized})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTValidTokenAttachesClaims(t *testing.T) {
	r := newJWTTestRouter(tokenValidatorStub{claims: &models.JWTClaims{UserID: "user-1"}})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"userId":"user-1"`)
}

func TestOptionalJWTPassesUnauthenticated(t *testing.T) {
	r := newJWTTestRouter(tokenValidatorStub{err: appErrors.ErrUnauthorized})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/optional", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"authed":false`)
}

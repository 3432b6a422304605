package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-billing-api/internal/models"
	"github.com/noah-isme/sma-billing-api/internal/service"
	"github.com/noah-isme/sma-billing-api/pkg/logger"
)

func newProtectedRouter(verifier *service.TokenVerifier, roles ...models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", JWT(verifier), RequireRoles(roles...), func(c *gin.Context) {
		actor := ActorFromContext(c)
		c.JSON(http.StatusOK, gin.H{
			"user":      actor.UserID,
			"school":    actor.SchoolID,
			"logSchool": c.GetInt64(logger.ContextSchoolIDKey),
		})
	})
	return r
}

func TestJWTAcceptsValidToken(t *testing.T) {
	verifier := service.NewTokenVerifier("secret", "identity")
	token, err := verifier.Sign(models.JWTClaims{UserID: "u-1", SchoolID: 7, Role: models.RoleBursar}, time.Hour)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	newProtectedRouter(verifier, models.RoleBursar).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user":"u-1","school":7,"logSchool":7}`, rec.Body.String())
}

func TestJWTRejectsMissingOrForeignToken(t *testing.T) {
	verifier := service.NewTokenVerifier("secret", "identity")
	foreign := service.NewTokenVerifier("other-secret", "identity")
	token, err := foreign.Sign(models.JWTClaims{UserID: "u-1", SchoolID: 7, Role: models.RoleAdmin}, time.Hour)
	require.NoError(t, err)

	router := newProtectedRouter(verifier, models.RoleAdmin)
	for _, header := range []string{"", "Token abc", "Bearer " + token} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
	}
}

func TestRequireRolesForbidsOtherRoles(t *testing.T) {
	verifier := service.NewTokenVerifier("secret", "")
	token, err := verifier.Sign(models.JWTClaims{UserID: "u-2", SchoolID: 3, Role: models.RoleSuperAdmin}, time.Hour)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	newProtectedRouter(verifier, models.RoleAdmin, models.RoleBursar).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMetricsMiddlewareRecordsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(metrics))
	r.GET("/fees/invoices/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fees/invoices/12", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "path" && l.GetValue() == "/fees/invoices/:id" {
					found = true
				}
			}
		}
	}
	assert.True(t, found)
}

func TestMetricsMiddlewareCollapsesUnknownRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(metrics))

	for _, path := range []string{"/nope/1", "/nope/2"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	paths := map[string]bool{}
	for _, mf := range families {
		if mf.GetName() != "http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "path" {
					paths[l.GetValue()] = true
				}
			}
		}
	}
	assert.Equal(t, map[string]bool{unmatchedRoute: true}, paths)
}

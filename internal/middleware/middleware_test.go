package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/src-permit-api/internal/models"
	"github.com/noah-isme/src-permit-api/internal/service"
	appErrors "github.com/noah-isme/src-permit-api/pkg/errors"
)

type stubValidator struct {
	claims *models.JWTClaims
}

func (s stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return s.claims, nil
}

type recordingAudit struct {
	logs []*models.AuditLog
}

func (r *recordingAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	r.logs = append(r.logs, log)
	return nil
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	chain := append(handlers, func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/users/:id", chain...)
	r.POST("/students", chain...)
	return r
}

func serve(r *gin.Engine, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWT(t *testing.T) {
	r := newRouter(JWT(stubValidator{claims: &models.JWTClaims{UserID: 3, Role: models.RoleStaff}}))

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/users/3", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/users/3", "Token good").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/users/3", "Bearer bad").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/users/3", "Bearer good").Code)
}

func TestRBAC(t *testing.T) {
	staff := stubValidator{claims: &models.JWTClaims{UserID: 3, Role: models.RoleStaff}}

	adminOnly := newRouter(JWT(staff), RequireRoles(models.RoleSuperAdmin, models.RoleAdmin))
	assert.Equal(t, http.StatusForbidden, serve(adminOnly, http.MethodGet, "/users/3", "Bearer good").Code)

	withSelf := newRouter(JWT(staff), RBAC(string(models.RoleAdmin), "SELF"))
	assert.Equal(t, http.StatusOK, serve(withSelf, http.MethodGet, "/users/3", "Bearer good").Code)
	assert.Equal(t, http.StatusForbidden, serve(withSelf, http.MethodGet, "/users/4", "Bearer good").Code)

	noClaims := newRouter(RBAC(string(models.RoleAdmin)))
	assert.Equal(t, http.StatusUnauthorized, serve(noClaims, http.MethodGet, "/users/3", "").Code)
}

func TestAuditRecordsSuccessfulRequests(t *testing.T) {
	audit := &recordingAudit{}
	validator := stubValidator{claims: &models.JWTClaims{UserID: 9, Role: models.RoleAdmin}}
	r := newRouter(JWT(validator), Audit(audit, models.AuditActionStudentCreate, "students"))

	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/students", "Bearer good").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodPost, "/students", "Bearer bad").Code)

	require.Len(t, audit.logs, 1)
	entry := audit.logs[0]
	assert.Equal(t, models.AuditActionStudentCreate, entry.Action)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, int64(9), *entry.UserID)
	assert.Contains(t, string(entry.NewValues), `"path":"/students"`)
}

func requestCountsByPath(t *testing.T, metrics *service.MetricsService) map[string]float64 {
	t.Helper()
	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	out := map[string]float64{}
	for _, family := range families {
		if family.GetName() != "http_requests_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "path" {
					out[label.GetValue()] += metric.GetCounter().GetValue()
				}
			}
		}
	}
	return out
}

func TestMetricsLabelsRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(metrics))
	r.GET("/permits/verify/:code", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, target := range []string{"/permits/verify/26-K7Q2", "/permits/verify/26-AB12", "/wp-login.php", "/.env"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	}

	counts := requestCountsByPath(t, metrics)
	assert.Equal(t, 2.0, counts["/permits/verify/:code"])
	assert.Equal(t, 2.0, counts["unmatched"])
	assert.Len(t, counts, 2)
}

package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/src-permit-api/internal/middleware"
	"github.com/noah-isme/src-permit-api/internal/models"
)

func TestAuthHandlerMeRequiresSession(t *testing.T) {
	handler := NewAuthHandler(nil)

	c, rec := newTestContext(http.MethodGet, "/auth/me", nil)
	handler.Me(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.False(t, env.Success)
}

func TestAuthHandlerMeEchoesClaims(t *testing.T) {
	handler := NewAuthHandler(nil)

	c, rec := newTestContext(http.MethodGet, "/auth/me", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: 3, Email: "kofi@src.edu", FullName: "Kofi Mensah", Role: models.RoleStaff})
	handler.Me(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, float64(3), env.Data["id"])
	assert.Equal(t, "kofi@src.edu", env.Data["email"])
	assert.Equal(t, "STAFF", env.Data["role"])
}

func TestAuthHandlerLogoutRequiresToken(t *testing.T) {
	handler := NewAuthHandler(nil)

	c, rec := newTestContext(http.MethodPost, "/auth/logout", []byte(`{}`))
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: 3, Role: models.RoleStaff})
	handler.Logout(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "refresh token required", env.Error.Message)
}

func TestUserHandlerCreateRequiresSession(t *testing.T) {
	handler := NewUserHandler(nil)

	c, rec := newTestContext(http.MethodPost, "/users", []byte(`{}`))
	handler.Create(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

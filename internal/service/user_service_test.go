package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/src-permit-api/internal/models"
	"github.com/noah-isme/src-permit-api/pkg/credential"
	appErrors "github.com/noah-isme/src-permit-api/pkg/errors"
)

type mockUserRepo struct {
	users     map[int64]*models.User
	listUsers []models.User
	listCount int
	listErr   error
	nextID    int64
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	if m.listUsers != nil {
		return m.listUsers, m.listCount, nil
	}
	var users []models.User
	for _, u := range m.users {
		users = append(users, *u)
	}
	return users, len(users), nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id int64) (*models.User, error) {
	if user, ok := m.users[id]; ok {
		copy := *user
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			copy := *u
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	if m.users == nil {
		m.users = make(map[int64]*models.User)
	}
	m.nextID++
	user.ID = m.nextID
	copy := *user
	m.users[user.ID] = &copy
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	copy := *user
	m.users[user.ID] = &copy
	return nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id int64) error {
	if user, ok := m.users[id]; ok {
		user.Active = false
		return nil
	}
	return sql.ErrNoRows
}

func newTestUserService(repo *mockUserRepo, audit *mockAuditRepo) *UserService {
	return NewUserService(repo, audit, credential.NewHasher(bcrypt.MinCost), validator.New(), zap.NewNop())
}

func TestUserServiceList(t *testing.T) {
	repo := &mockUserRepo{listUsers: []models.User{{ID: 1, Email: "a@example.com"}}, listCount: 1}
	svc := newTestUserService(repo, &mockAuditRepo{})
	users, pagination, err := svc.List(context.Background(), models.UserFilter{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, pagination.TotalCount)
	assert.Equal(t, 10, pagination.PageSize)
}

func TestUserServiceCreate(t *testing.T) {
	repo := &mockUserRepo{}
	audit := &mockAuditRepo{}
	svc := newTestUserService(repo, audit)
	user, err := svc.Create(context.Background(), CreateUserRequest{Email: "DESK@EXAMPLE.EDU", FullName: "Desk Officer", Password: "password1", Role: models.RoleStaff, Active: true}, 1, models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, "desk@example.edu", user.Email)
	assert.True(t, credential.NewHasher(bcrypt.MinCost).Compare("password1", repo.users[user.ID].PasswordHash))
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionUserCreate, audit.logs[0].Action)

	_, err = svc.Create(context.Background(), CreateUserRequest{Email: "desk@example.edu", FullName: "Again", Password: "password1", Role: models.RoleStaff}, 1, models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestUserServiceCreateRejectsUnknownRole(t *testing.T) {
	svc := newTestUserService(&mockUserRepo{}, &mockAuditRepo{})
	_, err := svc.Create(context.Background(), CreateUserRequest{Email: "x@example.edu", FullName: "X", Password: "password1", Role: "STUDENT"}, 1, models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserServiceUpdate(t *testing.T) {
	repo := &mockUserRepo{users: map[int64]*models.User{2: {ID: 2, Email: "a@example.com", FullName: "Old", Role: models.RoleStaff, Active: true}}}
	audit := &mockAuditRepo{}
	svc := newTestUserService(repo, audit)
	active := false
	user, err := svc.Update(context.Background(), 2, UpdateUserRequest{FullName: "New", Role: models.RoleAdmin, Active: &active}, 1, models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, user.Role)
	assert.False(t, user.Active)
	assert.NotEmpty(t, audit.logs)

	_, err = svc.Update(context.Background(), 99, UpdateUserRequest{FullName: "New", Role: models.RoleAdmin}, 1, models.LoginRequest{})
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestUserServiceDelete(t *testing.T) {
	repo := &mockUserRepo{users: map[int64]*models.User{2: {ID: 2, Email: "a@example.com", FullName: "Old", Role: models.RoleStaff, Active: true}}}
	audit := &mockAuditRepo{}
	svc := newTestUserService(repo, audit)

	err := svc.Delete(context.Background(), 2, 2, models.LoginRequest{})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Delete(context.Background(), 2, 1, models.LoginRequest{}))
	assert.False(t, repo.users[2].Active)
	assert.NotEmpty(t, audit.logs)
}

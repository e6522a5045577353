package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/src-permit-api/internal/models"
	appErrors "github.com/noah-isme/src-permit-api/pkg/errors"
)

type mockStudentRepo struct {
	students   map[int64]models.Student
	lastFilter models.StudentFilter
	listTotal  int
	nextID     int64
	err        error
}

func (m *mockStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	m.lastFilter = filter
	if m.err != nil {
		return nil, 0, m.err
	}
	out := make([]models.Student, 0, len(m.students))
	for _, s := range m.students {
		out = append(out, s)
	}
	return out, m.listTotal, nil
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id int64) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) ExistsByStudentCode(ctx context.Context, code string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	for _, s := range m.students {
		if s.StudentCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	if m.students == nil {
		m.students = make(map[int64]models.Student)
	}
	m.nextID++
	student.ID = m.nextID
	m.students[student.ID] = *student
	return nil
}

func TestStudentServiceList(t *testing.T) {
	repo := &mockStudentRepo{students: map[int64]models.Student{1: {ID: 1, StudentCode: "S100"}}, listTotal: 1}
	svc := NewStudentService(repo, nil, nil, validator.New(), zap.NewNop())

	students, pagination, err := svc.List(context.Background(), models.StudentFilter{Search: "ama", Page: 2, PageSize: 5})
	require.NoError(t, err)
	assert.Len(t, students, 1)
	assert.Equal(t, 2, pagination.Page)
	assert.Equal(t, "ama", repo.lastFilter.Search)
}

func TestStudentServiceGetNotFound(t *testing.T) {
	svc := NewStudentService(&mockStudentRepo{}, nil, nil, validator.New(), zap.NewNop())

	_, err := svc.Get(context.Background(), 9)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.Equal(t, "Student not found", appErr.Message)
}

func TestStudentServiceCreate(t *testing.T) {
	repo := &mockStudentRepo{}
	svc := NewStudentService(repo, nil, nil, validator.New(), zap.NewNop())

	student, err := svc.Create(context.Background(), CreateStudentRequest{StudentID: " s100 ", FullName: "Ama Mensah", Email: "AMA@example.edu"})
	require.NoError(t, err)
	assert.Equal(t, "S100", student.StudentCode)
	assert.Equal(t, "ama@example.edu", student.Email)

	_, err = svc.Create(context.Background(), CreateStudentRequest{StudentID: "S100", FullName: "Someone Else"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), CreateStudentRequest{StudentID: "S101", FullName: "Bad Mail", Email: "nope"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceImport(t *testing.T) {
	repo := &mockStudentRepo{students: map[int64]models.Student{1: {ID: 1, StudentCode: "S100"}}, nextID: 1}
	audit := &mockAuditRepo{}
	svc := NewStudentService(repo, audit, nil, validator.New(), zap.NewNop())

	csv := strings.Join([]string{
		"Student_ID,Full_Name,Email,Program",
		"S100,Ama Mensah,ama@example.edu,BSc Nursing",
		"S101,Kofi Boateng,kofi@example.edu,BA Economics",
		"s101,Kofi Again,,",
		"S102,,x@example.edu,",
		"S103,Efua Owusu,not-an-email,",
		"S104,Yaw Darko,,",
	}, "\n")

	result, err := svc.Import(context.Background(), strings.NewReader(csv), 5)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 2, result.Skipped)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, 5, result.Errors[0].Row)
	assert.Contains(t, result.Errors[0].Message, "fullname")
	assert.Equal(t, 6, result.Errors[1].Row)
	assert.Len(t, repo.students, 3)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionStudentImport, audit.logs[0].Action)
}

func TestStudentServiceImportMissingColumn(t *testing.T) {
	svc := NewStudentService(&mockStudentRepo{}, nil, nil, validator.New(), zap.NewNop())

	_, err := svc.Import(context.Background(), strings.NewReader("student_id,email\nS100,a@example.edu\n"), 1)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

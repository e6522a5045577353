package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/src-permit-api/internal/models"
	appErrors "github.com/noah-isme/src-permit-api/pkg/errors"
	"github.com/noah-isme/src-permit-api/pkg/export"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id int64) (*models.Student, error)
	ExistsByStudentCode(ctx context.Context, code string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
}

type tableParser interface {
	Parse(r io.Reader, required ...string) (export.Dataset, error)
}

// CreateStudentRequest holds payload for registering students.
type CreateStudentRequest struct {
	StudentID string `json:"student_id" validate:"required,max=32"`
	FullName  string `json:"full_name" validate:"required"`
	Email     string `json:"email" validate:"omitempty,email"`
	Program   string `json:"program"`
}

// StudentService handles student registry use-cases.
type StudentService struct {
	repo      studentRepository
	audit     auditWriter
	parser    tableParser
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, audit auditWriter, parser tableParser, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if parser == nil {
		parser = export.NewCSVExporter()
	}
	return &StudentService{repo: repo, audit: audit, parser: parser, validator: validate, logger: logger}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a student by internal id.
func (s *StudentService) Get(ctx context.Context, id int64) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create registers a new student.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	req = normaliseStudentRequest(req)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	exists, err := s.repo.ExistsByStudentCode(ctx, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate student id")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student id already registered")
	}
	student := &models.Student{
		StudentCode: req.StudentID,
		FullName:    req.FullName,
		Email:       req.Email,
		Program:     req.Program,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	return student, nil
}

// Import registers students from a CSV with the columns
// student_id,full_name,email,program. Rows whose student id already exists
// are skipped; invalid rows are reported and do not abort the import.
func (s *StudentService) Import(ctx context.Context, r io.Reader, actorID int64) (*models.StudentImportResult, error) {
	data, err := s.parser.Parse(r, "student_id", "full_name")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	result := &models.StudentImportResult{}
	seen := make(map[string]bool, len(data.Rows))
	for i, row := range data.Rows {
		line := i + 2
		req := normaliseStudentRequest(CreateStudentRequest{
			StudentID: row["student_id"],
			FullName:  row["full_name"],
			Email:     row["email"],
			Program:   row["program"],
		})
		if err := s.validator.Struct(req); err != nil {
			result.Errors = append(result.Errors, models.StudentImportError{Row: line, Message: describeValidation(err)})
			continue
		}
		if seen[req.StudentID] {
			result.Skipped++
			continue
		}
		seen[req.StudentID] = true

		exists, err := s.repo.ExistsByStudentCode(ctx, req.StudentID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate student id")
		}
		if exists {
			result.Skipped++
			continue
		}
		student := &models.Student{StudentCode: req.StudentID, FullName: req.FullName, Email: req.Email, Program: req.Program}
		if err := s.repo.Create(ctx, student); err != nil {
			result.Errors = append(result.Errors, models.StudentImportError{Row: line, Message: err.Error()})
			continue
		}
		result.Created++
	}

	s.logger.Info("student import finished", zap.Int("created", result.Created), zap.Int("skipped", result.Skipped), zap.Int("errors", len(result.Errors)))
	if s.audit != nil {
		payload, _ := json.Marshal(result)
		entry := &models.AuditLog{Action: models.AuditActionStudentImport, Resource: "students", NewValues: payload}
		if actorID > 0 {
			entry.UserID = &actorID
		}
		if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
			s.logger.Warn("failed to record student import audit log", zap.Error(err))
		}
	}
	return result, nil
}

func normaliseStudentRequest(req CreateStudentRequest) CreateStudentRequest {
	req.StudentID = models.NormalizeStudentCode(req.StudentID)
	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Program = strings.TrimSpace(req.Program)
	return req
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, strings.ToLower(fe.Field())+" failed "+fe.Tag())
	}
	return strings.Join(parts, "; ")
}

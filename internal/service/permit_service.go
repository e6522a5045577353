package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/src-permit-api/internal/dto"
	"github.com/noah-isme/src-permit-api/internal/models"
	"github.com/noah-isme/src-permit-api/pkg/config"
	appErrors "github.com/noah-isme/src-permit-api/pkg/errors"
	"github.com/noah-isme/src-permit-api/pkg/export"
	"github.com/noah-isme/src-permit-api/pkg/permitcode"
)

const (
	permitStatsCacheKey = "permits:stats"
	permitExportBatch   = 100
	day                 = 24 * time.Hour
)

type permitRepository interface {
	Create(ctx context.Context, permit *models.Permit) error
	FindByID(ctx context.Context, id int64) (*models.PermitDetail, error)
	ListActive(ctx context.Context) ([]models.PermitDetail, error)
	List(ctx context.Context, filter models.PermitFilter) ([]models.PermitDetail, int, error)
	UpdateStatus(ctx context.Context, id int64, status models.PermitStatus, updatedAt time.Time) error
	CountByStatus(ctx context.Context) ([]models.PermitStatusCount, error)
}

type studentLookup interface {
	FindByStudentCode(ctx context.Context, code string) (*models.Student, error)
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type codeIssuer interface {
	Issue(now time.Time) (permitcode.Code, error)
}

type secretHasher interface {
	Hash(plaintext string) (string, error)
	Compare(plaintext, hashed string) bool
}

type qrRenderer interface {
	PNG(content string) ([]byte, error)
	Encode(content string) (string, error)
}

type slipRenderer interface {
	RenderSlip(slip export.PermitSlip) ([]byte, error)
}

type tableRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type permitNotifier interface {
	NotifyPermitIssued(ctx context.Context, notice PermitIssuedNotice) error
}

// PermitIssuedNotice carries what the notifier needs to email a new permit.
type PermitIssuedNotice struct {
	Permit          models.PermitDetail
	Code            string
	VerificationURL string
}

// PermitServiceDeps groups the optional collaborators of PermitService.
type PermitServiceDeps struct {
	Cache    *CacheService
	Metrics  *MetricsService
	Notifier permitNotifier
	Slips    slipRenderer
	CSV      tableRenderer
	Clock    func() time.Time
}

// PermitService implements permit issuance, verification and lifecycle.
type PermitService struct {
	repo      permitRepository
	students  studentLookup
	audit     auditWriter
	codes     codeIssuer
	hasher    secretHasher
	qr        qrRenderer
	cfg       config.PermitConfig
	validator *validator.Validate
	logger    *zap.Logger

	cache    *CacheService
	metrics  *MetricsService
	notifier permitNotifier
	slips    slipRenderer
	csv      tableRenderer
	now      func() time.Time
}

// NewPermitService constructs the permit service.
func NewPermitService(repo permitRepository, students studentLookup, audit auditWriter, codes codeIssuer, hasher secretHasher, qr qrRenderer, cfg config.PermitConfig, validate *validator.Validate, logger *zap.Logger, deps PermitServiceDeps) *PermitService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Slips == nil {
		deps.Slips = export.NewPDFExporter()
	}
	if deps.CSV == nil {
		deps.CSV = export.NewCSVExporter()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &PermitService{
		repo:      repo,
		students:  students,
		audit:     audit,
		codes:     codes,
		hasher:    hasher,
		qr:        qr,
		cfg:       cfg,
		validator: validate,
		logger:    logger,
		cache:     deps.Cache,
		metrics:   deps.Metrics,
		notifier:  deps.Notifier,
		slips:     deps.Slips,
		csv:       deps.CSV,
		now:       deps.Clock,
	}
}

// Create issues a permit for an existing student. The plaintext code is only
// ever returned here.
func (s *PermitService) Create(ctx context.Context, req dto.CreatePermitRequest) (*dto.IssuedPermit, error) {
	req.StudentID = models.NormalizeStudentCode(req.StudentID)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid permit payload")
	}

	student, err := s.students.FindByStudentCode(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Student not found")
		}
		return nil, appErrors.Persistence(err)
	}

	now := s.now()
	code, err := s.codes.Issue(now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate permit code")
	}
	issued := code.String()
	hashed, err := s.hasher.Hash(issued)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash permit code")
	}

	permit := models.Permit{
		PermitCode: hashed,
		CodePrefix: code.Prefix,
		Status:     models.PermitStatusActive,
		ExpiryDate: req.ExpiryDate,
		AmountPaid: req.AmountPaid,
		StudentID:  student.ID,
		IssuedByID: req.IssuedByID,
		CreatedAt:  now,
	}
	if s.cfg.RetainPlaintext {
		body := code.Body
		permit.OriginalCode = &body
	}
	if err := s.repo.Create(ctx, &permit); err != nil {
		return nil, appErrors.Persistence(err)
	}

	detail := &models.PermitDetail{
		Permit:       permit,
		StudentCode:  student.StudentCode,
		StudentName:  student.FullName,
		StudentEmail: student.Email,
	}
	verifyURL := s.VerificationURL(issued)
	qr, err := s.qr.Encode(verifyURL)
	if err != nil {
		s.logger.Warn("failed to render permit qr", zap.Int64("permit_id", permit.ID), zap.Error(err))
	}

	s.metrics.PermitIssued()
	s.cache.Invalidate(ctx, permitStatsCacheKey)
	s.recordAudit(ctx, req.IssuedByID, models.AuditActionPermitCreate, permit.ID, nil, map[string]interface{}{
		"student_id":  student.StudentCode,
		"expiry_date": permit.ExpiryDate,
		"amount_paid": permit.AmountPaid,
	})

	if s.notifier != nil {
		notice := PermitIssuedNotice{Permit: *detail, Code: issued, VerificationURL: verifyURL}
		if err := s.notifier.NotifyPermitIssued(ctx, notice); err != nil {
			s.logger.Warn("failed to queue permit notification", zap.Int64("permit_id", permit.ID), zap.Error(err))
		}
	}

	return &dto.IssuedPermit{
		Permit:          detail,
		PermitCode:      issued,
		VerificationURL: verifyURL,
		QRCode:          qr,
	}, nil
}

// Verify checks a submitted code against every active permit. A match past
// its expiry date is moved to expired before the result is returned.
func (s *PermitService) Verify(ctx context.Context, code string) (*dto.VerifyResult, error) {
	start := time.Now()
	normalized := permitcode.Normalize(code)
	if !permitcode.LooksIssued(normalized) {
		s.metrics.PermitVerified(dto.VerifyReasonNotFound, 0, time.Since(start))
		return &dto.VerifyResult{Valid: false, Reason: dto.VerifyReasonNotFound}, nil
	}

	candidates, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Persistence(err)
	}

	for i := range candidates {
		permit := candidates[i]
		if !s.hasher.Compare(normalized, permit.PermitCode) {
			continue
		}
		now := s.now()
		if permit.IsExpiredAt(now) {
			if err := s.expire(ctx, &permit, now); err != nil {
				return nil, err
			}
			s.metrics.PermitVerified(dto.VerifyReasonExpired, i+1, time.Since(start))
			return &dto.VerifyResult{Valid: false, Reason: dto.VerifyReasonExpired}, nil
		}
		s.metrics.PermitVerified("valid", i+1, time.Since(start))
		return &dto.VerifyResult{Valid: true, Permit: &permit}, nil
	}

	s.metrics.PermitVerified(dto.VerifyReasonNotFound, len(candidates), time.Since(start))
	return &dto.VerifyResult{Valid: false, Reason: dto.VerifyReasonNotFound}, nil
}

// Revoke marks a permit revoked whatever its current status.
func (s *PermitService) Revoke(ctx context.Context, id int64, actorID int64) (*models.PermitDetail, error) {
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Permit not found")
		}
		return nil, appErrors.Persistence(err)
	}

	previous := detail.Status
	now := s.now()
	if err := s.repo.UpdateStatus(ctx, id, models.PermitStatusRevoked, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Permit not found")
		}
		return nil, appErrors.Persistence(err)
	}
	detail.Status = models.PermitStatusRevoked
	detail.UpdatedAt = now

	s.metrics.PermitTransitioned(string(models.PermitStatusRevoked))
	s.cache.Invalidate(ctx, permitStatsCacheKey)
	s.recordAudit(ctx, actorID, models.AuditActionPermitRevoke, id,
		map[string]interface{}{"status": previous},
		map[string]interface{}{"status": models.PermitStatusRevoked})

	return detail, nil
}

// CheckValidity reports whether a permit exists, is expired and how many days
// remain. A missing permit is not an error.
func (s *PermitService) CheckValidity(ctx context.Context, id int64) (*dto.ValidityResult, error) {
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &dto.ValidityResult{Exists: false}, nil
		}
		return nil, appErrors.Persistence(err)
	}

	now := s.now()
	expired := detail.IsExpiredAt(now)
	if expired && detail.Status == models.PermitStatusActive {
		if err := s.expire(ctx, detail, now); err != nil {
			return nil, err
		}
	}

	return &dto.ValidityResult{
		Exists:        true,
		Permit:        detail,
		IsExpired:     expired,
		DaysRemaining: daysRemaining(detail.ExpiryDate, now),
	}, nil
}

// Stats counts permits per status.
func (s *PermitService) Stats(ctx context.Context) (*dto.PermitStats, error) {
	var cached dto.PermitStats
	if s.cache.Get(ctx, permitStatsCacheKey, &cached) {
		return &cached, nil
	}

	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, appErrors.Persistence(err)
	}

	stats := &dto.PermitStats{}
	for _, c := range counts {
		switch c.Status {
		case models.PermitStatusActive:
			stats.Active = c.Count
		case models.PermitStatusExpired:
			stats.Expired = c.Count
		case models.PermitStatusRevoked:
			stats.Revoked = c.Count
		}
		stats.Total += c.Count
	}

	s.cache.Set(ctx, permitStatsCacheKey, stats, s.cfg.StatsCacheTTL)
	return stats, nil
}

// List returns a page of permits with student and issuer display fields.
func (s *PermitService) List(ctx context.Context, filter models.PermitFilter) ([]models.PermitDetail, *models.Pagination, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid permit status")
	}
	permits, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Persistence(err)
	}
	return permits, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a single permit.
func (s *PermitService) Get(ctx context.Context, id int64) (*models.PermitDetail, error) {
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Permit not found")
		}
		return nil, appErrors.Persistence(err)
	}
	return detail, nil
}

// Export renders every permit matching filter as CSV.
func (s *PermitService) Export(ctx context.Context, filter models.PermitFilter) ([]byte, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid permit status")
	}
	dataset := export.Dataset{
		Headers: []string{"id", "code", "student_id", "student_name", "status", "amount_paid", "expiry_date", "issued_by", "created_at"},
	}

	filter.PageSize = permitExportBatch
	for page := 1; ; page++ {
		filter.Page = page
		permits, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Persistence(err)
		}
		for _, p := range permits {
			dataset.Rows = append(dataset.Rows, map[string]string{
				"id":           strconv.FormatInt(p.ID, 10),
				"code":         p.IssuedCode(),
				"student_id":   p.StudentCode,
				"student_name": p.StudentName,
				"status":       string(p.Status),
				"amount_paid":  strconv.FormatFloat(p.AmountPaid, 'f', 2, 64),
				"expiry_date":  p.ExpiryDate.Format(time.RFC3339),
				"issued_by":    p.IssuedByName,
				"created_at":   p.CreatedAt.Format(time.RFC3339),
			})
		}
		if len(permits) < permitExportBatch || len(dataset.Rows) >= total {
			break
		}
	}

	out, err := s.csv.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render permit export")
	}
	return out, nil
}

// Slip renders the printable PDF for a permit. It needs the retained
// plaintext code to draw the QR.
func (s *PermitService) Slip(ctx context.Context, id int64) ([]byte, error) {
	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	code := detail.IssuedCode()
	if code == "" {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "permit code was not retained")
	}
	return renderPermitSlip(s.slips, s.qr, detail, code, s.VerificationURL(code))
}

// VerificationURL is the link encoded in a permit's QR.
func (s *PermitService) VerificationURL(code string) string {
	return s.cfg.VerifyBaseURL + "/" + url.PathEscape(code)
}

func (s *PermitService) expire(ctx context.Context, detail *models.PermitDetail, now time.Time) error {
	if err := s.repo.UpdateStatus(ctx, detail.ID, models.PermitStatusExpired, now); err != nil {
		return appErrors.Persistence(err)
	}
	detail.Status = models.PermitStatusExpired
	detail.UpdatedAt = now
	s.metrics.PermitTransitioned(string(models.PermitStatusExpired))
	s.cache.Invalidate(ctx, permitStatsCacheKey)
	return nil
}

func (s *PermitService) recordAudit(ctx context.Context, actorID int64, action string, permitID int64, oldValues, newValues interface{}) {
	if s.audit == nil {
		return
	}
	resourceID := strconv.FormatInt(permitID, 10)
	entry := &models.AuditLog{
		Action:     action,
		Resource:   "permit",
		ResourceID: &resourceID,
		CreatedAt:  s.now(),
	}
	if actorID > 0 {
		entry.UserID = &actorID
	}
	if oldValues != nil {
		entry.OldValues, _ = json.Marshal(oldValues)
	}
	if newValues != nil {
		entry.NewValues, _ = json.Marshal(newValues)
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to write permit audit log", zap.String("action", action), zap.Int64("permit_id", permitID), zap.Error(err))
	}
}

func daysRemaining(expiry, now time.Time) int {
	left := expiry.Sub(now)
	if left <= 0 {
		return 0
	}
	return int((left + day - 1) / day)
}

func renderPermitSlip(slips slipRenderer, qr qrRenderer, detail *models.PermitDetail, code, verifyURL string) ([]byte, error) {
	png, err := qr.PNG(verifyURL)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render permit qr")
	}
	out, err := slips.RenderSlip(export.PermitSlip{
		Title:       "SRC Permit",
		Code:        code,
		StudentName: detail.StudentName,
		StudentCode: detail.StudentCode,
		Status:      string(detail.Status),
		AmountPaid:  fmt.Sprintf("%.2f", detail.AmountPaid),
		IssuedAt:    detail.CreatedAt.Format("02 Jan 2006"),
		ExpiresAt:   detail.ExpiryDate.Format("02 Jan 2006"),
		IssuedBy:    detail.IssuedByName,
		QRPNG:       png,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render permit slip")
	}
	return out, nil
}

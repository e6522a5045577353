package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/src-permit-api/internal/models"
)

const permitDetailSelect = `SELECT p.id, p.permit_code, p.original_code, p.code_prefix, p.status, p.expiry_date, p.amount_paid, p.student_id, p.issued_by_id, p.created_at, p.updated_at,
        s.student_code, s.full_name AS student_name, s.email AS student_email, COALESCE(u.full_name, '') AS issued_by_name
        FROM permits p JOIN students s ON s.id = p.student_id LEFT JOIN users u ON u.id = p.issued_by_id`

// PermitRepository manages persistence for permits.
type PermitRepository struct {
	db *sqlx.DB
}

// NewPermitRepository constructs a PermitRepository.
func NewPermitRepository(db *sqlx.DB) *PermitRepository {
	return &PermitRepository{db: db}
}

// Create inserts a permit and fills its generated id and timestamps.
func (r *PermitRepository) Create(ctx context.Context, permit *models.Permit) error {
	now := time.Now().UTC()
	if permit.CreatedAt.IsZero() {
		permit.CreatedAt = now
	}
	permit.UpdatedAt = now
	if permit.Status == "" {
		permit.Status = models.PermitStatusActive
	}
	const query = `INSERT INTO permits (permit_code, original_code, code_prefix, status, expiry_date, amount_paid, student_id, issued_by_id, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`
	row := r.db.QueryRowxContext(ctx, query,
		permit.PermitCode,
		permit.OriginalCode,
		permit.CodePrefix,
		permit.Status,
		permit.ExpiryDate,
		permit.AmountPaid,
		permit.StudentID,
		permit.IssuedByID,
		permit.CreatedAt,
		permit.UpdatedAt,
	)
	if err := row.Scan(&permit.ID); err != nil {
		return fmt.Errorf("create permit: %w", err)
	}
	return nil
}

// FindByID returns a permit joined with its student and issuer.
func (r *PermitRepository) FindByID(ctx context.Context, id int64) (*models.PermitDetail, error) {
	query := permitDetailSelect + " WHERE p.id = $1"
	var detail models.PermitDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find permit: %w", err)
	}
	return &detail, nil
}

// ListActive returns every active permit in id order. Verification scans
// this set because codes are only stored hashed.
func (r *PermitRepository) ListActive(ctx context.Context) ([]models.PermitDetail, error) {
	query := permitDetailSelect + " WHERE p.status = $1 ORDER BY p.id ASC"
	var permits []models.PermitDetail
	if err := r.db.SelectContext(ctx, &permits, query, models.PermitStatusActive); err != nil {
		return nil, fmt.Errorf("list active permits: %w", err)
	}
	return permits, nil
}

// List returns permits matching the filter plus the total count.
func (r *PermitRepository) List(ctx context.Context, filter models.PermitFilter) ([]models.PermitDetail, int, error) {
	base := "FROM permits p JOIN students s ON s.id = p.student_id LEFT JOIN users u ON u.id = p.issued_by_id"
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("p.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.StudentID != nil {
		conditions = append(conditions, fmt.Sprintf("p.student_id = $%d", len(args)+1))
		args = append(args, *filter.StudentID)
	}
	if filter.Search != "" {
		n := len(args) + 1
		conditions = append(conditions, fmt.Sprintf("(LOWER(COALESCE(p.code_prefix || '-' || p.original_code, '')) LIKE $%d OR LOWER(s.full_name) LIKE $%d OR LOWER(s.student_code) LIKE $%d)", n, n, n))
		args = append(args, containsPattern(filter.Search))
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	allowedSorts := map[string]string{
		"created_at":  "p.created_at",
		"expiry_date": "p.expiry_date",
		"amount_paid": "p.amount_paid",
		"status":      "p.status",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "p.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	pagination := models.NewPagination(filter.Page, filter.PageSize, 0)
	offset := (pagination.Page - 1) * pagination.PageSize

	query := fmt.Sprintf(`SELECT p.id, p.permit_code, p.original_code, p.code_prefix, p.status, p.expiry_date, p.amount_paid, p.student_id, p.issued_by_id, p.created_at, p.updated_at,
        s.student_code, s.full_name AS student_name, s.email AS student_email, COALESCE(u.full_name, '') AS issued_by_name
        %s ORDER BY %s %s, p.id %s LIMIT %d OFFSET %d`, base, column, order, order, pagination.PageSize, offset)

	var permits []models.PermitDetail
	if err := r.db.SelectContext(ctx, &permits, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list permits: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count permits: %w", err)
	}
	return permits, total, nil
}

// UpdateStatus overwrites a permit's status. It returns sql.ErrNoRows when
// the permit does not exist.
func (r *PermitRepository) UpdateStatus(ctx context.Context, id int64, status models.PermitStatus, updatedAt time.Time) error {
	const query = `UPDATE permits SET status = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, updatedAt)
	if err != nil {
		return fmt.Errorf("update permit status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update permit status: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountByStatus groups permits by status.
func (r *PermitRepository) CountByStatus(ctx context.Context) ([]models.PermitStatusCount, error) {
	const query = `SELECT status, COUNT(*) AS count FROM permits GROUP BY status ORDER BY status`
	var counts []models.PermitStatusCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count permits by status: %w", err)
	}
	return counts, nil
}

package dto

import (
	"time"

	"github.com/noah-isme/src-permit-api/internal/models"
)

// Verification failure reasons.
const (
	VerifyReasonExpired  = "expired"
	VerifyReasonNotFound = "not_found"
)

// CreatePermitRequest captures POST /permits. StudentID is the external
// student code, not the internal numeric id. Over HTTP, IssuedByID is always
// replaced with the caller's user id.
type CreatePermitRequest struct {
	StudentID  string    `json:"studentId" validate:"required"`
	AmountPaid float64   `json:"amountPaid" validate:"gte=0"`
	ExpiryDate time.Time `json:"expiryDate" validate:"required"`
	IssuedByID int64     `json:"issuedById" validate:"required,gt=0"`
}

// IssuedPermit is returned once, at creation, with the plaintext code.
type IssuedPermit struct {
	Permit          *models.PermitDetail `json:"permit"`
	PermitCode      string               `json:"permitCode"`
	VerificationURL string               `json:"verificationUrl"`
	QRCode          string               `json:"qrCode"`
}

// VerifyPermitRequest captures POST /permits/verify.
type VerifyPermitRequest struct {
	Code string `json:"code" validate:"required"`
}

// VerifyResult reports the outcome of a code verification.
type VerifyResult struct {
	Valid  bool                 `json:"valid"`
	Permit *models.PermitDetail `json:"permit,omitempty"`
	Reason string               `json:"reason,omitempty"`
}

// PublicPermit is what an unauthenticated verifier learns about a permit:
// enough to match it to the student in front of them.
type PublicPermit struct {
	Status      models.PermitStatus `json:"status"`
	ExpiryDate  time.Time           `json:"expiry_date"`
	StudentName string              `json:"student_name"`
	StudentCode string              `json:"student_code"`
}

// PublicVerifyResult is VerifyResult as served on the public verify routes.
type PublicVerifyResult struct {
	Valid  bool          `json:"valid"`
	Permit *PublicPermit `json:"permit,omitempty"`
	Reason string        `json:"reason,omitempty"`
}

// Public drops staff-only fields such as contact details, issuer and code.
func (r *VerifyResult) Public() *PublicVerifyResult {
	if r == nil {
		return nil
	}
	out := &PublicVerifyResult{Valid: r.Valid, Reason: r.Reason}
	if r.Permit != nil {
		out.Permit = &PublicPermit{
			Status:      r.Permit.Status,
			ExpiryDate:  r.Permit.ExpiryDate,
			StudentName: r.Permit.StudentName,
			StudentCode: r.Permit.StudentCode,
		}
	}
	return out
}

// ValidityResult reports the computed validity of one permit.
type ValidityResult struct {
	Exists        bool                 `json:"exists"`
	Permit        *models.PermitDetail `json:"permit,omitempty"`
	IsExpired     bool                 `json:"isExpired"`
	DaysRemaining int                  `json:"daysRemaining"`
}

// PermitStats holds permit counts per status.
type PermitStats struct {
	Active  int `json:"active"`
	Expired int `json:"expired"`
	Revoked int `json:"revoked"`
	Total   int `json:"total"`
}

package models

import "time"

// PermitStatus is the lifecycle state of a permit.
type PermitStatus string

const (
	PermitStatusActive  PermitStatus = "active"
	PermitStatusExpired PermitStatus = "expired"
	PermitStatusRevoked PermitStatus = "revoked"
)

// Valid reports whether s is a known status.
func (s PermitStatus) Valid() bool {
	switch s {
	case PermitStatusActive, PermitStatusExpired, PermitStatusRevoked:
		return true
	}
	return false
}

// Permit is an issued SRC permit. PermitCode holds the bcrypt hash of the
// issued "YY-XXXX" code; OriginalCode is the four character body and is nil
// when plaintext retention is disabled.
type Permit struct {
	ID           int64        `db:"id" json:"id"`
	PermitCode   string       `db:"permit_code" json:"-"`
	OriginalCode *string      `db:"original_code" json:"original_code,omitempty"`
	CodePrefix   string       `db:"code_prefix" json:"code_prefix"`
	Status       PermitStatus `db:"status" json:"status"`
	ExpiryDate   time.Time    `db:"expiry_date" json:"expiry_date"`
	AmountPaid   float64      `db:"amount_paid" json:"amount_paid"`
	StudentID    int64        `db:"student_id" json:"student_id"`
	IssuedByID   int64        `db:"issued_by_id" json:"issued_by_id"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}

// IssuedCode rebuilds the code handed to the student, or "" when the
// plaintext was not retained.
func (p *Permit) IssuedCode() string {
	if p == nil || p.OriginalCode == nil || *p.OriginalCode == "" {
		return ""
	}
	return p.CodePrefix + "-" + *p.OriginalCode
}

// IsExpiredAt reports whether the expiry date lies strictly before now.
func (p *Permit) IsExpiredAt(now time.Time) bool {
	return now.After(p.ExpiryDate)
}

// PermitDetail joins a permit with its student and issuer for display.
type PermitDetail struct {
	Permit
	StudentCode  string `db:"student_code" json:"student_code"`
	StudentName  string `db:"student_name" json:"student_name"`
	StudentEmail string `db:"student_email" json:"student_email,omitempty"`
	IssuedByName string `db:"issued_by_name" json:"issued_by_name"`
}

// PermitFilter captures list and search parameters.
type PermitFilter struct {
	Search    string
	Status    *PermitStatus
	StudentID *int64
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// PermitStatusCount is one row of the grouped status count.
type PermitStatusCount struct {
	Status PermitStatus `db:"status" json:"status"`
	Count  int          `db:"count" json:"count"`
}

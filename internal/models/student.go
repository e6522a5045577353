package models

import (
	"strings"
	"time"
)

// Student is a registered student. StudentCode is the external, student-facing
// identifier printed on ID cards; ID is internal.
type Student struct {
	ID          int64     `db:"id" json:"id"`
	StudentCode string    `db:"student_code" json:"student_id"`
	FullName    string    `db:"full_name" json:"full_name"`
	Email       string    `db:"email" json:"email"`
	Program     string    `db:"program" json:"program"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// StudentImportResult summarises a CSV import.
type StudentImportResult struct {
	Created int                  `json:"created"`
	Skipped int                  `json:"skipped"`
	Errors  []StudentImportError `json:"errors,omitempty"`
}

// StudentImportError describes a rejected CSV row.
type StudentImportError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// NormalizeStudentCode puts a student code in its stored form: trimmed and
// upper-cased.
func NormalizeStudentCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

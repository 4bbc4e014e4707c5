package model

import "time"

// Enrollment is the granted access relationship between a user and a course.
// At most one row exists per (user, course); an audit grant upgraded to paid
// is updated in place rather than duplicated.
type Enrollment struct {
	ID         string // ULID
	UserID     string
	CourseCode string
	Audit      bool // mirrors the originating payment's audit flag
	PaymentID  *string
	GrantedAt  time.Time
	UpdatedAt  time.Time
}

// CertificateEligible reports whether the enrollment can ever satisfy
// certificate checks. Audit enrollments never qualify, regardless of
// course progress.
func (e *Enrollment) CertificateEligible() bool {
	return !e.Audit
}

package enums

import "fmt"

// EnrollmentStatus tracks a student's request for access to a course.
type EnrollmentStatus string

const (
	EnrollmentStatusPending  EnrollmentStatus = "pending"
	EnrollmentStatusApproved EnrollmentStatus = "approved"
	EnrollmentStatusRejected EnrollmentStatus = "rejected"
)

var validEnrollmentStatuses = []EnrollmentStatus{
	EnrollmentStatusPending,
	EnrollmentStatusApproved,
	EnrollmentStatusRejected,
}

// enrollmentTransitions lists the administrative moves. rejected -> pending is
// absent: only a fresh submission reopens a rejected enrollment. Approval also
// requires that the latest payment is not rejected, which the enrollment
// transitions check against the ledger.
var enrollmentTransitions = map[EnrollmentStatus][]EnrollmentStatus{
	EnrollmentStatusPending:  {EnrollmentStatusApproved, EnrollmentStatusRejected},
	EnrollmentStatusApproved: {EnrollmentStatusRejected},
	EnrollmentStatusRejected: {EnrollmentStatusApproved},
}

// String implements fmt.Stringer.
func (s EnrollmentStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known EnrollmentStatus.
func (s EnrollmentStatus) IsValid() bool {
	for _, candidate := range validEnrollmentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether an administrator may move s to next.
func (s EnrollmentStatus) CanTransitionTo(next EnrollmentStatus) bool {
	for _, candidate := range enrollmentTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// AllowsResubmission reports whether a new request may overwrite the record.
func (s EnrollmentStatus) AllowsResubmission() bool {
	return s == EnrollmentStatusRejected
}

// ParseEnrollmentStatus converts raw input into an EnrollmentStatus.
func ParseEnrollmentStatus(value string) (EnrollmentStatus, error) {
	for _, candidate := range validEnrollmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid enrollment status %q", value)
}

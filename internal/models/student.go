package models

// Student is the slice of the student directory that billing reads.
type Student struct {
	ID             int64   `db:"id" json:"id"`
	SchoolID       int64   `db:"school_id" json:"school_id"`
	FullName       string  `db:"full_name" json:"full_name"`
	ClassLevel     string  `db:"class_level" json:"class_level"`
	BoardingStatus *string `db:"boarding_status" json:"boarding_status,omitempty"`
	Active         bool    `db:"is_active" json:"is_active"`
}

// Boarding returns the student's boarding status or an empty string when unknown.
func (s Student) Boarding() string {
	if s.BoardingStatus == nil {
		return ""
	}
	return *s.BoardingStatus
}

package models

import "time"

// StudentStatus enumerates the lifecycle states a student moves through.
type StudentStatus string

const (
	StudentStatusActive   StudentStatus = "active"
	StudentStatusInactive StudentStatus = "inactive"
	StudentStatusOnHold   StudentStatus = "on-hold"
)

// ValidStudentStatus reports whether the given value is a known status.
func ValidStudentStatus(s StudentStatus) bool {
	switch s {
	case StudentStatusActive, StudentStatusInactive, StudentStatusOnHold:
		return true
	}
	return false
}

// Student represents a learner managed by a counsellor. Rows are soft
// deleted: DeletedAt marks the record as removed while keeping it
// restorable.
type Student struct {
	ID        string        `db:"id" json:"id"`
	FullName  string        `db:"full_name" json:"fullName"`
	Phone     string        `db:"phone" json:"phone"`
	Course    string        `db:"course" json:"course"`
	Email     *string       `db:"email" json:"email,omitempty"`
	Status    StudentStatus `db:"status" json:"status"`
	JoinedAt  time.Time     `db:"joined_at" json:"joinedAt"`
	Notes     *string       `db:"notes" json:"notes,omitempty"`
	DeletedAt *time.Time    `db:"deleted_at" json:"deletedAt,omitempty"`
	CreatedAt time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time     `db:"updated_at" json:"updatedAt"`
}

// IsDeleted reports whether the row is soft deleted.
func (s Student) IsDeleted() bool {
	return s.DeletedAt != nil
}

// StudentFilter encapsulates the allowed query parameters for listing
// students. Zero values mean the filter is inactive; soft-deleted rows are
// excluded unless IncludeDeleted is set.
type StudentFilter struct {
	Search         string
	Course         string
	Status         StudentStatus
	JoinedFrom     *time.Time
	JoinedTo       *time.Time
	IncludeDeleted bool
	Page           int
	PageSize       int
}

// StudentPatch carries a partial update. Nil fields are left untouched.
// JoinedAt uses the same YYYY-MM-DD format as creation.
type StudentPatch struct {
	FullName *string        `json:"fullName,omitempty"`
	Phone    *string        `json:"phone,omitempty"`
	Course   *string        `json:"course,omitempty"`
	Email    *string        `json:"email,omitempty"`
	Status   *StudentStatus `json:"status,omitempty"`
	JoinedAt *string        `json:"joinedAt,omitempty"`
	Notes    *string        `json:"notes,omitempty"`
}

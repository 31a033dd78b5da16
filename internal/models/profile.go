package models

import "time"

// CounsellorProfile is the public-facing profile attached to a counsellor
// account. The slug feeds the public referral link.
type CounsellorProfile struct {
	UserID         string    `db:"user_id" json:"user_id"`
	DisplayName    string    `db:"display_name" json:"display_name"`
	Email          string    `db:"email" json:"email"`
	Specialization string    `db:"specialization" json:"specialization"`
	Phone          string    `db:"phone" json:"phone"`
	Slug           string    `db:"slug" json:"slug"`
	ReferralLink   string    `db:"-" json:"referral_link,omitempty"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

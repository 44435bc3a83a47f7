package assessment

import "time"

// ValidEmail is an allow-list entry granting payment bypass while active and
// inside its validity window.
type ValidEmail struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Email      string     `gorm:"column:email;not null;uniqueIndex" json:"email"`
	Active     bool       `gorm:"column:active;not null" json:"active"`
	ValidFrom  time.Time  `gorm:"column:valid_from;not null" json:"valid_from"`
	ValidUntil *time.Time `gorm:"column:valid_until" json:"valid_until,omitempty"`
	Note       string     `gorm:"column:note" json:"note,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (ValidEmail) TableName() string { return "valid_email" }

func (v *ValidEmail) ValidAt(now time.Time) bool {
	if v == nil || !v.Active {
		return false
	}
	if v.ValidFrom.After(now) {
		return false
	}
	return v.ValidUntil == nil || v.ValidUntil.After(now)
}

type Coupon struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Code          string    `gorm:"column:code;not null;uniqueIndex" json:"code"`
	Active        bool      `gorm:"column:active;not null" json:"active"`
	Expires       time.Time `gorm:"column:expires;not null" json:"expires"`
	UsesRemaining int       `gorm:"column:uses_remaining;not null" json:"uses_remaining"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (Coupon) TableName() string { return "coupon" }

func (c *Coupon) ValidAt(now time.Time) bool {
	return c != nil && c.Active && c.Expires.After(now) && c.UsesRemaining > 0
}

package models

// Rep represents a field sales representative.
type Rep struct {
	ID        UUID   `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	Phone     string `db:"phone" json:"phone,omitempty"`
	IsActive  bool   `db:"is_active" json:"is_active"`
	CreatedAt int64  `db:"created_at" json:"created_at"`
	UpdatedAt int64  `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Rep.
func (Rep) TableName() string {
	return "reps"
}

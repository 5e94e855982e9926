package models

// Store represents a retail outlet with registered coordinates.
// Coordinates are read-only to the visit core; the only mutation this
// core performs on a store is touching LastVisitAt after a check-in.
type Store struct {
	ID          UUID    `db:"id" json:"id"`
	Name        string  `db:"name" json:"name"`
	Latitude    float64 `db:"latitude" json:"latitude"`
	Longitude   float64 `db:"longitude" json:"longitude"`
	LastVisitAt *int64  `db:"last_visit_at" json:"last_visit_at,omitempty"`
	CreatedAt   int64   `db:"created_at" json:"created_at"`
	UpdatedAt   int64   `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Store.
func (Store) TableName() string {
	return "stores"
}

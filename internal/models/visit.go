package models

import "time"

// Visit represents a store visit by a representative.
// A visit is created open by a successful check-in and transitions
// once, irreversibly, to closed by check-out. Visits are never deleted.
type Visit struct {
	ID              UUID     `db:"id" json:"id"`
	RepID           UUID     `db:"rep_id" json:"rep_id"`
	StoreID         UUID     `db:"store_id" json:"store_id"`
	CheckInTime     int64    `db:"check_in_time" json:"check_in_time"`
	CheckInLat      float64  `db:"check_in_lat" json:"check_in_lat"`
	CheckInLng      float64  `db:"check_in_lng" json:"check_in_lng"`
	CheckOutTime    *int64   `db:"check_out_time" json:"check_out_time,omitempty"`
	CheckOutLat     *float64 `db:"check_out_lat" json:"check_out_lat,omitempty"`
	CheckOutLng     *float64 `db:"check_out_lng" json:"check_out_lng,omitempty"`
	DurationMinutes *int     `db:"duration_minutes" json:"duration_minutes,omitempty"`
	Notes           string   `db:"notes" json:"notes,omitempty"`
	PhotoRefs       []string `db:"photo_refs" json:"photo_refs"`
	CreatedAt       int64    `db:"created_at" json:"created_at"`
	UpdatedAt       int64    `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Visit.
func (Visit) TableName() string {
	return "visits"
}

// IsOpen reports whether the visit has not been checked out yet.
func (v *Visit) IsOpen() bool {
	return v.CheckOutTime == nil
}

// CheckInAt returns CheckInTime as time.Time.
func (v *Visit) CheckInAt() time.Time {
	return time.Unix(v.CheckInTime, 0)
}

// MergePhotoRefs appends newly supplied photo references to the existing
// set. Existing references are never overwritten; duplicates are skipped.
func (v *Visit) MergePhotoRefs(refs []string) {
	seen := make(map[string]bool, len(v.PhotoRefs))
	for _, ref := range v.PhotoRefs {
		seen[ref] = true
	}
	for _, ref := range refs {
		if ref == "" || seen[ref] {
			continue
		}
		v.PhotoRefs = append(v.PhotoRefs, ref)
		seen[ref] = true
	}
}

// Package db provides CRUD repository operations for OpenSales data models.
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/akshitpareta/OpenSalesAI-sub000/internal/models"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/uuid"
)

// Repository provides CRUD operations for all models.
// Frequently used queries go through a prepared statement cache.
type Repository struct {
	db *sql.DB

	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewRepository creates a new Repository instance.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// PrepareStmt gets or creates a prepared statement from cache.
func (r *Repository) PrepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := r.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := r.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	actual, loaded := r.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		// Another goroutine already prepared this, close our duplicate
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}

	return stmt, nil
}

// Close closes all cached prepared statements.
func (r *Repository) Close() error {
	var firstErr error
	r.stmtCache.Range(func(key, value interface{}) bool {
		stmt := value.(*sql.Stmt)
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

// =====================================================
// Store operations
// =====================================================

// CreateStore creates a new store.
func (r *Repository) CreateStore(store *models.Store) error {
	now := time.Now().Unix()
	store.ID = models.UUID(uuid.New())
	store.CreatedAt = now
	store.UpdatedAt = now

	query := `
	INSERT INTO stores (id, name, latitude, longitude, last_visit_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, store.ID, store.Name, store.Latitude, store.Longitude,
		store.LastVisitAt, store.CreatedAt, store.UpdatedAt)
	return err
}

// GetStore retrieves a store by ID.
func (r *Repository) GetStore(id string) (*models.Store, error) {
	query := `
	SELECT id, name, latitude, longitude, last_visit_at, created_at, updated_at
	FROM stores WHERE id = ?
	`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	var store models.Store
	var lastVisit sql.NullInt64
	err = stmt.QueryRow(id).Scan(
		&store.ID, &store.Name, &store.Latitude, &store.Longitude,
		&lastVisit, &store.CreatedAt, &store.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastVisit.Valid {
		store.LastVisitAt = &lastVisit.Int64
	}
	return &store, nil
}

// ListStores returns all stores ordered by name.
func (r *Repository) ListStores(limit, offset int) ([]*models.Store, error) {
	query := `
	SELECT id, name, latitude, longitude, last_visit_at, created_at, updated_at
	FROM stores ORDER BY name LIMIT ? OFFSET ?
	`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stores []*models.Store
	for rows.Next() {
		var store models.Store
		var lastVisit sql.NullInt64
		if err := rows.Scan(&store.ID, &store.Name, &store.Latitude, &store.Longitude,
			&lastVisit, &store.CreatedAt, &store.UpdatedAt); err != nil {
			return nil, err
		}
		if lastVisit.Valid {
			store.LastVisitAt = &lastVisit.Int64
		}
		stores = append(stores, &store)
	}
	return stores, rows.Err()
}

// TouchStoreLastVisit updates the store's last visit timestamp.
func (r *Repository) TouchStoreLastVisit(id string, at int64) error {
	query := `UPDATE stores SET last_visit_at = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.Exec(query, at, time.Now().Unix(), id)
	return err
}

// =====================================================
// Rep operations
// =====================================================

// CreateRep creates a new representative.
func (r *Repository) CreateRep(rep *models.Rep) error {
	now := time.Now().Unix()
	rep.ID = models.UUID(uuid.New())
	rep.CreatedAt = now
	rep.UpdatedAt = now

	query := `
	INSERT INTO reps (id, name, phone, is_active, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, rep.ID, rep.Name, rep.Phone, rep.IsActive,
		rep.CreatedAt, rep.UpdatedAt)
	return err
}

// GetRep retrieves a representative by ID.
func (r *Repository) GetRep(id string) (*models.Rep, error) {
	query := `
	SELECT id, name, phone, is_active, created_at, updated_at
	FROM reps WHERE id = ?
	`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	var rep models.Rep
	err = stmt.QueryRow(id).Scan(
		&rep.ID, &rep.Name, &rep.Phone, &rep.IsActive,
		&rep.CreatedAt, &rep.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rep, nil
}

// =====================================================
// Visit operations
// =====================================================

const visitColumns = `id, rep_id, store_id, check_in_time, check_in_lat, check_in_lng,
	check_out_time, check_out_lat, check_out_lng, duration_minutes, notes, photo_refs,
	created_at, updated_at`

// CreateVisitIfNoneOpen inserts an open visit for v.RepID only if the
// representative has no open visit. The insert and the existence check
// run as one statement, backed by the partial unique index on
// (rep_id) WHERE check_out_time IS NULL, so concurrent duplicates
// cannot both succeed. Returns false when an open visit already exists.
func (r *Repository) CreateVisitIfNoneOpen(v *models.Visit) (bool, error) {
	now := time.Now().Unix()
	if v.ID == "" {
		v.ID = models.UUID(uuid.New())
	}
	v.CreatedAt = now
	v.UpdatedAt = now
	if v.PhotoRefs == nil {
		v.PhotoRefs = []string{}
	}

	photoJSON, err := json.Marshal(v.PhotoRefs)
	if err != nil {
		return false, fmt.Errorf("failed to marshal photo refs: %w", err)
	}

	query := `
	INSERT INTO visits (id, rep_id, store_id, check_in_time, check_in_lat, check_in_lng,
		notes, photo_refs, created_at, updated_at)
	SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
	WHERE NOT EXISTS (
		SELECT 1 FROM visits WHERE rep_id = ? AND check_out_time IS NULL
	)
	`
	res, err := r.db.Exec(query,
		v.ID, v.RepID, v.StoreID, v.CheckInTime, v.CheckInLat, v.CheckInLng,
		v.Notes, string(photoJSON), v.CreatedAt, v.UpdatedAt,
		v.RepID,
	)
	if err != nil {
		// The unique index can still fire if a concurrent insert won the
		// race between the NOT EXISTS evaluation and the write.
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetVisit retrieves a visit by ID.
func (r *Repository) GetVisit(id string) (*models.Visit, error) {
	query := `SELECT ` + visitColumns + ` FROM visits WHERE id = ?`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}
	return scanVisit(stmt.QueryRow(id))
}

// GetOpenVisitByRep returns the representative's open visit, or
// sql.ErrNoRows when there is none.
func (r *Repository) GetOpenVisitByRep(repID string) (*models.Visit, error) {
	query := `SELECT ` + visitColumns + ` FROM visits WHERE rep_id = ? AND check_out_time IS NULL`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}
	return scanVisit(stmt.QueryRow(repID))
}

// ListVisitsByRep returns a representative's visits, newest first.
func (r *Repository) ListVisitsByRep(repID string, limit, offset int) ([]*models.Visit, error) {
	query := `SELECT ` + visitColumns + `
	FROM visits WHERE rep_id = ? ORDER BY check_in_time DESC LIMIT ? OFFSET ?`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(repID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanVisits(rows)
}

// ListOpenVisits returns all open visits, oldest first. Used by
// administrative tooling to find abandoned visits.
func (r *Repository) ListOpenVisits() ([]*models.Visit, error) {
	query := `SELECT ` + visitColumns + `
	FROM visits WHERE check_out_time IS NULL ORDER BY check_in_time`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanVisits(rows)
}

// CloseVisit stamps the checkout fields on an open visit. The update is
// guarded by check_out_time IS NULL; returns false when the visit was
// already closed (or does not exist).
func (r *Repository) CloseVisit(v *models.Visit) (bool, error) {
	photoJSON, err := json.Marshal(v.PhotoRefs)
	if err != nil {
		return false, fmt.Errorf("failed to marshal photo refs: %w", err)
	}

	query := `
	UPDATE visits
	SET check_out_time = ?, check_out_lat = ?, check_out_lng = ?,
		duration_minutes = ?, notes = ?, photo_refs = ?, updated_at = ?
	WHERE id = ? AND check_out_time IS NULL
	`
	res, err := r.db.Exec(query,
		v.CheckOutTime, v.CheckOutLat, v.CheckOutLng,
		v.DurationMinutes, v.Notes, string(photoJSON), time.Now().Unix(),
		v.ID,
	)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// =====================================================
// Mutation receipt operations
// =====================================================

// SaveMutationReceipt records the outcome of a processed mutation.
// Saving the same mutation id twice is a no-op; the first receipt wins.
func (r *Repository) SaveMutationReceipt(receipt *models.MutationReceipt) error {
	receipt.CreatedAt = time.Now().Unix()
	query := `
	INSERT OR IGNORE INTO mutation_receipts (mutation_id, status_code, body, created_at)
	VALUES (?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, receipt.MutationID, receipt.StatusCode,
		string(receipt.Body), receipt.CreatedAt)
	return err
}

// GetMutationReceipt retrieves a receipt by mutation id, or
// sql.ErrNoRows when the mutation has not been seen.
func (r *Repository) GetMutationReceipt(mutationID string) (*models.MutationReceipt, error) {
	query := `
	SELECT mutation_id, status_code, body, created_at
	FROM mutation_receipts WHERE mutation_id = ?
	`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	var receipt models.MutationReceipt
	var body string
	err = stmt.QueryRow(mutationID).Scan(
		&receipt.MutationID, &receipt.StatusCode, &body, &receipt.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	receipt.Body = json.RawMessage(body)
	return &receipt, nil
}

// =====================================================
// Scan helpers
// =====================================================

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVisit(row rowScanner) (*models.Visit, error) {
	var v models.Visit
	var checkOutTime sql.NullInt64
	var checkOutLat, checkOutLng sql.NullFloat64
	var duration sql.NullInt64
	var photoJSON string

	err := row.Scan(
		&v.ID, &v.RepID, &v.StoreID, &v.CheckInTime, &v.CheckInLat, &v.CheckInLng,
		&checkOutTime, &checkOutLat, &checkOutLng, &duration, &v.Notes, &photoJSON,
		&v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if checkOutTime.Valid {
		v.CheckOutTime = &checkOutTime.Int64
	}
	if checkOutLat.Valid {
		v.CheckOutLat = &checkOutLat.Float64
	}
	if checkOutLng.Valid {
		v.CheckOutLng = &checkOutLng.Float64
	}
	if duration.Valid {
		d := int(duration.Int64)
		v.DurationMinutes = &d
	}
	if err := json.Unmarshal([]byte(photoJSON), &v.PhotoRefs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal photo refs: %w", err)
	}
	return &v, nil
}

func scanVisits(rows *sql.Rows) ([]*models.Visit, error) {
	var visits []*models.Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		visits = append(visits, v)
	}
	return visits, rows.Err()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	// modernc.org/sqlite reports constraint failures in the error text;
	// there is no exported sentinel to compare against.
	return strings.Contains(err.Error(), "constraint failed")
}

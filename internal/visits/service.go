// Package visits implements the server-side visit lifecycle state machine:
// proximity-gated check-in, duration-gated check-out, and the
// one-open-visit-per-representative invariant.
package visits

import (
	"database/sql"
	"errors"
	"math"
	"time"

	"github.com/akshitpareta/OpenSalesAI-sub000/internal/apperrors"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/db"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/geo"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/logging"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/models"
)

// Defaults applied when NewService is given zero values.
const (
	DefaultProximityMeters  = 100.0
	DefaultMinVisitDuration = 5 * time.Minute
)

// Service enforces the visit lifecycle invariants.
type Service struct {
	repo             *db.Repository
	proximityMeters  float64
	minVisitDuration time.Duration
	now              func() time.Time
}

// NewService creates a visit lifecycle service. Zero thresholds fall
// back to the defaults (100 m, 5 minutes).
func NewService(repo *db.Repository, proximityMeters float64, minVisitDuration time.Duration) *Service {
	if proximityMeters <= 0 {
		proximityMeters = DefaultProximityMeters
	}
	if minVisitDuration <= 0 {
		minVisitDuration = DefaultMinVisitDuration
	}
	return &Service{
		repo:             repo,
		proximityMeters:  proximityMeters,
		minVisitDuration: minVisitDuration,
		now:              time.Now,
	}
}

// SetClock overrides the service clock. Test hook.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// CheckInInput carries a check-in request.
type CheckInInput struct {
	RepID       models.UUID
	StoreID     models.UUID
	Coordinates geo.Coordinates
}

// CheckIn opens a visit for the representative at the store.
// Preconditions, in order: valid coordinates, store exists, rep exists,
// no active visit, within proximity of the store.
func (s *Service) CheckIn(in CheckInInput) (*models.Visit, error) {
	if err := in.Coordinates.Validate(); err != nil {
		return nil, err
	}

	store, err := s.repo.GetStore(string(in.StoreID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.New(apperrors.ErrStoreNotFound, "store not found").
				WithDetail("store_id", string(in.StoreID))
		}
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to load store", err)
	}

	if _, err := s.repo.GetRep(string(in.RepID)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.New(apperrors.ErrRepNotFound, "representative not found").
				WithDetail("rep_id", string(in.RepID))
		}
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to load representative", err)
	}

	if open, err := s.repo.GetOpenVisitByRep(string(in.RepID)); err == nil {
		return nil, activeVisitError(open)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to check for active visit", err)
	}

	storeCoords := geo.Coordinates{Lat: store.Latitude, Lng: store.Longitude}
	distance := geo.DistanceMeters(in.Coordinates, storeCoords)
	if distance > s.proximityMeters {
		return nil, apperrors.New(apperrors.ErrTooFarFromStore, "check-in location is too far from the store").
			WithDetail("distance_meters", math.Round(distance*10)/10).
			WithDetail("max_distance_meters", s.proximityMeters)
	}

	now := s.now()
	visit := &models.Visit{
		RepID:       in.RepID,
		StoreID:     in.StoreID,
		CheckInTime: now.Unix(),
		CheckInLat:  in.Coordinates.Lat,
		CheckInLng:  in.Coordinates.Lng,
		PhotoRefs:   []string{},
	}

	inserted, err := s.repo.CreateVisitIfNoneOpen(visit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to create visit", err)
	}
	if !inserted {
		// A concurrent check-in (second device, replayed duplicate) won
		// the race after our pre-check; report the visit that exists now.
		if open, err := s.repo.GetOpenVisitByRep(string(in.RepID)); err == nil {
			return nil, activeVisitError(open)
		}
		return nil, apperrors.New(apperrors.ErrActiveVisitExists, "an active visit already exists")
	}

	if err := s.repo.TouchStoreLastVisit(string(in.StoreID), now.Unix()); err != nil {
		logging.Warn("Failed to touch store last visit",
			map[string]interface{}{"store_id": string(in.StoreID), "error": err.Error()})
	}

	logging.Info("Visit opened", map[string]interface{}{
		"visit_id": string(visit.ID),
		"rep_id":   string(in.RepID),
		"store_id": string(in.StoreID),
	})

	return visit, nil
}

// CheckOutInput carries a check-out request.
type CheckOutInput struct {
	VisitID     models.UUID
	Coordinates geo.Coordinates
	Notes       string
	PhotoRefs   []string
}

// CheckOut closes an open visit. Preconditions, in order: valid
// coordinates, visit exists, visit not already closed, elapsed time at
// or above the minimum duration. On success the visit is closed
// irreversibly and newly supplied photo references are merged with
// existing ones.
func (s *Service) CheckOut(in CheckOutInput) (*models.Visit, error) {
	if err := in.Coordinates.Validate(); err != nil {
		return nil, err
	}

	visit, err := s.repo.GetVisit(string(in.VisitID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.New(apperrors.ErrVisitNotFound, "visit not found").
				WithDetail("visit_id", string(in.VisitID))
		}
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to load visit", err)
	}

	if !visit.IsOpen() {
		return nil, apperrors.New(apperrors.ErrAlreadyCheckedOut, "visit is already checked out").
			WithDetail("visit_id", string(in.VisitID))
	}

	now := s.now()
	elapsed := now.Sub(visit.CheckInAt())
	if elapsed < s.minVisitDuration {
		return nil, apperrors.New(apperrors.ErrVisitTooShort, "visit is shorter than the minimum duration").
			WithDetail("minimum_minutes", int(s.minVisitDuration.Minutes())).
			WithDetail("current_minutes", int(elapsed.Minutes()))
	}

	checkOutTime := now.Unix()
	duration := int(math.Round(elapsed.Minutes()))
	visit.CheckOutTime = &checkOutTime
	visit.CheckOutLat = &in.Coordinates.Lat
	visit.CheckOutLng = &in.Coordinates.Lng
	visit.DurationMinutes = &duration
	if in.Notes != "" {
		visit.Notes = in.Notes
	}
	visit.MergePhotoRefs(in.PhotoRefs)

	closed, err := s.repo.CloseVisit(visit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to close visit", err)
	}
	if !closed {
		// Lost a race with another checkout for the same visit.
		return nil, apperrors.New(apperrors.ErrAlreadyCheckedOut, "visit is already checked out").
			WithDetail("visit_id", string(in.VisitID))
	}

	logging.Info("Visit closed", map[string]interface{}{
		"visit_id":         string(visit.ID),
		"rep_id":           string(visit.RepID),
		"duration_minutes": duration,
	})

	return visit, nil
}

// Get returns a visit by id.
func (s *Service) Get(id models.UUID) (*models.Visit, error) {
	visit, err := s.repo.GetVisit(string(id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.New(apperrors.ErrVisitNotFound, "visit not found").
				WithDetail("visit_id", string(id))
		}
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to load visit", err)
	}
	return visit, nil
}

// ListByRep returns a representative's visits, newest first.
func (s *Service) ListByRep(repID models.UUID, limit, offset int) ([]*models.Visit, error) {
	visits, err := s.repo.ListVisitsByRep(string(repID), limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list visits", err)
	}
	return visits, nil
}

// ListOpen returns all open visits, oldest first. There is no
// timeout-driven auto-checkout; an abandoned open visit blocks new
// check-ins for its representative until resolved through this surface.
func (s *Service) ListOpen() ([]*models.Visit, error) {
	visits, err := s.repo.ListOpenVisits()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list open visits", err)
	}
	return visits, nil
}

func activeVisitError(open *models.Visit) *apperrors.AppError {
	return apperrors.New(apperrors.ErrActiveVisitExists, "an active visit already exists").
		WithDetail("active_visit_id", string(open.ID)).
		WithDetail("store_id", string(open.StoreID))
}

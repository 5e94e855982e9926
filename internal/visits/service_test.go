package visits

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/akshitpareta/OpenSalesAI-sub000/internal/apperrors"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/db"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/geo"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/models"
)

// Store location used across the lifecycle tests. Roughly Mumbai.
const (
	storeLat = 19.0760
	storeLng = 72.8777
)

func setupService(t *testing.T) (*Service, *db.Repository) {
	t.Helper()
	database, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	migrator := db.NewMigrator(database)
	if err := migrator.Initialize(); err != nil {
		t.Fatalf("Failed to initialize migrator: %v", err)
	}
	if err := migrator.Up(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	repo := db.NewRepository(database)
	t.Cleanup(func() { repo.Close() })
	return NewService(repo, 0, 0), repo
}

func seedStoreAndRep(t *testing.T, repo *db.Repository) (*models.Store, *models.Rep) {
	t.Helper()
	store := &models.Store{Name: "Dadar General Store", Latitude: storeLat, Longitude: storeLng}
	if err := repo.CreateStore(store); err != nil {
		t.Fatalf("CreateStore failed: %v", err)
	}
	rep := &models.Rep{Name: "Ravi", Phone: "+91-9811111111", IsActive: true}
	if err := repo.CreateRep(rep); err != nil {
		t.Fatalf("CreateRep failed: %v", err)
	}
	return store, rep
}

func checkInAt(t *testing.T, svc *Service, repID, storeID models.UUID, lat, lng float64) *models.Visit {
	t.Helper()
	visit, err := svc.CheckIn(CheckInInput{
		RepID:       repID,
		StoreID:     storeID,
		Coordinates: geo.Coordinates{Lat: lat, Lng: lng},
	})
	if err != nil {
		t.Fatalf("CheckIn failed: %v", err)
	}
	return visit
}

func TestCheckInWithinProximity(t *testing.T) {
	svc, repo := setupService(t)
	store, rep := seedStoreAndRep(t, repo)

	// ~11 m north of the store, inside the 100 m radius.
	visit := checkInAt(t, svc, rep.ID, store.ID, storeLat+0.0001, storeLng)
	if !visit.IsOpen() {
		t.Error("new visit should be open")
	}
	if visit.RepID != rep.ID || visit.StoreID != store.ID {
		t.Errorf("visit = %+v", visit)
	}

	// Check-in stamps the store's last visit time.
	got, err := repo.GetStore(string(store.ID))
	if err != nil {
		t.Fatalf("GetStore failed: %v", err)
	}
	if got.LastVisitAt == nil {
		t.Error("store LastVisitAt should be set after check-in")
	}
}

func TestCheckInTooFarFromStore(t *testing.T) {
	svc, repo := setupService(t)
	store, rep := seedStoreAndRep(t, repo)

	// ~1.1 km north of the store.
	_, err := svc.CheckIn(CheckInInput{
		RepID:       rep.ID,
		StoreID:     store.ID,
		Coordinates: geo.Coordinates{Lat: storeLat + 0.01, Lng: storeLng},
	})
	if !apperrors.Is(err, apperrors.ErrTooFarFromStore) {
		t.Fatalf("CheckIn = %v, want TOO_FAR_FROM_STORE", err)
	}

	details := apperrors.DetailsOf(err)
	distance, ok := details["distance_meters"].(float64)
	if !ok || distance <= 100 {
		t.Errorf("distance_meters detail = %v, want > 100", details["distance_meters"])
	}
	if details["max_distance_meters"] != DefaultProximityMeters {
		t.Errorf("max_distance_meters = %v", details["max_distance_meters"])
	}
}

func TestCheckInSingleActiveVisit(t *testing.T) {
	svc, repo := setupService(t)
	store, rep := seedStoreAndRep(t, repo)

	first := checkInAt(t, svc, rep.ID, store.ID, storeLat, storeLng)

	_, err := svc.CheckIn(CheckInInput{
		RepID:       rep.ID,
		StoreID:     store.ID,
		Coordinates: geo.Coordinates{Lat: storeLat, Lng: storeLng},
	})
	if !apperrors.Is(err, apperrors.ErrActiveVisitExists) {
		t.Fatalf("second CheckIn = %v, want ACTIVE_VISIT_EXISTS", err)
	}
	if apperrors.DetailsOf(err)["active_visit_id"] != string(first.ID) {
		t.Errorf("active_visit_id detail = %v, want %s", apperrors.DetailsOf(err)["active_visit_id"], first.ID)
	}
}

func TestCheckInErrorPrecedence(t *testing.T) {
	svc, repo := setupService(t)
	store, rep := seedStoreAndRep(t, repo)

	// Invalid coordinates beat everything else.
	_, err := svc.CheckIn(CheckInInput{
		RepID:       "no-such-rep",
		StoreID:     "no-such-store",
		Coordinates: geo.Coordinates{Lat: 91, Lng: 0},
	})
	if !apperrors.Is(err, apperrors.ErrInvalidCoordinates) {
		t.Fatalf("err = %v, want INVALID_COORDINATES", err)
	}

	// Missing store beats missing rep.
	_, err = svc.CheckIn(CheckInInput{
		RepID:       "no-such-rep",
		StoreID:     "no-such-store",
		Coordinates: geo.Coordinates{Lat: storeLat, Lng: storeLng},
	})
	if !apperrors.Is(err, apperrors.ErrStoreNotFound) {
		t.Fatalf("err = %v, want STORE_NOT_FOUND", err)
	}

	// Missing rep beats proximity.
	_, err = svc.CheckIn(CheckInInput{
		RepID:       "no-such-rep",
		StoreID:     store.ID,
		Coordinates: geo.Coordinates{Lat: storeLat + 0.01, Lng: storeLng},
	})
	if !apperrors.Is(err, apperrors.ErrRepNotFound) {
		t.Fatalf("err = %v, want REP_NOT_FOUND", err)
	}

	// Active visit beats proximity.
	checkInAt(t, svc, rep.ID, store.ID, storeLat, storeLng)
	_, err = svc.CheckIn(CheckInInput{
		RepID:       rep.ID,
		StoreID:     store.ID,
		Coordinates: geo.Coordinates{Lat: storeLat + 0.01, Lng: storeLng},
	})
	if !apperrors.Is(err, apperrors.ErrActiveVisitExists) {
		t.Fatalf("err = %v, want ACTIVE_VISIT_EXISTS", err)
	}
}

func TestCheckOutTooShort(t *testing.T) {
	svc, repo := setupService(t)
	store, rep := seedStoreAndRep(t, repo)

	visit := checkInAt(t, svc, rep.ID, store.ID, storeLat, storeLng)

	_, err := svc.CheckOut(CheckOutInput{
		VisitID:     visit.ID,
		Coordinates: geo.Coordinates{Lat: storeLat, Lng: storeLng},
	})
	if !apperrors.Is(err, apperrors.ErrVisitTooShort) {
		t.Fatalf("CheckOut = %v, want VISIT_TOO_SHORT", err)
	}
	details := apperrors.DetailsOf(err)
	if details["minimum_minutes"] != 5 {
		t.Errorf("minimum_minutes = %v, want 5", details["minimum_minutes"])
	}
	if details["current_minutes"] != 0 {
		t.Errorf("current_minutes = %v, want 0", details["current_minutes"])
	}

	// The visit stays open after a refused checkout.
	got, err := svc.Get(visit.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.IsOpen() {
		t.Error("visit should remain open")
	}
}

func TestCheckOutAfterMinimumDuration(t *testing.T) {
	svc, repo := setupService(t)
	store, rep := seedStoreAndRep(t, repo)

	base := time.Now()
	svc.SetClock(func() time.Time { return base })
	visit := checkInAt(t, svc, rep.ID, store.ID, storeLat, storeLng)

	// Ten minutes later.
	svc.SetClock(func() time.Time { return base.Add(10 * time.Minute) })
	closed, err := svc.CheckOut(CheckOutInput{
		VisitID:     visit.ID,
		Coordinates: geo.Coordinates{Lat: storeLat + 0.0001, Lng: storeLng},
		Notes:       "restocked shelves",
		PhotoRefs:   []string{"shelf-a.jpg", "shelf-b.jpg"},
	})
	if err != nil {
		t.Fatalf("CheckOut failed: %v", err)
	}

	if closed.IsOpen() {
		t.Error("visit should be closed")
	}
	if closed.DurationMinutes == nil || *closed.DurationMinutes != 10 {
		t.Errorf("DurationMinutes = %v, want 10", closed.DurationMinutes)
	}
	if closed.Notes != "restocked shelves" {
		t.Errorf("Notes = %q", closed.Notes)
	}
	if len(closed.PhotoRefs) != 2 {
		t.Errorf("PhotoRefs = %v", closed.PhotoRefs)
	}

	// The rep is free for the next visit.
	checkInAt(t, svc, rep.ID, store.ID, storeLat, storeLng)
}

func TestCheckOutAlreadyCheckedOut(t *testing.T) {
	svc, repo := setupService(t)
	store, rep := seedStoreAndRep(t, repo)

	base := time.Now()
	svc.SetClock(func() time.Time { return base })
	visit := checkInAt(t, svc, rep.ID, store.ID, storeLat, storeLng)

	svc.SetClock(func() time.Time { return base.Add(6 * time.Minute) })
	if _, err := svc.CheckOut(CheckOutInput{
		VisitID:     visit.ID,
		Coordinates: geo.Coordinates{Lat: storeLat, Lng: storeLng},
	}); err != nil {
		t.Fatalf("CheckOut failed: %v", err)
	}

	_, err := svc.CheckOut(CheckOutInput{
		VisitID:     visit.ID,
		Coordinates: geo.Coordinates{Lat: storeLat, Lng: storeLng},
	})
	if !apperrors.Is(err, apperrors.ErrAlreadyCheckedOut) {
		t.Fatalf("second CheckOut = %v, want ALREADY_CHECKED_OUT", err)
	}
}

func TestCheckOutVisitNotFound(t *testing.T) {
	svc, _ := setupService(t)

	_, err := svc.CheckOut(CheckOutInput{
		VisitID:     "missing",
		Coordinates: geo.Coordinates{Lat: storeLat, Lng: storeLng},
	})
	if !apperrors.Is(err, apperrors.ErrVisitNotFound) {
		t.Fatalf("CheckOut = %v, want VISIT_NOT_FOUND", err)
	}
}

func TestListOpenSurfacesAbandonedVisits(t *testing.T) {
	svc, repo := setupService(t)
	store, rep := seedStoreAndRep(t, repo)
	checkInAt(t, svc, rep.ID, store.ID, storeLat, storeLng)

	open, err := svc.ListOpen()
	if err != nil {
		t.Fatalf("ListOpen failed: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("ListOpen returned %d visits, want 1", len(open))
	}
	if open[0].RepID != rep.ID {
		t.Errorf("open visit rep = %s, want %s", open[0].RepID, rep.ID)
	}
}

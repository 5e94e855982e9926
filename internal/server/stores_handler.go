package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/akshitpareta/OpenSalesAI-sub000/internal/apperrors"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/db"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/geo"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/models"
)

// StoresHandler handles store and representative records. These are
// external collaborators to the visit core; the handlers exist so the
// lifecycle endpoints have referents to validate against.
type StoresHandler struct {
	repo *db.Repository
}

// NewStoresHandler creates a new StoresHandler.
func NewStoresHandler(repo *db.Repository) *StoresHandler {
	return &StoresHandler{repo: repo}
}

// CreateStore handles POST /stores
func (h *StoresHandler) CreateStore(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Name string  `json:"name"`
		Lat  float64 `json:"lat"`
		Lng  float64 `json:"lng"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		badRequest(w, "Invalid request body")
		return
	}
	if request.Name == "" {
		badRequest(w, "name is required")
		return
	}
	if err := (geo.Coordinates{Lat: request.Lat, Lng: request.Lng}).Validate(); err != nil {
		writeError(w, err)
		return
	}

	store := &models.Store{
		Name:      request.Name,
		Latitude:  request.Lat,
		Longitude: request.Lng,
	}
	if err := h.repo.CreateStore(store); err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrStorage, "failed to create store", err))
		return
	}

	writeJSON(w, http.StatusCreated, store)
}

// GetStore handles GET /stores/{id}
func (h *StoresHandler) GetStore(w http.ResponseWriter, r *http.Request) {
	store, err := h.repo.GetStore(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, apperrors.New(apperrors.ErrStoreNotFound, "store not found"))
			return
		}
		writeError(w, apperrors.Wrap(apperrors.ErrStorage, "failed to load store", err))
		return
	}
	writeJSON(w, http.StatusOK, store)
}

// ListStores handles GET /stores
func (h *StoresHandler) ListStores(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 50
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	stores, err := h.repo.ListStores(limit, offset)
	if err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrStorage, "failed to list stores", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"stores": stores})
}

// CreateRep handles POST /reps
func (h *StoresHandler) CreateRep(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		badRequest(w, "Invalid request body")
		return
	}
	if request.Name == "" {
		badRequest(w, "name is required")
		return
	}

	rep := &models.Rep{
		Name:     request.Name,
		Phone:    request.Phone,
		IsActive: true,
	}
	if err := h.repo.CreateRep(rep); err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrStorage, "failed to create representative", err))
		return
	}

	writeJSON(w, http.StatusCreated, rep)
}

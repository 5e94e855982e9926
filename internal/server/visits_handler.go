// Package server provides the REST API for the visit lifecycle core.
package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/akshitpareta/OpenSalesAI-sub000/internal/geo"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/models"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/visits"
)

// VisitsHandler handles visit lifecycle operations.
type VisitsHandler struct {
	svc *visits.Service
}

// NewVisitsHandler creates a new VisitsHandler.
func NewVisitsHandler(svc *visits.Service) *VisitsHandler {
	return &VisitsHandler{svc: svc}
}

// CheckIn handles POST /visits
func (h *VisitsHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var request struct {
		StoreID string  `json:"store_id"`
		RepID   string  `json:"rep_id"`
		Lat     float64 `json:"lat"`
		Lng     float64 `json:"lng"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		badRequest(w, "Invalid request body")
		return
	}
	if request.StoreID == "" || request.RepID == "" {
		badRequest(w, "store_id and rep_id are required")
		return
	}

	visit, err := h.svc.CheckIn(visits.CheckInInput{
		RepID:       models.UUID(request.RepID),
		StoreID:     models.UUID(request.StoreID),
		Coordinates: geo.Coordinates{Lat: request.Lat, Lng: request.Lng},
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, visit)
}

// CheckOut handles PUT /visits/{id}/checkout
func (h *VisitsHandler) CheckOut(w http.ResponseWriter, r *http.Request) {
	visitID := r.PathValue("id")

	var request struct {
		Lat    float64  `json:"lat"`
		Lng    float64  `json:"lng"`
		Notes  string   `json:"notes"`
		Photos []string `json:"photos"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	visit, err := h.svc.CheckOut(visits.CheckOutInput{
		VisitID:     models.UUID(visitID),
		Coordinates: geo.Coordinates{Lat: request.Lat, Lng: request.Lng},
		Notes:       request.Notes,
		PhotoRefs:   request.Photos,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, visit)
}

// Get handles GET /visits/{id}
func (h *VisitsHandler) Get(w http.ResponseWriter, r *http.Request) {
	visit, err := h.svc.Get(models.UUID(r.PathValue("id")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, visit)
}

// List handles GET /visits?rep_id=&open=
func (h *VisitsHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("open") == "true" {
		open, err := h.svc.ListOpen()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"visits": open})
		return
	}

	repID := r.URL.Query().Get("rep_id")
	if repID == "" {
		badRequest(w, "rep_id is required")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	visitList, err := h.svc.ListByRep(models.UUID(repID), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"visits": visitList})
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{
		Code:    "VALIDATION_ERROR",
		Message: message,
	}})
}

package server

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/akshitpareta/OpenSalesAI-sub000/internal/db"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/logging"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/models"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/uuid"
)

// MutationIDHeader carries the client-generated idempotency key. The
// queue drain replays mutations at-least-once; repeated submissions
// with the same id return the original response without re-executing.
const MutationIDHeader = "X-Mutation-ID"

// responseRecorder captures status and body so the outcome can be
// stored as a mutation receipt.
type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// withIdempotency wraps a handler so that mutating requests carrying a
// valid X-Mutation-ID are executed at most once. Requests without the
// header pass through untouched.
func withIdempotency(repo *db.Repository, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mutationID := r.Header.Get(MutationIDHeader)
		if mutationID == "" || (r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodDelete) {
			next.ServeHTTP(w, r)
			return
		}

		if !uuid.IsValid(mutationID) {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{
				Code:    "VALIDATION_ERROR",
				Message: "X-Mutation-ID must be a UUID v4",
			}})
			return
		}

		if receipt, err := repo.GetMutationReceipt(mutationID); err == nil {
			// Already processed: replay the recorded response.
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Mutation-Replayed", "true")
			w.WriteHeader(receipt.StatusCode)
			w.Write(receipt.Body)
			return
		} else if !errors.Is(err, sql.ErrNoRows) {
			logging.Error("Failed to look up mutation receipt", err,
				map[string]interface{}{"mutation_id": mutationID})
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: errorDetail{
				Code:    "STORAGE_FAILURE",
				Message: "failed to look up mutation receipt",
			}})
			return
		}

		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		// Server errors are not recorded so a later replay can succeed.
		if rec.status >= 500 {
			return
		}

		receipt := &models.MutationReceipt{
			MutationID: models.UUID(mutationID),
			StatusCode: rec.status,
			Body:       json.RawMessage(rec.body.Bytes()),
		}
		if err := repo.SaveMutationReceipt(receipt); err != nil {
			logging.Error("Failed to save mutation receipt", err,
				map[string]interface{}{"mutation_id": mutationID})
		}
	})
}

package stake

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/arenax/settlement-engine/internal/ledger"
	"github.com/arenax/settlement-engine/internal/model"
	"github.com/arenax/settlement-engine/internal/rateguard"
	"github.com/arenax/settlement-engine/internal/registry"
	"github.com/arenax/settlement-engine/internal/tier"
)

// HandlePlaceStake handles POST /api/v1/stake.
func (s *Service) HandlePlaceStake(w http.ResponseWriter, r *http.Request) {
	var req StakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.PoolID == "" {
		writeError(w, "user_id and pool_id are required", http.StatusBadRequest)
		return
	}

	outcome, err := s.PlaceStake(r.Context(), req)
	if err != nil {
		writeError(w, err.Error(), httpStatus(err))
		return
	}

	status := http.StatusCreated
	if outcome.Status == OutcomePendingApproval {
		status = http.StatusAccepted
	}
	writeJSON(w, status, outcome)
}

// HandleRefund handles POST /api/v1/stake/{entryID}/refund.
func (s *Service) HandleRefund(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := s.Refund(r.Context(), chi.URLParam(r, "entryID"), body.Reason)
	if err != nil {
		writeError(w, err.Error(), httpStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleSettle handles POST /api/v1/stake/{entryID}/settle.
func (s *Service) HandleSettle(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Payout int64 `json:"payout"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Payout <= 0 {
		writeError(w, "payout must be positive", http.StatusBadRequest)
		return
	}

	result, err := s.Settle(r.Context(), chi.URLParam(r, "entryID"), body.Payout)
	if err != nil {
		writeError(w, err.Error(), httpStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleGetEntry handles GET /api/v1/stake/{entryID}.
func (s *Service) HandleGetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := s.Entry(r.Context(), chi.URLParam(r, "entryID"))
	if err != nil {
		writeError(w, err.Error(), httpStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// HandleUserEntries handles GET /api/v1/users/{userID}/entries.
func (s *Service) HandleUserEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.UserEntries(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err.Error(), httpStatus(err))
		return
	}
	if entries == nil {
		entries = []model.StakeEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// httpStatus maps domain errors to HTTP status codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, tier.ErrInvalidStakeAmount),
		errors.Is(err, ErrInvalidWalletSource):
		return http.StatusBadRequest
	case errors.Is(err, rateguard.ErrCooldownActive):
		return http.StatusTooManyRequests
	case errors.Is(err, registry.ErrPoolNotFound),
		errors.Is(err, registry.ErrEntryNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrPoolNotOpen),
		errors.Is(err, ErrPoolFull),
		errors.Is(err, ErrAlreadyEntered),
		errors.Is(err, ErrEntryNotActive),
		errors.Is(err, registry.ErrStatusConflict),
		errors.Is(err, ledger.ErrInsufficientBalance):
		return http.StatusConflict
	case errors.Is(err, ErrLedgerCommitFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

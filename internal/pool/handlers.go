package pool

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/arenax/settlement-engine/internal/ledger"
	"github.com/arenax/settlement-engine/internal/model"
	"github.com/arenax/settlement-engine/internal/payout"
	"github.com/arenax/settlement-engine/internal/registry"
)

// HandleCreate handles POST /api/v1/pools.
func (c *Controller) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	pool, err := c.Create(r.Context(), req)
	if err != nil {
		writeError(w, err.Error(), httpStatus(err))
		return
	}
	writeJSON(w, http.StatusCreated, pool)
}

// HandleList handles GET /api/v1/pools.
func (c *Controller) HandleList(w http.ResponseWriter, r *http.Request) {
	pools, err := c.List(r.Context())
	if err != nil {
		writeError(w, err.Error(), httpStatus(err))
		return
	}
	if pools == nil {
		pools = []model.PrizePool{}
	}
	writeJSON(w, http.StatusOK, pools)
}

// HandleGet handles GET /api/v1/pools/{poolID}.
func (c *Controller) HandleGet(w http.ResponseWriter, r *http.Request) {
	pool, err := c.Get(r.Context(), chi.URLParam(r, "poolID"))
	if err != nil {
		writeError(w, err.Error(), httpStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

// HandleActivate handles POST /api/v1/pools/{poolID}/activate.
func (c *Controller) HandleActivate(w http.ResponseWriter, r *http.Request) {
	poolID := chi.URLParam(r, "poolID")
	if err := c.Activate(r.Context(), poolID); err != nil {
		writeError(w, err.Error(), httpStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"pool_id": poolID, "status": model.PoolActive})
}

// HandleCancel handles POST /api/v1/pools/{poolID}/cancel.
func (c *Controller) HandleCancel(w http.ResponseWriter, r *http.Request) {
	poolID := chi.URLParam(r, "poolID")
	if err := c.Cancel(r.Context(), poolID); err != nil {
		writeError(w, err.Error(), httpStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"pool_id": poolID, "status": model.PoolCancelled})
}

// HandleSettle handles POST /api/v1/pools/{poolID}/settle. A failed
// settlement still returns the failure report so callers can inspect it.
func (c *Controller) HandleSettle(w http.ResponseWriter, r *http.Request) {
	report, err := c.Settle(r.Context(), chi.URLParam(r, "poolID"))
	if err != nil {
		if report != nil {
			writeJSON(w, httpStatus(err), report)
			return
		}
		writeError(w, err.Error(), httpStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleReport handles GET /api/v1/pools/{poolID}/report.
func (c *Controller) HandleReport(w http.ResponseWriter, r *http.Request) {
	report, err := c.Report(chi.URLParam(r, "poolID"))
	if err != nil {
		writeError(w, err.Error(), httpStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleLeaderboard handles GET /api/v1/pools/{poolID}/leaderboard.
func (c *Controller) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	standings, err := c.board.FetchStandings(r.Context(), chi.URLParam(r, "poolID"), limit, offset)
	if err != nil {
		writeError(w, err.Error(), httpStatus(err))
		return
	}
	if standings == nil {
		standings = []model.Standing{}
	}
	writeJSON(w, http.StatusOK, standings)
}

// HandlePreview handles GET /api/v1/preview. Query params: pool_type,
// total_pool, entrants.
func (c *Controller) HandlePreview(w http.ResponseWriter, r *http.Request) {
	poolType := r.URL.Query().Get("pool_type")
	totalPool, err := strconv.ParseInt(r.URL.Query().Get("total_pool"), 10, 64)
	if err != nil || totalPool < 0 {
		writeError(w, "total_pool must be a non-negative integer", http.StatusBadRequest)
		return
	}
	entrants := queryInt(r, "entrants", 0)
	if entrants < 0 {
		writeError(w, "entrants must be non-negative", http.StatusBadRequest)
		return
	}

	preview, err := c.engine.PreviewPayouts(poolType, totalPool, entrants)
	if err != nil {
		writeError(w, err.Error(), httpStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// httpStatus maps pool lifecycle errors to HTTP status codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidPoolType),
		errors.Is(err, payout.ErrUnknownPoolType):
		return http.StatusBadRequest
	case errors.Is(err, registry.ErrPoolNotFound),
		errors.Is(err, ErrNoReport):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrStatusConflict),
		errors.Is(err, ErrNotCancellable),
		errors.Is(err, ledger.ErrAlreadyDistributed):
		return http.StatusConflict
	case errors.Is(err, ErrRollbackFailed):
		return http.StatusInternalServerError
	case errors.Is(err, ErrDistributionFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// Package handlers serves read-only views of the stores over HTTP.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"gonum.org/v1/gonum/mat"

	"github.com/wonny/factorlab/internal/calendar"
	"github.com/wonny/factorlab/internal/store"
	"github.com/wonny/factorlab/pkg/logger"
	"github.com/wonny/factorlab/pkg/redis"
)

// Querier is the read side of the pipeline runner
type Querier interface {
	Calendar() *calendar.Calendar
	AvailableAt(ctx context.Context, date string) ([]store.Record, error)
	FactorsAt(ctx context.Context, stage, class, date string) ([]store.Record, []string, error)
	CSSRange(ctx context.Context, bgn, stp string) ([]store.Record, error)
	ICovAt(ctx context.Context, date string) ([]string, *mat.SymDense, error)
}

// QueryHandler handles the research query endpoints
type QueryHandler struct {
	q      Querier
	cache  *redis.Cache
	logger *logger.Logger
}

// NewQueryHandler creates a handler. A nil cache disables caching.
func NewQueryHandler(q Querier, cache *redis.Cache, log *logger.Logger) *QueryHandler {
	if cache == nil {
		cache = redis.NewCache(redis.Disabled(), "api")
	}
	return &QueryHandler{q: q, cache: cache, logger: log.WithComponent("api")}
}

// NextDateResponse is returned by GET /api/calendar/next
type NextDateResponse struct {
	Date  string `json:"date"`
	Shift int    `json:"shift"`
	Next  string `json:"next"`
}

// GetNextDate shifts a trade date through the calendar
// GET /api/calendar/next?date=20240102&shift=1
func (h *QueryHandler) GetNextDate(w http.ResponseWriter, r *http.Request) {
	date, ok := requireParam(w, r, "date")
	if !ok {
		return
	}
	shift := 1
	if s := r.URL.Query().Get("shift"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "shift must be an integer")
			return
		}
		shift = n
	}

	next, err := h.q.Calendar().NextDate(date, shift)
	if err != nil {
		respondError(w, statusOf(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, NextDateResponse{Date: date, Shift: shift, Next: next})
}

// GetAvailable returns the available universe of one date
// GET /api/available?date=20240102
func (h *QueryHandler) GetAvailable(w http.ResponseWriter, r *http.Request) {
	date, ok := requireParam(w, r, "date")
	if !ok {
		return
	}
	records, err := h.q.AvailableAt(r.Context(), date)
	if err != nil {
		h.fail(w, "available", err)
		return
	}
	respondJSON(w, http.StatusOK, toRows(records))
}

// FactorsResponse carries one stage of a factor class on one date
type FactorsResponse struct {
	Stage   string   `json:"stage"`
	Class   string   `json:"class"`
	Date    string   `json:"date"`
	Factors []string `json:"factors"`
	Rows    []Row    `json:"rows"`
}

// GetFactors returns factor values of one stage and class
// GET /api/factors/{stage}/{class}?date=20240102
func (h *QueryHandler) GetFactors(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	date, ok := requireParam(w, r, "date")
	if !ok {
		return
	}
	records, names, err := h.q.FactorsAt(r.Context(), vars["stage"], vars["class"], date)
	if err != nil {
		h.fail(w, "factors", err)
		return
	}
	respondJSON(w, http.StatusOK, FactorsResponse{
		Stage:   vars["stage"],
		Class:   vars["class"],
		Date:    date,
		Factors: names,
		Rows:    toRows(records),
	})
}

// GetCSS returns cross-section statistics over [bgn, stp)
// GET /api/css?bgn=20240102&stp=20240201
func (h *QueryHandler) GetCSS(w http.ResponseWriter, r *http.Request) {
	bgn, ok := requireParam(w, r, "bgn")
	if !ok {
		return
	}
	stp, ok := requireParam(w, r, "stp")
	if !ok {
		return
	}

	var rows []Row
	err := h.cache.GetOrSet(r.Context(), redis.TableRangeKey("css", bgn, stp), &rows, redis.TTLShort, func() (interface{}, error) {
		records, err := h.q.CSSRange(r.Context(), bgn, stp)
		if err != nil {
			return nil, err
		}
		return toRows(records), nil
	})
	if err != nil {
		h.fail(w, "css", err)
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

// ICovResponse is the full symmetric covariance matrix of one date
type ICovResponse struct {
	Date        string          `json:"date"`
	Instruments []string        `json:"instruments"`
	Cov         [][]interface{} `json:"cov"`
}

// GetICov returns the instrument covariance of one date
// GET /api/icov?date=20240102
func (h *QueryHandler) GetICov(w http.ResponseWriter, r *http.Request) {
	date, ok := requireParam(w, r, "date")
	if !ok {
		return
	}
	insts, cov, err := h.q.ICovAt(r.Context(), date)
	if err != nil {
		h.fail(w, "icov", err)
		return
	}

	resp := ICovResponse{Date: date, Instruments: insts, Cov: [][]interface{}{}}
	if cov != nil {
		n := cov.SymmetricDim()
		resp.Cov = make([][]interface{}, n)
		for i := 0; i < n; i++ {
			resp.Cov[i] = make([]interface{}, n)
			for j := 0; j < n; j++ {
				resp.Cov[i][j] = jsonFloat(cov.At(i, j))
			}
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *QueryHandler) fail(w http.ResponseWriter, route string, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		h.logger.WithError(err).WithField("route", route).Error("Query failed")
	}
	respondError(w, status, err.Error())
}

func requireParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		respondError(w, http.StatusBadRequest, "missing query parameter "+name)
		return "", false
	}
	return v, true
}

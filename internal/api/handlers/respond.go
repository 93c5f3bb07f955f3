package handlers

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"

	"github.com/wonny/factorlab/internal/calendar"
	"github.com/wonny/factorlab/internal/s2_factors"
	"github.com/wonny/factorlab/internal/s3_signals"
	"github.com/wonny/factorlab/internal/store"
)

// Row is the JSON form of a store record; missing values are null
type Row map[string]interface{}

func toRows(records []store.Record) []Row {
	rows := make([]Row, 0, len(records))
	for _, r := range records {
		row := make(Row, 1+len(r.Labels)+len(r.Values))
		row["trade_date"] = r.TradeDate
		for k, v := range r.Labels {
			row[k] = v
		}
		for k, v := range r.Values {
			row[k] = jsonFloat(v)
		}
		rows = append(rows, row)
	}
	return rows
}

// jsonFloat maps NaN and ±Inf to null, which encoding/json rejects otherwise
func jsonFloat(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// statusOf maps domain errors to HTTP codes
func statusOf(err error) int {
	switch {
	case errors.Is(err, calendar.ErrDateNotFound),
		errors.Is(err, s2_factors.ErrUnknownClass),
		errors.Is(err, s3_signals.ErrUnknownStage):
		return http.StatusNotFound
	case errors.Is(err, calendar.ErrOutOfRange):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

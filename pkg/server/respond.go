package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/lkarlslund/tokensync/pkg/telemetry"
	"github.com/lkarlslund/tokensync/pkg/usagedb"
)

type apiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, apiResponse{Status: "success", Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	writeJSON(w, status, errorResponse{Status: "error", Message: message, Detail: detail})
}

// writeStoreError maps a usagedb or telemetry error to a response. Validation
// failures get validationStatus since sync bodies and path keys differ (422 vs 400).
func writeStoreError(w http.ResponseWriter, r *http.Request, err error, validationStatus int) {
	var ve *telemetry.ValidationError
	var nf *usagedb.NotFoundError
	switch {
	case errors.As(err, &ve):
		writeError(w, validationStatus, validationMessage(ve), ve.Error())
	case errors.As(err, &nf):
		writeError(w, http.StatusNotFound, "No data found", nf.Error())
	default:
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "Internal server error", "")
	}
}

func validationMessage(ve *telemetry.ValidationError) string {
	if ve.Field == "userKey" {
		return "Invalid user key format"
	}
	return "Invalid " + ve.Field
}

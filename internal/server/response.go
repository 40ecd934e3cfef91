package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sells-group/benefits-notice/internal/compliance"
	"github.com/sells-group/benefits-notice/internal/notice"
	"github.com/sells-group/benefits-notice/internal/notify"
	"github.com/sells-group/benefits-notice/internal/roster"
	"github.com/sells-group/benefits-notice/internal/store"
)

type successResponse struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
}

type errorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type errorResponse struct {
	Status string       `json:"status"`
	Error  errorPayload `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, successResponse{Status: "success", Data: data})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, errorResponse{Status: "error", Error: errorPayload{
		Code:      code,
		Message:   message,
		RequestID: middleware.GetReqID(r.Context()),
	}})
}

// writeDomainError maps err to a status and writes it. Server faults are
// logged and their detail withheld from the client.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := mapError(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		zap.L().Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	writeError(w, r, status, code, msg)
}

func mapError(err error) (int, string) {
	var storageErr *compliance.StorageWriteError
	var validationErr validator.ValidationErrors
	switch {
	case errors.As(err, &storageErr):
		return http.StatusBadGateway, "storage_write_failed"
	case errors.As(err, &validationErr):
		return http.StatusUnprocessableEntity, "invalid_input"
	case errors.Is(err, compliance.ErrEmployerNotFound),
		errors.Is(err, roster.ErrEmployerNotFound):
		return http.StatusNotFound, "employer_not_found"
	case errors.Is(err, compliance.ErrPlanYearNotFound):
		return http.StatusNotFound, "plan_year_not_found"
	case errors.Is(err, compliance.ErrNoImportRun):
		return http.StatusNotFound, "no_import_run"
	case errors.Is(err, notice.ErrUnknownToken):
		return http.StatusNotFound, "unknown_token"
	case errors.Is(err, notify.ErrUnknownProvider):
		return http.StatusNotFound, "unknown_provider"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, compliance.ErrNoActivePlanYear):
		return http.StatusConflict, "no_active_plan_year"
	case errors.Is(err, notify.ErrNoSender):
		return http.StatusConflict, "no_sender"
	case errors.Is(err, notify.ErrAccountNeedsReconnect):
		return http.StatusConflict, "account_needs_reconnect"
	case errors.Is(err, compliance.ErrSpreadsheetUnreadable),
		errors.Is(err, roster.ErrUnreadable):
		return http.StatusUnprocessableEntity, "spreadsheet_unreadable"
	case errors.Is(err, compliance.ErrInvalidStatus),
		errors.Is(err, store.ErrInvalidPlanYear),
		errors.Is(err, notice.ErrCarrierRequired),
		errors.Is(err, errInvalidInput):
		return http.StatusUnprocessableEntity, "invalid_input"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/fernwood/sprout/internal/ledger"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps a ledger error kind to an HTTP status. Unclassified
// errors are infrastructure failures and must not leak their message.
func writeDomainError(w http.ResponseWriter, err error) {
	switch ledger.KindOf(err) {
	case ledger.KindNotFound:
		writeError(w, http.StatusNotFound, err.Error())
	case ledger.KindForbidden:
		writeError(w, http.StatusForbidden, err.Error())
	case ledger.KindInvalidState, ledger.KindConflict:
		writeError(w, http.StatusConflict, err.Error())
	case ledger.KindInsufficientFunds:
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case ledger.KindInvalid:
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// respondErr logs unclassified failures before answering; domain failures
// already carry a caller-facing message and are not worth a log line.
func respondErr(w http.ResponseWriter, logger *slog.Logger, err error) {
	if ledger.KindOf(err) == "" {
		logger.Error("request failed", "error", err)
	}
	writeDomainError(w, err)
}

func parseIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

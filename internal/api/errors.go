package api

import (
	"errors"
	"net/http"

	"tavern/internal/db"
)

type errorResponse struct {
	Error  string          `json:"error"`
	Kind   db.Kind         `json:"kind,omitempty"`
	Fields []db.FieldError `json:"fields,omitempty"`
}

func statusForKind(kind db.Kind) int {
	switch kind {
	case db.KindValidation:
		return http.StatusUnprocessableEntity
	case db.KindNotFound:
		return http.StatusNotFound
	case db.KindConflict, db.KindFirstPostProtected, db.KindNonEmptyContainer:
		return http.StatusConflict
	case db.KindTopicLocked:
		return http.StatusLocked
	default:
		return http.StatusInternalServerError
	}
}

// writeEngineError maps an engine error to its HTTP status. Storage
// failures were already logged by the store and get a generic message.
func writeEngineError(w http.ResponseWriter, err error) {
	var e *db.Error
	if !errors.As(err, &e) || e.Kind == db.KindStorageFailure {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Kind: db.KindStorageFailure})
		return
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	writeJSON(w, statusForKind(e.Kind), errorResponse{Error: msg, Kind: e.Kind, Fields: e.Fields})
}

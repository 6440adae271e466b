package api

import (
	"net/http"

	"tavern/internal/db"
)

func verifyHandler(database *db.DB) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		drifts, err := db.VerifyAggregates(r.Context(), database)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"consistent": len(drifts) == 0,
			"drifts":     drifts,
		})
	})
}

func reconcileHandler(database *db.DB) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		fixed, err := db.ReconcileAggregates(r.Context(), database)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"fixed": fixed,
			"count": len(fixed),
		})
	})
}

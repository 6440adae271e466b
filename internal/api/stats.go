package api

import (
	"net/http"

	"tavern/internal/db"
)

func boardStatsHandler(database *db.DB) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		stats, err := db.GetBoardStats(r.Context(), database)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"stats": stats,
		})
	})
}

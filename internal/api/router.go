package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tavern/internal/db"
)

func NewRouter(database *db.DB, version string, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	withAuth := func(h http.Handler) http.Handler {
		return authMiddleware(database, h)
	}
	started := time.Now()

	mux.HandleFunc("/api/v1/status", statusHandler(database, version, started))
	mux.Handle("/api/v1/whoami", withAuth(whoAmIHandler()))
	mux.Handle("/api/v1/stats", withAuth(boardStatsHandler(database)))
	mux.Handle("/api/v1/users", withAuth(adminOnly(usersCollectionHandler(database))))
	mux.Handle("/api/v1/users/", withAuth(adminOnly(userItemHandler(database))))
	mux.Handle("/api/v1/categories", withAuth(categoriesCollectionHandler(database)))
	mux.Handle("/api/v1/categories/", withAuth(categoryItemHandler(database)))
	mux.Handle("/api/v1/forums", withAuth(forumsCollectionHandler(database)))
	mux.Handle("/api/v1/forums/", withAuth(forumsScopedHandler(database)))
	mux.Handle("/api/v1/topics", withAuth(topicsCollectionHandler(database)))
	mux.Handle("/api/v1/topics/", withAuth(topicsScopedHandler(database)))
	mux.Handle("/api/v1/posts/", withAuth(postsScopedHandler(database)))
	mux.Handle("/api/v1/admin/reconcile", withAuth(adminOnly(reconcileHandler(database))))
	mux.Handle("/api/v1/admin/verify", withAuth(adminOnly(verifyHandler(database))))
	mux.Handle("/mcp", mcpHandler(database, version))

	return requestLogger(logger, corsMiddleware(mux))
}

func statusHandler(database *db.DB, version string, started time.Time) http.HandlerFunc {
	type statusResponse struct {
		Status        string `json:"status"`
		Version       string `json:"version"`
		Dialect       string `json:"dialect"`
		Timestamp     string `json:"timestamp"`
		UptimeSeconds int64  `json:"uptime_seconds"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}

		if err := database.PingContext(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}

		writeJSON(w, http.StatusOK, statusResponse{
			Status:        "ok",
			Version:       version,
			Dialect:       database.Dialect().String(),
			Timestamp:     time.Now().UTC().Format(time.RFC3339),
			UptimeSeconds: int64(time.Since(started).Seconds()),
		})
	}
}

func pathTail(path, prefix string) string {
	tail := strings.TrimPrefix(path, prefix)
	tail = strings.Trim(tail, "/")
	return tail
}

// pathID parses the first segment after prefix as a positive id.
func pathID(path, prefix string) (int64, bool) {
	seg, _, _ := strings.Cut(pathTail(path, prefix), "/")
	id, err := strconv.ParseInt(seg, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// pathRef returns the first segment after prefix, which may be an id or a
// slug.
func pathRef(path, prefix string) string {
	seg, _, _ := strings.Cut(pathTail(path, prefix), "/")
	return seg
}

func pageParams(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			return 0, 0, errors.New("invalid limit")
		}
	}
	if raw := strings.TrimSpace(q.Get("offset")); raw != "" {
		if offset, err = strconv.Atoi(raw); err != nil || offset < 0 {
			return 0, 0, errors.New("invalid offset")
		}
	}
	return limit, offset, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json payload")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

package api

import (
	"net/http"
	"regexp"
	"strings"

	"tavern/internal/auth"
	"tavern/internal/db"
	"tavern/internal/models"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]{1,63}$`)

type createUserRequest struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type createUserResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	APIKey   string `json:"api_key"`
}

type userProfile struct {
	models.User
	models.UserStats
}

func usersCollectionHandler(database *db.DB) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			users, err := db.ListUsers(r.Context(), database)
			if err != nil {
				writeEngineError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"users": users, "total": len(users)})
		case http.MethodPost:
			var req createUserRequest
			if !decodeBody(w, r, &req) {
				return
			}
			req.Username = strings.TrimSpace(req.Username)
			req.Role = strings.TrimSpace(req.Role)
			if !usernamePattern.MatchString(req.Username) {
				writeError(w, http.StatusBadRequest, "invalid username")
				return
			}
			if req.Role == "" {
				req.Role = models.RoleMember
			}
			if !auth.ValidRole(req.Role) {
				writeError(w, http.StatusBadRequest, "role must be member, moderator or admin")
				return
			}

			apiKey, err := auth.GenerateAPIKey()
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to generate api key")
				return
			}
			user, err := db.CreateUser(r.Context(), database, req.Username, req.Role, auth.HashAPIKey(apiKey))
			if err != nil {
				writeEngineError(w, err)
				return
			}

			writeJSON(w, http.StatusCreated, createUserResponse{
				ID:       user.ID,
				Username: user.Username,
				Role:     user.Role,
				APIKey:   apiKey,
			})
		default:
			methodNotAllowed(w)
		}
	})
}

func userItemHandler(database *db.DB) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r.URL.Path, "/api/v1/users/")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid user id")
			return
		}

		switch r.Method {
		case http.MethodGet:
			user, err := db.GetUser(r.Context(), database, id)
			if err != nil {
				writeEngineError(w, err)
				return
			}
			stats, err := db.GetUserStats(r.Context(), database, id)
			if err != nil {
				writeEngineError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, userProfile{User: *user, UserStats: *stats})
		case http.MethodDelete:
			user, err := db.GetUser(r.Context(), database, id)
			if err != nil {
				writeEngineError(w, err)
				return
			}
			if user.Role == models.RoleAdmin {
				adminCount, err := db.CountAdmins(r.Context(), database)
				if err != nil {
					writeEngineError(w, err)
					return
				}
				if adminCount <= 1 {
					writeError(w, http.StatusConflict, "cannot delete the last admin")
					return
				}
			}
			if err := db.DeleteUser(r.Context(), database, id); err != nil {
				writeEngineError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			methodNotAllowed(w)
		}
	})
}

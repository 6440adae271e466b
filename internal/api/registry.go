package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"tavern/internal/db"
	"tavern/internal/models"
)

type categoryRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	DisplayOrder int    `json:"display_order"`
}

type forumRequest struct {
	CategoryID   int64  `json:"category_id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	DisplayOrder int    `json:"display_order"`
}

// requireAdmin writes a 403 unless the caller is an admin. Reads on the
// registry are open to every authenticated user; changes are not.
func requireAdmin(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	actor, ok := requireActor(w, r)
	if !ok {
		return actor, false
	}
	if !actor.IsAdmin() {
		writeError(w, http.StatusForbidden, "admin role required")
		return actor, false
	}
	return actor, true
}

func categoriesCollectionHandler(database *db.DB) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			categories, err := db.ListCategories(r.Context(), database)
			if err != nil {
				writeEngineError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
		case http.MethodPost:
			actor, ok := requireAdmin(w, r)
			if !ok {
				return
			}
			var req categoryRequest
			if !decodeBody(w, r, &req) {
				return
			}
			category, err := db.CreateCategory(r.Context(), database, actor, db.CategoryParams(req))
			if err != nil {
				writeEngineError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, category)
		default:
			methodNotAllowed(w)
		}
	})
}

func categoryItemHandler(database *db.DB) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ref := pathTail(r.URL.Path, "/api/v1/categories/")
		if ref == "" || strings.Contains(ref, "/") {
			writeError(w, http.StatusNotFound, "not found")
			return
		}

		switch r.Method {
		case http.MethodGet:
			category, err := lookupCategory(r.Context(), database, ref)
			if err != nil {
				writeEngineError(w, err)
				return
			}
			forums, err := db.ListForums(r.Context(), database, category.ID)
			if err != nil {
				writeEngineError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"category": category, "forums": forums})
		case http.MethodPut:
			actor, ok := requireAdmin(w, r)
			if !ok {
				return
			}
			id, ok := pathID(r.URL.Path, "/api/v1/categories/")
			if !ok {
				writeError(w, http.StatusBadRequest, "invalid category id")
				return
			}
			var req categoryRequest
			if !decodeBody(w, r, &req) {
				return
			}
			category, err := db.UpdateCategory(r.Context(), database, actor, id, db.CategoryParams(req))
			if err != nil {
				writeEngineError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, category)
		case http.MethodDelete:
			actor, ok := requireAdmin(w, r)
			if !ok {
				return
			}
			id, ok := pathID(r.URL.Path, "/api/v1/categories/")
			if !ok {
				writeError(w, http.StatusBadRequest, "invalid category id")
				return
			}
			if err := db.DeleteCategory(r.Context(), database, actor, id); err != nil {
				writeEngineError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			methodNotAllowed(w)
		}
	})
}

func forumsCollectionHandler(database *db.DB) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			var categoryID int64
			if raw := strings.TrimSpace(r.URL.Query().Get("category_id")); raw != "" {
				id, err := strconv.ParseInt(raw, 10, 64)
				if err != nil || id <= 0 {
					writeError(w, http.StatusBadRequest, "invalid category_id")
					return
				}
				categoryID = id
			}
			forums, err := db.ListForums(r.Context(), database, categoryID)
			if err != nil {
				writeEngineError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"forums": forums})
		case http.MethodPost:
			actor, ok := requireAdmin(w, r)
			if !ok {
				return
			}
			var req forumRequest
			if !decodeBody(w, r, &req) {
				return
			}
			forum, err := db.CreateForum(r.Context(), database, actor, db.ForumParams(req))
			if err != nil {
				writeEngineError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, forum)
		default:
			methodNotAllowed(w)
		}
	})
}

func forumsScopedHandler(database *db.DB) http.Handler {
	item := forumItemHandler(database)
	topics := forumTopicsHandler(database)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/topics") {
			topics.ServeHTTP(w, r)
			return
		}
		item.ServeHTTP(w, r)
	})
}

func forumItemHandler(database *db.DB) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ref := pathTail(r.URL.Path, "/api/v1/forums/")
		if ref == "" || strings.Contains(ref, "/") {
			writeError(w, http.StatusNotFound, "not found")
			return
		}

		switch r.Method {
		case http.MethodGet:
			forum, err := lookupForum(r.Context(), database, ref)
			if err != nil {
				writeEngineError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, forum)
		case http.MethodPut:
			actor, ok := requireAdmin(w, r)
			if !ok {
				return
			}
			id, ok := pathID(r.URL.Path, "/api/v1/forums/")
			if !ok {
				writeError(w, http.StatusBadRequest, "invalid forum id")
				return
			}
			var req forumRequest
			if !decodeBody(w, r, &req) {
				return
			}
			forum, err := db.UpdateForum(r.Context(), database, actor, id, db.ForumParams(req))
			if err != nil {
				writeEngineError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, forum)
		case http.MethodDelete:
			actor, ok := requireAdmin(w, r)
			if !ok {
				return
			}
			id, ok := pathID(r.URL.Path, "/api/v1/forums/")
			if !ok {
				writeError(w, http.StatusBadRequest, "invalid forum id")
				return
			}
			if err := db.DeleteForum(r.Context(), database, actor, id); err != nil {
				writeEngineError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			methodNotAllowed(w)
		}
	})
}

func forumTopicsHandler(database *db.DB) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		forum, err := lookupForum(r.Context(), database, pathRef(r.URL.Path, "/api/v1/forums/"))
		if err != nil {
			writeEngineError(w, err)
			return
		}
		limit, offset, err := pageParams(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		params := db.ListTopicsParams{
			ForumID: forum.ID,
			Tag:     r.URL.Query().Get("tag"),
			Sort:    r.URL.Query().Get("sort"),
			Limit:   limit,
			Offset:  offset,
		}
		topics, total, err := db.ListTopics(r.Context(), database, params)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"forum":  forum,
			"topics": topics,
			"total":  total,
			"limit":  limit,
			"offset": offset,
		})
	})
}

// lookupCategory accepts a numeric id or a slug.
func lookupCategory(ctx context.Context, database *db.DB, ref string) (*models.Category, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return db.GetCategory(ctx, database, id)
	}
	return db.GetCategoryBySlug(ctx, database, ref)
}

func lookupForum(ctx context.Context, database *db.DB, ref string) (*models.Forum, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return db.GetForum(ctx, database, id)
	}
	return db.GetForumBySlug(ctx, database, ref)
}

func lookupTopic(ctx context.Context, database *db.DB, ref string) (*models.Topic, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return db.GetTopic(ctx, database, id)
	}
	return db.GetTopicBySlug(ctx, database, ref)
}

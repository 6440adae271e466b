package api

import (
	"net/http"
	"strings"

	"tavern/internal/db"
)

func postsScopedHandler(database *db.DB) http.Handler {
	item := postItemHandler(database)
	solution := postSolutionHandler(database)
	history := postHistoryHandler(database)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/solution") {
			solution.ServeHTTP(w, r)
			return
		}
		if strings.HasSuffix(r.URL.Path, "/history") {
			history.ServeHTTP(w, r)
			return
		}
		item.ServeHTTP(w, r)
	})
}

func postItemHandler(database *db.DB) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tail := pathTail(r.URL.Path, "/api/v1/posts/")
		if strings.Contains(tail, "/") {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		id, ok := pathID(r.URL.Path, "/api/v1/posts/")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid post id")
			return
		}

		switch r.Method {
		case http.MethodGet:
			post, err := db.GetPost(r.Context(), database, id)
			if err != nil {
				writeEngineError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, post)
		case http.MethodPut:
			actor, ok := requireActor(w, r)
			if !ok {
				return
			}
			post, err := db.GetPost(r.Context(), database, id)
			if err != nil {
				writeEngineError(w, err)
				return
			}
			if !actor.CanModify(post.UserID) {
				writeError(w, http.StatusForbidden, "not allowed to edit this post")
				return
			}
			var req contentRequest
			if !decodeBody(w, r, &req) {
				return
			}
			updated, err := db.UpdatePostContent(r.Context(), database, actor, id, req.Content)
			if err != nil {
				writeEngineError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, updated)
		case http.MethodDelete:
			actor, ok := requireActor(w, r)
			if !ok {
				return
			}
			post, err := db.GetPost(r.Context(), database, id)
			if err != nil {
				writeEngineError(w, err)
				return
			}
			if !actor.CanModify(post.UserID) {
				writeError(w, http.StatusForbidden, "not allowed to delete this post")
				return
			}
			if err := db.DeleteReply(r.Context(), database, actor, id); err != nil {
				writeEngineError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			methodNotAllowed(w)
		}
	})
}

// postSolutionHandler lets the topic's author or a moderator mark a reply
// as the answer.
func postSolutionHandler(database *db.DB) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := pathID(r.URL.Path, "/api/v1/posts/")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid post id")
			return
		}
		post, err := db.GetPost(r.Context(), database, id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		topic, err := db.GetTopic(r.Context(), database, post.TopicID)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		if !actor.CanModify(topic.UserID) {
			writeError(w, http.StatusForbidden, "only the topic author or a moderator can mark a solution")
			return
		}
		value, err := db.ToggleSolution(r.Context(), database, actor, id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"post_id": id, "is_solution": value})
	})
}

func postHistoryHandler(database *db.DB) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		id, ok := pathID(r.URL.Path, "/api/v1/posts/")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid post id")
			return
		}
		history, err := db.ListPostHistory(r.Context(), database, id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"post_id": id, "history": history})
	})
}

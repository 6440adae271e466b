package api

import (
	"net/http"
	"strconv"
	"strings"

	"tavern/internal/db"
)

type createTopicRequest struct {
	ForumID int64    `json:"forum_id"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
	Sticky  bool     `json:"sticky"`
	Locked  bool     `json:"locked"`
}

type updateTopicRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type contentRequest struct {
	Content string `json:"content"`
}

type updateTagsRequest struct {
	Add    []string `json:"add"`
	Remove []string `json:"remove"`
}

func topicsCollectionHandler(database *db.DB) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			actor, ok := requireActor(w, r)
			if !ok {
				return
			}
			var req createTopicRequest
			if !decodeBody(w, r, &req) {
				return
			}
			if (req.Sticky || req.Locked) && !actor.IsModerator() {
				writeError(w, http.StatusForbidden, "moderator role required to pin or lock")
				return
			}
			topic, err := db.CreateTopic(r.Context(), database, actor, db.CreateTopicParams(req))
			if err != nil {
				writeEngineError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, topic)
		case http.MethodGet:
			params, err := parseListTopicsParams(r)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			topics, total, err := db.ListTopics(r.Context(), database, params)
			if err != nil {
				writeEngineError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"topics": topics,
				"total":  total,
				"limit":  params.Limit,
				"offset": params.Offset,
			})
		default:
			methodNotAllowed(w)
		}
	})
}

func parseListTopicsParams(r *http.Request) (db.ListTopicsParams, error) {
	limit, offset, err := pageParams(r)
	if err != nil {
		return db.ListTopicsParams{}, err
	}
	q := r.URL.Query()
	params := db.ListTopicsParams{
		Tag:    q.Get("tag"),
		Sort:   q.Get("sort"),
		Limit:  limit,
		Offset: offset,
	}
	for key, dst := range map[string]*int64{"forum_id": &params.ForumID, "user_id": &params.UserID} {
		raw := strings.TrimSpace(q.Get(key))
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return db.ListTopicsParams{}, errInvalidParam(key)
		}
		*dst = id
	}
	switch params.Sort {
	case "", "activity", "created":
	default:
		return db.ListTopicsParams{}, errInvalidParam("sort")
	}
	return params, nil
}

type errInvalidParam string

func (e errInvalidParam) Error() string { return "invalid " + string(e) }

func topicsScopedHandler(database *db.DB) http.Handler {
	item := topicItemHandler(database)
	recent := recentTopicsHandler(database)
	posts := topicPostsHandler(database)
	raw := topicRawHandler(database)
	tags := topicTagsHandler(database)
	sticky := topicFlagHandler(database, "sticky")
	lock := topicFlagHandler(database, "lock")
	view := topicViewHandler(database)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		switch {
		case pathTail(path, "/api/v1/topics/") == "recent":
			recent.ServeHTTP(w, r)
		case strings.HasSuffix(path, "/posts"):
			posts.ServeHTTP(w, r)
		case strings.HasSuffix(path, "/raw"):
			raw.ServeHTTP(w, r)
		case strings.HasSuffix(path, "/tags"):
			tags.ServeHTTP(w, r)
		case strings.HasSuffix(path, "/sticky"):
			sticky.ServeHTTP(w, r)
		case strings.HasSuffix(path, "/lock"):
			lock.ServeHTTP(w, r)
		case strings.HasSuffix(path, "/view"):
			view.ServeHTTP(w, r)
		default:
			item.ServeHTTP(w, r)
		}
	})
}

func topicItemHandler(database *db.DB) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ref := pathTail(r.URL.Path, "/api/v1/topics/")
		if ref == "" || strings.Contains(ref, "/") {
			writeError(w, http.StatusNotFound, "not found")
			return
		}

		switch r.Method {
		case http.MethodGet:
			topic, err := lookupTopic(r.Context(), database, ref)
			if err != nil {
				writeEngineError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, topic)
		case http.MethodPut:
			actor, ok := requireActor(w, r)
			if !ok {
				return
			}
			topic, err := lookupTopic(r.Context(), database, ref)
			if err != nil {
				writeEngineError(w, err)
				return
			}
			if !actor.CanModify(topic.UserID) {
				writeError(w, http.StatusForbidden, "not allowed to edit this topic")
				return
			}
			var req updateTopicRequest
			if !decodeBody(w, r, &req) {
				return
			}
			updated, err := db.UpdateTopic(r.Context(), database, actor, topic.ID, db.UpdateTopicParams(req))
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
			topic, err := lookupTopic(r.Context(), database, ref)
			if err != nil {
				writeEngineError(w, err)
				return
			}
			if !actor.CanModify(topic.UserID) {
				writeError(w, http.StatusForbidden, "not allowed to delete this topic")
				return
			}
			if err := db.DeleteTopic(r.Context(), database, actor, topic.ID); err != nil {
				writeEngineError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			methodNotAllowed(w)
		}
	})
}

func recentTopicsHandler(database *db.DB) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		limit, _, err := pageParams(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		topics, err := db.RecentTopics(r.Context(), database, limit)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"topics": topics})
	})
}

func topicPostsHandler(database *db.DB) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		topic, err := lookupTopic(r.Context(), database, pathRef(r.URL.Path, "/api/v1/topics/"))
		if err != nil {
			writeEngineError(w, err)
			return
		}

		switch r.Method {
		case http.MethodGet:
			limit, offset, err := pageParams(r)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			posts, total, err := db.ListTopicPosts(r.Context(), database, topic.ID, limit, offset)
			if err != nil {
				writeEngineError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"topic":  topic,
				"posts":  posts,
				"total":  total,
				"limit":  limit,
				"offset": offset,
			})
		case http.MethodPost:
			actor, ok := requireActor(w, r)
			if !ok {
				return
			}
			var req contentRequest
			if !decodeBody(w, r, &req) {
				return
			}
			post, err := db.CreateReply(r.Context(), database, actor, topic.ID, req.Content)
			if err != nil {
				writeEngineError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, post)
		default:
			methodNotAllowed(w)
		}
	})
}

func topicTagsHandler(database *db.DB) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		topic, err := lookupTopic(r.Context(), database, pathRef(r.URL.Path, "/api/v1/topics/"))
		if err != nil {
			writeEngineError(w, err)
			return
		}

		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, map[string]any{"topic_id": topic.ID, "tags": topic.Tags})
		case http.MethodPatch:
			actor, ok := requireActor(w, r)
			if !ok {
				return
			}
			if !actor.CanModify(topic.UserID) {
				writeError(w, http.StatusForbidden, "not allowed to tag this topic")
				return
			}
			var req updateTagsRequest
			if !decodeBody(w, r, &req) {
				return
			}
			tags, err := db.UpdateTopicTags(r.Context(), database, actor, topic.ID, req.Add, req.Remove)
			if err != nil {
				writeEngineError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"topic_id": topic.ID, "tags": tags})
		default:
			methodNotAllowed(w)
		}
	})
}

// topicFlagHandler serves the moderator toggles; flag is "sticky" or "lock".
func topicFlagHandler(database *db.DB, flag string) http.Handler {
	toggle := db.ToggleSticky
	field := "is_sticky"
	if flag == "lock" {
		toggle = db.ToggleLock
		field = "is_locked"
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		if !actor.IsModerator() {
			writeError(w, http.StatusForbidden, "moderator role required")
			return
		}
		id, ok := pathID(r.URL.Path, "/api/v1/topics/")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid topic id")
			return
		}
		value, err := toggle(r.Context(), database, actor, id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"topic_id": id, field: value})
	})
}

func topicViewHandler(database *db.DB) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		id, ok := pathID(r.URL.Path, "/api/v1/topics/")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid topic id")
			return
		}
		views, err := db.IncrementView(r.Context(), database, id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"topic_id": id, "view_count": views})
	})
}

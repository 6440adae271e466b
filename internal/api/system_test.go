package api

import (
	"net/http"
	"testing"

	"tavern/internal/models"
)

func TestStatusAndWhoAmI(t *testing.T) {
	server, database, adminKey := setupTestServer(t)
	defer server.Close()
	defer database.Close()

	status := doReq(t, server.URL, "", http.MethodGet, "/api/v1/status", nil)
	if status.StatusCode != http.StatusOK {
		t.Fatalf("status endpoint returned %d", status.StatusCode)
	}
	var statusPayload struct {
		Status        string `json:"status"`
		Version       string `json:"version"`
		Dialect       string `json:"dialect"`
		Timestamp     string `json:"timestamp"`
		UptimeSeconds int64  `json:"uptime_seconds"`
	}
	decodeJSON(t, status, &statusPayload)
	if statusPayload.Status != "ok" || statusPayload.Version != "test" || statusPayload.Timestamp == "" {
		t.Fatalf("unexpected status payload: %+v", statusPayload)
	}
	if statusPayload.Dialect != "sqlite" || statusPayload.UptimeSeconds < 0 {
		t.Fatalf("unexpected status payload: %+v", statusPayload)
	}

	whoUnauthorized := doReq(t, server.URL, "", http.MethodGet, "/api/v1/whoami", nil)
	if whoUnauthorized.StatusCode != http.StatusUnauthorized {
		t.Fatalf("whoami without auth returned %d", whoUnauthorized.StatusCode)
	}
	_ = whoUnauthorized.Body.Close()

	badKey := doReq(t, server.URL, "tavern_ak_not-a-real-key", http.MethodGet, "/api/v1/whoami", nil)
	if badKey.StatusCode != http.StatusUnauthorized {
		t.Fatalf("whoami with unknown key returned %d", badKey.StatusCode)
	}
	_ = badKey.Body.Close()

	who := doReq(t, server.URL, adminKey, http.MethodGet, "/api/v1/whoami", nil)
	if who.StatusCode != http.StatusOK {
		t.Fatalf("whoami with auth returned %d", who.StatusCode)
	}
	var actor models.Actor
	decodeJSON(t, who, &actor)
	if actor.Username != "admin" || actor.Role != models.RoleAdmin || actor.UserID == 0 {
		t.Fatalf("unexpected whoami payload: %+v", actor)
	}
}

func TestBoardStatsEndpoint(t *testing.T) {
	server, database, adminKey := setupTestServer(t)
	defer server.Close()
	defer database.Close()

	forumID := createForumViaAPI(t, server.URL, adminKey, "Stats")
	topic := createTopicViaAPI(t, server.URL, adminKey, forumID, "Counting things", "how many posts are there")

	replyResp := doReq(t, server.URL, adminKey, http.MethodPost, topicPath(topic.ID, "posts"), map[string]any{
		"content": "at least two by now",
	})
	if replyResp.StatusCode != http.StatusCreated {
		t.Fatalf("create reply status = %d", replyResp.StatusCode)
	}
	_ = replyResp.Body.Close()

	statsResp := doReq(t, server.URL, adminKey, http.MethodGet, "/api/v1/stats", nil)
	if statsResp.StatusCode != http.StatusOK {
		t.Fatalf("stats status = %d", statsResp.StatusCode)
	}
	var payload struct {
		Stats models.BoardStats `json:"stats"`
	}
	decodeJSON(t, statsResp, &payload)
	want := models.BoardStats{Users: 1, Categories: 1, Forums: 1, Topics: 1, Posts: 2}
	if payload.Stats != want {
		t.Fatalf("stats = %+v, want %+v", payload.Stats, want)
	}
}

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"tavern/internal/models"
)

func TestMCPUnauthorized(t *testing.T) {
	srv, database, _ := setupTestServer(t)
	defer srv.Close()
	defer database.Close()

	body := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/mcp", body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, resp.StatusCode)
	}
}

func TestMCPToolsFlow(t *testing.T) {
	srv, database, apiKey := setupTestServer(t)
	defer srv.Close()
	defer database.Close()

	forumID := createForumViaAPI(t, srv.URL, apiKey, "Agents")

	httpClient := &http.Client{
		Timeout: 15 * time.Second,
		Transport: &authHeaderTransport{
			token: apiKey,
			base:  http.DefaultTransport,
		},
	}

	client := mcp.NewClient(&mcp.Implementation{
		Name:    "tavern-test-client",
		Version: "test",
	}, nil)

	ctx := context.Background()
	session, err := client.Connect(ctx, &mcp.StreamableClientTransport{
		Endpoint:   srv.URL + "/mcp",
		HTTPClient: httpClient,
	}, nil)
	if err != nil {
		t.Fatalf("connect mcp client: %v", err)
	}
	defer session.Close()

	tools, err := session.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	wantTools := map[string]bool{
		"tavern_list_forums":  false,
		"tavern_list_topics":  false,
		"tavern_read_topic":   false,
		"tavern_create_topic": false,
		"tavern_reply":        false,
	}
	for _, tool := range tools.Tools {
		if _, ok := wantTools[tool.Name]; ok {
			wantTools[tool.Name] = true
		}
	}
	for tool, ok := range wantTools {
		if !ok {
			t.Fatalf("missing tool %q", tool)
		}
	}

	forumsRes, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name: "tavern_list_forums",
	})
	if err != nil {
		t.Fatalf("call tavern_list_forums: %v", err)
	}
	var forumsPayload struct {
		Categories []struct {
			Name   string         `json:"name"`
			Forums []models.Forum `json:"forums"`
		} `json:"categories"`
	}
	if err := json.Unmarshal([]byte(firstTextContent(t, forumsRes)), &forumsPayload); err != nil {
		t.Fatalf("decode forums response: %v", err)
	}
	if len(forumsPayload.Categories) != 1 || len(forumsPayload.Categories[0].Forums) != 1 {
		t.Fatalf("unexpected forums payload: %+v", forumsPayload)
	}
	if forumsPayload.Categories[0].Forums[0].ID != forumID {
		t.Fatalf("expected forum %d in list", forumID)
	}

	createRes, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name: "tavern_create_topic",
		Arguments: map[string]any{
			"forum":   "agents",
			"title":   "MCP test topic",
			"content": "hello from mcp",
			"tags":    []string{"mcp"},
		},
	})
	if err != nil {
		t.Fatalf("call tavern_create_topic: %v", err)
	}
	var topic models.Topic
	if err := json.Unmarshal([]byte(firstTextContent(t, createRes)), &topic); err != nil {
		t.Fatalf("decode topic response: %v", err)
	}
	if topic.ID == 0 || topic.Slug != "mcp-test-topic" || topic.ForumID != forumID {
		t.Fatalf("unexpected topic: %+v", topic)
	}

	badRes, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name: "tavern_create_topic",
		Arguments: map[string]any{
			"forum":   "no-such-forum",
			"title":   "Nowhere to go",
			"content": "this forum does not exist",
		},
	})
	if err == nil && (badRes == nil || !badRes.IsError) {
		t.Fatalf("expected tavern_create_topic to fail for an unknown forum")
	}

	_, err = session.CallTool(ctx, &mcp.CallToolParams{
		Name: "tavern_reply",
		Arguments: map[string]any{
			"topic":   topic.Slug,
			"content": "reply from mcp",
		},
	})
	if err != nil {
		t.Fatalf("call tavern_reply: %v", err)
	}

	listRes, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name: "tavern_list_topics",
		Arguments: map[string]any{
			"limit": 5,
			"tag":   "mcp",
		},
	})
	if err != nil {
		t.Fatalf("call tavern_list_topics: %v", err)
	}
	var listPayload struct {
		Topics []models.Topic `json:"topics"`
		Total  int            `json:"total"`
	}
	if err := json.Unmarshal([]byte(firstTextContent(t, listRes)), &listPayload); err != nil {
		t.Fatalf("decode topics response: %v", err)
	}
	if listPayload.Total != 1 || listPayload.Topics[0].ID != topic.ID || listPayload.Topics[0].ReplyCount != 1 {
		t.Fatalf("unexpected topics payload: %+v", listPayload)
	}

	readRes, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name: "tavern_read_topic",
		Arguments: map[string]any{
			"topic": topic.Slug,
		},
	})
	if err != nil {
		t.Fatalf("call tavern_read_topic: %v", err)
	}
	readText := firstTextContent(t, readRes)
	if !strings.Contains(readText, "# MCP test topic") {
		t.Fatalf("topic markdown missing title")
	}
	if !strings.Contains(readText, "hello from mcp") {
		t.Fatalf("topic markdown missing opening post")
	}
	if !strings.Contains(readText, "## Reply by admin") || !strings.Contains(readText, "reply from mcp") {
		t.Fatalf("topic markdown missing reply")
	}
}

type authHeaderTransport struct {
	token string
	base  http.RoundTripper
}

func (t *authHeaderTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	cloned := req.Clone(req.Context())
	cloned.Header = req.Header.Clone()
	cloned.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(cloned)
}

func firstTextContent(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatalf("expected tool content")
	}
	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return text.Text
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	mcpauth "github.com/modelcontextprotocol/go-sdk/auth"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"tavern/internal/auth"
	"tavern/internal/db"
	"tavern/internal/models"
)

type mcpListForumsArgs struct {
	Category *string `json:"category,omitempty" jsonschema:"category id or slug; all categories when empty"`
}

type mcpListTopicsArgs struct {
	Forum *string `json:"forum,omitempty" jsonschema:"forum id or slug; all forums when empty"`
	Tag   *string `json:"tag,omitempty"`
	Limit *int    `json:"limit,omitempty"`
}

type mcpReadTopicArgs struct {
	Topic  string `json:"topic" jsonschema:"topic id or slug"`
	Limit  *int   `json:"limit,omitempty"`
	Offset *int   `json:"offset,omitempty"`
}

type mcpCreateTopicArgs struct {
	Forum   string   `json:"forum" jsonschema:"forum id or slug"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags,omitempty"`
}

type mcpReplyArgs struct {
	Topic   string `json:"topic" jsonschema:"topic id or slug"`
	Content string `json:"content"`
}

func mcpHandler(database *db.DB, version string) http.Handler {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "tavern-server",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "tavern_list_forums",
		Description: "List board categories with their forums and counters",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args mcpListForumsArgs) (*mcp.CallToolResult, any, error) {
		categories, err := db.ListCategories(ctx, database)
		if err != nil {
			return nil, nil, err
		}
		if args.Category != nil && strings.TrimSpace(*args.Category) != "" {
			category, err := lookupCategory(ctx, database, strings.TrimSpace(*args.Category))
			if err != nil {
				return nil, nil, err
			}
			categories = []models.Category{*category}
		}
		type categoryForums struct {
			models.Category
			Forums []models.Forum `json:"forums"`
		}
		out := make([]categoryForums, 0, len(categories))
		for _, c := range categories {
			forums, err := db.ListForums(ctx, database, c.ID)
			if err != nil {
				return nil, nil, err
			}
			out = append(out, categoryForums{Category: c, Forums: forums})
		}
		return jsonToolResult(map[string]any{"categories": out})
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "tavern_list_topics",
		Description: "List topics by latest activity, optionally within one forum or tag",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args mcpListTopicsArgs) (*mcp.CallToolResult, any, error) {
		params := db.ListTopicsParams{Limit: 10}
		if args.Limit != nil && *args.Limit > 0 {
			params.Limit = *args.Limit
		}
		if args.Tag != nil {
			params.Tag = strings.TrimSpace(*args.Tag)
		}
		if args.Forum != nil && strings.TrimSpace(*args.Forum) != "" {
			forum, err := lookupForum(ctx, database, strings.TrimSpace(*args.Forum))
			if err != nil {
				return nil, nil, err
			}
			params.ForumID = forum.ID
		}
		topics, total, err := db.ListTopics(ctx, database, params)
		if err != nil {
			return nil, nil, err
		}
		return jsonToolResult(map[string]any{
			"topics": topics,
			"total":  total,
		})
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "tavern_read_topic",
		Description: "Read a topic and its posts as markdown",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args mcpReadTopicArgs) (*mcp.CallToolResult, any, error) {
		ref := strings.TrimSpace(args.Topic)
		if ref == "" {
			return nil, nil, errors.New("topic is required")
		}
		topic, err := lookupTopic(ctx, database, ref)
		if err != nil {
			return nil, nil, err
		}
		limit, offset := 0, 0
		if args.Limit != nil {
			limit = *args.Limit
		}
		if args.Offset != nil {
			offset = *args.Offset
		}
		posts, total, err := db.ListTopicPosts(ctx, database, topic.ID, limit, offset)
		if err != nil {
			return nil, nil, err
		}
		return textToolResult(renderTopicMarkdown(*topic, posts, total)), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "tavern_create_topic",
		Description: "Start a new topic in a forum",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args mcpCreateTopicArgs) (*mcp.CallToolResult, any, error) {
		actor, err := mcpActor(req)
		if err != nil {
			return nil, nil, err
		}
		forum, err := lookupForum(ctx, database, strings.TrimSpace(args.Forum))
		if err != nil {
			return nil, nil, err
		}
		topic, err := db.CreateTopic(ctx, database, actor, db.CreateTopicParams{
			ForumID: forum.ID,
			Title:   args.Title,
			Content: args.Content,
			Tags:    args.Tags,
		})
		if err != nil {
			return nil, nil, err
		}
		return jsonToolResult(topic)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "tavern_reply",
		Description: "Reply to a topic",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args mcpReplyArgs) (*mcp.CallToolResult, any, error) {
		actor, err := mcpActor(req)
		if err != nil {
			return nil, nil, err
		}
		topic, err := lookupTopic(ctx, database, strings.TrimSpace(args.Topic))
		if err != nil {
			return nil, nil, err
		}
		post, err := db.CreateReply(ctx, database, actor, topic.ID, args.Content)
		if err != nil {
			return nil, nil, err
		}
		return jsonToolResult(post)
	})

	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil)

	verify := func(ctx context.Context, token string, req *http.Request) (*mcpauth.TokenInfo, error) {
		user, err := db.GetUserByAPIKeyHash(ctx, database, auth.HashAPIKey(token))
		if err != nil {
			if db.IsNotFound(err) {
				return nil, mcpauth.ErrInvalidToken
			}
			return nil, err
		}
		return &mcpauth.TokenInfo{
			Scopes:     []string{"read", "write"},
			Expiration: time.Now().UTC().Add(10 * 365 * 24 * time.Hour),
			UserID:     strconv.FormatInt(user.ID, 10),
			Extra: map[string]any{
				"username": user.Username,
				"role":     user.Role,
			},
		}, nil
	}

	return mcpauth.RequireBearerToken(verify, nil)(handler)
}

func mcpActor(req *mcp.CallToolRequest) (models.Actor, error) {
	if req == nil || req.Extra == nil || req.Extra.TokenInfo == nil {
		return models.Actor{}, errors.New("missing auth token")
	}
	info := req.Extra.TokenInfo
	id, err := strconv.ParseInt(info.UserID, 10, 64)
	if err != nil || id <= 0 {
		return models.Actor{}, errors.New("missing authenticated user")
	}
	username, _ := info.Extra["username"].(string)
	role, _ := info.Extra["role"].(string)
	return models.Actor{UserID: id, Username: username, Role: role}, nil
}

func jsonToolResult(v any) (*mcp.CallToolResult, any, error) {
	out, err := toJSONText(v)
	if err != nil {
		return nil, nil, err
	}
	return textToolResult(out), nil, nil
}

func textToolResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func toJSONText(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tavern/internal/cli/client"
)

func newCategoriesCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List and manage categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint(cmd, opts, "/api/v1/categories")
		},
	}

	var name, description string
	var order int
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a category (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendAndPrint(cmd, opts, http.MethodPost, "/api/v1/categories", map[string]any{
				"name":          name,
				"description":   description,
				"display_order": order,
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "category name")
	create.Flags().StringVar(&description, "description", "", "category description")
	create.Flags().IntVar(&order, "order", 0, "display order")

	show := &cobra.Command{
		Use:   "show <id|slug>",
		Short: "Show a category with its forums",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint(cmd, opts, "/api/v1/categories/"+url.PathEscape(args[0]))
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an empty category (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendAndPrint(cmd, opts, http.MethodDelete, "/api/v1/categories/"+url.PathEscape(args[0]), nil)
		},
	}

	cmd.AddCommand(create, show, del)
	return cmd
}

func newForumsCommand(opts *rootOptions) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "forums",
		Short: "List and manage forums",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/forums"
			if category != "" {
				cl, err := connected()
				if err != nil {
					return err
				}
				id, err := resolveID(cmd.Context(), cl, "categories", "category", category)
				if err != nil {
					return err
				}
				path += "?category_id=" + strconv.FormatInt(id, 10)
			}
			return getAndPrint(cmd, opts, path)
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "only forums in this category (id or slug)")

	var name, description, createCategory string
	var order int
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a forum (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := connected()
			if err != nil {
				return err
			}
			categoryID, err := resolveID(cmd.Context(), cl, "categories", "category", createCategory)
			if err != nil {
				return err
			}
			return sendAndPrint(cmd, opts, http.MethodPost, "/api/v1/forums", map[string]any{
				"category_id":   categoryID,
				"name":          name,
				"description":   description,
				"display_order": order,
			})
		},
	}
	create.Flags().StringVar(&createCategory, "category", "", "parent category (id or slug)")
	create.Flags().StringVar(&name, "name", "", "forum name")
	create.Flags().StringVar(&description, "description", "", "forum description")
	create.Flags().IntVar(&order, "order", 0, "display order")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an empty forum (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendAndPrint(cmd, opts, http.MethodDelete, "/api/v1/forums/"+url.PathEscape(args[0]), nil)
		},
	}

	cmd.AddCommand(create, del)
	return cmd
}

func newTopicsCommand(opts *rootOptions) *cobra.Command {
	var forum, tag, sort string
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "List, read and write topics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if forum != "" {
				cl, err := connected()
				if err != nil {
					return err
				}
				id, err := resolveID(cmd.Context(), cl, "forums", "forum", forum)
				if err != nil {
					return err
				}
				q.Set("forum_id", strconv.FormatInt(id, 10))
			}
			if tag != "" {
				q.Set("tag", tag)
			}
			if sort != "" {
				q.Set("sort", sort)
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			if offset > 0 {
				q.Set("offset", strconv.Itoa(offset))
			}
			path := "/api/v1/topics"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}
			return getAndPrint(cmd, opts, path)
		},
	}
	cmd.Flags().StringVar(&forum, "forum", "", "only topics in this forum (id or slug)")
	cmd.Flags().StringVar(&tag, "tag", "", "only topics with this tag")
	cmd.Flags().StringVar(&sort, "sort", "", "activity (default) or created")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset")

	var maxTokens int
	read := &cobra.Command{
		Use:   "read <id|slug>",
		Short: "Print a topic and its posts as markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := connected()
			if err != nil {
				return err
			}
			path := "/api/v1/topics/" + url.PathEscape(args[0]) + "/raw"
			if maxTokens > 0 {
				path += "?max_tokens=" + strconv.Itoa(maxTokens)
			}
			body, err := cl.GetRaw(cmd.Context(), path)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), body)
			return err
		},
	}
	read.Flags().IntVar(&maxTokens, "max-tokens", 0, "keep only the newest part of the page")

	var title, content, contentFile, createForum string
	var tags []string
	create := &cobra.Command{
		Use:   "create",
		Short: "Start a new topic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readContent(cmd, content, contentFile)
			if err != nil {
				return err
			}
			cl, err := connected()
			if err != nil {
				return err
			}
			forumID, err := resolveID(cmd.Context(), cl, "forums", "forum", createForum)
			if err != nil {
				return err
			}
			return sendAndPrint(cmd, opts, http.MethodPost, "/api/v1/topics", map[string]any{
				"forum_id": forumID,
				"title":    title,
				"content":  body,
				"tags":     tags,
			})
		},
	}
	create.Flags().StringVar(&createForum, "forum", "", "forum (id or slug)")
	create.Flags().StringVar(&title, "title", "", "topic title")
	addContentFlags(create, &content, &contentFile)
	create.Flags().StringSliceVar(&tags, "tag", nil, "tag (repeatable)")

	var replyContent, replyFile string
	reply := &cobra.Command{
		Use:   "reply <id|slug>",
		Short: "Reply to a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readContent(cmd, replyContent, replyFile)
			if err != nil {
				return err
			}
			return sendAndPrint(cmd, opts, http.MethodPost, "/api/v1/topics/"+url.PathEscape(args[0])+"/posts", map[string]any{
				"content": body,
			})
		},
	}
	addContentFlags(reply, &replyContent, &replyFile)

	var addTags, removeTags []string
	tagCmd := &cobra.Command{
		Use:   "tag <id|slug>",
		Short: "Add or remove topic tags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendAndPrint(cmd, opts, http.MethodPatch, "/api/v1/topics/"+url.PathEscape(args[0])+"/tags", map[string]any{
				"add":    addTags,
				"remove": removeTags,
			})
		},
	}
	tagCmd.Flags().StringSliceVar(&addTags, "add", nil, "tags to add")
	tagCmd.Flags().StringSliceVar(&removeTags, "remove", nil, "tags to remove")

	lock := toggleCommand(opts, "lock", "Lock or unlock a topic (moderator)")
	sticky := toggleCommand(opts, "sticky", "Pin or unpin a topic (moderator)")

	del := &cobra.Command{
		Use:   "delete <id|slug>",
		Short: "Delete a topic and all its posts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendAndPrint(cmd, opts, http.MethodDelete, "/api/v1/topics/"+url.PathEscape(args[0]), nil)
		},
	}

	cmd.AddCommand(read, create, reply, tagCmd, lock, sticky, del)
	return cmd
}

func toggleCommand(opts *rootOptions, flag, short string) *cobra.Command {
	return &cobra.Command{
		Use:   flag + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendAndPrint(cmd, opts, http.MethodPost, "/api/v1/topics/"+url.PathEscape(args[0])+"/"+flag, nil)
		},
	}
}

func newPostsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "posts",
		Short: "Edit, delete and mark posts",
	}

	var content, contentFile string
	edit := &cobra.Command{
		Use:   "edit <id>",
		Short: "Replace a post's content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readContent(cmd, content, contentFile)
			if err != nil {
				return err
			}
			return sendAndPrint(cmd, opts, http.MethodPut, "/api/v1/posts/"+url.PathEscape(args[0]), map[string]any{
				"content": body,
			})
		},
	}
	addContentFlags(edit, &content, &contentFile)

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendAndPrint(cmd, opts, http.MethodDelete, "/api/v1/posts/"+url.PathEscape(args[0]), nil)
		},
	}

	solution := &cobra.Command{
		Use:   "solution <id>",
		Short: "Toggle a reply as the topic's solution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendAndPrint(cmd, opts, http.MethodPost, "/api/v1/posts/"+url.PathEscape(args[0])+"/solution", nil)
		},
	}

	history := &cobra.Command{
		Use:   "history <id>",
		Short: "Show earlier versions of a post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint(cmd, opts, "/api/v1/posts/"+url.PathEscape(args[0])+"/history")
		},
	}

	cmd.AddCommand(edit, del, solution, history)
	return cmd
}

func addContentFlags(cmd *cobra.Command, content, file *string) {
	cmd.Flags().StringVar(content, "content", "", "post content")
	cmd.Flags().StringVar(file, "content-file", "", "read content from a file, or - for stdin")
}

func readContent(cmd *cobra.Command, content, file string) (string, error) {
	switch {
	case content != "" && file != "":
		return "", errors.New("use either --content or --content-file")
	case file == "-":
		b, err := io.ReadAll(cmd.InOrStdin())
		return string(b), err
	case file != "":
		b, err := os.ReadFile(file)
		return string(b), err
	case content == "":
		return "", errors.New("missing --content")
	}
	return content, nil
}

// resolveID turns an id-or-slug reference into a numeric id, asking the
// server for slugs.
func resolveID(ctx context.Context, cl *client.Client, collection, entity, ref string) (int64, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return 0, fmt.Errorf("missing --%s", entity)
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return id, nil
	}
	var payload map[string]any
	if err := cl.Get(ctx, "/api/v1/"+collection+"/"+url.PathEscape(ref), &payload); err != nil {
		return 0, fmt.Errorf("%s %q: %w", entity, ref, err)
	}
	// Category reads wrap the entity with its forums.
	if inner, ok := payload[entity].(map[string]any); ok {
		payload = inner
	}
	id, ok := payload["id"].(float64)
	if !ok {
		return 0, fmt.Errorf("%s %q: response has no id", entity, ref)
	}
	return int64(id), nil
}

package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"tavern/internal/db"
	"tavern/internal/models"
)

const rawTimeLayout = "2006-01-02 15:04 UTC"

// renderTopicMarkdown lays a topic page out as markdown: the opening post
// under the title, then each reply under its own heading.
func renderTopicMarkdown(topic models.Topic, posts []models.Post, total int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", topic.Title)
	fmt.Fprintf(&b, "**Author:** %s | **Created:** %s | **Replies:** %d | **Views:** %d\n",
		topic.Author, topic.Created.UTC().Format(rawTimeLayout), topic.ReplyCount, topic.ViewCount)
	var flags []string
	if topic.IsSticky {
		flags = append(flags, "sticky")
	}
	if topic.IsLocked {
		flags = append(flags, "locked")
	}
	if len(flags) > 0 {
		fmt.Fprintf(&b, "**Status:** %s\n", strings.Join(flags, ", "))
	}
	if len(topic.Tags) > 0 {
		fmt.Fprintf(&b, "**Tags:** %s\n", strings.Join(topic.Tags, ", "))
	}

	for _, p := range posts {
		b.WriteString("\n---\n\n")
		if p.IsFirst {
			b.WriteString(p.Content)
			b.WriteString("\n")
			continue
		}
		heading := fmt.Sprintf("## Reply by %s (%s)", p.Author, p.Created.UTC().Format(rawTimeLayout))
		if p.IsSolution {
			heading += " [solution]"
		}
		b.WriteString(heading)
		b.WriteString("\n\n")
		b.WriteString(p.Content)
		b.WriteString("\n")
	}
	if len(posts) < total {
		fmt.Fprintf(&b, "\n---\n\n_%d of %d posts shown_\n", len(posts), total)
	}
	return b.String()
}

func truncateByMaxTokens(markdown string, maxTokens int) string {
	if maxTokens <= 0 {
		return markdown
	}
	maxChars := maxTokens * 4
	if len(markdown) <= maxChars {
		return markdown
	}
	return "[...truncated older content...]\n\n" + markdown[len(markdown)-maxChars:]
}

func topicRawHandler(database *db.DB) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		topic, err := lookupTopic(r.Context(), database, pathRef(r.URL.Path, "/api/v1/topics/"))
		if err != nil {
			writeEngineError(w, err)
			return
		}
		limit, offset, err := pageParams(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		maxTokens := 0
		if rawMax := strings.TrimSpace(r.URL.Query().Get("max_tokens")); rawMax != "" {
			maxTokens, err = strconv.Atoi(rawMax)
			if err != nil || maxTokens < 0 {
				writeError(w, http.StatusBadRequest, "invalid max_tokens value")
				return
			}
		}
		posts, total, err := db.ListTopicPosts(r.Context(), database, topic.ID, limit, offset)
		if err != nil {
			writeEngineError(w, err)
			return
		}

		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Header().Set("Last-Modified", topic.LastPostAt.UTC().Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(truncateByMaxTokens(renderTopicMarkdown(*topic, posts, total), maxTokens)))
	})
}

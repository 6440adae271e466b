package db

import (
	"context"
	"fmt"
	"strings"

	"tavern/internal/models"
	"tavern/internal/slug"
)

type CreateTopicParams struct {
	ForumID int64
	Title   string
	Content string
	Tags    []string
	Sticky  bool
	Locked  bool
}

type UpdateTopicParams struct {
	Title   string
	Content string
}

type ListTopicsParams struct {
	ForumID int64
	UserID  int64
	Tag     string
	// Sort is "activity" (default) or "created". Forum listings put
	// sticky topics first.
	Sort   string
	Limit  int
	Offset int
}

// CreateTopic creates a topic together with its first post and counts
// both in the parent forum.
func CreateTopic(ctx context.Context, database *DB, actor models.Actor, params CreateTopicParams) (*models.Topic, error) {
	title := strings.TrimSpace(params.Title)
	content := strings.TrimSpace(params.Content)
	tags := normalizeTags(params.Tags)
	limits := database.limits

	v := &validator{}
	v.actor(actor)
	v.id("forum_id", params.ForumID)
	v.length("title", title, limits.TitleMin, limits.TitleMax)
	v.length("content", content, limits.ContentMin, limits.ContentMax)
	v.tags(tags, limits)
	if err := v.err(); err != nil {
		return nil, err
	}

	var topicID int64
	err := withSlugRetry(func() error {
		return withTx(ctx, database, "create topic", func(tx *Tx) error {
			if err := lockForumTx(ctx, tx, params.ForumID); err != nil {
				return err
			}
			now := database.now()
			s, err := slug.Resolve(ctx, title, topicSlugExists(tx, 0), now)
			if err != nil {
				return err
			}
			stamp := formatTime(now)
			if err := tx.QueryRowContext(ctx, `
INSERT INTO topics (forum_id, user_id, title, slug, content, is_sticky, is_locked,
                    created_at, updated_at, last_post_at, last_post_user_id)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id`,
				params.ForumID, actor.UserID, title, s, content, params.Sticky, params.Locked,
				stamp, stamp, stamp, actor.UserID,
			).Scan(&topicID); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
INSERT INTO posts (topic_id, user_id, content, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)`, topicID, actor.UserID, content, stamp, stamp); err != nil {
				return err
			}
			if err := upsertTopicTagsTx(ctx, tx, topicID, tags); err != nil {
				return err
			}
			return applyAggregates(ctx, tx, aggregateEvent{kind: topicCreated, forumID: params.ForumID, topicID: topicID})
		})
	})
	if err != nil {
		return nil, err
	}
	audit(ctx, database, "topic created", actor, "topic_id", topicID, "forum_id", params.ForumID)
	return GetTopic(ctx, database, topicID)
}

// UpdateTopic changes the title and the first post's content in one step.
// A new title gets a new slug.
func UpdateTopic(ctx context.Context, database *DB, actor models.Actor, topicID int64, params UpdateTopicParams) (*models.Topic, error) {
	title := strings.TrimSpace(params.Title)
	content := strings.TrimSpace(params.Content)
	limits := database.limits

	v := &validator{}
	v.actor(actor)
	v.length("title", title, limits.TitleMin, limits.TitleMax)
	v.length("content", content, limits.ContentMin, limits.ContentMax)
	if err := v.err(); err != nil {
		return nil, err
	}

	err := withSlugRetry(func() error {
		return withTx(ctx, database, "update topic", func(tx *Tx) error {
			if err := lockTopicTx(ctx, tx, topicID); err != nil {
				return err
			}
			var oldTitle, oldSlug string
			if err := tx.QueryRowContext(ctx, `SELECT title, slug FROM topics WHERE id = ?`, topicID).Scan(&oldTitle, &oldSlug); err != nil {
				return err
			}
			first, err := firstPostTx(ctx, tx, topicID)
			if err != nil {
				return err
			}

			now := database.now()
			newSlug := oldSlug
			if title != oldTitle {
				if newSlug, err = slug.Resolve(ctx, title, topicSlugExists(tx, topicID), now); err != nil {
					return err
				}
			}
			stamp := formatTime(now)
			if first.Content != content {
				if err := recordRevisionTx(ctx, tx, first.ID, first.Content, actor.UserID, stamp); err != nil {
					return err
				}
				if _, err := tx.ExecContext(ctx, `
UPDATE posts SET content = ?, updated_at = ? WHERE id = ?`, content, stamp, first.ID); err != nil {
					return err
				}
			}
			_, err = tx.ExecContext(ctx, `
UPDATE topics
SET title = ?, slug = ?, content = ?, updated_at = ?
WHERE id = ?`, title, newSlug, content, stamp, topicID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	audit(ctx, database, "topic updated", actor, "topic_id", topicID)
	return GetTopic(ctx, database, topicID)
}

// DeleteTopic removes a topic with all of its posts and tags and takes
// them out of the forum's counters.
func DeleteTopic(ctx context.Context, database *DB, actor models.Actor, topicID int64) error {
	forumID, err := topicForumID(ctx, database, topicID)
	if err != nil {
		return err
	}
	err = withTx(ctx, database, "delete topic", func(tx *Tx) error {
		if err := lockForumTx(ctx, tx, forumID); err != nil {
			return err
		}
		if err := lockTopicTx(ctx, tx, topicID); err != nil {
			return err
		}
		if err := ensureTopicInForumTx(ctx, tx, topicID, forumID); err != nil {
			return err
		}

		var posts int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM posts WHERE topic_id = ?`, topicID).Scan(&posts); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM topic_tags WHERE topic_id = ?`, topicID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE topic_id = ?`, topicID)
		if err != nil {
			return err
		}
		deleted, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if deleted != int64(posts) {
			return fmt.Errorf("delete topic %d: counted %d posts, deleted %d", topicID, posts, deleted)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM topics WHERE id = ?`, topicID); err != nil {
			return err
		}
		return applyAggregates(ctx, tx, aggregateEvent{kind: topicDeleted, forumID: forumID, topicID: topicID, posts: posts})
	})
	if err != nil {
		return err
	}
	audit(ctx, database, "topic deleted", actor, "topic_id", topicID, "forum_id", forumID)
	return nil
}

// IncrementView bumps the view counter and returns the new value. Views
// are not part of any aggregate and take no locks.
func IncrementView(ctx context.Context, database *DB, topicID int64) (int, error) {
	var views int
	err := database.QueryRowContext(ctx, `
UPDATE topics SET view_count = view_count + 1
WHERE id = ?
RETURNING view_count`, topicID).Scan(&views)
	if noRows(err) {
		return 0, notFound("topic", topicID)
	}
	if err != nil {
		return 0, classify(ctx, database, "increment view", err)
	}
	return views, nil
}

func ToggleSticky(ctx context.Context, database *DB, actor models.Actor, topicID int64) (bool, error) {
	return toggleTopicFlag(ctx, database, actor, topicID, "is_sticky")
}

func ToggleLock(ctx context.Context, database *DB, actor models.Actor, topicID int64) (bool, error) {
	return toggleTopicFlag(ctx, database, actor, topicID, "is_locked")
}

func toggleTopicFlag(ctx context.Context, database *DB, actor models.Actor, topicID int64, column string) (bool, error) {
	var value bool
	err := database.QueryRowContext(ctx, `
UPDATE topics SET `+column+` = NOT `+column+`
WHERE id = ?
RETURNING `+column, topicID).Scan(&value)
	if noRows(err) {
		return false, notFound("topic", topicID)
	}
	if err != nil {
		return false, classify(ctx, database, "toggle "+column, err)
	}
	audit(ctx, database, "topic flag toggled", actor, "topic_id", topicID, "flag", column, "value", value)
	return value, nil
}

const topicColumns = `
SELECT t.id, t.forum_id, t.user_id, u.username, t.title, t.slug, t.content,
       t.is_sticky, t.is_locked, t.view_count, t.reply_count,
       t.created_at, t.updated_at, t.last_post_at, t.last_post_user_id
FROM topics t
JOIN users u ON u.id = t.user_id`

func scanTopic(row interface{ Scan(...any) error }, t *models.Topic) error {
	return row.Scan(
		&t.ID, &t.ForumID, &t.UserID, &t.Author, &t.Title, &t.Slug, &t.Content,
		&t.IsSticky, &t.IsLocked, &t.ViewCount, &t.ReplyCount,
		timeCol{&t.Created}, timeCol{&t.Updated}, timeCol{&t.LastPostAt}, &t.LastPostUserID,
	)
}

func GetTopic(ctx context.Context, database *DB, topicID int64) (*models.Topic, error) {
	t := &models.Topic{}
	err := scanTopic(database.QueryRowContext(ctx, topicColumns+` WHERE t.id = ?`, topicID), t)
	if noRows(err) {
		return nil, notFound("topic", topicID)
	}
	if err != nil {
		return nil, classify(ctx, database, "get topic", err)
	}
	if t.Tags, err = ListTopicTags(ctx, database, t.ID); err != nil {
		return nil, err
	}
	return t, nil
}

func GetTopicBySlug(ctx context.Context, database *DB, s string) (*models.Topic, error) {
	t := &models.Topic{}
	err := scanTopic(database.QueryRowContext(ctx, topicColumns+` WHERE t.slug = ?`, strings.TrimSpace(s)), t)
	if noRows(err) {
		return nil, notFoundSlug("topic", s)
	}
	if err != nil {
		return nil, classify(ctx, database, "get topic", err)
	}
	if t.Tags, err = ListTopicTags(ctx, database, t.ID); err != nil {
		return nil, err
	}
	return t, nil
}

func ListTopics(ctx context.Context, database *DB, params ListTopicsParams) ([]models.Topic, int, error) {
	limit, offset := clampPage(params.Limit, params.Offset)

	var (
		where []string
		args  []any
	)
	if params.ForumID > 0 {
		where = append(where, "t.forum_id = ?")
		args = append(args, params.ForumID)
	}
	if params.UserID > 0 {
		where = append(where, "t.user_id = ?")
		args = append(args, params.UserID)
	}
	if tag := strings.ToLower(strings.TrimSpace(params.Tag)); tag != "" {
		where = append(where, "EXISTS (SELECT 1 FROM topic_tags tt WHERE tt.topic_id = t.id AND tt.tag = ?)")
		args = append(args, tag)
	}
	whereClause := ""
	if len(where) > 0 {
		whereClause = "\nWHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := database.QueryRowContext(ctx, `SELECT COUNT(1) FROM topics t`+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, classify(ctx, database, "count topics", err)
	}

	order := "t.last_post_at DESC, t.id DESC"
	if params.Sort == "created" {
		order = "t.created_at DESC, t.id DESC"
	}
	if params.ForumID > 0 {
		order = "t.is_sticky DESC, " + order
	}
	query := topicColumns + whereClause + "\nORDER BY " + order + "\nLIMIT ? OFFSET ?"
	rows, err := database.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, classify(ctx, database, "list topics", err)
	}
	defer rows.Close()

	out := make([]models.Topic, 0)
	for rows.Next() {
		var t models.Topic
		if err := scanTopic(rows, &t); err != nil {
			return nil, 0, classify(ctx, database, "list topics", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, classify(ctx, database, "list topics", err)
	}
	rows.Close()

	for i := range out {
		if out[i].Tags, err = ListTopicTags(ctx, database, out[i].ID); err != nil {
			return nil, 0, err
		}
	}
	return out, total, nil
}

// RecentTopics lists topics across all forums by latest activity.
func RecentTopics(ctx context.Context, database *DB, limit int) ([]models.Topic, error) {
	topics, _, err := ListTopics(ctx, database, ListTopicsParams{Limit: limit})
	return topics, err
}

// ListTopicsByUser lists the topics a user started, newest first.
func ListTopicsByUser(ctx context.Context, database *DB, userID int64, limit, offset int) ([]models.Topic, int, error) {
	return ListTopics(ctx, database, ListTopicsParams{UserID: userID, Sort: "created", Limit: limit, Offset: offset})
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// reservedTopicSlugs are the words routed under /topics/ that a bare topic
// slug would shadow.
var reservedTopicSlugs = map[string]bool{
	"recent": true,
	"posts":  true,
	"raw":    true,
	"tags":   true,
	"sticky": true,
	"lock":   true,
	"view":   true,
}

func topicSlugExists(q querier, excludeID int64) func(ctx context.Context, candidate string) (bool, error) {
	exists := slugExists(q, "topics", excludeID)
	return func(ctx context.Context, candidate string) (bool, error) {
		if reservedTopicSlugs[candidate] {
			return true, nil
		}
		return exists(ctx, candidate)
	}
}

func topicForumID(ctx context.Context, database *DB, topicID int64) (int64, error) {
	var forumID int64
	err := database.QueryRowContext(ctx, `SELECT forum_id FROM topics WHERE id = ?`, topicID).Scan(&forumID)
	if noRows(err) {
		return 0, notFound("topic", topicID)
	}
	if err != nil {
		return 0, classify(ctx, database, "resolve topic", err)
	}
	return forumID, nil
}

// ensureTopicInForumTx re-checks, under lock, a parent id read before the
// transaction started.
func ensureTopicInForumTx(ctx context.Context, tx *Tx, topicID, forumID int64) error {
	var current int64
	err := tx.QueryRowContext(ctx, `SELECT forum_id FROM topics WHERE id = ?`, topicID).Scan(&current)
	if noRows(err) {
		return notFound("topic", topicID)
	}
	if err != nil {
		return err
	}
	if current != forumID {
		return conflict("topic", fmt.Sprintf("topic %d moved while being modified", topicID), nil)
	}
	return nil
}

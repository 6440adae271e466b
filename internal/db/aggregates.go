package db

import (
	"context"
	"fmt"
)

type eventKind int

const (
	postCreated eventKind = iota + 1
	postDeleted
	topicCreated
	topicDeleted
)

func (k eventKind) String() string {
	switch k {
	case postCreated:
		return "post_created"
	case postDeleted:
		return "post_deleted"
	case topicCreated:
		return "topic_created"
	case topicDeleted:
		return "topic_deleted"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// aggregateEvent describes a committed-to-be change to content rows.
// posts is only meaningful for topicDeleted: the number of posts removed
// together with the topic, counted before deletion.
type aggregateEvent struct {
	kind    eventKind
	forumID int64
	topicID int64
	posts   int
}

// applyAggregates brings the cached counters of the affected topic and
// forum in line with the rows. It must run inside the transaction that
// changed the rows, after the change and with the forum row locked.
func applyAggregates(ctx context.Context, tx *Tx, ev aggregateEvent) error {
	switch ev.kind {
	case topicCreated:
		if err := refreshTopicTx(ctx, tx, ev.topicID); err != nil {
			return err
		}
		return updateForumTx(ctx, tx, ev.forumID, `
UPDATE forums
SET topic_count = topic_count + 1,
    post_count = post_count + 1,
    last_post_at = (SELECT MAX(t.last_post_at) FROM topics t WHERE t.forum_id = forums.id)
WHERE id = ?`, ev.forumID)
	case postCreated:
		if err := refreshTopicTx(ctx, tx, ev.topicID); err != nil {
			return err
		}
		return updateForumTx(ctx, tx, ev.forumID, `
UPDATE forums
SET post_count = post_count + 1,
    last_post_at = (SELECT MAX(t.last_post_at) FROM topics t WHERE t.forum_id = forums.id)
WHERE id = ?`, ev.forumID)
	case postDeleted:
		if err := refreshTopicTx(ctx, tx, ev.topicID); err != nil {
			return err
		}
		return updateForumTx(ctx, tx, ev.forumID, `
UPDATE forums
SET post_count = CASE WHEN post_count > 0 THEN post_count - 1 ELSE 0 END,
    last_post_at = (SELECT MAX(t.last_post_at) FROM topics t WHERE t.forum_id = forums.id)
WHERE id = ?`, ev.forumID)
	case topicDeleted:
		return updateForumTx(ctx, tx, ev.forumID, `
UPDATE forums
SET topic_count = CASE WHEN topic_count > 0 THEN topic_count - 1 ELSE 0 END,
    post_count = CASE WHEN post_count > ? THEN post_count - ? ELSE 0 END,
    last_post_at = (SELECT MAX(t.last_post_at) FROM topics t WHERE t.forum_id = forums.id)
WHERE id = ?`, ev.posts, ev.posts, ev.forumID)
	default:
		return fmt.Errorf("apply aggregates: unknown event %s", ev.kind)
	}
}

func updateForumTx(ctx context.Context, tx *Tx, forumID int64, query string, args ...any) error {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound("forum", forumID)
	}
	return nil
}

// refreshTopicTx recomputes reply_count and the last-post pointer of a
// topic from its posts. reply_count is always the post count minus one.
func refreshTopicTx(ctx context.Context, tx *Tx, topicID int64) error {
	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM posts WHERE topic_id = ?`, topicID).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("topic %d has no posts", topicID)
	}

	var (
		lastAt     string
		lastUserID int64
	)
	if err := tx.QueryRowContext(ctx, `
SELECT created_at, user_id
FROM posts
WHERE topic_id = ?
ORDER BY created_at DESC, id DESC
LIMIT 1`, topicID).Scan(&lastAt, &lastUserID); err != nil {
		return err
	}

	_, err := tx.ExecContext(ctx, `
UPDATE topics
SET reply_count = ?, last_post_at = ?, last_post_user_id = ?
WHERE id = ?`, count-1, lastAt, lastUserID, topicID)
	return err
}

package db

import (
	"context"
	"strings"

	"tavern/internal/models"
)

type firstPost struct {
	ID      int64
	Content string
}

// CreateReply appends a post to an unlocked topic.
func CreateReply(ctx context.Context, database *DB, actor models.Actor, topicID int64, content string) (*models.Post, error) {
	content = strings.TrimSpace(content)
	limits := database.limits

	v := &validator{}
	v.actor(actor)
	v.id("topic_id", topicID)
	v.length("content", content, limits.ContentMin, limits.ContentMax)
	if err := v.err(); err != nil {
		return nil, err
	}

	forumID, err := topicForumID(ctx, database, topicID)
	if err != nil {
		return nil, err
	}

	var postID int64
	err = withTx(ctx, database, "create reply", func(tx *Tx) error {
		if err := lockForumTx(ctx, tx, forumID); err != nil {
			return err
		}
		if err := lockTopicTx(ctx, tx, topicID); err != nil {
			return err
		}
		if err := ensureTopicInForumTx(ctx, tx, topicID, forumID); err != nil {
			return err
		}
		var locked bool
		if err := tx.QueryRowContext(ctx, `SELECT is_locked FROM topics WHERE id = ?`, topicID).Scan(&locked); err != nil {
			return err
		}
		if locked {
			return topicLocked(topicID)
		}

		stamp := formatTime(database.now())
		if err := tx.QueryRowContext(ctx, `
INSERT INTO posts (topic_id, user_id, content, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
RETURNING id`, topicID, actor.UserID, content, stamp, stamp).Scan(&postID); err != nil {
			return err
		}
		return applyAggregates(ctx, tx, aggregateEvent{kind: postCreated, forumID: forumID, topicID: topicID})
	})
	if err != nil {
		return nil, err
	}
	audit(ctx, database, "reply created", actor, "post_id", postID, "topic_id", topicID)
	return GetPost(ctx, database, postID)
}

// UpdatePostContent edits any post, the first one included. Editing the
// first post keeps the topic's copy of the content in step. No counters
// change.
func UpdatePostContent(ctx context.Context, database *DB, actor models.Actor, postID int64, content string) (*models.Post, error) {
	content = strings.TrimSpace(content)
	limits := database.limits

	v := &validator{}
	v.actor(actor)
	v.length("content", content, limits.ContentMin, limits.ContentMax)
	if err := v.err(); err != nil {
		return nil, err
	}

	topicID, err := postTopicID(ctx, database, postID)
	if err != nil {
		return nil, err
	}

	err = withTx(ctx, database, "update post", func(tx *Tx) error {
		if err := lockTopicTx(ctx, tx, topicID); err != nil {
			return err
		}
		var old string
		err := tx.QueryRowContext(ctx, `SELECT content FROM posts WHERE id = ? AND topic_id = ?`, postID, topicID).Scan(&old)
		if noRows(err) {
			return notFound("post", postID)
		}
		if err != nil {
			return err
		}
		if old == content {
			return nil
		}

		stamp := formatTime(database.now())
		if err := recordRevisionTx(ctx, tx, postID, old, actor.UserID, stamp); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
UPDATE posts SET content = ?, updated_at = ? WHERE id = ?`, content, stamp, postID); err != nil {
			return err
		}

		first, err := firstPostTx(ctx, tx, topicID)
		if err != nil {
			return err
		}
		if first.ID == postID {
			_, err = tx.ExecContext(ctx, `
UPDATE topics SET content = ?, updated_at = ? WHERE id = ?`, content, stamp, topicID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	audit(ctx, database, "post updated", actor, "post_id", postID)
	return GetPost(ctx, database, postID)
}

// DeleteReply removes a post that is not the first of its topic.
func DeleteReply(ctx context.Context, database *DB, actor models.Actor, postID int64) error {
	topicID, err := postTopicID(ctx, database, postID)
	if err != nil {
		return err
	}
	forumID, err := topicForumID(ctx, database, topicID)
	if err != nil {
		return postGone(err, postID)
	}

	err = withTx(ctx, database, "delete reply", func(tx *Tx) error {
		if err := lockForumTx(ctx, tx, forumID); err != nil {
			return err
		}
		if err := lockTopicTx(ctx, tx, topicID); err != nil {
			return err
		}
		if err := ensureTopicInForumTx(ctx, tx, topicID, forumID); err != nil {
			return err
		}
		first, err := firstPostTx(ctx, tx, topicID)
		if err != nil {
			return err
		}
		if first.ID == postID {
			return firstPostProtected(postID)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE id = ? AND topic_id = ?`, postID, topicID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return notFound("post", postID)
		}
		return applyAggregates(ctx, tx, aggregateEvent{kind: postDeleted, forumID: forumID, topicID: topicID})
	})
	if err != nil {
		return postGone(err, postID)
	}
	audit(ctx, database, "reply deleted", actor, "post_id", postID, "topic_id", topicID)
	return nil
}

// ToggleSolution flips the solution mark on a reply and returns the new
// value. The first post cannot be a solution.
func ToggleSolution(ctx context.Context, database *DB, actor models.Actor, postID int64) (bool, error) {
	topicID, err := postTopicID(ctx, database, postID)
	if err != nil {
		return false, err
	}

	var value bool
	err = withTx(ctx, database, "toggle solution", func(tx *Tx) error {
		if err := lockTopicTx(ctx, tx, topicID); err != nil {
			return err
		}
		first, err := firstPostTx(ctx, tx, topicID)
		if err != nil {
			return err
		}
		if first.ID == postID {
			return firstPostProtected(postID)
		}
		err = tx.QueryRowContext(ctx, `
UPDATE posts SET is_solution = NOT is_solution
WHERE id = ? AND topic_id = ?
RETURNING is_solution`, postID, topicID).Scan(&value)
		if noRows(err) {
			return notFound("post", postID)
		}
		return err
	})
	if err != nil {
		return false, err
	}
	audit(ctx, database, "solution toggled", actor, "post_id", postID, "value", value)
	return value, nil
}

// IsFirstPost reports whether postID is the earliest post of its topic.
func IsFirstPost(ctx context.Context, database *DB, postID int64) (bool, error) {
	topicID, err := postTopicID(ctx, database, postID)
	if err != nil {
		return false, err
	}
	first, err := firstPostTx(ctx, database, topicID)
	if err != nil {
		return false, classify(ctx, database, "first post", err)
	}
	return first.ID == postID, nil
}

const postColumns = `
SELECT p.id, p.topic_id, p.user_id, u.username, p.content, p.is_solution, p.created_at, p.updated_at
FROM posts p
JOIN users u ON u.id = p.user_id`

func scanPost(row interface{ Scan(...any) error }, p *models.Post) error {
	return row.Scan(&p.ID, &p.TopicID, &p.UserID, &p.Author, &p.Content, &p.IsSolution, timeCol{&p.Created}, timeCol{&p.Updated})
}

func GetPost(ctx context.Context, database *DB, postID int64) (*models.Post, error) {
	p := &models.Post{}
	err := scanPost(database.QueryRowContext(ctx, postColumns+` WHERE p.id = ?`, postID), p)
	if noRows(err) {
		return nil, notFound("post", postID)
	}
	if err != nil {
		return nil, classify(ctx, database, "get post", err)
	}
	first, err := firstPostTx(ctx, database, p.TopicID)
	if err != nil {
		return nil, classify(ctx, database, "get post", err)
	}
	p.IsFirst = first.ID == p.ID
	return p, nil
}

// ListTopicPosts pages through a topic's posts in posting order.
func ListTopicPosts(ctx context.Context, database *DB, topicID int64, limit, offset int) ([]models.Post, int, error) {
	limit, offset = clampPage(limit, offset)
	if _, err := topicForumID(ctx, database, topicID); err != nil {
		return nil, 0, err
	}

	var total int
	if err := database.QueryRowContext(ctx, `SELECT COUNT(1) FROM posts WHERE topic_id = ?`, topicID).Scan(&total); err != nil {
		return nil, 0, classify(ctx, database, "count posts", err)
	}
	first, err := firstPostTx(ctx, database, topicID)
	if err != nil {
		return nil, 0, classify(ctx, database, "list posts", err)
	}

	rows, err := database.QueryContext(ctx, postColumns+`
WHERE p.topic_id = ?
ORDER BY p.created_at ASC, p.id ASC
LIMIT ? OFFSET ?`, topicID, limit, offset)
	if err != nil {
		return nil, 0, classify(ctx, database, "list posts", err)
	}
	defer rows.Close()

	out := make([]models.Post, 0)
	for rows.Next() {
		var p models.Post
		if err := scanPost(rows, &p); err != nil {
			return nil, 0, classify(ctx, database, "list posts", err)
		}
		p.IsFirst = p.ID == first.ID
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, classify(ctx, database, "list posts", err)
	}
	return out, total, nil
}

// ListPostHistory returns earlier versions of a post, newest first.
func ListPostHistory(ctx context.Context, database *DB, postID int64) ([]models.PostRevision, error) {
	if _, err := postTopicID(ctx, database, postID); err != nil {
		return nil, err
	}
	rows, err := database.QueryContext(ctx, `
SELECT post_id, version, content, edited_by, edited_at
FROM post_history
WHERE post_id = ?
ORDER BY version DESC`, postID)
	if err != nil {
		return nil, classify(ctx, database, "list post history", err)
	}
	defer rows.Close()

	out := make([]models.PostRevision, 0)
	for rows.Next() {
		var h models.PostRevision
		if err := rows.Scan(&h.PostID, &h.Version, &h.Content, &h.EditedBy, timeCol{&h.EditedAt}); err != nil {
			return nil, classify(ctx, database, "list post history", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(ctx, database, "list post history", err)
	}
	return out, nil
}

func postTopicID(ctx context.Context, database *DB, postID int64) (int64, error) {
	var topicID int64
	err := database.QueryRowContext(ctx, `SELECT topic_id FROM posts WHERE id = ?`, postID).Scan(&topicID)
	if noRows(err) {
		return 0, notFound("post", postID)
	}
	if err != nil {
		return 0, classify(ctx, database, "resolve post", err)
	}
	return topicID, nil
}

// postGone reports a parent that vanished mid-delete as the post itself
// being gone, since the topic's removal took its posts along.
func postGone(err error, postID int64) error {
	if IsNotFound(err) {
		return notFound("post", postID)
	}
	return err
}

// firstPostTx finds the earliest post of a topic. Ties on created_at go to
// the lower id.
func firstPostTx(ctx context.Context, q querier, topicID int64) (firstPost, error) {
	var fp firstPost
	err := q.QueryRowContext(ctx, `
SELECT id, content
FROM posts
WHERE topic_id = ?
ORDER BY created_at ASC, id ASC
LIMIT 1`, topicID).Scan(&fp.ID, &fp.Content)
	if noRows(err) {
		return fp, notFound("topic", topicID)
	}
	return fp, err
}

func recordRevisionTx(ctx context.Context, tx *Tx, postID int64, content string, editedBy int64, stamp string) error {
	var version int
	if err := tx.QueryRowContext(ctx, `
SELECT COALESCE(MAX(version), 0)
FROM post_history
WHERE post_id = ?`, postID).Scan(&version); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
INSERT INTO post_history (post_id, version, content, edited_by, edited_at)
VALUES (?, ?, ?, ?, ?)`, postID, version+1, content, editedBy, stamp)
	return err
}

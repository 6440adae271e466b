package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Drift is one cached value that disagrees with the rows it summarizes.
type Drift struct {
	Entity   string `json:"entity"`
	ID       int64  `json:"id"`
	Field    string `json:"field"`
	Stored   string `json:"stored"`
	Computed string `json:"computed"`
}

// VerifyAggregates compares every cached counter and last-post pointer
// with a recount from the content tables. It changes nothing.
func VerifyAggregates(ctx context.Context, database *DB) ([]Drift, error) {
	drifts, err := collectDrift(ctx, database)
	if err != nil {
		return nil, classify(ctx, database, "verify aggregates", err)
	}
	return drifts, nil
}

// ReconcileAggregates rewrites every drifted aggregate from the rows in a
// single transaction and returns what it found. Topics without posts are
// reported but left alone.
func ReconcileAggregates(ctx context.Context, database *DB) ([]Drift, error) {
	var drifts []Drift
	err := withTx(ctx, database, "reconcile aggregates", func(tx *Tx) error {
		var err error
		if drifts, err = collectDrift(ctx, tx); err != nil {
			return err
		}
		repaired := map[int64]bool{}
		for _, d := range drifts {
			if d.Entity != "topic" || d.Field == "posts" || repaired[d.ID] {
				continue
			}
			if err := refreshTopicTx(ctx, tx, d.ID); err != nil {
				return err
			}
			repaired[d.ID] = true
		}
		_, err = tx.ExecContext(ctx, `
UPDATE forums
SET topic_count = (SELECT COUNT(1) FROM topics t WHERE t.forum_id = forums.id),
    post_count = (SELECT COUNT(1) FROM posts p JOIN topics t ON t.id = p.topic_id WHERE t.forum_id = forums.id),
    last_post_at = (SELECT MAX(t.last_post_at) FROM topics t WHERE t.forum_id = forums.id)`)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(drifts) > 0 {
		database.logger.WarnContext(ctx, "aggregates reconciled", "drifts", len(drifts))
	}
	return drifts, nil
}

func collectDrift(ctx context.Context, q querier) ([]Drift, error) {
	out := make([]Drift, 0)

	topicRows, err := q.QueryContext(ctx, `
SELECT t.id, t.reply_count, t.last_post_at, t.last_post_user_id,
       (SELECT COUNT(1) FROM posts p WHERE p.topic_id = t.id),
       (SELECT p.created_at FROM posts p WHERE p.topic_id = t.id ORDER BY p.created_at DESC, p.id DESC LIMIT 1),
       (SELECT p.user_id FROM posts p WHERE p.topic_id = t.id ORDER BY p.created_at DESC, p.id DESC LIMIT 1)
FROM topics t
ORDER BY t.id`)
	if err != nil {
		return nil, err
	}
	defer topicRows.Close()
	for topicRows.Next() {
		var (
			id, lastUser, posts int64
			replies             int64
			lastAt              string
			realAt              sql.NullString
			realUser            sql.NullInt64
		)
		if err := topicRows.Scan(&id, &replies, &lastAt, &lastUser, &posts, &realAt, &realUser); err != nil {
			return nil, err
		}
		if posts == 0 {
			out = append(out, Drift{Entity: "topic", ID: id, Field: "posts", Stored: "0", Computed: ">=1"})
			continue
		}
		if replies != posts-1 {
			out = append(out, numDrift("topic", id, "reply_count", replies, posts-1))
		}
		if lastAt != realAt.String {
			out = append(out, Drift{Entity: "topic", ID: id, Field: "last_post_at", Stored: lastAt, Computed: realAt.String})
		}
		if lastUser != realUser.Int64 {
			out = append(out, numDrift("topic", id, "last_post_user_id", lastUser, realUser.Int64))
		}
	}
	if err := topicRows.Err(); err != nil {
		return nil, err
	}
	topicRows.Close()

	forumRows, err := q.QueryContext(ctx, `
SELECT f.id, f.topic_count, f.post_count, f.last_post_at,
       (SELECT COUNT(1) FROM topics t WHERE t.forum_id = f.id),
       (SELECT COUNT(1) FROM posts p JOIN topics t ON t.id = p.topic_id WHERE t.forum_id = f.id),
       (SELECT MAX(t.last_post_at) FROM topics t WHERE t.forum_id = f.id)
FROM forums f
ORDER BY f.id`)
	if err != nil {
		return nil, err
	}
	defer forumRows.Close()
	for forumRows.Next() {
		var (
			id, topics, posts, realTopics, realPosts int64
			lastAt, realAt                           sql.NullString
		)
		if err := forumRows.Scan(&id, &topics, &posts, &lastAt, &realTopics, &realPosts, &realAt); err != nil {
			return nil, err
		}
		if topics != realTopics {
			out = append(out, numDrift("forum", id, "topic_count", topics, realTopics))
		}
		if posts != realPosts {
			out = append(out, numDrift("forum", id, "post_count", posts, realPosts))
		}
		if lastAt != realAt {
			out = append(out, Drift{Entity: "forum", ID: id, Field: "last_post_at", Stored: lastAt.String, Computed: realAt.String})
		}
	}
	return out, forumRows.Err()
}

func numDrift(entity string, id int64, field string, stored, computed int64) Drift {
	return Drift{
		Entity:   entity,
		ID:       id,
		Field:    field,
		Stored:   fmt.Sprint(stored),
		Computed: fmt.Sprint(computed),
	}
}

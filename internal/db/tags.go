package db

import (
	"context"
	"strings"

	"tavern/internal/models"
)

func ListTopicTags(ctx context.Context, database *DB, topicID int64) ([]string, error) {
	tags, err := listTopicTags(ctx, database, topicID)
	if err != nil {
		return nil, classify(ctx, database, "list topic tags", err)
	}
	return tags, nil
}

// UpdateTopicTags adds and removes tags on a topic and returns the
// resulting set.
func UpdateTopicTags(ctx context.Context, database *DB, actor models.Actor, topicID int64, add, remove []string) ([]string, error) {
	add = normalizeTags(add)
	remove = normalizeTags(remove)
	v := &validator{}
	v.tags(add, Limits{TagMax: database.limits.TagMax})
	if err := v.err(); err != nil {
		return nil, err
	}

	var tags []string
	err := withTx(ctx, database, "update topic tags", func(tx *Tx) error {
		if err := lockTopicTx(ctx, tx, topicID); err != nil {
			return err
		}
		if err := upsertTopicTagsTx(ctx, tx, topicID, add); err != nil {
			return err
		}
		if len(remove) > 0 {
			placeholders := make([]string, 0, len(remove))
			args := make([]any, 0, len(remove)+1)
			args = append(args, topicID)
			for _, tag := range remove {
				placeholders = append(placeholders, "?")
				args = append(args, tag)
			}
			query := `DELETE FROM topic_tags WHERE topic_id = ? AND tag IN (` + strings.Join(placeholders, ", ") + `)`
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return err
			}
		}

		var err error
		if tags, err = listTopicTags(ctx, tx, topicID); err != nil {
			return err
		}
		if limit := database.limits.MaxTags; limit > 0 && len(tags) > limit {
			return &Error{
				Kind:    KindValidation,
				Message: "invalid tags",
				Fields:  []FieldError{{Field: "tags", Message: "too many tags on topic"}},
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	audit(ctx, database, "topic tags updated", actor, "topic_id", topicID)
	return tags, nil
}

func listTopicTags(ctx context.Context, q querier, topicID int64) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
SELECT tag FROM topic_tags
WHERE topic_id = ?
ORDER BY tag ASC`, topicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func upsertTopicTagsTx(ctx context.Context, tx *Tx, topicID int64, tags []string) error {
	for _, tag := range tags {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO topic_tags (topic_id, tag) VALUES (?, ?) ON CONFLICT DO NOTHING`,
			topicID, tag,
		); err != nil {
			return err
		}
	}
	return nil
}

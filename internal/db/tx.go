package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"tavern/internal/models"
	"tavern/internal/slug"
)

// withTx runs fn in one transaction. Any error rolls everything back.
func withTx(ctx context.Context, database *DB, op string, fn func(tx *Tx) error) error {
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return classify(ctx, database, op, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return classify(ctx, database, op, err)
	}
	if err := tx.Commit(); err != nil {
		return classify(ctx, database, op, err)
	}
	return nil
}

// withSlugRetry reruns a write once when it lost a slug race to a
// concurrent transaction. A second collision is reported as a conflict.
func withSlugRetry(fn func() error) error {
	err := fn()
	if !isSlugCollision(err) {
		return err
	}
	return fn()
}

// Lock helpers bump a row version so the row stays write-locked until the
// transaction ends. Callers lock category, then forum, then topic.

func lockCategoryTx(ctx context.Context, tx *Tx, id int64) error {
	return lockRowTx(ctx, tx, "UPDATE categories SET version = version + 1 WHERE id = ?", "category", id)
}

func lockForumTx(ctx context.Context, tx *Tx, id int64) error {
	return lockRowTx(ctx, tx, "UPDATE forums SET version = version + 1 WHERE id = ?", "forum", id)
}

func lockTopicTx(ctx context.Context, tx *Tx, id int64) error {
	return lockRowTx(ctx, tx, "UPDATE topics SET version = version + 1 WHERE id = ?", "topic", id)
}

func lockRowTx(ctx context.Context, tx *Tx, query, entity string, id int64) error {
	res, err := tx.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(entity, id)
	}
	return nil
}

// slugExists builds the lookup the slug resolver uses for table. excludeID
// skips the row being renamed.
func slugExists(q querier, table string, excludeID int64) func(ctx context.Context, candidate string) (bool, error) {
	query := "SELECT COUNT(1) FROM " + table + " WHERE slug = ? AND id <> ?"
	return func(ctx context.Context, candidate string) (bool, error) {
		var count int
		if err := q.QueryRowContext(ctx, query, candidate, excludeID).Scan(&count); err != nil {
			return false, err
		}
		return count > 0, nil
	}
}

// renameSlugTx returns the slug a row of table should carry under name. An
// unchanged name keeps the current slug, suffix included.
func renameSlugTx(ctx context.Context, tx *Tx, table string, id int64, name string, now time.Time) (string, error) {
	var oldName, oldSlug string
	if err := tx.QueryRowContext(ctx, "SELECT name, slug FROM "+table+" WHERE id = ?", id).Scan(&oldName, &oldSlug); err != nil {
		return "", err
	}
	if name == oldName {
		return oldSlug, nil
	}
	return slug.Resolve(ctx, name, slugExists(tx, table, id), now)
}

func noRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// audit records who changed what once a mutation has committed.
func audit(ctx context.Context, database *DB, msg string, actor models.Actor, attrs ...any) {
	attrs = append([]any{"actor_id", actor.UserID, "actor", actor.Username}, attrs...)
	database.logger.InfoContext(ctx, msg, attrs...)
}

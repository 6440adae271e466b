package db

import (
	"context"
	"strings"

	"tavern/internal/models"
	"tavern/internal/slug"
)

type ForumParams struct {
	CategoryID   int64
	Name         string
	Description  string
	DisplayOrder int
}

func (p *ForumParams) normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.Description = strings.TrimSpace(p.Description)
}

func (p ForumParams) validate(limits Limits) error {
	v := &validator{}
	v.id("category_id", p.CategoryID)
	v.length("name", p.Name, limits.NameMin, limits.NameMax)
	v.length("description", p.Description, 0, limits.DescriptionMax)
	return v.err()
}

func CreateForum(ctx context.Context, database *DB, actor models.Actor, params ForumParams) (*models.Forum, error) {
	params.normalize()
	if err := params.validate(database.limits); err != nil {
		return nil, err
	}

	var id int64
	err := withSlugRetry(func() error {
		return withTx(ctx, database, "create forum", func(tx *Tx) error {
			// Holding the category keeps a concurrent DeleteCategory from
			// seeing it empty.
			if err := lockCategoryTx(ctx, tx, params.CategoryID); err != nil {
				return err
			}
			now := database.now()
			s, err := slug.Resolve(ctx, params.Name, slugExists(tx, "forums", 0), now)
			if err != nil {
				return err
			}
			return tx.QueryRowContext(ctx, `
INSERT INTO forums (category_id, name, slug, description, display_order, created_at)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING id`, params.CategoryID, params.Name, s, params.Description, params.DisplayOrder, formatTime(now)).Scan(&id)
		})
	})
	if err != nil {
		return nil, err
	}
	audit(ctx, database, "forum created", actor, "forum_id", id, "category_id", params.CategoryID)
	return GetForum(ctx, database, id)
}

// UpdateForum renames, reorders or moves a forum to another category.
func UpdateForum(ctx context.Context, database *DB, actor models.Actor, id int64, params ForumParams) (*models.Forum, error) {
	params.normalize()
	if err := params.validate(database.limits); err != nil {
		return nil, err
	}
	current, err := GetForum(ctx, database, id)
	if err != nil {
		return nil, err
	}

	err = withSlugRetry(func() error {
		return withTx(ctx, database, "update forum", func(tx *Tx) error {
			for _, categoryID := range orderedIDs(current.CategoryID, params.CategoryID) {
				if err := lockCategoryTx(ctx, tx, categoryID); err != nil {
					return err
				}
			}
			if err := lockForumTx(ctx, tx, id); err != nil {
				return err
			}
			s, err := renameSlugTx(ctx, tx, "forums", id, params.Name, database.now())
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
UPDATE forums
SET category_id = ?, name = ?, slug = ?, description = ?, display_order = ?
WHERE id = ?`, params.CategoryID, params.Name, s, params.Description, params.DisplayOrder, id)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	audit(ctx, database, "forum updated", actor, "forum_id", id, "category_id", params.CategoryID)
	return GetForum(ctx, database, id)
}

// DeleteForum removes a forum that holds no topics.
func DeleteForum(ctx context.Context, database *DB, actor models.Actor, id int64) error {
	err := withTx(ctx, database, "delete forum", func(tx *Tx) error {
		if err := lockForumTx(ctx, tx, id); err != nil {
			return err
		}
		var topics int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM topics WHERE forum_id = ?`, id).Scan(&topics); err != nil {
			return err
		}
		if topics > 0 {
			return nonEmptyContainer("forum", id, topics, "topics")
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM forums WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return err
	}
	audit(ctx, database, "forum deleted", actor, "forum_id", id)
	return nil
}

const forumColumns = `
SELECT id, category_id, name, slug, description, display_order,
       topic_count, post_count, last_post_at, created_at
FROM forums`

func scanForum(row interface{ Scan(...any) error }, f *models.Forum) error {
	return row.Scan(
		&f.ID, &f.CategoryID, &f.Name, &f.Slug, &f.Description, &f.DisplayOrder,
		&f.TopicCount, &f.PostCount, nullTimeCol{&f.LastPostAt}, timeCol{&f.Created},
	)
}

func GetForum(ctx context.Context, database *DB, id int64) (*models.Forum, error) {
	f := &models.Forum{}
	err := scanForum(database.QueryRowContext(ctx, forumColumns+` WHERE id = ?`, id), f)
	if noRows(err) {
		return nil, notFound("forum", id)
	}
	if err != nil {
		return nil, classify(ctx, database, "get forum", err)
	}
	return f, nil
}

func GetForumBySlug(ctx context.Context, database *DB, s string) (*models.Forum, error) {
	f := &models.Forum{}
	err := scanForum(database.QueryRowContext(ctx, forumColumns+` WHERE slug = ?`, strings.TrimSpace(s)), f)
	if noRows(err) {
		return nil, notFoundSlug("forum", s)
	}
	if err != nil {
		return nil, classify(ctx, database, "get forum", err)
	}
	return f, nil
}

// ListForums lists the forums of one category, or of all categories when
// categoryID is zero.
func ListForums(ctx context.Context, database *DB, categoryID int64) ([]models.Forum, error) {
	query := forumColumns
	var args []any
	if categoryID > 0 {
		query += ` WHERE category_id = ?`
		args = append(args, categoryID)
	}
	query += ` ORDER BY category_id ASC, display_order ASC, name ASC`

	rows, err := database.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(ctx, database, "list forums", err)
	}
	defer rows.Close()

	out := make([]models.Forum, 0)
	for rows.Next() {
		var f models.Forum
		if err := scanForum(rows, &f); err != nil {
			return nil, classify(ctx, database, "list forums", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(ctx, database, "list forums", err)
	}
	return out, nil
}

// orderedIDs returns the distinct ids in ascending order so two
// transactions never take the same pair of locks in opposite order.
func orderedIDs(a, b int64) []int64 {
	switch {
	case a == b:
		return []int64{a}
	case a < b:
		return []int64{a, b}
	default:
		return []int64{b, a}
	}
}

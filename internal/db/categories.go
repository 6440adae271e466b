package db

import (
	"context"
	"strings"

	"tavern/internal/models"
	"tavern/internal/slug"
)

type CategoryParams struct {
	Name         string
	Description  string
	DisplayOrder int
}

func (p *CategoryParams) normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.Description = strings.TrimSpace(p.Description)
}

func (p CategoryParams) validate(limits Limits) error {
	v := &validator{}
	v.length("name", p.Name, limits.NameMin, limits.NameMax)
	v.length("description", p.Description, 0, limits.DescriptionMax)
	return v.err()
}

func CreateCategory(ctx context.Context, database *DB, actor models.Actor, params CategoryParams) (*models.Category, error) {
	params.normalize()
	if err := params.validate(database.limits); err != nil {
		return nil, err
	}

	var id int64
	err := withSlugRetry(func() error {
		return withTx(ctx, database, "create category", func(tx *Tx) error {
			now := database.now()
			s, err := slug.Resolve(ctx, params.Name, slugExists(tx, "categories", 0), now)
			if err != nil {
				return err
			}
			return tx.QueryRowContext(ctx, `
INSERT INTO categories (name, slug, description, display_order, created_at)
VALUES (?, ?, ?, ?, ?)
RETURNING id`, params.Name, s, params.Description, params.DisplayOrder, formatTime(now)).Scan(&id)
		})
	})
	if err != nil {
		return nil, err
	}
	audit(ctx, database, "category created", actor, "category_id", id)
	return GetCategory(ctx, database, id)
}

// UpdateCategory renames and reorders a category. Only a new name gets a
// new slug; the category's own row never counts as a collision.
func UpdateCategory(ctx context.Context, database *DB, actor models.Actor, id int64, params CategoryParams) (*models.Category, error) {
	params.normalize()
	if err := params.validate(database.limits); err != nil {
		return nil, err
	}

	err := withSlugRetry(func() error {
		return withTx(ctx, database, "update category", func(tx *Tx) error {
			if err := lockCategoryTx(ctx, tx, id); err != nil {
				return err
			}
			s, err := renameSlugTx(ctx, tx, "categories", id, params.Name, database.now())
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
UPDATE categories
SET name = ?, slug = ?, description = ?, display_order = ?
WHERE id = ?`, params.Name, s, params.Description, params.DisplayOrder, id)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	audit(ctx, database, "category updated", actor, "category_id", id)
	return GetCategory(ctx, database, id)
}

// DeleteCategory removes an empty category.
func DeleteCategory(ctx context.Context, database *DB, actor models.Actor, id int64) error {
	err := withTx(ctx, database, "delete category", func(tx *Tx) error {
		if err := lockCategoryTx(ctx, tx, id); err != nil {
			return err
		}
		var forums int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM forums WHERE category_id = ?`, id).Scan(&forums); err != nil {
			return err
		}
		if forums > 0 {
			return nonEmptyContainer("category", id, forums, "forums")
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return err
	}
	audit(ctx, database, "category deleted", actor, "category_id", id)
	return nil
}

const categoryColumns = `
SELECT c.id, c.name, c.slug, c.description, c.display_order, c.created_at,
       (SELECT COUNT(1) FROM forums f WHERE f.category_id = c.id)
FROM categories c`

func scanCategory(row interface{ Scan(...any) error }, c *models.Category) error {
	return row.Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &c.DisplayOrder, timeCol{&c.Created}, &c.ForumCount)
}

func GetCategory(ctx context.Context, database *DB, id int64) (*models.Category, error) {
	c := &models.Category{}
	err := scanCategory(database.QueryRowContext(ctx, categoryColumns+` WHERE c.id = ?`, id), c)
	if noRows(err) {
		return nil, notFound("category", id)
	}
	if err != nil {
		return nil, classify(ctx, database, "get category", err)
	}
	return c, nil
}

func GetCategoryBySlug(ctx context.Context, database *DB, s string) (*models.Category, error) {
	c := &models.Category{}
	err := scanCategory(database.QueryRowContext(ctx, categoryColumns+` WHERE c.slug = ?`, strings.TrimSpace(s)), c)
	if noRows(err) {
		return nil, notFoundSlug("category", s)
	}
	if err != nil {
		return nil, classify(ctx, database, "get category", err)
	}
	return c, nil
}

func ListCategories(ctx context.Context, database *DB) ([]models.Category, error) {
	rows, err := database.QueryContext(ctx, categoryColumns+`
ORDER BY c.display_order ASC, c.name ASC`)
	if err != nil {
		return nil, classify(ctx, database, "list categories", err)
	}
	defer rows.Close()

	out := make([]models.Category, 0)
	for rows.Next() {
		var c models.Category
		if err := scanCategory(rows, &c); err != nil {
			return nil, classify(ctx, database, "list categories", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(ctx, database, "list categories", err)
	}
	return out, nil
}

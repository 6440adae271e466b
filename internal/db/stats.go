package db

import (
	"context"

	"tavern/internal/models"
)

func GetBoardStats(ctx context.Context, database *DB) (models.BoardStats, error) {
	stats := models.BoardStats{}
	queries := []struct {
		sql string
		dst *int
	}{
		{`SELECT COUNT(1) FROM users`, &stats.Users},
		{`SELECT COUNT(1) FROM categories`, &stats.Categories},
		{`SELECT COUNT(1) FROM forums`, &stats.Forums},
		{`SELECT COUNT(1) FROM topics`, &stats.Topics},
		{`SELECT COUNT(1) FROM posts`, &stats.Posts},
		{`SELECT COUNT(1) FROM topics WHERE is_sticky`, &stats.Sticky},
		{`SELECT COUNT(1) FROM topics WHERE is_locked`, &stats.Locked},
		{`SELECT COUNT(DISTINCT topic_id) FROM posts WHERE is_solution`, &stats.Solved},
	}
	for _, q := range queries {
		if err := database.QueryRowContext(ctx, q.sql).Scan(q.dst); err != nil {
			return models.BoardStats{}, classify(ctx, database, "board stats", err)
		}
	}
	return stats, nil
}
